package sim

// Built-in filters.
const (
	IdentityLoopback = "identity-loopback"
	Invert           = "invert"
	Xor80            = "xor80"
)

// Filter transforms a chunk of stream data. It may modify p in place.
type Filter func(p []byte) []byte

func builtinFilters() map[string]Filter {
	return map[string]Filter{
		IdentityLoopback: identity,
		Invert:           xor(0xff),
		Xor80:            xor(0x80),
	}
}

func identity(p []byte) []byte {
	return p
}

func xor(mask byte) Filter {
	return func(p []byte) []byte {
		for i := range p {
			p[i] ^= mask
		}
		return p
	}
}
