package dyplo

import "fmt"

// Direction of the channel.
type Direction int

const (
	// Input channel receives data from logic.
	Input Direction = iota
	// Output channel sends data to logic.
	Output
)

func (d Direction) String() string {
	if d == Input {
		return "input"
	}
	return "output"
}

// Channel is an exclusive handle to one hardware DMA fifo. Closed channel
// returns its fifo to the provider and can't be used anymore.
type Channel struct {
	direction Direction
	in        InputFifo
	out       OutputFifo
	closed    bool
}

// OpenInput acquires a free fifo which receives data from logic.
func OpenInput(p Provider) (*Channel, error) {
	f, err := p.OpenAvailableInput()
	if err != nil {
		return nil, fmt.Errorf("open input channel: %w", hardwareError("open input", err))
	}
	return &Channel{direction: Input, in: f}, nil
}

// OpenOutput acquires a free fifo which sends data to logic.
func OpenOutput(p Provider) (*Channel, error) {
	f, err := p.OpenAvailableOutput()
	if err != nil {
		return nil, fmt.Errorf("open output channel: %w", hardwareError("open output", err))
	}
	return &Channel{direction: Output, out: f}, nil
}

// Direction returns channel direction.
func (c *Channel) Direction() Direction {
	return c.direction
}

// Closed returns true if channel was closed.
func (c *Channel) Closed() bool {
	return c.closed
}

// Endpoint returns node and fifo index of the channel.
func (c *Channel) Endpoint() Endpoint {
	return c.fifo().Endpoint()
}

// Write sends p to logic. Only output channels can be written.
func (c *Channel) Write(p []byte) (int, error) {
	if c.closed || c.direction != Output {
		return 0, fmt.Errorf("write %v channel: %w", c.direction, ErrInvalidState)
	}
	n, err := c.out.Write(p)
	if err != nil {
		return n, hardwareError("write", err)
	}
	if n < len(p) {
		return n, &HardwareError{Op: "write", Err: fmt.Errorf("short write %d of %d bytes", n, len(p))}
	}
	return n, nil
}

// input returns underlying input fifo if channel is open.
func (c *Channel) input() (InputFifo, error) {
	if c.closed || c.direction != Input {
		return nil, fmt.Errorf("%v channel: %w", c.direction, ErrInvalidState)
	}
	return c.in, nil
}

func (c *Channel) fifo() Fifo {
	if c.direction == Input {
		return c.in
	}
	return c.out
}

// Close releases the fifo. Subsequent calls are no-op.
func (c *Channel) Close() error {
	if c == nil || c.closed {
		return nil
	}
	c.closed = true
	if err := c.fifo().Close(); err != nil {
		return hardwareError("close "+c.direction.String(), err)
	}
	return nil
}
