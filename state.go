package dyplo

// State identifies one of the possible states processor can be in.
type State int

// states
const (
	// Empty state means that processor has no pipeline.
	Empty State = iota
	// Configured state means that pipeline exists and is idle.
	Configured
	// Armed state means that asynchronous send is outstanding and
	// readiness notification is subscribed.
	Armed
)

func (s State) String() string {
	switch s {
	case Empty:
		return "empty"
	case Configured:
		return "configured"
	case Armed:
		return "armed"
	}
	return "unknown"
}

// event identifies the type of processor transition.
type event int

// types of events.
const (
	create event = iota
	send
	notify
	release
)

// Convert the event to a string.
func (e event) String() string {
	switch e {
	case create:
		return "create"
	case send:
		return "send"
	case notify:
		return "notify"
	case release:
		return "release"
	}
	return "unknown"
}

// transition returns the state after event. Second value is false if
// event is not allowed in state s.
func (s State) transition(e event) (State, bool) {
	switch e {
	case create:
		return Configured, true
	case release:
		return Empty, true
	case send:
		if s == Empty {
			return s, false
		}
		return Armed, true
	case notify:
		if s != Armed {
			return s, false
		}
		return Configured, true
	}
	return s, false
}
