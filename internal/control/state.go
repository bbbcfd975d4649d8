package control

// State tracks where one sequence is in its lifecycle. The host keeps one
// State per sequence and consults it before delivering events; the
// transitions are Uninitialized -> Prompted -> {Sampling, Stopped}, with
// Sampling re-entering itself or moving to Stopped on every event.
type State uint8

const (
	StateUninitialized State = iota
	StatePrompted
	StateSampling
	StateStopped
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StatePrompted:
		return "prompted"
	case StateSampling:
		return "sampling"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further event may be delivered.
func (s State) Terminal() bool {
	return s == StateStopped
}
