package listener

// State is where the listener is in its cycle.
type State int

const (
	Idle State = iota
	WakeWordArmed
	Capturing
	Processing
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case WakeWordArmed:
		return "wake_word_armed"
	case Capturing:
		return "capturing"
	case Processing:
		return "processing"
	default:
		return "unknown"
	}
}
