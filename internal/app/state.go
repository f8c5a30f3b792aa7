package app

// AppState is the phase of a run shown by the model.
type AppState int

const (
	Running AppState = iota
	Cancelling
	Finished
)

func (s AppState) String() string {
	switch s {
	case Running:
		return "Running"
	case Cancelling:
		return "Cancelling"
	case Finished:
		return "Finished"
	default:
		return "Unknown"
	}
}
