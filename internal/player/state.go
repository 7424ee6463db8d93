package player

// PlayState is the externally visible playback state. Exactly one holds at a time.
type PlayState int

const (
	StateLoading PlayState = iota
	StateLoaded
	StatePlaying
	StatePaused
	StateError
)

func (s PlayState) String() string {
	switch s {
	case StateLoading:
		return "LOADING"
	case StateLoaded:
		return "LOADED"
	case StatePlaying:
		return "PLAYING"
	case StatePaused:
		return "PAUSED"
	case StateError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}
