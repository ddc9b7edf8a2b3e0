// Package playback drives a player through Idle, Loaded, Playing and Paused
// and polls its position while playing.
package playback

// State is one of Idle, Loaded, Playing or Paused. Positions and durations
// are milliseconds and 0 <= Position <= Duration always holds.
type State interface {
	isState()
}

type Idle struct{}

type Loaded struct {
	Duration int64
}

type Playing struct {
	Position int64
	Duration int64
}

type Paused struct {
	Position int64
	Duration int64
}

func (Idle) isState()    {}
func (Loaded) isState()  {}
func (Playing) isState() {}
func (Paused) isState()  {}

// Name is a short label for logs and status output.
func Name(s State) string {
	switch s.(type) {
	case Idle:
		return "idle"
	case Loaded:
		return "loaded"
	case Playing:
		return "playing"
	case Paused:
		return "paused"
	default:
		return "unknown"
	}
}

// Position reports where s sits on the timeline and how long the track is.
func Position(s State) (position, duration int64) {
	switch st := s.(type) {
	case Loaded:
		return 0, st.Duration
	case Playing:
		return st.Position, st.Duration
	case Paused:
		return st.Position, st.Duration
	default:
		return 0, 0
	}
}
