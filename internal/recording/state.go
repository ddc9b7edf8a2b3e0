// Package recording drives audio capture through Idle, Recording, Paused and
// Stopped, publishing an elapsed-seconds counter while capture is live.
package recording

import "fmt"

// State is one of Idle, Recording, Paused or Stopped.
type State interface {
	isState()
}

type Idle struct{}

// Recording is live capture. Elapsed counts whole seconds of capture and
// survives pauses.
type Recording struct {
	Elapsed int
}

// Paused holds the elapsed counter frozen at the moment of pause.
type Paused struct {
	Elapsed int
}

// Stopped carries the finalized file.
type Stopped struct {
	Path string
}

func (Idle) isState()      {}
func (Recording) isState() {}
func (Paused) isState()    {}
func (Stopped) isState()   {}

func (r Recording) Clock() string { return Clock(r.Elapsed) }
func (p Paused) Clock() string    { return Clock(p.Elapsed) }

// Clock formats seconds as MM:SS. Minutes are not wrapped at 60.
func Clock(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%02d:%02d", seconds/60, seconds%60)
}

// Name is a short label for logs and status output.
func Name(s State) string {
	switch s.(type) {
	case Idle:
		return "idle"
	case Recording:
		return "recording"
	case Paused:
		return "paused"
	case Stopped:
		return "stopped"
	default:
		return "unknown"
	}
}
