package playback

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/loqalabs/loqa-notes/internal/wave"
)

// TimelinePlayer is a headless Player. It decodes the whole file to learn
// its duration and advances the position with the wall clock while playing.
type TimelinePlayer struct {
	now func() time.Time

	mu       sync.Mutex
	audio    *wave.Audio
	duration int64
	base     int64
	started  time.Time
	playing  bool
}

func NewTimelinePlayer() *TimelinePlayer {
	return &TimelinePlayer{now: time.Now}
}

func (p *TimelinePlayer) Prepare(ctx context.Context, path string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	audio, err := wave.DecodeFile(path)
	if err != nil {
		return 0, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.audio = &audio
	p.duration = audio.Duration().Milliseconds()
	p.base = 0
	p.playing = false
	return p.duration, nil
}

func (p *TimelinePlayer) Play() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.audio == nil {
		return errors.New("timeline player: nothing prepared")
	}
	if !p.playing {
		p.started = p.now()
		p.playing = true
	}
	return nil
}

func (p *TimelinePlayer) Pause() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.base = p.position()
	p.playing = false
	return nil
}

func (p *TimelinePlayer) SeekTo(ms int64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.base = min(max(ms, 0), p.duration)
	p.started = p.now()
	return nil
}

func (p *TimelinePlayer) CurrentPosition() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.position()
}

func (p *TimelinePlayer) IsPlaying() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.playing && p.position() < p.duration
}

func (p *TimelinePlayer) Release() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.audio = nil
	p.duration = 0
	p.base = 0
	p.playing = false
	return nil
}

// Samples returns the decoded track, or nil before Prepare.
func (p *TimelinePlayer) Samples() []float32 {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.audio == nil {
		return nil
	}
	return p.audio.Samples
}

func (p *TimelinePlayer) position() int64 {
	pos := p.base
	if p.playing {
		pos += p.now().Sub(p.started).Milliseconds()
	}
	return min(pos, p.duration)
}
