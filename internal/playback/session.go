package playback

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/loqalabs/loqa-notes/internal/watch"
)

var (
	ErrNotLoaded = errors.New("playback: nothing loaded")
	ErrPlaying   = errors.New("playback: pause before loading another file")
	ErrClosed    = errors.New("playback: session closed")
)

// Player is the playback device. Calls are serialized by the Session.
type Player interface {
	// Prepare opens path and returns its duration in milliseconds.
	Prepare(ctx context.Context, path string) (int64, error)
	Play() error
	Pause() error
	SeekTo(ms int64) error
	CurrentPosition() int64
	IsPlaying() bool
	Release() error
}

type Options struct {
	PollInterval time.Duration
	// EndThreshold is how close to the end a polled position must come to
	// count as end of track.
	EndThreshold time.Duration
	Logger       *slog.Logger
}

type request struct {
	run   func() error
	reply chan error
}

// Session owns the playback state machine on a single goroutine.
type Session struct {
	player    Player
	interval  time.Duration
	threshold int64
	logger    *slog.Logger

	state *watch.Value[State]
	reqs  chan request
	quit  chan struct{}
	done  chan struct{}
	once  sync.Once

	// owned by the loop goroutine
	cur    State
	ticker *time.Ticker
	pollC  <-chan time.Time
}

func NewSession(player Player, opts Options) *Session {
	if opts.PollInterval <= 0 {
		opts.PollInterval = 100 * time.Millisecond
	}
	if opts.EndThreshold < 0 {
		opts.EndThreshold = 0
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Session{
		player:    player,
		interval:  opts.PollInterval,
		threshold: opts.EndThreshold.Milliseconds(),
		logger:    logger.With(slog.String("component", "playback")),
		state:     watch.New[State](Idle{}),
		reqs:      make(chan request),
		quit:      make(chan struct{}),
		done:      make(chan struct{}),
		cur:       Idle{},
	}
	go s.loop()
	return s
}

func (s *Session) State() State { return s.state.Load() }

// Watch subscribes to state changes, starting with the current state.
func (s *Session) Watch(buffer int) (<-chan State, func()) {
	return s.state.Subscribe(buffer)
}

// Load prepares path. On failure the state is left unchanged.
func (s *Session) Load(ctx context.Context, path string) error {
	return s.do(func() error {
		if _, ok := s.cur.(Playing); ok {
			return ErrPlaying
		}
		duration, err := s.player.Prepare(ctx, path)
		if err != nil {
			return fmt.Errorf("prepare %s: %w", path, err)
		}
		if duration < 0 {
			duration = 0
		}
		s.publish(Loaded{Duration: duration})
		s.logger.Info("track loaded", slog.String("path", path), slog.Int64("duration_ms", duration))
		return nil
	})
}

// Play starts or resumes playback and begins polling the position.
func (s *Session) Play() error {
	return s.do(func() error {
		var pos, dur int64
		switch st := s.cur.(type) {
		case Idle:
			return ErrNotLoaded
		case Playing:
			return nil
		case Loaded:
			dur = st.Duration
		case Paused:
			pos, dur = st.Position, st.Duration
		}
		if err := s.player.Play(); err != nil {
			return fmt.Errorf("play: %w", err)
		}
		s.publish(Playing{Position: pos, Duration: dur})
		s.startPoll()
		return nil
	})
}

// Pause stops playback and polling, keeping the position.
func (s *Session) Pause() error {
	return s.do(func() error {
		switch st := s.cur.(type) {
		case Idle:
			return ErrNotLoaded
		case Playing:
			s.stopPoll()
			if err := s.player.Pause(); err != nil {
				return fmt.Errorf("pause: %w", err)
			}
			pos := clampPosition(s.player.CurrentPosition(), st.Duration)
			s.publish(Paused{Position: pos, Duration: st.Duration})
		}
		return nil
	})
}

// SeekTo moves to ms, clamped to the track, and publishes the new position
// at once. A Loaded track becomes Paused at that position.
func (s *Session) SeekTo(ms int64) error {
	return s.do(func() error {
		_, dur := Position(s.cur)
		if _, ok := s.cur.(Idle); ok {
			return ErrNotLoaded
		}
		pos := clampPosition(ms, dur)
		if err := s.player.SeekTo(pos); err != nil {
			return fmt.Errorf("seek: %w", err)
		}
		if _, ok := s.cur.(Playing); ok {
			s.publish(Playing{Position: pos, Duration: dur})
		} else {
			s.publish(Paused{Position: pos, Duration: dur})
		}
		return nil
	})
}

// Release stops polling and frees the player. It is safe in any state and
// may be called repeatedly.
func (s *Session) Release() error {
	err := s.do(s.release)
	if errors.Is(err, ErrClosed) {
		return nil
	}
	return err
}

// Close releases the player and ends the session goroutine.
func (s *Session) Close() {
	s.once.Do(func() { close(s.quit) })
	<-s.done
}

func (s *Session) do(fn func() error) error {
	req := request{run: fn, reply: make(chan error, 1)}
	select {
	case s.reqs <- req:
	case <-s.done:
		return ErrClosed
	}
	return <-req.reply
}

func (s *Session) loop() {
	defer close(s.done)
	for {
		select {
		case req := <-s.reqs:
			req.reply <- req.run()
		case <-s.pollC:
			s.poll()
		case <-s.quit:
			if err := s.release(); err != nil {
				s.logger.Warn("release on close failed", slog.String("error", err.Error()))
			}
			return
		}
	}
}

func (s *Session) poll() {
	st, ok := s.cur.(Playing)
	if !ok {
		s.stopPoll()
		return
	}
	pos := clampPosition(s.player.CurrentPosition(), st.Duration)
	if st.Duration > 0 && pos >= st.Duration-s.threshold {
		s.stopPoll()
		if err := s.player.Pause(); err != nil {
			s.logger.Warn("pause at end of track failed", slog.String("error", err.Error()))
		}
		if err := s.player.SeekTo(0); err != nil {
			s.logger.Warn("rewind failed", slog.String("error", err.Error()))
		}
		s.publish(Paused{Position: 0, Duration: st.Duration})
		return
	}
	s.publish(Playing{Position: pos, Duration: st.Duration})
}

func (s *Session) release() error {
	s.stopPoll()
	if _, ok := s.cur.(Idle); ok {
		return nil
	}
	s.publish(Idle{})
	if err := s.player.Release(); err != nil {
		return fmt.Errorf("release player: %w", err)
	}
	return nil
}

func (s *Session) startPoll() {
	s.stopPoll()
	s.ticker = time.NewTicker(s.interval)
	s.pollC = s.ticker.C
}

func (s *Session) stopPoll() {
	if s.ticker != nil {
		s.ticker.Stop()
		s.ticker = nil
	}
	s.pollC = nil
}

func (s *Session) publish(st State) {
	s.cur = st
	s.state.Store(st)
}

func clampPosition(ms, duration int64) int64 {
	if ms < 0 {
		return 0
	}
	if ms > duration {
		return duration
	}
	return ms
}
