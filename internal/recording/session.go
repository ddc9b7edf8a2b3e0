package recording

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
	ErrPermissionDenied  = errors.New("recording: permission denied")
	ErrInvalidTransition = errors.New("recording: invalid transition")
	ErrClosed            = errors.New("recording: session closed")
)

// Recorder is the capture device. Calls are serialized by the Session.
type Recorder interface {
	Start(ctx context.Context) error
	Pause() error
	Resume() error
	// Stop finalizes the capture and returns the file it was written to.
	Stop() (string, error)
}

// Permissions answers whether capture is allowed.
type Permissions interface {
	HasRecordingPermission() bool
	// RequestRecordingPermission asks the user and delivers one answer.
	RequestRecordingPermission(ctx context.Context) <-chan bool
}

type op int

const (
	opStart op = iota
	opPause
	opResume
	opStop
	opReset
)

func (o op) String() string {
	switch o {
	case opStart:
		return "start"
	case opPause:
		return "pause"
	case opResume:
		return "resume"
	case opStop:
		return "stop"
	case opReset:
		return "reset"
	}
	return "unknown"
}

type command struct {
	op    op
	reply chan error
}

type Options struct {
	TickInterval time.Duration
	Logger       *slog.Logger
}

// Session owns the recording state machine. All transitions run on one
// goroutine; callers only send commands and read published state.
type Session struct {
	recorder Recorder
	perms    Permissions
	interval time.Duration
	logger   *slog.Logger

	state *watch.Value[State]
	cmds  chan command
	quit  chan struct{}
	done  chan struct{}
	once  sync.Once

	errMu   sync.Mutex
	lastErr error

	ctx    context.Context
	cancel context.CancelFunc

	// owned by the loop goroutine
	cur     State
	ticker  *time.Ticker
	tickC   <-chan time.Time
	pending <-chan bool
}

// NewSession starts the session goroutine in Idle.
func NewSession(recorder Recorder, perms Permissions, opts Options) *Session {
	if opts.TickInterval <= 0 {
		opts.TickInterval = time.Second
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		recorder: recorder,
		perms:    perms,
		interval: opts.TickInterval,
		logger:   logger.With(slog.String("component", "recording")),
		state:    watch.New[State](Idle{}),
		cmds:     make(chan command),
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
		ctx:      ctx,
		cancel:   cancel,
		cur:      Idle{},
	}
	go s.loop()
	return s
}

// State returns the latest published state.
func (s *Session) State() State { return s.state.Load() }

// Watch subscribes to state changes. The current state is delivered first.
func (s *Session) Watch(buffer int) (<-chan State, func()) {
	return s.state.Subscribe(buffer)
}

// Err returns the most recent failure, including a denied permission
// request that left the session Idle.
func (s *Session) Err() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.lastErr
}

// Start begins capture. Without permission it issues a request and returns;
// the session moves to Recording only if the request is granted.
func (s *Session) Start() error { return s.send(opStart) }

func (s *Session) Pause() error  { return s.send(opPause) }
func (s *Session) Resume() error { return s.send(opResume) }

// Stop finalizes capture from Recording or Paused.
func (s *Session) Stop() error { return s.send(opStop) }

// Reset returns a Stopped session to Idle.
func (s *Session) Reset() error { return s.send(opReset) }

// Close finalizes any live capture and ends the session goroutine. It is
// safe to call more than once.
func (s *Session) Close() {
	s.once.Do(func() {
		close(s.quit)
		s.cancel()
	})
	<-s.done
}

func (s *Session) send(o op) error {
	cmd := command{op: o, reply: make(chan error, 1)}
	select {
	case s.cmds <- cmd:
	case <-s.done:
		return ErrClosed
	}
	return <-cmd.reply
}

func (s *Session) loop() {
	defer close(s.done)
	for {
		select {
		case cmd := <-s.cmds:
			cmd.reply <- s.handle(cmd.op)
		case <-s.tickC:
			if r, ok := s.cur.(Recording); ok {
				s.publish(Recording{Elapsed: r.Elapsed + 1})
			}
		case granted := <-s.pending:
			s.pending = nil
			if !granted {
				s.logger.Warn("recording permission denied")
				s.setErr(ErrPermissionDenied)
				continue
			}
			if err := s.begin(); err != nil {
				s.setErr(err)
			}
		case <-s.quit:
			s.shutdown()
			return
		}
	}
}

func (s *Session) handle(o op) error {
	switch o {
	case opStart:
		switch s.cur.(type) {
		case Idle, Stopped:
		default:
			return s.invalid(o)
		}
		if s.pending != nil {
			return fmt.Errorf("%w: permission request pending", ErrInvalidTransition)
		}
		s.setErr(nil)
		if !s.perms.HasRecordingPermission() {
			s.logger.Info("requesting recording permission")
			s.pending = s.perms.RequestRecordingPermission(s.ctx)
			return nil
		}
		return s.begin()

	case opPause:
		r, ok := s.cur.(Recording)
		if !ok {
			return s.invalid(o)
		}
		s.stopTick()
		if err := s.recorder.Pause(); err != nil {
			s.startTick()
			return fmt.Errorf("pause recorder: %w", err)
		}
		s.publish(Paused{Elapsed: r.Elapsed})
		return nil

	case opResume:
		p, ok := s.cur.(Paused)
		if !ok {
			return s.invalid(o)
		}
		if err := s.recorder.Resume(); err != nil {
			return fmt.Errorf("resume recorder: %w", err)
		}
		s.publish(Recording{Elapsed: p.Elapsed})
		s.startTick()
		return nil

	case opStop:
		switch s.cur.(type) {
		case Recording, Paused:
		default:
			return s.invalid(o)
		}
		return s.finalize()

	case opReset:
		switch s.cur.(type) {
		case Idle:
			return nil
		case Stopped:
			s.publish(Idle{})
			return nil
		default:
			return s.invalid(o)
		}
	}
	return s.invalid(o)
}

func (s *Session) begin() error {
	if err := s.recorder.Start(s.ctx); err != nil {
		s.publish(Idle{})
		return fmt.Errorf("start recorder: %w", err)
	}
	s.publish(Recording{Elapsed: 0})
	s.startTick()
	s.logger.Info("recording started")
	return nil
}

func (s *Session) finalize() error {
	s.stopTick()
	path, err := s.recorder.Stop()
	if err != nil {
		s.publish(Idle{})
		err = fmt.Errorf("stop recorder: %w", err)
		s.setErr(err)
		return err
	}
	s.publish(Stopped{Path: path})
	s.logger.Info("recording stopped", slog.String("path", path))
	return nil
}

func (s *Session) shutdown() {
	switch s.cur.(type) {
	case Recording, Paused:
		if err := s.finalize(); err != nil {
			s.logger.Warn("finalize on close failed", slog.String("error", err.Error()))
		}
	}
	s.stopTick()
}

func (s *Session) startTick() {
	s.stopTick()
	s.ticker = time.NewTicker(s.interval)
	s.tickC = s.ticker.C
}

func (s *Session) stopTick() {
	if s.ticker != nil {
		s.ticker.Stop()
		s.ticker = nil
	}
	s.tickC = nil
}

func (s *Session) publish(st State) {
	s.cur = st
	s.state.Store(st)
}

func (s *Session) setErr(err error) {
	s.errMu.Lock()
	s.lastErr = err
	s.errMu.Unlock()
}

func (s *Session) invalid(o op) error {
	return fmt.Errorf("%w: %s while %s", ErrInvalidTransition, o, Name(s.cur))
}
