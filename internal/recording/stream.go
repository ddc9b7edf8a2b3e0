package recording

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/loqalabs/loqa-notes/internal/wave"
)

// blockFrames is 100 ms of audio.
const blockFrames = wave.SampleRate / 10

// StreamRecorder captures raw signed 16-bit little-endian mono 16 kHz PCM
// from a reader (for example `arecord -t raw -f S16_LE -r 16000 -c 1`) into
// canonical files under a directory. Input that arrives while paused or
// between recordings is discarded.
type StreamRecorder struct {
	dir    string
	src    io.Reader
	logger *slog.Logger

	pumpOnce sync.Once
	blocks   chan []int16
	srcErr   atomic.Value

	active atomic.Bool
	paused atomic.Bool
	frames atomic.Int64

	mu  sync.Mutex
	cur *capture
}

type capture struct {
	path string
	file *os.File
	w    *wave.Writer
	quit chan struct{}
	done chan struct{}
	err  error
}

func NewStreamRecorder(dir string, src io.Reader, logger *slog.Logger) *StreamRecorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &StreamRecorder{
		dir:    dir,
		src:    src,
		logger: logger.With(slog.String("component", "stream-recorder")),
		blocks: make(chan []int16, 8),
	}
}

func (r *StreamRecorder) Start(context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cur != nil {
		return errors.New("capture already running")
	}
	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return fmt.Errorf("%w: create output dir: %w", wave.ErrIO, err)
	}
	name := fmt.Sprintf("note-%s-%s.wav", time.Now().UTC().Format("20060102T150405"), uuid.NewString()[:8])
	path := filepath.Join(r.dir, name)
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("%w: create %s: %w", wave.ErrIO, path, err)
	}

	c := &capture{
		path: path,
		file: f,
		w:    wave.NewWriter(f),
		quit: make(chan struct{}),
		done: make(chan struct{}),
	}
	r.drain()
	r.cur = c
	r.frames.Store(0)
	r.paused.Store(false)
	r.active.Store(true)
	r.pumpOnce.Do(func() { go r.pump() })
	go r.write(c)
	return nil
}

func (r *StreamRecorder) Pause() error {
	r.paused.Store(true)
	return nil
}

func (r *StreamRecorder) Resume() error {
	r.paused.Store(false)
	return nil
}

func (r *StreamRecorder) Stop() (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := r.cur
	if c == nil {
		return "", errors.New("no capture running")
	}
	r.cur = nil
	r.active.Store(false)
	close(c.quit)
	<-c.done

	err := c.err
	if cerr := c.w.Close(); cerr != nil {
		err = errors.Join(err, cerr)
	}
	if cerr := c.file.Close(); cerr != nil {
		err = errors.Join(err, fmt.Errorf("%w: close %s: %w", wave.ErrIO, c.path, cerr))
	}
	r.logger.Info("capture finalized", slog.String("path", c.path), slog.Int64("frames", r.frames.Load()))
	return c.path, err
}

// Frames reports how many frames the current or last capture kept.
func (r *StreamRecorder) Frames() int64 { return r.frames.Load() }

// SourceErr reports why the input reader stopped, if it has.
func (r *StreamRecorder) SourceErr() error {
	if v, ok := r.srcErr.Load().(error); ok {
		return v
	}
	return nil
}

func (r *StreamRecorder) pump() {
	buf := make([]byte, blockFrames*wave.BlockAlign)
	for {
		n, err := io.ReadFull(r.src, buf)
		if n >= 2 && r.active.Load() {
			samples := make([]int16, n/2)
			for i := range samples {
				samples[i] = int16(binary.LittleEndian.Uint16(buf[i*2:]))
			}
			r.blocks <- samples
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
				r.logger.Warn("capture source failed", slog.String("error", err.Error()))
			}
			r.srcErr.Store(err)
			close(r.blocks)
			return
		}
	}
}

// drain drops blocks left over from a previous capture.
func (r *StreamRecorder) drain() {
	for {
		select {
		case _, ok := <-r.blocks:
			if !ok {
				return
			}
		default:
			return
		}
	}
}

func (r *StreamRecorder) write(c *capture) {
	defer close(c.done)
	blocks := r.blocks
	for {
		select {
		case <-c.quit:
			return
		case blk, ok := <-blocks:
			if !ok {
				blocks = nil
				continue
			}
			if r.paused.Load() || c.err != nil {
				continue
			}
			if err := c.w.Write(blk); err != nil {
				c.err = err
				continue
			}
			r.frames.Add(int64(len(blk)))
		}
	}
}
