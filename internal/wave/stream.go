package wave

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"iter"
	"os"
)

// Chunk is one window of decoded mono samples.
type Chunk struct {
	Index   int
	Frames  int
	Samples []float32
}

// Stream decodes a canonical file in fixed-size windows so memory use is
// bounded by the chunk size. A Stream is consumed once and cannot rewind.
type Stream struct {
	file        *os.File
	r           *bufio.Reader
	header      Header
	chunkFrames int
	buf         []byte
	index       int
	done        bool
}

// OpenStream validates the canonical header of path and positions the
// stream at the first sample.
func OpenStream(path string, chunkFrames int) (*Stream, error) {
	if chunkFrames <= 0 {
		return nil, fmt.Errorf("%w: chunk size must be positive, got %d", ErrDecode, chunkFrames)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %w", ErrDecode, path, err)
	}
	r := bufio.NewReaderSize(f, chunkFrames*BlockAlign)

	raw := make([]byte, HeaderSize)
	if n, err := io.ReadFull(r, raw); err != nil {
		f.Close()
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, fmt.Errorf("%w: short header (%d bytes)", ErrDecode, n)
		}
		return nil, fmt.Errorf("%w: read header: %w", ErrDecode, err)
	}
	h, err := parseHeader(raw)
	if err == nil {
		err = h.canonical()
	}
	if err != nil {
		f.Close()
		return nil, err
	}

	return &Stream{
		file:        f,
		r:           r,
		header:      h,
		chunkFrames: chunkFrames,
		buf:         make([]byte, chunkFrames*BlockAlign),
	}, nil
}

// Header returns the parsed header.
func (s *Stream) Header() Header { return s.header }

// Next returns the next chunk, or io.EOF once the payload is exhausted.
func (s *Stream) Next() (Chunk, error) {
	if s.done {
		return Chunk{}, io.EOF
	}
	n, err := io.ReadFull(s.r, s.buf)
	switch {
	case errors.Is(err, io.EOF):
		s.done = true
		return Chunk{}, io.EOF
	case errors.Is(err, io.ErrUnexpectedEOF):
		s.done = true
	case err != nil:
		s.done = true
		return Chunk{}, fmt.Errorf("%w: read samples: %w", ErrDecode, err)
	}

	frames := n / BlockAlign
	if frames == 0 {
		return Chunk{}, io.EOF
	}
	samples := make([]float32, frames)
	for i := range samples {
		samples[i] = sampleToFloat(int16(binary.LittleEndian.Uint16(s.buf[i*BlockAlign:])))
	}
	chunk := Chunk{Index: s.index, Frames: frames, Samples: samples}
	s.index++
	return chunk, nil
}

// Chunks adapts Next to a range-over-func sequence. Iteration stops after
// the first error.
func (s *Stream) Chunks() iter.Seq2[Chunk, error] {
	return func(yield func(Chunk, error) bool) {
		for {
			chunk, err := s.Next()
			if errors.Is(err, io.EOF) {
				return
			}
			if !yield(chunk, err) || err != nil {
				return
			}
		}
	}
}

// Close releases the underlying file.
func (s *Stream) Close() error {
	if s == nil || s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	return err
}
