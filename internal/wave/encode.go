package wave

import (
	"fmt"
	"io"
	"math"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// Writer appends 16 kHz mono samples to a canonical file. The header sizes
// are patched on Close, so the destination must be seekable.
type Writer struct {
	enc     *wav.Encoder
	format  *audio.Format
	started bool
	frames  int64
}

// NewWriter prepares a canonical PCM writer on ws.
func NewWriter(ws io.WriteSeeker) *Writer {
	return &Writer{
		enc:    wav.NewEncoder(ws, SampleRate, BitsPerSample, Channels, formatPCM),
		format: &audio.Format{NumChannels: Channels, SampleRate: SampleRate},
	}
}

// Write appends samples.
func (w *Writer) Write(samples []int16) error {
	data := make([]int, len(samples))
	for i, s := range samples {
		data[i] = int(s)
	}
	buf := &audio.IntBuffer{Format: w.format, Data: data, SourceBitDepth: BitsPerSample}
	if err := w.enc.Write(buf); err != nil {
		return fmt.Errorf("%w: write samples: %w", ErrIO, err)
	}
	w.started = true
	w.frames += int64(len(samples))
	return nil
}

// Frames reports how many frames have been written.
func (w *Writer) Frames() int64 { return w.frames }

// Close finalizes the header. An empty recording still gets a data
// sub-chunk so the result is a valid 44-byte file.
func (w *Writer) Close() error {
	if !w.started {
		if err := w.Write(nil); err != nil {
			return err
		}
	}
	if err := w.enc.Close(); err != nil {
		return fmt.Errorf("%w: close encoder: %w", ErrIO, err)
	}
	return nil
}

// Encode writes a complete canonical file to ws.
func Encode(ws io.WriteSeeker, samples []int16) error {
	w := NewWriter(ws)
	if err := w.Write(samples); err != nil {
		return err
	}
	return w.Close()
}

// EncodeFile creates (or truncates) path and encodes samples into it.
func EncodeFile(path string, samples []int16) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("%w: create %s: %w", ErrIO, path, err)
	}
	if err := Encode(f, samples); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("%w: close %s: %w", ErrIO, path, err)
	}
	return nil
}

// Quantize maps normalized samples to 16-bit PCM, clamping out-of-range input.
func Quantize(samples []float32) []int16 {
	out := make([]int16, len(samples))
	for i, v := range samples {
		out[i] = int16(math.Round(float64(clamp(v)) * sampleScale))
	}
	return out
}
