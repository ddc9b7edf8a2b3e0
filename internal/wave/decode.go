package wave

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/go-audio/wav"
)

// Audio is a fully decoded file folded down to mono.
type Audio struct {
	Samples    []float32
	SampleRate int
}

// Duration is the playback length of the decoded samples.
func (a Audio) Duration() time.Duration {
	return FramesToDuration(int64(len(a.Samples)), a.SampleRate)
}

// DecodeFile reads the whole payload of a 16-bit PCM file. Stereo input is
// averaged per frame before normalization; mono passes through.
func DecodeFile(path string) (Audio, error) {
	f, err := os.Open(path)
	if err != nil {
		return Audio{}, fmt.Errorf("%w: open %s: %w", ErrDecode, path, err)
	}
	defer f.Close()

	raw := make([]byte, HeaderSize)
	if n, err := io.ReadFull(f, raw); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return Audio{}, fmt.Errorf("%w: short header (%d bytes)", ErrDecode, n)
		}
		return Audio{}, fmt.Errorf("%w: read header: %w", ErrDecode, err)
	}
	h, err := parseHeader(raw)
	if err != nil {
		return Audio{}, err
	}
	if h.Channels != 1 && h.Channels != 2 {
		return Audio{}, fmt.Errorf("%w: %d channels not supported", ErrDecode, h.Channels)
	}
	if h.DataSize == 0 {
		return Audio{Samples: []float32{}, SampleRate: int(h.SampleRate)}, nil
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return Audio{}, fmt.Errorf("%w: rewind: %w", ErrDecode, err)
	}

	dec := wav.NewDecoder(f)
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return Audio{}, fmt.Errorf("%w: read payload: %w", ErrDecode, err)
	}

	channels := int(h.Channels)
	frames := len(buf.Data) / channels
	samples := make([]float32, frames)
	for i := range samples {
		if channels == 1 {
			samples[i] = clamp(float32(buf.Data[i]) / sampleScale)
			continue
		}
		sum := buf.Data[2*i] + buf.Data[2*i+1]
		samples[i] = clamp(float32(sum) / sampleScale / 2)
	}
	return Audio{Samples: samples, SampleRate: int(h.SampleRate)}, nil
}
