// Package wave reads and writes the canonical 44-byte RIFF/WAVE container
// used for voice notes: PCM, 16-bit little-endian, mono, 16 kHz.
package wave

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"time"
)

const (
	HeaderSize    = 44
	SampleRate    = 16000
	Channels      = 1
	BitsPerSample = 16
	BlockAlign    = Channels * BitsPerSample / 8
	ByteRate      = SampleRate * BlockAlign

	formatPCM = 1
	fmtSize   = 16

	// sampleScale is the divisor used in both directions so that a round
	// trip stays within one quantization step.
	sampleScale = 32767
)

var (
	// ErrDecode reports a truncated, malformed or unsupported file.
	ErrDecode = errors.New("wave: decode error")
	// ErrIO reports a failed write.
	ErrIO = errors.New("wave: io error")
)

// Header mirrors the fixed fields of a canonical WAVE header.
type Header struct {
	RIFFSize      uint32
	AudioFormat   uint16
	Channels      uint16
	SampleRate    uint32
	ByteRate      uint32
	BlockAlign    uint16
	BitsPerSample uint16
	DataSize      uint32
}

func parseHeader(b []byte) (Header, error) {
	if len(b) < HeaderSize {
		return Header{}, fmt.Errorf("%w: header is %d bytes, need %d", ErrDecode, len(b), HeaderSize)
	}
	if string(b[0:4]) != "RIFF" {
		return Header{}, fmt.Errorf("%w: missing RIFF chunk id", ErrDecode)
	}
	if string(b[8:12]) != "WAVE" {
		return Header{}, fmt.Errorf("%w: missing WAVE format", ErrDecode)
	}
	if string(b[12:16]) != "fmt " {
		return Header{}, fmt.Errorf("%w: missing fmt sub-chunk", ErrDecode)
	}
	if size := binary.LittleEndian.Uint32(b[16:20]); size != fmtSize {
		return Header{}, fmt.Errorf("%w: fmt sub-chunk size %d, want %d", ErrDecode, size, fmtSize)
	}
	if string(b[36:40]) != "data" {
		return Header{}, fmt.Errorf("%w: missing data sub-chunk", ErrDecode)
	}
	h := Header{
		RIFFSize:      binary.LittleEndian.Uint32(b[4:8]),
		AudioFormat:   binary.LittleEndian.Uint16(b[20:22]),
		Channels:      binary.LittleEndian.Uint16(b[22:24]),
		SampleRate:    binary.LittleEndian.Uint32(b[24:28]),
		ByteRate:      binary.LittleEndian.Uint32(b[28:32]),
		BlockAlign:    binary.LittleEndian.Uint16(b[32:34]),
		BitsPerSample: binary.LittleEndian.Uint16(b[34:36]),
		DataSize:      binary.LittleEndian.Uint32(b[40:44]),
	}
	if h.AudioFormat != formatPCM {
		return Header{}, fmt.Errorf("%w: audio format %d is not PCM", ErrDecode, h.AudioFormat)
	}
	if h.BitsPerSample != BitsPerSample {
		return Header{}, fmt.Errorf("%w: %d bits per sample, want %d", ErrDecode, h.BitsPerSample, BitsPerSample)
	}
	return h, nil
}

// canonical checks the fields the streaming decoder depends on.
func (h Header) canonical() error {
	switch {
	case h.Channels != Channels:
		return fmt.Errorf("%w: %d channels, want mono", ErrDecode, h.Channels)
	case h.SampleRate != SampleRate:
		return fmt.Errorf("%w: sample rate %d, want %d", ErrDecode, h.SampleRate, SampleRate)
	case h.ByteRate != ByteRate:
		return fmt.Errorf("%w: byte rate %d, want %d", ErrDecode, h.ByteRate, ByteRate)
	case h.BlockAlign != BlockAlign:
		return fmt.Errorf("%w: block align %d, want %d", ErrDecode, h.BlockAlign, BlockAlign)
	}
	return nil
}

// EstimateFrames approximates the number of mono frames in a canonical file
// from its size alone.
func EstimateFrames(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, fmt.Errorf("%w: stat %s: %w", ErrDecode, path, err)
	}
	frames := (info.Size() - HeaderSize) / BlockAlign
	if frames < 0 {
		frames = 0
	}
	return frames, nil
}

// FramesToDuration converts a frame count at rate into a duration.
func FramesToDuration(frames int64, rate int) time.Duration {
	if rate <= 0 {
		return 0
	}
	return time.Duration(frames) * time.Second / time.Duration(rate)
}

func sampleToFloat(v int16) float32 {
	return clamp(float32(v) / sampleScale)
}

func clamp(v float32) float32 {
	if v > 1 {
		return 1
	}
	if v < -1 {
		return -1
	}
	return v
}
