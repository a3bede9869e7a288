package audio

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/liviaellen/voice-sense-hardware/internal/apperr"
)

const (
	// BytesPerSample is fixed: payloads are mono 16-bit PCM
	BytesPerSample = 2
	Channels       = 1
	BitsPerSample  = 16
)

// Buffer is an immutable mono PCM-16 recording received from a device
type Buffer struct {
	pcm        []byte
	sampleRate int
}

// NewBuffer copies pcm into a new Buffer. Empty, odd-length or rate-less payloads
// are rejected with a validation error.
func NewBuffer(pcm []byte, sampleRate int) (*Buffer, error) {
	if len(pcm) == 0 {
		return nil, apperr.Validation("audio", apperr.ErrEmptyAudio)
	}

	if sampleRate <= 0 {
		return nil, apperr.Validation("sample_rate", fmt.Errorf("sample rate must be positive, got %d", sampleRate))
	}

	if len(pcm)%BytesPerSample != 0 {
		return nil, apperr.Validation("audio", fmt.Errorf("audio data length must be even (got %d bytes)", len(pcm)))
	}

	data := make([]byte, len(pcm))
	copy(data, pcm)

	return &Buffer{pcm: data, sampleRate: sampleRate}, nil
}

// SampleRate returns the sample rate in Hz
func (b *Buffer) SampleRate() int {
	return b.sampleRate
}

// Size returns the payload size in bytes
func (b *Buffer) Size() int {
	return len(b.pcm)
}

// NumSamples returns the number of PCM samples
func (b *Buffer) NumSamples() int {
	return len(b.pcm) / BytesPerSample
}

// DurationMS returns the buffer duration in whole milliseconds
func (b *Buffer) DurationMS() int64 {
	return int64(b.NumSamples()) * 1000 / int64(b.sampleRate)
}

// Duration returns the buffer duration
func (b *Buffer) Duration() time.Duration {
	return time.Duration(b.NumSamples()) * time.Second / time.Duration(b.sampleRate)
}

// PCM returns the raw samples. The slice is shared and must not be modified.
func (b *Buffer) PCM() []byte {
	return b.pcm
}

// sampleAt converts a millisecond offset into a sample index
func (b *Buffer) sampleAt(ms int64) int {
	return int(ms * int64(b.sampleRate) / 1000)
}

// Segment returns the raw bytes covered by w. A window ending at the buffer's
// duration extends to the last sample so that sub-millisecond tails are kept.
func (b *Buffer) Segment(w Window) ([]byte, error) {
	if w.StartMS < 0 || w.EndMS <= w.StartMS || w.EndMS > b.DurationMS() {
		return nil, fmt.Errorf("invalid window range: start=%dms, end=%dms, available=%dms",
			w.StartMS, w.EndMS, b.DurationMS())
	}

	start := b.sampleAt(w.StartMS) * BytesPerSample
	end := b.sampleAt(w.EndMS) * BytesPerSample
	if w.EndMS == b.DurationMS() {
		end = len(b.pcm)
	}

	return b.pcm[start:end], nil
}

// Samples decodes little-endian PCM-16 bytes into samples
func Samples(pcm []byte) []int16 {
	samples := make([]int16, len(pcm)/BytesPerSample)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(pcm[i*2:]))
	}
	return samples
}
