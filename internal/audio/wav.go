package audio

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/youpy/go-wav"
)

// HeaderSize is the size of the canonical PCM WAV header
const HeaderSize = 44

// WAVInfo describes a decoded WAV payload
type WAVInfo struct {
	SampleRate    uint32  `json:"sample_rate"`
	Channels      uint16  `json:"channels"`
	BitsPerSample uint16  `json:"bits_per_sample"`
	Duration      float64 `json:"duration_seconds"`
	DataSize      uint32  `json:"data_size_bytes"`
	NumSamples    uint32  `json:"num_samples"`
}

// WriteWAV writes a mono PCM-16 WAV file holding pcm to w
func WriteWAV(w io.Writer, pcm []byte, sampleRate int) error {
	if len(pcm) == 0 {
		return fmt.Errorf("cannot encode empty audio samples")
	}

	if sampleRate <= 0 {
		return fmt.Errorf("sample rate must be positive, got %d", sampleRate)
	}

	numSamples := uint32(len(pcm) / BytesPerSample)
	writer := wav.NewWriter(w, numSamples, Channels, uint32(sampleRate), BitsPerSample)

	if _, err := writer.Write(pcm[:numSamples*BytesPerSample]); err != nil {
		return fmt.Errorf("failed to write audio data: %w", err)
	}

	return nil
}

// EncodeWAV wraps mono PCM-16 bytes into a WAV file
func EncodeWAV(pcm []byte, sampleRate int) ([]byte, error) {
	buf := bytes.NewBuffer(make([]byte, 0, HeaderSize+len(pcm)))
	if err := WriteWAV(buf, pcm, sampleRate); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WAV encodes the whole buffer as a WAV file
func (b *Buffer) WAV() ([]byte, error) {
	return EncodeWAV(b.pcm, b.sampleRate)
}

// IsWAV reports whether data starts with a RIFF/WAVE header
func IsWAV(data []byte) bool {
	return len(data) >= 12 && string(data[0:4]) == "RIFF" && string(data[8:12]) == "WAVE"
}

// DecodeWAV unwraps a mono PCM-16 WAV file into raw bytes and its sample rate
func DecodeWAV(data []byte) ([]byte, int, error) {
	if len(data) < HeaderSize {
		return nil, 0, fmt.Errorf("WAV data too short: need at least %d bytes, got %d", HeaderSize, len(data))
	}

	if !IsWAV(data) {
		return nil, 0, fmt.Errorf("invalid WAV file: missing RIFF/WAVE header")
	}

	reader := wav.NewReader(bytes.NewReader(data))

	format, err := reader.Format()
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read WAV format: %w", err)
	}

	if format.AudioFormat != wav.AudioFormatPCM {
		return nil, 0, fmt.Errorf("unsupported audio format: %d (only PCM is supported)", format.AudioFormat)
	}

	if format.BitsPerSample != BitsPerSample {
		return nil, 0, fmt.Errorf("unsupported bit depth: %d (only 16-bit is supported)", format.BitsPerSample)
	}

	if format.NumChannels != Channels {
		return nil, 0, fmt.Errorf("unsupported channel count: %d (only mono is supported)", format.NumChannels)
	}

	var pcm []byte
	for {
		samples, err := reader.ReadSamples()
		if err == io.EOF || (err == nil && len(samples) == 0) {
			break
		}
		if err != nil {
			return nil, 0, fmt.Errorf("failed to read audio samples: %w", err)
		}
		for _, sample := range samples {
			pcm = binary.LittleEndian.AppendUint16(pcm, uint16(int16(sample.Values[0])))
		}
	}

	if len(pcm) == 0 {
		return nil, 0, fmt.Errorf("no audio data found")
	}

	return pcm, int(format.SampleRate), nil
}

// GetWAVInfo extracts metadata from a WAV file
func GetWAVInfo(data []byte) (*WAVInfo, error) {
	pcm, sampleRate, err := DecodeWAV(data)
	if err != nil {
		return nil, err
	}

	numSamples := uint32(len(pcm) / BytesPerSample)

	return &WAVInfo{
		SampleRate:    uint32(sampleRate),
		Channels:      Channels,
		BitsPerSample: BitsPerSample,
		Duration:      float64(numSamples) / float64(sampleRate),
		DataSize:      uint32(len(pcm)),
		NumSamples:    numSamples,
	}, nil
}
