package audio

import (
	"bytes"
	"encoding/binary"
	"math"
	"testing"
)

// sinePCM generates a 440Hz tone as PCM-16 bytes
func sinePCM(sampleRate int, seconds float64) []byte {
	numSamples := int(float64(sampleRate) * seconds)
	pcm := make([]byte, 0, numSamples*BytesPerSample)

	for i := 0; i < numSamples; i++ {
		t := float64(i) / float64(sampleRate)
		sample := int16(16383.0 * math.Sin(2*math.Pi*440*t))
		pcm = binary.LittleEndian.AppendUint16(pcm, uint16(sample))
	}

	return pcm
}

func TestEncodeWAV(t *testing.T) {
	sampleRate := 16000
	pcm := sinePCM(sampleRate, 0.1)

	wavData, err := EncodeWAV(pcm, sampleRate)
	if err != nil {
		t.Fatalf("EncodeWAV failed: %v", err)
	}

	if len(wavData) != HeaderSize+len(pcm) {
		t.Errorf("Expected WAV size %d, got %d", HeaderSize+len(pcm), len(wavData))
	}

	if !IsWAV(wavData) {
		t.Error("Encoded data is not recognised as WAV")
	}

	if string(wavData[36:40]) != "data" {
		t.Errorf("Expected data chunk at offset 36, got %q", wavData[36:40])
	}

	if got := binary.LittleEndian.Uint32(wavData[24:28]); got != uint32(sampleRate) {
		t.Errorf("Expected sample rate %d in header, got %d", sampleRate, got)
	}

	if !bytes.Equal(wavData[HeaderSize:], pcm) {
		t.Error("PCM payload was altered by encoding")
	}
}

func TestDecodeWAVRoundTrip(t *testing.T) {
	pcm := sinePCM(8000, 0.25)

	wavData, err := EncodeWAV(pcm, 8000)
	if err != nil {
		t.Fatalf("EncodeWAV failed: %v", err)
	}

	decoded, sampleRate, err := DecodeWAV(wavData)
	if err != nil {
		t.Fatalf("DecodeWAV failed: %v", err)
	}

	if sampleRate != 8000 {
		t.Errorf("Expected sample rate 8000, got %d", sampleRate)
	}

	if !bytes.Equal(decoded, pcm) {
		t.Error("Decoded PCM differs from the original")
	}

	info, err := GetWAVInfo(wavData)
	if err != nil {
		t.Fatalf("GetWAVInfo failed: %v", err)
	}

	if math.Abs(info.Duration-0.25) > 0.001 {
		t.Errorf("Expected duration 0.25s, got %.3f", info.Duration)
	}
}

func TestEncodeWAVErrors(t *testing.T) {
	if _, err := EncodeWAV(nil, 16000); err == nil {
		t.Error("Expected error for empty PCM")
	}

	if _, err := EncodeWAV([]byte{0, 0}, 0); err == nil {
		t.Error("Expected error for zero sample rate")
	}
}

func TestDecodeWAVErrors(t *testing.T) {
	if _, _, err := DecodeWAV([]byte("RIFF")); err == nil {
		t.Error("Expected error for truncated WAV")
	}

	notWAV := make([]byte, 64)
	if _, _, err := DecodeWAV(notWAV); err == nil {
		t.Error("Expected error for missing RIFF header")
	}
}

func TestBufferWAV(t *testing.T) {
	buffer, err := NewBuffer(sinePCM(16000, 0.5), 16000)
	if err != nil {
		t.Fatalf("NewBuffer failed: %v", err)
	}

	data, err := buffer.WAV()
	if err != nil {
		t.Fatalf("WAV failed: %v", err)
	}

	if len(data) != HeaderSize+buffer.Size() {
		t.Errorf("Expected %d bytes, got %d", HeaderSize+buffer.Size(), len(data))
	}
}
