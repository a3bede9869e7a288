package vad

import (
	"fmt"
	"math"
	"sync"
	"time"
)

// fullScaleRMS is the RMS energy treated as a certain voice frame
const fullScaleRMS = 10000.0

// Processor scores PCM-16 audio for voice activity frame by frame
type Processor struct {
	threshold float32
	frameSize int // samples per frame

	// Statistics
	totalWindows  uint64
	voiceWindows  uint64
	lastProcessed time.Time

	mu sync.RWMutex
}

// VADResult represents the result of voice activity detection over one window
type VADResult struct {
	Probability    float32       `json:"probability"`  // Highest frame probability (0.0 - 1.0)
	HasVoice       bool          `json:"has_voice"`    // Whether any frame reached the threshold
	VoiceFrames    int           `json:"voice_frames"` // Frames at or above the threshold
	TotalFrames    int           `json:"total_frames"`
	ProcessingTime time.Duration `json:"processing_time"`
}

// ProcessorStats represents VAD processor statistics
type ProcessorStats struct {
	TotalWindows    uint64    `json:"total_windows"`
	VoiceWindows    uint64    `json:"voice_windows"`
	VoicePercentage float64   `json:"voice_percentage"`
	LastProcessed   time.Time `json:"last_processed"`
	Threshold       float32   `json:"threshold"`
}

// NewProcessor creates a new VAD processor instance
func NewProcessor(threshold float32, frameSize int) (*Processor, error) {
	if threshold < 0 || threshold > 1 {
		return nil, fmt.Errorf("threshold must be between 0 and 1, got %f", threshold)
	}

	if frameSize <= 0 {
		return nil, fmt.Errorf("frame size must be positive, got %d", frameSize)
	}

	return &Processor{
		threshold: threshold,
		frameSize: frameSize,
	}, nil
}

// Process scores a whole window of samples. A trailing partial frame is scored too.
func (p *Processor) Process(samples []int16) *VADResult {
	startTime := time.Now()

	result := &VADResult{}
	for start := 0; start < len(samples); start += p.frameSize {
		end := start + p.frameSize
		if end > len(samples) {
			end = len(samples)
		}

		probability := frameProbability(samples[start:end])
		if probability > result.Probability {
			result.Probability = probability
		}
		if probability >= p.threshold {
			result.VoiceFrames++
		}
		result.TotalFrames++
	}

	result.HasVoice = result.VoiceFrames > 0
	result.ProcessingTime = time.Since(startTime)

	p.mu.Lock()
	p.totalWindows++
	if result.HasVoice {
		p.voiceWindows++
	}
	p.lastProcessed = time.Now()
	p.mu.Unlock()

	return result
}

// frameProbability maps the RMS energy of a frame onto [0,1]
func frameProbability(samples []int16) float32 {
	if len(samples) == 0 {
		return 0
	}

	var energy float64
	for _, sample := range samples {
		energy += float64(sample) * float64(sample)
	}
	energy = math.Sqrt(energy / float64(len(samples)))

	normalized := energy / fullScaleRMS
	if normalized > 1.0 {
		normalized = 1.0
	}

	return float32(normalized)
}

// GetStats returns current processor statistics
func (p *Processor) GetStats() ProcessorStats {
	p.mu.RLock()
	defer p.mu.RUnlock()

	voicePercentage := float64(0)
	if p.totalWindows > 0 {
		voicePercentage = float64(p.voiceWindows) / float64(p.totalWindows) * 100
	}

	return ProcessorStats{
		TotalWindows:    p.totalWindows,
		VoiceWindows:    p.voiceWindows,
		VoicePercentage: voicePercentage,
		LastProcessed:   p.lastProcessed,
		Threshold:       p.threshold,
	}
}

// GetThreshold returns the voice detection threshold
func (p *Processor) GetThreshold() float32 {
	return p.threshold
}
