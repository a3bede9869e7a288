package analysis

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/liviaellen/voice-sense-hardware/internal/apperr"
	"github.com/liviaellen/voice-sense-hardware/internal/audio"
	"github.com/liviaellen/voice-sense-hardware/internal/emotion"
	"github.com/liviaellen/voice-sense-hardware/internal/inference"
	"github.com/liviaellen/voice-sense-hardware/internal/metrics"
	"github.com/liviaellen/voice-sense-hardware/internal/vad"
)

// ErrAllWindowsFailed is reported in the result when no window produced predictions
const ErrAllWindowsFailed = "All chunks failed to analyze"

var (
	// ErrNoSpeech marks a prosody answer that carried no predictions
	ErrNoSpeech = errors.New("No speech detected in audio")

	// ErrGated marks a window rejected locally by the speech gate
	ErrGated = errors.New("no speech above gate threshold")
)

// Inferer is the inference collaborator used by the windower
type Inferer interface {
	InferAudio(ctx context.Context, wav []byte) (*inference.Response, error)
	InferText(ctx context.Context, text string) (*inference.Response, error)
}

// Config contains windowing parameters
type Config struct {
	LimitMS              int64
	ChunkMS              int64
	MaxConcurrentWindows int
	MaxTextChars         int
}

// Windower submits audio and text to the inference collaborator
type Windower struct {
	config  Config
	client  Inferer
	gate    *vad.Processor
	logger  *slog.Logger
	metrics *metrics.Metrics

	wavPool sync.Pool
}

// NewWindower creates a windower. client may be nil when the inference API is
// not configured, in which case every analysis fails with a configuration error.
// gate may be nil to submit every window.
func NewWindower(config Config, client Inferer, gate *vad.Processor, logger *slog.Logger, m *metrics.Metrics) *Windower {
	if config.LimitMS <= 0 {
		config.LimitMS = 5000
	}
	if config.ChunkMS <= 0 || config.ChunkMS > config.LimitMS {
		config.ChunkMS = 4500
	}
	if config.MaxConcurrentWindows <= 0 {
		config.MaxConcurrentWindows = 1
	}
	if config.MaxTextChars <= 0 {
		config.MaxTextChars = 10000
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Windower{
		config:  config,
		client:  client,
		gate:    gate,
		logger:  logger.With(slog.String("component", "windower")),
		metrics: m,
		wavPool: sync.Pool{
			New: func() any { return new(bytes.Buffer) },
		},
	}
}

// Analyze runs prosody inference over buf
func (w *Windower) Analyze(ctx context.Context, buf *audio.Buffer) (*emotion.Result, error) {
	if buf == nil || buf.DurationMS() == 0 {
		return nil, apperr.Validation("audio", apperr.ErrEmptyAudio)
	}

	if w.client == nil {
		return nil, apperr.Configuration("HUME_API_KEY", apperr.ErrNotConfigured)
	}

	// Dispatched calls run to completion or their own timeout, even if the caller goes away.
	ctx = context.WithoutCancel(ctx)

	durationMS := buf.DurationMS()
	var result *emotion.Result
	if durationMS <= w.config.LimitMS {
		w.logger.Debug("Audio within limit, analyzing directly",
			slog.Int64("duration_ms", durationMS))
		result = w.analyzeDirect(ctx, buf)
	} else {
		result = w.analyzeChunked(ctx, buf)
	}

	w.metrics.RecordAnalysis(string(emotion.ModeProsody), result.Success)
	return result, nil
}

func (w *Windower) analyzeDirect(ctx context.Context, buf *audio.Buffer) *emotion.Result {
	predictions, warning, err := w.submit(ctx, buf.PCM(), buf.SampleRate())
	if err != nil {
		result := emotion.Failed(err.Error())
		result.Warning = warning
		return result
	}

	result := emotion.Succeeded(predictions)
	result.Warning = warning
	return result
}

// windowOutcome is written by exactly one window worker
type windowOutcome struct {
	predictions []emotion.Prediction
	err         error
}

func (w *Windower) analyzeChunked(ctx context.Context, buf *audio.Buffer) *emotion.Result {
	durationMS := buf.DurationMS()
	windows := audio.Partition(durationMS, w.config.ChunkMS)

	w.logger.Info("Audio exceeds limit, chunking",
		slog.Int64("duration_ms", durationMS),
		slog.Int64("chunk_ms", w.config.ChunkMS),
		slog.Int("windows", len(windows)))

	outcomes := make([]windowOutcome, len(windows))

	if w.config.MaxConcurrentWindows == 1 {
		for i, win := range windows {
			outcomes[i] = w.analyzeWindow(ctx, buf, win)
		}
	} else {
		semaphore := make(chan struct{}, w.config.MaxConcurrentWindows)
		var wg sync.WaitGroup
		for i, win := range windows {
			wg.Add(1)
			semaphore <- struct{}{}
			go func(i int, win audio.Window) {
				defer wg.Done()
				defer func() { <-semaphore }()
				outcomes[i] = w.analyzeWindow(ctx, buf, win)
			}(i, win)
		}
		wg.Wait()
	}

	merged := make([]emotion.Prediction, 0)
	for i, outcome := range outcomes {
		w.metrics.RecordWindow(outcome.err == nil)
		if outcome.err != nil {
			w.logger.Warn("Window analysis failed",
				slog.Int("window", i),
				slog.Int("windows", len(windows)),
				slog.Int64("start_ms", windows[i].StartMS),
				slog.Int64("end_ms", windows[i].EndMS),
				slog.String("error", outcome.err.Error()))
			continue
		}
		merged = append(merged, outcome.predictions...)
	}

	var result *emotion.Result
	if len(merged) > 0 {
		result = emotion.Succeeded(merged)
	} else {
		result = emotion.Failed(ErrAllWindowsFailed)
	}
	result.TotalDurationSeconds = float64(durationMS) / 1000
	result.WindowCount = len(windows)
	result.Chunked = true

	return result
}

// analyzeWindow submits one window and moves its predictions into buffer time
func (w *Windower) analyzeWindow(ctx context.Context, buf *audio.Buffer, win audio.Window) windowOutcome {
	segment, err := buf.Segment(win)
	if err != nil {
		return windowOutcome{err: err}
	}

	if w.gate != nil {
		if res := w.gate.Process(audio.Samples(segment)); !res.HasVoice {
			w.metrics.RecordWindowGated()
			return windowOutcome{err: fmt.Errorf("%w (peak probability %.3f)", ErrGated, res.Probability)}
		}
	}

	predictions, _, err := w.submit(ctx, segment, buf.SampleRate())
	if err != nil {
		return windowOutcome{err: err}
	}

	offset := win.OffsetSeconds()
	for i := range predictions {
		predictions[i].Shift(offset)
		index := win.Index
		predictions[i].WindowIndex = &index
	}

	return windowOutcome{predictions: predictions}
}

// submit encodes pcm as WAV into a pooled buffer and performs one inference call.
// The buffer is released when the call returns, whatever the outcome.
func (w *Windower) submit(ctx context.Context, pcm []byte, sampleRate int) ([]emotion.Prediction, string, error) {
	wav := w.wavPool.Get().(*bytes.Buffer)
	wav.Reset()
	defer w.wavPool.Put(wav)

	if err := audio.WriteWAV(wav, pcm, sampleRate); err != nil {
		return nil, "", fmt.Errorf("failed to encode WAV: %w", err)
	}

	start := time.Now()
	resp, err := w.client.InferAudio(ctx, wav.Bytes())
	if err != nil {
		return nil, "", err
	}

	predictions, warning, err := interpret(resp, emotion.ModeProsody)
	w.logger.Debug("Inference answered",
		slog.Int("wav_bytes", wav.Len()),
		slog.Int("predictions", len(predictions)),
		slog.Duration("elapsed", time.Since(start)))

	return predictions, warning, err
}

// interpret maps one inference response to normalized predictions
func interpret(resp *inference.Response, mode emotion.Mode) ([]emotion.Prediction, string, error) {
	if resp == nil {
		return nil, "", fmt.Errorf("empty response from Hume API")
	}

	if err := resp.Err(); err != nil {
		return nil, "", err
	}

	model := resp.Model(mode)
	if model == nil {
		return nil, "", fmt.Errorf("No %s predictions returned from Hume API", mode)
	}

	if len(model.Predictions) == 0 && mode == emotion.ModeProsody {
		if model.Warning != "" {
			return nil, model.Warning, fmt.Errorf("%w (Hume: %s)", ErrNoSpeech, model.Warning)
		}
		return nil, "", ErrNoSpeech
	}

	predictions := make([]emotion.Prediction, len(model.Predictions))
	copy(predictions, model.Predictions)
	for i := range predictions {
		predictions[i].Normalize()
	}

	return predictions, model.Warning, nil
}

// AnalyzeText runs language inference over text
func (w *Windower) AnalyzeText(ctx context.Context, text string) (*emotion.Result, error) {
	if text == "" {
		return nil, apperr.Validation("text", apperr.ErrMissingText)
	}

	if n := utf8.RuneCountInString(text); n > w.config.MaxTextChars {
		return nil, apperr.Validation("text",
			fmt.Errorf("%w (%d characters), maximum is %d characters", apperr.ErrTextTooLong, n, w.config.MaxTextChars))
	}

	if w.client == nil {
		return nil, apperr.Configuration("HUME_API_KEY", apperr.ErrNotConfigured)
	}

	var result *emotion.Result
	resp, err := w.client.InferText(ctx, text)
	if err == nil {
		var predictions []emotion.Prediction
		var warning string
		predictions, warning, err = interpret(resp, emotion.ModeLanguage)
		if err == nil {
			result = emotion.Succeeded(predictions)
			result.Warning = warning
			result.AnalyzedText = text
		}
	}
	if err != nil {
		w.logger.Warn("Text analysis failed",
			slog.Int("text_length", len(text)),
			slog.String("error", err.Error()))
		result = emotion.Failed(err.Error())
	}

	w.metrics.RecordAnalysis(string(emotion.ModeLanguage), result.Success)
	return result, nil
}
