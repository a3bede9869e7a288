package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/liviaellen/voice-sense-hardware/internal/apperr"
	"github.com/liviaellen/voice-sense-hardware/internal/archive"
	"github.com/liviaellen/voice-sense-hardware/internal/audio"
	"github.com/liviaellen/voice-sense-hardware/internal/emotion"
	"github.com/liviaellen/voice-sense-hardware/internal/metrics"
	"github.com/liviaellen/voice-sense-hardware/internal/stats"
	"github.com/liviaellen/voice-sense-hardware/internal/trigger"
)

// ErrNoUser is returned when a memory is requested before any uid was seen
var ErrNoUser = errors.New("No user ID available")

// summarySize is the number of emotions listed in a memory summary
const summarySize = 5

// Analyzer runs emotion analysis
type Analyzer interface {
	Analyze(ctx context.Context, buf *audio.Buffer) (*emotion.Result, error)
	AnalyzeText(ctx context.Context, text string) (*emotion.Result, error)
}

// Notifier delivers notifications and memories
type Notifier interface {
	Notify(ctx context.Context, uid, message string) error
	StoreMemory(ctx context.Context, uid, text string, emotions []emotion.Score) error
}

// SettingsSource provides the current notification settings
type SettingsSource interface {
	Get() trigger.Settings
}

// Options wires a Service. Uploader may be nil when no bucket is configured.
type Options struct {
	Analyzer   Analyzer
	Notifier   Notifier
	Settings   SettingsSource
	Spool      *archive.Spool
	Uploader   archive.Uploader
	Stats      *stats.Recorder
	MaxFileAge time.Duration
	Logger     *slog.Logger
	Metrics    *metrics.Metrics
}

// Service handles uploads and the background tasks that depend on them
type Service struct {
	analyzer   Analyzer
	notifier   Notifier
	settings   SettingsSource
	spool      *archive.Spool
	uploader   archive.Uploader
	stats      *stats.Recorder
	maxFileAge time.Duration
	logger     *slog.Logger
	metrics    *metrics.Metrics
}

// NewService validates opts and creates a Service
func NewService(opts Options) (*Service, error) {
	if opts.Analyzer == nil {
		return nil, fmt.Errorf("analyzer cannot be nil")
	}
	if opts.Notifier == nil {
		return nil, fmt.Errorf("notifier cannot be nil")
	}
	if opts.Settings == nil {
		return nil, fmt.Errorf("settings source cannot be nil")
	}
	if opts.Spool == nil {
		return nil, fmt.Errorf("spool cannot be nil")
	}
	if opts.Stats == nil {
		opts.Stats = stats.NewRecorder()
	}
	if opts.MaxFileAge <= 0 {
		opts.MaxFileAge = 5 * time.Minute
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	return &Service{
		analyzer:   opts.Analyzer,
		notifier:   opts.Notifier,
		settings:   opts.Settings,
		spool:      opts.Spool,
		uploader:   opts.Uploader,
		stats:      opts.Stats,
		maxFileAge: opts.MaxFileAge,
		logger:     opts.Logger.With(slog.String("component", "ingest")),
		metrics:    opts.Metrics,
	}, nil
}

// Stats returns the recorder fed by the service
func (s *Service) Stats() *stats.Recorder {
	return s.stats
}

// AudioRequest is one device upload
type AudioRequest struct {
	UID                string
	SampleRate         int
	Body               []byte
	AnalyzeEmotion     bool
	SaveToGCS          bool
	EnableNotification *bool  // nil uses the stored setting
	EmotionFilters     string // JSON override of the stored thresholds
}

// AudioAnalysis is the analysis result extended with the trigger outcome
type AudioAnalysis struct {
	*emotion.Result
	NotificationSent  *bool           `json:"notification_sent,omitempty"`
	TriggeredEmotions []trigger.Match `json:"triggered_emotions,omitempty"`
	TriggerCheck      string          `json:"trigger_check,omitempty"`
}

// AudioResponse describes a processed upload
type AudioResponse struct {
	Message       string         `json:"message"`
	RequestID     string         `json:"request_id"`
	Filename      string         `json:"filename"`
	UID           string         `json:"uid"`
	SampleRate    int            `json:"sample_rate"`
	DataSizeBytes int            `json:"data_size_bytes"`
	Timestamp     string         `json:"timestamp"`
	LocalFilePath string         `json:"local_file_path"`
	GCSPath       string         `json:"gcs_path,omitempty"`
	HumeAnalysis  *AudioAnalysis `json:"hume_analysis,omitempty"`
}

// ProcessAudio handles one upload. Validation and configuration problems are
// returned as errors; collaborator failures are reported inside the response.
func (s *Service) ProcessAudio(ctx context.Context, req AudioRequest) (*AudioResponse, error) {
	if req.UID == "" {
		return nil, apperr.Validation("uid", errors.New("uid is required"))
	}
	if req.SampleRate <= 0 {
		return nil, apperr.Validation("sample_rate", fmt.Errorf("sample_rate must be a positive integer, got %d", req.SampleRate))
	}

	requestID := uuid.NewString()
	logger := s.logger.With(slog.String("request_id", requestID), slog.String("uid", req.UID))

	s.stats.RecordRequest(req.UID)

	if len(req.Body) == 0 {
		return nil, apperr.Validation("audio", apperr.ErrEmptyAudio)
	}

	pcm, sampleRate := req.Body, req.SampleRate
	if audio.IsWAV(req.Body) {
		decoded, headerRate, err := audio.DecodeWAV(req.Body)
		if err != nil {
			return nil, apperr.Validation("audio", err)
		}
		if headerRate != req.SampleRate {
			logger.Warn("WAV header sample rate differs from query, using header",
				slog.Int("query_sample_rate", req.SampleRate),
				slog.Int("header_sample_rate", headerRate))
		}
		pcm, sampleRate = decoded, headerRate
	}

	buf, err := audio.NewBuffer(pcm, sampleRate)
	if err != nil {
		return nil, err
	}

	s.metrics.RecordAudioReceived(len(req.Body), buf.Duration().Seconds())

	wav, err := buf.WAV()
	if err != nil {
		return nil, fmt.Errorf("failed to encode WAV: %w", err)
	}

	spooled, err := s.spool.Write(req.UID, wav)
	if err != nil {
		return nil, err
	}

	logger.Info("Audio received",
		slog.Int("bytes", len(req.Body)),
		slog.Int("sample_rate", sampleRate),
		slog.Duration("duration", buf.Duration()),
		slog.String("file", spooled.Name))

	resp, err := s.processSpooled(ctx, logger, req, buf, spooled)
	if err != nil {
		if rmErr := s.spool.Remove(spooled.Path); rmErr != nil {
			logger.Warn("Could not remove spooled file", slog.String("error", rmErr.Error()))
		}
		return nil, err
	}

	resp.RequestID = requestID
	return resp, nil
}

func (s *Service) processSpooled(ctx context.Context, logger *slog.Logger, req AudioRequest, buf *audio.Buffer, spooled *archive.SpooledFile) (*AudioResponse, error) {
	resp := &AudioResponse{
		Message:       "Audio processed successfully",
		Filename:      spooled.Name,
		UID:           req.UID,
		SampleRate:    buf.SampleRate(),
		DataSizeBytes: len(req.Body),
		Timestamp:     spooled.Timestamp,
		LocalFilePath: spooled.Path,
	}

	if req.AnalyzeEmotion {
		result, err := s.analyzer.Analyze(ctx, buf)
		if err != nil {
			return nil, err
		}

		logger.Info("Analysis complete",
			slog.Bool("success", result.Success),
			slog.Int("predictions", result.TotalPredictions),
			slog.Bool("chunked", result.Chunked))

		analysis := &AudioAnalysis{Result: result}
		s.stats.RecordAnalysis(result.Success)
		if result.Success {
			s.stats.RecordPredictions(result.Predictions)
			s.checkTriggers(ctx, logger, req, analysis)
		}
		resp.HumeAnalysis = analysis
	}

	if req.SaveToGCS {
		resp.GCSPath = s.upload(ctx, logger, spooled)
	}

	return resp, nil
}

// checkTriggers evaluates the notification rules and sends the alert
func (s *Service) checkTriggers(ctx context.Context, logger *slog.Logger, req AudioRequest, analysis *AudioAnalysis) {
	settings := s.settings.Get()

	shouldNotify := settings.NotificationEnabled
	if req.EnableNotification != nil {
		shouldNotify = *req.EnableNotification
	}
	if !shouldNotify || len(analysis.Predictions) == 0 {
		return
	}

	filters, err := trigger.ParseFilters(req.EmotionFilters, settings.EmotionThresholds)
	if err != nil {
		logger.Warn("Ignoring emotion_filters override", slog.String("error", err.Error()))
	}

	ev := trigger.Evaluate(analysis.Predictions, filters)
	sent := false
	analysis.NotificationSent = &sent

	if !ev.Triggered {
		logger.Info("No emotion triggers matched", slog.Int("filters", len(filters)))
		analysis.TriggerCheck = "No emotions matched threshold"
		return
	}

	message := trigger.Message(ev)
	if err := s.notifier.Notify(ctx, req.UID, message); err != nil {
		logger.Warn("Failed to send notification", slog.String("error", err.Error()))
	} else {
		sent = true
		s.stats.RecordNotification(req.UID, message)
	}

	analysis.TriggeredEmotions = ev.Matches

	logger.Info("Emotion trigger fired",
		slog.Int("matches", ev.TotalTriggers),
		slog.Bool("notification_sent", sent))
}

// upload archives the spooled file, returning "" when skipped or failed
func (s *Service) upload(ctx context.Context, logger *slog.Logger, spooled *archive.SpooledFile) string {
	if s.uploader == nil {
		logger.Warn("GCS_BUCKET_NAME not set, skipping GCS upload")
		return ""
	}

	uri, err := s.uploader.Upload(ctx, spooled.Path, spooled.Name)
	if err != nil {
		logger.Warn("Failed to upload to GCS", slog.String("error", err.Error()))
		return ""
	}

	return uri
}

// TextRequest is one text submission
type TextRequest struct {
	UID      string
	Text     string
	Metadata map[string]any
}

// TextResponse describes an analysed text
type TextResponse struct {
	Message      string          `json:"message"`
	TextLength   int             `json:"text_length"`
	UID          *string         `json:"uid"`
	HumeAnalysis *emotion.Result `json:"hume_analysis"`
	Metadata     map[string]any  `json:"metadata"`
}

// ProcessText runs language analysis over req.Text
func (s *Service) ProcessText(ctx context.Context, req TextRequest) (*TextResponse, error) {
	s.metrics.RecordTextReceived()

	result, err := s.analyzer.AnalyzeText(ctx, req.Text)
	if err != nil {
		return nil, err
	}

	resp := &TextResponse{
		Message:      "Text emotion analysis complete",
		TextLength:   utf8.RuneCountInString(req.Text),
		HumeAnalysis: result,
		Metadata:     req.Metadata,
	}
	if req.UID != "" {
		uid := req.UID
		resp.UID = &uid
	}
	if resp.Metadata == nil {
		resp.Metadata = map[string]any{}
	}

	s.logger.Info("Text analysis complete",
		slog.String("uid", req.UID),
		slog.Int("text_length", resp.TextLength),
		slog.Bool("success", result.Success))

	return resp, nil
}

// SaveMemory stores the current emotion summary as a memory for uid, or for the
// last active user when uid is empty.
func (s *Service) SaveMemory(ctx context.Context, uid string) (*stats.Summary, error) {
	target := uid
	if target == "" {
		target = s.stats.LastUID()
	}
	if target == "" {
		return nil, ErrNoUser
	}

	summary, err := s.stats.Summary(summarySize)
	if err != nil {
		return nil, err
	}

	if err := s.notifier.StoreMemory(ctx, target, summary.Text, summary.Scores()); err != nil {
		return nil, err
	}

	return summary, nil
}

// MemoryJob is the scheduled form of SaveMemory for the last active user
func (s *Service) MemoryJob(ctx context.Context) error {
	_, err := s.SaveMemory(ctx, "")
	return err
}

// CleanupJob deletes spooled files older than the configured age
func (s *Service) CleanupJob(ctx context.Context) error {
	deleted, err := s.spool.Cleanup(s.maxFileAge)
	s.metrics.RecordSpoolFilesDeleted(deleted)
	if err != nil {
		return err
	}

	if deleted > 0 {
		s.logger.Info("Cleanup complete", slog.Int("deleted_files", deleted))
	}
	return nil
}
