package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/liviaellen/voice-sense-hardware/internal/apperr"
	"github.com/liviaellen/voice-sense-hardware/internal/archive"
	"github.com/liviaellen/voice-sense-hardware/internal/audio"
	"github.com/liviaellen/voice-sense-hardware/internal/emotion"
	"github.com/liviaellen/voice-sense-hardware/internal/stats"
	"github.com/liviaellen/voice-sense-hardware/internal/trigger"
)

type fakeAnalyzer struct {
	result  *emotion.Result
	err     error
	buffers []*audio.Buffer
	texts   []string
}

func (f *fakeAnalyzer) Analyze(ctx context.Context, buf *audio.Buffer) (*emotion.Result, error) {
	f.buffers = append(f.buffers, buf)
	return f.result, f.err
}

func (f *fakeAnalyzer) AnalyzeText(ctx context.Context, text string) (*emotion.Result, error) {
	f.texts = append(f.texts, text)
	return f.result, f.err
}

type notification struct {
	uid     string
	message string
}

type fakeNotifier struct {
	mu            sync.Mutex
	notifyErr     error
	memoryErr     error
	notifications []notification
	memories      []string
	memoryUIDs    []string
}

func (f *fakeNotifier) Notify(ctx context.Context, uid, message string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notifications = append(f.notifications, notification{uid, message})
	return f.notifyErr
}

func (f *fakeNotifier) StoreMemory(ctx context.Context, uid, text string, emotions []emotion.Score) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.memories = append(f.memories, text)
	f.memoryUIDs = append(f.memoryUIDs, uid)
	return f.memoryErr
}

type fixedSettings trigger.Settings

func (f fixedSettings) Get() trigger.Settings { return trigger.Settings(f) }

type fakeUploader struct {
	err     error
	objects []string
}

func (f *fakeUploader) Upload(ctx context.Context, localPath, objectName string) (string, error) {
	if _, err := os.Stat(localPath); err != nil {
		return "", err
	}
	f.objects = append(f.objects, objectName)
	if f.err != nil {
		return "", f.err
	}
	return "gs://bucket/" + objectName, nil
}

func successResult() *emotion.Result {
	p := emotion.Prediction{
		Time: &emotion.TimeRange{Begin: 0.1, End: 0.2},
		Emotions: []emotion.Score{
			{Name: "Joy", Score: 0.7},
			{Name: "Anger", Score: 0.1},
			{Name: "Calmness", Score: 0.05},
			{Name: "Fear", Score: 0.01},
		},
	}
	p.Normalize()
	return emotion.Succeeded([]emotion.Prediction{p})
}

type fixture struct {
	service  *Service
	analyzer *fakeAnalyzer
	notifier *fakeNotifier
	uploader *fakeUploader
	stats    *stats.Recorder
	dir      string
}

func newFixture(t *testing.T, settings trigger.Settings, withUploader bool) *fixture {
	t.Helper()

	dir := t.TempDir()
	spool, err := archive.NewSpool(dir, nil)
	if err != nil {
		t.Fatalf("NewSpool failed: %v", err)
	}

	f := &fixture{
		analyzer: &fakeAnalyzer{result: successResult()},
		notifier: &fakeNotifier{},
		stats:    stats.NewRecorder(),
		dir:      dir,
	}

	opts := Options{
		Analyzer: f.analyzer,
		Notifier: f.notifier,
		Settings: fixedSettings(settings),
		Spool:    spool,
		Stats:    f.stats,
	}
	if withUploader {
		f.uploader = &fakeUploader{}
		opts.Uploader = f.uploader
	}

	f.service, err = NewService(opts)
	if err != nil {
		t.Fatalf("NewService failed: %v", err)
	}

	return f
}

func pcm(ms int) []byte {
	return make([]byte, ms*16*2)
}

func boolPtr(b bool) *bool { return &b }

func spooledFiles(t *testing.T, dir string) []string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join(dir, "*.wav"))
	if err != nil {
		t.Fatal(err)
	}
	return matches
}

func TestProcessAudio(t *testing.T) {
	f := newFixture(t, trigger.Settings{NotificationEnabled: false}, true)

	body := pcm(1000)
	resp, err := f.service.ProcessAudio(context.Background(), AudioRequest{
		UID: "user1", SampleRate: 16000, Body: body,
		AnalyzeEmotion: true, SaveToGCS: true,
	})
	if err != nil {
		t.Fatalf("ProcessAudio failed: %v", err)
	}

	if resp.Message != "Audio processed successfully" || resp.UID != "user1" || resp.SampleRate != 16000 {
		t.Errorf("Unexpected response %+v", resp)
	}
	if resp.DataSizeBytes != len(body) || resp.RequestID == "" {
		t.Errorf("Unexpected size or request id: %+v", resp)
	}
	if !strings.HasPrefix(resp.Filename, "user1_") || !strings.HasSuffix(resp.Filename, ".wav") {
		t.Errorf("Unexpected filename %s", resp.Filename)
	}
	if resp.GCSPath != "gs://bucket/"+resp.Filename {
		t.Errorf("Unexpected gcs path %s", resp.GCSPath)
	}

	spooled, err := os.ReadFile(resp.LocalFilePath)
	if err != nil {
		t.Fatalf("Spooled file missing: %v", err)
	}
	pcmOut, rate, err := audio.DecodeWAV(spooled)
	if err != nil || rate != 16000 || len(pcmOut) != len(body) {
		t.Errorf("Spooled file is not the wrapped payload (rate=%d, len=%d, err=%v)", rate, len(pcmOut), err)
	}

	if len(f.analyzer.buffers) != 1 || f.analyzer.buffers[0].DurationMS() != 1000 {
		t.Errorf("Expected one 1000ms analysis")
	}
	if resp.HumeAnalysis == nil || !resp.HumeAnalysis.Success || resp.HumeAnalysis.NotificationSent != nil {
		t.Errorf("Unexpected analysis %+v", resp.HumeAnalysis)
	}

	snap := f.stats.Snapshot()
	if snap.TotalRequests != 1 || snap.SuccessfulAnalyses != 1 || *snap.LastUID != "user1" {
		t.Errorf("Unexpected stats %+v", snap)
	}
	if len(snap.RecentEmotions) != 3 || snap.RecentEmotions[0] != "Joy (0.70)" {
		t.Errorf("Unexpected recent emotions %v", snap.RecentEmotions)
	}
}

func TestProcessAudioJSONShape(t *testing.T) {
	f := newFixture(t, trigger.Settings{NotificationEnabled: true}, false)

	resp, err := f.service.ProcessAudio(context.Background(), AudioRequest{
		UID: "u", SampleRate: 16000, Body: pcm(100), AnalyzeEmotion: true,
	})
	if err != nil {
		t.Fatalf("ProcessAudio failed: %v", err)
	}

	data, err := json.Marshal(resp)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	var decoded map[string]any
	json.Unmarshal(data, &decoded)
	if _, ok := decoded["gcs_path"]; ok {
		t.Error("gcs_path must be absent without upload")
	}
	analysis, ok := decoded["hume_analysis"].(map[string]any)
	if !ok {
		t.Fatalf("hume_analysis missing in %s", data)
	}
	for _, key := range []string{"success", "predictions", "total_predictions", "notification_sent", "triggered_emotions"} {
		if _, ok := analysis[key]; !ok {
			t.Errorf("hume_analysis missing %q in %s", key, data)
		}
	}
}

func TestProcessAudioValidation(t *testing.T) {
	tests := []struct {
		name    string
		req     AudioRequest
		counted bool
	}{
		{"missing uid", AudioRequest{SampleRate: 16000, Body: pcm(10)}, false},
		{"missing sample rate", AudioRequest{UID: "u", Body: pcm(10)}, false},
		{"empty body", AudioRequest{UID: "u", SampleRate: 16000}, true},
		{"odd body", AudioRequest{UID: "u", SampleRate: 16000, Body: []byte{1, 2, 3}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, trigger.DefaultSettings(), false)

			_, err := f.service.ProcessAudio(context.Background(), tt.req)
			if !apperr.IsValidation(err) {
				t.Fatalf("Expected validation error, got %v", err)
			}
			if got := f.stats.Snapshot().TotalRequests == 1; got != tt.counted {
				t.Errorf("Expected counted=%v, got %v", tt.counted, got)
			}
			if files := spooledFiles(t, f.dir); len(files) != 0 {
				t.Errorf("Rejected upload left files %v", files)
			}
		})
	}
}

func TestProcessAudioUnwrapsWAV(t *testing.T) {
	f := newFixture(t, trigger.DefaultSettings(), false)

	wav, err := audio.EncodeWAV(pcm(500), 8000)
	if err != nil {
		t.Fatalf("EncodeWAV failed: %v", err)
	}

	resp, err := f.service.ProcessAudio(context.Background(), AudioRequest{
		UID: "u", SampleRate: 16000, Body: wav, AnalyzeEmotion: true,
	})
	if err != nil {
		t.Fatalf("ProcessAudio failed: %v", err)
	}

	if resp.SampleRate != 8000 {
		t.Errorf("Expected header sample rate 8000, got %d", resp.SampleRate)
	}
	if got := f.analyzer.buffers[0].Size(); got != len(pcm(500)) {
		t.Errorf("Expected header stripped before analysis, got %d bytes", got)
	}
}

func TestProcessAudioConfigurationErrorRemovesFile(t *testing.T) {
	f := newFixture(t, trigger.DefaultSettings(), false)
	f.analyzer.err = apperr.Configuration("HUME_API_KEY", apperr.ErrNotConfigured)

	_, err := f.service.ProcessAudio(context.Background(), AudioRequest{
		UID: "u", SampleRate: 16000, Body: pcm(100), AnalyzeEmotion: true,
	})
	if !apperr.IsConfiguration(err) {
		t.Fatalf("Expected configuration error, got %v", err)
	}

	if files := spooledFiles(t, f.dir); len(files) != 0 {
		t.Errorf("Expected spooled file removed, found %v", files)
	}
}

func TestProcessAudioFailedAnalysis(t *testing.T) {
	f := newFixture(t, trigger.DefaultSettings(), false)
	f.analyzer.result = emotion.Failed("All chunks failed to analyze")

	resp, err := f.service.ProcessAudio(context.Background(), AudioRequest{
		UID: "u", SampleRate: 16000, Body: pcm(100), AnalyzeEmotion: true,
	})
	if err != nil {
		t.Fatalf("ProcessAudio failed: %v", err)
	}

	if resp.HumeAnalysis.Success || resp.HumeAnalysis.NotificationSent != nil {
		t.Errorf("Failed analysis must not reach triggers: %+v", resp.HumeAnalysis)
	}
	if len(f.notifier.notifications) != 0 {
		t.Error("No notification expected")
	}
	if snap := f.stats.Snapshot(); snap.FailedAnalyses != 1 || len(snap.EmotionCounts) != 0 {
		t.Errorf("Unexpected stats %+v", snap)
	}
}

func TestProcessAudioSkipsAnalysis(t *testing.T) {
	f := newFixture(t, trigger.DefaultSettings(), true)

	resp, err := f.service.ProcessAudio(context.Background(), AudioRequest{
		UID: "u", SampleRate: 16000, Body: pcm(100), AnalyzeEmotion: false, SaveToGCS: false,
	})
	if err != nil {
		t.Fatalf("ProcessAudio failed: %v", err)
	}

	if resp.HumeAnalysis != nil || len(f.analyzer.buffers) != 0 {
		t.Error("Analysis should be skipped")
	}
	if resp.GCSPath != "" || len(f.uploader.objects) != 0 {
		t.Error("Upload should be skipped")
	}
}

func TestProcessAudioUploadFailureIsNotFatal(t *testing.T) {
	f := newFixture(t, trigger.DefaultSettings(), true)
	f.uploader.err = errors.New("permission denied")

	resp, err := f.service.ProcessAudio(context.Background(), AudioRequest{
		UID: "u", SampleRate: 16000, Body: pcm(100), SaveToGCS: true,
	})
	if err != nil {
		t.Fatalf("Upload failure must not fail the request: %v", err)
	}
	if resp.GCSPath != "" {
		t.Errorf("Expected empty gcs path, got %s", resp.GCSPath)
	}
}

func TestProcessAudioNotifications(t *testing.T) {
	tests := []struct {
		name      string
		settings  trigger.Settings
		enable    *bool
		filters   string
		notifyErr error
		wantSent  *bool
		wantMsg   string
		wantCheck string
	}{
		{
			name:     "stored setting enables all emotions",
			settings: trigger.Settings{NotificationEnabled: true},
			wantSent: boolPtr(true),
			wantMsg:  "🎭 Emotion Alert: Joy, Anger, Calmness",
		},
		{
			name:     "stored setting disabled",
			settings: trigger.Settings{NotificationEnabled: false},
		},
		{
			name:     "query override enables",
			settings: trigger.Settings{NotificationEnabled: false},
			enable:   boolPtr(true),
			filters:  `{"Fear":0.9}`,
			wantSent: boolPtr(true),
			wantMsg:  "🎭 Emotion Alert: Fear",
		},
		{
			name:     "query override disables",
			settings: trigger.Settings{NotificationEnabled: true},
			enable:   boolPtr(false),
		},
		{
			name:      "no match",
			settings:  trigger.Settings{NotificationEnabled: true, EmotionThresholds: map[string]float64{"Disgust": 0.5}},
			wantSent:  boolPtr(false),
			wantCheck: "No emotions matched threshold",
		},
		{
			name:     "invalid filters fall back to stored thresholds",
			settings: trigger.Settings{NotificationEnabled: true, EmotionThresholds: map[string]float64{"Anger": 0.9}},
			filters:  `{bad json`,
			wantSent: boolPtr(true),
			wantMsg:  "🎭 Emotion Alert: Anger",
		},
		{
			name:      "delivery failure",
			settings:  trigger.Settings{NotificationEnabled: true},
			notifyErr: errors.New("503"),
			wantSent:  boolPtr(false),
			wantMsg:   "🎭 Emotion Alert: Joy, Anger, Calmness",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, tt.settings, false)
			f.notifier.notifyErr = tt.notifyErr

			resp, err := f.service.ProcessAudio(context.Background(), AudioRequest{
				UID: "u", SampleRate: 16000, Body: pcm(100), AnalyzeEmotion: true,
				EnableNotification: tt.enable, EmotionFilters: tt.filters,
			})
			if err != nil {
				t.Fatalf("ProcessAudio failed: %v", err)
			}

			analysis := resp.HumeAnalysis
			if (analysis.NotificationSent == nil) != (tt.wantSent == nil) ||
				(tt.wantSent != nil && *analysis.NotificationSent != *tt.wantSent) {
				t.Errorf("Unexpected notification_sent %v", analysis.NotificationSent)
			}
			if analysis.TriggerCheck != tt.wantCheck {
				t.Errorf("Expected trigger check %q, got %q", tt.wantCheck, analysis.TriggerCheck)
			}

			if tt.wantMsg == "" {
				if len(f.notifier.notifications) != 0 {
					t.Errorf("Unexpected notifications %v", f.notifier.notifications)
				}
				return
			}
			if len(f.notifier.notifications) != 1 || f.notifier.notifications[0].message != tt.wantMsg {
				t.Errorf("Expected %q, got %v", tt.wantMsg, f.notifier.notifications)
			}
			if len(analysis.TriggeredEmotions) == 0 {
				t.Error("Expected triggered emotions in response")
			}

			wantRecorded := 1
			if tt.notifyErr != nil {
				wantRecorded = 0
			}
			if recorded := len(f.stats.Snapshot().RecentNotifications); recorded != wantRecorded {
				t.Errorf("Expected %d recorded notifications, got %d", wantRecorded, recorded)
			}
		})
	}
}

func TestProcessText(t *testing.T) {
	f := newFixture(t, trigger.DefaultSettings(), false)

	resp, err := f.service.ProcessText(context.Background(), TextRequest{Text: "héllo"})
	if err != nil {
		t.Fatalf("ProcessText failed: %v", err)
	}

	if resp.Message != "Text emotion analysis complete" || resp.TextLength != 5 {
		t.Errorf("Unexpected response %+v", resp)
	}
	if resp.UID != nil {
		t.Errorf("Expected null uid, got %v", *resp.UID)
	}
	if resp.Metadata == nil {
		t.Error("Expected empty metadata object")
	}
	if f.stats.Snapshot().TotalRequests != 0 {
		t.Error("Text requests must not count as audio requests")
	}

	f.analyzer.err = apperr.Validation("text", apperr.ErrMissingText)
	if _, err := f.service.ProcessText(context.Background(), TextRequest{UID: "u"}); !apperr.IsValidation(err) {
		t.Errorf("Expected validation error, got %v", err)
	}
}

func TestSaveMemory(t *testing.T) {
	f := newFixture(t, trigger.Settings{}, false)

	if _, err := f.service.SaveMemory(context.Background(), ""); !errors.Is(err, ErrNoUser) {
		t.Fatalf("Expected ErrNoUser, got %v", err)
	}

	f.stats.RecordRequest("last-user")
	if _, err := f.service.SaveMemory(context.Background(), ""); !errors.Is(err, stats.ErrNoEmotionData) {
		t.Fatalf("Expected ErrNoEmotionData, got %v", err)
	}

	f.stats.RecordEmotions([]emotion.Score{{Name: "Joy", Score: 0.9}, {Name: "Anger", Score: 0.1}})

	summary, err := f.service.SaveMemory(context.Background(), "")
	if err != nil {
		t.Fatalf("SaveMemory failed: %v", err)
	}
	if f.notifier.memoryUIDs[0] != "last-user" || f.notifier.memories[0] != summary.Text {
		t.Errorf("Unexpected memory call %v %v", f.notifier.memoryUIDs, f.notifier.memories)
	}

	if _, err := f.service.SaveMemory(context.Background(), "explicit"); err != nil {
		t.Fatalf("SaveMemory failed: %v", err)
	}
	if f.notifier.memoryUIDs[1] != "explicit" {
		t.Errorf("Expected explicit uid, got %s", f.notifier.memoryUIDs[1])
	}

	f.notifier.memoryErr = apperr.Configuration("OMI_APP_ID or OMI_API_KEY", nil)
	if err := f.service.MemoryJob(context.Background()); !apperr.IsConfiguration(err) {
		t.Errorf("Expected configuration error from job, got %v", err)
	}
}

func TestCleanupJob(t *testing.T) {
	f := newFixture(t, trigger.Settings{}, false)

	old := filepath.Join(f.dir, "old.wav")
	os.WriteFile(old, []byte("x"), 0o644)
	mtime := time.Now().Add(-time.Hour)
	os.Chtimes(old, mtime, mtime)

	fresh := filepath.Join(f.dir, "fresh.wav")
	os.WriteFile(fresh, []byte("x"), 0o644)

	if err := f.service.CleanupJob(context.Background()); err != nil {
		t.Fatalf("CleanupJob failed: %v", err)
	}

	if _, err := os.Stat(old); !os.IsNotExist(err) {
		t.Error("Expected old file deleted")
	}
	if _, err := os.Stat(fresh); err != nil {
		t.Error("Expected fresh file kept")
	}
}

func TestNewServiceValidation(t *testing.T) {
	if _, err := NewService(Options{}); err == nil {
		t.Error("Expected error for missing analyzer")
	}
}
