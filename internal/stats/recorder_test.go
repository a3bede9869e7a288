package stats

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/liviaellen/voice-sense-hardware/internal/emotion"
)

func fixedRecorder() *Recorder {
	r := NewRecorder()
	r.now = func() time.Time { return time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC) }
	return r
}

func TestRecorderEmptySnapshot(t *testing.T) {
	snap := NewRecorder().Snapshot()

	data, err := json.Marshal(snap)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	want := `{"total_requests":0,"successful_analyses":0,"failed_analyses":0,"last_request_time":null,"last_uid":null,"recent_emotions":[],"emotion_counts":{},"recent_notifications":[]}`
	if string(data) != want {
		t.Errorf("Unexpected empty snapshot:\n%s\nwant\n%s", data, want)
	}
}

func TestRecorderRequestsAndAnalyses(t *testing.T) {
	r := fixedRecorder()

	r.RecordRequest("alice")
	r.RecordRequest("bob")
	r.RecordAnalysis(true)
	r.RecordAnalysis(false)
	r.RecordAnalysis(true)

	snap := r.Snapshot()
	if snap.TotalRequests != 2 || snap.SuccessfulAnalyses != 2 || snap.FailedAnalyses != 1 {
		t.Errorf("Unexpected counters %+v", snap)
	}
	if snap.LastUID == nil || *snap.LastUID != "bob" || r.LastUID() != "bob" {
		t.Errorf("Expected last uid bob, got %v", snap.LastUID)
	}
	if snap.LastRequestTime == nil || *snap.LastRequestTime != "2024-01-02 03:04:05 UTC" {
		t.Errorf("Unexpected last request time %v", snap.LastRequestTime)
	}
}

func TestRecordPredictionsUsesFirstTop3(t *testing.T) {
	r := NewRecorder()

	r.RecordPredictions([]emotion.Prediction{
		{Emotions: nil},
		{Top3: []emotion.Score{{Name: "Joy", Score: 0.456}, {Name: "Calmness", Score: 0.2}}},
		{Top3: []emotion.Score{{Name: "Anger", Score: 0.9}}},
	})

	snap := r.Snapshot()
	if !reflect.DeepEqual(snap.RecentEmotions, []string{"Joy (0.46)", "Calmness (0.20)"}) {
		t.Errorf("Unexpected recent emotions %v", snap.RecentEmotions)
	}
	if !reflect.DeepEqual(snap.EmotionCounts, map[string]int{"Joy": 1, "Calmness": 1}) {
		t.Errorf("Unexpected counts %v", snap.EmotionCounts)
	}

	// Nothing to fold keeps the previous recent emotions
	r.RecordPredictions(nil)
	if len(r.Snapshot().RecentEmotions) != 2 {
		t.Error("Empty predictions must not clear recent emotions")
	}
}

func TestRecordNotificationKeepsLatestTen(t *testing.T) {
	r := fixedRecorder()

	for i := 0; i < 12; i++ {
		r.RecordNotification("u", fmt.Sprintf("m%d", i))
	}

	notifications := r.Snapshot().RecentNotifications
	if len(notifications) != 10 {
		t.Fatalf("Expected 10 notifications, got %d", len(notifications))
	}
	if notifications[0].Message != "m11" || notifications[9].Message != "m2" {
		t.Errorf("Expected newest first from m11 to m2, got %s..%s", notifications[0].Message, notifications[9].Message)
	}
	if notifications[0].Timestamp != "2024-01-02 03:04:05 UTC" {
		t.Errorf("Unexpected timestamp %s", notifications[0].Timestamp)
	}
}

func TestRecorderReset(t *testing.T) {
	r := NewRecorder()
	r.RecordRequest("u")
	r.RecordAnalysis(true)
	r.RecordEmotions([]emotion.Score{{Name: "Joy", Score: 1}})
	r.RecordNotification("u", "m")

	r.Reset()

	if !reflect.DeepEqual(r.Snapshot(), NewRecorder().Snapshot()) {
		t.Errorf("Reset left state behind: %+v", r.Snapshot())
	}
	if _, err := r.Summary(5); !errors.Is(err, ErrNoEmotionData) {
		t.Errorf("Expected no emotion data after reset, got %v", err)
	}
}

func TestSummary(t *testing.T) {
	r := NewRecorder()

	if _, err := r.Summary(5); !errors.Is(err, ErrNoEmotionData) {
		t.Fatalf("Expected ErrNoEmotionData, got %v", err)
	}

	record := func(names ...string) {
		scores := make([]emotion.Score, len(names))
		for i, n := range names {
			scores[i] = emotion.Score{Name: n, Score: 0.5}
		}
		r.RecordEmotions(scores)
	}
	record("Joy", "Calmness", "Anger")
	record("Joy", "Sadness", "Fear")
	record("Joy", "Calmness", "Tiredness")
	record("Interest")

	summary, err := r.Summary(5)
	if err != nil {
		t.Fatalf("Summary failed: %v", err)
	}

	if summary.TotalDetections != 10 {
		t.Errorf("Expected 10 detections, got %d", summary.TotalDetections)
	}

	// Ties keep first-seen order
	want := "📊 Emotion Summary - Top 5 emotions detected: Joy (30.0%), Calmness (20.0%), Anger (10.0%), Sadness (10.0%), Fear (10.0%)"
	if summary.Text != want {
		t.Errorf("Unexpected summary:\n%s\nwant\n%s", summary.Text, want)
	}

	if len(summary.Emotions) != 5 || summary.Emotions[0].Count != 3 || summary.Emotions[0].Score != 0.3 {
		t.Errorf("Unexpected emotions %+v", summary.Emotions)
	}

	scores := summary.Scores()
	if scores[1].Name != "Calmness" || scores[1].Score != 0.2 {
		t.Errorf("Unexpected scores %+v", scores)
	}
	if !strings.HasPrefix(summary.Text, "📊") {
		t.Error("Summary text must start with the chart marker")
	}
}

func TestRecorderConcurrentUse(t *testing.T) {
	r := NewRecorder()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r.RecordRequest(fmt.Sprintf("u%d", i))
			r.RecordAnalysis(i%2 == 0)
			r.RecordEmotions([]emotion.Score{{Name: "Joy", Score: 0.5}})
			r.Snapshot()
		}(i)
	}
	wg.Wait()

	snap := r.Snapshot()
	if snap.TotalRequests != 50 || snap.SuccessfulAnalyses+snap.FailedAnalyses != 50 {
		t.Errorf("Lost updates: %+v", snap)
	}
	if snap.EmotionCounts["Joy"] != 50 {
		t.Errorf("Expected 50 Joy detections, got %d", snap.EmotionCounts["Joy"])
	}
}
