package stats

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/liviaellen/voice-sense-hardware/internal/emotion"
)

// TimeLayout is used for every timestamp exposed by the recorder
const TimeLayout = "2006-01-02 15:04:05 UTC"

// maxNotifications bounds the recent notifications list
const maxNotifications = 10

// ErrNoEmotionData is returned by Summary before any emotion was recorded
var ErrNoEmotionData = errors.New("No emotion data available")

// NotificationEntry is one delivered notification
type NotificationEntry struct {
	Timestamp string `json:"timestamp"`
	UID       string `json:"uid"`
	Message   string `json:"message"`
}

// Snapshot is a point-in-time copy of the counters
type Snapshot struct {
	TotalRequests       int                 `json:"total_requests"`
	SuccessfulAnalyses  int                 `json:"successful_analyses"`
	FailedAnalyses      int                 `json:"failed_analyses"`
	LastRequestTime     *string             `json:"last_request_time"`
	LastUID             *string             `json:"last_uid"`
	RecentEmotions      []string            `json:"recent_emotions"`
	EmotionCounts       map[string]int      `json:"emotion_counts"`
	RecentNotifications []NotificationEntry `json:"recent_notifications"`
}

// SummaryEmotion is one entry of an emotion summary
type SummaryEmotion struct {
	Name  string  `json:"name"`
	Score float64 `json:"score"` // share of all detections in [0,1]
	Count int     `json:"count"`
}

// Summary describes the most frequent emotions so far
type Summary struct {
	Text            string           `json:"summary"`
	Emotions        []SummaryEmotion `json:"emotions"`
	TotalDetections int              `json:"total_detections"`
}

// Scores returns the summary emotions as scores
func (s *Summary) Scores() []emotion.Score {
	scores := make([]emotion.Score, len(s.Emotions))
	for i, e := range s.Emotions {
		scores[i] = emotion.Score{Name: e.Name, Score: e.Score}
	}
	return scores
}

// Recorder accumulates request, analysis and notification statistics
type Recorder struct {
	mu  sync.Mutex
	now func() time.Time

	totalRequests       int
	successfulAnalyses  int
	failedAnalyses      int
	lastRequestTime     string
	lastUID             string
	recentEmotions      []string
	emotionCounts       map[string]int
	emotionOrder        []string // first-seen order, used to break count ties
	recentNotifications []NotificationEntry
}

// NewRecorder creates an empty recorder
func NewRecorder() *Recorder {
	r := &Recorder{now: time.Now}
	r.reset()
	return r
}

func (r *Recorder) reset() {
	r.totalRequests = 0
	r.successfulAnalyses = 0
	r.failedAnalyses = 0
	r.lastRequestTime = ""
	r.lastUID = ""
	r.recentEmotions = []string{}
	r.emotionCounts = map[string]int{}
	r.emotionOrder = nil
	r.recentNotifications = []NotificationEntry{}
}

// Reset clears every counter
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reset()
}

// RecordRequest counts an inbound audio request from uid
func (r *Recorder) RecordRequest(uid string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.totalRequests++
	r.lastRequestTime = r.now().UTC().Format(TimeLayout)
	r.lastUID = uid
}

// RecordAnalysis counts a finished analysis
func (r *Recorder) RecordAnalysis(ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if ok {
		r.successfulAnalyses++
	} else {
		r.failedAnalyses++
	}
}

// RecordEmotions replaces the recent emotions with top and counts each of them.
// An empty list changes nothing.
func (r *Recorder) RecordEmotions(top []emotion.Score) {
	if len(top) == 0 {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	recent := make([]string, 0, len(top))
	for _, e := range top {
		recent = append(recent, fmt.Sprintf("%s (%.2f)", e.Name, e.Score))
		if _, seen := r.emotionCounts[e.Name]; !seen {
			r.emotionOrder = append(r.emotionOrder, e.Name)
		}
		r.emotionCounts[e.Name]++
	}
	r.recentEmotions = recent
}

// RecordPredictions folds the top three emotions of the first prediction that
// has any into the counters.
func (r *Recorder) RecordPredictions(predictions []emotion.Prediction) {
	for _, p := range predictions {
		if len(p.Top3) > 0 {
			r.RecordEmotions(p.Top3)
			return
		}
	}
}

// RecordNotification prepends a delivered notification, keeping the latest ten
func (r *Recorder) RecordNotification(uid, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry := NotificationEntry{
		Timestamp: r.now().UTC().Format(TimeLayout),
		UID:       uid,
		Message:   message,
	}

	notifications := make([]NotificationEntry, 0, maxNotifications)
	notifications = append(notifications, entry)
	for _, n := range r.recentNotifications {
		if len(notifications) == maxNotifications {
			break
		}
		notifications = append(notifications, n)
	}
	r.recentNotifications = notifications
}

// LastUID returns the uid of the latest request, or "" before any request
func (r *Recorder) LastUID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastUID
}

// Snapshot returns a copy of the counters
func (r *Recorder) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	snap := Snapshot{
		TotalRequests:       r.totalRequests,
		SuccessfulAnalyses:  r.successfulAnalyses,
		FailedAnalyses:      r.failedAnalyses,
		RecentEmotions:      append([]string{}, r.recentEmotions...),
		EmotionCounts:       make(map[string]int, len(r.emotionCounts)),
		RecentNotifications: append([]NotificationEntry{}, r.recentNotifications...),
	}
	if r.lastRequestTime != "" {
		t := r.lastRequestTime
		snap.LastRequestTime = &t
	}
	if r.lastUID != "" {
		uid := r.lastUID
		snap.LastUID = &uid
	}
	for name, count := range r.emotionCounts {
		snap.EmotionCounts[name] = count
	}

	return snap
}

// Summary ranks the n most frequently detected emotions with their share of all
// detections.
func (r *Recorder) Summary(n int) (*Summary, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.emotionCounts) == 0 {
		return nil, ErrNoEmotionData
	}

	names := append([]string{}, r.emotionOrder...)
	sort.SliceStable(names, func(i, j int) bool {
		return r.emotionCounts[names[i]] > r.emotionCounts[names[j]]
	})
	if len(names) > n {
		names = names[:n]
	}

	total := 0
	for _, count := range r.emotionCounts {
		total += count
	}

	summary := &Summary{TotalDetections: total}
	parts := make([]string, 0, len(names))
	for _, name := range names {
		count := r.emotionCounts[name]
		percentage := float64(count) / float64(total) * 100
		parts = append(parts, fmt.Sprintf("%s (%.1f%%)", name, percentage))
		summary.Emotions = append(summary.Emotions, SummaryEmotion{
			Name:  name,
			Score: percentage / 100,
			Count: count,
		})
	}
	summary.Text = fmt.Sprintf("📊 Emotion Summary - Top %d emotions detected: %s", n, strings.Join(parts, ", "))

	return summary, nil
}
