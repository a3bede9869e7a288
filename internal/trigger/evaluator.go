package trigger

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/liviaellen/voice-sense-hardware/internal/emotion"
)

// Match is one emotion score selected by the evaluator
type Match struct {
	Name  string             `json:"name"`
	Score float64            `json:"score"`
	Time  *emotion.TimeRange `json:"time"`
}

// Evaluation is the outcome of checking predictions against filters
type Evaluation struct {
	Triggered     bool    `json:"triggered"`
	Matches       []Match `json:"emotions"`
	TotalTriggers int     `json:"total_triggers"`
}

// Evaluate collects the scores of predictions that pass filters, in encounter
// order. Without filters every score matches. With filters a score matches when
// its emotion is named, whatever its value.
// TODO: compare scores against the configured thresholds once clients stop
// relying on name-only matching.
func Evaluate(predictions []emotion.Prediction, filters map[string]float64) Evaluation {
	matches := make([]Match, 0)

	for _, prediction := range predictions {
		for _, score := range prediction.Emotions {
			if len(filters) > 0 {
				if _, ok := filters[score.Name]; !ok {
					continue
				}
			}
			matches = append(matches, Match{
				Name:  score.Name,
				Score: score.Score,
				Time:  prediction.Time,
			})
		}
	}

	return Evaluation{
		Triggered:     len(matches) > 0,
		Matches:       matches,
		TotalTriggers: len(matches),
	}
}

// Message renders the notification text naming the first three matches
func Message(ev Evaluation) string {
	n := len(ev.Matches)
	if n > 3 {
		n = 3
	}

	names := make([]string, 0, n)
	for _, m := range ev.Matches[:n] {
		names = append(names, m.Name)
	}

	return "🎭 Emotion Alert: " + strings.Join(names, ", ")
}

// ParseFilters decodes a query-string filter override such as {"Anger":0.7}.
// An empty string or invalid JSON yields fallback.
func ParseFilters(raw string, fallback map[string]float64) (map[string]float64, error) {
	if raw == "" {
		return fallback, nil
	}

	var filters map[string]float64
	if err := json.Unmarshal([]byte(raw), &filters); err != nil {
		return fallback, fmt.Errorf("invalid emotion_filters JSON: %w", err)
	}

	return filters, nil
}
