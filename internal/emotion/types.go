package emotion

import "sort"

// Mode selects the inference model family.
type Mode string

const (
	ModeProsody  Mode = "prosody"
	ModeLanguage Mode = "language"
)

// Score is a single named emotion score in [0,1]
type Score struct {
	Name  string  `json:"name"`
	Score float64 `json:"score"`
}

// TimeRange locates a prosody prediction in seconds
type TimeRange struct {
	Begin float64 `json:"begin"`
	End   float64 `json:"end"`
}

// Position locates a language prediction in characters
type Position struct {
	Begin int `json:"begin"`
	End   int `json:"end"`
}

// Prediction is one detected speech (or text) segment with its emotion scores.
type Prediction struct {
	Time        *TimeRange `json:"time,omitempty"`
	Text        string     `json:"text,omitempty"`
	Position    *Position  `json:"position,omitempty"`
	Emotions    []Score    `json:"emotions"`
	Top3        []Score    `json:"top_3_emotions"`
	WindowIndex *int       `json:"chunk_index,omitempty"`
}

// Result is the outcome of one analysis. Predictions is empty whenever Success is false.
type Result struct {
	Success              bool         `json:"success"`
	Predictions          []Prediction `json:"predictions"`
	TotalPredictions     int          `json:"total_predictions"`
	Error                string       `json:"error,omitempty"`
	Warning              string       `json:"warning,omitempty"`
	TotalDurationSeconds float64      `json:"total_duration_seconds,omitempty"`
	WindowCount          int          `json:"num_chunks,omitempty"`
	Chunked              bool         `json:"chunked,omitempty"`
	AnalyzedText         string       `json:"analyzed_text,omitempty"`
}

// Succeeded builds a successful result over predictions.
func Succeeded(predictions []Prediction) *Result {
	return &Result{
		Success:          true,
		Predictions:      predictions,
		TotalPredictions: len(predictions),
	}
}

// Failed builds an unsuccessful result carrying msg.
func Failed(msg string) *Result {
	return &Result{
		Success:     false,
		Predictions: []Prediction{},
		Error:       msg,
	}
}

// Normalize sorts the emotions of p descending by score and refreshes Top3.
// Calling it on an already normalized prediction changes nothing.
func (p *Prediction) Normalize() {
	sort.SliceStable(p.Emotions, func(i, j int) bool {
		return p.Emotions[i].Score > p.Emotions[j].Score
	})
	p.Top3 = Top(p.Emotions, 3)
}

// Shift moves the time range of p forward by offset seconds. Predictions without
// a time range are left alone.
func (p *Prediction) Shift(offset float64) {
	if p.Time == nil {
		return
	}
	p.Time = &TimeRange{Begin: p.Time.Begin + offset, End: p.Time.End + offset}
}

// Top returns a copy of the first n scores.
func Top(scores []Score, n int) []Score {
	if n > len(scores) {
		n = len(scores)
	}
	out := make([]Score, n)
	copy(out, scores[:n])
	return out
}
