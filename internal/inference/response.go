package inference

import (
	"fmt"

	"github.com/liviaellen/voice-sense-hardware/internal/emotion"
)

// ModelPredictions is the per-model section of an inference response
type ModelPredictions struct {
	Predictions []emotion.Prediction `json:"predictions"`
	Warning     string               `json:"warning,omitempty"`
	Code        string               `json:"code,omitempty"`
}

// Response is one decoded inference response. Exactly one of Prosody, Language
// or Error is normally populated.
type Response struct {
	Prosody  *ModelPredictions `json:"prosody,omitempty"`
	Language *ModelPredictions `json:"language,omitempty"`
	Error    string            `json:"error,omitempty"`
	Code     string            `json:"code,omitempty"`
}

// APIError is the error variant of a Response
type APIError struct {
	Code    string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("Hume API error: %s", e.Message)
}

// Err returns the API error carried by r, or nil
func (r *Response) Err() error {
	if r.Error == "" {
		return nil
	}
	return &APIError{Code: r.Code, Message: r.Error}
}

// Model returns the section of r answering mode, or nil when absent
func (r *Response) Model(mode emotion.Mode) *ModelPredictions {
	switch mode {
	case emotion.ModeProsody:
		return r.Prosody
	case emotion.ModeLanguage:
		return r.Language
	default:
		return nil
	}
}

// request is the single message sent over the socket
type request struct {
	Models  map[emotion.Mode]struct{} `json:"models"`
	RawText bool                      `json:"raw_text,omitempty"`
	Data    string                    `json:"data"`
}
