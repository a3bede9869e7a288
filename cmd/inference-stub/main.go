// Command inference-stub serves a local stand-in for the streaming emotion
// inference API. It answers every request with deterministic predictions so
// the service can be exercised end to end without credentials.
package main

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"os"
	"strings"

	"github.com/alecthomas/kong"
	"github.com/gorilla/websocket"

	"github.com/liviaellen/voice-sense-hardware/internal/audio"
	"github.com/liviaellen/voice-sense-hardware/internal/emotion"
	"github.com/liviaellen/voice-sense-hardware/internal/inference"
)

// CLI defines the command-line interface
type CLI struct {
	Addr      string  `default:"127.0.0.1:9000" help:"Listen address"`
	APIKey    string  `name:"api-key" env:"HUME_API_KEY" help:"Require this API key on every connection"`
	SegmentMS int     `name:"segment-ms" default:"1000" help:"Length of each predicted speech segment in milliseconds"`
	Silence   float64 `default:"0.01" help:"RMS level below which a segment counts as silence"`
}

// emotionNames are the emotions scored by the stub
var emotionNames = []string{"Joy", "Calmness", "Interest", "Anger", "Sadness", "Surprise (positive)"}

// stubRequest mirrors the message sent by the inference client
type stubRequest struct {
	Models  map[string]json.RawMessage `json:"models"`
	RawText bool                       `json:"raw_text"`
	Data    string                     `json:"data"`
}

type stub struct {
	cli      CLI
	logger   *slog.Logger
	upgrader websocket.Upgrader
}

func main() {
	cli := CLI{}
	kong.Parse(&cli,
		kong.Name("inference-stub"),
		kong.Description("Deterministic stand-in for the streaming emotion inference API"),
		kong.UsageOnError(),
	)

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	s := &stub{cli: cli, logger: logger}

	http.Handle("/v0/stream/models", s)

	logger.Info("Inference stub starting",
		slog.String("endpoint", fmt.Sprintf("ws://%s/v0/stream/models", cli.Addr)),
		slog.Bool("requires_key", cli.APIKey != ""))

	if err := http.ListenAndServe(cli.Addr, nil); err != nil {
		logger.Error("Server failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func (s *stub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if s.cli.APIKey != "" && r.Header.Get(inference.APIKeyHeader) != s.cli.APIKey {
		http.Error(w, "invalid api key", http.StatusUnauthorized)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("Upgrade failed", slog.String("error", err.Error()))
		return
	}
	defer conn.Close()

	for {
		var req stubRequest
		if err := conn.ReadJSON(&req); err != nil {
			return
		}

		resp := s.answer(req)
		if err := conn.WriteJSON(resp); err != nil {
			return
		}
	}
}

// answer builds the response for one request
func (s *stub) answer(req stubRequest) *inference.Response {
	switch {
	case req.Models[string(emotion.ModeLanguage)] != nil:
		if !req.RawText {
			return &inference.Response{Error: "language model requires raw_text", Code: "E0101"}
		}
		s.logger.Info("Text request", slog.Int("length", len(req.Data)))
		return &inference.Response{Language: &inference.ModelPredictions{Predictions: textPredictions(req.Data)}}

	case req.Models[string(emotion.ModeProsody)] != nil:
		data, err := base64.StdEncoding.DecodeString(req.Data)
		if err != nil {
			return &inference.Response{Error: "data is not valid base64", Code: "E0102"}
		}
		pcm, sampleRate, err := audio.DecodeWAV(data)
		if err != nil {
			return &inference.Response{Error: err.Error(), Code: "E0103"}
		}

		predictions := prosodyPredictions(pcm, sampleRate, s.cli.SegmentMS, s.cli.Silence)
		s.logger.Info("Audio request",
			slog.Int("bytes", len(pcm)),
			slog.Int("sample_rate", sampleRate),
			slog.Int("predictions", len(predictions)))

		section := &inference.ModelPredictions{Predictions: predictions}
		if len(predictions) == 0 {
			section.Warning = "No speech detected."
			section.Code = "W0105"
		}
		return &inference.Response{Prosody: section}

	default:
		return &inference.Response{Error: "no supported model requested", Code: "E0100"}
	}
}

// prosodyPredictions scores each segment of pcm that is louder than silence
func prosodyPredictions(pcm []byte, sampleRate, segmentMS int, silence float64) []emotion.Prediction {
	samples := audio.Samples(pcm)
	perSegment := sampleRate * segmentMS / 1000
	if perSegment <= 0 {
		return []emotion.Prediction{}
	}

	predictions := []emotion.Prediction{}
	for start, i := 0, 0; start < len(samples); start, i = start+perSegment, i+1 {
		end := min(start+perSegment, len(samples))

		level := rms(samples[start:end])
		if level < silence {
			continue
		}

		predictions = append(predictions, emotion.Prediction{
			Time: &emotion.TimeRange{
				Begin: float64(start) / float64(sampleRate),
				End:   float64(end) / float64(sampleRate),
			},
			Emotions: scores(i, level),
		})
	}

	return predictions
}

// textPredictions scores each word of text
func textPredictions(text string) []emotion.Prediction {
	predictions := []emotion.Prediction{}

	offset := 0
	for i, word := range strings.Fields(text) {
		begin := strings.Index(text[offset:], word) + offset
		offset = begin + len(word)

		predictions = append(predictions, emotion.Prediction{
			Text:     word,
			Position: &emotion.Position{Begin: begin, End: offset},
			Emotions: scores(i, float64(len(word))/10),
		})
	}

	return predictions
}

// scores rotates the emotion profile by segment and lets loudness favour Anger
func scores(segment int, level float64) []emotion.Score {
	out := make([]emotion.Score, len(emotionNames))
	for j, name := range emotionNames {
		rank := (j + len(emotionNames) - segment%len(emotionNames)) % len(emotionNames)
		score := 0.9 - 0.15*float64(rank)
		if name == "Anger" {
			score = math.Min(1, score+level)
		}
		out[j] = emotion.Score{Name: name, Score: math.Round(score*1000) / 1000}
	}
	return out
}

func rms(samples []int16) float64 {
	if len(samples) == 0 {
		return 0
	}

	var sum float64
	for _, s := range samples {
		v := float64(s) / math.MaxInt16
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(samples)))
}
