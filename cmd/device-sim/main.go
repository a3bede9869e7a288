// Command device-sim replays a WAV recording against the /audio endpoint the
// way a wearable does: raw PCM posted in fixed-length batches.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/alecthomas/kong"
	"github.com/google/uuid"

	"github.com/liviaellen/voice-sense-hardware/internal/audio"
)

// CLI defines the command-line interface
type CLI struct {
	Server     string        `default:"http://localhost:8080" help:"Base URL of the emotion service"`
	UID        string        `name:"uid" help:"Device user ID (random when empty)"`
	BatchMS    int64         `name:"batch-ms" default:"10000" help:"Audio length posted per request in milliseconds"`
	Interval   time.Duration `default:"0s" help:"Pause between batches"`
	Notify     *bool         `help:"Override notification_enabled for these requests"`
	Filters    string        `help:"JSON object of emotion filters, e.g. {\"Anger\":0.7}"`
	NoAnalysis bool          `name:"no-analysis" help:"Skip emotion analysis"`
	NoArchive  bool          `name:"no-archive" help:"Skip the cloud storage archive"`
	File       string        `arg:"" type:"existingfile" help:"Mono 16-bit WAV file to replay"`
}

func main() {
	cli := CLI{}
	kong.Parse(&cli,
		kong.Name("device-sim"),
		kong.Description("Replay a WAV recording against the emotion service"),
		kong.UsageOnError(),
	)

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	if err := run(context.Background(), cli, http.DefaultClient, logger); err != nil {
		logger.Error("Replay failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(ctx context.Context, cli CLI, client *http.Client, logger *slog.Logger) error {
	if cli.BatchMS <= 0 {
		return fmt.Errorf("batch-ms must be positive, got %d", cli.BatchMS)
	}

	data, err := os.ReadFile(cli.File)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", cli.File, err)
	}

	pcm, sampleRate, err := audio.DecodeWAV(data)
	if err != nil {
		return fmt.Errorf("failed to decode %s: %w", cli.File, err)
	}

	buf, err := audio.NewBuffer(pcm, sampleRate)
	if err != nil {
		return err
	}

	uid := cli.UID
	if uid == "" {
		uid = "sim-" + uuid.NewString()[:8]
	}

	batches := audio.Partition(buf.DurationMS(), cli.BatchMS)
	logger.Info("Replaying recording",
		slog.String("file", cli.File),
		slog.String("uid", uid),
		slog.Int("sample_rate", sampleRate),
		slog.Int64("duration_ms", buf.DurationMS()),
		slog.Int("batches", len(batches)))

	for i, w := range batches {
		segment, err := buf.Segment(w)
		if err != nil {
			return err
		}

		target := audioURL(cli, uid, sampleRate)
		summary, err := post(ctx, client, target, segment)
		if err != nil {
			return fmt.Errorf("batch %d: %w", i, err)
		}

		logger.Info("Batch analyzed",
			slog.Int("batch", i),
			slog.Int64("start_ms", w.StartMS),
			slog.Int64("end_ms", w.EndMS),
			slog.String("result", summary))

		if cli.Interval > 0 && i < len(batches)-1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(cli.Interval):
			}
		}
	}

	return nil
}

// audioURL builds the /audio request URL for one batch
func audioURL(cli CLI, uid string, sampleRate int) string {
	query := url.Values{}
	query.Set("uid", uid)
	query.Set("sample_rate", strconv.Itoa(sampleRate))
	query.Set("analyze_emotion", strconv.FormatBool(!cli.NoAnalysis))
	query.Set("save_to_gcs", strconv.FormatBool(!cli.NoArchive))
	if cli.Notify != nil {
		query.Set("enable_notification", strconv.FormatBool(*cli.Notify))
	}
	if cli.Filters != "" {
		query.Set("emotion_filters", cli.Filters)
	}

	return cli.Server + "/audio?" + query.Encode()
}

// post sends one batch and summarizes the analysis in the reply
func post(ctx context.Context, client *http.Client, target string, pcm []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(pcm))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("server returned %d: %s", resp.StatusCode, body)
	}

	var reply struct {
		HumeAnalysis *struct {
			Success           bool   `json:"success"`
			TotalPredictions  int    `json:"total_predictions"`
			Error             string `json:"error"`
			TriggeredEmotions []struct {
				Name string `json:"name"`
			} `json:"triggered_emotions"`
		} `json:"hume_analysis"`
	}
	if err := json.Unmarshal(body, &reply); err != nil {
		return "", fmt.Errorf("invalid response: %w", err)
	}

	switch a := reply.HumeAnalysis; {
	case a == nil:
		return "not analyzed", nil
	case !a.Success:
		return "failed: " + a.Error, nil
	case len(a.TriggeredEmotions) > 0:
		names := make([]string, len(a.TriggeredEmotions))
		for i, m := range a.TriggeredEmotions {
			names[i] = m.Name
		}
		return fmt.Sprintf("%d predictions, triggered %v", a.TotalPredictions, names), nil
	default:
		return fmt.Sprintf("%d predictions", a.TotalPredictions), nil
	}
}
