package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/liviaellen/voice-sense-hardware/internal/apperr"
	"github.com/liviaellen/voice-sense-hardware/internal/emotion"
	"github.com/liviaellen/voice-sense-hardware/internal/metrics"
)

// Config contains integration API configuration
type Config struct {
	BaseURL string
	AppID   string
	APIKey  string
	Timeout time.Duration
}

// Client sends notifications and memories for one integration app
type Client struct {
	config     Config
	httpClient *http.Client
	logger     *slog.Logger
	metrics    *metrics.Metrics
}

// Memory is a single memory entry
type Memory struct {
	Content string   `json:"content"`
	Tags    []string `json:"tags"`
}

// MemoryRequest is the body of a memory creation call
type MemoryRequest struct {
	Memories       []Memory `json:"memories"`
	Text           string   `json:"text"`
	TextSource     string   `json:"text_source"`
	TextSourceSpec string   `json:"text_source_spec"`
}

// NewClient creates an integration API client. Missing credentials are reported
// on each call rather than here, so the service can run without them.
func NewClient(config Config, logger *slog.Logger, m *metrics.Metrics) *Client {
	if config.BaseURL == "" {
		config.BaseURL = "https://api.omi.me"
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")

	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 5,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		logger:  logger.With(slog.String("component", "notify")),
		metrics: m,
	}
}

// Configured reports whether the app id and API key are set
func (c *Client) Configured() bool {
	return c.config.AppID != "" && c.config.APIKey != ""
}

func (c *Client) checkConfigured() error {
	if !c.Configured() {
		return apperr.Configuration("OMI_APP_ID or OMI_API_KEY", nil)
	}
	return nil
}

// Notify sends message as a push notification to uid. Any 2xx answer is success.
func (c *Client) Notify(ctx context.Context, uid, message string) error {
	err := c.notify(ctx, uid, message)
	c.metrics.RecordNotification(err == nil)

	if err != nil {
		c.logger.Warn("Notification failed",
			slog.String("uid", uid),
			slog.String("error", err.Error()))
		return err
	}

	c.logger.Info("Sent notification", slog.String("uid", uid))
	return nil
}

func (c *Client) notify(ctx context.Context, uid, message string) error {
	if err := c.checkConfigured(); err != nil {
		return err
	}

	query := url.Values{}
	query.Set("uid", uid)
	query.Set("message", message)
	endpoint := fmt.Sprintf("%s/v2/integrations/%s/notification?%s",
		c.config.BaseURL, url.PathEscape(c.config.AppID), query.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, http.NoBody)
	if err != nil {
		return fmt.Errorf("failed to create HTTP request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	status, body, err := c.do(req)
	if err != nil {
		return apperr.Transport("notification", 0, err)
	}

	if status < 200 || status >= 300 {
		return apperr.Transport("notification", status, fmt.Errorf("%s", body))
	}

	return nil
}

// StoreMemory records text as a memory for uid, listing the first three emotions
// in its content and tagging it with the first one. Only a 200 answer is success.
func (c *Client) StoreMemory(ctx context.Context, uid, text string, emotions []emotion.Score) error {
	err := c.storeMemory(ctx, uid, text, emotions)
	c.metrics.RecordMemory(err == nil)

	if err != nil {
		c.logger.Warn("Memory creation failed",
			slog.String("uid", uid),
			slog.String("error", err.Error()))
		return err
	}

	c.logger.Info("Created memory", slog.String("uid", uid))
	return nil
}

func (c *Client) storeMemory(ctx context.Context, uid, text string, emotions []emotion.Score) error {
	if err := c.checkConfigured(); err != nil {
		return err
	}

	if len(emotions) == 0 {
		return apperr.Validation("emotions", fmt.Errorf("no emotions to store"))
	}

	body, err := json.Marshal(BuildMemoryRequest(text, emotions))
	if err != nil {
		return fmt.Errorf("failed to encode memory: %w", err)
	}

	query := url.Values{}
	query.Set("uid", uid)
	endpoint := fmt.Sprintf("%s/v2/integrations/%s/user/memories?%s",
		c.config.BaseURL, url.PathEscape(c.config.AppID), query.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create HTTP request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	status, respBody, err := c.do(req)
	if err != nil {
		return apperr.Transport("memory", 0, err)
	}

	if status != http.StatusOK {
		return apperr.Transport("memory", status, fmt.Errorf("%s", respBody))
	}

	return nil
}

// BuildMemoryRequest assembles the memory payload for text and emotions
func BuildMemoryRequest(text string, emotions []emotion.Score) MemoryRequest {
	top := emotion.Top(emotions, 3)
	parts := make([]string, 0, len(top))
	for _, e := range top {
		parts = append(parts, fmt.Sprintf("%s (%.2f)", e.Name, e.Score))
	}

	return MemoryRequest{
		Memories: []Memory{{
			Content: "Emotion detected: " + strings.Join(parts, ", "),
			Tags:    []string{"emotion", "audio_analysis", strings.ToLower(emotions[0].Name)},
		}},
		Text:           text,
		TextSource:     "other",
		TextSourceSpec: "emotion_ai_analysis",
	}
}

// do performs req with bearer authentication and returns status and body
func (c *Client) do(req *http.Request) (int, string, error) {
	req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	req.Header.Set("User-Agent", "Voice-Emotion-Service/1.0")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, "", fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return resp.StatusCode, "", fmt.Errorf("failed to read response body: %w", err)
	}

	return resp.StatusCode, string(respBody), nil
}
