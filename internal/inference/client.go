package inference

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/liviaellen/voice-sense-hardware/internal/apperr"
	"github.com/liviaellen/voice-sense-hardware/internal/emotion"
	"github.com/liviaellen/voice-sense-hardware/internal/metrics"
)

// APIKeyHeader carries the API key on the WebSocket handshake
const APIKeyHeader = "X-Hume-Api-Key"

// Client provides WebSocket client functionality for inference API requests
type Client struct {
	config    Config
	dialer    *websocket.Dialer
	semaphore chan struct{} // Rate limiting semaphore
	logger    *slog.Logger
	metrics   *metrics.Metrics

	// Statistics
	totalRequests   uint64
	successRequests uint64
	failedRequests  uint64
	avgResponseTime time.Duration

	mu sync.RWMutex
}

// Config contains inference client configuration
type Config struct {
	Endpoint      string
	APIKey        string
	Timeout       time.Duration
	MaxConcurrent int
}

// ClientStats represents client statistics
type ClientStats struct {
	TotalRequests   uint64        `json:"total_requests"`
	SuccessRequests uint64        `json:"success_requests"`
	FailedRequests  uint64        `json:"failed_requests"`
	SuccessRate     float64       `json:"success_rate"`
	AvgResponseTime time.Duration `json:"avg_response_time"`
	ActiveRequests  int           `json:"active_requests"`
}

// NewClient creates a new inference client. A missing API key is a
// configuration error.
func NewClient(config Config, logger *slog.Logger, m *metrics.Metrics) (*Client, error) {
	if config.Endpoint == "" {
		return nil, fmt.Errorf("endpoint cannot be empty")
	}

	if config.APIKey == "" {
		return nil, apperr.Configuration("HUME_API_KEY", nil)
	}

	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}

	if config.MaxConcurrent <= 0 {
		config.MaxConcurrent = 4
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		config: config,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: config.Timeout,
		},
		semaphore: make(chan struct{}, config.MaxConcurrent),
		logger:    logger.With(slog.String("component", "inference")),
		metrics:   m,
	}, nil
}

// InferAudio submits one WAV file to the prosody model
func (c *Client) InferAudio(ctx context.Context, wav []byte) (*Response, error) {
	return c.infer(ctx, emotion.ModeProsody, request{
		Models: map[emotion.Mode]struct{}{emotion.ModeProsody: {}},
		Data:   base64.StdEncoding.EncodeToString(wav),
	})
}

// InferText submits raw text to the language model
func (c *Client) InferText(ctx context.Context, text string) (*Response, error) {
	return c.infer(ctx, emotion.ModeLanguage, request{
		Models:  map[emotion.Mode]struct{}{emotion.ModeLanguage: {}},
		RawText: true,
		Data:    text,
	})
}

func (c *Client) infer(ctx context.Context, mode emotion.Mode, req request) (*Response, error) {
	// Acquire semaphore for rate limiting
	select {
	case c.semaphore <- struct{}{}:
		defer func() { <-c.semaphore }()
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	startTime := time.Now()
	c.incrementTotalRequests()

	resp, err := c.doRequest(ctx, req)
	elapsed := time.Since(startTime)
	c.metrics.RecordInference(string(mode), err == nil, elapsed.Seconds())

	if err != nil {
		c.incrementFailedRequests()
		c.logger.Warn("Inference request failed",
			slog.String("mode", string(mode)),
			slog.Duration("elapsed", elapsed),
			slog.String("error", err.Error()))
		return nil, err
	}

	c.incrementSuccessRequests()
	c.updateAvgResponseTime(elapsed)

	c.logger.Debug("Inference request completed",
		slog.String("mode", string(mode)),
		slog.Duration("elapsed", elapsed))

	return resp, nil
}

// doRequest performs a single request/response exchange on a fresh connection
func (c *Client) doRequest(ctx context.Context, req request) (*Response, error) {
	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	header := http.Header{}
	header.Set(APIKeyHeader, c.config.APIKey)
	header.Set("User-Agent", "Voice-Emotion-Service/1.0")

	conn, httpResp, err := c.dialer.DialContext(ctx, c.config.Endpoint, header)
	if err != nil {
		status := 0
		if httpResp != nil {
			status = httpResp.StatusCode
			httpResp.Body.Close()
		}
		return nil, apperr.Transport("inference dial", status, err)
	}
	defer conn.Close()

	deadline, _ := ctx.Deadline()
	conn.SetWriteDeadline(deadline)
	conn.SetReadDeadline(deadline)

	if err := conn.WriteJSON(req); err != nil {
		return nil, apperr.Transport("inference write", 0, err)
	}

	_, payload, err := conn.ReadMessage()
	if err != nil {
		return nil, apperr.Transport("inference read", 0, err)
	}

	var resp Response
	if err := json.Unmarshal(payload, &resp); err != nil {
		return nil, apperr.Transport("inference decode", 0, fmt.Errorf("failed to parse response JSON: %w", err))
	}

	// Best effort close handshake; the response is already in hand
	closeMsg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	if err := conn.WriteControl(websocket.CloseMessage, closeMsg, time.Now().Add(time.Second)); err != nil &&
		!errors.Is(err, websocket.ErrCloseSent) {
		c.logger.Debug("Close handshake failed", slog.String("error", err.Error()))
	}

	return &resp, nil
}

// Statistics methods
func (c *Client) incrementTotalRequests() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.totalRequests++
}

func (c *Client) incrementSuccessRequests() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.successRequests++
}

func (c *Client) incrementFailedRequests() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failedRequests++
}

func (c *Client) updateAvgResponseTime(responseTime time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Simple moving average
	if c.avgResponseTime == 0 {
		c.avgResponseTime = responseTime
	} else {
		c.avgResponseTime = (c.avgResponseTime + responseTime) / 2
	}
}

// GetStats returns current client statistics
func (c *Client) GetStats() ClientStats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	successRate := float64(0)
	if c.totalRequests > 0 {
		successRate = float64(c.successRequests) / float64(c.totalRequests) * 100
	}

	return ClientStats{
		TotalRequests:   c.totalRequests,
		SuccessRequests: c.successRequests,
		FailedRequests:  c.failedRequests,
		SuccessRate:     successRate,
		AvgResponseTime: c.avgResponseTime,
		ActiveRequests:  len(c.semaphore),
	}
}
