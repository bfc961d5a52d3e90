package notifications

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"db_sheets_sync/internal/config"
	"db_sheets_sync/internal/pipeline"
	"db_sheets_sync/internal/retry"

	"github.com/rs/zerolog/log"
)

const (
	maxTargetsShown    = 10
	breakerThreshold   = 5
	breakerCooldown    = 30 * time.Second
	defaultHTTPTimeout = 10 * time.Second
)

// Client posts run summaries to an ntfy topic.
type Client struct {
	httpClient *http.Client
	baseURL    string
	topic      string
	enabled    bool
	priority   string
	policy     retry.Config
	now        func() time.Time

	// Circuit breaker state
	mutex       sync.Mutex
	failures    int
	lastFailure time.Time
	circuitOpen bool
	// Metrics
	totalSent   int64
	totalFailed int64
}

type NotificationError struct {
	Type       string
	StatusCode int
	Underlying error
}

func (e *NotificationError) Error() string {
	return fmt.Sprintf("notification failed [%s]: %v", e.Type, e.Underlying)
}

func (e *NotificationError) Unwrap() error { return e.Underlying }

func (e *NotificationError) IsRetryable() bool {
	switch e.Type {
	case "network", "server", "rate_limit":
		return true
	case "auth", "client", "circuit_open":
		return false
	default:
		return e.StatusCode >= 500
	}
}

func NewClient(cfg config.NotifyConfig, policy retry.Config) *Client {
	policy.Retryable = isRetryable
	return &Client{
		httpClient: &http.Client{Timeout: defaultHTTPTimeout},
		baseURL:    strings.TrimSuffix(cfg.URL, "/"),
		topic:      cfg.Topic,
		enabled:    cfg.Enabled,
		priority:   cfg.Priority,
		policy:     policy,
		now:        time.Now,
	}
}

func isRetryable(err error) bool {
	var notifErr *NotificationError
	if errors.As(err, &notifErr) {
		return notifErr.IsRetryable()
	}
	return true
}

// NotifySummary sends one message when any target in the pass failed.
// Fully successful passes are silent.
func (c *Client) NotifySummary(ctx context.Context, summary pipeline.Summary) error {
	if summary.Failed == 0 {
		log.Debug().Msg("No failed targets to notify about")
		return nil
	}
	return c.SendNotification(ctx, formatSummary(summary))
}

func (c *Client) SendNotification(ctx context.Context, message string) error {
	if !c.enabled {
		log.Debug().Msg("Notifications disabled, skipping")
		return nil
	}

	if c.isCircuitOpen() {
		log.Warn().Msg("Circuit breaker open, skipping notification")
		return &NotificationError{Type: "circuit_open", Underlying: errors.New("circuit breaker is open")}
	}

	err := retry.Do(ctx, c.policy, func(ctx context.Context) error {
		return c.send(ctx, message)
	})
	if err != nil {
		c.recordFailure()
		return err
	}

	c.recordSuccess()
	return nil
}

func (c *Client) send(ctx context.Context, message string) error {
	url := fmt.Sprintf("%s/%s", c.baseURL, c.topic)

	log.Debug().Str("url", url).Msg("Sending notification")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBufferString(message))
	if err != nil {
		return &NotificationError{Type: "client", Underlying: err}
	}

	req.Header.Set("Content-Type", "text/plain")
	req.Header.Set("Title", "DB sync failure")
	req.Header.Set("Tags", "warning")
	if c.priority != "" {
		req.Header.Set("Priority", c.priority)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &NotificationError{Type: "network", Underlying: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return &NotificationError{
			Type:       categorizeHTTPError(resp.StatusCode),
			StatusCode: resp.StatusCode,
			Underlying: fmt.Errorf("HTTP %d: %s", resp.StatusCode, resp.Status),
		}
	}

	log.Debug().Int("status_code", resp.StatusCode).Msg("Notification sent successfully")
	return nil
}

func formatSummary(summary pipeline.Summary) string {
	var sb strings.Builder

	total := summary.Succeeded + summary.Failed
	if summary.Failed == total {
		sb.WriteString(fmt.Sprintf("All %d targets failed\n", total))
	} else {
		sb.WriteString(fmt.Sprintf("%d of %d targets failed\n", summary.Failed, total))
	}

	shown := 0
	for _, o := range summary.Outcomes {
		if o.Status == pipeline.StatusSuccess {
			continue
		}
		if shown == maxTargetsShown {
			sb.WriteString(fmt.Sprintf("... and %d more\n", summary.Failed-shown))
			break
		}
		sb.WriteString(fmt.Sprintf("• %s → %s: %s\n", o.Table, o.Sheet, o.Error))
		shown++
	}

	return strings.TrimSuffix(sb.String(), "\n")
}

func (c *Client) isCircuitOpen() bool {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if !c.circuitOpen {
		return false
	}

	// half-open: let the next attempt through
	if c.now().Sub(c.lastFailure) > breakerCooldown {
		c.circuitOpen = false
		c.failures = 0
		log.Info().Msg("Circuit breaker moving to half-open state")
	}
	return c.circuitOpen
}

func (c *Client) recordSuccess() {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.totalSent++
	c.failures = 0
	if c.circuitOpen {
		c.circuitOpen = false
		log.Info().Msg("Circuit breaker closed after successful notification")
	}
}

func (c *Client) recordFailure() {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.totalFailed++
	c.failures++
	c.lastFailure = c.now()

	if c.failures >= breakerThreshold && !c.circuitOpen {
		c.circuitOpen = true
		log.Warn().
			Int("failures", c.failures).
			Msg("Circuit breaker opened due to consecutive failures")
	}
}

func categorizeHTTPError(statusCode int) string {
	switch {
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		return "auth"
	case statusCode == http.StatusTooManyRequests:
		return "rate_limit"
	case statusCode >= 400 && statusCode < 500:
		return "client"
	case statusCode >= 500:
		return "server"
	default:
		return "unknown"
	}
}

// GetMetrics returns current notification metrics
func (c *Client) GetMetrics() (sent, failed int64) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.totalSent, c.totalFailed
}
