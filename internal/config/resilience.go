package config

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/url"
	"time"

	"db_sheets_sync/internal/retry"

	"google.golang.org/api/googleapi"
)

type ResilienceConfig struct {
	SheetRead    retry.Config
	SheetWrite   retry.Config
	SecretFetch  retry.Config
	Notification retry.Config
}

var DefaultResilienceConfig = ResilienceConfig{
	SheetRead: retry.Config{
		MaxRetries: 3,
		BaseDelay:  2 * time.Second,
		MaxDelay:   30 * time.Second,
		Timeout:    15 * time.Second,
		Retryable:  IsRetryableAPIError,
	},
	SheetWrite: retry.Config{
		MaxRetries: 4,
		BaseDelay:  2 * time.Second,
		MaxDelay:   60 * time.Second,
		Timeout:    30 * time.Second,
		Retryable:  IsRetryableAPIError,
	},
	SecretFetch: retry.Config{
		MaxRetries: 2,
		BaseDelay:  1 * time.Second,
		MaxDelay:   10 * time.Second,
		Timeout:    10 * time.Second,
	},
	Notification: retry.Config{
		MaxRetries: 2,
		BaseDelay:  500 * time.Millisecond,
		MaxDelay:   5 * time.Second,
		Timeout:    10 * time.Second,
	},
}

// IsRetryableAPIError retries rate limiting, server errors, timeouts and
// transport failures. Anything else, such as a request that cannot be encoded,
// fails the same way every time and is returned at once.
func IsRetryableAPIError(err error) bool {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code == http.StatusTooManyRequests || apiErr.Code >= 500
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
