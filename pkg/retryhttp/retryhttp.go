// Package retryhttp builds the retrying HTTP client shared by the outbound feeds.
package retryhttp

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

// Options tunes a client. Zero values fall back to the defaults below.
type Options struct {
	RetryMax     int
	RetryWaitMin time.Duration
	RetryWaitMax time.Duration
	Timeout      time.Duration
}

const (
	defaultRetryMax     = 3
	defaultRetryWaitMin = time.Second
	defaultRetryWaitMax = 10 * time.Second
	defaultTimeout      = 30 * time.Second
)

// New returns a quiet retryablehttp client using CheckRetry.
func New(opts Options) *retryablehttp.Client {
	client := retryablehttp.NewClient()
	client.Logger = nil
	client.CheckRetry = CheckRetry
	client.RetryMax = defaultRetryMax
	client.RetryWaitMin = defaultRetryWaitMin
	client.RetryWaitMax = defaultRetryWaitMax
	client.HTTPClient.Timeout = defaultTimeout

	if opts.RetryMax > 0 {
		client.RetryMax = opts.RetryMax
	}
	if opts.RetryWaitMin > 0 {
		client.RetryWaitMin = opts.RetryWaitMin
	}
	if opts.RetryWaitMax > 0 {
		client.RetryWaitMax = opts.RetryWaitMax
	}
	if opts.Timeout > 0 {
		client.HTTPClient.Timeout = opts.Timeout
	}
	return client
}

// CheckRetry stops on cancellation and retries server errors and 429s.
// Other 4xx responses are returned to the caller as they are.
func CheckRetry(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
			return false, ctx.Err()
		}
	}

	if err == nil && resp == nil {
		return true, fmt.Errorf("response is nil")
	}

	if resp != nil && resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
		return false, nil
	}
	return retryablehttp.DefaultRetryPolicy(ctx, resp, err)
}
