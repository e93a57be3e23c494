// Package upstream classifies provider SDK errors into the core error
// taxonomy.
package upstream

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/openai/openai-go"

	"github.com/hupe1980/threadmem/core"
)

// Classify wraps err with core.ErrTransientUpstream when retrying could
// succeed: rate limiting, server side failures and network errors.
// Cancellation and client errors are returned wrapped but unclassified.
func Classify(provider string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	if IsRetryable(err) {
		return fmt.Errorf("%w: %s: %w", core.ErrTransientUpstream, provider, err)
	}
	return fmt.Errorf("%s: %w", provider, err)
}

// IsRetryable reports whether err is a transient provider failure.
func IsRetryable(err error) bool {
	if status, ok := statusCode(err); ok {
		return status == http.StatusTooManyRequests || status == http.StatusRequestTimeout || status >= 500
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}

func statusCode(err error) (int, bool) {
	var oaErr *openai.Error
	if errors.As(err, &oaErr) {
		return oaErr.StatusCode, true
	}
	var anErr *anthropic.Error
	if errors.As(err, &anErr) {
		return anErr.StatusCode, true
	}
	return 0, false
}
