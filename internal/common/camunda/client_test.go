package camunda

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"card-scan-workers/internal/common/errors"
)

func createTestClient() *Client {
	return &Client{config: &ClientConfig{
		RetryConfig: &RetryConfig{MaxRetries: 2, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond},
	}}
}

func TestIsRetryableZeebeError(t *testing.T) {
	assert.True(t, isRetryableZeebeError(stderrors.New("rpc error: code = Unavailable desc = connection refused")))
	assert.True(t, isRetryableZeebeError(stderrors.New("context deadline exceeded")))
	assert.False(t, isRetryableZeebeError(stderrors.New("NOT_FOUND: job not found")))
}

func TestExecuteWithRetry_RetriesTransientErrors(t *testing.T) {
	c := createTestClient()
	calls := 0
	err := c.ExecuteWithRetry(context.Background(), "complete", func(context.Context) error {
		calls++
		if calls < 3 {
			return stderrors.New("connection reset by peer")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestExecuteWithRetry_GivesUp(t *testing.T) {
	c := createTestClient()
	calls := 0
	err := c.ExecuteWithRetry(context.Background(), "topology", func(context.Context) error {
		calls++
		return stderrors.New("unavailable")
	})
	require.Error(t, err)
	assert.Equal(t, 3, calls)

	stdErr, ok := errors.AsStandardError(err)
	require.True(t, ok)
	assert.Equal(t, errors.ErrCodeBrokerUnavailable, stdErr.Code)
	assert.Equal(t, 3, stdErr.Metadata["attempts"])
}

func TestExecuteWithRetry_PermanentError(t *testing.T) {
	c := createTestClient()
	calls := 0
	err := c.ExecuteWithRetry(context.Background(), "throw", func(context.Context) error {
		calls++
		return stderrors.New("permission denied")
	})
	assert.Equal(t, 1, calls)
	stdErr, ok := errors.AsStandardError(err)
	require.True(t, ok)
	assert.Equal(t, errors.ErrCodeInternal, stdErr.Code)
}

func TestExecuteWithRetry_Cancelled(t *testing.T) {
	c := createTestClient()
	c.config.RetryConfig.BaseDelay = time.Hour
	c.config.RetryConfig.MaxDelay = time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	err := c.ExecuteWithRetry(ctx, "topology", func(context.Context) error {
		cancel()
		return stderrors.New("timeout")
	})
	assert.ErrorIs(t, err, context.Canceled)
}
