package chain

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestWithRetrySucceedsWithoutRetrying(t *testing.T) {
	c := &Chain{}
	calls := 0
	err := c.withRetry(context.Background(), "test_op", func(ctx context.Context) error {
		calls++
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestWithRetryRetriesUntilSuccess(t *testing.T) {
	c := &Chain{backoffBase: time.Millisecond}
	calls := 0
	err := c.withRetry(context.Background(), "test_op", func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("transient rpc error")
		}
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestWithRetryStopsOnContextCancellation(t *testing.T) {
	c := &Chain{backoffBase: time.Millisecond}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	calls := 0
	err := c.withRetry(ctx, "test_op", func(ctx context.Context) error {
		calls++
		return errors.New("persistent rpc error")
	})
	assert.Error(t, err)
	assert.GreaterOrEqual(t, calls, 1)
}
