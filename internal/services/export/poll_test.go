package export

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBoundedPollStopsAtFirstSuccess(t *testing.T) {
	calls := 0
	err := BoundedPoll(context.Background(), time.Millisecond, 10, func(ctx context.Context) (bool, error) {
		calls++
		return calls == 3, nil
	})

	assert.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestBoundedPollExhaustsBudget(t *testing.T) {
	calls := 0
	err := BoundedPoll(context.Background(), time.Millisecond, 5, func(ctx context.Context) (bool, error) {
		calls++
		return false, nil
	})

	assert.ErrorIs(t, err, ErrPollExhausted)
	assert.Equal(t, 5, calls)
}

func TestBoundedPollHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	err := BoundedPoll(ctx, 10*time.Millisecond, 100, func(ctx context.Context) (bool, error) {
		calls++
		if calls == 2 {
			cancel()
		}
		return false, nil
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 2, calls)
}

func TestBoundedPollPropagatesConditionError(t *testing.T) {
	boom := fmt.Errorf("boom")
	err := BoundedPoll(context.Background(), time.Millisecond, 5, func(ctx context.Context) (bool, error) {
		return false, boom
	})

	assert.ErrorIs(t, err, boom)
}

func TestBoundedPollRejectsZeroAttempts(t *testing.T) {
	err := BoundedPoll(context.Background(), time.Millisecond, 0, func(ctx context.Context) (bool, error) {
		return true, nil
	})
	assert.Error(t, err)
}
