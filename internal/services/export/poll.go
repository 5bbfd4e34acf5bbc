// -----------------------------------------------------------------------
// Bounded Poll - Fixed-budget condition polling with cancellation
// -----------------------------------------------------------------------

package export

import (
	"context"
	"fmt"
	"time"
)

// ErrPollExhausted is returned when the condition never held within the budget
var ErrPollExhausted = fmt.Errorf("poll budget exhausted")

// BoundedPoll evaluates cond up to maxAttempts times, interval apart,
// returning nil as soon as cond reports done. The context is checked
// between attempts so a cancelled run never waits out the full budget.
// A non-nil error from cond aborts the poll immediately.
func BoundedPoll(ctx context.Context, interval time.Duration, maxAttempts int, cond func(ctx context.Context) (bool, error)) error {
	if maxAttempts <= 0 {
		return fmt.Errorf("poll attempts must be positive, got %d", maxAttempts)
	}

	for attempt := 0; attempt < maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		done, err := cond(ctx)
		if err != nil {
			return err
		}
		if done {
			return nil
		}

		// No sleep after the final attempt
		if attempt == maxAttempts-1 {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}
	}

	return ErrPollExhausted
}
