package ledger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSleeper struct {
	slept []time.Duration
}

func (f *fakeSleeper) Sleep(_ context.Context, d time.Duration) error {
	f.slept = append(f.slept, d)
	return nil
}

func TestRetryPolicy_Do(t *testing.T) {
	errBusy := errors.New("file busy")

	tests := []struct {
		name      string
		failures  int
		wantErr   bool
		wantCalls int
		wantSleep int
	}{
		{name: "first try", failures: 0, wantCalls: 1, wantSleep: 0},
		{name: "succeeds on third", failures: 2, wantCalls: 3, wantSleep: 2},
		{name: "exhausted", failures: 5, wantErr: true, wantCalls: 3, wantSleep: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sleeper := &fakeSleeper{}
			var retried []int
			p := DefaultRetryPolicy()
			p.Sleep = sleeper.Sleep
			p.OnRetry = func(attempt int, _ error) { retried = append(retried, attempt) }

			calls := 0
			err := p.Do(context.Background(), func() error {
				calls++
				if calls <= tt.failures {
					return errBusy
				}
				return nil
			})

			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, errBusy)
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tt.wantCalls, calls)
			assert.Len(t, sleeper.slept, tt.wantSleep)
			assert.Len(t, retried, tt.wantSleep)
			for _, d := range sleeper.slept {
				assert.Equal(t, DefaultBackoff, d)
			}
		})
	}
}

func TestRetryPolicy_ZeroValueTriesOnce(t *testing.T) {
	calls := 0
	err := RetryPolicy{}.Do(context.Background(), func() error {
		calls++
		return errors.New("nope")
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetryPolicy_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := RetryPolicy{Attempts: 3, Backoff: time.Hour}
	calls := 0
	err := p.Do(ctx, func() error {
		calls++
		return errors.New("busy")
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}
