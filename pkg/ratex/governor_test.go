package ratex

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newClockedStore(start time.Time) (*MemoryStore, *time.Time) {
	now := start
	s := NewMemoryStore()
	s.now = func() time.Time { return now }
	return s, &now
}

func TestGovernorWindow(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	store, now := newClockedStore(start)
	g := NewGovernor(store)
	budget := Budget{MaxAttempts: 5, Window: time.Minute}

	t.Run("first attempt opens the window", func(t *testing.T) {
		res, err := g.Check(ctx, "signin:203.0.113.1", budget)
		require.NoError(t, err)
		require.True(t, res.Allowed)
		require.Equal(t, 4, res.Remaining)
		require.Equal(t, start.Add(time.Minute), res.ResetAt)
	})

	t.Run("nth attempt leaves max minus n remaining", func(t *testing.T) {
		for n := 2; n <= 5; n++ {
			res, err := g.Check(ctx, "signin:203.0.113.1", budget)
			require.NoError(t, err)
			require.True(t, res.Allowed, "attempt %d should be allowed", n)
			require.Equal(t, 5-n, res.Remaining)
		}
	})

	t.Run("attempt past the budget is rejected", func(t *testing.T) {
		res, err := g.Check(ctx, "signin:203.0.113.1", budget)
		require.NoError(t, err)
		require.False(t, res.Allowed)
		require.Equal(t, 0, res.Remaining)
		require.Equal(t, start.Add(time.Minute), res.ResetAt)
	})

	t.Run("window elapse resets the counter", func(t *testing.T) {
		*now = start.Add(time.Minute) // exactly at resetAt counts as elapsed
		res, err := g.Check(ctx, "signin:203.0.113.1", budget)
		require.NoError(t, err)
		require.True(t, res.Allowed)
		require.Equal(t, 4, res.Remaining)
		require.Equal(t, now.Add(time.Minute), res.ResetAt)
	})

	t.Run("keys are independent", func(t *testing.T) {
		res, err := g.Check(ctx, "signin:198.51.100.7", budget)
		require.NoError(t, err)
		require.True(t, res.Allowed)
		require.Equal(t, 4, res.Remaining)
	})
}

func TestGovernorConcurrentIncrements(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	g := NewGovernor(NewMemoryStore())
	budget := Budget{MaxAttempts: 50, Window: time.Minute}

	const workers = 100
	var wg sync.WaitGroup
	allowed := make(chan bool, workers)

	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := g.Check(ctx, "shared", budget)
			require.NoError(t, err)
			allowed <- res.Allowed
		}()
	}
	wg.Wait()
	close(allowed)

	// Exactly the budget gets through; no attempt is lost or double-counted.
	var got int
	for ok := range allowed {
		if ok {
			got++
		}
	}
	require.Equal(t, 50, got)
}

func TestParseBudgetFromEnv(t *testing.T) {
	def := Budget{MaxAttempts: 5, Window: time.Minute}

	t.Run("defaults when unset", func(t *testing.T) {
		require.Equal(t, def, ParseBudgetFromEnv("TESTACTION", def))
	})

	t.Run("overrides from environment", func(t *testing.T) {
		t.Setenv("RATELIMIT_TESTACTION_ATTEMPTS", "20")
		t.Setenv("RATELIMIT_TESTACTION_WINDOW_SEC", "120")

		b := ParseBudgetFromEnv("TESTACTION", def)
		require.Equal(t, 20, b.MaxAttempts)
		require.Equal(t, 2*time.Minute, b.Window)
	})

	t.Run("ignores malformed values", func(t *testing.T) {
		t.Setenv("RATELIMIT_TESTACTION_ATTEMPTS", "zero")
		t.Setenv("RATELIMIT_TESTACTION_WINDOW_SEC", "-5")

		require.Equal(t, def, ParseBudgetFromEnv("TESTACTION", def))
	})
}
