package snapshot

import (
	"context"
	"fmt"
	"time"

	"github.com/pagekeep/pagekeep/internal/cache"
)

// QuotaDecision is the outcome of a user quota check.
type QuotaDecision struct {
	Allowed   bool
	Remaining int
}

// QuotaGate limits snapshot submissions per user per window. It is a fixed
// window counter: a single atomic increment whose expiry is set on the first
// count, trading boundary bursts for cheap race-free accounting.
type QuotaGate struct {
	cache  cache.Provider
	limit  int
	window time.Duration
}

// NewQuotaGate builds a gate over the shared cache.
func NewQuotaGate(c cache.Provider, limit int, window time.Duration) *QuotaGate {
	return &QuotaGate{cache: c, limit: limit, window: window}
}

// Allow consumes one quota slot for userID and reports whether the submission
// is within the limit.
func (g *QuotaGate) Allow(ctx context.Context, userID string) (QuotaDecision, error) {
	count, err := g.cache.Incr(ctx, "quota:"+userID, g.window)
	if err != nil {
		return QuotaDecision{}, fmt.Errorf("quota incr for user %s: %w", userID, err)
	}
	remaining := g.limit - int(count)
	if remaining < 0 {
		remaining = 0
	}
	return QuotaDecision{
		Allowed:   count <= int64(g.limit),
		Remaining: remaining,
	}, nil
}
