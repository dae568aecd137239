package snapshot

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/pagekeep/pagekeep/internal/cache"
)

// PolitenessDecision is the outcome of a politeness check.
type PolitenessDecision struct {
	Allowed bool
	Wait    time.Duration
}

// PolitenessGate enforces a minimum interval between fetches to the same
// domain, shared across workers through the cache. The read-then-write
// pattern is deliberately not atomic: a narrow race letting two workers
// through is acceptable for a throttle, and the TTL self-heals quiet domains.
type PolitenessGate struct {
	cache  cache.Provider
	window time.Duration
	ttl    time.Duration
	clock  Clock
	logger *zap.Logger
}

// NewPolitenessGate builds a gate over the shared cache.
func NewPolitenessGate(c cache.Provider, window, ttl time.Duration, clock Clock, logger *zap.Logger) *PolitenessGate {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PolitenessGate{
		cache:  c,
		window: window,
		ttl:    ttl,
		clock:  clock,
		logger: logger,
	}
}

func politenessKey(domain string) string {
	return "politeness:" + strings.ToLower(domain)
}

// Check reports whether a fetch to domain is allowed now. When allowed it
// refreshes the domain's timestamp; otherwise it returns the remaining wait.
// Cache failures degrade open: an unreachable cache must not stall archiving.
func (g *PolitenessGate) Check(ctx context.Context, domain string) (PolitenessDecision, error) {
	now := g.clock.Now()
	key := politenessKey(domain)

	raw, found, err := g.cache.Get(ctx, key)
	if err != nil {
		g.logger.Warn("politeness cache read failed, allowing fetch",
			zap.String("domain", domain), zap.Error(err))
		return PolitenessDecision{Allowed: true}, nil
	}
	if found {
		lastMilli, perr := strconv.ParseInt(raw, 10, 64)
		if perr == nil {
			elapsed := now.Sub(time.UnixMilli(lastMilli))
			if elapsed < g.window {
				return PolitenessDecision{Allowed: false, Wait: g.window - elapsed}, nil
			}
		}
	}

	if err := g.MarkFetched(ctx, domain); err != nil {
		return PolitenessDecision{Allowed: true}, fmt.Errorf("refresh politeness entry: %w", err)
	}
	return PolitenessDecision{Allowed: true}, nil
}

// MarkFetched unconditionally refreshes the domain's timestamp. Called after
// a fetch completes, success or failure, to keep the throttle accurate.
func (g *PolitenessGate) MarkFetched(ctx context.Context, domain string) error {
	stamp := strconv.FormatInt(g.clock.Now().UnixMilli(), 10)
	if err := g.cache.Set(ctx, politenessKey(domain), stamp, g.ttl); err != nil {
		return fmt.Errorf("politeness mark %s: %w", domain, err)
	}
	return nil
}
