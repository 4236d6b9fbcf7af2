package aggregation

import (
	"context"
	"errors"
	"net/url"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"horizon/internal/domain/user"
)

var (
	ErrCacheMiss = errors.New("cache miss")

	aggCacheLookups, _ = aggMeter.Int64Counter("aggregation.cache.lookups", metric.WithDescription("View cache lookups by result"))
)

// noSelection stands in for an absent account id. QueryEscape never emits
// a bare '*', so it cannot collide with a real id.
const noSelection = "*"

// ViewStore persists aggregation results between requests.
type ViewStore interface {
	// Load returns ErrCacheMiss when nothing is stored under key.
	Load(ctx context.Context, key string) (*Result, error)
	Save(ctx context.Context, key string, result *Result) error
}

// NoStore never stores anything.
type NoStore struct{}

func (NoStore) Load(context.Context, string) (*Result, error) { return nil, ErrCacheMiss }
func (NoStore) Save(context.Context, string, *Result) error   { return nil }

// CacheKey builds the cache key for a user and an optional selected account.
func CacheKey(userID, accountID string) string {
	if accountID == "" {
		return url.QueryEscape(userID) + ":" + noSelection
	}
	return url.QueryEscape(userID) + ":" + url.QueryEscape(accountID)
}

// Aggregator is satisfied by *Service.
type Aggregator interface {
	AggregateForUser(ctx context.Context, userID, selectedAccountID string) (*Result, error)
}

// CachedService fronts an Aggregator with a ViewStore. A stored view is only
// served when it is no older than the caller's maxAge, and only results
// without degradations are stored. Concurrent misses for the same key share
// one upstream aggregation.
type CachedService struct {
	inner    Aggregator
	store    ViewStore
	identity user.Provider
	group    singleflight.Group
	logger   *zap.Logger
	now      func() time.Time

	mu      sync.Mutex
	flights map[string]*flight
}

// flight is the context a shared aggregation runs on. It belongs to no
// single caller and is cancelled once every waiter has gone.
type flight struct {
	ctx     context.Context
	cancel  context.CancelFunc
	waiters int
}

// NewCachedService wraps inner with store. A nil store disables caching.
func NewCachedService(inner Aggregator, identity user.Provider, store ViewStore, logger *zap.Logger) *CachedService {
	if store == nil {
		store = NoStore{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachedService{
		inner:    inner,
		store:    store,
		identity: identity,
		logger:   logger,
		now:      time.Now,
		flights:  make(map[string]*flight),
	}
}

// AggregateForCaller resolves the caller and serves their view.
func (c *CachedService) AggregateForCaller(ctx context.Context, selectedAccountID string, maxAge time.Duration) (*Result, error) {
	userID, err := resolveCaller(ctx, c.identity)
	if err != nil {
		return nil, err
	}
	return c.AggregateForUser(ctx, userID, selectedAccountID, maxAge)
}

// AggregateForUser serves a cached view no older than maxAge, or aggregates
// afresh. maxAge <= 0 always aggregates.
func (c *CachedService) AggregateForUser(ctx context.Context, userID, selectedAccountID string, maxAge time.Duration) (*Result, error) {
	key := CacheKey(userID, selectedAccountID)

	if maxAge > 0 {
		if cached, ok := c.lookup(ctx, key, maxAge); ok {
			return cached, nil
		}
	}

	f := c.join(ctx, key)
	defer c.leave(key, f)

	ch := c.group.DoChan(key, func() (any, error) {
		return c.refresh(f.ctx, key, userID, selectedAccountID)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Result), nil
	}
}

// join registers the caller as a waiter on key's flight, starting one if
// none is running. The flight keeps the caller's values but not its
// cancellation.
func (c *CachedService) join(ctx context.Context, key string) *flight {
	c.mu.Lock()
	defer c.mu.Unlock()

	f, ok := c.flights[key]
	if !ok {
		fctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		f = &flight{ctx: fctx, cancel: cancel}
		c.flights[key] = f
	}
	f.waiters++
	return f
}

func (c *CachedService) leave(key string, f *flight) {
	c.mu.Lock()
	defer c.mu.Unlock()

	f.waiters--
	if f.waiters > 0 {
		return
	}
	f.cancel()
	if c.flights[key] == f {
		delete(c.flights, key)
	}
}

// Refresh aggregates and stores the view regardless of what is cached.
func (c *CachedService) Refresh(ctx context.Context, userID, selectedAccountID string) (*Result, error) {
	return c.refresh(ctx, CacheKey(userID, selectedAccountID), userID, selectedAccountID)
}

func (c *CachedService) lookup(ctx context.Context, key string, maxAge time.Duration) (*Result, bool) {
	cached, err := c.store.Load(ctx, key)
	switch {
	case errors.Is(err, ErrCacheMiss):
		c.count(ctx, "miss")
		return nil, false
	case err != nil:
		c.logger.Warn("view cache load failed", zap.String("key", key), zap.Error(err))
		c.count(ctx, "error")
		return nil, false
	case cached == nil || cached.View == nil:
		c.count(ctx, "miss")
		return nil, false
	case cached.View.Age(c.now()) > maxAge:
		c.count(ctx, "stale")
		return nil, false
	}
	c.count(ctx, "hit")
	return cached, true
}

func (c *CachedService) refresh(ctx context.Context, key, userID, selectedAccountID string) (*Result, error) {
	result, err := c.inner.AggregateForUser(ctx, userID, selectedAccountID)
	if err != nil {
		return nil, err
	}
	if !result.Degraded() {
		if err := c.store.Save(ctx, key, result); err != nil {
			c.logger.Warn("view cache save failed", zap.String("key", key), zap.Error(err))
		}
	}
	return result, nil
}

func (c *CachedService) count(ctx context.Context, outcome string) {
	aggCacheLookups.Add(ctx, 1, metric.WithAttributes(attribute.String("result", outcome)))
}
