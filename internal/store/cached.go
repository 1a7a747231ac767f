package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/Checker-Finance/navi/internal/metrics"
	"github.com/Checker-Finance/navi/internal/navi"
	"github.com/Checker-Finance/navi/pkg/model"
)

const defaultTradeTTL = 10 * time.Minute

// Cached is a Redis read-through, write-through layer in front of a durable store.
// Writes always go to the backing store first, so its version check stays authoritative.
type Cached struct {
	backing navi.Store
	redis   *redis.Client
	ttl     time.Duration
	logger  *zap.Logger
}

// NewCached wraps backing with a Redis cache. A ttl of zero uses the default.
func NewCached(backing navi.Store, rdb *redis.Client, ttl time.Duration, logger *zap.Logger) *Cached {
	if logger == nil {
		logger = zap.NewNop()
	}
	if ttl <= 0 {
		ttl = defaultTradeTTL
	}
	return &Cached{backing: backing, redis: rdb, ttl: ttl, logger: logger}
}

func tradeKey(id string) string {
	return fmt.Sprintf("navi:trade:%s", id)
}

func (s *Cached) LoadTrade(ctx context.Context, id string) (*model.Trade, error) {
	data, err := s.redis.Get(ctx, tradeKey(id)).Bytes()
	switch {
	case err == nil:
		var t model.Trade
		if jerr := json.Unmarshal(data, &t); jerr == nil {
			metrics.IncCache("hit")
			return &t, nil
		}
		s.logger.Warn("store.cache.decode_failed", zap.String("trade_id", id))
	case errors.Is(err, redis.Nil):
	default:
		metrics.IncError("cache", "get_failed")
		s.logger.Warn("store.cache.get_failed", zap.String("trade_id", id), zap.Error(err))
	}
	metrics.IncCache("miss")

	t, err := s.backing.LoadTrade(ctx, id)
	if err != nil || t == nil {
		return t, err
	}
	s.put(ctx, t)
	return t, nil
}

func (s *Cached) SaveTrade(ctx context.Context, t *model.Trade) (*model.Trade, error) {
	saved, err := s.backing.SaveTrade(ctx, t)
	if err != nil {
		if errors.Is(err, navi.ErrConflict) {
			// The cached copy is stale; force the next read to the backing store.
			s.evict(ctx, t.ID)
		}
		return nil, err
	}
	s.put(ctx, saved)
	return saved, nil
}

func (s *Cached) LoadContacts(ctx context.Context, tradeID string) ([]model.Contact, error) {
	return s.backing.LoadContacts(ctx, tradeID)
}

func (s *Cached) SaveContacts(ctx context.Context, tradeID string, contacts []model.Contact) error {
	return s.backing.SaveContacts(ctx, tradeID, contacts)
}

func (s *Cached) ListTrades(ctx context.Context, userID string) ([]model.Trade, error) {
	return s.backing.ListTrades(ctx, userID)
}

func (s *Cached) HealthCheck(ctx context.Context) error {
	if s.redis == nil {
		return fmt.Errorf("redis not initialized")
	}
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	if hc, ok := s.backing.(interface{ HealthCheck(context.Context) error }); ok {
		return hc.HealthCheck(ctx)
	}
	return nil
}

func (s *Cached) Close() error {
	if c, ok := s.backing.(interface{ Close() error }); ok {
		_ = c.Close()
	}
	if s.redis != nil {
		return s.redis.Close()
	}
	return nil
}

func (s *Cached) put(ctx context.Context, t *model.Trade) {
	data, err := json.Marshal(t)
	if err != nil {
		return
	}
	if err := s.redis.Set(ctx, tradeKey(t.ID), data, s.ttl).Err(); err != nil {
		metrics.IncError("cache", "set_failed")
		s.logger.Warn("store.cache.set_failed", zap.String("trade_id", t.ID), zap.Error(err))
	}
}

func (s *Cached) evict(ctx context.Context, id string) {
	if err := s.redis.Del(ctx, tradeKey(id)).Err(); err != nil {
		s.logger.Warn("store.cache.evict_failed", zap.String("trade_id", id), zap.Error(err))
	}
}
