package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/Checker-Finance/navi/internal/metrics"
	"github.com/Checker-Finance/navi/pkg/cache"
)

// Querier is the part of *pgxpool.Pool used for lookups.
type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PGDirectory resolves company display names from navi.users, caching hits and misses.
type PGDirectory struct {
	db     Querier
	cache  *cache.TTL[string]
	logger *zap.Logger
}

func NewPGDirectory(db Querier, ttl time.Duration, logger *zap.Logger) *PGDirectory {
	if logger == nil {
		logger = zap.NewNop()
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &PGDirectory{db: db, cache: cache.New[string](ttl), logger: logger}
}

// CompanyName returns "" for unknown users.
func (d *PGDirectory) CompanyName(ctx context.Context, userID string) (string, error) {
	if userID == "" {
		return "", nil
	}
	if name, ok := d.cache.Get(userID); ok {
		metrics.IncCache("directory_hit")
		return name, nil
	}
	metrics.IncCache("directory_miss")

	var name string
	err := d.db.QueryRow(ctx, `
		SELECT company_name
		FROM navi.users
		WHERE id = $1;
	`, userID).Scan(&name)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		name = ""
	case err != nil:
		d.logger.Warn("identity.lookup_failed", zap.String("user_id", userID), zap.Error(err))
		return "", fmt.Errorf("lookup company for %s: %w", userID, err)
	}

	d.cache.Put(userID, name)
	return name, nil
}

// Forget drops a cached name, e.g. after a profile edit.
func (d *PGDirectory) Forget(userID string) {
	d.cache.Bust(userID)
}

// StartCleaner evicts expired names every interval until stop is closed.
func (d *PGDirectory) StartCleaner(interval time.Duration, stop <-chan struct{}) {
	d.cache.StartCleaner(interval, stop)
}
