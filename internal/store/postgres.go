package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/Checker-Finance/navi/internal/metrics"
	"github.com/Checker-Finance/navi/internal/navi"
	"github.com/Checker-Finance/navi/pkg/model"
)

// DB is the subset of *pgxpool.Pool used by Postgres.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
}

// Postgres stores each trade as a jsonb document keyed by id, with the party
// ids and version kept in columns for lookup and optimistic locking.
type Postgres struct {
	db     DB
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewPostgres wraps an open pool.
func NewPostgres(pool *pgxpool.Pool, logger *zap.Logger) *Postgres {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Postgres{db: pool, pool: pool, logger: logger}
}

func (s *Postgres) LoadTrade(ctx context.Context, id string) (*model.Trade, error) {
	defer metrics.ObserveDuration(metrics.StoreDuration, time.Now(), "postgres", "load_trade")

	const q = `
		SELECT document, version
		FROM navi.trades
		WHERE id = $1;
	`
	var (
		doc     []byte
		version int64
	)
	if err := s.db.QueryRow(ctx, q, id).Scan(&doc, &version); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("LoadTrade scan failed: %w", err)
	}

	var t model.Trade
	if err := json.Unmarshal(doc, &t); err != nil {
		return nil, fmt.Errorf("LoadTrade decode %s: %w", id, err)
	}
	t.Version = version
	return &t, nil
}

// SaveTrade inserts at version 0 and otherwise updates only when the stored
// version still matches.
func (s *Postgres) SaveTrade(ctx context.Context, t *model.Trade) (*model.Trade, error) {
	defer metrics.ObserveDuration(metrics.StoreDuration, time.Now(), "postgres", "save_trade")

	saved := t.Clone()
	saved.Version = t.Version + 1
	doc, err := json.Marshal(saved)
	if err != nil {
		return nil, fmt.Errorf("SaveTrade encode %s: %w", t.ID, err)
	}

	var tag pgconn.CommandTag
	if t.Version == 0 {
		tag, err = s.db.Exec(ctx, `
			INSERT INTO navi.trades (
				id, navi_id, seller_user_id, buyer_user_id,
				status, document, version, created_at, updated_at
			)
			VALUES ($1, $2, $3, $4, $5, $6, 1, $7, $8)
			ON CONFLICT (id) DO NOTHING;
		`, saved.ID, saved.NaviID, saved.Seller.UserID, saved.Buyer.UserID,
			string(saved.Status), doc, saved.CreatedAt, saved.UpdatedAt)
	} else {
		tag, err = s.db.Exec(ctx, `
			UPDATE navi.trades
			SET status = $3,
				document = $4,
				version = version + 1,
				updated_at = $5
			WHERE id = $1 AND version = $2;
		`, saved.ID, t.Version, string(saved.Status), doc, saved.UpdatedAt)
	}
	if err != nil {
		s.logger.Error("store.pg.save_trade_failed", zap.String("trade_id", t.ID), zap.Error(err))
		return nil, fmt.Errorf("SaveTrade %s: %w", t.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return nil, fmt.Errorf("trade %s changed since version %d: %w", t.ID, t.Version, navi.ErrConflict)
	}
	return saved, nil
}

func (s *Postgres) LoadContacts(ctx context.Context, tradeID string) ([]model.Contact, error) {
	defer metrics.ObserveDuration(metrics.StoreDuration, time.Now(), "postgres", "load_contacts")

	rows, err := s.db.Query(ctx, `
		SELECT id, name, created_at
		FROM navi.trade_contacts
		WHERE trade_id = $1
		ORDER BY created_at, id;
	`, tradeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	contacts := []model.Contact{}
	for rows.Next() {
		var c model.Contact
		if err := rows.Scan(&c.ID, &c.Name, &c.CreatedAt); err != nil {
			return nil, err
		}
		contacts = append(contacts, c)
	}
	return contacts, rows.Err()
}

// SaveContacts inserts contacts not yet stored. Rows are never updated or deleted.
func (s *Postgres) SaveContacts(ctx context.Context, tradeID string, contacts []model.Contact) error {
	defer metrics.ObserveDuration(metrics.StoreDuration, time.Now(), "postgres", "save_contacts")

	for _, c := range contacts {
		_, err := s.db.Exec(ctx, `
			INSERT INTO navi.trade_contacts (id, trade_id, name, created_at)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (id) DO NOTHING;
		`, c.ID, tradeID, c.Name, c.CreatedAt)
		if err != nil {
			s.logger.Error("store.pg.insert_contact_failed",
				zap.String("trade_id", tradeID),
				zap.String("contact_id", c.ID),
				zap.Error(err))
			return err
		}
	}
	return nil
}

func (s *Postgres) ListTrades(ctx context.Context, userID string) ([]model.Trade, error) {
	defer metrics.ObserveDuration(metrics.StoreDuration, time.Now(), "postgres", "list_trades")

	rows, err := s.db.Query(ctx, `
		SELECT document, version
		FROM navi.trades
		WHERE seller_user_id = $1 OR buyer_user_id = $1
		ORDER BY created_at DESC, id;
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var trades []model.Trade
	for rows.Next() {
		var (
			doc     []byte
			version int64
		)
		if err := rows.Scan(&doc, &version); err != nil {
			return nil, err
		}
		var t model.Trade
		if err := json.Unmarshal(doc, &t); err != nil {
			return nil, fmt.Errorf("ListTrades decode: %w", err)
		}
		t.Version = version
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

func (s *Postgres) HealthCheck(ctx context.Context) error {
	if s.db == nil {
		return fmt.Errorf("postgres not initialized")
	}
	if err := s.db.Ping(ctx); err != nil {
		return fmt.Errorf("postgres ping failed: %w", err)
	}
	return nil
}

func (s *Postgres) Close() error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}
