package indexer

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"MiniMarket/internal/events"
	"MiniMarket/internal/store"
)

//go:embed schema.sql
var schema string

const (
	pingTimeout  = 1 * time.Second
	queryTimeout = 3 * time.Second

	pgFKCode             = "23503"
	pgIntegrityClass     = "23"
	pgDataExceptionClass = "22"
)

var (
	// ErrPermanent marks an envelope that can never be projected. The
	// consumer logs and skips it instead of retrying.
	ErrPermanent      = errors.New("envelope cannot be projected")
	ErrOrphanPurchase = fmt.Errorf("%w: purchase references unknown product", ErrPermanent)
)

// PostgresStore projects store notifications into a read model. It is an
// observer: nothing it writes flows back into the store.
type PostgresStore struct {
	db *pgxpool.Pool
}

func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	cfg.MaxConns = 8
	cfg.MinConns = 1
	cfg.HealthCheckPeriod = 30 * time.Second

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	return withTimeout(ctx, queryTimeout, func(ctx context.Context) error {
		_, err := s.db.Exec(ctx, schema)
		return err
	})
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return withTimeout(ctx, pingTimeout, func(ctx context.Context) error {
		return s.db.Ping(ctx)
	})
}

// Apply records env and updates the projection in one transaction. An
// envelope that was already applied is skipped, so redelivery is harmless.
func (s *PostgresStore) Apply(ctx context.Context, env events.Envelope) error {
	ev, err := events.Decode(env)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPermanent, err)
	}

	return withTimeout(ctx, queryTimeout, func(ctx context.Context) error {
		tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback(ctx) }()

		ct, err := tx.Exec(ctx, `
			INSERT INTO store_events (event_id, deployment_id, seq, event_type, product_id, occurred_at, producer, payload)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (event_id) DO NOTHING
		`, env.EventID, env.Deployment, env.Seq, env.EventType, env.ProductID, env.OccurredAt, env.Producer, []byte(env.Payload))
		if err != nil {
			return projectionError(err)
		}
		if ct.RowsAffected() == 0 {
			return nil
		}

		if err := project(ctx, tx, env.Deployment, ev, env.OccurredAt); err != nil {
			return projectionError(err)
		}
		return tx.Commit(ctx)
	})
}

// project applies ev to the read model of one store deployment. Ids and
// names are only unique within a deployment, since a restarted store starts
// counting again.
func project(ctx context.Context, tx pgx.Tx, deployment string, ev store.Event, at time.Time) error {
	var err error
	switch e := ev.(type) {
	case store.AddProductEvent:
		_, err = tx.Exec(ctx, `
			INSERT INTO products (deployment_id, id, name, price, quantity, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, deployment, uint64(e.ID), e.Name, e.Price, e.Quantity, at)
	case store.SetProductQuantityEvent:
		_, err = tx.Exec(ctx, `
			UPDATE products SET quantity = $3, updated_at = $4 WHERE deployment_id = $1 AND id = $2
		`, deployment, uint64(e.ID), e.Quantity, at)
	case store.BuyProductEvent:
		_, err = tx.Exec(ctx, `
			UPDATE products SET quantity = quantity - 1, updated_at = $3 WHERE deployment_id = $1 AND id = $2
		`, deployment, uint64(e.ID), at)
		if err == nil {
			_, err = tx.Exec(ctx, `
				INSERT INTO purchases (deployment_id, product_id, buyer, state, purchased_at_block, updated_at)
				VALUES ($1, $2, $3, $4, $5, $6)
				ON CONFLICT (deployment_id, product_id, buyer)
				DO UPDATE SET state = EXCLUDED.state, purchased_at_block = EXCLUDED.purchased_at_block, updated_at = EXCLUDED.updated_at
			`, deployment, uint64(e.ID), string(e.Buyer), store.Active.String(), e.Block, at)
		}
	case store.ReturnProductEvent:
		_, err = tx.Exec(ctx, `
			UPDATE products SET quantity = quantity + 1, updated_at = $3 WHERE deployment_id = $1 AND id = $2
		`, deployment, uint64(e.ID), at)
		if err == nil {
			_, err = tx.Exec(ctx, `
				UPDATE purchases SET state = $4, updated_at = $5
				WHERE deployment_id = $1 AND product_id = $2 AND buyer = $3
			`, deployment, uint64(e.ID), string(e.Buyer), store.Refunded.String(), at)
		}
	default:
		err = fmt.Errorf("unhandled event %T", ev)
	}
	return err
}

// LatestDeployment is the deployment that produced the most recent event,
// or "" when nothing was applied yet.
func (s *PostgresStore) LatestDeployment(ctx context.Context) (string, error) {
	var dep string
	err := withTimeout(ctx, queryTimeout, func(ctx context.Context) error {
		err := s.db.QueryRow(ctx, `
			SELECT deployment_id
			FROM store_events
			ORDER BY occurred_at DESC
			LIMIT 1
		`).Scan(&dep)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		return err
	})
	return dep, err
}

// Products reads the projected catalog of one deployment ordered by id.
func (s *PostgresStore) Products(ctx context.Context, deployment string) ([]store.Product, error) {
	var out []store.Product

	err := withTimeout(ctx, queryTimeout, func(ctx context.Context) error {
		rows, err := s.db.Query(ctx, `
			SELECT id, name, price, quantity
			FROM products
			WHERE deployment_id = $1
			ORDER BY id ASC
		`, deployment)
		if err != nil {
			return err
		}
		defer rows.Close()

		out = make([]store.Product, 0, 16)
		for rows.Next() {
			var (
				id uint64
				p  store.Product
			)
			if err := rows.Scan(&id, &p.Name, &p.Price, &p.Quantity); err != nil {
				return err
			}
			p.ID = store.ProductID(id)
			out = append(out, p)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func withTimeout(parent context.Context, d time.Duration, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(parent, d)
	defer cancel()
	return fn(ctx)
}

// projectionError marks constraint and data errors as permanent. Replaying
// the same envelope would fail the same way, so retrying would only stall the
// partition.
func projectionError(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch {
	case pgErr.Code == pgFKCode:
		return fmt.Errorf("%w: %v", ErrOrphanPurchase, err)
	case strings.HasPrefix(pgErr.Code, pgIntegrityClass), strings.HasPrefix(pgErr.Code, pgDataExceptionClass):
		return fmt.Errorf("%w: %v", ErrPermanent, err)
	default:
		return err
	}
}
