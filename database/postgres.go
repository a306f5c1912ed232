package database

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore keeps state in a shared Postgres table, for kiosk or fleet
// deployments where several devices report through one database. Open wraps
// it in a DeviceStore so each device keeps its own keys.
type PostgresStore struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

var _ Store = (*PostgresStore)(nil)

const connectAttempts = 10

func OpenPostgres(ctx context.Context, dbURL string) (*PostgresStore, error) {
	var pool *pgxpool.Pool
	var err error

	for i := 1; i <= connectAttempts; i++ {
		pool, err = connectPostgres(ctx, dbURL)
		if err == nil {
			break
		}

		log.Printf("Attempt %d: Could not connect to Postgres. Retrying in 2s...\n", i)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(2 * time.Second):
		}
	}

	if err != nil {
		return nil, fmt.Errorf("connect to postgres after %d attempts: %w", connectAttempts, err)
	}
	log.Println("Connected to Postgres")

	exec := func(ctx context.Context, query string) error {
		_, err := pool.Exec(ctx, query)
		return err
	}
	if err := runMigrations(ctx, exec, postgresMigrations); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStore{pool: pool, now: time.Now}, nil
}

func connectPostgres(ctx context.Context, dbURL string) (*pgxpool.Pool, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		return nil, err
	}
	// Try to ping the DB to ensure it's ready
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

func (p *PostgresStore) Get(ctx context.Context, key string) (string, error) {
	var value string
	var expiresAt *time.Time
	err := p.pool.QueryRow(ctx, "SELECT value, expires_at FROM client_state WHERE key = $1", key).Scan(&value, &expiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("get %s: %w", key, err)
	}

	if expiresAt != nil && !p.now().Before(*expiresAt) {
		if _, err := p.pool.Exec(ctx, "DELETE FROM client_state WHERE key = $1", key); err != nil {
			return "", fmt.Errorf("expire %s: %w", key, err)
		}
		return "", ErrNotFound
	}
	return value, nil
}

func (p *PostgresStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	query := `INSERT INTO client_state (key, value, expires_at, updated_at) VALUES ($1, $2, $3, NOW())
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, expires_at = EXCLUDED.expires_at, updated_at = NOW()`
	if _, err := p.pool.Exec(ctx, query, key, value, expiry(p.now(), ttl)); err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

func (p *PostgresStore) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if _, err := p.pool.Exec(ctx, "DELETE FROM client_state WHERE key = ANY($1)", keys); err != nil {
		return fmt.Errorf("delete: %w", err)
	}
	return nil
}

func (p *PostgresStore) Close() error {
	p.pool.Close()
	return nil
}
