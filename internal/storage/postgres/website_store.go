// Package postgres provides the Postgres-backed website store.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/website-archiver/internal/archive"
)

// DefaultTable is the table websites are kept in.
const DefaultTable = "Website"

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// ErrWebsiteNotFound is returned when an update matches no row.
var ErrWebsiteNotFound = errors.New("website not found")

// Config controls the Postgres connection pool used for website rows.
type Config struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pool interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Ping(ctx context.Context) error
	Close()
}

// WebsiteStore reads and updates website rows. Columns are "id", "url" and "isUrlValid".
type WebsiteStore struct {
	pool  pool
	table string
}

// NewWebsiteStore connects a pool using cfg.
func NewWebsiteStore(ctx context.Context, cfg Config) (*WebsiteStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database.url is required")
	}
	table, err := tableName(cfg.Table)
	if err != nil {
		return nil, err
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := p.Ping(ctx); err != nil {
		p.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &WebsiteStore{pool: p, table: table}, nil
}

// NewWebsiteStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewWebsiteStoreWithPool(p pool, table string) (*WebsiteStore, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	name, err := tableName(table)
	if err != nil {
		return nil, err
	}
	return &WebsiteStore{pool: p, table: name}, nil
}

func tableName(table string) (string, error) {
	if table == "" {
		table = DefaultTable
	}
	if !validTableName.MatchString(table) {
		return "", fmt.Errorf("invalid table name %q", table)
	}
	return table, nil
}

// Close releases the underlying pool resources.
func (s *WebsiteStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// Ping checks the database connection.
func (s *WebsiteStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// ListWebsites returns every website ordered by id.
func (s *WebsiteStore) ListWebsites(ctx context.Context) ([]archive.Website, error) {
	query := fmt.Sprintf(`SELECT "id"::text, "url", "isUrlValid" FROM %q ORDER BY "id"`, s.table)
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list websites: %w", err)
	}
	sites, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (archive.Website, error) {
		var w archive.Website
		err := row.Scan(&w.ID, &w.URL, &w.IsValid)
		return w, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan websites: %w", err)
	}
	return sites, nil
}

// UpdateStatus stores the liveness flag of one website. The id is bound as text and the server
// infers the parameter from the column type, so the lookup stays on the primary key index.
func (s *WebsiteStore) UpdateStatus(ctx context.Context, id string, isValid bool) error {
	query := fmt.Sprintf(`UPDATE %q SET "isUrlValid" = $1 WHERE "id" = $2`, s.table)
	tag, err := s.pool.Exec(ctx, query, isValid, id)
	if err != nil {
		return fmt.Errorf("update website %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update website %s: %w", id, ErrWebsiteNotFound)
	}
	return nil
}
