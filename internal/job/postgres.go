package job

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DefaultTable is the products table read by the sweep.
const DefaultTable = "public.products"

// ErrInvalidTableName is returned when the configured table is not a plain
// (optionally schema-qualified) SQL identifier.
var ErrInvalidTableName = errors.New("invalid table name")

var tableNameRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// DB is the subset of pgxpool.Pool used by PostgresStore.
type DB interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Compile-time checks.
var (
	_ Store = (*PostgresStore)(nil)
	_ DB    = (*pgxpool.Pool)(nil)
)

// PostgresStore implements Store on top of a products table:
//
//	id            bigint primary key
//	video_data    jsonb
//	crawl_status  boolean
//	merge_status  boolean
//	r2_video_url  text
//	processed_at  timestamptz
type PostgresStore struct {
	db DB

	selectPending string
	updateMerged  string
	updateStale   string
}

// OpenPool connects to Postgres and verifies the connection.
func OpenPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

// NewPostgresStore creates a store reading the given table.
// If table is empty, DefaultTable is used.
func NewPostgresStore(db DB, table string) (*PostgresStore, error) {
	if table == "" {
		table = DefaultTable
	}
	if !tableNameRe.MatchString(table) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidTableName, table)
	}
	ident := pgx.Identifier(strings.Split(table, ".")).Sanitize()

	return &PostgresStore{
		db: db,
		selectPending: fmt.Sprintf(`SELECT id, video_data, crawl_status, merge_status
FROM %s
WHERE merge_status = FALSE AND crawl_status = TRUE
ORDER BY id`, ident),
		updateMerged: fmt.Sprintf(`UPDATE %s
SET merge_status = TRUE, r2_video_url = $1, processed_at = NOW()
WHERE id = $2`, ident),
		updateStale: fmt.Sprintf(`UPDATE %s
SET crawl_status = FALSE
WHERE id = $1`, ident),
	}, nil
}

// FetchPending returns the pending jobs ordered by ID.
func (s *PostgresStore) FetchPending(ctx context.Context) ([]*Job, error) {
	rows, err := s.db.Query(ctx, s.selectPending)
	if err != nil {
		return nil, fmt.Errorf("query pending jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*Job
	for rows.Next() {
		var (
			j       Job
			payload []byte
		)
		if err := rows.Scan(&j.ID, &payload, &j.Crawled, &j.Merged); err != nil {
			return nil, fmt.Errorf("scan pending job: %w", err)
		}
		j.Payload = payload
		jobs = append(jobs, &j)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pending jobs: %w", err)
	}

	return jobs, nil
}

// MarkPublished flags the job as merged and records its public URL.
func (s *PostgresStore) MarkPublished(ctx context.Context, id int64, url string) error {
	tag, err := s.db.Exec(ctx, s.updateMerged, url, id)
	if err != nil {
		return fmt.Errorf("mark job %d published: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("mark job %d published: %w", id, ErrJobNotFound)
	}
	return nil
}

// MarkStale clears the crawled flag so the job is re-crawled upstream.
func (s *PostgresStore) MarkStale(ctx context.Context, id int64) error {
	tag, err := s.db.Exec(ctx, s.updateStale, id)
	if err != nil {
		return fmt.Errorf("mark job %d stale: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("mark job %d stale: %w", id, ErrJobNotFound)
	}
	return nil
}
