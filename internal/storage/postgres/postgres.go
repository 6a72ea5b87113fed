package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"regexp"
	"time"

	_ "github.com/lib/pq"

	"github.com/podfs/podfs-go/internal/storage/types"
)

var tableName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// PostgresBackend implements types.Backend using PostgreSQL
type PostgresBackend struct {
	db        *sql.DB
	table     string // Table name for storing objects
	namespace string // Lets several pods share one table
}

var _ types.Backend = (*PostgresBackend)(nil)

// NewPostgresBackend creates a new PostgreSQL backend
func NewPostgresBackend(connStr, table, namespace string) (*PostgresBackend, error) {
	if !tableName.MatchString(table) {
		return nil, fmt.Errorf("invalid PostgreSQL table name %q", table)
	}

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}

	backend := &PostgresBackend{
		db:        db,
		table:     table,
		namespace: namespace,
	}

	if err := backend.initSchema(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return backend, nil
}

// initSchema creates the objects table
func (p *PostgresBackend) initSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %[1]s (
			namespace VARCHAR(255) NOT NULL,
			path VARCHAR(4096) NOT NULL,
			data BYTEA,
			content_type VARCHAR(255) NOT NULL DEFAULT '',
			mtime TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (namespace, path)
		);
		CREATE INDEX IF NOT EXISTS idx_%[1]s_prefix ON %[1]s(path text_pattern_ops);
	`, p.table)

	_, err := p.db.ExecContext(ctx, query)
	return err
}

// Read reads an object
func (p *PostgresBackend) Read(ctx context.Context, path string) (*types.Object, error) {
	query := fmt.Sprintf("SELECT data, content_type, mtime FROM %s WHERE namespace = $1 AND path = $2", p.table)
	obj := &types.Object{Path: path}
	err := p.db.QueryRowContext(ctx, query, p.namespace, path).Scan(&obj.Data, &obj.ContentType, &obj.Mtime)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("object %s not found: %w", path, os.ErrNotExist)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read object: %w", err)
	}
	return obj, nil
}

// Write upserts an object
func (p *PostgresBackend) Write(ctx context.Context, path string, data []byte, contentType string) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (namespace, path, data, content_type, mtime)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (namespace, path)
		DO UPDATE SET
			data = EXCLUDED.data,
			content_type = EXCLUDED.content_type,
			mtime = EXCLUDED.mtime
	`, p.table)

	if data == nil {
		data = []byte{}
	}
	_, err := p.db.ExecContext(ctx, query, p.namespace, path, data, contentType, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to write object: %w", err)
	}
	return nil
}

// Delete deletes an object
func (p *PostgresBackend) Delete(ctx context.Context, path string) error {
	query := fmt.Sprintf("DELETE FROM %s WHERE namespace = $1 AND path = $2", p.table)
	result, err := p.db.ExecContext(ctx, query, p.namespace, path)
	if err != nil {
		return fmt.Errorf("failed to delete object: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return fmt.Errorf("object %s not found: %w", path, os.ErrNotExist)
	}
	return nil
}

// List lists object paths with the given prefix
func (p *PostgresBackend) List(ctx context.Context, prefix string) ([]string, error) {
	query := fmt.Sprintf("SELECT path FROM %s WHERE namespace = $1 AND path LIKE $2 ESCAPE '\\' ORDER BY path", p.table)
	rows, err := p.db.QueryContext(ctx, query, p.namespace, escapeLike(prefix)+"%")
	if err != nil {
		return nil, fmt.Errorf("failed to list objects: %w", err)
	}
	defer rows.Close()

	paths := make([]string, 0)
	for rows.Next() {
		var path string
		if err := rows.Scan(&path); err != nil {
			return nil, err
		}
		paths = append(paths, path)
	}
	return paths, rows.Err()
}

// Exists checks if an object exists
func (p *PostgresBackend) Exists(ctx context.Context, path string) (bool, error) {
	query := fmt.Sprintf("SELECT 1 FROM %s WHERE namespace = $1 AND path = $2 LIMIT 1", p.table)
	var exists int
	err := p.db.QueryRowContext(ctx, query, p.namespace, path).Scan(&exists)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Close closes the database connection
func (p *PostgresBackend) Close() error {
	return p.db.Close()
}

func escapeLike(s string) string {
	out := make([]rune, 0, len(s))
	for _, r := range s {
		if r == '%' || r == '_' || r == '\\' {
			out = append(out, '\\')
		}
		out = append(out, r)
	}
	return string(out)
}
