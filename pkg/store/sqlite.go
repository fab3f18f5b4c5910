package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/xhad/lore/internal/types"
)

// SQLiteStore keeps lore records in a single SQLite file. Metadata filters
// run in SQL; similarity is computed in Go over the filtered rows, which is
// adequate for corpora of a few hundred thousand entries.
type SQLiteStore struct {
	db         *sql.DB
	table      string
	dimensions int
}

// NewSQLiteStore opens (creating if needed) the database at path. The
// special path ":memory:" gives a private in-memory database.
func NewSQLiteStore(path, table string, dimensions int) (*SQLiteStore, error) {
	if table == "" {
		table = "lore_entries"
	}
	if !identPattern.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}

	dsn := path
	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
		dsn = path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if path == ":memory:" {
		// every pooled connection would otherwise see its own empty database
		db.SetMaxOpenConns(1)
	}

	return &SQLiteStore{db: db, table: table, dimensions: dimensions}, nil
}

func (s *SQLiteStore) Connect(ctx context.Context) error {
	schema := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			content TEXT NOT NULL,
			metadata TEXT NOT NULL,
			embedding BLOB NOT NULL
		)`, s.table),
	}
	for _, field := range indexedFields {
		schema = append(schema, fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_%s_idx ON %s (%s)`,
			s.table, field, s.table, fieldExpr(field, nil)))
	}
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to initialize schema: %w", err)
		}
	}
	return nil
}

// Upsert writes the whole batch in one transaction.
func (s *SQLiteStore) Upsert(ctx context.Context, records []types.Record) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(`
		INSERT INTO %s (id, content, metadata, embedding) VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			content = excluded.content,
			metadata = excluded.metadata,
			embedding = excluded.embedding`, s.table))
	if err != nil {
		return fmt.Errorf("failed to prepare upsert: %w", err)
	}
	defer stmt.Close()

	for _, r := range records {
		if s.dimensions > 0 && len(r.Vector) != s.dimensions {
			return fmt.Errorf("store: record %s has %d dimensions, expected %d", r.ID, len(r.Vector), s.dimensions)
		}
		metadata, err := json.Marshal(r.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal metadata: %w", err)
		}
		if _, err := stmt.ExecContext(ctx, r.ID, r.Text, string(metadata), encodeVector(r.Vector)); err != nil {
			return fmt.Errorf("failed to upsert record %s: %w", r.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Nearest(ctx context.Context, vector []float32, k int, filter types.Filter) ([]types.Hit, error) {
	if k <= 0 {
		return nil, nil
	}

	query, args := s.nearestQuery(filter)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query records: %w", err)
	}
	defer rows.Close()

	var hits []types.Hit
	for rows.Next() {
		var (
			h        types.Hit
			metadata string
			blob     []byte
		)
		if err := rows.Scan(&h.ID, &h.Text, &metadata, &blob); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		if err := json.Unmarshal([]byte(metadata), &h.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata for %s: %w", h.ID, err)
		}
		vec, err := decodeVector(blob)
		if err != nil {
			return nil, err
		}
		if h.Distance, err = CosineDistance(vector, vec); err != nil {
			return nil, err
		}
		hits = append(hits, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read rows: %w", err)
	}

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Distance < hits[j].Distance })
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

func (s *SQLiteStore) GetByField(ctx context.Context, field, value string) (*types.Record, error) {
	query, args := s.lookupQuery(field, value)

	var (
		r        types.Record
		metadata string
	)
	err := s.db.QueryRowContext(ctx, query, args...).Scan(&r.ID, &r.Text, &metadata)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up %s: %w", field, err)
	}
	if err := json.Unmarshal([]byte(metadata), &r.Metadata); err != nil {
		return nil, fmt.Errorf("failed to unmarshal metadata for %s: %w", r.ID, err)
	}
	return &r, nil
}

func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, fmt.Sprintf("SELECT count(*) FROM %s", s.table)).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count records: %w", err)
	}
	return n, nil
}

func (s *SQLiteStore) Reset(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %s", s.table)); err != nil {
		return fmt.Errorf("failed to drop table: %w", err)
	}
	return s.Connect(ctx)
}

func (s *SQLiteStore) Close() {
	_ = s.db.Close()
}

func (s *SQLiteStore) nearestQuery(filter types.Filter) (string, []any) {
	var args []any
	query := fmt.Sprintf("SELECT id, content, metadata, embedding FROM %s", s.table)
	if where := jsonFilterClause(filter, &args); where != "" {
		query += " WHERE " + where
	}
	return query + " ORDER BY rowid", args
}

func (s *SQLiteStore) lookupQuery(field, value string) (string, []any) {
	var args []any
	expr := fieldExpr(field, &args)
	query := fmt.Sprintf(`SELECT id, content, metadata FROM %s WHERE %s = ? ORDER BY rowid LIMIT 1`, s.table, expr)
	return query, append(args, value)
}

func jsonFilterClause(filter types.Filter, args *[]any) string {
	if len(filter) == 0 {
		return ""
	}
	keys := make([]string, 0, len(filter))
	for k := range filter {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	conds := make([]string, 0, len(keys))
	for _, k := range keys {
		conds = append(conds, fieldExpr(k, args)+" = ?")
		*args = append(*args, filter[k])
	}
	return strings.Join(conds, " AND ")
}

// indexedFields get expression indexes. Queries on them must spell the
// path as the same literal for SQLite to use the index.
var indexedFields = []string{"title", "category"}

// fieldExpr returns the SQL expression reading field from the metadata
// column. Indexed fields use a literal path; any other field binds its path
// as a parameter appended to args.
func fieldExpr(field string, args *[]any) string {
	for _, f := range indexedFields {
		if f == field {
			return fmt.Sprintf("json_extract(metadata, '$.%s')", field)
		}
	}
	*args = append(*args, jsonPath(field))
	return "json_extract(metadata, ?)"
}

func jsonPath(field string) string {
	return `$."` + strings.ReplaceAll(field, `"`, `\"`) + `"`
}

var _ types.VectorIndex = (*SQLiteStore)(nil)
