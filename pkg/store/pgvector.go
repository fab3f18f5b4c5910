package store

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/xhad/lore/internal/types"
)

type VectorStoreConfig struct {
	ConnString string
	TableName  string
	VectorDim  int
}

// PGVectorStore keeps lore records in a Postgres table with a pgvector
// column and answers cosine nearest-neighbour queries with the <=> operator.
type PGVectorStore struct {
	config VectorStoreConfig
	pool   *pgxpool.Pool
}

var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

func NewWithConfig(config VectorStoreConfig) (*PGVectorStore, error) {
	if config.TableName == "" {
		config.TableName = "lore_entries"
	}
	if !identPattern.MatchString(config.TableName) {
		return nil, fmt.Errorf("invalid table name %q", config.TableName)
	}
	if config.VectorDim == 0 {
		config.VectorDim = 768 // Default for nomic-embed-text
	}

	pool, err := pgxpool.New(context.Background(), config.ConnString)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	return &PGVectorStore{
		config: config,
		pool:   pool,
	}, nil
}

// Connect checks connectivity and creates the extension, table and indexes.
func (vs *PGVectorStore) Connect(ctx context.Context) error {
	if err := vs.pool.Ping(ctx); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	// Enable pgvector extension
	if _, err := vs.pool.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		return fmt.Errorf("failed to create vector extension: %w", err)
	}

	createTable := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			content TEXT NOT NULL,
			metadata JSONB NOT NULL DEFAULT '{}'::jsonb,
			embedding vector(%d) NOT NULL
		)`, vs.config.TableName, vs.config.VectorDim)
	if _, err := vs.pool.Exec(ctx, createTable); err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}

	indexes := []string{
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %[1]s_embedding_idx
			ON %[1]s USING ivfflat (embedding vector_cosine_ops) WITH (lists = 100)`, vs.config.TableName),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %[1]s_title_idx ON %[1]s ((metadata->>'title'))`, vs.config.TableName),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %[1]s_category_idx ON %[1]s ((metadata->>'category'))`, vs.config.TableName),
	}
	for _, stmt := range indexes {
		if _, err := vs.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}

	return nil
}

// Upsert writes the whole batch in one transaction.
func (vs *PGVectorStore) Upsert(ctx context.Context, records []types.Record) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := vs.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	stmt := fmt.Sprintf(`
		INSERT INTO %s (id, content, metadata, embedding)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET
			content = EXCLUDED.content,
			metadata = EXCLUDED.metadata,
			embedding = EXCLUDED.embedding`,
		vs.config.TableName)

	batch := &pgx.Batch{}
	for _, r := range records {
		metadata := make(map[string]string, len(r.Metadata))
		for k, v := range r.Metadata {
			metadata[k] = sanitizeUTF8(v)
		}
		batch.Queue(stmt, r.ID, sanitizeUTF8(r.Text), metadata, pgvector.NewVector(r.Vector))
	}

	br := tx.SendBatch(ctx, batch)
	for _, r := range records {
		if _, err := br.Exec(); err != nil {
			br.Close()
			return fmt.Errorf("failed to upsert record %s: %w", r.ID, err)
		}
	}
	if err := br.Close(); err != nil {
		return fmt.Errorf("failed to close batch: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (vs *PGVectorStore) Nearest(ctx context.Context, vector []float32, k int, filter types.Filter) ([]types.Hit, error) {
	if k <= 0 {
		return nil, nil
	}

	args := []any{pgvector.NewVector(vector), k}
	where := filterClause(filter, &args)

	query := fmt.Sprintf(`
		SELECT id, content, metadata, embedding <=> $1 AS distance
		FROM %s%s
		ORDER BY distance
		LIMIT $2`,
		vs.config.TableName, where)

	rows, err := vs.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query records: %w", err)
	}
	defer rows.Close()

	var hits []types.Hit
	for rows.Next() {
		var h types.Hit
		if err := rows.Scan(&h.ID, &h.Text, &h.Metadata, &h.Distance); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		hits = append(hits, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read rows: %w", err)
	}
	return hits, nil
}

func (vs *PGVectorStore) GetByField(ctx context.Context, field, value string) (*types.Record, error) {
	query := fmt.Sprintf(`
		SELECT id, content, metadata
		FROM %s
		WHERE metadata->>$1::text = $2
		LIMIT 1`,
		vs.config.TableName)

	var r types.Record
	err := vs.pool.QueryRow(ctx, query, field, value).Scan(&r.ID, &r.Text, &r.Metadata)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up %s: %w", field, err)
	}
	return &r, nil
}

func (vs *PGVectorStore) Count(ctx context.Context) (int, error) {
	var n int64
	if err := vs.pool.QueryRow(ctx, fmt.Sprintf("SELECT count(*) FROM %s", vs.config.TableName)).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count records: %w", err)
	}
	return int(n), nil
}

func (vs *PGVectorStore) Reset(ctx context.Context) error {
	if _, err := vs.pool.Exec(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %s", vs.config.TableName)); err != nil {
		return fmt.Errorf("failed to drop table: %w", err)
	}
	return vs.Connect(ctx)
}

func (vs *PGVectorStore) Close() {
	if vs.pool != nil {
		vs.pool.Close()
	}
}

// filterClause renders filter as a WHERE clause on JSONB metadata, appending
// keys and values as positional parameters. Keys are sorted so the SQL text is stable.
func filterClause(filter types.Filter, args *[]any) string {
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
		*args = append(*args, k, filter[k])
		n := len(*args)
		conds = append(conds, fmt.Sprintf("metadata->>$%d::text = $%d", n-1, n))
	}
	return "\n\t\tWHERE " + strings.Join(conds, " AND ")
}

func sanitizeUTF8(s string) string {
	if utf8.ValidString(s) {
		return s
	}
	return strings.ToValidUTF8(s, "")
}

var _ types.VectorIndex = (*PGVectorStore)(nil)
