package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mudler/faqrecall/rag/types"
	"github.com/mudler/xlog"
	"github.com/pgvector/pgvector-go"
)

// PostgresDB stores FAQ records in a single table with one pgvector column per provider.
// Each column carries an HNSW index named after the provider's configured index name.
type PostgresDB struct {
	pool       *pgxpool.Pool
	tableName  string
	dimensions map[types.Provider]int
	indexes    map[types.Provider]string
}

// NewPostgresDBCollection connects to databaseURL and prepares the table.
func NewPostgresDBCollection(ctx context.Context, databaseURL, table string, dimensions map[types.Provider]int, indexes map[types.Provider]string) (*PostgresDB, error) {
	if databaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required for PostgreSQL engine")
	}

	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	pg := &PostgresDB{
		pool:       pool,
		tableName:  sanitizeTableName(table),
		dimensions: dimensions,
		indexes:    indexes,
	}

	if err := pg.setupDatabase(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to setup database: %w", err)
	}

	return pg, nil
}

func sanitizeTableName(name string) string {
	name = strings.ReplaceAll(name, "-", "_")
	name = strings.ReplaceAll(name, ".", "_")
	name = strings.ReplaceAll(name, " ", "_")
	if len(name) > 0 && (name[0] < 'a' || name[0] > 'z') && (name[0] < 'A' || name[0] > 'Z') {
		name = "t_" + name
	}
	return strings.ToLower(name)
}

func sanitizeIndexName(name string) string {
	return sanitizeTableName(name)
}

func (p *PostgresDB) setupDatabase(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		return fmt.Errorf("failed to enable vector extension: %w", err)
	}

	columns := []string{}
	for _, provider := range types.Providers {
		dims, ok := p.dimensions[provider]
		if !ok || dims <= 0 {
			return fmt.Errorf("missing embedding dimensions for provider %s", provider)
		}
		columns = append(columns, fmt.Sprintf("%s VECTOR(%d)", provider.EmbeddingField(), dims))
	}

	_, err := p.pool.Exec(ctx, fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			question TEXT NOT NULL,
			answer TEXT NOT NULL,
			content TEXT NOT NULL,
			page_url TEXT,
			page_title TEXT,
			%s
		)
	`, p.tableName, strings.Join(columns, ",\n\t\t\t")))
	if err != nil {
		return fmt.Errorf("failed to create %s table: %w", p.tableName, err)
	}

	for _, provider := range types.Providers {
		index := p.indexName(provider)
		_, err = p.pool.Exec(ctx, fmt.Sprintf(`
			CREATE INDEX IF NOT EXISTS %s ON %s
			USING hnsw(%s vector_cosine_ops)
		`, index, p.tableName, provider.EmbeddingField()))
		if err != nil {
			xlog.Warn("Failed to create HNSW index", "index", index, "error", err)
		} else {
			xlog.Debug("HNSW index ready", "index", index)
		}
	}

	return nil
}

func (p *PostgresDB) indexName(provider types.Provider) string {
	if name := p.indexes[provider]; name != "" {
		return sanitizeIndexName(name)
	}
	return fmt.Sprintf("idx_%s_%s", p.tableName, provider.EmbeddingField())
}

// column validates field against the known embedding columns.
func (p *PostgresDB) column(field string) (string, error) {
	for _, provider := range types.Providers {
		if provider.EmbeddingField() == field {
			return field, nil
		}
	}
	return "", fmt.Errorf("%w: unknown embedding field %q", types.ErrUnsupportedProvider, field)
}

func (p *PostgresDB) HasEmbedding(ctx context.Context, field string) (bool, error) {
	col, err := p.column(field)
	if err != nil {
		return false, err
	}

	var id string
	err = p.pool.QueryRow(ctx, fmt.Sprintf(
		"SELECT id FROM %s WHERE %s IS NOT NULL LIMIT 1", p.tableName, col)).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check %s: %w", col, err)
	}
	return true, nil
}

func (p *PostgresDB) VectorSearch(ctx context.Context, q types.VectorQuery) ([]types.Result, error) {
	col, err := p.column(q.Field)
	if err != nil {
		return nil, err
	}

	tx, err := p.pool.BeginTx(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly})
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	// ef_search is the HNSW candidate list size
	if q.NumCandidates > 0 {
		if _, err := tx.Exec(ctx, fmt.Sprintf("SET LOCAL hnsw.ef_search = %d", q.NumCandidates)); err != nil {
			return nil, fmt.Errorf("failed to set ef_search: %w", err)
		}
	}

	rows, err := tx.Query(ctx, fmt.Sprintf(`
		SELECT
			id,
			question,
			answer,
			content,
			COALESCE(page_url, ''),
			COALESCE(page_title, ''),
			(1 - (%[1]s <=> $1::vector)) AS similarity
		FROM %[2]s
		WHERE %[1]s IS NOT NULL
		ORDER BY %[1]s <=> $1::vector
		LIMIT $2
	`, col, p.tableName), pgvector.NewVector(q.Vector), q.Limit)
	if err != nil {
		return nil, fmt.Errorf("failed to execute search: %w", err)
	}
	defer rows.Close()

	results := []types.Result{}
	for rows.Next() {
		var r types.Result
		var similarity float64
		if err := rows.Scan(&r.ID, &r.Question, &r.Answer, &r.Content, &r.PageURL, &r.PageTitle, &similarity); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		r.Similarity = float32(similarity)
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read results: %w", err)
	}

	return results, tx.Commit(ctx)
}

func (p *PostgresDB) Upsert(ctx context.Context, records ...types.FaqRecord) error {
	batch := &pgx.Batch{}
	for _, r := range records {
		if r.ID == "" {
			return fmt.Errorf("record without id: %s", r)
		}

		args := []any{r.ID, r.Question, r.Answer, r.Content, r.PageURL, r.PageTitle}
		for _, provider := range types.Providers {
			if v, ok := r.Embedding(provider); ok {
				args = append(args, pgvector.NewVector(v))
			} else {
				args = append(args, nil)
			}
		}

		batch.Queue(fmt.Sprintf(`
			INSERT INTO %s (id, question, answer, content, page_url, page_title, %s, %s)
			VALUES ($1, $2, $3, $4, $5, $6, $7::vector, $8::vector)
			ON CONFLICT (id) DO UPDATE SET
				question = EXCLUDED.question,
				answer = EXCLUDED.answer,
				content = EXCLUDED.content,
				page_url = EXCLUDED.page_url,
				page_title = EXCLUDED.page_title,
				%[2]s = COALESCE(EXCLUDED.%[2]s, %[1]s.%[2]s),
				%[3]s = COALESCE(EXCLUDED.%[3]s, %[1]s.%[3]s)
		`, p.tableName, types.Providers[0].EmbeddingField(), types.Providers[1].EmbeddingField()), args...)
	}

	if err := p.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("failed to upsert records: %w", err)
	}
	return nil
}

func (p *PostgresDB) Delete(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}

	if _, err := p.pool.Exec(ctx, fmt.Sprintf("DELETE FROM %s WHERE id = ANY($1)", p.tableName), ids); err != nil {
		return fmt.Errorf("failed to delete records: %w", err)
	}
	return nil
}

// Count returns the number of records carrying the given embedding field.
func (p *PostgresDB) Count(ctx context.Context, field string) (int, error) {
	col, err := p.column(field)
	if err != nil {
		return 0, err
	}

	var count int
	err = p.pool.QueryRow(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s IS NOT NULL", p.tableName, col)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count documents: %w", err)
	}
	return count, nil
}

// Reset drops and recreates the table.
func (p *PostgresDB) Reset(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %s CASCADE", p.tableName)); err != nil {
		return fmt.Errorf("failed to drop table: %w", err)
	}
	return p.setupDatabase(ctx)
}

func (p *PostgresDB) Close(ctx context.Context) error {
	p.pool.Close()
	return nil
}
