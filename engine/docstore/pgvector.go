package docstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"
)

var tableName = regexp.MustCompile(`^[a-z_][a-z0-9_]{0,62}$`)

// PGVector stores points in a Postgres table with a pgvector column.
type PGVector struct {
	db    *sql.DB
	table string
}

// OpenPGVector opens a lib/pq connection pool for dsn.
func OpenPGVector(dsn, table string) (*PGVector, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("docstore: open postgres: %w", err)
	}
	p, err := NewPGVector(db, table)
	if err != nil {
		db.Close()
		return nil, err
	}
	return p, nil
}

func NewPGVector(db *sql.DB, table string) (*PGVector, error) {
	if !tableName.MatchString(table) {
		return nil, fmt.Errorf("docstore: invalid table name %q", table)
	}
	return &PGVector{db: db, table: table}, nil
}

func (p *PGVector) Close() error { return p.db.Close() }

// EnsureSchema creates the vector extension and the documents table.
func (p *PGVector) EnsureSchema(ctx context.Context, dims int) error {
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	id BIGINT PRIMARY KEY,
	text TEXT NOT NULL,
	payload JSONB NOT NULL,
	embedding vector(%d) NOT NULL
)`, p.table, dims),
	}
	for _, s := range stmts {
		if _, err := p.db.ExecContext(ctx, s); err != nil {
			return fmt.Errorf("docstore: ensure schema: %w", err)
		}
	}
	return nil
}

func (p *PGVector) Upsert(ctx context.Context, points []Point) (err error) {
	if len(points) == 0 {
		return nil
	}
	if err := validatePoints(points); err != nil {
		return err
	}
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("docstore: begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(`INSERT INTO %s (id, text, payload, embedding) VALUES ($1, $2, $3, $4)
ON CONFLICT (id) DO UPDATE SET text = EXCLUDED.text, payload = EXCLUDED.payload, embedding = EXCLUDED.embedding`, p.table))
	if err != nil {
		return fmt.Errorf("docstore: prepare upsert: %w", err)
	}
	defer stmt.Close()

	for _, pt := range points {
		payload, err := json.Marshal(pt.Payload)
		if err != nil {
			return fmt.Errorf("docstore: encode payload %d: %w", pt.ID, err)
		}
		if _, err := stmt.ExecContext(ctx, int64(pt.ID), pt.Text(), payload, pgvector.NewVector(pt.Vector)); err != nil {
			return fmt.Errorf("docstore: upsert point %d: %w", pt.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("docstore: commit: %w", err)
	}
	return nil
}

// SearchByVector ranks rows by cosine distance; the score is 1 - distance.
func (p *PGVector) SearchByVector(ctx context.Context, vec []float32, k int) ([]Hit, error) {
	if k <= 0 {
		return []Hit{}, nil
	}
	rows, err := p.db.QueryContext(ctx, fmt.Sprintf(
		`SELECT id, payload, 1 - (embedding <=> $1) AS score FROM %s ORDER BY embedding <=> $1 LIMIT $2`, p.table),
		pgvector.NewVector(vec), k)
	if err != nil {
		return nil, fmt.Errorf("docstore: vector search: %w", err)
	}
	return scanHits(rows, true)
}

// SearchByText matches any term with a case-insensitive ILIKE.
func (p *PGVector) SearchByText(ctx context.Context, terms []string, k int) ([]Hit, error) {
	patterns := make([]string, 0, len(terms))
	for _, t := range terms {
		if t = strings.TrimSpace(t); t != "" {
			patterns = append(patterns, "%"+likeEscaper.Replace(t)+"%")
		}
	}
	if k <= 0 || len(patterns) == 0 {
		return []Hit{}, nil
	}
	rows, err := p.db.QueryContext(ctx, fmt.Sprintf(
		`SELECT id, payload FROM %s WHERE text ILIKE ANY($1) ORDER BY id LIMIT $2`, p.table),
		pq.Array(patterns), k)
	if err != nil {
		return nil, fmt.Errorf("docstore: text search: %w", err)
	}
	return scanHits(rows, false)
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func scanHits(rows *sql.Rows, scored bool) ([]Hit, error) {
	defer rows.Close()
	hits := []Hit{}
	for rows.Next() {
		var (
			id      int64
			payload []byte
			h       Hit
		)
		dest := []any{&id, &payload}
		if scored {
			dest = append(dest, &h.Score)
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("docstore: scan: %w", err)
		}
		if err := json.Unmarshal(payload, &h.Payload); err != nil {
			return nil, fmt.Errorf("docstore: decode payload %d: %w", id, err)
		}
		h.ID = uint64(id)
		hits = append(hits, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("docstore: rows: %w", err)
	}
	return hits, nil
}
