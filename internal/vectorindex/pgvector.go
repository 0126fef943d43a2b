package vectorindex

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

var tableNameRE = regexp.MustCompile(`^[a-z_][a-z0-9_]{0,62}$`)

// PGVector stores vectors in PostgreSQL with the pgvector extension. Every
// metadata field is a real column so filters are plain SQL predicates.
type PGVector struct {
	pool  *pgxpool.Pool
	table string
	dim   int
	lists int
}

// NewPGVector connects to dsn. The table is created by Init.
func NewPGVector(ctx context.Context, dsn, table string) (*PGVector, error) {
	if table == "" {
		table = "chunk_vectors"
	}
	if !tableNameRE.MatchString(table) {
		return nil, fmt.Errorf("invalid pgvector table name %q", table)
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return &PGVector{pool: pool, table: table, lists: 100}, nil
}

// Init implements Backend.
func (p *PGVector) Init(ctx context.Context, dim int) error {
	p.dim = dim
	stmts := []string{
		"CREATE EXTENSION IF NOT EXISTS vector",
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id          TEXT PRIMARY KEY,
			document_id TEXT NOT NULL,
			user_id     TEXT NOT NULL,
			page_number INTEGER NOT NULL DEFAULT 1,
			x1 DOUBLE PRECISION NOT NULL DEFAULT 0,
			y1 DOUBLE PRECISION NOT NULL DEFAULT 0,
			x2 DOUBLE PRECISION NOT NULL DEFAULT 0,
			y2 DOUBLE PRECISION NOT NULL DEFAULT 0,
			width  DOUBLE PRECISION NOT NULL DEFAULT 0,
			height DOUBLE PRECISION NOT NULL DEFAULT 0,
			content   TEXT NOT NULL,
			embedding vector(%d) NOT NULL
		)`, p.table, dim),
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s_user_doc_idx ON %s (user_id, document_id)", p.table, p.table),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_embedding_idx ON %s
			USING ivfflat (embedding vector_cosine_ops) WITH (lists = %d)`, p.table, p.table, p.lists),
	}
	for _, s := range stmts {
		if _, err := p.pool.Exec(ctx, s); err != nil {
			return fmt.Errorf("pgvector init: %w", err)
		}
	}
	return nil
}

// Upsert implements Backend. The whole slice is written in one transaction.
func (p *PGVector) Upsert(ctx context.Context, recs []Record) error {
	if len(recs) == 0 {
		return nil
	}
	stmt := fmt.Sprintf(`
		INSERT INTO %s (id, document_id, user_id, page_number, x1, y1, x2, y2, width, height, content, embedding)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO UPDATE SET
			document_id = EXCLUDED.document_id,
			user_id     = EXCLUDED.user_id,
			page_number = EXCLUDED.page_number,
			x1 = EXCLUDED.x1, y1 = EXCLUDED.y1, x2 = EXCLUDED.x2, y2 = EXCLUDED.y2,
			width = EXCLUDED.width, height = EXCLUDED.height,
			content   = EXCLUDED.content,
			embedding = EXCLUDED.embedding`, p.table)

	return pgx.BeginFunc(ctx, p.pool, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, r := range recs {
			m := r.Meta
			batch.Queue(stmt, r.ID, m.DocumentID, m.UserID, m.PageNumber,
				m.BBox.X1, m.BBox.Y1, m.BBox.X2, m.BBox.Y2, m.BBox.Width, m.BBox.Height,
				r.Text, pgvector.NewVector(r.Vector))
		}
		return tx.SendBatch(ctx, batch).Close()
	})
}

// Query implements Backend.
func (p *PGVector) Query(ctx context.Context, vec []float32, k int, f Filter) ([]Match, error) {
	where, args := p.where(f, 2)
	q := fmt.Sprintf(`
		SELECT id, document_id, user_id, page_number, x1, y1, x2, y2, width, height, content,
		       1 - (embedding <=> $1) AS score
		FROM %s %s
		ORDER BY embedding <=> $1, id
		LIMIT %d`, p.table, where, k)

	rows, err := p.pool.Query(ctx, q, append([]any{pgvector.NewVector(vec)}, args...)...)
	if err != nil {
		return nil, fmt.Errorf("pgvector query: %w", err)
	}
	defer rows.Close()

	var out []Match
	for rows.Next() {
		var m Match
		b := &m.Meta.BBox
		if err := rows.Scan(&m.ID, &m.Meta.DocumentID, &m.Meta.UserID, &m.Meta.PageNumber,
			&b.X1, &b.Y1, &b.X2, &b.Y2, &b.Width, &b.Height, &m.Text, &m.Score); err != nil {
			return nil, fmt.Errorf("pgvector scan: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// Delete implements Backend.
func (p *PGVector) Delete(ctx context.Context, f Filter) (int64, error) {
	where, args := p.where(f, 1)
	tag, err := p.pool.Exec(ctx, fmt.Sprintf("DELETE FROM %s %s", p.table, where), args...)
	if err != nil {
		return 0, fmt.Errorf("pgvector delete: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Count implements Backend.
func (p *PGVector) Count(ctx context.Context, f Filter) (int64, error) {
	where, args := p.where(f, 1)
	var n int64
	err := p.pool.QueryRow(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s %s", p.table, where), args...).Scan(&n)
	return n, err
}

// Drop implements Backend.
func (p *PGVector) Drop(ctx context.Context) error {
	_, err := p.pool.Exec(ctx, "DROP TABLE IF EXISTS "+p.table)
	return err
}

// Close implements Backend.
func (p *PGVector) Close() error {
	p.pool.Close()
	return nil
}

// where renders f as a conjunction of placeholders numbered from first.
func (p *PGVector) where(f Filter, first int) (string, []any) {
	var (
		conds []string
		args  []any
	)
	if f.DocumentID != "" {
		conds = append(conds, fmt.Sprintf("document_id = $%d", first+len(args)))
		args = append(args, f.DocumentID)
	}
	if f.UserID != "" {
		conds = append(conds, fmt.Sprintf("user_id = $%d", first+len(args)))
		args = append(args, f.UserID)
	}
	if len(conds) == 0 {
		return "", nil
	}
	return "WHERE " + strings.Join(conds, " AND "), args
}
