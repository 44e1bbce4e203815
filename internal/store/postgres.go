package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wyenfos-bills/wyenfos-bills/internal/shared"
)

const pgUniqueViolation = "23505"

// Postgres stores every collection in a single documents table keyed by
// (collection, id), with the document body as JSONB.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres constructs a Postgres-backed store.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

const schema = `
CREATE TABLE IF NOT EXISTS documents (
	collection text NOT NULL,
	id         text NOT NULL,
	version    bigint NOT NULL DEFAULT 1,
	doc        jsonb NOT NULL,
	created_at timestamptz NOT NULL DEFAULT now(),
	updated_at timestamptz NOT NULL DEFAULT now(),
	PRIMARY KEY (collection, id)
);
CREATE UNIQUE INDEX IF NOT EXISTS documents_invoice_number_uq
	ON documents (collection, (doc->>'companyPrefix'), (doc->>'documentType'), (doc->>'invoiceNumber'))
	WHERE collection = 'billing_documents';
`

// Migrate applies the documents schema. The partial unique index is the
// uniqueness backstop for invoice numbers when callers persist optimistically.
func (p *Postgres) Migrate(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("store: migrate: %w", err)
	}
	return nil
}

// Create implements Store.
func (p *Postgres) Create(ctx context.Context, collection, id string, data []byte) (Record, error) {
	if id == "" {
		id = uuid.NewString()
	}
	var rec Record
	err := p.pool.QueryRow(ctx,
		`INSERT INTO documents (collection, id, doc) VALUES ($1, $2, $3)
		 RETURNING id, version, doc, created_at, updated_at`,
		collection, id, data,
	).Scan(&rec.ID, &rec.Version, &rec.Data, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return Record{}, shared.Conflictf("store: %s/%s already exists", collection, id)
		}
		return Record{}, fmt.Errorf("store: create %s/%s: %w", collection, id, err)
	}
	return rec, nil
}

// GetByID implements Store.
func (p *Postgres) GetByID(ctx context.Context, collection, id string) (Record, error) {
	var rec Record
	err := p.pool.QueryRow(ctx,
		`SELECT id, version, doc, created_at, updated_at FROM documents
		 WHERE collection = $1 AND id = $2`,
		collection, id,
	).Scan(&rec.ID, &rec.Version, &rec.Data, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, shared.NotFoundf("store: %s/%s", collection, id)
		}
		return Record{}, fmt.Errorf("store: get %s/%s: %w", collection, id, err)
	}
	return rec, nil
}

// GetAll implements Store.
func (p *Postgres) GetAll(ctx context.Context, collection string, filter *Filter) ([]Record, error) {
	query := `SELECT id, version, doc, created_at, updated_at FROM documents WHERE collection = $1`
	args := []any{collection}
	if filter != nil {
		query += ` AND doc->>$2 = $3`
		args = append(args, filter.Field, filter.Equals)
	}
	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: list %s: %w", collection, err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.ID, &rec.Version, &rec.Data, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
			return nil, fmt.Errorf("store: scan %s: %w", collection, err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Update implements Store.
func (p *Postgres) Update(ctx context.Context, collection, id string, data []byte) (Record, error) {
	var rec Record
	err := p.pool.QueryRow(ctx,
		`UPDATE documents SET doc = $3, version = version + 1, updated_at = now()
		 WHERE collection = $1 AND id = $2
		 RETURNING id, version, doc, created_at, updated_at`,
		collection, id, data,
	).Scan(&rec.ID, &rec.Version, &rec.Data, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, shared.NotFoundf("store: %s/%s", collection, id)
		}
		return Record{}, fmt.Errorf("store: update %s/%s: %w", collection, id, err)
	}
	return rec, nil
}

// UpdateCAS implements Store.
func (p *Postgres) UpdateCAS(ctx context.Context, collection, id string, expectedVersion int64, data []byte) (Record, error) {
	var rec Record
	err := p.pool.QueryRow(ctx,
		`UPDATE documents SET doc = $4, version = version + 1, updated_at = now()
		 WHERE collection = $1 AND id = $2 AND version = $3
		 RETURNING id, version, doc, created_at, updated_at`,
		collection, id, expectedVersion, data,
	).Scan(&rec.ID, &rec.Version, &rec.Data, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Either the record is gone or the version moved. Distinguish so
			// allocator retry loops see a conflict, not a missing counter.
			if _, getErr := p.GetByID(ctx, collection, id); getErr != nil {
				return Record{}, getErr
			}
			return Record{}, shared.Conflictf("store: %s/%s version mismatch (expected %d)", collection, id, expectedVersion)
		}
		return Record{}, fmt.Errorf("store: cas %s/%s: %w", collection, id, err)
	}
	return rec, nil
}

// Delete implements Store.
func (p *Postgres) Delete(ctx context.Context, collection, id string) error {
	if _, err := p.pool.Exec(ctx,
		`DELETE FROM documents WHERE collection = $1 AND id = $2`, collection, id); err != nil {
		return fmt.Errorf("store: delete %s/%s: %w", collection, id, err)
	}
	return nil
}
