package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/geocoder89/expertjobs/internal/directory"
	"github.com/geocoder89/expertjobs/internal/observability"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Document is one row of the collection store.
type Document struct {
	Collection string
	ID         string
	Fields     directory.Record
	OwnerID    *string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

type CreateDocument struct {
	Collection     string
	ID             string
	Fields         directory.Record
	OwnerID        string
	IdempotencyKey string
}

// OnCreate runs inside the insert's transaction, only when a new row was written.
type OnCreate func(ctx context.Context, tx pgx.Tx, id string) error

var sqlOps = map[directory.Op]string{
	directory.OpEq:  "=",
	directory.OpNe:  "IS DISTINCT FROM",
	directory.OpLt:  "<",
	directory.OpLte: "<=",
	directory.OpGt:  ">",
	directory.OpGte: ">=",
}

type DocumentsRepo struct {
	pool *pgxpool.Pool
	prom *observability.Prom
}

func NewDocumentsRepo(pool *pgxpool.Pool, prom *observability.Prom) *DocumentsRepo {
	return &DocumentsRepo{pool: pool, prom: prom}
}

func (r *DocumentsRepo) observe(op string, fn func() error) error {
	if r.prom != nil {
		return r.prom.ObserveDB(op, fn)
	}
	return fn()
}

// Create inserts a new document. With an idempotency key, a repeat insert
// returns the id of the first document and created=false.
func (r *DocumentsRepo) Create(ctx context.Context, in CreateDocument, onCreate OnCreate) (id string, created bool, err error) {
	id = in.ID
	if id == "" {
		id = uuid.NewString()
	}

	fields, err := json.Marshal(in.Fields)
	if err != nil {
		return "", false, fmt.Errorf("encode fields: %w", err)
	}

	var ownerID, idemKey *string
	if in.OwnerID != "" {
		ownerID = &in.OwnerID
	}
	if in.IdempotencyKey != "" {
		idemKey = &in.IdempotencyKey
	}

	err = r.observe("documents.create", func() error {
		tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback(ctx) }()

		tag, err := tx.Exec(ctx, `
			INSERT INTO documents (collection, id, fields, owner_id, idempotency_key, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
			ON CONFLICT (collection, idempotency_key) WHERE idempotency_key IS NOT NULL DO NOTHING
		`, in.Collection, id, fields, ownerID, idemKey)
		if err != nil {
			return err
		}

		if tag.RowsAffected() == 0 {
			return tx.QueryRow(ctx, `
				SELECT id FROM documents WHERE collection = $1 AND idempotency_key = $2
			`, in.Collection, idemKey).Scan(&id)
		}

		created = true
		if onCreate != nil {
			if err := onCreate(ctx, tx, id); err != nil {
				return err
			}
		}
		return tx.Commit(ctx)
	})
	if err != nil {
		if IsUniqueViolation(err) {
			return "", false, fmt.Errorf("document %s/%s: %w", in.Collection, id, ErrDocumentExists)
		}
		return "", false, err
	}
	return id, created, nil
}

var ErrDocumentExists = errors.New("document already exists")

// Merge upserts: top-level keys in fields replace the stored ones, other keys
// are kept.
func (r *DocumentsRepo) Merge(ctx context.Context, collection, id string, fields directory.Record, ownerID string) error {
	b, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("encode fields: %w", err)
	}

	var owner *string
	if ownerID != "" {
		owner = &ownerID
	}

	return r.observe("documents.merge", func() error {
		_, err := r.pool.Exec(ctx, `
			INSERT INTO documents (collection, id, fields, owner_id, created_at, updated_at)
			VALUES ($1, $2, $3, $4, NOW(), NOW())
			ON CONFLICT (collection, id) DO UPDATE
			SET fields = documents.fields || EXCLUDED.fields,
			    updated_at = NOW()
		`, collection, id, b, owner)
		return err
	})
}

func (r *DocumentsRepo) Get(ctx context.Context, collection, id string) (Document, error) {
	d := Document{Collection: collection}
	var raw []byte

	err := r.observe("documents.get", func() error {
		return r.pool.QueryRow(ctx, `
			SELECT id, fields, owner_id, created_at, updated_at
			FROM documents
			WHERE collection = $1 AND id = $2
		`, collection, id).Scan(&d.ID, &raw, &d.OwnerID, &d.CreatedAt, &d.UpdatedAt)
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Document{}, directory.ErrNotFound
		}
		return Document{}, err
	}

	if d.Fields, err = decodeFields(raw); err != nil {
		return Document{}, err
	}
	return d, nil
}

// Query returns matching documents as records carrying their id.
func (r *DocumentsRepo) Query(ctx context.Context, collection string, filters []directory.Filter, orders []directory.Order, limit int) ([]directory.Record, error) {
	q, args, err := buildQuery(collection, filters, orders, limit)
	if err != nil {
		return nil, err
	}

	var rows pgx.Rows
	err = r.observe("documents.query", func() error {
		var qerr error
		rows, qerr = r.pool.Query(ctx, q, args...)
		return qerr
	})
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]directory.Record, 0)
	for rows.Next() {
		var id string
		var raw []byte
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, err
		}
		rec, err := decodeFields(raw)
		if err != nil {
			return nil, err
		}
		rec[directory.IDField] = id
		out = append(out, rec)
	}
	return out, rows.Err()
}

func fieldExpr(field string, args *[]any) string {
	if field == directory.IDField {
		return "to_jsonb(id)"
	}
	*args = append(*args, field)
	return fmt.Sprintf("fields -> $%d", len(*args))
}

func buildQuery(collection string, filters []directory.Filter, orders []directory.Order, limit int) (string, []any, error) {
	args := []any{collection}
	conds := []string{"collection = $1"}

	for _, f := range filters {
		op, ok := sqlOps[f.Op]
		if !ok {
			return "", nil, fmt.Errorf("unsupported operator %q", f.Op)
		}

		lhs := fieldExpr(f.Field, &args)

		v, err := json.Marshal(f.Value)
		if err != nil {
			return "", nil, fmt.Errorf("encode filter value for %s: %w", f.Field, err)
		}
		args = append(args, string(v))

		conds = append(conds, fmt.Sprintf("%s %s $%d::jsonb", lhs, op, len(args)))
	}

	var b strings.Builder
	b.WriteString("SELECT id, fields FROM documents WHERE ")
	b.WriteString(strings.Join(conds, " AND "))

	sorts := make([]string, 0, len(orders)+2)
	for _, o := range orders {
		dir := "ASC"
		if o.Desc {
			dir = "DESC"
		}
		sorts = append(sorts, fmt.Sprintf("%s %s NULLS LAST", fieldExpr(o.Field, &args), dir))
	}
	sorts = append(sorts, "created_at ASC", "id ASC")
	b.WriteString(" ORDER BY ")
	b.WriteString(strings.Join(sorts, ", "))

	if limit > 0 {
		args = append(args, limit)
		fmt.Fprintf(&b, " LIMIT $%d", len(args))
	}

	return b.String(), args, nil
}

func decodeFields(raw []byte) (directory.Record, error) {
	rec := directory.Record{}
	if len(raw) == 0 {
		return rec, nil
	}

	dec := json.NewDecoder(strings.NewReader(string(raw)))
	dec.UseNumber()
	if err := dec.Decode(&rec); err != nil {
		return nil, fmt.Errorf("decode fields: %w", err)
	}
	return rec, nil
}
