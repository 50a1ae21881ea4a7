package records

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/healthmate/healthmate/internal/platform/db"
)

type recordRepoPG struct {
	pool *pgxpool.Pool
}

func NewRecordRepoPG(pool *pgxpool.Pool) Repository {
	return &recordRepoPG{pool: pool}
}

func (r *recordRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const recordCols = `id, owner_id, title, record_type, description, file_key, file_name, content_type, size, uploaded_at`

func scanRecord(row pgx.Row) (*Record, error) {
	var rec Record
	err := row.Scan(&rec.ID, &rec.OwnerID, &rec.Title, &rec.RecordType, &rec.Description,
		&rec.FileKey, &rec.FileName, &rec.ContentType, &rec.Size, &rec.UploadedAt)
	if err != nil {
		return nil, err
	}
	rec.setDisplay()
	return &rec, nil
}

func (r *recordRepoPG) Create(ctx context.Context, rec *Record) error {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO medical_records (id, owner_id, title, record_type, description, file_key, file_name, content_type, size)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING uploaded_at`,
		rec.ID, rec.OwnerID, rec.Title, rec.RecordType, rec.Description,
		rec.FileKey, rec.FileName, rec.ContentType, rec.Size,
	).Scan(&rec.UploadedAt)
}

func (r *recordRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Record, error) {
	rec, err := scanRecord(r.conn(ctx).QueryRow(ctx, `SELECT `+recordCols+` FROM medical_records WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return rec, err
}

func (r *recordRepoPG) UpdateMetadata(ctx context.Context, rec *Record) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE medical_records SET title = $2, description = $3 WHERE id = $1`,
		rec.ID, rec.Title, rec.Description)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *recordRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM medical_records WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *recordRepoPG) Search(ctx context.Context, f Filter, limit, offset int) ([]*Record, int, error) {
	where := ` WHERE owner_id = $1`
	args := []interface{}{f.OwnerID}
	idx := 2

	if f.RecordType != "" {
		where += fmt.Sprintf(` AND record_type = $%d`, idx)
		args = append(args, f.RecordType)
		idx++
	}
	if f.Query != "" {
		where += fmt.Sprintf(` AND (title ILIKE $%d OR description ILIKE $%d)`, idx, idx)
		args = append(args, "%"+f.Query+"%")
		idx++
	}
	if f.UploadedAfter != nil {
		where += fmt.Sprintf(` AND uploaded_at >= $%d`, idx)
		args = append(args, *f.UploadedAfter)
		idx++
	}
	if f.UploadedBefore != nil {
		where += fmt.Sprintf(` AND uploaded_at <= $%d`, idx)
		args = append(args, *f.UploadedBefore)
		idx++
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM medical_records`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + recordCols + ` FROM medical_records` + where +
		fmt.Sprintf(` ORDER BY uploaded_at DESC LIMIT $%d OFFSET $%d`, idx, idx+1)
	args = append(args, limit, offset)

	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []*Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, rec)
	}
	return items, total, rows.Err()
}
