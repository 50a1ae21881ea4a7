package assistant

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/healthmate/healthmate/internal/platform/db"
)

type chatLogRepoPG struct {
	pool *pgxpool.Pool
}

func NewChatLogRepoPG(pool *pgxpool.Pool) ChatLogRepository {
	return &chatLogRepoPG{pool: pool}
}

func (r *chatLogRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const chatLogCols = `id, owner_id, message, response, created_at`

func scanChatLog(row pgx.Row) (*ChatLog, error) {
	var l ChatLog
	if err := row.Scan(&l.ID, &l.OwnerID, &l.Message, &l.Response, &l.CreatedAt); err != nil {
		return nil, err
	}
	return &l, nil
}

func collectChatLogs(rows pgx.Rows) ([]*ChatLog, error) {
	defer rows.Close()
	var items []*ChatLog
	for rows.Next() {
		l, err := scanChatLog(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, l)
	}
	return items, rows.Err()
}

func (r *chatLogRepoPG) Create(ctx context.Context, l *ChatLog) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO chat_logs (id, owner_id, message, response)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at`,
		l.ID, l.OwnerID, l.Message, l.Response,
	).Scan(&l.CreatedAt)
}

func (r *chatLogRepoPG) Recent(ctx context.Context, ownerID uuid.UUID, n int) ([]*ChatLog, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+chatLogCols+` FROM (
			SELECT `+chatLogCols+` FROM chat_logs WHERE owner_id = $1
			ORDER BY created_at DESC, id DESC LIMIT $2
		) recent
		ORDER BY created_at, id`, ownerID, n)
	if err != nil {
		return nil, err
	}
	return collectChatLogs(rows)
}

func (r *chatLogRepoPG) ListByOwner(ctx context.Context, ownerID uuid.UUID, limit, offset int) ([]*ChatLog, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM chat_logs WHERE owner_id = $1`, ownerID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+chatLogCols+` FROM chat_logs WHERE owner_id = $1
		ORDER BY created_at, id LIMIT $2 OFFSET $3`, ownerID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	items, err := collectChatLogs(rows)
	return items, total, err
}
