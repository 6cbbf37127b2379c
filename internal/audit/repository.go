package audit

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// WindowParams are the bind parameters of the timeline query. Invalid
// (null) values disable the matching filter.
type WindowParams struct {
	FromAt     pgtype.Timestamptz
	ToAt       pgtype.Timestamptz
	Actor      pgtype.Text
	Entity     pgtype.Text
	EntityID   pgtype.Text
	Action     pgtype.Text
	OffsetRows int32
	LimitRows  int32
}

// WindowRow is one row returned by the timeline query.
type WindowRow struct {
	At       pgtype.Timestamptz
	Actor    string
	Action   string
	Entity   string
	EntityID string
	Meta     []byte
}

// PGRepository reads audit_logs.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a Postgres-backed repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const timelineWindow = `
SELECT occurred_at, actor, action, entity, entity_id, meta
FROM audit_logs
WHERE ($1::timestamptz IS NULL OR occurred_at >= $1)
  AND ($2::timestamptz IS NULL OR occurred_at <= $2)
  AND ($3::text IS NULL OR actor = $3)
  AND ($4::text IS NULL OR entity = $4)
  AND ($5::text IS NULL OR entity_id = $5)
  AND ($6::text IS NULL OR action = $6)
ORDER BY occurred_at DESC, id DESC
OFFSET $7 LIMIT $8`

// TimelineWindow returns one page of audit entries, newest first.
func (r *PGRepository) TimelineWindow(ctx context.Context, arg WindowParams) ([]WindowRow, error) {
	rows, err := r.pool.Query(ctx, timelineWindow,
		arg.FromAt, arg.ToAt, arg.Actor, arg.Entity, arg.EntityID, arg.Action, arg.OffsetRows, arg.LimitRows)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (WindowRow, error) {
		var w WindowRow
		err := row.Scan(&w.At, &w.Actor, &w.Action, &w.Entity, &w.EntityID, &w.Meta)
		return w, err
	})
}

func decodeMeta(raw []byte) map[string]any {
	if len(raw) == 0 {
		return nil
	}
	var meta map[string]any
	if err := json.Unmarshal(raw, &meta); err != nil || len(meta) == 0 {
		return nil
	}
	return meta
}
