package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/vigilcbt/vigil-backend/internal/model"
)

// EventRepository appends and reads the immutable proctoring event log.
// Rows are never updated or deleted.
type EventRepository struct {
	pool *pgxpool.Pool
}

// NewEventRepository creates a new EventRepository.
func NewEventRepository(pool *pgxpool.Pool) *EventRepository {
	return &EventRepository{pool: pool}
}

// Append inserts a single event.
func (r *EventRepository) Append(ctx context.Context, e *model.IntegrityEvent) error {
	return r.pool.QueryRow(ctx,
		`INSERT INTO integrity_events (attempt_id, event_type, recorded_at, metadata)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id`,
		e.AttemptID, e.EventType, e.Timestamp, e.Metadata,
	).Scan(&e.ID)
}

// AppendBatch bulk-inserts events via COPY. Fast path of the event worker.
func (r *EventRepository) AppendBatch(ctx context.Context, events []*model.IntegrityEvent) error {
	rows := make([][]interface{}, 0, len(events))
	for _, e := range events {
		rows = append(rows, []interface{}{e.AttemptID, e.EventType, e.Timestamp, e.Metadata})
	}
	_, err := r.pool.CopyFrom(
		ctx,
		pgx.Identifier{"integrity_events"},
		[]string{"attempt_id", "event_type", "recorded_at", "metadata"},
		pgx.CopyFromRows(rows),
	)
	return err
}

// ListByAttempt returns an attempt's full event timeline in chronological order.
func (r *EventRepository) ListByAttempt(ctx context.Context, attemptID uuid.UUID) ([]model.IntegrityEvent, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, attempt_id, event_type, recorded_at, metadata
		 FROM integrity_events
		 WHERE attempt_id = $1
		 ORDER BY recorded_at ASC, id ASC`, attemptID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []model.IntegrityEvent
	for rows.Next() {
		var e model.IntegrityEvent
		if err := rows.Scan(&e.ID, &e.AttemptID, &e.EventType, &e.Timestamp, &e.Metadata); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}
