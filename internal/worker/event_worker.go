package worker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/vigilcbt/vigil-backend/internal/config"
	"github.com/vigilcbt/vigil-backend/internal/model"
	"github.com/vigilcbt/vigil-backend/internal/repository"
)

const (
	EventBatchSize    = 50
	EventBatchTimeout = 2 * time.Second
	EventPollTimeout  = 1 * time.Second // Must be >= 1s to satisfy Redis
)

// EventWorker appends queued proctoring events to the immutable
// integrity_events log in batches.
type EventWorker struct {
	events *repository.EventRepository
	rdb    *redis.Client
	log    zerolog.Logger
}

// NewEventWorker creates a new EventWorker.
func NewEventWorker(events *repository.EventRepository, rdb *redis.Client, log zerolog.Logger) *EventWorker {
	return &EventWorker{
		events: events,
		rdb:    rdb,
		log:    log.With().Str("component", "event_worker").Logger(),
	}
}

type eventPayload struct {
	AttemptID string          `json:"attempt_id"`
	EventType model.EventType `json:"event_type"`
	Timestamp int64           `json:"timestamp"`
	Metadata  string          `json:"metadata,omitempty"`
}

func (w *EventWorker) Start(ctx context.Context) {
	w.log.Info().Msg("EventWorker started")

	buffer := make([]*eventPayload, 0, EventBatchSize)
	lastFlush := time.Now()

	for {
		// Flush on size or age.
		if len(buffer) > 0 &&
			(len(buffer) >= EventBatchSize || time.Since(lastFlush) >= EventBatchTimeout) {
			w.flushSafe(ctx, buffer)
			buffer = buffer[:0]
			lastFlush = time.Now()
		}

		select {
		case <-ctx.Done():
			w.shutdown(buffer)
			return
		default:
		}

		result, err := w.rdb.BLPop(ctx, EventPollTimeout, config.WorkerKey.PersistEventsQueue).Result()
		if err != nil {
			if err == redis.Nil {
				continue // Queue empty, loop back to check the flush timer.
			}
			if ctx.Err() != nil {
				return
			}
			w.log.Error().Err(err).Msg("Redis connection error, sleeping 3s")
			time.Sleep(3 * time.Second)
			continue
		}

		if len(result) < 2 {
			continue
		}

		var payload eventPayload
		if err := json.Unmarshal([]byte(result[1]), &payload); err != nil {
			// Malformed JSON cannot be retried. Log and discard.
			w.log.Error().Err(err).Str("data", result[1]).Msg("Discarding malformed JSON")
			continue
		}

		buffer = append(buffer, &payload)
	}
}

// flushSafe attempts the bulk COPY path, then row-by-row recovery with
// requeue for whatever still fails.
func (w *EventWorker) flushSafe(ctx context.Context, batch []*eventPayload) {
	events, bad := w.decode(batch)
	for _, b := range bad {
		w.log.Error().Str("attempt_id", b.AttemptID).Msg("Dropping event with invalid UUID")
	}
	if len(events) == 0 {
		return
	}

	if err := w.events.AppendBatch(ctx, events); err != nil {
		w.log.Warn().Err(err).Int("count", len(events)).Msg("Bulk insert failed, attempting row-by-row recovery")
		w.fallbackInsert(ctx, events)
	}
}

func (w *EventWorker) decode(batch []*eventPayload) (events []*model.IntegrityEvent, bad []*eventPayload) {
	for _, p := range batch {
		attemptID, err := uuid.Parse(p.AttemptID)
		if err != nil {
			bad = append(bad, p)
			continue
		}
		events = append(events, &model.IntegrityEvent{
			AttemptID: attemptID,
			EventType: p.EventType,
			Timestamp: time.Unix(p.Timestamp, 0),
			Metadata:  p.Metadata,
		})
	}
	return events, bad
}

func (w *EventWorker) fallbackInsert(ctx context.Context, events []*model.IntegrityEvent) {
	var requeue []*model.IntegrityEvent

	for _, e := range events {
		if err := w.events.Append(ctx, e); err != nil {
			w.log.Error().Err(err).Str("attempt_id", e.AttemptID.String()).Msg("Insert failed, requeueing")
			requeue = append(requeue, e)
		}
	}

	if len(requeue) > 0 {
		w.requeue(ctx, requeue)
	}
}

func (w *EventWorker) requeue(ctx context.Context, events []*model.IntegrityEvent) {
	pipe := w.rdb.Pipeline()
	for _, e := range events {
		data, _ := json.Marshal(eventPayload{
			AttemptID: e.AttemptID.String(),
			EventType: e.EventType,
			Timestamp: e.Timestamp.Unix(),
			Metadata:  e.Metadata,
		})
		pipe.RPush(ctx, config.WorkerKey.PersistEventsQueue, data)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		w.log.Error().Err(err).Msg("CRITICAL: Failed to requeue events to Redis. Data loss occurred.")
		return
	}
	w.log.Info().Int("count", len(events)).Msg("Requeued failed events back to Redis")
	// Back off if the database is down hard.
	time.Sleep(2 * time.Second)
}

func (w *EventWorker) shutdown(buffer []*eventPayload) {
	w.log.Info().Msg("Worker stopping, flushing remaining buffer...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if len(buffer) > 0 {
		w.flushSafe(shutdownCtx, buffer)
	}
}
