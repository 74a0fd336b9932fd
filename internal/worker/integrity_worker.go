package worker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/vigilcbt/vigil-backend/internal/config"
	"github.com/vigilcbt/vigil-backend/internal/service"
)

const IntegrityPollTimeout = 1 * time.Second

// IntegrityWorker recomputes the full trust score for attempts queued at
// submission time. The event worker usually lands the final events within
// its 2s batch window, so a short settle delay precedes each recompute.
type IntegrityWorker struct {
	integrity *service.IntegrityService
	rdb       *redis.Client
	settle    time.Duration
	log       zerolog.Logger
}

// NewIntegrityWorker creates a new IntegrityWorker.
func NewIntegrityWorker(integrity *service.IntegrityService, rdb *redis.Client, log zerolog.Logger) *IntegrityWorker {
	return &IntegrityWorker{
		integrity: integrity,
		rdb:       rdb,
		settle:    3 * time.Second,
		log:       log.With().Str("component", "integrity_worker").Logger(),
	}
}

type integrityPayload struct {
	AttemptID string `json:"attempt_id"`
}

func (w *IntegrityWorker) Start(ctx context.Context) {
	w.log.Info().Msg("IntegrityWorker started")

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Worker stopped")
			return
		default:
		}

		result, err := w.rdb.BLPop(ctx, IntegrityPollTimeout, config.WorkerKey.IntegrityQueue).Result()
		if err != nil {
			if err != redis.Nil && ctx.Err() == nil {
				w.log.Error().Err(err).Msg("BLPop error")
				time.Sleep(3 * time.Second)
			}
			continue
		}
		if len(result) < 2 {
			continue
		}

		var payload integrityPayload
		if err := json.Unmarshal([]byte(result[1]), &payload); err != nil {
			w.log.Error().Err(err).Str("data", result[1]).Msg("Discarding malformed JSON")
			continue
		}

		attemptID, err := uuid.Parse(payload.AttemptID)
		if err != nil {
			w.log.Error().Str("attempt_id", payload.AttemptID).Msg("Dropping payload with invalid UUID")
			continue
		}

		if w.settle > 0 {
			select {
			case <-ctx.Done():
			case <-time.After(w.settle):
			}
		}

		if _, err := w.integrity.ScoreAttempt(ctx, attemptID); err != nil {
			w.log.Error().Err(err).Str("attempt_id", payload.AttemptID).Msg("Recompute failed, requeueing")
			w.rdb.RPush(ctx, config.WorkerKey.IntegrityQueue, result[1])
			time.Sleep(2 * time.Second)
		}
	}
}
