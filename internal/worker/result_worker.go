package worker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Breniell/certtrack-proctor/internal/config"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	ResultBatchSize    = 50
	ResultBatchTimeout = 2 * time.Second
	ResultPollTimeout  = 1 * time.Second
)

// ResultWorker persists grading verdicts. A session locked by the
// surveillance service keeps its LOCKED status; only IN_PROGRESS rows are
// moved to SUBMITTED here.
type ResultWorker struct {
	pool *pgxpool.Pool
	rdb  *redis.Client
	log  zerolog.Logger
}

func NewResultWorker(pool *pgxpool.Pool, rdb *redis.Client, log zerolog.Logger) *ResultWorker {
	return &ResultWorker{
		pool: pool,
		rdb:  rdb,
		log:  log.With().Str("component", "result_worker").Logger(),
	}
}

type resultPayload struct {
	ParticipantID int     `json:"participant_id"`
	EvaluationID  string  `json:"evaluation_id"`
	Score         float64 `json:"score"`
	Reussi        bool    `json:"reussi"`
}

// ----------------------------------------------------------------
// Worker loop with batching
// ----------------------------------------------------------------

func (w *ResultWorker) Start(ctx context.Context) {
	w.log.Info().Msg("ResultWorker started")

	batch := make([]*resultPayload, 0, ResultBatchSize)
	lastFlush := time.Now()

	for {
		// Should flush?
		if len(batch) > 0 &&
			(len(batch) >= ResultBatchSize || time.Since(lastFlush) >= ResultBatchTimeout) {

			w.flushSafe(ctx, batch)
			batch = batch[:0]
			lastFlush = time.Now()
		}

		select {
		case <-ctx.Done():
			w.log.Info().Msg("Shutdown requested. Flushing remaining batch...")
			w.flushSafe(context.Background(), batch)
			return

		default:
			item, err := w.rdb.BLPop(ctx, ResultPollTimeout, config.WorkerKey.PersistResultsQueue).Result()
			if err != nil {
				if err != redis.Nil && ctx.Err() == nil {
					w.log.Error().Err(err).Msg("BLPop error")
				}
				continue
			}

			if len(item) < 2 {
				continue
			}

			var p resultPayload
			if err := json.Unmarshal([]byte(item[1]), &p); err != nil {
				w.log.Error().Err(err).Msg("Invalid JSON payload")
				continue
			}

			batch = append(batch, &p)
		}
	}
}

// ----------------------------------------------------------------
// Batch Update Wrapper
// ----------------------------------------------------------------

func (w *ResultWorker) flushSafe(ctx context.Context, batch []*resultPayload) {
	if len(batch) == 0 {
		return
	}

	if err := w.bulkUpdateResults(ctx, batch); err != nil {
		w.log.Warn().Err(err).Msg("bulk result update failed, using fallback")

		for _, p := range batch {
			if err := w.persistSingle(ctx, p); err != nil {
				w.log.Error().Err(err).Msg("persistSingle failed, requeueing")
				raw, _ := json.Marshal(p)
				w.rdb.RPush(ctx, config.WorkerKey.PersistResultsQueue, raw)
			}
		}
		return
	}

	// After successful result updates, delete autosave buffers in Redis
	w.bulkClearAutosavedAnswers(ctx, batch)
}

// ----------------------------------------------------------------
// BULK PostgreSQL UPDATE using UNNEST + alias
// ----------------------------------------------------------------

func (w *ResultWorker) bulkUpdateResults(ctx context.Context, batch []*resultPayload) error {
	n := len(batch)

	evaluationIDs := make([]uuid.UUID, 0, n)
	participants := make([]int, 0, n)
	scores := make([]float64, 0, n)
	reussis := make([]bool, 0, n)
	finishedAts := make([]time.Time, n)

	now := time.Now()
	for i, p := range batch {
		eID, err := uuid.Parse(p.EvaluationID)
		if err != nil {
			return err
		}
		evaluationIDs = append(evaluationIDs, eID)
		participants = append(participants, p.ParticipantID)
		scores = append(scores, p.Score)
		reussis = append(reussis, p.Reussi)
		finishedAts[i] = now
	}

	// The CASE guard keeps a LOCKED status written by the surveillance
	// service, whichever write lands first.
	query := `
		UPDATE evaluation_sessions AS s
		SET status = CASE WHEN s.status = 'IN_PROGRESS' THEN 'SUBMITTED' ELSE s.status END,
		    final_score = t.score,
		    reussi = t.reussi,
		    finished_at = COALESCE(s.finished_at, t.finished_at)
		FROM (
			SELECT
				u.evaluation_id,
				u.participant_id,
				u.score,
				u.reussi,
				u.finished_at
			FROM UNNEST(
				$1::uuid[],
				$2::int[],
				$3::float8[],
				$4::bool[],
				$5::timestamptz[]
			) AS u (evaluation_id, participant_id, score, reussi, finished_at)
		) AS t
		WHERE s.evaluation_id = t.evaluation_id
		  AND s.participant_id = t.participant_id
	`

	_, err := w.pool.Exec(ctx, query, evaluationIDs, participants, scores, reussis, finishedAts)
	return err
}

// ----------------------------------------------------------------
// BULK Redis DEL for clearing autosaved answers
// ----------------------------------------------------------------

func (w *ResultWorker) bulkClearAutosavedAnswers(ctx context.Context, batch []*resultPayload) {
	pipe := w.rdb.Pipeline()

	for _, p := range batch {
		key := config.CacheKey.ParticipantAnswersKey(p.EvaluationID, p.ParticipantID)
		pipe.Del(ctx, key)
	}

	_, _ = pipe.Exec(ctx)
}

// ----------------------------------------------------------------
// FALLBACK single update
// ----------------------------------------------------------------

func (w *ResultWorker) persistSingle(ctx context.Context, p *resultPayload) error {
	eID, err := uuid.Parse(p.EvaluationID)
	if err != nil {
		return err
	}

	_, err = w.pool.Exec(ctx,
		`UPDATE evaluation_sessions
		 SET status = CASE WHEN status = 'IN_PROGRESS' THEN 'SUBMITTED' ELSE status END,
		     final_score = $1,
		     reussi = $2,
		     finished_at = COALESCE(finished_at, NOW())
		 WHERE evaluation_id = $3 AND participant_id = $4`,
		p.Score, p.Reussi, eID, p.ParticipantID,
	)

	return err
}
