package worker

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/Breniell/certtrack-proctor/internal/config"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	OrderBatchSize    = 50
	OrderBatchTimeout = 2 * time.Second
	OrderPollTimeout  = 1 * time.Second
)

// OrderWorker persists the per-participant question shuffle so answers can
// be reviewed later in presentation order.
type OrderWorker struct {
	pool *pgxpool.Pool
	rdb  *redis.Client
	log  zerolog.Logger
}

func NewOrderWorker(pool *pgxpool.Pool, rdb *redis.Client, log zerolog.Logger) *OrderWorker {
	return &OrderWorker{
		pool: pool,
		rdb:  rdb,
		log:  log.With().Str("component", "order_worker").Logger(),
	}
}

type orderPayload struct {
	EvaluationID  string   `json:"evaluation_id"`
	ParticipantID int      `json:"participant_id"`
	Order         []string `json:"order"`
}

func (w *OrderWorker) Start(ctx context.Context) {
	w.log.Info().Msg("OrderWorker started")

	batch := make([]*orderPayload, 0, OrderBatchSize)
	lastFlush := time.Now()

	for {
		if len(batch) > 0 &&
			(len(batch) >= OrderBatchSize || time.Since(lastFlush) >= OrderBatchTimeout) {

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
			item, err := w.rdb.BLPop(ctx, OrderPollTimeout, config.WorkerKey.PersistQuestionOrderQueue).Result()
			if err != nil {
				if err != redis.Nil && ctx.Err() == nil {
					w.log.Error().Err(err).Msg("BLPop error")
				}
				continue
			}

			if len(item) < 2 {
				continue
			}

			var p orderPayload
			if err := json.Unmarshal([]byte(item[1]), &p); err != nil {
				w.log.Error().Err(err).Msg("Invalid JSON payload")
				continue
			}

			batch = append(batch, &p)
		}
	}
}

// dedupe keeps only the newest order per attempt. Two entries for the same
// attempt can land in one flush window when a finished session is swept and
// replaced; updating the same row twice from one UNNEST batch would leave
// whichever order PostgreSQL visited last.
func dedupe(batch []*orderPayload) []*orderPayload {
	latest := make(map[string]int, len(batch))
	out := batch[:0]
	for _, p := range batch {
		key := p.EvaluationID + "/" + strconv.Itoa(p.ParticipantID)
		if i, ok := latest[key]; ok {
			out[i] = p
			continue
		}
		latest[key] = len(out)
		out = append(out, p)
	}
	return out
}

func (w *OrderWorker) flushSafe(ctx context.Context, batch []*orderPayload) {
	if len(batch) == 0 {
		return
	}
	batch = dedupe(batch)

	if err := w.bulkUpdate(ctx, batch); err != nil {
		w.log.Warn().Err(err).Msg("bulk question order update failed, using fallback")

		for _, p := range batch {
			if err := w.persistSingle(ctx, p); err != nil {
				w.log.Error().Err(err).Msg("persistSingle failed, requeueing")
				raw, _ := json.Marshal(p)
				w.rdb.RPush(ctx, config.WorkerKey.PersistQuestionOrderQueue, raw)
			}
		}
	}
}

func (w *OrderWorker) bulkUpdate(ctx context.Context, batch []*orderPayload) error {
	n := len(batch)

	evaluationIDs := make([]uuid.UUID, 0, n)
	participants := make([]int, 0, n)
	ordersBytes := make([][]byte, 0, n)

	for _, p := range batch {
		eID, err := uuid.Parse(p.EvaluationID)
		if err != nil {
			return err
		}

		ob, _ := json.Marshal(p.Order)

		evaluationIDs = append(evaluationIDs, eID)
		participants = append(participants, p.ParticipantID)
		ordersBytes = append(ordersBytes, ob)
	}

	query := `
		UPDATE evaluation_sessions AS s
		SET question_order = t.qo
		FROM (
			SELECT
				u.evaluation_id,
				u.participant_id,
				u.qo
			FROM UNNEST(
				$1::uuid[],
				$2::int[],
				$3::jsonb[]
			) AS u (evaluation_id, participant_id, qo)
		) AS t
		WHERE s.evaluation_id = t.evaluation_id
		  AND s.participant_id = t.participant_id
	`

	_, err := w.pool.Exec(ctx, query, evaluationIDs, participants, ordersBytes)
	return err
}

func (w *OrderWorker) persistSingle(ctx context.Context, p *orderPayload) error {
	eID, err := uuid.Parse(p.EvaluationID)
	if err != nil {
		return err
	}

	ob, _ := json.Marshal(p.Order)

	_, err = w.pool.Exec(ctx,
		`UPDATE evaluation_sessions
		 SET question_order = $1
		 WHERE evaluation_id = $2 AND participant_id = $3`,
		ob, eID, p.ParticipantID,
	)

	return err
}
