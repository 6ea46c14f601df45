package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Breniell/certtrack-proctor/internal/config"
	"github.com/Breniell/certtrack-proctor/internal/exam"
	"github.com/Breniell/certtrack-proctor/internal/metrics"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// GradingService implements exam.Grader. Scoring happens entirely in RAM
// against the Redis answer key, so a submission never waits on PostgreSQL;
// persistence of the verdict goes through the result worker queue.
type GradingService struct {
	evalService *EvaluationService
	rdb         *redis.Client
	log         zerolog.Logger
}

// NewGradingService creates a new GradingService.
func NewGradingService(evalService *EvaluationService, rdb *redis.Client, log zerolog.Logger) *GradingService {
	return &GradingService{
		evalService: evalService,
		rdb:         rdb,
		log:         log.With().Str("component", "grading_service").Logger(),
	}
}

// SubmitEvaluation grades one attempt. The answer list arrives in
// presentation order with one entry per question; unanswered questions carry
// the empty sentinel and never score. The verdict and the raw answers are
// queued for async persistence before returning.
func (s *GradingService) SubmitEvaluation(ctx context.Context, participantID int, evaluationID uuid.UUID, answers []exam.SubmittedAnswer) (*exam.Result, error) {
	answerKey, err := s.evalService.GetAnswerKey(ctx, evaluationID)
	if err != nil {
		metrics.GradingFailures.Inc()
		return nil, fmt.Errorf("get answer key: %w", err)
	}

	payload, err := s.evalService.GetPayload(ctx, evaluationID)
	if err != nil {
		metrics.GradingFailures.Inc()
		return nil, fmt.Errorf("get payload: %w", err)
	}

	points := make(map[string]int, len(payload.Questions))
	totalPoints := 0
	for _, q := range payload.Questions {
		points[q.ID.String()] = q.Points
		totalPoints += q.Points
	}

	earned := 0
	for _, a := range answers {
		if a.Answer == exam.Unanswered {
			continue
		}
		qid := a.QuestionID.String()
		correct, ok := answerKey[qid]
		if !ok {
			continue
		}
		if answersMatch(a.Answer, correct) {
			earned += points[qid]
		}
	}

	var score float64
	if totalPoints > 0 {
		score = float64(earned) / float64(totalPoints) * 100
	}
	reussi := score >= payload.PassMark

	s.queueAnswers(ctx, participantID, evaluationID, answers)
	s.queueResult(ctx, participantID, evaluationID, score, reussi)

	s.log.Info().
		Int("participant_id", participantID).
		Str("evaluation_id", evaluationID.String()).
		Float64("score", score).
		Bool("reussi", reussi).
		Int("earned", earned).
		Int("total", totalPoints).
		Msg("Evaluation graded")

	return &exam.Result{Score: score, Passed: reussi}, nil
}

// answersMatch compares a given answer against the key. Free-text answers
// are compared case-insensitively after trimming; choice answers must match
// the stored option exactly, which the engine already guarantees.
func answersMatch(given, correct string) bool {
	if given == correct {
		return true
	}
	return strings.EqualFold(strings.TrimSpace(given), strings.TrimSpace(correct))
}

// queueAnswers pushes the final answer set for async persistence.
func (s *GradingService) queueAnswers(ctx context.Context, participantID int, evaluationID uuid.UUID, answers []exam.SubmittedAnswer) {
	pipe := s.rdb.Pipeline()
	for _, a := range answers {
		raw, err := json.Marshal(map[string]interface{}{
			"participant_id": participantID,
			"evaluation_id":  evaluationID.String(),
			"q_id":           a.QuestionID.String(),
			"answer":         a.Answer,
		})
		if err != nil {
			continue
		}
		pipe.RPush(ctx, config.WorkerKey.PersistAnswersQueue, raw)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		s.log.Error().Err(err).Msg("Failed to queue answers for persistence")
	}
}

// queueResult pushes the grading verdict for async persistence and notifies
// the trainer's live monitor channel.
func (s *GradingService) queueResult(ctx context.Context, participantID int, evaluationID uuid.UUID, score float64, reussi bool) {
	raw, _ := json.Marshal(map[string]interface{}{
		"participant_id": participantID,
		"evaluation_id":  evaluationID.String(),
		"score":          score,
		"reussi":         reussi,
	})
	if err := s.rdb.RPush(ctx, config.WorkerKey.PersistResultsQueue, raw).Err(); err != nil {
		s.log.Error().Err(err).
			Int("participant_id", participantID).
			Msg("CRITICAL: Failed to queue grading result")
	}

	event, _ := json.Marshal(map[string]interface{}{
		"type":           "graded",
		"participant_id": participantID,
		"score":          score,
		"reussi":         reussi,
	})
	// Best-effort: a missed live event is invisible to grading correctness.
	_ = s.rdb.Publish(ctx, config.CacheKey.EvaluationMonitorChannel(evaluationID.String()), event).Err()
}
