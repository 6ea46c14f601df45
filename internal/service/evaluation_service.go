package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Breniell/certtrack-proctor/internal/config"
	"github.com/Breniell/certtrack-proctor/internal/exam"
	"github.com/Breniell/certtrack-proctor/internal/model"
	"github.com/Breniell/certtrack-proctor/internal/repository"
	"github.com/Breniell/certtrack-proctor/internal/response"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Domain errors.
var (
	ErrNotEvaluationAuthor    = errors.New("not the author of this evaluation")
	ErrNoQuestions            = errors.New("evaluation has no questions, cannot publish")
	ErrEvaluationNotDraft     = errors.New("evaluation status is not DRAFT")
	ErrEvaluationNotPublished = errors.New("evaluation status is not PUBLISHED")
	ErrInvalidQuestion        = errors.New("question definition is invalid")
)

// EvaluationService handles evaluation business logic and Redis caching.
// It also implements exam.EvaluationProvider: the session engine loads its
// question sets through the Redis payload cache populated on publish.
type EvaluationService struct {
	evalRepo     *repository.EvaluationRepository
	questionRepo *repository.QuestionRepository
	rdb          *redis.Client
	log          zerolog.Logger
}

// NewEvaluationService creates a new EvaluationService.
func NewEvaluationService(
	evalRepo *repository.EvaluationRepository,
	questionRepo *repository.QuestionRepository,
	rdb *redis.Client,
	log zerolog.Logger,
) *EvaluationService {
	return &EvaluationService{
		evalRepo:     evalRepo,
		questionRepo: questionRepo,
		rdb:          rdb,
		log:          log.With().Str("component", "evaluation_service").Logger(),
	}
}

// GetByID retrieves an evaluation by its UUID.
func (s *EvaluationService) GetByID(ctx context.Context, id uuid.UUID) (*model.Evaluation, error) {
	return s.evalRepo.GetByID(ctx, id)
}

// ListByTrainer retrieves the trainer's evaluations with pagination.
func (s *EvaluationService) ListByTrainer(ctx context.Context, trainerID, page, perPage int) ([]model.Evaluation, *response.Pagination, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 10
	}
	if perPage > 100 {
		perPage = 100
	}

	evaluations, total, err := s.evalRepo.ListByTrainerPaginated(ctx, trainerID, page, perPage)
	if err != nil {
		return nil, nil, err
	}

	if evaluations == nil {
		evaluations = []model.Evaluation{}
	}

	totalPages := int((total + int64(perPage) - 1) / int64(perPage))

	pagination := &response.Pagination{
		Page:       page,
		PerPage:    perPage,
		TotalItems: total,
		TotalPages: totalPages,
	}

	return evaluations, pagination, nil
}

// Create inserts a new evaluation as DRAFT.
func (s *EvaluationService) Create(ctx context.Context, ev *model.Evaluation) error {
	ev.Status = model.EvaluationStatusDraft
	if ev.PassMark <= 0 {
		ev.PassMark = 50
	}
	return s.evalRepo.Create(ctx, ev)
}

// Update modifies an existing draft evaluation.
func (s *EvaluationService) Update(ctx context.Context, trainerID int, ev *model.Evaluation) error {
	existing, err := s.evalRepo.GetByID(ctx, ev.ID)
	if err != nil {
		return err
	}
	if existing.TrainerID != trainerID {
		return ErrNotEvaluationAuthor
	}
	if existing.Status != model.EvaluationStatusDraft {
		return ErrEvaluationNotDraft
	}
	return s.evalRepo.Update(ctx, ev)
}

// Delete removes a draft evaluation.
func (s *EvaluationService) Delete(ctx context.Context, id uuid.UUID, trainerID int) error {
	existing, err := s.evalRepo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if existing.TrainerID != trainerID {
		return ErrNotEvaluationAuthor
	}
	if existing.Status != model.EvaluationStatusDraft {
		return ErrEvaluationNotDraft
	}
	return s.evalRepo.Delete(ctx, id)
}

// ListQuestions retrieves the full question set, correct answers included.
// Trainer-facing only.
func (s *EvaluationService) ListQuestions(ctx context.Context, evaluationID uuid.UUID, trainerID int) ([]model.Question, error) {
	ev, err := s.evalRepo.GetByID(ctx, evaluationID)
	if err != nil {
		return nil, err
	}
	if ev.TrainerID != trainerID {
		return nil, ErrNotEvaluationAuthor
	}
	return s.questionRepo.ListByEvaluation(ctx, evaluationID)
}

// AddQuestion appends a question to a draft evaluation.
func (s *EvaluationService) AddQuestion(ctx context.Context, trainerID int, q *model.Question) error {
	ev, err := s.evalRepo.GetByID(ctx, q.EvaluationID)
	if err != nil {
		return err
	}
	if ev.TrainerID != trainerID {
		return ErrNotEvaluationAuthor
	}
	if ev.Status != model.EvaluationStatusDraft {
		return ErrEvaluationNotDraft
	}
	if err := validateQuestion(q); err != nil {
		return err
	}
	return s.questionRepo.Create(ctx, q)
}

// ReplaceQuestions atomically swaps the full question set of a draft.
func (s *EvaluationService) ReplaceQuestions(ctx context.Context, trainerID int, evaluationID uuid.UUID, questions []model.Question) error {
	ev, err := s.evalRepo.GetByID(ctx, evaluationID)
	if err != nil {
		return err
	}
	if ev.TrainerID != trainerID {
		return ErrNotEvaluationAuthor
	}
	if ev.Status != model.EvaluationStatusDraft {
		return ErrEvaluationNotDraft
	}
	for i := range questions {
		if err := validateQuestion(&questions[i]); err != nil {
			return err
		}
	}
	return s.questionRepo.ReplaceAll(ctx, evaluationID, questions)
}

// validateQuestion enforces per-kind answer shape at authoring time.
func validateQuestion(q *model.Question) error {
	switch q.Kind {
	case model.QuestionKindMultipleChoice:
		if len(q.Options) < 2 {
			return fmt.Errorf("%w: multiple choice needs at least 2 options", ErrInvalidQuestion)
		}
		found := false
		for _, opt := range q.Options {
			if opt == q.CorrectAnswer {
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("%w: correct answer is not among the options", ErrInvalidQuestion)
		}
	case model.QuestionKindTrueFalse:
		if q.CorrectAnswer != model.AnswerVrai && q.CorrectAnswer != model.AnswerFaux {
			return fmt.Errorf("%w: true/false answer must be %q or %q", ErrInvalidQuestion, model.AnswerVrai, model.AnswerFaux)
		}
		q.Options = nil
	case model.QuestionKindFreeText:
		if q.CorrectAnswer == "" {
			return fmt.Errorf("%w: free text needs an expected answer", ErrInvalidQuestion)
		}
		q.Options = nil
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidQuestion, q.Kind)
	}
	if q.Points <= 0 {
		q.Points = 1
	}
	return nil
}

// Publish changes evaluation status to PUBLISHED and caches the payload +
// answer key in Redis. This is the critical path that populates the fast
// lane the session engine and RAM grading read from.
func (s *EvaluationService) Publish(ctx context.Context, evaluationID uuid.UUID, trainerID int) error {
	ev, err := s.evalRepo.GetByID(ctx, evaluationID)
	if err != nil {
		return fmt.Errorf("get evaluation: %w", err)
	}

	if ev.TrainerID != trainerID {
		return ErrNotEvaluationAuthor
	}
	if ev.Status != model.EvaluationStatusDraft {
		return ErrEvaluationNotDraft
	}

	if err := s.WarmCache(ctx, ev); err != nil {
		return err
	}

	if err := s.evalRepo.UpdateStatus(ctx, evaluationID, model.EvaluationStatusPublished); err != nil {
		return fmt.Errorf("update status: %w", err)
	}

	s.log.Info().Str("evaluation_id", evaluationID.String()).Msg("Evaluation published")
	return nil
}

// Archive retires a published evaluation and drops its caches.
func (s *EvaluationService) Archive(ctx context.Context, evaluationID uuid.UUID, trainerID int) error {
	ev, err := s.evalRepo.GetByID(ctx, evaluationID)
	if err != nil {
		return fmt.Errorf("get evaluation: %w", err)
	}
	if ev.TrainerID != trainerID {
		return ErrNotEvaluationAuthor
	}
	if ev.Status != model.EvaluationStatusPublished {
		return ErrEvaluationNotPublished
	}

	if err := s.evalRepo.UpdateStatus(ctx, evaluationID, model.EvaluationStatusArchived); err != nil {
		return fmt.Errorf("update status: %w", err)
	}

	id := evaluationID.String()
	pipe := s.rdb.Pipeline()
	pipe.Del(ctx, config.CacheKey.EvaluationPayloadKey(id))
	pipe.Del(ctx, config.CacheKey.EvaluationAnswerKey(id))
	if _, err := pipe.Exec(ctx); err != nil {
		s.log.Warn().Err(err).Str("evaluation_id", id).Msg("Failed to drop caches on archive")
	}

	s.log.Info().Str("evaluation_id", id).Msg("Evaluation archived")
	return nil
}

// WarmCache loads an evaluation's payload and answer key from PostgreSQL
// into Redis. Core cache-warming logic used by Publish and PrewarmAllCaches.
func (s *EvaluationService) WarmCache(ctx context.Context, ev *model.Evaluation) error {
	questions, err := s.questionRepo.ListByEvaluation(ctx, ev.ID)
	if err != nil {
		return fmt.Errorf("list questions: %w", err)
	}
	if len(questions) == 0 {
		return ErrNoQuestions
	}

	// Participant-facing payload, without correct answers.
	participantQuestions := make([]model.QuestionForParticipant, len(questions))
	for i, q := range questions {
		participantQuestions[i] = model.QuestionForParticipant{
			ID:       q.ID,
			Text:     q.Text,
			Kind:     q.Kind,
			Options:  q.Options,
			Points:   q.Points,
			OrderNum: q.OrderNum,
		}
	}

	payload := model.EvaluationPayload{
		EvaluationID: ev.ID,
		Title:        ev.Title,
		Duration:     ev.DurationMinutes,
		PassMark:     ev.PassMark,
		Questions:    participantQuestions,
	}

	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	// Answer key hash for RAM grading: question ID → correct answer.
	answerKey := make(map[string]interface{}, len(questions))
	for _, q := range questions {
		answerKey[q.ID.String()] = q.CorrectAnswer
	}

	id := ev.ID.String()
	pipe := s.rdb.Pipeline()
	pipe.Set(ctx, config.CacheKey.EvaluationPayloadKey(id), payloadJSON, 0)
	pipe.Del(ctx, config.CacheKey.EvaluationAnswerKey(id))
	pipe.HSet(ctx, config.CacheKey.EvaluationAnswerKey(id), answerKey)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("cache to redis: %w", err)
	}

	s.log.Debug().
		Str("evaluation_id", id).
		Int("questions", len(questions)).
		Msg("Cache warmed")
	return nil
}

// PrewarmAllCaches loads all published evaluations into Redis on application
// startup. This prevents lazy-loading races under thundering herd traffic.
func (s *EvaluationService) PrewarmAllCaches(ctx context.Context) error {
	evaluations, err := s.evalRepo.ListPublished(ctx)
	if err != nil {
		return fmt.Errorf("list published evaluations: %w", err)
	}

	if len(evaluations) == 0 {
		s.log.Info().Msg("No published evaluations to prewarm")
		return nil
	}

	s.log.Info().Int("count", len(evaluations)).Msg("Prewarming published evaluations...")

	warmed := 0
	for i := range evaluations {
		if err := s.WarmCache(ctx, &evaluations[i]); err != nil {
			s.log.Warn().
				Err(err).
				Str("evaluation_id", evaluations[i].ID.String()).
				Msg("Failed to warm evaluation, skipping")
			continue
		}
		warmed++
	}

	s.log.Info().
		Int("warmed", warmed).
		Int("total", len(evaluations)).
		Msg("Prewarming complete")
	return nil
}

// GetPayload retrieves the cached participant payload from Redis.
func (s *EvaluationService) GetPayload(ctx context.Context, evaluationID uuid.UUID) (*model.EvaluationPayload, error) {
	data, err := s.rdb.Get(ctx, config.CacheKey.EvaluationPayloadKey(evaluationID.String())).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, errors.New("evaluation not published or payload not cached")
		}
		return nil, fmt.Errorf("get payload: %w", err)
	}

	var payload model.EvaluationPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("unmarshal payload: %w", err)
	}
	return &payload, nil
}

// GetAnswerKey retrieves the answer key from Redis for instant grading.
func (s *EvaluationService) GetAnswerKey(ctx context.Context, evaluationID uuid.UUID) (map[string]string, error) {
	result, err := s.rdb.HGetAll(ctx, config.CacheKey.EvaluationAnswerKey(evaluationID.String())).Result()
	if err != nil {
		return nil, fmt.Errorf("get answer key: %w", err)
	}
	if len(result) == 0 {
		return nil, errors.New("answer key not found in cache")
	}
	return result, nil
}

// GetEvaluation implements exam.EvaluationProvider. The engine gets its
// question set from the cached participant payload, so it can never see a
// correct answer.
func (s *EvaluationService) GetEvaluation(ctx context.Context, evaluationID uuid.UUID) (*exam.Evaluation, error) {
	payload, err := s.GetPayload(ctx, evaluationID)
	if err != nil {
		return nil, err
	}

	questions := make([]exam.Question, len(payload.Questions))
	for i, q := range payload.Questions {
		questions[i] = exam.Question{
			ID:      q.ID,
			Text:    q.Text,
			Kind:    exam.Kind(q.Kind),
			Options: q.Options,
			Points:  q.Points,
		}
	}

	return &exam.Evaluation{
		ID:              payload.EvaluationID,
		Title:           payload.Title,
		DurationMinutes: payload.Duration,
		Questions:       questions,
	}, nil
}
