package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/Breniell/certtrack-proctor/internal/config"
	"github.com/Breniell/certtrack-proctor/internal/exam"
	"github.com/Breniell/certtrack-proctor/internal/model"
	"github.com/Breniell/certtrack-proctor/internal/repository"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Session domain errors.
var (
	ErrEvaluationNotAvailable = errors.New("evaluation is not available for joining")
	ErrInvalidEntryToken      = errors.New("invalid entry token")
	ErrSessionCompleted       = errors.New("evaluation session is already completed")
	ErrSessionLocked          = errors.New("evaluation session is locked")
	ErrNoActiveSession        = errors.New("no active session for this evaluation")
)

// SessionService orchestrates participant attempts: the persisted session
// row, the in-memory engine session behind it, and the surveillance hooks.
type SessionService struct {
	sessionRepo  *repository.SessionRepository
	evalRepo     *repository.EvaluationRepository
	evalService  *EvaluationService
	surveillance *SurveillanceService
	registry     *exam.Registry
	rdb          *redis.Client
	log          zerolog.Logger
}

// NewSessionService creates a new SessionService.
func NewSessionService(
	sessionRepo *repository.SessionRepository,
	evalRepo *repository.EvaluationRepository,
	evalService *EvaluationService,
	surveillance *SurveillanceService,
	registry *exam.Registry,
	rdb *redis.Client,
	log zerolog.Logger,
) *SessionService {
	return &SessionService{
		sessionRepo:  sessionRepo,
		evalRepo:     evalRepo,
		evalService:  evalService,
		surveillance: surveillance,
		registry:     registry,
		rdb:          rdb,
		log:          log.With().Str("component", "session_service").Logger(),
	}
}

// Registry exposes the engine registry for the streaming handler.
func (s *SessionService) Registry() *exam.Registry {
	return s.registry
}

// LobbyStatus represents the concrete state of an evaluation in the lobby.
type LobbyStatus string

const (
	LobbyStatusAvailable  LobbyStatus = "AVAILABLE"
	LobbyStatusInProgress LobbyStatus = "IN_PROGRESS"
	LobbyStatusCompleted  LobbyStatus = "COMPLETED"
)

// LobbyEvaluation represents an evaluation as displayed in the participant
// lobby. The entry token is never exposed here.
type LobbyEvaluation struct {
	ID              uuid.UUID            `json:"id"`
	Title           string               `json:"titre"`
	FormationCode   string               `json:"formation_code,omitempty"`
	DurationMinutes int                  `json:"duree"`
	PassMark        float64              `json:"seuil_reussite"`
	QuestionCount   int                  `json:"question_count"`
	LobbyStatus     LobbyStatus          `json:"lobby_status"`
	SessionStatus   *model.SessionStatus `json:"session_status,omitempty"`
	FinalScore      *float64             `json:"final_score,omitempty"`
	Reussi          *bool                `json:"reussi,omitempty"`
}

// GetLobby returns the published evaluations with the participant's own
// attempt state overlaid.
func (s *SessionService) GetLobby(ctx context.Context, participantID int) ([]LobbyEvaluation, error) {
	published, err := s.evalRepo.ListPublished(ctx)
	if err != nil {
		return nil, fmt.Errorf("list published: %w", err)
	}

	sessions, err := s.sessionRepo.ListByParticipant(ctx, participantID)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}

	sessionMap := make(map[uuid.UUID]*model.EvaluationSession, len(sessions))
	for i := range sessions {
		sessionMap[sessions[i].EvaluationID] = &sessions[i]
	}

	lobby := make([]LobbyEvaluation, 0, len(published))
	for _, ev := range published {
		entry := LobbyEvaluation{
			ID:              ev.ID,
			Title:           ev.Title,
			FormationCode:   ev.FormationCode,
			DurationMinutes: ev.DurationMinutes,
			PassMark:        ev.PassMark,
			QuestionCount:   ev.QuestionCount,
			LobbyStatus:     LobbyStatusAvailable,
		}

		if sess, ok := sessionMap[ev.ID]; ok {
			entry.SessionStatus = &sess.Status
			entry.FinalScore = sess.FinalScore
			entry.Reussi = sess.Reussi
			if sess.Status == model.SessionStatusInProgress {
				entry.LobbyStatus = LobbyStatusInProgress
			} else {
				entry.LobbyStatus = LobbyStatusCompleted
			}
		}

		lobby = append(lobby, entry)
	}

	return lobby, nil
}

// Join validates the entry token, ensures a persisted session row, and
// starts (or resumes) the in-memory engine session. Joining is idempotent:
// a reconnecting participant gets their running attempt back with the same
// question order and clocks.
func (s *SessionService) Join(ctx context.Context, evaluationID uuid.UUID, participantID int, entryToken string) (*exam.Session, bool, error) {
	ev, err := s.evalRepo.GetByID(ctx, evaluationID)
	if err != nil {
		return nil, false, fmt.Errorf("get evaluation: %w", err)
	}

	if ev.Status != model.EvaluationStatusPublished {
		return nil, false, ErrEvaluationNotAvailable
	}
	if ev.EntryToken != entryToken {
		return nil, false, ErrInvalidEntryToken
	}

	existing, err := s.sessionRepo.GetByEvaluationAndParticipant(ctx, evaluationID, participantID)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, false, fmt.Errorf("check existing session: %w", err)
	}

	// The persisted row's ID becomes the engine session's ID, so violations
	// and audit writes land on the same key the trainer reads query by.
	var sessionID uuid.UUID
	if existing != nil {
		switch existing.Status {
		case model.SessionStatusSubmitted:
			return nil, false, ErrSessionCompleted
		case model.SessionStatusLocked:
			return nil, false, ErrSessionLocked
		}
		sessionID = existing.ID
	} else {
		row := &model.EvaluationSession{
			EvaluationID:  evaluationID,
			ParticipantID: participantID,
		}
		switch err := s.sessionRepo.Create(ctx, row); {
		case err == nil:
			sessionID = row.ID
		case errors.Is(err, pgx.ErrNoRows):
			// Concurrent join already inserted the row; adopt its identity.
			racer, err := s.sessionRepo.GetByEvaluationAndParticipant(ctx, evaluationID, participantID)
			if err != nil {
				return nil, false, fmt.Errorf("fetch concurrent session: %w", err)
			}
			sessionID = racer.ID
		default:
			return nil, false, fmt.Errorf("create session: %w", err)
		}
	}

	sess, resumed, err := s.registry.Start(ctx, sessionID, evaluationID, participantID)
	if err != nil {
		return nil, false, fmt.Errorf("start engine session: %w", err)
	}

	if !resumed {
		if err := s.surveillance.StartExamSession(ctx, sess.ID, evaluationID, participantID); err != nil {
			s.log.Warn().Err(err).Msg("Failed to register surveillance session")
		}
		s.queueQuestionOrder(ctx, sess)
	}

	return sess, resumed, nil
}

// queueQuestionOrder records the fresh shuffle for async persistence, so a
// trainer reviewing answers later sees them in the order the participant did.
func (s *SessionService) queueQuestionOrder(ctx context.Context, sess *exam.Session) {
	raw, err := json.Marshal(map[string]interface{}{
		"evaluation_id":  sess.EvaluationID.String(),
		"participant_id": sess.ParticipantID,
		"order":          sess.QuestionOrder(),
	})
	if err != nil {
		return
	}
	if err := s.rdb.RPush(ctx, config.WorkerKey.PersistQuestionOrderQueue, raw).Err(); err != nil {
		s.log.Error().Err(err).Msg("Failed to queue question order")
	}
}

// VerifyActiveSession checks that a participant has an IN_PROGRESS session
// for the given evaluation.
func (s *SessionService) VerifyActiveSession(ctx context.Context, evaluationID uuid.UUID, participantID int) error {
	sess, err := s.sessionRepo.GetByEvaluationAndParticipant(ctx, evaluationID, participantID)
	if err != nil {
		return ErrNoActiveSession
	}
	switch sess.Status {
	case model.SessionStatusSubmitted:
		return ErrSessionCompleted
	case model.SessionStatusLocked:
		return ErrSessionLocked
	}
	return nil
}

// GetState returns what a reconnecting client needs to resume an attempt.
// The live engine session is authoritative; when the engine no longer holds
// the session (e.g. after a restart) the persisted row plus the Redis
// autosave buffer serve as fallback.
func (s *SessionService) GetState(ctx context.Context, evaluationID uuid.UUID, participantID int) (*model.SessionState, error) {
	if live := s.registry.Get(evaluationID, participantID); live != nil {
		return &model.SessionState{
			EvaluationID:      evaluationID,
			ParticipantID:     participantID,
			Status:            engineStateToStatus(live.State()),
			CurrentIndex:      live.CurrentIndex(),
			RemainingSeconds:  live.RemainingSeconds(),
			QuestionRemaining: live.QuestionRemainingSeconds(),
			ViolationCount:    live.ViolationCount(),
			AutosavedAnswers:  live.AnswersSnapshot(),
		}, nil
	}

	row, err := s.sessionRepo.GetByEvaluationAndParticipant(ctx, evaluationID, participantID)
	if err != nil {
		return nil, ErrNoActiveSession
	}

	answers, err := s.rdb.HGetAll(ctx, config.CacheKey.ParticipantAnswersKey(evaluationID.String(), participantID)).Result()
	if err != nil {
		return nil, fmt.Errorf("get autosaved answers: %w", err)
	}

	remaining := 0
	if row.Status == model.SessionStatusInProgress {
		remaining, err = s.remainingFromCache(ctx, evaluationID, participantID, row)
		if err != nil {
			return nil, err
		}
	}

	return &model.SessionState{
		EvaluationID:     evaluationID,
		ParticipantID:    participantID,
		Status:           row.Status,
		RemainingSeconds: remaining,
		ViolationCount:   row.ViolationCount,
		AutosavedAnswers: answers,
	}, nil
}

// remainingFromCache computes the remaining global time from the cached
// session start, self-healing the cache from PostgreSQL on a miss.
func (s *SessionService) remainingFromCache(ctx context.Context, evaluationID uuid.UUID, participantID int, row *model.EvaluationSession) (int, error) {
	payload, err := s.evalService.GetPayload(ctx, evaluationID)
	if err != nil {
		return 0, fmt.Errorf("get payload: %w", err)
	}

	var startUnix int64
	startKey := config.CacheKey.SessionStartKey(evaluationID.String(), participantID)

	val, err := s.rdb.Get(ctx, startKey).Result()
	switch {
	case errors.Is(err, redis.Nil):
		startUnix = row.StartedAt.Unix()
		_ = s.rdb.Set(ctx, startKey, startUnix, 0)
	case err != nil:
		return 0, fmt.Errorf("get start time: %w", err)
	default:
		startUnix, err = strconv.ParseInt(val, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid start time in cache: %w", err)
		}
	}

	endTime := time.Unix(startUnix, 0).Add(time.Duration(payload.Duration) * time.Minute)
	remaining := time.Until(endTime)
	if remaining < 0 {
		remaining = 0
	}
	return int(remaining.Seconds()), nil
}

// engineStateToStatus maps an in-memory engine state onto the persisted
// session status vocabulary.
func engineStateToStatus(st exam.State) model.SessionStatus {
	switch st {
	case exam.StateSubmitted:
		return model.SessionStatusSubmitted
	case exam.StateLocked:
		return model.SessionStatusLocked
	default:
		return model.SessionStatusInProgress
	}
}

// GetResults retrieves paginated attempt results for a trainer's evaluation.
func (s *SessionService) GetResults(ctx context.Context, evaluationID uuid.UUID, trainerID, page, perPage int) ([]repository.EvaluationResult, int64, error) {
	ev, err := s.evalRepo.GetByID(ctx, evaluationID)
	if err != nil {
		return nil, 0, fmt.Errorf("get evaluation: %w", err)
	}
	if ev.TrainerID != trainerID {
		return nil, 0, ErrNotEvaluationAuthor
	}

	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 10
	}
	if perPage > 100 {
		perPage = 100
	}

	return s.sessionRepo.ListByEvaluation(ctx, evaluationID, page, perPage)
}
