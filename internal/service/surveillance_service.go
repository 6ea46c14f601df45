package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Breniell/certtrack-proctor/internal/config"
	"github.com/Breniell/certtrack-proctor/internal/metrics"
	"github.com/Breniell/certtrack-proctor/internal/model"
	"github.com/Breniell/certtrack-proctor/internal/repository"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// ErrUnknownSession is returned when an audit call references a session the
// service never saw start.
var ErrUnknownSession = errors.New("unknown surveillance session")

// sessionMeta ties a live engine session back to its attempt identity.
type sessionMeta struct {
	evaluationID  uuid.UUID
	participantID int
}

// SurveillanceService implements exam.AuditLog. Interaction events are queued
// to Redis for batch persistence and mirrored on the evaluation's Pub/Sub
// channel so trainer monitors see them live. It also serves the post-hoc
// analysis and report endpoints.
type SurveillanceService struct {
	sessionRepo *repository.SessionRepository
	monitorRepo *repository.MonitorRepository
	rdb         *redis.Client
	log         zerolog.Logger

	mu   sync.RWMutex
	meta map[uuid.UUID]sessionMeta
}

// NewSurveillanceService creates a new SurveillanceService.
func NewSurveillanceService(
	sessionRepo *repository.SessionRepository,
	monitorRepo *repository.MonitorRepository,
	rdb *redis.Client,
	log zerolog.Logger,
) *SurveillanceService {
	return &SurveillanceService{
		sessionRepo: sessionRepo,
		monitorRepo: monitorRepo,
		rdb:         rdb,
		log:         log.With().Str("component", "surveillance_service").Logger(),
		meta:        make(map[uuid.UUID]sessionMeta),
	}
}

// StartExamSession registers a live session for auditing and announces it on
// the monitor channel. Must be called before any LogInteraction for the
// session.
func (s *SurveillanceService) StartExamSession(ctx context.Context, sessionID, evaluationID uuid.UUID, participantID int) error {
	s.mu.Lock()
	s.meta[sessionID] = sessionMeta{evaluationID: evaluationID, participantID: participantID}
	s.mu.Unlock()

	startKey := config.CacheKey.SessionStartKey(evaluationID.String(), participantID)
	if err := s.rdb.Set(ctx, startKey, time.Now().Unix(), 0).Err(); err != nil {
		s.log.Warn().Err(err).Msg("Failed to cache session start time")
	}

	s.publishMonitorEvent(ctx, evaluationID, map[string]interface{}{
		"type":           "session_started",
		"session_id":     sessionID.String(),
		"participant_id": participantID,
	})

	metrics.SessionsStarted.Inc()
	metrics.LiveSessions.Inc()
	return nil
}

// LogInteraction records one audited client event. The event goes to the
// persistence queue and, best-effort, to the live monitor channel. An error
// here is surfaced to the caller but never blocks the exam flow; the engine
// swallows it.
func (s *SurveillanceService) LogInteraction(ctx context.Context, sessionID uuid.UUID, eventType, details string) error {
	s.mu.RLock()
	m, ok := s.meta[sessionID]
	s.mu.RUnlock()
	if !ok {
		return ErrUnknownSession
	}

	raw, err := json.Marshal(map[string]interface{}{
		"session_id":     sessionID.String(),
		"evaluation_id":  m.evaluationID.String(),
		"participant_id": m.participantID,
		"kind":           eventType,
		"details":        details,
		"timestamp":      time.Now().Unix(),
	})
	if err != nil {
		return fmt.Errorf("marshal interaction: %w", err)
	}

	if err := s.rdb.RPush(ctx, config.WorkerKey.PersistViolationsQueue, raw).Err(); err != nil {
		return fmt.Errorf("queue interaction: %w", err)
	}

	metrics.Violations.WithLabelValues(eventType).Inc()

	s.publishMonitorEvent(ctx, m.evaluationID, map[string]interface{}{
		"type":           "violation",
		"session_id":     sessionID.String(),
		"participant_id": m.participantID,
		"kind":           eventType,
		"details":        details,
	})
	return nil
}

// SessionEnded finalizes auditing for a session: the terminal status is
// persisted, the attempt's transient Redis state is dropped, and the monitor
// channel is notified.
func (s *SurveillanceService) SessionEnded(ctx context.Context, sessionID uuid.UUID, status string) error {
	s.mu.Lock()
	m, ok := s.meta[sessionID]
	delete(s.meta, sessionID)
	s.mu.Unlock()
	if !ok {
		return ErrUnknownSession
	}

	// The result worker persists SUBMITTED outcomes along with the score;
	// only a lock needs a direct status write since no score may follow.
	if status == string(model.SessionStatusLocked) {
		if err := s.sessionRepo.UpdateStatus(ctx, m.evaluationID, m.participantID, model.SessionStatusLocked); err != nil {
			s.log.Error().Err(err).
				Str("session_id", sessionID.String()).
				Msg("Failed to persist locked status")
		}
	}

	pipe := s.rdb.Pipeline()
	pipe.Del(ctx, config.CacheKey.SessionStartKey(m.evaluationID.String(), m.participantID))
	pipe.Del(ctx, config.CacheKey.ParticipantAnswersKey(m.evaluationID.String(), m.participantID))
	if _, err := pipe.Exec(ctx); err != nil {
		s.log.Warn().Err(err).Msg("Failed to drop session cache keys")
	}

	s.publishMonitorEvent(ctx, m.evaluationID, map[string]interface{}{
		"type":           "session_ended",
		"session_id":     sessionID.String(),
		"participant_id": m.participantID,
		"status":         status,
	})

	metrics.SessionsCompleted.WithLabelValues(status).Inc()
	metrics.LiveSessions.Dec()

	s.log.Info().
		Str("session_id", sessionID.String()).
		Str("status", status).
		Msg("Surveillance session ended")
	return nil
}

// publishMonitorEvent fans an event out to trainer monitors. Best-effort.
func (s *SurveillanceService) publishMonitorEvent(ctx context.Context, evaluationID uuid.UUID, event map[string]interface{}) {
	raw, err := json.Marshal(event)
	if err != nil {
		return
	}
	if err := s.rdb.Publish(ctx, config.CacheKey.EvaluationMonitorChannel(evaluationID.String()), raw).Err(); err != nil {
		s.log.Debug().Err(err).Msg("Monitor publish failed")
	}
}

// Suspicion weights per violation kind. Paste and copy weigh more than
// focus loss because they imply content exfiltration rather than a stray
// click.
var suspicionWeights = map[string]float64{
	"PASTE":             25,
	"COPY":              20,
	"PRINT_ATTEMPT":     15,
	"TAB_BLUR":          10,
	"VISIBILITY_HIDDEN": 10,
}

// violationBreakdown tallies a timeline into a per-kind count and a 0-100
// suspicion score. Unrecognized kinds weigh 5.
func violationBreakdown(timeline []model.ViolationRecord) (map[string]int, float64) {
	byKind := make(map[string]int)
	var score float64
	for _, v := range timeline {
		byKind[v.Kind]++
		if w, ok := suspicionWeights[v.Kind]; ok {
			score += w
		} else {
			score += 5
		}
	}
	if score > 100 {
		score = 100
	}
	return byKind, score
}

// AnalyzeSession aggregates a session's persisted violation timeline into a
// per-kind breakdown and a 0-100 suspicion score.
func (s *SurveillanceService) AnalyzeSession(ctx context.Context, sessionID uuid.UUID) (*model.SessionAnalysis, error) {
	timeline, err := s.monitorRepo.ListViolationsBySession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list violations: %w", err)
	}

	byKind, score := violationBreakdown(timeline)

	return &model.SessionAnalysis{
		SessionID:        sessionID,
		ViolationCount:   len(timeline),
		ViolationsByKind: byKind,
		SuspiciousScore:  score,
	}, nil
}

// GenerateReport assembles the trainer-facing surveillance report for one
// attempt: the persisted session, its violation timeline, and the analysis.
func (s *SurveillanceService) GenerateReport(ctx context.Context, evaluationID uuid.UUID, participantID int) (*model.SurveillanceReport, error) {
	session, err := s.sessionRepo.GetByEvaluationAndParticipant(ctx, evaluationID, participantID)
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}

	timeline, err := s.monitorRepo.ListViolationsBySession(ctx, session.ID)
	if err != nil {
		return nil, fmt.Errorf("list violations: %w", err)
	}

	analysis, err := s.AnalyzeSession(ctx, session.ID)
	if err != nil {
		return nil, err
	}

	return &model.SurveillanceReport{
		Session:   *session,
		Timeline:  timeline,
		Analysis:  *analysis,
		CreatedAt: time.Now(),
	}, nil
}

// ParticipantProgressSnapshot holds answered and violation counts for every
// participant in an evaluation.
type ParticipantProgressSnapshot struct {
	AnsweredCounts  map[int]int64 `json:"answered_counts"`
	ViolationCounts map[int]int64 `json:"violation_counts"`
	TotalViolations int64         `json:"total_violations"`
}

// GetParticipantProgress returns answered counts and violation counts. The
// two independent fetches run in parallel to minimize latency.
func (s *SurveillanceService) GetParticipantProgress(ctx context.Context, evaluationID uuid.UUID) (*ParticipantProgressSnapshot, error) {
	snapshot := &ParticipantProgressSnapshot{
		AnsweredCounts:  make(map[int]int64),
		ViolationCounts: make(map[int]int64),
	}

	var (
		answeredCounts  map[int]int64
		violationCounts map[int]int64
		answeredErr     error
		violationErr    error
		wg              sync.WaitGroup
	)

	wg.Add(1)
	go func() {
		defer wg.Done()
		answeredCounts, answeredErr = s.monitorRepo.GetAnsweredCounts(ctx, evaluationID)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		violationCounts, violationErr = s.monitorRepo.GetViolationCounts(ctx, evaluationID)
	}()

	wg.Wait()

	// Answered counts are critical; violation counts are best-effort.
	if answeredErr != nil {
		return nil, answeredErr
	}

	if answeredCounts != nil {
		snapshot.AnsweredCounts = answeredCounts
	}

	if violationErr == nil && violationCounts != nil {
		snapshot.ViolationCounts = violationCounts
		for _, count := range violationCounts {
			snapshot.TotalViolations += count
		}
	}

	return snapshot, nil
}
