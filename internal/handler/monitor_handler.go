package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/Breniell/certtrack-proctor/internal/config"
	"github.com/Breniell/certtrack-proctor/internal/middleware"
	"github.com/Breniell/certtrack-proctor/internal/model"
	"github.com/Breniell/certtrack-proctor/internal/response"
	"github.com/Breniell/certtrack-proctor/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	refreshInterval   = 15 * time.Second
	keepAliveInterval = 30 * time.Second
	refreshTimeout    = 5 * time.Second // prevent slow queries from blocking the SSE loop
)

type MonitorHandler struct {
	rdb                 *redis.Client
	evalService         *service.EvaluationService
	sessionService      *service.SessionService
	surveillanceService *service.SurveillanceService
	log                 zerolog.Logger
}

func NewMonitorHandler(
	rdb *redis.Client,
	evalService *service.EvaluationService,
	sessionService *service.SessionService,
	surveillanceService *service.SurveillanceService,
	log zerolog.Logger,
) *MonitorHandler {
	return &MonitorHandler{
		rdb:                 rdb,
		evalService:         evalService,
		sessionService:      sessionService,
		surveillanceService: surveillanceService,
		log:                 log.With().Str("component", "monitor_handler").Logger(),
	}
}

// MonitorEvaluationSSE godoc
// GET /api/v1/trainer/evaluations/:evaluation_id/monitor
func (h *MonitorHandler) MonitorEvaluationSSE(c *gin.Context) {
	// 1. Auth check
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	evaluationID, ok := paramUUID(c, "evaluation_id")
	if !ok {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	ev, err := h.evalService.GetByID(c.Request.Context(), evaluationID)
	if err != nil {
		response.Fail(c, http.StatusNotFound, response.ErrNotFound)
		return
	}
	if ev.TrainerID != claims.UserID {
		response.Fail(c, http.StatusForbidden, response.ErrNotEvaluationAuthor)
		return
	}

	reqCtx := c.Request.Context()

	// 2. SSE headers
	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("Access-Control-Allow-Origin", "*")

	totalQuestions := ev.QuestionCount

	// 3. Build & send initial snapshot
	h.sendInitialSnapshot(c, reqCtx, evaluationID, claims.UserID, ev, totalQuestions)

	// 4. Subscribe to Redis Pub/Sub
	channelName := config.CacheKey.EvaluationMonitorChannel(evaluationID.String())
	pubsub := h.rdb.Subscribe(reqCtx, channelName)
	defer pubsub.Close()

	ch := pubsub.Channel()

	keepAliveTicker := time.NewTicker(keepAliveInterval)
	defer keepAliveTicker.Stop()

	refreshTicker := time.NewTicker(refreshInterval)
	defer refreshTicker.Stop()

	// Track whether any participant has joined so we can skip empty refreshes
	hasParticipants := false

	h.log.Info().Str("evaluation_id", evaluationID.String()).Msg("Trainer attached to live monitor SSE")

	// Pre-allocate a reusable ping payload (never changes)
	pingPayload, _ := json.Marshal(map[string]string{"type": "ping"})

	for {
		select {
		case <-reqCtx.Done():
			h.log.Info().Str("evaluation_id", evaluationID.String()).Msg("Trainer disconnected from live monitor SSE")
			return

		case msg := <-ch:
			// Forward raw JSON directly, no deserialization needed
			c.Writer.Write([]byte("data: "))
			c.Writer.Write([]byte(msg.Payload))
			c.Writer.Write([]byte("\n\n"))
			c.Writer.Flush()

			// A session_started/violation/graded event proves someone joined
			hasParticipants = true

		case <-refreshTicker.C:
			if !hasParticipants {
				continue // no point querying if nobody has joined
			}
			h.sendRefresh(c, reqCtx, evaluationID, totalQuestions)

		case <-keepAliveTicker.C:
			c.Writer.Write([]byte("data: "))
			c.Writer.Write(pingPayload)
			c.Writer.Write([]byte("\n\n"))
			c.Writer.Flush()
		}
	}
}

// sendInitialSnapshot gathers data and writes the first SSE event.
func (h *MonitorHandler) sendInitialSnapshot(
	c *gin.Context,
	ctx context.Context,
	evaluationID uuid.UUID,
	trainerID int,
	ev *model.Evaluation,
	totalQuestions int,
) {
	results, _, _ := h.sessionService.GetResults(ctx, evaluationID, trainerID, 1, 1000)

	totalJoined := len(results)
	totalInProgress := 0
	totalCompleted := 0
	totalLocked := 0

	participantsSnapshot := make([]map[string]interface{}, 0, len(results))
	for _, res := range results {
		switch res.Status {
		case model.SessionStatusInProgress:
			totalInProgress++
		case model.SessionStatusSubmitted:
			totalCompleted++
		case model.SessionStatusLocked:
			totalLocked++
		}

		var score float64
		if res.FinalScore != nil {
			score = *res.FinalScore
		}

		participantsSnapshot = append(participantsSnapshot, map[string]interface{}{
			"participant_id":  res.ParticipantID,
			"name":            res.Name,
			"department":      res.Department,
			"status":          res.Status,
			"score":           score,
			"started_at":      res.StartedAt,
			"answered_count":  int64(0),
			"violation_count": int64(res.ViolationCount),
			"total_questions": totalQuestions,
		})
	}

	// Fetch counts with a timeout so a slow query doesn't block the connection
	var initialTotalViolations int64
	fetchCtx, cancel := context.WithTimeout(ctx, refreshTimeout)
	defer cancel()

	if progress, err := h.surveillanceService.GetParticipantProgress(fetchCtx, evaluationID); err == nil {
		initialTotalViolations = progress.TotalViolations
		for i, p := range participantsSnapshot {
			pid, ok := p["participant_id"].(int)
			if !ok {
				continue
			}
			if count, found := progress.AnsweredCounts[pid]; found {
				participantsSnapshot[i]["answered_count"] = count
			}
			if count, found := progress.ViolationCounts[pid]; found {
				participantsSnapshot[i]["violation_count"] = count
			}
		}
	}

	c.SSEvent("message", map[string]interface{}{
		"type": "snapshot",
		"data": map[string]interface{}{
			"evaluation": map[string]interface{}{
				"id":              evaluationID.String(),
				"titre":           ev.Title,
				"duree":           ev.DurationMinutes,
				"total_questions": totalQuestions,
			},
			"stats": map[string]interface{}{
				"total_joined":      totalJoined,
				"total_in_progress": totalInProgress,
				"total_completed":   totalCompleted,
				"total_locked":      totalLocked,
				"total_violations":  initialTotalViolations,
			},
			"participants": participantsSnapshot,
		},
	})
	c.Writer.Flush()
}

// sendRefresh polls DB+Redis for current progress and sends a compact refresh event.
func (h *MonitorHandler) sendRefresh(c *gin.Context, parentCtx context.Context, evaluationID uuid.UUID, totalQuestions int) {
	// Scoped timeout prevents a slow query from stalling the SSE loop
	ctx, cancel := context.WithTimeout(parentCtx, refreshTimeout)
	defer cancel()

	progress, err := h.surveillanceService.GetParticipantProgress(ctx, evaluationID)
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to fetch participant progress for refresh")
		return
	}

	// Single-pass merge: iterate answered counts, decorate with violation counts
	progressData := make([]map[string]interface{}, 0, len(progress.AnsweredCounts)+len(progress.ViolationCounts))

	for pid, answered := range progress.AnsweredCounts {
		progressData = append(progressData, map[string]interface{}{
			"participant_id":  pid,
			"answered_count":  answered,
			"violation_count": progress.ViolationCounts[pid], // 0 if missing
		})
		delete(progress.ViolationCounts, pid) // mark as handled
	}

	// Remaining violation-only participants (already submitted or locked)
	for pid, violations := range progress.ViolationCounts {
		progressData = append(progressData, map[string]interface{}{
			"participant_id":  pid,
			"answered_count":  int64(0),
			"violation_count": violations,
		})
	}

	c.SSEvent("message", map[string]interface{}{
		"type":             "refresh",
		"total_questions":  totalQuestions,
		"total_violations": progress.TotalViolations,
		"participants":     progressData,
	})
	c.Writer.Flush()
}

// GetSurveillanceReport godoc
// GET /api/v1/trainer/evaluations/:evaluation_id/participants/:participant_id/report
// Builds the full post-exam surveillance report for one attempt.
func (h *MonitorHandler) GetSurveillanceReport(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	evaluationID, ok := paramUUID(c, "evaluation_id")
	if !ok {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	participantID, err := strconv.Atoi(c.Param("participant_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	ev, err := h.evalService.GetByID(c.Request.Context(), evaluationID)
	if err != nil {
		response.Fail(c, http.StatusNotFound, response.ErrNotFound)
		return
	}
	if ev.TrainerID != claims.UserID {
		response.Fail(c, http.StatusForbidden, response.ErrNotEvaluationAuthor)
		return
	}

	report, err := h.surveillanceService.GenerateReport(c.Request.Context(), evaluationID, participantID)
	if err != nil {
		response.Fail(c, http.StatusNotFound, response.ErrNotFound)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"report": report})
}

// GetSessionAnalysis godoc
// GET /api/v1/trainer/sessions/:session_id/analysis
// Returns the weighted suspicion analysis for a session.
func (h *MonitorHandler) GetSessionAnalysis(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	sessionID, ok := paramUUID(c, "session_id")
	if !ok {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	analysis, err := h.surveillanceService.AnalyzeSession(c.Request.Context(), sessionID)
	if err != nil {
		response.Fail(c, http.StatusNotFound, response.ErrNotFound)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"analysis": analysis})
}
