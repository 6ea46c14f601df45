package handler

import (
	"errors"
	"net/http"

	"github.com/Breniell/certtrack-proctor/internal/middleware"
	"github.com/Breniell/certtrack-proctor/internal/model"
	"github.com/Breniell/certtrack-proctor/internal/response"
	"github.com/Breniell/certtrack-proctor/internal/service"
	"github.com/Breniell/certtrack-proctor/internal/validator"
	"github.com/gin-gonic/gin"
)

// PortalHandler handles participant-facing endpoints (lobby, joining,
// evaluation paper and resume state).
type PortalHandler struct {
	sessionService *service.SessionService
	evalService    *service.EvaluationService
}

// NewPortalHandler creates a new PortalHandler.
func NewPortalHandler(
	sessionService *service.SessionService,
	evalService *service.EvaluationService,
) *PortalHandler {
	return &PortalHandler{
		sessionService: sessionService,
		evalService:    evalService,
	}
}

// GetLobby godoc
// GET /api/v1/participant/lobby
// Returns published evaluations with the participant's attempt state.
func (h *PortalHandler) GetLobby(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	lobby, err := h.sessionService.GetLobby(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	if lobby == nil {
		lobby = []service.LobbyEvaluation{}
	}

	response.Success(c, http.StatusOK, gin.H{"evaluations": lobby})
}

// JoinEvaluation godoc
// POST /api/v1/participant/evaluations/:evaluation_id/join
// Validates the entry token and starts (or resumes) a surveilled session.
func (h *PortalHandler) JoinEvaluation(c *gin.Context) {
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

	var req model.JoinEvaluationRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	sess, resumed, err := h.sessionService.Join(c.Request.Context(), evaluationID, claims.UserID, req.EntryToken)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidEntryToken):
			response.Fail(c, http.StatusBadRequest, response.ErrInvalidEntryToken)
		case errors.Is(err, service.ErrEvaluationNotAvailable):
			response.Fail(c, http.StatusBadRequest, response.ErrEvaluationNotAvailable)
		case errors.Is(err, service.ErrSessionCompleted):
			response.Fail(c, http.StatusConflict, response.ErrSessionCompleted)
		case errors.Is(err, service.ErrSessionLocked):
			response.Fail(c, http.StatusConflict, response.ErrSessionLocked)
		default:
			response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		}
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"session": gin.H{
			"id":                 sess.ID,
			"evaluation_id":      sess.EvaluationID,
			"resumed":            resumed,
			"question_order":     sess.QuestionOrder(),
			"current_index":      sess.CurrentIndex(),
			"remaining_seconds":  sess.RemainingSeconds(),
			"question_remaining": sess.QuestionRemainingSeconds(),
		},
	})
}

// GetEvaluationPaper godoc
// GET /api/v1/participant/evaluations/:evaluation_id/paper
// Returns the evaluation payload from Redis (bypasses PostgreSQL).
// SECURITY: Requires an active session for this evaluation — prevents IDOR.
func (h *PortalHandler) GetEvaluationPaper(c *gin.Context) {
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

	// Participants can only download papers for evaluations they joined.
	if err := h.sessionService.VerifyActiveSession(c.Request.Context(), evaluationID, claims.UserID); err != nil {
		response.Fail(c, http.StatusForbidden, response.ErrForbidden)
		return
	}

	payload, err := h.evalService.GetPayload(c.Request.Context(), evaluationID)
	if err != nil {
		response.Fail(c, http.StatusNotFound, response.ErrEvaluationNotPublished)
		return
	}

	response.Success(c, http.StatusOK, payload)
}

// GetEvaluationState godoc
// GET /api/v1/participant/evaluations/:evaluation_id/state
// Returns the current attempt state: clocks, current question, autosaved
// answers, violation count. Covers the page reload case.
func (h *PortalHandler) GetEvaluationState(c *gin.Context) {
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

	state, err := h.sessionService.GetState(c.Request.Context(), evaluationID, claims.UserID)
	if err != nil {
		if errors.Is(err, service.ErrNoActiveSession) {
			response.Fail(c, http.StatusNotFound, response.ErrNoActiveSession)
			return
		}
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, state)
}
