package handler

import (
	"errors"
	"math"
	"net/http"

	"github.com/Breniell/certtrack-proctor/internal/middleware"
	"github.com/Breniell/certtrack-proctor/internal/model"
	"github.com/Breniell/certtrack-proctor/internal/response"
	"github.com/Breniell/certtrack-proctor/internal/service"
	"github.com/Breniell/certtrack-proctor/internal/validator"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// EvaluationHandler handles trainer-facing evaluation management endpoints.
type EvaluationHandler struct {
	evalService    *service.EvaluationService
	sessionService *service.SessionService
}

// NewEvaluationHandler creates a new EvaluationHandler.
func NewEvaluationHandler(evalService *service.EvaluationService, sessionService *service.SessionService) *EvaluationHandler {
	return &EvaluationHandler{
		evalService:    evalService,
		sessionService: sessionService,
	}
}

// ListEvaluations godoc
// GET /api/v1/trainer/evaluations
// Lists the trainer's evaluations with pagination.
func (h *EvaluationHandler) ListEvaluations(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	page := queryInt(c, "page", 1)
	perPage := queryInt(c, "per_page", 10)

	evaluations, pagination, err := h.evalService.ListByTrainer(c.Request.Context(), claims.UserID, page, perPage)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.SuccessWithPagination(c, http.StatusOK, gin.H{"evaluations": evaluations}, pagination)
}

// CreateEvaluation godoc
// POST /api/v1/trainer/evaluations
// Creates a new draft evaluation.
func (h *EvaluationHandler) CreateEvaluation(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	var req model.CreateEvaluationRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	ev := &model.Evaluation{
		Title:           req.Title,
		FormationCode:   req.FormationCode,
		TrainerID:       claims.UserID,
		DurationMinutes: req.DurationMinutes,
		PassMark:        req.PassMark,
		EntryToken:      req.EntryToken,
	}

	if err := h.evalService.Create(c.Request.Context(), ev); err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusCreated, gin.H{"evaluation": ev})
}

// GetEvaluation godoc
// GET /api/v1/trainer/evaluations/:evaluation_id
func (h *EvaluationHandler) GetEvaluation(c *gin.Context) {
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

	response.Success(c, http.StatusOK, gin.H{"evaluation": ev})
}

// UpdateEvaluation godoc
// PUT /api/v1/trainer/evaluations/:evaluation_id
// Updates a draft evaluation's editable fields.
func (h *EvaluationHandler) UpdateEvaluation(c *gin.Context) {
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

	var req model.UpdateEvaluationRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	existing, err := h.evalService.GetByID(c.Request.Context(), evaluationID)
	if err != nil {
		response.Fail(c, http.StatusNotFound, response.ErrNotFound)
		return
	}

	if req.Title != "" {
		existing.Title = req.Title
	}
	if req.FormationCode != "" {
		existing.FormationCode = req.FormationCode
	}
	if req.DurationMinutes > 0 {
		existing.DurationMinutes = req.DurationMinutes
	}
	if req.PassMark != nil {
		existing.PassMark = *req.PassMark
	}
	if req.EntryToken != "" {
		existing.EntryToken = req.EntryToken
	}

	if err := h.evalService.Update(c.Request.Context(), claims.UserID, existing); err != nil {
		failEvaluationError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"evaluation": existing})
}

// DeleteEvaluation godoc
// DELETE /api/v1/trainer/evaluations/:evaluation_id
func (h *EvaluationHandler) DeleteEvaluation(c *gin.Context) {
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

	if err := h.evalService.Delete(c.Request.Context(), evaluationID, claims.UserID); err != nil {
		failEvaluationError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{})
}

// ListQuestions godoc
// GET /api/v1/trainer/evaluations/:evaluation_id/questions
// Returns the full question set, correct answers included.
func (h *EvaluationHandler) ListQuestions(c *gin.Context) {
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

	questions, err := h.evalService.ListQuestions(c.Request.Context(), evaluationID, claims.UserID)
	if err != nil {
		failEvaluationError(c, err)
		return
	}
	if questions == nil {
		questions = []model.Question{}
	}

	response.Success(c, http.StatusOK, gin.H{"questions": questions})
}

// AddQuestion godoc
// POST /api/v1/trainer/evaluations/:evaluation_id/questions
func (h *EvaluationHandler) AddQuestion(c *gin.Context) {
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

	var req model.AddQuestionRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	question := questionFromRequest(evaluationID, &req)
	if err := h.evalService.AddQuestion(c.Request.Context(), claims.UserID, question); err != nil {
		failEvaluationError(c, err)
		return
	}

	response.Success(c, http.StatusCreated, gin.H{"question": question})
}

// ReplaceQuestions godoc
// PUT /api/v1/trainer/evaluations/:evaluation_id/questions
// Atomically swaps the full question set of a draft evaluation.
func (h *EvaluationHandler) ReplaceQuestions(c *gin.Context) {
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

	var req model.ReplaceQuestionsRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	questions := make([]model.Question, len(req.Questions))
	for i := range req.Questions {
		questions[i] = *questionFromRequest(evaluationID, &req.Questions[i])
		if questions[i].OrderNum == 0 {
			questions[i].OrderNum = i + 1
		}
	}

	if err := h.evalService.ReplaceQuestions(c.Request.Context(), claims.UserID, evaluationID, questions); err != nil {
		failEvaluationError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"count": len(questions)})
}

// PublishEvaluation godoc
// POST /api/v1/trainer/evaluations/:evaluation_id/publish
// Publishes an evaluation: caches payload + answer key to Redis, changes status.
func (h *EvaluationHandler) PublishEvaluation(c *gin.Context) {
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

	if err := h.evalService.Publish(c.Request.Context(), evaluationID, claims.UserID); err != nil {
		failEvaluationError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"message": "évaluation publiée"})
}

// ArchiveEvaluation godoc
// POST /api/v1/trainer/evaluations/:evaluation_id/archive
func (h *EvaluationHandler) ArchiveEvaluation(c *gin.Context) {
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

	if err := h.evalService.Archive(c.Request.Context(), evaluationID, claims.UserID); err != nil {
		failEvaluationError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"message": "évaluation archivée"})
}

// GetResults godoc
// GET /api/v1/trainer/evaluations/:evaluation_id/results
// Returns paginated participant results for an evaluation.
func (h *EvaluationHandler) GetResults(c *gin.Context) {
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

	page := queryInt(c, "page", 1)
	perPage := queryInt(c, "per_page", 10)

	results, total, err := h.sessionService.GetResults(c.Request.Context(), evaluationID, claims.UserID, page, perPage)
	if err != nil {
		failEvaluationError(c, err)
		return
	}

	pagination := &response.Pagination{
		Page:       page,
		PerPage:    perPage,
		TotalItems: total,
		TotalPages: int(math.Ceil(float64(total) / float64(perPage))),
	}

	response.SuccessWithPagination(c, http.StatusOK, gin.H{"results": results}, pagination)
}

// questionFromRequest maps an AddQuestionRequest onto the storage model.
func questionFromRequest(evaluationID uuid.UUID, req *model.AddQuestionRequest) *model.Question {
	return &model.Question{
		EvaluationID:  evaluationID,
		Text:          req.Text,
		Kind:          model.QuestionKind(req.Kind),
		Options:       req.Options,
		CorrectAnswer: req.CorrectAnswer,
		Points:        req.Points,
		OrderNum:      req.OrderNum,
	}
}

// failEvaluationError maps evaluation domain errors onto API error codes.
func failEvaluationError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrNotEvaluationAuthor):
		response.Fail(c, http.StatusForbidden, response.ErrNotEvaluationAuthor)
	case errors.Is(err, service.ErrNoQuestions):
		response.Fail(c, http.StatusBadRequest, response.ErrNoQuestions)
	case errors.Is(err, service.ErrEvaluationNotDraft):
		response.Fail(c, http.StatusBadRequest, response.ErrEvaluationNotDraft)
	case errors.Is(err, service.ErrEvaluationNotPublished):
		response.Fail(c, http.StatusBadRequest, response.ErrEvaluationNotPublished)
	case errors.Is(err, service.ErrInvalidQuestion):
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidPayload)
	default:
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
	}
}
