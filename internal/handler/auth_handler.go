package handler

import (
	"errors"
	"net/http"

	"github.com/Breniell/certtrack-proctor/internal/middleware"
	"github.com/Breniell/certtrack-proctor/internal/model"
	"github.com/Breniell/certtrack-proctor/internal/repository"
	"github.com/Breniell/certtrack-proctor/internal/response"
	"github.com/Breniell/certtrack-proctor/internal/service"
	"github.com/Breniell/certtrack-proctor/internal/validator"
	"github.com/gin-gonic/gin"
)

// AuthHandler handles authentication endpoints.
type AuthHandler struct {
	authService     *service.AuthService
	participantRepo *repository.ParticipantRepository
	trainerRepo     *repository.TrainerRepository
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(
	authService *service.AuthService,
	participantRepo *repository.ParticipantRepository,
	trainerRepo *repository.TrainerRepository,
) *AuthHandler {
	return &AuthHandler{
		authService:     authService,
		participantRepo: participantRepo,
		trainerRepo:     trainerRepo,
	}
}

// ParticipantLogin godoc
// POST /api/v1/auth/participant/login
// Validates email + access code, checks for an existing login (rejects if
// active), returns JWT.
func (h *AuthHandler) ParticipantLogin(c *gin.Context) {
	var req model.ParticipantLoginRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	participant, err := h.participantRepo.GetByEmail(c.Request.Context(), req.Email)
	if err != nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrInvalidCredentials)
		return
	}

	if err := h.authService.CheckPassword(participant.AccessCodeHash, req.AccessCode); err != nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrInvalidCredentials)
		return
	}

	token, err := h.authService.GenerateParticipantToken(c.Request.Context(), participant.ID)
	if err != nil {
		if errors.Is(err, service.ErrLoginAlreadyActive) {
			response.Fail(c, http.StatusConflict, response.ErrSessionActive)
			return
		}
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"token": token,
		"participant": gin.H{
			"id":         participant.ID,
			"name":       participant.Name,
			"email":      participant.Email,
			"department": participant.Department,
		},
	})
}

// GetParticipantProfile godoc
// GET /api/v1/auth/participant/me
// Returns the profile of the currently authenticated participant.
func (h *AuthHandler) GetParticipantProfile(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	participant, err := h.participantRepo.GetByID(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Fail(c, http.StatusNotFound, response.ErrNotFound)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"participant": gin.H{
			"id":         participant.ID,
			"name":       participant.Name,
			"email":      participant.Email,
			"department": participant.Department,
		},
	})
}

// ParticipantLogout godoc
// POST /api/v1/auth/participant/logout
// Logs out the currently authenticated participant, freeing the single-device slot.
func (h *AuthHandler) ParticipantLogout(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	if err := h.authService.ResetParticipantLogin(c.Request.Context(), claims.UserID); err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, gin.H{})
}

// TrainerLogin godoc
// POST /api/v1/auth/trainer/login
// Validates email + password, returns JWT.
func (h *AuthHandler) TrainerLogin(c *gin.Context) {
	var req model.TrainerLoginRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	trainer, err := h.trainerRepo.GetByEmail(c.Request.Context(), req.Email)
	if err != nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrInvalidCredentials)
		return
	}

	if err := h.authService.CheckPassword(trainer.PasswordHash, req.Password); err != nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrInvalidCredentials)
		return
	}

	token, err := h.authService.GenerateTrainerToken(trainer.ID)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"token": token,
		"trainer": gin.H{
			"id":    trainer.ID,
			"name":  trainer.Name,
			"email": trainer.Email,
		},
	})
}

// RegisterParticipant godoc
// POST /api/v1/trainer/participants
// Trainer registers a new participant with an access code.
func (h *AuthHandler) RegisterParticipant(c *gin.Context) {
	var req model.CreateParticipantRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	hash, err := h.authService.HashPassword(req.AccessCode)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	participant := &model.Participant{
		Name:           req.Name,
		Email:          req.Email,
		AccessCodeHash: hash,
		Department:     req.Department,
	}
	if err := h.participantRepo.Create(c.Request.Context(), participant); err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) {
			response.Fail(c, http.StatusConflict, response.ErrConflict)
			return
		}
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusCreated, gin.H{"participant": participant})
}

// ResetParticipantLogin godoc
// POST /api/v1/trainer/participants/:participant_id/reset-login
// Trainer frees a participant's single-device login slot.
func (h *AuthHandler) ResetParticipantLogin(c *gin.Context) {
	participantID, ok := paramInt(c, "participant_id")
	if !ok {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	if err := h.authService.ResetParticipantLogin(c.Request.Context(), participantID); err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, gin.H{})
}
