package model

import "time"

// Participant is a trainee taking evaluations.
type Participant struct {
	ID             int       `json:"id"`
	Name           string    `json:"name"`
	Email          string    `json:"email"`
	AccessCodeHash string    `json:"-"`
	Department     string    `json:"department,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// ParticipantLoginRequest is the payload for participant login.
type ParticipantLoginRequest struct {
	Email      string `json:"email" binding:"required,email"`
	AccessCode string `json:"access_code" binding:"required,min=4,max=72"`
}

// CreateParticipantRequest is the payload for registering a participant.
type CreateParticipantRequest struct {
	Name       string `json:"name" binding:"required,min=2,max=255"`
	Email      string `json:"email" binding:"required,email"`
	AccessCode string `json:"access_code" binding:"required,min=4,max=72"`
	Department string `json:"department" binding:"omitempty,max=128"`
}
