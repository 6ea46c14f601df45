package response

// ErrCode is a typed error code enum for consistent API error identification.
type ErrCode string

const (
	// ─── Authentication ────────────────────────────────────────────────
	ErrInvalidCredentials ErrCode = "INVALID_CREDENTIALS"
	ErrSessionActive      ErrCode = "SESSION_ALREADY_ACTIVE"
	ErrSessionInvalidated ErrCode = "SESSION_INVALIDATED"
	ErrTokenRequired      ErrCode = "TOKEN_REQUIRED"
	ErrTokenInvalid       ErrCode = "TOKEN_INVALID"

	// ─── Authorization ─────────────────────────────────────────────────
	ErrForbidden       ErrCode = "FORBIDDEN"
	ErrParticipantOnly ErrCode = "PARTICIPANT_ACCESS_ONLY"
	ErrTrainerOnly     ErrCode = "TRAINER_ACCESS_ONLY"

	// ─── Validation ────────────────────────────────────────────────────
	ErrValidation     ErrCode = "VALIDATION_ERROR"
	ErrInvalidID      ErrCode = "INVALID_ID"
	ErrInvalidPayload ErrCode = "INVALID_PAYLOAD"

	// ─── Resources ─────────────────────────────────────────────────────
	ErrNotFound ErrCode = "NOT_FOUND"
	ErrConflict ErrCode = "CONFLICT"

	// ─── Evaluation-specific ───────────────────────────────────────────
	ErrEvaluationNotAvailable ErrCode = "EVALUATION_NOT_AVAILABLE"
	ErrInvalidEntryToken      ErrCode = "INVALID_ENTRY_TOKEN"
	ErrEvaluationNotPublished ErrCode = "EVALUATION_NOT_PUBLISHED"
	ErrNotEvaluationAuthor    ErrCode = "NOT_EVALUATION_AUTHOR"
	ErrNoQuestions            ErrCode = "NO_QUESTIONS"
	ErrEvaluationNotDraft     ErrCode = "EVALUATION_NOT_DRAFT"
	ErrSessionLocked          ErrCode = "SESSION_LOCKED"
	ErrSessionCompleted       ErrCode = "SESSION_COMPLETED"
	ErrNoActiveSession        ErrCode = "NO_ACTIVE_SESSION"

	// ─── Rate Limiting ─────────────────────────────────────────────────
	ErrRateLimitExceeded ErrCode = "RATE_LIMIT_EXCEEDED"

	// ─── Server ────────────────────────────────────────────────────────
	ErrInternal ErrCode = "INTERNAL_ERROR"
)

// GetMessage returns a human-readable message for a given error code.
func GetMessage(code ErrCode) string {
	switch code {
	// ─── Authentication ────────────────────────────────────────────────
	case ErrInvalidCredentials:
		return "Email ou code d'accès incorrect."
	case ErrSessionActive:
		return "Vous êtes déjà connecté sur un autre appareil."
	case ErrSessionInvalidated:
		return "Votre session a expiré. Veuillez vous reconnecter."
	case ErrTokenRequired:
		return "Jeton d'authentification requis."
	case ErrTokenInvalid:
		return "Jeton d'authentification invalide."

	// ─── Authorization ─────────────────────────────────────────────────
	case ErrForbidden:
		return "Vous n'avez pas accès à cette ressource."
	case ErrParticipantOnly:
		return "Ressource réservée aux participants."
	case ErrTrainerOnly:
		return "Ressource réservée aux formateurs."

	// ─── Validation ────────────────────────────────────────────────────
	case ErrValidation:
		return "Validation échouée. Veuillez vérifier votre saisie."
	case ErrInvalidID:
		return "Format d'identifiant invalide."
	case ErrInvalidPayload:
		return "Corps de requête invalide."

	// ─── Resources ─────────────────────────────────────────────────────
	case ErrNotFound:
		return "Ressource introuvable."
	case ErrConflict:
		return "La ressource existe déjà."

	// ─── Evaluation-specific ───────────────────────────────────────────
	case ErrEvaluationNotAvailable:
		return "Cette évaluation n'est pas disponible actuellement."
	case ErrInvalidEntryToken:
		return "Code d'entrée invalide."
	case ErrEvaluationNotPublished:
		return "Cette évaluation n'est pas encore publiée."
	case ErrNotEvaluationAuthor:
		return "Vous n'êtes pas l'auteur de cette évaluation."
	case ErrNoQuestions:
		return "Cette évaluation ne contient aucune question."
	case ErrEvaluationNotDraft:
		return "Cette évaluation n'est pas en statut brouillon."
	case ErrSessionLocked:
		return "Session verrouillée suite à des violations de surveillance."
	case ErrSessionCompleted:
		return "Cette évaluation a déjà été soumise."
	case ErrNoActiveSession:
		return "Aucune session active pour cette évaluation."

	// ─── Rate Limiting ─────────────────────────────────────────────────
	case ErrRateLimitExceeded:
		return "Trop de requêtes. Veuillez réessayer plus tard."

	// ─── Server ────────────────────────────────────────────────────────
	case ErrInternal:
		return "Une erreur interne est survenue."
	default:
		return "Une erreur inattendue est survenue."
	}
}
