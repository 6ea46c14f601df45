package exam

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type sessionKey struct {
	evaluationID  uuid.UUID
	participantID int
}

// Registry holds the live sessions, one per (evaluation, participant) pair.
// Starting an already-live pair resumes the existing session instead of
// reshuffling a new one, so a reconnecting client sees the same question
// order, answers and clocks.
type Registry struct {
	loader *Loader
	log    zerolog.Logger

	mu       sync.Mutex
	sessions map[sessionKey]*Session
}

// NewRegistry creates an empty Registry backed by the given loader.
func NewRegistry(loader *Loader, log zerolog.Logger) *Registry {
	return &Registry{
		loader:   loader,
		log:      log.With().Str("component", "exam_registry").Logger(),
		sessions: make(map[sessionKey]*Session),
	}
}

// Start returns the live session for the pair, loading and starting a new
// one under sessionID when none exists. Resuming ignores sessionID: the
// existing session keeps the identity it was created with. resumed is true
// when an existing session was returned. A finished-but-unremoved session
// is swept and replaced.
func (r *Registry) Start(ctx context.Context, sessionID, evaluationID uuid.UUID, participantID int) (sess *Session, resumed bool, err error) {
	key := sessionKey{evaluationID: evaluationID, participantID: participantID}

	r.mu.Lock()
	if existing, ok := r.sessions[key]; ok {
		if !existing.Done() {
			r.mu.Unlock()
			return existing, true, nil
		}
		delete(r.sessions, key)
	}
	r.mu.Unlock()

	created, err := r.loader.Load(ctx, sessionID, evaluationID, participantID)
	if err != nil {
		return nil, false, err
	}

	r.mu.Lock()
	if racer, ok := r.sessions[key]; ok && !racer.Done() {
		// Concurrent start won; keep theirs.
		r.mu.Unlock()
		created.Dispose()
		return racer, true, nil
	}
	r.sessions[key] = created
	r.mu.Unlock()

	go created.run()
	return created, false, nil
}

// Get returns the live session for the pair, or nil.
func (r *Registry) Get(evaluationID uuid.UUID, participantID int) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sessions[sessionKey{evaluationID: evaluationID, participantID: participantID}]
}

// Remove disposes the pair's session and drops it from the registry.
func (r *Registry) Remove(evaluationID uuid.UUID, participantID int) {
	key := sessionKey{evaluationID: evaluationID, participantID: participantID}

	r.mu.Lock()
	sess := r.sessions[key]
	delete(r.sessions, key)
	r.mu.Unlock()

	if sess != nil {
		sess.Dispose()
	}
}

// Len returns the number of registered sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// DisposeAll tears down every registered session, for server shutdown.
func (r *Registry) DisposeAll() {
	r.mu.Lock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.sessions = make(map[sessionKey]*Session)
	r.mu.Unlock()

	for _, s := range sessions {
		s.Dispose()
	}
}
