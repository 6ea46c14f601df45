package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/Breniell/certtrack-proctor/internal/config"
	"github.com/Breniell/certtrack-proctor/internal/exam"
	"github.com/Breniell/certtrack-proctor/internal/middleware"
	"github.com/Breniell/certtrack-proctor/internal/service"
	ws "github.com/Breniell/certtrack-proctor/internal/websocket"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// buildUpgrader creates a WebSocket upgrader with origin validation.
// allowedOrigins comes from config.Config.AllowedOrigins.
// An empty slice permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// StreamHandler serves the participant's evaluation stream. The socket is
// the only transport for in-attempt actions; the engine pushes its events
// (warnings, timeouts, the verdict) back over the same connection.
type StreamHandler struct {
	rdb            *redis.Client
	sessionService *service.SessionService
	log            zerolog.Logger
	upgrader       websocket.Upgrader
}

// NewStreamHandler creates a new StreamHandler.
func NewStreamHandler(rdb *redis.Client, sessionService *service.SessionService, log zerolog.Logger, allowedOrigins []string) *StreamHandler {
	return &StreamHandler{
		rdb:            rdb,
		sessionService: sessionService,
		log:            log.With().Str("component", "stream_handler").Logger(),
		upgrader:       buildUpgrader(allowedOrigins),
	}
}

// streamConn serializes all socket writes through one pump goroutine, so
// engine callbacks and read-loop replies never interleave on the wire.
type streamConn struct {
	send chan interface{}
	done chan struct{}
	once sync.Once
	log  zerolog.Logger
}

func newStreamConn(log zerolog.Logger) *streamConn {
	return &streamConn{
		send: make(chan interface{}, 16),
		done: make(chan struct{}),
		log:  log,
	}
}

// enqueue hands a payload to the write pump. A slow client loses events
// rather than blocking the engine.
func (sc *streamConn) enqueue(v interface{}) {
	select {
	case sc.send <- v:
	case <-sc.done:
	default:
		sc.log.Warn().Msg("Send buffer full, dropping event")
	}
}

func (sc *streamConn) close() {
	sc.once.Do(func() { close(sc.done) })
}

// writePump drains the send channel onto the socket until closed.
func (sc *streamConn) writePump(conn *websocket.Conn) {
	for {
		select {
		case v := <-sc.send:
			if err := ws.WriteTyped(conn, v); err != nil {
				sc.log.Debug().Err(err).Msg("Write failed")
				sc.close()
				return
			}
		case <-sc.done:
			return
		}
	}
}

// wsSink relays engine events to the connected client. Implements
// exam.EventSink; it never calls back into the session.
type wsSink struct {
	sc *streamConn
}

func (s *wsSink) Warning(count, threshold int, reason string) {
	s.sc.enqueue(ws.WarningResponse{
		Event:     ws.EventWarning,
		Count:     count,
		Threshold: threshold,
		Reason:    reason,
	})
}

func (s *wsSink) QuestionTimeout(newIndex, questionSeconds int) {
	s.sc.enqueue(ws.QuestionTimeoutResponse{
		Event:            ws.EventQuestionTimeout,
		QuestionIndex:    newIndex,
		QuestionDuration: questionSeconds,
	})
}

func (s *wsSink) TimeUp() {
	s.sc.enqueue(ws.TimeUpResponse{Event: ws.EventTimeUp})
}

func (s *wsSink) Locked(reason string) {
	s.sc.enqueue(ws.LockedResponse{Event: ws.EventLocked, Reason: reason})
}

func (s *wsSink) SubmitFailed(err error) {
	s.sc.enqueue(ws.ErrorResponse{
		Event: ws.EventError,
		Error: "la soumission a échoué, veuillez réessayer",
	})
}

func (s *wsSink) Completed(res exam.Result) {
	s.sc.enqueue(ws.GradedResponse{
		Event:  ws.EventGraded,
		Status: "completed",
		Score:  res.Score,
		Reussi: res.Passed,
	})
}

// EvaluationStream godoc
// WS /ws/v1/participant/evaluations/:evaluation_id/stream
// Upgrades to WebSocket for the surveilled attempt: answers, advancing,
// violation reports, submission, and live engine events.
func (h *StreamHandler) EvaluationStream(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	evaluationID, err := uuid.Parse(c.Param("evaluation_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid evaluation ID"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	participantID := claims.UserID

	sess := h.sessionService.Registry().Get(evaluationID, participantID)
	if sess == nil {
		ws.WriteError(conn, "no live session, join the evaluation first")
		return
	}

	wsLog := h.log.With().
		Int("participant_id", participantID).
		Str("evaluation_id", evaluationID.String()).
		Logger()

	sc := newStreamConn(wsLog)
	go sc.writePump(conn)
	defer sc.close()

	sink := &wsSink{sc: sc}
	sess.AttachSink(sink)
	defer sess.DetachSink()

	answersKey := config.CacheKey.ParticipantAnswersKey(evaluationID.String(), participantID)

	// Scopes Redis writes to the connection so teardown cancels any
	// in-flight autosave.
	connCtx, connCancel := context.WithCancel(c.Request.Context())
	defer connCancel()

	wsLog.Info().Msg("Participant connected")

	for {
		conn.SetReadDeadline(time.Now().Add(5 * time.Minute))
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				wsLog.Warn().Err(err).Msg("Unexpected close")
			} else {
				wsLog.Debug().Msg("Connection closed")
			}
			break
		}

		var env ws.RequestEnvelope
		if err := json.Unmarshal(data, &env); err != nil {
			sc.enqueue(ws.ErrorResponse{Event: ws.EventError, Error: "invalid message"})
			continue
		}

		switch env.Action {
		case ws.ActionAnswer:
			h.handleAnswer(connCtx, sc, sess, answersKey, data)
		case ws.ActionAdvance:
			h.handleAdvance(sc, sess)
		case ws.ActionViolation:
			h.handleViolation(sc, sess, data)
		case ws.ActionSubmit:
			h.handleSubmit(sc, wsLog, sess)
		case ws.ActionPing:
			sc.enqueue(ws.PongResponse{Event: ws.EventPong})
		default:
			wsLog.Warn().Str("action", string(env.Action)).Msg("Unknown action")
			sc.enqueue(ws.ErrorResponse{Event: ws.EventError, Error: "unknown action: " + string(env.Action)})
		}

		if sess.State().Terminal() && sess.Done() {
			// Verdict delivered; nothing more to stream.
			break
		}
	}
}

// handleAnswer records an answer in the engine and mirrors it to the Redis
// autosave buffer plus the persistence queue.
func (h *StreamHandler) handleAnswer(ctx context.Context, sc *streamConn, sess *exam.Session, answersKey string, data []byte) {
	var req ws.AnswerRequest
	if err := json.Unmarshal(data, &req); err != nil || req.QID == "" {
		sc.enqueue(ws.ErrorResponse{Event: ws.EventError, Error: "q_id is required"})
		return
	}

	qid, err := uuid.Parse(req.QID)
	if err != nil {
		sc.enqueue(ws.ErrorResponse{Event: ws.EventError, Error: "invalid q_id format"})
		return
	}

	if err := sess.Answer(qid, req.Answer); err != nil {
		sc.enqueue(ws.ErrorResponse{Event: ws.EventError, Error: answerErrMsg(err)})
		return
	}

	h.autosaveAnswer(ctx, sess, answersKey, req.QID, req.Answer)

	sc.enqueue(ws.AckResponse{Event: ws.EventSuccess, Status: "saved"})
}

// autosaveAnswer mirrors an accepted answer into the Redis autosave buffer
// and the persistence queue. ctx is the connection context: closing the
// socket cancels any write still in flight. Failures are logged; the engine
// already holds the answer, so the participant is never blocked on Redis.
func (h *StreamHandler) autosaveAnswer(ctx context.Context, sess *exam.Session, answersKey, qid, answer string) {
	if err := h.rdb.HSet(ctx, answersKey, qid, answer).Err(); err != nil {
		h.log.Error().Err(err).Msg("Autosave Redis error")
	}

	payload, _ := json.Marshal(map[string]interface{}{
		"participant_id": sess.ParticipantID,
		"evaluation_id":  sess.EvaluationID.String(),
		"q_id":           qid,
		"answer":         answer,
	})
	if err := h.rdb.RPush(ctx, config.WorkerKey.PersistAnswersQueue, payload).Err(); err != nil {
		h.log.Error().Err(err).Msg("Answer queue Redis error")
	}
}

func answerErrMsg(err error) string {
	switch {
	case errors.Is(err, exam.ErrInvalidAnswer):
		return "answer does not match the question kind"
	case errors.Is(err, exam.ErrUnknownQuestion):
		return "question is not part of this evaluation"
	case errors.Is(err, exam.ErrSessionEnded):
		return "session already ended"
	default:
		return "save failed"
	}
}

// handleAdvance moves to the next question at the participant's request.
func (h *StreamHandler) handleAdvance(sc *streamConn, sess *exam.Session) {
	newIndex, err := sess.Advance()
	if err != nil {
		if errors.Is(err, exam.ErrLastQuestion) {
			sc.enqueue(ws.ErrorResponse{Event: ws.EventError, Error: "already at the last question"})
		} else {
			sc.enqueue(ws.ErrorResponse{Event: ws.EventError, Error: "session already ended"})
		}
		return
	}
	sc.enqueue(ws.AdvancedResponse{Event: ws.EventAdvanced, QuestionIndex: newIndex})
}

// handleViolation feeds a client-reported proctoring event into the engine.
// The warning (or the lock) comes back through the sink.
func (h *StreamHandler) handleViolation(sc *streamConn, sess *exam.Session, data []byte) {
	var req ws.ViolationRequest
	if err := json.Unmarshal(data, &req); err != nil {
		sc.enqueue(ws.ErrorResponse{Event: ws.EventError, Error: "invalid violation payload"})
		return
	}

	kind := exam.ViolationKind(req.Kind)
	if !exam.KnownViolationKind(kind) {
		sc.enqueue(ws.ErrorResponse{Event: ws.EventError, Error: "unknown violation kind: " + req.Kind})
		return
	}

	if _, err := sess.ReportViolation(kind, req.Details); err != nil {
		sc.enqueue(ws.ErrorResponse{Event: ws.EventError, Error: "session already ended"})
	}
}

// handleSubmit triggers the exactly-once submission pipeline. The verdict is
// pushed by the engine through the sink once grading settles.
func (h *StreamHandler) handleSubmit(sc *streamConn, wsLog zerolog.Logger, sess *exam.Session) {
	if err := sess.Submit(); err != nil {
		switch {
		case errors.Is(err, exam.ErrSubmitInFlight):
			sc.enqueue(ws.ErrorResponse{Event: ws.EventError, Error: "submission already in progress"})
		case errors.Is(err, exam.ErrSessionEnded):
			sc.enqueue(ws.ErrorResponse{Event: ws.EventError, Error: "session already ended"})
		default:
			sc.enqueue(ws.ErrorResponse{Event: ws.EventError, Error: "submission failed"})
		}
		return
	}
	wsLog.Info().Msg("Submission triggered")
}
