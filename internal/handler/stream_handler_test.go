package handler

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/Breniell/certtrack-proctor/internal/exam"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newOriginRequest(t *testing.T, origin string) *http.Request {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, "http://localhost/ws", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", origin)
	return req
}

func TestAutosaveHonorsConnectionContext(t *testing.T) {
	// An unroutable Redis address: without a live context check the write
	// would block on the dial. A cancelled connection context must make the
	// autosave return immediately instead.
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"})
	defer rdb.Close()

	h := &StreamHandler{rdb: rdb, log: zerolog.Nop()}
	sess := &exam.Session{ParticipantID: 1, EvaluationID: uuid.New()}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan struct{})
	go func() {
		h.autosaveAnswer(ctx, sess, "answers:key", uuid.NewString(), "réponse")
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("autosave ignored the cancelled connection context")
	}
}

func TestBuildUpgraderOriginValidation(t *testing.T) {
	up := buildUpgrader([]string{"https://portal.example.com"})

	req := newOriginRequest(t, "https://portal.example.com")
	assert.True(t, up.CheckOrigin(req))

	req = newOriginRequest(t, "https://evil.example.com")
	assert.False(t, up.CheckOrigin(req))

	open := buildUpgrader(nil)
	assert.True(t, open.CheckOrigin(req))
}
