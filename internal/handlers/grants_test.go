package handlers

import (
	"context"
	"net/http"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/jwebster45206/loot-list/internal/services/queue"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newGrantsHandler(t *testing.T) (*GrantsHandler, *queue.GrantQueue, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	q := queue.NewGrantQueue(client)
	env := newTestEnv(t)
	return NewGrantsHandler(q, env.store, testLogger()), q, mr
}

func TestGrantsHandler_Queue(t *testing.T) {
	h, q, _ := newGrantsHandler(t)
	ctx := context.Background()

	rr := do(t, h, http.MethodPost, "/v1/grants", QueueGrantsRequest{
		SourceID:  "goblin",
		TargetIDs: []string{"hero", " hero ", ""},
	})
	require.Equal(t, http.StatusAccepted, rr.Code, rr.Body.String())
	resp := decode[QueueGrantsResponse](t, rr)
	require.Len(t, resp.Requests, 1)
	assert.Equal(t, "goblin", resp.Requests[0].SourceID)
	assert.Equal(t, "hero", resp.Requests[0].TargetID)
	assert.NotEmpty(t, resp.Requests[0].RequestID)

	queued, err := q.DequeueRequest(ctx)
	require.NoError(t, err)
	require.NotNil(t, queued)
	assert.Equal(t, resp.Requests[0].RequestID, queued.RequestID)

	rr = do(t, h, http.MethodGet, "/v1/grants", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, 0, decode[QueueStatusResponse](t, rr).Depth)
}

func TestGrantsHandler_Rejects(t *testing.T) {
	h, q, _ := newGrantsHandler(t)

	tests := []struct {
		name   string
		body   any
		status int
	}{
		{name: "no body", body: nil, status: http.StatusBadRequest},
		{name: "no source", body: QueueGrantsRequest{TargetIDs: []string{"hero"}}, status: http.StatusBadRequest},
		{name: "no targets", body: QueueGrantsRequest{SourceID: "goblin", TargetIDs: []string{" "}}, status: http.StatusBadRequest},
		{name: "unknown source", body: QueueGrantsRequest{SourceID: "nobody", TargetIDs: []string{"hero"}}, status: http.StatusNotFound},
		{name: "unknown target", body: QueueGrantsRequest{SourceID: "goblin", TargetIDs: []string{"hero", "nobody"}}, status: http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := do(t, h, http.MethodPost, "/v1/grants", tt.body)
			assert.Equal(t, tt.status, rr.Code, rr.Body.String())
		})
	}

	depth, err := q.RequestQueueDepth(context.Background())
	require.NoError(t, err)
	assert.Zero(t, depth, "rejected requests queue nothing")

	assert.Equal(t, http.StatusMethodNotAllowed, do(t, h, http.MethodDelete, "/v1/grants", nil).Code)
	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodGet, "/v1/grants/extra", nil).Code)
}

func TestGrantsHandler_QueueUnavailable(t *testing.T) {
	h, _, mr := newGrantsHandler(t)
	mr.SetError("ERR server unavailable")

	rr := do(t, h, http.MethodPost, "/v1/grants", QueueGrantsRequest{SourceID: "goblin", TargetIDs: []string{"hero"}})
	assert.Equal(t, http.StatusInternalServerError, rr.Code)

	rr = do(t, h, http.MethodGet, "/v1/grants", nil)
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
}
