package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"slices"
	"strings"

	"github.com/jwebster45206/loot-list/pkg/actor"
	"github.com/jwebster45206/loot-list/pkg/queue"
)

// GrantQueue accepts grant requests for the workers
type GrantQueue interface {
	EnqueueRequest(ctx context.Context, req *queue.Request) error
	RequestQueueDepth(ctx context.Context) (int, error)
}

// ActorReader looks up records
type ActorReader interface {
	GetActor(ctx context.Context, id string) (*actor.Record, error)
}

// QueueGrantsRequest grants the committed loot list of SourceID to every target
type QueueGrantsRequest struct {
	SourceID  string   `json:"source_id"`
	TargetIDs []string `json:"target_ids"`
}

type QueueGrantsResponse struct {
	Requests []*queue.Request `json:"requests"`
}

type QueueStatusResponse struct {
	Depth int `json:"depth"`
}

type GrantsHandler struct {
	queue  GrantQueue
	actors ActorReader
	logger *slog.Logger
}

func NewGrantsHandler(queue GrantQueue, actors ActorReader, logger *slog.Logger) *GrantsHandler {
	return &GrantsHandler{
		queue:  queue,
		actors: actors,
		logger: logger,
	}
}

// ServeHTTP handles queued grants
// Routes:
// POST /v1/grants - Queue one grant per target (202)
// GET  /v1/grants - Report the queue depth
func (h *GrantsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if len(pathParts(r.URL.Path, "/v1/grants")) > 0 {
		writeError(w, h.logger, http.StatusNotFound, "Not found")
		return
	}

	switch r.Method {
	case http.MethodPost:
		h.handleQueue(w, r)
	case http.MethodGet:
		h.handleStatus(w, r)
	default:
		h.logger.Warn("Method not allowed for grants endpoint", "method", r.Method, "path", r.URL.Path)
		writeError(w, h.logger, http.StatusMethodNotAllowed, "Method not allowed. Supported methods: GET, POST")
	}
}

func (h *GrantsHandler) handleQueue(w http.ResponseWriter, r *http.Request) {
	var req QueueGrantsRequest
	if err := decodeBody(r, &req, false); err != nil {
		writeError(w, h.logger, http.StatusBadRequest, err.Error())
		return
	}
	req.SourceID = strings.TrimSpace(req.SourceID)
	if req.SourceID == "" {
		writeError(w, h.logger, http.StatusBadRequest, "source_id is required")
		return
	}

	// Duplicate and blank targets are dropped
	var targets []string
	for _, id := range req.TargetIDs {
		id = strings.TrimSpace(id)
		if id != "" && !slices.Contains(targets, id) {
			targets = append(targets, id)
		}
	}
	if len(targets) == 0 {
		writeError(w, h.logger, http.StatusBadRequest, "target_ids must name at least one record")
		return
	}

	for _, id := range append([]string{req.SourceID}, targets...) {
		if _, err := h.actors.GetActor(r.Context(), id); err != nil {
			h.logger.Warn("Rejected grant request", "actor_id", id, "error", err)
			writeError(w, h.logger, statusFor(err), err.Error())
			return
		}
	}

	resp := QueueGrantsResponse{Requests: make([]*queue.Request, 0, len(targets))}
	for _, target := range targets {
		qr := queue.NewRequest(req.SourceID, target)
		if err := h.queue.EnqueueRequest(r.Context(), qr); err != nil {
			h.logger.Error("Failed to enqueue grant", "source_id", req.SourceID, "target_id", target, "error", err)
			writeError(w, h.logger, http.StatusInternalServerError, "Failed to queue grant")
			return
		}
		resp.Requests = append(resp.Requests, qr)
	}

	h.logger.Info("Queued grants", "source_id", req.SourceID, "targets", len(targets))
	writeJSON(w, h.logger, http.StatusAccepted, resp)
}

func (h *GrantsHandler) handleStatus(w http.ResponseWriter, r *http.Request) {
	depth, err := h.queue.RequestQueueDepth(r.Context())
	if err != nil {
		h.logger.Error("Failed to read queue depth", "error", err)
		writeError(w, h.logger, http.StatusInternalServerError, "Failed to read queue depth")
		return
	}
	writeJSON(w, h.logger, http.StatusOK, QueueStatusResponse{Depth: depth})
}
