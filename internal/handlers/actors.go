package handlers

import (
	"log/slog"
	"net/http"

	"github.com/jwebster45206/loot-list/internal/editor"
	"github.com/jwebster45206/loot-list/pkg/loot"
	"github.com/jwebster45206/loot-list/pkg/storage"
)

type ActorsResponse struct {
	Actors []string `json:"actors"`
}

// AddItemsRequest lists references to append to a committed loot list
type AddItemsRequest struct {
	UUIDs []string `json:"uuids"`
}

type AddItemsResponse struct {
	Added int `json:"added"`
}

type ActorHandler struct {
	storage storage.Storage
	editor  *editor.Service
	cfg     loot.Config
	logger  *slog.Logger
}

func NewActorHandler(storage storage.Storage, editor *editor.Service, cfg loot.Config, logger *slog.Logger) *ActorHandler {
	return &ActorHandler{
		storage: storage,
		editor:  editor,
		cfg:     cfg,
		logger:  logger,
	}
}

// ServeHTTP handles actor record requests
// Routes:
// GET  /v1/actors                 - List actor IDs
// GET  /v1/actors/{id}            - Read an actor record
// GET  /v1/actors/{id}/loot       - Read the committed loot list
// POST /v1/actors/{id}/loot/items - Append item references to the committed loot list
func (h *ActorHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	parts := pathParts(r.URL.Path, "/v1/actors")

	switch {
	case len(parts) == 0 && r.Method == http.MethodGet:
		h.handleList(w, r)
	case len(parts) == 1 && r.Method == http.MethodGet:
		h.handleGet(w, r, parts[0])
	case len(parts) == 2 && parts[1] == "loot" && r.Method == http.MethodGet:
		h.handleLoot(w, r, parts[0])
	case len(parts) == 3 && parts[1] == "loot" && parts[2] == "items" && r.Method == http.MethodPost:
		h.handleAddItems(w, r, parts[0])
	case len(parts) <= 3:
		h.logger.Warn("Method not allowed for actors endpoint", "method", r.Method, "path", r.URL.Path)
		writeError(w, h.logger, http.StatusMethodNotAllowed, "Method not allowed")
	default:
		writeError(w, h.logger, http.StatusNotFound, "Not found")
	}
}

func (h *ActorHandler) handleList(w http.ResponseWriter, r *http.Request) {
	ids, err := h.storage.ListActors(r.Context())
	if err != nil {
		h.logger.Error("Failed to list actors", "error", err)
		writeError(w, h.logger, http.StatusInternalServerError, "Failed to list actors")
		return
	}
	if ids == nil {
		ids = []string{}
	}
	writeJSON(w, h.logger, http.StatusOK, ActorsResponse{Actors: ids})
}

func (h *ActorHandler) handleGet(w http.ResponseWriter, r *http.Request, id string) {
	rec, err := h.storage.GetActor(r.Context(), id)
	if err != nil {
		h.logger.Warn("Failed to load actor", "actor_id", id, "error", err)
		writeError(w, h.logger, statusFor(err), err.Error())
		return
	}
	writeJSON(w, h.logger, http.StatusOK, rec)
}

func (h *ActorHandler) handleLoot(w http.ResponseWriter, r *http.Request, id string) {
	list, err := loot.ReadList(r.Context(), h.storage, h.cfg, id)
	if err != nil {
		h.logger.Warn("Failed to read loot list", "actor_id", id, "error", err)
		writeError(w, h.logger, statusFor(err), err.Error())
		return
	}
	writeJSON(w, h.logger, http.StatusOK, list)
}

func (h *ActorHandler) handleAddItems(w http.ResponseWriter, r *http.Request, id string) {
	var req AddItemsRequest
	if err := decodeBody(r, &req, false); err != nil {
		writeError(w, h.logger, http.StatusBadRequest, err.Error())
		return
	}
	added, err := h.editor.AddItemsToActor(r.Context(), id, req.UUIDs)
	if err != nil {
		h.logger.Error("Failed to add items to actor", "actor_id", id, "error", err)
		writeError(w, h.logger, statusFor(err), err.Error())
		return
	}
	writeJSON(w, h.logger, http.StatusOK, AddItemsResponse{Added: added})
}
