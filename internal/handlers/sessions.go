package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/jwebster45206/loot-list/internal/editor"
	"github.com/jwebster45206/loot-list/internal/notify"
	"github.com/jwebster45206/loot-list/pkg/drop"
	"github.com/jwebster45206/loot-list/pkg/grant"
	"github.com/jwebster45206/loot-list/pkg/loot"
)

// OpenSessionRequest opens an editing session on an actor's loot list
type OpenSessionRequest struct {
	ActorID string `json:"actor_id"`
}

// UpsertItemRequest adds or updates a list entry. An empty quantity
// increments an entry that is already listed.
type UpsertItemRequest struct {
	UUID     string `json:"uuid"`
	Quantity string `json:"quantity,omitempty"`
}

// GrantRequest names the record that receives the loot
type GrantRequest struct {
	TargetID string `json:"target_id"`
}

// SessionResponse carries the rendered session and any notifications
type SessionResponse struct {
	Session       *editor.ViewModel     `json:"session,omitempty"`
	Notifications []notify.Notification `json:"notifications,omitempty"`
}

// SubmitResponse carries the committed list
type SubmitResponse struct {
	List          *loot.List            `json:"list"`
	Notifications []notify.Notification `json:"notifications,omitempty"`
}

// GrantResponse carries the grant outcome. Error is set when some
// mutations failed; Result still reports what was applied.
type GrantResponse struct {
	Result        *grant.Result         `json:"result"`
	Notifications []notify.Notification `json:"notifications,omitempty"`
	Error         string                `json:"error,omitempty"`
}

type SessionHandler struct {
	editor *editor.Service
	logger *slog.Logger
}

func NewSessionHandler(editor *editor.Service, logger *slog.Logger) *SessionHandler {
	return &SessionHandler{
		editor: editor,
		logger: logger,
	}
}

// ServeHTTP handles loot list editing sessions
// Routes:
// POST   /v1/sessions                 - Open a session
// GET    /v1/sessions/{id}            - Render a session
// DELETE /v1/sessions/{id}            - Discard a session
// POST   /v1/sessions/{id}/items      - Add or update an entry
// DELETE /v1/sessions/{id}/items      - Remove an entry (?uuid=...)
// PUT    /v1/sessions/{id}/currencies - Set currency formulas
// POST   /v1/sessions/{id}/clear      - Remove all entries and reset currencies
// POST   /v1/sessions/{id}/drop       - Drop a document onto the list
// POST   /v1/sessions/{id}/submit     - Commit the list and end the session
// POST   /v1/sessions/{id}/grant      - Grant the working list to a target
func (h *SessionHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	parts := pathParts(r.URL.Path, "/v1/sessions")

	if len(parts) == 0 {
		if r.Method != http.MethodPost {
			writeError(w, h.logger, http.StatusMethodNotAllowed, "Method not allowed. Supported methods: POST")
			return
		}
		h.handleOpen(w, r)
		return
	}

	id := parts[0]
	action := ""
	if len(parts) == 2 {
		action = parts[1]
	}
	if len(parts) > 2 {
		writeError(w, h.logger, http.StatusNotFound, "Not found")
		return
	}

	switch {
	case action == "" && r.Method == http.MethodGet:
		h.render(w, r, id, http.StatusOK)
	case action == "" && r.Method == http.MethodDelete:
		h.handleDiscard(w, r, id)
	case action == "items" && r.Method == http.MethodPost:
		h.handleUpsert(w, r, id)
	case action == "items" && r.Method == http.MethodDelete:
		h.handleRemove(w, r, id)
	case action == "currencies" && r.Method == http.MethodPut:
		h.handleCurrencies(w, r, id)
	case action == "clear" && r.Method == http.MethodPost:
		h.handleClear(w, r, id)
	case action == "drop" && r.Method == http.MethodPost:
		h.handleDrop(w, r, id)
	case action == "submit" && r.Method == http.MethodPost:
		h.handleSubmit(w, r, id)
	case action == "grant" && r.Method == http.MethodPost:
		h.handleGrant(w, r, id)
	default:
		h.logger.Warn("Unsupported session request", "method", r.Method, "path", r.URL.Path)
		writeError(w, h.logger, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

func (h *SessionHandler) fail(w http.ResponseWriter, id string, err error, notes ...notify.Notification) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.logger.Error("Session request failed", "session_id", id, "error", err)
	} else {
		h.logger.Warn("Session request rejected", "session_id", id, "error", err)
	}
	writeError(w, h.logger, status, err.Error(), notes...)
}

// render writes the current view model of a session
func (h *SessionHandler) render(w http.ResponseWriter, r *http.Request, id string, status int, notes ...notify.Notification) {
	vm, err := h.editor.Render(r.Context(), id, notifierFor(r))
	if err != nil {
		h.fail(w, id, err)
		return
	}
	writeJSON(w, h.logger, status, SessionResponse{Session: vm, Notifications: notes})
}

func (h *SessionHandler) handleOpen(w http.ResponseWriter, r *http.Request) {
	var req OpenSessionRequest
	if err := decodeBody(r, &req, false); err != nil {
		writeError(w, h.logger, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.ActorID) == "" {
		writeError(w, h.logger, http.StatusBadRequest, "actor_id is required")
		return
	}
	id, err := h.editor.Open(r.Context(), req.ActorID)
	if err != nil {
		h.fail(w, "", err)
		return
	}
	h.render(w, r, id, http.StatusCreated)
}

func (h *SessionHandler) handleDiscard(w http.ResponseWriter, r *http.Request, id string) {
	if err := h.editor.Discard(id); err != nil {
		h.fail(w, id, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *SessionHandler) handleUpsert(w http.ResponseWriter, r *http.Request, id string) {
	var req UpsertItemRequest
	if err := decodeBody(r, &req, false); err != nil {
		writeError(w, h.logger, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.editor.UpsertItem(id, req.UUID, req.Quantity); err != nil {
		h.fail(w, id, err)
		return
	}
	h.render(w, r, id, http.StatusOK)
}

func (h *SessionHandler) handleRemove(w http.ResponseWriter, r *http.Request, id string) {
	ref := r.URL.Query().Get("uuid")
	if err := h.editor.RemoveItem(id, ref); err != nil {
		h.fail(w, id, err)
		return
	}
	h.render(w, r, id, http.StatusOK)
}

func (h *SessionHandler) handleCurrencies(w http.ResponseWriter, r *http.Request, id string) {
	formulas := map[string]string{}
	if err := decodeBody(r, &formulas, false); err != nil {
		writeError(w, h.logger, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.editor.SetCurrencies(id, formulas); err != nil {
		h.fail(w, id, err)
		return
	}
	h.render(w, r, id, http.StatusOK)
}

func (h *SessionHandler) handleClear(w http.ResponseWriter, r *http.Request, id string) {
	if err := h.editor.Clear(id); err != nil {
		h.fail(w, id, err)
		return
	}
	h.render(w, r, id, http.StatusOK)
}

func (h *SessionHandler) handleDrop(w http.ResponseWriter, r *http.Request, id string) {
	n := notifierFor(r)
	data, err := readBody(r)
	if err != nil {
		writeError(w, h.logger, http.StatusBadRequest, "failed to read request body")
		return
	}
	payload, err := drop.ParsePayload(data)
	if err != nil {
		h.fail(w, id, err, n.Warn(notify.KeyInvalidDocument))
		return
	}
	notes, err := h.editor.Drop(r.Context(), id, payload, n)
	if err != nil {
		h.fail(w, id, err, notes...)
		return
	}
	h.render(w, r, id, http.StatusOK, notes...)
}

func (h *SessionHandler) handleSubmit(w http.ResponseWriter, r *http.Request, id string) {
	var vm *editor.ViewModel
	var body editor.ViewModel
	if err := decodeBody(r, &body, true); err != nil {
		writeError(w, h.logger, http.StatusBadRequest, err.Error())
		return
	}
	if body.Items != nil || body.Currencies != nil {
		vm = &body
	}
	list, notes, err := h.editor.Submit(r.Context(), id, vm, notifierFor(r))
	if err != nil {
		h.fail(w, id, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, SubmitResponse{List: list, Notifications: notes})
}

func (h *SessionHandler) handleGrant(w http.ResponseWriter, r *http.Request, id string) {
	var req GrantRequest
	if err := decodeBody(r, &req, true); err != nil {
		writeError(w, h.logger, http.StatusBadRequest, err.Error())
		return
	}
	result, notes, err := h.editor.Grant(r.Context(), id, req.TargetID, notifierFor(r))
	if result == nil {
		if err == nil {
			err = errors.New("grant produced no result")
		}
		h.fail(w, id, err, notes...)
		return
	}
	resp := GrantResponse{Result: result, Notifications: notes}
	if err != nil {
		h.logger.Warn("Grant applied partially", "session_id", id, "grant_id", result.GrantID, "error", err)
		resp.Error = err.Error()
	}
	writeJSON(w, h.logger, http.StatusOK, resp)
}
