package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/jwebster45206/loot-list/internal/editor"
	"github.com/jwebster45206/loot-list/internal/notify"
	"github.com/jwebster45206/loot-list/pkg/drop"
	"github.com/jwebster45206/loot-list/pkg/grant"
	"github.com/jwebster45206/loot-list/pkg/loot"
	"github.com/jwebster45206/loot-list/pkg/storage"
)

const maxBodyBytes = 1 << 20

type ErrorResponse struct {
	Error         string                `json:"error"`
	Notifications []notify.Notification `json:"notifications,omitempty"`
}

func writeJSON(w http.ResponseWriter, logger *slog.Logger, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("Failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, logger *slog.Logger, status int, msg string, notes ...notify.Notification) {
	writeJSON(w, logger, status, ErrorResponse{Error: msg, Notifications: notes})
}

// statusFor maps domain errors to HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, editor.ErrSessionNotFound), errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, loot.ErrSessionClosed):
		return http.StatusConflict
	case errors.Is(err, loot.ErrEmptyReference):
		return http.StatusBadRequest
	case errors.Is(err, grant.ErrNoTarget),
		errors.Is(err, drop.ErrInvalidDocument),
		errors.Is(err, drop.ErrEmptyDocument),
		errors.Is(err, drop.ErrOwnedItem):
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

// notifierFor returns a notifier in the language the client prefers
func notifierFor(r *http.Request) *notify.Notifier {
	return notify.New(notify.Match(r.Header.Get("Accept-Language")))
}

// readBody reads a bounded request body
func readBody(r *http.Request) ([]byte, error) {
	if r.Body == nil {
		return nil, nil
	}
	return io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
}

// decodeBody decodes a JSON body into v. An empty body leaves v untouched
// when optional is set.
func decodeBody(r *http.Request, v any, optional bool) error {
	data, err := readBody(r)
	if err != nil {
		return fmt.Errorf("failed to read request body: %w", err)
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		if optional {
			return nil
		}
		return errors.New("request body is required")
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

// pathParts splits the path below prefix into its segments
func pathParts(path, prefix string) []string {
	rest := strings.Trim(strings.TrimPrefix(path, prefix), "/")
	if rest == "" {
		return nil
	}
	return strings.Split(rest, "/")
}
