package runner

import (
	"bufio"
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/jwebster45206/loot-list/internal/services/events"
)

const (
	// EventTimeout is max time to wait for a grant event after the grant returns
	EventTimeout = 10 * time.Second
	// EventGrantApplied is the stream event sent once a grant's mutations are done
	EventGrantApplied = string(events.EventTypeGrantApplied)
)

// EventListener reads the grant event stream of one target record
type EventListener struct {
	cancel context.CancelFunc
	events chan string
	errc   chan error
}

// ListenGrantEvents connects to the target's event stream and returns once
// the server confirms the subscription
func ListenGrantEvents(ctx context.Context, client *http.Client, baseURL, targetID string) (*EventListener, error) {
	streamCtx, cancel := context.WithCancel(ctx)
	req, err := http.NewRequestWithContext(streamCtx, http.MethodGet, baseURL+"/v1/events/grants/"+targetID, nil)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to create events request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to connect to event stream: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		_ = resp.Body.Close()
		cancel()
		return nil, fmt.Errorf("event stream returned %d", resp.StatusCode)
	}

	reader := bufio.NewReader(resp.Body)
	name, err := readEventName(reader)
	if err != nil || name != "connected" {
		_ = resp.Body.Close()
		cancel()
		return nil, fmt.Errorf("event stream did not confirm the subscription (%q): %v", name, err)
	}

	l := &EventListener{
		cancel: cancel,
		events: make(chan string, 16),
		errc:   make(chan error, 1),
	}
	go func() {
		defer func() { _ = resp.Body.Close() }()
		for {
			name, err := readEventName(reader)
			if err != nil {
				l.errc <- err
				return
			}
			select {
			case l.events <- name:
			case <-streamCtx.Done():
				return
			}
		}
	}()
	return l, nil
}

// Wait blocks until an event of the given type arrives
func (l *EventListener) Wait(eventType string, timeout time.Duration) error {
	deadline := time.After(timeout)
	for {
		select {
		case name := <-l.events:
			if name == eventType {
				return nil
			}
		case err := <-l.errc:
			return fmt.Errorf("event stream closed before %s: %w", eventType, err)
		case <-deadline:
			return fmt.Errorf("timeout waiting for %s event (waited %v)", eventType, timeout)
		}
	}
}

// Close disconnects from the stream
func (l *EventListener) Close() {
	l.cancel()
}

// readEventName reads one SSE event and returns its name. Comment lines
// such as keepalives are skipped.
func readEventName(r *bufio.Reader) (string, error) {
	var name string
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return name, err
		}
		line = strings.TrimRight(line, "\r\n")
		switch {
		case strings.HasPrefix(line, "event: "):
			name = strings.TrimPrefix(line, "event: ")
		case line == "" && name != "":
			return name, nil
		}
	}
}
