package queue

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Request is a queued grant of a record's committed loot list to a target
type Request struct {
	RequestID  string    `json:"request_id"`
	SourceID   string    `json:"source_id"`
	TargetID   string    `json:"target_id"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// NewRequest creates a request with a fresh ID
func NewRequest(sourceID, targetID string) *Request {
	return &Request{
		RequestID:  uuid.New().String(),
		SourceID:   sourceID,
		TargetID:   targetID,
		EnqueuedAt: time.Now().UTC(),
	}
}

// ToJSON converts the request to JSON bytes for Redis
func (r *Request) ToJSON() ([]byte, error) {
	return json.Marshal(r)
}

// FromJSON parses a request from JSON bytes
func FromJSON(data []byte) (*Request, error) {
	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, err
	}
	return &req, nil
}
