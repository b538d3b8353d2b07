package runner

import (
	"encoding/json"
	"time"
)

// Step actions
const (
	ActionAdd        = "add"
	ActionRemove     = "remove"
	ActionCurrencies = "currencies"
	ActionClear      = "clear"
	ActionDrop       = "drop"
	ActionGrant      = "grant"
	ActionSubmit     = "submit"
	ActionDiscard    = "discard"
	ActionReopen     = "reopen"
)

// TestSuite defines a complete integration test scenario
// Can either be a regular test with Steps, or a suite that references other Cases
type TestSuite struct {
	Name  string     `json:"name"`
	Actor string     `json:"actor,omitempty"` // record whose loot list is edited
	Steps []TestStep `json:"steps,omitempty"` // Used for regular tests
	Cases []string   `json:"cases,omitempty"` // Used for suite tests (list of case files)
}

// IsSequence returns true if this is a suite that sequences other cases
func (ts *TestSuite) IsSequence() bool {
	return len(ts.Cases) > 0
}

// TestStep defines a single session operation and its expected outcomes
type TestStep struct {
	Name         string            `json:"name,omitempty"`
	Action       string            `json:"action"`
	UUID         string            `json:"uuid,omitempty"`
	Quantity     string            `json:"quantity,omitempty"`
	Currencies   map[string]string `json:"currencies,omitempty"`
	Payload      json.RawMessage   `json:"payload,omitempty"` // drop payload
	Target       string            `json:"target,omitempty"`  // grant target
	Expectations Expectations      `json:"expect"`
}

// Expectations defines what to check after a test step executes
type Expectations struct {
	Status *int `json:"status,omitempty"` // HTTP status, 200 when omitted

	// Working list, read from the session view
	Items      map[string]string `json:"items,omitempty"` // reference -> quantity formula
	ItemCount  *int              `json:"item_count,omitempty"`
	Currencies map[string]string `json:"currencies,omitempty"`
	Missing    []string          `json:"missing,omitempty"` // references shown as missing

	// Notifications by message key
	Notifications    []string `json:"notifications,omitempty"`
	NotNotifications []string `json:"not_notifications,omitempty"`

	// Grant outcome
	Granted       *int           `json:"granted,omitempty"` // created plus updated items
	Skipped       *int           `json:"skipped,omitempty"`
	CurrencyAdded map[string]int `json:"currency_added,omitempty"`
	PartialError  *bool          `json:"partial_error,omitempty"`
	Event         bool           `json:"event,omitempty"` // a grant.applied event reaches the target's stream
}

// TestResult contains the outcome of running a test step
type TestResult struct {
	TestName string
	StepName string
	Success  bool
	Error    error
	Duration time.Duration
}

// TestJob represents a test suite to be executed
type TestJob struct {
	Name     string
	Suite    TestSuite
	CaseFile string
}

// TestRunResult contains the results of running an entire test suite
type TestRunResult struct {
	Job       TestJob
	Results   []TestResult
	Error     error
	Duration  time.Duration
	SessionID string // editing session used for this test
}
