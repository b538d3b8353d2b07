package runner

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/jwebster45206/loot-list/internal/editor"
	"github.com/jwebster45206/loot-list/internal/handlers"
	"github.com/jwebster45206/loot-list/internal/notify"
	"github.com/jwebster45206/loot-list/pkg/grant"
	"github.com/jwebster45206/loot-list/pkg/loot"
)

type ErrorHandlingMode string

const ErrorHandlingExit ErrorHandlingMode = "exit"
const ErrorHandlingContinue ErrorHandlingMode = "continue"

// Runner executes integration tests against a running loot-list API
type Runner struct {
	BaseURL           string
	Client            *http.Client
	Timeout           time.Duration
	Logger            func(format string, args ...interface{})
	ErrorHandlingMode ErrorHandlingMode
}

// NewRunner creates a new test runner
func NewRunner(baseURL string) *Runner {
	return &Runner{
		BaseURL:           strings.TrimSuffix(baseURL, "/"),
		Client:            &http.Client{Timeout: 60 * time.Second},
		Timeout:           30 * time.Second,
		Logger:            func(string, ...interface{}) {},
		ErrorHandlingMode: ErrorHandlingContinue,
	}
}

// stepResponse holds the union of the session, submit, grant and error
// response bodies
type stepResponse struct {
	Session       *editor.ViewModel     `json:"session,omitempty"`
	List          *loot.List            `json:"list,omitempty"`
	Result        *grant.Result         `json:"result,omitempty"`
	Notifications []notify.Notification `json:"notifications,omitempty"`
	Error         string                `json:"error,omitempty"`
}

// LoadTestSuite loads a test suite from a JSON file
func LoadTestSuite(filename string) (TestSuite, error) {
	content, err := os.ReadFile(filename)
	if err != nil {
		return TestSuite{}, fmt.Errorf("failed to read test file %s: %w", filename, err)
	}

	var suite TestSuite
	if err := json.Unmarshal(content, &suite); err != nil {
		return TestSuite{}, fmt.Errorf("failed to parse JSON in %s: %w", filename, err)
	}

	return suite, nil
}

// LoadTestSuiteWithExpansion loads a test suite and expands it if it's a sequence
// Returns a list of actual test suites (expanded from the sequence if needed)
func LoadTestSuiteWithExpansion(filename string, casesDir string) ([]TestJob, error) {
	suite, err := LoadTestSuite(filename)
	if err != nil {
		return nil, err
	}

	if !suite.IsSequence() {
		return []TestJob{{
			Name:     suite.Name,
			Suite:    suite,
			CaseFile: filename,
		}}, nil
	}

	var jobs []TestJob
	for _, caseFile := range suite.Cases {
		casePath := filepath.Join(casesDir, caseFile)

		// Recursively load (in case a sequence references another sequence)
		subJobs, err := LoadTestSuiteWithExpansion(casePath, casesDir)
		if err != nil {
			return nil, fmt.Errorf("failed to load case '%s' referenced by sequence '%s': %w", caseFile, suite.Name, err)
		}

		jobs = append(jobs, subJobs...)
	}

	return jobs, nil
}

// RunSuite opens a session on the suite's actor and executes its steps.
// A session still open at the end is discarded.
func (r *Runner) RunSuite(ctx context.Context, suite TestSuite) (TestRunResult, error) {
	start := time.Now()
	result := TestRunResult{
		Job: TestJob{
			Name:  suite.Name,
			Suite: suite,
		},
		Results: make([]TestResult, 0, len(suite.Steps)),
	}

	sessionID, err := r.openSession(ctx, suite.Actor)
	if err != nil {
		result.Error = fmt.Errorf("failed to open session: %w", err)
		result.Duration = time.Since(start)
		return result, result.Error
	}
	result.SessionID = sessionID
	open := true

	for i, step := range suite.Steps {
		r.Logger("    [%d/%d] Running step: %s", i+1, len(suite.Steps), step.Name)

		stepStart := time.Now()
		stepResult := TestResult{TestName: suite.Name, StepName: step.Name}

		switch step.Action {
		case ActionReopen:
			if open {
				_ = r.discard(ctx, sessionID)
			}
			sessionID, err = r.openSession(ctx, suite.Actor)
			if err == nil {
				open = true
				err = r.checkSessionExpectations(ctx, sessionID, step.Expectations, nil)
			}
		default:
			if !open {
				err = fmt.Errorf("session closed before step %q", step.Name)
				break
			}
			err = r.executeStep(ctx, sessionID, step)
			if err == nil && (step.Action == ActionSubmit || step.Action == ActionDiscard) {
				open = !r.succeeded(step)
			}
		}

		stepResult.Error = err
		stepResult.Success = err == nil
		stepResult.Duration = time.Since(stepStart)
		result.Results = append(result.Results, stepResult)

		if err != nil {
			r.Logger("    [%d/%d] ✗ %s: %v", i+1, len(suite.Steps), step.Name, err)
			if result.Error == nil {
				result.Error = fmt.Errorf("step %d (%s) failed: %w", i, step.Name, err)
			}
			if r.ErrorHandlingMode == ErrorHandlingExit {
				break
			}
			continue
		}
		r.Logger("    [%d/%d] ✓ %s (%v)", i+1, len(suite.Steps), step.Name, stepResult.Duration)
	}

	if open {
		if err := r.discard(ctx, sessionID); err != nil {
			r.Logger("    failed to discard session %s: %v", sessionID, err)
		}
	}

	result.Duration = time.Since(start)
	return result, result.Error
}

// succeeded reports whether the step expects a 2xx status
func (r *Runner) succeeded(step TestStep) bool {
	return step.Expectations.Status == nil || *step.Expectations.Status < 300
}

func (r *Runner) executeStep(ctx context.Context, sessionID string, step TestStep) error {
	stepCtx, cancel := context.WithTimeout(ctx, r.Timeout)
	defer cancel()

	base := "/v1/sessions/" + sessionID
	var (
		method string
		path   string
		body   any
		want   = http.StatusOK
	)
	switch step.Action {
	case ActionAdd:
		method, path = http.MethodPost, base+"/items"
		body = handlers.UpsertItemRequest{UUID: step.UUID, Quantity: step.Quantity}
	case ActionRemove:
		method, path = http.MethodDelete, base+"/items?uuid="+url.QueryEscape(step.UUID)
	case ActionCurrencies:
		method, path, body = http.MethodPut, base+"/currencies", step.Currencies
	case ActionClear:
		method, path = http.MethodPost, base+"/clear"
	case ActionDrop:
		method, path, body = http.MethodPost, base+"/drop", step.Payload
	case ActionGrant:
		method, path = http.MethodPost, base+"/grant"
		body = handlers.GrantRequest{TargetID: step.Target}
	case ActionSubmit:
		method, path = http.MethodPost, base+"/submit"
	case ActionDiscard:
		method, path, want = http.MethodDelete, base, http.StatusNoContent
	default:
		return fmt.Errorf("unknown action %q", step.Action)
	}
	if step.Expectations.Status != nil {
		want = *step.Expectations.Status
	}

	var listener *EventListener
	if step.Action == ActionGrant && step.Expectations.Event {
		var err error
		listener, err = ListenGrantEvents(stepCtx, r.Client, r.BaseURL, step.Target)
		if err != nil {
			return err
		}
		defer listener.Close()
	}

	var resp stepResponse
	status, err := r.call(stepCtx, method, path, body, &resp)
	if err != nil {
		return err
	}
	if status != want {
		return fmt.Errorf("expected status %d, got %d (%s)", want, status, resp.Error)
	}

	if err := checkResponse(step.Expectations, &resp); err != nil {
		return err
	}
	if listener != nil {
		if err := listener.Wait(EventGrantApplied, EventTimeout); err != nil {
			return err
		}
	}
	if step.Action == ActionSubmit || step.Action == ActionDiscard {
		return nil
	}
	return r.checkSessionExpectations(stepCtx, sessionID, step.Expectations, resp.Session)
}

// checkSessionExpectations checks the working list expectations against vm,
// fetching the session when vm is nil
func (r *Runner) checkSessionExpectations(ctx context.Context, sessionID string, exp Expectations, vm *editor.ViewModel) error {
	if exp.Items == nil && exp.ItemCount == nil && exp.Currencies == nil && exp.Missing == nil {
		return nil
	}
	if vm == nil {
		var resp stepResponse
		status, err := r.call(ctx, http.MethodGet, "/v1/sessions/"+sessionID, nil, &resp)
		if err != nil {
			return err
		}
		if status != http.StatusOK || resp.Session == nil {
			return fmt.Errorf("failed to get session %s: status %d", sessionID, status)
		}
		vm = resp.Session
	}
	return checkSession(exp, vm)
}

// checkResponse checks notification and grant expectations
func checkResponse(exp Expectations, resp *stepResponse) error {
	var errs []string

	keys := make([]string, len(resp.Notifications))
	for i, n := range resp.Notifications {
		keys[i] = n.Key
	}
	for _, key := range exp.Notifications {
		if !slices.Contains(keys, key) {
			errs = append(errs, fmt.Sprintf("expected notification %s, got %v", key, keys))
		}
	}
	for _, key := range exp.NotNotifications {
		if slices.Contains(keys, key) {
			errs = append(errs, fmt.Sprintf("unexpected notification %s", key))
		}
	}

	if exp.PartialError != nil && *exp.PartialError != (resp.Error != "") {
		errs = append(errs, fmt.Sprintf("expected partial error %v, got %q", *exp.PartialError, resp.Error))
	}

	if exp.Granted != nil || exp.Skipped != nil || exp.CurrencyAdded != nil {
		res := resp.Result
		if res == nil {
			return fmt.Errorf("expected a grant result")
		}
		if exp.Granted != nil {
			if got := len(res.CreatedItems) + len(res.UpdatedItemDeltas); got != *exp.Granted {
				errs = append(errs, fmt.Sprintf("expected %d granted items, got %d", *exp.Granted, got))
			}
		}
		if exp.Skipped != nil && len(res.Skipped) != *exp.Skipped {
			errs = append(errs, fmt.Sprintf("expected %d skipped entries, got %d (%v)", *exp.Skipped, len(res.Skipped), res.Skipped))
		}
		for code, want := range exp.CurrencyAdded {
			got := 0
			for _, d := range res.CurrencyDeltas {
				if d.Code == code {
					got = d.Added
				}
			}
			if got != want {
				errs = append(errs, fmt.Sprintf("expected %d %s added, got %d", want, code, got))
			}
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

// checkSession checks the working list expectations against a session view
func checkSession(exp Expectations, vm *editor.ViewModel) error {
	var errs []string

	items := make(map[string]editor.ItemView, len(vm.Items))
	for _, it := range vm.Items {
		items[it.Reference] = it
	}
	if exp.ItemCount != nil && len(vm.Items) != *exp.ItemCount {
		errs = append(errs, fmt.Sprintf("expected %d items, got %d", *exp.ItemCount, len(vm.Items)))
	}
	for ref, qty := range exp.Items {
		it, ok := items[ref]
		switch {
		case !ok:
			errs = append(errs, fmt.Sprintf("expected item %s on the list", ref))
		case it.Quantity != qty:
			errs = append(errs, fmt.Sprintf("expected %s quantity %q, got %q", ref, qty, it.Quantity))
		}
	}
	for _, ref := range exp.Missing {
		if it, ok := items[ref]; !ok || !it.Missing {
			errs = append(errs, fmt.Sprintf("expected %s to be shown as missing", ref))
		}
	}

	currencies := make(map[string]string, len(vm.Currencies))
	for _, c := range vm.Currencies {
		currencies[c.Code] = c.Formula
	}
	for code, formula := range exp.Currencies {
		if currencies[code] != formula {
			errs = append(errs, fmt.Sprintf("expected %s formula %q, got %q", code, formula, currencies[code]))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func (r *Runner) openSession(ctx context.Context, actorID string) (string, error) {
	var resp stepResponse
	status, err := r.call(ctx, http.MethodPost, "/v1/sessions", handlers.OpenSessionRequest{ActorID: actorID}, &resp)
	if err != nil {
		return "", err
	}
	if status != http.StatusCreated || resp.Session == nil {
		return "", fmt.Errorf("open session on %s returned status %d: %s", actorID, status, resp.Error)
	}
	return resp.Session.SessionID, nil
}

func (r *Runner) discard(ctx context.Context, sessionID string) error {
	status, err := r.call(ctx, http.MethodDelete, "/v1/sessions/"+sessionID, nil, nil)
	if err != nil {
		return err
	}
	if status != http.StatusNoContent {
		return fmt.Errorf("discard returned status %d", status)
	}
	return nil
}

// call sends a JSON request and decodes any response body into out
func (r *Runner) call(ctx context.Context, method, path string, body any, out any) (int, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, r.BaseURL+path, reader)
	if err != nil {
		return 0, fmt.Errorf("failed to create %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.Client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("failed to send %s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, fmt.Errorf("failed to read response: %w", err)
	}
	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return resp.StatusCode, fmt.Errorf("failed to parse response: %w", err)
		}
	}
	return resp.StatusCode, nil
}
