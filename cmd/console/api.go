package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/jwebster45206/loot-list/internal/editor"
	"github.com/jwebster45206/loot-list/internal/handlers"
)

// APIError is a non-success response from the API
type APIError struct {
	Status   int
	Response handlers.ErrorResponse
}

func (e *APIError) Error() string {
	if e.Response.Error != "" {
		return e.Response.Error
	}
	return fmt.Sprintf("API returned status %d", e.Status)
}

// apiClient talks to the loot list API
type apiClient struct {
	client   *http.Client
	baseURL  string
	language string
}

func testConnection(client *http.Client, baseURL string) bool {
	resp, err := client.Get(baseURL + "/health")
	if err != nil {
		return false
	}
	defer func() {
		_ = resp.Body.Close() // Ignore error in defer
	}()
	return resp.StatusCode == http.StatusOK
}

// do sends a JSON request and decodes the response into out when the
// status matches want
func (c *apiClient) do(method, path string, body any, want int, out any) error {
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		r = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.baseURL+path, r)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.language != "" {
		req.Header.Set("Accept-Language", c.language)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close() // Ignore error in defer
	}()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != want {
		apiErr := &APIError{Status: resp.StatusCode}
		_ = json.Unmarshal(data, &apiErr.Response)
		return apiErr
	}
	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

func (c *apiClient) listActors() ([]string, error) {
	var resp handlers.ActorsResponse
	if err := c.do(http.MethodGet, "/v1/actors", nil, http.StatusOK, &resp); err != nil {
		return nil, err
	}
	return resp.Actors, nil
}

func (c *apiClient) openSession(actorID string) (*handlers.SessionResponse, error) {
	var resp handlers.SessionResponse
	err := c.do(http.MethodPost, "/v1/sessions", handlers.OpenSessionRequest{ActorID: actorID}, http.StatusCreated, &resp)
	return &resp, err
}

func (c *apiClient) getSession(id string) (*handlers.SessionResponse, error) {
	var resp handlers.SessionResponse
	err := c.do(http.MethodGet, "/v1/sessions/"+id, nil, http.StatusOK, &resp)
	return &resp, err
}

func (c *apiClient) upsertItem(id, uuid, quantity string) (*handlers.SessionResponse, error) {
	var resp handlers.SessionResponse
	err := c.do(http.MethodPost, "/v1/sessions/"+id+"/items", handlers.UpsertItemRequest{UUID: uuid, Quantity: quantity}, http.StatusOK, &resp)
	return &resp, err
}

func (c *apiClient) removeItem(id, uuid string) (*handlers.SessionResponse, error) {
	var resp handlers.SessionResponse
	err := c.do(http.MethodDelete, "/v1/sessions/"+id+"/items?uuid="+url.QueryEscape(uuid), nil, http.StatusOK, &resp)
	return &resp, err
}

func (c *apiClient) setCurrencies(id string, formulas map[string]string) (*handlers.SessionResponse, error) {
	var resp handlers.SessionResponse
	err := c.do(http.MethodPut, "/v1/sessions/"+id+"/currencies", formulas, http.StatusOK, &resp)
	return &resp, err
}

func (c *apiClient) clear(id string) (*handlers.SessionResponse, error) {
	var resp handlers.SessionResponse
	err := c.do(http.MethodPost, "/v1/sessions/"+id+"/clear", nil, http.StatusOK, &resp)
	return &resp, err
}

func (c *apiClient) drop(id string, payload json.RawMessage) (*handlers.SessionResponse, error) {
	var resp handlers.SessionResponse
	err := c.do(http.MethodPost, "/v1/sessions/"+id+"/drop", payload, http.StatusOK, &resp)
	return &resp, err
}

func (c *apiClient) submit(id string, vm *editor.ViewModel) (*handlers.SubmitResponse, error) {
	var resp handlers.SubmitResponse
	err := c.do(http.MethodPost, "/v1/sessions/"+id+"/submit", vm, http.StatusOK, &resp)
	return &resp, err
}

func (c *apiClient) discard(id string) error {
	return c.do(http.MethodDelete, "/v1/sessions/"+id, nil, http.StatusNoContent, nil)
}

func (c *apiClient) grant(id, targetID string) (*handlers.GrantResponse, error) {
	var resp handlers.GrantResponse
	err := c.do(http.MethodPost, "/v1/sessions/"+id+"/grant", handlers.GrantRequest{TargetID: targetID}, http.StatusOK, &resp)
	return &resp, err
}
