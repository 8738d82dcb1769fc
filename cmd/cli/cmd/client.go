package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"projectplane/pkg/api"
)

// ProjectClient handles API calls to the projectplane controller.
type ProjectClient struct {
	BaseURL    string
	Tenant     string
	UserID     string
	HTTPClient *http.Client
}

// NewProjectClient creates a new client acting as the given tenant user.
func NewProjectClient(baseURL, tenant, userID string) *ProjectClient {
	return &ProjectClient{
		BaseURL: baseURL,
		Tenant:  tenant,
		UserID:  userID,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// APIError represents an error response from the API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error (%d): %s", e.StatusCode, e.Message)
}

func (c *ProjectClient) newRequest(method, path string, body interface{}) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequest(method, c.BaseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Add("X-Tenant-ID", c.Tenant)
	req.Header.Add("X-User-ID", c.UserID)
	req.Header.Add("Content-Type", "application/json")
	return req, nil
}

// CreateProject sends POST /api/projects and returns the accepted command.
func (c *ProjectClient) CreateProject(def api.ProjectDefinition) (*api.CommandStatusResponse, error) {
	req, err := c.newRequest(http.MethodPost, "/api/projects", def)
	if err != nil {
		return nil, err
	}
	return c.doCommand(req)
}

// DeleteProject sends DELETE /api/projects/{id} and returns the accepted
// command.
func (c *ProjectClient) DeleteProject(projectID string) (*api.CommandStatusResponse, error) {
	req, err := c.newRequest(http.MethodDelete, "/api/projects/"+projectID, nil)
	if err != nil {
		return nil, err
	}
	return c.doCommand(req)
}

// ListProjects sends GET /api/projects.
func (c *ProjectClient) ListProjects() ([]api.ProjectResponse, error) {
	req, err := c.newRequest(http.MethodGet, "/api/projects", nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return nil, &APIError{StatusCode: resp.StatusCode, Message: string(respBody)}
	}

	var projects []api.ProjectResponse
	if err := json.Unmarshal(respBody, &projects); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	return projects, nil
}

// GetCommandStatus sends GET /orchestrator/commands/{id}. Failed commands
// answer with a client or server error status but still carry the full
// result, so any decodable body is returned as a result.
func (c *ProjectClient) GetCommandStatus(commandID string) (*api.CommandStatusResponse, error) {
	req, err := c.newRequest(http.MethodGet, "/orchestrator/commands/"+commandID, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)

	var result api.CommandStatusResponse
	if err := json.Unmarshal(respBody, &result); err != nil || result.CommandID == "" {
		return nil, &APIError{StatusCode: resp.StatusCode, Message: string(respBody)}
	}
	return &result, nil
}

// AddUser sends POST /api/users to create or promote a tenant user.
func (c *ProjectClient) AddUser(def api.UserDefinition) (*api.CommandStatusResponse, error) {
	req, err := c.newRequest(http.MethodPost, "/api/users", def)
	if err != nil {
		return nil, err
	}
	return c.doCommand(req)
}

// AddProjectUser sends POST /api/projects/{id}/users.
func (c *ProjectClient) AddProjectUser(projectID string, def api.UserDefinition) (*api.CommandStatusResponse, error) {
	req, err := c.newRequest(http.MethodPost, "/api/projects/"+projectID+"/users", def)
	if err != nil {
		return nil, err
	}
	return c.doCommand(req)
}

// ConfigureTenant sends POST /internal/tenants guarded by the system secret.
func (c *ProjectClient) ConfigureTenant(document json.RawMessage, secret string) error {
	req, err := http.NewRequest(http.MethodPost, c.BaseURL+"/internal/tenants", bytes.NewReader(document))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Add("Authorization", "Bearer "+secret)
	req.Header.Add("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusCreated {
		return &APIError{StatusCode: resp.StatusCode, Message: string(respBody)}
	}
	return nil
}

func (c *ProjectClient) doCommand(req *http.Request) (*api.CommandStatusResponse, error) {
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusAccepted {
		return nil, &APIError{StatusCode: resp.StatusCode, Message: string(respBody)}
	}

	var result api.CommandStatusResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	return &result, nil
}

// WaitForCommand polls the command status until it leaves the active states
// or the timeout expires.
func (c *ProjectClient) WaitForCommand(commandID string, interval, timeout time.Duration) (*api.CommandStatusResponse, error) {
	deadline := time.Now().Add(timeout)
	for {
		result, err := c.GetCommandStatus(commandID)
		if err != nil {
			return nil, err
		}
		switch result.RuntimeStatus {
		case "completed", "failed", "terminated", "canceled":
			return result, nil
		}
		if time.Now().After(deadline) {
			return result, fmt.Errorf("command %s still %s after %s", commandID, result.RuntimeStatus, timeout)
		}
		time.Sleep(interval)
	}
}
