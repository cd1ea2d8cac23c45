package orchestrator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/spec-kit/repair-service/internal/config"
	"github.com/spec-kit/repair-service/internal/domain"
)

// Criteria selects a workflow configuration for a case.
type Criteria struct {
	DeviceType   string              `json:"device_type"`
	ServiceType  string              `json:"service_type"`
	CustomerTier string              `json:"customer_tier"`
	Priority     domain.CasePriority `json:"priority"`
}

// WorkflowConfig is the orchestrator's resolved process configuration.
type WorkflowConfig struct {
	ID           string `json:"id"`
	DefinitionID string `json:"definition_id"`
	Name         string `json:"name"`
}

// Instance is the orchestrator's view of a running workflow.
type Instance struct {
	ID           string                `json:"id"`
	DefinitionID string                `json:"definition_id"`
	Status       domain.WorkflowStatus `json:"status"`
	CurrentStep  domain.WorkflowStep   `json:"current_step"`
	Context      map[string]any        `json:"context"`
}

// Client is the raw orchestrator transport. Retries live one layer up in the
// workflow service; every call here is a single attempt bounded by ctx and
// the configured request timeout.
type Client interface {
	// SelectConfiguration returns nil when no configuration matches.
	SelectConfiguration(ctx context.Context, criteria Criteria) (*WorkflowConfig, error)
	StartInstance(ctx context.Context, definitionID, caseID string, initial map[string]any) (*Instance, error)
	CompleteStep(ctx context.Context, instanceID string, step domain.WorkflowStep, result map[string]any) error
	PostEvent(ctx context.Context, instanceID, eventType string, data map[string]any) error
	GetInstance(ctx context.Context, instanceID string) (*Instance, error)
}

type httpClient struct {
	baseURL string
	client  *http.Client
}

// NewHTTPClient builds the JSON-over-HTTP transport.
func NewHTTPClient(cfg config.WorkflowConfig) Client {
	return &httpClient{
		baseURL: cfg.BaseURL,
		client:  &http.Client{Timeout: cfg.RequestTimeout()},
	}
}

func (c *httpClient) SelectConfiguration(ctx context.Context, criteria Criteria) (*WorkflowConfig, error) {
	var cfg WorkflowConfig
	found, err := c.post(ctx, "/v1/configurations/select", criteria, &cfg)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	return &cfg, nil
}

func (c *httpClient) StartInstance(ctx context.Context, definitionID, caseID string, initial map[string]any) (*Instance, error) {
	body := map[string]any{
		"definition_id": definitionID,
		"case_id":       caseID,
		"context":       initial,
	}
	var instance Instance
	if _, err := c.post(ctx, "/v1/instances", body, &instance); err != nil {
		return nil, err
	}
	return &instance, nil
}

func (c *httpClient) CompleteStep(ctx context.Context, instanceID string, step domain.WorkflowStep, result map[string]any) error {
	body := map[string]any{
		"step_id": step,
		"result":  result,
	}
	path := fmt.Sprintf("/v1/instances/%s/steps/complete", url.PathEscape(instanceID))
	_, err := c.post(ctx, path, body, nil)
	return err
}

func (c *httpClient) PostEvent(ctx context.Context, instanceID, eventType string, data map[string]any) error {
	body := map[string]any{
		"event_type": eventType,
		"data":       data,
	}
	path := fmt.Sprintf("/v1/instances/%s/events", url.PathEscape(instanceID))
	_, err := c.post(ctx, path, body, nil)
	return err
}

func (c *httpClient) GetInstance(ctx context.Context, instanceID string) (*Instance, error) {
	path := fmt.Sprintf("/v1/instances/%s", url.PathEscape(instanceID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, err
	}
	var instance Instance
	if _, err := c.do(req, &instance); err != nil {
		return nil, err
	}
	return &instance, nil
}

// post sends a JSON body; the bool result is false when the orchestrator
// answered 204 or 404 (no matching resource, not a transport failure).
func (c *httpClient) post(ctx context.Context, path string, body, out any) (bool, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return false, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return false, err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *httpClient) do(req *http.Request, out any) (bool, error) {
	resp, err := c.client.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNoContent || resp.StatusCode == http.StatusNotFound:
		return false, nil
	case resp.StatusCode >= 400:
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return false, fmt.Errorf("orchestrator %s %s: status %d: %s", req.Method, req.URL.Path, resp.StatusCode, string(data))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return false, fmt.Errorf("decode orchestrator response: %w", err)
		}
	}
	return true, nil
}
