package launchmcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"sync"
	"time"
)

// DefaultHTTPTimeout defines the timeout used by clients created without a
// custom http.Client. It is intentionally short to avoid hanging network calls.
const DefaultHTTPTimeout = 15 * time.Second

// Client wraps the HTTP interactions with the LaunchMCP Chain REST API.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client

	mu          sync.RWMutex
	accessToken string
}

// LaunchIntent is the payload required to propose a token launch.
type LaunchIntent struct {
	SagaID      string `json:"saga_id,omitempty"`
	Name        string `json:"name"`
	Symbol      string `json:"symbol"`
	Description string `json:"description,omitempty"`
	ImageURL    string `json:"image_url,omitempty"`
}

// SwapIntent is the payload required to propose a swap.
type SwapIntent struct {
	SagaID       string `json:"saga_id,omitempty"`
	SourceSymbol string `json:"source_symbol"`
	TargetSymbol string `json:"target_symbol"`
	Amount       string `json:"amount"`
}

// Proposal references a pending action awaiting user confirmation.
type Proposal struct {
	ActionRef string `json:"action_ref"`
	SagaID    string `json:"saga_id"`
	Message   string `json:"message"`
}

// RunReceipt is returned when a confirmed action is submitted for execution.
type RunReceipt struct {
	RunID  string `json:"run_id"`
	SagaID string `json:"saga_id"`
	Status string `json:"status"`
}

// StepView mirrors the per-step state of a workflow run.
type StepView struct {
	ID          string         `json:"id"`
	Kind        string         `json:"kind"`
	Criticality string         `json:"criticality"`
	Status      string         `json:"status"`
	Output      map[string]any `json:"output,omitempty"`
	Error       string         `json:"error,omitempty"`
}

// RunView is the full snapshot of a workflow run.
type RunView struct {
	ID        string     `json:"id"`
	SagaID    string     `json:"saga_id"`
	Kind      string     `json:"kind"`
	Owner     string     `json:"owner"`
	Status    string     `json:"status"`
	Error     string     `json:"error,omitempty"`
	CreatedAt int64      `json:"created_at"`
	UpdatedAt int64      `json:"updated_at"`
	Steps     []StepView `json:"steps"`
}

// TranscriptEntry is a single message in a conversation transcript.
type TranscriptEntry struct {
	ID               string `json:"id"`
	SagaID           string `json:"saga_id"`
	Role             string `json:"role"`
	Content          string `json:"content"`
	PendingActionRef string `json:"pending_action_ref,omitempty"`
	CreatedAt        int64  `json:"created_at"`
}

// Stats summarises run counts by status.
type Stats struct {
	Total     int `json:"total"`
	Pending   int `json:"pending"`
	Running   int `json:"running"`
	Completed int `json:"completed"`
	Aborted   int `json:"aborted"`
}

// APIError represents server side validation or internal errors.
type APIError struct {
	StatusCode int
	Code       string `json:"code"`
	Message    string `json:"error"`
}

func (e *APIError) Error() string {
	if e == nil {
		return ""
	}
	if e.Code != "" {
		return fmt.Sprintf("launchmcp api error (%d): %s - %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("launchmcp api error (%d): %s", e.StatusCode, e.Message)
}

// NewClient instantiates a client for the LaunchMCP Chain API. When httpClient
// is nil, a default client with a sensible timeout is used.
func NewClient(rawURL string, httpClient *http.Client) (*Client, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultHTTPTimeout}
	}
	return &Client{baseURL: parsed, httpClient: httpClient}, nil
}

// SetAccessToken stores the session token attached to subsequent calls.
func (c *Client) SetAccessToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.accessToken = token
}

// AccessToken returns the currently stored token string.
func (c *Client) AccessToken() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.accessToken
}

// ProposeLaunch registers a token launch proposal awaiting confirmation.
func (c *Client) ProposeLaunch(ctx context.Context, intent LaunchIntent) (Proposal, error) {
	var proposal Proposal
	if err := c.post(ctx, "/api/v1/launch", intent, &proposal); err != nil {
		return Proposal{}, err
	}
	return proposal, nil
}

// ProposeSwap registers a swap proposal awaiting confirmation.
func (c *Client) ProposeSwap(ctx context.Context, intent SwapIntent) (Proposal, error) {
	var proposal Proposal
	if err := c.post(ctx, "/api/v1/swap", intent, &proposal); err != nil {
		return Proposal{}, err
	}
	return proposal, nil
}

// Confirm executes a pending action and submits the resulting workflow run.
func (c *Client) Confirm(ctx context.Context, actionRef string) (RunReceipt, error) {
	var receipt RunReceipt
	payload := map[string]string{"action_ref": actionRef}
	if err := c.post(ctx, "/api/v1/actions/confirm", payload, &receipt); err != nil {
		return RunReceipt{}, err
	}
	return receipt, nil
}

// Cancel discards a pending action. The transcript keeps the proposal message
// and records the cancellation.
func (c *Client) Cancel(ctx context.Context, actionRef string) error {
	payload := map[string]string{"action_ref": actionRef}
	return c.post(ctx, "/api/v1/actions/cancel", payload, nil)
}

// GetRun fetches the current snapshot of a workflow run.
func (c *Client) GetRun(ctx context.Context, runID string) (RunView, error) {
	var view RunView
	endpoint := fmt.Sprintf("/api/v1/runs?id=%s", url.QueryEscape(runID))
	if err := c.get(ctx, endpoint, &view); err != nil {
		return RunView{}, err
	}
	return view, nil
}

// Transcript lists the conversation history for a saga.
func (c *Client) Transcript(ctx context.Context, sagaID string) ([]TranscriptEntry, error) {
	var entries []TranscriptEntry
	endpoint := fmt.Sprintf("/api/v1/transcript?saga_id=%s", url.QueryEscape(sagaID))
	if err := c.get(ctx, endpoint, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// Stats fetches the run statistics.
func (c *Client) Stats(ctx context.Context) (Stats, error) {
	var stats Stats
	if err := c.get(ctx, "/api/v1/stats", &stats); err != nil {
		return Stats{}, err
	}
	return stats, nil
}

func (c *Client) post(ctx context.Context, endpoint string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	req, err := c.newRequest(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) get(ctx context.Context, endpoint string, out any) error {
	req, err := c.newRequest(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) newRequest(ctx context.Context, method, endpoint string, body io.Reader) (*http.Request, error) {
	parsed, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("parse endpoint: %w", err)
	}
	rel := &url.URL{Path: path.Join(c.baseURL.Path, parsed.Path), RawQuery: parsed.RawQuery}
	u := c.baseURL.ResolveReference(rel)
	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if token := c.AccessToken(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req, nil
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("perform request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read error response: %w", err)
		}
		if len(data) > 0 {
			_ = json.Unmarshal(data, apiErr)
		}
		if apiErr.Message == "" {
			apiErr.Message = string(bytes.TrimSpace(data))
		}
		return apiErr
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	decoder := json.NewDecoder(resp.Body)
	if err := decoder.Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
