// Package guildforge provides a small Go client for the GuildForge Chain
// deployment REST API.
package guildforge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"sync"
	"time"
)

// DefaultHTTPTimeout defines the timeout used by clients created without a
// custom http.Client. It is intentionally short to avoid hanging network calls.
const DefaultHTTPTimeout = 15 * time.Second

// Client wraps the HTTP interactions with the GuildForge Chain REST API.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client

	mu          sync.RWMutex
	accessToken string
}

// DeploymentSubmission represents the payload required to summon a new
// satellite set. Addresses are 0x-prefixed hex strings and amounts decimal
// strings.
type DeploymentSubmission struct {
	Summoner             string   `json:"summoner"`
	Moloch               string   `json:"moloch"`
	CapitalToken         string   `json:"capital_token"`
	DistributionToken    string   `json:"distribution_token"`
	VestingPeriodSeconds int64    `json:"vesting_period_seconds"`
	TransmuterDist       string   `json:"transmuter_dist"`
	TrustDist            string   `json:"trust_dist"`
	MinionDist           string   `json:"minion_dist"`
	VestingRecipients    []string `json:"vesting_recipients,omitempty"`
	VestingAmounts       []string `json:"vesting_amounts,omitempty"`
}

// DeploymentRecord mirrors the server-side deployment record.
type DeploymentRecord struct {
	ID                string `json:"id"`
	Summoner          string `json:"summoner"`
	Moloch            string `json:"moloch"`
	DistributionToken string `json:"distribution_token"`
	Minion            string `json:"minion"`
	Transmuter        string `json:"transmuter"`
	Trust             string `json:"trust"`
	TotalDistributed  string `json:"total_distributed"`
	UnlockAt          int64  `json:"unlock_at"`
	BlockHeight       uint64 `json:"block_height"`
	CreatedAt         int64  `json:"created_at"`
}

// ListOptions narrows ListDeployments results.
type ListOptions struct {
	Moloch string
	Limit  int
}

// APIError represents server side validation or internal errors.
type APIError struct {
	StatusCode int
	Code       string `json:"code"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	if e == nil {
		return ""
	}
	if e.Code != "" {
		return fmt.Sprintf("guildforge api error (%d): %s - %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("guildforge api error (%d): %s", e.StatusCode, e.Message)
}

// NewClient instantiates a client for the GuildForge Chain API. When
// httpClient is nil, a default client with a sensible timeout is used.
func NewClient(rawURL string, httpClient *http.Client) *Client {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		panic(fmt.Sprintf("invalid base url: %v", err))
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultHTTPTimeout}
	}
	return &Client{baseURL: parsed, httpClient: httpClient}
}

// SubmitDeployment summons a new satellite set and returns its record.
func (c *Client) SubmitDeployment(ctx context.Context, submission DeploymentSubmission) (DeploymentRecord, error) {
	var rec DeploymentRecord
	if err := c.post(ctx, "/api/v1/deployments", submission, &rec); err != nil {
		return DeploymentRecord{}, err
	}
	return rec, nil
}

// GetDeployment fetches a deployment record by identifier.
func (c *Client) GetDeployment(ctx context.Context, id string) (DeploymentRecord, error) {
	var rec DeploymentRecord
	if err := c.get(ctx, "/api/v1/deployments/"+url.PathEscape(id), &rec); err != nil {
		return DeploymentRecord{}, err
	}
	return rec, nil
}

// ListDeployments returns recent deployment records, optionally narrowed to
// one organization.
func (c *Client) ListDeployments(ctx context.Context, opts ListOptions) ([]DeploymentRecord, error) {
	query := url.Values{}
	if opts.Moloch != "" {
		query.Set("moloch", opts.Moloch)
	}
	if opts.Limit > 0 {
		query.Set("limit", strconv.Itoa(opts.Limit))
	}
	endpoint := "/api/v1/deployments"
	if encoded := query.Encode(); encoded != "" {
		endpoint += "?" + encoded
	}
	var records []DeploymentRecord
	if err := c.get(ctx, endpoint, &records); err != nil {
		return nil, err
	}
	return records, nil
}

// AccessToken returns the currently stored token string.
func (c *Client) AccessToken() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.accessToken
}

// SetAccessToken stores the static API token attached to subsequent calls.
func (c *Client) SetAccessToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.accessToken = token
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
	var rawQuery string
	if parsed, err := url.Parse(endpoint); err == nil {
		endpoint = parsed.Path
		rawQuery = parsed.RawQuery
	}
	rel := &url.URL{Path: path.Join(c.baseURL.Path, endpoint), RawQuery: rawQuery}
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
		apiErr := APIError{StatusCode: resp.StatusCode}
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read error response: %w", err)
		}
		if len(data) > 0 {
			_ = json.Unmarshal(data, &apiErr)
		}
		if apiErr.Message == "" {
			apiErr.Message = string(bytes.TrimSpace(data))
		}
		return &apiErr
	}

	if out == nil {
		return nil
	}
	decoder := json.NewDecoder(resp.Body)
	if err := decoder.Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
