// Package toolbox is a Go client for the EVM toolbox REST API.
package toolbox

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
	"strings"
	"sync"
	"time"
)

// DefaultHTTPTimeout bounds calls made by clients created without a custom
// http.Client. Broadcasts wait for a receipt server side, so it is generous.
const DefaultHTTPTimeout = 3 * time.Minute

// Client wraps the HTTP interactions with the toolbox daemon.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client

	mu     sync.RWMutex
	apiKey string
}

// CodeInfo describes bytecode deployed at an address.
type CodeInfo struct {
	Deployed    bool   `json:"deployed"`
	BytecodeLen uint64 `json:"bytecode_len"`
}

// SendRequest is the payload of a transfer. Simulate defaults to true on the
// server when left nil.
type SendRequest struct {
	From      string  `json:"from"`
	To        string  `json:"to"`
	AmountEth string  `json:"amount_eth"`
	Simulate  *bool   `json:"simulate,omitempty"`
	ForkBlock *uint64 `json:"fork_block,omitempty"`
}

// SendResult is the outcome of a transfer. TxHash is empty for simulations and
// Status is nil when no receipt was observed.
type SendResult struct {
	TransferID string  `json:"transfer_id"`
	TxHash     string  `json:"tx_hash"`
	GasUsed    *uint64 `json:"gas_used"`
	Status     *bool   `json:"status"`
	Success    bool    `json:"success"`
}

// Transfer is one journal entry. Timestamps are unix seconds.
type Transfer struct {
	ID        string  `json:"id"`
	From      string  `json:"from"`
	To        string  `json:"to"`
	AmountEth string  `json:"amount_eth"`
	Simulate  bool    `json:"simulate"`
	ForkBlock *uint64 `json:"fork_block,omitempty"`
	State     string  `json:"state"`
	TxHash    string  `json:"tx_hash,omitempty"`
	GasUsed   *uint64 `json:"gas_used,omitempty"`
	Status    *bool   `json:"status,omitempty"`
	ErrorCode string  `json:"error_code,omitempty"`
	Error     string  `json:"error,omitempty"`
	Stage     string  `json:"stage,omitempty"`
	CreatedAt int64   `json:"created_at"`
	UpdatedAt int64   `json:"updated_at"`
}

// TransferQuery filters Transfers. Zero values are omitted.
type TransferQuery struct {
	Limit  int
	Offset int
	States []string
	From   string
}

// APIError represents server side validation or chain errors.
type APIError struct {
	StatusCode int    `json:"-"`
	Code       string `json:"code"`
	Message    string `json:"message"`
	// Retryable reports that the server considers the failure transient,
	// e.g. a node outage.
	Retryable bool `json:"retryable,omitempty"`
}

func (e *APIError) Error() string {
	if e == nil {
		return ""
	}
	if e.Code != "" {
		return fmt.Sprintf("toolbox api error (%d): %s - %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("toolbox api error (%d): %s", e.StatusCode, e.Message)
}

// NewClient instantiates a client for the toolbox API. When httpClient is
// nil, a default client with DefaultHTTPTimeout is used.
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

// SetAPIKey sets the key sent as a bearer token on every request. An empty
// key disables the header.
func (c *Client) SetAPIKey(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.apiKey = key
}

// APIKey returns the currently stored key.
func (c *Client) APIKey() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.apiKey
}

// Balance returns the wei balance of an address or name.
func (c *Client) Balance(ctx context.Context, who string) (string, error) {
	var out struct {
		Balance string `json:"balance"`
	}
	if err := c.post(ctx, "/balance", map[string]string{"who": who}, &out); err != nil {
		return "", err
	}
	return out.Balance, nil
}

// Code reports whether bytecode is deployed at addr.
func (c *Client) Code(ctx context.Context, addr string) (CodeInfo, error) {
	var out CodeInfo
	if err := c.post(ctx, "/code", map[string]string{"addr": addr}, &out); err != nil {
		return CodeInfo{}, err
	}
	return out, nil
}

// FungibleBalance returns the ERC-20 balance of holder in token base units.
func (c *Client) FungibleBalance(ctx context.Context, token, holder string) (string, error) {
	var out struct {
		Amount string `json:"amount"`
	}
	if err := c.post(ctx, "/erc20_balance_of", map[string]string{"token": token, "holder": holder}, &out); err != nil {
		return "", err
	}
	return out.Amount, nil
}

// Send submits a transfer.
func (c *Client) Send(ctx context.Context, req SendRequest) (SendResult, error) {
	var out SendResult
	if err := c.post(ctx, "/send", req, &out); err != nil {
		return SendResult{}, err
	}
	return out, nil
}

// Transfers lists journal entries, newest first.
func (c *Client) Transfers(ctx context.Context, query TransferQuery) ([]Transfer, error) {
	values := url.Values{}
	if query.Limit > 0 {
		values.Set("limit", strconv.Itoa(query.Limit))
	}
	if query.Offset > 0 {
		values.Set("offset", strconv.Itoa(query.Offset))
	}
	if len(query.States) > 0 {
		values.Set("state", strings.Join(query.States, ","))
	}
	if query.From != "" {
		values.Set("from", query.From)
	}
	var out struct {
		Transfers []Transfer `json:"transfers"`
	}
	if err := c.get(ctx, "/api/v1/transfers", values, &out); err != nil {
		return nil, err
	}
	return out.Transfers, nil
}

// Transfer fetches a journal entry by id.
func (c *Client) Transfer(ctx context.Context, id string) (Transfer, error) {
	var out Transfer
	if err := c.get(ctx, "/api/v1/transfers/"+url.PathEscape(id), nil, &out); err != nil {
		return Transfer{}, err
	}
	return out, nil
}

func (c *Client) post(ctx context.Context, endpoint string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	req, err := c.newRequest(ctx, http.MethodPost, endpoint, nil, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) get(ctx context.Context, endpoint string, query url.Values, out any) error {
	req, err := c.newRequest(ctx, http.MethodGet, endpoint, query, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) newRequest(ctx context.Context, method, endpoint string, query url.Values, body io.Reader) (*http.Request, error) {
	rel := &url.URL{Path: path.Join(c.baseURL.Path, endpoint), RawQuery: query.Encode()}
	u := c.baseURL.ResolveReference(rel)
	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if key := c.APIKey(); key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
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
			_ = json.Unmarshal(data, &struct {
				Error *APIError `json:"error"`
			}{Error: &apiErr})
		}
		if apiErr.Message == "" {
			apiErr.Message = string(bytes.TrimSpace(data))
		}
		return &apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
