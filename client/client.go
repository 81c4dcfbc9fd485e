// Package client is the buyer-side SDK: discovery, pay-gated job creation,
// polling for completion, and rating, all against the httpapi wire contract.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"agenthire/httpapi"
	"agenthire/identity"
	"agenthire/job"
	"agenthire/offering"
	"agenthire/payment"
	"agenthire/usdc"
)

// ErrWaitTimeout signals that a job did not reach a terminal status within the
// wait budget. The job itself may still settle later.
var ErrWaitTimeout = errors.New("client: job did not reach a terminal status in time")

// APIError carries a non-2xx reply from the marketplace.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("client: api status %d: %s", e.Status, e.Message)
}

// PaymentInputs is what the signer needs to authorize a transfer.
type PaymentInputs struct {
	PriceUsdc    usdc.Amount
	PayTo        string
	AssetAddress string
}

// Signer produces a payment assertion for a job purchase. Implementations hold
// the buyer's key material; this package never sees it.
type Signer interface {
	SignPayment(ctx context.Context, in PaymentInputs) (*payment.Assertion, error)
}

// Config parameterizes a Client. Zero values get serviceable defaults.
type Config struct {
	BaseURL      string
	Token        string
	AgentID      string
	Wallet       string
	HTTPClient   *http.Client
	Signer       Signer
	PollInterval time.Duration
	WaitTimeout  time.Duration
}

// Client is a stateless wrapper over one marketplace endpoint. It is safe for
// concurrent use.
type Client struct {
	baseURL      string
	token        string
	agentID      string
	wallet       string
	http         *http.Client
	signer       Signer
	pollInterval time.Duration
	waitTimeout  time.Duration
}

func New(cfg Config) *Client {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	pollInterval := cfg.PollInterval
	if pollInterval <= 0 {
		pollInterval = 5 * time.Second
	}
	waitTimeout := cfg.WaitTimeout
	if waitTimeout <= 0 {
		waitTimeout = 60 * time.Second
	}
	return &Client{
		baseURL:      cfg.BaseURL,
		token:        cfg.Token,
		agentID:      cfg.AgentID,
		wallet:       cfg.Wallet,
		http:         httpClient,
		signer:       cfg.Signer,
		pollInterval: pollInterval,
		waitTimeout:  waitTimeout,
	}
}

// Login exchanges credentials for a session token and pins it on the client.
func (c *Client) Login(ctx context.Context, handle, secret string) (httpapi.AgentPayload, error) {
	var out httpapi.LoginResponse
	err := c.do(ctx, http.MethodPost, "/agents/login", nil,
		identity.LoginRequest{Handle: handle, Secret: secret}, &out)
	if err != nil {
		return httpapi.AgentPayload{}, err
	}
	c.token = out.Token
	return out.Agent, nil
}

// Discover lists active offerings matching the filters.
func (c *Client) Discover(ctx context.Context, f offering.DiscoverFilters) (httpapi.DiscoverResponse, error) {
	q := url.Values{}
	if f.Category != "" {
		q.Set("category", f.Category)
	}
	if f.Keyword != "" {
		q.Set("q", f.Keyword)
	}
	if f.Sort != "" {
		q.Set("sort", f.Sort)
	}
	if f.MaxPriceUsdc > 0 {
		q.Set("maxPrice", f.MaxPriceUsdc.String())
	}
	if f.Page > 0 {
		q.Set("page", strconv.Itoa(f.Page))
	}
	if f.PageSize > 0 {
		q.Set("pageSize", strconv.Itoa(f.PageSize))
	}
	path := "/offerings"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var out httpapi.DiscoverResponse
	if err := c.do(ctx, http.MethodGet, path, nil, nil, &out); err != nil {
		return httpapi.DiscoverResponse{}, err
	}
	return out, nil
}

// GetOffering fetches one offering by slug.
func (c *Client) GetOffering(ctx context.Context, slug string) (httpapi.OfferingPayload, error) {
	var out httpapi.OfferingPayload
	if err := c.do(ctx, http.MethodGet, "/offerings/"+url.PathEscape(slug), nil, nil, &out); err != nil {
		return httpapi.OfferingPayload{}, err
	}
	return out, nil
}

// CreateJobParams is the buyer's purchase order. Payment nil means the buyer
// expects a zero-priced offering.
type CreateJobParams struct {
	OfferingSlug string
	Requirements json.RawMessage
	TTLMinutes   int
	Payment      *PaymentInputs
}

// CreateJob purchases a job. When payment inputs are given and a signer is
// configured, the signed assertion rides the X-PAYMENT header. A signer failure
// is logged and the request proceeds unsigned; the server's payment gate is
// the authority on whether that is acceptable.
func (c *Client) CreateJob(ctx context.Context, params CreateJobParams) (httpapi.JobPayload, error) {
	headers := map[string]string{}
	if params.Payment != nil && c.signer != nil {
		assertion, err := c.signer.SignPayment(ctx, *params.Payment)
		if err != nil {
			log.Printf("[client] payment signing failed, submitting unsigned: %v", err)
		} else if assertion != nil {
			raw, err := json.Marshal(assertion)
			if err != nil {
				return httpapi.JobPayload{}, fmt.Errorf("client: marshal payment assertion: %w", err)
			}
			headers[payment.HeaderName] = string(raw)
		}
	}

	var out httpapi.JobPayload
	err := c.do(ctx, http.MethodPost, "/jobs", headers, httpapi.CreateJobRequest{
		BuyerAgentID: c.agentID,
		OfferingSlug: params.OfferingSlug,
		Requirements: params.Requirements,
		TTLMinutes:   params.TTLMinutes,
	}, &out)
	if err != nil {
		return httpapi.JobPayload{}, err
	}
	return out, nil
}

// GetJob fetches current job state.
func (c *Client) GetJob(ctx context.Context, id string) (httpapi.JobPayload, error) {
	var out httpapi.JobPayload
	if err := c.do(ctx, http.MethodGet, "/jobs/"+url.PathEscape(id), nil, nil, &out); err != nil {
		return httpapi.JobPayload{}, err
	}
	return out, nil
}

// WaitForCompletion polls until the job reaches a terminal status or the wait
// budget runs out. The last observed state is returned alongside ErrWaitTimeout
// so callers can inspect how far the job got.
func (c *Client) WaitForCompletion(ctx context.Context, id string) (httpapi.JobPayload, error) {
	ctx, cancel := context.WithTimeout(ctx, c.waitTimeout)
	defer cancel()

	var last httpapi.JobPayload
	for {
		j, err := c.GetJob(ctx, id)
		if err != nil {
			if ctx.Err() != nil {
				return last, fmt.Errorf("%w: %v", ErrWaitTimeout, ctx.Err())
			}
			return last, err
		}
		last = j
		if job.Terminal(job.Status(j.Status)) {
			return j, nil
		}

		select {
		case <-ctx.Done():
			return last, fmt.Errorf("%w: last status %s", ErrWaitTimeout, last.Status)
		case <-time.After(c.pollInterval):
		}
	}
}

// RateJob records the buyer's verdict on a completed job.
func (c *Client) RateJob(ctx context.Context, id string, rating int, feedback string) (httpapi.JobPayload, error) {
	var out httpapi.JobPayload
	err := c.do(ctx, http.MethodPost, "/jobs/"+url.PathEscape(id)+"/rating", nil,
		httpapi.RatingRequest{Rating: rating, Feedback: feedback}, &out)
	if err != nil {
		return httpapi.JobPayload{}, err
	}
	return out, nil
}

func (c *Client) do(ctx context.Context, method, path string, headers map[string]string, body, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("client: marshal request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("client: build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if c.agentID != "" {
		req.Header.Set("X-Agent-ID", c.agentID)
	}
	if c.wallet != "" {
		req.Header.Set("X-Wallet-Address", c.wallet)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("client: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var apiErr httpapi.ErrorResponse
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		if jsonErr := json.Unmarshal(raw, &apiErr); jsonErr != nil || apiErr.Error == "" {
			apiErr.Error = string(raw)
		}
		return &APIError{Status: resp.StatusCode, Message: apiErr.Error}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("client: decode response: %w", err)
	}
	return nil
}
