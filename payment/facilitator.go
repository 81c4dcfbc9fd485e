package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"agenthire/callout"
)

// verifyTimeout bounds one facilitator round trip, retries included within.
const verifyTimeout = 15 * time.Second

// Facilitator settles a payment assertion on-chain. Implemented by
// HTTPFacilitator in production and by fakes in tests.
type Facilitator interface {
	Verify(ctx context.Context, a *Assertion) (VerifyResponse, error)
}

// VerifyResponse mirrors the facilitator's /verify reply.
type VerifyResponse struct {
	Valid  bool   `json:"valid"`
	TxHash string `json:"txHash,omitempty"`
	Error  string `json:"error,omitempty"`
}

// HTTPFacilitator calls POST {baseURL}/verify through the resilient call
// layer.
type HTTPFacilitator struct {
	baseURL string
	http    *http.Client
	policy  callout.Policy
}

func NewHTTPFacilitator(baseURL string) *HTTPFacilitator {
	return &HTTPFacilitator{
		baseURL: baseURL,
		http:    &http.Client{Timeout: verifyTimeout},
		policy:  callout.DefaultPolicy(),
	}
}

func (f *HTTPFacilitator) Verify(ctx context.Context, a *Assertion) (VerifyResponse, error) {
	body, err := json.Marshal(map[string]any{
		"payment": map[string]any{
			"signature": a.Signature,
			"payload":   a.Payload,
			"calldata":  a.Calldata,
		},
	})
	if err != nil {
		return VerifyResponse{}, fmt.Errorf("payment: marshal verify request: %w", err)
	}

	return callout.Do(ctx, f.policy, "facilitator", func(ctx context.Context) (VerifyResponse, error) {
		ctx, cancel := context.WithTimeout(ctx, verifyTimeout)
		defer cancel()

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.baseURL+"/verify", bytes.NewReader(body))
		if err != nil {
			return VerifyResponse{}, fmt.Errorf("payment: build verify request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := f.http.Do(req)
		if err != nil {
			return VerifyResponse{}, fmt.Errorf("payment: facilitator call: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			raw, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
			return VerifyResponse{}, &callout.StatusError{
				Code:       resp.StatusCode,
				Body:       string(raw),
				RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
			}
		}

		var out VerifyResponse
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return VerifyResponse{}, fmt.Errorf("payment: decode verify response: %w", err)
		}
		return out, nil
	})
}

func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return 0
}
