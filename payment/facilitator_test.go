package payment

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"agenthire/callout"
)

func TestHTTPFacilitatorVerifyRequestShape(t *testing.T) {
	var captured map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/verify" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Errorf("decode request: %v", err)
		}
		json.NewEncoder(w).Encode(VerifyResponse{Valid: true, TxHash: "0xabc"})
	}))
	defer srv.Close()

	f := NewHTTPFacilitator(srv.URL)
	resp, err := f.Verify(context.Background(), assertionWithValue(t, "5000000"))
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !resp.Valid || resp.TxHash != "0xabc" {
		t.Errorf("unexpected response %+v", resp)
	}

	pay, ok := captured["payment"].(map[string]any)
	if !ok {
		t.Fatalf("expected payment envelope, got %v", captured)
	}
	if pay["signature"] != "0xsig" {
		t.Errorf("signature not forwarded: %v", pay["signature"])
	}
	payload, _ := pay["payload"].(map[string]any)
	if payload["value"] != "5000000" {
		t.Errorf("value not forwarded as string: %v", payload["value"])
	}
}

func TestHTTPFacilitatorRetriesServerErrors(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		if calls < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		json.NewEncoder(w).Encode(VerifyResponse{Valid: true})
	}))
	defer srv.Close()

	f := NewHTTPFacilitator(srv.URL)
	f.policy = callout.Policy{MaxAttempts: 3} // 502s retry with default backoff otherwise
	f.policy.BaseDelay = 1                    // effectively instant

	resp, err := f.Verify(context.Background(), assertionWithValue(t, "1"))
	if err != nil {
		t.Fatalf("expected retry to succeed, got %v", err)
	}
	if !resp.Valid || calls != 3 {
		t.Errorf("expected success on third attempt, calls=%d resp=%+v", calls, resp)
	}
}

func TestHTTPFacilitatorClientErrorIsTerminal(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		w.WriteHeader(http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	f := NewHTTPFacilitator(srv.URL)
	if _, err := f.Verify(context.Background(), assertionWithValue(t, "1")); err == nil {
		t.Fatalf("expected error")
	}
	if calls != 1 {
		t.Errorf("4xx must not be retried, got %d calls", calls)
	}
}
