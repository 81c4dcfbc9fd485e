package callout

import (
	"context"
	"errors"
	"testing"
	"time"
)

func instantPolicy(recorded *[]time.Duration) Policy {
	return Policy{
		MaxAttempts: 3,
		BaseDelay:   time.Second,
		sleep: func(_ context.Context, d time.Duration) error {
			*recorded = append(*recorded, d)
			return nil
		},
	}
}

func TestDoRetriesRetryableUpToBudget(t *testing.T) {
	var delays []time.Duration
	calls := 0

	_, err := Do(context.Background(), instantPolicy(&delays), "test", func(context.Context) (string, error) {
		calls++
		return "", &StatusError{Code: 503, Body: "unavailable"}
	})

	if err == nil {
		t.Fatalf("expected terminal error")
	}
	if calls != 3 {
		t.Errorf("expected 3 attempts, got %d", calls)
	}
	if len(delays) != 2 {
		t.Fatalf("expected 2 sleeps, got %d", len(delays))
	}
	if delays[0] != time.Second || delays[1] != 2*time.Second {
		t.Errorf("expected exponential delays 1s,2s got %v", delays)
	}
}

func TestDoDoesNotRetryClientError(t *testing.T) {
	var delays []time.Duration
	calls := 0

	_, err := Do(context.Background(), instantPolicy(&delays), "test", func(context.Context) (int, error) {
		calls++
		return 0, &StatusError{Code: 400, Body: "bad request"}
	})

	if err == nil {
		t.Fatalf("expected error")
	}
	if calls != 1 {
		t.Errorf("expected single attempt for 400, got %d", calls)
	}
}

func TestDoRetriesOn429WithRetryAfterPrecedence(t *testing.T) {
	var delays []time.Duration
	calls := 0

	_, _ = Do(context.Background(), instantPolicy(&delays), "test", func(context.Context) (int, error) {
		calls++
		return 0, &StatusError{Code: 429, Body: "rate limited", RetryAfter: 7 * time.Second}
	})

	if calls != 3 {
		t.Errorf("expected 3 attempts, got %d", calls)
	}
	for i, d := range delays {
		if d != 7*time.Second {
			t.Errorf("sleep %d: expected retry-after 7s to win over backoff, got %v", i, d)
		}
	}
}

func TestDoSucceedsMidBudget(t *testing.T) {
	var delays []time.Duration
	calls := 0

	out, err := Do(context.Background(), instantPolicy(&delays), "test", func(context.Context) (string, error) {
		calls++
		if calls < 2 {
			return "", &StatusError{Code: 500, Body: "boom"}
		}
		return "ok", nil
	})

	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if out != "ok" || calls != 2 {
		t.Errorf("expected success on attempt 2, got out=%q calls=%d", out, calls)
	}
}

func TestDoStopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	_, err := Do(ctx, DefaultPolicy(), "test", func(context.Context) (int, error) {
		calls++
		return 0, nil
	})

	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if calls != 0 {
		t.Errorf("expected no attempts on dead context, got %d", calls)
	}
}

func TestRetryableClassification(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{&StatusError{Code: 429}, true},
		{&StatusError{Code: 500}, true},
		{&StatusError{Code: 503}, true},
		{&StatusError{Code: 400}, false},
		{&StatusError{Code: 404}, false},
		{context.DeadlineExceeded, true},
		{errors.New("plain"), false},
	}
	for _, c := range cases {
		if got := Retryable(c.err); got != c.want {
			t.Errorf("Retryable(%v) = %v, want %v", c.err, got, c.want)
		}
	}
}

func TestFallbackTriesProvidersInOrder(t *testing.T) {
	var delays []time.Duration
	p := instantPolicy(&delays)

	primaryCalls, backupCalls := 0, 0
	res, err := Fallback(context.Background(), p, "generate", []Provider[string]{
		{Name: "primary", Call: func(context.Context) (string, error) {
			primaryCalls++
			return "", &StatusError{Code: 500, Body: "down"}
		}},
		{Name: "backup", Call: func(context.Context) (string, error) {
			backupCalls++
			return "served", nil
		}},
	})

	if err != nil {
		t.Fatalf("expected fallback success, got %v", err)
	}
	if res.Provider != "backup" || res.Value != "served" {
		t.Errorf("unexpected result %+v", res)
	}
	if primaryCalls != 3 {
		t.Errorf("expected primary to spend the full budget, got %d attempts", primaryCalls)
	}
	if backupCalls != 1 {
		t.Errorf("expected backup to start from attempt zero, got %d", backupCalls)
	}
}

func TestFallbackAllExhausted(t *testing.T) {
	var delays []time.Duration
	p := instantPolicy(&delays)

	_, err := Fallback(context.Background(), p, "generate", []Provider[int]{
		{Name: "a", Call: func(context.Context) (int, error) { return 0, &StatusError{Code: 502} }},
		{Name: "b", Call: func(context.Context) (int, error) { return 0, &StatusError{Code: 502} }},
	})

	if !errors.Is(err, ErrAllProvidersExhausted) {
		t.Fatalf("expected ErrAllProvidersExhausted, got %v", err)
	}
}

func TestFallbackEmptyProviderList(t *testing.T) {
	_, err := Fallback[int](context.Background(), DefaultPolicy(), "generate", nil)
	if !errors.Is(err, ErrAllProvidersExhausted) {
		t.Fatalf("expected ErrAllProvidersExhausted, got %v", err)
	}
}
