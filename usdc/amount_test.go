package usdc

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestParse(t *testing.T) {
	a, err := Parse("5000000")
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if a != 5000000 {
		t.Errorf("expected 5000000, got %d", a)
	}

	for _, bad := range []string{"", "abc", "-1", "1.5"} {
		if _, err := Parse(bad); !errors.Is(err, ErrInvalidAmount) {
			t.Errorf("Parse(%q): expected ErrInvalidAmount, got %v", bad, err)
		}
	}
}

func TestAmountJSONRoundTrip(t *testing.T) {
	type doc struct {
		Price Amount `json:"priceUsdc"`
	}

	out, err := json.Marshal(doc{Price: 5000000})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(out) != `{"priceUsdc":"5000000"}` {
		t.Errorf("expected decimal-string serialization, got %s", out)
	}

	var back doc
	if err := json.Unmarshal(out, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if back.Price != 5000000 {
		t.Errorf("round trip mismatch: %d", back.Price)
	}
}

func TestAmountUnmarshalBareNumber(t *testing.T) {
	var a Amount
	if err := json.Unmarshal([]byte(`1000000`), &a); err != nil {
		t.Fatalf("expected bare number tolerated, got %v", err)
	}
	if a != 1000000 {
		t.Errorf("expected 1000000, got %d", a)
	}
}
