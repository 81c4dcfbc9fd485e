// Package payment implements the pay-before-create gate: parsing the signed
// payment assertion from the X-PAYMENT header, settling it through the external
// facilitator, and recording the audit receipt.
package payment

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"agenthire/usdc"
)

var (
	// ErrMalformedPayment signals an X-PAYMENT header that is present but
	// unparseable or schema-violating.
	ErrMalformedPayment = errors.New("payment: malformed assertion")
	// ErrInsufficientPayment signals an asserted value below the offering price.
	ErrInsufficientPayment = errors.New("payment: amount below required price")
	// ErrRejected signals the facilitator declined the assertion or was
	// unreachable within the verification timeout.
	ErrRejected = errors.New("payment: rejected by facilitator")
)

// HeaderName carries the payment assertion on job-creation requests.
const HeaderName = "X-PAYMENT"

// AssertionPayload is the buyer-signed authorization for an on-chain transfer.
// Value is a base-unit integer string in the settlement asset's smallest
// denomination.
type AssertionPayload struct {
	From        string `json:"from"`
	To          string `json:"to"`
	Value       string `json:"value"`
	ValidAfter  string `json:"validAfter"`
	ValidBefore string `json:"validBefore"`
	Nonce       string `json:"nonce"`
}

// Assertion is the full X-PAYMENT header body.
type Assertion struct {
	Signature string           `json:"signature"`
	Payload   AssertionPayload `json:"payload"`
	Calldata  string           `json:"calldata,omitempty"`
}

// Amount returns the asserted transfer value.
func (a *Assertion) Amount() (usdc.Amount, error) {
	return usdc.Parse(a.Payload.Value)
}

// ParseAssertion decodes a raw X-PAYMENT header value. An absent header returns
// (nil, nil): payment is optional at the protocol level and enforced by policy
// at the job-creation boundary.
func ParseAssertion(raw string) (*Assertion, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}

	var a Assertion
	if err := json.Unmarshal([]byte(raw), &a); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayment, err)
	}
	if a.Signature == "" {
		return nil, fmt.Errorf("%w: missing signature", ErrMalformedPayment)
	}
	if !isHexAddress(a.Payload.From) {
		return nil, fmt.Errorf("%w: bad from address %q", ErrMalformedPayment, a.Payload.From)
	}
	if !isHexAddress(a.Payload.To) {
		return nil, fmt.Errorf("%w: bad to address %q", ErrMalformedPayment, a.Payload.To)
	}
	if _, err := usdc.Parse(a.Payload.Value); err != nil {
		return nil, fmt.Errorf("%w: bad value %q", ErrMalformedPayment, a.Payload.Value)
	}
	return &a, nil
}

func isHexAddress(s string) bool {
	if len(s) != 42 || !strings.HasPrefix(s, "0x") {
		return false
	}
	for _, c := range s[2:] {
		switch {
		case c >= '0' && c <= '9':
		case c >= 'a' && c <= 'f':
		case c >= 'A' && c <= 'F':
		default:
			return false
		}
	}
	return true
}
