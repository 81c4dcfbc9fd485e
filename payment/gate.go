package payment

import (
	"context"
	"fmt"
	"log"

	"agenthire/usdc"
)

// VerifiedPayment is what the job-creation flow receives once money has moved.
type VerifiedPayment struct {
	Payer  string
	Payee  string
	Amount usdc.Amount
	TxHash string
}

// Gate is the single place money moves. VerifyAndSettle must run before the
// corresponding job record is created, never after.
type Gate struct {
	facilitator Facilitator
	receipts    ReceiptStore
}

func NewGate(facilitator Facilitator, receipts ReceiptStore) *Gate {
	return &Gate{facilitator: facilitator, receipts: receipts}
}

// VerifyAndSettle checks the asserted amount against the required price, then
// forwards the assertion for on-chain settlement. The insufficient-amount check
// runs first and never reaches the facilitator. A receipt-persistence failure is
// logged but does not fail the call: the transfer has already settled and must
// not be re-attempted.
func (g *Gate) VerifyAndSettle(ctx context.Context, a *Assertion, required usdc.Amount, endpoint string) (VerifiedPayment, error) {
	amount, err := a.Amount()
	if err != nil {
		return VerifiedPayment{}, fmt.Errorf("%w: %v", ErrMalformedPayment, err)
	}
	if amount < required {
		return VerifiedPayment{}, fmt.Errorf("%w: asserted %s, required %s", ErrInsufficientPayment, amount, required)
	}

	resp, err := g.facilitator.Verify(ctx, a)
	if err != nil {
		return VerifiedPayment{}, fmt.Errorf("%w: %v", ErrRejected, err)
	}
	if !resp.Valid {
		reason := resp.Error
		if reason == "" {
			reason = "facilitator reported invalid"
		}
		return VerifiedPayment{}, fmt.Errorf("%w: %s", ErrRejected, reason)
	}

	rec := Receipt{
		Payer:     a.Payload.From,
		Payee:     a.Payload.To,
		Amount:    amount,
		Signature: a.Signature,
		Endpoint:  endpoint,
	}
	if resp.TxHash != "" {
		rec.TxHash = &resp.TxHash
	}
	if _, err := g.receipts.Insert(ctx, rec); err != nil {
		log.Printf("[payment] receipt persistence failed after settlement (tx=%s): %v", resp.TxHash, err)
	}

	return VerifiedPayment{
		Payer:  a.Payload.From,
		Payee:  a.Payload.To,
		Amount: amount,
		TxHash: resp.TxHash,
	}, nil
}
