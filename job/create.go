package job

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"agenthire/offering"
	"agenthire/payment"
	"agenthire/usdc"
)

var (
	// ErrBadTTL signals a time-to-live outside [1, 1440] minutes.
	ErrBadTTL = errors.New("job: ttl must be between 1 and 1440 minutes")
	// ErrPaymentRequired signals a creation attempt without a payment assertion
	// against an offering that prices above zero.
	ErrPaymentRequired = errors.New("job: offering requires payment")
	// ErrOfferingRetired signals a creation attempt against a retired offering.
	ErrOfferingRetired = errors.New("job: offering is not active")
)

// OfferingSource is the slice of the offering service the creator needs.
type OfferingSource interface {
	GetBySlug(ctx context.Context, slug string) (offering.Offering, error)
}

// PaymentGate settles a payment assertion before any job row exists.
type PaymentGate interface {
	VerifyAndSettle(ctx context.Context, a *payment.Assertion, required usdc.Amount, endpoint string) (payment.VerifiedPayment, error)
}

// Inserter is the repository slice the creator writes through.
type Inserter interface {
	insertJob(ctx context.Context, params insertParams) (Job, error)
}

// insertJob lets PGRepository satisfy Inserter without exporting insertParams.
func (r *PGRepository) insertJob(ctx context.Context, params insertParams) (Job, error) {
	return r.insert(ctx, params)
}

// CreateService enforces pay-before-create: requirements are validated first so
// a buyer is never charged for a malformed request, payment settles second, and
// only then does a job row exist.
type CreateService struct {
	offerings OfferingSource
	gate      PaymentGate
	repo      Inserter
}

func NewCreateService(offerings OfferingSource, gate PaymentGate, repo *PGRepository) *CreateService {
	return &CreateService{offerings: offerings, gate: gate, repo: repo}
}

// newCreateService is the fake-friendly constructor used by tests.
func newCreateService(offerings OfferingSource, gate PaymentGate, repo Inserter) *CreateService {
	return &CreateService{offerings: offerings, gate: gate, repo: repo}
}

// Create validates the request, settles payment, and inserts the job. A paid
// job starts accepted; an unpaid job against a zero-priced offering starts
// created and waits for the seller.
func (s *CreateService) Create(ctx context.Context, params CreateParams, assertion *payment.Assertion) (Job, error) {
	if params.BuyerAgentID == "" {
		return Job{}, fmt.Errorf("job: buyer agent id required")
	}
	if params.TTLMinutes < 1 || params.TTLMinutes > 1440 {
		return Job{}, ErrBadTTL
	}
	if len(params.Requirements) == 0 {
		params.Requirements = json.RawMessage(`{}`)
	}

	off, err := s.offerings.GetBySlug(ctx, params.OfferingSlug)
	if err != nil {
		return Job{}, err
	}
	if off.Status != offering.StatusActive {
		return Job{}, fmt.Errorf("%w: %s", ErrOfferingRetired, off.Slug)
	}
	if err := offering.ValidateInput(off, params.Requirements); err != nil {
		return Job{}, err
	}

	status := StatusCreated
	txHash := ""
	if off.PriceUsdc > 0 {
		if assertion == nil {
			return Job{}, fmt.Errorf("%w: %s costs %s", ErrPaymentRequired, off.Slug, off.PriceUsdc)
		}
		verified, err := s.gate.VerifyAndSettle(ctx, assertion, off.PriceUsdc, "create-job:"+off.Slug)
		if err != nil {
			return Job{}, err
		}
		status = StatusAccepted
		txHash = verified.TxHash
	}

	return s.repo.insertJob(ctx, insertParams{
		OfferingID:    off.ID,
		OfferingSlug:  off.Slug,
		BuyerAgentID:  params.BuyerAgentID,
		SellerAgentID: off.SellerAgentID,
		SellerWallet:  off.SellerWallet,
		Requirements:  params.Requirements,
		PriceUsdc:     off.PriceUsdc,
		PaymentTxHash: txHash,
		Status:        status,
		TTLMinutes:    params.TTLMinutes,
	})
}
