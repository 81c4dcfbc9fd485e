package job

import (
	"context"
	"errors"
	"testing"

	"agenthire/offering"
	"agenthire/payment"
	"agenthire/usdc"
)

type fakeOfferings struct {
	off offering.Offering
	err error
}

func (f *fakeOfferings) GetBySlug(context.Context, string) (offering.Offering, error) {
	return f.off, f.err
}

type fakeGate struct {
	verified payment.VerifiedPayment
	err      error
	called   int
	required usdc.Amount
}

func (f *fakeGate) VerifyAndSettle(_ context.Context, _ *payment.Assertion, required usdc.Amount, _ string) (payment.VerifiedPayment, error) {
	f.called++
	f.required = required
	return f.verified, f.err
}

type fakeInserter struct {
	params *insertParams
	job    Job
	err    error
}

func (f *fakeInserter) insertJob(_ context.Context, params insertParams) (Job, error) {
	f.params = &params
	return f.job, f.err
}

func activeOffering() offering.Offering {
	return offering.Offering{
		ID:            "off-1",
		Slug:          "trend-analysis",
		SellerAgentID: "seller-1",
		SellerWallet:  "0x2222222222222222222222222222222222222222",
		PriceUsdc:     usdc.Amount(5000000),
		MaxLatencyMs:  30000,
		Status:        offering.StatusActive,
	}
}

func buyerAssertion() *payment.Assertion {
	return &payment.Assertion{
		Signature: "0xsig",
		Payload: payment.AssertionPayload{
			From:  "0x1111111111111111111111111111111111111111",
			To:    "0x2222222222222222222222222222222222222222",
			Value: "5000000",
		},
	}
}

func TestCreatePaidJobStartsAccepted(t *testing.T) {
	gate := &fakeGate{verified: payment.VerifiedPayment{TxHash: "0xfeed"}}
	repo := &fakeInserter{}
	svc := newCreateService(&fakeOfferings{off: activeOffering()}, gate, repo)

	_, err := svc.Create(context.Background(), CreateParams{
		BuyerAgentID: "buyer-1",
		OfferingSlug: "trend-analysis",
		Requirements: []byte(`{"capability":"trend-analysis"}`),
		TTLMinutes:   60,
	}, buyerAssertion())
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if gate.called != 1 {
		t.Fatalf("expected payment gate before insert, called=%d", gate.called)
	}
	if gate.required != 5000000 {
		t.Errorf("gate must receive the offering price, got %s", gate.required)
	}
	if repo.params == nil {
		t.Fatalf("expected insert")
	}
	if repo.params.Status != StatusAccepted {
		t.Errorf("paid job must start accepted, got %s", repo.params.Status)
	}
	if repo.params.PaymentTxHash != "0xfeed" {
		t.Errorf("expected settlement tx hash on the job, got %q", repo.params.PaymentTxHash)
	}
	if repo.params.PriceUsdc != 5000000 {
		t.Errorf("price must be copied from the offering, got %s", repo.params.PriceUsdc)
	}
	if repo.params.SellerWallet != "0x2222222222222222222222222222222222222222" {
		t.Errorf("seller wallet must be denormalized at creation, got %q", repo.params.SellerWallet)
	}
}

func TestCreateRejectsPaymentFailureBeforeInsert(t *testing.T) {
	gate := &fakeGate{err: payment.ErrInsufficientPayment}
	repo := &fakeInserter{}
	svc := newCreateService(&fakeOfferings{off: activeOffering()}, gate, repo)

	_, err := svc.Create(context.Background(), CreateParams{
		BuyerAgentID: "buyer-1",
		OfferingSlug: "trend-analysis",
		TTLMinutes:   60,
	}, buyerAssertion())
	if !errors.Is(err, payment.ErrInsufficientPayment) {
		t.Fatalf("expected gate error to propagate, got %v", err)
	}
	if repo.params != nil {
		t.Fatalf("pay-before-create: no job row may exist after a payment failure")
	}
}

func TestCreateRequiresPaymentForPricedOffering(t *testing.T) {
	gate := &fakeGate{}
	svc := newCreateService(&fakeOfferings{off: activeOffering()}, gate, &fakeInserter{})

	_, err := svc.Create(context.Background(), CreateParams{
		BuyerAgentID: "buyer-1",
		OfferingSlug: "trend-analysis",
		TTLMinutes:   60,
	}, nil)
	if !errors.Is(err, ErrPaymentRequired) {
		t.Fatalf("expected ErrPaymentRequired, got %v", err)
	}
	if gate.called != 0 {
		t.Errorf("gate must not run without an assertion")
	}
}

func TestCreateFreeOfferingStartsCreated(t *testing.T) {
	off := activeOffering()
	off.PriceUsdc = 0
	gate := &fakeGate{}
	repo := &fakeInserter{}
	svc := newCreateService(&fakeOfferings{off: off}, gate, repo)

	_, err := svc.Create(context.Background(), CreateParams{
		BuyerAgentID: "buyer-1",
		OfferingSlug: "trend-analysis",
		TTLMinutes:   60,
	}, nil)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if repo.params.Status != StatusCreated {
		t.Errorf("free job must await seller acceptance, got %s", repo.params.Status)
	}
	if gate.called != 0 {
		t.Errorf("gate must not run for a free offering")
	}
}

func TestCreateTTLBounds(t *testing.T) {
	svc := newCreateService(&fakeOfferings{off: activeOffering()}, &fakeGate{}, &fakeInserter{})

	for _, ttl := range []int{0, -5, 1441} {
		_, err := svc.Create(context.Background(), CreateParams{
			BuyerAgentID: "buyer-1",
			OfferingSlug: "trend-analysis",
			TTLMinutes:   ttl,
		}, buyerAssertion())
		if !errors.Is(err, ErrBadTTL) {
			t.Errorf("ttl=%d: expected ErrBadTTL, got %v", ttl, err)
		}
	}
}

func TestCreateRejectsRetiredOffering(t *testing.T) {
	off := activeOffering()
	off.Status = offering.StatusRetired
	gate := &fakeGate{}
	svc := newCreateService(&fakeOfferings{off: off}, gate, &fakeInserter{})

	_, err := svc.Create(context.Background(), CreateParams{
		BuyerAgentID: "buyer-1",
		OfferingSlug: "trend-analysis",
		TTLMinutes:   60,
	}, buyerAssertion())
	if !errors.Is(err, ErrOfferingRetired) {
		t.Fatalf("expected ErrOfferingRetired, got %v", err)
	}
	if gate.called != 0 {
		t.Errorf("gate must not run for a retired offering")
	}
}

func TestCreateValidatesRequirementsBeforePayment(t *testing.T) {
	off := activeOffering()
	off.InputSchema = []byte(`{"type":"object","required":["symbol"]}`)
	gate := &fakeGate{verified: payment.VerifiedPayment{}}
	svc := newCreateService(&fakeOfferings{off: off}, gate, &fakeInserter{})

	_, err := svc.Create(context.Background(), CreateParams{
		BuyerAgentID: "buyer-1",
		OfferingSlug: "trend-analysis",
		Requirements: []byte(`{"wrong":"shape"}`),
		TTLMinutes:   60,
	}, buyerAssertion())
	if !errors.Is(err, offering.ErrInputMismatch) {
		t.Fatalf("expected ErrInputMismatch, got %v", err)
	}
	if gate.called != 0 {
		t.Errorf("a buyer must never be charged for a malformed request")
	}
}
