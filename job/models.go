// Package job owns the purchase-and-fulfillment lifecycle: the status state
// machine, the Postgres-backed job record, and the transition service that is
// the only writer of job status.
package job

import (
	"encoding/json"
	"time"

	"agenthire/usdc"
)

// Job is one purchase-and-fulfillment instance. Price and seller wallet are
// copied from the offering at creation so they survive offering mutation;
// payment_tx_hash and expires_at are fixed at creation and never rewritten.
type Job struct {
	ID            string
	OfferingID    string
	OfferingSlug  string
	BuyerAgentID  string
	SellerAgentID string
	SellerWallet  string
	Requirements  json.RawMessage
	Deliverables  json.RawMessage
	PriceUsdc     usdc.Amount
	PaymentTxHash *string
	Status        Status
	Rating        *int
	Feedback      *string
	CreatedAt     time.Time
	AcceptedAt    *time.Time
	DeliveringAt  *time.Time
	CompletedAt   *time.Time
	ExpiresAt     time.Time
}

// Event is an immutable audit record appended in the same transaction as the
// status write it describes.
type Event struct {
	ID          int64
	JobID       string
	Type        string
	ActorWallet *string
	Payload     []byte
	CreatedAt   time.Time
}

// Event types appended to job_events.
const (
	EventCreated       = "JOB_CREATED"
	EventStatusChanged = "JOB_STATUS_CHANGED"
	EventRated         = "JOB_RATED"
	EventErrorAttached = "JOB_ERROR_ATTACHED"
)

// CreateParams enumerates the buyer-supplied fields for a new job. TTLMinutes
// is clamped-checked to [1, 1440] by the create service.
type CreateParams struct {
	BuyerAgentID string
	OfferingSlug string
	Requirements json.RawMessage
	TTLMinutes   int
}

// TransitionParams drives one edge of the state machine.
type TransitionParams struct {
	JobID        string
	Target       Status
	ActorWallet  string
	Deliverables json.RawMessage
}

// RateParams records a buyer's verdict on a completed job.
type RateParams struct {
	JobID        string
	BuyerAgentID string
	Rating       int
	Feedback     string
}
