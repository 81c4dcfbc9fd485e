// Package httpapi exposes the marketplace over HTTP: agent registration,
// offering discovery, pay-gated job creation, seller transitions, and buyer
// ratings. The request/response shapes here are the wire contract the buyer
// SDK in client/ round-trips against.
package httpapi

import (
	"encoding/json"
	"time"

	"agenthire/identity"
	"agenthire/job"
	"agenthire/offering"
	"agenthire/usdc"
)

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Error string `json:"error"`
}

// AgentPayload is the public shape of an agent. The secret hash never leaves
// the identity package.
type AgentPayload struct {
	ID            string    `json:"id"`
	Handle        string    `json:"handle"`
	DisplayName   string    `json:"displayName,omitempty"`
	WalletAddress string    `json:"walletAddress"`
	Role          string    `json:"role"`
	CreatedAt     time.Time `json:"createdAt"`
}

// LoginResponse carries the session token issued on successful login.
type LoginResponse struct {
	Token string       `json:"token"`
	Agent AgentPayload `json:"agent"`
}

// CreateOfferingRequest is the seller-supplied body of POST /offerings.
type CreateOfferingRequest struct {
	Slug         string          `json:"slug"`
	Title        string          `json:"title,omitempty"`
	Category     string          `json:"category"`
	PriceUsdc    usdc.Amount     `json:"priceUsdc"`
	MaxLatencyMs int             `json:"maxLatencyMs,omitempty"`
	InputSchema  json.RawMessage `json:"inputSchema,omitempty"`
	OutputSchema json.RawMessage `json:"outputSchema,omitempty"`
}

// UpdatePricingRequest is the seller-supplied body of PUT /offerings/{slug}/pricing.
// It only succeeds while no job references the offering.
type UpdatePricingRequest struct {
	PriceUsdc    usdc.Amount     `json:"priceUsdc"`
	InputSchema  json.RawMessage `json:"inputSchema,omitempty"`
	OutputSchema json.RawMessage `json:"outputSchema,omitempty"`
}

// OfferingPayload is the public shape of an offering, counters included.
type OfferingPayload struct {
	ID            string          `json:"id"`
	Slug          string          `json:"slug"`
	SellerAgentID string          `json:"sellerAgentId"`
	SellerWallet  string          `json:"sellerWallet"`
	Title         string          `json:"title"`
	Category      string          `json:"category"`
	PriceUsdc     usdc.Amount     `json:"priceUsdc"`
	MaxLatencyMs  int             `json:"maxLatencyMs,omitempty"`
	InputSchema   json.RawMessage `json:"inputSchema,omitempty"`
	OutputSchema  json.RawMessage `json:"outputSchema,omitempty"`
	Status        string          `json:"status"`
	TotalJobs     int             `json:"totalJobs"`
	CompletedJobs int             `json:"completedJobs"`
	RatingCount   int             `json:"ratingCount"`
	AvgRating     float64         `json:"avgRating"`
	AvgLatencyMs  float64         `json:"avgLatencyMs"`
	CreatedAt     time.Time       `json:"createdAt"`
}

// DiscoverResponse is a paginated offering listing.
type DiscoverResponse struct {
	Offerings []OfferingPayload `json:"offerings"`
	Total     int               `json:"total"`
	Page      int               `json:"page"`
	PageSize  int               `json:"pageSize"`
}

// CreateJobRequest is the buyer-supplied body of POST /jobs. The payment
// assertion rides in the X-PAYMENT header, not the body. BuyerAgentID is
// trusted only when the request carries no authenticated identity; a verified
// token or agent header always wins.
type CreateJobRequest struct {
	BuyerAgentID string          `json:"buyerAgentId,omitempty"`
	OfferingSlug string          `json:"offeringSlug"`
	Requirements json.RawMessage `json:"requirements,omitempty"`
	TTLMinutes   int             `json:"ttlMinutes,omitempty"`
}

// JobPayload is the public shape of a job.
type JobPayload struct {
	ID            string          `json:"id"`
	OfferingID    string          `json:"offeringId"`
	OfferingSlug  string          `json:"offeringSlug"`
	BuyerAgentID  string          `json:"buyerAgentId"`
	SellerWallet  string          `json:"sellerWallet"`
	Status        string          `json:"status"`
	PriceUsdc     usdc.Amount     `json:"priceUsdc"`
	PaymentTxHash *string         `json:"paymentTxHash,omitempty"`
	Requirements  json.RawMessage `json:"requirements,omitempty"`
	Deliverables  json.RawMessage `json:"deliverables,omitempty"`
	Rating        *int            `json:"rating,omitempty"`
	Feedback      *string         `json:"feedback,omitempty"`
	CreatedAt     time.Time       `json:"createdAt"`
	AcceptedAt    *time.Time      `json:"acceptedAt,omitempty"`
	DeliveringAt  *time.Time      `json:"deliveringAt,omitempty"`
	CompletedAt   *time.Time      `json:"completedAt,omitempty"`
	ExpiresAt     time.Time       `json:"expiresAt"`
}

// TransitionRequest is the body of POST /jobs/{id}/transition.
type TransitionRequest struct {
	Status       string          `json:"status"`
	Deliverables json.RawMessage `json:"deliverables,omitempty"`
}

// RatingRequest is the body of POST /jobs/{id}/rating.
type RatingRequest struct {
	Rating   int    `json:"rating"`
	Feedback string `json:"feedback,omitempty"`
}

func agentPayload(a identity.Agent) AgentPayload {
	return AgentPayload{
		ID:            a.ID,
		Handle:        a.Handle,
		DisplayName:   a.DisplayName,
		WalletAddress: a.WalletAddress,
		Role:          string(a.Role),
		CreatedAt:     a.CreatedAt,
	}
}

func offeringPayload(o offering.Offering) OfferingPayload {
	return OfferingPayload{
		ID:            o.ID,
		Slug:          o.Slug,
		SellerAgentID: o.SellerAgentID,
		SellerWallet:  o.SellerWallet,
		Title:         o.Title,
		Category:      o.Category,
		PriceUsdc:     o.PriceUsdc,
		MaxLatencyMs:  o.MaxLatencyMs,
		InputSchema:   o.InputSchema,
		OutputSchema:  o.OutputSchema,
		Status:        string(o.Status),
		TotalJobs:     o.TotalJobs,
		CompletedJobs: o.CompletedJobs,
		RatingCount:   o.RatingCount,
		AvgRating:     o.AvgRating,
		AvgLatencyMs:  o.AvgLatencyMs,
		CreatedAt:     o.CreatedAt,
	}
}

func jobPayload(j job.Job) JobPayload {
	return JobPayload{
		ID:            j.ID,
		OfferingID:    j.OfferingID,
		OfferingSlug:  j.OfferingSlug,
		BuyerAgentID:  j.BuyerAgentID,
		SellerWallet:  j.SellerWallet,
		Status:        string(j.Status),
		PriceUsdc:     j.PriceUsdc,
		PaymentTxHash: j.PaymentTxHash,
		Requirements:  j.Requirements,
		Deliverables:  j.Deliverables,
		Rating:        j.Rating,
		Feedback:      j.Feedback,
		CreatedAt:     j.CreatedAt,
		AcceptedAt:    j.AcceptedAt,
		DeliveringAt:  j.DeliveringAt,
		CompletedAt:   j.CompletedAt,
		ExpiresAt:     j.ExpiresAt,
	}
}
