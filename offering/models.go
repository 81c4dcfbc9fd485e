package offering

import (
	"encoding/json"
	"time"

	"agenthire/usdc"
)

// Status is the offering lifecycle state. Offerings are retired, never deleted,
// while jobs still reference them.
type Status string

const (
	StatusActive  Status = "active"
	StatusRetired Status = "retired"
)

// Offering is a seller agent's published, priced capability. Price and schemas
// are immutable once a job has been created against the offering; the denormalized
// counters are mutated only by the executor on settlement and by the rating flow.
type Offering struct {
	ID            string
	Slug          string
	SellerAgentID string
	SellerWallet  string
	Title         string
	Category      string
	PriceUsdc     usdc.Amount
	MaxLatencyMs  int
	InputSchema   json.RawMessage
	OutputSchema  json.RawMessage
	Status        Status
	TotalJobs     int
	CompletedJobs int
	RatingCount   int
	AvgRating     float64
	AvgLatencyMs  float64
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// CreateParams enumerates the seller-supplied fields for a new offering.
type CreateParams struct {
	Slug          string
	SellerAgentID string
	SellerWallet  string
	Title         string
	Category      string
	PriceUsdc     usdc.Amount
	MaxLatencyMs  int
	InputSchema   json.RawMessage
	OutputSchema  json.RawMessage
}

// SortOrder values accepted by Discover.
const (
	SortNewest  = "newest"
	SortPrice   = "price"
	SortRating  = "rating"
	SortLatency = "latency"
)

// DiscoverFilters narrows the active-offering listing for buyers.
type DiscoverFilters struct {
	Category     string
	MaxPriceUsdc usdc.Amount
	Keyword      string
	Sort         string
	Page         int
	PageSize     int
}
