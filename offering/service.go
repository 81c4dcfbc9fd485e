package offering

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"agenthire/usdc"
)

// ErrInvalidOffering signals seller input that fails catalog validation.
var ErrInvalidOffering = errors.New("offering: invalid offering")

// maxLatencyCeilingMs caps declared latency at the executor's global timeout.
const maxLatencyCeilingMs = 120_000

var slugPattern = regexp.MustCompile(`^[a-z0-9]+(-[a-z0-9]+)*$`)

// Store abstracts repository operations for the service.
type Store interface {
	Create(ctx context.Context, params CreateParams) (Offering, error)
	GetBySlug(ctx context.Context, slug string) (Offering, error)
	GetByID(ctx context.Context, id string) (Offering, error)
	Discover(ctx context.Context, f DiscoverFilters) ([]Offering, int, error)
	Retire(ctx context.Context, id, sellerAgentID string) error
	UpdatePricing(ctx context.Context, id string, price usdc.Amount, inputSchema, outputSchema []byte) error
}

// Service exposes business-level offering operations.
type Service struct {
	store Store
}

func NewService(store Store) *Service {
	return &Service{store: store}
}

func (s *Service) Create(ctx context.Context, params CreateParams) (Offering, error) {
	if !slugPattern.MatchString(params.Slug) {
		return Offering{}, fmt.Errorf("%w: slug %q", ErrInvalidOffering, params.Slug)
	}
	if params.SellerAgentID == "" || params.SellerWallet == "" {
		return Offering{}, fmt.Errorf("%w: seller identity required", ErrInvalidOffering)
	}
	if params.PriceUsdc < 0 {
		return Offering{}, fmt.Errorf("%w: price must not be negative", ErrInvalidOffering)
	}
	if params.MaxLatencyMs <= 0 || params.MaxLatencyMs > maxLatencyCeilingMs {
		return Offering{}, fmt.Errorf("%w: max latency must be in (0, %d]ms", ErrInvalidOffering, maxLatencyCeilingMs)
	}
	if params.Title == "" {
		params.Title = params.Slug
	}
	return s.store.Create(ctx, params)
}

func (s *Service) GetBySlug(ctx context.Context, slug string) (Offering, error) {
	return s.store.GetBySlug(ctx, slug)
}

func (s *Service) Discover(ctx context.Context, f DiscoverFilters) ([]Offering, int, error) {
	return s.store.Discover(ctx, f)
}

func (s *Service) Retire(ctx context.Context, id, sellerAgentID string) error {
	return s.store.Retire(ctx, id, sellerAgentID)
}

func (s *Service) UpdatePricing(ctx context.Context, id string, price usdc.Amount, inputSchema, outputSchema []byte) error {
	if price < 0 {
		return fmt.Errorf("%w: price must not be negative", ErrInvalidOffering)
	}
	return s.store.UpdatePricing(ctx, id, price, inputSchema, outputSchema)
}
