package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"agenthire/identity"
	"agenthire/job"
	"agenthire/offering"
	"agenthire/payment"
	"agenthire/usdc"
)

// AgentService is the identity slice the API needs.
type AgentService interface {
	Register(ctx context.Context, req identity.RegisterRequest) (*identity.Agent, error)
	Login(ctx context.Context, req identity.LoginRequest) (identity.LoginResult, error)
	VerifyToken(token string) (agentID, wallet string, err error)
}

// OfferingService is the catalog slice the API needs.
type OfferingService interface {
	Create(ctx context.Context, params offering.CreateParams) (offering.Offering, error)
	GetBySlug(ctx context.Context, slug string) (offering.Offering, error)
	Discover(ctx context.Context, f offering.DiscoverFilters) ([]offering.Offering, int, error)
	Retire(ctx context.Context, id, sellerAgentID string) error
	UpdatePricing(ctx context.Context, id string, price usdc.Amount, inputSchema, outputSchema []byte) error
}

// JobCreator runs the pay-before-create flow.
type JobCreator interface {
	Create(ctx context.Context, params job.CreateParams, assertion *payment.Assertion) (job.Job, error)
}

// JobStore reads and rates persisted jobs.
type JobStore interface {
	GetByID(ctx context.Context, id string) (job.Job, error)
	Rate(ctx context.Context, params job.RateParams) (job.Job, error)
}

// Transitioner drives seller-side lifecycle edges.
type Transitioner interface {
	Transition(ctx context.Context, params job.TransitionParams) (job.Job, error)
}

// RatingSink folds a job rating into the offering's reputation counters.
type RatingSink interface {
	RecordRating(ctx context.Context, offeringID string, rating int) error
}

// Server wires the domain services behind a gorilla/mux router.
type Server struct {
	agents      AgentService
	offerings   OfferingService
	creator     JobCreator
	jobs        JobStore
	transitions Transitioner
	ratings     RatingSink
}

func NewServer(agents AgentService, offerings OfferingService, creator JobCreator, jobs JobStore, transitions Transitioner, ratings RatingSink) *Server {
	return &Server{
		agents:      agents,
		offerings:   offerings,
		creator:     creator,
		jobs:        jobs,
		transitions: transitions,
		ratings:     ratings,
	}
}

// Router builds the route table. Method matching is strict so a wrong verb is
// 405, not 404.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/agents", s.handleRegister).Methods(http.MethodPost)
	r.HandleFunc("/agents/login", s.handleLogin).Methods(http.MethodPost)
	r.HandleFunc("/offerings", s.handleDiscover).Methods(http.MethodGet)
	r.HandleFunc("/offerings", s.handleCreateOffering).Methods(http.MethodPost)
	r.HandleFunc("/offerings/{slug}", s.handleGetOffering).Methods(http.MethodGet)
	r.HandleFunc("/offerings/{slug}", s.handleRetireOffering).Methods(http.MethodDelete)
	r.HandleFunc("/offerings/{slug}/pricing", s.handleUpdatePricing).Methods(http.MethodPut)
	r.HandleFunc("/jobs", s.handleCreateJob).Methods(http.MethodPost)
	r.HandleFunc("/jobs/{id}", s.handleGetJob).Methods(http.MethodGet)
	r.HandleFunc("/jobs/{id}/transition", s.handleTransition).Methods(http.MethodPost)
	r.HandleFunc("/jobs/{id}/rating", s.handleRate).Methods(http.MethodPost)
	return r
}

// caller is the authenticated identity attached to a request: a verified JWT
// when present, otherwise the self-asserted agent headers. Self-assertion is
// acceptable here because every mutating query is additionally guarded by
// wallet or buyer-id predicates in storage.
type caller struct {
	AgentID string
	Wallet  string
}

func (s *Server) callerFrom(r *http.Request) caller {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		agentID, wallet, err := s.agents.VerifyToken(strings.TrimPrefix(h, "Bearer "))
		if err == nil {
			return caller{AgentID: agentID, Wallet: wallet}
		}
		log.Printf("[httpapi] rejected bearer token: %v", err)
	}
	return caller{
		AgentID: r.Header.Get("X-Agent-ID"),
		Wallet:  r.Header.Get("X-Wallet-Address"),
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[httpapi] encode response: %v", err)
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid JSON body"})
		return false
	}
	return true
}

// writeError maps domain sentinels onto status codes. Unrecognized errors are
// 500 with a generic body so internals never leak to buyers.
func writeError(w http.ResponseWriter, err error) {
	var status int
	switch {
	case errors.Is(err, payment.ErrInsufficientPayment),
		errors.Is(err, payment.ErrRejected),
		errors.Is(err, job.ErrPaymentRequired):
		status = http.StatusPaymentRequired
	case errors.Is(err, payment.ErrMalformedPayment),
		errors.Is(err, job.ErrBadTTL),
		errors.Is(err, job.ErrOfferingRetired),
		errors.Is(err, offering.ErrInputMismatch),
		errors.Is(err, offering.ErrInvalidOffering),
		errors.Is(err, offering.ErrImmutable),
		errors.Is(err, usdc.ErrInvalidAmount),
		errors.Is(err, identity.ErrWeakSecret):
		status = http.StatusBadRequest
	case errors.Is(err, job.ErrUnauthorized),
		errors.Is(err, identity.ErrInvalidCredentials):
		status = http.StatusForbidden
	case errors.Is(err, job.ErrNotFound),
		errors.Is(err, offering.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, job.ErrIllegalTransition),
		errors.Is(err, job.ErrClaimConflict),
		errors.Is(err, offering.ErrDuplicateSlug),
		errors.Is(err, identity.ErrDuplicateAgent):
		status = http.StatusConflict
	default:
		log.Printf("[httpapi] internal error: %v", err)
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "internal error"})
		return
	}
	writeJSON(w, status, ErrorResponse{Error: err.Error()})
}
