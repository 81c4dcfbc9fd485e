package httpapi

import (
	"log"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"agenthire/identity"
	"agenthire/job"
	"agenthire/offering"
	"agenthire/payment"
	"agenthire/usdc"
)

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req identity.RegisterRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	agent, err := s.agents.Register(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, agentPayload(*agent))
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req identity.LoginRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	res, err := s.agents.Login(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, LoginResponse{Token: res.Token, Agent: agentPayload(res.Agent)})
}

func (s *Server) handleCreateOffering(w http.ResponseWriter, r *http.Request) {
	who := s.callerFrom(r)
	if who.AgentID == "" || who.Wallet == "" {
		writeJSON(w, http.StatusForbidden, ErrorResponse{Error: "seller identity required"})
		return
	}

	var req CreateOfferingRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	created, err := s.offerings.Create(r.Context(), offering.CreateParams{
		Slug:          req.Slug,
		SellerAgentID: who.AgentID,
		SellerWallet:  who.Wallet,
		Title:         req.Title,
		Category:      req.Category,
		PriceUsdc:     req.PriceUsdc,
		MaxLatencyMs:  req.MaxLatencyMs,
		InputSchema:   req.InputSchema,
		OutputSchema:  req.OutputSchema,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, offeringPayload(created))
}

func (s *Server) handleDiscover(w http.ResponseWriter, r *http.Request) {
	f, err := discoverFilters(r)
	if err != nil {
		writeError(w, err)
		return
	}
	offerings, total, err := s.offerings.Discover(r.Context(), f)
	if err != nil {
		writeError(w, err)
		return
	}
	payloads := make([]OfferingPayload, 0, len(offerings))
	for _, o := range offerings {
		payloads = append(payloads, offeringPayload(o))
	}
	writeJSON(w, http.StatusOK, DiscoverResponse{
		Offerings: payloads,
		Total:     total,
		Page:      f.Page,
		PageSize:  f.PageSize,
	})
}

func discoverFilters(r *http.Request) (offering.DiscoverFilters, error) {
	q := r.URL.Query()
	f := offering.DiscoverFilters{
		Category: q.Get("category"),
		Keyword:  q.Get("q"),
		Sort:     q.Get("sort"),
	}
	if raw := q.Get("maxPrice"); raw != "" {
		price, err := usdc.Parse(raw)
		if err != nil {
			return f, err
		}
		f.MaxPriceUsdc = price
	}
	// bad page numbers fall back to the first page rather than erroring
	f.Page, _ = strconv.Atoi(q.Get("page"))
	f.PageSize, _ = strconv.Atoi(q.Get("pageSize"))
	return f, nil
}

func (s *Server) handleGetOffering(w http.ResponseWriter, r *http.Request) {
	o, err := s.offerings.GetBySlug(r.Context(), mux.Vars(r)["slug"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, offeringPayload(o))
}

func (s *Server) handleRetireOffering(w http.ResponseWriter, r *http.Request) {
	who := s.callerFrom(r)
	if who.AgentID == "" {
		writeJSON(w, http.StatusForbidden, ErrorResponse{Error: "seller identity required"})
		return
	}

	o, err := s.offerings.GetBySlug(r.Context(), mux.Vars(r)["slug"])
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.offerings.Retire(r.Context(), o.ID, who.AgentID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleUpdatePricing(w http.ResponseWriter, r *http.Request) {
	who := s.callerFrom(r)
	if who.AgentID == "" {
		writeJSON(w, http.StatusForbidden, ErrorResponse{Error: "seller identity required"})
		return
	}

	var req UpdatePricingRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	o, err := s.offerings.GetBySlug(r.Context(), mux.Vars(r)["slug"])
	if err != nil {
		writeError(w, err)
		return
	}
	if o.SellerAgentID != who.AgentID {
		writeJSON(w, http.StatusForbidden, ErrorResponse{Error: "only the owning seller may reprice"})
		return
	}
	if err := s.offerings.UpdatePricing(r.Context(), o.ID, req.PriceUsdc, req.InputSchema, req.OutputSchema); err != nil {
		writeError(w, err)
		return
	}

	updated, err := s.offerings.GetBySlug(r.Context(), o.Slug)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, offeringPayload(updated))
}

// handleCreateJob is the pay-before-create entrypoint: the X-PAYMENT header is
// parsed up front and settled by the create service before any job row exists.
func (s *Server) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	assertion, err := payment.ParseAssertion(r.Header.Get(payment.HeaderName))
	if err != nil {
		writeError(w, err)
		return
	}

	var req CreateJobRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	// the body names the buyer, but an authenticated identity overrides it
	buyer := req.BuyerAgentID
	if who := s.callerFrom(r); who.AgentID != "" {
		buyer = who.AgentID
	}
	if buyer == "" {
		writeJSON(w, http.StatusForbidden, ErrorResponse{Error: "buyer identity required"})
		return
	}

	created, err := s.creator.Create(r.Context(), job.CreateParams{
		BuyerAgentID: buyer,
		OfferingSlug: req.OfferingSlug,
		Requirements: req.Requirements,
		TTLMinutes:   req.TTLMinutes,
	}, assertion)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, jobPayload(created))
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	j, err := s.jobs.GetByID(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, jobPayload(j))
}

func (s *Server) handleTransition(w http.ResponseWriter, r *http.Request) {
	who := s.callerFrom(r)
	if who.Wallet == "" {
		writeJSON(w, http.StatusForbidden, ErrorResponse{Error: "wallet identity required"})
		return
	}

	var req TransitionRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	target := job.Status(req.Status)
	if !job.ValidStatus(target) {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "unknown target status"})
		return
	}

	updated, err := s.transitions.Transition(r.Context(), job.TransitionParams{
		JobID:        mux.Vars(r)["id"],
		Target:       target,
		ActorWallet:  who.Wallet,
		Deliverables: req.Deliverables,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, jobPayload(updated))
}

func (s *Server) handleRate(w http.ResponseWriter, r *http.Request) {
	who := s.callerFrom(r)
	if who.AgentID == "" {
		writeJSON(w, http.StatusForbidden, ErrorResponse{Error: "buyer identity required"})
		return
	}

	var req RatingRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Rating < 1 || req.Rating > 5 {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "rating must be between 1 and 5"})
		return
	}

	rated, err := s.jobs.Rate(r.Context(), job.RateParams{
		JobID:        mux.Vars(r)["id"],
		BuyerAgentID: who.AgentID,
		Rating:       req.Rating,
		Feedback:     req.Feedback,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	// reputation counters are additive bookkeeping, never a reason to fail the
	// buyer's request
	if s.ratings != nil {
		if err := s.ratings.RecordRating(r.Context(), rated.OfferingID, req.Rating); err != nil {
			log.Printf("[httpapi] rating counters failed for offering %s: %v", rated.OfferingID, err)
		}
	}
	writeJSON(w, http.StatusOK, jobPayload(rated))
}
