// Package executor fulfills accepted jobs on behalf of locally-hosted seller
// agents: a fixed-interval poller that claims jobs through the state machine,
// dispatches the capability, and settles the outcome.
package executor

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	"golang.org/x/sync/errgroup"

	"agenthire/capability"
	"agenthire/job"
	"agenthire/offering"
)

// LocalAgent is one seller identity hosted by this process.
type LocalAgent struct {
	AgentID string
	Wallet  string
}

// AgentSource supplies the current local seller snapshot each cycle. The worker
// keeps no agent registry of its own.
type AgentSource interface {
	LocalAgents(ctx context.Context) ([]LocalAgent, error)
}

// JobStore is the repository slice the worker reads and falls back on.
type JobStore interface {
	ListClaimable(ctx context.Context, sellerWallets []string, limit int) ([]job.Job, error)
	Claim(ctx context.Context, jobID, sellerWallet string) (job.Job, error)
	AttachErrorDeliverables(ctx context.Context, jobID string, payload json.RawMessage) error
	ExpireOverdue(ctx context.Context) (int, error)
}

// Transitioner drives settlement edges through the state machine.
type Transitioner interface {
	Transition(ctx context.Context, params job.TransitionParams) (job.Job, error)
}

// OfferingSource supplies the offering backing a job (timeout budget, category)
// and receives the settlement counters.
type OfferingSource interface {
	GetByID(ctx context.Context, id string) (offering.Offering, error)
	RecordSettlement(ctx context.Context, id string, completed bool, latencyMs int64) error
}

// Config bounds the polling loop.
type Config struct {
	Interval         time.Duration
	BatchSize        int
	CycleConcurrency int
	MaxJobTimeout    time.Duration
}

func DefaultConfig() Config {
	return Config{
		Interval:         15 * time.Second,
		BatchSize:        10,
		CycleConcurrency: 1,
		MaxJobTimeout:    2 * time.Minute,
	}
}

// Worker holds no private job state across cycles: every cycle re-reads current
// status from storage, so it is stateless and safely restartable.
type Worker struct {
	cfg         Config
	agents      AgentSource
	store       JobStore
	transitions Transitioner
	offerings   OfferingSource
	registry    *capability.Registry
	rate        *RateWindow
}

func NewWorker(cfg Config, agents AgentSource, store JobStore, transitions Transitioner, offerings OfferingSource, registry *capability.Registry, rate *RateWindow) *Worker {
	if cfg.Interval <= 0 {
		cfg.Interval = 15 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	if cfg.CycleConcurrency <= 0 {
		cfg.CycleConcurrency = 1
	}
	if cfg.CycleConcurrency > 3 {
		cfg.CycleConcurrency = 3
	}
	if cfg.MaxJobTimeout <= 0 {
		cfg.MaxJobTimeout = 2 * time.Minute
	}
	return &Worker{
		cfg:         cfg,
		agents:      agents,
		store:       store,
		transitions: transitions,
		offerings:   offerings,
		registry:    registry,
		rate:        rate,
	}
}

// Run polls until the context ends. Cycle overlap is bounded by
// CycleConcurrency; a tick that finds the budget spent is skipped rather than
// queued.
func (w *Worker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.cfg.Interval)
	defer ticker.Stop()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.cfg.CycleConcurrency)

	for {
		select {
		case <-ctx.Done():
			_ = g.Wait()
			return ctx.Err()
		case <-ticker.C:
			started := g.TryGo(func() error {
				if err := w.RunCycle(gctx); err != nil {
					log.Printf("[executor] cycle failed: %v", err)
				}
				return nil
			})
			if !started {
				log.Printf("[executor] cycle budget spent, skipping tick")
			}
		}
	}
}

// RunCycle performs one poll: snapshot local sellers, sweep expiries, claim and
// execute up to BatchSize jobs oldest-first. Jobs within a cycle run
// sequentially so the dispatcher and the providers behind it are never
// saturated by a single worker.
func (w *Worker) RunCycle(ctx context.Context) error {
	agents, err := w.agents.LocalAgents(ctx)
	if err != nil {
		return err
	}
	if len(agents) == 0 {
		return nil
	}

	if n, err := w.store.ExpireOverdue(ctx); err != nil {
		log.Printf("[executor] expiry sweep failed: %v", err)
	} else if n > 0 {
		log.Printf("[executor] expired %d overdue jobs", n)
	}

	wallets := make([]string, 0, len(agents))
	agentByWallet := make(map[string]string, len(agents))
	for _, a := range agents {
		wallets = append(wallets, a.Wallet)
		agentByWallet[a.Wallet] = a.AgentID
	}

	jobs, err := w.store.ListClaimable(ctx, wallets, w.cfg.BatchSize)
	if err != nil {
		return err
	}

	for _, j := range jobs {
		if err := ctx.Err(); err != nil {
			return err
		}
		// one job's failure never aborts the batch
		w.runJob(ctx, j, agentByWallet[j.SellerWallet])
	}
	return nil
}

func (w *Worker) runJob(ctx context.Context, j job.Job, sellerAgentID string) {
	if w.rate != nil && sellerAgentID != "" && !w.rate.Allow(sellerAgentID) {
		log.Printf("[executor] rate window full for agent %s, leaving job %s for a later cycle", sellerAgentID, j.ID)
		return
	}

	claimed, err := w.store.Claim(ctx, j.ID, j.SellerWallet)
	if err != nil {
		// A lost race or a transient claim failure both leave the job
		// accepted; re-attempting the same edge next cycle is safe.
		if errors.Is(err, job.ErrClaimConflict) {
			log.Printf("[executor] job %s claimed elsewhere, skipping", j.ID)
		} else {
			log.Printf("[executor] claim failed for job %s, retrying next cycle: %v", j.ID, err)
		}
		return
	}

	res, execErr := w.execute(ctx, claimed)
	if execErr == nil && res.OK {
		w.settleCompleted(ctx, claimed, res)
		return
	}
	w.settleDisputed(ctx, claimed, res, execErr)
}

func (w *Worker) execute(ctx context.Context, j job.Job) (capability.Result, error) {
	off, err := w.offerings.GetByID(ctx, j.OfferingID)
	if err != nil {
		return capability.Result{}, err
	}

	capID, err := w.registry.Resolve(requestedCapability(j, off))
	if err != nil {
		return capability.Result{}, err
	}

	timeout := w.cfg.MaxJobTimeout
	if off.MaxLatencyMs > 0 {
		if d := time.Duration(off.MaxLatencyMs) * time.Millisecond; d < timeout {
			timeout = d
		}
	}

	return w.registry.Execute(ctx, capID, capability.Context{
		JobID:        j.ID,
		OfferingSlug: j.OfferingSlug,
		BuyerAgentID: j.BuyerAgentID,
		Requirements: j.Requirements,
	}, timeout)
}

// requestedCapability applies the resolution priority: an explicit capability,
// then an explicit skillId, then the offering's category.
func requestedCapability(j job.Job, off offering.Offering) string {
	var req struct {
		Capability string `json:"capability"`
		SkillID    string `json:"skillId"`
	}
	if len(j.Requirements) > 0 {
		_ = json.Unmarshal(j.Requirements, &req)
	}
	switch {
	case req.Capability != "":
		return req.Capability
	case req.SkillID != "":
		return req.SkillID
	default:
		return off.Category
	}
}

func (w *Worker) settleCompleted(ctx context.Context, j job.Job, res capability.Result) {
	deliverables, err := json.Marshal(map[string]any{
		"output":          json.RawMessage(orEmptyObject(res.Output)),
		"executionTimeMs": res.ElapsedMs,
		"handlerId":       res.HandlerID,
		"completedAt":     time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		log.Printf("[executor] marshal deliverables for job %s: %v", j.ID, err)
		return
	}

	if _, err := w.transitions.Transition(ctx, job.TransitionParams{
		JobID:        j.ID,
		Target:       job.StatusCompleted,
		ActorWallet:  j.SellerWallet,
		Deliverables: deliverables,
	}); err != nil {
		log.Printf("[executor] completion transition failed for job %s: %v", j.ID, err)
		return
	}

	if err := w.offerings.RecordSettlement(ctx, j.OfferingID, true, res.ElapsedMs); err != nil {
		log.Printf("[executor] settlement counters failed for offering %s: %v", j.OfferingID, err)
	}
	log.Printf("[executor] job %s completed by %s in %dms", j.ID, res.HandlerID, res.ElapsedMs)
}

func (w *Worker) settleDisputed(ctx context.Context, j job.Job, res capability.Result, execErr error) {
	detail := res.Detail
	kind := res.FailureKind
	if execErr != nil {
		detail = execErr.Error()
		kind = capability.FailureError
	}

	errPayload, err := json.Marshal(map[string]any{
		"error":           detail,
		"failureKind":     kind,
		"handlerId":       res.HandlerID,
		"executionTimeMs": res.ElapsedMs,
		"failedAt":        time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		log.Printf("[executor] marshal error payload for job %s: %v", j.ID, err)
		return
	}

	if _, err := w.transitions.Transition(ctx, job.TransitionParams{
		JobID:        j.ID,
		Target:       job.StatusDisputed,
		ActorWallet:  j.SellerWallet,
		Deliverables: errPayload,
	}); err != nil {
		// Best-effort audit trail: the failure context must not be lost even
		// when the transition write itself fails. The job stays delivering for
		// maintenance resolution.
		log.Printf("[executor] dispute transition failed for job %s, attaching error directly: %v", j.ID, err)
		if aerr := w.store.AttachErrorDeliverables(ctx, j.ID, errPayload); aerr != nil {
			log.Printf("[executor] error-deliverables fallback failed for job %s: %v", j.ID, aerr)
		}
		return
	}

	if err := w.offerings.RecordSettlement(ctx, j.OfferingID, false, res.ElapsedMs); err != nil {
		log.Printf("[executor] settlement counters failed for offering %s: %v", j.OfferingID, err)
	}
	log.Printf("[executor] job %s disputed (%s): %s", j.ID, kind, detail)
}

func orEmptyObject(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 {
		return json.RawMessage(`{}`)
	}
	return raw
}
