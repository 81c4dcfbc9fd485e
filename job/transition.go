package job

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// TransitionService is the single writer of job status. Every edge runs inside
// one transaction: row lock, adjacency check, actor check, conditional update,
// audit event.
type TransitionService struct {
	pool *pgxpool.Pool
}

func NewTransitionService(pool *pgxpool.Pool) *TransitionService {
	return &TransitionService{pool: pool}
}

// Transition drives one edge of the state machine. The update is conditioned on
// the status read under the row lock, so a concurrent writer that slipped in
// surfaces as ErrClaimConflict rather than a lost update.
func (s *TransitionService) Transition(ctx context.Context, params TransitionParams) (Job, error) {
	if !ValidStatus(params.Target) {
		return Job{}, fmt.Errorf("%w: unknown target %q", ErrIllegalTransition, params.Target)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Job{}, fmt.Errorf("job: begin transition: %w", err)
	}
	defer tx.Rollback(ctx)

	var current Status
	var sellerWallet string
	if err := tx.QueryRow(ctx, `
		SELECT status::text, seller_wallet FROM jobs WHERE id = $1 FOR UPDATE
	`, params.JobID).Scan(&current, &sellerWallet); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Job{}, ErrNotFound
		}
		return Job{}, fmt.Errorf("job: fetch current status: %w", err)
	}

	actor, err := EdgeActor(current, params.Target)
	if err != nil {
		return Job{}, err
	}
	switch actor {
	case ActorSeller:
		if params.ActorWallet != sellerWallet {
			return Job{}, fmt.Errorf("%w: %s -> %s requires the seller wallet", ErrUnauthorized, current, params.Target)
		}
	case ActorSystem:
		if params.ActorWallet != "" {
			return Job{}, fmt.Errorf("%w: %s -> %s is system-driven", ErrUnauthorized, current, params.Target)
		}
	}

	setClause := `status = $2::job_status`
	if col := timestampColumn(params.Target); col != "" {
		setClause += `, ` + col + ` = now()`
	}
	args := []any{params.JobID, string(params.Target), string(current)}
	if params.Target == StatusCompleted || params.Target == StatusDisputed {
		setClause += `, deliverables = $4`
		args = append(args, params.Deliverables)
	}

	j, err := scanJob(tx.QueryRow(ctx, `
		UPDATE jobs AS j
		SET `+setClause+`
		WHERE j.id = $1 AND j.status = $3::job_status
		RETURNING `+jobColumns, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Job{}, fmt.Errorf("%w: job %s left %s mid-transition", ErrClaimConflict, params.JobID, current)
		}
		return Job{}, fmt.Errorf("job: update status: %w", err)
	}

	eventPayload := map[string]any{
		"previous_status": current,
		"next_status":     params.Target,
	}
	if len(params.Deliverables) > 0 {
		eventPayload["deliverables"] = json.RawMessage(params.Deliverables)
	}
	if err := appendEvent(ctx, tx, params.JobID, EventStatusChanged, params.ActorWallet, eventPayload); err != nil {
		return Job{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Job{}, fmt.Errorf("job: commit transition: %w", err)
	}
	return j, nil
}
