package job

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"agenthire/usdc"
)

const jobColumns = `
	j.id, j.offering_id, j.offering_slug, j.buyer_agent_id, j.seller_agent_id,
	j.seller_wallet, j.requirements, j.deliverables, j.price_usdc,
	j.payment_tx_hash, j.status::text, j.rating, j.feedback,
	j.created_at, j.accepted_at, j.delivering_at, j.completed_at, j.expires_at
`

type PGRepository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

func scanJob(row pgx.Row) (Job, error) {
	var j Job
	var price int64
	if err := row.Scan(
		&j.ID, &j.OfferingID, &j.OfferingSlug, &j.BuyerAgentID, &j.SellerAgentID,
		&j.SellerWallet, &j.Requirements, &j.Deliverables, &price,
		&j.PaymentTxHash, &j.Status, &j.Rating, &j.Feedback,
		&j.CreatedAt, &j.AcceptedAt, &j.DeliveringAt, &j.CompletedAt, &j.ExpiresAt,
	); err != nil {
		return Job{}, err
	}
	j.PriceUsdc = usdc.Amount(price)
	return j, nil
}

func (r *PGRepository) GetByID(ctx context.Context, id string) (Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs j WHERE j.id = $1`
	j, err := scanJob(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Job{}, ErrNotFound
		}
		return Job{}, fmt.Errorf("job: get by id: %w", err)
	}
	return j, nil
}

// insertParams is assembled by the create service once payment has settled.
type insertParams struct {
	OfferingID    string
	OfferingSlug  string
	BuyerAgentID  string
	SellerAgentID string
	SellerWallet  string
	Requirements  json.RawMessage
	PriceUsdc     usdc.Amount
	PaymentTxHash string
	Status        Status
	TTLMinutes    int
}

func (r *PGRepository) insert(ctx context.Context, params insertParams) (Job, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return Job{}, fmt.Errorf("job: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var txHash any
	if params.PaymentTxHash != "" {
		txHash = params.PaymentTxHash
	}

	j, err := scanJob(tx.QueryRow(ctx, `
		INSERT INTO jobs AS j (offering_id, offering_slug, buyer_agent_id, seller_agent_id,
		                       seller_wallet, requirements, price_usdc, payment_tx_hash,
		                       status, accepted_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9::job_status,
		        CASE WHEN $9::job_status = 'accepted' THEN now() END,
		        now() + make_interval(mins => $10))
		RETURNING `+jobColumns,
		params.OfferingID,
		params.OfferingSlug,
		params.BuyerAgentID,
		params.SellerAgentID,
		params.SellerWallet,
		params.Requirements,
		int64(params.PriceUsdc),
		txHash,
		string(params.Status),
		params.TTLMinutes,
	))
	if err != nil {
		return Job{}, fmt.Errorf("job: insert: %w", err)
	}

	payload := map[string]any{
		"offering_slug": params.OfferingSlug,
		"price_usdc":    params.PriceUsdc.String(),
		"status":        params.Status,
		"ttl_minutes":   params.TTLMinutes,
	}
	if params.PaymentTxHash != "" {
		payload["payment_tx_hash"] = params.PaymentTxHash
	}
	if err := appendEvent(ctx, tx, j.ID, EventCreated, "", payload); err != nil {
		return Job{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Job{}, fmt.Errorf("job: commit insert: %w", err)
	}
	return j, nil
}

// ListClaimable returns accepted, unexpired jobs owned by one of the seller
// wallets, oldest first, capped at limit. Ordering bounds latency fairness; the
// cap bounds per-cycle load.
func (r *PGRepository) ListClaimable(ctx context.Context, sellerWallets []string, limit int) ([]Job, error) {
	if len(sellerWallets) == 0 {
		return nil, nil
	}
	if limit <= 0 {
		limit = 10
	}

	query := `
		SELECT ` + jobColumns + `
		FROM jobs j
		WHERE j.status = 'accepted'
		  AND j.seller_wallet = ANY($1)
		  AND j.expires_at > now()
		ORDER BY j.created_at ASC
		LIMIT $2
	`

	rows, err := r.pool.Query(ctx, query, sellerWallets, limit)
	if err != nil {
		return nil, fmt.Errorf("job: list claimable: %w", err)
	}
	defer rows.Close()

	out := make([]Job, 0, limit)
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("job: scan claimable: %w", err)
		}
		out = append(out, j)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("job: iterate claimable: %w", err)
	}
	return out, nil
}

// Claim performs the accepted->delivering edge as a single conditional update.
// The WHERE clause is the sole serialization point between concurrent executor
// instances: zero rows means another claimer won (or the job moved on) and the
// caller simply skips the job this cycle.
func (r *PGRepository) Claim(ctx context.Context, jobID, sellerWallet string) (Job, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return Job{}, fmt.Errorf("job: begin claim: %w", err)
	}
	defer tx.Rollback(ctx)

	j, err := scanJob(tx.QueryRow(ctx, `
		UPDATE jobs AS j
		SET status = 'delivering',
		    delivering_at = now()
		WHERE j.id = $1
		  AND j.status = 'accepted'
		  AND j.seller_wallet = $2
		  AND j.expires_at > now()
		RETURNING `+jobColumns, jobID, sellerWallet))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Job{}, r.classifyClaimMiss(ctx, jobID, sellerWallet)
		}
		return Job{}, fmt.Errorf("job: claim: %w", err)
	}

	if err := appendEvent(ctx, tx, jobID, EventStatusChanged, sellerWallet, map[string]any{
		"previous_status": StatusAccepted,
		"next_status":     StatusDelivering,
	}); err != nil {
		return Job{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Job{}, fmt.Errorf("job: commit claim: %w", err)
	}
	return j, nil
}

func (r *PGRepository) classifyClaimMiss(ctx context.Context, jobID, sellerWallet string) error {
	var status Status
	var wallet string
	err := r.pool.QueryRow(ctx, `SELECT status::text, seller_wallet FROM jobs WHERE id = $1`, jobID).
		Scan(&status, &wallet)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("job: classify claim miss: %w", err)
	}
	if wallet != sellerWallet {
		return fmt.Errorf("%w: wallet %s does not own job %s", ErrUnauthorized, sellerWallet, jobID)
	}
	return fmt.Errorf("%w: job %s is %s", ErrClaimConflict, jobID, status)
}

// AttachErrorDeliverables is the best-effort audit fallback used when the
// disputed transition itself fails: the error context lands on the job record
// and the job stays in delivering for maintenance resolution.
func (r *PGRepository) AttachErrorDeliverables(ctx context.Context, jobID string, payload json.RawMessage) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE jobs SET deliverables = $2 WHERE id = $1 AND status = 'delivering'
	`, jobID, payload)
	if err != nil {
		return fmt.Errorf("job: attach error deliverables: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO job_events (job_id, type, payload) VALUES ($1, $2, $3)
	`, jobID, EventErrorAttached, payload)
	if err != nil {
		return fmt.Errorf("job: attach error event: %w", err)
	}
	return nil
}

// ExpireOverdue sweeps created/accepted jobs past their expiry into the expired
// terminal. Returns how many were closed.
func (r *PGRepository) ExpireOverdue(ctx context.Context) (int, error) {
	rows, err := r.pool.Query(ctx, `
		UPDATE jobs
		SET status = 'expired', completed_at = now()
		WHERE status IN ('created', 'accepted')
		  AND expires_at <= now()
		RETURNING id
	`)
	if err != nil {
		return 0, fmt.Errorf("job: expire overdue: %w", err)
	}
	defer rows.Close()

	expired := make([]string, 0, 8)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return 0, fmt.Errorf("job: scan expired id: %w", err)
		}
		expired = append(expired, id)
	}
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("job: iterate expired: %w", err)
	}

	for _, id := range expired {
		_, err := r.pool.Exec(ctx, `
			INSERT INTO job_events (job_id, type, payload)
			VALUES ($1, $2, '{"next_status":"expired"}'::jsonb)
		`, id, EventStatusChanged)
		if err != nil {
			return len(expired), fmt.Errorf("job: expired event: %w", err)
		}
	}
	return len(expired), nil
}

// Rate records the buyer's verdict on a completed job, once.
func (r *PGRepository) Rate(ctx context.Context, params RateParams) (Job, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return Job{}, fmt.Errorf("job: begin rate: %w", err)
	}
	defer tx.Rollback(ctx)

	j, err := scanJob(tx.QueryRow(ctx, `
		UPDATE jobs AS j
		SET rating = $2, feedback = NULLIF($3, '')
		WHERE j.id = $1
		  AND j.buyer_agent_id = $4
		  AND j.status = 'completed'
		  AND j.rating IS NULL
		RETURNING `+jobColumns,
		params.JobID, params.Rating, params.Feedback, params.BuyerAgentID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Job{}, r.classifyRateMiss(ctx, params)
		}
		return Job{}, fmt.Errorf("job: rate: %w", err)
	}

	if err := appendEvent(ctx, tx, params.JobID, EventRated, "", map[string]any{
		"rating":   params.Rating,
		"feedback": params.Feedback,
	}); err != nil {
		return Job{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Job{}, fmt.Errorf("job: commit rate: %w", err)
	}
	return j, nil
}

func (r *PGRepository) classifyRateMiss(ctx context.Context, params RateParams) error {
	var status Status
	var buyer string
	var rating *int
	err := r.pool.QueryRow(ctx, `SELECT status::text, buyer_agent_id, rating FROM jobs WHERE id = $1`, params.JobID).
		Scan(&status, &buyer, &rating)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("job: classify rate miss: %w", err)
	}
	if buyer != params.BuyerAgentID {
		return fmt.Errorf("%w: only the buyer rates", ErrUnauthorized)
	}
	if status != StatusCompleted {
		return fmt.Errorf("%w: rating requires completed, job is %s", ErrIllegalTransition, status)
	}
	if rating != nil {
		return fmt.Errorf("%w: job already rated", ErrIllegalTransition)
	}
	return ErrNotFound
}

func appendEvent(ctx context.Context, tx pgx.Tx, jobID, eventType, actorWallet string, payload map[string]any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("job: marshal event payload: %w", err)
	}
	var actor any
	if actorWallet != "" {
		actor = actorWallet
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO job_events (job_id, type, actor_wallet, payload)
		VALUES ($1, $2, $3, $4)
	`, jobID, eventType, actor, body); err != nil {
		return fmt.Errorf("job: insert event: %w", err)
	}
	return nil
}
