// Package actors holds the concurrent workloads the stress test throws at the
// job engine: buyers creating paid jobs, executors racing to claim them,
// completers settling them, and sweepers expiring the stale ones.
package actors

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Buyer inserts paid jobs against the seeded offering, mirroring the
// pay-before-create flow: every row starts accepted with a payment hash.
func Buyer(ctx context.Context, pool *pgxpool.Pool, offeringID, offeringSlug, buyerID, sellerID, sellerWallet string, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		tx, err := pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("buyer begin: %w", err)
		}
		var jobID string
		err = tx.QueryRow(ctx, `
			INSERT INTO jobs (offering_id, offering_slug, buyer_agent_id, seller_agent_id,
			                  seller_wallet, requirements, price_usdc, payment_tx_hash,
			                  status, accepted_at, expires_at)
			VALUES ($1, $2, $3, $4, $5, '{"topic":"stress"}'::jsonb, 5000000, $6,
			        'accepted', now(), now() + interval '1 hour')
			RETURNING id
		`, offeringID, offeringSlug, buyerID, sellerID, sellerWallet,
			fmt.Sprintf("0xtx%d", rand.Int63())).Scan(&jobID)
		if err == nil {
			_, err = tx.Exec(ctx, `
				INSERT INTO job_events (job_id, type, payload)
				VALUES ($1, 'JOB_CREATED', '{"source":"stress"}'::jsonb)
			`, jobID)
		}
		if err != nil {
			_ = tx.Rollback(ctx)
			return fmt.Errorf("buyer insert: %w", err)
		}
		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("buyer commit: %w", err)
		}
		time.Sleep(time.Duration(10+rand.Intn(30)) * time.Millisecond)
	}
}

// Claimer races the accepted->delivering conditional update the way competing
// executor instances do. Losing the row condition is the expected outcome under
// contention; winning appends the status event in the same transaction.
func Claimer(ctx context.Context, pool *pgxpool.Pool, sellerWallet string, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		tx, err := pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("claimer begin: %w", err)
		}
		var jobID string
		err = tx.QueryRow(ctx, `
			UPDATE jobs SET status = 'delivering', delivering_at = now()
			WHERE id = (
			    SELECT id FROM jobs
			    WHERE status = 'accepted' AND seller_wallet = $1 AND expires_at > now()
			    ORDER BY created_at LIMIT 1
			)
			AND status = 'accepted'
			RETURNING id
		`, sellerWallet).Scan(&jobID)
		if err == nil {
			_, err = tx.Exec(ctx, `
				INSERT INTO job_events (job_id, type, actor_wallet, payload)
				VALUES ($1, 'JOB_STATUS_CHANGED', $2,
				        '{"previous_status":"accepted","next_status":"delivering"}'::jsonb)
			`, jobID, sellerWallet)
		}
		switch {
		case errors.Is(err, pgx.ErrNoRows):
			_ = tx.Rollback(ctx)
		case err != nil:
			_ = tx.Rollback(ctx)
			return fmt.Errorf("claimer update: %w", err)
		default:
			if err := tx.Commit(ctx); err != nil {
				return fmt.Errorf("claimer commit: %w", err)
			}
		}
		time.Sleep(time.Duration(5+rand.Intn(20)) * time.Millisecond)
	}
}

// Completer settles delivering jobs: mostly completed with deliverables,
// occasionally disputed with an error payload.
func Completer(ctx context.Context, pool *pgxpool.Pool, sellerWallet string, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		target := "completed"
		payload := `{"output":{"trend":"up"},"executionTimeMs":12}`
		if rand.Intn(10) == 0 {
			target = "disputed"
			payload = `{"error":"stress-induced failure","failureKind":"error"}`
		}

		tx, err := pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("completer begin: %w", err)
		}
		var jobID string
		err = tx.QueryRow(ctx, `
			UPDATE jobs SET status = $2::job_status, completed_at = now(), deliverables = $3::jsonb
			WHERE id = (
			    SELECT id FROM jobs
			    WHERE status = 'delivering' AND seller_wallet = $1
			    ORDER BY delivering_at LIMIT 1
			)
			AND status = 'delivering'
			RETURNING id
		`, sellerWallet, target, payload).Scan(&jobID)
		if err == nil {
			_, err = tx.Exec(ctx, `
				INSERT INTO job_events (job_id, type, actor_wallet, payload)
				VALUES ($1, 'JOB_STATUS_CHANGED', $2,
				        jsonb_build_object('previous_status', 'delivering', 'next_status', $3::text))
			`, jobID, sellerWallet, target)
		}
		switch {
		case errors.Is(err, pgx.ErrNoRows):
			_ = tx.Rollback(ctx)
		case err != nil:
			_ = tx.Rollback(ctx)
			return fmt.Errorf("completer update: %w", err)
		default:
			if err := tx.Commit(ctx); err != nil {
				return fmt.Errorf("completer commit: %w", err)
			}
		}
		time.Sleep(time.Duration(10+rand.Intn(25)) * time.Millisecond)
	}
}

// Rater rates completed jobs once, as the buyer. The predicate mirrors the
// repository: completed only, unrated only, owning buyer only.
func Rater(ctx context.Context, pool *pgxpool.Pool, buyerID string, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		_, err := pool.Exec(ctx, `
			UPDATE jobs SET rating = $2, feedback = 'stress'
			WHERE id = (
			    SELECT id FROM jobs
			    WHERE status = 'completed' AND rating IS NULL AND buyer_agent_id = $1
			    ORDER BY completed_at LIMIT 1
			)
			AND status = 'completed' AND rating IS NULL
		`, buyerID, 1+rand.Intn(5))
		if err != nil {
			return fmt.Errorf("rater update: %w", err)
		}
		time.Sleep(time.Duration(50+rand.Intn(100)) * time.Millisecond)
	}
}

// Expirer runs the expiry sweep the executor performs each cycle. Only
// pre-delivery rows are eligible; in-flight work never expires.
func Expirer(ctx context.Context, pool *pgxpool.Pool, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		_, err := pool.Exec(ctx, `
			UPDATE jobs SET status = 'expired', completed_at = now()
			WHERE status IN ('created', 'accepted') AND expires_at <= now()
		`)
		if err != nil {
			return fmt.Errorf("expirer sweep: %w", err)
		}
		time.Sleep(time.Duration(100+rand.Intn(200)) * time.Millisecond)
	}
}
