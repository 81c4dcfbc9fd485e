// Package oracles defines SQL invariant checks run while the stress actors
// hammer the schema. Every query returns rows only when an invariant is broken.
package oracles

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Oracle struct {
	Name string
	SQL  string
}

func All() []Oracle {
	return []Oracle{
		{
			// the conditional claim update admits exactly one winner per job
			Name: "O1_single_claimer",
			SQL: `SELECT job_id, COUNT(*) FROM job_events
                  WHERE type = 'JOB_STATUS_CHANGED'
                    AND payload->>'next_status' = 'delivering'
                  GROUP BY job_id HAVING COUNT(*) > 1`,
		},
		{
			// lifecycle timestamps never run backwards
			Name: "O2_monotonic_timestamps",
			SQL: `SELECT id FROM jobs
                  WHERE (accepted_at IS NOT NULL AND accepted_at < created_at)
                     OR (delivering_at IS NOT NULL AND accepted_at IS NOT NULL AND delivering_at < accepted_at)
                     OR (completed_at IS NOT NULL AND delivering_at IS NOT NULL
                         AND status IN ('completed', 'disputed') AND completed_at < delivering_at)`,
		},
		{
			// in-flight work never expires
			Name: "O3_no_expiry_in_flight",
			SQL:  `SELECT id FROM jobs WHERE status = 'expired' AND delivering_at IS NOT NULL`,
		},
		{
			// job price is a creation-time copy and offering pricing is frozen
			// once jobs exist, so the two never diverge
			Name: "O4_price_copy_intact",
			SQL: `SELECT j.id FROM jobs j
                  JOIN offerings o ON o.id = j.offering_id
                  WHERE j.price_usdc <> o.price_usdc`,
		},
		{
			// nothing moves past created without settled payment
			Name: "O5_paid_before_accepted",
			SQL: `SELECT id FROM jobs
                  WHERE price_usdc > 0
                    AND status NOT IN ('created', 'rejected', 'expired')
                    AND payment_tx_hash IS NULL`,
		},
		{
			// ratings attach to completed jobs only
			Name: "O6_rating_requires_completed",
			SQL:  `SELECT id FROM jobs WHERE rating IS NOT NULL AND status <> 'completed'`,
		},
		{
			// every post-accepted job carries its status-change audit trail
			Name: "O7_audit_trail_present",
			SQL: `SELECT j.id FROM jobs j
                  WHERE j.status IN ('delivering', 'completed', 'disputed')
                    AND NOT EXISTS (
                        SELECT 1 FROM job_events e
                        WHERE e.job_id = j.id AND e.type = 'JOB_STATUS_CHANGED')`,
		},
		{
			// settled jobs carry a payload: deliverables or an error record
			Name: "O8_settlement_payload",
			SQL: `SELECT id FROM jobs
                  WHERE status IN ('completed', 'disputed') AND deliverables IS NULL`,
		},
	}
}

// Run executes all oracles and returns the first failure (name and sample row
// text) or an empty name when all pass.
func Run(ctx context.Context, pool *pgxpool.Pool) (string, string, error) {
	for _, o := range All() {
		rows, err := pool.Query(ctx, o.SQL)
		if err != nil {
			return o.Name, "", fmt.Errorf("oracle %s: %w", o.Name, err)
		}
		has := rows.Next()
		if has {
			vals, err := rows.Values()
			rows.Close()
			if err != nil {
				return o.Name, "", err
			}
			return o.Name, fmt.Sprintf("%v", vals), nil
		}
		rows.Close()
	}
	return "", "", nil
}
