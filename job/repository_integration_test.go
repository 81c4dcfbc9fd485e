package job

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// TestJobLifecycle_Integration connects to a real PostgreSQL via DATABASE_URL
// and drives one job through claim, delivery, completion, and rating against
// the actual conditional-update SQL.
func TestJobLifecycle_Integration(t *testing.T) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL is empty; set it to a live PostgreSQL to run integration test")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("connect pool: %v", err)
	}
	defer pool.Close()

	if !tableExists(ctx, t, pool, "jobs") || !tableExists(ctx, t, pool, "job_events") {
		t.Skip("database schema missing; apply files under migrations/ first")
	}

	nonce := time.Now().UnixNano()
	sellerWallet := fmt.Sprintf("0x%040d", nonce%1_000_000_000)

	var buyerID, sellerID, offeringID string
	if err := pool.QueryRow(ctx, `
		INSERT INTO agents (handle, wallet_address, secret_hash, role)
		VALUES ($1, $2, 'x', 'buyer') RETURNING id
	`, fmt.Sprintf("buyer-%d", nonce), fmt.Sprintf("0xb%039d", nonce%1_000_000_000)).Scan(&buyerID); err != nil {
		t.Fatalf("seed buyer: %v", err)
	}
	if err := pool.QueryRow(ctx, `
		INSERT INTO agents (handle, wallet_address, secret_hash, role)
		VALUES ($1, $2, 'x', 'seller') RETURNING id
	`, fmt.Sprintf("seller-%d", nonce), sellerWallet).Scan(&sellerID); err != nil {
		t.Fatalf("seed seller: %v", err)
	}
	if err := pool.QueryRow(ctx, `
		INSERT INTO offerings (slug, seller_agent_id, seller_wallet, title, category, price_usdc)
		VALUES ($1, $2, $3, 'Trend Analysis', 'analytics', 5000000) RETURNING id
	`, fmt.Sprintf("trend-analysis-%d", nonce), sellerID, sellerWallet).Scan(&offeringID); err != nil {
		t.Fatalf("seed offering: %v", err)
	}

	t.Cleanup(func() {
		ctx2, cancel2 := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel2()
		pool.Exec(ctx2, `DELETE FROM job_events WHERE job_id IN (SELECT id FROM jobs WHERE offering_id = $1)`, offeringID)
		pool.Exec(ctx2, `DELETE FROM jobs WHERE offering_id = $1`, offeringID)
		pool.Exec(ctx2, `DELETE FROM offerings WHERE id = $1`, offeringID)
		pool.Exec(ctx2, `DELETE FROM agents WHERE id IN ($1, $2)`, buyerID, sellerID)
	})

	repo := NewRepository(pool)
	transitions := NewTransitionService(pool)

	created, err := repo.insert(ctx, insertParams{
		OfferingID:    offeringID,
		OfferingSlug:  fmt.Sprintf("trend-analysis-%d", nonce),
		BuyerAgentID:  buyerID,
		SellerAgentID: sellerID,
		SellerWallet:  sellerWallet,
		Requirements:  json.RawMessage(`{"topic":"ai"}`),
		PriceUsdc:     5_000_000,
		PaymentTxHash: "0xdeadbeef",
		Status:        StatusAccepted,
		TTLMinutes:    60,
	})
	if err != nil {
		t.Fatalf("insert job: %v", err)
	}
	if created.Status != StatusAccepted || created.AcceptedAt == nil {
		t.Fatalf("paid insert must start accepted with accepted_at set: %+v", created)
	}
	if created.ExpiresAt.Before(time.Now().Add(55 * time.Minute)) {
		t.Fatalf("expiry not applied: %v", created.ExpiresAt)
	}

	// claimable listing sees the job
	claimable, err := repo.ListClaimable(ctx, []string{sellerWallet}, 10)
	if err != nil {
		t.Fatalf("list claimable: %v", err)
	}
	if len(claimable) != 1 || claimable[0].ID != created.ID {
		t.Fatalf("expected the new job claimable, got %+v", claimable)
	}

	// wrong wallet cannot claim
	if _, err := repo.Claim(ctx, created.ID, "0x0000000000000000000000000000000000000bad"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("foreign wallet claim: got %v, want ErrUnauthorized", err)
	}

	claimed, err := repo.Claim(ctx, created.ID, sellerWallet)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if claimed.Status != StatusDelivering || claimed.DeliveringAt == nil {
		t.Fatalf("claim must move to delivering: %+v", claimed)
	}

	// second claim loses the conditional update
	if _, err := repo.Claim(ctx, created.ID, sellerWallet); !errors.Is(err, ErrClaimConflict) {
		t.Fatalf("double claim: got %v, want ErrClaimConflict", err)
	}

	deliverables := json.RawMessage(`{"output":{"trend":"up"},"executionTimeMs":42}`)
	completed, err := transitions.Transition(ctx, TransitionParams{
		JobID:        created.ID,
		Target:       StatusCompleted,
		ActorWallet:  sellerWallet,
		Deliverables: deliverables,
	})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if completed.Status != StatusCompleted || completed.CompletedAt == nil {
		t.Fatalf("completion state wrong: %+v", completed)
	}

	// terminal jobs accept no further edges
	if _, err := transitions.Transition(ctx, TransitionParams{
		JobID: created.ID, Target: StatusDisputed, ActorWallet: sellerWallet,
	}); !errors.Is(err, ErrIllegalTransition) {
		t.Fatalf("post-terminal transition: got %v, want ErrIllegalTransition", err)
	}

	rated, err := repo.Rate(ctx, RateParams{
		JobID: created.ID, BuyerAgentID: buyerID, Rating: 5, Feedback: "sharp",
	})
	if err != nil {
		t.Fatalf("rate: %v", err)
	}
	if rated.Rating == nil || *rated.Rating != 5 {
		t.Fatalf("rating not persisted: %+v", rated)
	}

	// rating is once only
	if _, err := repo.Rate(ctx, RateParams{
		JobID: created.ID, BuyerAgentID: buyerID, Rating: 1,
	}); !errors.Is(err, ErrIllegalTransition) {
		t.Fatalf("double rating: got %v, want ErrIllegalTransition", err)
	}

	// audit trail: created, claim, completion, rating
	var eventTypes []string
	rows, err := pool.Query(ctx, `SELECT type FROM job_events WHERE job_id = $1 ORDER BY id`, created.ID)
	if err != nil {
		t.Fatalf("read events: %v", err)
	}
	defer rows.Close()
	for rows.Next() {
		var typ string
		if err := rows.Scan(&typ); err != nil {
			t.Fatalf("scan event: %v", err)
		}
		eventTypes = append(eventTypes, typ)
	}
	want := []string{EventCreated, EventStatusChanged, EventStatusChanged, EventRated}
	if len(eventTypes) != len(want) {
		t.Fatalf("event trail mismatch: got %v, want %v", eventTypes, want)
	}
	for i := range want {
		if eventTypes[i] != want[i] {
			t.Fatalf("event %d: got %s, want %s", i, eventTypes[i], want[i])
		}
	}
}

func tableExists(ctx context.Context, t *testing.T, pool *pgxpool.Pool, name string) bool {
	t.Helper()
	var one int
	err := pool.QueryRow(ctx, `SELECT 1 FROM information_schema.tables WHERE table_name = $1 LIMIT 1`, name).Scan(&one)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false
		}
		t.Fatalf("check table %s: %v", name, err)
	}
	return true
}
