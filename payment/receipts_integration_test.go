package payment

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"agenthire/usdc"
)

// TestReceipts_Integration connects to a real PostgreSQL via DATABASE_URL and
// checks that verified transfers land in the audit table and come back newest
// first for the paying wallet.
func TestReceipts_Integration(t *testing.T) {
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

	var haveSchema bool
	if err := pool.QueryRow(ctx, `SELECT EXISTS (
		SELECT 1 FROM information_schema.tables WHERE table_name = 'payment_receipts'
	)`).Scan(&haveSchema); err != nil || !haveSchema {
		t.Skip("database schema missing; apply files under migrations/ first")
	}

	nonce := time.Now().UnixNano()
	payer := fmt.Sprintf("0x%040d", nonce%1_000_000_000)
	payee := fmt.Sprintf("0xe%039d", nonce%1_000_000_000)

	t.Cleanup(func() {
		ctx2, cancel2 := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel2()
		pool.Exec(ctx2, `DELETE FROM payment_receipts WHERE payer = $1`, payer)
	})

	repo := NewReceiptRepository(pool)

	txHash := "0xfeedface"
	first, err := repo.Insert(ctx, Receipt{
		Payer:     payer,
		Payee:     payee,
		Amount:    usdc.Amount(5_000_000),
		Signature: "0xsig1",
		Endpoint:  "create-job:trend-analysis",
		TxHash:    &txHash,
	})
	if err != nil {
		t.Fatalf("insert first receipt: %v", err)
	}
	if first.ID == "" || first.VerifiedAt.IsZero() {
		t.Fatalf("insert must return generated id and timestamp: %+v", first)
	}

	// keep verified_at strictly ordered for the newest-first assertion
	time.Sleep(10 * time.Millisecond)

	second, err := repo.Insert(ctx, Receipt{
		Payer:     payer,
		Payee:     payee,
		Amount:    usdc.Amount(3_000_000),
		Signature: "0xsig2",
		Endpoint:  "create-job:image-generation",
	})
	if err != nil {
		t.Fatalf("insert second receipt: %v", err)
	}

	got, err := repo.ListByPayer(ctx, payer, 10)
	if err != nil {
		t.Fatalf("list by payer: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 receipts, got %d", len(got))
	}
	if got[0].ID != second.ID {
		t.Errorf("listing must be newest first, got %v then %v", got[0].ID, got[1].ID)
	}
	if got[1].TxHash == nil || *got[1].TxHash != txHash {
		t.Errorf("tx hash lost in round trip: %+v", got[1])
	}
	if got[0].TxHash != nil {
		t.Errorf("missing tx hash must come back nil, got %q", *got[0].TxHash)
	}
	if got[1].Amount != usdc.Amount(5_000_000) {
		t.Errorf("amount lost in round trip: %d", got[1].Amount)
	}

	other, err := repo.ListByPayer(ctx, payee, 10)
	if err != nil {
		t.Fatalf("list by other wallet: %v", err)
	}
	if len(other) != 0 {
		t.Errorf("listing must be scoped to the payer, got %d rows", len(other))
	}
}
