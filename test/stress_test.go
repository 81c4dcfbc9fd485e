package test

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"math/rand"
	"os"
	"os/exec"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	"agenthire/test/actors"
	"agenthire/test/chaos"
	"agenthire/test/infra"
	"agenthire/test/oracles"
)

var (
	flDuration    = flag.Duration("duration", 90*time.Second, "how long to run stress")
	flConcurrency = flag.Int("concurrency", 8, "number of concurrent claimers")
	flSeed        = flag.Int64("seed", time.Now().UnixNano(), "random seed")
	flDSN         = flag.String("dsn", "", "existing Postgres DSN to reuse (avoids Docker)")
)

func seedRNG(seed int64) { rand.Seed(seed) }

// TestJobEngineConcurrency runs buyers, racing claimers, completers, raters,
// and an expiry sweeper against one offering while SQL oracles continuously
// check the lifecycle invariants.
func TestJobEngineConcurrency(t *testing.T) {
	flag.Parse()
	seed := *flSeed
	seedRNG(seed)

	var (
		pg         *infra.Postgres
		dsn        string
		err        error
		usedShared bool
	)
	ctx, cancel := context.WithTimeout(context.Background(), *flDuration+60*time.Second)
	defer cancel()

	switch {
	case *flDSN != "":
		dsn = *flDSN
		usedShared = true
		pg = &infra.Postgres{}
	case os.Getenv("STRESS_TEST_PG_DSN") != "":
		dsn = os.Getenv("STRESS_TEST_PG_DSN")
		usedShared = true
		pg = &infra.Postgres{}
	default:
		if dockerAvailable(ctx) {
			pg, dsn, err = infra.LaunchPostgres(ctx)
			if err != nil {
				t.Fatalf("launch postgres: %v", err)
			}
		} else {
			dsn, err = infra.LocalPostgres(ctx)
			if err != nil {
				t.Fatalf("local postgres fallback: %v", err)
			}
			pg = &infra.Postgres{}
		}
	}
	defer pg.Stop(context.Background())

	pool, teardown, err := infra.PrepareDatabase(ctx, dsn, usedShared)
	if err != nil {
		t.Fatalf("prepare database: %v", err)
	}
	defer pool.Close()
	defer func() {
		if err := teardown(context.Background()); err != nil {
			t.Logf("teardown warning: %v", err)
		}
	}()

	seedData := mustSeed(t, ctx, pool)

	g, ctx2 := errgroup.WithContext(ctx)
	stop := make(chan struct{})

	// one buyer feeding jobs, many claimers racing for them
	g.Go(func() error {
		return actors.Buyer(ctx2, pool, seedData.offeringID, seedData.offeringSlug,
			seedData.buyerID, seedData.sellerID, seedData.sellerWallet, stop)
	})
	for i := 0; i < *flConcurrency; i++ {
		g.Go(func() error { return actors.Claimer(ctx2, pool, seedData.sellerWallet, stop) })
	}
	g.Go(func() error { return actors.Completer(ctx2, pool, seedData.sellerWallet, stop) })
	g.Go(func() error { return actors.Completer(ctx2, pool, seedData.sellerWallet, stop) })
	g.Go(func() error { return actors.Rater(ctx2, pool, seedData.buyerID, stop) })
	g.Go(func() error { return actors.Expirer(ctx2, pool, stop) })

	// chaos: kill random backend connections while the actors run
	go chaos.TerminateRandomBackend(ctx2, pool, stop)

	deadline := time.Now().Add(*flDuration)
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	var failed bool
loop:
	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			break loop
		case <-ticker.C:
			name, row, err := oracles.Run(ctx2, pool)
			if err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					break loop
				}
				t.Fatalf("oracle error: %v", err)
			}
			if name != "" {
				failed = true
				dumpRecent(t, ctx2, pool)
				t.Fatalf("Oracle %s failed. First row: %s (seed=%d)", name, row, seed)
			}
		}
	}

	close(stop)
	if err := g.Wait(); err != nil && !failed {
		if !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			t.Fatalf("actors errored: %v", err)
		}
	}
}

func dockerAvailable(ctx context.Context) bool {
	if _, err := exec.LookPath("docker"); err != nil {
		return false
	}
	c := exec.CommandContext(ctx, "docker", "info")
	c.Stdout = io.Discard
	c.Stderr = io.Discard
	return c.Run() == nil
}

type seedIDs struct {
	buyerID      string
	sellerID     string
	sellerWallet string
	offeringID   string
	offeringSlug string
}

func mustSeed(t *testing.T, ctx context.Context, pool *pgxpool.Pool) seedIDs {
	t.Helper()
	var s seedIDs
	nonce := rand.Int63()
	s.sellerWallet = fmt.Sprintf("0x%040d", nonce%1_000_000_000)
	s.offeringSlug = fmt.Sprintf("trend-analysis-%d", nonce)

	if err := pool.QueryRow(ctx, `
		INSERT INTO agents (handle, wallet_address, secret_hash, role)
		VALUES ($1, $2, 'x', 'buyer') RETURNING id
	`, fmt.Sprintf("stress-buyer-%d", nonce), fmt.Sprintf("0xb%039d", nonce%1_000_000_000)).Scan(&s.buyerID); err != nil {
		t.Fatalf("seed buyer: %v", err)
	}
	if err := pool.QueryRow(ctx, `
		INSERT INTO agents (handle, wallet_address, secret_hash, role)
		VALUES ($1, $2, 'x', 'seller') RETURNING id
	`, fmt.Sprintf("stress-seller-%d", nonce), s.sellerWallet).Scan(&s.sellerID); err != nil {
		t.Fatalf("seed seller: %v", err)
	}
	if err := pool.QueryRow(ctx, `
		INSERT INTO offerings (slug, seller_agent_id, seller_wallet, title, category, price_usdc)
		VALUES ($1, $2, $3, 'Trend Analysis', 'analytics', 5000000) RETURNING id
	`, s.offeringSlug, s.sellerID, s.sellerWallet).Scan(&s.offeringID); err != nil {
		t.Fatalf("seed offering: %v", err)
	}
	return s
}

func dumpRecent(t *testing.T, ctx context.Context, pool *pgxpool.Pool) {
	t.Helper()
	type dump struct {
		name string
		sql  string
	}
	dumps := []dump{
		{"jobs", `SELECT id, status, price_usdc, rating, created_at, delivering_at, completed_at FROM jobs ORDER BY created_at DESC LIMIT 50`},
		{"job_events", `SELECT id, job_id, type, actor_wallet, created_at FROM job_events ORDER BY id DESC LIMIT 50`},
	}
	for _, d := range dumps {
		rows, err := pool.Query(ctx, d.sql)
		if err != nil {
			t.Logf("dump %s error: %v", d.name, err)
			continue
		}
		cols := rows.FieldDescriptions()
		t.Logf("-- %s --", d.name)
		for rows.Next() {
			vals, _ := rows.Values()
			buf := make([]any, 0, len(vals))
			for i := range vals {
				buf = append(buf, fmt.Sprintf("%s=%v", string(cols[i].Name), vals[i]))
			}
			t.Logf("%s", buf)
		}
		rows.Close()
	}
}
