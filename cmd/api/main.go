package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"agenthire/capability"
	"agenthire/db"
	"agenthire/executor"
	"agenthire/httpapi"
	"agenthire/identity"
	"agenthire/job"
	"agenthire/offering"
	"agenthire/payment"
)

// sellerSource adapts the identity repository to the executor's per-cycle
// agent snapshot.
type sellerSource struct {
	repo *identity.PGRepository
}

func (s *sellerSource) LocalAgents(ctx context.Context) ([]executor.LocalAgent, error) {
	agents, err := s.repo.ListLocalSellers(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]executor.LocalAgent, 0, len(agents))
	for _, a := range agents {
		out = append(out, executor.LocalAgent{AgentID: a.ID, Wallet: a.WalletAddress})
	}
	return out, nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.NewPool(ctx, os.Getenv("DATABASE_URL"))
	if err != nil {
		log.Fatalf("bootstrap database pool: %v", err)
	}
	defer pool.Close()

	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		log.Fatalf("JWT_SECRET is required")
	}

	identityRepo := identity.NewRepository(pool)
	identityService := identity.NewService(identityRepo, jwtSecret)

	offeringRepo := offering.NewRepository(pool)
	offeringService := offering.NewService(offeringRepo)

	facilitatorURL := os.Getenv("FACILITATOR_URL")
	if facilitatorURL == "" {
		log.Fatalf("FACILITATOR_URL is required")
	}
	gate := payment.NewGate(payment.NewHTTPFacilitator(facilitatorURL), payment.NewReceiptRepository(pool))

	jobRepo := job.NewRepository(pool)
	creator := job.NewCreateService(offeringService, gate, jobRepo)
	transitions := job.NewTransitionService(pool)

	registry := capability.NewRegistry()
	capability.RegisterBuiltins(registry)

	worker := executor.NewWorker(
		executor.DefaultConfig(),
		&sellerSource{repo: identityRepo},
		jobRepo,
		transitions,
		offeringRepo,
		registry,
		executor.NewRateWindow(time.Hour, envInt("EXECUTOR_HOURLY_LIMIT", 120)),
	)

	server := httpapi.NewServer(identityService, offeringService, creator, jobRepo, transitions, offeringRepo)
	httpServer := &http.Server{
		Addr:              ":" + envOr("PORT", "8080"),
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Printf("[api] listening on %s", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return worker.Run(ctx)
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && err != context.Canceled {
		log.Fatalf("shutdown: %v", err)
	}
	log.Printf("[api] stopped")
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		log.Fatalf("%s must be an integer, got %q", key, raw)
	}
	return v
}
