package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/georgemunganga/printa-storefront/internal/config"
	"github.com/georgemunganga/printa-storefront/internal/kit/observability"
	"github.com/georgemunganga/printa-storefront/internal/modules/payment"
	"github.com/georgemunganga/printa-storefront/internal/sandbox"
	_ "github.com/lib/pq"
)

func main() {
	cfg, err := config.Load(os.Getenv("STOREFRONT_CONFIG"))
	if err != nil {
		log.Fatal(err)
	}
	logger := observability.NewLogger(cfg.Log.Level, cfg.Log.Format, os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ── Database ────────────────────────────────────────────
	if cfg.Sandbox.DatabaseURL == "" {
		cfg.Sandbox.DatabaseURL = os.Getenv("DATABASE_URL")
	}
	var db *sql.DB
	if cfg.Sandbox.DatabaseURL != "" {
		db, err = sql.Open("postgres", cfg.Sandbox.DatabaseURL)
		if err != nil {
			log.Fatal(err)
		}
		defer db.Close()

		if err := db.PingContext(ctx); err != nil {
			log.Fatal(err)
		}
		logger.Info("connected to the database")
	} else {
		logger.Warn("no database configured, keeping orders and payments in memory")
	}

	plan, ok := payment.PlanFor(cfg.Phone.CountryCode)
	if !ok {
		log.Fatalf("no numbering plan for country code %q", cfg.Phone.CountryCode)
	}

	// ── Sandbox backend ─────────────────────────────────────
	srv, err := sandbox.NewServer(ctx, sandbox.Options{
		Config:    cfg.Sandbox,
		Currency:  cfg.Checkout.Currency,
		Plan:      plan,
		DB:        db,
		Logger:    logger,
		AccessLog: true,
	})
	if err != nil {
		log.Fatal(err)
	}
	defer srv.Close()

	// ── Start Server ─────────────────────────────────────────
	addr := cfg.Sandbox.Addr
	if port := os.Getenv("APP_PORT"); port != "" {
		addr = ":" + port
	}
	httpServer := &http.Server{Addr: addr, Handler: srv.Router(), ReadHeaderTimeout: 10 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Close()
		httpServer.Shutdown(shutdownCtx)
	}()

	logger.Info("printa storefront sandbox starting", "addr", addr,
		"settle_after", cfg.Sandbox.SettleAfter, "outcome", cfg.Sandbox.Outcome)
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal(err)
	}
}
