package sandbox

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/facebookgo/clock"
	"github.com/georgemunganga/printa-storefront/internal/config"
	"github.com/georgemunganga/printa-storefront/internal/kit/errs"
	"github.com/georgemunganga/printa-storefront/internal/kit/observability"
	"github.com/georgemunganga/printa-storefront/internal/modules/catalog"
	"github.com/georgemunganga/printa-storefront/internal/modules/payment"
	"github.com/georgemunganga/printa-storefront/internal/modules/user"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/shopspring/decimal"
)

// Options assembles a sandbox server. DB selects the Postgres store; without it
// everything is kept in memory.
type Options struct {
	Config     config.SandboxConfig
	Currency   string
	Plan       payment.PhonePlan
	DB         *sql.DB
	Clock      clock.Clock
	Logger     *slog.Logger
	Metrics    *observability.Metrics
	BcryptCost int
	AccessLog  bool
	Gateways   GatewayRegistry
}

// Server is the assembled sandbox backend.
type Server struct {
	Service Service
	Tokens  *Tokens
	Hub     *Hub
	Users   user.Service
	Metrics *observability.Metrics

	router *chi.Mux
}

// NewServer wires stores, services and routes, and registers the demo customer.
func NewServer(ctx context.Context, opts Options) (*Server, error) {
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Metrics == nil {
		opts.Metrics = observability.NewMetrics()
	}
	if opts.Plan.CountryCode == "" {
		opts.Plan = payment.Zambia
	}
	outcome := OutcomeApprove
	if opts.Config.Outcome != "" {
		o, ok := ParseOutcome(opts.Config.Outcome)
		if !ok {
			return nil, errs.Newf(errs.ErrValidation, "unknown settlement outcome %q", opts.Config.Outcome)
		}
		outcome = o
	}

	// ── Stores ───────────────────────────────────────────────
	var (
		store    Store
		userRepo user.Repository
		products catalog.Repository
	)
	if opts.DB != nil {
		if err := Migrate(ctx, opts.DB, catalog.DefaultProducts()); err != nil {
			return nil, err
		}
		store = NewPostgresStore(opts.DB, opts.Clock)
		userRepo = user.NewPostgresRepository(opts.DB)
		products = catalog.NewPostgresRepository(opts.DB)
	} else {
		store = NewMemoryStore(opts.Clock)
		userRepo = user.NewMemoryRepository()
		products = catalog.NewMemoryRepository(catalog.DefaultProducts())
	}

	// ── Services ─────────────────────────────────────────────
	users := user.NewService(userRepo, opts.BcryptCost)
	tokens := NewTokens(users, opts.Config.JWTSecret, opts.Config.TokenTTL, opts.Clock)
	catalogService := catalog.NewService(products)
	var svc Service
	hub := NewHub(tokens, func(ctx context.Context, customerID, orderID string) bool {
		_, err := svc.GetOrder(ctx, customerID, orderID)
		return err == nil
	}, opts.Logger.With("component", "hub"))

	svcOpts := []Option{
		WithClock(opts.Clock),
		WithLogger(opts.Logger.With("component", "sandbox")),
		WithMetrics(opts.Metrics),
		WithPhonePlan(opts.Plan),
	}
	if opts.Gateways != nil {
		svcOpts = append(svcOpts, WithGateways(opts.Gateways))
	}
	svc = NewService(store, catalogService, hub, Config{
		Currency:    opts.Currency,
		FloatLimit:  decimal.NewFromFloat(opts.Config.FloatLimit),
		SettleAfter: opts.Config.SettleAfter,
		Outcome:     outcome,
	}, svcOpts...)

	if opts.Config.DemoEmail != "" {
		_, err := users.RegisterUser(ctx, opts.Config.DemoEmail, opts.Config.DemoPassword, "Demo", "Customer", "")
		if err != nil && !errs.IsValidation(err) {
			svc.Close()
			return nil, fmt.Errorf("register demo customer: %w", err)
		}
	}

	// ── Router ───────────────────────────────────────────────
	router := chi.NewRouter()
	if opts.AccessLog {
		router.Use(middleware.Logger)
	}
	router.Use(middleware.Recoverer)
	router.Use(middleware.RequestID)

	catalog.NewHandler(catalogService).RegisterRoutes(router)
	user.NewHandler(users).RegisterRoutes(router)
	NewHandler(svc, tokens, hub, opts.Metrics).RegisterRoutes(router)

	return &Server{
		Service: svc,
		Tokens:  tokens,
		Hub:     hub,
		Users:   users,
		Metrics: opts.Metrics,
		router:  router,
	}, nil
}

// Router returns the HTTP handler serving every sandbox route.
func (s *Server) Router() http.Handler { return s.router }

// Close stops settlements and drops realtime connections.
func (s *Server) Close() {
	s.Service.Close()
	s.Hub.Close()
}
