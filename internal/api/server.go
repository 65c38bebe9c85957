package api

import (
	"context"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"hospalloc/internal/auth"
	"hospalloc/internal/opt"
	"hospalloc/internal/solver"
	"hospalloc/internal/store"
	"hospalloc/internal/webhooks"
)

const defaultTimeBudget = 30 * time.Second

type Server struct {
	Store  store.Store
	Solver opt.Solver
	Pub    *webhooks.Publisher
	Auth   *auth.Verifier
	Broker EventBroker

	// TimeBudget caps solve duration when a request carries no budget.
	TimeBudget time.Duration
}

// NewServer creates a Server. If DATABASE_URL is unset, uses in-memory store.
func NewServer() (*Server, error) {
	dsn := os.Getenv("DATABASE_URL")
	var s store.Store
	if strings.TrimSpace(dsn) == "" {
		s = store.NewMemory()
	} else {
		sp, err := store.NewPostgres(dsn)
		if err != nil {
			return nil, err
		}
		// Run migrations (dev helper)
		if os.Getenv("DB_MIGRATE") != "false" {
			_ = sp.MigrateDir("db/migrations")
		}
		s = sp
	}
	// Broker selection
	var broker EventBroker
	if os.Getenv("REDIS_URL") != "" {
		if rb, err := NewRedisBroker(); err == nil {
			broker = rb
		} else {
			broker = NewBroker()
		}
	} else {
		broker = NewBroker()
	}
	budget := defaultTimeBudget
	if v := os.Getenv("SOLVE_TIME_BUDGET_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			budget = time.Duration(n) * time.Millisecond
		}
	}
	return &Server{
		Store:      s,
		Solver:     solver.New(),
		Pub:        webhooks.NewPublisher(s),
		Auth:       auth.NewVerifierFromEnv(),
		Broker:     broker,
		TimeBudget: budget,
	}, nil
}

func (s *Server) withTenant(r *http.Request) (context.Context, string) {
	// For now, get tenant from header; in production decode from JWT.
	tenant := r.Header.Get("X-Tenant-Id")
	if tenant == "" {
		tenant = "t_demo"
	}
	ctx := context.WithValue(r.Context(), ctxKeyTenant{}, tenant)
	return ctx, tenant
}

type ctxKeyTenant struct{}

// NewWebhookWorker creates a background worker for webhook deliveries.
func (s *Server) NewWebhookWorker() *webhooks.Worker {
	return webhooks.NewWorker(s.Store)
}
