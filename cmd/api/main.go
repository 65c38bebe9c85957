package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"hospalloc/internal/api"
	"hospalloc/internal/metrics"
	"hospalloc/internal/model"
)

func main() {
	srv, err := api.NewServer()
	if err != nil {
		log.Fatalf("failed to init server: %v", err)
	}
	metrics.RegisterDefault()

	if path := os.Getenv("SEED_INSTANCE"); path != "" {
		seedInstance(srv, path)
	}

	limiter := api.NewRateLimiterFromEnv()

	mux := http.NewServeMux()
	handle := func(pattern string, h http.HandlerFunc) {
		mux.HandleFunc(pattern, api.MetricsMiddleware(pattern, h))
	}

	// Instances
	handle("/v1/instances", srv.InstancesHandler)
	handle("/v1/instances/", srv.InstanceByIDHandler)

	// Solving
	handle("/v1/solve", limiter.Wrap(srv, srv.SolveHandler))
	handle("/v1/solves", srv.SolvesHandler)
	handle("/v1/solves/", srv.SolveByIDHandler) // includes /events/stream
	handle("/v1/events/stream", srv.EventsStreamHandler)

	// Subscriptions
	handle("/v1/subscriptions", srv.SubscriptionsHandler)
	handle("/v1/subscriptions/", srv.SubscriptionByIDHandler)

	// Admin
	handle("/v1/admin/webhook-deliveries", srv.WebhookDeliveriesHandler)
	handle("/v1/admin/webhook-deliveries/", srv.WebhookDeliveryRetryHandler)

	// WebSocket solve events
	mux.HandleFunc("/v1/ws", srv.SolveEventsWSHandler)

	// Health and introspection
	handle("/healthz", srv.HealthHandler)
	handle("/readyz", srv.ReadyHandler)
	handle("/version", srv.VersionHandler)
	mux.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

	addr := ":8080"
	if v := os.Getenv("PORT"); v != "" {
		addr = ":" + v
	}

	httpSrv := &http.Server{
		Addr:              addr,
		Handler:           logMiddleware(mux),
		ReadHeaderTimeout: 5 * time.Second,
	}

	log.Printf("API listening on %s", addr)
	// Start webhook worker
	if srv.Pub != nil {
		worker := srv.NewWebhookWorker()
		worker.Start()
	}
	if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("server error: %v", err)
	}
}

func seedInstance(srv *api.Server, path string) {
	in, err := model.LoadInstance(path)
	if err != nil {
		log.Printf("seed instance: %v", err)
		return
	}
	tenant := in.TenantID
	if tenant == "" {
		tenant = "t_demo"
	}
	created, err := srv.Store.CreateInstance(context.Background(), tenant, in)
	if err != nil {
		log.Printf("seed instance: %v", err)
		return
	}
	log.Printf("seeded instance %s (%s)", created.ID, created.Name)
}

func logMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		dur := time.Since(start)
		log.Printf("%s %s %s %v", r.RemoteAddr, r.Method, r.URL.Path, dur)
	})
}
