package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"hospalloc/internal/metrics"
	"hospalloc/internal/model"
	"hospalloc/internal/opt"
	"hospalloc/internal/store"
)

// InstancesHandler handles POST/GET /v1/instances
func (s *Server) InstancesHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		p := s.getPrincipal(r)
		if !p.CanSolve() {
			writeProblem(w, http.StatusForbidden, "Forbidden", "planner or admin required", r.URL.Path)
			return
		}
		var in model.Instance
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
			return
		}
		if err := validateInstance(&in); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid instance", err.Error(), r.URL.Path)
			return
		}
		created, err := s.Store.CreateInstance(r.Context(), p.Tenant, in)
		if err != nil {
			writeProblem(w, http.StatusInternalServerError, "Create instance failed", err.Error(), r.URL.Path)
			return
		}
		writeJSON(w, http.StatusCreated, created)
	case http.MethodGet:
		_, tenant := s.withTenant(r)
		cursor := r.URL.Query().Get("cursor")
		limit := 100
		if v := r.URL.Query().Get("limit"); v != "" {
			fmt.Sscanf(v, "%d", &limit)
		}
		items, next, err := s.Store.ListInstances(r.Context(), tenant, cursor, limit)
		if err != nil {
			writeProblem(w, http.StatusInternalServerError, "List instances failed", err.Error(), r.URL.Path)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": items, "nextCursor": next})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// InstanceByIDHandler handles GET/DELETE /v1/instances/{id}
func (s *Server) InstanceByIDHandler(w http.ResponseWriter, r *http.Request) {
	if !strings.HasPrefix(r.URL.Path, "/v1/instances/") {
		writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path)
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/v1/instances/")
	if id == "" || strings.Contains(id, "/") {
		writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path)
		return
	}
	_, tenant := s.withTenant(r)
	switch r.Method {
	case http.MethodGet:
		in, err := s.Store.GetInstance(r.Context(), tenant, id)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path)
				return
			}
			writeProblem(w, http.StatusInternalServerError, "Get instance failed", err.Error(), r.URL.Path)
			return
		}
		writeJSON(w, http.StatusOK, in)
	case http.MethodDelete:
		p := s.getPrincipal(r)
		if !p.IsAdmin() {
			writeProblem(w, http.StatusForbidden, "Forbidden", "admin required", r.URL.Path)
			return
		}
		if err := s.Store.DeleteInstance(r.Context(), tenant, id); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path)
				return
			}
			writeProblem(w, http.StatusInternalServerError, "Delete instance failed", err.Error(), r.URL.Path)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// SolveHandler handles POST /v1/solve
func (s *Server) SolveHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	p := s.getPrincipal(r)
	if !p.CanSolve() {
		writeProblem(w, http.StatusForbidden, "Forbidden", "planner or admin required", r.URL.Path)
		return
	}
	var req model.SolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
		return
	}
	if err := validateSolveRequest(&req); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid solve request", err.Error(), r.URL.Path)
		return
	}
	if req.TenantID == "" {
		req.TenantID = p.Tenant
	}

	var in model.Instance
	if req.InstanceID != "" {
		var err error
		in, err = s.Store.GetInstance(r.Context(), req.TenantID, req.InstanceID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				writeProblem(w, http.StatusNotFound, "Instance not found", req.InstanceID, r.URL.Path)
				return
			}
			writeProblem(w, http.StatusInternalServerError, "Get instance failed", err.Error(), r.URL.Path)
			return
		}
	} else {
		in = *req.Instance
	}

	budget := s.TimeBudget
	if req.TimeBudgetMs > 0 {
		budget = time.Duration(req.TimeBudgetMs) * time.Millisecond
	}
	ctx, cancel := context.WithTimeout(r.Context(), budget)
	defer cancel()

	res, err := opt.Run(ctx, problemFromInstance(in), s.Solver)
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid instance", err.Error(), r.URL.Path)
		return
	}

	rec := recordFromResult(req.TenantID, req.InstanceID, in, res)
	saved, err := s.Store.SaveSolve(r.Context(), rec)
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "Save solve failed", err.Error(), r.URL.Path)
		return
	}

	metrics.SolvesTotal.WithLabelValues(saved.Status).Inc()
	metrics.SolveDuration.WithLabelValues(saved.Status).Observe(res.Duration.Seconds())
	metrics.SolveNodes.Observe(float64(res.Nodes))

	eventType := "solve.completed"
	if res.Status != opt.StatusOptimal {
		eventType = "solve.failed"
	}
	data := map[string]any{
		"solveId":    saved.ID,
		"instanceId": saved.InstanceID,
		"status":     saved.Status,
		"objective":  saved.Objective,
		"ts":         time.Now().UTC().Format(time.RFC3339),
	}
	s.Broker.Publish(saved.ID, SSEEvent{Type: eventType, Data: data})
	s.Broker.Publish("tenant:"+req.TenantID, SSEEvent{Type: eventType, Data: data})
	s.Pub.Emit(r.Context(), req.TenantID, eventType, data)

	writeJSON(w, http.StatusOK, saved)
}

// problemFromInstance maps the stored document onto the optimizer's
// self-contained problem value.
func problemFromInstance(in model.Instance) opt.Problem {
	p := opt.Problem{
		Counties:     make([]opt.County, len(in.Counties)),
		Hospitals:    make([]opt.Hospital, len(in.Hospitals)),
		PerDistance:  in.Costs.PerDistance,
		MaxExpansion: in.Costs.MaxExpansion,
		FixedSetup:   in.Costs.FixedSetup,
		PerUnit:      in.Costs.PerUnit,
	}
	for i, c := range in.Counties {
		p.Counties[i] = opt.County{ID: c.ID, X: c.X, Y: c.Y, Demand: c.Demand}
	}
	for j, h := range in.Hospitals {
		p.Hospitals[j] = opt.Hospital{ID: h.ID, X: h.X, Y: h.Y, Capacity: h.BaseCapacity}
	}
	return p
}

func recordFromResult(tenantID, instanceID string, in model.Instance, res opt.Result) model.SolveRecord {
	rec := model.SolveRecord{
		TenantID:   tenantID,
		InstanceID: instanceID,
		Status:     res.Status.String(),
		Detail:     res.Detail,
		Objective:  res.Objective,
		Nodes:      res.Nodes,
		DurationMs: res.Duration.Milliseconds(),
		Breakdown: model.CostBreakdown{
			Travel:   res.Breakdown.Travel,
			Fixed:    res.Breakdown.Fixed,
			Variable: res.Breakdown.Variable,
			Total:    res.Breakdown.Total,
		},
	}
	for _, a := range res.Plan {
		rec.Plan = append(rec.Plan, model.Assignment{
			CountyID:   in.Counties[a.County].ID,
			HospitalID: in.Hospitals[a.Hospital].ID,
			Amount:     a.Amount,
		})
	}
	for _, e := range res.Expansions {
		rec.Expansions = append(rec.Expansions, model.Expansion{
			HospitalID: in.Hospitals[e.Hospital].ID,
			Active:     e.Active,
			Units:      e.Units,
		})
	}
	return rec
}

// SolvesHandler handles GET /v1/solves
func (s *Server) SolvesHandler(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/v1/solves" {
		writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path)
		return
	}
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	_, tenant := s.withTenant(r)
	instanceID := r.URL.Query().Get("instanceId")
	cursor := r.URL.Query().Get("cursor")
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		fmt.Sscanf(v, "%d", &limit)
	}
	items, next, err := s.Store.ListSolves(r.Context(), tenant, instanceID, cursor, limit)
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "List solves failed", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items, "nextCursor": next})
}

// SolveByIDHandler handles GET /v1/solves/{id} and the per-solve SSE
// stream at /v1/solves/{id}/events/stream.
func (s *Server) SolveByIDHandler(w http.ResponseWriter, r *http.Request) {
	if !strings.HasPrefix(r.URL.Path, "/v1/solves/") {
		writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path)
		return
	}
	rest := strings.TrimPrefix(r.URL.Path, "/v1/solves/")
	parts := strings.Split(rest, "/")
	id := parts[0]
	if id == "" {
		writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path)
		return
	}
	if len(parts) == 3 && parts[1] == "events" && parts[2] == "stream" {
		s.streamEvents(w, r, id)
		return
	}
	if len(parts) != 1 {
		writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path)
		return
	}
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	_, tenant := s.withTenant(r)
	rec, err := s.Store.GetSolve(r.Context(), tenant, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path)
			return
		}
		writeProblem(w, http.StatusInternalServerError, "Get solve failed", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// EventsStreamHandler handles GET /v1/events/stream: tenant-wide solve
// events over SSE.
func (s *Server) EventsStreamHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	_, tenant := s.withTenant(r)
	s.streamEvents(w, r, "tenant:"+tenant)
}

func (s *Server) streamEvents(w http.ResponseWriter, r *http.Request, topic string) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeProblem(w, http.StatusInternalServerError, "Streaming unsupported", "", r.URL.Path)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	ch := s.Broker.Subscribe(topic)
	defer s.Broker.Unsubscribe(topic, ch)
	// initial heartbeat
	fmt.Fprintf(w, "event: heartbeat\n")
	fmt.Fprintf(w, "data: {\"topic\":\"%s\",\"ts\":\"%s\"}\n\n", topic, time.Now().Format(time.RFC3339))
	flusher.Flush()
	notify := r.Context().Done()
	for {
		select {
		case <-notify:
			return
		case evt := <-ch:
			b, _ := json.Marshal(evt.Data)
			fmt.Fprintf(w, "event: %s\n", evt.Type)
			fmt.Fprintf(w, "data: %s\n\n", string(b))
			flusher.Flush()
		case <-time.After(15 * time.Second):
			fmt.Fprintf(w, "event: heartbeat\n")
			fmt.Fprintf(w, "data: {\"topic\":\"%s\",\"ts\":\"%s\"}\n\n", topic, time.Now().Format(time.RFC3339))
			flusher.Flush()
		}
	}
}

// SubscriptionsHandler handles POST/GET /v1/subscriptions
func (s *Server) SubscriptionsHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		p := s.getPrincipal(r)
		if !p.IsAdmin() {
			writeProblem(w, http.StatusForbidden, "Forbidden", "admin required", r.URL.Path)
			return
		}
		var req model.SubscriptionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
			return
		}
		if req.TenantID == "" {
			req.TenantID = p.Tenant
		}
		if req.URL == "" || len(req.Events) == 0 {
			writeProblem(w, http.StatusBadRequest, "Invalid subscription", "url and events are required", r.URL.Path)
			return
		}
		sub, err := s.Store.CreateSubscription(r.Context(), req)
		if err != nil {
			writeProblem(w, http.StatusInternalServerError, "Create subscription failed", err.Error(), r.URL.Path)
			return
		}
		writeJSON(w, http.StatusCreated, sub)
	case http.MethodGet:
		p := s.getPrincipal(r)
		if !p.IsAdmin() {
			writeProblem(w, http.StatusForbidden, "Forbidden", "admin required", r.URL.Path)
			return
		}
		cursor := r.URL.Query().Get("cursor")
		limit := 100
		if v := r.URL.Query().Get("limit"); v != "" {
			fmt.Sscanf(v, "%d", &limit)
		}
		items, next, err := s.Store.ListSubscriptions(r.Context(), p.Tenant, cursor, limit)
		if err != nil {
			writeProblem(w, http.StatusInternalServerError, "List subscriptions failed", err.Error(), r.URL.Path)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": items, "nextCursor": next})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// Subscription delete (admin)
func (s *Server) SubscriptionByIDHandler(w http.ResponseWriter, r *http.Request) {
	if !strings.HasPrefix(r.URL.Path, "/v1/subscriptions/") {
		writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path)
		return
	}
	if r.Method != http.MethodDelete {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	p := s.getPrincipal(r)
	if !p.IsAdmin() {
		writeProblem(w, http.StatusForbidden, "Forbidden", "admin required", r.URL.Path)
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/v1/subscriptions/")
	if err := s.Store.DeleteSubscription(r.Context(), p.Tenant, id); err != nil {
		writeProblem(w, http.StatusInternalServerError, "Delete subscription failed", err.Error(), r.URL.Path)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Admin: webhook deliveries list and retry
func (s *Server) WebhookDeliveriesHandler(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/v1/admin/webhook-deliveries" {
		writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path)
		return
	}
	p := s.getPrincipal(r)
	if !p.IsAdmin() {
		writeProblem(w, http.StatusForbidden, "Forbidden", "admin required", r.URL.Path)
		return
	}
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	status := r.URL.Query().Get("status")
	cursor := r.URL.Query().Get("cursor")
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		fmt.Sscanf(v, "%d", &limit)
	}
	items, next, err := s.Store.ListWebhookDeliveries(r.Context(), p.Tenant, status, cursor, limit)
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "List deliveries failed", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items, "nextCursor": next})
}

func (s *Server) WebhookDeliveryRetryHandler(w http.ResponseWriter, r *http.Request) {
	if !strings.HasPrefix(r.URL.Path, "/v1/admin/webhook-deliveries/") || !strings.HasSuffix(r.URL.Path, "/retry") {
		writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path)
		return
	}
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	p := s.getPrincipal(r)
	if !p.IsAdmin() {
		writeProblem(w, http.StatusForbidden, "Forbidden", "admin required", r.URL.Path)
		return
	}
	id := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/v1/admin/webhook-deliveries/"), "/retry")
	if err := s.Store.RetryWebhookDelivery(r.Context(), p.Tenant, id); err != nil {
		writeProblem(w, http.StatusInternalServerError, "Retry delivery failed", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]int{"accepted": 1})
}

// Health
func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) ReadyHandler(w http.ResponseWriter, r *http.Request) {
	// Check DB connectivity when using Postgres store
	type pinger interface{ Ping(ctx context.Context) error }
	if pg, ok := s.Store.(pinger); ok {
		ctx, cancel := context.WithTimeout(r.Context(), 500*time.Millisecond)
		defer cancel()
		if err := pg.Ping(ctx); err != nil {
			writeProblem(w, http.StatusServiceUnavailable, "Not Ready", err.Error(), r.URL.Path)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
