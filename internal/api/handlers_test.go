package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"hospalloc/internal/model"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	s, err := NewServer()
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	return s
}

func testInstanceBody() []byte {
	return []byte(`{
		"name": "tiny",
		"counties": [{"id":"c1","x":0,"y":0,"demand":10},{"id":"c2","x":4,"y":0,"demand":5}],
		"hospitals": [{"id":"h1","x":0,"y":3,"baseCapacity":12},{"id":"h2","x":4,"y":3,"baseCapacity":8}],
		"costs": {"perDistance":1,"maxExpansion":5,"fixedSetup":100,"perUnit":10}
	}`)
}

func TestHealthReady(t *testing.T) {
	s := newTestServer(t)
	rr := httptest.NewRecorder()
	s.HealthHandler(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rr.Code != 200 {
		t.Fatalf("health: got %d", rr.Code)
	}
	rr = httptest.NewRecorder()
	s.ReadyHandler(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rr.Code != 200 {
		t.Fatalf("ready: got %d", rr.Code)
	}
}

func TestInstancesCreateGetList(t *testing.T) {
	s := newTestServer(t)
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/instances", bytes.NewReader(testInstanceBody()))
	req.Header.Set("Content-Type", "application/json")
	s.InstancesHandler(rr, req)
	if rr.Code != http.StatusCreated {
		t.Fatalf("create: got %d: %s", rr.Code, rr.Body.String())
	}
	var created model.Instance
	if err := json.Unmarshal(rr.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if created.ID == "" {
		t.Fatal("created instance has no id")
	}

	rr = httptest.NewRecorder()
	s.InstanceByIDHandler(rr, httptest.NewRequest(http.MethodGet, "/v1/instances/"+created.ID, nil))
	if rr.Code != 200 {
		t.Fatalf("get: got %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	s.InstancesHandler(rr, httptest.NewRequest(http.MethodGet, "/v1/instances?limit=5", nil))
	if rr.Code != 200 {
		t.Fatalf("list: got %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	s.InstanceByIDHandler(rr, httptest.NewRequest(http.MethodGet, "/v1/instances/nope", nil))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("missing instance: got %d", rr.Code)
	}
}

func TestInstanceCreateRejectsInvalid(t *testing.T) {
	s := newTestServer(t)
	body := []byte(`{"counties":[],"hospitals":[{"id":"h1","baseCapacity":1}],"costs":{}}`)
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/instances", bytes.NewReader(body))
	s.InstancesHandler(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestSolveInline(t *testing.T) {
	s := newTestServer(t)
	body := []byte(`{"instance":` + string(testInstanceBody()) + `}`)
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/solve", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	s.SolveHandler(rr, req)
	if rr.Code != 200 {
		t.Fatalf("solve: got %d: %s", rr.Code, rr.Body.String())
	}
	var rec model.SolveRecord
	if err := json.Unmarshal(rr.Body.Bytes(), &rec); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if rec.Status != "optimal" {
		t.Fatalf("status %s, detail %s", rec.Status, rec.Detail)
	}
	total := 0.0
	for _, a := range rec.Plan {
		total += a.Amount
	}
	if total < 14.9 || total > 15.1 {
		t.Fatalf("plan places %g patients, want 15", total)
	}

	// stored and retrievable
	rr = httptest.NewRecorder()
	s.SolveByIDHandler(rr, httptest.NewRequest(http.MethodGet, "/v1/solves/"+rec.ID, nil))
	if rr.Code != 200 {
		t.Fatalf("get solve: got %d", rr.Code)
	}
	rr = httptest.NewRecorder()
	s.SolvesHandler(rr, httptest.NewRequest(http.MethodGet, "/v1/solves", nil))
	if rr.Code != 200 {
		t.Fatalf("list solves: got %d", rr.Code)
	}
}

func TestSolveStoredInstance(t *testing.T) {
	s := newTestServer(t)
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/instances", bytes.NewReader(testInstanceBody()))
	s.InstancesHandler(rr, req)
	if rr.Code != http.StatusCreated {
		t.Fatalf("create: got %d", rr.Code)
	}
	var created model.Instance
	_ = json.Unmarshal(rr.Body.Bytes(), &created)

	body, _ := json.Marshal(map[string]any{"instanceId": created.ID})
	rr = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/v1/solve", bytes.NewReader(body))
	s.SolveHandler(rr, req)
	if rr.Code != 200 {
		t.Fatalf("solve: got %d: %s", rr.Code, rr.Body.String())
	}
	var rec model.SolveRecord
	_ = json.Unmarshal(rr.Body.Bytes(), &rec)
	if rec.InstanceID != created.ID {
		t.Fatalf("record instanceId %q, want %q", rec.InstanceID, created.ID)
	}
}

func TestSolveRejectedWhenDemandExceedsCeiling(t *testing.T) {
	s := newTestServer(t)
	body := []byte(`{"instance":{
		"counties":[{"id":"c1","demand":100}],
		"hospitals":[{"id":"h1","baseCapacity":10}],
		"costs":{"perDistance":1,"maxExpansion":5,"fixedSetup":1,"perUnit":1}
	}}`)
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/solve", bytes.NewReader(body))
	s.SolveHandler(rr, req)
	if rr.Code != 200 {
		t.Fatalf("solve: got %d: %s", rr.Code, rr.Body.String())
	}
	var rec model.SolveRecord
	_ = json.Unmarshal(rr.Body.Bytes(), &rec)
	if rec.Status != "rejected" {
		t.Fatalf("status %s, want rejected", rec.Status)
	}
	if len(rec.Plan) != 0 {
		t.Fatalf("rejected solve must carry no plan, got %d assignments", len(rec.Plan))
	}
}

func TestSolveRequestValidation(t *testing.T) {
	s := newTestServer(t)
	cases := []string{
		`{}`,
		`{"instanceId":"a","instance":{"counties":[{"id":"c","demand":1}],"hospitals":[{"id":"h","baseCapacity":1}],"costs":{}}}`,
		`{"instanceId":"a","timeBudgetMs":-5}`,
	}
	for _, c := range cases {
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/v1/solve", bytes.NewReader([]byte(c)))
		s.SolveHandler(rr, req)
		if rr.Code != http.StatusBadRequest {
			t.Fatalf("body %s: expected 400, got %d", c, rr.Code)
		}
	}
}

func TestSolveForbiddenForViewer(t *testing.T) {
	s := newTestServer(t)
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/solve", bytes.NewReader([]byte(`{}`)))
	req.Header.Set("X-Role", "viewer")
	s.SolveHandler(rr, req)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rr.Code)
	}
}

func TestSubscriptionsCreateListDelete(t *testing.T) {
	s := newTestServer(t)
	body := []byte(`{"url":"http://example.com/hook","events":["solve.completed"],"secret":"s"}`)
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/subscriptions", bytes.NewReader(body))
	s.SubscriptionsHandler(rr, req)
	if rr.Code != http.StatusCreated {
		t.Fatalf("create sub: got %d: %s", rr.Code, rr.Body.String())
	}
	var sub model.Subscription
	_ = json.Unmarshal(rr.Body.Bytes(), &sub)

	rr = httptest.NewRecorder()
	s.SubscriptionsHandler(rr, httptest.NewRequest(http.MethodGet, "/v1/subscriptions", nil))
	if rr.Code != 200 {
		t.Fatalf("list subs: got %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	s.SubscriptionByIDHandler(rr, httptest.NewRequest(http.MethodDelete, "/v1/subscriptions/"+sub.ID, nil))
	if rr.Code != http.StatusNoContent {
		t.Fatalf("delete sub: got %d", rr.Code)
	}
}

func TestSolveEmitsWebhook(t *testing.T) {
	s := newTestServer(t)
	body := []byte(`{"url":"http://example.com/hook","events":["solve.completed"],"secret":"s"}`)
	rr := httptest.NewRecorder()
	s.SubscriptionsHandler(rr, httptest.NewRequest(http.MethodPost, "/v1/subscriptions", bytes.NewReader(body)))
	if rr.Code != http.StatusCreated {
		t.Fatalf("create sub: got %d", rr.Code)
	}

	solveBody := []byte(`{"instance":` + string(testInstanceBody()) + `}`)
	rr = httptest.NewRecorder()
	s.SolveHandler(rr, httptest.NewRequest(http.MethodPost, "/v1/solve", bytes.NewReader(solveBody)))
	if rr.Code != 200 {
		t.Fatalf("solve: got %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	s.WebhookDeliveriesHandler(rr, httptest.NewRequest(http.MethodGet, "/v1/admin/webhook-deliveries", nil))
	if rr.Code != 200 {
		t.Fatalf("deliveries: got %d", rr.Code)
	}
	var resp struct {
		Items []map[string]any `json:"items"`
	}
	_ = json.Unmarshal(rr.Body.Bytes(), &resp)
	if len(resp.Items) == 0 {
		t.Fatal("expected a pending delivery after solve")
	}
}

func TestRateLimiterPerTenant(t *testing.T) {
	t.Setenv("SOLVE_RATE_RPS", "0.001")
	t.Setenv("SOLVE_RATE_BURST", "1")
	rl := NewRateLimiterFromEnv()
	if !rl.Allow("t_a") {
		t.Fatal("first request should pass")
	}
	if rl.Allow("t_a") {
		t.Fatal("second request should be limited")
	}
	if !rl.Allow("t_b") {
		t.Fatal("other tenant must have its own bucket")
	}
}
