package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"hospalloc/internal/model"
)

// Memory is a simple in-memory store used when no DATABASE_URL is set.
type Memory struct {
	mu        sync.Mutex
	instances map[string]model.Instance // id -> instance
	instByTen map[string][]string       // tenant -> instance ids
	solves    map[string]model.SolveRecord
	solvByTen map[string][]string
	subs      map[string][]model.Subscription // tenant -> subscriptions
	// Webhook queue state
	deliveries         map[string]*memDelivery
	deliveriesByTenant map[string][]string
}

func NewMemory() *Memory {
	return &Memory{
		instances:          map[string]model.Instance{},
		instByTen:          map[string][]string{},
		solves:             map[string]model.SolveRecord{},
		solvByTen:          map[string][]string{},
		subs:               map[string][]model.Subscription{},
		deliveries:         map[string]*memDelivery{},
		deliveriesByTenant: map[string][]string{},
	}
}

// memDelivery augments WebhookDelivery with scheduling/metrics state.
type memDelivery struct {
	WebhookDelivery
	NextAttemptAt time.Time
	LastError     string
	ResponseCode  int
	LatencyMs     int
	DeliveredAt   *time.Time
}

func (m *Memory) CreateInstance(ctx context.Context, tenantID string, in model.Instance) (model.Instance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	in.ID = uuid.New().String()
	in.TenantID = tenantID
	m.instances[in.ID] = in
	m.instByTen[tenantID] = append(m.instByTen[tenantID], in.ID)
	return in, nil
}

func (m *Memory) GetInstance(ctx context.Context, tenantID, id string) (model.Instance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	in, ok := m.instances[id]
	if !ok || in.TenantID != tenantID {
		return model.Instance{}, ErrNotFound
	}
	return in, nil
}

func (m *Memory) ListInstances(ctx context.Context, tenantID, cursor string, limit int) ([]model.Instance, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := m.instByTen[tenantID]
	start := 0
	if cursor != "" {
		for i, id := range ids {
			if id == cursor {
				start = i + 1
				break
			}
		}
	}
	if limit <= 0 {
		limit = 100
	}
	out := []model.Instance{}
	var next string
	for i := start; i < len(ids) && len(out) < limit; i++ {
		out = append(out, m.instances[ids[i]])
		next = ids[i]
	}
	if len(out) < limit {
		next = ""
	}
	return out, next, nil
}

func (m *Memory) DeleteInstance(ctx context.Context, tenantID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	in, ok := m.instances[id]
	if !ok || in.TenantID != tenantID {
		return ErrNotFound
	}
	delete(m.instances, id)
	ids := m.instByTen[tenantID]
	out := make([]string, 0, len(ids))
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	m.instByTen[tenantID] = out
	return nil
}

func (m *Memory) SaveSolve(ctx context.Context, rec model.SolveRecord) (model.SolveRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.CreatedAt == "" {
		rec.CreatedAt = time.Now().UTC().Format(time.RFC3339)
	}
	m.solves[rec.ID] = rec
	m.solvByTen[rec.TenantID] = append(m.solvByTen[rec.TenantID], rec.ID)
	return rec, nil
}

func (m *Memory) GetSolve(ctx context.Context, tenantID, id string) (model.SolveRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.solves[id]
	if !ok || rec.TenantID != tenantID {
		return model.SolveRecord{}, ErrNotFound
	}
	return rec, nil
}

func (m *Memory) ListSolves(ctx context.Context, tenantID, instanceID, cursor string, limit int) ([]model.SolveRecord, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := m.solvByTen[tenantID]
	start := 0
	if cursor != "" {
		for i, id := range ids {
			if id == cursor {
				start = i + 1
				break
			}
		}
	}
	if limit <= 0 {
		limit = 100
	}
	out := []model.SolveRecord{}
	var next string
	for i := start; i < len(ids) && len(out) < limit; i++ {
		rec := m.solves[ids[i]]
		if instanceID == "" || rec.InstanceID == instanceID {
			out = append(out, rec)
		}
		next = ids[i]
	}
	if len(out) < limit {
		next = ""
	}
	return out, next, nil
}

func (m *Memory) CreateSubscription(ctx context.Context, req model.SubscriptionRequest) (model.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := model.Subscription{ID: uuid.New().String(), TenantID: req.TenantID, URL: req.URL, Events: req.Events, Secret: req.Secret}
	m.subs[req.TenantID] = append(m.subs[req.TenantID], s)
	return s, nil
}

func (m *Memory) GetSubscriptionsForEvent(ctx context.Context, tenantID, eventType string) ([]model.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Subscription
	for _, s := range m.subs[tenantID] {
		for _, e := range s.Events {
			if e == eventType {
				out = append(out, s)
				break
			}
		}
	}
	return out, nil
}

func (m *Memory) ListSubscriptions(ctx context.Context, tenantID, cursor string, limit int) ([]model.Subscription, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	list := m.subs[tenantID]
	start := 0
	if cursor != "" {
		for i := range list {
			if list[i].ID == cursor {
				start = i + 1
				break
			}
		}
	}
	if limit <= 0 {
		limit = 100
	}
	end := start + limit
	if end > len(list) {
		end = len(list)
	}
	items := append([]model.Subscription(nil), list[start:end]...)
	next := ""
	if end < len(list) {
		next = list[end-1].ID
	}
	return items, next, nil
}

func (m *Memory) DeleteSubscription(ctx context.Context, tenantID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	arr := m.subs[tenantID]
	out := make([]model.Subscription, 0, len(arr))
	for _, s := range arr {
		if s.ID != id {
			out = append(out, s)
		}
	}
	m.subs[tenantID] = out
	return nil
}

// Webhook deliveries

func (m *Memory) EnqueueWebhook(ctx context.Context, tenantID, subscriptionID, eventType, url, secret string, payload []byte) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := uuid.New().String()
	d := &memDelivery{WebhookDelivery: WebhookDelivery{ID: id, TenantID: tenantID, SubscriptionID: subscriptionID, EventType: eventType, URL: url, Secret: secret, Payload: payload, Status: "pending"}, NextAttemptAt: time.Now()}
	m.deliveries[id] = d
	m.deliveriesByTenant[tenantID] = append(m.deliveriesByTenant[tenantID], id)
	return id, nil
}

func (m *Memory) FetchDueWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	out := []WebhookDelivery{}
	for _, ids := range m.deliveriesByTenant {
		for _, id := range ids {
			d := m.deliveries[id]
			if d == nil {
				continue
			}
			if (d.Status == "pending" || d.Status == "retry") && !d.NextAttemptAt.After(now) {
				out = append(out, d.WebhookDelivery)
				if limit > 0 && len(out) >= limit {
					return out, nil
				}
			}
		}
	}
	return out, nil
}

func (m *Memory) MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d := m.deliveries[id]
	if d == nil {
		return nil
	}
	d.Attempts++
	d.ResponseCode = responseCode
	d.LatencyMs = latencyMs
	if success {
		d.Status = "delivered"
		now := time.Now()
		d.DeliveredAt = &now
	} else {
		d.Status = "retry"
		d.LastError = lastError
		if nextAttemptAt != nil {
			d.NextAttemptAt = *nextAttemptAt
		} else {
			d.NextAttemptAt = time.Now().Add(1 * time.Minute)
		}
	}
	return nil
}

func (m *Memory) FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d := m.deliveries[id]
	if d != nil {
		d.Status = "failed"
		d.LastError = lastError
		d.ResponseCode = responseCode
		d.LatencyMs = latencyMs
	}
	return nil
}

func (m *Memory) ListWebhookDeliveries(ctx context.Context, tenantID, status, cursor string, limit int) ([]map[string]any, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []map[string]any{}
	for _, id := range m.deliveriesByTenant[tenantID] {
		d := m.deliveries[id]
		if d == nil {
			continue
		}
		if status == "" || d.Status == status {
			item := map[string]any{"id": d.ID, "eventType": d.EventType, "status": d.Status, "attempts": d.Attempts, "url": d.URL}
			if !d.NextAttemptAt.IsZero() {
				item["nextAttemptAt"] = d.NextAttemptAt
			}
			if d.LastError != "" {
				item["lastError"] = d.LastError
			}
			out = append(out, item)
		}
	}
	return out, "", nil
}

func (m *Memory) RetryWebhookDelivery(ctx context.Context, tenantID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d := m.deliveries[id]
	if d == nil || d.TenantID != tenantID {
		return ErrNotFound
	}
	d.Status = "pending"
	d.NextAttemptAt = time.Now()
	return nil
}
