package store

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"

	"hospalloc/internal/model"
)

type Postgres struct {
	db *sql.DB
}

func NewPostgres(dsn string) (*Postgres, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}
	return &Postgres{db: db}, nil
}

func (p *Postgres) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

// MigrateDir applies every .sql file in dir in lexical order. Statements
// are written to be idempotent (CREATE TABLE IF NOT EXISTS and the like).
func (p *Postgres) MigrateDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	names := []string{}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".sql") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	for _, name := range names {
		b, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return err
		}
		if _, err := p.db.Exec(string(b)); err != nil {
			return fmt.Errorf("migrate %s: %w", name, err)
		}
	}
	return nil
}

// Instances. The full document (counties, hospitals, costs) lives in a
// JSONB column; id, tenant and name are lifted out for lookups.

func (p *Postgres) CreateInstance(ctx context.Context, tenantID string, in model.Instance) (model.Instance, error) {
	in.ID = uuid.New().String()
	in.TenantID = tenantID
	doc, err := json.Marshal(in)
	if err != nil {
		return model.Instance{}, err
	}
	_, err = p.db.ExecContext(ctx, `INSERT INTO instances (id, tenant_id, name, doc) VALUES ($1,$2,$3,$4)`,
		in.ID, tenantID, nullIfEmpty(in.Name), doc)
	if err != nil {
		return model.Instance{}, err
	}
	return in, nil
}

func (p *Postgres) GetInstance(ctx context.Context, tenantID, id string) (model.Instance, error) {
	var doc []byte
	err := p.db.QueryRowContext(ctx, `SELECT doc FROM instances WHERE tenant_id=$1 AND id=$2`, tenantID, id).Scan(&doc)
	if err != nil {
		if err == sql.ErrNoRows {
			return model.Instance{}, ErrNotFound
		}
		return model.Instance{}, err
	}
	var in model.Instance
	if err := json.Unmarshal(doc, &in); err != nil {
		return model.Instance{}, err
	}
	return in, nil
}

func (p *Postgres) ListInstances(ctx context.Context, tenantID, cursor string, limit int) ([]model.Instance, string, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var rows *sql.Rows
	var err error
	if cursor != "" {
		rows, err = p.db.QueryContext(ctx, `SELECT doc FROM instances WHERE tenant_id=$1 AND id::text > $2 ORDER BY id LIMIT $3`, tenantID, cursor, limit)
	} else {
		rows, err = p.db.QueryContext(ctx, `SELECT doc FROM instances WHERE tenant_id=$1 ORDER BY id LIMIT $2`, tenantID, limit)
	}
	if err != nil {
		return nil, "", err
	}
	defer rows.Close()
	out := []model.Instance{}
	var last string
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, "", err
		}
		var in model.Instance
		if err := json.Unmarshal(doc, &in); err != nil {
			return nil, "", err
		}
		out = append(out, in)
		last = in.ID
	}
	next := ""
	if len(out) == limit {
		next = last
	}
	return out, next, nil
}

func (p *Postgres) DeleteInstance(ctx context.Context, tenantID, id string) error {
	res, err := p.db.ExecContext(ctx, `DELETE FROM instances WHERE tenant_id=$1 AND id=$2`, tenantID, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// Solves. Plan, expansions and breakdown travel together as one JSONB
// document; status and instance id are columns so lists can filter.

func (p *Postgres) SaveSolve(ctx context.Context, rec model.SolveRecord) (model.SolveRecord, error) {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.CreatedAt == "" {
		rec.CreatedAt = time.Now().UTC().Format(time.RFC3339)
	}
	doc, err := json.Marshal(rec)
	if err != nil {
		return model.SolveRecord{}, err
	}
	_, err = p.db.ExecContext(ctx, `INSERT INTO solves (id, tenant_id, instance_id, status, doc) VALUES ($1,$2,$3,$4,$5)`,
		rec.ID, rec.TenantID, nullIfEmpty(rec.InstanceID), rec.Status, doc)
	if err != nil {
		return model.SolveRecord{}, err
	}
	return rec, nil
}

func (p *Postgres) GetSolve(ctx context.Context, tenantID, id string) (model.SolveRecord, error) {
	var doc []byte
	err := p.db.QueryRowContext(ctx, `SELECT doc FROM solves WHERE tenant_id=$1 AND id=$2`, tenantID, id).Scan(&doc)
	if err != nil {
		if err == sql.ErrNoRows {
			return model.SolveRecord{}, ErrNotFound
		}
		return model.SolveRecord{}, err
	}
	var rec model.SolveRecord
	if err := json.Unmarshal(doc, &rec); err != nil {
		return model.SolveRecord{}, err
	}
	return rec, nil
}

func (p *Postgres) ListSolves(ctx context.Context, tenantID, instanceID, cursor string, limit int) ([]model.SolveRecord, string, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	q := `SELECT doc FROM solves WHERE tenant_id=$1`
	args := []any{tenantID}
	idx := 2
	if instanceID != "" {
		q += fmt.Sprintf(` AND instance_id=$%d`, idx)
		args = append(args, instanceID)
		idx++
	}
	if cursor != "" {
		q += fmt.Sprintf(` AND id::text > $%d`, idx)
		args = append(args, cursor)
		idx++
	}
	q += fmt.Sprintf(` ORDER BY id LIMIT $%d`, idx)
	args = append(args, limit)
	rows, err := p.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, "", err
	}
	defer rows.Close()
	out := []model.SolveRecord{}
	var last string
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, "", err
		}
		var rec model.SolveRecord
		if err := json.Unmarshal(doc, &rec); err != nil {
			return nil, "", err
		}
		out = append(out, rec)
		last = rec.ID
	}
	next := ""
	if len(out) == limit {
		next = last
	}
	return out, next, nil
}

// Subscriptions

func (p *Postgres) CreateSubscription(ctx context.Context, req model.SubscriptionRequest) (model.Subscription, error) {
	id := uuid.New().String()
	ev, _ := json.Marshal(req.Events)
	_, err := p.db.ExecContext(ctx, `INSERT INTO subscriptions (id, tenant_id, url, events, secret) VALUES ($1,$2,$3,$4,$5)`,
		id, req.TenantID, req.URL, ev, req.Secret)
	if err != nil {
		return model.Subscription{}, err
	}
	return model.Subscription{ID: id, TenantID: req.TenantID, URL: req.URL, Events: req.Events, Secret: req.Secret}, nil
}

func (p *Postgres) GetSubscriptionsForEvent(ctx context.Context, tenantID, eventType string) ([]model.Subscription, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT id::text, url, secret, events FROM subscriptions WHERE tenant_id=$1 AND events @> $2::jsonb`,
		tenantID, fmt.Sprintf("[%q]", eventType))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.Subscription{}
	for rows.Next() {
		var s model.Subscription
		var ev []byte
		if err := rows.Scan(&s.ID, &s.URL, &s.Secret, &ev); err != nil {
			return nil, err
		}
		s.TenantID = tenantID
		_ = json.Unmarshal(ev, &s.Events)
		out = append(out, s)
	}
	return out, nil
}

func (p *Postgres) ListSubscriptions(ctx context.Context, tenantID, cursor string, limit int) ([]model.Subscription, string, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var rows *sql.Rows
	var err error
	if cursor != "" {
		rows, err = p.db.QueryContext(ctx, `SELECT id::text, url, secret, events FROM subscriptions WHERE tenant_id=$1 AND id::text > $2 ORDER BY id LIMIT $3`, tenantID, cursor, limit)
	} else {
		rows, err = p.db.QueryContext(ctx, `SELECT id::text, url, secret, events FROM subscriptions WHERE tenant_id=$1 ORDER BY id LIMIT $2`, tenantID, limit)
	}
	if err != nil {
		return nil, "", err
	}
	defer rows.Close()
	out := []model.Subscription{}
	var last string
	for rows.Next() {
		var s model.Subscription
		var ev []byte
		if err := rows.Scan(&s.ID, &s.URL, &s.Secret, &ev); err != nil {
			return nil, "", err
		}
		s.TenantID = tenantID
		_ = json.Unmarshal(ev, &s.Events)
		out = append(out, s)
		last = s.ID
	}
	next := ""
	if len(out) == limit {
		next = last
	}
	return out, next, nil
}

func (p *Postgres) DeleteSubscription(ctx context.Context, tenantID, id string) error {
	_, err := p.db.ExecContext(ctx, `DELETE FROM subscriptions WHERE tenant_id=$1 AND id=$2`, tenantID, id)
	return err
}

// Webhook deliveries

func (p *Postgres) EnqueueWebhook(ctx context.Context, tenantID, subscriptionID, eventType, url, secret string, payload []byte) (string, error) {
	id := uuid.New().String()
	dk := computeDedupKey(payload)
	_, err := p.db.ExecContext(ctx, `INSERT INTO webhook_deliveries (id, tenant_id, subscription_id, event_type, url, secret, payload, status, attempts, next_attempt_at, dedup_key)
		VALUES ($1,$2,$3,$4,$5,$6,$7,'pending',0,now(),$8)
		ON CONFLICT (tenant_id, event_type, url, dedup_key) DO NOTHING`,
		id, tenantID, nullIfEmpty(subscriptionID), eventType, url, nullIfEmpty(secret), payload, dk)
	if err != nil {
		return "", err
	}
	return id, nil
}

func (p *Postgres) FetchDueWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT id::text, tenant_id::text, COALESCE(subscription_id::text,''), event_type, url, COALESCE(secret,''), payload, status, attempts
		FROM webhook_deliveries WHERE status IN ('pending','retry') AND next_attempt_at <= now() ORDER BY next_attempt_at ASC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []WebhookDelivery{}
	for rows.Next() {
		var d WebhookDelivery
		if err := rows.Scan(&d.ID, &d.TenantID, &d.SubscriptionID, &d.EventType, &d.URL, &d.Secret, &d.Payload, &d.Status, &d.Attempts); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}

func (p *Postgres) MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error {
	if !success {
		if nextAttemptAt == nil {
			t := time.Now().Add(1 * time.Minute)
			nextAttemptAt = &t
		}
		_, err := p.db.ExecContext(ctx, `UPDATE webhook_deliveries SET attempts=attempts+1, status='retry', last_error=$1, next_attempt_at=$2, updated_at=now(), response_code=$4, latency_ms=$5 WHERE id=$3`,
			nullIfEmpty(lastError), *nextAttemptAt, id, responseCode, latencyMs)
		return err
	}
	_, err := p.db.ExecContext(ctx, `UPDATE webhook_deliveries SET status='delivered', delivered_at=now(), updated_at=now(), response_code=$2, latency_ms=$3 WHERE id=$1`, id, responseCode, latencyMs)
	return err
}

func (p *Postgres) FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error {
	_, err := p.db.ExecContext(ctx, `UPDATE webhook_deliveries SET status='failed', last_error=$2, updated_at=now(), response_code=$3, latency_ms=$4 WHERE id=$1`,
		id, nullIfEmpty(lastError), responseCode, latencyMs)
	return err
}

func (p *Postgres) ListWebhookDeliveries(ctx context.Context, tenantID, status, cursor string, limit int) ([]map[string]any, string, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	q := `SELECT id::text, event_type, status, attempts, next_attempt_at, COALESCE(last_error,''), url FROM webhook_deliveries WHERE tenant_id=$1`
	args := []any{tenantID}
	idx := 2
	if status != "" {
		q += fmt.Sprintf(` AND status=$%d`, idx)
		args = append(args, status)
		idx++
	}
	if cursor != "" {
		q += fmt.Sprintf(` AND id::text > $%d`, idx)
		args = append(args, cursor)
		idx++
	}
	q += fmt.Sprintf(` ORDER BY id LIMIT $%d`, idx)
	args = append(args, limit)
	rows, err := p.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, "", err
	}
	defer rows.Close()
	out := []map[string]any{}
	var last string
	for rows.Next() {
		var id, typ, st, lastErr, url string
		var attempts int
		var nextAt sql.NullTime
		if err := rows.Scan(&id, &typ, &st, &attempts, &nextAt, &lastErr, &url); err != nil {
			return nil, "", err
		}
		m := map[string]any{"id": id, "eventType": typ, "status": st, "attempts": attempts, "url": url}
		if nextAt.Valid {
			m["nextAttemptAt"] = nextAt.Time
		}
		if lastErr != "" {
			m["lastError"] = lastErr
		}
		out = append(out, m)
		last = id
	}
	next := ""
	if len(out) == limit {
		next = last
	}
	return out, next, nil
}

func (p *Postgres) RetryWebhookDelivery(ctx context.Context, tenantID, id string) error {
	_, err := p.db.ExecContext(ctx, `UPDATE webhook_deliveries SET status='pending', next_attempt_at=now() WHERE tenant_id=$1 AND id=$2`, tenantID, id)
	return err
}

func computeDedupKey(payload []byte) string {
	var m map[string]any
	if json.Unmarshal(payload, &m) == nil {
		if v, ok := m["id"].(string); ok && v != "" {
			return v
		}
	}
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:8])
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
