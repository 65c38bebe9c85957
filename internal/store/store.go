package store

import (
	"context"
	"errors"
	"time"

	"hospalloc/internal/model"
)

// Store is the persistence interface used by the API server.
type Store interface {
	// Instances
	CreateInstance(ctx context.Context, tenantID string, in model.Instance) (model.Instance, error)
	GetInstance(ctx context.Context, tenantID, id string) (model.Instance, error)
	ListInstances(ctx context.Context, tenantID, cursor string, limit int) ([]model.Instance, string, error)
	DeleteInstance(ctx context.Context, tenantID, id string) error

	// Solves
	SaveSolve(ctx context.Context, rec model.SolveRecord) (model.SolveRecord, error)
	GetSolve(ctx context.Context, tenantID, id string) (model.SolveRecord, error)
	ListSolves(ctx context.Context, tenantID, instanceID, cursor string, limit int) ([]model.SolveRecord, string, error)

	// Subscriptions
	CreateSubscription(ctx context.Context, req model.SubscriptionRequest) (model.Subscription, error)
	GetSubscriptionsForEvent(ctx context.Context, tenantID, eventType string) ([]model.Subscription, error)
	ListSubscriptions(ctx context.Context, tenantID, cursor string, limit int) ([]model.Subscription, string, error)
	DeleteSubscription(ctx context.Context, tenantID, id string) error

	// Webhook deliveries
	EnqueueWebhook(ctx context.Context, tenantID, subscriptionID, eventType, url, secret string, payload []byte) (string, error)
	FetchDueWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error)
	MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error
	FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error
	ListWebhookDeliveries(ctx context.Context, tenantID, status, cursor string, limit int) ([]map[string]any, string, error)
	RetryWebhookDelivery(ctx context.Context, tenantID, id string) error
}

var ErrNotFound = errors.New("not found")
