package repository

import (
	"context"
	"log"

	"chatrelay/internal/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

type SubscriptionRepo interface {
	Save(ctx context.Context, sub *models.PushSubscription) error
	ListAll(ctx context.Context) ([]*models.PushSubscription, error)
	DeleteByEndpoint(ctx context.Context, endpoint string) error
}

type PostgresSubscriptionRepo struct {
	pool *pgxpool.Pool
}

func NewSubscriptionRepo(pool *pgxpool.Pool) SubscriptionRepo {
	return &PostgresSubscriptionRepo{
		pool: pool,
	}
}

func (r *PostgresSubscriptionRepo) Save(ctx context.Context, sub *models.PushSubscription) error {
	if sub.ID == uuid.Nil {
		sub.ID = uuid.New()
	}

	query := `
        INSERT INTO push_subscriptions (id, user_id, endpoint, p256dh, auth)
        VALUES ($1, $2, $3, $4, $5)
        ON CONFLICT (endpoint) DO UPDATE SET user_id = $2, p256dh = $4, auth = $5
    `

	_, err := r.pool.Exec(ctx, query, sub.ID, sub.UserID, sub.Endpoint, sub.P256dh, sub.Auth)
	if err != nil {
		log.Printf("[REPO ERROR] Failed to save push subscription for %s: %v", sub.UserID, err)
		return err
	}
	return nil
}

func (r *PostgresSubscriptionRepo) ListAll(ctx context.Context) ([]*models.PushSubscription, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, user_id, endpoint, p256dh, auth, created_at FROM push_subscriptions`)
	if err != nil {
		log.Printf("[REPO ERROR] Failed to list push subscriptions: %v", err)
		return nil, err
	}
	defer rows.Close()

	var subs []*models.PushSubscription
	for rows.Next() {
		s := &models.PushSubscription{}
		if err := rows.Scan(&s.ID, &s.UserID, &s.Endpoint, &s.P256dh, &s.Auth, &s.CreatedAt); err != nil {
			log.Printf("[REPO ERROR] Subscription scan failed, skipping row: %v", err)
			continue
		}
		subs = append(subs, s)
	}
	return subs, rows.Err()
}

// DeleteByEndpoint drops a subscription whose endpoint stopped
// accepting pushes.
func (r *PostgresSubscriptionRepo) DeleteByEndpoint(ctx context.Context, endpoint string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM push_subscriptions WHERE endpoint = $1`, endpoint)
	if err != nil {
		log.Printf("[REPO ERROR] Failed to unregister endpoint: %v", err)
	}
	return err
}
