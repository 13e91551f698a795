package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rchat/internal/logger"
	"github.com/rchat/internal/model"
)

type PushRepository struct {
	pool *pgxpool.Pool
}

func NewPushRepository(pool *pgxpool.Pool) *PushRepository {
	return &PushRepository{pool: pool}
}

// Upsert сохраняет подписку; повторная подписка той же сессии заменяет endpoint и ключи.
func (r *PushRepository) Upsert(ctx context.Context, s *model.PushSubscription) error {
	defer logger.DeferLogDuration("push.Upsert", time.Now())()
	_, err := r.pool.Exec(ctx,
		`INSERT INTO push_subscriptions (session_id, user_id, endpoint, p256dh, auth, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (session_id) DO UPDATE SET
		   endpoint = EXCLUDED.endpoint, p256dh = EXCLUDED.p256dh, auth = EXCLUDED.auth`,
		s.SessionID, s.UserID, s.Endpoint, s.P256dh, s.Auth, s.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("pushRepo.Upsert: %w", err)
	}
	return nil
}

func (r *PushRepository) DeleteBySessionID(ctx context.Context, sessionID string) error {
	defer logger.DeferLogDuration("push.DeleteBySessionID", time.Now())()
	_, err := r.pool.Exec(ctx, `DELETE FROM push_subscriptions WHERE session_id = $1`, sessionID)
	if err != nil {
		return fmt.Errorf("pushRepo.DeleteBySessionID: %w", err)
	}
	return nil
}

// DeleteByEndpoint удаляет протухшую подписку (404/410 от push-сервиса браузера).
func (r *PushRepository) DeleteByEndpoint(ctx context.Context, endpoint string) error {
	defer logger.DeferLogDuration("push.DeleteByEndpoint", time.Now())()
	_, err := r.pool.Exec(ctx, `DELETE FROM push_subscriptions WHERE endpoint = $1`, endpoint)
	if err != nil {
		return fmt.Errorf("pushRepo.DeleteByEndpoint: %w", err)
	}
	return nil
}

func (r *PushRepository) ListByUserID(ctx context.Context, userID string) ([]model.PushSubscription, error) {
	defer logger.DeferLogDuration("push.ListByUserID", time.Now())()
	rows, err := r.pool.Query(ctx,
		`SELECT session_id, user_id, endpoint, p256dh, auth, created_at
		 FROM push_subscriptions WHERE user_id = $1`, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("pushRepo.ListByUserID query: %w", err)
	}
	defer rows.Close()

	var subs []model.PushSubscription
	for rows.Next() {
		var s model.PushSubscription
		if err := rows.Scan(&s.SessionID, &s.UserID, &s.Endpoint, &s.P256dh, &s.Auth, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("pushRepo.ListByUserID scan: %w", err)
		}
		subs = append(subs, s)
	}
	return subs, rows.Err()
}
