package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rchat/internal/logger"
	"github.com/rchat/internal/model"
)

type SessionRepository struct {
	pool *pgxpool.Pool
}

func NewSessionRepository(pool *pgxpool.Pool) *SessionRepository {
	return &SessionRepository{pool: pool}
}

func (r *SessionRepository) Create(ctx context.Context, s *model.Session) error {
	defer logger.DeferLogDuration("session.Create", time.Now())()
	_, err := r.pool.Exec(ctx,
		`INSERT INTO sessions (id, user_id, device_id, device_name, last_seen_at, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		s.ID, s.UserID, s.DeviceID, s.DeviceName, s.LastSeenAt, s.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("sessionRepo.Create: %w", err)
	}
	return nil
}

// GetByID возвращает сессию только если она не отозвана (revoked_at IS NULL).
func (r *SessionRepository) GetByID(ctx context.Context, id string) (*model.Session, error) {
	defer logger.DeferLogDuration("session.GetByID", time.Now())()
	s := &model.Session{}
	row := r.pool.QueryRow(ctx,
		`SELECT id, user_id, device_id, device_name, last_seen_at, created_at, revoked_at
		 FROM sessions WHERE id = $1 AND revoked_at IS NULL`, id)
	err := row.Scan(&s.ID, &s.UserID, &s.DeviceID, &s.DeviceName, &s.LastSeenAt, &s.CreatedAt, &s.RevokedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("sessionRepo.GetByID: %w", err)
	}
	return s, nil
}

func (r *SessionRepository) UpdateLastSeen(ctx context.Context, sessionID string, t time.Time) error {
	defer logger.DeferLogDuration("session.UpdateLastSeen", time.Now())()
	_, err := r.pool.Exec(ctx, `UPDATE sessions SET last_seen_at = $1 WHERE id = $2 AND revoked_at IS NULL`, t, sessionID)
	if err != nil {
		return fmt.Errorf("sessionRepo.UpdateLastSeen: %w", err)
	}
	return nil
}

// RevokeByID помечает сессию отозванной. Секрет из хранилища удаляет вызывающий код.
func (r *SessionRepository) RevokeByID(ctx context.Context, sessionID string) (bool, error) {
	defer logger.DeferLogDuration("session.RevokeByID", time.Now())()
	tag, err := r.pool.Exec(ctx, `UPDATE sessions SET revoked_at = NOW() WHERE id = $1 AND revoked_at IS NULL`, sessionID)
	if err != nil {
		return false, fmt.Errorf("sessionRepo.RevokeByID: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}
