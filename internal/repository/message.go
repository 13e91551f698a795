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

const messageCols = `id, type, chat_id, COALESCE(sender_user_id,''), COALESCE(sender_chat_id,''), COALESCE(text,''),
	COALESCE(audio_media_id,''), COALESCE(video_media_id,''), COALESCE(reply_to_id,''), COALESCE(forwarded_from_id,''),
	COALESCE(acting_user_id,''), COALESCE(involved_user_id,''), is_silent, last_edited_at, created_at`

type MessageRepository struct {
	pool *pgxpool.Pool
}

func NewMessageRepository(pool *pgxpool.Pool) *MessageRepository {
	return &MessageRepository{pool: pool}
}

func scanMessage(s interface{ Scan(dest ...any) error }, m *model.Message) error {
	return s.Scan(&m.ID, &m.Type, &m.ChatID, &m.SenderUserID, &m.SenderChatID, &m.Text,
		&m.AudioMediaID, &m.VideoMediaID, &m.ReplyToID, &m.ForwardedFromID,
		&m.ActingUserID, &m.InvolvedUserID, &m.IsSilent, &m.LastEditedAt, &m.CreatedAt)
}

func (r *MessageRepository) Create(ctx context.Context, m *model.Message) error {
	defer logger.DeferLogDuration("msg.Create", time.Now())()
	_, err := r.pool.Exec(ctx,
		`INSERT INTO messages (id, type, chat_id, sender_user_id, sender_chat_id, text, audio_media_id, video_media_id,
		                       reply_to_id, forwarded_from_id, acting_user_id, involved_user_id, is_silent, created_at)
		 VALUES ($1, $2, $3, NULLIF($4,''), NULLIF($5,''), NULLIF($6,''), NULLIF($7,''), NULLIF($8,''),
		         NULLIF($9,''), NULLIF($10,''), NULLIF($11,''), NULLIF($12,''), $13, $14)`,
		m.ID, m.Type, m.ChatID, m.SenderUserID, m.SenderChatID, m.Text, m.AudioMediaID, m.VideoMediaID,
		m.ReplyToID, m.ForwardedFromID, m.ActingUserID, m.InvolvedUserID, m.IsSilent, m.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("msgRepo.Create: %w", err)
	}
	return nil
}

func (r *MessageRepository) GetByID(ctx context.Context, id string) (*model.Message, error) {
	defer logger.DeferLogDuration("msg.GetByID", time.Now())()
	m := &model.Message{}
	row := r.pool.QueryRow(ctx, `SELECT `+messageCols+` FROM messages WHERE id = $1`, id)
	if err := scanMessage(row, m); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("msgRepo.GetByID: %w", err)
	}
	return m, nil
}

// GetChatMessages returns a page of chat messages, newest first.
func (r *MessageRepository) GetChatMessages(ctx context.Context, chatID string, limit, offset int) ([]model.Message, error) {
	defer logger.DeferLogDuration("msg.GetChatMessages", time.Now())()
	rows, err := r.pool.Query(ctx,
		`SELECT `+messageCols+` FROM messages
		 WHERE chat_id = $1
		 ORDER BY created_at DESC, id DESC
		 LIMIT $2 OFFSET $3`, chatID, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("msgRepo.GetChatMessages query: %w", err)
	}
	defer rows.Close()

	messages := make([]model.Message, 0, limit)
	for rows.Next() {
		var m model.Message
		if err := scanMessage(rows, &m); err != nil {
			return nil, fmt.Errorf("msgRepo.GetChatMessages scan: %w", err)
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("msgRepo.GetChatMessages rows: %w", err)
	}
	return messages, nil
}

func (r *MessageRepository) GetLastMessage(ctx context.Context, chatID string) (*model.Message, error) {
	defer logger.DeferLogDuration("msg.GetLastMessage", time.Now())()
	m := &model.Message{}
	row := r.pool.QueryRow(ctx,
		`SELECT `+messageCols+` FROM messages
		 WHERE chat_id = $1 ORDER BY created_at DESC, id DESC LIMIT 1`, chatID,
	)
	if err := scanMessage(row, m); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("msgRepo.GetLastMessage: %w", err)
	}
	return m, nil
}

// MarkRead inserts a read marker. Returns false without error when the
// marker already exists (insert-if-absent makes the operation idempotent).
func (r *MessageRepository) MarkRead(ctx context.Context, messageID, userID string) (bool, error) {
	defer logger.DeferLogDuration("msg.MarkRead", time.Now())()
	tag, err := r.pool.Exec(ctx,
		`INSERT INTO message_reads (message_id, user_id, read_at)
		 VALUES ($1, $2, NOW()) ON CONFLICT DO NOTHING`,
		messageID, userID,
	)
	if err != nil {
		return false, fmt.Errorf("msgRepo.MarkRead: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// MarkReadBefore marks every message in the chat strictly ordered before the
// given message as read by userID, excluding messages the user authored.
// Returns how many markers were newly created.
func (r *MessageRepository) MarkReadBefore(ctx context.Context, chatID, beforeMessageID, userID string) (int64, error) {
	defer logger.DeferLogDuration("msg.MarkReadBefore", time.Now())()
	tag, err := r.pool.Exec(ctx,
		`INSERT INTO message_reads (message_id, user_id, read_at)
		 SELECT m.id, $3, NOW()
		 FROM messages m, messages b
		 WHERE b.id = $2 AND m.chat_id = $1 AND b.chat_id = $1
		   AND (m.created_at, m.id) < (b.created_at, b.id)
		   AND (m.sender_user_id IS NULL OR m.sender_user_id != $3)
		 ON CONFLICT DO NOTHING`,
		chatID, beforeMessageID, userID,
	)
	if err != nil {
		return 0, fmt.Errorf("msgRepo.MarkReadBefore: %w", err)
	}
	return tag.RowsAffected(), nil
}

// GetReadBy returns the ids of users who read the message.
func (r *MessageRepository) GetReadBy(ctx context.Context, messageID string) ([]string, error) {
	defer logger.DeferLogDuration("msg.GetReadBy", time.Now())()
	rows, err := r.pool.Query(ctx,
		`SELECT user_id FROM message_reads WHERE message_id = $1 ORDER BY read_at`, messageID,
	)
	if err != nil {
		return nil, fmt.Errorf("msgRepo.GetReadBy query: %w", err)
	}
	defer rows.Close()

	ids := make([]string, 0, 8)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("msgRepo.GetReadBy scan: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("msgRepo.GetReadBy rows: %w", err)
	}
	return ids, nil
}
