package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rchat/internal/logger"
	"github.com/rchat/internal/model"
)

// ErrDuplicatePrivateChat is returned when two callers race to create the
// same private pair; the loser re-reads the winner's chat.
var ErrDuplicatePrivateChat = errors.New("private chat for this pair already exists")

const chatCols = `id, type, COALESCE(name,''), COALESCE(description,''), COALESCE(avatar_url,''), COALESCE(created_by,''),
	is_work_chat, COALESCE(allow_messages_from,''), COALESCE(allow_messages_to,''), created_at`

type ChatRepository struct {
	pool *pgxpool.Pool
}

func NewChatRepository(pool *pgxpool.Pool) *ChatRepository {
	return &ChatRepository{pool: pool}
}

func scanChat(s interface{ Scan(dest ...any) error }, c *model.Chat) error {
	return s.Scan(&c.ID, &c.Type, &c.Name, &c.Description, &c.AvatarURL, &c.CreatedBy,
		&c.IsWorkChat, &c.AllowMessagesFrom, &c.AllowMessagesTo, &c.CreatedAt)
}

// PrivatePairKey normalizes a user pair so that (a,b) and (b,a) map to the
// same key. Backed by a unique index on chats(pair_key).
func PrivatePairKey(a, b string) string {
	if strings.Compare(a, b) > 0 {
		a, b = b, a
	}
	return a + ":" + b
}

func (r *ChatRepository) Create(ctx context.Context, c *model.Chat) error {
	defer logger.DeferLogDuration("chat.Create", time.Now())()
	_, err := r.pool.Exec(ctx,
		`INSERT INTO chats (id, type, name, description, avatar_url, created_by, is_work_chat, allow_messages_from, allow_messages_to, created_at)
		 VALUES ($1, $2, NULLIF($3,''), NULLIF($4,''), NULLIF($5,''), NULLIF($6,''), $7, NULLIF($8,''), NULLIF($9,''), $10)`,
		c.ID, c.Type, c.Name, c.Description, c.AvatarURL, c.CreatedBy,
		c.IsWorkChat, c.AllowMessagesFrom, c.AllowMessagesTo, c.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("chatRepo.Create: %w", err)
	}
	return nil
}

// CreatePrivate inserts a private chat and both participant rows in one
// transaction. The unique pair_key index serializes concurrent creations of
// the same pair: the loser gets ErrDuplicatePrivateChat.
func (r *ChatRepository) CreatePrivate(ctx context.Context, c *model.Chat, userA, userB string) error {
	defer logger.DeferLogDuration("chat.CreatePrivate", time.Now())()
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("chatRepo.CreatePrivate begin: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`INSERT INTO chats (id, type, created_by, pair_key, created_at)
		 VALUES ($1, 'private', NULLIF($2,''), $3, $4)`,
		c.ID, c.CreatedBy, PrivatePairKey(userA, userB), c.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicatePrivateChat
		}
		return fmt.Errorf("chatRepo.CreatePrivate chat: %w", err)
	}
	for _, uid := range []string{userA, userB} {
		_, err = tx.Exec(ctx,
			`INSERT INTO chat_participants (chat_id, user_id, role, joined_at) VALUES ($1, $2, 'member', $3)`,
			c.ID, uid, c.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("chatRepo.CreatePrivate participant: %w", err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("chatRepo.CreatePrivate commit: %w", err)
	}
	return nil
}

func (r *ChatRepository) GetByID(ctx context.Context, id string) (*model.Chat, error) {
	defer logger.DeferLogDuration("chat.GetByID", time.Now())()
	c := &model.Chat{}
	row := r.pool.QueryRow(ctx, `SELECT `+chatCols+` FROM chats WHERE id = $1`, id)
	if err := scanChat(row, c); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("chatRepo.GetByID: %w", err)
	}
	return c, nil
}

func (r *ChatRepository) AddParticipant(ctx context.Context, p *model.Participant) error {
	defer logger.DeferLogDuration("chat.AddParticipant", time.Now())()
	_, err := r.pool.Exec(ctx,
		`INSERT INTO chat_participants (chat_id, user_id, role, added_by, joined_at)
		 VALUES ($1, $2, $3, NULLIF($4,''), $5) ON CONFLICT DO NOTHING`,
		p.ChatID, p.UserID, p.Role, p.AddedBy, p.JoinedAt,
	)
	if err != nil {
		return fmt.Errorf("chatRepo.AddParticipant: %w", err)
	}
	return nil
}

func (r *ChatRepository) RemoveParticipant(ctx context.Context, chatID, userID string) error {
	defer logger.DeferLogDuration("chat.RemoveParticipant", time.Now())()
	_, err := r.pool.Exec(ctx,
		`DELETE FROM chat_participants WHERE chat_id = $1 AND user_id = $2`,
		chatID, userID,
	)
	if err != nil {
		return fmt.Errorf("chatRepo.RemoveParticipant: %w", err)
	}
	return nil
}

// GetParticipant returns the membership row, including role and who added
// the participant.
func (r *ChatRepository) GetParticipant(ctx context.Context, chatID, userID string) (*model.Participant, error) {
	defer logger.DeferLogDuration("chat.GetParticipant", time.Now())()
	p := &model.Participant{}
	err := r.pool.QueryRow(ctx,
		`SELECT chat_id, user_id, role, COALESCE(added_by,''), joined_at
		 FROM chat_participants WHERE chat_id = $1 AND user_id = $2`,
		chatID, userID,
	).Scan(&p.ChatID, &p.UserID, &p.Role, &p.AddedBy, &p.JoinedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("chatRepo.GetParticipant: %w", err)
	}
	return p, nil
}

func (r *ChatRepository) GetParticipants(ctx context.Context, chatID string) ([]model.Participant, error) {
	defer logger.DeferLogDuration("chat.GetParticipants", time.Now())()
	rows, err := r.pool.Query(ctx,
		`SELECT chat_id, user_id, role, COALESCE(added_by,''), joined_at
		 FROM chat_participants WHERE chat_id = $1 ORDER BY joined_at`, chatID,
	)
	if err != nil {
		return nil, fmt.Errorf("chatRepo.GetParticipants query: %w", err)
	}
	defer rows.Close()

	out := make([]model.Participant, 0, 8)
	for rows.Next() {
		var p model.Participant
		if err := rows.Scan(&p.ChatID, &p.UserID, &p.Role, &p.AddedBy, &p.JoinedAt); err != nil {
			return nil, fmt.Errorf("chatRepo.GetParticipants scan: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("chatRepo.GetParticipants rows: %w", err)
	}
	return out, nil
}

func (r *ChatRepository) GetParticipantUserIDs(ctx context.Context, chatID string) ([]string, error) {
	defer logger.DeferLogDuration("chat.GetParticipantUserIDs", time.Now())()
	rows, err := r.pool.Query(ctx,
		`SELECT user_id FROM chat_participants WHERE chat_id = $1`, chatID,
	)
	if err != nil {
		return nil, fmt.Errorf("chatRepo.GetParticipantUserIDs query: %w", err)
	}
	defer rows.Close()

	ids := make([]string, 0, 8)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("chatRepo.GetParticipantUserIDs scan: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("chatRepo.GetParticipantUserIDs rows: %w", err)
	}
	return ids, nil
}

func (r *ChatRepository) IsParticipant(ctx context.Context, chatID, userID string) (bool, error) {
	defer logger.DeferLogDuration("chat.IsParticipant", time.Now())()
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM chat_participants WHERE chat_id = $1 AND user_id = $2)`,
		chatID, userID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("chatRepo.IsParticipant: %w", err)
	}
	return exists, nil
}

func (r *ChatRepository) UpdateParticipantRole(ctx context.Context, chatID, userID string, role model.Role) error {
	defer logger.DeferLogDuration("chat.UpdateParticipantRole", time.Now())()
	_, err := r.pool.Exec(ctx,
		`UPDATE chat_participants SET role = $1 WHERE chat_id = $2 AND user_id = $3`,
		role, chatID, userID,
	)
	if err != nil {
		return fmt.Errorf("chatRepo.UpdateParticipantRole: %w", err)
	}
	return nil
}

// TransferOwnership makes newOwnerID the chat owner and demotes the current
// owner to admin in the same transaction, so the chat never has two owners.
func (r *ChatRepository) TransferOwnership(ctx context.Context, chatID, newOwnerID string) error {
	defer logger.DeferLogDuration("chat.TransferOwnership", time.Now())()
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("chatRepo.TransferOwnership begin: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`UPDATE chat_participants SET role = 'admin' WHERE chat_id = $1 AND role = 'owner' AND user_id != $2`,
		chatID, newOwnerID,
	)
	if err != nil {
		return fmt.Errorf("chatRepo.TransferOwnership demote: %w", err)
	}
	_, err = tx.Exec(ctx,
		`UPDATE chat_participants SET role = 'owner' WHERE chat_id = $1 AND user_id = $2`,
		chatID, newOwnerID,
	)
	if err != nil {
		return fmt.Errorf("chatRepo.TransferOwnership promote: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("chatRepo.TransferOwnership commit: %w", err)
	}
	return nil
}

// FindPrivateChat returns the private chat containing exactly this user
// pair, if any.
func (r *ChatRepository) FindPrivateChat(ctx context.Context, userA, userB string) (*model.Chat, error) {
	defer logger.DeferLogDuration("chat.FindPrivateChat", time.Now())()
	c := &model.Chat{}
	row := r.pool.QueryRow(ctx,
		`SELECT `+chatCols+` FROM chats WHERE type = 'private' AND pair_key = $1`,
		PrivatePairKey(userA, userB),
	)
	if err := scanChat(row, c); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("chatRepo.FindPrivateChat: %w", err)
	}
	return c, nil
}

// GetUserChats returns the user's chats ordered by last message activity,
// newest first; chats with no messages sort by creation time.
func (r *ChatRepository) GetUserChats(ctx context.Context, userID string) ([]model.Chat, error) {
	defer logger.DeferLogDuration("chat.GetUserChats", time.Now())()
	rows, err := r.pool.Query(ctx,
		`SELECT c.id, c.type, COALESCE(c.name,''), COALESCE(c.description,''), COALESCE(c.avatar_url,''), COALESCE(c.created_by,''),
		        c.is_work_chat, COALESCE(c.allow_messages_from,''), COALESCE(c.allow_messages_to,''), c.created_at
		 FROM chats c
		 JOIN chat_participants cp ON cp.chat_id = c.id
		 LEFT JOIN LATERAL (
		     SELECT created_at FROM messages m WHERE m.chat_id = c.id
		     ORDER BY m.created_at DESC LIMIT 1
		 ) lm ON true
		 WHERE cp.user_id = $1
		 ORDER BY COALESCE(lm.created_at, c.created_at) DESC`, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("chatRepo.GetUserChats query: %w", err)
	}
	defer rows.Close()

	chats := make([]model.Chat, 0, 16)
	for rows.Next() {
		var c model.Chat
		if err := scanChat(rows, &c); err != nil {
			return nil, fmt.Errorf("chatRepo.GetUserChats scan: %w", err)
		}
		chats = append(chats, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("chatRepo.GetUserChats rows: %w", err)
	}
	return chats, nil
}
