package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/minbak/hearth/internal/domain"
)

var messageColumns = []string{
	"id", "conversation_id", "role", "content",
	"prompt_tokens", "completion_tokens", "cost", "model", "created_at",
}

// runner is the common query surface of *sql.DB and *sql.Tx.
type runner interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// queries holds the statement implementations shared by the store and its
// transaction view.
type queries struct {
	run runner
	sql sq.StatementBuilderType
}

// Tx is the transaction-scoped view handed to domain.ConversationStore.WithTx
// callbacks.
type Tx struct {
	queries
}

var _ domain.ConversationStore = (*Store)(nil)
var _ domain.ConversationTx = (*Tx)(nil)

// WithTx runs fn inside one transaction, committing on nil and rolling back
// otherwise.
func (s *Store) WithTx(ctx context.Context, fn func(tx domain.ConversationTx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	view := &Tx{queries: queries{run: tx, sql: s.sql}}
	if err := fn(view); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// GetUser resolves a user by identifier.
func (s *Store) GetUser(ctx context.Context, id int64) (*domain.User, error) {
	q := s.sql.Select("id", "name", "email", "api_key", "created_at").
		From("users").
		Where(sq.Eq{"id": id})
	sqlStr, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build get user query: %w", err)
	}

	var u domain.User
	if err := s.db.QueryRowContext(ctx, sqlStr, args...).Scan(
		&u.ID, &u.Name, &u.Email, &u.APIKey, &u.CreatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &u, nil
}

// CreateUser inserts a user row. Password handling lives elsewhere; the store
// only keeps the profile fields this service reads.
func (s *Store) CreateUser(ctx context.Context, u *domain.User) error {
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	q := s.sql.Insert("users").
		Columns("name", "email", "api_key", "created_at").
		Values(u.Name, u.Email, u.APIKey, u.CreatedAt).
		Suffix("RETURNING id")
	sqlStr, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build create user query: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, sqlStr, args...).Scan(&u.ID); err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

// ListConversations returns a user's conversations, newest first.
func (s *Store) ListConversations(ctx context.Context, userID int64) ([]domain.Conversation, error) {
	q := s.sql.Select("id", "user_id", "title", "created_at").
		From("conversations").
		Where(sq.Eq{"user_id": userID}).
		OrderBy("created_at DESC, id DESC")
	sqlStr, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list conversations query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	defer rows.Close()

	out := make([]domain.Conversation, 0)
	for rows.Next() {
		var c domain.Conversation
		if err := rows.Scan(&c.ID, &c.UserID, &c.Title, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan conversation row: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate conversation rows: %w", err)
	}
	return out, nil
}

// ListMessages returns a conversation's messages ordered by creation time.
func (s *Store) ListMessages(ctx context.Context, conversationID int64) ([]domain.Message, error) {
	shared := queries{run: s.db, sql: s.sql}
	return shared.History(ctx, conversationID, 0)
}

// DeleteConversation removes the conversation's messages first, then the
// conversation row, inside one transaction.
func (s *Store) DeleteConversation(ctx context.Context, conversationID int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	delMessages := s.sql.Delete("messages").Where(sq.Eq{"conversation_id": conversationID})
	sqlStr, args, err := delMessages.ToSql()
	if err != nil {
		return fmt.Errorf("build delete messages query: %w", err)
	}
	if _, err := tx.ExecContext(ctx, sqlStr, args...); err != nil {
		return fmt.Errorf("delete messages: %w", err)
	}

	delConv := s.sql.Delete("conversations").Where(sq.Eq{"id": conversationID})
	sqlStr, args, err = delConv.ToSql()
	if err != nil {
		return fmt.Errorf("build delete conversation query: %w", err)
	}
	res, err := tx.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return fmt.Errorf("delete conversation: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return domain.ErrNotFound
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// ListImages returns a user's generated images, newest first.
func (s *Store) ListImages(ctx context.Context, userID int64) ([]domain.GeneratedImage, error) {
	q := s.sql.Select("id", "user_id", "prompt", "file_path", "created_at").
		From("generated_images").
		Where(sq.Eq{"user_id": userID}).
		OrderBy("created_at DESC, id DESC")
	sqlStr, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list images query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("list images: %w", err)
	}
	defer rows.Close()

	out := make([]domain.GeneratedImage, 0)
	for rows.Next() {
		var img domain.GeneratedImage
		if err := rows.Scan(&img.ID, &img.UserID, &img.Prompt, &img.FilePath, &img.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan image row: %w", err)
		}
		out = append(out, img)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate image rows: %w", err)
	}
	return out, nil
}

// GetImage resolves a generated image row by identifier.
func (s *Store) GetImage(ctx context.Context, id int64) (*domain.GeneratedImage, error) {
	q := s.sql.Select("id", "user_id", "prompt", "file_path", "created_at").
		From("generated_images").
		Where(sq.Eq{"id": id})
	sqlStr, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build get image query: %w", err)
	}

	var img domain.GeneratedImage
	if err := s.db.QueryRowContext(ctx, sqlStr, args...).Scan(
		&img.ID, &img.UserID, &img.Prompt, &img.FilePath, &img.CreatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("get image: %w", err)
	}
	return &img, nil
}

// DeleteImage removes a generated image row.
func (s *Store) DeleteImage(ctx context.Context, id int64) error {
	q := s.sql.Delete("generated_images").Where(sq.Eq{"id": id})
	sqlStr, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build delete image query: %w", err)
	}
	res, err := s.db.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return fmt.Errorf("delete image: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// CreateConversation inserts a conversation and returns its ID.
func (q queries) CreateConversation(ctx context.Context, userID int64, title string) (int64, error) {
	ins := q.sql.Insert("conversations").
		Columns("user_id", "title", "created_at").
		Values(userID, title, time.Now().UTC()).
		Suffix("RETURNING id")
	sqlStr, args, err := ins.ToSql()
	if err != nil {
		return 0, fmt.Errorf("build create conversation query: %w", err)
	}

	var id int64
	if err := q.run.QueryRowContext(ctx, sqlStr, args...).Scan(&id); err != nil {
		return 0, fmt.Errorf("create conversation: %w", err)
	}
	return id, nil
}

// GetConversation resolves a conversation by identifier.
func (q queries) GetConversation(ctx context.Context, id int64) (*domain.Conversation, error) {
	sel := q.sql.Select("id", "user_id", "title", "created_at").
		From("conversations").
		Where(sq.Eq{"id": id})
	sqlStr, args, err := sel.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build get conversation query: %w", err)
	}

	var c domain.Conversation
	if err := q.run.QueryRowContext(ctx, sqlStr, args...).Scan(
		&c.ID, &c.UserID, &c.Title, &c.CreatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("get conversation: %w", err)
	}
	return &c, nil
}

// History returns the most recent limit messages in creation-time ascending
// order. Ordering ties on created_at break by insertion ID so replay order is
// total.
func (q queries) History(ctx context.Context, conversationID int64, limit int) ([]domain.Message, error) {
	sel := q.sql.Select(messageColumns...).
		From("messages").
		Where(sq.Eq{"conversation_id": conversationID}).
		OrderBy("created_at ASC", "id ASC")

	if limit > 0 {
		recent := q.sql.Select(messageColumns...).
			From("messages").
			Where(sq.Eq{"conversation_id": conversationID}).
			OrderBy("created_at DESC", "id DESC").
			Limit(uint64(limit))
		sel = q.sql.Select(messageColumns...).
			FromSelect(recent, "recent").
			OrderBy("created_at ASC", "id ASC")
	}

	sqlStr, args, err := sel.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build history query: %w", err)
	}

	rows, err := q.run.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	defer rows.Close()

	out := make([]domain.Message, 0)
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate message rows: %w", err)
	}
	return out, nil
}

// AppendMessage inserts a message, filling its ID and CreatedAt.
func (q queries) AppendMessage(ctx context.Context, msg *domain.Message) error {
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}

	ins := q.sql.Insert("messages").
		Columns("conversation_id", "role", "content", "prompt_tokens", "completion_tokens", "cost", "model", "created_at").
		Values(msg.ConversationID, msg.Role, msg.Content, msg.PromptTokens, msg.CompletionTokens, msg.Cost, msg.Model, msg.CreatedAt).
		Suffix("RETURNING id")
	sqlStr, args, err := ins.ToSql()
	if err != nil {
		return fmt.Errorf("build append message query: %w", err)
	}

	if err := q.run.QueryRowContext(ctx, sqlStr, args...).Scan(&msg.ID); err != nil {
		return fmt.Errorf("append message: %w", err)
	}
	return nil
}

// InsertImage records a generated image, filling its ID and CreatedAt.
func (q queries) InsertImage(ctx context.Context, img *domain.GeneratedImage) error {
	if img.CreatedAt.IsZero() {
		img.CreatedAt = time.Now().UTC()
	}

	ins := q.sql.Insert("generated_images").
		Columns("user_id", "prompt", "file_path", "created_at").
		Values(img.UserID, img.Prompt, img.FilePath, img.CreatedAt).
		Suffix("RETURNING id")
	sqlStr, args, err := ins.ToSql()
	if err != nil {
		return fmt.Errorf("build insert image query: %w", err)
	}

	if err := q.run.QueryRowContext(ctx, sqlStr, args...).Scan(&img.ID); err != nil {
		return fmt.Errorf("insert image: %w", err)
	}
	return nil
}

func scanMessage(rows *sql.Rows) (domain.Message, error) {
	var (
		msg              domain.Message
		promptTokens     sql.NullInt64
		completionTokens sql.NullInt64
		cost             sql.NullFloat64
		model            sql.NullString
	)
	if err := rows.Scan(
		&msg.ID,
		&msg.ConversationID,
		&msg.Role,
		&msg.Content,
		&promptTokens,
		&completionTokens,
		&cost,
		&model,
		&msg.CreatedAt,
	); err != nil {
		return domain.Message{}, fmt.Errorf("scan message row: %w", err)
	}
	if promptTokens.Valid {
		msg.PromptTokens = &promptTokens.Int64
	}
	if completionTokens.Valid {
		msg.CompletionTokens = &completionTokens.Int64
	}
	if cost.Valid {
		msg.Cost = &cost.Float64
	}
	if model.Valid {
		msg.Model = &model.String
	}
	return msg, nil
}
