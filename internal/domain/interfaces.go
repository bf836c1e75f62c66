package domain

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound indicates a missing row in the conversation store.
var ErrNotFound = errors.New("not found")

// ErrUnknownUser indicates a chat request for a user that does not exist.
// No upstream call is attempted in that case.
var ErrUnknownUser = errors.New("unknown user")

// ErrCacheMiss indicates no cached reply was found.
var ErrCacheMiss = errors.New("cache miss")

// Provider is the upstream model provider.
type Provider interface {
	// Complete submits an assembled turn sequence to the chat completion
	// interface and returns the first choice's content.
	Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error)

	// GenerateImage renders one image from a prompt and returns its bytes.
	GenerateImage(ctx context.Context, req *ImageGenerationRequest) (*ImageData, error)

	// Name returns the provider identifier.
	Name() string
}

// ConversationStore is the persistence boundary for users, conversations,
// messages and generated images.
type ConversationStore interface {
	// GetUser resolves a user by identifier. Returns ErrNotFound when absent.
	GetUser(ctx context.Context, id int64) (*User, error)

	// WithTx runs fn against a transaction-scoped view of the store. The
	// transaction commits when fn returns nil and rolls back otherwise.
	WithTx(ctx context.Context, fn func(tx ConversationTx) error) error

	// ListConversations returns a user's conversations, newest first.
	ListConversations(ctx context.Context, userID int64) ([]Conversation, error)

	// ListMessages returns a conversation's messages ordered by creation
	// time ascending.
	ListMessages(ctx context.Context, conversationID int64) ([]Message, error)

	// DeleteConversation removes a conversation and all of its messages.
	DeleteConversation(ctx context.Context, conversationID int64) error

	// ListImages returns a user's generated images, newest first.
	ListImages(ctx context.Context, userID int64) ([]GeneratedImage, error)

	// GetImage resolves a generated image row by identifier.
	GetImage(ctx context.Context, id int64) (*GeneratedImage, error)

	// DeleteImage removes a generated image row.
	DeleteImage(ctx context.Context, id int64) error
}

// ConversationTx is the write surface available inside one chat transaction.
type ConversationTx interface {
	// CreateConversation inserts a new conversation and returns its ID.
	CreateConversation(ctx context.Context, userID int64, title string) (int64, error)

	// GetConversation resolves a conversation by identifier.
	GetConversation(ctx context.Context, id int64) (*Conversation, error)

	// History returns the most recent limit messages of a conversation in
	// creation-time ascending order. limit <= 0 means unbounded.
	History(ctx context.Context, conversationID int64, limit int) ([]Message, error)

	// AppendMessage inserts a message, filling its ID and CreatedAt.
	AppendMessage(ctx context.Context, msg *Message) error

	// InsertImage records a generated image, filling its ID and CreatedAt.
	InsertImage(ctx context.Context, img *GeneratedImage) error
}

// ImageFileStore persists generated image bytes on disk.
type ImageFileStore interface {
	// Save writes data under a generated filename and returns that filename.
	Save(data []byte, ext string) (string, error)

	// Remove deletes a stored file. A missing file is not an error.
	Remove(filename string) error

	// URLPath returns the public path a stored file is served at.
	URLPath(filename string) string
}

// CachedReply is a previously computed assistant reply for an identical
// assembled request.
type CachedReply struct {
	Content  string    `json:"content"`
	Model    string    `json:"model"`
	Usage    *Usage    `json:"usage,omitempty"`
	CachedAt time.Time `json:"cached_at"`
}

// ReplyCache stores assistant replies keyed by the assembled request.
type ReplyCache interface {
	// Get retrieves a cached reply. Returns ErrCacheMiss when absent.
	Get(ctx context.Context, key string) (*CachedReply, error)

	// Set stores a reply with a TTL.
	Set(ctx context.Context, key string, reply *CachedReply, ttl time.Duration) error
}
