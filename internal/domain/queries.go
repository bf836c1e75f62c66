package domain

import (
	"context"
	"fmt"

	"github.com/minbak/hearth/internal/observability"
)

// DisplayMessage is a stored message with its cost converted to the display
// currency. The conversion happens at read time; the stored value stays USD.
type DisplayMessage struct {
	Message
	Cost *float64 `json:"cost,omitempty"`
}

// Conversations lists a user's conversations, newest first.
func (s *ChatService) Conversations(ctx context.Context, userID int64) ([]Conversation, error) {
	return s.store.ListConversations(ctx, userID)
}

// Messages returns a conversation's messages in creation order with costs
// converted for display.
func (s *ChatService) Messages(ctx context.Context, conversationID int64) ([]DisplayMessage, error) {
	messages, err := s.store.ListMessages(ctx, conversationID)
	if err != nil {
		return nil, err
	}

	out := make([]DisplayMessage, 0, len(messages))
	for _, msg := range messages {
		dm := DisplayMessage{Message: msg}
		if msg.Cost != nil {
			display := s.accountant.Display(*msg.Cost)
			dm.Cost = &display
		}
		out = append(out, dm)
	}
	return out, nil
}

// DeleteConversation removes a conversation and its messages.
func (s *ChatService) DeleteConversation(ctx context.Context, conversationID int64) error {
	return s.store.DeleteConversation(ctx, conversationID)
}

// Images lists a user's generated images, newest first.
func (s *ChatService) Images(ctx context.Context, userID int64) ([]GeneratedImage, error) {
	return s.store.ListImages(ctx, userID)
}

// DeleteImage removes a generated image's file and row. A file already gone
// from disk does not block removing the row.
func (s *ChatService) DeleteImage(ctx context.Context, id int64) error {
	img, err := s.store.GetImage(ctx, id)
	if err != nil {
		return err
	}

	if err := s.images.Remove(img.FilePath); err != nil {
		observability.FromContext(ctx).Warn("remove image file failed",
			observability.String("file", img.FilePath),
			observability.Error(err),
		)
		return fmt.Errorf("remove image file: %w", err)
	}

	return s.store.DeleteImage(ctx, id)
}
