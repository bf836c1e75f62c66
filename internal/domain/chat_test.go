package domain_test

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/minbak/hearth/internal/domain"
)

// fakeStore is an in-memory ConversationStore. WithTx snapshots state and
// restores it when the callback fails, mirroring a rollback.
type fakeStore struct {
	users         map[int64]*domain.User
	conversations map[int64]*domain.Conversation
	messages      []domain.Message
	images        []domain.GeneratedImage

	nextConvID int64
	nextMsgID  int64
	nextImgID  int64
	now        time.Time
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:         make(map[int64]*domain.User),
		conversations: make(map[int64]*domain.Conversation),
		now:           time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func (s *fakeStore) addUser(id int64, apiKey string) {
	s.users[id] = &domain.User{ID: id, Name: fmt.Sprintf("user-%d", id), APIKey: apiKey}
}

func (s *fakeStore) tick() time.Time {
	s.now = s.now.Add(time.Second)
	return s.now
}

func (s *fakeStore) GetUser(_ context.Context, id int64) (*domain.User, error) {
	user, ok := s.users[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return user, nil
}

func (s *fakeStore) WithTx(_ context.Context, fn func(tx domain.ConversationTx) error) error {
	savedMessages := append([]domain.Message(nil), s.messages...)
	savedImages := append([]domain.GeneratedImage(nil), s.images...)
	savedConvs := make(map[int64]*domain.Conversation, len(s.conversations))
	for id, c := range s.conversations {
		copied := *c
		savedConvs[id] = &copied
	}

	if err := fn(&fakeTx{store: s}); err != nil {
		s.messages = savedMessages
		s.images = savedImages
		s.conversations = savedConvs
		return err
	}
	return nil
}

func (s *fakeStore) ListConversations(_ context.Context, userID int64) ([]domain.Conversation, error) {
	out := make([]domain.Conversation, 0)
	for _, c := range s.conversations {
		if c.UserID == userID {
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *fakeStore) ListMessages(_ context.Context, conversationID int64) ([]domain.Message, error) {
	return s.history(conversationID, 0), nil
}

func (s *fakeStore) DeleteConversation(_ context.Context, conversationID int64) error {
	if _, ok := s.conversations[conversationID]; !ok {
		return domain.ErrNotFound
	}
	delete(s.conversations, conversationID)
	kept := s.messages[:0]
	for _, m := range s.messages {
		if m.ConversationID != conversationID {
			kept = append(kept, m)
		}
	}
	s.messages = kept
	return nil
}

func (s *fakeStore) ListImages(_ context.Context, userID int64) ([]domain.GeneratedImage, error) {
	out := make([]domain.GeneratedImage, 0)
	for _, img := range s.images {
		if img.UserID == userID {
			out = append(out, img)
		}
	}
	return out, nil
}

func (s *fakeStore) GetImage(_ context.Context, id int64) (*domain.GeneratedImage, error) {
	for _, img := range s.images {
		if img.ID == id {
			copied := img
			return &copied, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (s *fakeStore) DeleteImage(_ context.Context, id int64) error {
	for i, img := range s.images {
		if img.ID == id {
			s.images = append(s.images[:i], s.images[i+1:]...)
			return nil
		}
	}
	return domain.ErrNotFound
}

func (s *fakeStore) history(conversationID int64, limit int) []domain.Message {
	out := make([]domain.Message, 0)
	for _, m := range s.messages {
		if m.ConversationID == conversationID {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out
}

type fakeTx struct {
	store *fakeStore
}

func (t *fakeTx) CreateConversation(_ context.Context, userID int64, title string) (int64, error) {
	t.store.nextConvID++
	id := t.store.nextConvID
	t.store.conversations[id] = &domain.Conversation{
		ID: id, UserID: userID, Title: title, CreatedAt: t.store.tick(),
	}
	return id, nil
}

func (t *fakeTx) GetConversation(_ context.Context, id int64) (*domain.Conversation, error) {
	conv, ok := t.store.conversations[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	copied := *conv
	return &copied, nil
}

func (t *fakeTx) History(_ context.Context, conversationID int64, limit int) ([]domain.Message, error) {
	return t.store.history(conversationID, limit), nil
}

func (t *fakeTx) AppendMessage(_ context.Context, msg *domain.Message) error {
	t.store.nextMsgID++
	msg.ID = t.store.nextMsgID
	msg.CreatedAt = t.store.tick()
	t.store.messages = append(t.store.messages, *msg)
	return nil
}

func (t *fakeTx) InsertImage(_ context.Context, img *domain.GeneratedImage) error {
	t.store.nextImgID++
	img.ID = t.store.nextImgID
	img.CreatedAt = t.store.tick()
	t.store.images = append(t.store.images, *img)
	return nil
}

// fakeProvider records calls and answers from canned responses.
type fakeProvider struct {
	completeCalls []*domain.CompletionRequest
	generateCalls []*domain.ImageGenerationRequest
	completeFunc  func(req *domain.CompletionRequest) (*domain.CompletionResponse, error)
	generateFunc  func(req *domain.ImageGenerationRequest) (*domain.ImageData, error)
}

func (p *fakeProvider) Complete(_ context.Context, req *domain.CompletionRequest) (*domain.CompletionResponse, error) {
	p.completeCalls = append(p.completeCalls, req)
	if p.completeFunc != nil {
		return p.completeFunc(req)
	}
	return &domain.CompletionResponse{
		ID:      "resp-1",
		Model:   req.Model,
		Content: "canned reply",
		Usage:   &domain.Usage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15},
	}, nil
}

func (p *fakeProvider) GenerateImage(_ context.Context, req *domain.ImageGenerationRequest) (*domain.ImageData, error) {
	p.generateCalls = append(p.generateCalls, req)
	if p.generateFunc != nil {
		return p.generateFunc(req)
	}
	return &domain.ImageData{Bytes: []byte("png-bytes"), Ext: ".png"}, nil
}

func (p *fakeProvider) Name() string { return "fake" }

// fakeImageFiles records saved files without touching disk.
type fakeImageFiles struct {
	saved   [][]byte
	removed []string
}

func (f *fakeImageFiles) Save(data []byte, ext string) (string, error) {
	f.saved = append(f.saved, data)
	return fmt.Sprintf("img-%d%s", len(f.saved), ext), nil
}

func (f *fakeImageFiles) Remove(filename string) error {
	f.removed = append(f.removed, filename)
	return nil
}

func (f *fakeImageFiles) URLPath(filename string) string {
	return "/images/" + filename
}

// fakeCache is an in-memory ReplyCache.
type fakeCache struct {
	entries map[string]*domain.CachedReply
}

func (c *fakeCache) Get(_ context.Context, key string) (*domain.CachedReply, error) {
	if reply, ok := c.entries[key]; ok {
		return reply, nil
	}
	return nil, domain.ErrCacheMiss
}

func (c *fakeCache) Set(_ context.Context, key string, reply *domain.CachedReply, _ time.Duration) error {
	c.entries[key] = reply
	return nil
}

func newService(store *fakeStore, provider *fakeProvider, cache domain.ReplyCache) (*domain.ChatService, *fakeImageFiles) {
	files := &fakeImageFiles{}
	table := domain.NewPriceTable("gpt-4o")
	accountant := domain.NewAccountant(table, 1400)
	svc := domain.NewChatService(store, provider, files, cache, accountant, domain.ChatOptions{
		DefaultModel: "gpt-4o",
		HistoryLimit: 50,
		CacheTTL:     time.Hour,
	})
	return svc, files
}

func TestChat_TextBranch_NewConversation(t *testing.T) {
	store := newFakeStore()
	store.addUser(1, "")
	provider := &fakeProvider{}
	svc, _ := newService(store, provider, nil)

	result, err := svc.Chat(context.Background(), &domain.ChatRequest{
		UserID:  1,
		Message: "Hello there",
	})
	require.NoError(t, err)

	require.Equal(t, "canned reply", result.Reply)
	require.NotZero(t, result.ConversationID)
	require.Equal(t, 15, result.Tokens)

	// cost: 10 * 2.50/1e6 + 5 * 10.00/1e6 = 0.000075 USD
	require.InDelta(t, 0.000075, result.CostNative, 1e-9)
	require.InDelta(t, 0.11, result.Cost, 1e-9) // 0.105 KRW rounds to 0.11

	// Two persisted turns: the user's and the assistant's, in order.
	messages, err := store.ListMessages(context.Background(), result.ConversationID)
	require.NoError(t, err)
	require.Len(t, messages, 2)
	require.Equal(t, domain.RoleUser, messages[0].Role)
	require.Equal(t, "Hello there", messages[0].Content)
	require.Equal(t, domain.RoleAssistant, messages[1].Role)

	// Assistant usage fields are populated together.
	assistant := messages[1]
	require.NotNil(t, assistant.PromptTokens)
	require.NotNil(t, assistant.CompletionTokens)
	require.NotNil(t, assistant.Cost)
	require.NotNil(t, assistant.Model)
	require.EqualValues(t, 10, *assistant.PromptTokens)
	require.EqualValues(t, 5, *assistant.CompletionTokens)
	require.Equal(t, "gpt-4o", *assistant.Model)

	// The upstream payload was system + new turn only.
	require.Len(t, provider.completeCalls, 1)
	turns := provider.completeCalls[0].Turns
	require.Len(t, turns, 2)
	require.Equal(t, domain.RoleSystem, turns[0].Role)
	require.Equal(t, "Hello there", turns[1].Text())
}

func TestChat_TextBranch_ReplaysHistoryInOrder(t *testing.T) {
	store := newFakeStore()
	store.addUser(1, "")
	provider := &fakeProvider{}
	svc, _ := newService(store, provider, nil)

	ctx := context.Background()
	first, err := svc.Chat(ctx, &domain.ChatRequest{UserID: 1, Message: "first"})
	require.NoError(t, err)

	_, err = svc.Chat(ctx, &domain.ChatRequest{
		UserID:         1,
		Message:        "second",
		ConversationID: first.ConversationID,
	})
	require.NoError(t, err)

	require.Len(t, provider.completeCalls, 2)
	turns := provider.completeCalls[1].Turns

	// system, stored user, stored assistant, new user.
	require.Len(t, turns, 4)
	require.Equal(t, "first", turns[1].Text())
	require.Equal(t, domain.RoleAssistant, turns[2].Role)
	require.Equal(t, "canned reply", turns[2].Text())
	require.Equal(t, "second", turns[3].Text())
}

func TestChat_UnknownUser(t *testing.T) {
	store := newFakeStore()
	provider := &fakeProvider{}
	svc, _ := newService(store, provider, nil)

	_, err := svc.Chat(context.Background(), &domain.ChatRequest{UserID: 99, Message: "hi"})

	require.ErrorIs(t, err, domain.ErrUnknownUser)
	require.Empty(t, provider.completeCalls)
	require.Empty(t, store.messages)
}

func TestChat_UpstreamFailureLeavesNoPartialState(t *testing.T) {
	store := newFakeStore()
	store.addUser(1, "")
	provider := &fakeProvider{
		completeFunc: func(*domain.CompletionRequest) (*domain.CompletionResponse, error) {
			return nil, errors.New("upstream exploded")
		},
	}
	svc, _ := newService(store, provider, nil)

	_, err := svc.Chat(context.Background(), &domain.ChatRequest{UserID: 1, Message: "hi"})

	require.Error(t, err)
	require.Empty(t, store.messages)
	require.Empty(t, store.conversations)
}

func TestChat_VideoStub(t *testing.T) {
	store := newFakeStore()
	store.addUser(1, "")
	provider := &fakeProvider{}
	svc, _ := newService(store, provider, nil)

	result, err := svc.Chat(context.Background(), &domain.ChatRequest{
		UserID:  1,
		Message: "make me a movie",
		Model:   "sora",
	})
	require.NoError(t, err)

	require.Contains(t, result.Reply, "not available")
	require.Zero(t, result.Tokens)
	require.InDelta(t, 0, result.Cost, 1e-9)

	// No upstream call of any kind.
	require.Empty(t, provider.completeCalls)
	require.Empty(t, provider.generateCalls)

	// Assistant row carries no usage fields at all.
	messages, err := store.ListMessages(context.Background(), result.ConversationID)
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assistant := messages[1]
	require.Nil(t, assistant.PromptTokens)
	require.Nil(t, assistant.CompletionTokens)
	require.Nil(t, assistant.Cost)
	require.Nil(t, assistant.Model)
}

func TestChat_ImageGeneration(t *testing.T) {
	store := newFakeStore()
	store.addUser(1, "")
	provider := &fakeProvider{}
	svc, files := newService(store, provider, nil)

	result, err := svc.Chat(context.Background(), &domain.ChatRequest{
		UserID:  1,
		Message: "a red fox",
		Model:   "dall-e-3",
	})
	require.NoError(t, err)

	// Exactly one image record and one saved file.
	require.Len(t, store.images, 1)
	require.Len(t, files.saved, 1)
	require.Equal(t, "a red fox", store.images[0].Prompt)

	// Reply embeds the stored file with the prompt as alt text.
	require.Equal(t, "![a red fox](/images/img-1.png)", result.Reply)

	// Flat per-image price, zero tokens.
	require.InDelta(t, 0.04, result.CostNative, 1e-9)
	require.InDelta(t, 56.0, result.Cost, 1e-9)
	require.Zero(t, result.Tokens)

	// Conversation titled with the image label.
	conv, ok := store.conversations[result.ConversationID]
	require.True(t, ok)
	require.Equal(t, "Image generation", conv.Title)

	// No chat completion was attempted.
	require.Empty(t, provider.completeCalls)
	require.Len(t, provider.generateCalls, 1)
}

func TestChat_ImageGenerationFailureSurfaces(t *testing.T) {
	store := newFakeStore()
	store.addUser(1, "")
	provider := &fakeProvider{
		generateFunc: func(*domain.ImageGenerationRequest) (*domain.ImageData, error) {
			return nil, errors.New("content policy violation")
		},
	}
	svc, files := newService(store, provider, nil)

	_, err := svc.Chat(context.Background(), &domain.ChatRequest{
		UserID:  1,
		Message: "something forbidden",
		Model:   "dall-e-3",
	})

	require.Error(t, err)
	require.Contains(t, err.Error(), "content policy violation")
	require.Empty(t, files.saved)
	require.Empty(t, store.images)
	require.Empty(t, store.messages)
}

func TestChat_ImageAttachedUserTurn(t *testing.T) {
	store := newFakeStore()
	store.addUser(1, "")
	provider := &fakeProvider{}
	svc, _ := newService(store, provider, nil)

	result, err := svc.Chat(context.Background(), &domain.ChatRequest{
		UserID:  1,
		Message: "what is this?",
		Image:   "data:image/png;base64,AAAA",
	})
	require.NoError(t, err)

	// Stored user turn replaces raw image bytes with a marker.
	messages, err := store.ListMessages(context.Background(), result.ConversationID)
	require.NoError(t, err)
	require.Equal(t, "what is this? [image attached]", messages[0].Content)

	// The upstream final turn is a two-part structure, never one string.
	turns := provider.completeCalls[0].Turns
	last := turns[len(turns)-1]
	require.Len(t, last.Parts, 2)
	require.Equal(t, domain.ContentPartImage, last.Parts[1].Type)

	conv := store.conversations[result.ConversationID]
	require.Equal(t, "Image conversation", conv.Title)
}

func TestChat_TitleTruncation(t *testing.T) {
	store := newFakeStore()
	store.addUser(1, "")
	provider := &fakeProvider{}
	svc, _ := newService(store, provider, nil)

	long := strings.Repeat("abcde ", 10)
	result, err := svc.Chat(context.Background(), &domain.ChatRequest{UserID: 1, Message: long})
	require.NoError(t, err)

	conv := store.conversations[result.ConversationID]
	require.Len(t, []rune(conv.Title), 20)
}

func TestChat_ReplyCache(t *testing.T) {
	store := newFakeStore()
	store.addUser(1, "")
	provider := &fakeProvider{}
	cache := &fakeCache{entries: make(map[string]*domain.CachedReply)}
	svc, _ := newService(store, provider, cache)

	ctx := context.Background()

	// Two fresh conversations with the identical first turn assemble the
	// same payload, so the second is answered from cache.
	first, err := svc.Chat(ctx, &domain.ChatRequest{UserID: 1, Message: "same question"})
	require.NoError(t, err)

	second, err := svc.Chat(ctx, &domain.ChatRequest{UserID: 1, Message: "same question"})
	require.NoError(t, err)

	require.Len(t, provider.completeCalls, 1)
	require.Equal(t, first.Reply, second.Reply)
	require.Equal(t, first.Tokens, second.Tokens)

	// The cached turn is still persisted like a fresh one.
	messages, err := store.ListMessages(ctx, second.ConversationID)
	require.NoError(t, err)
	require.Len(t, messages, 2)
	require.NotNil(t, messages[1].Cost)
}

func TestDeleteImage_RemovesFileAndRow(t *testing.T) {
	store := newFakeStore()
	store.addUser(1, "")
	provider := &fakeProvider{}
	svc, files := newService(store, provider, nil)

	_, err := svc.Chat(context.Background(), &domain.ChatRequest{
		UserID:  1,
		Message: "a red fox",
		Model:   "dall-e-3",
	})
	require.NoError(t, err)
	require.Len(t, store.images, 1)

	err = svc.DeleteImage(context.Background(), store.images[0].ID)
	require.NoError(t, err)
	require.Empty(t, store.images)
	require.Len(t, files.removed, 1)
}

func TestMessages_CostConvertedForDisplay(t *testing.T) {
	store := newFakeStore()
	store.addUser(1, "")
	provider := &fakeProvider{}
	svc, _ := newService(store, provider, nil)

	result, err := svc.Chat(context.Background(), &domain.ChatRequest{UserID: 1, Message: "hi"})
	require.NoError(t, err)

	messages, err := svc.Messages(context.Background(), result.ConversationID)
	require.NoError(t, err)
	require.Len(t, messages, 2)

	// User turn has no cost; assistant cost is the display figure.
	require.Nil(t, messages[0].Cost)
	require.NotNil(t, messages[1].Cost)
	require.InDelta(t, result.Cost, *messages[1].Cost, 1e-9)

	// Reading twice yields the same figure, not a cumulative conversion.
	again, err := svc.Messages(context.Background(), result.ConversationID)
	require.NoError(t, err)
	require.InDelta(t, *messages[1].Cost, *again[1].Cost, 1e-9)
}
