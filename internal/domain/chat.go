package domain

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/minbak/hearth/internal/observability"
)

// videoStubReply answers video-family models without an upstream call.
const videoStubReply = "Video generation is not available yet. Please check back later."

// imageAttachedMarker replaces raw image bytes in the persisted user turn.
const imageAttachedMarker = "[image attached]"

const titleMaxRunes = 20

// ChatOptions carries the process-wide chat settings.
type ChatOptions struct {
	DefaultModel string
	HistoryLimit int
	CacheTTL     time.Duration
}

// ChatService runs one chat request end to end: resolve the conversation,
// persist the user turn, dispatch to the branch selected by the model class,
// persist the assistant turn, respond. The three writes share one storage
// transaction, so a failed dispatch leaves no partial state behind.
type ChatService struct {
	store      ConversationStore
	provider   Provider
	images     ImageFileStore
	cache      ReplyCache // nil disables caching
	accountant *Accountant
	opts       ChatOptions
	branches   map[ModelClass]dispatchBranch
}

// NewChatService creates the chat service (DI constructor).
func NewChatService(
	store ConversationStore,
	provider Provider,
	images ImageFileStore,
	cache ReplyCache,
	accountant *Accountant,
	opts ChatOptions,
) *ChatService {
	s := &ChatService{
		store:      store,
		provider:   provider,
		images:     images,
		cache:      cache,
		accountant: accountant,
		opts:       opts,
	}
	s.branches = map[ModelClass]dispatchBranch{
		ModelTextChat:        &textChatBranch{svc: s},
		ModelImageGeneration: &imageGenerationBranch{svc: s},
		ModelVideoStub:       &videoStubBranch{},
	}
	return s
}

// branchCall is the material a dispatch branch works with.
type branchCall struct {
	user           *User
	conversationID int64
	model          string
	history        []Message
	req            *ChatRequest
}

// branchOutcome is what a branch produced. Usage, cost and model are set
// together when a single upstream response reported usage, and all nil
// otherwise; the persisted assistant row mirrors that.
type branchOutcome struct {
	reply string
	usage *Usage
	cost  *float64
	model *string
}

// dispatchBranch is one behavior of the model dispatcher.
type dispatchBranch interface {
	run(ctx context.Context, tx ConversationTx, call *branchCall) (*branchOutcome, error)
}

// Chat handles one inbound chat request.
func (s *ChatService) Chat(ctx context.Context, req *ChatRequest) (*ChatResult, error) {
	if req == nil {
		return nil, errors.New("request cannot be nil")
	}

	user, err := s.store.GetUser(ctx, req.UserID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("%w: %d", ErrUnknownUser, req.UserID)
		}
		return nil, fmt.Errorf("resolve user: %w", err)
	}

	model := req.Model
	if model == "" {
		model = s.opts.DefaultModel
	}
	class := ClassifyModel(model)

	ctx = observability.WithUserID(ctx, user.ID)
	ctx = observability.WithModel(ctx, model)

	logger := observability.FromContext(ctx)
	logger.Info("chat request received",
		observability.String("class", class.String()),
		observability.Bool("has_image", req.Image != ""),
	)

	var result *ChatResult
	err = s.store.WithTx(ctx, func(tx ConversationTx) error {
		conversationID, txErr := s.resolveConversation(ctx, tx, user.ID, class, req)
		if txErr != nil {
			return txErr
		}
		ctx := observability.WithConversationID(ctx, conversationID)

		history, txErr := tx.History(ctx, conversationID, s.opts.HistoryLimit)
		if txErr != nil {
			return fmt.Errorf("load history: %w", txErr)
		}

		if txErr = tx.AppendMessage(ctx, &Message{
			ConversationID: conversationID,
			Role:           RoleUser,
			Content:        storedUserContent(req),
		}); txErr != nil {
			return fmt.Errorf("persist user turn: %w", txErr)
		}

		outcome, txErr := s.branches[class].run(ctx, tx, &branchCall{
			user:           user,
			conversationID: conversationID,
			model:          model,
			history:        history,
			req:            req,
		})
		if txErr != nil {
			return txErr
		}

		assistant := &Message{
			ConversationID: conversationID,
			Role:           RoleAssistant,
			Content:        outcome.reply,
			Cost:           outcome.cost,
			Model:          outcome.model,
		}
		if outcome.usage != nil {
			prompt := int64(outcome.usage.PromptTokens)
			completion := int64(outcome.usage.CompletionTokens)
			assistant.PromptTokens = &prompt
			assistant.CompletionTokens = &completion
		}
		if txErr = tx.AppendMessage(ctx, assistant); txErr != nil {
			return fmt.Errorf("persist assistant turn: %w", txErr)
		}

		var native float64
		if outcome.cost != nil {
			native = *outcome.cost
		}
		var tokens int
		if outcome.usage != nil {
			tokens = outcome.usage.TotalTokens
		}

		result = &ChatResult{
			Reply:          outcome.reply,
			ConversationID: conversationID,
			Cost:           s.accountant.Display(native),
			CostNative:     native,
			Tokens:         tokens,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info("chat request completed",
		observability.Int64("conversation_id", result.ConversationID),
		observability.Int("tokens", result.Tokens),
		observability.Float64("cost_usd", result.CostNative),
	)

	return result, nil
}

// resolveConversation returns the target conversation, creating one titled
// after the first turn when the request names none.
func (s *ChatService) resolveConversation(
	ctx context.Context,
	tx ConversationTx,
	userID int64,
	class ModelClass,
	req *ChatRequest,
) (int64, error) {
	if req.ConversationID != 0 {
		conv, err := tx.GetConversation(ctx, req.ConversationID)
		if err != nil {
			return 0, fmt.Errorf("resolve conversation: %w", err)
		}
		return conv.ID, nil
	}

	id, err := tx.CreateConversation(ctx, userID, conversationTitle(class, req))
	if err != nil {
		return 0, fmt.Errorf("create conversation: %w", err)
	}
	return id, nil
}

// conversationTitle derives a new conversation's title: a fixed label for
// image and vision turns, otherwise the first message clipped to 20 runes.
func conversationTitle(class ModelClass, req *ChatRequest) string {
	if class == ModelImageGeneration {
		return "Image generation"
	}
	if req.Image != "" {
		return "Image conversation"
	}

	title := strings.TrimSpace(req.Message)
	if title == "" {
		return "New conversation"
	}
	if runes := []rune(title); len(runes) > titleMaxRunes {
		return string(runes[:titleMaxRunes])
	}
	return title
}

// storedUserContent is the persisted form of the new user turn. Raw image
// bytes are replaced with a textual marker.
func storedUserContent(req *ChatRequest) string {
	if req.Image == "" {
		return req.Message
	}
	return strings.TrimSpace(req.Message + " " + imageAttachedMarker)
}

// textChatBranch submits the assembled turns to the chat completion
// interface with the exact selected model identifier.
type textChatBranch struct {
	svc *ChatService
}

func (b *textChatBranch) run(ctx context.Context, _ ConversationTx, call *branchCall) (*branchOutcome, error) {
	turns := AssembleTurns(call.history, call.model, call.req.SystemInstruction, NewInput{
		Text:     call.req.Message,
		ImageRef: call.req.Image,
	})

	resp, err := b.complete(ctx, &CompletionRequest{
		Model:  call.model,
		Turns:  turns,
		APIKey: call.user.APIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("chat completion: %w", err)
	}

	outcome := &branchOutcome{reply: resp.Content}
	if resp.Usage != nil {
		cost := b.svc.accountant.TokenCost(call.model, resp.Usage)
		model := call.model
		outcome.usage = resp.Usage
		outcome.cost = &cost
		outcome.model = &model
	}
	return outcome, nil
}

// complete consults the reply cache before calling the provider. Cache
// failures degrade to a provider call.
func (b *textChatBranch) complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error) {
	if b.svc.cache == nil {
		return b.svc.provider.Complete(ctx, req)
	}

	logger := observability.FromContext(ctx)
	key := replyCacheKey(req)

	cached, err := b.svc.cache.Get(ctx, key)
	if err != nil && !errors.Is(err, ErrCacheMiss) {
		logger.Warn("reply cache get failed, continuing without cache", observability.Error(err))
	}
	if cached != nil {
		logger.Info("reply cache hit", observability.String("cache_key", key))
		return &CompletionResponse{
			Model:   cached.Model,
			Content: cached.Content,
			Usage:   cached.Usage,
		}, nil
	}

	resp, err := b.svc.provider.Complete(ctx, req)
	if err != nil {
		return nil, err
	}

	if setErr := b.svc.cache.Set(ctx, key, &CachedReply{
		Content:  resp.Content,
		Model:    resp.Model,
		Usage:    resp.Usage,
		CachedAt: time.Now(),
	}, b.svc.opts.CacheTTL); setErr != nil {
		logger.Warn("reply cache set failed", observability.Error(setErr))
	}

	return resp, nil
}

// replyCacheKey hashes the model and the full assembled turn sequence, so
// only byte-identical requests share an entry.
func replyCacheKey(req *CompletionRequest) string {
	payload, _ := json.Marshal(struct {
		Model string `json:"model"`
		Turns []Turn `json:"turns"`
	}{Model: req.Model, Turns: req.Turns})

	sum := sha256.Sum256(payload)
	return "hearth:reply:" + hex.EncodeToString(sum[:])
}

// imageGenerationBranch renders the input text as a generation prompt,
// persists the produced file and records a generated-image row. Failures
// surface to the caller like any other upstream error.
type imageGenerationBranch struct {
	svc *ChatService
}

func (b *imageGenerationBranch) run(ctx context.Context, tx ConversationTx, call *branchCall) (*branchOutcome, error) {
	img, err := b.svc.provider.GenerateImage(ctx, &ImageGenerationRequest{
		Model:  call.model,
		Prompt: call.req.Message,
		APIKey: call.user.APIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("image generation: %w", err)
	}

	filename, err := b.svc.images.Save(img.Bytes, img.Ext)
	if err != nil {
		return nil, fmt.Errorf("store image file: %w", err)
	}

	if err := tx.InsertImage(ctx, &GeneratedImage{
		UserID:   call.user.ID,
		Prompt:   call.req.Message,
		FilePath: filename,
	}); err != nil {
		return nil, fmt.Errorf("record generated image: %w", err)
	}

	cost := b.svc.accountant.ImageCost(call.model, 1)
	model := call.model

	return &branchOutcome{
		reply: fmt.Sprintf("![%s](%s)", call.req.Message, b.svc.images.URLPath(filename)),
		usage: &Usage{},
		cost:  &cost,
		model: &model,
	}, nil
}

// videoStubBranch answers with a fixed placeholder. No upstream call is
// made and no usage is recorded.
type videoStubBranch struct{}

func (b *videoStubBranch) run(context.Context, ConversationTx, *branchCall) (*branchOutcome, error) {
	return &branchOutcome{reply: videoStubReply}, nil
}
