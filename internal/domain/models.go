package domain

import "time"

// Message roles. System turns are synthesized per request and never persisted.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// User owns conversations and generated images. Signup and authentication are
// handled elsewhere; this service only resolves users by identifier.
type User struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	APIKey    string    `json:"-"`
	CreatedAt time.Time `json:"created_at"`
}

// Conversation groups an ordered sequence of messages for one user.
type Conversation struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"user_id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
}

// Message is one persisted turn of a conversation. Usage fields are either
// all set (from a single upstream response) or all nil.
type Message struct {
	ID               int64     `json:"id"`
	ConversationID   int64     `json:"conversation_id"`
	Role             string    `json:"role"`
	Content          string    `json:"content"`
	PromptTokens     *int64    `json:"prompt_tokens,omitempty"`
	CompletionTokens *int64    `json:"completion_tokens,omitempty"`
	Cost             *float64  `json:"cost,omitempty"` // USD
	Model            *string   `json:"model,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}

// GeneratedImage records one image produced by the image-generation branch.
// Rows are deleted independently of conversations.
type GeneratedImage struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"user_id"`
	Prompt    string    `json:"prompt"`
	FilePath  string    `json:"file_path"`
	CreatedAt time.Time `json:"created_at"`
}

// ContentPartType discriminates the parts of a multimodal turn.
type ContentPartType string

const (
	ContentPartText  ContentPartType = "text"
	ContentPartImage ContentPartType = "image"
)

// ContentPart is one piece of a turn's content. For image parts Data holds a
// data URI or URL, never raw bytes.
type ContentPart struct {
	Type ContentPartType `json:"type"`
	Data string          `json:"data"`
}

// Turn is one role-tagged unit of the upstream request payload. A plain text
// turn has a single text part; a multimodal turn has a text part followed by
// an image part.
type Turn struct {
	Role  string        `json:"role"`
	Parts []ContentPart `json:"parts"`
}

// TextTurn builds a single-part text turn.
func TextTurn(role, text string) Turn {
	return Turn{
		Role:  role,
		Parts: []ContentPart{{Type: ContentPartText, Data: text}},
	}
}

// Text returns the turn's first text part, or "" if it has none.
func (t Turn) Text() string {
	for _, p := range t.Parts {
		if p.Type == ContentPartText {
			return p.Data
		}
	}
	return ""
}

// ImageRef returns the turn's first image part, or "" if it has none.
func (t Turn) ImageRef() string {
	for _, p := range t.Parts {
		if p.Type == ContentPartImage {
			return p.Data
		}
	}
	return ""
}

// Usage tracks token consumption reported by an upstream response.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// CompletionRequest is the payload submitted to the chat completion interface.
type CompletionRequest struct {
	Model string
	Turns []Turn

	// APIKey overrides the process-wide key when the user carries their own.
	APIKey string
}

// CompletionResponse is a unified chat completion result. Usage is nil when
// the upstream response reported none.
type CompletionResponse struct {
	ID      string
	Model   string
	Content string
	Usage   *Usage
}

// ImageGenerationRequest asks the provider to render one image from a prompt.
type ImageGenerationRequest struct {
	Model  string
	Prompt string
	APIKey string
}

// ImageData holds the raw bytes of a generated image.
type ImageData struct {
	Bytes []byte
	Ext   string // file extension including the dot, e.g. ".png"
}

// ChatRequest is one inbound chat call.
type ChatRequest struct {
	UserID            int64  `json:"userId"`
	Message           string `json:"message"`
	ConversationID    int64  `json:"conversationId,omitempty"`
	Model             string `json:"model,omitempty"`
	Image             string `json:"image,omitempty"` // data URI or URL
	SystemInstruction string `json:"systemInstruction,omitempty"`
}

// ChatResult is the outcome of a successful chat call. Cost is the display
// currency figure; CostNative is the persisted USD value.
type ChatResult struct {
	Reply          string  `json:"reply"`
	ConversationID int64   `json:"conversationId"`
	Cost           float64 `json:"cost"`
	CostNative     float64 `json:"-"`
	Tokens         int     `json:"tokens"`
}
