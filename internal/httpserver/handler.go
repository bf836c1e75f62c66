package httpserver

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/minbak/hearth/internal/domain"
	"github.com/minbak/hearth/internal/observability"
)

// Handler handles HTTP requests.
type Handler struct {
	chat *domain.ChatService
}

// NewHandler creates a new HTTP handler (DI constructor).
func NewHandler(chat *domain.ChatService) *Handler {
	return &Handler{
		chat: chat,
	}
}

// HandleChat processes one chat turn.
func (h *Handler) HandleChat(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req domain.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	logger := observability.FromContext(ctx)
	logger.Info("chat request received",
		observability.Int64("user_id", req.UserID),
		observability.String("model", req.Model),
	)

	result, err := h.chat.Chat(ctx, &req)
	if err != nil {
		if errors.Is(err, domain.ErrUnknownUser) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		logger.Error("chat request failed", observability.Error(err))
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	logger.Info("chat request succeeded",
		observability.Int("tokens", result.Tokens),
		observability.Float64("cost", result.Cost),
	)

	writeJSON(w, http.StatusOK, result)
}

// HandleListConversations returns a user's conversations, newest first.
func (h *Handler) HandleListConversations(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathID(w, r, "userID")
	if !ok {
		return
	}

	conversations, err := h.chat.Conversations(r.Context(), userID)
	if err != nil {
		observability.FromContext(r.Context()).Error("list conversations failed", observability.Error(err))
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, conversations)
}

// HandleListMessages returns a conversation's messages in creation order,
// with costs converted to the display currency.
func (h *Handler) HandleListMessages(w http.ResponseWriter, r *http.Request) {
	conversationID, ok := pathID(w, r, "conversationID")
	if !ok {
		return
	}

	messages, err := h.chat.Messages(r.Context(), conversationID)
	if err != nil {
		observability.FromContext(r.Context()).Error("list messages failed", observability.Error(err))
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, messages)
}

// HandleDeleteConversation removes a conversation and its messages.
func (h *Handler) HandleDeleteConversation(w http.ResponseWriter, r *http.Request) {
	conversationID, ok := pathID(w, r, "conversationID")
	if !ok {
		return
	}

	if err := h.chat.DeleteConversation(r.Context(), conversationID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "conversation not found")
			return
		}
		observability.FromContext(r.Context()).Error("delete conversation failed", observability.Error(err))
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "deleted"})
}

// HandleListImages returns a user's generated images, newest first.
func (h *Handler) HandleListImages(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathID(w, r, "userID")
	if !ok {
		return
	}

	images, err := h.chat.Images(r.Context(), userID)
	if err != nil {
		observability.FromContext(r.Context()).Error("list images failed", observability.Error(err))
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, images)
}

// HandleDeleteImage removes a generated image's file and row.
func (h *Handler) HandleDeleteImage(w http.ResponseWriter, r *http.Request) {
	imageID, ok := pathID(w, r, "imageID")
	if !ok {
		return
	}

	if err := h.chat.DeleteImage(r.Context(), imageID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "image not found")
			return
		}
		observability.FromContext(r.Context()).Error("delete image failed", observability.Error(err))
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "deleted"})
}

// HandleHealth handles health check requests.
func (h *Handler) HandleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid "+name)
		return 0, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		// Status already written, nothing left to do.
		return
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
