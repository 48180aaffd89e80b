package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/egt-labs/egt-gpt/internal/ai"
	"github.com/egt-labs/egt-gpt/internal/common"
	"github.com/egt-labs/egt-gpt/internal/conversation"
	"github.com/egt-labs/egt-gpt/internal/history"
	"github.com/egt-labs/egt-gpt/internal/httpapi/middleware"
	"github.com/egt-labs/egt-gpt/internal/identity"
)

type chatRequest struct {
	ConversationID  string                     `json:"conversation_id"`
	GPTModel        string                     `json:"gptModel"`
	Messages        []conversation.TurnMessage `json:"messages"`
	HistoryMetadata *ai.HistoryMetadata        `json:"history_metadata,omitempty"`
}

func (r *chatRequest) conversationID() string {
	if r.ConversationID != "" {
		return r.ConversationID
	}
	if r.HistoryMetadata != nil {
		return r.HistoryMetadata.ConversationID
	}
	return ""
}

func (r *chatRequest) turnRequest() conversation.TurnRequest {
	return conversation.TurnRequest{
		ConversationID: r.conversationID(),
		Model:          r.GPTModel,
		Messages:       r.Messages,
	}
}

func principal(c *gin.Context) (*identity.Principal, bool) {
	p, ok := middleware.PrincipalFromContext(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, "unauthorized")
	}
	return p, ok
}

// respondError translates service errors into the client-facing taxonomy.
func (h *Handler) respondError(c *gin.Context, err error) {
	var verr *conversation.ValidationError
	switch {
	case errors.As(err, &verr):
		common.Fail(c, http.StatusBadRequest, verr.Message)
	case errors.Is(err, history.ErrNotFound):
		common.Fail(c, http.StatusNotFound, "conversation not found")
	case errors.Is(err, ai.ErrProviderTimeout):
		common.Fail(c, http.StatusInternalServerError, "provider call timed out")
	default:
		var perr *ai.ProviderError
		if errors.As(err, &perr) {
			h.Logger.Error().Int("status", perr.StatusCode).Str("msg", perr.Message).Msg("provider error")
			common.Fail(c, http.StatusInternalServerError, perr.Message)
			return
		}
		h.Logger.Error().Err(err).Str("path", c.Request.URL.Path).Msg("request failed")
		common.Fail(c, http.StatusInternalServerError, err.Error())
	}
}

// writeTurn hands the relay output to the transport: a newline-delimited
// fragment stream or a single completion object, whichever the turn carries.
func (h *Handler) writeTurn(c *gin.Context, turn *conversation.Turn) {
	id := "chatcmpl-" + uuid.NewString()
	created := time.Now().Unix()

	if turn.Result != nil {
		common.OK(c, ai.FrameResult(id, turn.Model, created, turn.Metadata, turn.Result))
		return
	}

	c.Header("Content-Type", "application/json-lines")
	c.Status(http.StatusOK)
	if err := ai.WriteNDJSON(c.Writer, id, turn.Model, created, turn.Metadata, turn.Fragments, turn.Errs); err != nil {
		// headers are gone; the error record is already on the wire
		h.Logger.Error().Err(err).Msg("stream aborted")
	}
}

// Conversation relays a chat turn without persisting history.
func (h *Handler) Conversation(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, "invalid json")
		return
	}

	turn, err := h.ChatSvc.Relay(c.Request.Context(), req.turnRequest())
	if err != nil {
		h.respondError(c, err)
		return
	}
	h.writeTurn(c, turn)
}

// HistoryGenerate runs a full turn: ensure the conversation, persist the
// user message, and relay. The assistant reply is persisted later by
// HistoryUpdate once the client has received it.
func (h *Handler) HistoryGenerate(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}

	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, "invalid json")
		return
	}

	turn, err := h.ChatSvc.GenerateTurn(c.Request.Context(), p, req.turnRequest())
	if err != nil {
		h.respondError(c, err)
		return
	}
	h.writeTurn(c, turn)
}
