package handlers

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/egt-labs/egt-gpt/internal/common"
)

type conversationIDReq struct {
	ConversationID string `json:"conversation_id"`
}

// HistoryUpdate is the second phase of a turn: the client echoes the
// assistant message so it becomes durable history.
func (h *Handler) HistoryUpdate(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}

	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, "invalid json")
		return
	}

	conv, err := h.ChatSvc.UpdateTurn(c.Request.Context(), p, req.turnRequest())
	if err != nil {
		h.respondError(c, err)
		return
	}

	common.OK(c, gin.H{
		"success": true,
		"data":    gin.H{"conversation_id": conv.ID, "title": conv.Title},
	})
}

func (h *Handler) HistoryList(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}

	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "25"))

	convs, err := h.ChatSvc.ListConversations(c.Request.Context(), p, offset, limit)
	if err != nil {
		h.respondError(c, err)
		return
	}
	common.OK(c, convs)
}

func (h *Handler) HistoryRead(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}

	var req conversationIDReq
	if err := c.ShouldBindJSON(&req); err != nil || req.ConversationID == "" {
		common.Fail(c, http.StatusBadRequest, "conversation_id is required")
		return
	}

	conv, msgs, err := h.ChatSvc.ReadConversation(c.Request.Context(), p, req.ConversationID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	common.OK(c, gin.H{
		"conversation_id": conv.ID,
		"title":           conv.Title,
		"messages":        msgs,
	})
}

func (h *Handler) HistoryRename(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}

	var req struct {
		ConversationID string `json:"conversation_id"`
		Title          string `json:"title"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.ConversationID == "" {
		common.Fail(c, http.StatusBadRequest, "conversation_id is required")
		return
	}

	conv, err := h.ChatSvc.RenameConversation(c.Request.Context(), p, req.ConversationID, req.Title)
	if err != nil {
		h.respondError(c, err)
		return
	}
	common.OK(c, conv)
}

func (h *Handler) HistoryDelete(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}

	var req conversationIDReq
	if err := c.ShouldBindJSON(&req); err != nil || req.ConversationID == "" {
		common.Fail(c, http.StatusBadRequest, "conversation_id is required")
		return
	}

	// idempotent: deleting an absent conversation still succeeds
	if _, err := h.ChatSvc.DeleteConversation(c.Request.Context(), p, req.ConversationID); err != nil {
		h.respondError(c, err)
		return
	}
	common.OK(c, gin.H{
		"message":         "Successfully deleted conversation and messages",
		"conversation_id": req.ConversationID,
	})
}

func (h *Handler) HistoryDeleteAll(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}

	if _, err := h.ChatSvc.DeleteAllConversations(c.Request.Context(), p); err != nil {
		h.respondError(c, err)
		return
	}
	common.OK(c, gin.H{
		"message": fmt.Sprintf("Successfully deleted conversation and messages for user %s", p.ID),
	})
}

func (h *Handler) HistoryClear(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}

	var req conversationIDReq
	if err := c.ShouldBindJSON(&req); err != nil || req.ConversationID == "" {
		common.Fail(c, http.StatusBadRequest, "conversation_id is required")
		return
	}

	if _, err := h.ChatSvc.ClearMessages(c.Request.Context(), p, req.ConversationID); err != nil {
		h.respondError(c, err)
		return
	}
	common.OK(c, gin.H{
		"message":         "Successfully deleted messages in conversation",
		"conversation_id": req.ConversationID,
	})
}

func (h *Handler) HistoryMessageFeedback(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}

	var req struct {
		MessageID string `json:"message_id"`
		Feedback  string `json:"message_feedback"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.MessageID == "" {
		common.Fail(c, http.StatusBadRequest, "message_id is required")
		return
	}
	if req.Feedback == "" {
		common.Fail(c, http.StatusBadRequest, "message_feedback is required")
		return
	}

	if _, err := h.ChatSvc.MessageFeedback(c.Request.Context(), p, req.MessageID, req.Feedback); err != nil {
		h.respondError(c, err)
		return
	}
	common.OK(c, gin.H{
		"message":    "Successfully updated message with feedback",
		"message_id": req.MessageID,
	})
}

// HistoryEnsure reports whether the backing container is usable; 422 means
// the store is misconfigured rather than the request being wrong.
func (h *Handler) HistoryEnsure(c *gin.Context) {
	ok, diag := h.ChatSvc.Ensure(c.Request.Context())
	if !ok {
		common.Fail(c, http.StatusUnprocessableEntity, diag)
		return
	}
	common.OK(c, gin.H{"message": diag})
}
