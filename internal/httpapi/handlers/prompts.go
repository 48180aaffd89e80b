package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/egt-labs/egt-gpt/internal/common"
	"github.com/egt-labs/egt-gpt/internal/prompts"
)

func (h *Handler) promptError(c *gin.Context, err error) {
	if errors.Is(err, prompts.ErrNotFound) {
		common.Fail(c, http.StatusNotFound, "prompt not found")
		return
	}
	h.respondError(c, err)
}

// PromptAdd saves a prompt to the caller's library.
func (h *Handler) PromptAdd(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}

	var req struct {
		Prompt string   `json:"prompt"`
		Tags   []string `json:"tags"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.Prompt == "" {
		common.Fail(c, http.StatusBadRequest, "prompt is required")
		return
	}

	created, err := h.Prompts.Create(c.Request.Context(), p.ID, p.Name, req.Prompt, req.Tags)
	if err != nil {
		h.promptError(c, err)
		return
	}
	common.OK(c, created)
}

func (h *Handler) PromptList(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}

	list, err := h.Prompts.List(c.Request.Context(), p.ID)
	if err != nil {
		h.promptError(c, err)
		return
	}
	common.OK(c, list)
}

func (h *Handler) PromptEdit(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}

	var req struct {
		PromptID string   `json:"promptId"`
		Prompt   string   `json:"prompt"`
		Tags     []string `json:"tags"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.PromptID == "" {
		common.Fail(c, http.StatusBadRequest, "promptId is required")
		return
	}
	if req.Prompt == "" {
		common.Fail(c, http.StatusBadRequest, "prompt is required")
		return
	}

	updated, err := h.Prompts.Update(c.Request.Context(), p.ID, req.PromptID, req.Prompt, req.Tags)
	if err != nil {
		h.promptError(c, err)
		return
	}
	common.OK(c, updated)
}

func (h *Handler) PromptDelete(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}

	var req struct {
		PromptID string `json:"promptId"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.PromptID == "" {
		common.Fail(c, http.StatusBadRequest, "promptId is required")
		return
	}

	// idempotent, like conversation delete
	if _, err := h.Prompts.Delete(c.Request.Context(), p.ID, req.PromptID); err != nil {
		h.promptError(c, err)
		return
	}
	common.OK(c, gin.H{
		"message":   "Successfully deleted prompt",
		"prompt_id": req.PromptID,
	})
}
