package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/applifix/backend/internal/classify"
	"github.com/applifix/backend/internal/models"
	"github.com/applifix/backend/internal/service"
)

type ChatBody struct {
	SessionID string                 `json:"session_id"`
	Message   string                 `json:"message" validate:"required"`
	Customer  *classify.CustomerInfo `json:"customer,omitempty"`
}

// @Summary Chat message
// @Description Sends one customer message through the conversation. A new session is started when session_id is empty or unknown.
// @Tags chat
// @Accept json
// @Produce json
// @Param body body ChatBody true "Message"
// @Success 200 {object} service.ChatResponse
// @Failure 400 {object} map[string]any
// @Router /api/chat [post]
func (h *Handler) Chat(c *gin.Context) {
	var body ChatBody
	if err := c.ShouldBindJSON(&body); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "Invalid payload", err.Error())
		return
	}
	body.Message = strings.TrimSpace(body.Message)
	if err := h.Validator.Struct(body); err != nil {
		writeError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Validation failed", err.Error())
		return
	}

	resp, err := h.ChatService.HandleMessage(c.Request.Context(), service.ChatRequest{
		SessionID: strings.TrimSpace(body.SessionID),
		Message:   body.Message,
		Customer:  publicCustomer(body.Customer),
		Source:    models.SourceChat,
	})
	if err != nil {
		if errors.Is(err, service.ErrEmptyMessage) {
			writeError(c, http.StatusBadRequest, "VALIDATION_ERROR", err.Error(), nil)
			return
		}
		h.Logger.Error().Err(err).Str("session_id", body.SessionID).Msg("chat failed")
		writeError(c, http.StatusInternalServerError, "CHAT_ERROR", "Message could not be processed", err.Error())
		return
	}
	c.JSON(http.StatusOK, resp)
}

// publicCustomer keeps only the contact fields of an anonymous caller.
// Commercial status and history raise priority, so they are not taken on trust.
func publicCustomer(c *classify.CustomerInfo) *classify.CustomerInfo {
	if c == nil {
		return nil
	}
	return &classify.CustomerInfo{Name: c.Name, Phone: c.Phone}
}

type ClassifyBody struct {
	Text         string                        `json:"text" validate:"required"`
	Conversation *classify.ConversationSnippet `json:"conversation,omitempty"`
	Customer     *classify.CustomerInfo        `json:"customer,omitempty"`
}

type ClassifyResponse struct {
	classify.ClassificationResult
	StorePriority string `json:"store_priority"`
}

// @Summary Classify a problem
// @Tags classify
// @Accept json
// @Produce json
// @Param body body ClassifyBody true "Problem"
// @Success 200 {object} ClassifyResponse
// @Failure 400 {object} map[string]any
// @Security AdminKey
// @Router /api/classify [post]
func (h *Handler) Classify(c *gin.Context) {
	var body ClassifyBody
	if err := c.ShouldBindJSON(&body); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "Invalid payload", err.Error())
		return
	}
	body.Text = strings.TrimSpace(body.Text)
	if err := h.Validator.Struct(body); err != nil {
		writeError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Validation failed", err.Error())
		return
	}

	res := h.Resolver.Analyze(c.Request.Context(), body.Text, body.Conversation, body.Customer)
	c.JSON(http.StatusOK, ClassifyResponse{ClassificationResult: res, StorePriority: res.StorePriority()})
}

// @Summary Session state
// @Tags sessions
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} conversation.Snapshot
// @Failure 404 {object} map[string]any
// @Security AdminKey
// @Router /api/sessions/{id} [get]
func (h *Handler) SessionDetails(c *gin.Context) {
	snap, ok := h.ChatService.Snapshot(c.Param("id"))
	if !ok {
		writeError(c, http.StatusNotFound, "NOT_FOUND", "Session not found", nil)
		return
	}
	c.JSON(http.StatusOK, snap)
}

// @Summary Drop a session
// @Tags sessions
// @Param id path string true "Session ID"
// @Success 204
// @Failure 404 {object} map[string]any
// @Security AdminKey
// @Router /api/sessions/{id} [delete]
func (h *Handler) SessionDelete(c *gin.Context) {
	if !h.ChatService.Sessions.Delete(c.Param("id")) {
		writeError(c, http.StatusNotFound, "NOT_FOUND", "Session not found", nil)
		return
	}
	c.Status(http.StatusNoContent)
}
