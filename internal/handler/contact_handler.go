package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/learnhub-api/internal/dto"
	"github.com/noah-isme/learnhub-api/internal/models"
	"github.com/noah-isme/learnhub-api/pkg/response"
)

type contactService interface {
	Send(ctx context.Context, req dto.ContactRequest) (*models.ContactMessage, error)
	ListUnread(ctx context.Context) ([]models.ContactMessage, error)
	MarkRead(ctx context.Context, req dto.MarkReadRequest) (*models.ContactMessage, error)
}

// ContactHandler serves the public contact form and the admin inbox.
type ContactHandler struct {
	service contactService
}

// NewContactHandler constructs the handler.
func NewContactHandler(svc contactService) *ContactHandler {
	return &ContactHandler{service: svc}
}

// Send godoc
// @Summary Send a contact message
// @Tags Contact
// @Accept json
// @Produce json
// @Param payload body dto.ContactRequest true "Message"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 429 {object} response.Envelope
// @Router /admin/contact-us [post]
func (h *ContactHandler) Send(c *gin.Context) {
	var req dto.ContactRequest
	if !bindJSON(c, &req, "invalid contact payload") {
		return
	}
	msg, err := h.service.Send(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Message(c, http.StatusCreated, "message received", msg)
}

// Unread godoc
// @Summary List unread contact messages
// @Tags Contact
// @Produce json
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /admin/messages/all [get]
func (h *ContactHandler) Unread(c *gin.Context) {
	messages, err := h.service.ListUnread(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, messages, nil)
}

// MarkRead godoc
// @Summary Mark a contact message read
// @Tags Contact
// @Accept json
// @Produce json
// @Param payload body dto.MarkReadRequest true "Message ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Security BearerAuth
// @Router /admin/message/read [patch]
func (h *ContactHandler) MarkRead(c *gin.Context) {
	var req dto.MarkReadRequest
	if !bindJSON(c, &req, "invalid payload") {
		return
	}
	msg, err := h.service.MarkRead(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, msg, nil)
}
