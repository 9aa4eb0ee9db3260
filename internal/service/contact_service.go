package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/learnhub-api/internal/dto"
	"github.com/noah-isme/learnhub-api/internal/models"
	appErrors "github.com/noah-isme/learnhub-api/pkg/errors"
	"github.com/noah-isme/learnhub-api/pkg/validation"
)

type contactRepository interface {
	Create(ctx context.Context, msg *models.ContactMessage) error
	ListUnread(ctx context.Context) ([]models.ContactMessage, error)
	MarkRead(ctx context.Context, id string) (*models.ContactMessage, error)
}

// ContactService stores public enquiries for the admin inbox.
type ContactService struct {
	repo      contactRepository
	notifier  Notifier
	validator *validator.Validate
	logger    *zap.Logger
}

// NewContactService constructs a ContactService.
func NewContactService(repo contactRepository, notifier Notifier, validate *validator.Validate, logger *zap.Logger) *ContactService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validation.New()
	}
	return &ContactService{repo: repo, notifier: notifier, validator: validate, logger: logger}
}

// Send stores a contact message and pings the admin chat.
func (s *ContactService) Send(ctx context.Context, req dto.ContactRequest) (*models.ContactMessage, error) {
	req.Name = strings.TrimSpace(req.Name)
	req.Email = strings.TrimSpace(req.Email)
	req.Message = strings.TrimSpace(req.Message)
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, validation.Describe(err))
	}

	msg := &models.ContactMessage{Name: req.Name, Email: req.Email, Body: req.Message}
	if err := s.repo.Create(ctx, msg); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save message")
	}

	if err := s.notifier.NotifyAdmins(fmt.Sprintf("New contact message from %s <%s>", msg.Name, msg.Email)); err != nil {
		s.logger.Warn("failed to queue contact alert", zap.String("message_id", msg.ID), zap.Error(err))
	}
	return msg, nil
}

// ListUnread returns unread messages, newest first.
func (s *ContactService) ListUnread(ctx context.Context) ([]models.ContactMessage, error) {
	messages, err := s.repo.ListUnread(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list messages")
	}
	if messages == nil {
		messages = []models.ContactMessage{}
	}
	return messages, nil
}

// MarkRead flags a message read.
func (s *ContactService) MarkRead(ctx context.Context, req dto.MarkReadRequest) (*models.ContactMessage, error) {
	req.MessageID = strings.TrimSpace(req.MessageID)
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, validation.Describe(err))
	}
	msg, err := s.repo.MarkRead(ctx, req.MessageID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "message not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to mark message read")
	}
	return msg, nil
}
