package service

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/spec-kit/transport-portal/internal/config"
	"github.com/spec-kit/transport-portal/internal/events"
)

// NotificationService turns application events into citizen and staff
// notifications. Email and webhook delivery are stubs that log.
type NotificationService struct {
	dispatcher events.Dispatcher
	logger     *zap.Logger
	cfg        config.NotificationConfig
}

// NewNotificationService creates the service.
func NewNotificationService(dispatcher events.Dispatcher, logger *zap.Logger, cfg config.NotificationConfig) *NotificationService {
	return &NotificationService{
		dispatcher: dispatcher,
		logger:     logger,
		cfg:        cfg,
	}
}

// RegisterHandlers subscribes to events.
func (n *NotificationService) RegisterHandlers() {
	if n.dispatcher == nil {
		return
	}
	n.dispatcher.Subscribe(events.EventApplicationCreated, n.handleCreated)
	n.dispatcher.Subscribe(events.EventApplicationStatusChanged, n.handleStatusChanged)
	n.dispatcher.Subscribe(events.EventApplicationNoteAdded, n.handleNoteAdded)
	n.dispatcher.Subscribe(events.EventApplicationDeleted, n.handleDeleted)
}

func (n *NotificationService) handleCreated(ctx context.Context, event events.Event) error {
	n.logger.Info("ApplicationCreated", eventFields(event)...)
	n.sendEmailNotificationStub(ctx, event)
	return nil
}

func (n *NotificationService) handleStatusChanged(ctx context.Context, event events.Event) error {
	n.logger.Info("ApplicationStatusChanged", eventFields(event)...)
	n.sendEmailNotificationStub(ctx, event)
	n.sendWebhookNotificationStub(ctx, event)
	return nil
}

func (n *NotificationService) handleNoteAdded(ctx context.Context, event events.Event) error {
	n.logger.Info("ApplicationNoteAdded", eventFields(event)...)
	n.sendEmailNotificationStub(ctx, event)
	return nil
}

func (n *NotificationService) handleDeleted(ctx context.Context, event events.Event) error {
	n.logger.Info("ApplicationDeleted", eventFields(event)...)
	n.sendWebhookNotificationStub(ctx, event)
	return nil
}

func eventFields(event events.Event) []zap.Field {
	return []zap.Field{
		zap.String("event_id", event.ID),
		zap.String("kind", string(event.Kind)),
		zap.String("application_id", event.ApplicationID),
		zap.String("actor_id", event.Actor.ID),
		zap.Any("payload", event.Payload),
	}
}

func (n *NotificationService) sendEmailNotificationStub(_ context.Context, event events.Event) {
	if strings.TrimSpace(n.cfg.EmailFrom) == "" {
		return
	}
	n.logger.Debug("sendEmailNotificationStub",
		zap.String("from", n.cfg.EmailFrom),
		zap.String("to_user", event.OwnerID),
		zap.String("application_id", event.ApplicationID),
		zap.String("event_type", string(event.Type)))
}

func (n *NotificationService) sendWebhookNotificationStub(_ context.Context, event events.Event) {
	if strings.TrimSpace(n.cfg.WebhookURL) == "" {
		return
	}
	n.logger.Debug("sendWebhookNotificationStub",
		zap.String("url", n.cfg.WebhookURL),
		zap.String("application_id", event.ApplicationID),
		zap.String("event_type", string(event.Type)))
}
