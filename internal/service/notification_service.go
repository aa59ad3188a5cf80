package service

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/civic-desk/complaint-portal/internal/config"
	"github.com/civic-desk/complaint-portal/internal/events"
)

// NotificationService records access, presence and complaint events for audit.
type NotificationService struct {
	dispatcher events.Dispatcher
	logger     *zap.Logger
	cfg        config.NotificationConfig
}

// NewNotificationService creates the service.
func NewNotificationService(dispatcher events.Dispatcher, logger *zap.Logger, cfg config.NotificationConfig) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
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
	n.dispatcher.Subscribe(events.EventAccessChanged, n.handleAccessChanged)
	n.dispatcher.Subscribe(events.EventPresenceChanged, n.handlePresenceChanged)
	n.dispatcher.Subscribe(events.EventSessionTerminated, n.handleSessionTerminated)
	n.dispatcher.Subscribe(events.EventComplaintStatusChanged, n.handleComplaintStatusChanged)
}

func (n *NotificationService) handleAccessChanged(ctx context.Context, event events.Event) error {
	n.logger.Info("AccessChanged",
		zap.String("account_id", event.AccountID),
		zap.String("actor_id", event.ActorID),
		zap.Any("payload", event.Payload))
	n.sendWebhookNotificationStub(ctx, event)
	return nil
}

func (n *NotificationService) handlePresenceChanged(ctx context.Context, event events.Event) error {
	n.logger.Info("PresenceChanged", zap.String("account_id", event.AccountID), zap.Any("payload", event.Payload))
	return nil
}

func (n *NotificationService) handleSessionTerminated(ctx context.Context, event events.Event) error {
	n.logger.Info("SessionTerminated", zap.String("account_id", event.AccountID), zap.Any("payload", event.Payload))
	return nil
}

func (n *NotificationService) handleComplaintStatusChanged(ctx context.Context, event events.Event) error {
	n.logger.Info("ComplaintStatusChanged", zap.String("account_id", event.AccountID), zap.Any("payload", event.Payload))
	n.sendWebhookNotificationStub(ctx, event)
	return nil
}

func (n *NotificationService) sendWebhookNotificationStub(ctx context.Context, event events.Event) {
	if strings.TrimSpace(n.cfg.WebhookURL) == "" {
		return
	}
	n.logger.Debug("sendWebhookNotificationStub",
		zap.String("url", n.cfg.WebhookURL),
		zap.String("account_id", event.AccountID),
		zap.String("event_type", string(event.Type)))
}
