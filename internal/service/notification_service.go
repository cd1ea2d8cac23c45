package service

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/spec-kit/repair-service/internal/config"
	"github.com/spec-kit/repair-service/internal/events"
	"github.com/spec-kit/repair-service/internal/observability"
)

// DeliveryResult records one best-effort delivery attempt. Failures live
// here as data; they never propagate to the publisher.
type DeliveryResult struct {
	Channel   string
	Delivered bool
	Error     string
}

// NotificationService is the best-effort notification sink. It subscribes
// to domain events and fans them out to the configured channels.
type NotificationService struct {
	dispatcher events.Dispatcher
	metrics    *observability.Metrics
	logger     *zap.Logger
	cfg        config.NotificationConfig
}

// NewNotificationService creates the service.
func NewNotificationService(dispatcher events.Dispatcher, metrics *observability.Metrics, logger *zap.Logger, cfg config.NotificationConfig) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{
		dispatcher: dispatcher,
		metrics:    metrics,
		logger:     logger,
		cfg:        cfg,
	}
}

// RegisterHandlers subscribes to events.
func (n *NotificationService) RegisterHandlers() {
	if n.dispatcher == nil {
		return
	}
	n.dispatcher.Subscribe(events.EventCaseEscalated, n.handleCaseEscalated)
	n.dispatcher.Subscribe(events.EventCaseAssigned, n.handleCaseAssigned)
	n.dispatcher.Subscribe(events.EventSLABreached, n.handleSLABreached)
	n.dispatcher.Subscribe(events.EventWorkflowCompleted, n.handleWorkflowCompleted)
}

func (n *NotificationService) handleCaseEscalated(ctx context.Context, event events.Event) error {
	n.logger.Info("CaseEscalated", zap.String("case_id", event.CaseID), zap.Any("payload", event.Payload))
	n.deliver(ctx, event, "email", "webhook")
	return nil
}

func (n *NotificationService) handleCaseAssigned(ctx context.Context, event events.Event) error {
	n.logger.Info("CaseAssigned", zap.String("case_id", event.CaseID), zap.Any("payload", event.Payload))
	n.deliver(ctx, event, "webhook")
	return nil
}

func (n *NotificationService) handleSLABreached(ctx context.Context, event events.Event) error {
	n.logger.Info("SLABreached", zap.String("case_id", event.CaseID), zap.Any("payload", event.Payload))
	n.deliver(ctx, event, "email", "webhook")
	return nil
}

func (n *NotificationService) handleWorkflowCompleted(ctx context.Context, event events.Event) error {
	n.logger.Info("WorkflowCompleted", zap.String("case_id", event.CaseID), zap.Any("payload", event.Payload))
	n.deliver(ctx, event, "webhook")
	return nil
}

// deliver attempts each channel and records the outcomes. The results are a
// side channel: callers of Publish never see delivery failures.
func (n *NotificationService) deliver(ctx context.Context, event events.Event, channels ...string) []DeliveryResult {
	results := make([]DeliveryResult, 0, len(channels))
	for _, channel := range channels {
		var err error
		switch channel {
		case "email":
			err = n.sendEmail(ctx, event)
		case "webhook":
			err = n.sendWebhook(ctx, event)
		default:
			err = fmt.Errorf("unknown channel %q", channel)
		}

		result := DeliveryResult{Channel: channel, Delivered: err == nil}
		if err != nil {
			result.Error = err.Error()
			if n.metrics != nil {
				n.metrics.NotificationErrors.Inc()
			}
			n.logger.Warn("notification delivery failed",
				zap.String("channel", channel),
				zap.String("case_id", event.CaseID),
				zap.Error(err))
		}
		results = append(results, result)
	}
	return results
}

func (n *NotificationService) sendEmail(ctx context.Context, event events.Event) error {
	if strings.TrimSpace(n.cfg.EmailFrom) == "" {
		return fmt.Errorf("email sender not configured")
	}
	n.logger.Debug("sendEmail",
		zap.String("from", n.cfg.EmailFrom),
		zap.String("case_id", event.CaseID),
		zap.String("event_type", string(event.Type)))
	return nil
}

func (n *NotificationService) sendWebhook(ctx context.Context, event events.Event) error {
	if strings.TrimSpace(n.cfg.WebhookURL) == "" {
		return fmt.Errorf("webhook url not configured")
	}
	n.logger.Debug("sendWebhook",
		zap.String("url", n.cfg.WebhookURL),
		zap.String("case_id", event.CaseID),
		zap.String("event_type", string(event.Type)))
	return nil
}
