package worker

import (
	"go.uber.org/zap"

	"github.com/spec-kit/repair-service/internal/service"
)

// StartNotificationWorker wires the notification sink into the event
// dispatcher. Delivery stays best effort; nothing here blocks startup.
func StartNotificationWorker(notificationService *service.NotificationService, logger *zap.Logger) {
	if notificationService == nil {
		return
	}
	notificationService.RegisterHandlers()
	if logger != nil {
		logger.Info("notification sink subscribed to case events")
	}
}
