package worker

import (
	"go.uber.org/zap"

	"github.com/spec-kit/squad-service/internal/events"
	"github.com/spec-kit/squad-service/internal/service"
)

// StartNotificationWorker subscribes the notification service to every
// ledger event so squad changes reach the configured sinks.
func StartNotificationWorker(notificationService *service.NotificationService, logger *zap.Logger) {
	if notificationService == nil {
		return
	}
	notificationService.RegisterHandlers()
	if logger != nil {
		logger.Info("notification worker started", zap.Int("event_types", len(events.AllEventTypes)))
	}
}
