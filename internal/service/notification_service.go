package service

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/spec-kit/squad-service/internal/events"
)

// NotificationService logs ledger events and forwards them to external sinks.
type NotificationService struct {
	dispatcher events.Dispatcher
	logger     *zap.Logger
	sinks      []events.EventHandler
}

// NewNotificationService creates the service.
func NewNotificationService(dispatcher events.Dispatcher, logger *zap.Logger, sinks ...events.EventHandler) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{
		dispatcher: dispatcher,
		logger:     logger,
		sinks:      sinks,
	}
}

// RegisterHandlers subscribes to every ledger event type.
func (n *NotificationService) RegisterHandlers() {
	if n.dispatcher == nil {
		return
	}
	for _, t := range events.AllEventTypes {
		n.dispatcher.Subscribe(t, n.handle)
	}
}

func (n *NotificationService) handle(ctx context.Context, event events.Event) error {
	n.logger.Info("ledger event",
		zap.String("event_type", string(event.Type)),
		zap.String("event_id", event.ID),
		zap.String("age_group", string(event.AgeGroup)),
		zap.String("squad_id", event.SquadID),
		zap.String("member_id", event.MemberID),
		zap.Any("payload", event.Payload))

	var errs []error
	for _, sink := range n.sinks {
		if err := sink(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
