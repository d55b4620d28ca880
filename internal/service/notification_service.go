package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/spec-kit/membership-service/internal/events"
)

// NotificationService surfaces engine events to operators. Delivery here
// is a logging stub; the actual email channel lives in the surrounding
// membership application.
type NotificationService struct {
	dispatcher events.Dispatcher
	logger     *zap.Logger
}

// NewNotificationService creates the service.
func NewNotificationService(dispatcher events.Dispatcher, logger *zap.Logger) *NotificationService {
	return &NotificationService{dispatcher: dispatcher, logger: logger}
}

// RegisterHandlers subscribes to engine events.
func (n *NotificationService) RegisterHandlers() {
	if n.dispatcher == nil {
		return
	}
	n.dispatcher.Subscribe(events.EventAssessmentExecuted, n.handleEvent("AssessmentExecuted"))
	n.dispatcher.Subscribe(events.EventAssessmentConfirmed, n.handleEvent("AssessmentConfirmed"))
	n.dispatcher.Subscribe(events.EventManagerDemoted, n.handleEvent("ManagerDemoted"))
	n.dispatcher.Subscribe(events.EventApplicationSubmitted, n.handleEvent("ApplicationSubmitted"))
	n.dispatcher.Subscribe(events.EventApplicationApproved, n.handleEvent("ApplicationApproved"))
	n.dispatcher.Subscribe(events.EventApplicationRejected, n.handleEvent("ApplicationRejected"))
	n.dispatcher.Subscribe(events.EventApplicationCompleted, n.handleEvent("ApplicationCompleted"))
}

func (n *NotificationService) handleEvent(name string) events.EventHandler {
	return func(ctx context.Context, event events.Event) error {
		n.logger.Info(name,
			zap.String("entity_id", event.EntityID),
			zap.String("operator_id", event.OperatorID),
			zap.Any("payload", event.Payload))
		return nil
	}
}
