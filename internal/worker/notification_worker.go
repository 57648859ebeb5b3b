package worker

import (
	"github.com/spec-kit/transport-portal/internal/service"
)

// StartNotificationWorker subscribes the notification handlers to application
// events. Delivery is synchronous with the publishing request.
func StartNotificationWorker(notificationService *service.NotificationService) {
	if notificationService == nil {
		return
	}
	notificationService.RegisterHandlers()
}
