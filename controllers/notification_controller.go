package controllers

import (
	"context"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/fyerfyer/fyer-drive-sub000/models"
	"github.com/fyerfyer/fyer-drive-sub000/utils"
)

// NotificationReader is the slice of the notification service the HTTP
// layer needs.
type NotificationReader interface {
	ListNotifications(ctx context.Context, userID primitive.ObjectID) ([]models.NotificationLog, error)
	MarkRead(ctx context.Context, userID, notificationID primitive.ObjectID) error
}

type NotificationController struct {
	notifications NotificationReader
}

func NewNotificationController(notifications NotificationReader) *NotificationController {
	return &NotificationController{notifications: notifications}
}

// ListNotifications returns the caller's notifications.
func (nc *NotificationController) ListNotifications(c *gin.Context) {
	actorID, ok := requireActor(c)
	if !ok {
		return
	}

	logs, err := nc.notifications.ListNotifications(c.Request.Context(), actorID)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	utils.SuccessResponse(c, "Notifications retrieved", logs)
}

// MarkNotificationRead flags one of the caller's notifications as read.
func (nc *NotificationController) MarkNotificationRead(c *gin.Context) {
	actorID, ok := requireActor(c)
	if !ok {
		return
	}
	notificationID, ok := parseObjectIDParam(c, "id")
	if !ok {
		return
	}

	if err := nc.notifications.MarkRead(c.Request.Context(), actorID, notificationID); err != nil {
		respondServiceError(c, err)
		return
	}
	utils.SuccessResponse(c, "Notification marked as read", nil)
}
