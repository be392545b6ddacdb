package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/fyerfyer/fyer-drive-sub000/models"
)

// NotificationService emails share recipients through Mailgun and records
// every notification in the notification_logs collection. It reads users
// directly rather than through the transactional store; notifications are
// delivered after the grant is already persisted.
type NotificationService struct {
	notificationCollection *mongo.Collection
	userCollection         *mongo.Collection
	mailgunAPIKey          string
	mailgunDomain          string
	fromEmail              string
}

type MailgunMessage struct {
	From    string `json:"from"`
	To      string `json:"to"`
	Subject string `json:"subject"`
	Text    string `json:"text"`
	HTML    string `json:"html"`
}

func NewNotificationService(db *mongo.Database, mailgunAPIKey, mailgunDomain, fromEmail string) *NotificationService {
	return &NotificationService{
		notificationCollection: db.Collection("notification_logs"),
		userCollection:         db.Collection("users"),
		mailgunAPIKey:          mailgunAPIKey,
		mailgunDomain:          mailgunDomain,
		fromEmail:              fromEmail,
	}
}

// ResourceShared notifies the grantee that a file or folder was shared
// with them.
func (s *NotificationService) ResourceShared(ctx context.Context, granteeID, granterID primitive.ObjectID, resourceType models.ResourceType, resourceID primitive.ObjectID, name string) error {
	var grantee, granter models.User

	err := s.userCollection.FindOne(ctx, bson.M{"_id": granteeID}).Decode(&grantee)
	if err != nil {
		return fmt.Errorf("grantee not found: %w", err)
	}

	err = s.userCollection.FindOne(ctx, bson.M{"_id": granterID}).Decode(&granter)
	if err != nil {
		return fmt.Errorf("granter not found: %w", err)
	}

	kind := "file"
	notificationType := "file_shared"
	if resourceType == models.ResourceFolder {
		kind = "folder"
		notificationType = "folder_shared"
	}

	subject := fmt.Sprintf("%s shared with you: %s", kind, name)
	text := fmt.Sprintf("Hi %s,\n\n%s has shared a %s with you: %s\n\nYou can access it in your drive account.\n\nBest regards,\nThe Drive Team",
		grantee.Name, granter.Name, kind, name)

	html := fmt.Sprintf(`
		<h2>Shared With You</h2>
		<p>Hi %s,</p>
		<p><strong>%s</strong> has shared a %s with you: <strong>%s</strong></p>
		<p>You can access it in your drive account.</p>
		<p>Best regards,<br>The Drive Team</p>
	`, grantee.Name, granter.Name, kind, name)

	if err := s.sendEmail(ctx, grantee.Email, subject, text, html); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}

	notification := models.NotificationLog{
		ID:        primitive.NewObjectID(),
		UserID:    granteeID,
		Type:      notificationType,
		Message:   text,
		ItemID:    resourceID,
		ItemType:  resourceType,
		CreatedAt: time.Now(),
	}

	if _, err := s.notificationCollection.InsertOne(ctx, notification); err != nil {
		return fmt.Errorf("failed to log notification: %w", err)
	}

	return nil
}

// ListNotifications returns the user's notifications, newest first.
func (s *NotificationService) ListNotifications(ctx context.Context, userID primitive.ObjectID) ([]models.NotificationLog, error) {
	opts := options.Find().SetSort(bson.M{"created_at": -1})
	cursor, err := s.notificationCollection.Find(ctx, bson.M{"user_id": userID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	defer cursor.Close(ctx)

	var logs []models.NotificationLog
	if err := cursor.All(ctx, &logs); err != nil {
		return nil, fmt.Errorf("failed to decode notifications: %w", err)
	}
	return logs, nil
}

// MarkRead marks one notification as read.
func (s *NotificationService) MarkRead(ctx context.Context, userID, notificationID primitive.ObjectID) error {
	result, err := s.notificationCollection.UpdateOne(ctx,
		bson.M{"_id": notificationID, "user_id": userID},
		bson.M{"$set": bson.M{"is_read": true}},
	)
	if err != nil {
		return fmt.Errorf("failed to mark notification read: %w", err)
	}
	if result.MatchedCount == 0 {
		return fmt.Errorf("notification not found: %w", models.ErrNotFound)
	}
	return nil
}

func (s *NotificationService) sendEmail(ctx context.Context, to, subject, text, html string) error {
	url := fmt.Sprintf("https://api.mailgun.net/v3/%s/messages", s.mailgunDomain)

	payload := MailgunMessage{
		From:    s.fromEmail,
		To:      to,
		Subject: subject,
		Text:    text,
		HTML:    html,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal mailgun message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(body))
	if err != nil {
		return fmt.Errorf("failed to create mailgun request: %w", err)
	}

	req.SetBasicAuth("api", s.mailgunAPIKey)
	req.Header.Set("Content-Type", "application/json")

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send mailgun request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("mailgun responded with status: %s", resp.Status)
	}

	return nil
}
