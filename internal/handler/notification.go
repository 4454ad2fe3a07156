package handler

import (
	"log"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/pete-rs/tinyroom-api-sub000/internal/auth"
	"github.com/pete-rs/tinyroom-api-sub000/internal/model"
)

const MsgNotificationNew = "notification:new"

// Notifier persists a notification and pushes it to the recipient's live
// sockets. Persistence is the source of truth; the push is best effort.
type Notifier struct {
	db  *gorm.DB
	hub *NotificationHub
}

func NewNotifier(db *gorm.DB, hub *NotificationHub) *Notifier {
	return &Notifier{db: db, hub: hub}
}

func (n *Notifier) Notify(userID int64, senderID *int64, typ model.NotificationType, body string, relatedType, relatedID *string) {
	notif := model.Notification{
		UserID:      userID,
		SenderID:    senderID,
		Type:        typ.String(),
		Body:        body,
		RelatedType: relatedType,
		RelatedID:   relatedID,
	}
	if err := n.db.Create(&notif).Error; err != nil {
		log.Printf("[Notifier] Failed to save notification for user %d: %v", userID, err)
		return
	}

	n.hub.SendToUser(userID, WSMessage{Type: MsgNotificationNew, Payload: notif})
}

type NotificationHandler struct {
	db *gorm.DB
}

func NewNotificationHandler(db *gorm.DB) *NotificationHandler {
	return &NotificationHandler{db: db}
}

// ListNotifications returns the caller's notifications, newest first.
func (h *NotificationHandler) ListNotifications(c *fiber.Ctx) error {
	userID, err := auth.UserIDFromContext(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "authentication required"})
	}

	limit := c.QueryInt("limit", 50)
	if limit < 1 || limit > 200 {
		limit = 50
	}

	var notifications []model.Notification
	result := h.db.
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Preload("Sender").
		Find(&notifications)
	if result.Error != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to list notifications"})
	}

	var unread int64
	h.db.Model(&model.Notification{}).Where("user_id = ? AND is_read = false", userID).Count(&unread)

	return c.JSON(fiber.Map{"notifications": notifications, "unread": unread})
}

// MarkRead marks a single notification as read.
func (h *NotificationHandler) MarkRead(c *fiber.Ctx) error {
	userID, err := auth.UserIDFromContext(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "authentication required"})
	}

	notifID, err := c.ParamsInt("id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid notification id"})
	}

	result := h.db.Model(&model.Notification{}).
		Where("id = ? AND user_id = ?", notifID, userID).
		Update("is_read", true)
	if result.Error != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to update notification"})
	}
	if result.RowsAffected == 0 {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "notification not found"})
	}

	return c.JSON(fiber.Map{"success": true})
}

// MarkAllRead marks every unread notification as read.
func (h *NotificationHandler) MarkAllRead(c *fiber.Ctx) error {
	userID, err := auth.UserIDFromContext(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "authentication required"})
	}

	result := h.db.Model(&model.Notification{}).
		Where("user_id = ? AND is_read = false", userID).
		Update("is_read", true)
	if result.Error != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to update notifications"})
	}

	return c.JSON(fiber.Map{"success": true, "updated": result.RowsAffected})
}
