package handler

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/pete-rs/tinyroom-api-sub000/internal/auth"
	"github.com/pete-rs/tinyroom-api-sub000/internal/model"
	"github.com/pete-rs/tinyroom-api-sub000/internal/presence"
	"github.com/pete-rs/tinyroom-api-sub000/internal/service"
)

type RoomHandler struct {
	db       *gorm.DB
	canvas   *service.CanvasService
	hub      *RoomHub
	notifier *Notifier
	presence *presence.Manager // nil when redis is not configured
}

func NewRoomHandler(db *gorm.DB, canvas *service.CanvasService, hub *RoomHub, notifier *Notifier, pres *presence.Manager) *RoomHandler {
	return &RoomHandler{db: db, canvas: canvas, hub: hub, notifier: notifier, presence: pres}
}

type CreateRoomRequest struct {
	Name string `json:"name"`
}

// CreateRoom creates a room and enrolls the creator as its first
// participant in the same transaction.
func (h *RoomHandler) CreateRoom(c *fiber.Ctx) error {
	userID, err := auth.UserIDFromContext(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "authentication required"})
	}

	var req CreateRoomRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}

	name := strings.TrimSpace(req.Name)
	if name == "" || len(name) > 200 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "room name must be 1-200 characters"})
	}

	room := model.Room{Name: name, CreatorID: userID}
	err = h.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&room).Error; err != nil {
			return err
		}
		return tx.Create(&model.RoomParticipant{RoomID: room.ID, UserID: userID}).Error
	})
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to create room"})
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"room": room})
}

// ListMyRooms returns the caller's rooms, most recently active first.
// Activity is the denormalized updated_at that element commits touch.
func (h *RoomHandler) ListMyRooms(c *fiber.Ctx) error {
	userID, err := auth.UserIDFromContext(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "authentication required"})
	}

	var rooms []model.Room
	result := h.db.
		Joins("JOIN room_participants ON room_participants.room_id = rooms.id").
		Where("room_participants.user_id = ? AND rooms.deleted_at IS NULL", userID).
		Order("rooms.updated_at DESC").
		Preload("Creator").
		Find(&rooms)
	if result.Error != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to list rooms"})
	}

	return c.JSON(fiber.Map{"rooms": rooms, "total": len(rooms)})
}

// GetRoom returns a room with its live elements in z order.
func (h *RoomHandler) GetRoom(c *fiber.Ctx) error {
	userID, err := auth.UserIDFromContext(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "authentication required"})
	}

	roomID := c.Params("id")
	room, status, errMsg := h.loadRoomForParticipant(roomID, userID)
	if errMsg != "" {
		return c.Status(status).JSON(fiber.Map{"error": errMsg})
	}

	elements, err := h.canvas.ListLiveElements(roomID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to load elements"})
	}

	var participants []model.RoomParticipant
	h.db.Where("room_id = ?", roomID).Preload("User").Find(&participants)

	return c.JSON(fiber.Map{
		"room":         room,
		"elements":     elements,
		"participants": participants,
		"online":       h.onlineMembers(roomID),
	})
}

// onlineMembers reads the redis presence mirror. Best effort: without redis
// (or on error) the room just shows nobody online.
func (h *RoomHandler) onlineMembers(roomID string) []int64 {
	if h.presence == nil {
		return []int64{}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	members, err := h.presence.RoomMembers(ctx, roomID)
	if err != nil {
		return []int64{}
	}
	return members
}

type UpdateRoomRequest struct {
	Name string `json:"name"`
}

// UpdateRoom renames a room. Creator only.
func (h *RoomHandler) UpdateRoom(c *fiber.Ctx) error {
	userID, err := auth.UserIDFromContext(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "authentication required"})
	}

	roomID := c.Params("id")
	var room model.Room
	if err := h.db.Where("id = ? AND deleted_at IS NULL", roomID).First(&room).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "room not found"})
	}
	if room.CreatorID != userID {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "only the creator can update the room"})
	}

	var req UpdateRoomRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	name := strings.TrimSpace(req.Name)
	if name == "" || len(name) > 200 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "room name must be 1-200 characters"})
	}

	if err := h.db.Model(&room).Update("name", name).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to update room"})
	}

	return c.JSON(fiber.Map{"room": room})
}

// DeleteRoom soft-deletes a room. Creator only. Live connections stay in
// the hub until they leave or disconnect; subsequent joins are refused
// because the participant check queries live rooms only.
func (h *RoomHandler) DeleteRoom(c *fiber.Ctx) error {
	userID, err := auth.UserIDFromContext(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "authentication required"})
	}

	roomID := c.Params("id")
	var room model.Room
	if err := h.db.Where("id = ? AND deleted_at IS NULL", roomID).First(&room).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "room not found"})
	}
	if room.CreatorID != userID {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "only the creator can delete the room"})
	}

	if err := h.db.Model(&room).Update("deleted_at", gorm.Expr("NOW()")).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to delete room"})
	}

	return c.JSON(fiber.Map{"success": true})
}

type InviteRequest struct {
	UserID int64 `json:"user_id"`
}

// InviteUser adds another user as a room participant and notifies them.
func (h *RoomHandler) InviteUser(c *fiber.Ctx) error {
	userID, err := auth.UserIDFromContext(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "authentication required"})
	}

	roomID := c.Params("id")
	room, status, errMsg := h.loadRoomForParticipant(roomID, userID)
	if errMsg != "" {
		return c.Status(status).JSON(fiber.Map{"error": errMsg})
	}

	var req InviteRequest
	if err := c.BodyParser(&req); err != nil || req.UserID == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "user_id is required"})
	}
	if req.UserID == userID {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "cannot invite yourself"})
	}

	var invitee model.User
	if err := h.db.First(&invitee, req.UserID).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "user not found"})
	}

	participant := model.RoomParticipant{RoomID: roomID, UserID: req.UserID}
	if err := h.db.Create(&participant).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "user is already in the room"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to add participant"})
	}

	relatedType := model.RelatedTypeRoom
	h.notifier.Notify(req.UserID, &userID, model.NotificationTypeRoomInvite,
		"You were added to the room \""+room.Name+"\"", &relatedType, &roomID)

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"participant": participant})
}

// LeaveRoom removes the caller's durable membership. The creator cannot
// leave their own room; they delete it instead.
func (h *RoomHandler) LeaveRoom(c *fiber.Ctx) error {
	userID, err := auth.UserIDFromContext(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "authentication required"})
	}

	roomID := c.Params("id")
	var room model.Room
	if err := h.db.Where("id = ? AND deleted_at IS NULL", roomID).First(&room).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "room not found"})
	}
	if room.CreatorID == userID {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "the creator cannot leave their own room"})
	}

	result := h.db.Where("room_id = ? AND user_id = ?", roomID, userID).Delete(&model.RoomParticipant{})
	if result.Error != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to leave room"})
	}
	if result.RowsAffected == 0 {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "you are not in this room"})
	}

	return c.JSON(fiber.Map{"success": true})
}

// ListMessages returns a room's recent chat messages, newest last.
func (h *RoomHandler) ListMessages(c *fiber.Ctx) error {
	userID, err := auth.UserIDFromContext(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "authentication required"})
	}

	roomID := c.Params("id")
	if _, status, errMsg := h.loadRoomForParticipant(roomID, userID); errMsg != "" {
		return c.Status(status).JSON(fiber.Map{"error": errMsg})
	}

	limit := c.QueryInt("limit", 50)
	if limit < 1 || limit > 200 {
		limit = 50
	}

	var messages []model.Message
	result := h.db.
		Where("room_id = ?", roomID).
		Order("created_at DESC").
		Limit(limit).
		Preload("Sender").
		Find(&messages)
	if result.Error != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to list messages"})
	}

	// Reverse to chronological order for the client.
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}

	return c.JSON(fiber.Map{"messages": messages, "total": len(messages)})
}

// loadRoomForParticipant loads a live room and verifies the caller's
// durable membership. Returns ("", 0, msg)-style triple for handlers.
func (h *RoomHandler) loadRoomForParticipant(roomID string, userID int64) (*model.Room, int, string) {
	if roomID == "" {
		return nil, fiber.StatusBadRequest, "room id is required"
	}

	var room model.Room
	if err := h.db.Where("id = ? AND deleted_at IS NULL", roomID).First(&room).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fiber.StatusNotFound, "room not found"
		}
		return nil, fiber.StatusInternalServerError, "database error"
	}

	if !h.canvas.IsParticipant(roomID, userID) {
		return nil, fiber.StatusForbidden, "you are not a participant of this room"
	}

	return &room, fiber.StatusOK, ""
}
