package handler

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/pete-rs/tinyroom-api-sub000/internal/auth"
	"github.com/pete-rs/tinyroom-api-sub000/internal/service"
)

// ElementHandler is the REST side of the canvas: element creation and
// deletion happen here (transforms are socket-only) and fan out through the
// same hub the socket uses, so every participant sees them live.
type ElementHandler struct {
	db     *gorm.DB
	canvas *service.CanvasService
	hub    *RoomHub
}

func NewElementHandler(db *gorm.DB, canvas *service.CanvasService, hub *RoomHub) *ElementHandler {
	return &ElementHandler{db: db, canvas: canvas, hub: hub}
}

// ListElements returns a room's live elements bottom to top.
func (h *ElementHandler) ListElements(c *fiber.Ctx) error {
	userID, err := auth.UserIDFromContext(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "authentication required"})
	}

	roomID := c.Params("roomId")
	if !h.canvas.IsParticipant(roomID, userID) {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "you are not a participant of this room"})
	}

	elements, err := h.canvas.ListLiveElements(roomID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to list elements"})
	}

	return c.JSON(fiber.Map{"elements": elements, "total": len(elements)})
}

// CreateElement places a new element on top of the canvas and broadcasts it.
func (h *ElementHandler) CreateElement(c *fiber.Ctx) error {
	userID, err := auth.UserIDFromContext(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "authentication required"})
	}

	roomID := c.Params("roomId")
	if !h.canvas.IsParticipant(roomID, userID) {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "you are not a participant of this room"})
	}

	var in service.CreateElementInput
	if err := c.BodyParser(&in); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}

	el, err := h.canvas.CreateElement(roomID, userID, &in)
	if err != nil {
		if errors.Is(err, service.ErrValidation) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid element payload"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to create element"})
	}

	h.hub.BroadcastToRoom(roomID, WSMessage{Type: MsgElementCreated, Payload: committedPayload{Element: el}}, nil)

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"element": el})
}

// GetElement returns one live element.
func (h *ElementHandler) GetElement(c *fiber.Ctx) error {
	userID, err := auth.UserIDFromContext(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "authentication required"})
	}

	roomID := c.Params("roomId")
	if !h.canvas.IsParticipant(roomID, userID) {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "you are not a participant of this room"})
	}

	el, err := h.canvas.GetLiveElement(roomID, c.Params("id"))
	if err != nil {
		if errors.Is(err, service.ErrElementNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "element not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to load element"})
	}

	return c.JSON(fiber.Map{"element": el})
}

type UpdateElementRequest struct {
	Content  *string `json:"content,omitempty"`
	MediaURL *string `json:"mediaUrl,omitempty"`
}

// UpdateElement edits an element's payload (note text, media URL). Geometry
// changes go through the socket commit path, not here.
func (h *ElementHandler) UpdateElement(c *fiber.Ctx) error {
	userID, err := auth.UserIDFromContext(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "authentication required"})
	}

	roomID := c.Params("roomId")
	if !h.canvas.IsParticipant(roomID, userID) {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "you are not a participant of this room"})
	}

	el, err := h.canvas.GetLiveElement(roomID, c.Params("id"))
	if err != nil {
		if errors.Is(err, service.ErrElementNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "element not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to load element"})
	}

	var req UpdateElementRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}

	updates := map[string]interface{}{}
	if req.Content != nil {
		updates["content"] = *req.Content
	}
	if req.MediaURL != nil {
		updates["media_url"] = *req.MediaURL
	}
	if len(updates) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "nothing to update"})
	}

	if err := h.db.Model(el).Updates(updates).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to update element"})
	}

	if err := h.canvas.TouchRoom(roomID); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to update room"})
	}

	if err := h.db.First(el, "id = ?", el.ID).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to reload element"})
	}

	h.hub.BroadcastToRoom(roomID, WSMessage{Type: MsgElementUpdated, Payload: committedPayload{Element: el}}, nil)

	return c.JSON(fiber.Map{"element": el})
}

// DeleteElement soft-deletes an element and broadcasts the removal. Z
// indexes of the remaining elements are left alone.
func (h *ElementHandler) DeleteElement(c *fiber.Ctx) error {
	userID, err := auth.UserIDFromContext(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "authentication required"})
	}

	roomID := c.Params("roomId")
	if !h.canvas.IsParticipant(roomID, userID) {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "you are not a participant of this room"})
	}

	elementID := c.Params("id")
	el, err := h.canvas.DeleteElement(roomID, elementID)
	if err != nil {
		if errors.Is(err, service.ErrElementNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "element not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to delete element"})
	}

	h.hub.BroadcastToRoom(roomID, WSMessage{
		Type:    MsgElementDeleted,
		Payload: elementRefPayload{RoomID: roomID, ElementID: el.ID},
	}, nil)

	return c.JSON(fiber.Map{"success": true})
}
