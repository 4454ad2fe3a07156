package handler

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/pete-rs/tinyroom-api-sub000/internal/auth"
	"github.com/pete-rs/tinyroom-api-sub000/internal/model"
	"github.com/pete-rs/tinyroom-api-sub000/internal/service"
)

type ReactionHandler struct {
	db       *gorm.DB
	canvas   *service.CanvasService
	notifier *Notifier
}

func NewReactionHandler(db *gorm.DB, canvas *service.CanvasService, notifier *Notifier) *ReactionHandler {
	return &ReactionHandler{db: db, canvas: canvas, notifier: notifier}
}

type AddReactionRequest struct {
	Emoji string `json:"emoji"`
}

// AddReaction sets the caller's reaction on an element. One reaction per
// (user, element); reacting again replaces the emoji.
func (h *ReactionHandler) AddReaction(c *fiber.Ctx) error {
	userID, err := auth.UserIDFromContext(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "authentication required"})
	}

	elementID := c.Params("elementId")
	el, status, errMsg := h.loadElement(elementID, userID)
	if errMsg != "" {
		return c.Status(status).JSON(fiber.Map{"error": errMsg})
	}

	var req AddReactionRequest
	if err := c.BodyParser(&req); err != nil || req.Emoji == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "emoji is required"})
	}
	if len(req.Emoji) > 20 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "emoji too long"})
	}

	var reaction model.Reaction
	err = h.db.Where("element_id = ? AND user_id = ?", elementID, userID).First(&reaction).Error
	created := false
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		reaction = model.Reaction{ElementID: elementID, UserID: userID, Emoji: req.Emoji}
		if err := h.db.Create(&reaction).Error; err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to add reaction"})
		}
		created = true
	case err != nil:
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "database error"})
	default:
		if err := h.db.Model(&reaction).Update("emoji", req.Emoji).Error; err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to update reaction"})
		}
	}

	if created && el.CreatorID != userID {
		relatedType := model.RelatedTypeElement
		h.notifier.Notify(el.CreatorID, &userID, model.NotificationTypeNewReaction,
			"Someone reacted "+req.Emoji+" to your element", &relatedType, &elementID)
	}

	code := fiber.StatusOK
	if created {
		code = fiber.StatusCreated
	}
	return c.Status(code).JSON(fiber.Map{"reaction": reaction})
}

// RemoveReaction deletes the caller's reaction.
func (h *ReactionHandler) RemoveReaction(c *fiber.Ctx) error {
	userID, err := auth.UserIDFromContext(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "authentication required"})
	}

	elementID := c.Params("elementId")
	result := h.db.Where("element_id = ? AND user_id = ?", elementID, userID).Delete(&model.Reaction{})
	if result.Error != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to remove reaction"})
	}
	if result.RowsAffected == 0 {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "reaction not found"})
	}

	return c.JSON(fiber.Map{"success": true})
}

// ListReactions returns every reaction on an element.
func (h *ReactionHandler) ListReactions(c *fiber.Ctx) error {
	userID, err := auth.UserIDFromContext(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "authentication required"})
	}

	elementID := c.Params("elementId")
	if _, status, errMsg := h.loadElement(elementID, userID); errMsg != "" {
		return c.Status(status).JSON(fiber.Map{"error": errMsg})
	}

	var reactions []model.Reaction
	result := h.db.
		Where("element_id = ?", elementID).
		Order("created_at ASC").
		Preload("User").
		Find(&reactions)
	if result.Error != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to list reactions"})
	}

	return c.JSON(fiber.Map{"reactions": reactions, "total": len(reactions)})
}

func (h *ReactionHandler) loadElement(elementID string, userID int64) (*model.Element, int, string) {
	if elementID == "" {
		return nil, fiber.StatusBadRequest, "element id is required"
	}

	var el model.Element
	err := h.db.Where("id = ? AND deleted_at IS NULL", elementID).First(&el).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fiber.StatusNotFound, "element not found"
		}
		return nil, fiber.StatusInternalServerError, "database error"
	}

	if !h.canvas.IsParticipant(el.RoomID, userID) {
		return nil, fiber.StatusForbidden, "you are not a participant of this room"
	}

	return &el, fiber.StatusOK, ""
}
