package handler

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/pete-rs/tinyroom-api-sub000/internal/auth"
	"github.com/pete-rs/tinyroom-api-sub000/internal/model"
	"github.com/pete-rs/tinyroom-api-sub000/internal/service"
)

type CommentHandler struct {
	db       *gorm.DB
	canvas   *service.CanvasService
	notifier *Notifier
}

func NewCommentHandler(db *gorm.DB, canvas *service.CanvasService, notifier *Notifier) *CommentHandler {
	return &CommentHandler{db: db, canvas: canvas, notifier: notifier}
}

type CreateCommentRequest struct {
	Body string `json:"body"`
}

// CreateComment adds a comment to an element and notifies its creator.
func (h *CommentHandler) CreateComment(c *fiber.Ctx) error {
	userID, err := auth.UserIDFromContext(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "authentication required"})
	}

	elementID := c.Params("elementId")
	el, status, errMsg := h.loadElementForParticipant(elementID, userID)
	if errMsg != "" {
		return c.Status(status).JSON(fiber.Map{"error": errMsg})
	}

	var req CreateCommentRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}

	body := strings.TrimSpace(req.Body)
	if body == "" || len(body) > 2000 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "comment must be 1-2000 characters"})
	}

	comment := model.Comment{ElementID: elementID, UserID: userID, Body: body}
	if err := h.db.Create(&comment).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to create comment"})
	}
	h.db.Preload("User").First(&comment, comment.ID)

	if el.CreatorID != userID {
		relatedType := model.RelatedTypeElement
		h.notifier.Notify(el.CreatorID, &userID, model.NotificationTypeNewComment,
			"New comment on your element", &relatedType, &elementID)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"comment": comment})
}

// ListComments returns an element's comments, oldest first.
func (h *CommentHandler) ListComments(c *fiber.Ctx) error {
	userID, err := auth.UserIDFromContext(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "authentication required"})
	}

	elementID := c.Params("elementId")
	if _, status, errMsg := h.loadElementForParticipant(elementID, userID); errMsg != "" {
		return c.Status(status).JSON(fiber.Map{"error": errMsg})
	}

	var comments []model.Comment
	result := h.db.
		Where("element_id = ? AND deleted_at IS NULL", elementID).
		Order("created_at ASC").
		Preload("User").
		Find(&comments)
	if result.Error != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to list comments"})
	}

	return c.JSON(fiber.Map{"comments": comments, "total": len(comments)})
}

// DeleteComment soft-deletes a comment. Author only.
func (h *CommentHandler) DeleteComment(c *fiber.Ctx) error {
	userID, err := auth.UserIDFromContext(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "authentication required"})
	}

	commentID, err := c.ParamsInt("id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid comment id"})
	}

	var comment model.Comment
	if err := h.db.Where("id = ? AND deleted_at IS NULL", commentID).First(&comment).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "comment not found"})
	}
	if comment.UserID != userID {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "only the author can delete a comment"})
	}

	if err := h.db.Model(&comment).Update("deleted_at", gorm.Expr("NOW()")).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to delete comment"})
	}

	return c.JSON(fiber.Map{"success": true})
}

// loadElementForParticipant loads a live element and checks the caller is a
// participant of its room.
func (h *CommentHandler) loadElementForParticipant(elementID string, userID int64) (*model.Element, int, string) {
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
