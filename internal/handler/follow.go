package handler

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/pete-rs/tinyroom-api-sub000/internal/auth"
	"github.com/pete-rs/tinyroom-api-sub000/internal/model"
)

type FollowHandler struct {
	db       *gorm.DB
	notifier *Notifier
}

func NewFollowHandler(db *gorm.DB, notifier *Notifier) *FollowHandler {
	return &FollowHandler{db: db, notifier: notifier}
}

// FollowUser creates a follow edge and notifies the followee.
func (h *FollowHandler) FollowUser(c *fiber.Ctx) error {
	userID, err := auth.UserIDFromContext(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "authentication required"})
	}

	followeeID, err := c.ParamsInt("id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid user id"})
	}
	if int64(followeeID) == userID {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "cannot follow yourself"})
	}

	var followee model.User
	if err := h.db.First(&followee, followeeID).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "user not found"})
	}

	var existing model.Follow
	err = h.db.Where("follower_id = ? AND followee_id = ?", userID, followeeID).First(&existing).Error
	if err == nil {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "already following"})
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "database error"})
	}

	follow := model.Follow{FollowerID: userID, FolloweeID: followee.ID}
	if err := h.db.Create(&follow).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to follow"})
	}

	relatedType := model.RelatedTypeUser
	h.notifier.Notify(followee.ID, &userID, model.NotificationTypeNewFollower,
		"You have a new follower", &relatedType, nil)

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"follow": follow})
}

// UnfollowUser removes the follow edge.
func (h *FollowHandler) UnfollowUser(c *fiber.Ctx) error {
	userID, err := auth.UserIDFromContext(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "authentication required"})
	}

	followeeID, err := c.ParamsInt("id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid user id"})
	}

	result := h.db.Where("follower_id = ? AND followee_id = ?", userID, followeeID).Delete(&model.Follow{})
	if result.Error != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to unfollow"})
	}
	if result.RowsAffected == 0 {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not following"})
	}

	return c.JSON(fiber.Map{"success": true})
}

// ListFollowers returns who follows the given user.
func (h *FollowHandler) ListFollowers(c *fiber.Ctx) error {
	targetID, err := c.ParamsInt("id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid user id"})
	}

	var follows []model.Follow
	result := h.db.
		Where("followee_id = ?", targetID).
		Order("created_at DESC").
		Preload("Follower").
		Find(&follows)
	if result.Error != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to list followers"})
	}

	users := make([]model.User, 0, len(follows))
	for _, f := range follows {
		users = append(users, f.Follower)
	}

	return c.JSON(fiber.Map{"followers": users, "total": len(users)})
}

// ListFollowing returns who the given user follows.
func (h *FollowHandler) ListFollowing(c *fiber.Ctx) error {
	targetID, err := c.ParamsInt("id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid user id"})
	}

	var follows []model.Follow
	result := h.db.
		Where("follower_id = ?", targetID).
		Order("created_at DESC").
		Preload("Followee").
		Find(&follows)
	if result.Error != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to list following"})
	}

	users := make([]model.User, 0, len(follows))
	for _, f := range follows {
		users = append(users, f.Followee)
	}

	return c.JSON(fiber.Map{"following": users, "total": len(users)})
}
