package service

import (
	"errors"

	"gorm.io/gorm"

	"github.com/pete-rs/tinyroom-api-sub000/internal/model"
)

// LayerAllocator decides z-index values for elements within a room.
//
// The allocator is read-only: it reports whether a write is needed and what
// value to write; persisting is the commit pipeline's job so the z-index
// lands in the same logical update as the transform fields.
//
// Known relaxed invariant: the max read here is not atomic with the eventual
// write, so two concurrent commits in the same room can both compute max+1
// and produce a transient duplicate. This self-heals on the next commit
// (the max is re-read every time) and nothing correctness-critical depends
// on instantaneous uniqueness, so no per-room locking is taken.
type LayerAllocator struct {
	db *gorm.DB
}

func NewLayerAllocator(db *gorm.DB) *LayerAllocator {
	return &LayerAllocator{db: db}
}

// MaxZIndex returns the highest z-index among live elements in the room,
// or -1 when the room has none (so the first element gets 0).
func (a *LayerAllocator) MaxZIndex(roomID string) (int, error) {
	var max int
	err := a.db.Model(&model.Element{}).
		Where("room_id = ? AND deleted_at IS NULL", roomID).
		Select("COALESCE(MAX(z_index), -1)").
		Scan(&max).Error
	if err != nil {
		return 0, err
	}
	return max, nil
}

// AllocateForNewElement returns the z-index a newly created element should
// get: one above the current room max.
func (a *LayerAllocator) AllocateForNewElement(roomID string) (int, error) {
	max, err := a.MaxZIndex(roomID)
	if err != nil {
		return 0, err
	}
	return max + 1, nil
}

// AllocateTopIfNeeded reports whether the element needs a new z-index to be
// on top, and which value. An element already at the room max returns
// changed=false so repeated interaction with the topmost element costs no
// write and no z-index broadcast.
func (a *LayerAllocator) AllocateTopIfNeeded(roomID, elementID string) (bool, int, error) {
	var el model.Element
	err := a.db.Select("z_index").
		Where("id = ? AND room_id = ? AND deleted_at IS NULL", elementID, roomID).
		First(&el).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, 0, ErrElementNotFound
		}
		return false, 0, err
	}
	current := el.ZIndex

	max, err := a.MaxZIndex(roomID)
	if err != nil {
		return false, 0, err
	}

	if current == max {
		return false, current, nil
	}
	return true, max + 1, nil
}
