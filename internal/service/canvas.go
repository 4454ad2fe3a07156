package service

import (
	"errors"
	"math"
	"time"

	"gorm.io/gorm"

	"github.com/pete-rs/tinyroom-api-sub000/internal/model"
)

// CanvasService is the commit pipeline: it durably applies finished
// transform gestures, keeps z-order consistent through the LayerAllocator,
// and touches the owning room's updated_at synchronously so a room-list
// refresh issued right after the commit broadcast never observes stale
// ordering.
type CanvasService struct {
	db     *gorm.DB
	layers *LayerAllocator
}

func NewCanvasService(db *gorm.DB) *CanvasService {
	return &CanvasService{
		db:     db,
		layers: NewLayerAllocator(db),
	}
}

// Layers exposes the allocator for callers that only reorder.
func (s *CanvasService) Layers() *LayerAllocator {
	return s.layers
}

// TransformCommit is the final state of a gesture. All fields are optional;
// omitted fields keep their prior values.
type TransformCommit struct {
	PositionX *float64 `json:"positionX,omitempty"`
	PositionY *float64 `json:"positionY,omitempty"`
	Width     *float64 `json:"width,omitempty"`
	Height    *float64 `json:"height,omitempty"`
	Rotation  *float64 `json:"rotation,omitempty"`
	ScaleX    *float64 `json:"scaleX,omitempty"`
	ScaleY    *float64 `json:"scaleY,omitempty"`
}

// CreateElementInput is the payload for a new canvas element.
type CreateElementInput struct {
	Kind      string   `json:"kind"`
	PositionX float64  `json:"positionX"`
	PositionY float64  `json:"positionY"`
	Width     float64  `json:"width"`
	Height    float64  `json:"height"`
	Rotation  float64  `json:"rotation"`
	ScaleX    float64  `json:"scaleX"`
	ScaleY    float64  `json:"scaleY"`
	Content   *string  `json:"content,omitempty"`
	MediaURL  *string  `json:"mediaUrl,omitempty"`
	Duration  *float64 `json:"duration,omitempty"`
}

// NormalizeRotation maps any rotation to [0, 360).
func NormalizeRotation(r float64) float64 {
	r = math.Mod(r, 360)
	if r < 0 {
		r += 360
	}
	return r
}

// Validate rejects non-positive scale factors before any storage access.
func (t *TransformCommit) Validate() error {
	if t.ScaleX != nil && *t.ScaleX <= 0 {
		return ErrValidation
	}
	if t.ScaleY != nil && *t.ScaleY <= 0 {
		return ErrValidation
	}
	return nil
}

// IsParticipant reports durable room membership.
func (s *CanvasService) IsParticipant(roomID string, userID int64) bool {
	var count int64
	s.db.Model(&model.RoomParticipant{}).
		Where("room_id = ? AND user_id = ?", roomID, userID).
		Count(&count)
	return count > 0
}

// GetLiveElement loads a non-deleted element scoped to the room.
func (s *CanvasService) GetLiveElement(roomID, elementID string) (*model.Element, error) {
	var el model.Element
	err := s.db.
		Where("id = ? AND room_id = ? AND deleted_at IS NULL", elementID, roomID).
		First(&el).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrElementNotFound
		}
		return nil, err
	}
	return &el, nil
}

// CommitTransform persists the final state of a gesture, exactly once per
// commit message. Returns the committed element and whether its z-index
// changed. Either the whole commit persists, or nothing does.
func (s *CanvasService) CommitTransform(roomID, elementID string, commit *TransformCommit) (*model.Element, bool, error) {
	if err := commit.Validate(); err != nil {
		return nil, false, err
	}

	el, err := s.GetLiveElement(roomID, elementID)
	if err != nil {
		return nil, false, err
	}

	updates := map[string]interface{}{}
	if commit.PositionX != nil {
		updates["position_x"] = *commit.PositionX
	}
	if commit.PositionY != nil {
		updates["position_y"] = *commit.PositionY
	}
	if commit.Width != nil {
		updates["width"] = *commit.Width
	}
	if commit.Height != nil {
		updates["height"] = *commit.Height
	}
	if commit.Rotation != nil {
		updates["rotation"] = NormalizeRotation(*commit.Rotation)
	}
	if commit.ScaleX != nil {
		updates["scale_x"] = *commit.ScaleX
	}
	if commit.ScaleY != nil {
		updates["scale_y"] = *commit.ScaleY
	}

	changed, newZ, err := s.layers.AllocateTopIfNeeded(roomID, elementID)
	if err != nil {
		return nil, false, err
	}
	if changed {
		updates["z_index"] = newZ
	}

	if len(updates) > 0 {
		if err := s.db.Model(el).Updates(updates).Error; err != nil {
			return nil, false, err
		}
	}

	// Synchronous, awaited room touch BEFORE any broadcast. A client that
	// re-fetches its room list after seeing the commit's broadcast must see
	// this room surface; deferring the touch opens that race.
	if err := s.TouchRoom(roomID); err != nil {
		return nil, false, err
	}

	if err := s.db.Where("id = ?", elementID).First(el).Error; err != nil {
		return nil, false, err
	}

	return el, changed, nil
}

// BringToFront reorders without transforming. Same allocator decision and
// broadcast rule as a commit, but transform fields are untouched and the
// room's updated_at is not bumped: reordering alone is not room activity.
func (s *CanvasService) BringToFront(roomID, elementID string) (*model.Element, bool, error) {
	el, err := s.GetLiveElement(roomID, elementID)
	if err != nil {
		return nil, false, err
	}

	changed, newZ, err := s.layers.AllocateTopIfNeeded(roomID, elementID)
	if err != nil {
		return nil, false, err
	}
	if changed {
		if err := s.db.Model(el).Update("z_index", newZ).Error; err != nil {
			return nil, false, err
		}
		el.ZIndex = newZ
	}

	return el, changed, nil
}

// CreateElement inserts a new element on top of the room's canvas.
func (s *CanvasService) CreateElement(roomID string, creatorID int64, in *CreateElementInput) (*model.Element, error) {
	if !model.ElementKind(in.Kind).Valid() {
		return nil, ErrValidation
	}
	if in.ScaleX <= 0 {
		in.ScaleX = 1
	}
	if in.ScaleY <= 0 {
		in.ScaleY = 1
	}

	z, err := s.layers.AllocateForNewElement(roomID)
	if err != nil {
		return nil, err
	}

	el := model.Element{
		RoomID:    roomID,
		CreatorID: creatorID,
		Kind:      in.Kind,
		PositionX: in.PositionX,
		PositionY: in.PositionY,
		Width:     in.Width,
		Height:    in.Height,
		Rotation:  NormalizeRotation(in.Rotation),
		ScaleX:    in.ScaleX,
		ScaleY:    in.ScaleY,
		ZIndex:    z,
		Content:   in.Content,
		MediaURL:  in.MediaURL,
		Duration:  in.Duration,
	}

	if err := s.db.Create(&el).Error; err != nil {
		return nil, err
	}

	if err := s.TouchRoom(roomID); err != nil {
		return nil, err
	}

	return &el, nil
}

// DeleteElement soft-deletes an element. Sibling z-indexes are neither
// reclaimed nor renumbered.
func (s *CanvasService) DeleteElement(roomID, elementID string) (*model.Element, error) {
	el, err := s.GetLiveElement(roomID, elementID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	if err := s.db.Model(el).Update("deleted_at", now).Error; err != nil {
		return nil, err
	}
	el.DeletedAt = &now

	if err := s.TouchRoom(roomID); err != nil {
		return nil, err
	}

	return el, nil
}

// ListLiveElements returns a room's live elements, bottom to top.
func (s *CanvasService) ListLiveElements(roomID string) ([]model.Element, error) {
	var elements []model.Element
	err := s.db.
		Where("room_id = ? AND deleted_at IS NULL", roomID).
		Order("z_index ASC").
		Find(&elements).Error
	return elements, err
}

// TouchRoom bumps the room's denormalized updated_at.
func (s *CanvasService) TouchRoom(roomID string) error {
	return s.db.Model(&model.Room{}).
		Where("id = ?", roomID).
		UpdateColumn("updated_at", time.Now()).Error
}
