package service

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/pete-rs/tinyroom-api-sub000/internal/model"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(
		&model.User{},
		&model.Room{},
		&model.RoomParticipant{},
		&model.Element{},
	))
	return db
}

func seedRoom(t *testing.T, db *gorm.DB) (*model.Room, *model.User) {
	t.Helper()

	user := model.User{Email: uuid.NewString() + "@example.com", Username: "owner"}
	require.NoError(t, db.Create(&user).Error)

	room := model.Room{Name: "test room", CreatorID: user.ID}
	require.NoError(t, db.Create(&room).Error)
	require.NoError(t, db.Create(&model.RoomParticipant{RoomID: room.ID, UserID: user.ID}).Error)

	return &room, &user
}

func mustCreateElement(t *testing.T, svc *CanvasService, roomID string, creatorID int64) *model.Element {
	t.Helper()

	el, err := svc.CreateElement(roomID, creatorID, &CreateElementInput{
		Kind:      "NOTE",
		PositionX: 10,
		PositionY: 20,
		Width:     100,
		Height:    80,
	})
	require.NoError(t, err)
	return el
}

func f64(v float64) *float64 {
	return &v
}

func TestCreateElementStacksOnTop(t *testing.T) {
	db := newTestDB(t)
	svc := NewCanvasService(db)
	room, user := seedRoom(t, db)

	a := mustCreateElement(t, svc, room.ID, user.ID)
	b := mustCreateElement(t, svc, room.ID, user.ID)
	c := mustCreateElement(t, svc, room.ID, user.ID)

	assert.Equal(t, 0, a.ZIndex)
	assert.Equal(t, 1, b.ZIndex)
	assert.Equal(t, 2, c.ZIndex)
}

func TestCommitTransformPartialFieldsKeepRest(t *testing.T) {
	db := newTestDB(t)
	svc := NewCanvasService(db)
	room, user := seedRoom(t, db)
	el := mustCreateElement(t, svc, room.ID, user.ID)

	got, _, err := svc.CommitTransform(room.ID, el.ID, &TransformCommit{
		PositionX: f64(55),
	})
	require.NoError(t, err)

	assert.Equal(t, 55.0, got.PositionX)
	assert.Equal(t, 20.0, got.PositionY)
	assert.Equal(t, 100.0, got.Width)
	assert.Equal(t, 80.0, got.Height)
	assert.Equal(t, 1.0, got.ScaleX)
}

func TestCommitTransformNormalizesRotation(t *testing.T) {
	cases := []struct {
		in   float64
		want float64
	}{
		{0, 0},
		{45, 45},
		{360, 0},
		{370, 10},
		{720, 0},
		{-30, 330},
		{-360, 0},
	}

	db := newTestDB(t)
	svc := NewCanvasService(db)
	room, user := seedRoom(t, db)
	el := mustCreateElement(t, svc, room.ID, user.ID)

	for _, tc := range cases {
		got, _, err := svc.CommitTransform(room.ID, el.ID, &TransformCommit{
			Rotation: f64(tc.in),
		})
		require.NoError(t, err)
		assert.InDelta(t, tc.want, got.Rotation, 1e-9, "rotation %v", tc.in)
	}
}

func TestCommitTransformRejectsNonPositiveScale(t *testing.T) {
	db := newTestDB(t)
	svc := NewCanvasService(db)
	room, user := seedRoom(t, db)
	el := mustCreateElement(t, svc, room.ID, user.ID)

	_, _, err := svc.CommitTransform(room.ID, el.ID, &TransformCommit{ScaleX: f64(0)})
	assert.ErrorIs(t, err, ErrValidation)

	_, _, err = svc.CommitTransform(room.ID, el.ID, &TransformCommit{ScaleY: f64(-1)})
	assert.ErrorIs(t, err, ErrValidation)

	// Nothing persisted.
	reloaded, err := svc.GetLiveElement(room.ID, el.ID)
	require.NoError(t, err)
	assert.Equal(t, 1.0, reloaded.ScaleX)
	assert.Equal(t, 1.0, reloaded.ScaleY)
}

func TestCommitTransformPromotesToTop(t *testing.T) {
	db := newTestDB(t)
	svc := NewCanvasService(db)
	room, user := seedRoom(t, db)

	a := mustCreateElement(t, svc, room.ID, user.ID)
	mustCreateElement(t, svc, room.ID, user.ID)
	c := mustCreateElement(t, svc, room.ID, user.ID)

	got, changed, err := svc.CommitTransform(room.ID, a.ID, &TransformCommit{PositionX: f64(1)})
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, c.ZIndex+1, got.ZIndex)
}

func TestCommitTransformTopElementKeepsZ(t *testing.T) {
	db := newTestDB(t)
	svc := NewCanvasService(db)
	room, user := seedRoom(t, db)

	mustCreateElement(t, svc, room.ID, user.ID)
	top := mustCreateElement(t, svc, room.ID, user.ID)

	got, changed, err := svc.CommitTransform(room.ID, top.ID, &TransformCommit{PositionX: f64(1)})
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, top.ZIndex, got.ZIndex)
}

func TestCommitTransformTouchesRoom(t *testing.T) {
	db := newTestDB(t)
	svc := NewCanvasService(db)
	room, user := seedRoom(t, db)
	el := mustCreateElement(t, svc, room.ID, user.ID)

	// Backdate the room so the touch is observable.
	old := time.Now().Add(-time.Hour)
	require.NoError(t, db.Model(&model.Room{}).Where("id = ?", room.ID).
		UpdateColumn("updated_at", old).Error)

	before := time.Now()
	_, _, err := svc.CommitTransform(room.ID, el.ID, &TransformCommit{PositionX: f64(9)})
	require.NoError(t, err)

	var reloaded model.Room
	require.NoError(t, db.First(&reloaded, "id = ?", room.ID).Error)
	assert.False(t, reloaded.UpdatedAt.Before(before))
}

func TestBringToFrontDoesNotTouchRoom(t *testing.T) {
	db := newTestDB(t)
	svc := NewCanvasService(db)
	room, user := seedRoom(t, db)

	bottom := mustCreateElement(t, svc, room.ID, user.ID)
	mustCreateElement(t, svc, room.ID, user.ID)

	old := time.Now().Add(-time.Hour)
	require.NoError(t, db.Model(&model.Room{}).Where("id = ?", room.ID).
		UpdateColumn("updated_at", old).Error)

	got, changed, err := svc.BringToFront(room.ID, bottom.ID)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, 2, got.ZIndex)

	var reloaded model.Room
	require.NoError(t, db.First(&reloaded, "id = ?", room.ID).Error)
	assert.WithinDuration(t, old, reloaded.UpdatedAt, time.Second)
}

func TestBringToFrontTopIsNoop(t *testing.T) {
	db := newTestDB(t)
	svc := NewCanvasService(db)
	room, user := seedRoom(t, db)

	mustCreateElement(t, svc, room.ID, user.ID)
	top := mustCreateElement(t, svc, room.ID, user.ID)

	got, changed, err := svc.BringToFront(room.ID, top.ID)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, top.ZIndex, got.ZIndex)
}

func TestCommitTransformMissingElement(t *testing.T) {
	db := newTestDB(t)
	svc := NewCanvasService(db)
	room, _ := seedRoom(t, db)

	_, _, err := svc.CommitTransform(room.ID, "no-such-element", &TransformCommit{PositionX: f64(1)})
	assert.ErrorIs(t, err, ErrElementNotFound)
}

func TestCommitTransformDeletedElement(t *testing.T) {
	db := newTestDB(t)
	svc := NewCanvasService(db)
	room, user := seedRoom(t, db)
	el := mustCreateElement(t, svc, room.ID, user.ID)

	_, err := svc.DeleteElement(room.ID, el.ID)
	require.NoError(t, err)

	_, _, err = svc.CommitTransform(room.ID, el.ID, &TransformCommit{PositionX: f64(1)})
	assert.ErrorIs(t, err, ErrElementNotFound)
}

func TestCommitTransformWrongRoom(t *testing.T) {
	db := newTestDB(t)
	svc := NewCanvasService(db)
	room, user := seedRoom(t, db)
	el := mustCreateElement(t, svc, room.ID, user.ID)

	other := model.Room{Name: "other", CreatorID: user.ID}
	require.NoError(t, db.Create(&other).Error)

	_, _, err := svc.CommitTransform(other.ID, el.ID, &TransformCommit{PositionX: f64(1)})
	assert.ErrorIs(t, err, ErrElementNotFound)
}

func TestDeleteElementKeepsSiblingZ(t *testing.T) {
	db := newTestDB(t)
	svc := NewCanvasService(db)
	room, user := seedRoom(t, db)

	a := mustCreateElement(t, svc, room.ID, user.ID)
	b := mustCreateElement(t, svc, room.ID, user.ID)
	c := mustCreateElement(t, svc, room.ID, user.ID)

	_, err := svc.DeleteElement(room.ID, b.ID)
	require.NoError(t, err)

	live, err := svc.ListLiveElements(room.ID)
	require.NoError(t, err)
	require.Len(t, live, 2)
	assert.Equal(t, a.ZIndex, live[0].ZIndex)
	assert.Equal(t, c.ZIndex, live[1].ZIndex)
}

func TestCreateElementRejectsUnknownKind(t *testing.T) {
	db := newTestDB(t)
	svc := NewCanvasService(db)
	room, user := seedRoom(t, db)

	_, err := svc.CreateElement(room.ID, user.ID, &CreateElementInput{Kind: "STICKER"})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestListLiveElementsOrdered(t *testing.T) {
	db := newTestDB(t)
	svc := NewCanvasService(db)
	room, user := seedRoom(t, db)

	a := mustCreateElement(t, svc, room.ID, user.ID)
	mustCreateElement(t, svc, room.ID, user.ID)
	mustCreateElement(t, svc, room.ID, user.ID)

	// Promote the oldest so creation order and z order diverge.
	_, _, err := svc.BringToFront(room.ID, a.ID)
	require.NoError(t, err)

	live, err := svc.ListLiveElements(room.ID)
	require.NoError(t, err)
	require.Len(t, live, 3)
	for i := 1; i < len(live); i++ {
		assert.Less(t, live[i-1].ZIndex, live[i].ZIndex)
	}
	assert.Equal(t, a.ID, live[2].ID)
}

func TestDuplicateParticipantIsDuplicatedKey(t *testing.T) {
	db := newTestDB(t)
	room, user := seedRoom(t, db)

	err := db.Create(&model.RoomParticipant{RoomID: room.ID, UserID: user.ID}).Error
	assert.ErrorIs(t, err, gorm.ErrDuplicatedKey)
}

func TestIsParticipant(t *testing.T) {
	db := newTestDB(t)
	svc := NewCanvasService(db)
	room, user := seedRoom(t, db)

	stranger := model.User{Email: "stranger@example.com", Username: "stranger"}
	require.NoError(t, db.Create(&stranger).Error)

	assert.True(t, svc.IsParticipant(room.ID, user.ID))
	assert.False(t, svc.IsParticipant(room.ID, stranger.ID))
}
