package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pete-rs/tinyroom-api-sub000/internal/model"
)

func TestMaxZIndexEmptyRoom(t *testing.T) {
	db := newTestDB(t)
	room, _ := seedRoom(t, db)
	alloc := NewLayerAllocator(db)

	max, err := alloc.MaxZIndex(room.ID)
	require.NoError(t, err)
	assert.Equal(t, -1, max)
}

func TestAllocateForNewElementEmptyRoom(t *testing.T) {
	db := newTestDB(t)
	room, _ := seedRoom(t, db)
	alloc := NewLayerAllocator(db)

	z, err := alloc.AllocateForNewElement(room.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, z)
}

func TestMaxZIndexIgnoresSoftDeleted(t *testing.T) {
	db := newTestDB(t)
	svc := NewCanvasService(db)
	room, user := seedRoom(t, db)

	mustCreateElement(t, svc, room.ID, user.ID)
	top := mustCreateElement(t, svc, room.ID, user.ID)

	_, err := svc.DeleteElement(room.ID, top.ID)
	require.NoError(t, err)

	max, err := svc.Layers().MaxZIndex(room.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, max)

	// The next element reuses the deleted layer's slot.
	z, err := svc.Layers().AllocateForNewElement(room.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, z)
}

func TestMaxZIndexScopedToRoom(t *testing.T) {
	db := newTestDB(t)
	svc := NewCanvasService(db)
	roomA, user := seedRoom(t, db)

	mustCreateElement(t, svc, roomA.ID, user.ID)
	mustCreateElement(t, svc, roomA.ID, user.ID)

	roomB, _ := seedRoom(t, db)
	max, err := svc.Layers().MaxZIndex(roomB.ID)
	require.NoError(t, err)
	assert.Equal(t, -1, max)
}

func TestAllocateTopIfNeeded(t *testing.T) {
	db := newTestDB(t)
	svc := NewCanvasService(db)
	room, user := seedRoom(t, db)
	alloc := svc.Layers()

	bottom := mustCreateElement(t, svc, room.ID, user.ID)
	top := mustCreateElement(t, svc, room.ID, user.ID)

	changed, z, err := alloc.AllocateTopIfNeeded(room.ID, bottom.ID)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, top.ZIndex+1, z)

	changed, z, err = alloc.AllocateTopIfNeeded(room.ID, top.ID)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, top.ZIndex, z)
}

func TestAllocateTopIfNeededMonotonic(t *testing.T) {
	db := newTestDB(t)
	svc := NewCanvasService(db)
	room, user := seedRoom(t, db)

	a := mustCreateElement(t, svc, room.ID, user.ID)
	b := mustCreateElement(t, svc, room.ID, user.ID)

	// Alternate promotions; each allocation must exceed every prior one.
	prev := b.ZIndex
	ids := []string{a.ID, b.ID, a.ID, b.ID}
	for _, id := range ids {
		got, _, err := svc.BringToFront(room.ID, id)
		require.NoError(t, err)
		assert.Greater(t, got.ZIndex, prev)
		prev = got.ZIndex
	}
}

func TestAllocateTopIfNeededMissingElement(t *testing.T) {
	db := newTestDB(t)
	room, _ := seedRoom(t, db)
	alloc := NewLayerAllocator(db)

	_, _, err := alloc.AllocateTopIfNeeded(room.ID, "ghost")
	assert.ErrorIs(t, err, ErrElementNotFound)
}

func TestAllocateTopIfNeededDeletedElement(t *testing.T) {
	db := newTestDB(t)
	svc := NewCanvasService(db)
	room, user := seedRoom(t, db)

	el := mustCreateElement(t, svc, room.ID, user.ID)
	_, err := svc.DeleteElement(room.ID, el.ID)
	require.NoError(t, err)

	_, _, err = svc.Layers().AllocateTopIfNeeded(room.ID, el.ID)
	assert.ErrorIs(t, err, ErrElementNotFound)
}

func TestNormalizeRotation(t *testing.T) {
	assert.Equal(t, 0.0, NormalizeRotation(0))
	assert.Equal(t, 0.0, NormalizeRotation(360))
	assert.Equal(t, 10.0, NormalizeRotation(370))
	assert.Equal(t, 330.0, NormalizeRotation(-30))
	assert.InDelta(t, 359.5, NormalizeRotation(-0.5), 1e-9)
}

func TestTouchRoomAdvancesUpdatedAt(t *testing.T) {
	db := newTestDB(t)
	svc := NewCanvasService(db)
	room, _ := seedRoom(t, db)

	old := time.Now().Add(-time.Hour)
	require.NoError(t, db.Model(room).UpdateColumn("updated_at", old).Error)

	require.NoError(t, svc.TouchRoom(room.ID))

	var reloaded model.Room
	require.NoError(t, db.First(&reloaded, "id = ?", room.ID).Error)
	assert.True(t, reloaded.UpdatedAt.After(old))
}
