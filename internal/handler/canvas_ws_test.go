package handler

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/pete-rs/tinyroom-api-sub000/internal/model"
	"github.com/pete-rs/tinyroom-api-sub000/internal/service"
)

func newWSTestHandler(t *testing.T) (*CanvasWSHandler, *gorm.DB) {
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
		&model.Message{},
	))

	canvas := service.NewCanvasService(db)
	return NewCanvasWSHandler(db, canvas, NewRoomHub(0), nil), db
}

func seedCanvas(t *testing.T, h *CanvasWSHandler, db *gorm.DB) (*model.Room, *model.User, *model.Element) {
	t.Helper()

	user := model.User{Email: uuid.NewString() + "@example.com", Username: "member"}
	require.NoError(t, db.Create(&user).Error)

	room := model.Room{Name: "canvas", CreatorID: user.ID}
	require.NoError(t, db.Create(&room).Error)
	require.NoError(t, db.Create(&model.RoomParticipant{RoomID: room.ID, UserID: user.ID}).Error)

	el, err := h.canvas.CreateElement(room.ID, user.ID, &service.CreateElementInput{
		Kind:      "NOTE",
		PositionX: 10,
		PositionY: 20,
		Width:     100,
		Height:    80,
	})
	require.NoError(t, err)

	return &room, &user, el
}

func mustRaw(t *testing.T, v interface{}) json.RawMessage {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return data
}

// receivedFrames decodes everything a fake connection received: the frame
// types in order, plus any error payloads.
func receivedFrames(t *testing.T, conn *fakeConn) (types []string, errs []errorPayload) {
	t.Helper()
	conn.mu.Lock()
	defer conn.mu.Unlock()

	for _, frame := range conn.frames {
		var f struct {
			Type    string       `json:"type"`
			Payload errorPayload `json:"payload"`
		}
		require.NoError(t, json.Unmarshal(frame, &f))
		types = append(types, f.Type)
		if f.Type == MsgError {
			errs = append(errs, f.Payload)
		}
	}
	return types, errs
}

func reloadElement(t *testing.T, db *gorm.DB, id string) model.Element {
	t.Helper()
	var el model.Element
	require.NoError(t, db.First(&el, "id = ?", id).Error)
	return el
}

func TestCommitRejectedWhenNotJoined(t *testing.T) {
	h, db := newWSTestHandler(t)
	room, user, el := seedCanvas(t, h, db)

	member, memberConn := newHubClient(h.hub, user.ID)
	h.hub.Join(member, room.ID)

	// A participant in storage, but this connection never joined the room.
	outsider, outsiderConn := newHubClient(h.hub, user.ID)

	h.handleCommit(outsider, mustRaw(t, map[string]interface{}{
		"roomId":    room.ID,
		"elementId": el.ID,
		"positionX": 999.0,
	}))

	_, errs := receivedFrames(t, outsiderConn)
	require.Len(t, errs, 1)
	assert.Equal(t, "NOT_IN_ROOM", errs[0].Code)

	// No broadcast reached the room and nothing was persisted.
	types, _ := receivedFrames(t, memberConn)
	assert.Empty(t, types)
	assert.Equal(t, 10.0, reloadElement(t, db, el.ID).PositionX)
}

func TestPreviewRejectedWhenNotJoined(t *testing.T) {
	h, db := newWSTestHandler(t)
	room, user, el := seedCanvas(t, h, db)

	member, memberConn := newHubClient(h.hub, user.ID)
	h.hub.Join(member, room.ID)
	outsider, outsiderConn := newHubClient(h.hub, user.ID)

	h.handlePreview(outsider, mustRaw(t, previewPayload{
		RoomID:    room.ID,
		ElementID: el.ID,
		Transform: previewTransform{Rotation: f64ptr(45)},
	}))

	_, errs := receivedFrames(t, outsiderConn)
	require.Len(t, errs, 1)
	assert.Equal(t, "NOT_IN_ROOM", errs[0].Code)

	types, _ := receivedFrames(t, memberConn)
	assert.Empty(t, types)
	assert.Zero(t, outsider.PreviewCount())
}

func TestBringToFrontRejectedWhenNotJoined(t *testing.T) {
	h, db := newWSTestHandler(t)
	room, user, el := seedCanvas(t, h, db)

	outsider, outsiderConn := newHubClient(h.hub, user.ID)

	h.handleBringToFront(outsider, mustRaw(t, elementRefPayload{
		RoomID:    room.ID,
		ElementID: el.ID,
	}))

	_, errs := receivedFrames(t, outsiderConn)
	require.Len(t, errs, 1)
	assert.Equal(t, "NOT_IN_ROOM", errs[0].Code)
	assert.Equal(t, el.ZIndex, reloadElement(t, db, el.ID).ZIndex)
}

func TestPreviewsAreNotPersisted(t *testing.T) {
	h, db := newWSTestHandler(t)
	room, user, el := seedCanvas(t, h, db)

	origin, originConn := newHubClient(h.hub, user.ID)
	peer, peerConn := newHubClient(h.hub, user.ID)
	h.hub.Join(origin, room.ID)
	h.hub.Join(peer, room.ID)

	for _, rot := range []float64{15, 30, 45} {
		h.handlePreview(origin, mustRaw(t, previewPayload{
			RoomID:    room.ID,
			ElementID: el.ID,
			Transform: previewTransform{Rotation: f64ptr(rot)},
		}))
	}

	// Relayed to the peer, excluded from the origin.
	peerTypes, _ := receivedFrames(t, peerConn)
	assert.Equal(t, []string{MsgElementPreview, MsgElementPreview, MsgElementPreview}, peerTypes)
	originTypes, _ := receivedFrames(t, originConn)
	assert.Empty(t, originTypes)

	// With no commit the stored element is untouched.
	stored := reloadElement(t, db, el.ID)
	assert.Equal(t, 0.0, stored.Rotation)
	assert.Equal(t, 10.0, stored.PositionX)
}

func TestCommitBroadcastIncludesOrigin(t *testing.T) {
	h, db := newWSTestHandler(t)
	room, user, el := seedCanvas(t, h, db)

	origin, originConn := newHubClient(h.hub, user.ID)
	peer, peerConn := newHubClient(h.hub, user.ID)
	h.hub.Join(origin, room.ID)
	h.hub.Join(peer, room.ID)

	h.handleCommit(origin, mustRaw(t, map[string]interface{}{
		"roomId":    room.ID,
		"elementId": el.ID,
		"positionX": 77.0,
	}))

	originTypes, _ := receivedFrames(t, originConn)
	peerTypes, _ := receivedFrames(t, peerConn)
	assert.Contains(t, originTypes, MsgElementCommitted)
	assert.Contains(t, peerTypes, MsgElementCommitted)
	assert.Equal(t, 77.0, reloadElement(t, db, el.ID).PositionX)
}

func TestCommitClearsPreviewSession(t *testing.T) {
	h, db := newWSTestHandler(t)
	room, user, el := seedCanvas(t, h, db)

	origin, _ := newHubClient(h.hub, user.ID)
	h.hub.Join(origin, room.ID)

	h.handlePreview(origin, mustRaw(t, previewPayload{
		RoomID:    room.ID,
		ElementID: el.ID,
		Transform: previewTransform{Rotation: f64ptr(90)},
	}))
	require.Equal(t, 1, origin.PreviewCount())

	h.handleCommit(origin, mustRaw(t, map[string]interface{}{
		"roomId":    room.ID,
		"elementId": el.ID,
		"rotation":  90.0,
	}))

	assert.Zero(t, origin.PreviewCount())
	assert.Equal(t, 90.0, reloadElement(t, db, el.ID).Rotation)
}

func TestSendMessageRejectsOverlongBody(t *testing.T) {
	h, db := newWSTestHandler(t)
	room, user, _ := seedCanvas(t, h, db)

	origin, originConn := newHubClient(h.hub, user.ID)
	h.hub.Join(origin, room.ID)

	h.handleSendMessage(origin, mustRaw(t, sendMessagePayload{
		RoomID: room.ID,
		Body:   strings.Repeat("a", 2001),
	}))

	_, errs := receivedFrames(t, originConn)
	require.Len(t, errs, 1)
	assert.Equal(t, "VALIDATION_ERROR", errs[0].Code)

	var count int64
	require.NoError(t, db.Model(&model.Message{}).Count(&count).Error)
	assert.Zero(t, count)
}

func f64ptr(v float64) *float64 {
	return &v
}
