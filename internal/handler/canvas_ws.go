package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	"github.com/gofiber/contrib/websocket"
	"gorm.io/gorm"

	"github.com/pete-rs/tinyroom-api-sub000/internal/model"
	"github.com/pete-rs/tinyroom-api-sub000/internal/presence"
	"github.com/pete-rs/tinyroom-api-sub000/internal/service"
)

// Client -> server message types.
const (
	MsgRoomJoin       = "room:join"
	MsgRoomLeave      = "room:leave"
	MsgElementPreview = "element:transforming"
	MsgElementCommit  = "element:transform"
	MsgElementToFront = "element:bring-to-front"
	MsgMessageSend    = "message:send"
)

// Server -> client message types.
const (
	MsgRoomJoined       = "room:joined"
	MsgRoomLeft         = "room:left"
	MsgElementCommitted = "element:transformed"
	MsgElementZChanged  = "element:z-index-changed"
	MsgElementCreated   = "element:created"
	MsgElementUpdated   = "element:updated"
	MsgElementDeleted   = "element:deleted"
	MsgMessageNew       = "message:new"
	MsgError            = "error"
)

// WSMessage is the frame shape for every canvas socket message.
type WSMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload,omitempty"`
}

// wsEnvelope is the incoming half: payload stays raw until dispatch.
type wsEnvelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type roomRefPayload struct {
	RoomID string `json:"roomId"`
}

type previewPayload struct {
	RoomID    string           `json:"roomId"`
	ElementID string           `json:"elementId"`
	Transform previewTransform `json:"transform"`
}

type previewTransform struct {
	PositionX *float64 `json:"positionX,omitempty"`
	PositionY *float64 `json:"positionY,omitempty"`
	Rotation  *float64 `json:"rotation,omitempty"`
	ScaleX    *float64 `json:"scaleX,omitempty"`
	ScaleY    *float64 `json:"scaleY,omitempty"`
}

type commitPayload struct {
	RoomID    string `json:"roomId"`
	ElementID string `json:"elementId"`
	service.TransformCommit
}

type elementRefPayload struct {
	RoomID    string `json:"roomId"`
	ElementID string `json:"elementId"`
}

type sendMessagePayload struct {
	RoomID string `json:"roomId"`
	Body   string `json:"body"`
}

type committedPayload struct {
	Element *model.Element `json:"element"`
}

type zChangedPayload struct {
	ElementID string `json:"elementId"`
	ZIndex    int    `json:"zIndex"`
}

type errorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// CanvasWSHandler drives the realtime canvas socket: membership, preview
// relay, and the commit pipeline.
type CanvasWSHandler struct {
	db       *gorm.DB
	canvas   *service.CanvasService
	hub      *RoomHub
	presence *presence.Manager // nil when redis is not configured
}

func NewCanvasWSHandler(db *gorm.DB, canvas *service.CanvasService, hub *RoomHub, pres *presence.Manager) *CanvasWSHandler {
	return &CanvasWSHandler{
		db:       db,
		canvas:   canvas,
		hub:      hub,
		presence: pres,
	}
}

// HandleWebSocket runs one connection's read loop. Messages on a single
// connection are processed in receipt order, so a client's own
// preview-then-commit sequence is never reordered here.
func (h *CanvasWSHandler) HandleWebSocket(c *websocket.Conn) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[CanvasWS] panic recovered: %v", r)
		}
	}()

	userID, ok := c.Locals("userId").(int64)
	if !ok {
		c.WriteMessage(websocket.TextMessage, []byte(`{"type":"error","payload":{"code":"UNAUTHORIZED","message":"invalid session"}}`))
		c.Close()
		return
	}

	client := h.hub.NewClient(userID, c)
	log.Printf("[CanvasWS] Connected: client=%s user=%d", client.ID, userID)

	stopHeartbeat := make(chan struct{})
	if h.presence != nil {
		go h.heartbeatLoop(client, stopHeartbeat)
	}

	defer func() {
		close(stopHeartbeat)
		rooms := h.hub.Disconnect(client)
		for _, roomID := range rooms {
			h.clearPresence(roomID, userID)
		}
		c.Close()
		log.Printf("[CanvasWS] Disconnected: client=%s user=%d", client.ID, userID)
	}()

	for {
		_, msgBytes, err := c.ReadMessage()
		if err != nil {
			break
		}

		var env wsEnvelope
		if err := json.Unmarshal(msgBytes, &env); err != nil {
			client.Send(errorFrame("VALIDATION_ERROR", "malformed message"))
			continue
		}

		switch env.Type {
		case MsgRoomJoin:
			h.handleJoin(client, env.Payload)
		case MsgRoomLeave:
			h.handleLeave(client, env.Payload)
		case MsgElementPreview:
			h.handlePreview(client, env.Payload)
		case MsgElementCommit:
			h.handleCommit(client, env.Payload)
		case MsgElementToFront:
			h.handleBringToFront(client, env.Payload)
		case MsgMessageSend:
			h.handleSendMessage(client, env.Payload)
		default:
			client.Send(errorFrame("VALIDATION_ERROR", "unknown message type"))
		}
	}
}

func (h *CanvasWSHandler) handleJoin(client *Client, raw json.RawMessage) {
	var p roomRefPayload
	if err := json.Unmarshal(raw, &p); err != nil || p.RoomID == "" {
		client.Send(errorFrame("VALIDATION_ERROR", "roomId is required"))
		return
	}

	if !h.canvas.IsParticipant(p.RoomID, client.UserID) {
		client.Send(errorFrame("NOT_IN_ROOM", "you are not a participant of this room"))
		return
	}

	h.hub.Join(client, p.RoomID)
	h.markPresence(p.RoomID, client.UserID)
	client.Send(WSMessage{Type: MsgRoomJoined, Payload: roomRefPayload{RoomID: p.RoomID}})
}

func (h *CanvasWSHandler) handleLeave(client *Client, raw json.RawMessage) {
	var p roomRefPayload
	if err := json.Unmarshal(raw, &p); err != nil || p.RoomID == "" {
		client.Send(errorFrame("VALIDATION_ERROR", "roomId is required"))
		return
	}

	h.hub.Leave(client, p.RoomID)
	h.clearPresence(p.RoomID, client.UserID)
	client.Send(WSMessage{Type: MsgRoomLeft, Payload: roomRefPayload{RoomID: p.RoomID}})
}

// handlePreview relays an in-progress gesture to the rest of the room.
// Previews are best effort: the element id is NOT validated against storage
// (that waits for commit), nothing is persisted, and the origin is excluded
// from the fan-out. A stale element id only wastes a broadcast.
func (h *CanvasWSHandler) handlePreview(client *Client, raw json.RawMessage) {
	var p previewPayload
	if err := json.Unmarshal(raw, &p); err != nil || p.RoomID == "" || p.ElementID == "" {
		client.Send(errorFrame("VALIDATION_ERROR", "roomId and elementId are required"))
		return
	}

	if !h.hub.IsMember(client, p.RoomID) {
		client.Send(errorFrame("NOT_IN_ROOM", "join the room before transforming elements"))
		return
	}

	client.SetPreview(p.RoomID, p.ElementID, &TransformPreview{
		PositionX: p.Transform.PositionX,
		PositionY: p.Transform.PositionY,
		Rotation:  p.Transform.Rotation,
		ScaleX:    p.Transform.ScaleX,
		ScaleY:    p.Transform.ScaleY,
	})

	h.hub.BroadcastToRoom(p.RoomID, WSMessage{Type: MsgElementPreview, Payload: p}, client)
}

// handleCommit runs the commit pipeline for a finished gesture. The room
// touch inside CommitTransform happens before any broadcast below; that
// ordering is what keeps a fast-follow room-list refresh consistent.
func (h *CanvasWSHandler) handleCommit(client *Client, raw json.RawMessage) {
	var p commitPayload
	if err := json.Unmarshal(raw, &p); err != nil || p.RoomID == "" || p.ElementID == "" {
		client.Send(errorFrame("VALIDATION_ERROR", "roomId and elementId are required"))
		return
	}

	if !h.hub.IsMember(client, p.RoomID) {
		client.Send(errorFrame("NOT_IN_ROOM", "join the room before transforming elements"))
		return
	}

	el, zChanged, err := h.canvas.CommitTransform(p.RoomID, p.ElementID, &p.TransformCommit)
	if err != nil {
		client.Send(serviceErrorFrame(err))
		return
	}

	client.ClearPreview(p.RoomID, p.ElementID)

	// Origin included: its optimistic local state reconciles against the
	// authoritative element.
	h.hub.BroadcastToRoom(p.RoomID, WSMessage{Type: MsgElementCommitted, Payload: committedPayload{Element: el}}, nil)

	if zChanged {
		h.hub.BroadcastToRoom(p.RoomID, WSMessage{
			Type:    MsgElementZChanged,
			Payload: zChangedPayload{ElementID: el.ID, ZIndex: el.ZIndex},
		}, nil)
	}
}

func (h *CanvasWSHandler) handleBringToFront(client *Client, raw json.RawMessage) {
	var p elementRefPayload
	if err := json.Unmarshal(raw, &p); err != nil || p.RoomID == "" || p.ElementID == "" {
		client.Send(errorFrame("VALIDATION_ERROR", "roomId and elementId are required"))
		return
	}

	if !h.hub.IsMember(client, p.RoomID) {
		client.Send(errorFrame("NOT_IN_ROOM", "join the room before reordering elements"))
		return
	}

	el, zChanged, err := h.canvas.BringToFront(p.RoomID, p.ElementID)
	if err != nil {
		client.Send(serviceErrorFrame(err))
		return
	}

	h.hub.BroadcastToRoom(p.RoomID, WSMessage{Type: MsgElementCommitted, Payload: committedPayload{Element: el}}, nil)

	if zChanged {
		h.hub.BroadcastToRoom(p.RoomID, WSMessage{
			Type:    MsgElementZChanged,
			Payload: zChangedPayload{ElementID: el.ID, ZIndex: el.ZIndex},
		}, nil)
	}
}

func (h *CanvasWSHandler) handleSendMessage(client *Client, raw json.RawMessage) {
	var p sendMessagePayload
	if err := json.Unmarshal(raw, &p); err != nil || p.RoomID == "" || p.Body == "" {
		client.Send(errorFrame("VALIDATION_ERROR", "roomId and body are required"))
		return
	}

	if !h.hub.IsMember(client, p.RoomID) {
		client.Send(errorFrame("NOT_IN_ROOM", "join the room before sending messages"))
		return
	}

	// Same policy as comments: reject rather than truncate, which could
	// split a multi-byte rune.
	if len(p.Body) > 2000 {
		client.Send(errorFrame("VALIDATION_ERROR", "message too long"))
		return
	}

	msg := model.Message{
		RoomID:   p.RoomID,
		SenderID: client.UserID,
		Body:     p.Body,
	}
	if err := h.db.Create(&msg).Error; err != nil {
		client.Send(errorFrame("INTERNAL_ERROR", "failed to save message"))
		return
	}

	if err := h.canvas.TouchRoom(p.RoomID); err != nil {
		log.Printf("[CanvasWS] Failed to touch room %s after message: %v", p.RoomID, err)
	}

	h.hub.BroadcastToRoom(p.RoomID, WSMessage{Type: MsgMessageNew, Payload: msg}, nil)
}

// heartbeatLoop keeps the redis presence TTL alive for every room the
// connection is joined to. Stops when the connection closes.
func (h *CanvasWSHandler) heartbeatLoop(client *Client, stop <-chan struct{}) {
	ticker := time.NewTicker(60 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			for _, roomID := range client.Rooms() {
				ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
				if err := h.presence.Heartbeat(ctx, roomID); err != nil {
					log.Printf("[CanvasWS] Presence heartbeat failed for room %s: %v", roomID, err)
				}
				cancel()
			}
		}
	}
}

func (h *CanvasWSHandler) markPresence(roomID string, userID int64) {
	if h.presence == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := h.presence.JoinRoom(ctx, roomID, userID); err != nil {
			log.Printf("[CanvasWS] Failed to mark presence in room %s: %v", roomID, err)
		}
	}()
}

func (h *CanvasWSHandler) clearPresence(roomID string, userID int64) {
	if h.presence == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := h.presence.LeaveRoom(ctx, roomID, userID); err != nil {
			log.Printf("[CanvasWS] Failed to clear presence in room %s: %v", roomID, err)
		}
	}()
}

func errorFrame(code, message string) WSMessage {
	return WSMessage{Type: MsgError, Payload: errorPayload{Code: code, Message: message}}
}

// serviceErrorFrame maps pipeline errors onto wire codes. Errors go to the
// origin only; none are broadcast and none leave a partial commit behind.
func serviceErrorFrame(err error) WSMessage {
	switch {
	case errors.Is(err, service.ErrElementNotFound):
		return errorFrame("ELEMENT_NOT_FOUND", "element does not exist in this room")
	case errors.Is(err, service.ErrNotInRoom):
		return errorFrame("NOT_IN_ROOM", "not a member of this room")
	case errors.Is(err, service.ErrRoomNotFound):
		return errorFrame("ROOM_NOT_FOUND", "room does not exist")
	case errors.Is(err, service.ErrValidation):
		return errorFrame("VALIDATION_ERROR", "invalid payload")
	default:
		return errorFrame("INTERNAL_ERROR", "something went wrong")
	}
}
