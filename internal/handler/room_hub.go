package handler

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/google/uuid"
)

// wsConn is the write surface the hub needs from a connection. Satisfied by
// *websocket.Conn; tests substitute a capture fake.
type wsConn interface {
	WriteMessage(messageType int, data []byte) error
	SetWriteDeadline(t time.Time) error
}

// RoomHub tracks which connected clients belong to which room and fans
// messages out to them. Membership is process-local; in a multi-instance
// deployment this map has to move to a shared fabric (the redis presence
// mirror marks the seam).
type RoomHub struct {
	rooms map[string]*LiveRoom
	mu    sync.RWMutex

	// writeTimeout bounds each frame write so one stalled connection
	// cannot wedge a broadcast. Zero disables the deadline.
	writeTimeout time.Duration
}

// LiveRoom is the set of connections currently joined to one room.
type LiveRoom struct {
	ID      string
	clients map[*Client]bool
	mu      sync.RWMutex
}

// Client is one WebSocket connection. It owns its room memberships and its
// in-flight transform sessions; both die with the connection.
type Client struct {
	ID     string
	UserID int64

	conn         wsConn
	writeMu      sync.Mutex
	writeTimeout time.Duration

	mu       sync.Mutex
	rooms    map[string]bool
	previews map[previewKey]*TransformPreview
}

type previewKey struct {
	roomID    string
	elementID string
}

// TransformPreview is the latest non-persisted gesture state for one
// (room, element) pair on one connection.
type TransformPreview struct {
	PositionX  *float64
	PositionY  *float64
	Rotation   *float64
	ScaleX     *float64
	ScaleY     *float64
	ReceivedAt time.Time
}

func NewRoomHub(writeTimeout time.Duration) *RoomHub {
	return &RoomHub{
		rooms:        make(map[string]*LiveRoom),
		writeTimeout: writeTimeout,
	}
}

// NewClient registers a connection with the hub.
func (h *RoomHub) NewClient(userID int64, conn wsConn) *Client {
	return &Client{
		ID:           uuid.NewString(),
		UserID:       userID,
		conn:         conn,
		writeTimeout: h.writeTimeout,
		rooms:        make(map[string]bool),
		previews:     make(map[previewKey]*TransformPreview),
	}
}

func (h *RoomHub) getOrCreateRoom(roomID string) *LiveRoom {
	h.mu.Lock()
	defer h.mu.Unlock()

	if room, ok := h.rooms[roomID]; ok {
		return room
	}

	room := &LiveRoom{
		ID:      roomID,
		clients: make(map[*Client]bool),
	}
	h.rooms[roomID] = room
	log.Printf("[RoomHub] Created live room: %s", roomID)
	return room
}

// Join adds the client to the room's membership set. Idempotent.
func (h *RoomHub) Join(client *Client, roomID string) {
	room := h.getOrCreateRoom(roomID)

	room.mu.Lock()
	room.clients[client] = true
	total := len(room.clients)
	room.mu.Unlock()

	client.mu.Lock()
	client.rooms[roomID] = true
	client.mu.Unlock()

	log.Printf("[RoomHub] Client %s joined room %s (connections: %d)", client.ID, roomID, total)
}

// Leave removes the client from the room and discards any transform
// sessions it held there. Idempotent; re-joining later is always legal.
func (h *RoomHub) Leave(client *Client, roomID string) {
	h.mu.RLock()
	room := h.rooms[roomID]
	h.mu.RUnlock()

	if room != nil {
		room.mu.Lock()
		delete(room.clients, client)
		empty := len(room.clients) == 0
		room.mu.Unlock()

		if empty {
			h.removeRoom(roomID)
		}
	}

	client.mu.Lock()
	delete(client.rooms, roomID)
	for key := range client.previews {
		if key.roomID == roomID {
			delete(client.previews, key)
		}
	}
	client.mu.Unlock()
}

// Disconnect drops every membership the client holds and all of its
// transform sessions. No orphaned previews survive the connection. Returns
// the rooms that were left so callers can clear external presence.
func (h *RoomHub) Disconnect(client *Client) []string {
	client.mu.Lock()
	rooms := make([]string, 0, len(client.rooms))
	for roomID := range client.rooms {
		rooms = append(rooms, roomID)
	}
	client.mu.Unlock()

	for _, roomID := range rooms {
		h.Leave(client, roomID)
	}

	client.mu.Lock()
	client.previews = make(map[previewKey]*TransformPreview)
	client.mu.Unlock()

	log.Printf("[RoomHub] Client %s disconnected (left %d rooms)", client.ID, len(rooms))
	return rooms
}

// Rooms snapshots the client's current memberships.
func (c *Client) Rooms() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	rooms := make([]string, 0, len(c.rooms))
	for roomID := range c.rooms {
		rooms = append(rooms, roomID)
	}
	return rooms
}

// IsMember is the single membership predicate every element operation
// consults before doing anything else.
func (h *RoomHub) IsMember(client *Client, roomID string) bool {
	client.mu.Lock()
	defer client.mu.Unlock()
	return client.rooms[roomID]
}

func (h *RoomHub) removeRoom(roomID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if room, ok := h.rooms[roomID]; ok {
		room.mu.RLock()
		empty := len(room.clients) == 0
		room.mu.RUnlock()
		if empty {
			delete(h.rooms, roomID)
			log.Printf("[RoomHub] Removed empty live room: %s", roomID)
		}
	}
}

// BroadcastToRoom delivers msg to every connection in the room, optionally
// skipping the originator. At-most-once, fire-and-forget: a failed write is
// logged and the client simply misses the frame (room re-entry resyncs).
func (h *RoomHub) BroadcastToRoom(roomID string, msg WSMessage, exclude *Client) {
	h.mu.RLock()
	room := h.rooms[roomID]
	h.mu.RUnlock()

	if room == nil {
		return
	}

	data, err := json.Marshal(msg)
	if err != nil {
		log.Printf("[RoomHub] Failed to marshal broadcast for room %s: %v", roomID, err)
		return
	}

	room.mu.RLock()
	clients := make([]*Client, 0, len(room.clients))
	for c := range room.clients {
		clients = append(clients, c)
	}
	room.mu.RUnlock()

	for _, c := range clients {
		if c == exclude {
			continue
		}
		if err := c.writeRaw(data); err != nil {
			log.Printf("[RoomHub] Failed to send to client %s in room %s: %v", c.ID, roomID, err)
		}
	}
}

// Send delivers a message to one client only (acks and errors).
func (c *Client) Send(msg WSMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		log.Printf("[RoomHub] Failed to marshal message for client %s: %v", c.ID, err)
		return
	}
	if err := c.writeRaw(data); err != nil {
		log.Printf("[RoomHub] Failed to send to client %s: %v", c.ID, err)
	}
}

func (c *Client) writeRaw(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.writeTimeout > 0 {
		_ = c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	}
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// SetPreview stores the latest preview for a gesture, creating the session
// implicitly on the first message.
func (c *Client) SetPreview(roomID, elementID string, p *TransformPreview) {
	p.ReceivedAt = time.Now()
	c.mu.Lock()
	c.previews[previewKey{roomID, elementID}] = p
	c.mu.Unlock()
}

// Preview returns the in-flight preview for a gesture, if any.
func (c *Client) Preview(roomID, elementID string) *TransformPreview {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.previews[previewKey{roomID, elementID}]
}

// ClearPreview discards a transform session, typically because a commit
// superseded it.
func (c *Client) ClearPreview(roomID, elementID string) {
	c.mu.Lock()
	delete(c.previews, previewKey{roomID, elementID})
	c.mu.Unlock()
}

// PreviewCount reports how many transform sessions the client holds.
func (c *Client) PreviewCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.previews)
}
