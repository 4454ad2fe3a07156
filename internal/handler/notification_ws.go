package handler

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"
)

// NotificationHub tracks per-user notification sockets. Unlike the room hub
// there is no membership concept: a user's connections just receive whatever
// is addressed to them. Multiple devices per user are allowed.
type NotificationHub struct {
	conns map[int64]map[*notifConn]bool
	mu    sync.RWMutex

	writeTimeout time.Duration
}

type notifConn struct {
	userID  int64
	conn    wsConn
	writeMu sync.Mutex
}

func NewNotificationHub(writeTimeout time.Duration) *NotificationHub {
	return &NotificationHub{
		conns:        make(map[int64]map[*notifConn]bool),
		writeTimeout: writeTimeout,
	}
}

// Register adds a connection for the user and returns a handle for Unregister.
func (h *NotificationHub) Register(userID int64, conn wsConn) *notifConn {
	nc := &notifConn{userID: userID, conn: conn}

	h.mu.Lock()
	if h.conns[userID] == nil {
		h.conns[userID] = make(map[*notifConn]bool)
	}
	h.conns[userID][nc] = true
	h.mu.Unlock()

	log.Printf("[NotificationHub] Registered connection for user %d", userID)
	return nc
}

// Unregister drops a connection.
func (h *NotificationHub) Unregister(nc *notifConn) {
	h.mu.Lock()
	if set, ok := h.conns[nc.userID]; ok {
		delete(set, nc)
		if len(set) == 0 {
			delete(h.conns, nc.userID)
		}
	}
	h.mu.Unlock()
}

// SendToUser pushes a frame to every connection the user holds.
// Fire-and-forget; the notification row is the durable copy.
func (h *NotificationHub) SendToUser(userID int64, msg WSMessage) {
	h.mu.RLock()
	set := h.conns[userID]
	targets := make([]*notifConn, 0, len(set))
	for nc := range set {
		targets = append(targets, nc)
	}
	h.mu.RUnlock()

	if len(targets) == 0 {
		return
	}

	data, err := json.Marshal(msg)
	if err != nil {
		log.Printf("[NotificationHub] Failed to marshal message for user %d: %v", userID, err)
		return
	}

	for _, nc := range targets {
		nc.writeMu.Lock()
		if h.writeTimeout > 0 {
			_ = nc.conn.SetWriteDeadline(time.Now().Add(h.writeTimeout))
		}
		err := nc.conn.WriteMessage(websocket.TextMessage, data)
		nc.writeMu.Unlock()
		if err != nil {
			log.Printf("[NotificationHub] Failed to send to user %d: %v", userID, err)
		}
	}
}

// HandleWebSocket runs one notification socket. The socket is push-only;
// incoming frames are drained and ignored.
func (h *NotificationHub) HandleWebSocket(c *websocket.Conn) {
	userID, ok := c.Locals("userId").(int64)
	if !ok {
		c.Close()
		return
	}

	nc := h.Register(userID, c)
	defer func() {
		h.Unregister(nc)
		c.Close()
	}()

	for {
		if _, _, err := c.ReadMessage(); err != nil {
			break
		}
	}
}
