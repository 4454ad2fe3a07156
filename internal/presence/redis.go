package presence

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// memberTTL bounds how long a crashed instance's members linger.
const memberTTL = 120 * time.Second

// Manager mirrors live room membership into redis. The hub's in-process
// maps stay authoritative for broadcast; this mirror exists so room
// listings can show who is online and so a multi-instance deployment has a
// shared place to externalize membership to. Flagged as a scaling boundary,
// not a solved one.
type Manager struct {
	client *redis.Client
}

// NewManager connects to redis and verifies the connection.
func NewManager(addr, password string, db int) (*Manager, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	log.Printf("[Presence] Connected to %s", addr)
	return &Manager{client: rdb}, nil
}

func roomKey(roomID string) string {
	return fmt.Sprintf("presence:room:%s", roomID)
}

// JoinRoom marks the user online in the room and refreshes the TTL.
func (m *Manager) JoinRoom(ctx context.Context, roomID string, userID int64) error {
	key := roomKey(roomID)
	if err := m.client.SAdd(ctx, key, userID).Err(); err != nil {
		return err
	}
	return m.client.Expire(ctx, key, memberTTL).Err()
}

// LeaveRoom removes the user from the room's online set.
func (m *Manager) LeaveRoom(ctx context.Context, roomID string, userID int64) error {
	return m.client.SRem(ctx, roomKey(roomID), userID).Err()
}

// Heartbeat extends the room set's TTL while connections stay alive.
func (m *Manager) Heartbeat(ctx context.Context, roomID string) error {
	return m.client.Expire(ctx, roomKey(roomID), memberTTL).Err()
}

// RoomMembers lists user ids currently online in the room.
func (m *Manager) RoomMembers(ctx context.Context, roomID string) ([]int64, error) {
	vals, err := m.client.SMembers(ctx, roomKey(roomID)).Result()
	if err != nil {
		return nil, err
	}

	ids := make([]int64, 0, len(vals))
	for _, v := range vals {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// RoomCount returns how many users are online in the room.
func (m *Manager) RoomCount(ctx context.Context, roomID string) (int64, error) {
	return m.client.SCard(ctx, roomKey(roomID)).Result()
}

// Health checks the connection.
func (m *Manager) Health(ctx context.Context) error {
	return m.client.Ping(ctx).Err()
}

// Close shuts the client down.
func (m *Manager) Close() error {
	return m.client.Close()
}
