package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// User is an account resolved through the external identity provider.
type User struct {
	ID         int64   `gorm:"primaryKey;autoIncrement" json:"id"`
	Email      string  `gorm:"type:varchar(255);uniqueIndex;not null" json:"email"`
	Username   string  `gorm:"type:varchar(100);not null" json:"username"`
	AvatarURL  *string `gorm:"type:text" json:"avatar_url,omitempty"`
	Provider   *string `gorm:"type:varchar(50)" json:"provider,omitempty"`
	ProviderID *string `gorm:"type:varchar(255)" json:"provider_id,omitempty"`

	// ProfileComplete gates room/element operations client-side; the server
	// only reports it.
	ProfileComplete bool      `gorm:"default:false" json:"profile_complete"`
	CreatedAt       time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time `gorm:"autoUpdateTime" json:"updated_at"`

	// Relations
	Rooms []RoomParticipant `gorm:"foreignKey:UserID" json:"rooms,omitempty"`
}

func (User) TableName() string {
	return "users"
}

// Room is a shared canvas. UpdatedAt is denormalized room activity: element
// commits touch it synchronously so that room lists sorted by updated_at
// never lag behind a broadcast the client already saw.
type Room struct {
	ID        string     `gorm:"type:uuid;primaryKey" json:"id"`
	Name      string     `gorm:"type:varchar(200);not null" json:"name"`
	CreatorID int64      `gorm:"not null" json:"creator_id"`
	CreatedAt time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time  `gorm:"autoUpdateTime;index" json:"updated_at"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`

	// Relations
	Creator      User              `gorm:"foreignKey:CreatorID" json:"creator,omitempty"`
	Participants []RoomParticipant `gorm:"foreignKey:RoomID" json:"participants,omitempty"`
	Elements     []Element         `gorm:"foreignKey:RoomID" json:"elements,omitempty"`
}

func (Room) TableName() string {
	return "rooms"
}

func (r *Room) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	return nil
}

// RoomParticipant records durable room membership (who may join the live
// session), as opposed to the per-connection membership held by the hub.
type RoomParticipant struct {
	ID       int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	RoomID   string    `gorm:"type:uuid;not null;uniqueIndex:idx_room_user" json:"room_id"`
	UserID   int64     `gorm:"not null;uniqueIndex:idx_room_user" json:"user_id"`
	JoinedAt time.Time `gorm:"autoCreateTime" json:"joined_at"`

	// Relations
	Room Room `gorm:"foreignKey:RoomID" json:"room,omitempty"`
	User User `gorm:"foreignKey:UserID" json:"user,omitempty"`
}

func (RoomParticipant) TableName() string {
	return "room_participants"
}

// Element is a positioned object on a room's canvas.
//
// Invariants at rest: no two live elements in a room share a z_index (ties
// during concurrent commits are transient and self-heal on the next commit);
// rotation is stored normalized to [0,360). Z-index values are not
// contiguous, only their order matters.
type Element struct {
	ID        string `gorm:"type:uuid;primaryKey" json:"id"`
	RoomID    string `gorm:"type:uuid;not null;index:idx_elements_room_z" json:"room_id"`
	CreatorID int64  `gorm:"not null" json:"creator_id"`
	Kind      string `gorm:"type:varchar(20);not null" json:"kind"`

	PositionX float64 `gorm:"not null" json:"position_x"`
	PositionY float64 `gorm:"not null" json:"position_y"`
	Width     float64 `gorm:"not null" json:"width"`
	Height    float64 `gorm:"not null" json:"height"`
	Rotation  float64 `gorm:"default:0" json:"rotation"`
	ScaleX    float64 `gorm:"default:1" json:"scale_x"`
	ScaleY    float64 `gorm:"default:1" json:"scale_y"`
	ZIndex    int     `gorm:"default:0;index:idx_elements_room_z" json:"z_index"`

	// Kind-specific payload. Media URLs are opaque; upload and transcoding
	// happen on the external media host.
	Content  *string  `gorm:"type:text" json:"content,omitempty"`
	MediaURL *string  `gorm:"type:text" json:"media_url,omitempty"`
	Duration *float64 `json:"duration,omitempty"`

	DeletedAt *time.Time `gorm:"index" json:"deleted_at,omitempty"`
	CreatedAt time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time  `gorm:"autoUpdateTime" json:"updated_at"`

	// Relations
	Room    Room `gorm:"foreignKey:RoomID" json:"room,omitempty"`
	Creator User `gorm:"foreignKey:CreatorID" json:"creator,omitempty"`
}

func (Element) TableName() string {
	return "elements"
}

func (e *Element) BeforeCreate(tx *gorm.DB) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	return nil
}

// Comment on an element.
type Comment struct {
	ID        int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	ElementID string     `gorm:"type:uuid;not null;index" json:"element_id"`
	UserID    int64      `gorm:"not null" json:"user_id"`
	Body      string     `gorm:"type:text;not null" json:"body"`
	CreatedAt time.Time  `gorm:"autoCreateTime" json:"created_at"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`

	// Relations
	Element Element `gorm:"foreignKey:ElementID" json:"element,omitempty"`
	User    User    `gorm:"foreignKey:UserID" json:"user,omitempty"`
}

func (Comment) TableName() string {
	return "comments"
}

// Reaction is one emoji per (user, element).
type Reaction struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	ElementID string    `gorm:"type:uuid;not null;uniqueIndex:idx_element_user" json:"element_id"`
	UserID    int64     `gorm:"not null;uniqueIndex:idx_element_user" json:"user_id"`
	Emoji     string    `gorm:"type:varchar(20);not null" json:"emoji"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`

	// Relations
	Element Element `gorm:"foreignKey:ElementID" json:"element,omitempty"`
	User    User    `gorm:"foreignKey:UserID" json:"user,omitempty"`
}

func (Reaction) TableName() string {
	return "reactions"
}

// Follow is a directed edge: follower watches followee.
type Follow struct {
	ID         int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	FollowerID int64     `gorm:"not null;uniqueIndex:idx_follower_followee" json:"follower_id"`
	FolloweeID int64     `gorm:"not null;uniqueIndex:idx_follower_followee" json:"followee_id"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`

	// Relations
	Follower User `gorm:"foreignKey:FollowerID" json:"follower,omitempty"`
	Followee User `gorm:"foreignKey:FolloweeID" json:"followee,omitempty"`
}

func (Follow) TableName() string {
	return "follows"
}

// Message is a chat-style room message.
type Message struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	RoomID    string    `gorm:"type:uuid;not null;index" json:"room_id"`
	SenderID  int64     `gorm:"not null" json:"sender_id"`
	Body      string    `gorm:"type:text;not null" json:"body"`
	CreatedAt time.Time `gorm:"autoCreateTime;index" json:"created_at"`

	// Relations
	Room   Room `gorm:"foreignKey:RoomID" json:"room,omitempty"`
	Sender User `gorm:"foreignKey:SenderID" json:"sender,omitempty"`
}

func (Message) TableName() string {
	return "messages"
}

// Notification is a persisted in-app notification. Push delivery to devices
// is an external gateway concern; a listener may fan these out.
type Notification struct {
	ID          int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID      int64     `gorm:"not null;index" json:"user_id"`
	SenderID    *int64    `json:"sender_id,omitempty"`
	Type        string    `gorm:"type:varchar(30);not null" json:"type"`
	Body        string    `gorm:"type:text;not null" json:"body"`
	RelatedType *string   `gorm:"type:varchar(30)" json:"related_type,omitempty"`
	RelatedID   *string   `gorm:"type:varchar(64)" json:"related_id,omitempty"`
	IsRead      bool      `gorm:"default:false" json:"is_read"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`

	// Relations
	User   User  `gorm:"foreignKey:UserID" json:"user,omitempty"`
	Sender *User `gorm:"foreignKey:SenderID" json:"sender,omitempty"`
}

func (Notification) TableName() string {
	return "notifications"
}
