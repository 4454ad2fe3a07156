package model

// ElementKind is the fixed set of canvas element types.
type ElementKind string

const (
	ElementKindNote      ElementKind = "NOTE"
	ElementKindPhoto     ElementKind = "PHOTO"
	ElementKindAudio     ElementKind = "AUDIO"
	ElementKindVideo     ElementKind = "VIDEO"
	ElementKindLink      ElementKind = "LINK"
	ElementKindHoroscope ElementKind = "HOROSCOPE"
)

func (k ElementKind) String() string {
	return string(k)
}

// Valid reports whether k is a known element kind.
func (k ElementKind) Valid() bool {
	switch k {
	case ElementKindNote, ElementKindPhoto, ElementKindAudio,
		ElementKindVideo, ElementKindLink, ElementKindHoroscope:
		return true
	}
	return false
}

// NotificationType identifies what triggered a notification.
type NotificationType string

const (
	NotificationTypeNewFollower NotificationType = "NEW_FOLLOWER"
	NotificationTypeNewComment  NotificationType = "NEW_COMMENT"
	NotificationTypeNewReaction NotificationType = "NEW_REACTION"
	NotificationTypeRoomInvite  NotificationType = "ROOM_INVITE"
)

func (n NotificationType) String() string {
	return string(n)
}

// RelatedType values for Notification.RelatedType.
const (
	RelatedTypeElement = "ELEMENT"
	RelatedTypeRoom    = "ROOM"
	RelatedTypeUser    = "USER"
)
