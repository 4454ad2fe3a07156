package service

import "errors"

var (
	// ErrNotInRoom rejects element operations from connections that have not
	// joined the target room. Checked before any storage access.
	ErrNotInRoom = errors.New("connection is not a member of the room")

	// ErrElementNotFound means the commit referenced an element that does
	// not exist (or is soft-deleted) in the target room. Clients hitting
	// this usually committed against a client-generated id before the
	// create was acknowledged.
	ErrElementNotFound = errors.New("element not found in room")

	// ErrRoomNotFound means the room does not exist or is deleted.
	ErrRoomNotFound = errors.New("room not found")

	// ErrValidation rejects malformed payloads before storage access.
	ErrValidation = errors.New("invalid payload")
)
