package domain

import "time"

// Room is a named, optionally password-protected container for one game session.
type Room struct {
	ID        int64     `json:"id"`
	Name      string    `json:"roomName"`
	Password  *string   `json:"-"`
	Game      *string   `json:"game"`
	Duration  *int      `json:"duration"`
	CreatedAt time.Time `json:"createdAt"`
}

// HasPassword reports whether joining requires a password.
func (r *Room) HasPassword() bool {
	return r.Password != nil && *r.Password != ""
}

// RoomSummary is the public listing view of a room. The password itself never leaves the server.
type RoomSummary struct {
	ID          int64  `json:"id"`
	Name        string `json:"roomName"`
	HasPassword bool   `json:"hasPassword"`
}

// Participant is a user's membership in a room.
type Participant struct {
	RoomID   int64     `json:"-"`
	UserID   string    `json:"userId"`
	UserName string    `json:"userName"`
	IsLeader bool      `json:"isLeader"`
	IsReady  bool      `json:"isReady"`
	JoinedAt time.Time `json:"-"`
}

// Settings holds the game selected for a room. Both values are null until first set.
type Settings struct {
	Game     *string `json:"game"`
	Duration *int    `json:"duration"`
}

// User is a registered player identity.
type User struct {
	ID   string `json:"userId" validate:"required"`
	Name string `json:"userName" validate:"required"`
}

// CreateRoomRequest represents a request to create a room
type CreateRoomRequest struct {
	RoomName string  `json:"roomName" validate:"required"`
	UserID   string  `json:"userId" validate:"required"`
	UserName string  `json:"userName" validate:"required"`
	Password *string `json:"password,omitempty"`
}

// JoinRoomRequest represents a request to join a room
type JoinRoomRequest struct {
	UserID   string  `json:"userId" validate:"required"`
	UserName string  `json:"userName" validate:"required"`
	Password *string `json:"password,omitempty"`
}

// CreateRoomResult is returned after a room was created.
type CreateRoomResult struct {
	RoomID   int64  `json:"roomId"`
	RoomName string `json:"roomName"`
}

// JoinResult is returned after a user joined a room.
type JoinResult struct {
	RoomID   int64  `json:"roomId"`
	UserID   string `json:"userId"`
	UserName string `json:"userName"`
	IsLeader bool   `json:"isLeader"`
}

// LeaveResult is returned after a participant left a room.
type LeaveResult struct {
	RoomID      int64  `json:"roomId"`
	UserID      string `json:"userId"`
	RoomDeleted bool   `json:"roomDeleted"`
}

// LoginStatus tells whether a login created the user.
type LoginStatus string

const (
	LoginRegistered LoginStatus = "registered"
	LoginLoggedIn   LoginStatus = "loggedIn"
)

// LoginResult is returned by the login operation.
type LoginResult struct {
	Status   LoginStatus `json:"status"`
	UserID   string      `json:"userId"`
	UserName string      `json:"userName"`
}
