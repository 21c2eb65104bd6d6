package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// EventGameStarted is the wire type of the game-started broadcast.
const EventGameStarted = "game-started"

// RoomKey identifies a room on the realtime channel. Clients may send the room id as a
// JSON number or a JSON string; both decode to the same key.
type RoomKey string

// RoomKeyFromID converts a registry room id to its realtime key.
func RoomKeyFromID(id int64) RoomKey {
	return RoomKey(strconv.FormatInt(id, 10))
}

// UnmarshalJSON accepts numbers and strings.
func (k *RoomKey) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*k = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*k = RoomKey(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("room id must be a number or a string: %w", err)
	}
	*k = RoomKey(n.String())
	return nil
}

// MarshalJSON writes integer keys back as numbers.
func (k RoomKey) MarshalJSON() ([]byte, error) {
	if n, err := strconv.ParseInt(string(k), 10, 64); err == nil && strconv.FormatInt(n, 10) == string(k) {
		return []byte(k), nil
	}
	return json.Marshal(string(k))
}

// GameStarted is broadcast to every connection subscribed to a room.
type GameStarted struct {
	Type     string  `json:"type"`
	RoomID   RoomKey `json:"roomId"`
	Game     string  `json:"game"`
	Duration int     `json:"duration"`
}

// NewGameStarted builds a game-started event.
func NewGameStarted(roomID RoomKey, game string, duration int) GameStarted {
	return GameStarted{
		Type:     EventGameStarted,
		RoomID:   roomID,
		Game:     game,
		Duration: duration,
	}
}
