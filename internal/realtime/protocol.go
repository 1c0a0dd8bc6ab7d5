package realtime

import (
	"encoding/json"
)

// Client actions.
const (
	ActionJoin      = "join"
	ActionLeave     = "leave"
	ActionJoinAdmin = "joinAdmin"
)

// Control frame names. They share the {"event","data"} envelope with domain
// events but are never published to rooms.
const (
	ControlJoined = "joined"
	ControlLeft   = "left"
	ControlError  = "error"
)

// ClientMessage is a frame sent by a client.
type ClientMessage struct {
	Action string `json:"action"`
	UserID string `json:"user_id,omitempty"`
	Room   string `json:"room,omitempty"`
}

// RoomsAck acknowledges a join or leave with the connection's current rooms.
type RoomsAck struct {
	Rooms []string `json:"rooms"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}

type controlFrame struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

func encodeControl(event string, data any) []byte {
	b, err := json.Marshal(controlFrame{Event: event, Data: data})
	if err != nil {
		// Payloads are plain structs of strings.
		panic(err)
	}
	return b
}
