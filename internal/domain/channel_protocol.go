package domain

import "encoding/json"

// Message types of the json.v1 push-channel subprotocol.
const (
	MessageTypeReady = "ready"
	MessageTypeEvent = "event"
	MessageTypeError = "error"
	MessageTypeJoin  = "join"
	MessageTypeLeave = "leave"
)

// EventTransactionUpdate is the only logical event the core reacts to. It is
// an invalidation signal, not a source of truth for field values.
const EventTransactionUpdate = "transaction_update"

// BaseMessage is the generic frame of the json.v1 subprotocol. Payload stays
// raw until the type is known.
type BaseMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// EventPayload is the payload of an "event" frame: a named logical event and
// its raw data.
type EventPayload struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// TransactionUpdateData is the data of a transaction_update event.
type TransactionUpdateData struct {
	TransactionID string `json:"transactionId"`
}

// RoomPayload is the payload of outbound "join" and "leave" frames. Room
// membership is fire-and-forget: no acknowledgement is expected.
type RoomPayload struct {
	UserID string `json:"user_id"`
}

// NewJoinMessage builds an outbound join frame for the given user room.
func NewJoinMessage(userID string) BaseMessage {
	return newRoomMessage(MessageTypeJoin, userID)
}

// NewLeaveMessage builds an outbound leave frame for the given user room.
func NewLeaveMessage(userID string) BaseMessage {
	return newRoomMessage(MessageTypeLeave, userID)
}

func newRoomMessage(msgType, userID string) BaseMessage {
	payload, _ := json.Marshal(RoomPayload{UserID: userID})
	return BaseMessage{Type: msgType, Payload: payload}
}
