package envelope

import (
	"encoding/json"

	"collab-hub/domain"
)

// Payload is the closed set of message bodies, one variant per Type.
type Payload interface {
	Type() Type
}

// RoomScoped payloads name the event room they target.
type RoomScoped interface {
	Payload
	Room() string
}

type JoinEvent struct {
	EventID  string `json:"eventId" validate:"required"`
	UserID   string `json:"userId,omitempty"`
	Username string `json:"username,omitempty"`
}

type LeaveEvent struct {
	EventID string `json:"eventId" validate:"required"`
	UserID  string `json:"userId,omitempty"`
}

// EventUpdate carries event fields whose shape belongs to the datastore;
// the hub relays them untouched.
type EventUpdate struct {
	EventID string          `json:"eventId" validate:"required"`
	Event   json.RawMessage `json:"event,omitempty"`
}

type TaskCreate struct {
	EventID string          `json:"eventId" validate:"required"`
	Task    json.RawMessage `json:"task,omitempty"`
}

type TaskUpdate struct {
	EventID string          `json:"eventId" validate:"required"`
	Task    json.RawMessage `json:"task,omitempty"`
}

type TaskDelete struct {
	EventID string          `json:"eventId" validate:"required"`
	Task    json.RawMessage `json:"task,omitempty"`
}

type GuestUpdate struct {
	EventID string          `json:"eventId" validate:"required"`
	Guest   json.RawMessage `json:"guest,omitempty"`
}

type ChatMessage struct {
	EventID string `json:"eventId" validate:"required"`
	Content string `json:"content" validate:"required"`
}

type TypingIndicator struct {
	EventID  string `json:"eventId" validate:"required"`
	IsTyping bool   `json:"isTyping"`
}

type UserPresence struct {
	EventID  string                `json:"eventId" validate:"required"`
	UserID   string                `json:"userId" validate:"required"`
	Username string                `json:"username,omitempty"`
	Status   domain.PresenceStatus `json:"status" validate:"required,oneof=joined left active inactive"`
}

type Error struct {
	Message string `json:"message" validate:"required"`
	Code    string `json:"code,omitempty"`
}

// ConnectionEstablished is unicast to a joiner with the roster it joined into.
type ConnectionEstablished struct {
	EventID        string            `json:"eventId,omitempty"`
	ConnectionID   string            `json:"connectionId"`
	Roster         []domain.Identity `json:"roster"`
	LatestSequence uint64            `json:"latestSequence"`
}

func (JoinEvent) Type() Type             { return TypeJoinEvent }
func (LeaveEvent) Type() Type            { return TypeLeaveEvent }
func (EventUpdate) Type() Type           { return TypeEventUpdate }
func (TaskCreate) Type() Type            { return TypeTaskCreate }
func (TaskUpdate) Type() Type            { return TypeTaskUpdate }
func (TaskDelete) Type() Type            { return TypeTaskDelete }
func (GuestUpdate) Type() Type           { return TypeGuestUpdate }
func (ChatMessage) Type() Type           { return TypeChatMessage }
func (TypingIndicator) Type() Type       { return TypeTypingIndicator }
func (UserPresence) Type() Type          { return TypeUserPresence }
func (Error) Type() Type                 { return TypeError }
func (ConnectionEstablished) Type() Type { return TypeConnectionEstablished }

func (p JoinEvent) Room() string       { return p.EventID }
func (p LeaveEvent) Room() string      { return p.EventID }
func (p EventUpdate) Room() string     { return p.EventID }
func (p TaskCreate) Room() string      { return p.EventID }
func (p TaskUpdate) Room() string      { return p.EventID }
func (p TaskDelete) Room() string      { return p.EventID }
func (p GuestUpdate) Room() string     { return p.EventID }
func (p ChatMessage) Room() string     { return p.EventID }
func (p TypingIndicator) Room() string { return p.EventID }
func (p UserPresence) Room() string    { return p.EventID }
