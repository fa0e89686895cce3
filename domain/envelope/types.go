// Package envelope defines the typed message wrapper exchanged between the hub
// and its clients, and the codec turning it into JSON text frames.
package envelope

import (
	"time"

	"collab-hub/domain"
)

type Type string

const (
	TypeJoinEvent             Type = "join_event"
	TypeLeaveEvent            Type = "leave_event"
	TypeEventUpdate           Type = "event_update"
	TypeTaskCreate            Type = "task_create"
	TypeTaskUpdate            Type = "task_update"
	TypeTaskDelete            Type = "task_delete"
	TypeGuestUpdate           Type = "guest_update"
	TypeChatMessage           Type = "chat_message"
	TypeUserPresence          Type = "user_presence"
	TypeTypingIndicator       Type = "typing_indicator"
	TypeError                 Type = "error"
	TypeConnectionEstablished Type = "connection_established"
)

// Types lists every discriminator the codec accepts.
var Types = []Type{
	TypeJoinEvent, TypeLeaveEvent, TypeEventUpdate,
	TypeTaskCreate, TypeTaskUpdate, TypeTaskDelete,
	TypeGuestUpdate, TypeChatMessage, TypeUserPresence,
	TypeTypingIndicator, TypeError, TypeConnectionEstablished,
}

func (t Type) Valid() bool {
	_, ok := decoders[t]
	return ok
}

// RequiresPayload is false only for connection_established, which a server
// may send bare right after the handshake.
func (t Type) RequiresPayload() bool {
	return t != TypeConnectionEstablished
}

// Policy tells the router who receives an accepted envelope.
type Policy int

const (
	// PolicyAll delivers to every member, sender included.
	PolicyAll Policy = iota
	// PolicyOthers delivers to every member but the triggering connection.
	PolicyOthers
	// PolicyOrigin delivers to the originating connection only.
	PolicyOrigin
)

func (t Type) Policy() Policy {
	switch t {
	case TypeJoinEvent, TypeLeaveEvent, TypeUserPresence, TypeTypingIndicator:
		return PolicyOthers
	case TypeError, TypeConnectionEstablished:
		return PolicyOrigin
	default:
		return PolicyAll
	}
}

// Envelope is one message on the wire. Sequence is zero until the
// envelope is accepted for broadcast in a room. Epoch identifies the room
// incarnation the sequence was drawn from and never goes on the wire.
type Envelope struct {
	Type      Type
	Payload   Payload
	Sender    *domain.Identity
	Timestamp int64
	Sequence  uint64
	Epoch     uint64
}

// New wraps a payload, deriving the discriminator from it.
func New(p Payload) Envelope {
	return Envelope{Type: p.Type(), Payload: p}
}

// From sets the sender identity.
func (e Envelope) From(sender domain.Identity) Envelope {
	e.Sender = &sender
	return e
}

// Stamp sets the server timestamp.
func (e Envelope) Stamp(at time.Time) Envelope {
	e.Timestamp = at.UnixMilli()
	return e
}

// EventID returns the room the payload targets, or "" for payloads that are
// not room-scoped.
func (e Envelope) EventID() string {
	if rs, ok := e.Payload.(RoomScoped); ok {
		return rs.Room()
	}
	return ""
}
