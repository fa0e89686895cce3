package envelope

import (
	"bytes"
	"encoding/json"
	"fmt"

	"collab-hub/domain"
	"collab-hub/errors"
)

type wireEnvelope struct {
	Type      Type             `json:"type"`
	Payload   json.RawMessage  `json:"payload,omitempty"`
	Sender    *domain.Identity `json:"sender,omitempty"`
	Timestamp int64            `json:"timestamp"`
	Sequence  uint64           `json:"sequence,omitempty"`
}

var decoders = map[Type]func(json.RawMessage) (Payload, error){
	TypeJoinEvent:             decodeAs[JoinEvent],
	TypeLeaveEvent:            decodeAs[LeaveEvent],
	TypeEventUpdate:           decodeAs[EventUpdate],
	TypeTaskCreate:            decodeAs[TaskCreate],
	TypeTaskUpdate:            decodeAs[TaskUpdate],
	TypeTaskDelete:            decodeAs[TaskDelete],
	TypeGuestUpdate:           decodeAs[GuestUpdate],
	TypeChatMessage:           decodeAs[ChatMessage],
	TypeUserPresence:          decodeAs[UserPresence],
	TypeTypingIndicator:       decodeAs[TypingIndicator],
	TypeError:                 decodeAs[Error],
	TypeConnectionEstablished: decodeAs[ConnectionEstablished],
}

func decodeAs[T Payload](raw json.RawMessage) (Payload, error) {
	var p T
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, err
	}
	return p, nil
}

// Encode renders the envelope as a JSON text frame.
func Encode(e Envelope) ([]byte, error) {
	if !e.Type.Valid() {
		return nil, fmt.Errorf("%w: unknown type %q", errors.ErrMalformedEnvelope, e.Type)
	}
	w := wireEnvelope{
		Type:      e.Type,
		Sender:    e.Sender,
		Timestamp: e.Timestamp,
		Sequence:  e.Sequence,
	}
	if e.Payload != nil {
		if e.Payload.Type() != e.Type {
			return nil, fmt.Errorf("%w: payload %q under type %q",
				errors.ErrMalformedEnvelope, e.Payload.Type(), e.Type)
		}
		raw, err := json.Marshal(e.Payload)
		if err != nil {
			return nil, fmt.Errorf("encode %s payload: %w", e.Type, err)
		}
		w.Payload = raw
	}
	return json.Marshal(w)
}

// Decode parses a frame. The discriminator must be one of Types and the
// payload must be present when the type requires one; field level checks
// are left to the router.
func Decode(data []byte) (Envelope, error) {
	var w wireEnvelope
	if err := json.Unmarshal(data, &w); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", errors.ErrMalformedEnvelope, err)
	}
	decode, ok := decoders[w.Type]
	if !ok {
		return Envelope{}, fmt.Errorf("%w: unknown type %q", errors.ErrMalformedEnvelope, w.Type)
	}

	e := Envelope{
		Type:      w.Type,
		Sender:    w.Sender,
		Timestamp: w.Timestamp,
		Sequence:  w.Sequence,
	}
	if absent(w.Payload) {
		if w.Type.RequiresPayload() {
			return Envelope{}, fmt.Errorf("%w: %s requires a payload", errors.ErrMalformedEnvelope, w.Type)
		}
		return e, nil
	}

	payload, err := decode(w.Payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("%w: %s payload: %v", errors.ErrMalformedEnvelope, w.Type, err)
	}
	e.Payload = payload
	return e, nil
}

func absent(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}
