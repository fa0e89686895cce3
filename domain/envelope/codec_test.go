package envelope

import (
	"encoding/json"
	"testing"

	"collab-hub/domain"
	"collab-hub/errors"

	"github.com/stretchr/testify/require"
)

func TestDecode_ChatMessage(t *testing.T) {
	req := require.New(t)

	// Given a chat frame as a browser would send it
	frame := []byte(`{"type":"chat_message","payload":{"eventId":"evt1","content":"hi"},"timestamp":1700000000000}`)

	// When decoding
	env, err := Decode(frame)

	// Then the payload is the typed variant
	req.NoError(err)
	req.Equal(TypeChatMessage, env.Type)
	req.Equal(ChatMessage{EventID: "evt1", Content: "hi"}, env.Payload)
	req.Equal("evt1", env.EventID())
	req.Nil(env.Sender)
	req.Zero(env.Sequence)
}

func TestDecode_UnknownType(t *testing.T) {
	req := require.New(t)

	_, err := Decode([]byte(`{"type":"file_upload","payload":{"eventId":"evt1"}}`))

	req.ErrorIs(err, errors.ErrMalformedEnvelope)
}

func TestDecode_MissingPayload(t *testing.T) {
	req := require.New(t)

	for _, frame := range []string{
		`{"type":"task_create"}`,
		`{"type":"task_create","payload":null}`,
	} {
		_, err := Decode([]byte(frame))
		req.ErrorIs(err, errors.ErrMalformedEnvelope, frame)
	}
}

func TestDecode_ConnectionEstablishedWithoutPayload(t *testing.T) {
	req := require.New(t)

	env, err := Decode([]byte(`{"type":"connection_established","timestamp":1}`))

	req.NoError(err)
	req.Nil(env.Payload)
	req.Empty(env.EventID())
}

func TestDecode_NotJSON(t *testing.T) {
	req := require.New(t)

	_, err := Decode([]byte(`hello`))

	req.ErrorIs(err, errors.ErrMalformedEnvelope)
}

func TestDecode_PayloadOfWrongShape(t *testing.T) {
	req := require.New(t)

	// Given isTyping sent as a string
	_, err := Decode([]byte(`{"type":"typing_indicator","payload":{"eventId":"evt1","isTyping":"yes"}}`))

	req.ErrorIs(err, errors.ErrMalformedEnvelope)
}

func TestDecode_MissingEventIDIsLeftToRouter(t *testing.T) {
	req := require.New(t)

	env, err := Decode([]byte(`{"type":"task_update","payload":{"task":{"id":7}}}`))

	req.NoError(err)
	req.Empty(env.EventID())
}

func TestDecode_OpaqueBlobPassesThrough(t *testing.T) {
	req := require.New(t)

	// Given a task shape the hub knows nothing about
	frame := []byte(`{"type":"task_update","payload":{"eventId":"evt1","task":{"id":7,"tags":["a","b"],"done":true}}}`)

	env, err := Decode(frame)
	req.NoError(err)

	// When re-encoding
	out, err := Encode(env)
	req.NoError(err)

	// Then the blob is carried verbatim
	var wire struct {
		Payload struct {
			Task json.RawMessage `json:"task"`
		} `json:"payload"`
	}
	req.NoError(json.Unmarshal(out, &wire))
	req.JSONEq(`{"id":7,"tags":["a","b"],"done":true}`, string(wire.Payload.Task))
}

func TestEncode_SequencedBroadcast(t *testing.T) {
	req := require.New(t)

	// Given an accepted chat message
	env := New(ChatMessage{EventID: "evt1", Content: "hi"}).
		From(domain.Identity{UserID: "u1", Username: "alice"})
	env.Sequence = 4
	env.Timestamp = 1700000000000

	out, err := Encode(env)
	req.NoError(err)

	req.JSONEq(`{
		"type":"chat_message",
		"payload":{"eventId":"evt1","content":"hi"},
		"sender":{"userId":"u1","username":"alice"},
		"timestamp":1700000000000,
		"sequence":4
	}`, string(out))
}

func TestEncode_MismatchedPayload(t *testing.T) {
	req := require.New(t)

	_, err := Encode(Envelope{Type: TypeChatMessage, Payload: TaskDelete{EventID: "evt1"}})

	req.ErrorIs(err, errors.ErrMalformedEnvelope)
}

func TestEncode_UnknownType(t *testing.T) {
	req := require.New(t)

	_, err := Encode(Envelope{Type: "nope"})

	req.ErrorIs(err, errors.ErrMalformedEnvelope)
}

func TestEveryTypeHasDecoder(t *testing.T) {
	req := require.New(t)

	req.Len(Types, 12)
	for _, typ := range Types {
		req.True(typ.Valid(), typ)
	}
}

func TestPolicy(t *testing.T) {
	req := require.New(t)

	req.Equal(PolicyAll, TypeChatMessage.Policy())
	req.Equal(PolicyAll, TypeGuestUpdate.Policy())
	req.Equal(PolicyOthers, TypeUserPresence.Policy())
	req.Equal(PolicyOthers, TypeTypingIndicator.Policy())
	req.Equal(PolicyOrigin, TypeError.Policy())
}
