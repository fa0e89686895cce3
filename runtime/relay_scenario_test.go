package runtime

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"collab-hub/domain/envelope"
	"collab-hub/repositories"
	"collab-hub/sink"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/require"
)

func TestHub_RelaysRoomContentToBadger(t *testing.T) {
	req := require.New(t)
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).
		WithLoggingLevel(badger.ERROR).
		WithValueLogFileSize(16 << 20))
	req.NoError(err)
	t.Cleanup(func() { _ = db.Close() })

	// Given a started hub relaying to a Badger sink
	h := newTestHub(t, testOptions())
	repository := repositories.NewEnvelopeRepository(db, h.log)
	h.AddSinks(sink.NewDiskSink(repository, h.log))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = h.Start(ctx) }()

	_, pa := serve(t, h, "a:alice")
	_, pb := serve(t, h, "b:bob")
	pa.send(t, envelope.New(envelope.JoinEvent{EventID: "evt1"}))
	pa.next(t)
	pb.send(t, envelope.New(envelope.JoinEvent{EventID: "evt1"}))
	pa.next(t)
	pb.next(t)

	// When both publish content and a typing hint
	pa.send(t, chatEnv("evt1", "hi"))
	pb.send(t, envelope.New(envelope.TaskCreate{EventID: "evt1", Task: json.RawMessage(`{"title":"Cake"}`)}))
	pa.send(t, envelope.New(envelope.TypingIndicator{EventID: "evt1", IsTyping: true}))
	var delivered []envelope.Envelope
	for len(delivered) < 2 {
		env := pb.next(t)
		if env.Type.Policy() == envelope.PolicyAll {
			delivered = append(delivered, env)
		}
	}

	// Then only the content reaches the datastore, in broadcast order
	var stored []repositories.StoredEnvelope
	req.Eventually(func() bool {
		stored, err = repository.List("evt1", repositories.Cursor{}, 0)
		return err == nil && len(stored) == 2
	}, 2*time.Second, 10*time.Millisecond)
	for i, env := range delivered {
		req.Equal(env.Sequence, stored[i].Sequence)
		req.Equal(env.Type, stored[i].Type)
		req.Equal(env.Sender.UserID, stored[i].SenderID)
	}

	latest, err := repository.Latest("evt1")
	req.NoError(err)
	req.Equal(delivered[1].Sequence, latest.Sequence)
	req.Equal(stored[0].Epoch, latest.Epoch)
}

func TestHub_RecreatedRoomAppendsToBadgerHistory(t *testing.T) {
	req := require.New(t)
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).
		WithLoggingLevel(badger.ERROR).
		WithValueLogFileSize(16 << 20))
	req.NoError(err)
	t.Cleanup(func() { _ = db.Close() })

	h := newTestHub(t, testOptions())
	repository := repositories.NewEnvelopeRepository(db, h.log)
	h.AddSinks(sink.NewDiskSink(repository, h.log))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = h.Start(ctx) }()

	// Given alice posts in evt1 then disconnects, destroying the room
	a, pa := serve(t, h, "a:alice")
	pa.send(t, envelope.New(envelope.JoinEvent{EventID: "evt1"}))
	pa.next(t)
	pa.send(t, chatEnv("evt1", "Venue booked for Saturday"))
	first := pa.next(t)
	req.Eventually(func() bool {
		stored, err := repository.List("evt1", repositories.Cursor{}, 0)
		return err == nil && len(stored) == 1
	}, 2*time.Second, 10*time.Millisecond)
	h.Close(a.ID, nil)
	req.Eventually(func() bool { return h.Registry().Lookup("evt1") == nil }, time.Second, 5*time.Millisecond)

	// When bob recreates the room and posts with the same sequence
	_, pb := serve(t, h, "b:bob")
	pb.send(t, envelope.New(envelope.JoinEvent{EventID: "evt1"}))
	pb.next(t)
	pb.send(t, chatEnv("evt1", "Caterer confirmed"))
	second := pb.next(t)
	req.Equal(first.Sequence, second.Sequence)

	// Then both sessions are kept, the earlier one first
	var stored []repositories.StoredEnvelope
	req.Eventually(func() bool {
		stored, err = repository.List("evt1", repositories.Cursor{}, 0)
		return err == nil && len(stored) == 2
	}, 2*time.Second, 10*time.Millisecond)
	req.Equal("a", stored[0].SenderID)
	req.Equal("b", stored[1].SenderID)
	req.Less(stored[0].Epoch, stored[1].Epoch)
	req.JSONEq(`{"eventId":"evt1","content":"Caterer confirmed"}`, string(stored[1].Payload))
}
