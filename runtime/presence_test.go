package runtime

import (
	"testing"
	"time"

	"collab-hub/domain"
	"collab-hub/domain/envelope"
	"collab-hub/errors"

	"github.com/stretchr/testify/require"
)

func typingOf(t *testing.T, env envelope.Envelope) bool {
	t.Helper()
	require.Equal(t, envelope.TypeTypingIndicator, env.Type)
	return env.Payload.(envelope.TypingIndicator).IsTyping
}

func TestPresence_TypingExpiresOnce(t *testing.T) {
	req := require.New(t)
	opts := testOptions()
	opts.TypingTimeout = 50 * time.Millisecond
	h := newTestHub(t, opts)
	a := connect(t, h, "a:alice")
	b := connect(t, h, "b:bob")
	join(t, h, a, "evt1")
	join(t, h, b, "evt1")
	next(t, a)
	next(t, a)
	next(t, b)

	// When alice starts typing then goes quiet
	req.NoError(h.Presence().SetTyping("evt1", a, true))

	// Then bob sees exactly one true followed by exactly one false
	req.True(typingOf(t, next(t, b)))
	req.True(h.Presence().IsTyping("evt1", "a"))
	req.False(typingOf(t, next(t, b)))
	silent(t, b, 3*opts.TypingTimeout)
	req.False(h.Presence().IsTyping("evt1", "a"))

	// And alice never hears her own indicator
	silent(t, a, 10*time.Millisecond)
}

func TestPresence_RepeatedTypingIsSuppressed(t *testing.T) {
	req := require.New(t)
	opts := testOptions()
	opts.TypingTimeout = time.Hour
	h := newTestHub(t, opts)
	a := connect(t, h, "a:alice")
	b := connect(t, h, "b:bob")
	join(t, h, a, "evt1")
	join(t, h, b, "evt1")
	next(t, b)

	// When alice reports typing twice
	req.NoError(h.Presence().SetTyping("evt1", a, true))
	req.NoError(h.Presence().SetTyping("evt1", a, true))

	// Then bob got one broadcast
	req.True(typingOf(t, next(t, b)))
	silent(t, b, 50*time.Millisecond)

	// When alice stops explicitly, twice
	req.NoError(h.Presence().SetTyping("evt1", a, false))
	req.NoError(h.Presence().SetTyping("evt1", a, false))

	// Then bob got one false
	req.False(typingOf(t, next(t, b)))
	silent(t, b, 50*time.Millisecond)
}

func TestPresence_TypingRearmsOnRepeat(t *testing.T) {
	req := require.New(t)
	opts := testOptions()
	opts.TypingTimeout = 80 * time.Millisecond
	h := newTestHub(t, opts)
	a := connect(t, h, "a:alice")
	b := connect(t, h, "b:bob")
	join(t, h, a, "evt1")
	join(t, h, b, "evt1")
	next(t, b)

	req.NoError(h.Presence().SetTyping("evt1", a, true))
	req.True(typingOf(t, next(t, b)))

	// When alice keeps typing before the window closes
	time.Sleep(50 * time.Millisecond)
	req.NoError(h.Presence().SetTyping("evt1", a, true))
	time.Sleep(50 * time.Millisecond)

	// Then she is still typing past the first deadline
	req.True(h.Presence().IsTyping("evt1", "a"))
	req.False(typingOf(t, next(t, b)))
}

func TestPresence_TypingRequiresMembership(t *testing.T) {
	h := newTestHub(t, testOptions())
	a := connect(t, h, "a:alice")
	b := connect(t, h, "b:bob")
	join(t, h, a, "evt1")

	require.ErrorIs(t, h.Presence().SetTyping("evt1", b, true), errors.ErrInvalidState)
	require.ErrorIs(t, h.Presence().SetTyping("evt2", a, true), errors.ErrInvalidState)
}

func TestPresence_StateMachine(t *testing.T) {
	req := require.New(t)
	opts := testOptions()
	opts.IdleTimeout = 40 * time.Millisecond
	h := newTestHub(t, opts)
	a := connect(t, h, "a:alice")

	// Given alice just joined
	join(t, h, a, "evt1")
	req.Equal(domain.PresenceJoined, h.Presence().Status("evt1", "a"))

	// When she sends traffic she becomes active
	h.Presence().Activity(a)
	req.Equal(domain.PresenceActive, h.Presence().Status("evt1", "a"))

	// When she stays quiet past the idle window she becomes inactive
	req.Eventually(func() bool {
		return h.Presence().Status("evt1", "a") == domain.PresenceInactive
	}, time.Second, 10*time.Millisecond)

	// When she is back, she is active again
	h.Presence().Activity(a)
	req.Equal(domain.PresenceActive, h.Presence().Status("evt1", "a"))

	// When she leaves she is gone
	req.NoError(h.Registry().Leave("evt1", a))
	req.Equal(domain.PresenceLeft, h.Presence().Status("evt1", "a"))
}

func TestPresence_HeartbeatKeepsStatus(t *testing.T) {
	req := require.New(t)
	opts := testOptions()
	opts.IdleTimeout = 60 * time.Millisecond
	h := newTestHub(t, opts)
	a := connect(t, h, "a:alice")
	b := connect(t, h, "b:bob")
	join(t, h, a, "evt1")
	join(t, h, b, "evt1")
	next(t, b)

	// When alice only heartbeats
	for range 4 {
		time.Sleep(30 * time.Millisecond)
		req.NoError(h.Heartbeat(a.ID))
	}

	// Then her status never moved and nobody was told anything
	req.Equal(domain.PresenceJoined, h.Presence().Status("evt1", "a"))
	silent(t, b, 20*time.Millisecond)
}

func TestPresence_DeadTimeoutClosesConnection(t *testing.T) {
	req := require.New(t)
	opts := testOptions()
	opts.IdleTimeout = 20 * time.Millisecond
	opts.DeadTimeout = 60 * time.Millisecond
	h := newTestHub(t, opts)
	a := connect(t, h, "a:alice")
	b := connect(t, h, "b:bob")
	join(t, h, a, "evt1")
	join(t, h, b, "evt1")
	next(t, a)
	next(t, a)

	// Given bob keeps his heartbeat while alice goes silent
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		ticker := time.NewTicker(10 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				_ = h.Heartbeat(b.ID)
			}
		}
	}()

	// Then alice is closed for missing heartbeats
	select {
	case <-a.Done():
	case <-time.After(time.Second):
		req.FailNow("alice should have been closed")
	}
	req.ErrorIs(a.Reason(), errors.ErrHeartbeatTimeout)
	req.Equal(domain.Closed, a.State())

	// And bob stays, having seen alice leave
	req.True(b.IsOpen())
	req.Equal(1, h.Registry().Lookup("evt1").Members())
}
