package runtime

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"collab-hub/domain"
	"collab-hub/domain/envelope"
	"collab-hub/mocks"
	"collab-hub/moderation"
	"collab-hub/observability"
	"collab-hub/runtime/workers"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

const waitFrame = time.Second

// pipe is an in-memory Transport. Frames written by the hub land in out.
type pipe struct {
	in     chan []byte
	out    chan []byte
	closed chan struct{}
	stall  bool

	once   sync.Once
	mu     sync.Mutex
	reason error
}

func newPipe() *pipe {
	return &pipe{
		in:     make(chan []byte, 16),
		out:    make(chan []byte, 256),
		closed: make(chan struct{}),
	}
}

func (p *pipe) Read() ([]byte, error) {
	select {
	case frame := <-p.in:
		return frame, nil
	case <-p.closed:
		return nil, io.EOF
	}
}

func (p *pipe) Write(frame []byte) error {
	if p.stall {
		<-p.closed
		return io.ErrClosedPipe
	}
	select {
	case p.out <- frame:
		return nil
	case <-p.closed:
		return io.ErrClosedPipe
	}
}

func (p *pipe) Ping() error { return nil }

func (p *pipe) Close(reason error) error {
	p.once.Do(func() {
		p.mu.Lock()
		p.reason = reason
		p.mu.Unlock()
		close(p.closed)
	})
	return nil
}

func (p *pipe) RemoteAddr() string { return "pipe" }

func (p *pipe) send(t *testing.T, env envelope.Envelope) {
	t.Helper()
	frame, err := envelope.Encode(env)
	require.NoError(t, err)
	p.in <- frame
}

func (p *pipe) next(t *testing.T) envelope.Envelope {
	t.Helper()
	select {
	case frame := <-p.out:
		env, err := envelope.Decode(frame)
		require.NoError(t, err)
		return env
	case <-time.After(waitFrame):
		require.FailNow(t, "no frame written in time")
		return envelope.Envelope{}
	}
}

func testOptions() Options {
	opts := DefaultOptions()
	opts.OutboundQueueSize = 32
	opts.RelayBufferSize = 32
	opts.PingInterval = 0
	return opts
}

// credential format is "userId:username"
func resolve(_ context.Context, credential string) (domain.Identity, error) {
	userID, username, ok := strings.Cut(credential, ":")
	if !ok {
		return domain.Identity{}, fmt.Errorf("unknown credential %q", credential)
	}
	return domain.Identity{UserID: userID, Username: username}, nil
}

func newTestHub(t *testing.T, opts Options) *Hub {
	t.Helper()
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	ctrl := gomock.NewController(t)
	authenticator := mocks.NewMockAuthenticator(ctrl)
	authenticator.EXPECT().Resolve(gomock.Any(), gomock.Any()).DoAndReturn(resolve).AnyTimes()

	moderator, err := moderation.NewModerator([]string{"badger"}, '*', log)
	require.NoError(t, err)

	h := NewHub(log, workers.NewSupervisor(log, 0), authenticator, moderator,
		observability.NewMonitoringManager(log), opts)
	t.Cleanup(h.Stop)
	return h
}

// connect opens a connection without pumps; frames stay in its outbound queue.
func connect(t *testing.T, h *Hub, credential string) *Connection {
	t.Helper()
	c, err := h.Accept(context.Background(), newPipe(), credential)
	require.NoError(t, err)
	return c
}

// serve opens a connection with running pumps over a pipe.
func serve(t *testing.T, h *Hub, credential string) (*Connection, *pipe) {
	t.Helper()
	p := newPipe()
	c, err := h.Accept(context.Background(), p, credential)
	require.NoError(t, err)
	go h.Serve(context.Background(), c)
	return c, p
}

func next(t *testing.T, c *Connection) envelope.Envelope {
	t.Helper()
	select {
	case frame := <-c.outbound:
		env, err := envelope.Decode(frame)
		require.NoError(t, err)
		return env
	case <-time.After(waitFrame):
		require.FailNow(t, "no frame queued in time", "connection %s", c.ID)
		return envelope.Envelope{}
	}
}

func silent(t *testing.T, c *Connection, within time.Duration) {
	t.Helper()
	select {
	case frame := <-c.outbound:
		require.FailNow(t, "unexpected frame", "%s", frame)
	case <-time.After(within):
	}
}

func join(t *testing.T, h *Hub, c *Connection, eventID string) {
	t.Helper()
	require.NoError(t, h.Router().Dispatch(envelope.New(envelope.JoinEvent{EventID: eventID}), c))
}

func chatEnv(eventID, content string) envelope.Envelope {
	return envelope.New(envelope.ChatMessage{EventID: eventID, Content: content})
}
