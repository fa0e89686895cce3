package transport_test

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"collab-hub/auth"
	"collab-hub/domain"
	"collab-hub/domain/envelope"
	"collab-hub/errors"
	"collab-hub/moderation"
	"collab-hub/observability"
	"collab-hub/runtime"
	"collab-hub/runtime/workers"
	"collab-hub/transport"

	"github.com/gorilla/websocket"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
)

const secret = "integration-test-secret-value"

type fixture struct {
	url    string
	issuer auth.TokenIssuer
	hub    *runtime.Hub
}

func newFixture(t *testing.T, origins ...string) fixture {
	t.Helper()
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	issuer := auth.NewTokenIssuer(secret, "collab-hub-test")
	moderator, err := moderation.NewModerator(nil, '*', log)
	require.NoError(t, err)
	monitor := observability.NewMonitoringManager(log)

	opts := runtime.DefaultOptions()
	opts.PingInterval = time.Second
	hub := runtime.NewHub(log, workers.NewSupervisor(log, 0), auth.NewJWTAuthenticator(issuer), moderator, monitor, opts)
	t.Cleanup(hub.Stop)

	server := httptest.NewServer(transport.NewServer(log, hub, monitor, transport.ServerOptions{
		WriteTimeout:   time.Second,
		PingInterval:   opts.PingInterval,
		MaxFrameBytes:  4096,
		AllowedOrigins: origins,
	}))
	t.Cleanup(server.Close)
	return fixture{url: server.URL, issuer: issuer, hub: hub}
}

func (f fixture) wsURL() string {
	return "ws" + strings.TrimPrefix(f.url, "http") + "/ws"
}

func (f fixture) token(t *testing.T, userID, username string) string {
	t.Helper()
	token, err := f.issuer.GenerateToken(domain.Identity{UserID: userID, Username: username}, time.Minute)
	require.NoError(t, err)
	return token
}

func (f fixture) dial(t *testing.T, token string) *websocket.Conn {
	t.Helper()
	header := http.Header{"Authorization": []string{"Bearer " + token}}
	ws, resp, err := websocket.DefaultDialer.Dial(f.wsURL(), header)
	require.NoError(t, err)
	_ = resp.Body.Close()
	t.Cleanup(func() { _ = ws.Close() })
	return ws
}

func send(t *testing.T, ws *websocket.Conn, p envelope.Payload) {
	t.Helper()
	frame, err := envelope.Encode(envelope.New(p))
	require.NoError(t, err)
	require.NoError(t, ws.WriteMessage(websocket.TextMessage, frame))
}

func receive(t *testing.T, ws *websocket.Conn) envelope.Envelope {
	t.Helper()
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, frame, err := ws.ReadMessage()
	require.NoError(t, err)
	env, err := envelope.Decode(frame)
	require.NoError(t, err)
	return env
}

func Test_Upgrade_Without_Credential_Is_Unauthorized(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)

	_, resp, err := websocket.DefaultDialer.Dial(f.wsURL(), nil)
	req.ErrorIs(err, websocket.ErrBadHandshake)
	req.Equal(http.StatusUnauthorized, resp.StatusCode)
	_ = resp.Body.Close()
	req.Zero(f.hub.Stats().Connections)
}

func Test_Invalid_Token_Is_Closed_With_Policy_Violation(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)

	ws, resp, err := websocket.DefaultDialer.Dial(f.wsURL()+"?token=not-a-jwt", nil)
	req.NoError(err)
	_ = resp.Body.Close()
	defer ws.Close()

	req.NoError(ws.SetReadDeadline(time.Now().Add(2 * time.Second)))
	_, _, err = ws.ReadMessage()
	req.True(websocket.IsCloseError(err, websocket.ClosePolicyViolation), "got %v", err)
	req.Zero(f.hub.Stats().Connections)
}

func Test_Two_Clients_Collaborate_In_A_Room(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)

	// Given A joined alone
	a := f.dial(t, f.token(t, "u1", "alice"))
	send(t, a, envelope.JoinEvent{EventID: "evt"})
	established := receive(t, a)
	req.Equal(envelope.TypeConnectionEstablished, established.Type)
	req.Len(established.Payload.(envelope.ConnectionEstablished).Roster, 1)

	// When B joins through the cookie credential
	header := http.Header{"Cookie": []string{auth.CookieName + "=" + f.token(t, "u2", "bob")}}
	b, resp, err := websocket.DefaultDialer.Dial(f.wsURL(), header)
	req.NoError(err)
	_ = resp.Body.Close()
	defer b.Close()
	send(t, b, envelope.JoinEvent{EventID: "evt"})

	// Then A sees B joining and B gets the two member roster
	joined := receive(t, a)
	req.Equal(envelope.TypeUserPresence, joined.Type)
	req.Equal(domain.PresenceJoined, joined.Payload.(envelope.UserPresence).Status)
	req.Equal("u2", joined.Payload.(envelope.UserPresence).UserID)
	req.Len(receive(t, b).Payload.(envelope.ConnectionEstablished).Roster, 2)

	// When A chats, both receive the same sequenced message
	send(t, a, envelope.ChatMessage{EventID: "evt", Content: "venue is booked"})
	atA, atB := receive(t, a), receive(t, b)
	req.Equal(envelope.TypeChatMessage, atB.Type)
	req.Equal(atA.Sequence, atB.Sequence)
	req.Greater(atB.Sequence, joined.Sequence)
	req.Equal("alice", atB.Sender.Username)
	req.NotZero(atB.Timestamp)

	// And the stats endpoint reports the room
	resp, err = http.Get(f.url + "/stats")
	req.NoError(err)
	defer resp.Body.Close()
	var stats transport.StatsResponse
	req.NoError(json.NewDecoder(resp.Body).Decode(&stats))
	req.Equal(1, stats.Hub.Rooms)
	req.Equal(2, stats.Hub.Members["evt"])
	req.EqualValues(2, stats.Monitoring.Connections)

	// When B disconnects, A sees it leave
	req.NoError(b.Close())
	left := receive(t, a)
	req.Equal(domain.PresenceLeft, left.Payload.(envelope.UserPresence).Status)
}

func Test_Malformed_Frame_Gets_Error_Envelope(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	ws := f.dial(t, f.token(t, "u1", "alice"))

	req.NoError(ws.WriteMessage(websocket.TextMessage, []byte(`{"type":"nope","payload":{}}`)))

	env := receive(t, ws)
	req.Equal(envelope.TypeError, env.Type)
	req.Equal(errors.CodeMalformedEnvelope, env.Payload.(envelope.Error).Code)
}

func Test_Oversized_Frame_Closes_Connection(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	ws := f.dial(t, f.token(t, "u1", "alice"))

	req.NoError(ws.WriteMessage(websocket.TextMessage, []byte(strings.Repeat("x", 8192))))

	req.NoError(ws.SetReadDeadline(time.Now().Add(2 * time.Second)))
	_, _, err := ws.ReadMessage()
	req.Error(err)
	req.Eventually(func() bool { return f.hub.Stats().Connections == 0 }, 2*time.Second, 10*time.Millisecond)
}

func Test_Origin_Is_Checked(t *testing.T) {
	req := require.New(t)
	f := newFixture(t, "https://planner.example")
	token := f.token(t, "u1", "alice")

	header := http.Header{"Origin": []string{"https://evil.example"}, "Authorization": []string{"Bearer " + token}}
	_, resp, err := websocket.DefaultDialer.Dial(f.wsURL(), header)
	req.ErrorIs(err, websocket.ErrBadHandshake)
	req.Equal(http.StatusForbidden, resp.StatusCode)
	_ = resp.Body.Close()

	header.Set("Origin", "https://planner.example")
	ws, resp, err := websocket.DefaultDialer.Dial(f.wsURL(), header)
	req.NoError(err)
	_ = resp.Body.Close()
	_ = ws.Close()
}

func Test_Up(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)

	resp, err := http.Get(f.url + "/up")
	req.NoError(err)
	defer resp.Body.Close()
	req.Equal(http.StatusOK, resp.StatusCode)
}

func Test_CloseCode(t *testing.T) {
	req := require.New(t)
	req.Equal(websocket.CloseGoingAway, transport.CloseCode(errors.ErrServerShutdown))
	req.Equal(websocket.ClosePolicyViolation, transport.CloseCode(errors.ErrAuthRequired))
	req.Equal(websocket.CloseTryAgainLater, transport.CloseCode(errors.ErrBackpressureExceeded))
	req.Equal(websocket.CloseInvalidFramePayloadData, transport.CloseCode(errors.ErrMalformedEnvelope))
	req.Equal(websocket.CloseNormalClosure, transport.CloseCode(nil))
}
