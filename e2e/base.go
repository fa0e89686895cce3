package e2e

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"testing"
	"time"

	"collab-hub/auth"
	"collab-hub/domain"
	"collab-hub/domain/envelope"

	"github.com/gookit/color"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/suite"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
)

// BaseHubSuite runs against a live hub. It skips when HUB_URL is unset.
type BaseHubSuite struct {
	suite.Suite
	Config Config
}

func (s *BaseHubSuite) SetupSuite() {
	var err error
	s.Config, err = LoadConfig()
	s.Require().NoError(err)
	if s.Config.HubURL == "" || s.Config.JwtSecret == "" {
		s.T().Skip("HUB_URL and JWT_SECRET are required for end-to-end tests")
	}
}

func (s *BaseHubSuite) step(t *testing.T, name string) {
	header := fmt.Sprintf("  ====== %s ======", name)
	if s.Config.Colours {
		header = color.New(color.BgBlack, color.FgGreen).Render(header)
	}
	t.Log(header)
}

// GrpcConn opens a client to the health server, logging every unary call.
func (s *BaseHubSuite) GrpcConn(t *testing.T, name string) *grpc.ClientConn {
	s.step(t, name)

	marshaler := protojson.MarshalOptions{
		UseProtoNames:   true,
		Multiline:       true,
		EmitUnpopulated: true,
	}

	conn, err := grpc.NewClient(s.Config.GrpcAddr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithUnaryInterceptor(func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
			start := time.Now()
			err := invoker(ctx, method, req, reply, cc, opts...)

			logBuilder := strings.Builder{}
			fmt.Fprintf(&logBuilder, "GRPC %s [%s] in %v", method, status.Code(err), time.Since(start))
			if s.Config.DebugJSON {
				fmt.Fprintln(&logBuilder, "\nREQUEST:")
				fmt.Fprintln(&logBuilder, marshaler.Format(req.(proto.Message)))
				if err == nil {
					fmt.Fprintln(&logBuilder, "RESPONSE:")
					fmt.Fprintln(&logBuilder, marshaler.Format(reply.(proto.Message)))
				}
			}
			t.Log(logBuilder.String())
			return err
		}),
	)
	s.Require().NoError(err, "Failed to connect to gRPC server at "+s.Config.GrpcAddr)
	return conn
}

// Client is a websocket session of one user.
type Client struct {
	s  *BaseHubSuite
	t  *testing.T
	ws *websocket.Conn
}

func (s *BaseHubSuite) Dial(t *testing.T, userID, username string) *Client {
	s.step(t, "connect "+username)
	issuer := auth.NewTokenIssuer(s.Config.JwtSecret, s.Config.JwtIssuer)
	token, err := issuer.GenerateToken(domain.Identity{UserID: userID, Username: username}, time.Minute)
	s.Require().NoError(err)

	url := "ws" + strings.TrimPrefix(s.Config.HubURL, "http") + "/ws"
	ws, resp, err := websocket.DefaultDialer.Dial(url, http.Header{"Authorization": []string{"Bearer " + token}})
	s.Require().NoError(err)
	_ = resp.Body.Close()
	t.Cleanup(func() { _ = ws.Close() })
	return &Client{s: s, t: t, ws: ws}
}

func (c *Client) Send(p envelope.Payload) {
	frame, err := envelope.Encode(envelope.New(p))
	c.s.Require().NoError(err)
	if c.s.Config.DebugJSON {
		c.t.Logf("SEND %s", frame)
	}
	c.s.Require().NoError(c.ws.WriteMessage(websocket.TextMessage, frame))
}

// Next returns the next envelope of the wanted type, skipping others.
func (c *Client) Next(want envelope.Type) envelope.Envelope {
	deadline := time.Now().Add(5 * time.Second)
	for {
		c.s.Require().NoError(c.ws.SetReadDeadline(deadline))
		_, frame, err := c.ws.ReadMessage()
		c.s.Require().NoError(err, "waiting for %s", want)
		if c.s.Config.DebugJSON {
			c.t.Logf("RECV %s", frame)
		}
		env, err := envelope.Decode(frame)
		c.s.Require().NoError(err)
		if env.Type == want {
			return env
		}
	}
}
