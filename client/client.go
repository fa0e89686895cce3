package main

import (
	"bufio"
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"collab-hub/domain/envelope"

	"github.com/Netflix/go-env"
	"github.com/gorilla/websocket"
	"github.com/mama165/sdk-go/logs"
)

// Exit codes for the client application.
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

// Config defines the client-side environment variables.
type Config struct {
	HubURL   string `env:"HUB_WS_URL,default=ws://localhost:8080/ws"`
	Token    string `env:"HUB_TOKEN,required=true"`
	EventID  string `env:"EVENT_ID,required=true"`
	LogLevel string `env:"LOG_LEVEL,default=INFO"`
}

func main() {
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Client error: %v\n", err)
	}
	os.Exit(code)
}

// run joins one event room, prints every envelope received and sends each
// stdin line as a chat message.
func run() (int, error) {
	var config Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}
	log := logs.GetLoggerFromString(config.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	header := http.Header{"Authorization": []string{"Bearer " + config.Token}}
	ws, _, err := websocket.DefaultDialer.DialContext(ctx, config.HubURL, header)
	if err != nil {
		return exitRuntime, fmt.Errorf("could not connect to hub at %s: %w", config.HubURL, err)
	}
	out := &writer{ws: ws}
	defer func() {
		log.Info("Closing connection...")
		out.close()
	}()

	if err := out.send(envelope.JoinEvent{EventID: config.EventID}); err != nil {
		return exitRuntime, err
	}
	log.Info(fmt.Sprintf(">>> Connected to %s! Joined event %s (Ctrl+C to quit)...", config.HubURL, config.EventID))

	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}
			if err := out.send(envelope.ChatMessage{EventID: config.EventID, Content: line}); err != nil {
				log.Warn("Send failed", "error", err)
				return
			}
		}
	}()

	received := make(chan error, 1)
	go func() {
		for {
			_, frame, err := ws.ReadMessage()
			if err != nil {
				received <- err
				return
			}
			env, err := envelope.Decode(frame)
			if err != nil {
				log.Warn("Undecodable frame", "error", err)
				continue
			}
			log.Info(describe(env))
		}
	}()

	select {
	case <-ctx.Done():
		log.Info("Stopping client...")
		return exitOK, nil
	case err := <-received:
		if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
			return exitOK, nil
		}
		return exitRuntime, fmt.Errorf("stream error: %w", err)
	}
}

// writer serializes writes; gorilla allows a single concurrent writer.
type writer struct {
	mu sync.Mutex
	ws *websocket.Conn
}

func (w *writer) send(p envelope.Payload) error {
	frame, err := envelope.Encode(envelope.New(p))
	if err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.ws.WriteMessage(websocket.TextMessage, frame)
}

func (w *writer) close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	_ = w.ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	_ = w.ws.Close()
}

func describe(env envelope.Envelope) string {
	at := time.UnixMilli(env.Timestamp).Format(time.TimeOnly)
	sender := "hub"
	if env.Sender != nil {
		sender = env.Sender.Username
	}
	switch p := env.Payload.(type) {
	case envelope.ChatMessage:
		return fmt.Sprintf("[%s] #%d %s: %s", at, env.Sequence, sender, p.Content)
	case envelope.UserPresence:
		return fmt.Sprintf("[%s] #%d %s is %s", at, env.Sequence, p.Username, p.Status)
	case envelope.TypingIndicator:
		return fmt.Sprintf("[%s] %s typing=%t", at, sender, p.IsTyping)
	case envelope.ConnectionEstablished:
		return fmt.Sprintf("connected as %s, %d member(s) online, latest #%d", p.ConnectionID, len(p.Roster), p.LatestSequence)
	case envelope.Error:
		return fmt.Sprintf("error %s: %s", p.Code, p.Message)
	default:
		return fmt.Sprintf("[%s] #%d %s from %s", at, env.Sequence, env.Type, sender)
	}
}
