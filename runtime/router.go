package runtime

import (
	"fmt"
	"log/slog"

	"collab-hub/domain/envelope"
	"collab-hub/errors"
	"collab-hub/moderation"
	"collab-hub/observability"

	"github.com/go-playground/validator/v10"
)

// Router validates inbound envelopes and applies them to the room they name.
type Router struct {
	log       *slog.Logger
	registry  *Registry
	presence  *Presence
	moderator *moderation.Moderator
	monitor   *observability.MonitoringManager
	validate  *validator.Validate
	relay     chan<- envelope.Envelope
}

func NewRouter(log *slog.Logger, registry *Registry, presence *Presence,
	moderator *moderation.Moderator, monitor *observability.MonitoringManager,
	relay chan<- envelope.Envelope) *Router {
	return &Router{
		log:       log,
		registry:  registry,
		presence:  presence,
		moderator: moderator,
		monitor:   monitor,
		validate:  validator.New(),
		relay:     relay,
	}
}

// HandleFrame decodes and dispatches one inbound frame. Any rejection is
// reported to the sender as an error envelope; only malformed input is
// returned so the caller can enforce its decode error budget.
func (r *Router) HandleFrame(c *Connection, frame []byte) error {
	env, err := envelope.Decode(frame)
	if err == nil {
		err = r.Dispatch(env, c)
	}
	if err == nil {
		return nil
	}

	r.reject(c, err)
	if errors.Is(err, errors.ErrMalformedEnvelope) {
		return err
	}
	return nil
}

// Dispatch applies env on behalf of sender.
func (r *Router) Dispatch(env envelope.Envelope, sender *Connection) error {
	if !sender.IsOpen() {
		return errors.ErrInvalidState
	}
	if env.Type == envelope.TypeConnectionEstablished {
		return fmt.Errorf("%w: %s is sent by the server only", errors.ErrInvalidState, env.Type)
	}
	if env.Payload == nil {
		return fmt.Errorf("%w: %s requires a payload", errors.ErrMalformedEnvelope, env.Type)
	}
	if err := r.validate.Struct(env.Payload); err != nil {
		return fmt.Errorf("%w: %v", errors.ErrMalformedEnvelope, err)
	}

	switch p := env.Payload.(type) {
	case envelope.JoinEvent:
		if err := actsForSelf(p.UserID, sender); err != nil {
			return err
		}
		_, err := r.registry.Join(p.EventID, sender)
		return err

	case envelope.LeaveEvent:
		if err := actsForSelf(p.UserID, sender); err != nil {
			return err
		}
		err := r.registry.Leave(p.EventID, sender)
		if errors.Is(err, errors.ErrRoomNotFound) {
			return nil
		}
		return err

	case envelope.TypingIndicator:
		return r.presence.SetTyping(p.EventID, sender, p.IsTyping)

	case envelope.UserPresence:
		if p.UserID != sender.Identity.UserID {
			return fmt.Errorf("%w: presence for another user", errors.ErrInvalidState)
		}
		if err := r.presence.Mark(p.EventID, sender, p.Status); err != nil {
			return err
		}
		_, err := r.registry.Broadcast(p.EventID, sender, env.From(sender.Identity), envelope.PolicyOthers)
		return err

	case envelope.Error:
		return r.unicast(sender, env.From(sender.Identity))

	case envelope.ChatMessage:
		if censored, words := r.moderator.Censor(p.Content); len(words) > 0 {
			r.monitor.IncrCensored()
			r.log.Debug("Chat message censored", "event_id", p.EventID, "user_id", sender.Identity.UserID, "words", len(words))
			p.Content = censored
			env.Payload = p
		}
		return r.broadcast(p.EventID, sender, env)

	case envelope.RoomScoped:
		return r.broadcast(p.Room(), sender, env)

	default:
		return fmt.Errorf("%w: unroutable type %s", errors.ErrMalformedEnvelope, env.Type)
	}
}

// actsForSelf accepts an omitted userId; a present one must be the sender's.
func actsForSelf(userID string, sender *Connection) error {
	if userID != "" && userID != sender.Identity.UserID {
		return fmt.Errorf("%w: acting for another user", errors.ErrInvalidState)
	}
	return nil
}

func (r *Router) broadcast(eventID string, sender *Connection, env envelope.Envelope) error {
	published, err := r.registry.Broadcast(eventID, sender, env.From(sender.Identity), env.Type.Policy())
	if err != nil {
		return err
	}
	if r.relay == nil {
		return nil
	}
	select {
	case r.relay <- published:
	default:
		r.monitor.IncrRelayDropped()
		r.log.Debug("Relay buffer full, envelope not persisted", "event_id", eventID, "sequence", published.Sequence)
	}
	return nil
}

func (r *Router) reject(c *Connection, cause error) {
	r.monitor.IncrRejected()
	r.log.Debug("Envelope rejected", "connection_id", c.ID, "error", cause)
	if !c.IsOpen() {
		return
	}
	env := envelope.New(envelope.Error{Message: cause.Error(), Code: errors.Code(cause)})
	if err := r.unicast(c, env); err != nil {
		r.log.Warn("Unable to report error", "connection_id", c.ID, "error", err)
	}
}

// unicast bypasses rooms: the frame carries no sequence.
func (r *Router) unicast(c *Connection, env envelope.Envelope) error {
	frame, err := envelope.Encode(env.Stamp(r.registry.clock()))
	if err != nil {
		return err
	}
	err = c.enqueue(frame)
	if errors.Is(err, errors.ErrBackpressureExceeded) {
		r.monitor.IncrBackpressureDrops()
		go r.registry.evict(c, err)
	}
	return err
}
