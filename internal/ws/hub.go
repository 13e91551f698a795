package ws

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/rchat/internal/event"
	"github.com/rchat/internal/logger"
	"github.com/rchat/internal/model"
	"github.com/rchat/internal/service"
)

// inboundHandler processes one decoded client event. A returned error is
// reported back to the initiating connection as an error event; it never
// tears the connection down.
type inboundHandler func(ctx context.Context, c *Client, raw json.RawMessage) error

// Hub owns connection registration and inbound event routing. The mapping
// from event name to handler is a static table built once in NewHub, so the
// full inbound surface is visible in one place.
type Hub struct {
	registry   *Registry
	dispatcher *service.Dispatcher
	tracker    *service.ReadTracker
	maxConns   int

	handlers   map[event.Name]inboundHandler
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
}

func NewHub(registry *Registry, dispatcher *service.Dispatcher, tracker *service.ReadTracker, maxConns int) *Hub {
	if maxConns <= 0 {
		maxConns = 10000
	}
	h := &Hub{
		registry:   registry,
		dispatcher: dispatcher,
		tracker:    tracker,
		maxConns:   maxConns,
		register:   make(chan *Client, 64),
		unregister: make(chan *Client, 64),
		done:       make(chan struct{}),
	}
	h.handlers = map[event.Name]inboundHandler{
		event.NewMessage:  h.handleNewMessage,
		event.ReadMessage: h.handleReadMessage,
	}
	return h
}

func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.shutdown()
			return
		case c := <-h.register:
			h.addClient(c)
		case c := <-h.unregister:
			h.registry.Unbind(c)
			c.Close()
		}
	}
}

func (h *Hub) shutdown() {
	// Close connections outside the registry lock (network I/O).
	all := h.registry.drain()
	for _, c := range all {
		c.Close()
	}
	for _, c := range all {
		c.Wait()
	}
}

func (h *Hub) addClient(c *Client) {
	if h.registry.Len() >= h.maxConns {
		logger.Errorf("ws connection limit reached (%d), rejecting user=%s", h.maxConns, c.userID)
		c.Close()
		return
	}
	h.registry.Bind(c.userID, c)
}

func (h *Hub) Register(c *Client) {
	select {
	case h.register <- c:
	case <-h.done:
		c.Close()
	}
}

func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// inboundEnvelope is the wire shape of every client event.
type inboundEnvelope struct {
	Event   event.Name      `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

// HandleEvent routes one raw inbound frame. Failures are reported back to
// the initiating connection only; other participants never see them.
func (h *Hub) HandleEvent(ctx context.Context, c *Client, raw []byte) {
	var in inboundEnvelope
	if err := json.Unmarshal(raw, &in); err != nil {
		h.sendToClient(c, event.NewError(event.StatusInvalidData, "", "malformed event envelope", compactRaw(raw)))
		return
	}

	handler, ok := h.handlers[in.Event]
	if !ok {
		h.sendToClient(c, event.NewError(event.StatusInvalidData, in.Event, "unknown event", in.Payload))
		return
	}

	if err := handler(ctx, c, in.Payload); err != nil {
		if service.KindOf(err) == service.KindInternal {
			logger.Errorf("ws %s user=%s: %v", in.Event, c.userID, err)
		}
		h.sendToClient(c, event.NewError(service.StatusOf(err), in.Event, publicMessage(err), in.Payload))
	}
}

// publicMessage strips wrapped internals from what goes back on the wire.
func publicMessage(err error) string {
	if service.KindOf(err) == service.KindInternal {
		return "internal error"
	}
	return err.Error()
}

func compactRaw(raw []byte) json.RawMessage {
	if json.Valid(raw) {
		return json.RawMessage(raw)
	}
	return nil
}

type newMessageIn struct {
	ChatID            string `json:"chat_id"`
	OtherUserPublicID string `json:"other_user_public_id"`
	Text              string `json:"text"`
	AudioMediaID      string `json:"audio_media_id"`
	VideoMediaID      string `json:"video_media_id"`
	ReplyToID         string `json:"reply_to_id"`
	ForwardedFromID   string `json:"forwarded_from_id"`
	IsSilent          bool   `json:"is_silent"`
}

func (h *Hub) handleNewMessage(ctx context.Context, c *Client, raw json.RawMessage) error {
	defer logger.DeferLogDuration("ws.handleNewMessage", time.Now())()

	var in newMessageIn
	if err := json.Unmarshal(raw, &in); err != nil {
		return service.E(service.KindValidation, event.StatusInvalidData, "malformed new_message payload")
	}

	msgType := model.MessageTypeText
	switch {
	case in.AudioMediaID != "":
		msgType = model.MessageTypeAudio
	case in.VideoMediaID != "":
		msgType = model.MessageTypeVideo
	}
	if msgType == model.MessageTypeText && strings.TrimSpace(in.Text) == "" {
		return service.E(service.KindValidation, event.StatusInvalidData, "text is required")
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	draft := service.MessageDraft{
		ChatID:            in.ChatID,
		OtherUserPublicID: in.OtherUserPublicID,
		SenderUserID:      c.userID,
		Type:              msgType,
		Text:              in.Text,
		AudioMediaID:      in.AudioMediaID,
		VideoMediaID:      in.VideoMediaID,
		ReplyToID:         in.ReplyToID,
		ForwardedFromID:   in.ForwardedFromID,
		IsSilent:          in.IsSilent,
	}

	chat, err := h.dispatcher.ResolveTargetChat(ctx, c.userID, draft)
	if err != nil {
		return err
	}
	msg, err := h.dispatcher.CreateAndDispatch(ctx, chat, draft)
	if err != nil {
		return err
	}

	// Sending implies having seen everything older in the chat.
	return h.tracker.CatchUpBefore(ctx, chat.ID, msg.ID, c.userID)
}

type readMessageIn struct {
	ChatID    string `json:"chat_id"`
	MessageID string `json:"message_id"`
}

func (h *Hub) handleReadMessage(ctx context.Context, c *Client, raw json.RawMessage) error {
	defer logger.DeferLogDuration("ws.handleReadMessage", time.Now())()

	var in readMessageIn
	if err := json.Unmarshal(raw, &in); err != nil {
		return service.E(service.KindValidation, event.StatusInvalidData, "malformed read_message payload")
	}
	if in.ChatID == "" || in.MessageID == "" {
		return service.E(service.KindValidation, event.StatusInvalidData, "chat_id and message_id are required")
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	marked, err := h.tracker.MarkRead(ctx, in.ChatID, in.MessageID, c.userID)
	if err != nil {
		return err
	}
	if !marked {
		return service.E(service.KindValidation, event.StatusInvalidData, "message already marked as read")
	}

	// Reading a message implies having read everything older in the chat.
	return h.tracker.CatchUpBefore(ctx, in.ChatID, in.MessageID, c.userID)
}

func (h *Hub) sendToClient(c *Client, ev event.Event) {
	select {
	case c.send <- ev:
	case <-c.done:
	default:
		// Backpressure: send buffer full, close slow client.
		logger.Errorf("ws send buffer full, closing slow client user=%s", c.userID)
		c.Close()
	}
}
