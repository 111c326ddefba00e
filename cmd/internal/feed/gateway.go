// Package feed is the WebSocket surface between the chat engine and the app
// shell: UI commands are routed to engine operations and engine events are
// fanned out to every connected shell session.
//
// It is a dispatch surface, not a chat transport: counterpart behavior stays
// behind the engine's responder boundary.
package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"

	"roam/cmd/internal/chat"
	"roam/cmd/internal/notify"
	v1 "roam/shared/contracts/feed/v1"
)

const (
	wsSubprotocolV1 = "roam.feed.v1"

	wsDefaultSendQueueSize = 256
	wsMinSendQueueSize     = 32

	wsDefaultWriteTimeout = 5 * time.Second
	wsDefaultReadIdle     = 2 * time.Minute
	wsCloseGrace          = 1 * time.Second

	wsMaxPingFailures = 3

	// Security defaults:
	// - Origin is required by default.
	// - Only localhost is allowed by default (secure-by-default for dev).
	wsDefaultOriginRequired = true
	wsDefaultAllowedOrigins = "http://localhost,http://127.0.0.1"
)

// Gateway is the WebSocket entrypoint for the Roam feed.
//
// It enforces origin policy, subprotocol selection, rate limits, and
// heartbeats, and routes validated envelopes to the chat engine. It also
// implements chat.EventSink and notify.Dispatcher so engine output reaches
// connected sessions.
type Gateway struct {
	log    *slog.Logger
	hub    *Hub
	engine *chat.Engine

	devInsecure    bool
	originRequired bool
	allowedOrigins []string

	// Derived for websocket.Accept origin checks.
	// Accept() authorizes same-host origins by default, but for cross-origin it requires OriginPatterns.
	originPatterns []string

	writeTimeout    time.Duration
	readIdleTimeout time.Duration
	sendQueueSize   int

	heartbeatEvery   time.Duration
	heartbeatTimeout time.Duration

	rateEvents int
	rateWindow time.Duration
}

// NewGateway constructs a gateway with secure defaults.
func NewGateway(log *slog.Logger, hub *Hub) *Gateway {
	if log == nil {
		log = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	if hub == nil {
		hub = NewHub(log)
	}

	g := &Gateway{log: log, hub: hub}

	// NOTE: InsecureSkipVerify is a dev-only knob (TLS verification). It is not an origin policy.
	g.devInsecure = envBool("ROAM_WS_DEV_INSECURE", false)

	g.originRequired = envBool("ROAM_WS_ORIGIN_REQUIRED", wsDefaultOriginRequired)
	g.allowedOrigins = envCSV("ROAM_WS_ALLOWED_ORIGINS", wsDefaultAllowedOrigins)

	// websocket.Accept enforces its own origin policy:
	// - same-host is ok
	// - cross-origin requires OriginPatterns (host patterns)
	// We derive these patterns from allowed origins so the two layers agree.
	g.originPatterns = deriveOriginPatternsFromAllowedOrigins(g.allowedOrigins)

	g.writeTimeout = envDuration("ROAM_WS_WRITE_TIMEOUT", wsDefaultWriteTimeout)
	g.readIdleTimeout = envDuration("ROAM_WS_READ_IDLE_TIMEOUT", wsDefaultReadIdle)

	g.sendQueueSize = envInt("ROAM_WS_SEND_QUEUE", wsDefaultSendQueueSize)
	if g.sendQueueSize < wsMinSendQueueSize {
		g.sendQueueSize = wsMinSendQueueSize
	}

	g.heartbeatEvery = envDuration("ROAM_WS_HEARTBEAT_INTERVAL", heartbeatInterval)
	g.heartbeatTimeout = envDuration("ROAM_WS_HEARTBEAT_TIMEOUT", heartbeatTimeout)

	g.rateEvents = envInt("ROAM_WS_RATE_EVENTS", rateLimitEvents)
	g.rateWindow = envDuration("ROAM_WS_RATE_WINDOW", rateLimitWindow)

	return g
}

// BindEngine attaches the chat engine the gateway routes commands to.
// Separate from construction because the engine wants the gateway as its
// event sink, so one of the two must exist first.
func (g *Gateway) BindEngine(e *chat.Engine) { g.engine = e }

// Publish implements chat.EventSink: engine events become feed envelopes.
// Must not block; Hub.Broadcast drops under backpressure.
func (g *Gateway) Publish(ev chat.Event) {
	switch ev.Type {
	case chat.EventConversationUpdated:
		if ev.Conversation == nil {
			return
		}
		g.broadcast(v1.TypeConversationUpdated, v1.ConversationUpdatedPayload{
			Conversation: toWireConversation(*ev.Conversation),
		})
	case chat.EventMessageNew:
		if ev.Message == nil {
			return
		}
		g.broadcast(v1.TypeMessageNew, v1.MessageNewPayload{
			Message: toWireMessage(*ev.Message),
		})
	case chat.EventTyping:
		g.broadcast(v1.TypeTyping, v1.TypingPayload{
			ConversationID: ev.ConversationID,
			ParticipantID:  ev.ParticipantID,
			Typing:         ev.Typing,
		})
	case chat.EventPresence:
		g.broadcast(v1.TypePresence, v1.PresencePayload{
			ConversationID: ev.ConversationID,
			ParticipantID:  ev.ParticipantID,
			Online:         ev.Online,
		})
	}
}

// Notify implements notify.Dispatcher: notification summaries are pushed to
// the shell for toast rendering.
func (g *Gateway) Notify(n notify.Notification) {
	g.broadcast(v1.TypeNotification, v1.NotificationPayload{
		Type:        n.Type,
		Title:       n.Title,
		Message:     n.Message,
		RelatedID:   n.RelatedID,
		RelatedType: n.RelatedType,
	})
}

func (g *Gateway) broadcast(typ string, payload any) {
	raw, err := json.Marshal(payload)
	if err != nil {
		g.log.Error("feed.broadcast.marshal.fail", "type", typ, "err", err)
		return
	}
	g.hub.Broadcast(newEnvelope(typ, raw, time.Now().UTC()))
}

// ServeHTTP adapter so it can be mounted as http.Handler.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	g.HandleWS(w, r)
}

// HandleWS upgrades an HTTP request to a WebSocket session and runs the feed loop.
func (g *Gateway) HandleWS(w http.ResponseWriter, r *http.Request) {
	if err := g.enforceOrigin(r); err != nil {
		g.log.Info("ws.reject.origin", "err", err, "origin", r.Header.Get("Origin"), "remote", r.RemoteAddr)
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		Subprotocols: []string{wsSubprotocolV1},

		// Authorize allowed origin hosts (e.g. localhost) for cross-origin requests.
		OriginPatterns: g.originPatterns,

		// Dev-only escape hatch.
		InsecureSkipVerify: g.devInsecure,
	})
	if err != nil {
		g.log.Error("ws.accept.fail", "err", err)
		return
	}
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "bye") }()

	if sp := conn.Subprotocol(); sp != wsSubprotocolV1 {
		g.log.Info("ws.reject.subprotocol", "got", sp, "want", wsSubprotocolV1)
		_ = conn.Close(websocket.StatusProtocolError, "subprotocol required")
		return
	}

	conn.SetReadLimit(maxFrameBytes)

	sessionID := NewRandomHex(10)
	client := NewClient(sessionID, g.sendQueueSize)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	var closeOnce sync.Once

	// shutdown is idempotent. It does NOT close client.Send.
	// Broadcast safety: client.Send remains open and registry removal happens before client.Close.
	shutdown := func(code websocket.StatusCode, reason string) {
		closeOnce.Do(func() {
			g.hub.Leave(sessionID)
			client.Close()
			_ = conn.Close(code, reason)
			cancel()
		})
	}

	rl := NewRateLimiter(g.rateEvents, g.rateWindow)

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)

		for {
			select {
			case <-ctx.Done():
				return
			case <-client.Done():
				return
			case env := <-client.Send:
				if err := writeEnvelope(ctx, conn, env, g.writeTimeout); err != nil {
					g.log.Info("ws.write.fail", "session_id", sessionID, "close_status", websocket.CloseStatus(err), "err", err)
					shutdown(websocket.StatusAbnormalClosure, "write failed")
					return
				}
			}
		}
	}()

	heartbeatDone := make(chan struct{})
	go func() {
		defer close(heartbeatDone)

		t := time.NewTicker(g.heartbeatEvery)
		defer t.Stop()

		failures := 0
		for {
			select {
			case <-ctx.Done():
				return
			case <-client.Done():
				return
			case <-t.C:
				hbCtx, hbCancel := context.WithTimeout(ctx, g.heartbeatTimeout)
				err := conn.Ping(hbCtx)
				hbCancel()

				if err != nil {
					failures++
					g.log.Info("ws.ping.fail", "session_id", sessionID, "failures", failures, "err", err)
					if failures >= wsMaxPingFailures {
						shutdown(websocket.StatusGoingAway, "heartbeat failed")
						return
					}
					continue
				}
				failures = 0
			}
		}
	}()

	helloed := false

readLoop:
	for {
		readCtx, readCancel := context.WithTimeout(ctx, g.readIdleTimeout)
		env, err := readEnvelope(readCtx, conn)
		readCancel()

		if err != nil {
			switch classifyReadErr(err) {
			case readErrClose:
				shutdown(websocket.StatusNormalClosure, "peer closed")
				break readLoop
			case readErrCtxDone:
				shutdown(websocket.StatusNormalClosure, "context done")
				break readLoop
			case readErrConnClosed:
				shutdown(websocket.StatusAbnormalClosure, "conn closed")
				break readLoop
			case readErrBadJSON:
				g.trySendError(ctx, client, "bad_json", "invalid JSON")
				continue readLoop
			default:
				g.log.Info("ws.read.fail", "session_id", sessionID, "err", err)
				shutdown(websocket.StatusAbnormalClosure, "read failed")
				break readLoop
			}
		}

		now := time.Now().UTC()
		if !rl.Allow(now) {
			g.trySendError(ctx, client, "rate_limited", "too many events")
			shutdown(websocket.StatusPolicyViolation, "rate limited")
			break readLoop
		}

		if err := env.Validate(); err != nil {
			g.trySendError(ctx, client, "bad_envelope", err.Error())
			continue readLoop
		}

		if env.Type == v1.TypeHello {
			if err := g.onHello(ctx, client, env); err != nil {
				g.trySendError(ctx, client, "hello_failed", err.Error())
				shutdown(websocket.StatusPolicyViolation, "hello failed")
				break readLoop
			}
			// Events start flowing only after the handshake.
			g.hub.Join(client)
			helloed = true
			continue readLoop
		}

		if !helloed {
			g.trySendError(ctx, client, "not_helloed", "hello first")
			continue readLoop
		}
		if g.engine == nil {
			g.trySendError(ctx, client, "unavailable", "engine not bound")
			continue readLoop
		}

		if err := g.dispatch(ctx, client, env); err != nil {
			g.trySendError(ctx, client, "command_failed", err.Error())
		}
	}

	shutdown(websocket.StatusNormalClosure, "bye")
	<-writerDone

	select {
	case <-heartbeatDone:
	case <-time.After(wsCloseGrace):
	}
}

// ---- handlers ----

func (g *Gateway) dispatch(ctx context.Context, client *Client, env v1.Envelope) error {
	switch env.Type {
	case v1.TypeMessageSend:
		return g.onMessageSend(env)
	case v1.TypeMessageAdd:
		return g.onMessageAdd(env)
	case v1.TypeMarkRead:
		return g.onMarkRead(env)
	case v1.TypeTypingSet:
		return g.onTypingSet(env)
	case v1.TypePresenceSet:
		return g.onPresenceSet(env)
	case v1.TypeConversationList:
		return g.onConversationList(ctx, client)
	case v1.TypeMessageList:
		return g.onMessageList(ctx, client, env)
	default:
		return fmt.Errorf("unsupported type: %s", env.Type)
	}
}

func (g *Gateway) onHello(ctx context.Context, client *Client, env v1.Envelope) error {
	var p v1.HelloPayload
	if len(env.Payload) > 0 {
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return fmt.Errorf("invalid payload: %w", err)
		}
	}

	ackPayload, _ := json.Marshal(v1.HelloAckPayload{SessionID: client.SessionID})
	ack := newEnvelope(v1.TypeHelloAck, ackPayload, time.Now().UTC())

	if !g.enqueue(ctx, client, ack) {
		return errors.New("backpressure: hello_ack")
	}
	return nil
}

func (g *Gateway) onMessageSend(env v1.Envelope) error {
	var p v1.MessageSendPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		return fmt.Errorf("invalid payload: %w", err)
	}

	if strings.TrimSpace(p.CounterpartID) == "" && strings.TrimSpace(p.ConversationID) == "" {
		return errors.New("missing counterpart_id")
	}

	content := strings.TrimSpace(p.Content)
	if content == "" {
		return errors.New("empty content")
	}
	if len([]rune(content)) > maxMessageChars {
		return fmt.Errorf("message too long: max=%d chars", maxMessageChars)
	}

	kind := chat.Kind(p.Kind)
	if kind != chat.KindGroup {
		kind = chat.KindDirect
	}

	// Result flows back through the event feed (message_new +
	// conversation_updated); no per-command ack.
	g.engine.SendMessage(chat.SendInput{
		CounterpartID:     p.CounterpartID,
		CounterpartName:   p.CounterpartName,
		CounterpartAvatar: p.CounterpartAvatar,
		Content:           content,
		ConversationID:    p.ConversationID,
		Kind:              kind,
		Pitch:             fromWirePitch(p.Pitch),
	})
	return nil
}

func (g *Gateway) onMessageAdd(env v1.Envelope) error {
	var p v1.MessageAddPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		return fmt.Errorf("invalid payload: %w", err)
	}

	if strings.TrimSpace(p.ConversationID) == "" {
		return errors.New("missing conversation_id")
	}
	if strings.TrimSpace(p.SenderID) == "" {
		return errors.New("missing sender_id")
	}
	content := strings.TrimSpace(p.Content)
	if content == "" {
		return errors.New("empty content")
	}

	if _, ok := g.engine.AddMessage(p.ConversationID, p.SenderID, p.SenderName, p.SenderAvatar, content); !ok {
		return errors.New("unknown conversation_id")
	}
	return nil
}

func (g *Gateway) onMarkRead(env v1.Envelope) error {
	var p v1.MarkReadPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		return fmt.Errorf("invalid payload: %w", err)
	}
	if strings.TrimSpace(p.ConversationID) == "" {
		return errors.New("missing conversation_id")
	}

	g.engine.MarkAsRead(p.ConversationID)
	return nil
}

func (g *Gateway) onTypingSet(env v1.Envelope) error {
	var p v1.TypingSetPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		return fmt.Errorf("invalid payload: %w", err)
	}
	if strings.TrimSpace(p.ConversationID) == "" {
		return errors.New("missing conversation_id")
	}

	g.engine.SetTypingStatus(p.ConversationID, p.Typing)
	return nil
}

func (g *Gateway) onPresenceSet(env v1.Envelope) error {
	var p v1.PresenceSetPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		return fmt.Errorf("invalid payload: %w", err)
	}
	if strings.TrimSpace(p.ParticipantID) == "" {
		return errors.New("missing participant_id")
	}

	g.engine.UpdatePresence(p.ParticipantID, p.Online)
	return nil
}

func (g *Gateway) onConversationList(ctx context.Context, client *Client) error {
	convs := g.engine.Conversations()

	out := make([]v1.Conversation, 0, len(convs))
	for _, c := range convs {
		out = append(out, toWireConversation(c))
	}

	payload, _ := json.Marshal(v1.ConversationListResultPayload{
		Conversations: out,
		TotalUnread:   g.engine.TotalUnreadCount(),
	})
	res := newEnvelope(v1.TypeConversationListResult, payload, time.Now().UTC())

	if !g.enqueue(ctx, client, res) {
		return errors.New("backpressure: conversation_list_result")
	}
	return nil
}

func (g *Gateway) onMessageList(ctx context.Context, client *Client, env v1.Envelope) error {
	var p v1.MessageListPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		return fmt.Errorf("invalid payload: %w", err)
	}
	if strings.TrimSpace(p.ConversationID) == "" {
		return errors.New("missing conversation_id")
	}

	msgs := g.engine.Messages(p.ConversationID)

	out := make([]v1.Message, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, toWireMessage(m))
	}

	payload, _ := json.Marshal(v1.MessageListResultPayload{
		ConversationID: p.ConversationID,
		Messages:       out,
	})
	res := newEnvelope(v1.TypeMessageListResult, payload, time.Now().UTC())

	if !g.enqueue(ctx, client, res) {
		return errors.New("backpressure: message_list_result")
	}
	return nil
}

// ---- send helpers ----

func (g *Gateway) trySendError(ctx context.Context, client *Client, code, msg string) {
	p, _ := json.Marshal(v1.ErrorPayload{Code: code, Message: msg})
	env := newEnvelope(v1.TypeError, p, time.Now().UTC())
	_ = g.enqueue(ctx, client, env)
}

func (g *Gateway) enqueue(ctx context.Context, client *Client, env v1.Envelope) bool {
	select {
	case <-ctx.Done():
		return false
	case <-client.Done():
		return false
	case client.Send <- env:
		return true
	default:
		return false
	}
}

// ---- envelope IO ----

func newEnvelope(typ string, payload json.RawMessage, ts time.Time) v1.Envelope {
	return v1.Envelope{
		V:       v1.Version,
		Type:    typ,
		ID:      NewRandomHex(10),
		TS:      ts,
		Payload: payload,
	}
}

func readEnvelope(ctx context.Context, conn *websocket.Conn) (v1.Envelope, error) {
	mt, data, err := conn.Read(ctx)
	if err != nil {
		return v1.Envelope{}, err
	}
	if mt != websocket.MessageText && mt != websocket.MessageBinary {
		return v1.Envelope{}, fmt.Errorf("unsupported message type: %v", mt)
	}
	var env v1.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return v1.Envelope{}, err
	}
	return env, nil
}

func writeEnvelope(parent context.Context, conn *websocket.Conn, env v1.Envelope, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	b, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, b)
}

// ---- read error classification ----

type readErrKind uint8

const (
	readErrUnknown readErrKind = iota
	readErrClose
	readErrCtxDone
	readErrConnClosed
	readErrBadJSON
)

func classifyReadErr(err error) readErrKind {
	if websocket.CloseStatus(err) != -1 {
		return readErrClose
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return readErrCtxDone
	}
	if errors.Is(err, net.ErrClosed) || errors.Is(err, io.EOF) {
		return readErrConnClosed
	}

	// JSON decode errors are typically returned by json.Unmarshal, not conn.Read.
	// This fallback exists for robustness when error strings are propagated.
	s := err.Error()
	if strings.Contains(s, "unexpected end of JSON input") || strings.Contains(s, "invalid character") {
		return readErrBadJSON
	}
	return readErrUnknown
}

// ---- origin policy ----

func (g *Gateway) enforceOrigin(r *http.Request) error {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		if g.originRequired {
			return errors.New("missing origin")
		}
		return nil
	}

	if len(g.allowedOrigins) == 0 {
		return errors.New("origin not allowed (no allowlist)")
	}

	originHost := originHostOnly(origin)

	for _, a := range g.allowedOrigins {
		a = strings.TrimSpace(a)
		if a == "" {
			continue
		}
		if a == "*" {
			// Strongly discouraged, but honored if explicitly configured.
			return nil
		}

		// Full origin match (scheme + host + optional port).
		if origin == a {
			return nil
		}

		// Host match fallback (ignores port/scheme).
		if originHost != "" && originHost == originHostOnly(a) {
			return nil
		}
	}

	return fmt.Errorf("origin not allowed: %s", origin)
}

func originHostOnly(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}

	// URL form.
	if strings.Contains(s, "://") {
		u, err := url.Parse(s)
		if err != nil {
			return ""
		}
		h := strings.TrimSpace(u.Host)
		if h == "" {
			return ""
		}
		if host, _, err := net.SplitHostPort(h); err == nil {
			return strings.ToLower(host)
		}
		return strings.ToLower(h)
	}

	// host[:port] form.
	if host, _, err := net.SplitHostPort(s); err == nil {
		return strings.ToLower(host)
	}
	return strings.ToLower(s)
}

func deriveOriginPatternsFromAllowedOrigins(allowed []string) []string {
	// websocket.Accept matches OriginPatterns against the origin host using filepath.Match patterns.
	// We keep this strict: only hosts extracted from the allowlist are accepted.
	seen := make(map[string]struct{}, len(allowed))

	for _, a := range allowed {
		h := originHostOnly(a)
		if h == "" || h == "*" {
			continue
		}
		seen[h] = struct{}{}
	}

	out := make([]string, 0, len(seen))
	for h := range seen {
		out = append(out, h)
	}

	// Stable in-file sort (avoid importing sort just for this).
	for i := 0; i < len(out); i++ {
		for j := i + 1; j < len(out); j++ {
			if out[j] < out[i] {
				out[i], out[j] = out[j], out[i]
			}
		}
	}

	return out
}

// ---- env helpers ----

func envBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func envInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func envDuration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

func envCSV(key string, def string) []string {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		raw = def
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		s := strings.TrimSpace(p)
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}
