// Package main provides a CI-friendly WebSocket smoke test for the Roam feed.
//
// It validates:
//   - handshake + subprotocol selection
//   - hello/ack session establishment
//   - conversation_list snapshot
//   - message_send -> message_new + conversation_updated fanout
//   - simulated counterpart: typing on, reply message_new, typing off
//   - mark_read -> conversation_updated with unread cleared
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/coder/websocket"

	v1 "roam/shared/contracts/feed/v1"
)

const (
	defaultSubprotocol = "roam.feed.v1"
	maxReadBytes       = 1 << 20 // 1MiB
)

type smokeClient struct {
	conn      *websocket.Conn
	sessionID string

	inbox chan v1.Envelope
	errCh chan error
}

func main() {
	var (
		wsURL       = flag.String("url", "ws://127.0.0.1:8080/ws", "WebSocket URL")
		origin      = flag.String("origin", "http://localhost", "Origin header to send (browser-like WS handshake)")
		counterpart = flag.String("counterpart", "smoke-maya", "Counterpart id to message")
		name        = flag.String("name", "Maya", "Counterpart display name")
		text        = flag.String("text", "fancy a trip to Lisbon?", "Message text to send")
		timeout     = flag.Duration("timeout", 7*time.Second, "Per-step timeout")
		replyWait   = flag.Duration("reply-wait", 6*time.Second, "How long to wait for the simulated reply chain")
		verbose     = flag.Bool("v", false, "Verbose output")
	)
	flag.Parse()

	if err := validateWSURL(*wsURL); err != nil {
		fatalf("invalid -url: %v", err)
	}
	if err := validateOrigin(*origin); err != nil {
		fatalf("invalid -origin: %v", err)
	}

	root := context.Background()

	c := mustConnect(root, *wsURL, *origin, *timeout)
	defer closeWS(c.conn)

	if *verbose {
		fmt.Printf("connected: session=%s origin=%q\n", c.sessionID, *origin)
	}

	mustConversationList(root, c, *timeout)

	mustSend(root, c, *counterpart, *name, *text, *timeout)

	sent := c.mustReadUntilType(root, v1.TypeMessageNew, *timeout, anySkip())
	var mp v1.MessageNewPayload
	if err := json.Unmarshal(sent.Payload, &mp); err != nil {
		fatalf("unmarshal message_new payload: %v", err)
	}
	if mp.Message.Content != *text {
		fatalf("message_new content mismatch: got=%q want=%q", mp.Message.Content, *text)
	}
	convID := mp.Message.ConversationID
	if strings.TrimSpace(convID) == "" {
		fatalf("message_new missing conversationId")
	}

	mustTypingFlip(root, c, convID, true, *replyWait)

	reply := c.mustReadUntilType(root, v1.TypeMessageNew, *replyWait, anySkip())
	if err := json.Unmarshal(reply.Payload, &mp); err != nil {
		fatalf("unmarshal reply payload: %v", err)
	}
	if mp.Message.SenderID != *counterpart {
		fatalf("reply sender mismatch: got=%q want=%q", mp.Message.SenderID, *counterpart)
	}
	if mp.Message.Read {
		fatalf("reply should arrive unread")
	}

	mustUnread(root, c, convID, 1, *timeout)

	mustMarkRead(root, c, convID, *timeout)
	mustUnread(root, c, convID, 0, *timeout)

	fmt.Printf("OK: session=%s conv_id=%s\n", c.sessionID, convID)
}

func validateWSURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}
	if strings.TrimSpace(u.Host) == "" {
		return errors.New("missing host")
	}
	if strings.TrimSpace(u.Path) == "" {
		return errors.New("missing path")
	}
	return nil
}

func validateOrigin(raw string) error {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("origin must be http/https, got: %s", u.Scheme)
	}
	if strings.TrimSpace(u.Host) == "" {
		return errors.New("origin missing host")
	}
	return nil
}

func mustConnect(parent context.Context, wsURL, origin string, stepTimeout time.Duration) *smokeClient {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	h := http.Header{}
	if strings.TrimSpace(origin) != "" {
		h.Set("Origin", origin)
	}

	conn, resp, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		Subprotocols: []string{defaultSubprotocol},
		HTTPHeader:   h,
	})
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		fatalf("connect: %v", err)
	}

	if got := strings.TrimSpace(conn.Subprotocol()); got != "" && got != defaultSubprotocol {
		fatalf("subprotocol mismatch: got=%q want=%q", got, defaultSubprotocol)
	}

	conn.SetReadLimit(maxReadBytes)

	c := &smokeClient{
		conn:  conn,
		inbox: make(chan v1.Envelope, 512),
		errCh: make(chan error, 1),
	}
	c.startReadLoop()

	hello := v1.Envelope{
		V:       v1.Version,
		Type:    v1.TypeHello,
		ID:      "smoke-hello",
		TS:      time.Now().UTC(),
		Payload: mustJSON(v1.HelloPayload{}),
	}
	mustWriteWithTimeout(parent, conn, hello, stepTimeout)

	ack := c.mustReadUntilType(parent, v1.TypeHelloAck, stepTimeout, nil)

	var p v1.HelloAckPayload
	if err := json.Unmarshal(ack.Payload, &p); err != nil {
		fatalf("unmarshal hello_ack payload: %v", err)
	}
	if strings.TrimSpace(p.SessionID) == "" {
		fatalf("hello_ack missing session_id")
	}
	c.sessionID = p.SessionID

	return c
}

func (c *smokeClient) startReadLoop() {
	go func() {
		defer close(c.inbox)

		for {
			mt, data, err := c.conn.Read(context.Background())
			if err != nil {
				select {
				case c.errCh <- err:
				default:
				}
				return
			}

			if mt != websocket.MessageText && mt != websocket.MessageBinary {
				select {
				case c.errCh <- fmt.Errorf("unsupported message type: %v", mt):
				default:
				}
				return
			}

			var env v1.Envelope
			if err := json.Unmarshal(data, &env); err != nil {
				select {
				case c.errCh <- fmt.Errorf("bad json: %w", err):
				default:
				}
				return
			}
			if err := env.Validate(); err != nil {
				select {
				case c.errCh <- fmt.Errorf("bad envelope: %w", err):
				default:
				}
				return
			}

			select {
			case c.inbox <- env:
			default:
				select {
				case c.errCh <- errors.New("inbox overflow: consumer too slow"):
				default:
				}
				return
			}
		}
	}()
}

func mustConversationList(parent context.Context, c *smokeClient, stepTimeout time.Duration) {
	req := v1.Envelope{
		V:       v1.Version,
		Type:    v1.TypeConversationList,
		ID:      "smoke-list",
		TS:      time.Now().UTC(),
		Payload: mustJSON(v1.ConversationListPayload{}),
	}
	mustWriteWithTimeout(parent, c.conn, req, stepTimeout)

	res := c.mustReadUntilType(parent, v1.TypeConversationListResult, stepTimeout, anySkip())

	var p v1.ConversationListResultPayload
	if err := json.Unmarshal(res.Payload, &p); err != nil {
		fatalf("unmarshal conversation_list_result payload: %v", err)
	}
	if p.TotalUnread < 0 {
		fatalf("negative total_unread: %d", p.TotalUnread)
	}
}

func mustSend(parent context.Context, c *smokeClient, counterpartID, counterpartName, text string, stepTimeout time.Duration) {
	env := v1.Envelope{
		V:    v1.Version,
		Type: v1.TypeMessageSend,
		ID:   "smoke-send",
		TS:   time.Now().UTC(),
		Payload: mustJSON(v1.MessageSendPayload{
			CounterpartID:   counterpartID,
			CounterpartName: counterpartName,
			Content:         text,
		}),
	}
	mustWriteWithTimeout(parent, c.conn, env, stepTimeout)
}

func mustTypingFlip(parent context.Context, c *smokeClient, convID string, want bool, stepTimeout time.Duration) {
	for {
		env := c.mustReadUntilType(parent, v1.TypeTyping, stepTimeout, anySkip())

		var p v1.TypingPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			fatalf("unmarshal typing payload: %v", err)
		}
		if p.ConversationID != convID {
			continue
		}
		if p.Typing != want {
			fatalf("typing mismatch: got=%v want=%v", p.Typing, want)
		}
		return
	}
}

func mustUnread(parent context.Context, c *smokeClient, convID string, want int, stepTimeout time.Duration) {
	req := v1.Envelope{
		V:       v1.Version,
		Type:    v1.TypeConversationList,
		ID:      "smoke-unread",
		TS:      time.Now().UTC(),
		Payload: mustJSON(v1.ConversationListPayload{}),
	}
	mustWriteWithTimeout(parent, c.conn, req, stepTimeout)

	res := c.mustReadUntilType(parent, v1.TypeConversationListResult, stepTimeout, anySkip())

	var p v1.ConversationListResultPayload
	if err := json.Unmarshal(res.Payload, &p); err != nil {
		fatalf("unmarshal conversation_list_result payload: %v", err)
	}

	for _, conv := range p.Conversations {
		if conv.ID != convID {
			continue
		}
		if conv.UnreadCount != want {
			fatalf("unread mismatch for %s: got=%d want=%d", convID, conv.UnreadCount, want)
		}
		return
	}
	fatalf("conversation %s missing from list", convID)
}

func mustMarkRead(parent context.Context, c *smokeClient, convID string, stepTimeout time.Duration) {
	env := v1.Envelope{
		V:       v1.Version,
		Type:    v1.TypeMarkRead,
		ID:      "smoke-mark-read",
		TS:      time.Now().UTC(),
		Payload: mustJSON(v1.MarkReadPayload{ConversationID: convID}),
	}
	mustWriteWithTimeout(parent, c.conn, env, stepTimeout)
}

// anySkip tolerates interleaved push events while waiting for a specific type.
func anySkip() map[string]struct{} {
	return map[string]struct{}{
		v1.TypeConversationUpdated: {},
		v1.TypeMessageNew:          {},
		v1.TypeTyping:              {},
		v1.TypePresence:            {},
		v1.TypeNotification:        {},
	}
}

func (c *smokeClient) mustReadUntilType(parent context.Context, wantType string, stepTimeout time.Duration, skipTypes map[string]struct{}) v1.Envelope {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			fatalf("timeout waiting for %q: %v", wantType, ctx.Err())
		case err := <-c.errCh:
			if err == nil {
				fatalf("connection closed while waiting for %q", wantType)
			}
			fatalf("connection error while waiting for %q: %v", wantType, err)
		case env, ok := <-c.inbox:
			if !ok {
				fatalf("connection closed while waiting for %q", wantType)
			}
			if env.Type == wantType {
				return env
			}
			if env.Type == v1.TypeError {
				var ep v1.ErrorPayload
				_ = json.Unmarshal(env.Payload, &ep)
				fatalf("server error: code=%q msg=%q", ep.Code, ep.Message)
			}
			if skipTypes != nil {
				if _, ok := skipTypes[env.Type]; ok {
					continue
				}
			}
			fatalf("unexpected envelope type: got=%q want=%q", env.Type, wantType)
		}
	}
}

func mustWriteWithTimeout(parent context.Context, conn *websocket.Conn, env v1.Envelope, stepTimeout time.Duration) {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	b, err := json.Marshal(env)
	if err != nil {
		fatalf("marshal envelope: %v", err)
	}
	if err := conn.Write(ctx, websocket.MessageText, b); err != nil {
		fatalf("write failed: %v", err)
	}
}

func mustJSON(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}

func closeWS(conn *websocket.Conn) {
	_ = conn.Close(websocket.StatusNormalClosure, "bye")
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "FAIL: "+format+"\n", args...)
	os.Exit(1)
}
