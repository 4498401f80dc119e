package sdk

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// ErrRealtimeClosed is returned by calls on a closed Realtime connection
var ErrRealtimeClosed = errors.New("realtime connection closed")

// Realtime is a socket connection to the chat gateway.
// Requests are answered by ack or error frames matched on reqId; every other
// frame is delivered on Events.
type Realtime struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
	nextId  atomic.Int64

	mu      sync.Mutex
	pending map[string]chan *Frame
	closed  bool

	events chan *Frame
	done   chan struct{}
	err    error
}

// DialRealtime opens the socket of the server behind the client, authenticated with its token
func (c *Client) DialRealtime(ctx context.Context) (*Realtime, error) {
	return DialRealtime(ctx, c.baseURL, c.token)
}

// DialRealtime opens a socket to baseURL's /ws endpoint
func DialRealtime(ctx context.Context, baseURL, token string) (*Realtime, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/") + "/ws")
	if err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}

	header := http.Header{}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, u.String(), header)
	if err != nil {
		if resp != nil {
			return nil, &Error{Code: CodeUnauthorized, Msg: fmt.Sprintf("handshake rejected: %s", resp.Status), Status: resp.StatusCode}
		}
		return nil, fmt.Errorf("dial failed: %w", err)
	}

	r := &Realtime{
		conn:    conn,
		pending: make(map[string]chan *Frame),
		events:  make(chan *Frame, 256),
		done:    make(chan struct{}),
	}
	go r.readLoop()
	return r, nil
}

// Events returns pushed frames: new_message, user_typing, user_status_change
// and conversation_created. It is closed when the connection ends.
func (r *Realtime) Events() <-chan *Frame {
	return r.events
}

// Done is closed when the connection ends
func (r *Realtime) Done() <-chan struct{} {
	return r.done
}

// Err returns why the connection ended
func (r *Realtime) Err() error {
	select {
	case <-r.done:
		return r.err
	default:
		return nil
	}
}

func (r *Realtime) readLoop() {
	defer func() {
		r.mu.Lock()
		r.closed = true
		for id, ch := range r.pending {
			close(ch)
			delete(r.pending, id)
		}
		r.mu.Unlock()
		close(r.events)
		close(r.done)
	}()

	for {
		_, data, err := r.conn.ReadMessage()
		if err != nil {
			r.err = err
			return
		}

		var frame Frame
		if err := json.Unmarshal(data, &frame); err != nil {
			continue
		}

		if frame.ReqId != "" && (frame.Event == EventAck || frame.Event == EventError) {
			r.mu.Lock()
			ch, ok := r.pending[frame.ReqId]
			delete(r.pending, frame.ReqId)
			r.mu.Unlock()
			if ok {
				ch <- &frame
				continue
			}
		}

		select {
		case r.events <- &frame:
		default:
			// the consumer is not keeping up
		}
	}
}

// call sends a request and waits for its reply
func (r *Realtime) call(ctx context.Context, event string, data interface{}, result interface{}) error {
	reqId := strconv.FormatInt(r.nextId.Add(1), 10)
	ch := make(chan *Frame, 1)

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrRealtimeClosed
	}
	r.pending[reqId] = ch
	r.mu.Unlock()

	if err := r.write(event, reqId, data); err != nil {
		r.forget(reqId)
		return err
	}

	select {
	case frame, ok := <-ch:
		if !ok {
			return ErrRealtimeClosed
		}
		if frame.Event == EventError {
			return &Error{Code: frame.ErrCode, Msg: frame.ErrMsg}
		}
		if result != nil && len(frame.Data) > 0 {
			return frame.Decode(result)
		}
		return nil
	case <-ctx.Done():
		r.forget(reqId)
		return ctx.Err()
	}
}

func (r *Realtime) forget(reqId string) {
	r.mu.Lock()
	delete(r.pending, reqId)
	r.mu.Unlock()
}

func (r *Realtime) write(event, reqId string, data interface{}) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return err
	}
	frame, err := json.Marshal(map[string]interface{}{
		"event": event,
		"reqId": reqId,
		"data":  json.RawMessage(payload),
	})
	if err != nil {
		return err
	}

	r.writeMu.Lock()
	defer r.writeMu.Unlock()
	_ = r.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return r.conn.WriteMessage(websocket.TextMessage, frame)
}

type conversationRef struct {
	ConversationId string `json:"conversationId"`
}

// Join subscribes to a conversation the caller participates in
func (r *Realtime) Join(ctx context.Context, conversationId string) error {
	return r.call(ctx, EventJoinConversation, conversationRef{conversationId}, nil)
}

// Leave unsubscribes from a conversation
func (r *Realtime) Leave(ctx context.Context, conversationId string) error {
	return r.call(ctx, EventLeaveConversation, conversationRef{conversationId}, nil)
}

// Typing starts or stops the typing indicator
func (r *Realtime) Typing(ctx context.Context, conversationId string, typing bool) error {
	event := EventTypingStop
	if typing {
		event = EventTypingStart
	}
	return r.call(ctx, event, conversationRef{conversationId}, nil)
}

// Send sends a message over the socket
func (r *Realtime) Send(ctx context.Context, conversationId, content string) (*Message, error) {
	var msg Message
	if err := r.call(ctx, EventSendMessage, SendMessageRequest{ConversationId: conversationId, Content: content}, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// Ping checks the connection and returns the server time in unix milliseconds
func (r *Realtime) Ping(ctx context.Context) (int64, error) {
	var pong struct {
		ServerTime int64 `json:"serverTime"`
	}
	if err := r.call(ctx, EventPing, struct{}{}, &pong); err != nil {
		return 0, err
	}
	return pong.ServerTime, nil
}

// Close closes the connection
func (r *Realtime) Close() error {
	r.writeMu.Lock()
	_ = r.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	r.writeMu.Unlock()
	err := r.conn.Close()
	<-r.done
	return err
}
