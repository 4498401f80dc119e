package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/mbeoliero/kit/log"

	"github.com/mbeoliero/coursechat/common"
	"github.com/mbeoliero/coursechat/pkg/errcode"
)

// Client represents a connected WebSocket client
type Client struct {
	mu        sync.Mutex
	conn      ClientConn
	UserId    string
	Role      common.RoleType
	ConnId    string
	server    *WsServer
	closed    atomic.Bool
	closedErr error
	ctx       context.Context
	cancel    context.CancelFunc
}

// NewClient creates a new client
func NewClient(conn ClientConn, actor common.Actor, connId string, server *WsServer) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		conn:   conn,
		UserId: actor.Id,
		Role:   actor.Role,
		ConnId: connId,
		server: server,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Actor returns the authenticated principal of the connection
func (c *Client) Actor() common.Actor {
	return common.Actor{Id: c.UserId, Role: c.Role}
}

// readLoop continuously reads messages from the connection
func (c *Client) readLoop() {
	defer func() {
		if r := recover(); r != nil {
			c.closedErr = ErrPanic
			log.CtxError(c.ctx, "client read loop panic: user_id=%s, error=%v", c.UserId, r)
		}
		c.close()
	}()

	for {
		message, err := c.conn.ReadMessage()
		if err != nil {
			log.CtxDebug(c.ctx, "read message error: user_id=%s, error=%v", c.UserId, err)
			c.closedErr = err
			return
		}

		if c.closed.Load() {
			c.closedErr = ErrConnClosed
			return
		}

		if err := c.handleMessage(message); err != nil {
			log.CtxWarn(c.ctx, "handle message error: user_id=%s, conn_id=%s, error=%v", c.UserId, c.ConnId, err)
			c.closedErr = err
			return
		}
	}
}

// handleMessage handles a single incoming frame. A returned error closes the connection.
func (c *Client) handleMessage(message []byte) error {
	var req WSRequest
	if err := json.Unmarshal(message, &req); err != nil || req.Event == "" {
		_ = c.replyError(&req, errcode.ErrInvalidProtocol)
		return ErrInvalidProtocol
	}

	log.CtxDebug(c.ctx, "received event: event=%s, user_id=%s", req.Event, c.UserId)

	var resp interface{}
	var err error

	switch req.Event {
	case EventJoinConversation:
		resp, err = c.server.HandleJoin(c.ctx, c, &req)
	case EventLeaveConversation:
		resp, err = c.server.HandleLeave(c.ctx, c, &req)
	case EventTypingStart:
		resp, err = c.server.HandleTyping(c.ctx, c, &req, true)
	case EventTypingStop:
		resp, err = c.server.HandleTyping(c.ctx, c, &req, false)
	case EventSendMessage:
		resp, err = c.server.HandleSendMessage(c.ctx, c, &req)
	case EventPing:
		resp, err = c.server.HandlePing(c.ctx, c, &req)
	default:
		return c.replyError(&req, errcode.ErrInvalidProtocol.WithMsg("unknown event: "+req.Event))
	}

	return c.reply(&req, err, resp)
}

// reply sends the ack or error of a request
func (c *Client) reply(req *WSRequest, err error, data interface{}) error {
	if err != nil {
		return c.replyError(req, err)
	}
	frame, err := json.Marshal(WSResponse{Event: EventAck, ReqId: req.ReqId, Data: data})
	if err != nil {
		return err
	}
	return c.writeFrame(frame)
}

// replyError sends an error frame
func (c *Client) replyError(req *WSRequest, err error) error {
	if errcode.From(err) == errcode.ErrInternalServer && !errors.Is(err, errcode.ErrInternalServer) {
		log.CtxError(c.ctx, "socket request failed: event=%s, user_id=%s, error=%v", req.Event, c.UserId, err)
	}
	frame, encErr := encodeError(req.ReqId, err)
	if encErr != nil {
		return encErr
	}
	return c.writeFrame(frame)
}

// writeFrame writes an encoded frame to the connection
func (c *Client) writeFrame(frame []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return nil
	}
	return c.conn.WriteMessage(frame)
}

// Push delivers a server event frame. A client that cannot keep up is closed.
func (c *Client) Push(frame []byte) error {
	if c.closed.Load() {
		return ErrConnClosed
	}

	err := c.writeFrame(frame)
	if errors.Is(err, ErrWriteChannelFull) {
		log.CtxWarn(c.ctx, "slow consumer closed: user_id=%s, conn_id=%s", c.UserId, c.ConnId)
		_ = c.Close()
	}
	return err
}

// Close closes the client connection
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return nil
	}

	c.closed.Store(true)
	c.cancel()
	return c.conn.Close()
}

// close handles cleanup when connection is closed
func (c *Client) close() {
	_ = c.Close()
	c.server.UnregisterClient(c)
}

// IsClosed returns whether the client is closed
func (c *Client) IsClosed() bool {
	return c.closed.Load()
}
