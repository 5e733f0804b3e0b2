package gateway

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/fractalmind-ai/translatebot/pkg/protocol"
)

const (
	readLimit  = 64 << 10
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

// Client represents a connected WebSocket client
type Client struct {
	ID         string
	Conn       *websocket.Conn
	Server     *Server
	sendLock   sync.Mutex
	closeChan  chan struct{}
	closeOnce  sync.Once
	subscribed atomic.Bool
}

// NewClient creates a new client
func NewClient(id string, conn *websocket.Conn, server *Server) *Client {
	return &Client{
		ID:        id,
		Conn:      conn,
		Server:    server,
		closeChan: make(chan struct{}),
	}
}

// Subscribed reports whether the client asked for pipeline events.
func (c *Client) Subscribed() bool {
	return c.subscribed.Load()
}

// Handle processes incoming messages from client
func (c *Client) Handle() {
	defer c.Close()
	go c.pingLoop()

	for {
		var msg protocol.Message
		if err := c.Conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.Server.logger.Warn().Err(err).Str("client", c.ID).Msg("websocket error")
			}
			return
		}
		c.ProcessMessage(&msg)
	}
}

func (c *Client) pingLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-c.closeChan:
			return
		case <-ticker.C:
			c.sendLock.Lock()
			err := c.Conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
			c.sendLock.Unlock()
			if err != nil {
				c.Close()
				return
			}
		}
	}
}

// ProcessMessage handles incoming message based on type
func (c *Client) ProcessMessage(msg *protocol.Message) {
	if msg == nil {
		return
	}

	var resp protocol.Message
	switch msg.Kind {
	case protocol.MessageKindEvent:
		resp = c.handleEventMessage(msg)
	case protocol.MessageKindStatus:
		resp = protocol.Message{Kind: protocol.MessageKindStatus, Data: c.Server.status(context.Background())}
	case protocol.MessageKindChannel:
		var list []protocol.ChannelInfo
		if c.Server.deps.Channels != nil {
			list = c.Server.deps.Channels.List()
		}
		resp = protocol.Message{Kind: protocol.MessageKindChannel, Data: list}
	default:
		resp = protocol.Message{Kind: msg.Kind, Error: fmt.Sprintf("unknown message kind: %s", msg.Kind)}
	}

	if err := c.Send(&resp); err != nil {
		c.Server.logger.Warn().Err(err).Str("client", c.ID).Msg("websocket send failed")
	}
}

// handleEventMessage processes event messages.
func (c *Client) handleEventMessage(msg *protocol.Message) protocol.Message {
	switch msg.Action {
	case protocol.ActionEcho:
		return protocol.Message{
			Kind:   protocol.MessageKindEvent,
			Action: protocol.ActionEcho,
			Data:   msg.Data,
		}
	case protocol.ActionSubscribe:
		c.subscribed.Store(true)
		return protocol.Message{
			Kind:   protocol.MessageKindEvent,
			Action: protocol.ActionSubscribe,
			Data:   map[string]string{"client": c.ID},
		}
	default:
		return protocol.Message{
			Kind:   protocol.MessageKindEvent,
			Action: msg.Action,
			Error:  fmt.Sprintf("unknown event action: %s", msg.Action),
		}
	}
}

// Send sends a message to client
func (c *Client) Send(msg *protocol.Message) error {
	c.sendLock.Lock()
	defer c.sendLock.Unlock()

	_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.Conn.WriteJSON(msg)
}

// Close closes the client connection
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.closeChan)
		_ = c.Conn.Close()
		c.Server.removeClient(c)
		c.Server.logger.Info().Str("client", c.ID).Msg("🔌 Client disconnected")
	})
}
