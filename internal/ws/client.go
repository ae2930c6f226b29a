package ws

import (
	"encoding/json"
	"errors"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"messaging-service/internal/models"
)

var (
	writeWait      = 10 * time.Second    // time allowed to write a frame to the peer
	pongWait       = 60 * time.Second    // time allowed to read the next pong from the peer
	pingInterval   = (pongWait * 9) / 10 // send pings to peer with this period
	maxMessageSize = int64(64 * 1024)
	sendBufSize    = 256
)

// Client is a gorilla websocket connection bound to one authenticated user.
type Client struct {
	id     string
	info   ConnInfo
	conn   *websocket.Conn
	egress chan models.ChatEvent
	done   chan struct{}
	once   sync.Once
	logger *zap.Logger
}

// NewClient wraps an upgraded connection. The caller starts the pumps.
func NewClient(conn *websocket.Conn, info ConnInfo, logger *zap.Logger) *Client {
	if info.ConnID == "" {
		info.ConnID = uuid.New().String()
	}
	return &Client{
		id:     info.ConnID,
		info:   info,
		conn:   conn,
		egress: make(chan models.ChatEvent, sendBufSize),
		done:   make(chan struct{}),
		logger: logger.With(zap.String("conn_id", info.ConnID), zap.Int64("user_id", info.UserID)),
	}
}

func (c *Client) ID() string { return c.id }

func (c *Client) UserID() int64 { return c.info.UserID }

// Send queues an event without blocking. A full buffer drops the event.
func (c *Client) Send(event models.ChatEvent) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.egress <- event:
		return true
	case <-c.done:
		return false
	default:
		c.logger.Warn("egress full, dropping event", zap.String("event", event.Type))
		return false
	}
}

// Close stops the pumps and closes the socket. Safe to call more than once.
func (c *Client) Close() {
	c.once.Do(func() {
		close(c.done)
		_ = c.conn.Close()
	})
}

// ReadPump decodes inbound frames and hands them to dispatch until the peer
// goes away. It returns the reason the connection ended.
func (c *Client) ReadPump(dispatch func(models.ClientEnvelope)) string {
	defer c.Close()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return c.readErrorReason(err)
		}

		var envelope models.ClientEnvelope
		if err := json.Unmarshal(data, &envelope); err != nil || envelope.Type == "" {
			c.Send(models.ChatEvent{Type: models.EventError, Data: models.ErrorData{Reason: "malformed frame"}})
			continue
		}
		dispatch(envelope)
	}
}

func (c *Client) readErrorReason(err error) string {
	switch {
	case websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway):
		return ""
	case errors.Is(err, net.ErrClosed):
		return "closed by server"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		c.logger.Info("client timed out")
		return "timeout"
	}
	c.logger.Debug("read error", zap.Error(err))
	return err.Error()
}

// WritePump serializes queued events to the socket and keeps it alive with pings.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case <-c.done:
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			return
		case event := <-c.egress:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(event); err != nil {
				c.logger.Debug("write failed", zap.Error(err))
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				c.logger.Debug("ping failed", zap.Error(err))
				return
			}
		}
	}
}

var _ Conn = (*Client)(nil)
