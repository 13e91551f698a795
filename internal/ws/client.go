package ws

import (
	"bytes"
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rchat/internal/event"
	"github.com/rchat/internal/logger"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 8192
	sendBufSize    = 256
)

// encodeBufs переиспользует буферы JSON-кодирования в writePump.
var encodeBufs = sync.Pool{
	New: func() any { return new(bytes.Buffer) },
}

// Client — одно WebSocket-соединение, привязанное к пользователю на весь
// свой срок жизни. NewClient -> Start -> [readPump, writePump] -> Close -> Wait.
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	send   chan event.Event
	userID string

	// done закрывается в Close; Registry.Push проверяет его без блокировки.
	done   chan struct{}
	cancel context.CancelFunc
	once   sync.Once
	wg     sync.WaitGroup
}

func NewClient(hub *Hub, conn *websocket.Conn, userID string) *Client {
	return &Client{
		hub:    hub,
		conn:   conn,
		send:   make(chan event.Event, sendBufSize),
		userID: userID,
		done:   make(chan struct{}),
	}
}

// UserID returns the identity this connection is bound to.
func (c *Client) UserID() string { return c.userID }

// Start запускает обе помпы; cancel сохраняется для Close.
func (c *Client) Start(ctx context.Context, cancel context.CancelFunc) {
	c.cancel = cancel
	c.wg.Add(2)
	go c.writePump(ctx)
	go c.readPump(ctx)
}

// Wait блокируется до выхода обеих помп.
func (c *Client) Wait() {
	c.wg.Wait()
}

// Close останавливает клиента. Безопасен для повторных вызовов из любой
// горутины: закрытие conn выбивает обе помпы из блокирующих вызовов.
func (c *Client) Close() {
	c.once.Do(func() {
		if c.cancel != nil {
			c.cancel()
		}
		close(c.done)
		if c.conn != nil {
			c.conn.Close()
		}
	})
}

func (c *Client) readPump(ctx context.Context) {
	defer c.wg.Done()
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	if err := c.resetReadDeadline(); err != nil {
		logger.Errorf("ws read deadline user=%s: %v", c.userID, err)
		return
	}
	c.conn.SetPongHandler(func(string) error { return c.resetReadDeadline() })

	for ctx.Err() == nil {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Errorf("ws read user=%s: %v", c.userID, err)
			}
			return
		}
		c.hub.HandleEvent(ctx, c, raw)
	}
}

func (c *Client) resetReadDeadline() error {
	return c.conn.SetReadDeadline(time.Now().Add(pongWait))
}

func (c *Client) writePump(ctx context.Context) {
	defer c.wg.Done()
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			deadline := time.Now().Add(writeWait)
			if err := c.conn.WriteControl(websocket.CloseMessage, nil, deadline); err != nil {
				logger.Debugf("ws close frame user=%s: %v", c.userID, err)
			}
			return
		case ev := <-c.send:
			if err := c.writeEvent(ev); err != nil {
				return
			}
		case <-ticker.C:
			deadline := time.Now().Add(writeWait)
			if err := c.conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				return
			}
		}
	}
}

func (c *Client) writeEvent(ev event.Event) error {
	buf := encodeBufs.Get().(*bytes.Buffer)
	defer encodeBufs.Put(buf)
	buf.Reset()

	if err := json.NewEncoder(buf).Encode(ev); err != nil {
		// Не сетевой сбой: логируем и живём дальше.
		logger.Errorf("ws encode user=%s: %v", c.userID, err)
		return nil
	}
	// json.Encoder дописывает '\n'; в текстовом фрейме он не нужен.
	data := bytes.TrimRight(buf.Bytes(), "\n")

	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.conn.WriteMessage(websocket.TextMessage, data)
}
