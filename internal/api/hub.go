package api

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"auctionchess/internal/lobby"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBuffer     = 64
)

var (
	errClientClosed = errors.New("client connection closed")
	errSendFull     = errors.New("client send buffer full")
)

// Hub tracks open WebSocket connections so they can be closed on shutdown
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]struct{}
}

func NewHub() *Hub {
	return &Hub{
		clients: make(map[*Client]struct{}),
	}
}

func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	h.clients[client] = struct{}{}
	h.mu.Unlock()
}

func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	delete(h.clients, client)
	h.mu.Unlock()
	client.close()
}

func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// CloseAll drops every connection.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	clients := h.clients
	h.clients = make(map[*Client]struct{})
	h.mu.Unlock()

	for c := range clients {
		c.close()
		c.conn.Close()
	}
}

// Client is one player's WebSocket connection to one lobby. It implements
// lobby.Channel.
type Client struct {
	id       string
	hub      *Hub
	conn     *websocket.Conn
	lobby    lobby.ID
	identity lobby.Identity
	logger   *zap.Logger

	mu     sync.Mutex
	send   chan []byte
	closed bool
}

var _ lobby.Channel = (*Client)(nil)

func newClient(hub *Hub, conn *websocket.Conn, id lobby.ID, identity lobby.Identity, logger *zap.Logger) *Client {
	clientID := uuid.NewString()
	return &Client{
		id:       clientID,
		hub:      hub,
		conn:     conn,
		lobby:    id,
		identity: identity,
		logger: logger.With(
			zap.String("client", clientID),
			zap.String("session", string(id)),
			zap.String("identity", string(identity)),
		),
		send: make(chan []byte, sendBuffer),
	}
}

// Send queues pkt for delivery without blocking.
func (c *Client) Send(pkt lobby.Packet) error {
	data, err := json.Marshal(pkt)
	if err != nil {
		return err
	}
	return c.enqueue(data)
}

func (c *Client) enqueue(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errClientClosed
	}
	select {
	case c.send <- data:
		return nil
	default:
		return errSendFull
	}
}

func (c *Client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

type errorFrame struct {
	Type    string `json:"type"`
	Error   string `json:"error"`
	Message string `json:"message"`
}

func (c *Client) sendError(code, message string) {
	data, err := json.Marshal(errorFrame{Type: "error", Error: code, Message: message})
	if err != nil {
		return
	}
	if err := c.enqueue(data); err != nil {
		c.logger.Debug("error frame dropped", zap.Error(err))
	}
}

func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// ReadPump feeds inbound frames to handle until the connection drops.
func (c *Client) ReadPump(handle func(*Client, []byte)) {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Debug("connection closed", zap.Error(err))
			}
			return
		}
		handle(c, data)
	}
}
