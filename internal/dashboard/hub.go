// Package dashboard implements the fan-out bridge from the event bus to browser
// dashboard WebSocket clients (component F).
package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"csms-gateway/internal/eventbus"
)

const (
	writeWait  = 5 * time.Second
	pongWait   = 30 * time.Second
	pingPeriod = 20 * time.Second
)

// Frame is the JSON envelope pushed to every connected dashboard on each bus event.
type Frame struct {
	Event         string `json:"event"`
	ChargePointID string `json:"charge_point_id"`
	OCPPVersion   string `json:"ocpp_version"`
	Payload       any    `json:"payload"`
}

// Hub tracks connected dashboard clients and fans out frames to all of them.
//
// Slow clients are disconnected rather than retried: a dashboard that can't keep up
// with the event stream is dropped (fail-fast, see SPEC_FULL.md §9).
type Hub struct {
	logger *slog.Logger

	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client

	mu      sync.Mutex
	clients map[*Client]struct{}

	sendBuf int
}

// Config tunes the hub's internal buffer sizes.
type Config struct {
	SendBuf      int
	BroadcastBuf int
}

// NewHub constructs a hub. Call Run(ctx) to start it.
func NewHub(logger *slog.Logger, cfg Config) *Hub {
	sendBuf := cfg.SendBuf
	if sendBuf <= 0 {
		sendBuf = 32
	}
	bcastBuf := cfg.BroadcastBuf
	if bcastBuf <= 0 {
		bcastBuf = 128
	}
	return &Hub{
		logger:     logger,
		broadcast:  make(chan []byte, bcastBuf),
		register:   make(chan *Client, 64),
		unregister: make(chan *Client, 64),
		clients:    make(map[*Client]struct{}),
		sendBuf:    sendBuf,
	}
}

// Run processes hub events until ctx is canceled, disconnecting all clients on shutdown.
func (h *Hub) Run(ctx context.Context) {
	h.logger.Info("dashboard hub starting")
	for {
		select {
		case <-ctx.Done():
			h.logger.Info("dashboard hub stopping")
			h.closeAllClients()
			return

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = struct{}{}
			n := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("dashboard client registered", "remote_addr", c.remoteAddr, "clients", n)

		case c := <-h.unregister:
			h.removeClient(c, "unregister")

		case msg := <-h.broadcast:
			var slow []*Client
			h.mu.Lock()
			for c := range h.clients {
				select {
				case c.send <- msg:
				default:
					slow = append(slow, c)
				}
			}
			h.mu.Unlock()
			for _, c := range slow {
				h.removeClient(c, "slow_client")
			}
		}
	}
}

// ClientCount returns the number of currently registered dashboard clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Hub) closeAllClients() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		if c.conn != nil {
			_ = c.conn.Close()
		}
		safeCloseChan(c.send)
		delete(h.clients, c)
	}
}

func (h *Hub) removeClient(c *Client, reason string) {
	h.mu.Lock()
	_, ok := h.clients[c]
	if ok {
		delete(h.clients, c)
	}
	n := len(h.clients)
	h.mu.Unlock()

	if ok {
		if c.conn != nil {
			_ = c.conn.Close()
		}
		safeCloseChan(c.send)
		h.logger.Info("dashboard client disconnected", "remote_addr", c.remoteAddr, "reason", reason, "clients", n)
	}
}

func safeCloseChan(ch chan []byte) {
	defer func() { _ = recover() }()
	close(ch)
}

// broadcastBytes enqueues a pre-serialized JSON frame. Never blocks; drops on a full queue.
func (h *Hub) broadcastBytes(msg []byte) {
	select {
	case h.broadcast <- msg:
	default:
		h.logger.Warn("dashboard hub broadcast queue full, dropping frame", "bytes", len(msg))
	}
}

// Client is one connected dashboard WebSocket.
type Client struct {
	hub *Hub

	conn *websocket.Conn
	send chan []byte

	remoteAddr string
	logger     *slog.Logger
}

func newClient(hub *Hub, conn *websocket.Conn, remoteAddr string, logger *slog.Logger) *Client {
	sendBuf := 32
	if hub != nil && hub.sendBuf > 0 {
		sendBuf = hub.sendBuf
	}
	return &Client{
		hub:        hub,
		conn:       conn,
		send:       make(chan []byte, sendBuf),
		remoteAddr: remoteAddr,
		logger:     logger,
	}
}

func closeStatus(err error) (code int, text string, ok bool) {
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		return ce.Code, ce.Text, true
	}
	return 0, "", false
}

func (c *Client) writePump(ctx context.Context) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				if !errors.Is(err, websocket.ErrCloseSent) {
					if code, text, ok := closeStatus(err); ok {
						c.logger.Info("dashboard writePump exiting (close)", "remote_addr", c.remoteAddr, "code", code, "reason", text)
					} else {
						c.logger.Info("dashboard writePump exiting (write error)", "remote_addr", c.remoteAddr, "error", err)
					}
				}
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

// readPump consumes and discards client frames (kept-open channel per SPEC_FULL.md §6).
func (c *Client) readPump(ctx context.Context) {
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if c.hub != nil {
				c.hub.unregister <- c
			}
			return
		}
	}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Handler returns the HTTP handler for the "/frontend" dashboard WebSocket endpoint.
func (h *Hub) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			h.logger.Warn("dashboard upgrade failed", "error", err)
			return
		}
		client := newClient(h, conn, r.RemoteAddr, h.logger)
		h.register <- client
		go client.writePump(context.Background())
		go client.readPump(context.Background())
	}
}

// Bridge subscribes the hub to every bus topic and fans each event out as a Frame.
func Bridge(bus *eventbus.Bus, hub *Hub, logger *slog.Logger) {
	for _, topic := range eventbus.Topics {
		topic := topic
		bus.Subscribe(topic, func(ctx context.Context, ev eventbus.Event) {
			frame := Frame{
				Event:         ev.Topic,
				ChargePointID: ev.ChargePointID,
				OCPPVersion:   ev.OCPPVersion,
				Payload:       ev.Payload,
			}
			msg, err := json.Marshal(frame)
			if err != nil {
				logger.Warn("dashboard marshal failed", "topic", topic, "error", err)
				return
			}
			hub.broadcastBytes(msg)
		})
	}
}
