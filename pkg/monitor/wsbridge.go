package monitor

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"mavgo/pkg/framer"
)

// WSBridge serves every packet published on a Hub to any number of browser
// clients over a websocket, one JSON object per text message, grounded on
// the teacher's foxglove.Server client/send/writeLoop shape but stripped
// down to a single untyped feed instead of the foxglove channel/schema
// protocol (out of scope here — this is a plain live viewer, not a
// Foxglove Studio bridge).
type WSBridge struct {
	addr string
	hub  *Hub

	mu      sync.RWMutex
	clients map[*wsClient]struct{}
}

// NewWSBridge constructs a bridge that will serve hub's packet feed at
// addr once Run is called.
func NewWSBridge(addr string, hub *Hub) *WSBridge {
	return &WSBridge{addr: addr, hub: hub, clients: make(map[*wsClient]struct{})}
}

// Run starts the HTTP server and blocks until ctx is cancelled.
func (b *WSBridge) Run(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/", b.handleWS)

	server := &http.Server{Addr: b.addr, Handler: mux}

	sub := b.hub.Subscribe()
	defer b.hub.Unsubscribe(sub)
	go b.broadcastLoop(ctx, sub)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(*http.Request) bool { return true },
}

func (b *WSBridge) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	c := newWSClient(conn)
	b.addClient(c)
	go c.writeLoop()
	c.readLoop()

	c.close()
	b.removeClient(c)
}

func (b *WSBridge) broadcastLoop(ctx context.Context, sub <-chan framer.Packet) {
	for {
		select {
		case <-ctx.Done():
			return
		case pkt, ok := <-sub:
			if !ok {
				return
			}
			b.broadcast(pkt)
		}
	}
}

func (b *WSBridge) broadcast(pkt framer.Packet) {
	payload, err := json.Marshal(struct {
		Message string         `json:"message"`
		ID      uint32         `json:"id"`
		Content map[string]any `json:"content"`
	}{Message: pkt.Message.Name, ID: pkt.Message.ID, Content: pkt.Content})
	if err != nil {
		return
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for c := range b.clients {
		c.trySend(payload)
	}
}

func (b *WSBridge) addClient(c *wsClient) {
	b.mu.Lock()
	b.clients[c] = struct{}{}
	b.mu.Unlock()
}

func (b *WSBridge) removeClient(c *wsClient) {
	b.mu.Lock()
	delete(b.clients, c)
	b.mu.Unlock()
}

type wsClient struct {
	conn *websocket.Conn
	send chan []byte
	once sync.Once
}

func newWSClient(conn *websocket.Conn) *wsClient {
	return &wsClient{conn: conn, send: make(chan []byte, 64)}
}

func (c *wsClient) readLoop() {
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *wsClient) writeLoop() {
	for msg := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			c.close()
			return
		}
	}
}

func (c *wsClient) trySend(msg []byte) {
	defer func() { _ = recover() }()
	select {
	case c.send <- msg:
	default:
	}
}

func (c *wsClient) close() {
	c.once.Do(func() {
		close(c.send)
		_ = c.conn.Close()
	})
}
