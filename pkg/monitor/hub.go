// Package monitor is the "external collaborator" tooling layer spec.md
// carves out of core: a broadcast hub, a JSONL packet logger, and a
// websocket live-feed bridge, all built on top of pkg/mavlink rather than
// inside it.
package monitor

import (
	"context"

	"mavgo/pkg/framer"
)

// Hub fans out every decoded packet to any number of subscribers without
// letting a slow consumer block the publisher, adapted from the teacher's
// pkg/engine.Hub (channel-based register/unregister/broadcast) with
// framer.Packet in place of protocol.RatPacket.
type Hub struct {
	broadcast  chan framer.Packet
	register   chan chan framer.Packet
	unregister chan chan framer.Packet
	clients    map[chan framer.Packet]struct{}
	clientBuf  int
}

// Option configures a Hub.
type Option func(*Hub)

// WithBroadcastBuffer sets the buffer size of the hub's internal publish
// channel.
func WithBroadcastBuffer(size int) Option {
	return func(h *Hub) {
		if size > 0 {
			h.broadcast = make(chan framer.Packet, size)
		}
	}
}

// WithClientBuffer sets the default buffer size for subscribers created via
// Subscribe.
func WithClientBuffer(size int) Option {
	return func(h *Hub) {
		if size > 0 {
			h.clientBuf = size
		}
	}
}

// NewHub constructs a Hub with sensible default buffer sizes.
func NewHub(opts ...Option) *Hub {
	h := &Hub{
		broadcast:  make(chan framer.Packet, 256),
		register:   make(chan chan framer.Packet),
		unregister: make(chan chan framer.Packet),
		clients:    make(map[chan framer.Packet]struct{}),
		clientBuf:  100,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Run drives the hub's registration and fan-out loop until ctx is
// cancelled, at which point every subscriber channel is closed.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			for ch := range h.clients {
				close(ch)
			}
			return
		case ch := <-h.register:
			h.clients[ch] = struct{}{}
		case ch := <-h.unregister:
			if _, ok := h.clients[ch]; ok {
				delete(h.clients, ch)
				close(ch)
			}
		case pkt := <-h.broadcast:
			for ch := range h.clients {
				select {
				case ch <- pkt:
				default:
				}
			}
		}
	}
}

// Subscribe returns a new channel of packets, buffered with the hub's
// default client buffer size.
func (h *Hub) Subscribe() chan framer.Packet {
	return h.SubscribeWithBuffer(h.clientBuf)
}

// SubscribeWithBuffer returns a new channel of packets with a specific
// buffer size.
func (h *Hub) SubscribeWithBuffer(size int) chan framer.Packet {
	if size <= 0 {
		size = h.clientBuf
	}
	ch := make(chan framer.Packet, size)
	h.register <- ch
	return ch
}

// Unsubscribe removes and closes a previously subscribed channel.
func (h *Hub) Unsubscribe(ch chan framer.Packet) {
	h.unregister <- ch
}

// Publish enqueues a packet for delivery to every current subscriber. A
// subscriber whose buffer is full misses the packet rather than blocking
// the publisher.
func (h *Hub) Publish(pkt framer.Packet) {
	h.broadcast <- pkt
}
