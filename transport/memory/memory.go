// Package memory provides an in-process Transport backed by Go channels,
// used by tests and by single-process lab setups that co-host several
// nodes without a real substrate.
package memory

import (
	"context"
	"sync"

	"github.com/lsrlab/meshrouter/transport"
)

type frame struct {
	data []byte
	from string
}

// Hub wires together a set of in-process Transports that can reach each
// other by neighbor id, the way a pub/sub broker or a shared Ethernet
// segment would in a real deployment.
type Hub struct {
	mu    sync.Mutex
	nodes map[string]*Transport
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{nodes: make(map[string]*Transport)}
}

// Join registers id on the hub and returns its Transport. Calling Join
// twice with the same id replaces the prior registration.
func (h *Hub) Join(id string) *Transport {
	t := &Transport{
		hub:    h,
		selfID: id,
		inbox:  make(chan frame, 256),
		closed: make(chan struct{}),
	}
	h.mu.Lock()
	h.nodes[id] = t
	h.mu.Unlock()
	return t
}

func (h *Hub) leave(id string, t *Transport) {
	h.mu.Lock()
	if h.nodes[id] == t {
		delete(h.nodes, id)
	}
	h.mu.Unlock()
}

func (h *Hub) deliver(to, from string, data []byte) {
	h.mu.Lock()
	target, ok := h.nodes[to]
	h.mu.Unlock()
	if !ok {
		return
	}
	select {
	case target.inbox <- frame{data: append([]byte(nil), data...), from: from}:
	case <-target.closed:
	}
}

func (h *Hub) broadcast(from string, data []byte) {
	h.mu.Lock()
	targets := make([]*Transport, 0, len(h.nodes))
	for id, t := range h.nodes {
		if id == from {
			continue
		}
		targets = append(targets, t)
	}
	h.mu.Unlock()
	for _, t := range targets {
		select {
		case t.inbox <- frame{data: append([]byte(nil), data...), from: from}:
		case <-t.closed:
		}
	}
}

// Transport is a Hub-backed member transport.
type Transport struct {
	hub    *Hub
	selfID string

	inbox     chan frame
	closeOnce sync.Once
	closed    chan struct{}
}

var _ transport.Transport = (*Transport)(nil)

// SendUnicast delivers frame directly to neighborID's inbox.
func (t *Transport) SendUnicast(ctx context.Context, neighborID string, data []byte) error {
	select {
	case <-t.closed:
		return transport.ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	t.hub.deliver(neighborID, t.selfID, data)
	return nil
}

// SendBroadcast fans frame out to every other member of the hub.
func (t *Transport) SendBroadcast(ctx context.Context, data []byte) error {
	select {
	case <-t.closed:
		return transport.ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	t.hub.broadcast(t.selfID, data)
	return nil
}

// Receive blocks until a frame is delivered, ctx is canceled, or Close is
// called.
func (t *Transport) Receive(ctx context.Context) ([]byte, string, error) {
	select {
	case f := <-t.inbox:
		return f.data, f.from, nil
	case <-t.closed:
		return nil, "", transport.ErrClosed
	case <-ctx.Done():
		return nil, "", ctx.Err()
	}
}

// Close removes this transport from the hub and unblocks any pending
// Receive call. Idempotent.
func (t *Transport) Close() error {
	t.closeOnce.Do(func() {
		close(t.closed)
		t.hub.leave(t.selfID, t)
	})
	return nil
}
