// Package transport defines the capability the node orchestrator consumes
// to exchange raw frames with neighbors, and the implementations of it
// (in-process channels, MQTT, and framed streams over serial or TCP).
package transport

import (
	"context"
	"errors"
)

// UnknownNeighbor is returned by Receive as the from-label when the
// substrate cannot identify the sending link (spec §6).
const UnknownNeighbor = "unknown"

// ErrClosed is returned by Receive once Close has been called.
var ErrClosed = errors.New("transport: closed")

// Transport is the capability the orchestrator consumes. Unlike a
// push-callback packet stack, the node pulls frames one at a time from
// Receive, blocking until one arrives or ctx is canceled — this matches
// the "receive loop blocking on transport" scheduling model of spec §5.
type Transport interface {
	// SendUnicast best-effort delivers a frame to a single named neighbor.
	SendUnicast(ctx context.Context, neighborID string, frame []byte) error
	// SendBroadcast best-effort fans a frame out to every known neighbor.
	SendBroadcast(ctx context.Context, frame []byte) error
	// Receive blocks until a frame arrives, ctx is canceled, or the
	// transport is closed. fromNeighbor is UnknownNeighbor when the
	// substrate cannot attribute the frame to a specific link.
	Receive(ctx context.Context) (frame []byte, fromNeighbor string, err error)
	// Close is idempotent; it unblocks any in-flight Receive with ErrClosed.
	Close() error
}

// StateHandler is called when a transport's connectivity changes. Not all
// transports fire it — in-process transports have no connection state.
type StateHandler func(event Event)

// Event represents transport connectivity changes.
type Event int

const (
	EventConnected Event = iota
	EventDisconnected
	EventReconnecting
	EventError
)

func (e Event) String() string {
	switch e {
	case EventConnected:
		return "connected"
	case EventDisconnected:
		return "disconnected"
	case EventReconnecting:
		return "reconnecting"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}
