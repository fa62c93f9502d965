package streammesh

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"

	"github.com/lsrlab/meshrouter/transport"
)

const readBufSize = 4096

type inbound struct {
	data string
	from string
}

// Transport multiplexes a set of named point-to-point byte-stream links
// (serial ports, TCP connections — anything implementing io.ReadWriteCloser)
// into a single Transport. Every link is attached to a neighbor id up
// front, so received frames always carry a known fromNeighbor, unlike a
// shared pub/sub fabric.
type Transport struct {
	log *slog.Logger

	mu        sync.RWMutex
	links     map[string]*link
	closeOnce sync.Once
	closed    chan struct{}

	inbox chan inbound
}

var _ transport.Transport = (*Transport)(nil)

type link struct {
	neighborID string
	conn       io.ReadWriteCloser
}

// New creates an empty multiplexing transport. Logger falls back to
// slog.Default() if nil.
func New(logger *slog.Logger) *Transport {
	if logger == nil {
		logger = slog.Default()
	}
	return &Transport{
		log:    logger.WithGroup("streammesh"),
		links:  make(map[string]*link),
		closed: make(chan struct{}),
		inbox:  make(chan inbound, 256),
	}
}

// AddLink attaches conn as the point-to-point channel to neighborID and
// starts its read loop. Replacing an existing neighborID closes the prior
// connection.
func (t *Transport) AddLink(neighborID string, conn io.ReadWriteCloser) {
	t.mu.Lock()
	if old, ok := t.links[neighborID]; ok {
		old.conn.Close()
	}
	l := &link{neighborID: neighborID, conn: conn}
	t.links[neighborID] = l
	t.mu.Unlock()

	go t.readLoop(l)
}

// RemoveLink closes and forgets the link to neighborID, if any.
func (t *Transport) RemoveLink(neighborID string) {
	t.mu.Lock()
	l, ok := t.links[neighborID]
	if ok {
		delete(t.links, neighborID)
	}
	t.mu.Unlock()
	if ok {
		l.conn.Close()
	}
}

func (t *Transport) readLoop(l *link) {
	buf := make([]byte, readBufSize)
	var assembly []byte
	for {
		n, err := l.conn.Read(buf)
		if err != nil {
			if errors.Is(err, io.EOF) {
				t.log.Debug("link closed by peer", "neighbor", l.neighborID)
			} else {
				t.log.Warn("link read error", "neighbor", l.neighborID, "error", err)
			}
			// Only forget this link if it has not been replaced by AddLink.
			t.mu.Lock()
			if t.links[l.neighborID] == l {
				delete(t.links, l.neighborID)
			}
			t.mu.Unlock()
			l.conn.Close()
			return
		}
		if n == 0 {
			continue
		}
		assembly = append(assembly, buf[:n]...)
		assembly = t.drainFrames(assembly, l.neighborID)
	}
}

func (t *Transport) drainFrames(data []byte, neighborID string) []byte {
	for len(data) >= minFrameSize {
		payload, remaining, err := decodeFrame(data)
		if err != nil {
			if errors.Is(err, ErrIncompleteFrame) {
				return data
			}
			if idx := findMagic(data[1:]); idx >= 0 {
				data = data[1+idx:]
				continue
			}
			return nil
		}
		data = remaining

		select {
		case t.inbox <- inbound{data: string(payload), from: neighborID}:
		case <-t.closed:
			return nil
		}
	}
	return data
}

// SendUnicast frames and writes data to neighborID's link.
func (t *Transport) SendUnicast(ctx context.Context, neighborID string, data []byte) error {
	t.mu.RLock()
	l, ok := t.links[neighborID]
	t.mu.RUnlock()
	if !ok {
		return errors.New("streammesh: no link to neighbor " + neighborID)
	}
	frame, err := encodeFrame(data)
	if err != nil {
		return err
	}
	_, err = l.conn.Write(frame)
	return err
}

// SendBroadcast frames and writes data to every attached link.
func (t *Transport) SendBroadcast(ctx context.Context, data []byte) error {
	frame, err := encodeFrame(data)
	if err != nil {
		return err
	}
	t.mu.RLock()
	links := make([]*link, 0, len(t.links))
	for _, l := range t.links {
		links = append(links, l)
	}
	t.mu.RUnlock()

	var firstErr error
	for _, l := range links {
		if _, err := l.conn.Write(frame); err != nil && firstErr == nil {
			firstErr = err
			t.log.Warn("failed to write frame", "neighbor", l.neighborID, "error", err)
		}
	}
	return firstErr
}

// Receive blocks until a frame arrives, ctx is canceled, or Close is
// called.
func (t *Transport) Receive(ctx context.Context) ([]byte, string, error) {
	select {
	case in := <-t.inbox:
		return []byte(in.data), in.from, nil
	case <-t.closed:
		return nil, "", transport.ErrClosed
	case <-ctx.Done():
		return nil, "", ctx.Err()
	}
}

// Close closes every attached link and unblocks any pending Receive.
func (t *Transport) Close() error {
	t.closeOnce.Do(func() {
		close(t.closed)
		t.mu.Lock()
		links := t.links
		t.links = make(map[string]*link)
		t.mu.Unlock()
		for _, l := range links {
			l.conn.Close()
		}
	})
	return nil
}
