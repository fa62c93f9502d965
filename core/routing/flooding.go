package routing

import (
	"sync"
	"time"

	"github.com/lsrlab/meshrouter/core/clock"
	"github.com/lsrlab/meshrouter/core/packet"
)

// DefaultFloodHelloInterval is how often the flooding strategy emits a
// HELLO packet (spec §4.3).
const DefaultFloodHelloInterval = 5 * time.Second

// FloodingConfig configures a Flooding strategy.
type FloodingConfig struct {
	SelfID        string
	Clock         *clock.Clock
	HelloInterval time.Duration // default DefaultFloodHelloInterval
}

// Flooding implements Strategy by forwarding every packet not addressed to
// itself to all neighbors except the one it arrived on (spec §4.3). It
// holds no routing state beyond the HELLO timer — duplicate suppression and
// TTL enforcement are the orchestrator's responsibility (spec §4.5), and
// this strategy only decides consume-vs-flood.
type Flooding struct {
	cfg FloodingConfig

	mu        sync.Mutex
	lastHello time.Time
}

var (
	_ Strategy    = (*Flooding)(nil)
	_ HelloSender = (*Flooding)(nil)
)

// NewFlooding creates a Flooding strategy.
func NewFlooding(cfg FloodingConfig) *Flooding {
	if cfg.HelloInterval <= 0 {
		cfg.HelloInterval = DefaultFloodHelloInterval
	}
	return &Flooding{cfg: cfg}
}

// Name returns "flooding".
func (f *Flooding) Name() string { return "flooding" }

// UpdateNeighbor is a no-op: the flooding strategy carries no neighbor
// state beyond what the orchestrator's transport already knows (spec §4.3).
func (f *Flooding) UpdateNeighbor(string, NeighborInfo) {}

// ProcessPacket consumes packets addressed to this node of a deliverable
// type, and floods everything else.
func (f *Flooding) ProcessPacket(pkt *packet.Packet, _ string) Action {
	if pkt.To == f.cfg.SelfID && isDeliverable(pkt.Type) {
		return NoopAction
	}
	return Action{Kind: Flood}
}

func isDeliverable(t string) bool {
	switch t {
	case packet.TypeMessage, packet.TypeEcho, packet.TypeEchoReply:
		return true
	default:
		return false
	}
}

// GetNextHop is unused by flooding; it never has a forwarding table.
func (f *Flooding) GetNextHop(string) (string, bool) { return "", false }

// ShouldSendHello reports whether HELLO_INTERVAL has elapsed since the last
// HELLO send.
func (f *Flooding) ShouldSendHello() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cfg.Clock.Since(f.lastHello) >= f.cfg.HelloInterval
}

// CreateHelloPacket builds a HELLO broadcast with TTL 1 (HELLO never
// transits, per spec §4.3).
func (f *Flooding) CreateHelloPacket() *packet.Packet {
	f.mu.Lock()
	now := f.cfg.Clock.Now()
	f.lastHello = now
	f.mu.Unlock()

	pkt := &packet.Packet{
		Proto: packet.ProtoFlooding,
		Type:  packet.TypeHello,
		From:  f.cfg.SelfID,
		To:    packet.BroadcastAddr,
		TTL:   1,
		Headers: map[string]any{
			packet.HeaderTS:   now.Unix(),
			packet.HeaderPath: []string{},
		},
	}
	pkt.EnsureMsgID()
	return pkt
}
