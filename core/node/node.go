// Package node provides the orchestrator that owns one routing strategy,
// one transport, the router-level message-id dedup set, a receive loop,
// and a periodic tick loop. It is the "device/router" of this system:
// it decodes frames, asks the strategy what to do, and executes the
// answer against the transport — the strategy itself never touches I/O.
package node

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/lsrlab/meshrouter/core/clock"
	"github.com/lsrlab/meshrouter/core/packet"
	"github.com/lsrlab/meshrouter/core/routing"
	"github.com/lsrlab/meshrouter/core/seenset"
	"github.com/lsrlab/meshrouter/transport"
)

// DefaultMessageTTL is the originate TTL used by Send and Echo (spec §4.5).
const (
	DefaultMessageTTL = 5

	// DefaultSeenSetCapacity bounds the router-level msg_id dedup set.
	DefaultSeenSetCapacity = 50_000

	// DefaultTickInterval is the recommended tick cadence (spec §4.5).
	DefaultTickInterval = 750 * time.Millisecond

	// DefaultShutdownGrace is how long Run waits for its loops to exit
	// after a stop signal.
	DefaultShutdownGrace = 2 * time.Second
)

// Config configures a Node.
type Config struct {
	SelfID    string
	Strategy  routing.Strategy
	Transport transport.Transport
	Clock     *clock.Clock
	Logger    *slog.Logger

	SeenSetCapacity int
	TickInterval    time.Duration

	// FloodOnNoRoute lets an operator opt a unicast send into falling back
	// to a flood broadcast when the strategy has no forwarding entry for
	// the destination (spec §4.5, §7 NoRoute policy).
	FloodOnNoRoute bool

	// Delivered receives packets consumed by this node (addressed here
	// and of a deliverable type). Optional.
	Delivered func(pkt *packet.Packet)
}

// Node is the per-instance orchestrator described in spec §4.5.
type Node struct {
	cfg   Config
	log   *slog.Logger
	clock *clock.Clock

	seen *seenset.Set[string]

	wg       sync.WaitGroup
	cancel   context.CancelFunc
	stopOnce sync.Once
}

// New creates a Node. Panics if SelfID, Strategy, or Transport is unset.
func New(cfg Config) *Node {
	if cfg.SelfID == "" {
		panic("node: SelfID is required")
	}
	if cfg.Strategy == nil {
		panic("node: Strategy is required")
	}
	if cfg.Transport == nil {
		panic("node: Transport is required")
	}
	if cfg.SeenSetCapacity <= 0 {
		cfg.SeenSetCapacity = DefaultSeenSetCapacity
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = DefaultTickInterval
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Node{
		cfg:   cfg,
		log:   logger.WithGroup("node").With("self_id", cfg.SelfID),
		clock: cfg.Clock,
		seen:  seenset.New[string](cfg.SeenSetCapacity),
	}
}

// Run starts the receive loop and the periodic tick loop, blocking until
// ctx is canceled or Stop is called. It returns once both loops have
// exited, or once DefaultShutdownGrace elapses after a stop signal,
// whichever comes first.
func (n *Node) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	n.cancel = cancel

	n.wg.Add(2)
	go n.receiveLoop(ctx)
	go n.tickLoop(ctx)

	<-ctx.Done()

	done := make(chan struct{})
	go func() {
		n.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(DefaultShutdownGrace):
		n.log.Warn("shutdown grace period elapsed with loops still running")
	}
}

// Stop signals Run to exit and closes the transport, unblocking any
// in-flight Receive. Idempotent.
func (n *Node) Stop() {
	n.stopOnce.Do(func() {
		if n.cancel != nil {
			n.cancel()
		}
		n.cfg.Transport.Close()
	})
}

func (n *Node) receiveLoop(ctx context.Context) {
	defer n.wg.Done()
	for {
		frame, fromNeighbor, err := n.cfg.Transport.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, transport.ErrClosed) {
				return
			}
			n.log.Warn("transport receive failed", "error", err)
			continue
		}
		n.handleFrame(ctx, frame, fromNeighbor)
	}
}

// handleFrame implements the inbound-frame contract of spec §4.5.
func (n *Node) handleFrame(ctx context.Context, frame []byte, fromNeighbor string) {
	pkt, err := packet.Decode(frame)
	if err != nil {
		n.log.Debug("dropping malformed packet", "error", err)
		return
	}

	pkt.EnsureMsgID()
	if !n.seen.Insert(pkt.MsgID()) {
		return // duplicate
	}

	action := n.cfg.Strategy.ProcessPacket(pkt, fromNeighbor)
	n.dispatchAction(ctx, pkt, action, fromNeighbor)

	if pkt.Type == packet.TypeEcho && pkt.To == n.cfg.SelfID {
		n.sendEchoReply(ctx, pkt)
	}
	if n.cfg.Delivered != nil && pkt.To == n.cfg.SelfID && action == routing.NoopAction {
		n.cfg.Delivered(pkt)
	}
}

func (n *Node) dispatchAction(ctx context.Context, pkt *packet.Packet, action routing.Action, fromNeighbor string) {
	switch action.Kind {
	case routing.None:
		return
	case routing.Flood, routing.FloodLSA:
		fwd := pkt.DecrementTTL()
		if fwd.TTL <= 0 {
			return
		}
		n.broadcastExcept(ctx, fwd, fromNeighbor)
	case routing.Unicast:
		fwd := pkt.DecrementTTL()
		if fwd.TTL <= 0 {
			return
		}
		n.sendUnicast(ctx, action.NextHop, fwd)
	}
}

// broadcastExcept forwards pkt with a full SendBroadcast, so the neighbor it
// arrived on (fromNeighbor) receives a copy too; that neighbor drops the
// copy as a duplicate via its seen-set. fromNeighbor is not used to exclude
// any link.
func (n *Node) broadcastExcept(ctx context.Context, pkt *packet.Packet, fromNeighbor string) {
	data, err := pkt.Encode()
	if err != nil {
		n.log.Error("failed to encode packet for forwarding", "error", err)
		return
	}
	if err := n.cfg.Transport.SendBroadcast(ctx, data); err != nil {
		n.log.Warn("broadcast send failed", "error", err)
	}
}

func (n *Node) sendUnicast(ctx context.Context, neighborID string, pkt *packet.Packet) {
	data, err := pkt.Encode()
	if err != nil {
		n.log.Error("failed to encode packet for unicast", "error", err)
		return
	}
	if err := n.cfg.Transport.SendUnicast(ctx, neighborID, data); err != nil {
		n.log.Warn("unicast send failed", "neighbor", neighborID, "error", err)
	}
}

func (n *Node) sendEchoReply(ctx context.Context, echo *packet.Packet) {
	reply := &packet.Packet{
		Proto:   echo.Proto,
		Type:    packet.TypeEchoReply,
		From:    n.cfg.SelfID,
		To:      echo.From,
		TTL:     DefaultMessageTTL,
		Payload: echo.Payload,
	}
	reply.EnsureMsgID()
	n.originate(ctx, reply)
}

func (n *Node) tickLoop(ctx context.Context) {
	defer n.wg.Done()
	ticker := time.NewTicker(n.cfg.TickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n.tick(ctx)
		}
	}
}

func (n *Node) tick(ctx context.Context) {
	if m, ok := n.cfg.Strategy.(routing.Maintainer); ok {
		m.CheckNeighborTimeouts()
		m.AgeLSADatabase()
	}
	if hs, ok := n.cfg.Strategy.(routing.HelloSender); ok && hs.ShouldSendHello() {
		pkt := hs.CreateHelloPacket()
		n.selfInsertAndBroadcast(ctx, pkt)
	}
	if ls, ok := n.cfg.Strategy.(routing.LSASender); ok && ls.ShouldSendLSA() {
		pkt := ls.CreateLSAPacket()
		n.selfInsertAndBroadcast(ctx, pkt)
	}
}

// selfInsertAndBroadcast marks a self-originated control packet seen
// (matching the echoed-copy suppression the strategy already performs on
// the algorithm side) and sends it without going through the flood path.
func (n *Node) selfInsertAndBroadcast(ctx context.Context, pkt *packet.Packet) {
	n.seen.Insert(pkt.MsgID())
	data, err := pkt.Encode()
	if err != nil {
		n.log.Error("failed to encode outbound control packet", "error", err)
		return
	}
	if err := n.cfg.Transport.SendBroadcast(ctx, data); err != nil {
		n.log.Warn("control broadcast failed", "error", err)
	}
}

// originate sends a packet this node authored (not received), applying
// msg_id assignment and dedup self-insertion before transmission. The send
// primitive decrements TTL exactly once here, matching the one-decrement
// applied to a forwarded packet in dispatchAction (spec §2).
func (n *Node) originate(ctx context.Context, pkt *packet.Packet) {
	pkt.EnsureMsgID()
	n.seen.Insert(pkt.MsgID())

	pkt = pkt.DecrementTTL()
	if pkt.TTL <= 0 {
		n.log.Debug("dropping originated packet with no ttl left", "to", pkt.To)
		return
	}

	if pkt.To != packet.BroadcastAddr {
		if nh, ok := n.cfg.Strategy.GetNextHop(pkt.To); ok {
			n.sendUnicast(ctx, nh, pkt)
			return
		}
		// A strategy with no routing state (flooding) never has a route to
		// miss: it always broadcasts. Only an Inspectable strategy (LSR)
		// with a genuine no-route miss is gated behind the operator opt-in
		// (spec §4.5: "if no route (LSR) or when using flooding, it
		// broadcasts the packet instead").
		if _, hasRoutingState := n.cfg.Strategy.(routing.Inspectable); hasRoutingState && !n.cfg.FloodOnNoRoute {
			n.log.Debug("dropping originated packet with no route", "to", pkt.To)
			return
		}
	}
	n.selfInsertAndBroadcast(ctx, pkt)
}

// Send originates a message packet to dst with the given payload.
func (n *Node) Send(ctx context.Context, dst, payload string) {
	pkt := &packet.Packet{
		Proto:   n.cfg.Strategy.Name(),
		Type:    packet.TypeMessage,
		From:    n.cfg.SelfID,
		To:      dst,
		TTL:     DefaultMessageTTL,
		Payload: payload,
	}
	n.originate(ctx, pkt)
}

// Echo originates an echo request to dst; the orchestrator at dst answers
// with an echo_reply (spec §4.3).
func (n *Node) Echo(ctx context.Context, dst string) {
	pkt := &packet.Packet{
		Proto: n.cfg.Strategy.Name(),
		Type:  packet.TypeEcho,
		From:  n.cfg.SelfID,
		To:    dst,
		TTL:   DefaultMessageTTL,
	}
	n.originate(ctx, pkt)
}

// GetNextHop exposes the forwarding-table lookup for callers that want a
// single answer rather than the whole table.
func (n *Node) GetNextHop(dst string) (string, bool) {
	return n.cfg.Strategy.GetNextHop(dst)
}

// Neighbors, RoutingTable, and LSDBSize expose read-only views for the CLI
// surface (spec §6). They are grounded on the optional Inspectable
// capability; a strategy without routing state (e.g. flooding) reports
// empty results rather than panicking.
func (n *Node) Neighbors() map[string]routing.NeighborState {
	if ins, ok := n.cfg.Strategy.(routing.Inspectable); ok {
		return ins.Neighbors()
	}
	return map[string]routing.NeighborState{}
}

func (n *Node) RoutingTable() map[string]string {
	if ins, ok := n.cfg.Strategy.(routing.Inspectable); ok {
		return ins.RoutingTable()
	}
	return map[string]string{}
}

func (n *Node) LSDBSize() int {
	if ins, ok := n.cfg.Strategy.(routing.Inspectable); ok {
		return ins.LSDBSize()
	}
	return 0
}

// StrategyName reports which routing strategy this node runs ("flooding"
// or "lsr").
func (n *Node) StrategyName() string {
	return n.cfg.Strategy.Name()
}
