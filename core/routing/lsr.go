package routing

import (
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lsrlab/meshrouter/core/clock"
	"github.com/lsrlab/meshrouter/core/packet"
	"github.com/lsrlab/meshrouter/core/seenset"
)

// Timer defaults mandated by spec §4.4 for interoperable behavior.
const (
	DefaultHelloInterval      = 5 * time.Second
	DefaultNeighborTimeout    = 20 * time.Second
	DefaultLSAMinInterval     = 8 * time.Second
	DefaultLSARefreshInterval = 30 * time.Second
	DefaultLSAMaxAge          = 90 * time.Second
	DefaultLSASeenCapacity    = 1024
	defaultHelloTTL           = 5
	defaultLSATTL             = 16
)

// NeighborState is the per-direct-neighbor record of spec §3.
type NeighborState struct {
	Cost     int
	LastSeen time.Time
	Alive    bool
}

// LSDBEntry is the per-originator link-state database record of spec §3.
type LSDBEntry struct {
	Seq          int
	Neighbors    map[string]int
	LastReceived time.Time
}

// LSRConfig configures an LSR strategy. Zero-value duration fields fall
// back to the spec-mandated defaults.
type LSRConfig struct {
	SelfID string
	Clock  *clock.Clock
	Logger *slog.Logger

	HelloInterval      time.Duration
	NeighborTimeout    time.Duration
	LSAMinInterval     time.Duration
	LSARefreshInterval time.Duration
	LSAMaxAge          time.Duration
	LSASeenCapacity    int
}

type originSeq struct {
	Origin string
	Seq    int
}

// LSR implements Strategy with the link-state routing protocol of spec
// §4.4: HELLO-based neighbor liveness, a sequence-numbered and aged LSDB,
// and Dijkstra-based forwarding table computation with deterministic
// tie-breaking.
type LSR struct {
	cfg LSRConfig
	log *slog.Logger

	mu              sync.Mutex
	neighbors       map[string]*NeighborState
	lsdb            map[string]*LSDBEntry
	areaRouters     map[string]struct{}
	myLSASeq        int
	lastLSATime     time.Time
	lastHelloTime   time.Time
	topologyChanged bool
	lsaSeen         *seenset.Set[originSeq]

	routingTable atomic.Pointer[map[string]string]
}

var (
	_ Strategy    = (*LSR)(nil)
	_ HelloSender = (*LSR)(nil)
	_ LSASender   = (*LSR)(nil)
	_ Maintainer  = (*LSR)(nil)
	_ Inspectable = (*LSR)(nil)
)

// NewLSR creates an LSR strategy for the given node id.
func NewLSR(cfg LSRConfig) *LSR {
	if cfg.HelloInterval <= 0 {
		cfg.HelloInterval = DefaultHelloInterval
	}
	if cfg.NeighborTimeout <= 0 {
		cfg.NeighborTimeout = DefaultNeighborTimeout
	}
	if cfg.LSAMinInterval <= 0 {
		cfg.LSAMinInterval = DefaultLSAMinInterval
	}
	if cfg.LSARefreshInterval <= 0 {
		cfg.LSARefreshInterval = DefaultLSARefreshInterval
	}
	if cfg.LSAMaxAge <= 0 {
		cfg.LSAMaxAge = DefaultLSAMaxAge
	}
	if cfg.LSASeenCapacity <= 0 {
		cfg.LSASeenCapacity = DefaultLSASeenCapacity
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	l := &LSR{
		cfg:         cfg,
		log:         logger.WithGroup("lsr"),
		neighbors:   make(map[string]*NeighborState),
		lsdb:        make(map[string]*LSDBEntry),
		areaRouters: map[string]struct{}{cfg.SelfID: {}},
		lsaSeen:     seenset.New[originSeq](cfg.LSASeenCapacity),
	}
	empty := map[string]string{}
	l.routingTable.Store(&empty)
	return l
}

// Name returns "lsr".
func (l *LSR) Name() string { return "lsr" }

// UpdateNeighbor upserts neighbor link info without touching the LSDB or
// recomputing routes (spec §4.4: "No I/O, no SPF invocation").
func (l *LSR) UpdateNeighbor(id string, info NeighborInfo) {
	l.mu.Lock()
	defer l.mu.Unlock()

	cost := info.Cost
	if cost <= 0 {
		cost = 1
	}
	n, ok := l.neighbors[id]
	if !ok {
		n = &NeighborState{}
		l.neighbors[id] = n
	}
	n.LastSeen = l.cfg.Clock.Now()
	n.Alive = true
	n.Cost = cost
	l.topologyChanged = true
}

// ProcessPacket dispatches HELLO, INFO/LSA, and unicast packets per spec
// §4.4.
func (l *LSR) ProcessPacket(pkt *packet.Packet, fromNeighbor string) Action {
	switch pkt.Type {
	case packet.TypeHello:
		return l.processHello(pkt, fromNeighbor)
	case packet.TypeInfo, packet.TypeLSA:
		return l.processLSA(pkt)
	default:
		return l.processUnicast(pkt)
	}
}

func (l *LSR) processHello(pkt *packet.Packet, fromNeighbor string) Action {
	l.mu.Lock()
	defer l.mu.Unlock()

	id := ""
	if fromNeighbor != UnknownNeighbor {
		id = fromNeighbor
	} else if _, known := l.neighbors[pkt.From]; known {
		id = pkt.From
	}
	if id == "" {
		return NoopAction
	}

	n, ok := l.neighbors[id]
	if !ok {
		n = &NeighborState{Cost: 1}
		l.neighbors[id] = n
	}
	n.LastSeen = l.cfg.Clock.Now()
	n.Alive = true
	if n.Cost <= 0 {
		n.Cost = 1
	}
	l.topologyChanged = true
	return NoopAction
}

type lsaPayload struct {
	Origin    string         `json:"origin"`
	Seq       int            `json:"seq"`
	Neighbors map[string]int `json:"neighbors"`
	TS        int64          `json:"ts"`
}

func (l *LSR) processLSA(pkt *packet.Packet) Action {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.handlePathLocked(pkt) {
		return NoopAction
	}

	var payload lsaPayload
	if err := json.Unmarshal([]byte(pkt.Payload), &payload); err != nil {
		l.log.Debug("dropping LSA with malformed payload", "error", err)
		return NoopAction
	}
	if payload.Origin != pkt.From {
		l.log.Debug("dropping spoofed LSA", "payload_origin", payload.Origin, "from", pkt.From)
		return NoopAction
	}

	key := originSeq{Origin: payload.Origin, Seq: payload.Seq}
	if l.lsaSeen.Contains(key) {
		return NoopAction
	}
	// Insert before the staleness check: a stale re-announce of an
	// already-superseded (origin, seq) must still be remembered so a
	// second copy arriving via another path is dropped here too (spec
	// §4.4 step 3 runs unconditionally once the dedup check passes).
	l.lsaSeen.Insert(key)
	if existing, ok := l.lsdb[payload.Origin]; ok && existing.Seq >= payload.Seq {
		return NoopAction
	}

	neighbors := make(map[string]int, len(payload.Neighbors))
	for id, cost := range payload.Neighbors {
		if cost <= 0 {
			cost = 1
		}
		neighbors[id] = cost
	}

	l.lsdb[payload.Origin] = &LSDBEntry{
		Seq:          payload.Seq,
		Neighbors:    neighbors,
		LastReceived: l.cfg.Clock.Now(),
	}
	l.areaRouters[payload.Origin] = struct{}{}
	l.areaRouters[l.cfg.SelfID] = struct{}{}
	for id := range neighbors {
		l.areaRouters[id] = struct{}{}
	}

	l.calculateRoutesLocked()
	return Action{Kind: FloodLSA}
}

func (l *LSR) processUnicast(pkt *packet.Packet) Action {
	if pkt.To == l.cfg.SelfID {
		return NoopAction
	}
	nh, ok := l.GetNextHop(pkt.To)
	if !ok {
		return NoopAction
	}
	return UnicastTo(nh)
}

// ShouldSendHello reports whether HELLO_INTERVAL has elapsed.
func (l *LSR) ShouldSendHello() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cfg.Clock.Since(l.lastHelloTime) >= l.cfg.HelloInterval
}

// CreateHelloPacket builds and records a HELLO broadcast.
func (l *LSR) CreateHelloPacket() *packet.Packet {
	l.mu.Lock()
	now := l.cfg.Clock.Now()
	l.lastHelloTime = now
	l.mu.Unlock()

	pkt := &packet.Packet{
		Proto: packet.ProtoLSR,
		Type:  packet.TypeHello,
		From:  l.cfg.SelfID,
		To:    packet.BroadcastAddr,
		TTL:   defaultHelloTTL,
		Headers: map[string]any{
			packet.HeaderTS:   now.Unix(),
			packet.HeaderPath: []string{},
		},
	}
	pkt.EnsureMsgID()
	return pkt
}

// ShouldSendLSA reports whether a fresh LSA is due, per spec §4.4:
// (topologyChanged and LSA_MIN_INTERVAL elapsed) or LSA_REFRESH_INTERVAL
// elapsed regardless of change.
func (l *LSR) ShouldSendLSA() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	sinceLast := l.cfg.Clock.Since(l.lastLSATime)
	return (l.topologyChanged && sinceLast >= l.cfg.LSAMinInterval) ||
		sinceLast >= l.cfg.LSARefreshInterval
}

// CreateLSAPacket advances my_lsa_seq, pre-installs the self LSDB entry,
// suppresses the echoed copy, recomputes routes, and returns the LSA
// broadcast packet (spec §4.4).
func (l *LSR) CreateLSAPacket() *packet.Packet {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.myLSASeq++
	now := l.cfg.Clock.Now()
	l.lastLSATime = now
	l.topologyChanged = false

	neighs := map[string]int{}
	for id, n := range l.neighbors {
		if n.Alive && l.cfg.Clock.Since(n.LastSeen) < l.cfg.NeighborTimeout {
			neighs[id] = n.Cost
		}
	}

	l.lsdb[l.cfg.SelfID] = &LSDBEntry{
		Seq:          l.myLSASeq,
		Neighbors:    neighs,
		LastReceived: now,
	}
	l.lsaSeen.Insert(originSeq{Origin: l.cfg.SelfID, Seq: l.myLSASeq})

	l.calculateRoutesLocked()

	payloadBytes, err := json.Marshal(lsaPayload{
		Origin:    l.cfg.SelfID,
		Seq:       l.myLSASeq,
		Neighbors: neighs,
		TS:        now.Unix(),
	})
	if err != nil {
		l.log.Error("failed to marshal LSA payload", "error", err)
		payloadBytes = []byte("{}")
	}

	pkt := &packet.Packet{
		Proto: packet.ProtoLSR,
		Type:  packet.TypeInfo,
		From:  l.cfg.SelfID,
		To:    packet.BroadcastAddr,
		TTL:   defaultLSATTL,
		Headers: map[string]any{
			packet.HeaderSeq:  l.myLSASeq,
			packet.HeaderPath: []string{},
		},
		Payload: string(payloadBytes),
	}
	pkt.EnsureMsgID()
	return pkt
}

// CheckNeighborTimeouts flips Alive for any neighbor whose last HELLO is
// older than NEIGHBOR_TIMEOUT. Entries are never evicted, only flagged
// (spec §4.4).
func (l *LSR) CheckNeighborTimeouts() {
	l.mu.Lock()
	defer l.mu.Unlock()

	changed := false
	for _, n := range l.neighbors {
		aliveNow := l.cfg.Clock.Since(n.LastSeen) < l.cfg.NeighborTimeout
		if aliveNow != n.Alive {
			n.Alive = aliveNow
			changed = true
		}
	}
	if changed {
		l.topologyChanged = true
		l.calculateRoutesLocked()
	}
}

// AgeLSADatabase removes LSDB entries that have not been refreshed within
// LSA_MAX_AGE (spec §4.4).
func (l *LSR) AgeLSADatabase() {
	l.mu.Lock()
	defer l.mu.Unlock()

	removed := false
	for origin, entry := range l.lsdb {
		if l.cfg.Clock.Since(entry.LastReceived) >= l.cfg.LSAMaxAge {
			delete(l.lsdb, origin)
			removed = true
		}
	}
	if removed {
		l.topologyChanged = true
		l.calculateRoutesLocked()
	}
}

// handlePathLocked implements spec §4.4 handle_path: drop on a detected
// loop, otherwise push self_id into the bounded path window. Must be
// called with l.mu held.
func (l *LSR) handlePathLocked(pkt *packet.Packet) bool {
	path := pkt.GetPath()
	for _, id := range path {
		if id == l.cfg.SelfID {
			return false
		}
	}
	newPath := append([]string(nil), path...)
	if len(newPath) >= packet.MaxPathLen {
		newPath = newPath[1:]
	}
	newPath = append(newPath, l.cfg.SelfID)
	pkt.SetPath(newPath)
	return true
}

// calculateRoutesLocked rebuilds the forwarding table with Dijkstra and the
// deterministic tie-break of spec §4.4. Must be called with l.mu held; it
// is itself lock-free so it can be invoked from any of the above methods
// that already hold the lock (the "logical reentrancy" this package needs
// in place of an actual reentrant mutex — see DESIGN.md).
func (l *LSR) calculateRoutesLocked() {
	adj := adjacency{}
	liveNeighbors := map[string]bool{}

	for id, n := range l.neighbors {
		if n.Alive {
			adj.addEdge(l.cfg.SelfID, id, n.Cost)
			liveNeighbors[id] = true
		}
	}
	for origin, entry := range l.lsdb {
		for neighbor, cost := range entry.Neighbors {
			adj.addEdge(origin, neighbor, cost)
		}
	}

	if _, ok := adj[l.cfg.SelfID]; !ok {
		empty := map[string]string{}
		l.routingTable.Store(&empty)
		return
	}

	dist, first := shortestPaths(adj, l.cfg.SelfID, liveNeighbors)

	table := make(map[string]string, len(adj))
	for dest := range adj {
		if dest == l.cfg.SelfID {
			continue
		}
		if dist[dest] < infinity && first[dest] != "" {
			table[dest] = first[dest]
		}
	}
	l.routingTable.Store(&table)
}

// GetNextHop returns the first-hop neighbor for dst, per spec §4.4.
func (l *LSR) GetNextHop(dst string) (string, bool) {
	if dst == l.cfg.SelfID {
		return "", false
	}
	table := l.routingTable.Load()
	if table == nil {
		return "", false
	}
	nh, ok := (*table)[dst]
	return nh, ok
}

// Neighbors returns a snapshot of the direct-neighbor table, keyed by
// neighbor id. Intended for CLI and diagnostic reads only.
func (l *LSR) Neighbors() map[string]NeighborState {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make(map[string]NeighborState, len(l.neighbors))
	for id, n := range l.neighbors {
		out[id] = *n
	}
	return out
}

// RoutingTable returns a snapshot of the current forwarding table,
// destination id to next-hop neighbor id.
func (l *LSR) RoutingTable() map[string]string {
	table := l.routingTable.Load()
	if table == nil {
		return map[string]string{}
	}
	out := make(map[string]string, len(*table))
	for k, v := range *table {
		out[k] = v
	}
	return out
}

// LSDBSize returns the number of originators currently held in the
// link-state database. Intended for CLI and diagnostic reads only.
func (l *LSR) LSDBSize() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.lsdb)
}
