package routing

import (
	"testing"
	"time"

	"github.com/lsrlab/meshrouter/core/clock"
	"github.com/lsrlab/meshrouter/core/packet"
)

func newTestFlooding(selfID string, now *time.Time) *Flooding {
	clk := clock.NewFake(func() time.Time { return *now })
	return NewFlooding(FloodingConfig{SelfID: selfID, Clock: clk})
}

func TestFlooding_ConsumesAddressedMessage(t *testing.T) {
	now := time.Unix(1000, 0)
	f := newTestFlooding("A", &now)

	pkt := &packet.Packet{Proto: packet.ProtoFlooding, Type: packet.TypeMessage, From: "B", To: "A", TTL: 5}
	action := f.ProcessPacket(pkt, "B")
	if action != NoopAction {
		t.Errorf("expected consume for message addressed to self, got %+v", action)
	}
}

func TestFlooding_FloodsUnaddressedMessage(t *testing.T) {
	now := time.Unix(1000, 0)
	f := newTestFlooding("A", &now)

	pkt := &packet.Packet{Proto: packet.ProtoFlooding, Type: packet.TypeMessage, From: "B", To: "C", TTL: 5}
	action := f.ProcessPacket(pkt, "B")
	if action.Kind != Flood {
		t.Errorf("expected flood for message addressed elsewhere, got %+v", action)
	}
}

func TestFlooding_FloodsBroadcastMessage(t *testing.T) {
	now := time.Unix(1000, 0)
	f := newTestFlooding("A", &now)

	pkt := &packet.Packet{Proto: packet.ProtoFlooding, Type: packet.TypeMessage, From: "B", To: packet.BroadcastAddr, TTL: 5}
	action := f.ProcessPacket(pkt, "B")
	if action.Kind != Flood {
		t.Errorf("expected flood for broadcast message, got %+v", action)
	}
}

func TestFlooding_NonDeliverableTypeAddressedToSelfStillFloods(t *testing.T) {
	now := time.Unix(1000, 0)
	f := newTestFlooding("A", &now)

	pkt := &packet.Packet{Proto: packet.ProtoFlooding, Type: packet.TypeHello, From: "B", To: "A", TTL: 1}
	action := f.ProcessPacket(pkt, "B")
	if action.Kind != Flood {
		t.Errorf("expected non-deliverable type to still flood, got %+v", action)
	}
}

func TestFlooding_EchoAndEchoReplyDeliverable(t *testing.T) {
	now := time.Unix(1000, 0)
	f := newTestFlooding("A", &now)

	for _, typ := range []string{packet.TypeEcho, packet.TypeEchoReply} {
		pkt := &packet.Packet{Proto: packet.ProtoFlooding, Type: typ, From: "B", To: "A", TTL: 5}
		action := f.ProcessPacket(pkt, "B")
		if action != NoopAction {
			t.Errorf("type %q: expected consume when addressed to self, got %+v", typ, action)
		}
	}
}

func TestFlooding_ShouldSendHello(t *testing.T) {
	now := time.Unix(1000, 0)
	f := newTestFlooding("A", &now)

	if !f.ShouldSendHello() {
		t.Fatal("expected ShouldSendHello true before first HELLO")
	}
	f.CreateHelloPacket()
	if f.ShouldSendHello() {
		t.Fatal("expected ShouldSendHello false immediately after sending")
	}
	now = now.Add(DefaultFloodHelloInterval)
	if !f.ShouldSendHello() {
		t.Error("expected ShouldSendHello true once HELLO_INTERVAL elapses")
	}
}

func TestFlooding_CreateHelloPacket_TTLOne(t *testing.T) {
	now := time.Unix(1000, 0)
	f := newTestFlooding("A", &now)

	pkt := f.CreateHelloPacket()
	if pkt.TTL != 1 {
		t.Errorf("expected HELLO TTL=1, got %d", pkt.TTL)
	}
	if pkt.To != packet.BroadcastAddr {
		t.Errorf("expected HELLO addressed to broadcast, got %q", pkt.To)
	}
	if pkt.MsgID() == "" {
		t.Error("expected HELLO to carry a msg_id")
	}
}

func TestFlooding_GetNextHop_NeverResolves(t *testing.T) {
	now := time.Unix(1000, 0)
	f := newTestFlooding("A", &now)
	f.UpdateNeighbor("B", NeighborInfo{Cost: 1})

	if _, ok := f.GetNextHop("B"); ok {
		t.Error("expected flooding strategy to never resolve a next hop")
	}
}
