package pubsub

import (
	"context"
	"testing"

	paho "github.com/eclipse/paho.mqtt.golang"
)

// fakeMessage is a minimal paho.Message stub for exercising handleMessage
// without a live broker.
type fakeMessage struct {
	payload []byte
}

func (fakeMessage) Duplicate() bool     { return false }
func (fakeMessage) Qos() byte           { return 0 }
func (fakeMessage) Retained() bool      { return false }
func (fakeMessage) Topic() string       { return "test/topic" }
func (fakeMessage) MessageID() uint16   { return 0 }
func (m fakeMessage) Payload() []byte   { return m.payload }
func (fakeMessage) Ack()                {}

var _ paho.Message = fakeMessage{}

func TestNew_Defaults(t *testing.T) {
	tr := New(Config{Broker: "tcp://localhost:1883", MeshID: "lab", SelfID: "A"})

	if tr.cfg.TopicPrefix != DefaultTopicPrefix {
		t.Errorf("expected default topic prefix %q, got %q", DefaultTopicPrefix, tr.cfg.TopicPrefix)
	}
	if tr.log == nil {
		t.Error("expected logger to be set")
	}
}

func TestTopics_Namespacing(t *testing.T) {
	tr := New(Config{Broker: "tcp://localhost:1883", MeshID: "lab", SelfID: "A", TopicPrefix: "custom"})

	if got, want := tr.unicastTopic(), "custom/lab/A"; got != want {
		t.Errorf("unicastTopic() = %q, want %q", got, want)
	}
	if got, want := tr.broadcastTopic(), "custom/lab/broadcast"; got != want {
		t.Errorf("broadcastTopic() = %q, want %q", got, want)
	}
}

func TestStart_MissingBroker(t *testing.T) {
	tr := New(Config{MeshID: "lab", SelfID: "A"})
	if err := tr.Start(context.Background()); err == nil {
		t.Fatal("expected error with empty broker")
	}
}

func TestStart_MissingMeshID(t *testing.T) {
	tr := New(Config{Broker: "tcp://localhost:1883", SelfID: "A"})
	if err := tr.Start(context.Background()); err == nil {
		t.Fatal("expected error with empty mesh id")
	}
}

func TestStart_MissingSelfID(t *testing.T) {
	tr := New(Config{Broker: "tcp://localhost:1883", MeshID: "lab"})
	if err := tr.Start(context.Background()); err == nil {
		t.Fatal("expected error with empty self id")
	}
}

func TestSendUnicast_NotConnected(t *testing.T) {
	tr := New(Config{Broker: "tcp://localhost:1883", MeshID: "lab", SelfID: "A"})
	if err := tr.SendUnicast(context.Background(), "B", []byte("x")); err == nil {
		t.Fatal("expected error when not connected")
	}
}

func TestIsConnected_Default(t *testing.T) {
	tr := New(Config{Broker: "tcp://localhost:1883", MeshID: "lab", SelfID: "A"})
	if tr.IsConnected() {
		t.Error("expected not connected initially")
	}
}

func TestHandleMessage_InvalidBase64Dropped(t *testing.T) {
	tr := New(Config{Broker: "tcp://localhost:1883", MeshID: "lab", SelfID: "A"})
	tr.handleMessage(nil, fakeMessage{payload: []byte("not-base64!!")})

	select {
	case <-tr.inbox:
		t.Error("expected malformed payload to be dropped, not queued")
	default:
	}
}

func TestRandomString_Length(t *testing.T) {
	s := randomString(16)
	if len(s) != 16 {
		t.Errorf("expected length 16, got %d", len(s))
	}
}
