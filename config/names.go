package config

import (
	"encoding/json"
	"fmt"
)

// Endpoint is a single node's binding: either a host/port pair (for
// streammesh TCP dialing) or a channel name (for the pubsub MQTT mesh
// topic). Exactly one of the two is populated for a given entry.
type Endpoint struct {
	Host    string
	Port    int
	Channel string
}

// IsTCP reports whether this endpoint describes a host/port binding.
func (e Endpoint) IsTCP() bool { return e.Host != "" }

// IsChannel reports whether this endpoint describes a pub/sub channel.
func (e Endpoint) IsChannel() bool { return e.Channel != "" }

// Names is the parsed form of a names document:
//
//	{ "type": "names", "config": { "A": {"host": "...", "port": 9000}, ... } }
//	{ "type": "names", "config": { "A": {"channel": "lab-a"}, ... } }
type Names struct {
	Endpoints map[string]Endpoint
}

type namesDoc struct {
	Type   string                     `json:"type"`
	Config map[string]rawEndpointJSON `json:"config"`
}

type rawEndpointJSON struct {
	Host    string `json:"host"`
	Port    int    `json:"port"`
	Channel string `json:"channel"`
}

// ParseNames decodes a names document.
func ParseNames(data []byte) (*Names, error) {
	var doc namesDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("config: parsing names: %w", err)
	}
	if doc.Type != "names" {
		return nil, fmt.Errorf("config: expected names type %q, got %q", "names", doc.Type)
	}

	endpoints := make(map[string]Endpoint, len(doc.Config))
	for id, raw := range doc.Config {
		ep := Endpoint{Host: raw.Host, Port: raw.Port, Channel: raw.Channel}
		if !ep.IsTCP() && !ep.IsChannel() {
			return nil, fmt.Errorf("config: endpoint %q has neither host/port nor channel", id)
		}
		if ep.IsTCP() && ep.IsChannel() {
			return nil, fmt.Errorf("config: endpoint %q has both host/port and channel", id)
		}
		endpoints[id] = ep
	}
	return &Names{Endpoints: endpoints}, nil
}

// EndpointOf returns the configured endpoint for id and whether it exists.
func (n *Names) EndpointOf(id string) (Endpoint, bool) {
	ep, ok := n.Endpoints[id]
	return ep, ok
}
