// Package config parses the two JSON documents the core consumes as
// plain structures (spec §6): static topology adjacency and the
// name-to-endpoint map the transport layer dials out to.
package config

import (
	"encoding/json"
	"fmt"
)

// Topology is the parsed form of a topo document:
//
//	{ "type": "topo", "config": { "A": ["B", "D"], ... } }
//
// Adjacency is unweighted; every listed edge defaults to cost 1.
type Topology struct {
	Neighbors map[string][]string
}

type topologyDoc struct {
	Type   string              `json:"type"`
	Config map[string][]string `json:"config"`
}

// ParseTopology decodes a topo document. It returns an error if the
// document's declared type is not "topo" or the JSON is malformed.
func ParseTopology(data []byte) (*Topology, error) {
	var doc topologyDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("config: parsing topology: %w", err)
	}
	if doc.Type != "topo" {
		return nil, fmt.Errorf("config: expected topology type %q, got %q", "topo", doc.Type)
	}
	return &Topology{Neighbors: doc.Config}, nil
}

// NeighborsOf returns the configured adjacency list for id, or nil if id
// is not present.
func (t *Topology) NeighborsOf(id string) []string {
	return t.Neighbors[id]
}

// IsSymmetric reports whether every edge in the topology is declared from
// both endpoints — a sanity check useful when hand-authoring a lab
// topology file.
func (t *Topology) IsSymmetric() bool {
	for id, neighbors := range t.Neighbors {
		for _, n := range neighbors {
			found := false
			for _, back := range t.Neighbors[n] {
				if back == id {
					found = true
					break
				}
			}
			if !found {
				return false
			}
		}
	}
	return true
}
