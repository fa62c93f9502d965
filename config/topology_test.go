package config

import "testing"

func TestParseTopology_ValidDocument(t *testing.T) {
	data := []byte(`{"type":"topo","config":{"A":["B","D"],"B":["A"],"D":["A"]}}`)
	topo, err := ParseTopology(data)
	if err != nil {
		t.Fatalf("ParseTopology: %v", err)
	}
	got := topo.NeighborsOf("A")
	if len(got) != 2 || got[0] != "B" || got[1] != "D" {
		t.Errorf("NeighborsOf(A) = %v, want [B D]", got)
	}
}

func TestParseTopology_UnknownNodeReturnsNil(t *testing.T) {
	topo, err := ParseTopology([]byte(`{"type":"topo","config":{"A":["B"]}}`))
	if err != nil {
		t.Fatalf("ParseTopology: %v", err)
	}
	if got := topo.NeighborsOf("Z"); got != nil {
		t.Errorf("NeighborsOf(Z) = %v, want nil", got)
	}
}

func TestParseTopology_WrongTypeRejected(t *testing.T) {
	_, err := ParseTopology([]byte(`{"type":"names","config":{}}`))
	if err == nil {
		t.Error("expected an error for a names document passed to ParseTopology")
	}
}

func TestParseTopology_MalformedJSONRejected(t *testing.T) {
	_, err := ParseTopology([]byte(`{not json`))
	if err == nil {
		t.Error("expected an error for malformed JSON")
	}
}

func TestIsSymmetric_DetectsAsymmetricEdge(t *testing.T) {
	topo, err := ParseTopology([]byte(`{"type":"topo","config":{"A":["B"],"B":[]}}`))
	if err != nil {
		t.Fatalf("ParseTopology: %v", err)
	}
	if topo.IsSymmetric() {
		t.Error("expected IsSymmetric to detect the missing B->A back-edge")
	}
}

func TestIsSymmetric_AcceptsMutualEdges(t *testing.T) {
	topo, err := ParseTopology([]byte(`{"type":"topo","config":{"A":["B","D"],"B":["A"],"D":["A"]}}`))
	if err != nil {
		t.Fatalf("ParseTopology: %v", err)
	}
	if !topo.IsSymmetric() {
		t.Error("expected IsSymmetric to accept a fully mutual topology")
	}
}
