package seenset

import "testing"

func TestInsert_NewKey(t *testing.T) {
	s := New[string](4)
	if !s.Insert("a") {
		t.Error("expected Insert to return true for a new key")
	}
}

func TestInsert_DuplicateKey(t *testing.T) {
	s := New[string](4)
	s.Insert("a")
	if s.Insert("a") {
		t.Error("expected Insert to return false for a duplicate key")
	}
}

func TestContains(t *testing.T) {
	s := New[string](4)
	if s.Contains("a") {
		t.Error("expected fresh set to not contain key")
	}
	s.Insert("a")
	if !s.Contains("a") {
		t.Error("expected set to contain inserted key")
	}
}

func TestFIFOEviction(t *testing.T) {
	s := New[int](3)
	s.Insert(1)
	s.Insert(2)
	s.Insert(3)
	if s.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", s.Len())
	}

	s.Insert(4) // evicts 1

	if s.Contains(1) {
		t.Error("expected oldest key 1 to be evicted")
	}
	if !s.Contains(2) || !s.Contains(3) || !s.Contains(4) {
		t.Error("expected keys 2, 3, 4 to remain")
	}
	if s.Len() != 3 {
		t.Errorf("Len() = %d, want 3 after eviction", s.Len())
	}
}

func TestCapacityNeverExceeded(t *testing.T) {
	s := New[int](5)
	for i := 0; i < 100; i++ {
		s.Insert(i)
		if s.Len() > 5 {
			t.Fatalf("Len() = %d exceeds capacity 5 after inserting %d", s.Len(), i)
		}
	}
}

func TestClear(t *testing.T) {
	s := New[string](4)
	s.Insert("a")
	s.Insert("b")
	s.Clear()
	if s.Len() != 0 {
		t.Errorf("Len() = %d after Clear, want 0", s.Len())
	}
	if s.Contains("a") {
		t.Error("expected Clear to forget previously seen keys")
	}
	if !s.Insert("a") {
		t.Error("expected Insert after Clear to treat key as new")
	}
}

func TestStructKey(t *testing.T) {
	type originSeq struct {
		Origin string
		Seq    int
	}
	s := New[originSeq](8)
	k1 := originSeq{"A", 1}
	k2 := originSeq{"A", 2}

	if !s.Insert(k1) {
		t.Error("expected first insert to be new")
	}
	if s.Insert(k1) {
		t.Error("expected duplicate struct key to be rejected")
	}
	if !s.Insert(k2) {
		t.Error("expected distinct seq to be treated as a new key")
	}
}

func TestCompactionPreservesLiveEntries(t *testing.T) {
	s := New[int](10)
	for i := 0; i < 500; i++ {
		s.Insert(i)
	}
	// Only the most recent 10 insertions should remain live.
	for i := 490; i < 500; i++ {
		if !s.Contains(i) {
			t.Errorf("expected recent key %d to still be tracked", i)
		}
	}
	if s.Len() != 10 {
		t.Errorf("Len() = %d, want 10", s.Len())
	}
}
