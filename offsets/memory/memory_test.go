package memory

import (
	"testing"

	"tributary/source"
)

var part = source.Partition{Topic: "orders", Queue: 0}

func TestFetchUnknownPartition(t *testing.T) {
	s := New()
	off, err := s.Fetch(part)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if off != -1 {
		t.Fatalf("want -1 sentinel for unknown partition, got %d", off)
	}
}

func TestUpdateWithoutFlushStaysInvisible(t *testing.T) {
	s := New()
	if err := s.Update(part, 42, false); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if off, _ := s.Fetch(part); off != -1 {
		t.Fatalf("unflushed update must stay invisible, got %d", off)
	}

	if err := s.Persist(part); err != nil {
		t.Fatalf("Persist: %v", err)
	}
	if off, _ := s.Fetch(part); off != 42 {
		t.Fatalf("want 42 after persist, got %d", off)
	}
}

func TestUpdateFlushNowIsImmediatelyVisible(t *testing.T) {
	s := New()
	if err := s.Update(part, 7, true); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if off, _ := s.Fetch(part); off != 7 {
		t.Fatalf("want 7, got %d", off)
	}
}

func TestPersistWithoutUpdateIsNoOp(t *testing.T) {
	s := New()
	if err := s.Persist(part); err != nil {
		t.Fatalf("Persist: %v", err)
	}
	if off, _ := s.Fetch(part); off != -1 {
		t.Fatalf("want -1, got %d", off)
	}
}
