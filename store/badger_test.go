package store

import (
	"bytes"
	"errors"
	"reflect"
	"testing"
)

func newMemoryStore(t *testing.T) *BadgerStateStore {
	t.Helper()
	s, err := NewBadgerInMemory()
	if err != nil {
		t.Fatalf("Expected in-memory badger to open, got %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestBadgerRoundTrip(t *testing.T) {
	s := newMemoryStore(t)

	snapshot := []byte{0x01, 0x02, 0x03, 0xff}
	if err := s.Save("actor-1", snapshot); err != nil {
		t.Fatalf("Expected save to succeed, got %v", err)
	}
	got, err := s.Load("actor-1")
	if err != nil {
		t.Fatalf("Expected load to succeed, got %v", err)
	}
	if !bytes.Equal(got, snapshot) {
		t.Errorf("Expected snapshot %v, got %v", snapshot, got)
	}
}

func TestBadgerLastWriteWins(t *testing.T) {
	s := newMemoryStore(t)

	if err := s.Save("actor-1", []byte("old")); err != nil {
		t.Fatalf("Expected first save to succeed, got %v", err)
	}
	if err := s.Save("actor-1", []byte("new")); err != nil {
		t.Fatalf("Expected second save to succeed, got %v", err)
	}
	got, err := s.Load("actor-1")
	if err != nil {
		t.Fatalf("Expected load to succeed, got %v", err)
	}
	if string(got) != "new" {
		t.Errorf("Expected latest snapshot, got %q", got)
	}
}

func TestBadgerLoadMissing(t *testing.T) {
	s := newMemoryStore(t)

	_, err := s.Load("nobody")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestBadgerDelete(t *testing.T) {
	s := newMemoryStore(t)

	if err := s.Save("actor-1", []byte("x")); err != nil {
		t.Fatalf("Expected save to succeed, got %v", err)
	}
	if err := s.Delete("actor-1"); err != nil {
		t.Fatalf("Expected delete to succeed, got %v", err)
	}
	if _, err := s.Load("actor-1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound after delete, got %v", err)
	}
	// Deleting a missing key is not an error.
	if err := s.Delete("actor-1"); err != nil {
		t.Errorf("Expected repeat delete to succeed, got %v", err)
	}
}

func TestBadgerList(t *testing.T) {
	s := newMemoryStore(t)

	for _, id := range []string{"gamma", "alpha", "beta"} {
		if err := s.Save(id, []byte(id)); err != nil {
			t.Fatalf("Expected save of %q to succeed, got %v", id, err)
		}
	}
	ids, err := s.List()
	if err != nil {
		t.Fatalf("Expected list to succeed, got %v", err)
	}
	want := []string{"alpha", "beta", "gamma"}
	if !reflect.DeepEqual(ids, want) {
		t.Errorf("Expected ids %v, got %v", want, ids)
	}
}

func TestBadgerPersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()

	s, err := NewBadgerStateStore(dir)
	if err != nil {
		t.Fatalf("Expected badger to open at %q, got %v", dir, err)
	}
	if err := s.Save("actor-1", []byte("durable")); err != nil {
		t.Fatalf("Expected save to succeed, got %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Expected close to succeed, got %v", err)
	}

	s, err = NewBadgerStateStore(dir)
	if err != nil {
		t.Fatalf("Expected badger to reopen, got %v", err)
	}
	defer s.Close()
	got, err := s.Load("actor-1")
	if err != nil {
		t.Fatalf("Expected load after reopen to succeed, got %v", err)
	}
	if string(got) != "durable" {
		t.Errorf("Expected snapshot to survive reopen, got %q", got)
	}
}

func TestBadgerRejectsEmptyActorID(t *testing.T) {
	s := newMemoryStore(t)

	if err := s.Save("", []byte("x")); err == nil {
		t.Errorf("Expected error for empty actor id, got nil")
	}
}
