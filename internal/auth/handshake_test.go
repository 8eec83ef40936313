package auth

import (
	"testing"
)

func TestHandshakeStore_PutAndConsume(t *testing.T) {
	store := NewHandshakeStore()

	store.Put("state-1", "verifier-1")

	hs, ok := store.Consume("state-1")
	if !ok {
		t.Fatal("expected handshake to be found")
	}
	if hs.Verifier != "verifier-1" {
		t.Errorf("Verifier = %q, want verifier-1", hs.Verifier)
	}
	if hs.CreatedAt.IsZero() {
		t.Error("CreatedAt should be set")
	}
}

// 各stateは厳密に1回しか消費できない。2回目の消費はリプレイとして拒否される。
func TestHandshakeStore_ConsumeIsSingleUse(t *testing.T) {
	store := NewHandshakeStore()

	store.Put("state-1", "verifier-1")

	if _, ok := store.Consume("state-1"); !ok {
		t.Fatal("first consume should succeed")
	}
	if _, ok := store.Consume("state-1"); ok {
		t.Error("second consume should fail (single use)")
	}
}

func TestHandshakeStore_UnknownState(t *testing.T) {
	store := NewHandshakeStore()

	if _, ok := store.Consume("never-stored"); ok {
		t.Error("unknown state should not be found")
	}
}

func TestHandshakeStore_Len(t *testing.T) {
	store := NewHandshakeStore()

	if store.Len() != 0 {
		t.Errorf("Len = %d, want 0", store.Len())
	}

	store.Put("state-1", "v1")
	store.Put("state-2", "v2")

	if store.Len() != 2 {
		t.Errorf("Len = %d, want 2", store.Len())
	}

	store.Consume("state-1")

	if store.Len() != 1 {
		t.Errorf("Len after consume = %d, want 1", store.Len())
	}
}

func TestHandshakeStore_IndependentStates(t *testing.T) {
	store := NewHandshakeStore()

	store.Put("state-a", "verifier-a")
	store.Put("state-b", "verifier-b")

	hs, ok := store.Consume("state-b")
	if !ok || hs.Verifier != "verifier-b" {
		t.Errorf("Consume(state-b) = %q, %v, want verifier-b, true", hs.Verifier, ok)
	}

	// state-aは消費されていないこと
	hs, ok = store.Consume("state-a")
	if !ok || hs.Verifier != "verifier-a" {
		t.Errorf("Consume(state-a) = %q, %v, want verifier-a, true", hs.Verifier, ok)
	}
}
