// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cache

import (
	"testing"
	"time"
)

// backends returns each Backend implementation under a fresh root.
func backends(t *testing.T) map[string]Backend {
	t.Helper()
	fb, err := NewFileBackend(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileBackend: %v", err)
	}
	return map[string]Backend{
		"memory": NewMemoryBackend(),
		"file":   fb,
	}
}

func TestCache_SetGetDelete(t *testing.T) {
	for name, backend := range backends(t) {
		t.Run(name, func(t *testing.T) {
			c := New(backend, time.Hour)

			if _, ok := c.Get("models:openrouter"); ok {
				t.Fatal("Get before Set reported a hit")
			}

			if err := c.Set("models:openrouter", []byte(`[{"id":"m1"}]`)); err != nil {
				t.Fatalf("Set: %v", err)
			}
			got, ok := c.Get("models:openrouter")
			if !ok || string(got) != `[{"id":"m1"}]` {
				t.Fatalf("Get = %q, %v; want stored value, true", got, ok)
			}

			if err := c.Delete("models:openrouter"); err != nil {
				t.Fatalf("Delete: %v", err)
			}
			if _, ok := c.Get("models:openrouter"); ok {
				t.Fatal("Get after Delete reported a hit")
			}
		})
	}
}

func TestCache_ExpiryIsAMiss(t *testing.T) {
	for name, backend := range backends(t) {
		t.Run(name, func(t *testing.T) {
			c := New(backend, time.Minute)

			// Deterministic clock.
			now := time.Now()
			c.now = func() time.Time { return now }

			if err := c.Set("k", []byte("v")); err != nil {
				t.Fatalf("Set: %v", err)
			}
			if _, ok := c.Get("k"); !ok {
				t.Fatal("fresh entry reported as miss")
			}

			now = now.Add(2 * time.Minute)
			if _, ok := c.Get("k"); ok {
				t.Fatal("expired entry reported as hit")
			}

			// The expired entry was dropped from the backend on read.
			if _, found, _ := backend.Read("k"); found {
				t.Error("expired entry still present in backend after Get")
			}
		})
	}
}

func TestCache_NoExpiryWithZeroTTL(t *testing.T) {
	c := New(NewMemoryBackend(), time.Minute)
	now := time.Now()
	c.now = func() time.Time { return now }

	if err := c.SetTTL("pinned", []byte("v"), 0); err != nil {
		t.Fatalf("SetTTL: %v", err)
	}
	now = now.Add(24 * time.Hour)
	if _, ok := c.Get("pinned"); !ok {
		t.Error("zero-TTL entry expired")
	}
}

func TestCache_Purge(t *testing.T) {
	for name, backend := range backends(t) {
		t.Run(name, func(t *testing.T) {
			c := New(backend, time.Minute)
			now := time.Now()
			c.now = func() time.Time { return now }

			c.Set("old1", []byte("a"))
			c.Set("old2", []byte("b"))
			c.SetTTL("fresh", []byte("c"), time.Hour)

			now = now.Add(5 * time.Minute)
			dropped, err := c.Purge()
			if err != nil {
				t.Fatalf("Purge: %v", err)
			}
			if dropped != 2 {
				t.Errorf("Purge dropped %d entries, want 2", dropped)
			}
			if _, ok := c.Get("fresh"); !ok {
				t.Error("Purge removed an unexpired entry")
			}
		})
	}
}

func TestFileBackend_SurvivesReopen(t *testing.T) {
	dir := t.TempDir()

	fb, err := NewFileBackend(dir)
	if err != nil {
		t.Fatalf("NewFileBackend: %v", err)
	}
	c := New(fb, time.Hour)
	if err := c.Set("models:near", []byte("catalog")); err != nil {
		t.Fatalf("Set: %v", err)
	}

	fb2, err := NewFileBackend(dir)
	if err != nil {
		t.Fatalf("NewFileBackend reopen: %v", err)
	}
	c2 := New(fb2, time.Hour)
	got, ok := c2.Get("models:near")
	if !ok || string(got) != "catalog" {
		t.Errorf("after reopen Get = %q, %v; want %q, true", got, ok, "catalog")
	}

	keys, err := fb2.Keys()
	if err != nil {
		t.Fatalf("Keys: %v", err)
	}
	if len(keys) != 1 || keys[0] != "models:near" {
		t.Errorf("Keys = %v, want [models:near]", keys)
	}
}

func TestFileBackend_WeirdKeysAreSafe(t *testing.T) {
	fb, err := NewFileBackend(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileBackend: %v", err)
	}
	c := New(fb, time.Hour)

	key := "../../etc/passwd https://gateway/models?page=1"
	if err := c.Set(key, []byte("v")); err != nil {
		t.Fatalf("Set with hostile key: %v", err)
	}
	if got, ok := c.Get(key); !ok || string(got) != "v" {
		t.Errorf("Get = %q, %v; want v, true", got, ok)
	}
}
