package cache

import (
	"context"
	"testing"
	"time"

	"github.com/nmtc-exchange/automatch/internal/domain"
)

func TestLRUBasicOperations(t *testing.T) {
	c := NewLRUCache(10)
	defer c.Close()
	ctx := context.Background()

	if err := c.Set(ctx, "key1", []byte("value1"), time.Minute); err != nil {
		t.Fatalf("set failed: %v", err)
	}

	val, err := c.Get(ctx, "key1")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if string(val) != "value1" {
		t.Errorf("expected value1, got %s", val)
	}

	if err := c.Delete(ctx, "key1"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}

	val, _ = c.Get(ctx, "key1")
	if val != nil {
		t.Error("expected nil after delete")
	}
}

func TestLRUMissReturnsNil(t *testing.T) {
	c := NewLRUCache(10)
	defer c.Close()

	val, err := c.Get(context.Background(), "missing")
	if err != nil {
		t.Fatalf("miss should not error: %v", err)
	}
	if val != nil {
		t.Error("miss should return nil value")
	}
}

func TestLRUExpiration(t *testing.T) {
	c := NewLRUCache(10)
	defer c.Close()
	ctx := context.Background()

	c.Set(ctx, "ephemeral", []byte("x"), 10*time.Millisecond)
	time.Sleep(20 * time.Millisecond)

	val, _ := c.Get(ctx, "ephemeral")
	if val != nil {
		t.Error("expired entry should be evicted on read")
	}
}

func TestLRUEviction(t *testing.T) {
	c := NewLRUCache(3)
	defer c.Close()
	ctx := context.Background()

	c.Set(ctx, "a", []byte("1"), time.Minute)
	c.Set(ctx, "b", []byte("2"), time.Minute)
	c.Set(ctx, "c", []byte("3"), time.Minute)

	// Touch "a" so "b" becomes the oldest.
	c.Get(ctx, "a")
	c.Set(ctx, "d", []byte("4"), time.Minute)

	if val, _ := c.Get(ctx, "b"); val != nil {
		t.Error("least recently used entry should be evicted")
	}
	if val, _ := c.Get(ctx, "a"); val == nil {
		t.Error("recently used entry should survive eviction")
	}

	size, capacity := c.Stats()
	if size != 3 || capacity != 3 {
		t.Errorf("stats = (%d, %d), want (3, 3)", size, capacity)
	}
}

func TestCDEProfileRoundTrip(t *testing.T) {
	c := NewLRUCache(10)
	defer c.Close()
	ctx := context.Background()

	maxSize := 20_000_000.0
	profile := &domain.CDEProfile{
		ID:                "cde-001",
		Name:              "Cached CDE",
		Status:            domain.CDEStatusActive,
		PrimaryStates:     []string{"IL", "IN"},
		MaxDealSize:       &maxSize,
		ForprofitAccepted: domain.No,
		AmountRemaining:   5_000_000,
	}

	if err := c.SetCDEProfile(ctx, "cde-001", profile, time.Minute); err != nil {
		t.Fatalf("set profile failed: %v", err)
	}

	got, err := c.GetCDEProfile(ctx, "cde-001")
	if err != nil {
		t.Fatalf("get profile failed: %v", err)
	}
	if got == nil {
		t.Fatal("expected cached profile")
	}
	if got.Name != "Cached CDE" || len(got.PrimaryStates) != 2 {
		t.Errorf("unexpected profile: %+v", got)
	}
	if got.MaxDealSize == nil || *got.MaxDealSize != maxSize {
		t.Error("max deal size should survive the cache round trip")
	}
	if got.ForprofitAccepted != domain.No {
		t.Error("tri-state field should survive the cache round trip")
	}

	missing, err := c.GetCDEProfile(ctx, "nope")
	if err != nil || missing != nil {
		t.Errorf("miss should be (nil, nil), got (%v, %v)", missing, err)
	}
}

func TestFactory(t *testing.T) {
	c, err := New(domain.CacheConfig{Type: "memory", LocalMaxSize: 100})
	if err != nil {
		t.Fatalf("factory failed: %v", err)
	}
	defer c.Close()

	if _, ok := c.(*LRUCache); !ok {
		t.Errorf("expected LRUCache, got %T", c)
	}

	if _, err := New(domain.CacheConfig{Type: "bogus"}); err == nil {
		t.Error("expected error for unsupported cache type")
	}
}
