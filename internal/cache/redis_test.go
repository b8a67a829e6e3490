package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRedis(t *testing.T) (*Redis, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedis(client), mr
}

func TestRedis_SetGetDelete(t *testing.T) {
	store, _ := newTestRedis(t)
	ctx := context.Background()

	if err := store.Set(ctx, "k", "v", time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}
	val, ok, err := store.Get(ctx, "k")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !ok || val != "v" {
		t.Errorf("Get = (%q, %v), want (v, true)", val, ok)
	}

	if err := store.Delete(ctx, "k"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	_, ok, err = store.Get(ctx, "k")
	if err != nil {
		t.Fatalf("Get after delete: %v", err)
	}
	if ok {
		t.Error("Get after delete should report missing")
	}
}

func TestRedis_GetMissing(t *testing.T) {
	store, _ := newTestRedis(t)
	val, ok, err := store.Get(context.Background(), "missing")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if ok || val != "" {
		t.Errorf("Get missing = (%q, %v), want empty and false", val, ok)
	}
}

func TestRedis_SetIfAbsent(t *testing.T) {
	store, _ := newTestRedis(t)
	ctx := context.Background()

	set, err := store.SetIfAbsent(ctx, "lock", "locked", time.Minute)
	if err != nil {
		t.Fatalf("SetIfAbsent: %v", err)
	}
	if !set {
		t.Fatal("first SetIfAbsent should win")
	}

	set, err = store.SetIfAbsent(ctx, "lock", "locked", time.Minute)
	if err != nil {
		t.Fatalf("SetIfAbsent: %v", err)
	}
	if set {
		t.Error("second SetIfAbsent on held key should lose")
	}
}

func TestRedis_TTLExpiry(t *testing.T) {
	store, mr := newTestRedis(t)
	ctx := context.Background()

	if err := store.Set(ctx, "k", "v", time.Second); err != nil {
		t.Fatalf("Set: %v", err)
	}
	mr.FastForward(2 * time.Second)

	_, ok, err := store.Get(ctx, "k")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if ok {
		t.Error("key should have expired")
	}

	set, err := store.SetIfAbsent(ctx, "k", "v2", time.Minute)
	if err != nil {
		t.Fatalf("SetIfAbsent: %v", err)
	}
	if !set {
		t.Error("SetIfAbsent should win after expiry")
	}
}

func TestRedis_Unavailable(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	store := NewRedis(client)
	mr.Close()

	if _, _, err := store.Get(context.Background(), "k"); err == nil {
		t.Error("Get against a dead server should error")
	}
	if _, err := store.SetIfAbsent(context.Background(), "k", "v", time.Minute); err == nil {
		t.Error("SetIfAbsent against a dead server should error")
	}
}
