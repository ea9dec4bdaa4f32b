package kv

import (
	"context"
	"errors"
	"testing"
	"time"
)

type profile struct {
	Name  string `json:"name"`
	Plan  string `json:"plan"`
	Loads int    `json:"loads"`
}

func TestGetOrLoadCachesLoaderResult(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	loads := 0
	loader := func(context.Context) (profile, error) {
		loads++
		return profile{Name: "alice", Plan: "pro", Loads: loads}, nil
	}

	first, err := GetOrLoad(ctx, store, "cache:user:1", time.Minute, loader)
	if err != nil {
		t.Fatalf("first load: %v", err)
	}
	second, err := GetOrLoad(ctx, store, "cache:user:1", time.Minute, loader)
	if err != nil {
		t.Fatalf("cached read: %v", err)
	}

	if loads != 1 {
		t.Fatalf("loader ran %d times, want 1", loads)
	}
	if first != second {
		t.Fatalf("cached value diverged: %+v vs %+v", first, second)
	}
}

func TestGetOrLoadExpiry(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	loads := 0
	loader := func(context.Context) (int, error) {
		loads++
		return loads, nil
	}

	if _, err := GetOrLoad(ctx, store, "cache:n", time.Second, loader); err != nil {
		t.Fatalf("load: %v", err)
	}
	mr.FastForward(2 * time.Second)

	val, err := GetOrLoad(ctx, store, "cache:n", time.Second, loader)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if val != 2 || loads != 2 {
		t.Fatalf("expected reload after expiry, got val=%d loads=%d", val, loads)
	}
}

func TestGetOrLoadPropagatesLoaderError(t *testing.T) {
	store, _ := newTestStore(t)
	wantErr := errors.New("upstream down")

	_, err := GetOrLoad(context.Background(), store, "cache:x", time.Minute,
		func(context.Context) (string, error) { return "", wantErr })
	if !errors.Is(err, wantErr) {
		t.Fatalf("got %v, want loader error", err)
	}
}

func TestGetOrLoadFailsOpenWhenStoreDown(t *testing.T) {
	store, mr := newTestStore(t)
	mr.Close()

	val, err := GetOrLoad(context.Background(), store, "cache:x", time.Minute,
		func(context.Context) (string, error) { return "fresh", nil })
	if err != nil || val != "fresh" {
		t.Fatalf("expected direct load, got %q err=%v", val, err)
	}
}

func TestInvalidateByPattern(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	for _, key := range []string{"cache:user:1", "cache:user:2", "cache:team:1"} {
		if err := store.Set(ctx, key, "x", time.Minute); err != nil {
			t.Fatalf("set: %v", err)
		}
	}

	n, err := Invalidate(ctx, store, "cache:user:*")
	if err != nil || n != 2 {
		t.Fatalf("invalidate: n=%d err=%v", n, err)
	}

	if _, found, _ := store.Get(ctx, "cache:team:1"); !found {
		t.Fatal("unmatched key was deleted")
	}
	if _, found, _ := store.Get(ctx, "cache:user:1"); found {
		t.Fatal("matched key survived")
	}
}
