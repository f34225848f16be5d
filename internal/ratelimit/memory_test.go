package ratelimit

import (
	"context"
	"testing"
	"time"
)

func TestMemoryEnforcesLimit(t *testing.T) {
	lim := NewMemory(3, time.Hour)
	defer lim.Close()

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		ok, err := lim.Consume(ctx, "1.2.3.4")
		if err != nil {
			t.Fatalf("Consume: %v", err)
		}
		if !ok {
			t.Fatalf("request %d within limit must be accepted", i+1)
		}
	}
	ok, err := lim.Consume(ctx, "1.2.3.4")
	if err != nil {
		t.Fatalf("Consume: %v", err)
	}
	if ok {
		t.Fatal("request over limit must be rejected")
	}
}

func TestMemoryKeysAreIndependent(t *testing.T) {
	lim := NewMemory(1, time.Hour)
	defer lim.Close()

	ctx := context.Background()
	if ok, _ := lim.Consume(ctx, "a"); !ok {
		t.Fatal("first request for key a must pass")
	}
	if ok, _ := lim.Consume(ctx, "a"); ok {
		t.Fatal("second request for key a must be rejected")
	}
	if ok, _ := lim.Consume(ctx, "b"); !ok {
		t.Fatal("key b must have its own budget")
	}
}

func TestNoOpAlwaysAllows(t *testing.T) {
	var lim NoOp
	for i := 0; i < 100; i++ {
		ok, err := lim.Consume(context.Background(), "any")
		if err != nil || !ok {
			t.Fatalf("noop must always accept: ok=%v err=%v", ok, err)
		}
	}
}
