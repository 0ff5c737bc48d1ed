package ratelimit

import (
	"testing"
	"time"
)

func TestAllowExhaustsBucket(t *testing.T) {
	l := New(time.Minute)
	for i := 0; i < 3; i++ {
		if !l.Allow("key-a", 3) {
			t.Fatalf("request %d denied, want allowed", i+1)
		}
	}
	if l.Allow("key-a", 3) {
		t.Error("request beyond limit allowed, want denied")
	}
}

func TestKeysAreIndependent(t *testing.T) {
	l := New(time.Minute)
	for i := 0; i < 3; i++ {
		l.Allow("key-a", 3)
	}
	if !l.Allow("key-b", 3) {
		t.Error("fresh key denied after a different key hit its limit")
	}
}

func TestTokensRefillOverTime(t *testing.T) {
	l := New(100 * time.Millisecond)
	for i := 0; i < 2; i++ {
		l.Allow("key-a", 2)
	}
	if l.Allow("key-a", 2) {
		t.Fatal("bucket should be empty")
	}
	time.Sleep(120 * time.Millisecond)
	if !l.Allow("key-a", 2) {
		t.Error("bucket did not refill after the window elapsed")
	}
}
