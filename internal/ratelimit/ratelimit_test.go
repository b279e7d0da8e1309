package ratelimit

import (
	"testing"
	"time"
)

func TestAllow_BurstThenBlock(t *testing.T) {
	l := New(Config{
		RequestsPerMinute: 60,
		BurstSize:         3,
		CleanupInterval:   time.Minute,
	})
	defer l.Stop()

	for i := 0; i < 3; i++ {
		if !l.Allow("dev:alice") {
			t.Fatalf("request %d should be allowed within burst", i)
		}
	}
	if l.Allow("dev:alice") {
		t.Error("request beyond burst should be blocked")
	}
}

func TestAllow_IndependentKeys(t *testing.T) {
	l := New(Config{
		RequestsPerMinute: 60,
		BurstSize:         1,
		CleanupInterval:   time.Minute,
	})
	defer l.Stop()

	if !l.Allow("dev:alice") {
		t.Error("first request for alice should pass")
	}
	if !l.Allow("dev:bob") {
		t.Error("first request for bob should pass regardless of alice's bucket")
	}
	if l.Allow("dev:alice") {
		t.Error("second request for alice should be blocked")
	}
}

func TestAllow_RefillsOverTime(t *testing.T) {
	l := New(Config{
		RequestsPerMinute: 6000, // 100 tokens/sec so the test stays fast
		BurstSize:         1,
		CleanupInterval:   time.Minute,
	})
	defer l.Stop()

	if !l.Allow("key") {
		t.Fatal("first request should pass")
	}
	if l.Allow("key") {
		t.Fatal("second immediate request should be blocked")
	}

	time.Sleep(50 * time.Millisecond)

	if !l.Allow("key") {
		t.Error("request after refill window should pass")
	}
}
