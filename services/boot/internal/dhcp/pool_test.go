package dhcp

import (
	"net"
	"testing"
	"time"
)

func testPool(start, end string, leaseTime time.Duration) *leasePool {
	return newLeasePool(net.ParseIP(start), net.ParseIP(end), leaseTime)
}

func TestAssignIsStablePerMAC(t *testing.T) {
	pool := testPool("10.0.0.10", "10.0.0.12", time.Hour)

	first := pool.Assign("aa:bb:cc:dd:ee:01")
	if first == nil {
		t.Fatal("expected an address")
	}
	again := pool.Assign("aa:bb:cc:dd:ee:01")
	if !first.Equal(again) {
		t.Fatalf("same mac got %s then %s", first, again)
	}

	other := pool.Assign("aa:bb:cc:dd:ee:02")
	if other == nil || other.Equal(first) {
		t.Fatalf("second mac got %v, want a distinct address", other)
	}
}

func TestAssignExhaustion(t *testing.T) {
	pool := testPool("10.0.0.10", "10.0.0.11", time.Hour)

	if ip := pool.Assign("aa:bb:cc:dd:ee:01"); ip == nil {
		t.Fatal("first assignment failed")
	}
	if ip := pool.Assign("aa:bb:cc:dd:ee:02"); ip == nil {
		t.Fatal("second assignment failed")
	}
	if ip := pool.Assign("aa:bb:cc:dd:ee:03"); ip != nil {
		t.Fatalf("expected exhaustion, got %s", ip)
	}

	pool.Release("aa:bb:cc:dd:ee:01")
	if ip := pool.Assign("aa:bb:cc:dd:ee:03"); ip == nil {
		t.Fatal("expected reuse of a released address")
	}
}

func TestAssignReusesExpiredLeases(t *testing.T) {
	pool := testPool("10.0.0.10", "10.0.0.10", time.Hour)

	current := time.Now()
	pool.now = func() time.Time { return current }

	first := pool.Assign("aa:bb:cc:dd:ee:01")
	if first == nil {
		t.Fatal("first assignment failed")
	}

	current = current.Add(2 * time.Hour)
	second := pool.Assign("aa:bb:cc:dd:ee:02")
	if second == nil || !second.Equal(first) {
		t.Fatalf("expected expired address %s to be reused, got %v", first, second)
	}
}

func TestIncrementIPCarries(t *testing.T) {
	got := incrementIP(net.ParseIP("10.0.0.255").To4())
	if want := net.ParseIP("10.0.1.0").To4(); !got.Equal(want) {
		t.Fatalf("incrementIP = %s, want %s", got, want)
	}
}
