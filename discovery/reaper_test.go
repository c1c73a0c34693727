package discovery

import (
	"context"
	"testing"
	"time"
)

func TestReaperSweepEvictsStalePeer(t *testing.T) {
	clock := &fakeClock{current: time.Unix(1_700_000_000, 0)}
	cfg := testConfig(testIdentity("Self", 8000))
	cfg.now = clock.now
	registry := NewRegistry()
	events := NewEventChannel(8)
	reaper := newReaper(cfg, registry, events)

	stale := testPeer("Alice", "10.0.0.2")
	fresh := testPeer("Carol", "10.0.0.3")
	registry.Observe(stale, clock.now())
	registry.Observe(fresh, clock.now().Add(8*time.Second))

	clock.advance(11 * time.Second)
	if err := reaper.Sweep(context.Background()); err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}

	if got := len(events.Events()); got != 1 {
		t.Fatalf("expected exactly one leave event, got %d", got)
	}
	event := <-events.Events()
	if event.Type != EventLeave || event.PeerID != stale.Info.ID {
		t.Fatalf("unexpected event %+v", event)
	}
	if _, ok := registry.Get(stale.Info.ID); ok {
		t.Fatalf("expected stale peer removed")
	}
	entry, ok := registry.Get(fresh.Info.ID)
	if !ok {
		t.Fatalf("expected fresh peer to survive")
	}
	if entry.Peer != fresh {
		t.Fatalf("expected fresh peer unchanged, got %+v", entry.Peer)
	}

	// A second sweep has nothing left to evict.
	if err := reaper.Sweep(context.Background()); err != nil {
		t.Fatalf("second Sweep failed: %v", err)
	}
	if got := len(events.Events()); got != 0 {
		t.Fatalf("expected no duplicate leave, got %d events", got)
	}
}

func TestJoinPrecedesLeaveForSamePeer(t *testing.T) {
	clock := &fakeClock{current: time.Unix(1_700_000_000, 0)}
	cfg := testConfig(testIdentity("Self", 8000))
	cfg.now = clock.now
	registry := NewRegistry()
	events := NewEventChannel(8)
	listener := newListener(cfg, registry, events)
	reaper := newReaper(cfg, registry, events)

	remote := testIdentity("B", 8001)
	if err := listener.handleDatagram(context.Background(), announcePayload(t, remote), udpSource("10.0.0.5")); err != nil {
		t.Fatalf("handleDatagram failed: %v", err)
	}
	clock.advance(cfg.PeerTimeout + time.Second)
	if err := reaper.Sweep(context.Background()); err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}

	first, second := <-events.Events(), <-events.Events()
	if first.Type != EventJoin || second.Type != EventLeave {
		t.Fatalf("expected join then leave, got %s then %s", first.Type, second.Type)
	}
	if first.PeerID != remote.ID || second.PeerID != remote.ID {
		t.Fatalf("expected both events for %s", remote.ID)
	}
}

func TestReaperRunEvictsOnTicker(t *testing.T) {
	cfg := testConfig(testIdentity("Self", 8000))
	cfg.ReapInterval = 20 * time.Millisecond
	cfg.PeerTimeout = 100 * time.Millisecond
	registry := NewRegistry()
	events := NewEventChannel(8)
	reaper := newReaper(cfg, registry, events)

	peer := testPeer("Bob", "10.0.0.2")
	registry.Observe(peer, time.Now().Add(-time.Second))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- reaper.Run(ctx)
	}()

	if _, ok := waitForEvent(events.Events(), EventLeave, peer.Info.ID, 2*time.Second); !ok {
		t.Fatalf("expected leave event from reaper loop")
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
}
