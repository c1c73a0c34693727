package discovery

import (
	"context"
	"net"
	"testing"
	"time"
)

func newTestListener(clock *fakeClock) (*Listener, *Registry, *EventChannel) {
	cfg := testConfig(testIdentity("Self", 8000))
	cfg.now = clock.now
	registry := NewRegistry()
	events := NewEventChannel(16)
	return newListener(cfg, registry, events), registry, events
}

func TestListenerSingleJoinPerPeerID(t *testing.T) {
	clock := &fakeClock{current: time.Unix(1_700_000_000, 0)}
	listener, registry, events := newTestListener(clock)
	ctx := context.Background()

	remote := testIdentity("B", 8001)
	payload := announcePayload(t, remote)

	for i := 0; i < 3; i++ {
		if err := listener.handleDatagram(ctx, payload, udpSource("10.0.0.2")); err != nil {
			t.Fatalf("handleDatagram %d failed: %v", i, err)
		}
		clock.advance(2 * time.Second)
	}

	if got := len(events.Events()); got != 1 {
		t.Fatalf("expected exactly one join event, got %d", got)
	}
	event := <-events.Events()
	if event.Type != EventJoin || event.PeerID != remote.ID {
		t.Fatalf("unexpected event %+v", event)
	}
	if event.Peer.IP != "10.0.0.2" || event.Peer.Info != remote {
		t.Fatalf("unexpected joined peer %+v", event.Peer)
	}

	entry, ok := registry.Get(remote.ID)
	if !ok {
		t.Fatalf("expected registry entry")
	}
	if want := time.Unix(1_700_000_004, 0); !entry.LastSeen.Equal(want) {
		t.Fatalf("expected last seen %s, got %s", want, entry.LastSeen)
	}
}

func TestListenerIgnoresSelfAnnounce(t *testing.T) {
	clock := &fakeClock{current: time.Now()}
	listener, registry, events := newTestListener(clock)

	payload := announcePayload(t, listener.cfg.Identity)
	if err := listener.handleDatagram(context.Background(), payload, udpSource("127.0.0.1")); err != nil {
		t.Fatalf("handleDatagram failed: %v", err)
	}

	if registry.Len() != 0 {
		t.Fatalf("expected registry untouched by self announce")
	}
	if len(events.Events()) != 0 {
		t.Fatalf("expected no event for self announce")
	}
}

func TestListenerDiscardsMalformedPayloads(t *testing.T) {
	clock := &fakeClock{current: time.Now()}
	listener, registry, events := newTestListener(clock)

	payloads := [][]byte{
		nil,
		[]byte(`{"id":"6f1c2a8e-5a0b-4c55-9a55-3b8f6c0f0a11","alias":"B","po`),
		[]byte(`hello`),
		[]byte(`{}`),
		[]byte(`{"id":"not-a-uuid","alias":"B","port":8001}`),
		[]byte(`{"id":"6f1c2a8e-5a0b-4c55-9a55-3b8f6c0f0a11","alias":"B","port":70000}`),
		[]byte(`{"id":"6f1c2a8e-5a0b-4c55-9a55-3b8f6c0f0a11"}`),
		[]byte(`{"id":"7f1c2a8e-5a0b-4c55-9a55-3b8f6c0f0a11","alias":"B"}`),
		[]byte(`{"id":"8f1c2a8e-5a0b-4c55-9a55-3b8f6c0f0a11","port":8001}`),
		[]byte(`{"id":"9f1c2a8e-5a0b-4c55-9a55-3b8f6c0f0a11","alias":"B","port":0}`),
	}
	for _, payload := range payloads {
		if err := listener.handleDatagram(context.Background(), payload, udpSource("10.0.0.2")); err != nil {
			t.Fatalf("handleDatagram(%q) failed: %v", payload, err)
		}
	}

	if registry.Len() != 0 {
		t.Fatalf("expected no registry mutation, got %d entries", registry.Len())
	}
	if len(events.Events()) != 0 {
		t.Fatalf("expected no events for malformed payloads")
	}
}

func TestListenerServeSurvivesGarbageAndStopsOnCancel(t *testing.T) {
	clock := &fakeClock{current: time.Now()}
	listener, registry, events := newTestListener(clock)

	conn, err := net.ListenPacket("udp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("ListenPacket failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- listener.Serve(ctx, conn)
	}()

	sender, err := net.Dial("udp4", conn.LocalAddr().String())
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer func() {
		_ = sender.Close()
	}()

	if _, err := sender.Write([]byte(`{"id":`)); err != nil {
		t.Fatalf("write garbage: %v", err)
	}
	remote := testIdentity("B", 8001)
	if _, err := sender.Write(announcePayload(t, remote)); err != nil {
		t.Fatalf("write announce: %v", err)
	}

	event, ok := waitForEvent(events.Events(), EventJoin, remote.ID, 2*time.Second)
	if !ok {
		t.Fatalf("expected join event after garbage datagram")
	}
	if event.Peer.IP != "127.0.0.1" {
		t.Fatalf("expected source ip from the socket, got %q", event.Peer.IP)
	}
	if registry.Len() != 1 {
		t.Fatalf("expected one registered peer, got %d", registry.Len())
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Serve returned error on cancel: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Serve did not return after cancel")
	}
}

func TestListenerRunFailsOnBadAddress(t *testing.T) {
	cfg := testConfig(testIdentity("Self", 8000))
	cfg.ListenAddr = "not an address"
	listener := newListener(cfg, NewRegistry(), NewEventChannel(1))

	if err := listener.Run(context.Background()); err == nil {
		t.Fatalf("expected bind error")
	}
}
