package discovery

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"lanshare/logger"
	"lanshare/models"
)

func TestNewValidatesConfig(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Fatalf("expected error for missing identity")
	}

	_, err := New(Config{
		Identity:         testIdentity("A", 8000),
		AnnounceInterval: 5 * time.Second,
		PeerTimeout:      5 * time.Second,
	})
	if err == nil {
		t.Fatalf("expected error when timeout does not exceed interval")
	}
}

func TestTwoServicesDiscoverEachOther(t *testing.T) {
	addrA, addrB := freeUDPAddr(t), freeUDPAddr(t)
	a := models.Identity{ID: uuid.New(), Alias: "A", Port: 8000}
	b := models.Identity{ID: uuid.New(), Alias: "B", Port: 8001}

	newService := func(identity models.Identity, listen, announce string) *Service {
		svc, err := New(Config{
			Identity:         identity,
			ListenAddr:       listen,
			AnnounceAddr:     announce,
			AnnounceInterval: 50 * time.Millisecond,
			ReapInterval:     50 * time.Millisecond,
			PeerTimeout:      400 * time.Millisecond,
			Logger:           logger.Discard(),
		})
		if err != nil {
			t.Fatalf("New failed: %v", err)
		}
		return svc
	}
	svcA := newService(a, addrA, addrB)
	svcB := newService(b, addrB, addrA)

	ctxA, cancelA := context.WithCancel(context.Background())
	defer cancelA()
	ctxB, cancelB := context.WithCancel(context.Background())
	defer cancelB()

	doneA := make(chan error, 1)
	doneB := make(chan error, 1)
	go func() { doneA <- svcA.Run(ctxA) }()
	go func() { doneB <- svcB.Run(ctxB) }()

	joinedB, ok := waitForEvent(svcA.Events.Events(), EventJoin, b.ID, 3*time.Second)
	if !ok {
		t.Fatalf("A did not see B join")
	}
	if joinedB.Peer.Info != b || joinedB.Peer.IP != "127.0.0.1" {
		t.Fatalf("unexpected peer B on A: %+v", joinedB.Peer)
	}
	if _, ok := waitForEvent(svcB.Events.Events(), EventJoin, a.ID, 3*time.Second); !ok {
		t.Fatalf("B did not see A join")
	}

	if svcA.Registry.Len() != 1 || svcB.Registry.Len() != 1 {
		t.Fatalf("expected exactly one entry each, got A=%d B=%d", svcA.Registry.Len(), svcB.Registry.Len())
	}

	cancelB()
	if err := <-doneB; err != nil {
		t.Fatalf("B Run returned error: %v", err)
	}
	for range svcB.Events.Events() {
		// B's stream is closed once Run returns.
	}

	if _, ok := waitForEvent(svcA.Events.Events(), EventLeave, b.ID, 3*time.Second); !ok {
		t.Fatalf("A did not see B leave after B stopped announcing")
	}
	if _, ok := svcA.Registry.Get(b.ID); ok {
		t.Fatalf("expected B evicted from A's registry")
	}

	cancelA()
	if err := <-doneA; err != nil {
		t.Fatalf("A Run returned error: %v", err)
	}
}
