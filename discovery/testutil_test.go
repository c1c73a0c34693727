package discovery

import (
	"encoding/json"
	"net"
	"testing"
	"time"

	"github.com/google/uuid"

	"lanshare/logger"
	"lanshare/models"
)

type fakeClock struct {
	current time.Time
}

func (c *fakeClock) now() time.Time {
	return c.current
}

func (c *fakeClock) advance(d time.Duration) {
	c.current = c.current.Add(d)
}

func testIdentity(alias string, port uint16) models.Identity {
	return models.Identity{ID: uuid.New(), Alias: alias, Port: port}
}

func testConfig(identity models.Identity) Config {
	return Config{
		Identity: identity,
		Logger:   logger.Discard(),
	}.withDefaults()
}

func testPeer(alias, ip string) models.Peer {
	return models.Peer{Info: testIdentity(alias, 8000), IP: ip}
}

func announcePayload(t *testing.T, identity models.Identity) []byte {
	t.Helper()
	raw, err := json.Marshal(identity)
	if err != nil {
		t.Fatalf("marshal announce: %v", err)
	}
	return raw
}

func udpSource(ip string) net.Addr {
	return &net.UDPAddr{IP: net.ParseIP(ip), Port: 53317}
}

func freeUDPAddr(t *testing.T) string {
	t.Helper()
	conn, err := net.ListenPacket("udp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("reserve udp port: %v", err)
	}
	addr := conn.LocalAddr().String()
	_ = conn.Close()
	return addr
}

func waitForCondition(t *testing.T, timeout time.Duration, condition func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("condition not met before timeout %s", timeout)
}

func waitForEvent(events <-chan Event, eventType EventType, id uuid.UUID, timeout time.Duration) (Event, bool) {
	deadline := time.After(timeout)
	for {
		select {
		case event, ok := <-events:
			if !ok {
				return Event{}, false
			}
			if event.Type == eventType && event.PeerID == id {
				return event, true
			}
		case <-deadline:
			return Event{}, false
		}
	}
}
