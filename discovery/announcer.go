package discovery

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/net/ipv4"
)

// Announcer periodically sends the local identity to the discovery group.
type Announcer struct {
	cfg Config
	log logrus.FieldLogger
}

func newAnnouncer(cfg Config) *Announcer {
	return &Announcer{
		cfg: cfg,
		log: cfg.Logger.WithField("component", "announcer"),
	}
}

// Run binds an ephemeral UDP socket and announces until ctx is cancelled.
// Bind and send failures are returned; nothing is retried.
func (a *Announcer) Run(ctx context.Context) error {
	target, err := net.ResolveUDPAddr("udp4", a.cfg.AnnounceAddr)
	if err != nil {
		return fmt.Errorf("resolve announce address %q: %w", a.cfg.AnnounceAddr, err)
	}

	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4zero})
	if err != nil {
		return fmt.Errorf("bind announce socket: %w", err)
	}

	if target.IP.IsMulticast() {
		pc := ipv4.NewPacketConn(conn)
		if err := pc.SetMulticastTTL(1); err != nil {
			a.log.WithError(err).Warn("set multicast ttl")
		}
		// Same-host instances must hear each other; self-announces are dropped by id.
		if err := pc.SetMulticastLoopback(true); err != nil {
			a.log.WithError(err).Warn("enable multicast loopback")
		}
	}

	return a.Serve(ctx, conn, target)
}

// Serve announces over conn to target. conn is closed on return.
func (a *Announcer) Serve(ctx context.Context, conn net.PacketConn, target net.Addr) error {
	defer func() {
		_ = conn.Close()
	}()

	payload, err := json.Marshal(a.cfg.Identity)
	if err != nil {
		return fmt.Errorf("encode announce: %w", err)
	}

	a.log.WithFields(logrus.Fields{
		"target":   target.String(),
		"interval": a.cfg.AnnounceInterval.String(),
	}).Info("announcing")

	ticker := time.NewTicker(a.cfg.AnnounceInterval)
	defer ticker.Stop()

	for {
		if _, err := conn.WriteTo(payload, target); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("send announce to %s: %w", target, err)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
