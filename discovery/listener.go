package discovery

import (
	"context"
	"fmt"
	"net"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"lanshare/models"
)

// Listener receives announces and registers the peers they describe.
type Listener struct {
	cfg      Config
	registry *Registry
	events   *EventChannel
	log      logrus.FieldLogger
}

func newListener(cfg Config, registry *Registry, events *EventChannel) *Listener {
	return &Listener{
		cfg:      cfg,
		registry: registry,
		events:   events,
		log:      cfg.Logger.WithField("component", "listener"),
	}
}

// Run binds the listen address and serves until ctx is cancelled or the
// socket fails. A multicast address joins the group on the default interface.
func (l *Listener) Run(ctx context.Context) error {
	conn, err := listenPacket(l.cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("bind discovery listener on %q: %w", l.cfg.ListenAddr, err)
	}
	return l.Serve(ctx, conn)
}

// Serve reads datagrams from conn. conn is closed on return; cancelling ctx
// closes it to unblock the pending read.
func (l *Listener) Serve(ctx context.Context, conn net.PacketConn) error {
	stop := context.AfterFunc(ctx, func() {
		_ = conn.Close()
	})
	defer stop()
	defer func() {
		_ = conn.Close()
	}()

	l.log.WithField("addr", conn.LocalAddr().String()).Info("listening for announces")

	buf := make([]byte, maxDatagramSize)
	for {
		n, src, err := conn.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("receive announce: %w", err)
		}

		if err := l.handleDatagram(ctx, buf[:n], src); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
	}
}

func (l *Listener) handleDatagram(ctx context.Context, payload []byte, src net.Addr) error {
	if len(payload) == 0 {
		return nil
	}

	info, err := models.DecodeIdentity(payload)
	if err != nil || info.ID == uuid.Nil || info.Port == 0 {
		l.log.WithFields(logrus.Fields{
			"from":  addrString(src),
			"bytes": len(payload),
		}).Debug("discarding unknown datagram")
		return nil
	}

	if info.ID == l.cfg.Identity.ID {
		return nil
	}

	ip := sourceIP(src)
	if ip == "" {
		return nil
	}
	peer := models.Peer{Info: info, IP: ip}

	return l.events.Emit(ctx, func() []Event {
		if !l.registry.Observe(peer, l.cfg.now()) {
			return nil
		}
		l.log.WithFields(logrus.Fields{
			"peer":  info.ID.String(),
			"alias": info.Alias,
			"ip":    ip,
			"port":  info.Port,
		}).Info("peer joined")
		return []Event{JoinEvent(peer)}
	})
}

func listenPacket(addr string) (net.PacketConn, error) {
	udpAddr, err := net.ResolveUDPAddr("udp4", addr)
	if err != nil {
		return nil, err
	}
	if udpAddr.IP != nil && udpAddr.IP.IsMulticast() {
		return net.ListenMulticastUDP("udp4", nil, udpAddr)
	}
	return net.ListenUDP("udp4", udpAddr)
}

func sourceIP(addr net.Addr) string {
	switch a := addr.(type) {
	case *net.UDPAddr:
		if a.IP == nil {
			return ""
		}
		return a.IP.String()
	case nil:
		return ""
	default:
		host, _, err := net.SplitHostPort(a.String())
		if err != nil {
			return ""
		}
		return host
	}
}

func addrString(addr net.Addr) string {
	if addr == nil {
		return ""
	}
	return addr.String()
}
