// Package discovery implements the LAN multicast announce/listen protocol,
// the peer registry with liveness expiry and the ordered join/leave event stream.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"lanshare/models"
)

const (
	// DefaultGroupAddr is the well-known multicast group and port.
	DefaultGroupAddr = "224.0.0.167:53317"
	// DefaultAnnounceInterval is the period between two announces.
	DefaultAnnounceInterval = 2 * time.Second
	// DefaultReapInterval is the period between two registry scans.
	DefaultReapInterval = 5 * time.Second
	// DefaultPeerTimeout is the age after which a silent peer is evicted.
	DefaultPeerTimeout = 10 * time.Second
	// DefaultEventBuffer is the capacity of the event channel.
	DefaultEventBuffer = 64

	maxDatagramSize = 2048
)

// Config controls announcer, listener and reaper behavior.
type Config struct {
	Identity models.Identity

	ListenAddr       string
	AnnounceAddr     string
	AnnounceInterval time.Duration
	ReapInterval     time.Duration
	PeerTimeout      time.Duration
	EventBuffer      int

	Logger logrus.FieldLogger

	now func() time.Time
}

func (c Config) withDefaults() Config {
	out := c
	if out.ListenAddr == "" {
		out.ListenAddr = DefaultGroupAddr
	}
	if out.AnnounceAddr == "" {
		out.AnnounceAddr = DefaultGroupAddr
	}
	if out.AnnounceInterval <= 0 {
		out.AnnounceInterval = DefaultAnnounceInterval
	}
	if out.ReapInterval <= 0 {
		out.ReapInterval = DefaultReapInterval
	}
	if out.PeerTimeout <= 0 {
		out.PeerTimeout = DefaultPeerTimeout
	}
	if out.EventBuffer <= 0 {
		out.EventBuffer = DefaultEventBuffer
	}
	if out.Logger == nil {
		out.Logger = logrus.StandardLogger()
	}
	if out.now == nil {
		out.now = time.Now
	}
	return out
}

func (c Config) validate() error {
	if c.Identity.ID == uuid.Nil {
		return errors.New("local identity id is required")
	}
	if c.PeerTimeout <= c.AnnounceInterval {
		return fmt.Errorf("peer timeout %s must exceed announce interval %s", c.PeerTimeout, c.AnnounceInterval)
	}
	return nil
}

// Service owns the discovery tasks and the state they share.
type Service struct {
	Registry  *Registry
	Events    *EventChannel
	Announcer *Announcer
	Listener  *Listener
	Reaper    *Reaper
}

// New builds a Service. Nothing touches the network until Run.
func New(config Config) (*Service, error) {
	cfg := config.withDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	registry := NewRegistry()
	events := NewEventChannel(cfg.EventBuffer)

	return &Service{
		Registry:  registry,
		Events:    events,
		Announcer: newAnnouncer(cfg),
		Listener:  newListener(cfg, registry, events),
		Reaper:    newReaper(cfg, registry, events),
	}, nil
}

// Run runs announcer, listener and reaper until ctx is cancelled or one of
// them fails. The event channel is closed once all three have returned.
func (s *Service) Run(ctx context.Context) error {
	defer s.Events.Close()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.Announcer.Run(gctx) })
	g.Go(func() error { return s.Listener.Run(gctx) })
	g.Go(func() error { return s.Reaper.Run(gctx) })
	return g.Wait()
}
