// Package node wires discovery, the rendezvous server and transfer history
// into one process-lifetime unit.
package node

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"lanshare/config"
	"lanshare/discovery"
	"lanshare/models"
	"lanshare/network"
)

// ErrUnknownPeer is returned when an operation names a peer not in the registry.
var ErrUnknownPeer = errors.New("unknown peer")

// Options configures a Node.
type Options struct {
	Identity models.Identity
	Settings config.Settings
	// DataDir fills settings defaults for shared and download directories.
	DataDir string
	// HTTPAddr overrides the rendezvous bind address. Defaults to ":<identity port>".
	HTTPAddr string
	Recorder network.Recorder
	Progress network.ProgressFunc
	Logger   logrus.FieldLogger
}

// Node owns the discovery service, offer table and HTTP client/server pair.
type Node struct {
	identity  models.Identity
	settings  config.Settings
	httpAddr  string
	recorder  network.Recorder
	log       logrus.FieldLogger
	discovery *discovery.Service
	offers    *network.OfferTable
	client    *network.Client
}

// New validates options and builds the components. Nothing is bound until Run.
func New(opts Options) (*Node, error) {
	if opts.Identity.ID == uuid.Nil {
		return nil, errors.New("identity id is required")
	}
	if opts.Identity.Port == 0 {
		return nil, errors.New("identity port must be > 0")
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}

	settings := opts.Settings
	config.ApplyDefaults(&settings, opts.DataDir)
	if err := config.Validate(settings); err != nil {
		return nil, fmt.Errorf("invalid settings: %w", err)
	}

	svc, err := discovery.New(discovery.Config{
		Identity:         opts.Identity,
		ListenAddr:       settings.Discovery.ListenAddr,
		AnnounceAddr:     settings.Discovery.AnnounceAddr,
		AnnounceInterval: settings.Discovery.AnnounceInterval,
		ReapInterval:     settings.Discovery.ReapInterval,
		PeerTimeout:      settings.Discovery.PeerTimeout,
		EventBuffer:      settings.Discovery.EventBuffer,
		Logger:           opts.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("create discovery service: %w", err)
	}

	httpAddr := opts.HTTPAddr
	if httpAddr == "" {
		httpAddr = net.JoinHostPort("", strconv.Itoa(int(opts.Identity.Port)))
	}

	offers := network.NewOfferTable(settings.Transfer.OfferTTL)
	client := network.NewClient(network.ClientOptions{
		Identity:    opts.Identity,
		Offers:      offers,
		DownloadDir: settings.Transfer.DownloadDir,
		Timeout:     settings.Transfer.ClientTimeout,
		Progress:    opts.Progress,
		Recorder:    opts.Recorder,
		Logger:      opts.Logger,
	})

	return &Node{
		identity:  opts.Identity,
		settings:  settings,
		httpAddr:  httpAddr,
		recorder:  opts.Recorder,
		log:       opts.Logger.WithField("component", "node"),
		discovery: svc,
		offers:    offers,
		client:    client,
	}, nil
}

// Identity returns the local identity.
func (n *Node) Identity() models.Identity {
	return n.identity
}

// Events returns the Join/Leave stream. It is closed after Run returns.
func (n *Node) Events() <-chan discovery.Event {
	return n.discovery.Events.Events()
}

// Peers returns a snapshot of live peers.
func (n *Node) Peers() []models.Peer {
	return n.discovery.Registry.Peers()
}

// Peer returns the live peer with id.
func (n *Node) Peer(id uuid.UUID) (models.Peer, bool) {
	entry, ok := n.discovery.Registry.Get(id)
	if !ok {
		return models.Peer{}, false
	}
	return entry.Peer, true
}

// Offers returns the table served by GET /download/{id}.
func (n *Node) Offers() *network.OfferTable {
	return n.offers
}

// Run binds the rendezvous port, then runs discovery and the HTTP server until
// ctx is cancelled or either fails. A bind failure is returned immediately.
// The event stream is closed when Run returns.
func (n *Node) Run(ctx context.Context) error {
	server, err := network.Listen(n.httpAddr, network.ServerOptions{
		SharedDir:      n.settings.Transfer.SharedDir,
		Offers:         n.offers,
		MaxConnections: n.settings.Transfer.MaxConnections,
		Recorder:       n.recorder,
		Logger:         n.log,
	})
	if err != nil {
		n.discovery.Events.Close()
		return err
	}

	if n.settings.MDNS.Advertise() {
		advertiser, err := discovery.StartAdvertiser(discovery.AdvertiserConfig{Identity: n.identity})
		if err != nil {
			n.log.WithError(err).Warn("mDNS advertisement unavailable")
		} else {
			defer advertiser.Stop()
		}
	}

	n.log.WithFields(logrus.Fields{
		"id":    n.identity.ID.String(),
		"alias": n.identity.Alias,
		"http":  server.Addr().String(),
	}).Info("node started")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return n.discovery.Run(gctx) })
	g.Go(func() error { return server.Serve(gctx) })
	err = g.Wait()

	n.log.Info("node stopped")
	return err
}

// OfferFile offers the file at path to the live peer peerID.
func (n *Node) OfferFile(ctx context.Context, path string, peerID uuid.UUID) (models.Metadata, error) {
	peer, ok := n.Peer(peerID)
	if !ok {
		return models.Metadata{}, fmt.Errorf("%w: %s", ErrUnknownPeer, peerID)
	}
	return n.client.OfferFile(ctx, path, peer)
}

// OfferFileTo offers the file at path to a peer that may not be in the registry.
func (n *Node) OfferFileTo(ctx context.Context, path string, peer models.Peer) (models.Metadata, error) {
	return n.client.OfferFile(ctx, path, peer)
}

// Download pulls offer id from peer into the download directory.
func (n *Node) Download(ctx context.Context, peer models.Peer, id uuid.UUID, filename string) (string, error) {
	return n.client.DownloadFile(ctx, peer.IP, peer.Info.Port, id, filename)
}
