package discovery

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/grandcat/zeroconf"

	"lanshare/models"
)

const (
	// DefaultMDNSService is the mDNS service name without domain suffix.
	DefaultMDNSService = "_lanshare._tcp"
	// DefaultMDNSDomain is the mDNS domain.
	DefaultMDNSDomain = "local."
	// MDNSVersion is the TXT record protocol version.
	MDNSVersion = 1
)

type registerFunc func(instance, service, domain string, port int, text []string, ifaces []net.Interface) (*zeroconf.Server, error)

// AdvertiserConfig controls the zeroconf advertisement of the rendezvous service.
type AdvertiserConfig struct {
	Identity models.Identity
	Service  string
	Domain   string

	registerFn registerFunc
}

func (c AdvertiserConfig) withDefaults() AdvertiserConfig {
	out := c
	if out.Service == "" {
		out.Service = DefaultMDNSService
	}
	if out.Domain == "" {
		out.Domain = DefaultMDNSDomain
	}
	if out.registerFn == nil {
		out.registerFn = zeroconf.Register
	}
	return out
}

func (c AdvertiserConfig) validate() error {
	if c.Identity.ID == uuid.Nil {
		return errors.New("identity id is required")
	}
	if strings.TrimSpace(c.Identity.Alias) == "" {
		return errors.New("identity alias is required")
	}
	if c.Identity.Port == 0 {
		return errors.New("service port must be > 0")
	}
	return nil
}

// Advertiser publishes the rendezvous HTTP service over mDNS.
type Advertiser struct {
	server *zeroconf.Server
}

// StartAdvertiser registers the service and starts answering queries.
func StartAdvertiser(config AdvertiserConfig) (*Advertiser, error) {
	cfg := config.withDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	txt := []string{
		"id=" + cfg.Identity.ID.String(),
		"version=" + strconv.Itoa(MDNSVersion),
	}

	server, err := cfg.registerFn(cfg.Identity.Alias, cfg.Service, cfg.Domain, int(cfg.Identity.Port), txt, nil)
	if err != nil {
		return nil, fmt.Errorf("register mDNS service: %w", err)
	}

	return &Advertiser{server: server}, nil
}

// Stop withdraws the advertisement.
func (a *Advertiser) Stop() {
	if a == nil || a.server == nil {
		return
	}
	a.server.Shutdown()
}
