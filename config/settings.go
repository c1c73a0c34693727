package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultDiscoveryAddr    = "224.0.0.167:53317"
	DefaultAnnounceInterval = 2 * time.Second
	DefaultReapInterval     = 5 * time.Second
	DefaultPeerTimeout      = 10 * time.Second
	DefaultEventBuffer      = 64
	DefaultOfferTTL         = time.Hour
	DefaultMaxConnections   = 64
	DefaultClientTimeout    = 30 * time.Second
	DefaultHistoryRetention = 30 * 24 * time.Hour
	DefaultLogLevel         = "info"
)

// Settings holds the tunables read from settings.yaml.
type Settings struct {
	LogLevel  string            `yaml:"log_level"`
	Discovery DiscoverySettings `yaml:"discovery"`
	Transfer  TransferSettings  `yaml:"transfer"`
	MDNS      MDNSSettings      `yaml:"mdns"`
}

// DiscoverySettings controls the multicast announce/listen protocol.
type DiscoverySettings struct {
	ListenAddr       string        `yaml:"listen_addr"`
	AnnounceAddr     string        `yaml:"announce_addr"`
	AnnounceInterval time.Duration `yaml:"announce_interval"`
	ReapInterval     time.Duration `yaml:"reap_interval"`
	PeerTimeout      time.Duration `yaml:"peer_timeout"`
	EventBuffer      int           `yaml:"event_buffer"`
}

// TransferSettings controls the rendezvous HTTP service.
type TransferSettings struct {
	SharedDir      string        `yaml:"shared_dir"`
	DownloadDir    string        `yaml:"download_dir"`
	OfferTTL       time.Duration `yaml:"offer_ttl"`
	MaxConnections int           `yaml:"max_connections"`
	ClientTimeout  time.Duration `yaml:"client_timeout"`

	// HistoryRetention bounds the transfer history; older rows are pruned on insert.
	HistoryRetention time.Duration `yaml:"history_retention"`
}

// MDNSSettings toggles the zeroconf advertisement of the rendezvous service.
type MDNSSettings struct {
	Enabled *bool `yaml:"enabled"`
}

// Advertise reports whether mDNS advertisement is on. It defaults to true.
func (m MDNSSettings) Advertise() bool {
	return m.Enabled == nil || *m.Enabled
}

// DefaultSettings returns settings with every default filled for dataDir.
func DefaultSettings(dataDir string) Settings {
	var s Settings
	ApplyDefaults(&s, dataDir)
	return s
}

// LoadSettings reads settings.yaml. A missing file yields defaults.
func LoadSettings(path string) (Settings, error) {
	dataDir := filepath.Dir(path)

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return DefaultSettings(dataDir), nil
		}
		return Settings{}, fmt.Errorf("read settings: %w", err)
	}

	var s Settings
	if err := yaml.Unmarshal(data, &s); err != nil {
		return Settings{}, fmt.Errorf("parse settings: %w", err)
	}

	ApplyDefaults(&s, dataDir)
	if err := Validate(s); err != nil {
		return Settings{}, err
	}
	return s, nil
}

// SaveSettings writes settings.yaml to disk.
func SaveSettings(path string, s Settings) error {
	ApplyDefaults(&s, filepath.Dir(path))
	data, err := yaml.Marshal(&s)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create settings directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}
	return nil
}

// ApplyDefaults fills in default values when empty.
func ApplyDefaults(s *Settings, dataDir string) {
	if s.LogLevel == "" {
		s.LogLevel = DefaultLogLevel
	}

	d := &s.Discovery
	if d.ListenAddr == "" {
		d.ListenAddr = DefaultDiscoveryAddr
	}
	if d.AnnounceAddr == "" {
		d.AnnounceAddr = DefaultDiscoveryAddr
	}
	if d.AnnounceInterval == 0 {
		d.AnnounceInterval = DefaultAnnounceInterval
	}
	if d.ReapInterval == 0 {
		d.ReapInterval = DefaultReapInterval
	}
	if d.PeerTimeout == 0 {
		d.PeerTimeout = DefaultPeerTimeout
	}
	if d.EventBuffer == 0 {
		d.EventBuffer = DefaultEventBuffer
	}

	t := &s.Transfer
	if t.SharedDir == "" {
		t.SharedDir = filepath.Join(dataDir, "shared")
	}
	if t.DownloadDir == "" {
		t.DownloadDir = filepath.Join(dataDir, "downloads")
	}
	if t.OfferTTL == 0 {
		t.OfferTTL = DefaultOfferTTL
	}
	if t.MaxConnections == 0 {
		t.MaxConnections = DefaultMaxConnections
	}
	if t.ClientTimeout == 0 {
		t.ClientTimeout = DefaultClientTimeout
	}
	if t.HistoryRetention == 0 {
		t.HistoryRetention = DefaultHistoryRetention
	}
}

// Validate checks relationships between settings that defaults cannot fix.
func Validate(s Settings) error {
	d := s.Discovery
	if d.AnnounceInterval < 0 || d.ReapInterval < 0 || d.PeerTimeout < 0 {
		return fmt.Errorf("discovery intervals must be positive")
	}
	if d.PeerTimeout <= d.AnnounceInterval {
		return fmt.Errorf("discovery.peer_timeout (%s) must exceed discovery.announce_interval (%s)", d.PeerTimeout, d.AnnounceInterval)
	}
	if d.EventBuffer < 0 {
		return fmt.Errorf("discovery.event_buffer must be >= 0")
	}
	for name, addr := range map[string]string{"listen_addr": d.ListenAddr, "announce_addr": d.AnnounceAddr} {
		if _, _, err := net.SplitHostPort(addr); err != nil {
			return fmt.Errorf("discovery.%s %q: %w", name, addr, err)
		}
	}
	if s.Transfer.MaxConnections < 0 {
		return fmt.Errorf("transfer.max_connections must be > 0")
	}
	if s.Transfer.OfferTTL < 0 {
		return fmt.Errorf("transfer.offer_ttl must be positive")
	}
	if s.Transfer.HistoryRetention < 0 {
		return fmt.Errorf("transfer.history_retention must be positive")
	}
	return nil
}
