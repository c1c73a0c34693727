package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/google/uuid"

	"lanshare/models"
)

const (
	// AppDirectoryName is the per-user application data directory name.
	AppDirectoryName = "lanshare"
	// DefaultServicePort is the rendezvous HTTP port used when no override exists.
	DefaultServicePort = 8000
	// DefaultAlias is used when the hostname cannot be resolved.
	DefaultAlias = "Peer"
	// IdentityFileName is the persisted identity file.
	IdentityFileName = "device.json"
	// SettingsFileName is the YAML settings file.
	SettingsFileName = "settings.yaml"
	// DataDirEnv overrides the data directory when set.
	DataDirEnv = "LANSHARE_DATA_DIR"
)

var (
	// ErrIdentityIO indicates the identity file could not be read or written.
	ErrIdentityIO = errors.New("config: identity file I/O failed")
	// ErrIdentityFormat indicates the identity file exists but is malformed.
	ErrIdentityFormat = errors.New("config: malformed identity file")
)

// ResolveDataDir returns the OS-aware app data directory.
//
// If LANSHARE_DATA_DIR is set, its value is used as an explicit override.
func ResolveDataDir() (string, error) {
	if override := os.Getenv(DataDirEnv); override != "" {
		return override, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve user home: %w", err)
	}

	switch runtime.GOOS {
	case "windows":
		base := os.Getenv("APPDATA")
		if base == "" {
			base = filepath.Join(home, "AppData", "Roaming")
		}
		return filepath.Join(base, AppDirectoryName), nil
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", AppDirectoryName), nil
	default:
		base := os.Getenv("XDG_CONFIG_HOME")
		if base == "" {
			base = filepath.Join(home, ".config")
		}
		return filepath.Join(base, AppDirectoryName), nil
	}
}

// IdentityPath returns the full path to device.json for a data directory.
func IdentityPath(dataDir string) string {
	return filepath.Join(dataDir, IdentityFileName)
}

// SettingsPath returns the full path to settings.yaml for a data directory.
func SettingsPath(dataDir string) string {
	return filepath.Join(dataDir, SettingsFileName)
}

// EnsureDataDirectories creates the app data directory layout if needed.
func EnsureDataDirectories(dataDir string) error {
	dirs := []string{
		dataDir,
		filepath.Join(dataDir, "shared"),
		filepath.Join(dataDir, "downloads"),
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}

	return nil
}

// LoadIdentity reads and unmarshals a persisted identity.
func LoadIdentity(path string) (models.Identity, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return models.Identity{}, fmt.Errorf("%w: read %q: %w", ErrIdentityIO, path, err)
	}

	var identity models.Identity
	if err := json.Unmarshal(raw, &identity); err != nil {
		return models.Identity{}, fmt.Errorf("%w: parse %q: %w", ErrIdentityFormat, path, err)
	}
	if identity.ID == uuid.Nil {
		return models.Identity{}, fmt.Errorf("%w: %q has no id", ErrIdentityFormat, path)
	}

	return identity, nil
}

// SaveIdentity marshals and writes the identity to disk.
func SaveIdentity(path string, identity models.Identity) error {
	raw, err := json.MarshalIndent(identity, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: marshal identity: %w", ErrIdentityFormat, err)
	}

	raw = append(raw, '\n')
	if err := os.WriteFile(path, raw, 0o600); err != nil {
		return fmt.Errorf("%w: write %q: %w", ErrIdentityIO, path, err)
	}

	return nil
}

// LoadOrCreateIdentity returns the identity stored at path, creating and
// persisting a fresh one when the file does not exist yet.
func LoadOrCreateIdentity(path string, defaultPort uint16) (models.Identity, error) {
	identity, err := LoadIdentity(path)
	if err == nil {
		if normalizeIdentity(&identity, defaultPort) {
			if err := SaveIdentity(path, identity); err != nil {
				return models.Identity{}, err
			}
		}
		return identity, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return models.Identity{}, err
	}

	identity = defaultIdentity(defaultPort)
	if err := SaveIdentity(path, identity); err != nil {
		return models.Identity{}, err
	}

	return identity, nil
}

func defaultIdentity(port uint16) models.Identity {
	if port == 0 {
		port = DefaultServicePort
	}
	return models.Identity{
		ID:    uuid.New(),
		Alias: defaultAlias(),
		Port:  port,
	}
}

func defaultAlias() string {
	if host, err := os.Hostname(); err == nil && strings.TrimSpace(host) != "" {
		return host
	}
	return DefaultAlias
}

func normalizeIdentity(identity *models.Identity, defaultPort uint16) bool {
	updated := false

	if strings.TrimSpace(identity.Alias) == "" {
		identity.Alias = defaultAlias()
		updated = true
	}

	if identity.Port == 0 {
		identity.Port = defaultPort
		if identity.Port == 0 {
			identity.Port = DefaultServicePort
		}
		updated = true
	}

	return updated
}
