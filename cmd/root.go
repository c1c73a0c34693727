// Package cmd is the lanshare command line.
package cmd

import (
	"fmt"
	"net"
	"os"
	"strconv"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"lanshare/config"
	"lanshare/logger"
	"lanshare/models"
	"lanshare/storage"
)

var (
	dataDirFlag  string
	logLevelFlag string
)

var rootCmd = &cobra.Command{
	Use:           "lanshare",
	Short:         "LAN peer discovery and file handoff",
	Long:          `lanshare announces this device on the local network, tracks peers that do the same, and moves files between them over HTTP`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the command tree and exits non-zero on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "lanshare: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dataDirFlag, "data-dir", "", "data directory (default $"+config.DataDirEnv+" or the user config dir)")
	rootCmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", "", "log level override (debug, info, warn, error)")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(identityCmd)
	rootCmd.AddCommand(offerCmd)
	rootCmd.AddCommand(downloadCmd)
	rootCmd.AddCommand(historyCmd)
}

// runtime is the state every subcommand loads before doing work.
type runtime struct {
	dataDir      string
	identityPath string
	settingsPath string
	identity     models.Identity
	settings     config.Settings
	log          *logrus.Logger
}

func loadRuntime() (*runtime, error) {
	dataDir := dataDirFlag
	if dataDir == "" {
		resolved, err := config.ResolveDataDir()
		if err != nil {
			return nil, err
		}
		dataDir = resolved
	}
	if err := config.EnsureDataDirectories(dataDir); err != nil {
		return nil, err
	}

	settingsPath := config.SettingsPath(dataDir)
	settings, err := config.LoadSettings(settingsPath)
	if err != nil {
		return nil, err
	}
	config.ApplyDefaults(&settings, dataDir)

	identityPath := config.IdentityPath(dataDir)
	identity, err := config.LoadOrCreateIdentity(identityPath, config.DefaultServicePort)
	if err != nil {
		return nil, err
	}

	level := settings.LogLevel
	if logLevelFlag != "" {
		level = logLevelFlag
	}

	return &runtime{
		dataDir:      dataDir,
		identityPath: identityPath,
		settingsPath: settingsPath,
		identity:     identity,
		settings:     settings,
		log:          logger.New(level, os.Stderr),
	}, nil
}

// openHistory opens the transfer history with the configured retention.
func (rt *runtime) openHistory() (*storage.Store, func(), error) {
	store, _, err := storage.Open(rt.dataDir)
	if err != nil {
		return nil, nil, fmt.Errorf("open transfer history: %w", err)
	}
	store.SetTransferRetention(rt.settings.Transfer.HistoryRetention)

	closeFn := func() {
		if err := store.Close(); err != nil {
			rt.log.WithError(err).Warn("close transfer history")
		}
	}
	return store, closeFn, nil
}

// parsePeerAddr splits "ip:port" into a host and a service port.
func parsePeerAddr(addr string) (string, uint16, error) {
	host, portText, err := net.SplitHostPort(addr)
	if err != nil {
		return "", 0, fmt.Errorf("peer address %q: %w", addr, err)
	}
	if host == "" {
		return "", 0, fmt.Errorf("peer address %q: host is required", addr)
	}
	port, err := strconv.ParseUint(portText, 10, 16)
	if err != nil || port == 0 {
		return "", 0, fmt.Errorf("peer address %q: invalid port", addr)
	}
	return host, uint16(port), nil
}
