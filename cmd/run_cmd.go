package cmd

import (
	"context"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"lanshare/config"
	"lanshare/discovery"
	"lanshare/node"
	"lanshare/storage"
)

var (
	runAlias   string
	runPort    uint16
	runPersist bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "announce this device and serve offers until interrupted",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := loadRuntime()
		if err != nil {
			return err
		}

		identity := rt.identity
		if runAlias != "" {
			identity.Alias = runAlias
		}
		if runPort != 0 {
			identity.Port = runPort
		}
		if runPersist && identity != rt.identity {
			if err := config.SaveIdentity(rt.identityPath, identity); err != nil {
				return err
			}
		}

		store, closeHistory, err := rt.openHistory()
		if err != nil {
			return err
		}
		defer closeHistory()

		n, err := node.New(node.Options{
			Identity: identity,
			Settings: rt.settings,
			DataDir:  rt.dataDir,
			Recorder: store,
			Logger:   rt.log,
		})
		if err != nil {
			return err
		}

		rt.log.WithFields(logrus.Fields{
			"id":       identity.ID.String(),
			"alias":    identity.Alias,
			"port":     identity.Port,
			"data_dir": rt.dataDir,
			"history":  filepath.Join(rt.dataDir, storage.DefaultDBFileName),
		}).Info("starting")

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		done := make(chan struct{})
		go func() {
			defer close(done)
			logDiscoveryEvents(rt.log, n.Events())
		}()

		err = n.Run(ctx)
		<-done
		return err
	},
}

func init() {
	runCmd.Flags().StringVar(&runAlias, "alias", "", "alias announced to peers")
	runCmd.Flags().Uint16Var(&runPort, "port", 0, "rendezvous HTTP port")
	runCmd.Flags().BoolVar(&runPersist, "persist", false, "save --alias and --port to the identity file")
}

// logDiscoveryEvents drains events until the stream closes.
func logDiscoveryEvents(log logrus.FieldLogger, events <-chan discovery.Event) {
	for event := range events {
		switch event.Type {
		case discovery.EventJoin:
			log.WithFields(logrus.Fields{
				"peer":  event.PeerID.String(),
				"alias": event.Peer.Info.Alias,
				"addr":  event.Peer.Addr(),
			}).Info("peer available")
		case discovery.EventLeave:
			log.WithField("peer", event.PeerID.String()).Info("peer gone")
		default:
			log.WithFields(logrus.Fields{
				"event": string(event.Type),
				"peer":  event.PeerID.String(),
			}).Debug("discovery event")
		}
	}
}
