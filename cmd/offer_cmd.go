package cmd

import (
	"context"
	"fmt"
	"net"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"lanshare/models"
	"lanshare/network"
)

var (
	offerTo       string
	offerPort     uint16
	offerServeFor time.Duration
)

var offerCmd = &cobra.Command{
	Use:   "offer --to ip:port FILE",
	Short: "offer a file to a peer and serve it while they download",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := loadRuntime()
		if err != nil {
			return err
		}

		if offerServeFor <= 0 {
			return fmt.Errorf("--serve-for must be positive")
		}
		host, port, err := parsePeerAddr(offerTo)
		if err != nil {
			return err
		}

		identity := rt.identity
		if offerPort != 0 {
			identity.Port = offerPort
		}

		store, closeHistory, err := rt.openHistory()
		if err != nil {
			return err
		}
		defer closeHistory()

		offers := network.NewOfferTable(rt.settings.Transfer.OfferTTL)
		server, err := network.Listen(net.JoinHostPort("", strconv.Itoa(int(identity.Port))), network.ServerOptions{
			SharedDir:      rt.settings.Transfer.SharedDir,
			Offers:         offers,
			MaxConnections: rt.settings.Transfer.MaxConnections,
			Recorder:       store,
			Logger:         rt.log,
		})
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		ctx, cancel := context.WithTimeout(ctx, offerServeFor)
		defer cancel()

		served := make(chan error, 1)
		go func() {
			served <- server.Serve(ctx)
		}()

		client := network.NewClient(network.ClientOptions{
			Identity: identity,
			Offers:   offers,
			Timeout:  rt.settings.Transfer.ClientTimeout,
			Recorder: store,
			Logger:   rt.log,
		})
		peer := models.Peer{Info: models.PeerInfo{Port: port}, IP: host}

		metadata, err := client.OfferFile(ctx, args[0], peer)
		if err != nil {
			cancel()
			<-served
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "offered %s (%d bytes) as %s\n", metadata.Filename, metadata.Size, metadata.ID)
		rt.log.WithFields(logrus.Fields{
			"offer":     metadata.ID.String(),
			"serve_for": offerServeFor.String(),
		}).Info("serving offer until timeout or interrupt")

		return <-served
	},
}

func init() {
	offerCmd.Flags().StringVar(&offerTo, "to", "", "peer rendezvous address ip:port")
	offerCmd.Flags().Uint16Var(&offerPort, "port", 0, "port to serve the file on (default identity port)")
	offerCmd.Flags().DurationVar(&offerServeFor, "serve-for", 10*time.Minute, "how long to keep serving the offered file")
	_ = offerCmd.MarkFlagRequired("to")
}
