package cmd

import (
	"context"
	"fmt"
	"io"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"lanshare/network"
)

var (
	downloadFrom  string
	downloadID    string
	downloadName  string
	downloadQuiet bool
)

var downloadCmd = &cobra.Command{
	Use:   "download --from ip:port --id UUID --name NAME",
	Short: "download an offered file from a peer",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := loadRuntime()
		if err != nil {
			return err
		}

		host, port, err := parsePeerAddr(downloadFrom)
		if err != nil {
			return err
		}
		id, err := uuid.Parse(downloadID)
		if err != nil {
			return fmt.Errorf("offer id %q: %w", downloadID, err)
		}

		store, closeHistory, err := rt.openHistory()
		if err != nil {
			return err
		}
		defer closeHistory()

		options := network.ClientOptions{
			Identity:    rt.identity,
			DownloadDir: rt.settings.Transfer.DownloadDir,
			Timeout:     rt.settings.Transfer.ClientTimeout,
			Recorder:    store,
			Logger:      rt.log,
		}
		if !downloadQuiet {
			options.Progress = func(size int64, name string) io.Writer {
				return progressbar.DefaultBytes(size, "downloading "+name)
			}
		}
		client := network.NewClient(options)

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		path, err := client.DownloadFile(ctx, host, port, id, downloadName)
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "\nsaved %s\n", path)
		return nil
	},
}

func init() {
	downloadCmd.Flags().StringVar(&downloadFrom, "from", "", "peer rendezvous address ip:port")
	downloadCmd.Flags().StringVar(&downloadID, "id", "", "offered file id")
	downloadCmd.Flags().StringVar(&downloadName, "name", "", "local filename to save as")
	downloadCmd.Flags().BoolVarP(&downloadQuiet, "quiet", "q", false, "hide the progress bar")
	_ = downloadCmd.MarkFlagRequired("from")
	_ = downloadCmd.MarkFlagRequired("id")
	_ = downloadCmd.MarkFlagRequired("name")
}
