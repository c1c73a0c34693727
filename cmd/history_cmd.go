package cmd

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"lanshare/storage"
)

var (
	historyOffer string
	historyLimit int
)

var historyCmd = &cobra.Command{
	Use:   "history [--offer ID] [--limit N]",
	Short: "list recorded offers and downloads",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := loadRuntime()
		if err != nil {
			return err
		}

		store, closeHistory, err := rt.openHistory()
		if err != nil {
			return err
		}
		defer closeHistory()

		var transfers []storage.Transfer
		if historyOffer != "" {
			id, err := uuid.Parse(historyOffer)
			if err != nil {
				return fmt.Errorf("offer id %q: %w", historyOffer, err)
			}
			transfers, err = store.ListTransfersByOffer(id.String())
			if errors.Is(err, storage.ErrNotFound) {
				return fmt.Errorf("no history for offer %s", id)
			}
			if err != nil {
				return err
			}
		} else {
			transfers, err = store.ListTransfers(historyLimit)
			if err != nil {
				return err
			}
		}

		printTransfers(cmd.OutOrStdout(), transfers)
		return nil
	},
}

func init() {
	historyCmd.Flags().StringVar(&historyOffer, "offer", "", "show every event for one offer id")
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "number of recent events to show")
}

func printTransfers(out io.Writer, transfers []storage.Transfer) {
	if len(transfers) == 0 {
		fmt.Fprintln(out, "no transfers recorded")
		return
	}
	for _, transfer := range transfers {
		peer := "-"
		switch {
		case transfer.PeerAlias != nil:
			peer = *transfer.PeerAlias
		case transfer.PeerAddr != nil:
			peer = *transfer.PeerAddr
		}
		fmt.Fprintf(out, "%s  %-18s  %-36s  %-20s  %10d  %s\n",
			time.UnixMilli(transfer.CreatedAt).Format("2006-01-02 15:04:05"),
			transfer.Kind,
			transfer.OfferID,
			peer,
			transfer.Size,
			transfer.Filename,
		)
	}
}
