package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var identityCmd = &cobra.Command{
	Use:   "identity",
	Short: "print this device's identity and data paths",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := loadRuntime()
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Device ID:       %s\n", rt.identity.ID)
		fmt.Fprintf(out, "Alias:           %s\n", rt.identity.Alias)
		fmt.Fprintf(out, "Service Port:    %d\n", rt.identity.Port)
		fmt.Fprintf(out, "Identity File:   %s\n", rt.identityPath)
		fmt.Fprintf(out, "Settings File:   %s\n", rt.settingsPath)
		fmt.Fprintf(out, "Data Directory:  %s\n", rt.dataDir)
		fmt.Fprintf(out, "Shared Dir:      %s\n", rt.settings.Transfer.SharedDir)
		fmt.Fprintf(out, "Download Dir:    %s\n", rt.settings.Transfer.DownloadDir)
		return nil
	},
}
