package main

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"pwmfan/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print build information",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(version.GetVersionConfig())
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
