package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"pwmfan/jsonrpc"
)

var statusOpts struct {
	addr    string
	command string
	timeout time.Duration
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Query a running controller over the TCP JSON API",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true

		ctx, cancel := context.WithTimeout(context.Background(), statusOpts.timeout)
		defer cancel()

		resp, err := jsonrpc.NewTCPClient(statusOpts.addr).Call(ctx, statusOpts.command, nil)
		if err != nil {
			return err
		}
		if !resp.OK {
			return errors.New(resp.Error)
		}

		if s, ok := resp.Result.(string); ok {
			fmt.Fprint(cmd.OutOrStdout(), s)
			return nil
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(resp.Result)
	},
}

func init() {
	f := statusCmd.Flags()
	f.StringVar(&statusOpts.addr, "api", "127.0.0.1:4028", "address of the TCP JSON API")
	f.StringVar(&statusOpts.command, "command", "status", "status, version, config or system")
	f.DurationVar(&statusOpts.timeout, "timeout", 5*time.Second, "time limit for the whole request, including connect and reply")

	rootCmd.AddCommand(statusCmd)
}
