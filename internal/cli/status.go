package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/lazypower/totemic/internal/client"
)

var statusServer string

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Check a running server",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		h, err := client.New(statusServer).Health(cmd.Context())
		if err != nil {
			return fmt.Errorf("server unreachable: %w", err)
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "status:  %s\n", h.Status)
		fmt.Fprintf(out, "version: %s\n", h.Version)
		fmt.Fprintf(out, "uptime:  %s\n", (time.Duration(h.Uptime) * time.Second).String())
		fmt.Fprintf(out, "store:   %v\n", h.Store)
		fmt.Fprintf(out, "policy:  %s\n", h.Policy)
		return nil
	},
}

func init() {
	statusCmd.Flags().StringVar(&statusServer, "server", "", "server URL (default $TOTEMIC_URL or http://127.0.0.1:37780)")
}
