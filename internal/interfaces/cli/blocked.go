package cli

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

type blockedIPView struct {
	IP         string    `json:"ip"`
	Reason     string    `json:"reason"`
	BlockedAt  time.Time `json:"blocked_at"`
	BlockUntil time.Time `json:"block_until"`
	Violations int       `json:"violations"`
}

type blockedListResponse struct {
	Count      int             `json:"count"`
	BlockedIPs []blockedIPView `json:"blocked_ips"`
}

func newBlockedCmd(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "blocked",
		Short: "Inspect and clear IP blocks",
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List currently blocked IPs",
		RunE: func(cmd *cobra.Command, _ []string) error {
			client := newAdminClient(opts)

			var resp blockedListResponse
			if err := client.do(cmd.Context(), "GET", "/blocked-ips", nil, &resp); err != nil {
				return err
			}
			if opts.JSONOutput {
				return printJSON(cmd.OutOrStdout(), resp)
			}

			if resp.Count == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no blocked IPs")
				return nil
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "IP\tREASON\tVIOLATIONS\tUNTIL")
			for _, b := range resp.BlockedIPs {
				fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n",
					b.IP, b.Reason, b.Violations, b.BlockUntil.Format(time.RFC3339))
			}
			return tw.Flush()
		},
	}

	removeCmd := &cobra.Command{
		Use:   "remove <ip>",
		Short: "Remove an IP from the block list",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := newAdminClient(opts)
			if err := client.do(cmd.Context(), "DELETE", "/blocked-ips/"+args[0], nil, nil); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "unblocked %s\n", args[0])
			return nil
		},
	}

	cmd.AddCommand(listCmd, removeCmd)
	return cmd
}
