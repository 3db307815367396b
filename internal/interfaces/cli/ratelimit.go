package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

type tierView struct {
	MaxRequests int    `json:"max_requests"`
	Window      string `json:"window"`
}

type rateLimitView struct {
	IP       tierView `json:"ip"`
	User     tierView `json:"user"`
	Endpoint tierView `json:"endpoint"`
}

func newRateLimitCmd(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ratelimit",
		Short: "Read and update the rate-limit tiers",
	}

	getCmd := &cobra.Command{
		Use:   "get",
		Short: "Show the active tier limits",
		RunE: func(cmd *cobra.Command, _ []string) error {
			client := newAdminClient(opts)

			var resp rateLimitView
			if err := client.do(cmd.Context(), "GET", "/ratelimit/config", nil, &resp); err != nil {
				return err
			}
			if opts.JSONOutput {
				return printJSON(cmd.OutOrStdout(), resp)
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "TIER\tMAX REQUESTS\tWINDOW")
			fmt.Fprintf(tw, "ip\t%d\t%s\n", resp.IP.MaxRequests, resp.IP.Window)
			fmt.Fprintf(tw, "user\t%d\t%s\n", resp.User.MaxRequests, resp.User.Window)
			fmt.Fprintf(tw, "endpoint\t%d\t%s\n", resp.Endpoint.MaxRequests, resp.Endpoint.Window)
			return tw.Flush()
		},
	}

	var update rateLimitView
	setCmd := &cobra.Command{
		Use:   "set",
		Short: "Replace the tier limits",
		Long: "Replace all three tier limits at once.  A tier with --<tier>-max 0 is\n" +
			"disabled.  Windows are Go durations (\"30s\", \"1m\").",
		RunE: func(cmd *cobra.Command, _ []string) error {
			client := newAdminClient(opts)
			if err := client.do(cmd.Context(), "PUT", "/ratelimit/config", update, nil); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "rate limit configuration updated")
			return nil
		},
	}
	setCmd.Flags().IntVar(&update.IP.MaxRequests, "ip-max", 100, "per-IP request ceiling")
	setCmd.Flags().StringVar(&update.IP.Window, "ip-window", "1m", "per-IP window")
	setCmd.Flags().IntVar(&update.User.MaxRequests, "user-max", 60, "per-user request ceiling")
	setCmd.Flags().StringVar(&update.User.Window, "user-window", "1m", "per-user window")
	setCmd.Flags().IntVar(&update.Endpoint.MaxRequests, "endpoint-max", 1000, "per-endpoint request ceiling")
	setCmd.Flags().StringVar(&update.Endpoint.Window, "endpoint-window", "1m", "per-endpoint window")

	cmd.AddCommand(getCmd, setCmd)
	return cmd
}
