package cli

import (
	"fmt"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

type breakerView struct {
	State            string `json:"state"`
	Failures         int    `json:"failures"`
	Successes        int    `json:"successes"`
	TotalRequests    int64  `json:"total_requests"`
	RejectedRequests int64  `json:"rejected_requests"`
}

type breakersResponse struct {
	Breakers map[string]breakerView `json:"breakers"`
}

func newBreakersCmd(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "breakers",
		Short: "Inspect and reset circuit breakers",
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "Show the state of every circuit breaker",
		RunE: func(cmd *cobra.Command, _ []string) error {
			client := newAdminClient(opts)

			var resp breakersResponse
			if err := client.do(cmd.Context(), "GET", "/breakers", nil, &resp); err != nil {
				return err
			}
			if opts.JSONOutput {
				return printJSON(cmd.OutOrStdout(), resp)
			}

			if len(resp.Breakers) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no breakers registered")
				return nil
			}
			names := make([]string, 0, len(resp.Breakers))
			for name := range resp.Breakers {
				names = append(names, name)
			}
			sort.Strings(names)

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "SERVICE\tSTATE\tTOTAL\tREJECTED")
			for _, name := range names {
				b := resp.Breakers[name]
				fmt.Fprintf(tw, "%s\t%s\t%d\t%d\n", name, b.State, b.TotalRequests, b.RejectedRequests)
			}
			return tw.Flush()
		},
	}

	resetCmd := &cobra.Command{
		Use:   "reset <service>",
		Short: "Reset a circuit breaker to CLOSED",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := newAdminClient(opts)
			if err := client.do(cmd.Context(), "POST", "/breakers/"+args[0]+"/reset", nil, nil); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "breaker %s reset\n", args[0])
			return nil
		},
	}

	cmd.AddCommand(listCmd, resetCmd)
	return cmd
}
