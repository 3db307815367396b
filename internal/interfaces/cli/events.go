package cli

import (
	"fmt"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

type eventView struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	EventType string    `json:"event_type"`
	Severity  string    `json:"severity"`
	IPAddress string    `json:"ip_address"`
	Endpoint  string    `json:"endpoint"`
	Method    string    `json:"method"`
	Blocked   bool      `json:"blocked"`
}

type eventsResponse struct {
	Count  int         `json:"count"`
	Events []eventView `json:"events"`
}

func newEventsCmd(opts *RootOptions) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "events",
		Short: "Browse the security-event archive",
		RunE: func(cmd *cobra.Command, _ []string) error {
			client := newAdminClient(opts)

			var resp eventsResponse
			path := "/events?limit=" + strconv.Itoa(limit)
			if err := client.do(cmd.Context(), "GET", path, nil, &resp); err != nil {
				return err
			}
			if opts.JSONOutput {
				return printJSON(cmd.OutOrStdout(), resp)
			}

			if resp.Count == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no archived events")
				return nil
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "TIME\tTYPE\tSEVERITY\tIP\tENDPOINT\tBLOCKED")
			for _, e := range resp.Events {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s %s\t%t\n",
					e.Timestamp.Format(time.RFC3339), e.EventType, e.Severity,
					e.IPAddress, e.Method, e.Endpoint, e.Blocked)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 100, "maximum events to fetch")
	return cmd
}
