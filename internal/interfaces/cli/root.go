// Package cli implements wardenctl, the operator command line for a running
// gateway.  Every command talks to the gateway's admin API over HTTP.
package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

// Build-time variables injected via ldflags.
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// RootOptions holds the global flags shared by every subcommand.
type RootOptions struct {
	ServerAddr string
	Token      string
	Timeout    time.Duration
	JSONOutput bool
}

// NewRootCommand builds the wardenctl command tree.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "wardenctl",
		Short: "Operator CLI for the gatewarden request-defense gateway",
		Long: "wardenctl manages a running gatewarden instance through its admin API:\n" +
			"inspect and clear IP blocks, inspect and reset circuit breakers, read and\n" +
			"update rate-limit tiers, and browse the security-event archive.",
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", Version, GitCommit, BuildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := cmd.PersistentFlags()
	pf.StringVarP(&opts.ServerAddr, "server", "s", "http://localhost:8080", "gateway base URL")
	pf.StringVar(&opts.Token, "token", os.Getenv("GATEWARDEN_ADMIN_TOKEN"), "admin API token (default: $GATEWARDEN_ADMIN_TOKEN)")
	pf.DurationVar(&opts.Timeout, "timeout", 10*time.Second, "request timeout")
	pf.BoolVar(&opts.JSONOutput, "json", false, "print raw JSON responses")

	cmd.AddCommand(
		newBlockedCmd(opts),
		newBreakersCmd(opts),
		newRateLimitCmd(opts),
		newEventsCmd(opts),
	)
	return cmd
}

// Execute runs the CLI and reports failures on stderr.
func Execute() error {
	cmd := NewRootCommand()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		return err
	}
	return nil
}
