// wardenctl is the operator CLI for a running gateway.
package main

import (
	"os"

	"github.com/gatewarden/gatewarden/internal/interfaces/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
