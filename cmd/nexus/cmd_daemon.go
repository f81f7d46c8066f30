package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"nexus/internal/daemon"
)

// daemonCmd runs the persistent line-delimited-JSON request loop over
// stdin/stdout until EOF, an explicit quit request, or SIGINT/SIGTERM.
var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run the persistent JSON-over-stdio request loop",
	RunE: func(cmd *cobra.Command, args []string) error {
		c := buildCore()
		d := daemon.New(c, os.Stdin, os.Stdout)
		if err := d.RunWithSignals(); err != nil {
			return fmt.Errorf("daemon: %w", err)
		}
		return nil
	},
}
