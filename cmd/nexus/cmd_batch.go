package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"nexus/internal/daemon"
	"nexus/internal/model"
)

var (
	scriptFlag          string
	continueOnErrorFlag bool
	batchVerboseFlag    bool
)

// batchCmd runs req.Script's mini-language against one Core the same way
// the daemon's own "batch" command does, printing {final} or {steps: [...]}.
var batchCmd = &cobra.Command{
	Use:   "batch <script>",
	Short: `Run a ";"/"|"-chained batch script against one Core instance`,
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		script := scriptFlag
		if len(args) == 1 {
			script = args[0]
		}
		req := commonRequest("batch")
		req.Script = script
		req.ContinueOnError = continueOnErrorFlag
		req.Verbose = batchVerboseFlag

		c := buildCore()
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		resp := daemon.RunBatch(ctx, c, req)
		cancel()
		// Close explicitly, before finish's possible os.Exit: a deferred
		// Close here would never run, since os.Exit skips every pending
		// defer in the process.
		_ = c.Close(context.Background())

		line, err := resp.MarshalLine()
		if err != nil {
			return fmt.Errorf("marshal response: %w", err)
		}
		fmt.Println(string(line))
		return finish(resp.OK, nil)
	},
}

// pingCmd is single-shot mode's trivial health check; there is no
// persistent loop whose uptime to report, so it just confirms the process
// can construct a response.
var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Confirm the CLI is runnable",
	RunE: func(cmd *cobra.Command, args []string) error {
		resp := model.OKResponse("ping", nil)
		line, err := resp.MarshalLine()
		if err != nil {
			return err
		}
		fmt.Println(string(line))
		return nil
	},
}

// quitCmd exists for command-surface parity with the daemon protocol; a
// single-shot process has no request loop to stop, so it is a no-op that
// reports ok.
var quitCmd = &cobra.Command{
	Use:   "quit",
	Short: "No-op in single-shot mode; use Ctrl+C/SIGTERM to stop the daemon",
	RunE: func(cmd *cobra.Command, args []string) error {
		resp := model.OKResponse("quit", nil)
		line, err := resp.MarshalLine()
		if err != nil {
			return err
		}
		fmt.Println(string(line))
		return nil
	},
}

func init() {
	batchCmd.Flags().StringVar(&scriptFlag, "script", "", "Batch script (alternative to the positional argument)")
	batchCmd.Flags().BoolVar(&continueOnErrorFlag, "continue-on-error", false, "Continue the script after a step fails")
	batchCmd.Flags().BoolVar(&batchVerboseFlag, "verbose-steps", false, "Return every step's result, not just the final one")
}
