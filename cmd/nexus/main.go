// Package main implements the nexus CLI: a cobra front end over
// internal/core.Core that runs either as a persistent JSON-over-stdio
// daemon or as a thin single-shot wrapper sending one request and
// exiting.
//
// # File Index
//
// Entry Point & Global State:
//   - main.go           - entry point, rootCmd, global flags, core wiring
//
// Daemon:
//   - cmd_daemon.go     - daemonCmd (persistent request loop)
//
// Perception:
//   - cmd_perception.go - describe, find, focused, windows, screenshot
//
// Action:
//   - cmd_action.go     - click family, click_element, click_mark
//
// Web (Browser-AX):
//   - cmd_web.go        - web_describe, web_ax, web_find, web_navigate,
//                         web_click, web_input
//
// Batch & Housekeeping:
//   - cmd_batch.go      - batch, ping, quit
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"nexus/internal/action"
	"nexus/internal/backend"
	"nexus/internal/config"
	"nexus/internal/core"
	"nexus/internal/logging"
	"nexus/internal/model"
)

var (
	// Global flags
	configPath string
	workspace  string
	verbose    bool
	timeout    time.Duration

	// Common request flags, shared across single-shot subcommands
	formatFlag string
	appFlag    string
	forceFlag  bool
	verifyFlag bool
	healFlag   bool

	logger *zap.Logger
	cfg    *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "nexus",
	Short: "Nexus - structured eyes and hands for an LLM on a desktop OS",
	Long: `Nexus gives an LLM agent a single, structured surface onto a desktop:
perceive the foreground window as a normalized element tree, resolve a
symbolic target by name/role/mark, and act on it with verification and
optional self-healing.

Run "nexus daemon" for the persistent line-delimited-JSON protocol, or
any other subcommand for a one-shot request/response.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zcfg := zap.NewProductionConfig()
		if verbose {
			zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zcfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		ws := workspace
		if ws == "" {
			ws, _ = os.Getwd()
		}
		if err := logging.Initialize(ws); err != nil {
			fmt.Fprintf(os.Stderr, "warning: failed to initialize file logging: %v\n", err)
		}

		cfg, err = config.Load(configPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
		logging.CloseAll()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "nexus.yaml", "Path to config file")
	rootCmd.PersistentFlags().StringVarP(&workspace, "workspace", "w", "", "Log/audit directory (default: current)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 15*time.Second, "Per-command watchdog")

	rootCmd.PersistentFlags().StringVar(&formatFlag, "format", "compact", "Element listing format: json|compact|minimal")
	rootCmd.PersistentFlags().StringVar(&appFlag, "app", "", "Window/app scope (title substring or process hint)")
	rootCmd.PersistentFlags().BoolVar(&forceFlag, "force", false, "Bypass the snapshot cache")
	rootCmd.PersistentFlags().BoolVar(&verifyFlag, "verify", false, "Enable post-action verification")
	rootCmd.PersistentFlags().BoolVar(&healFlag, "heal", false, "Enable the Healing Supervisor on action failure")

	rootCmd.AddCommand(daemonCmd)
	rootCmd.AddCommand(describeCmd, findCmd, focusedCmd, windowsCmd, screenshotCmd)
	rootCmd.AddCommand(clickCmd, doubleClickCmd, rightClickCmd, moveCmd, dragCmd, scrollCmd, typeTextCmd, keyCmd, clickElementCmd, clickMarkCmd)
	rootCmd.AddCommand(webDescribeCmd, webAxCmd, webFindCmd, webNavigateCmd, webClickCmd, webInputCmd)
	rootCmd.AddCommand(batchCmd, pingCmd, quitCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// buildCore wires a Core from cfg the same way the daemon and every
// single-shot subcommand do: Native-AX with no platform collaborator wired
// (degrades to backend_unavailable rather than panicking) and Browser-AX
// configured from cfg.Backends.Browser. OCR/vision and window-raise are left
// nil; Core defaults the former to its null fallbacks and treats the latter
// as "skip this step".
func buildCore() *core.Core {
	native := backend.NewNativeAX(nil)

	bcfg := backend.DefaultBrowserConfig()
	bcfg.DebuggerURL = cfg.Backends.Browser.DebuggerURL
	bcfg.Headless = cfg.Backends.Browser.Headless
	bcfg.Launch = cfg.Backends.Browser.Launch
	if cfg.Backends.Browser.ViewportWidth > 0 {
		bcfg.ViewportWidth = cfg.Backends.Browser.ViewportWidth
	}
	if cfg.Backends.Browser.ViewportHeight > 0 {
		bcfg.ViewportHeight = cfg.Backends.Browser.ViewportHeight
	}
	if cfg.Backends.Browser.NavigationTimeoutMs > 0 {
		bcfg.NavigationTimeoutMs = cfg.Backends.Browser.NavigationTimeoutMs
	}
	browserB := backend.NewBrowserAX(bcfg)

	var foreground action.Foregrounder
	return core.New(cfg, native, browserB, nil, nil, foreground)
}

// dispatchAndPrint constructs a Core, dispatches req under the global
// --timeout watchdog, prints the response as one JSON line, and closes the
// Core's backend sessions. The caller is responsible for translating the
// returned ok flag into the single-shot "exit 0 on ok, 1 otherwise"
// contract; a non-nil error here means the response itself could not be
// produced at all (e.g. it failed to marshal).
func dispatchAndPrint(req model.Request) (ok bool, err error) {
	c := buildCore()
	defer c.Close(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	resp := c.Dispatch(ctx, req)
	line, err := resp.MarshalLine()
	if err != nil {
		return false, fmt.Errorf("marshal response: %w", err)
	}
	fmt.Println(string(line))
	return resp.OK, nil
}

// runSingleShot is the RunE body every single-shot subcommand shares: build
// the request, dispatch it, and exit nonzero when the command failed.
func runSingleShot(buildReq func() model.Request) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		ok, err := dispatchAndPrint(buildReq())
		if err != nil {
			return err
		}
		if !ok {
			os.Exit(1)
		}
		return nil
	}
}

// commonRequest seeds a Request with the flags shared across every
// single-shot subcommand.
func commonRequest(command string) model.Request {
	return model.Request{
		Command:   command,
		Format:    model.Format(formatFlag),
		App:       appFlag,
		Force:     forceFlag,
		Verify:    verifyFlag,
		Heal:      healFlag,
		TimeoutMs: int(timeout.Milliseconds()),
	}
}
