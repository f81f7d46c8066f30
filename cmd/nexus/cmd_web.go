package main

import (
	"github.com/spf13/cobra"

	"nexus/internal/model"
)

var selectorFlag string

var webDescribeCmd = &cobra.Command{
	Use:   "web_describe",
	Short: "Describe the active browser tab's accessibility tree",
	RunE: runSingleShot(func() model.Request {
		req := commonRequest("web_describe")
		req.Focus = focusFlag
		req.Match = matchFlag
		req.MatchKind = matchKindFlag
		req.Region = regionFlag
		return req
	}),
}

var webAxCmd = &cobra.Command{
	Use:   "web_ax",
	Short: "Alias for web_describe",
	RunE: runSingleShot(func() model.Request {
		req := commonRequest("web_ax")
		req.Focus = focusFlag
		req.Match = matchFlag
		req.MatchKind = matchKindFlag
		req.Region = regionFlag
		return req
	}),
}

var webFindCmd = &cobra.Command{
	Use:   "web_find [query]",
	Short: "Find a browser element by name/role or by CSS selector",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		req := commonRequest("web_find")
		if len(args) == 1 {
			req.Query = args[0]
		}
		req.Role = model.Role(roleFlag)
		req.Selector = selectorFlag
		return finish(dispatchAndPrint(req))
	},
}

var webNavigateCmd = &cobra.Command{
	Use:   "web_navigate <url>",
	Short: "Navigate the driven browser tab to url",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		req := commonRequest("web_navigate")
		req.URL = args[0]
		return finish(dispatchAndPrint(req))
	},
}

var webClickCmd = &cobra.Command{
	Use:   "web_click <name>",
	Short: "Resolve a browser element by name/role/selector and click it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		req := commonRequest("web_click")
		req.Name = args[0]
		req.Role = model.Role(roleFlag)
		req.Selector = selectorFlag
		req.Index = indexFlag
		return finish(dispatchAndPrint(req))
	},
}

var webInputCmd = &cobra.Command{
	Use:   "web_input <name> <text>",
	Short: "Resolve a browser element and set its value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		req := commonRequest("web_input")
		req.Name = args[0]
		req.Text = args[1]
		req.Role = model.Role(roleFlag)
		req.Selector = selectorFlag
		return finish(dispatchAndPrint(req))
	},
}

func init() {
	webDescribeCmd.Flags().StringVar(&focusFlag, "focus", "", "Focus preset")
	webDescribeCmd.Flags().StringVar(&matchFlag, "match", "", "Name filter pattern")
	webDescribeCmd.Flags().StringVar(&matchKindFlag, "match-kind", "glob", "Name filter kind: glob|regex")
	webDescribeCmd.Flags().StringVar(&regionFlag, "region", "", "Named band or x,y,w,h")

	webAxCmd.Flags().StringVar(&focusFlag, "focus", "", "Focus preset")
	webAxCmd.Flags().StringVar(&matchFlag, "match", "", "Name filter pattern")
	webAxCmd.Flags().StringVar(&matchKindFlag, "match-kind", "glob", "Name filter kind: glob|regex")
	webAxCmd.Flags().StringVar(&regionFlag, "region", "", "Named band or x,y,w,h")

	webFindCmd.Flags().StringVar(&roleFlag, "role", "", "Restrict matches to this role")
	webFindCmd.Flags().StringVar(&selectorFlag, "selector", "", "CSS selector, forwarded to Browser-AX as-is")

	webClickCmd.Flags().StringVar(&roleFlag, "role", "", "Restrict resolution to this role")
	webClickCmd.Flags().StringVar(&selectorFlag, "selector", "", "CSS selector, forwarded to Browser-AX as-is")
	webClickCmd.Flags().IntVar(&indexFlag, "index", 0, "1-based disambiguation index")

	webInputCmd.Flags().StringVar(&roleFlag, "role", "", "Restrict resolution to this role")
	webInputCmd.Flags().StringVar(&selectorFlag, "selector", "", "CSS selector, forwarded to Browser-AX as-is")
}
