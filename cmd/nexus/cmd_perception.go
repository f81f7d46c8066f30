package main

import (
	"github.com/spf13/cobra"

	"nexus/internal/model"
)

var (
	focusFlag     string
	matchFlag     string
	matchKindFlag string
	regionFlag    string
	diffFlag      bool
	summaryFlag   bool
	roleFlag      string
	markFlag      bool
)

var describeCmd = &cobra.Command{
	Use:   "describe",
	Short: "Describe the foreground window as a normalized element tree",
	RunE: runSingleShot(func() model.Request {
		req := commonRequest("describe")
		req.Focus = focusFlag
		req.Match = matchFlag
		req.MatchKind = matchKindFlag
		req.Region = regionFlag
		req.Diff = diffFlag
		req.Summary = summaryFlag
		return req
	}),
}

var findCmd = &cobra.Command{
	Use:   "find <query>",
	Short: "Find elements by fuzzy name match, returning all matches plus the top one",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		req := commonRequest("find")
		req.Query = args[0]
		req.Focus = focusFlag
		req.Role = model.Role(roleFlag)
		req.Region = regionFlag
		return finish(dispatchAndPrint(req))
	},
}

var focusedCmd = &cobra.Command{
	Use:   "focused",
	Short: "Report the currently focused element, if any",
	RunE: runSingleShot(func() model.Request {
		return commonRequest("focused")
	}),
}

var windowsCmd = &cobra.Command{
	Use:   "windows",
	Short: "Report the window Nexus currently perceives",
	RunE: runSingleShot(func() model.Request {
		return commonRequest("windows")
	}),
}

var screenshotCmd = &cobra.Command{
	Use:   "screenshot",
	Short: "Capture the foreground window as pixels, optionally annotated with mark badges",
	RunE: runSingleShot(func() model.Request {
		req := commonRequest("screenshot")
		req.Region = regionFlag
		req.Mark = markFlag
		return req
	}),
}

func init() {
	describeCmd.Flags().StringVar(&focusFlag, "focus", "", "Focus preset (buttons, inputs, interactive, ...)")
	describeCmd.Flags().StringVar(&matchFlag, "match", "", "Name filter pattern")
	describeCmd.Flags().StringVar(&matchKindFlag, "match-kind", "glob", "Name filter kind: glob|regex")
	describeCmd.Flags().StringVar(&regionFlag, "region", "", "Named band (top|bottom|left|right|center) or x,y,w,h")
	describeCmd.Flags().BoolVar(&diffFlag, "diff", false, "Return only the delta against the last snapshot of this window")
	describeCmd.Flags().BoolVar(&summaryFlag, "summary", false, "Include the always-cheap summary payload")

	findCmd.Flags().StringVar(&focusFlag, "focus", "", "Focus preset to search within")
	findCmd.Flags().StringVar(&roleFlag, "role", "", "Restrict matches to this role")
	findCmd.Flags().StringVar(&regionFlag, "region", "", "Named band or x,y,w,h")

	screenshotCmd.Flags().StringVar(&regionFlag, "region", "", "Named band or x,y,w,h")
	screenshotCmd.Flags().BoolVar(&markFlag, "mark", false, "Annotate interactable elements with numbered badges")
}
