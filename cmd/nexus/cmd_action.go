package main

import (
	"os"

	"github.com/spf13/cobra"

	"nexus/internal/model"
)

var (
	xFlag, yFlag, dxFlag, dyFlag, ticksFlag, indexFlag, nFlag int
)

func pointCmd(use, short, command string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		RunE: runSingleShot(func() model.Request {
			req := commonRequest(command)
			req.X, req.Y = xFlag, yFlag
			return req
		}),
	}
	cmd.Flags().IntVar(&xFlag, "x", 0, "X coordinate")
	cmd.Flags().IntVar(&yFlag, "y", 0, "Y coordinate")
	return cmd
}

var clickCmd = pointCmd("click", "Click at a pixel coordinate", "click")
var doubleClickCmd = pointCmd("double_click", "Double-click at a pixel coordinate", "double_click")
var rightClickCmd = pointCmd("right_click", "Right-click at a pixel coordinate", "right_click")
var moveCmd = pointCmd("move", "Move the pointer to a pixel coordinate", "move")

var dragCmd = &cobra.Command{
	Use:   "drag",
	Short: "Drag from (x, y) by (dx, dy)",
	RunE: runSingleShot(func() model.Request {
		req := commonRequest("drag")
		req.X, req.Y, req.DX, req.DY = xFlag, yFlag, dxFlag, dyFlag
		return req
	}),
}

var scrollCmd = &cobra.Command{
	Use:   "scroll",
	Short: "Scroll at a pixel coordinate by a tick count",
	RunE: runSingleShot(func() model.Request {
		req := commonRequest("scroll")
		req.X, req.Y, req.Ticks = xFlag, yFlag, ticksFlag
		return req
	}),
}

var typeTextCmd = &cobra.Command{
	Use:   "type_text <text>",
	Short: "Type text into whatever currently has keyboard focus",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		req := commonRequest("type_text")
		req.Text = args[0]
		return finish(dispatchAndPrint(req))
	},
}

var keyCmd = &cobra.Command{
	Use:   "key <combo>",
	Short: `Press a key combo (e.g. "ctrl+s") against whatever has keyboard focus`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		req := commonRequest("key")
		req.Keys = args[0]
		return finish(dispatchAndPrint(req))
	},
}

var clickElementCmd = &cobra.Command{
	Use:   "click_element <name>",
	Short: "Resolve a symbolic target by name/role/index and click it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		req := commonRequest("click_element")
		req.Name = args[0]
		req.Role = model.Role(roleFlag)
		req.Index = indexFlag
		return finish(dispatchAndPrint(req))
	},
}

var clickMarkCmd = &cobra.Command{
	Use:   "click_mark --n <n>",
	Short: "Click the element carrying mark number n from the last annotated screenshot",
	RunE: runSingleShot(func() model.Request {
		req := commonRequest("click_mark")
		req.N = nFlag
		return req
	}),
}

func init() {
	dragCmd.Flags().IntVar(&xFlag, "x", 0, "Starting X coordinate")
	dragCmd.Flags().IntVar(&yFlag, "y", 0, "Starting Y coordinate")
	dragCmd.Flags().IntVar(&dxFlag, "dx", 0, "Horizontal displacement")
	dragCmd.Flags().IntVar(&dyFlag, "dy", 0, "Vertical displacement")

	scrollCmd.Flags().IntVar(&xFlag, "x", 0, "X coordinate")
	scrollCmd.Flags().IntVar(&yFlag, "y", 0, "Y coordinate")
	scrollCmd.Flags().IntVar(&ticksFlag, "ticks", 0, "Scroll tick count; positive scrolls up, negative scrolls down")

	clickElementCmd.Flags().StringVar(&roleFlag, "role", "", "Restrict resolution to this role")
	clickElementCmd.Flags().IntVar(&indexFlag, "index", 0, "1-based disambiguation index among equally-scored matches")

	clickMarkCmd.Flags().IntVar(&nFlag, "n", 0, "Mark number")
}

// finish converts a dispatchAndPrint result into cobra's RunE contract,
// exiting 1 when the response was ok:false without cobra's own error/usage
// printing (the JSON response already carries the failure detail).
func finish(ok bool, err error) error {
	if err != nil {
		return err
	}
	if !ok {
		os.Exit(1)
	}
	return nil
}
