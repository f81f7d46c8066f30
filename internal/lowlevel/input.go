// Package lowlevel provides the per-platform pointer/keyboard primitives the
// Native-AX backend dispatches onto when a semantic accessibility action is
// unavailable and a coordinate-based fallback is required. Each platform's
// implementation lives in its own build-tagged file.
package lowlevel

import (
	"context"
	"strings"
)

// Input is the synchronous, pixel-coordinate primitive set every platform
// implements. All methods block until the OS has processed the event.
type Input interface {
	MoveTo(ctx context.Context, x, y int) error
	Click(ctx context.Context, x, y int, button Button) error
	DoubleClick(ctx context.Context, x, y int, button Button) error
	Drag(ctx context.Context, fromX, fromY, toX, toY int) error
	Scroll(ctx context.Context, x, y, ticks int) error
	TypeText(ctx context.Context, text string) error
	PressKeyCombo(ctx context.Context, combo string) error

	// Available reports whether this platform's backing tool is present
	// (e.g. xdotool on Linux); Health() on the owning backend surfaces this.
	Available() bool
}

// Button identifies which pointer button an action should use.
type Button string

const (
	ButtonLeft   Button = "left"
	ButtonRight  Button = "right"
	ButtonMiddle Button = "middle"
)

// New returns the Input implementation for the running platform.
func New() Input {
	return newPlatformInput()
}

// parseCombo splits a combo string like "ctrl+shift+s" into its modifier
// tokens (lowercased, in the order given) and the trailing key token.
// A combo with no "+" is treated as a bare key with no modifiers.
func parseCombo(combo string) (mods []string, key string) {
	parts := strings.Split(combo, "+")
	if len(parts) == 0 {
		return nil, combo
	}
	key = parts[len(parts)-1]
	for _, p := range parts[:len(parts)-1] {
		mods = append(mods, strings.ToLower(strings.TrimSpace(p)))
	}
	return mods, strings.TrimSpace(key)
}
