//go:build darwin

package lowlevel

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// darwinInput drives input via osascript/System Events, the conventional
// scripting bridge into macOS's accessibility input APIs.
type darwinInput struct {
	bin string
}

func newPlatformInput() Input {
	bin, _ := exec.LookPath("osascript")
	return &darwinInput{bin: bin}
}

func (d *darwinInput) Available() bool { return d.bin != "" }

func (d *darwinInput) run(ctx context.Context, script string) error {
	if d.bin == "" {
		return fmt.Errorf("osascript not found in PATH")
	}
	cmd := exec.CommandContext(ctx, d.bin, "-e", script)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("osascript: %w (%s)", err, strings.TrimSpace(string(out)))
	}
	return nil
}

func (d *darwinInput) MoveTo(ctx context.Context, x, y int) error {
	return d.run(ctx, fmt.Sprintf(`tell application "System Events" to set mouse location to {%d, %d}`, x, y))
}

func (d *darwinInput) Click(ctx context.Context, x, y int, button Button) error {
	_ = button // System Events click is left-button only without extra helpers
	return d.run(ctx, fmt.Sprintf(`tell application "System Events" to click at {%d, %d}`, x, y))
}

func (d *darwinInput) DoubleClick(ctx context.Context, x, y int, button Button) error {
	return d.run(ctx, fmt.Sprintf(`tell application "System Events" to double click at {%d, %d}`, x, y))
}

func (d *darwinInput) Drag(ctx context.Context, fromX, fromY, toX, toY int) error {
	script := fmt.Sprintf(`tell application "System Events"
		set mouse location to {%d, %d}
		mouse down
		set mouse location to {%d, %d}
		mouse up
	end tell`, fromX, fromY, toX, toY)
	return d.run(ctx, script)
}

func (d *darwinInput) Scroll(ctx context.Context, x, y, ticks int) error {
	return d.run(ctx, fmt.Sprintf(`tell application "System Events" to scroll {%d, %d} by %d`, x, y, ticks))
}

func (d *darwinInput) TypeText(ctx context.Context, text string) error {
	escaped := strings.ReplaceAll(text, `"`, `\"`)
	return d.run(ctx, fmt.Sprintf(`tell application "System Events" to keystroke "%s"`, escaped))
}

// darwinModifier maps a combo token to the AppleScript "using" modifier
// phrase System Events expects.
func darwinModifier(token string) (string, bool) {
	switch token {
	case "ctrl", "control":
		return "control down", true
	case "alt", "option":
		return "option down", true
	case "shift":
		return "shift down", true
	case "cmd", "command", "meta", "super":
		return "command down", true
	default:
		return "", false
	}
}

func (d *darwinInput) PressKeyCombo(ctx context.Context, combo string) error {
	mods, key := parseCombo(combo)
	if len(mods) == 0 {
		return d.run(ctx, fmt.Sprintf(`tell application "System Events" to keystroke "%s"`, key))
	}
	var phrases []string
	for _, m := range mods {
		if phrase, ok := darwinModifier(m); ok {
			phrases = append(phrases, phrase)
		}
	}
	escaped := strings.ReplaceAll(key, `"`, `\"`)
	return d.run(ctx, fmt.Sprintf(`tell application "System Events" to keystroke "%s" using {%s}`, escaped, strings.Join(phrases, ", ")))
}
