//go:build windows

package lowlevel

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// windowsInput shells out to PowerShell to drive the Win32 cursor/keybd
// APIs; a native-code binding would replace this if ever taken beyond the
// narrow interface the core consumes.
type windowsInput struct {
	bin string
}

func newPlatformInput() Input {
	bin, _ := exec.LookPath("powershell.exe")
	return &windowsInput{bin: bin}
}

func (w *windowsInput) Available() bool { return w.bin != "" }

func (w *windowsInput) run(ctx context.Context, script string) error {
	if w.bin == "" {
		return fmt.Errorf("powershell.exe not found in PATH")
	}
	cmd := exec.CommandContext(ctx, w.bin, "-NoProfile", "-Command", script)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("powershell: %w (%s)", err, strings.TrimSpace(string(out)))
	}
	return nil
}

func (w *windowsInput) MoveTo(ctx context.Context, x, y int) error {
	return w.run(ctx, fmt.Sprintf(`[System.Windows.Forms.Cursor]::Position = New-Object System.Drawing.Point(%d,%d)`, x, y))
}

func (w *windowsInput) Click(ctx context.Context, x, y int, button Button) error {
	if err := w.MoveTo(ctx, x, y); err != nil {
		return err
	}
	if err := w.run(ctx, mouseEventScript(button, true)); err != nil {
		return err
	}
	return w.run(ctx, mouseEventScript(button, false))
}

func (w *windowsInput) DoubleClick(ctx context.Context, x, y int, button Button) error {
	if err := w.Click(ctx, x, y, button); err != nil {
		return err
	}
	return w.Click(ctx, x, y, button)
}

func (w *windowsInput) Drag(ctx context.Context, fromX, fromY, toX, toY int) error {
	if err := w.MoveTo(ctx, fromX, fromY); err != nil {
		return err
	}
	if err := w.run(ctx, mouseEventScript(ButtonLeft, true)); err != nil {
		return err
	}
	if err := w.MoveTo(ctx, toX, toY); err != nil {
		return err
	}
	return w.run(ctx, mouseEventScript(ButtonLeft, false))
}

func (w *windowsInput) Scroll(ctx context.Context, x, y, ticks int) error {
	if err := w.MoveTo(ctx, x, y); err != nil {
		return err
	}
	key := "{PGUP}"
	if ticks < 0 {
		key = "{PGDN}"
	}
	return w.run(ctx, fmt.Sprintf(`Add-Type -AssemblyName System.Windows.Forms; [System.Windows.Forms.SendKeys]::SendWait("%s")`, key))
}

func (w *windowsInput) TypeText(ctx context.Context, text string) error {
	escaped := sendKeysEscape(text)
	return w.run(ctx, fmt.Sprintf(`Add-Type -AssemblyName System.Windows.Forms; [System.Windows.Forms.SendKeys]::SendWait("%s")`, escaped))
}

// sendKeysModifier maps a combo token to its SendKeys modifier prefix.
func sendKeysModifier(token string) (string, bool) {
	switch token {
	case "ctrl", "control":
		return "^", true
	case "alt":
		return "%", true
	case "shift":
		return "+", true
	default:
		return "", false
	}
}

// sendKeysKeyName maps a combo's trailing key token to SendKeys' own name
// for keys that aren't a single printable character.
func sendKeysKeyName(key string) string {
	switch strings.ToLower(key) {
	case "enter", "return":
		return "{ENTER}"
	case "tab":
		return "{TAB}"
	case "esc", "escape":
		return "{ESC}"
	case "backspace":
		return "{BACKSPACE}"
	case "delete", "del":
		return "{DELETE}"
	case "up":
		return "{UP}"
	case "down":
		return "{DOWN}"
	case "left":
		return "{LEFT}"
	case "right":
		return "{RIGHT}"
	default:
		if len(key) == 1 {
			return sendKeysEscape(key)
		}
		return "{" + strings.ToUpper(key) + "}"
	}
}

// sendKeysEscape backslash-protects SendKeys' own special characters
// (+^%~(){}) by wrapping them in braces, per the SendKeys reference.
func sendKeysEscape(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '+', '^', '%', '~', '(', ')', '{', '}':
			b.WriteByte('{')
			b.WriteRune(r)
			b.WriteByte('}')
		case '"':
			b.WriteString(`'`)
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

func (w *windowsInput) PressKeyCombo(ctx context.Context, combo string) error {
	mods, key := parseCombo(combo)
	var prefix strings.Builder
	for _, m := range mods {
		if p, ok := sendKeysModifier(m); ok {
			prefix.WriteString(p)
		}
	}
	script := prefix.String() + sendKeysKeyName(key)
	return w.run(ctx, fmt.Sprintf(`Add-Type -AssemblyName System.Windows.Forms; [System.Windows.Forms.SendKeys]::SendWait("%s")`, script))
}

// mouseEventScript emits a PowerShell snippet that P/Invokes user32's
// mouse_event to press or release button at the cursor's current position
// (MoveTo is always called first, so no coordinates are needed here).
func mouseEventScript(button Button, down bool) string {
	var flag uint32
	switch button {
	case ButtonRight:
		if down {
			flag = 0x0008 // MOUSEEVENTF_RIGHTDOWN
		} else {
			flag = 0x0010 // MOUSEEVENTF_RIGHTUP
		}
	case ButtonMiddle:
		if down {
			flag = 0x0020 // MOUSEEVENTF_MIDDLEDOWN
		} else {
			flag = 0x0040 // MOUSEEVENTF_MIDDLEUP
		}
	default:
		if down {
			flag = 0x0002 // MOUSEEVENTF_LEFTDOWN
		} else {
			flag = 0x0004 // MOUSEEVENTF_LEFTUP
		}
	}
	return fmt.Sprintf(`Add-Type -TypeDefinition @"
using System.Runtime.InteropServices;
public class NexusMouse {
    [DllImport("user32.dll")]
    public static extern void mouse_event(uint dwFlags, int dx, int dy, int dwData, int dwExtraInfo);
}
"@
[NexusMouse]::mouse_event(%d, 0, 0, 0, 0)`, flag)
}
