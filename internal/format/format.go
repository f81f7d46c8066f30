// Package format implements the Formatter: three pure rendering
// modes over an Element list, plus the bijective compact parser.
package format

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"nexus/internal/model"
)

type Mode string

const (
	ModeJSON    Mode = "json"
	ModeCompact Mode = "compact"
	ModeMinimal Mode = "minimal"
)

// roleAbbrev is the fixed abbreviation table for compact mode.
var roleAbbrev = map[model.Role]string{
	model.RoleButton:     "Btn",
	model.RoleEdit:       "Edit",
	model.RoleLink:       "Link",
	model.RoleMenuItem:   "Menu",
	model.RoleCheckBox:   "Chk",
	model.RoleRadio:      "Rad",
	model.RoleComboBox:   "Cmb",
	model.RoleTab:        "Tab",
	model.RoleListItem:   "Item",
	model.RoleTreeItem:   "Tree",
	model.RoleHeading:    "H",
	model.RoleStaticText: "Txt",
	model.RoleDialog:     "Dlg",
	model.RoleWindow:     "Win",
}

var abbrevToRole = func() map[string]model.Role {
	m := make(map[string]model.Role, len(roleAbbrev))
	for role, abbrev := range roleAbbrev {
		m[abbrev] = role
	}
	return m
}()

func abbrevOf(r model.Role) string {
	if a, ok := roleAbbrev[r]; ok {
		return a
	}
	return string(r)
}

const maxCompactValueLen = 30

// Render produces the requested view over elements. json and minimal are
// one-way; compact round-trips through Parse.
func Render(elements []model.Element, mode Mode) (string, error) {
	switch mode {
	case ModeJSON, "":
		b, err := json.Marshal(elements)
		if err != nil {
			return "", err
		}
		return string(b), nil
	case ModeCompact:
		lines := make([]string, len(elements))
		for i, e := range elements {
			lines[i] = renderCompactLine(e)
		}
		return strings.Join(lines, "\n"), nil
	case ModeMinimal:
		lines := make([]string, len(elements))
		for i, e := range elements {
			lines[i] = fmt.Sprintf("%s %s", e.Role, e.Name)
		}
		return strings.Join(lines, "\n"), nil
	default:
		return "", model.NewError(model.ErrBadRequest, "unknown format mode %q", mode)
	}
}

func renderCompactLine(e model.Element) string {
	x, y := e.Bounds.X, e.Bounds.Y
	var flags []string
	if e.Focused.Known && e.Focused.Value {
		flags = append(flags, "*focused*")
	}
	if e.Enabled.Known && !e.Enabled.Value {
		flags = append(flags, "*disabled*")
	}
	if e.Value != "" {
		v := e.Value
		if len(v) > maxCompactValueLen {
			v = v[:maxCompactValueLen] + "…"
		}
		flags = append(flags, fmt.Sprintf("[val=%s]", v))
	}
	flagStr := ""
	if len(flags) > 0 {
		flagStr = " " + strings.Join(flags, " ")
	}
	return fmt.Sprintf("[%s] %s | (%d,%d) %dx%d%s", abbrevOf(e.Role), e.Name, x, y, e.Bounds.W, e.Bounds.H, flagStr)
}

var compactLineRE = regexp.MustCompile(`^\[([^\]]+)\] (.*) \| \((-?\d+),(-?\d+)\) (\d+)x(\d+)(.*)$`)
var compactValRE = regexp.MustCompile(`\[val=(.*?)\]`)

// ParsedLine is the decoded form of one compact-mode line.
type ParsedLine struct {
	Role     model.Role
	Name     string
	Bounds   model.Rect
	Focused  bool
	Disabled bool
	Value    string
}

// Parse inverts renderCompactLine; it is the formatter's only parsing
// responsibility and exists purely to satisfy the compact round-trip
// property. It never consults a backend.
func Parse(line string) (ParsedLine, error) {
	m := compactLineRE.FindStringSubmatch(line)
	if m == nil {
		return ParsedLine{}, model.NewError(model.ErrBadRequest, "line does not match compact format: %q", line)
	}
	role, ok := abbrevToRole[m[1]]
	if !ok {
		role = model.Role(m[1])
	}
	x, _ := strconv.Atoi(m[3])
	y, _ := strconv.Atoi(m[4])
	w, _ := strconv.Atoi(m[5])
	h, _ := strconv.Atoi(m[6])

	parsed := ParsedLine{
		Role:   role,
		Name:   m[2],
		Bounds: model.Rect{X: x, Y: y, W: w, H: h},
	}
	rest := m[7]
	parsed.Focused = strings.Contains(rest, "*focused*")
	parsed.Disabled = strings.Contains(rest, "*disabled*")
	if vm := compactValRE.FindStringSubmatch(rest); vm != nil {
		parsed.Value = vm[1]
	}
	return parsed, nil
}
