// Package filter implements the Filter Engine: focus presets,
// name matching, and region bounding, combined by logical AND.
package filter

import (
	"path/filepath"
	"regexp"
	"strings"

	"nexus/internal/model"
)

// Preset is a named focus filter: a role subset and/or a name/role regex.
// Presets are data so they can be extended from config without a rebuild.
type Preset struct {
	Name    string      `yaml:"name" json:"name"`
	Roles   []model.Role `yaml:"roles,omitempty" json:"roles,omitempty"`
	Pattern string      `yaml:"pattern,omitempty" json:"pattern,omitempty"` // matched against name or role
}

// DefaultPresets is the closed set of compiled-in presets: buttons, inputs,
// interactive, errors, dialogs, navigation, headings, forms.
func DefaultPresets() map[string]Preset {
	return map[string]Preset{
		"buttons": {Name: "buttons", Roles: []model.Role{model.RoleButton}},
		"inputs":  {Name: "inputs", Roles: []model.Role{model.RoleEdit, model.RoleComboBox, model.RoleCheckBox, model.RoleRadio}},
		"interactive": {Name: "interactive", Roles: []model.Role{
			model.RoleButton, model.RoleEdit, model.RoleLink, model.RoleMenuItem,
			model.RoleCheckBox, model.RoleRadio, model.RoleComboBox, model.RoleTab,
			model.RoleListItem, model.RoleTreeItem,
		}},
		"errors":     {Name: "errors", Pattern: `(?i)error|warning|alert`},
		"dialogs":    {Name: "dialogs", Roles: []model.Role{model.RoleDialog}},
		"navigation": {Name: "navigation", Roles: []model.Role{model.RoleLink, model.RoleTab, model.RoleMenuItem}},
		"headings":   {Name: "headings", Roles: []model.Role{model.RoleHeading}},
		"forms":      {Name: "forms", Roles: []model.Role{model.RoleEdit, model.RoleComboBox, model.RoleCheckBox, model.RoleRadio, model.RoleButton}},
	}
}

// Region is either a named fractional band of the containing window, or an
// explicit pixel rectangle.
type Region struct {
	Named string // top, bottom, left, right, center
	Rect  model.Rect
}

var namedRegionFractions = map[string][4]float64{
	// xFrac, yFrac, wFrac, hFrac — applied against the window's bounds.
	"top":    {0.0, 0.0, 1.0, 0.33},
	"bottom": {0.0, 0.67, 1.0, 0.33},
	"left":   {0.0, 0.0, 0.33, 1.0},
	"right":  {0.67, 0.0, 0.33, 1.0},
	"center": {0.25, 0.25, 0.5, 0.5},
}

// Resolve expands a named region against a containing window rect; an
// explicit Rect is returned unchanged.
func (r Region) Resolve(window model.Rect) model.Rect {
	if r.Named == "" {
		return r.Rect
	}
	frac, ok := namedRegionFractions[strings.ToLower(r.Named)]
	if !ok {
		return r.Rect
	}
	return model.Rect{
		X: window.X + int(frac[0]*float64(window.W)),
		Y: window.Y + int(frac[1]*float64(window.H)),
		W: int(frac[2] * float64(window.W)),
		H: int(frac[3] * float64(window.H)),
	}
}

// Spec is the full set of filter criteria requested for one query; zero
// values mean "no constraint of this kind". All set criteria combine by AND.
type Spec struct {
	Preset     string
	NameGlob   string
	NameRegex  string
	Region     *Region
	WindowRect model.Rect // needed to resolve a named Region
}

// Apply filters elements against spec, returning those matching every
// criterion present. It is a pure predicate evaluation: no I/O, and it
// produces the same result whether or not the originating backend could
// apply some of these conditions natively during traversal.
func Apply(elements []model.Element, spec Spec, presets map[string]Preset) ([]model.Element, error) {
	var predicates []func(model.Element) bool

	if spec.Preset != "" {
		preset, ok := presets[spec.Preset]
		if !ok {
			return nil, model.NewError(model.ErrBadRequest, "unknown focus preset %q", spec.Preset)
		}
		predicates = append(predicates, presetPredicate(preset))
	}

	if spec.NameGlob != "" {
		pattern := strings.ToLower(spec.NameGlob)
		predicates = append(predicates, func(e model.Element) bool {
			ok, _ := filepath.Match(pattern, strings.ToLower(e.Name))
			return ok
		})
	}

	if spec.NameRegex != "" {
		re, err := regexp.Compile(spec.NameRegex)
		if err != nil {
			return nil, model.NewError(model.ErrBadRequest, "invalid name regex %q: %v", spec.NameRegex, err)
		}
		predicates = append(predicates, func(e model.Element) bool { return re.MatchString(e.Name) })
	}

	if spec.Region != nil {
		bounds := spec.Region.Resolve(spec.WindowRect)
		predicates = append(predicates, func(e model.Element) bool { return rectContainsCenter(bounds, e.Bounds) })
	}

	if len(predicates) == 0 {
		return elements, nil
	}

	out := make([]model.Element, 0, len(elements))
	for _, e := range elements {
		match := true
		for _, p := range predicates {
			if !p(e) {
				match = false
				break
			}
		}
		if match {
			out = append(out, e)
		}
	}
	return out, nil
}

func presetPredicate(p Preset) func(model.Element) bool {
	roleSet := make(map[model.Role]bool, len(p.Roles))
	for _, r := range p.Roles {
		roleSet[r] = true
	}
	var re *regexp.Regexp
	if p.Pattern != "" {
		re = regexp.MustCompile(p.Pattern)
	}
	return func(e model.Element) bool {
		if len(roleSet) > 0 && roleSet[e.Role] {
			return true
		}
		if re != nil && (re.MatchString(e.Name) || re.MatchString(string(e.Role))) {
			return true
		}
		return len(roleSet) == 0 && re == nil
	}
}

func rectContainsCenter(region, target model.Rect) bool {
	cx, cy := target.Center()
	return cx >= region.X && cx <= region.X+region.W && cy >= region.Y && cy <= region.Y+region.H
}
