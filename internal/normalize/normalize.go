// Package normalize implements the Normalizer: a pure function
// translating a backend's RawGraph into the closed Element model, computing
// parent_name and assigning reading-order ids.
package normalize

import (
	"fmt"
	"sort"
	"strings"

	"nexus/internal/backend"
	"nexus/internal/model"
)

// RoleMap maps a backend tag ("native-ax", "browser-ax", ...) and its raw
// role string to the closed Role enum. Unmapped pairs normalize to Other.
// Loaded from config so role vocabularies can be extended without a rebuild.
type RoleMap map[string]map[string]model.Role

// DefaultRoleMap is the compiled-in vocabulary for the two backends that
// ship with the core.
func DefaultRoleMap() RoleMap {
	return RoleMap{
		"native-ax": {
			"push button":  model.RoleButton,
			"button":       model.RoleButton,
			"text":         model.RoleEdit,
			"entry":        model.RoleEdit,
			"edit":         model.RoleEdit,
			"hyperlink":    model.RoleLink,
			"link":         model.RoleLink,
			"menu item":    model.RoleMenuItem,
			"check box":    model.RoleCheckBox,
			"radio button": model.RoleRadio,
			"combo box":    model.RoleComboBox,
			"page tab":     model.RoleTab,
			"list":         model.RoleList,
			"list item":    model.RoleListItem,
			"tree item":    model.RoleTreeItem,
			"dialog":       model.RoleDialog,
			"frame":        model.RoleWindow,
			"window":       model.RoleWindow,
			"label":        model.RoleStaticText,
			"static text":  model.RoleStaticText,
			"panel":        model.RoleGroup,
			"heading":      model.RoleHeading,
		},
		"browser-ax": {
			"button":    model.RoleButton,
			"edit":      model.RoleEdit,
			"link":      model.RoleLink,
			"menuitem":  model.RoleMenuItem,
			"checkbox":  model.RoleCheckBox,
			"radio":     model.RoleRadio,
			"combobox":  model.RoleComboBox,
			"tab":       model.RoleTab,
			"listitem":  model.RoleListItem,
			"dialog":    model.RoleDialog,
			"heading":   model.RoleHeading,
			"generic":   model.RoleGroup,
		},
	}
}

func (rm RoleMap) lookup(tag, raw string) model.Role {
	backendMap, ok := rm[tag]
	if !ok {
		return model.RoleOther
	}
	if role, ok := backendMap[strings.ToLower(strings.TrimSpace(raw))]; ok {
		return role
	}
	return model.RoleOther
}

// backendTag returns the id prefix and role-map key for a model.Source.
func backendTag(src model.Source) string { return string(src) }

// yBandPixels is the band height used to group elements into reading order.
const yBandPixels = 12

// Normalize converts a RawGraph acquired from the given source into a
// reading-ordered []Element. It never performs I/O.
func Normalize(graph *backend.RawGraph, src model.Source, roleMap RoleMap) []model.Element {
	if graph == nil {
		return nil
	}
	tag := backendTag(src)

	// Breadth-first: a level-order queue, not a DFS stack, because ids are
	// assigned from this traversal's order directly, independently of the
	// reading-order sort applied to the output list below. A parent is
	// always dequeued (and its name captured) before its children are
	// enqueued, so parentName still resolves correctly.
	type queued struct {
		raw        *backend.RawNode
		parentName string
	}
	var queue []queued
	for _, root := range graph.Roots {
		queue = append(queue, queued{raw: root, parentName: ""})
	}

	elements := make([]model.Element, 0, len(queue))
	for head := 0; head < len(queue); head++ {
		n := queue[head].raw
		if n == nil {
			continue
		}
		parentName := queue[head].parentName
		nextParent := parentName
		if strings.TrimSpace(n.Name) != "" {
			nextParent = n.Name
		}
		for _, c := range n.Children {
			queue = append(queue, queued{raw: c, parentName: nextParent})
		}

		role := roleMap.lookup(tag, n.Role)

		focusableEditable := n.Editable.Known && n.Editable.Value
		hasContent := strings.TrimSpace(n.Name) != "" || strings.TrimSpace(n.Value) != "" || len(n.Children) > 0
		if n.Bounds.Empty() {
			continue
		}
		if !hasContent && !focusableEditable {
			continue
		}

		elements = append(elements, model.Element{
			ID:         fmt.Sprintf("%s_%d", tag, len(elements)),
			Role:       role,
			Name:       n.Name,
			Value:      n.Value,
			Bounds:     n.Bounds,
			Enabled:    n.Enabled,
			Focused:    n.Focused,
			Visible:    n.Visible,
			Editable:   n.Editable,
			ParentName: parentName,
			Source:     src,
			RawRef:     n.RawRef,
		})
	}

	orderReading(elements)

	return elements
}

// orderReading sorts elements into horizontal bands of yBandPixels, then by
// x within each band.
func orderReading(elements []model.Element) {
	sort.SliceStable(elements, func(i, j int) bool {
		bi := elements[i].Bounds.Y / yBandPixels
		bj := elements[j].Bounds.Y / yBandPixels
		if bi != bj {
			return bi < bj
		}
		return elements[i].Bounds.X < elements[j].Bounds.X
	})
}
