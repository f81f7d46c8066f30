// Package model defines the data types shared across the perception,
// resolver, action and daemon layers: Element, Snapshot, WindowKey,
// MarkTable and the request/response envelope.
package model

import "time"

// Role is the closed set of control classes a backend can normalize into.
type Role string

const (
	RoleButton     Role = "Button"
	RoleEdit       Role = "Edit"
	RoleLink       Role = "Link"
	RoleMenuItem   Role = "MenuItem"
	RoleCheckBox   Role = "CheckBox"
	RoleRadio      Role = "RadioButton"
	RoleComboBox   Role = "ComboBox"
	RoleTab        Role = "Tab"
	RoleList       Role = "List"
	RoleListItem   Role = "ListItem"
	RoleTreeItem   Role = "TreeItem"
	RoleDialog     Role = "Dialog"
	RoleWindow     Role = "Window"
	RoleStaticText Role = "StaticText"
	RoleGroup      Role = "Group"
	RoleHeading    Role = "Heading"
	RoleOther      Role = "Other"
)

// Source identifies which backend produced an Element.
type Source string

const (
	SourceNativeAX  Source = "native-ax"
	SourceBrowserAX Source = "browser-ax"
	SourceOCR       Source = "ocr"
	SourceVision    Source = "vision"
)

// Rect is an integer screen rectangle in pixels.
type Rect struct {
	X int `json:"x"`
	Y int `json:"y"`
	W int `json:"w"`
	H int `json:"h"`
}

// Empty reports whether the rectangle has zero area.
func (r Rect) Empty() bool { return r.W <= 0 || r.H <= 0 }

// CenterX and CenterY return the integer center point of the rectangle.
func (r Rect) Center() (int, int) {
	return r.X + r.W/2, r.Y + r.H/2
}

// Tristate models a boolean that may be unknown (absent in the source tree).
type Tristate struct {
	Known bool
	Value bool
}

// Known true/false helpers keep call sites terse.
func TriTrue() Tristate  { return Tristate{Known: true, Value: true} }
func TriFalse() Tristate { return Tristate{Known: true, Value: false} }

// MarshalJSON renders an unknown tristate as null and a known one as a bool.
func (t Tristate) MarshalJSON() ([]byte, error) {
	if !t.Known {
		return []byte("null"), nil
	}
	if t.Value {
		return []byte("true"), nil
	}
	return []byte("false"), nil
}

// Element is the normalized unit produced by the Normalizer. RawRef is never serialized outside the process.
type Element struct {
	ID         string   `json:"id"`
	Role       Role     `json:"role"`
	Name       string   `json:"name"`
	Value      string   `json:"value,omitempty"`
	Bounds     Rect     `json:"bounds"`
	Enabled    Tristate `json:"enabled"`
	Focused    Tristate `json:"focused"`
	Visible    Tristate `json:"visible"`
	Editable   Tristate `json:"editable"`
	ParentName string   `json:"parent_name,omitempty"`
	Source     Source   `json:"source"`
	RawRef     any      `json:"-"`
}

// MatchKey is the composite key used by the diff matcher: elements
// across two snapshots are considered "the same" control if these three
// fields are equal.
type MatchKey struct {
	Name       string
	Role       Role
	ParentName string
}

func (e Element) MatchKey() MatchKey {
	return MatchKey{Name: e.Name, Role: e.Role, ParentName: e.ParentName}
}

// WindowKey is the cache key: (window_title, process_identifier, backend).
type WindowKey struct {
	WindowTitle string `json:"window_title"`
	ProcessID   string `json:"process_id"`
	Backend     Source `json:"backend"`
}

// Snapshot is an ordered Element list for one window at one instant.
type Snapshot struct {
	WindowKey   WindowKey `json:"window_key"`
	Elements    []Element `json:"elements"`
	CapturedAt  time.Time `json:"captured_at"`
	Fingerprint string    `json:"fingerprint"`
	Screenshot  []byte    `json:"-"`

	// Diagnostic explains why the Element list is empty when it legitimately
	// is (minimized window, no AX support, permissions) — an empty
	// perception result is not itself an error.
	Diagnostic string `json:"diagnostic,omitempty"`
}

// FocusedElement returns the focused element in the snapshot, if any.
func (s *Snapshot) FocusedElement() (Element, bool) {
	for _, e := range s.Elements {
		if e.Focused.Known && e.Focused.Value {
			return e, true
		}
	}
	return Element{}, false
}

// ByID returns the element with the given id.
func (s *Snapshot) ByID(id string) (Element, bool) {
	for _, e := range s.Elements {
		if e.ID == id {
			return e, true
		}
	}
	return Element{}, false
}
