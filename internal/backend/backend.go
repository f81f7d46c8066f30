// Package backend implements the Backend Adapters: the pluggable
// sources of raw element graphs (Native-AX, Browser-AX, OCR-text,
// Vision-detect) behind one contract the Normalizer can consume without
// further I/O.
package backend

import (
	"context"

	"nexus/internal/model"
)

// RawNode is one backend-native node before normalization. Backends fill in
// whatever fields their platform gives them; the Normalizer fills the rest.
type RawNode struct {
	Role       string
	Name       string
	Value      string
	Bounds     model.Rect
	Enabled    model.Tristate
	Focused    model.Tristate
	Visible    model.Tristate
	Editable   model.Tristate
	ParentName string
	Children   []*RawNode
	RawRef     any
}

// RawGraph is the acquisition result: a forest of RawNodes plus the
// metadata needed to build a WindowKey and fingerprint.
type RawGraph struct {
	WindowTitle string
	ProcessID   string
	Roots       []*RawNode
}

// Query narrows what a backend walks/returns; native and browser backends
// apply what they can natively, the rest is filtered post-traversal
// by the Filter Engine.
type Query struct {
	AppScope string // window/app title substring or process hint
	MaxDepth int    // 0 means use the backend's default (native default 3)
}

// Action is a backend-level operation dispatched against a RawRef previously
// handed out by that same backend.
type Action struct {
	Kind  ActionKind
	Point model.Rect // X/Y is the target point; for ActionDrag, W/H double as the destination X/Y
	Text  string      // type_text
	Keys  string      // press_key_combo, e.g. "ctrl+s"
	Ticks int         // scroll
	URL   string      // web_navigate
}

type ActionKind string

const (
	ActionInvoke    ActionKind = "invoke"     // semantic click/activate
	ActionFocus     ActionKind = "focus"
	ActionSetValue  ActionKind = "set_value"
	ActionPressKey  ActionKind = "press_key"
	ActionClickXY   ActionKind = "click_xy"
	ActionDblClick  ActionKind = "double_click_xy"
	ActionRightClick ActionKind = "right_click_xy"
	ActionMove      ActionKind = "move_xy"
	ActionDrag      ActionKind = "drag_xy"
	ActionScroll    ActionKind = "scroll"
	ActionNavigate  ActionKind = "navigate"
)

// Result is the outcome of a backend-level Action.
type Result struct {
	OK      bool
	Message string
}

// Status is the outcome of a Health check.
type Status struct {
	Healthy bool
	Detail  string
}

// Backend is the contract every perception/action source implements.
// Concurrency: the perception pipeline wraps Acquire in a singleflight group
// keyed by backend, app scope and depth, so at most one acquire per such
// query is in flight at a time; Backend implementations themselves need not be reentrant-safe for
// Acquire, only for Perform (actions can race a concurrent health probe).
type Backend interface {
	Source() model.Source
	Open(ctx context.Context) error
	Close(ctx context.Context) error
	Health(ctx context.Context) Status

	// Acquire walks/queries the live tree and returns a RawGraph the
	// Normalizer can translate without further I/O.
	Acquire(ctx context.Context, q Query) (*RawGraph, error)

	// Fingerprint is a cheap probe used by the Snapshot Cache — it
	// must cost much less than a full Acquire.
	Fingerprint(ctx context.Context, q Query) (string, error)

	// Perform dispatches an action against a raw_ref this backend
	// previously handed out (via a RawNode.RawRef carried on an Element).
	Perform(ctx context.Context, rawRef any, action Action) (Result, error)
}

// Screenshotter is an optional capability a Backend can implement to back
// the `screenshot` command. Not every Backend can produce pixels (a
// headless OCR/vision fallback has none), so the core type-asserts for it
// rather than adding a required method every Backend must stub out.
type Screenshotter interface {
	Screenshot(ctx context.Context) (png []byte, width, height int, err error)
}
