package backend

import (
	"context"
	"fmt"
	"sync"

	"nexus/internal/lowlevel"
	"nexus/internal/model"
)

// NativeTree is the external-collaborator interface for the platform
// accessibility layer (AT-SPI / UIA / AX). It is injected rather than
// implemented here, scoping OS-specific tree walking as an external adapter.
type NativeTree interface {
	// FindAll walks from the foreground (or named) root applying
	// conditions natively where the platform supports it, bounded by depth.
	FindAll(ctx context.Context, appScope string, depth int) ([]*RawNode, error)
	Invoke(ctx context.Context, ref any) error
	SetFocus(ctx context.Context, ref any) error
	SetValue(ctx context.Context, ref any, value string) error
	GetAttribute(ctx context.Context, ref any, key string) (string, error)
	ForegroundWindowTitle(ctx context.Context) (string, string, error) // title, processID
}

// unavailableTree is used when no native accessibility collaborator has
// been wired (e.g. running headless, or on an unsupported platform); it
// reports unhealthy and returns errors rather than panicking, so Acquire
// fails with backend_unavailable.
type unavailableTree struct{ reason string }

func (u unavailableTree) FindAll(ctx context.Context, appScope string, depth int) ([]*RawNode, error) {
	return nil, fmt.Errorf("native accessibility unavailable: %s", u.reason)
}
func (u unavailableTree) Invoke(ctx context.Context, ref any) error      { return fmt.Errorf(u.reason) }
func (u unavailableTree) SetFocus(ctx context.Context, ref any) error    { return fmt.Errorf(u.reason) }
func (u unavailableTree) SetValue(ctx context.Context, ref any, v string) error {
	return fmt.Errorf(u.reason)
}
func (u unavailableTree) GetAttribute(ctx context.Context, ref any, key string) (string, error) {
	return "", fmt.Errorf(u.reason)
}
func (u unavailableTree) ForegroundWindowTitle(ctx context.Context) (string, string, error) {
	return "", "", fmt.Errorf(u.reason)
}

// DefaultMaxDepth is the native walk's default depth.
const DefaultMaxDepth = 3

// NativeAX implements Backend by delegating tree access to a NativeTree and
// coordinate-based fallback dispatch to a lowlevel.Input.
type NativeAX struct {
	mu    sync.Mutex
	tree  NativeTree
	input lowlevel.Input
}

// NewNativeAX wires a NativeAX backend. Pass a nil tree to get a graceful
// "unavailable" adapter (useful in tests or headless environments).
func NewNativeAX(tree NativeTree) *NativeAX {
	if tree == nil {
		tree = unavailableTree{reason: "no native accessibility collaborator configured"}
	}
	return &NativeAX{tree: tree, input: lowlevel.New()}
}

func (n *NativeAX) Source() model.Source { return model.SourceNativeAX }

func (n *NativeAX) Open(ctx context.Context) error  { return nil }
func (n *NativeAX) Close(ctx context.Context) error { return nil }

func (n *NativeAX) Health(ctx context.Context) Status {
	_, _, err := n.tree.ForegroundWindowTitle(ctx)
	if err != nil {
		return Status{Healthy: false, Detail: err.Error()}
	}
	if !n.input.Available() {
		return Status{Healthy: true, Detail: "tree access OK, no low-level input tool on PATH"}
	}
	return Status{Healthy: true}
}

func (n *NativeAX) Acquire(ctx context.Context, q Query) (*RawGraph, error) {
	depth := q.MaxDepth
	if depth <= 0 {
		depth = DefaultMaxDepth
	}
	title, pid, err := n.tree.ForegroundWindowTitle(ctx)
	if err != nil {
		return nil, model.NewError(model.ErrBackendUnavailable, "native-ax: %v", err)
	}
	roots, err := n.tree.FindAll(ctx, q.AppScope, depth)
	if err != nil {
		return nil, model.NewError(model.ErrBackendUnavailable, "native-ax: %v", err)
	}
	return &RawGraph{WindowTitle: title, ProcessID: pid, Roots: roots}, nil
}

func (n *NativeAX) Fingerprint(ctx context.Context, q Query) (string, error) {
	title, pid, err := n.tree.ForegroundWindowTitle(ctx)
	if err != nil {
		return "", err
	}
	return title + "|" + pid, nil
}

func (n *NativeAX) Perform(ctx context.Context, rawRef any, action Action) (Result, error) {
	switch action.Kind {
	case ActionInvoke:
		if err := n.tree.Invoke(ctx, rawRef); err == nil {
			return Result{OK: true}, nil
		}
		// Semantic invoke unavailable — fall back to a coordinate click,
		// dispatch preference order.
		x, y := action.Point.Center()
		if err := n.input.Click(ctx, x, y, lowlevel.ButtonLeft); err != nil {
			return Result{}, err
		}
		return Result{OK: true, Message: "fell back to coordinate click"}, nil
	case ActionFocus:
		return Result{OK: n.tree.SetFocus(ctx, rawRef) == nil}, n.tree.SetFocus(ctx, rawRef)
	case ActionSetValue:
		if err := n.tree.SetValue(ctx, rawRef, action.Text); err == nil {
			return Result{OK: true}, nil
		}
		if err := n.input.TypeText(ctx, action.Text); err != nil {
			return Result{}, err
		}
		return Result{OK: true, Message: "fell back to keystroke typing"}, nil
	case ActionPressKey:
		return Result{OK: true}, n.input.PressKeyCombo(ctx, action.Keys)
	case ActionClickXY:
		x, y := action.Point.Center()
		return Result{OK: true}, n.input.Click(ctx, x, y, lowlevel.ButtonLeft)
	case ActionDblClick:
		x, y := action.Point.Center()
		return Result{OK: true}, n.input.DoubleClick(ctx, x, y, lowlevel.ButtonLeft)
	case ActionRightClick:
		x, y := action.Point.Center()
		return Result{OK: true}, n.input.Click(ctx, x, y, lowlevel.ButtonRight)
	case ActionMove:
		x, y := action.Point.Center()
		return Result{OK: true}, n.input.MoveTo(ctx, x, y)
	case ActionDrag:
		return Result{OK: true}, n.input.Drag(ctx, action.Point.X, action.Point.Y, action.Point.W, action.Point.H)
	case ActionScroll:
		x, y := action.Point.Center()
		return Result{OK: true}, n.input.Scroll(ctx, x, y, action.Ticks)
	default:
		return Result{}, model.NewError(model.ErrBadRequest, "native-ax: unsupported action %s", action.Kind)
	}
}
