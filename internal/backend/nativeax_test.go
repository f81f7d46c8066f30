package backend

import (
	"context"
	"errors"
	"testing"

	"nexus/internal/lowlevel"
	"nexus/internal/model"
)

// fakeTree is an in-memory NativeTree stand-in. Each method's error field
// drives the semantic-vs-coordinate-fallback decision under test.
type fakeTree struct {
	invokeErr   error
	setValueErr error
	invokeCalls int
	setValCalls int

	title, pid string
	titleErr   error

	roots []*RawNode
}

func (f *fakeTree) FindAll(ctx context.Context, appScope string, depth int) ([]*RawNode, error) {
	return f.roots, nil
}
func (f *fakeTree) Invoke(ctx context.Context, ref any) error {
	f.invokeCalls++
	return f.invokeErr
}
func (f *fakeTree) SetFocus(ctx context.Context, ref any) error { return nil }
func (f *fakeTree) SetValue(ctx context.Context, ref any, value string) error {
	f.setValCalls++
	return f.setValueErr
}
func (f *fakeTree) GetAttribute(ctx context.Context, ref any, key string) (string, error) {
	return "", nil
}
func (f *fakeTree) ForegroundWindowTitle(ctx context.Context) (string, string, error) {
	return f.title, f.pid, f.titleErr
}

// fakeInput is an in-memory lowlevel.Input stand-in recording which
// coordinate-fallback primitive fired.
type fakeInput struct {
	clickCalls    int
	typeTextCalls int
	available     bool
}

func (f *fakeInput) MoveTo(ctx context.Context, x, y int) error { return nil }
func (f *fakeInput) Click(ctx context.Context, x, y int, button lowlevel.Button) error {
	f.clickCalls++
	return nil
}
func (f *fakeInput) DoubleClick(ctx context.Context, x, y int, button lowlevel.Button) error {
	return nil
}
func (f *fakeInput) Drag(ctx context.Context, fromX, fromY, toX, toY int) error { return nil }
func (f *fakeInput) Scroll(ctx context.Context, x, y, ticks int) error          { return nil }
func (f *fakeInput) TypeText(ctx context.Context, text string) error {
	f.typeTextCalls++
	return nil
}
func (f *fakeInput) PressKeyCombo(ctx context.Context, combo string) error { return nil }
func (f *fakeInput) Available() bool                                      { return f.available }

func TestNativeAX_PerformPrefersSemanticInvokeOverCoordinateClick(t *testing.T) {
	tree := &fakeTree{}
	input := &fakeInput{}
	n := &NativeAX{tree: tree, input: input}

	res, err := n.Perform(context.Background(), "ref", Action{Kind: ActionInvoke, Point: model.Rect{X: 0, Y: 0, W: 10, H: 10}})
	if err != nil {
		t.Fatalf("Perform: %v", err)
	}
	if !res.OK || res.Message != "" {
		t.Fatalf("res = %+v, want OK with no fallback message", res)
	}
	if tree.invokeCalls != 1 {
		t.Fatalf("invokeCalls = %d, want 1", tree.invokeCalls)
	}
	if input.clickCalls != 0 {
		t.Fatalf("clickCalls = %d, want 0: semantic invoke succeeded, fallback must not fire", input.clickCalls)
	}
}

func TestNativeAX_PerformFallsBackToCoordinateClickWhenInvokeFails(t *testing.T) {
	tree := &fakeTree{invokeErr: errors.New("no AX action for this control")}
	input := &fakeInput{}
	n := &NativeAX{tree: tree, input: input}

	res, err := n.Perform(context.Background(), "ref", Action{Kind: ActionInvoke, Point: model.Rect{X: 10, Y: 20, W: 10, H: 10}})
	if err != nil {
		t.Fatalf("Perform: %v", err)
	}
	if !res.OK || res.Message == "" {
		t.Fatalf("res = %+v, want OK with a fallback message", res)
	}
	if tree.invokeCalls != 1 {
		t.Fatalf("invokeCalls = %d, want 1: semantic invoke must still be attempted first", tree.invokeCalls)
	}
	if input.clickCalls != 1 {
		t.Fatalf("clickCalls = %d, want 1: coordinate fallback must fire after semantic invoke fails", input.clickCalls)
	}
}

func TestNativeAX_PerformPrefersSemanticSetValueOverKeystrokeTyping(t *testing.T) {
	tree := &fakeTree{}
	input := &fakeInput{}
	n := &NativeAX{tree: tree, input: input}

	res, err := n.Perform(context.Background(), "ref", Action{Kind: ActionSetValue, Text: "hello"})
	if err != nil {
		t.Fatalf("Perform: %v", err)
	}
	if !res.OK || res.Message != "" {
		t.Fatalf("res = %+v, want OK with no fallback message", res)
	}
	if tree.setValCalls != 1 || input.typeTextCalls != 0 {
		t.Fatalf("setValCalls=%d typeTextCalls=%d, want 1/0: semantic SetValue succeeded, fallback must not fire", tree.setValCalls, input.typeTextCalls)
	}
}

func TestNativeAX_PerformFallsBackToTypingWhenSetValueFails(t *testing.T) {
	tree := &fakeTree{setValueErr: errors.New("control is not natively editable")}
	input := &fakeInput{}
	n := &NativeAX{tree: tree, input: input}

	res, err := n.Perform(context.Background(), "ref", Action{Kind: ActionSetValue, Text: "hello"})
	if err != nil {
		t.Fatalf("Perform: %v", err)
	}
	if !res.OK || res.Message == "" {
		t.Fatalf("res = %+v, want OK with a fallback message", res)
	}
	if tree.setValCalls != 1 || input.typeTextCalls != 1 {
		t.Fatalf("setValCalls=%d typeTextCalls=%d, want 1/1: keystroke fallback must fire after semantic SetValue fails", tree.setValCalls, input.typeTextCalls)
	}
}

func TestNativeAX_AcquireDegradesToBackendUnavailableWithoutATree(t *testing.T) {
	n := NewNativeAX(nil)

	_, err := n.Acquire(context.Background(), Query{})
	if err == nil {
		t.Fatal("Acquire(nil tree) = nil error, want backend_unavailable")
	}
	var nerr *model.Error
	if !errors.As(err, &nerr) || nerr.Kind != model.ErrBackendUnavailable {
		t.Fatalf("err = %v, want an ErrBackendUnavailable model.Error", err)
	}

	if _, _, ferr := n.tree.ForegroundWindowTitle(context.Background()); ferr == nil {
		t.Fatal("unavailableTree.ForegroundWindowTitle = nil error, want a descriptive error")
	}
	if health := n.Health(context.Background()); health.Healthy {
		t.Fatalf("Health = %+v, want Healthy=false when no tree is configured", health)
	}
}
