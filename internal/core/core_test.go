package core

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nexus/internal/backend"
	"nexus/internal/config"
	"nexus/internal/model"
)

// fakeNative is a minimal backend.Backend + backend.Screenshotter double
// whose Acquire output and Perform behavior a test can steer directly,
// mirroring internal/action's fakeBackend pattern.
type fakeNative struct {
	graph       *backend.RawGraph
	fingerprint string
	performFn   func(rawRef any, a backend.Action) (backend.Result, error)
	screenshot  []byte
}

func (f *fakeNative) Source() model.Source                     { return model.SourceNativeAX }
func (f *fakeNative) Open(ctx context.Context) error            { return nil }
func (f *fakeNative) Close(ctx context.Context) error           { return nil }
func (f *fakeNative) Health(ctx context.Context) backend.Status { return backend.Status{Healthy: true} }
func (f *fakeNative) Acquire(ctx context.Context, q backend.Query) (*backend.RawGraph, error) {
	return f.graph, nil
}
func (f *fakeNative) Fingerprint(ctx context.Context, q backend.Query) (string, error) {
	return f.fingerprint, nil
}
func (f *fakeNative) Perform(ctx context.Context, rawRef any, a backend.Action) (backend.Result, error) {
	if f.performFn != nil {
		return f.performFn(rawRef, a)
	}
	return backend.Result{OK: true}, nil
}
func (f *fakeNative) Screenshot(ctx context.Context) ([]byte, int, int, error) {
	if f.screenshot == nil {
		return nil, 0, 0, nil
	}
	return f.screenshot, 100, 100, nil
}

func saveButtonGraph() *backend.RawGraph {
	return &backend.RawGraph{
		WindowTitle: "Notes",
		ProcessID:   "123",
		Roots: []*backend.RawNode{
			{
				Role: "push button", Name: "Save",
				Bounds: model.Rect{X: 10, Y: 10, W: 40, H: 20},
				RawRef: "save-ref",
			},
			{
				Role: "push button", Name: "Cancel",
				Bounds: model.Rect{X: 60, Y: 10, W: 40, H: 20},
				RawRef: "cancel-ref",
			},
		},
	}
}

func newTestCore(native backend.Backend) *Core {
	return New(config.DefaultConfig(), native, nil, nil, nil, nil)
}

func TestDescribe_ReturnsNormalizedElements(t *testing.T) {
	fb := &fakeNative{graph: saveButtonGraph(), fingerprint: "fp1"}
	c := newTestCore(fb)

	resp := c.Dispatch(context.Background(), model.Request{Command: "describe"})
	require.True(t, resp.OK)
	elements, ok := resp.Data["elements"].([]model.Element)
	require.True(t, ok)
	assert.Len(t, elements, 2)
	assert.Equal(t, model.RoleButton, elements[0].Role)
}

func TestDescribe_RendersCompactWhenRequested(t *testing.T) {
	fb := &fakeNative{graph: saveButtonGraph(), fingerprint: "fp1"}
	c := newTestCore(fb)

	resp := c.Dispatch(context.Background(), model.Request{Command: "describe", Format: model.FormatCompact})
	require.True(t, resp.OK)
	rendered, ok := resp.Data["rendered"].(string)
	require.True(t, ok)
	assert.Contains(t, rendered, "Save")
}

func TestDescribe_DiffIsAbsentOnFirstCallThenPresentOnSecond(t *testing.T) {
	fb := &fakeNative{graph: saveButtonGraph(), fingerprint: "fp1"}
	c := newTestCore(fb)

	first := c.Dispatch(context.Background(), model.Request{Command: "describe", Diff: true, Force: true})
	require.True(t, first.OK)
	_, hasDiff := first.Data["diff"]
	assert.False(t, hasDiff)

	fb.fingerprint = "fp2"
	fb.graph = &backend.RawGraph{
		WindowTitle: "Notes", ProcessID: "123",
		Roots: []*backend.RawNode{
			{Role: "push button", Name: "Save", Bounds: model.Rect{X: 10, Y: 10, W: 40, H: 20}, RawRef: "save-ref"},
		},
	}
	second := c.Dispatch(context.Background(), model.Request{Command: "describe", Diff: true, Force: true})
	require.True(t, second.OK)
	_, hasDiff = second.Data["diff"]
	assert.True(t, hasDiff)
}

func TestFind_ReturnsTopMatchForFuzzyName(t *testing.T) {
	fb := &fakeNative{graph: saveButtonGraph(), fingerprint: "fp1"}
	c := newTestCore(fb)

	resp := c.Dispatch(context.Background(), model.Request{Command: "find", Query: "save"})
	require.True(t, resp.OK)
	top, ok := resp.Data["top"].(model.Element)
	require.True(t, ok)
	assert.Equal(t, "Save", top.Name)
}

func TestFind_RequiresNonEmptyQuery(t *testing.T) {
	fb := &fakeNative{graph: saveButtonGraph(), fingerprint: "fp1"}
	c := newTestCore(fb)

	resp := c.Dispatch(context.Background(), model.Request{Command: "find"})
	assert.False(t, resp.OK)
	assert.Equal(t, model.ErrBadRequest, resp.StatusError.Kind)
}

func TestClickElement_DispatchesSemanticInvokeAndReturnsOK(t *testing.T) {
	var gotAction backend.Action
	fb := &fakeNative{
		graph:       saveButtonGraph(),
		fingerprint: "fp1",
		performFn: func(rawRef any, a backend.Action) (backend.Result, error) {
			gotAction = a
			return backend.Result{OK: true}, nil
		},
	}
	c := newTestCore(fb)

	resp := c.Dispatch(context.Background(), model.Request{Command: "click_element", Name: "Save"})
	require.True(t, resp.OK)
	assert.Equal(t, backend.ActionInvoke, gotAction.Kind)
}

func TestClickElement_UnknownNameIsTargetNotFound(t *testing.T) {
	fb := &fakeNative{graph: saveButtonGraph(), fingerprint: "fp1"}
	c := newTestCore(fb)

	resp := c.Dispatch(context.Background(), model.Request{Command: "click_element", Name: "Nonexistent Widget Xyz"})
	assert.False(t, resp.OK)
	assert.Equal(t, model.ErrTargetNotFound, resp.StatusError.Kind)
}

func TestClickMark_ResolvesThroughMarkRegistry(t *testing.T) {
	fb := &fakeNative{graph: saveButtonGraph(), fingerprint: "fp1", screenshot: []byte{}}
	c := newTestCore(fb)

	shotResp := c.Dispatch(context.Background(), model.Request{Command: "screenshot", Mark: true})
	require.False(t, shotResp.OK) // this fake's screenshot is empty, so screenshot reports backend_unavailable before annotating

	// Annotate directly to populate the registry the way `screenshot mark=true` would
	// with a real screenshot; click_mark only needs the table.
	snap, err := c.acquire(context.Background(), model.SourceNativeAX, backend.Query{}, true)
	require.NoError(t, err)
	_, _, err = c.marks.Annotate(snap, nil)
	require.NoError(t, err)

	resp := c.Dispatch(context.Background(), model.Request{Command: "click_mark", N: 1})
	require.True(t, resp.OK)
}

func TestClickMark_UnknownMarkIsTargetNotFound(t *testing.T) {
	fb := &fakeNative{graph: saveButtonGraph(), fingerprint: "fp1"}
	c := newTestCore(fb)

	resp := c.Dispatch(context.Background(), model.Request{Command: "click_mark", N: 99})
	assert.False(t, resp.OK)
	assert.Equal(t, model.ErrTargetNotFound, resp.StatusError.Kind)
}

func TestFocused_ReturnsNilElementWhenNothingIsFocused(t *testing.T) {
	fb := &fakeNative{graph: saveButtonGraph(), fingerprint: "fp1"}
	c := newTestCore(fb)

	resp := c.Dispatch(context.Background(), model.Request{Command: "focused"})
	require.True(t, resp.OK)
	assert.Nil(t, resp.Data["element"])
}

func TestDispatch_UnknownCommandIsBadRequest(t *testing.T) {
	c := newTestCore(&fakeNative{graph: &backend.RawGraph{}})
	resp := c.Dispatch(context.Background(), model.Request{Command: "nonsense"})
	assert.False(t, resp.OK)
	assert.Equal(t, model.ErrBadRequest, resp.StatusError.Kind)
}

func TestDispatch_MissingBackendIsBackendUnavailable(t *testing.T) {
	c := New(config.DefaultConfig(), nil, nil, nil, nil, nil)
	resp := c.Dispatch(context.Background(), model.Request{Command: "describe"})
	assert.False(t, resp.OK)
	assert.Equal(t, model.ErrBackendUnavailable, resp.StatusError.Kind)
}

func TestClose_ClosesEveryConfiguredBackend(t *testing.T) {
	fb := &fakeNative{graph: &backend.RawGraph{}}
	c := newTestCore(fb)
	assert.NoError(t, c.Close(context.Background()))
}

// fakeOCR is a backend.Backend double standing in for the OCR-text
// fallback source; Acquire returns whatever graph the test configures.
type fakeOCR struct {
	graph *backend.RawGraph
	calls int
}

func (f *fakeOCR) Source() model.Source                     { return model.SourceOCR }
func (f *fakeOCR) Open(ctx context.Context) error            { return nil }
func (f *fakeOCR) Close(ctx context.Context) error           { return nil }
func (f *fakeOCR) Health(ctx context.Context) backend.Status { return backend.Status{Healthy: true} }
func (f *fakeOCR) Acquire(ctx context.Context, q backend.Query) (*backend.RawGraph, error) {
	f.calls++
	return f.graph, nil
}
func (f *fakeOCR) Fingerprint(ctx context.Context, q backend.Query) (string, error) { return "", nil }
func (f *fakeOCR) Perform(ctx context.Context, rawRef any, a backend.Action) (backend.Result, error) {
	return backend.Result{}, model.NewError(model.ErrBackendUnavailable, "ocr has no perform")
}

func sparseGraph() *backend.RawGraph {
	return &backend.RawGraph{
		WindowTitle: "Viewer",
		ProcessID:   "77",
		Roots: []*backend.RawNode{
			{Role: "push button", Name: "Close", Bounds: model.Rect{X: 0, Y: 0, W: 20, H: 20}},
		},
	}
}

func TestDescribe_MergesOCRFallbackWhenNativeSnapshotIsSparse(t *testing.T) {
	native := &fakeNative{graph: sparseGraph(), fingerprint: "fp"}
	ocr := &fakeOCR{graph: &backend.RawGraph{Roots: []*backend.RawNode{
		{Role: "static text", Name: "Page 1 of 12", Bounds: model.Rect{X: 200, Y: 200, W: 80, H: 16}},
	}}}
	c := New(config.DefaultConfig(), native, nil, ocr, nil, nil)

	resp := c.Dispatch(context.Background(), model.Request{Command: "describe"})
	require.True(t, resp.OK)
	elements, ok := resp.Data["elements"].([]model.Element)
	require.True(t, ok)

	assert.Equal(t, 1, ocr.calls)
	assert.Len(t, elements, 2)
	var names []string
	for _, e := range elements {
		names = append(names, e.Name)
	}
	assert.Contains(t, names, "Close")
	assert.Contains(t, names, "Page 1 of 12")
}

func TestDescribe_DropsOCRElementOverlappingAnExistingOne(t *testing.T) {
	native := &fakeNative{graph: sparseGraph(), fingerprint: "fp"}
	ocr := &fakeOCR{graph: &backend.RawGraph{Roots: []*backend.RawNode{
		// Same control the native tree already reported — an OCR text run
		// reading the button's own label at (near) the same bounds.
		{Role: "static text", Name: "Close", Bounds: model.Rect{X: 1, Y: 1, W: 19, H: 19}},
	}}}
	c := New(config.DefaultConfig(), native, nil, ocr, nil, nil)

	resp := c.Dispatch(context.Background(), model.Request{Command: "describe"})
	require.True(t, resp.OK)
	elements, ok := resp.Data["elements"].([]model.Element)
	require.True(t, ok)

	assert.Equal(t, 1, ocr.calls)
	assert.Len(t, elements, 1, "the overlapping OCR detection should be deduped away")
}

func TestDescribe_SkipsOCRFallbackWhenNativeSnapshotAlreadyHasEnoughElements(t *testing.T) {
	graph := &backend.RawGraph{Roots: []*backend.RawNode{
		{Role: "push button", Name: "A", Bounds: model.Rect{X: 0, Y: 0, W: 10, H: 10}},
		{Role: "push button", Name: "B", Bounds: model.Rect{X: 0, Y: 20, W: 10, H: 10}},
		{Role: "push button", Name: "C", Bounds: model.Rect{X: 0, Y: 40, W: 10, H: 10}},
		{Role: "push button", Name: "D", Bounds: model.Rect{X: 0, Y: 60, W: 10, H: 10}},
		{Role: "push button", Name: "E", Bounds: model.Rect{X: 0, Y: 80, W: 10, H: 10}},
	}}
	native := &fakeNative{graph: graph, fingerprint: "fp"}
	ocr := &fakeOCR{graph: &backend.RawGraph{}}
	c := New(config.DefaultConfig(), native, nil, ocr, nil, nil)

	resp := c.Dispatch(context.Background(), model.Request{Command: "describe"})
	require.True(t, resp.OK)
	elements, ok := resp.Data["elements"].([]model.Element)
	require.True(t, ok)

	assert.Equal(t, 0, ocr.calls, "a 5-element native snapshot already meets the floor; OCR must not be consulted")
	assert.Len(t, elements, 5)
}
