// Package core wires the Backend Adapters, Normalizer, Filter Engine,
// Formatter, Diff/Summary, Snapshot Cache, Mark Registry, Resolver, Action
// Engine and Healing Supervisor into one Dispatcher the daemon and the
// single-shot CLI both drive. It is the "singleton down to a single
// explicit value" redesign: every piece that would have been a
// package-level global in an earlier design is a field on Core instead, so
// cmd/nexus can construct more than one in a test without shared state.
package core

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"nexus/internal/action"
	"nexus/internal/backend"
	"nexus/internal/cache"
	"nexus/internal/config"
	"nexus/internal/diffsum"
	"nexus/internal/filter"
	"nexus/internal/format"
	"nexus/internal/heal"
	"nexus/internal/logging"
	"nexus/internal/mark"
	"nexus/internal/model"
	"nexus/internal/normalize"
	"nexus/internal/resolver"
)

// Core implements daemon.Dispatcher and daemon.Closer without either
// package importing the other.
type Core struct {
	cfg      *config.Config
	roleMap  normalize.RoleMap
	presets  map[string]filter.Preset
	backends map[model.Source]backend.Backend

	cache      *cache.Cache
	marks      *mark.Registry
	diffEngine *diffsum.Engine
	actions    *action.Engine
	heal       *heal.Supervisor

	foreground action.Foregrounder // optional; nil when no collaborator wired

	acquireGroup singleflight.Group

	mu       sync.Mutex
	baseline map[model.WindowKey]model.Snapshot // last snapshot per key, used as the Diff baseline for `describe diff=true`
	lastKey  map[model.Source]model.WindowKey   // most recently observed WindowKey per backend, so a cache Lookup has a key to probe before Acquire has run
}

// New wires a Core from cfg and the backend set. native/browserB may be nil
// (the NativeAX/BrowserAX constructors already degrade gracefully); ocr and
// vision default to backend.NewNullOCR/NewNullVision when nil.
func New(cfg *config.Config, native, browserB, ocr, vision backend.Backend, foreground action.Foregrounder) *Core {
	if ocr == nil {
		ocr = backend.NewNullOCR()
	}
	if vision == nil {
		vision = backend.NewNullVision()
	}
	backends := map[model.Source]backend.Backend{
		model.SourceOCR:    ocr,
		model.SourceVision: vision,
	}
	if native != nil {
		backends[model.SourceNativeAX] = native
	}
	if browserB != nil {
		backends[model.SourceBrowserAX] = browserB
	}

	roleMap := cfg.ResolvedRoleMap(normalize.DefaultRoleMap())
	presets := mergePresets(filter.DefaultPresets(), cfg.Focus.Presets)

	cch := cache.New(cfg.Cache.TTL())
	actions := action.NewEngine(cch)

	return &Core{
		cfg:        cfg,
		roleMap:    roleMap,
		presets:    presets,
		backends:   backends,
		cache:      cch,
		marks:      mark.New(),
		diffEngine: diffsum.NewEngine(),
		actions:    actions,
		heal:       heal.NewSupervisor(actions),
		foreground: foreground,
		baseline:   make(map[model.WindowKey]model.Snapshot),
		lastKey:    make(map[model.Source]model.WindowKey),
	}
}

// mergePresets overlays on-disk PresetOverride entries onto the compiled-in
// set, keyed by name; an override wholly replaces the preset of that name
// rather than merging field-by-field (presets are small, flat data).
func mergePresets(base map[string]filter.Preset, overrides map[string]config.PresetOverride) map[string]filter.Preset {
	out := make(map[string]filter.Preset, len(base)+len(overrides))
	for k, v := range base {
		out[k] = v
	}
	for name, o := range overrides {
		roles := make([]model.Role, 0, len(o.Roles))
		for _, r := range o.Roles {
			roles = append(roles, model.Role(r))
		}
		out[name] = filter.Preset{Name: name, Roles: roles, Pattern: o.Pattern}
	}
	return out
}

// Close tears down every backend session, satisfying daemon.Closer.
func (c *Core) Close(ctx context.Context) error {
	var firstErr error
	for _, b := range c.backends {
		if err := b.Close(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Dispatch executes one already-parsed request, satisfying daemon.Dispatcher.
func (c *Core) Dispatch(ctx context.Context, req model.Request) model.Response {
	log := logging.Get(logging.CategoryPerception)
	defer func() {
		if r := recover(); r != nil {
			log.Error("command %q panicked: %v", req.Command, r)
		}
	}()

	switch req.Command {
	case "describe":
		return c.describe(ctx, req)
	case "find":
		return c.find(ctx, req)
	case "focused":
		return c.focused(ctx, req)
	case "windows":
		return c.windows(ctx, req)
	case "screenshot":
		return c.screenshot(ctx, req)

	case "click", "double_click", "right_click", "move", "drag", "scroll", "type_text", "key":
		return c.coordOrFocusedAction(ctx, req)

	case "click_element":
		return c.clickElement(ctx, req)
	case "click_mark":
		return c.clickMark(ctx, req)

	case "web_describe", "web_ax":
		return c.webDescribe(ctx, req)
	case "web_find":
		return c.webFind(ctx, req)
	case "web_navigate":
		return c.webNavigate(ctx, req)
	case "web_click":
		return c.webClick(ctx, req)
	case "web_input":
		return c.webInput(ctx, req)

	default:
		return model.ErrResponse(req.Command, model.NewError(model.ErrBadRequest, "unknown command %q", req.Command))
	}
}

// backendFor returns the configured backend for src, or backend_unavailable
// when none is configured. Callers pass Browser-AX for web_* commands and
// Native-AX for the rest.
func (c *Core) backendFor(src model.Source) (backend.Backend, error) {
	b, ok := c.backends[src]
	if !ok || b == nil {
		return nil, model.NewError(model.ErrBackendUnavailable, "no %s backend configured", src)
	}
	return b, nil
}

func nativeSource() model.Source  { return model.SourceNativeAX }
func browserSource() model.Source { return model.SourceBrowserAX }

// acquire implements the Snapshot Cache lookup policy around one
// backend's Acquire, deduplicating concurrent callers for the same
// backend, app scope and depth through a singleflight group.
func (c *Core) acquire(ctx context.Context, src model.Source, q backend.Query, force bool) (model.Snapshot, error) {
	b, err := c.backendFor(src)
	if err != nil {
		return model.Snapshot{}, err
	}

	probeKey := fmt.Sprintf("%s|%s|%d", src, q.AppScope, q.MaxDepth)
	v, err, _ := c.acquireGroup.Do(probeKey, func() (any, error) {
		return c.acquireOnce(ctx, b, src, q, force)
	})
	if err != nil {
		return model.Snapshot{}, err
	}
	return v.(model.Snapshot), nil
}

func (c *Core) acquireOnce(ctx context.Context, b backend.Backend, src model.Source, q backend.Query, force bool) (model.Snapshot, error) {
	probe := func() (string, error) { return b.Fingerprint(ctx, q) }

	// The cache is keyed by the full WindowKey, but a cheap Fingerprint
	// probe alone can't build one (it carries no title/pid) — so the
	// lookup key is the WindowKey this backend produced last time, which
	// Lookup's own fingerprint comparison will reject if the foreground
	// window has since changed, falling through to a fresh Acquire below.
	if !force {
		c.mu.Lock()
		key, known := c.lastKey[src]
		c.mu.Unlock()
		if known {
			if snap, ok := c.cache.Lookup(key, false, probe); ok {
				return snap, nil
			}
		}
	}

	graph, err := b.Acquire(ctx, q)
	if err != nil {
		return model.Snapshot{}, err
	}
	fingerprint, fpErr := b.Fingerprint(ctx, q)
	if fpErr != nil {
		fingerprint = ""
	}
	windowKey := model.WindowKey{WindowTitle: graph.WindowTitle, ProcessID: graph.ProcessID, Backend: src}

	elements := normalize.Normalize(graph, src, c.roleMap)
	elements = c.mergeOCRFallback(ctx, src, q, elements)
	snap := model.Snapshot{
		WindowKey:   windowKey,
		Elements:    elements,
		Fingerprint: fingerprint,
	}
	snap.CapturedAt = time.Now()

	if shot, ok := b.(backend.Screenshotter); ok {
		if png, _, _, serr := shot.Screenshot(ctx); serr == nil {
			snap.Screenshot = png
		}
	}

	c.mu.Lock()
	c.lastKey[src] = windowKey
	c.mu.Unlock()
	c.cache.Put(windowKey, snap, fingerprint)
	return snap, nil
}

// fallbackMinElements is the element-count floor below which a Native-AX or
// Browser-AX snapshot is considered too sparse to trust on its own, and the
// OCR-text backend is consulted to fill gaps the accessibility tree missed.
const fallbackMinElements = 5

// mergeOCRFallback implements the OCR fallback rule: when a Native-AX or
// Browser-AX acquisition yields fewer than fallbackMinElements elements, ask
// the OCR-text backend for the same region and merge its detections in,
// deduping anything that overlaps an existing element above the
// bounds-overlap IoU threshold. src itself is never OCR/Vision — those
// backends are only ever consulted as a fallback, never acquired directly.
func (c *Core) mergeOCRFallback(ctx context.Context, src model.Source, q backend.Query, elements []model.Element) []model.Element {
	if src == model.SourceOCR || src == model.SourceVision {
		return elements
	}
	if len(elements) >= fallbackMinElements {
		return elements
	}
	ocr, err := c.backendFor(model.SourceOCR)
	if err != nil {
		return elements
	}
	graph, err := ocr.Acquire(ctx, q)
	if err != nil {
		return elements
	}
	ocrElements := normalize.Normalize(graph, model.SourceOCR, c.roleMap)
	return normalize.MergeFallback(elements, ocrElements)
}

func (c *Core) reacquirer(src model.Source, q backend.Query) action.Acquirer {
	return func(ctx context.Context) (model.Snapshot, error) {
		return c.acquire(ctx, src, q, true)
	}
}

// windowRectOf returns the bounding box of every element in the snapshot,
// used to resolve a named Region since Nexus has no independent
// window-geometry probe.
func windowRectOf(snap model.Snapshot) model.Rect {
	maxX, maxY := 0, 0
	for _, e := range snap.Elements {
		if r := e.Bounds.X + e.Bounds.W; r > maxX {
			maxX = r
		}
		if b := e.Bounds.Y + e.Bounds.H; b > maxY {
			maxY = b
		}
	}
	return model.Rect{X: 0, Y: 0, W: maxX, H: maxY}
}

// parseRegion accepts either a named band ("top", "bottom", ...) or an
// explicit "x,y,w,h" pixel rectangle.
func parseRegion(raw string) (*filter.Region, error) {
	if raw == "" {
		return nil, nil
	}
	if strings.Contains(raw, ",") {
		parts := strings.Split(raw, ",")
		if len(parts) != 4 {
			return nil, model.NewError(model.ErrBadRequest, "region %q must be \"x,y,w,h\"", raw)
		}
		nums := make([]int, 4)
		for i, p := range parts {
			n, err := strconv.Atoi(strings.TrimSpace(p))
			if err != nil {
				return nil, model.NewError(model.ErrBadRequest, "region %q: %v", raw, err)
			}
			nums[i] = n
		}
		return &filter.Region{Rect: model.Rect{X: nums[0], Y: nums[1], W: nums[2], H: nums[3]}}, nil
	}
	return &filter.Region{Named: raw}, nil
}

// filterSpec builds a filter.Spec from the common request flags.
func (c *Core) filterSpec(req model.Request, windowRect model.Rect) (filter.Spec, error) {
	spec := filter.Spec{Preset: req.Focus, WindowRect: windowRect}
	switch strings.ToLower(req.MatchKind) {
	case "regex":
		spec.NameRegex = req.Match
	default:
		spec.NameGlob = req.Match
	}
	region, err := parseRegion(req.Region)
	if err != nil {
		return filter.Spec{}, err
	}
	spec.Region = region
	return spec, nil
}

func (c *Core) renderElements(elements []model.Element, f model.Format) (map[string]any, error) {
	data := map[string]any{"elements": elements}
	if f == model.FormatCompact || f == model.FormatMinimal {
		rendered, err := format.Render(elements, format.Mode(f))
		if err != nil {
			return nil, err
		}
		data["rendered"] = rendered
	}
	return data, nil
}

// describe implements the `describe` command: optional focus/match/
// region filtering, optional diff against the last snapshot of this window,
// and an always-available summary.
func (c *Core) describe(ctx context.Context, req model.Request) model.Response {
	snap, err := c.acquire(ctx, nativeSource(), backend.Query{AppScope: req.App}, req.Force)
	if err != nil {
		return model.ErrResponse(req.Command, err)
	}

	spec, err := c.filterSpec(req, windowRectOf(snap))
	if err != nil {
		return model.ErrResponse(req.Command, err)
	}
	filtered, err := filter.Apply(snap.Elements, spec, c.presets)
	if err != nil {
		return model.ErrResponse(req.Command, err)
	}

	data := map[string]any{"mode": "describe"}
	rendered, err := c.renderElements(filtered, req.Format)
	if err != nil {
		return model.ErrResponse(req.Command, err)
	}
	for k, v := range rendered {
		data[k] = v
	}

	if req.Diff {
		c.mu.Lock()
		prev, hadPrev := c.baseline[snap.WindowKey]
		c.baseline[snap.WindowKey] = snap
		c.mu.Unlock()
		if hadPrev {
			data["diff"] = c.diffEngine.Diff(prev, snap)
		}
	} else {
		c.mu.Lock()
		c.baseline[snap.WindowKey] = snap
		c.mu.Unlock()
	}

	if req.Summary {
		data["summary"] = diffsum.Summarize(snap)
	}

	return model.OKResponse(req.Command, data)
}

// find implements the `find` command: a name/role query against the
// current window, returning every match plus the top-ranked one.
func (c *Core) find(ctx context.Context, req model.Request) model.Response {
	if strings.TrimSpace(req.Query) == "" {
		return model.ErrResponse(req.Command, model.NewError(model.ErrBadRequest, "find requires a non-empty query"))
	}
	snap, err := c.acquire(ctx, nativeSource(), backend.Query{AppScope: req.App}, req.Force)
	if err != nil {
		return model.ErrResponse(req.Command, err)
	}

	spec, err := c.filterSpec(req, windowRectOf(snap))
	if err != nil {
		return model.ErrResponse(req.Command, err)
	}
	pool, err := filter.Apply(snap.Elements, spec, c.presets)
	if err != nil {
		return model.ErrResponse(req.Command, err)
	}

	target := resolver.Target{Name: req.Query, Role: req.Role}
	top, resolveErr := resolver.Resolve(model.Snapshot{WindowKey: snap.WindowKey, Elements: pool, CapturedAt: snap.CapturedAt, Fingerprint: snap.Fingerprint}, target, c.marks)

	data := map[string]any{"matches": pool}
	if resolveErr == nil {
		data["top"] = top
	}
	return model.OKResponse(req.Command, data)
}

func (c *Core) focused(ctx context.Context, req model.Request) model.Response {
	snap, err := c.acquire(ctx, nativeSource(), backend.Query{AppScope: req.App}, req.Force)
	if err != nil {
		return model.ErrResponse(req.Command, err)
	}
	el, ok := snap.FocusedElement()
	if !ok {
		return model.OKResponse(req.Command, map[string]any{"element": nil})
	}
	return model.OKResponse(req.Command, map[string]any{"element": el})
}

// windows reports the single foreground window Nexus currently perceives;
// Native-AX exposes no multi-window enumeration collaborator, so
// this is necessarily a one-element list.
func (c *Core) windows(ctx context.Context, req model.Request) model.Response {
	snap, err := c.acquire(ctx, nativeSource(), backend.Query{AppScope: req.App}, true)
	if err != nil {
		return model.ErrResponse(req.Command, err)
	}
	win := map[string]any{
		"title":      snap.WindowKey.WindowTitle,
		"process":    snap.WindowKey.ProcessID,
		"bounds":     windowRectOf(snap),
		"foreground": true,
	}
	return model.OKResponse(req.Command, map[string]any{"windows": []any{win}})
}

// screenshot implements the `screenshot` command: a fresh acquire from
// Native-AX (or Browser-AX when no Native-AX backend is configured) whose
// captured pixels are returned, optionally annotated with mark badges.
func (c *Core) screenshot(ctx context.Context, req model.Request) model.Response {
	src := nativeSource()
	if _, err := c.backendFor(src); err != nil {
		src = browserSource()
	}
	snap, err := c.acquire(ctx, src, backend.Query{AppScope: req.App}, true)
	if err != nil {
		return model.ErrResponse(req.Command, err)
	}
	if len(snap.Screenshot) == 0 {
		return model.ErrResponse(req.Command, model.NewError(model.ErrBackendUnavailable, "no screenshot-capable backend available for %s", src))
	}

	img := snap.Screenshot
	data := map[string]any{"width": windowRectOf(snap).W, "height": windowRectOf(snap).H}
	if req.Mark {
		table, annotated, err := c.marks.Annotate(snap, img)
		if err != nil {
			return model.ErrResponse(req.Command, err)
		}
		img = annotated
		data["marks"] = table.Marks
	}
	data["image"] = img
	return model.OKResponse(req.Command, data)
}

// coordOrFocusedAction handles the plain pointer/keyboard ops that need no
// Resolver target: click/double_click/right_click/move/drag/scroll operate
// on (x, y)/(dx, dy)/ticks; type_text/key act on whatever already has
// keyboard focus.
func (c *Core) coordOrFocusedAction(ctx context.Context, req model.Request) model.Response {
	b, err := c.backendFor(nativeSource())
	if err != nil {
		return model.ErrResponse(req.Command, err)
	}

	var areq action.Request
	areq.Backend = b
	areq.AppScope = req.App
	areq.Verify = req.Verify
	areq.Foreground = c.foreground

	switch req.Command {
	case "click":
		areq.Op, areq.Point = action.OpClick, model.Rect{X: req.X, Y: req.Y, W: 1, H: 1}
	case "double_click":
		areq.Op, areq.Point = action.OpDoubleClick, model.Rect{X: req.X, Y: req.Y, W: 1, H: 1}
	case "right_click":
		areq.Op, areq.Point = action.OpRightClick, model.Rect{X: req.X, Y: req.Y, W: 1, H: 1}
	case "move":
		areq.Op, areq.Point = action.OpMove, model.Rect{X: req.X, Y: req.Y, W: 1, H: 1}
	case "drag":
		areq.Op, areq.Point = action.OpDrag, model.Rect{X: req.X, Y: req.Y, W: req.X + req.DX, H: req.Y + req.DY}
	case "scroll":
		areq.Op, areq.Point, areq.Ticks = action.OpScroll, model.Rect{X: req.X, Y: req.Y, W: 1, H: 1}, req.Ticks
	case "type_text":
		areq.Op, areq.Text = action.OpTypeText, req.Text
	case "key":
		areq.Op, areq.Keys = action.OpPressKeyCombo, req.Keys
	}

	return c.runAction(ctx, req, areq, nativeSource(), nil)
}

// clickElement resolves a symbolic target via name/role/index against the
// current snapshot, then executes click_element through the envelope.
func (c *Core) clickElement(ctx context.Context, req model.Request) model.Response {
	b, err := c.backendFor(nativeSource())
	if err != nil {
		return model.ErrResponse(req.Command, err)
	}
	snap, err := c.acquire(ctx, nativeSource(), backend.Query{AppScope: req.App}, req.Force)
	if err != nil {
		return model.ErrResponse(req.Command, err)
	}
	target := resolver.Target{Name: req.Name, Role: req.Role, Index: req.Index}
	el, err := resolver.Resolve(snap, target, c.marks)
	if err != nil {
		return model.ErrResponse(req.Command, err)
	}

	areq := action.Request{
		Op: action.OpClickElement, Backend: b, RawRef: el.RawRef, Point: el.Bounds,
		AppScope: req.App, WindowKey: snap.WindowKey, Verify: req.Verify, Foreground: c.foreground,
	}
	return c.runAction(ctx, req, areq, nativeSource(), &el)
}

// clickMark resolves mark number n against the active Mark Registry table
// and dispatches the same as click_element.
func (c *Core) clickMark(ctx context.Context, req model.Request) model.Response {
	b, err := c.backendFor(nativeSource())
	if err != nil {
		return model.ErrResponse(req.Command, err)
	}
	snap, err := c.acquire(ctx, nativeSource(), backend.Query{AppScope: req.App}, false)
	if err != nil {
		return model.ErrResponse(req.Command, err)
	}
	target := resolver.Target{Mark: req.N}
	el, err := resolver.Resolve(snap, target, c.marks)
	if err != nil {
		return model.ErrResponse(req.Command, err)
	}

	areq := action.Request{
		Op: action.OpClickMark, Backend: b, RawRef: el.RawRef, Point: el.Bounds,
		AppScope: req.App, WindowKey: snap.WindowKey, Verify: req.Verify, Foreground: c.foreground,
	}
	return c.runAction(ctx, req, areq, nativeSource(), &el)
}

// runAction executes areq through the Healing Supervisor when req.Heal is
// set, or directly through the Action Engine otherwise.
func (c *Core) runAction(ctx context.Context, req model.Request, areq action.Request, src model.Source, target *model.Element) model.Response {
	pre, err := c.acquire(ctx, src, backend.Query{AppScope: req.App}, false)
	if err != nil {
		return model.ErrResponse(req.Command, err)
	}
	areq.WindowKey = pre.WindowKey
	reacquire := c.reacquirer(src, backend.Query{AppScope: req.App})

	var result action.Result
	if req.Heal {
		var resolveFn heal.Resolve
		if target != nil {
			resolveFn = func(ctx context.Context, snap model.Snapshot) (model.Element, bool, error) {
				el, err := resolver.Resolve(snap, resolver.Target{Name: target.Name, Role: target.Role}, c.marks)
				if err != nil {
					return model.Element{}, false, nil
				}
				return el, true, nil
			}
		}
		result, err = c.heal.Run(ctx, areq, pre, reacquire, target, resolveFn)
	} else {
		result, err = c.actions.Execute(ctx, areq, pre, reacquire)
	}
	if err != nil {
		return model.ErrResponse(req.Command, err)
	}
	if !result.OK {
		return model.ErrResponse(req.Command, model.NewError(model.ErrInternal, "%s", result.Message))
	}
	return model.OKResponse(req.Command, map[string]any{
		"action":             result.Action,
		"verified":           result.Verified,
		"changes_summary":    result.ChangesSummary,
		"post_state_summary": result.PostStateSummary,
		"message":            result.Message,
	})
}

// webDescribe/webFind mirror describe/find against the Browser-AX backend.
func (c *Core) webDescribe(ctx context.Context, req model.Request) model.Response {
	snap, err := c.acquire(ctx, browserSource(), backend.Query{AppScope: req.App}, req.Force)
	if err != nil {
		return model.ErrResponse(req.Command, err)
	}
	spec, err := c.filterSpec(req, windowRectOf(snap))
	if err != nil {
		return model.ErrResponse(req.Command, err)
	}
	filtered, err := filter.Apply(snap.Elements, spec, c.presets)
	if err != nil {
		return model.ErrResponse(req.Command, err)
	}
	data, err := c.renderElements(filtered, req.Format)
	if err != nil {
		return model.ErrResponse(req.Command, err)
	}
	return model.OKResponse(req.Command, data)
}

func (c *Core) webFind(ctx context.Context, req model.Request) model.Response {
	if strings.TrimSpace(req.Query) == "" && req.Selector == "" {
		return model.ErrResponse(req.Command, model.NewError(model.ErrBadRequest, "web_find requires query or selector"))
	}
	snap, err := c.acquire(ctx, browserSource(), backend.Query{AppScope: req.App}, req.Force)
	if err != nil {
		return model.ErrResponse(req.Command, err)
	}
	target := resolver.Target{Name: req.Query, Role: req.Role, Selector: req.Selector}
	if req.Selector != "" {
		// Selector targets are forwarded as-is: Browser-AX resolves
		// them natively rather than through the Resolver's name scoring.
		filtered := filterBySelectorHeuristic(snap.Elements, req.Selector)
		return model.OKResponse(req.Command, map[string]any{"matches": filtered})
	}
	el, err := resolver.Resolve(snap, target, c.marks)
	if err != nil {
		return model.ErrResponse(req.Command, err)
	}
	return model.OKResponse(req.Command, map[string]any{"matches": []model.Element{el}, "top": el})
}

// filterBySelectorHeuristic is a best-effort name/role preview for
// selector-style web_find: the accessibility tree Browser-AX walks carries
// no DOM id/class/attribute data to match a real CSS selector against, so
// this narrows the preview using whatever plain text the selector contains
// (an attribute value, a tag name, a fragment of the element's own name)
// rather than attempting real selector syntax. Actual selector resolution
// against the live DOM happens in Browser-AX.Perform via the resolved
// element's raw_ref, once the caller has picked one of these previews.
func filterBySelectorHeuristic(elements []model.Element, selector string) []model.Element {
	needle := extractSelectorNeedle(selector)
	if needle == "" {
		return elements
	}
	var out []model.Element
	for _, el := range elements {
		if strings.Contains(strings.ToLower(el.Name), needle) || strings.Contains(strings.ToLower(string(el.Role)), needle) {
			out = append(out, el)
		}
	}
	return out
}

// extractSelectorNeedle strips CSS selector punctuation (#, ., [, ], =, '
// and ") down to the bare text most likely to appear in an element's name,
// e.g. "#save-button" -> "save-button", `[aria-label="Save"]` -> "save".
func extractSelectorNeedle(selector string) string {
	var b strings.Builder
	for _, r := range selector {
		switch r {
		case '#', '.', '[', ']', '=', '\'', '"':
			b.WriteRune(' ')
		default:
			b.WriteRune(r)
		}
	}
	fields := strings.Fields(b.String())
	if len(fields) == 0 {
		return ""
	}
	return strings.ToLower(fields[len(fields)-1])
}

func (c *Core) webNavigate(ctx context.Context, req model.Request) model.Response {
	b, err := c.backendFor(browserSource())
	if err != nil {
		return model.ErrResponse(req.Command, err)
	}
	if strings.TrimSpace(req.URL) == "" {
		return model.ErrResponse(req.Command, model.NewError(model.ErrBadRequest, "web_navigate requires url"))
	}
	areq := action.Request{Op: action.OpWebNavigate, Backend: b, URL: req.URL, Verify: req.Verify}
	return c.runAction(ctx, req, areq, browserSource(), nil)
}

func (c *Core) webClick(ctx context.Context, req model.Request) model.Response {
	b, err := c.backendFor(browserSource())
	if err != nil {
		return model.ErrResponse(req.Command, err)
	}
	snap, err := c.acquire(ctx, browserSource(), backend.Query{AppScope: req.App}, req.Force)
	if err != nil {
		return model.ErrResponse(req.Command, err)
	}
	target := resolver.Target{Name: req.Name, Role: req.Role, Index: req.Index, Selector: req.Selector}
	el, err := resolver.Resolve(snap, target, c.marks)
	if err != nil {
		return model.ErrResponse(req.Command, err)
	}
	areq := action.Request{
		Op: action.OpWebClick, Backend: b, RawRef: el.RawRef, Point: el.Bounds,
		WindowKey: snap.WindowKey, Verify: req.Verify,
	}
	return c.runAction(ctx, req, areq, browserSource(), &el)
}

func (c *Core) webInput(ctx context.Context, req model.Request) model.Response {
	b, err := c.backendFor(browserSource())
	if err != nil {
		return model.ErrResponse(req.Command, err)
	}
	snap, err := c.acquire(ctx, browserSource(), backend.Query{AppScope: req.App}, req.Force)
	if err != nil {
		return model.ErrResponse(req.Command, err)
	}
	target := resolver.Target{Name: req.Name, Role: req.Role, Index: req.Index, Selector: req.Selector}
	el, err := resolver.Resolve(snap, target, c.marks)
	if err != nil {
		return model.ErrResponse(req.Command, err)
	}
	areq := action.Request{
		Op: action.OpWebInput, Backend: b, RawRef: el.RawRef, Point: el.Bounds, Text: req.Text,
		WindowKey: snap.WindowKey, Verify: req.Verify,
	}
	return c.runAction(ctx, req, areq, browserSource(), &el)
}
