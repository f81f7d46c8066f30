package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"

	"nexus/internal/model"
)

// BrowserConfig configures the Browser-AX backend: launcher flags,
// viewport, navigation timeout, and which tab to drive.
type BrowserConfig struct {
	DebuggerURL         string
	Launch              []string
	Headless            bool
	ViewportWidth       int
	ViewportHeight      int
	NavigationTimeoutMs int
	TabTitleMatch       string // selects the tab to drive, by title substring
	TabIndex            int    // or by index when TabTitleMatch is empty
}

func DefaultBrowserConfig() BrowserConfig {
	return BrowserConfig{
		Headless:            false,
		ViewportWidth:       1920,
		ViewportHeight:      1080,
		NavigationTimeoutMs: 30000,
	}
}

func (c BrowserConfig) navTimeout() time.Duration {
	if c.NavigationTimeoutMs == 0 {
		return 30 * time.Second
	}
	return time.Duration(c.NavigationTimeoutMs) * time.Millisecond
}

// BrowserAX implements Backend over a DevTools (CDP) session via go-rod:
// accessibility tree reads, CSS box-model queries, and click/fill dispatch
// resolved by backendId.
type BrowserAX struct {
	mu         sync.Mutex
	cfg        BrowserConfig
	browser    *rod.Browser
	controlURL string
	page       *rod.Page
}

func NewBrowserAX(cfg BrowserConfig) *BrowserAX {
	return &BrowserAX{cfg: cfg}
}

func (b *BrowserAX) Source() model.Source { return model.SourceBrowserAX }

func (b *BrowserAX) Open(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.ensureStartedLocked(ctx)
}

func (b *BrowserAX) ensureStartedLocked(ctx context.Context) error {
	if b.browser != nil {
		if _, err := b.browser.Version(); err == nil {
			return nil
		}
		_ = b.browser.Close()
		b.browser = nil
		b.page = nil
	}

	controlURL := b.cfg.DebuggerURL
	if controlURL == "" {
		l := launcher.New().Headless(b.cfg.Headless)
		if len(b.cfg.Launch) > 0 {
			l = l.Bin(b.cfg.Launch[0])
			for _, raw := range b.cfg.Launch[1:] {
				name, val, hasVal := strings.Cut(strings.TrimLeft(raw, "-"), "=")
				if hasVal {
					l = l.Set(flags.Flag(name), val)
				} else {
					l = l.Set(flags.Flag(name))
				}
			}
		}
		url, err := l.Launch()
		if err != nil {
			return fmt.Errorf("launch browser: %w", err)
		}
		controlURL = url
	}

	browser := rod.New().ControlURL(controlURL).Context(ctx)
	if err := browser.Connect(); err != nil {
		return fmt.Errorf("connect to devtools: %w", err)
	}
	b.browser = browser
	b.controlURL = controlURL
	return nil
}

func (b *BrowserAX) Close(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.browser == nil {
		return nil
	}
	err := b.browser.Close()
	b.browser = nil
	b.page = nil
	b.controlURL = ""
	return err
}

func (b *BrowserAX) Health(ctx context.Context) Status {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.browser == nil {
		return Status{Healthy: false, Detail: "not connected"}
	}
	if _, err := b.browser.Version(); err != nil {
		return Status{Healthy: false, Detail: err.Error()}
	}
	return Status{Healthy: true}
}

// selectPageLocked resolves the target tab by title match or index.
func (b *BrowserAX) selectPageLocked(ctx context.Context) (*rod.Page, error) {
	if err := b.ensureStartedLocked(ctx); err != nil {
		return nil, err
	}
	pages, err := b.browser.Pages()
	if err != nil {
		return nil, fmt.Errorf("list tabs: %w", err)
	}
	if len(pages) == 0 {
		p, err := b.browser.Page(proto.TargetCreateTarget{URL: "about:blank"})
		if err != nil {
			return nil, fmt.Errorf("open tab: %w", err)
		}
		pages = rod.Pages{p}
	}

	if b.cfg.TabTitleMatch != "" {
		for _, p := range pages {
			info, err := p.Info()
			if err == nil && strings.Contains(strings.ToLower(info.Title), strings.ToLower(b.cfg.TabTitleMatch)) {
				b.page = p
				return p, nil
			}
		}
		return nil, fmt.Errorf("no tab matching title %q", b.cfg.TabTitleMatch)
	}

	idx := b.cfg.TabIndex
	if idx < 0 || idx >= len(pages) {
		idx = 0
	}
	b.page = pages[idx]
	return b.page, nil
}

// axTreeJS reads the CDP Accessibility tree and projects it into the same
// shape RawNode expects, so the Normalizer doesn't need to know the source
// backend's native representation.
const axTreeJS = `
() => {
	function rectOf(el) {
		const r = el.getBoundingClientRect();
		return {x: Math.round(r.x), y: Math.round(r.y), w: Math.round(r.width), h: Math.round(r.height)};
	}
	function roleOf(el) {
		const explicit = el.getAttribute('role');
		if (explicit) return explicit;
		const tag = el.tagName.toLowerCase();
		const map = {
			button: 'button', a: 'link', input: 'edit', textarea: 'edit',
			select: 'combobox', li: 'listitem', h1: 'heading', h2: 'heading',
			h3: 'heading', h4: 'heading', h5: 'heading', h6: 'heading',
			dialog: 'dialog',
		};
		return map[tag] || 'generic';
	}
	function nameOf(el) {
		return (el.getAttribute('aria-label') || el.innerText || el.getAttribute('alt') || el.getAttribute('title') || '').trim().slice(0, 200);
	}
	function walk(el, parentName, out) {
		if (!el || el.nodeType !== 1) return;
		const style = window.getComputedStyle(el);
		if (style.display === 'none' || style.visibility === 'hidden') return;
		const rect = rectOf(el);
		const name = nameOf(el);
		const role = roleOf(el);
		const interactive = ['button','link','edit','combobox','listitem','checkbox','radio','tab'].includes(role);
		if (rect.w > 0 && rect.h > 0 && (name || interactive)) {
			out.push({
				role, name, value: el.value || '', bounds: rect,
				enabled: !el.disabled, focused: document.activeElement === el,
				editable: (role === 'edit'), parentName,
				backendId: el.__nexusId || (el.__nexusId = 'bn_' + out.length + '_' + Date.now()),
			});
			parentName = name || parentName;
		}
		for (const child of el.children) walk(child, parentName, out);
	}
	const out = [];
	walk(document.body, '', out);
	return out;
}
`

func (b *BrowserAX) Acquire(ctx context.Context, q Query) (*RawGraph, error) {
	b.mu.Lock()
	page, err := b.selectPageLocked(ctx)
	b.mu.Unlock()
	if err != nil {
		return nil, model.NewError(model.ErrBackendUnavailable, "browser-ax: %v", err)
	}

	info, _ := page.Info()
	nodes, err := b.evaluateAXTree(ctx, page)
	if err != nil {
		return nil, model.NewError(model.ErrBackendUnavailable, "browser-ax: %v", err)
	}
	title, url := "", ""
	if info != nil {
		title, url = info.Title, info.URL
	}
	_ = url
	return &RawGraph{WindowTitle: title, ProcessID: "", Roots: nodes}, nil
}

type axRawEntry struct {
	Role       string     `json:"role"`
	Name       string     `json:"name"`
	Value      string     `json:"value"`
	Bounds     model.Rect `json:"bounds"`
	Enabled    bool       `json:"enabled"`
	Focused    bool       `json:"focused"`
	Editable   bool       `json:"editable"`
	ParentName string     `json:"parentName"`
	BackendID  string     `json:"backendId"`
}

func (b *BrowserAX) evaluateAXTree(ctx context.Context, page *rod.Page) ([]*RawNode, error) {
	res, err := page.Context(ctx).Evaluate(&rod.EvalOptions{
		JS:           axTreeJS,
		ByValue:      true,
		AwaitPromise: true,
	})
	if err != nil || res == nil {
		return nil, fmt.Errorf("evaluate accessibility tree: %w", err)
	}
	raw, err := res.Value.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("marshal accessibility tree: %w", err)
	}
	var entries []axRawEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("decode accessibility tree: %w", err)
	}
	nodes := make([]*RawNode, 0, len(entries))
	for _, e := range entries {
		nodes = append(nodes, &RawNode{
			Role:       e.Role,
			Name:       e.Name,
			Value:      e.Value,
			Bounds:     e.Bounds,
			Enabled:    boolTri(e.Enabled),
			Focused:    boolTri(e.Focused),
			Visible:    model.TriTrue(),
			Editable:   boolTri(e.Editable),
			ParentName: e.ParentName,
			RawRef:     e.BackendID,
		})
	}
	return nodes, nil
}

func boolTri(v bool) model.Tristate {
	if v {
		return model.TriTrue()
	}
	return model.TriFalse()
}

// Screenshot captures the active tab's viewport as PNG, satisfying
// Screenshotter.
func (b *BrowserAX) Screenshot(ctx context.Context) ([]byte, int, int, error) {
	b.mu.Lock()
	page, err := b.selectPageLocked(ctx)
	b.mu.Unlock()
	if err != nil {
		return nil, 0, 0, model.NewError(model.ErrBackendUnavailable, "browser-ax: %v", err)
	}
	img, err := page.Context(ctx).Screenshot(false, nil)
	if err != nil {
		return nil, 0, 0, model.NewError(model.ErrInternal, "browser-ax: screenshot: %v", err)
	}
	return img, b.cfg.ViewportWidth, b.cfg.ViewportHeight, nil
}

func (b *BrowserAX) Fingerprint(ctx context.Context, q Query) (string, error) {
	b.mu.Lock()
	page, err := b.selectPageLocked(ctx)
	b.mu.Unlock()
	if err != nil {
		return "", err
	}
	info, err := page.Info()
	if err != nil {
		return "", err
	}
	res, err := page.Context(ctx).Evaluate(&rod.EvalOptions{
		JS:      `() => document.activeElement ? (document.activeElement.__nexusId || '') : ''`,
		ByValue: true,
	})
	fid := ""
	if err == nil && res != nil {
		fid = res.Value.String()
	}
	return fmt.Sprintf("%s|%s|%s", info.Title, info.URL, fid), nil
}

func (b *BrowserAX) Perform(ctx context.Context, rawRef any, action Action) (Result, error) {
	b.mu.Lock()
	page := b.page
	b.mu.Unlock()
	if page == nil {
		return Result{}, model.NewError(model.ErrBackendUnavailable, "browser-ax: no active tab")
	}
	backendID, _ := rawRef.(string)

	switch action.Kind {
	case ActionInvoke:
		return b.clickByBackendID(ctx, page, backendID)
	case ActionSetValue:
		return b.fillByBackendID(ctx, page, backendID, action.Text)
	case ActionFocus:
		_, err := page.Context(ctx).Evaluate(&rod.EvalOptions{
			JS: fmt.Sprintf(`() => { const el=[...document.querySelectorAll('*')].find(e=>e.__nexusId===%q); if (el) el.focus(); }`, backendID),
		})
		return Result{OK: err == nil}, err
	case ActionNavigate:
		if err := page.Context(ctx).Timeout(b.cfg.navTimeout()).Navigate(action.URL); err != nil {
			return Result{}, model.NewError(model.ErrPageLoading, "navigate: %v", err)
		}
		_ = page.WaitLoad()
		return Result{OK: true}, nil
	case ActionClickXY:
		x, y := action.Point.Center()
		if err := page.Mouse.MoveTo(proto.Point{X: float64(x), Y: float64(y)}); err != nil {
			return Result{}, err
		}
		return Result{OK: true}, page.Mouse.Click(proto.InputMouseButtonLeft, 1)
	case ActionScroll:
		return Result{OK: true}, page.Mouse.Scroll(0, float64(-action.Ticks*100), 1)
	default:
		return Result{}, model.NewError(model.ErrBadRequest, "browser-ax: unsupported action %s", action.Kind)
	}
}

func (b *BrowserAX) clickByBackendID(ctx context.Context, page *rod.Page, backendID string) (Result, error) {
	res, err := page.Context(ctx).Evaluate(&rod.EvalOptions{
		ByValue: true,
		JS: fmt.Sprintf(`() => {
			const el=[...document.querySelectorAll('*')].find(e=>e.__nexusId===%q);
			if (!el) return false;
			el.click();
			return true;
		}`, backendID),
	})
	if err != nil || res == nil {
		return Result{}, err
	}
	if !res.Value.Bool() {
		return Result{}, model.NewError(model.ErrTargetNotFound, "browser-ax: backendId %s no longer present", backendID)
	}
	return Result{OK: true}, nil
}

func (b *BrowserAX) fillByBackendID(ctx context.Context, page *rod.Page, backendID, text string) (Result, error) {
	res, err := page.Context(ctx).Evaluate(&rod.EvalOptions{
		ByValue: true,
		JS: fmt.Sprintf(`(v) => {
			const el=[...document.querySelectorAll('*')].find(e=>e.__nexusId===%q);
			if (!el) return false;
			el.focus();
			el.value = v;
			el.dispatchEvent(new Event('input', {bubbles: true}));
			el.dispatchEvent(new Event('change', {bubbles: true}));
			return true;
		}`, backendID),
		JSArgs: []any{text},
	})
	if err != nil || res == nil {
		return Result{}, err
	}
	if !res.Value.Bool() {
		return Result{}, model.NewError(model.ErrTargetNotFound, "browser-ax: backendId %s no longer present", backendID)
	}
	return Result{OK: true}, nil
}
