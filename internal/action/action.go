// Package action implements the Action Engine: the standard
// execution envelope (pre-step foreground, dispatch, post-step verify)
// shared by every exposed operation.
package action

import (
	"context"
	"strings"
	"time"

	"nexus/internal/backend"
	"nexus/internal/cache"
	"nexus/internal/diffsum"
	"nexus/internal/model"
)

// Op is one exposed operation.
type Op string

const (
	OpClick        Op = "click"
	OpDoubleClick  Op = "double_click"
	OpRightClick   Op = "right_click"
	OpTypeText     Op = "type_text"
	OpPressKeyCombo Op = "press_key_combo"
	OpScroll       Op = "scroll"
	OpMove         Op = "move"
	OpDrag         Op = "drag"
	OpClickElement Op = "click_element"
	OpClickMark    Op = "click_mark"
	OpWebClick     Op = "web_click"
	OpWebInput     Op = "web_input"
	OpWebNavigate  Op = "web_navigate"
)

// pasteThreshold is the character count above which type_text may use
// clipboard paste instead of synthesized keystrokes.
const pasteThreshold = 200

// foregroundWaitTimeout bounds how long a pre-step foreground-bring-up
// waits for the focus event.
const foregroundWaitTimeout = 300 * time.Millisecond

// initialSettleDelay and maxSettleDelay bound the post-step verify re-read
// loop's exponential backoff.
const (
	initialSettleDelay = 200 * time.Millisecond
	maxSettleDelay     = 3 * time.Second
)

// Foregrounder brings a window to the front; only Native-AX backends
// implement this meaningfully, web targets have no window
// concept at this layer.
type Foregrounder interface {
	Foreground(ctx context.Context, appScope string) error
}

// Request is one action invocation, combining the target resolution (done
// by the caller via the resolver before reaching here) with the envelope
// knobs the protocol exposes.
type Request struct {
	Op       Op
	Backend  backend.Backend
	RawRef   any // the resolved element's backend-native ref, when applicable
	Point    model.Rect
	Text     string
	Keys     string
	Ticks    int
	URL      string
	AppScope string

	WindowKey model.WindowKey
	Verify    bool
	Foreground Foregrounder
}

// Result is the step-4 response shape.
type Result struct {
	OK               bool           `json:"ok"`
	Action           Op             `json:"action"`
	Verified         *bool          `json:"verified,omitempty"`
	ChangesSummary   *diffsum.Result `json:"changes_summary,omitempty"`
	PostStateSummary *diffsum.Summary `json:"post_state_summary,omitempty"`
	Message          string         `json:"message,omitempty"`
}

// Acquirer re-reads a fresh Snapshot for verify; supplied by the caller
// (the core) so the Action Engine itself doesn't need to know about
// normalization or the perception pipeline's backend selection.
type Acquirer func(ctx context.Context) (model.Snapshot, error)

// Engine executes actions through the standard envelope.
type Engine struct {
	cache *cache.Cache
}

func NewEngine(c *cache.Cache) *Engine {
	return &Engine{cache: c}
}

// Execute runs req through pre-step foreground, dispatch, and (if
// requested) post-step verify, in that order.
func (e *Engine) Execute(ctx context.Context, req Request, preSnapshot model.Snapshot, reacquire Acquirer) (Result, error) {
	if req.AppScope != "" && req.Foreground != nil {
		fgCtx, cancel := context.WithTimeout(ctx, foregroundWaitTimeout)
		_ = req.Foreground.Foreground(fgCtx, req.AppScope)
		cancel()
	}

	backendAction, err := toBackendAction(req)
	if err != nil {
		return Result{}, err
	}

	dispatchResult, err := req.Backend.Perform(ctx, req.RawRef, backendAction)
	if err != nil {
		return Result{}, err
	}

	if e.cache != nil {
		e.cache.MarkDirty(req.WindowKey)
	}

	result := Result{OK: dispatchResult.OK, Action: req.Op, Message: dispatchResult.Message}

	if !req.Verify || req.Op == OpScroll {
		// Scroll is never verified.
		return result, nil
	}
	if reacquire == nil {
		return result, nil
	}

	verified, post, changes := e.verifyLoop(ctx, req, preSnapshot, reacquire)
	result.Verified = &verified
	result.PostStateSummary = post
	result.ChangesSummary = changes
	return result, nil
}

// verifyLoop re-acquires the snapshot after a settle delay that doubles per
// retry up to maxSettleDelay, checking the op-specific predicate.
func (e *Engine) verifyLoop(ctx context.Context, req Request, pre model.Snapshot, reacquire Acquirer) (bool, *diffsum.Summary, *diffsum.Result) {
	delay := initialSettleDelay
	engine := diffsum.NewEngine()

	for {
		select {
		case <-ctx.Done():
			return false, nil, nil
		case <-time.After(delay):
		}

		post, err := reacquire(ctx)
		if err != nil {
			if delay >= maxSettleDelay {
				return false, nil, nil
			}
			delay = nextDelay(delay)
			continue
		}

		diff := engine.Diff(pre, post)
		summary := diffsum.Summarize(post)
		if verifyPredicate(req, pre, post, diff) {
			return true, &summary, diff
		}
		if delay >= maxSettleDelay {
			return false, &summary, diff
		}
		delay = nextDelay(delay)
	}
}

func nextDelay(d time.Duration) time.Duration {
	next := d * 2
	if next > maxSettleDelay {
		return maxSettleDelay
	}
	return next
}

// verifyPredicate implements the per-op check named in step 3:
// click_element/click_mark succeed when the target stopped being focused,
// or the diff shows any element appeared, disappeared, or changed.
func verifyPredicate(req Request, pre, post model.Snapshot, diff *diffsum.Result) bool {
	switch req.Op {
	case OpClickElement, OpClickMark, OpWebClick:
		if targetID := req.targetID(); targetID != "" {
			if before, ok := pre.ByID(targetID); ok {
				if after, stillPresent := post.ByID(before.ID); !stillPresent {
					return true
				} else if !(after.Focused.Known && after.Focused.Value) {
					return true
				}
			}
		}
		return diff.Mode == "full-due-to-churn" || len(diff.Added) > 0 || len(diff.Removed) > 0 || len(diff.Changed) > 0
	case OpTypeText, OpWebInput:
		focused, ok := post.FocusedElement()
		return ok && strings.Contains(focused.Value, req.Text)
	case OpWebNavigate:
		return containsURL(post, req.URL)
	default:
		return true
	}
}

func containsURL(snap model.Snapshot, url string) bool {
	return strings.Contains(snap.WindowKey.WindowTitle, url) || strings.Contains(snap.Fingerprint, url)
}

// targetID is a best-effort accessor used only by the verify predicate's
// "still focused" heuristic; it is empty when the request carries no
// resolved element (e.g. web_navigate).
func (r Request) targetID() string {
	if id, ok := r.RawRef.(string); ok {
		return id
	}
	return ""
}

func toBackendAction(req Request) (backend.Action, error) {
	switch req.Op {
	case OpClick, OpClickElement, OpWebClick:
		if req.RawRef != nil {
			return backend.Action{Kind: backend.ActionInvoke, Point: req.Point}, nil
		}
		return backend.Action{Kind: backend.ActionClickXY, Point: req.Point}, nil
	case OpClickMark:
		return backend.Action{Kind: backend.ActionInvoke, Point: req.Point}, nil
	case OpDoubleClick:
		return backend.Action{Kind: backend.ActionDblClick, Point: req.Point}, nil
	case OpRightClick:
		return backend.Action{Kind: backend.ActionRightClick, Point: req.Point}, nil
	case OpTypeText, OpWebInput:
		// The backend tries a semantic set-value first and falls back to
		// keystroke synthesis only if that's unavailable; text over
		// pasteThreshold chars is the case that fallback is expected to
		// favor clipboard paste over, per-keystroke typing.
		return backend.Action{Kind: backend.ActionSetValue, Point: req.Point, Text: req.Text}, nil
	case OpPressKeyCombo:
		return backend.Action{Kind: backend.ActionPressKey, Keys: req.Keys}, nil
	case OpScroll:
		return backend.Action{Kind: backend.ActionScroll, Point: req.Point, Ticks: req.Ticks}, nil
	case OpMove:
		return backend.Action{Kind: backend.ActionMove, Point: req.Point}, nil
	case OpDrag:
		return backend.Action{Kind: backend.ActionDrag, Point: req.Point}, nil
	case OpWebNavigate:
		return backend.Action{Kind: backend.ActionNavigate, URL: req.URL}, nil
	default:
		return backend.Action{}, model.NewError(model.ErrBadRequest, "unknown action op %q", req.Op)
	}
}
