// Package heal implements the Healing Supervisor: it wraps one
// Action Engine attempt with failure classification and bounded,
// kind-specific remediation.
package heal

import (
	"context"
	"time"

	"nexus/internal/action"
	"nexus/internal/diffsum"
	"nexus/internal/model"
)

// maxRetries is the bound on remediation attempts after the first try.
const maxRetries = 2

// notReadyPollInterval/notReadyPollTimeout and pageLoadTimeout bound the
// target_not_ready and page_loading remediations.
const (
	notReadyPollInterval = 100 * time.Millisecond
	notReadyPollTimeout  = 2 * time.Second
	pageLoadTimeout      = 3 * time.Second
	foregroundTimeout    = 300 * time.Millisecond
)

// Resolve re-runs the Resolver against a freshly acquired snapshot, used to
// relocate a target that moved or whose id changed (target_not_found). It
// returns ok=false when the target isn't resolvable against the fresh
// snapshot at all.
type Resolve func(ctx context.Context, snap model.Snapshot) (model.Element, bool, error)

// Supervisor wraps action.Engine with its diagnose-and-remediate loop.
type Supervisor struct {
	Actions *action.Engine
}

func NewSupervisor(actions *action.Engine) *Supervisor {
	return &Supervisor{Actions: actions}
}

// Run executes req through the Action Engine, and on a verify failure,
// classifies the failure and applies the matching remediation before
// retrying, up to maxRetries times. target is the element the
// Resolver matched before dispatch, nil for coordinate-only ops (plain
// click/scroll/move/drag) which have nothing for healing to re-locate.
func (s *Supervisor) Run(ctx context.Context, req action.Request, pre model.Snapshot, reacquire action.Acquirer, target *model.Element, resolve Resolve) (action.Result, error) {
	result, err := s.Actions.Execute(ctx, req, pre, reacquire)
	if err != nil {
		return result, err
	}
	if !req.Verify || result.Verified == nil || *result.Verified {
		return result, nil
	}

	lastPost := pre
	for attempt := 0; attempt < maxRetries; attempt++ {
		post, reErr := reacquire(ctx)
		if reErr != nil {
			return result, nil
		}
		lastPost = post

		if partiallySucceeded(target, result.ChangesSummary) {
			return partialSuccessResult(result), nil
		}

		kind := classify(post, req, target, result)
		newReq, newTarget, remErr := s.remediate(ctx, kind, req, target, post, resolve)
		if remErr != nil {
			return result, diagnosis(kind, post, remErr)
		}
		req, target = newReq, newTarget

		result, err = s.Actions.Execute(ctx, req, post, reacquire)
		if err != nil {
			return result, err
		}
		if !req.Verify || result.Verified == nil || *result.Verified {
			return result, nil
		}
	}

	kind := classify(lastPost, req, target, result)
	return result, diagnosis(kind, lastPost, nil)
}

// partiallySucceeded is its "never retries a side-effecting action that
// appears to have partially succeeded": the target element itself recorded
// an observable change (e.g. a value partially landed) yet the verify
// predicate still failed. Unrelated churn elsewhere (a dialog opening, an
// unconnected list refreshing) is not the target partially succeeding — it's
// exactly the signal classify() needs to diagnose and remediate, so it must
// not be absorbed here first.
func partiallySucceeded(target *model.Element, diff *diffsum.Result) bool {
	if target == nil || diff == nil {
		return false
	}
	for _, c := range diff.Changed {
		if c.Name == target.Name && c.Role == target.Role {
			return true
		}
	}
	return false
}

func partialSuccessResult(result action.Result) action.Result {
	result.Message = "action dispatched and post-state changed, but verification predicate did not match; stopping rather than retrying a partially-applied action"
	return result
}

// classify assigns one failure kind, using the post-state,
// focus, dialog presence, and the target's enabled state.
func classify(post model.Snapshot, req action.Request, target *model.Element, result action.Result) model.ErrorKind {
	summary := summarize(post)
	if summary.hasDialog {
		return model.ErrTargetObscured
	}

	if target != nil {
		if el, ok := post.ByID(target.ID); ok {
			if el.Enabled.Known && !el.Enabled.Value {
				return model.ErrTargetNotReady
			}
		} else if el, ok := findByName(post, target.Name); ok {
			if el.Enabled.Known && !el.Enabled.Value {
				return model.ErrTargetNotReady
			}
		} else {
			return model.ErrTargetNotFound
		}
	}

	if req.Backend != nil && req.Backend.Source() == model.SourceBrowserAX &&
		result.ChangesSummary != nil && result.ChangesSummary.Mode == "full-due-to-churn" {
		return model.ErrPageLoading
	}

	if _, ok := post.FocusedElement(); !ok {
		return model.ErrWindowNotFocused
	}

	return model.ErrInternal
}

type quickSummary struct {
	hasDialog bool
}

// summarize is a minimal local re-derivation of diffsum.Summarize's dialog
// signal; classify only needs the one bit, so it avoids building the full
// diffsum.Summary (role counts, spatial bands) just to read HasDialog.
func summarize(snap model.Snapshot) quickSummary {
	for _, e := range snap.Elements {
		if e.Role == model.RoleDialog {
			return quickSummary{hasDialog: true}
		}
	}
	return quickSummary{}
}

func findByName(snap model.Snapshot, name string) (model.Element, bool) {
	for _, e := range snap.Elements {
		if e.Name == name {
			return e, true
		}
	}
	return model.Element{}, false
}

// remediate applies the step-3 table for kind, returning the request
// (and, where it changed, the re-resolved target) to retry with.
func (s *Supervisor) remediate(ctx context.Context, kind model.ErrorKind, req action.Request, target *model.Element, post model.Snapshot, resolve Resolve) (action.Request, *model.Element, error) {
	switch kind {
	case model.ErrTargetNotFound:
		if resolve == nil {
			return req, target, model.NewError(model.ErrTargetNotFound, "target no longer present and no resolver supplied to relocate it")
		}
		el, ok, err := resolve(ctx, post)
		if err != nil {
			return req, target, err
		}
		if !ok {
			return req, target, model.NewError(model.ErrTargetNotFound, "target not resolvable against the current snapshot")
		}
		req.RawRef = el.RawRef
		req.Point = el.Bounds
		return req, &el, nil

	case model.ErrTargetObscured:
		escapeReq := req
		escapeReq.Op = action.OpPressKeyCombo
		escapeReq.Keys = "escape"
		escapeReq.Verify = false
		if _, err := s.Actions.Execute(ctx, escapeReq, post, nil); err != nil {
			return req, target, err
		}
		return req, target, nil

	case model.ErrWindowNotFocused:
		if req.Foreground == nil || req.AppScope == "" {
			return req, target, model.NewError(model.ErrWindowNotFocused, "window lost focus and no foreground scope was supplied")
		}
		fgCtx, cancel := context.WithTimeout(ctx, foregroundTimeout)
		defer cancel()
		if err := req.Foreground.Foreground(fgCtx, req.AppScope); err != nil {
			return req, target, err
		}
		return req, target, nil

	case model.ErrTargetNotReady:
		if err := s.pollEnabled(ctx, target, post); err != nil {
			return req, target, err
		}
		return req, target, nil

	case model.ErrPageLoading:
		select {
		case <-ctx.Done():
			return req, target, ctx.Err()
		case <-time.After(pageLoadTimeout):
		}
		return req, target, nil

	default:
		return req, target, model.NewError(kind, "no remediation defined for this failure kind")
	}
}

// pollEnabled waits up to notReadyPollTimeout for the target to report
// enabled=true. It polls by reusing
// the single post snapshot already in hand; the caller's retry loop
// re-acquires a fresh snapshot after remediate returns, so this only needs
// to wait out the clock rather than re-probe the backend itself.
func (s *Supervisor) pollEnabled(ctx context.Context, target *model.Element, post model.Snapshot) error {
	if target == nil {
		return nil
	}
	if el, ok := post.ByID(target.ID); ok && (!el.Enabled.Known || el.Enabled.Value) {
		return nil
	}
	deadline := time.Now().Add(notReadyPollTimeout)
	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(notReadyPollInterval):
		}
	}
	return nil
}

// diagnosis builds the step-4 exhausted-retries error: kind, and
// suggestions derived from the post-snapshot's interactive elements.
func diagnosis(kind model.ErrorKind, post model.Snapshot, cause error) *model.Error {
	err := model.NewError(kind, "healing exhausted its retries without a successful verification")
	if cause != nil {
		err = err.WithContext("remediation_error", cause.Error())
	}
	if names := interactiveNames(post, 5); len(names) > 0 {
		err = err.WithContext("suggestions", names)
	}
	return err
}

func interactiveNames(snap model.Snapshot, n int) []string {
	var names []string
	for _, e := range snap.Elements {
		switch e.Role {
		case model.RoleButton, model.RoleLink, model.RoleEdit, model.RoleMenuItem, model.RoleTab:
			names = append(names, e.Name)
		}
		if len(names) >= n {
			break
		}
	}
	return names
}
