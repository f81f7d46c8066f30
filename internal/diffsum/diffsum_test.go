package diffsum

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"nexus/internal/model"
)

func elem(name string, role model.Role, x, y, w, h int) model.Element {
	return model.Element{Name: name, Role: role, Bounds: model.Rect{X: x, Y: y, W: w, H: h}}
}

func TestDiff_DetectsAddedRemovedAndUnchanged(t *testing.T) {
	e := NewEngine()
	// 1 added + 1 removed out of 4 elements is 50% churn, not over it, so
	// the result stays a diff.
	prev := model.Snapshot{Elements: []model.Element{
		elem("Submit", model.RoleButton, 0, 0, 10, 10),
		elem("Cancel", model.RoleButton, 100, 0, 10, 10),
		elem("Help", model.RoleLink, 0, 50, 10, 10),
		elem("Title", model.RoleHeading, 0, 100, 10, 10),
	}}
	cur := model.Snapshot{Elements: []model.Element{
		elem("Submit", model.RoleButton, 0, 0, 10, 10),
		elem("Retry", model.RoleButton, 200, 0, 10, 10),
		elem("Help", model.RoleLink, 0, 50, 10, 10),
		elem("Title", model.RoleHeading, 0, 100, 10, 10),
	}}

	r := e.Diff(prev, cur)
	if r.Mode != "diff" {
		t.Fatalf("Mode = %q", r.Mode)
	}
	wantAdded := []model.Element{elem("Retry", model.RoleButton, 200, 0, 10, 10)}
	if diff := cmp.Diff(wantAdded, r.Added); diff != "" {
		t.Fatalf("Added mismatch (-want +got):\n%s", diff)
	}
	wantRemoved := []model.Element{elem("Cancel", model.RoleButton, 100, 0, 10, 10)}
	if diff := cmp.Diff(wantRemoved, r.Removed); diff != "" {
		t.Fatalf("Removed mismatch (-want +got):\n%s", diff)
	}
	if r.UnchangedCount != 3 {
		t.Fatalf("UnchangedCount = %d, want 3", r.UnchangedCount)
	}
}

func TestDiff_ChangedFieldsTracksFocusedAndValue(t *testing.T) {
	e := NewEngine()
	prevEl := elem("Username", model.RoleEdit, 0, 0, 50, 10)
	curEl := prevEl
	curEl.Value = "alice"
	curEl.Focused = model.TriTrue()

	// An unchanged neighbour keeps churn at 1 of 2 (not over 50%), so the
	// result is a diff rather than the full-listing fallback.
	other := elem("Login", model.RoleButton, 0, 50, 50, 10)
	prev := model.Snapshot{Elements: []model.Element{prevEl, other}}
	cur := model.Snapshot{Elements: []model.Element{curEl, other}}

	r := e.Diff(prev, cur)
	if len(r.Changed) != 1 {
		t.Fatalf("Changed = %+v", r.Changed)
	}
	fieldSet := map[ChangedField]bool{}
	for _, f := range r.Changed[0].Fields {
		fieldSet[f] = true
	}
	if !fieldSet[FieldValue] || !fieldSet[FieldFocused] {
		t.Fatalf("Fields = %+v", r.Changed[0].Fields)
	}
}

func TestDiff_JitterBelowThresholdIsNotAChange(t *testing.T) {
	e := NewEngine()
	prevEl := elem("Spinner", model.RoleGroup, 100, 100, 20, 20)
	curEl := prevEl
	curEl.Bounds.X += 3 // under jitterPixels

	prev := model.Snapshot{Elements: []model.Element{prevEl}}
	cur := model.Snapshot{Elements: []model.Element{curEl}}

	r := e.Diff(prev, cur)
	if len(r.Changed) != 0 || r.UnchangedCount != 1 {
		t.Fatalf("expected jitter to be absorbed, got Changed=%+v Unchanged=%d", r.Changed, r.UnchangedCount)
	}
}

func TestDiff_ChurnFallbackReturnsFullSnapshot(t *testing.T) {
	e := NewEngine()
	var prevElems, curElems []model.Element
	for i := 0; i < 10; i++ {
		prevElems = append(prevElems, elem("Old", model.RoleButton, i*10, 0, 5, 5))
	}
	for i := 0; i < 10; i++ {
		curElems = append(curElems, elem("New", model.RoleButton, i*10, 100, 5, 5))
	}
	prev := model.Snapshot{Elements: prevElems}
	cur := model.Snapshot{Elements: curElems}

	r := e.Diff(prev, cur)
	if r.Mode != "full-due-to-churn" {
		t.Fatalf("Mode = %q, want full-due-to-churn", r.Mode)
	}
	if len(r.Full) != len(curElems) {
		t.Fatalf("Full has %d elements, want %d", len(r.Full), len(curElems))
	}
}

func TestSummarize_CountsAndDialogAndBands(t *testing.T) {
	snap := model.Snapshot{Elements: []model.Element{
		elem("OK", model.RoleButton, 0, 0, 10, 10),
		elem("Confirm", model.RoleDialog, 0, 400, 200, 200),
		elem("Connection error", model.RoleStaticText, 0, 200, 100, 10),
	}}

	s := Summarize(snap)
	if s.CountsByRole[model.RoleButton] != 1 {
		t.Fatalf("button count = %d", s.CountsByRole[model.RoleButton])
	}
	if !s.HasDialog {
		t.Fatal("expected HasDialog true")
	}
	if len(s.ErrorElements) != 1 {
		t.Fatalf("ErrorElements = %+v", s.ErrorElements)
	}
}
