package daemon

import (
	"context"
	"testing"

	"nexus/internal/model"
)

// stubDispatcher replays canned responses keyed by command, recording every
// request it was handed so tests can assert on resolved field values.
type stubDispatcher struct {
	responses map[string]model.Response
	seen      []model.Request
}

func (s *stubDispatcher) Dispatch(ctx context.Context, req model.Request) model.Response {
	s.seen = append(s.seen, req)
	if resp, ok := s.responses[req.Command]; ok {
		return resp
	}
	return model.OKResponse(req.Command, nil)
}

func TestRunBatch_SequentialAbortsOnFailureByDefault(t *testing.T) {
	d := &stubDispatcher{responses: map[string]model.Response{
		"find":          model.ErrResponse("find", model.NewError(model.ErrTargetNotFound, "no match")),
		"click_element": model.OKResponse("click_element", nil),
	}}
	resp := RunBatch(context.Background(), d, model.Request{Script: `find "Save" ; click_element name="Save"`})
	if resp.OK {
		t.Fatal("expected batch to report failure")
	}
	if len(d.seen) != 1 {
		t.Fatalf("expected only the first step to run, got %d steps", len(d.seen))
	}
}

func TestRunBatch_SequentialContinuesOnErrorWhenFlagSet(t *testing.T) {
	d := &stubDispatcher{responses: map[string]model.Response{
		"find":          model.ErrResponse("find", model.NewError(model.ErrTargetNotFound, "no match")),
		"click_element": model.OKResponse("click_element", nil),
	}}
	resp := RunBatch(context.Background(), d, model.Request{
		Script:          `find "Save" ; click_element name="Save"`,
		ContinueOnError: true,
		Verbose:         true,
	})
	if !resp.OK {
		t.Fatalf("expected the batch's final step to succeed, got %+v", resp)
	}
	if len(d.seen) != 2 {
		t.Fatalf("expected both steps to run under continue_on_error, got %d", len(d.seen))
	}
}

func TestRunBatch_PipeNeverRunsNextStepAfterFailureEvenWithContinueOnError(t *testing.T) {
	d := &stubDispatcher{responses: map[string]model.Response{
		"find":          model.ErrResponse("find", model.NewError(model.ErrTargetNotFound, "no match")),
		"click_element": model.OKResponse("click_element", nil),
	}}
	resp := RunBatch(context.Background(), d, model.Request{
		Script:          `find "Save" | click_element name=$name`,
		ContinueOnError: true,
	})
	if resp.OK {
		t.Fatal("expected batch to report failure")
	}
	if len(d.seen) != 1 {
		t.Fatalf("pipe must not run the next step after a failure, got %d steps ran", len(d.seen))
	}
}

func TestRunBatch_PipeInterpolatesNestedVariableFromPreviousStep(t *testing.T) {
	d := &stubDispatcher{responses: map[string]model.Response{
		"find": model.OKResponse("find", map[string]any{
			"top": map[string]any{"name": "Save"},
		}),
		"click_element": model.OKResponse("click_element", map[string]any{"clicked": true}),
	}}
	resp := RunBatch(context.Background(), d, model.Request{Script: `find "Save" | click_element name=$name`})
	if !resp.OK {
		t.Fatalf("expected success, got %+v", resp)
	}
	if len(d.seen) != 2 {
		t.Fatalf("expected 2 steps to run, got %d", len(d.seen))
	}
	if d.seen[1].Name != "Save" {
		t.Fatalf("expected $name to resolve to %q, got %q", "Save", d.seen[1].Name)
	}
}

func TestRunBatch_ConditionalStepSkippedWhenPreviousStepFalsy(t *testing.T) {
	d := &stubDispatcher{responses: map[string]model.Response{
		"find":          model.OKResponse("find", map[string]any{"found": false}),
		"click_element": model.OKResponse("click_element", nil),
	}}
	resp := RunBatch(context.Background(), d, model.Request{
		Script:  `find "Save" ; ? click_element name="Save"`,
		Verbose: true,
	})
	if !resp.OK {
		t.Fatalf("expected overall success (skip is not failure), got %+v", resp)
	}
	if len(d.seen) != 1 {
		t.Fatalf("conditional step should have been skipped, but dispatcher saw %d requests", len(d.seen))
	}
}

func TestRunBatch_ConditionalStepRunsWhenPreviousStepTruthy(t *testing.T) {
	d := &stubDispatcher{responses: map[string]model.Response{
		"find":          model.OKResponse("find", map[string]any{"found": true}),
		"click_element": model.OKResponse("click_element", nil),
	}}
	resp := RunBatch(context.Background(), d, model.Request{
		Script: `find "Save" ; ? click_element name="Save"`,
	})
	if !resp.OK {
		t.Fatalf("expected success, got %+v", resp)
	}
	if len(d.seen) != 2 {
		t.Fatalf("conditional step should have run, dispatcher saw %d requests", len(d.seen))
	}
}

func TestRunBatch_VerboseReturnsAllSteps(t *testing.T) {
	d := &stubDispatcher{responses: map[string]model.Response{
		"find":          model.OKResponse("find", map[string]any{"found": true}),
		"click_element": model.OKResponse("click_element", nil),
	}}
	resp := RunBatch(context.Background(), d, model.Request{
		Script:  `find "Save" ; click_element name="Save"`,
		Verbose: true,
	})
	steps, ok := resp.Data["steps"].([]any)
	if !ok {
		t.Fatalf("expected data.steps to be a list, got %#v", resp.Data)
	}
	if len(steps) != 2 {
		t.Fatalf("expected 2 step entries, got %d", len(steps))
	}
}

func TestRunBatch_NonVerboseReturnsOnlyFinalStep(t *testing.T) {
	d := &stubDispatcher{responses: map[string]model.Response{
		"find":          model.OKResponse("find", map[string]any{"found": true}),
		"click_element": model.OKResponse("click_element", map[string]any{"clicked": true}),
	}}
	resp := RunBatch(context.Background(), d, model.Request{
		Script: `find "Save" ; click_element name="Save"`,
	})
	final, ok := resp.Data["final"].(model.Response)
	if !ok {
		t.Fatalf("expected data.final to be a Response, got %#v", resp.Data)
	}
	if final.Command != "click_element" {
		t.Fatalf("expected final step to be click_element, got %q", final.Command)
	}
}

func TestRunBatch_UndefinedVariableIsBadRequest(t *testing.T) {
	d := &stubDispatcher{responses: map[string]model.Response{}}
	resp := RunBatch(context.Background(), d, model.Request{Script: `click_element name=$missing`})
	if resp.OK {
		t.Fatal("expected failure for undefined batch variable")
	}
	if resp.StatusError == nil || resp.StatusError.Kind != model.ErrBadRequest {
		t.Fatalf("expected bad_request, got %+v", resp.StatusError)
	}
}

func TestParseBatch_SplitsOnTopLevelSeparatorsOnly(t *testing.T) {
	steps, err := parseBatch(`find "Save; Exit" ; click_element name="Save"`)
	if err != nil {
		t.Fatalf("parseBatch: %v", err)
	}
	if len(steps) != 2 {
		t.Fatalf("expected 2 steps (semicolon inside quotes must not split), got %d", len(steps))
	}
	if steps[0].command != "find" || steps[0].tokens[0] != "Save; Exit" {
		t.Fatalf("expected quoted separator preserved, got %+v", steps[0])
	}
}

func TestRunBatch_PositionalArgumentMapsToCommandField(t *testing.T) {
	d := &stubDispatcher{responses: map[string]model.Response{
		"find": model.OKResponse("find", nil),
	}}
	RunBatch(context.Background(), d, model.Request{Script: `find "Save"`})
	if d.seen[0].Query != "Save" {
		t.Fatalf("expected positional token to set Query, got %q", d.seen[0].Query)
	}
}
