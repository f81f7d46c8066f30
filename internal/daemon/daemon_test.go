package daemon

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"go.uber.org/goleak"

	"nexus/internal/logging"
	"nexus/internal/model"
)

// TestMain verifies no goroutine started by the request loop (or by a
// watchdog timeout's abandoned dispatch) outlives its test.
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func initTestLogging(t *testing.T) {
	t.Helper()
	dir := t.TempDir()
	if err := logging.Initialize(dir); err != nil {
		t.Fatalf("logging.Initialize: %v", err)
	}
	t.Cleanup(func() {
		logging.CloseAll()
		logging.CloseAudit()
	})
}

func readResponses(t *testing.T, out *bytes.Buffer) []model.Response {
	t.Helper()
	var resps []model.Response
	scanner := bufio.NewScanner(out)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var resp model.Response
		if err := json.Unmarshal(line, &resp); err != nil {
			t.Fatalf("unmarshal response line %q: %v", line, err)
		}
		resps = append(resps, resp)
	}
	return resps
}

func TestDaemon_PingRespondsWithoutReachingDispatcher(t *testing.T) {
	initTestLogging(t)
	d := &stubDispatcher{responses: map[string]model.Response{}}
	in := strings.NewReader(`{"command":"ping"}` + "\n")
	out := &bytes.Buffer{}

	daemon := New(d, in, out)
	if err := daemon.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	resps := readResponses(t, out)
	if len(resps) != 1 || !resps[0].OK || resps[0].Command != "ping" {
		t.Fatalf("unexpected responses: %+v", resps)
	}
	if len(d.seen) != 0 {
		t.Fatalf("ping must not reach the dispatcher, saw %d requests", len(d.seen))
	}
}

func TestDaemon_QuitStopsTheLoopAfterResponding(t *testing.T) {
	initTestLogging(t)
	d := &stubDispatcher{responses: map[string]model.Response{}}
	in := strings.NewReader(`{"command":"quit"}` + "\n" + `{"command":"ping"}` + "\n")
	out := &bytes.Buffer{}

	daemon := New(d, in, out)
	if err := daemon.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	resps := readResponses(t, out)
	if len(resps) != 1 || resps[0].Command != "quit" {
		t.Fatalf("expected exactly one quit response and no further processing, got %+v", resps)
	}
}

func TestDaemon_MalformedLineReturnsBadRequestAndContinues(t *testing.T) {
	initTestLogging(t)
	d := &stubDispatcher{responses: map[string]model.Response{"describe": model.OKResponse("describe", nil)}}
	in := strings.NewReader("not json\n" + `{"command":"describe"}` + "\n")
	out := &bytes.Buffer{}

	daemon := New(d, in, out)
	if err := daemon.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	resps := readResponses(t, out)
	if len(resps) != 2 {
		t.Fatalf("expected 2 responses, got %d: %+v", len(resps), resps)
	}
	if resps[0].OK || resps[0].StatusError.Kind != model.ErrBadRequest {
		t.Fatalf("expected first response to be bad_request, got %+v", resps[0])
	}
	if !resps[1].OK {
		t.Fatalf("expected second (valid) request to still be served, got %+v", resps[1])
	}
}

// blockingDispatcher never returns until ctx is cancelled, simulating a
// backend call that outlives its watchdog.
type blockingDispatcher struct{}

func (blockingDispatcher) Dispatch(ctx context.Context, req model.Request) model.Response {
	<-ctx.Done()
	return model.ErrResponse(req.Command, model.NewError(model.ErrTimeout, "simulated hang"))
}

func TestDaemon_WatchdogTimesOutAndDaemonServesNextRequest(t *testing.T) {
	initTestLogging(t)
	in := strings.NewReader(
		`{"command":"click_element","name":"Save","timeout_ms":10}` + "\n" +
			`{"command":"ping"}` + "\n",
	)
	out := &bytes.Buffer{}

	daemon := New(blockingDispatcher{}, in, out)
	done := make(chan error, 1)
	go func() { done <- daemon.Run(context.Background()) }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("daemon did not return after its per-request watchdog should have fired")
	}

	resps := readResponses(t, out)
	if len(resps) != 2 {
		t.Fatalf("expected 2 responses (timed-out command, then ping), got %d: %+v", len(resps), resps)
	}
	if resps[0].OK || resps[0].StatusError.Kind != model.ErrTimeout {
		t.Fatalf("expected the first response to be a timeout, got %+v", resps[0])
	}
	if !resps[1].OK || resps[1].Command != "ping" {
		t.Fatalf("expected the daemon to still answer the next request normally, got %+v", resps[1])
	}
}

// closingDispatcher records whether Close was invoked at shutdown.
type closingDispatcher struct {
	stubDispatcher
	closed bool
}

func (c *closingDispatcher) Close(ctx context.Context) error {
	c.closed = true
	return nil
}

func TestDaemon_ShutdownClosesDispatcherWhenItImplementsCloser(t *testing.T) {
	initTestLogging(t)
	d := &closingDispatcher{stubDispatcher: stubDispatcher{responses: map[string]model.Response{}}}
	in := strings.NewReader(`{"command":"quit"}` + "\n")
	out := &bytes.Buffer{}

	daemon := New(d, in, out)
	if err := daemon.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !d.closed {
		t.Fatal("expected Close to be called on shutdown")
	}
}

func TestDaemon_BatchCommandDelegatesToRunBatch(t *testing.T) {
	initTestLogging(t)
	d := &stubDispatcher{responses: map[string]model.Response{
		"find": model.OKResponse("find", map[string]any{"top": map[string]any{"name": "Save"}}),
		"click_element": model.OKResponse("click_element", map[string]any{"clicked": true}),
	}}
	in := strings.NewReader(`{"command":"batch","script":"find \"Save\" | click_element name=$name"}` + "\n")
	out := &bytes.Buffer{}

	daemon := New(d, in, out)
	if err := daemon.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	resps := readResponses(t, out)
	if len(resps) != 1 || !resps[0].OK {
		t.Fatalf("expected one successful batch response, got %+v", resps)
	}
	if len(d.seen) != 2 || d.seen[1].Name != "Save" {
		t.Fatalf("expected the batch to run both steps with $name resolved, saw %+v", d.seen)
	}
}
