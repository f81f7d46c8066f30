package main

import (
	"context"
	"strings"
	"testing"

	"nexus/internal/daemon"
)

func TestPingCmd_PrintsOKResponseWithoutBuildingCore(t *testing.T) {
	oldCfg := cfg
	cfg = nil // ping must not touch cfg/buildCore at all
	defer func() { cfg = oldCfg }()

	out := captureStdout(t, func() {
		if err := pingCmd.RunE(pingCmd, nil); err != nil {
			t.Fatalf("pingCmd.RunE: %v", err)
		}
	})

	if !strings.Contains(out, `"ok":true`) || !strings.Contains(out, `"command":"ping"`) {
		t.Fatalf("stdout = %q, want an ok:true ping response", out)
	}
}

func TestQuitCmd_PrintsOKResponseWithoutBuildingCore(t *testing.T) {
	oldCfg := cfg
	cfg = nil
	defer func() { cfg = oldCfg }()

	out := captureStdout(t, func() {
		if err := quitCmd.RunE(quitCmd, nil); err != nil {
			t.Fatalf("quitCmd.RunE: %v", err)
		}
	})

	if !strings.Contains(out, `"ok":true`) || !strings.Contains(out, `"command":"quit"`) {
		t.Fatalf("stdout = %q, want an ok:true quit response", out)
	}
}

func TestBatchCmd_FlagsRegistered(t *testing.T) {
	flags := batchCmd.Flags()
	for _, name := range []string{"script", "continue-on-error", "verbose-steps"} {
		if flags.Lookup(name) == nil {
			t.Errorf("batchCmd missing flag %q", name)
		}
	}
}

// TestBatchCmd_DispatchesEveryStepThroughCore exercises the same
// backend-unavailable path as dispatchAndPrint, confirming batchCmd wires
// its script into daemon.RunBatch against a real Core rather than some
// other dispatcher: without a live NativeAX collaborator, a "windows" step
// comes back ok:false with a backend_unavailable kind, same as any other
// perception command run standalone.
func TestBatchCmd_DispatchesEveryStepThroughCore(t *testing.T) {
	withTestConfig(t)

	oldScript, oldContinue, oldVerbose := scriptFlag, continueOnErrorFlag, batchVerboseFlag
	defer func() {
		scriptFlag, continueOnErrorFlag, batchVerboseFlag = oldScript, oldContinue, oldVerbose
	}()
	scriptFlag = "windows"
	continueOnErrorFlag = false
	batchVerboseFlag = false

	c := buildCore()
	defer func() { _ = c.Close(context.Background()) }()

	req := commonRequest("batch")
	req.Script = scriptFlag
	resp := daemon.RunBatch(context.Background(), c, req)

	if resp.OK {
		t.Fatal("resp.OK = true, want false: no NativeTree collaborator was wired")
	}
	line, err := resp.MarshalLine()
	if err != nil {
		t.Fatalf("MarshalLine: %v", err)
	}
	if !strings.Contains(string(line), "backend_unavailable") {
		t.Fatalf("response = %s, want backend_unavailable to appear in the final step", line)
	}
}
