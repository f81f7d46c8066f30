package main

import "testing"

// daemonCmd.RunE drives os.Stdin directly through a blocking read loop, so
// it is exercised through internal/daemon's own tests (which inject a
// fake io.Reader) rather than here; invoking it against the test
// process's real stdin would hang rather than fail.
func TestDaemonCmd_Registered(t *testing.T) {
	if daemonCmd.Use != "daemon" {
		t.Errorf("daemonCmd.Use = %q, want daemon", daemonCmd.Use)
	}
	if daemonCmd.RunE == nil {
		t.Error("daemonCmd.RunE is nil")
	}
}
