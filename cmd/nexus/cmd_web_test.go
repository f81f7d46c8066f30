package main

import "testing"

func TestWebDescribeAndWebAxCmd_FlagsRegistered(t *testing.T) {
	for _, name := range []string{"focus", "match", "match-kind", "region"} {
		if webDescribeCmd.Flags().Lookup(name) == nil {
			t.Errorf("webDescribeCmd missing flag %q", name)
		}
		if webAxCmd.Flags().Lookup(name) == nil {
			t.Errorf("webAxCmd missing flag %q", name)
		}
	}
}

func TestWebFindCmd_TakesAtMostOneArg(t *testing.T) {
	if err := webFindCmd.Args(webFindCmd, nil); err != nil {
		t.Errorf("webFindCmd.Args(nil) = %v, want nil: query is optional when a selector is given", err)
	}
	if err := webFindCmd.Args(webFindCmd, []string{"Login"}); err != nil {
		t.Errorf("webFindCmd.Args(1 arg) = %v, want nil", err)
	}
	if err := webFindCmd.Args(webFindCmd, []string{"Login", "extra"}); err == nil {
		t.Error("webFindCmd.Args(2 args) = nil, want an error")
	}
	if webFindCmd.Flags().Lookup("role") == nil || webFindCmd.Flags().Lookup("selector") == nil {
		t.Error("webFindCmd missing role/selector flags")
	}
}

func TestWebNavigateCmd_RequiresExactlyOneArg(t *testing.T) {
	if err := webNavigateCmd.Args(webNavigateCmd, nil); err == nil {
		t.Error("webNavigateCmd.Args(nil) = nil, want an error")
	}
	if err := webNavigateCmd.Args(webNavigateCmd, []string{"https://example.com"}); err != nil {
		t.Errorf("webNavigateCmd.Args(1 arg) = %v, want nil", err)
	}
}

func TestWebClickCmd_FlagsAndArgs(t *testing.T) {
	if err := webClickCmd.Args(webClickCmd, nil); err == nil {
		t.Error("webClickCmd.Args(nil) = nil, want an error")
	}
	for _, name := range []string{"role", "selector", "index"} {
		if webClickCmd.Flags().Lookup(name) == nil {
			t.Errorf("webClickCmd missing flag %q", name)
		}
	}
}

func TestWebInputCmd_RequiresExactlyTwoArgs(t *testing.T) {
	if err := webInputCmd.Args(webInputCmd, []string{"Username"}); err == nil {
		t.Error("webInputCmd.Args(1 arg) = nil, want an error: name and text are both required")
	}
	if err := webInputCmd.Args(webInputCmd, []string{"Username", "alice"}); err != nil {
		t.Errorf("webInputCmd.Args(2 args) = %v, want nil", err)
	}
	for _, name := range []string{"role", "selector"} {
		if webInputCmd.Flags().Lookup(name) == nil {
			t.Errorf("webInputCmd missing flag %q", name)
		}
	}
}
