package logging

import (
	"os"
	"testing"
)

func BenchmarkAuditLog(b *testing.B) {
	tempDir, err := os.MkdirTemp("", "logging_bench")
	if err != nil {
		b.Fatalf("mkdtemp: %v", err)
	}
	defer os.RemoveAll(tempDir)

	if err := os.MkdirAll(tempDir, 0755); err != nil {
		b.Fatalf("mkdir: %v", err)
	}
	logsDir = tempDir
	config.DebugMode = true
	defer func() {
		CloseAudit()
		config.DebugMode = false
		logsDir = ""
	}()

	if err := InitAudit(); err != nil {
		b.Fatalf("InitAudit: %v", err)
	}

	logger := AuditWithRequest("bench-req")

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		logger.ActionComplete("click_element", "Save", 42, true, "", nil)
	}
}
