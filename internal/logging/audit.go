// Package logging also provides an append-only JSON-lines audit trail of
// every dispatched action, healing attempt, and daemon request — one JSON
// object per line, meant to be read back with a line-oriented JSON parser
// rather than queried through the log files.
package logging

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// AuditEventType is the kind of audit event recorded.
type AuditEventType string

const (
	AuditActionExecute  AuditEventType = "action_execute"
	AuditActionComplete AuditEventType = "action_complete"
	AuditActionError    AuditEventType = "action_error"

	AuditHealAttempt   AuditEventType = "heal_attempt"
	AuditHealRemediate AuditEventType = "heal_remediate"
	AuditHealExhausted AuditEventType = "heal_exhausted"

	AuditDaemonRequest  AuditEventType = "daemon_request"
	AuditDaemonResponse AuditEventType = "daemon_response"
	AuditDaemonTimeout  AuditEventType = "daemon_timeout"

	AuditBackendReconnect   AuditEventType = "backend_reconnect"
	AuditBackendUnavailable AuditEventType = "backend_unavailable"
)

// AuditEvent is one audit log entry.
type AuditEvent struct {
	Timestamp  int64                  `json:"ts"`
	EventType  AuditEventType         `json:"event"`
	RequestID  string                 `json:"req,omitempty"`
	Target     string                 `json:"target,omitempty"`
	Action     string                 `json:"action,omitempty"`
	Success    bool                   `json:"success"`
	DurationMs int64                  `json:"dur_ms,omitempty"`
	Error      string                 `json:"error,omitempty"`
	Message    string                 `json:"msg,omitempty"`
	Fields     map[string]interface{} `json:"fields,omitempty"`
}

var (
	auditFile   *os.File
	auditMu     sync.Mutex
	auditLogger *AuditLogger
)

// AuditLogger writes AuditEvents scoped to one daemon request id.
type AuditLogger struct {
	requestID string
}

// InitAudit opens the audit log file. No-op outside debug mode.
func InitAudit() error {
	if !IsDebugMode() {
		return nil
	}

	auditMu.Lock()
	defer auditMu.Unlock()

	if auditFile != nil {
		return nil
	}

	date := time.Now().Format("2006-01-02")
	auditPath := filepath.Join(logsDir, fmt.Sprintf("%s_audit.jsonl", date))

	file, err := os.OpenFile(auditPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to create audit log: %w", err)
	}
	auditFile = file
	return nil
}

// CloseAudit closes the audit log file.
func CloseAudit() {
	auditMu.Lock()
	defer auditMu.Unlock()

	if auditFile != nil {
		auditFile.Close()
		auditFile = nil
	}
}

// Audit returns the process-global, unscoped audit logger.
func Audit() *AuditLogger {
	if auditLogger == nil {
		auditLogger = &AuditLogger{}
	}
	return auditLogger
}

// AuditWithRequest scopes an audit logger to one daemon request id, so every
// event it logs for that request can be correlated in the trail.
func AuditWithRequest(requestID string) *AuditLogger {
	return &AuditLogger{requestID: requestID}
}

// Log writes event, filling in the timestamp and the logger's request id
// when the event doesn't already carry its own.
func (a *AuditLogger) Log(event AuditEvent) {
	if !IsDebugMode() || auditFile == nil {
		return
	}

	if event.Timestamp == 0 {
		event.Timestamp = time.Now().UnixMilli()
	}
	if event.RequestID == "" && a.requestID != "" {
		event.RequestID = a.requestID
	}

	data, err := json.Marshal(event)
	if err != nil {
		return
	}

	auditMu.Lock()
	defer auditMu.Unlock()
	auditFile.Write(append(data, '\n'))
}

// ActionExecute logs the start of a dispatched action.
func (a *AuditLogger) ActionExecute(action, target string) {
	a.Log(AuditEvent{EventType: AuditActionExecute, Action: action, Target: target, Success: true})
}

// ActionComplete logs the outcome of a dispatched action, including its
// verify result if any (fields["verified"]).
func (a *AuditLogger) ActionComplete(action, target string, durationMs int64, success bool, errMsg string, verified *bool) {
	var fields map[string]interface{}
	if verified != nil {
		fields = map[string]interface{}{"verified": *verified}
	}
	a.Log(AuditEvent{
		EventType: AuditActionComplete, Action: action, Target: target,
		DurationMs: durationMs, Success: success, Error: errMsg, Fields: fields,
	})
}

// HealAttempt logs one classify-and-remediate cycle.
func (a *AuditLogger) HealAttempt(kind string, attempt int) {
	a.Log(AuditEvent{
		EventType: AuditHealAttempt, Action: kind, Success: true,
		Fields: map[string]interface{}{"attempt": attempt},
	})
}

// HealRemediate logs the result of applying a remediation for kind.
func (a *AuditLogger) HealRemediate(kind string, attempt int, success bool, errMsg string) {
	a.Log(AuditEvent{
		EventType: AuditHealRemediate, Action: kind, Success: success, Error: errMsg,
		Fields: map[string]interface{}{"attempt": attempt},
	})
}

// HealExhausted logs that healing ran out of retries.
func (a *AuditLogger) HealExhausted(kind string) {
	a.Log(AuditEvent{EventType: AuditHealExhausted, Action: kind, Success: false})
}

// DaemonRequest logs an incoming request line.
func (a *AuditLogger) DaemonRequest(command string) {
	a.Log(AuditEvent{EventType: AuditDaemonRequest, Action: command, Success: true})
}

// DaemonResponse logs the response emitted for a request.
func (a *AuditLogger) DaemonResponse(command string, durationMs int64, success bool) {
	a.Log(AuditEvent{EventType: AuditDaemonResponse, Action: command, DurationMs: durationMs, Success: success})
}

// DaemonTimeout logs a watchdog-fired command.
func (a *AuditLogger) DaemonTimeout(command string, durationMs int64) {
	a.Log(AuditEvent{EventType: AuditDaemonTimeout, Action: command, DurationMs: durationMs, Success: false})
}

// BackendReconnect logs a reconnect-after-transport-error attempt.
func (a *AuditLogger) BackendReconnect(source string, success bool) {
	a.Log(AuditEvent{EventType: AuditBackendReconnect, Target: source, Success: success})
}

// BackendUnavailable logs a backend giving up after its one reconnect.
func (a *AuditLogger) BackendUnavailable(source string, errMsg string) {
	a.Log(AuditEvent{EventType: AuditBackendUnavailable, Target: source, Success: false, Error: errMsg})
}
