package agent

import (
	"sync"
	"time"
)

// ToolInteraction is one audit entry for an executed tool call. The log is
// purely observational; the loop never reads it back.
type ToolInteraction struct {
	Tool   string         `json:"tool"`
	Args   map[string]any `json:"args"`
	Result any            `json:"result"`
	Time   time.Time      `json:"time"`
}

// AuditLog is an append-only, instance-scoped record of tool interactions.
type AuditLog struct {
	mu      sync.Mutex
	entries []ToolInteraction
}

// Record appends one interaction stamped with the current time.
func (l *AuditLog) Record(tool string, args map[string]any, result any) ToolInteraction {
	entry := ToolInteraction{
		Tool:   tool,
		Args:   args,
		Result: result,
		Time:   time.Now(),
	}
	l.mu.Lock()
	l.entries = append(l.entries, entry)
	l.mu.Unlock()
	return entry
}

// Entries returns a snapshot of the log.
func (l *AuditLog) Entries() []ToolInteraction {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]ToolInteraction(nil), l.entries...)
}

// Clear empties the log.
func (l *AuditLog) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = nil
}
