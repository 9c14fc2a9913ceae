// Package audit appends a durable, human-tailable JSONL record of every task
// lifecycle transition, independent of whatever the store itself retains.
package audit

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/basket/taskqueue/internal/shared"
)

// Event names recorded across a task's lifetime.
const (
	EventPublished       = "published"
	EventStarted         = "started"
	EventCompleted       = "completed"
	EventError           = "error"
	EventCancelled       = "cancelled"
	EventOrphanRecovered = "orphan_recovered"
)

type entry struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	TaskID    string `json:"task_id"`
	Channel   string `json:"channel,omitempty"`
	Function  string `json:"function,omitempty"`
	Runner    string `json:"runner,omitempty"`
	Detail    string `json:"detail,omitempty"`
}

var (
	mu   sync.Mutex
	file *os.File
)

// Init opens (creating if necessary) <homeDir>/logs/tasks_audit.jsonl for
// appending. Calling it more than once is a no-op.
func Init(homeDir string) error {
	mu.Lock()
	defer mu.Unlock()
	if file != nil {
		return nil
	}
	logDir := filepath.Join(homeDir, "logs")
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(filepath.Join(logDir, "tasks_audit.jsonl"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	file = f
	return nil
}

// Close flushes and closes the underlying file, if one is open.
func Close() error {
	mu.Lock()
	defer mu.Unlock()
	if file == nil {
		return nil
	}
	err := file.Close()
	file = nil
	return err
}

// Record appends one lifecycle event. detail carries event-specific context
// (an error message, a recovering runner's hostname) and is redacted before
// being written.
func Record(event, taskID, channel, function, runner, detail string) {
	mu.Lock()
	defer mu.Unlock()
	if file == nil {
		return
	}

	ev := entry{
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Event:     event,
		TaskID:    taskID,
		Channel:   channel,
		Function:  function,
		Runner:    runner,
		Detail:    shared.Redact(detail),
	}
	b, err := json.Marshal(ev)
	if err != nil {
		return
	}
	_, _ = file.Write(append(b, '\n'))
}
