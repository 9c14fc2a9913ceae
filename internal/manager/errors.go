package manager

import "errors"

// ErrNotFound is returned when a task id has no corresponding Task Record.
var ErrNotFound = errors.New("manager: task not found")
