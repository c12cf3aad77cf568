package scheduler

import (
	"fmt"
	"sort"
	"strings"
)

// ConfigurationError reports a dependency reference to a task ID that does
// not exist in the task collection. Detected before the first round; the run
// never starts.
type ConfigurationError struct {
	TaskID string // task holding the dangling reference
	DepID  string // referenced ID that is not in the collection
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("task %q depends on non-existent task %q", e.TaskID, e.DepID)
}

// CycleError reports that the remaining PENDING tasks can never become
// ready: a dependency cycle (including a self-dependency) or a deadlocked
// subgraph. PendingIDs lists the tasks that were still waiting.
type CycleError struct {
	PendingIDs []string
}

func (e *CycleError) Error() string {
	ids := append([]string(nil), e.PendingIDs...)
	sort.Strings(ids)
	return fmt.Sprintf("dependency cycle or deadlock among tasks: %s", strings.Join(ids, ", "))
}

// TaskFailureError reports that the Executor failed a specific task. The
// first failure aborts the whole run; nothing is retried.
type TaskFailureError struct {
	TaskID string
	Cause  error
}

func (e *TaskFailureError) Error() string {
	return fmt.Sprintf("task %q failed: %v", e.TaskID, e.Cause)
}

func (e *TaskFailureError) Unwrap() error { return e.Cause }
