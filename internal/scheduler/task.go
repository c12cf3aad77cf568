package scheduler

// TaskStatus represents the current state of a task.
type TaskStatus int

const (
	TaskPending    TaskStatus = iota // Waiting for dependencies
	TaskInProgress                   // Currently executing
	TaskCompleted                    // Finished successfully
	TaskFailed                       // Finished with error
)

// String returns a human-readable status name.
func (s TaskStatus) String() string {
	switch s {
	case TaskPending:
		return "pending"
	case TaskInProgress:
		return "in_progress"
	case TaskCompleted:
		return "completed"
	case TaskFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Task represents a unit of work in the DAG.
// The Description payload is opaque to the scheduler; it is handed verbatim
// to the Executor along with the resolved results of DependsOn.
type Task struct {
	ID          string   // Unique identifier within one run
	Description string   // Payload passed to the Executor
	DependsOn   []string // Task IDs that must complete before this task starts
	Status      TaskStatus
	Result      string // Output from execution (populated on completion)
	Err         error  // Error if failed
}
