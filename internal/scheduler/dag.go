package scheduler

import (
	"fmt"
	"sort"
	"sync"

	"github.com/gammazero/toposort"
)

// DAG holds the task collection for one scheduling run.
// The collection is fixed once the run starts: no task is added or removed
// mid-run, and each task's slot is written by exactly one worker. Snapshot
// reads return clones so callers never observe a slot mid-write.
type DAG struct {
	mu         sync.RWMutex
	tasks      map[string]*Task    // All tasks indexed by ID
	dependents map[string][]string // Maps taskID -> list of tasks that depend on it
}

// NewDAG creates an empty DAG.
func NewDAG() *DAG {
	return &DAG{
		tasks:      make(map[string]*Task),
		dependents: make(map[string][]string),
	}
}

// AddTask adds a task to the DAG. Returns error if task ID already exists.
func (d *DAG) AddTask(task *Task) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if task.ID == "" {
		return fmt.Errorf("task has empty ID")
	}
	if _, exists := d.tasks[task.ID]; exists {
		return fmt.Errorf("task with ID %q already exists", task.ID)
	}

	d.tasks[task.ID] = task

	// Build dependents map for efficient downstream lookup
	for _, depID := range task.DependsOn {
		d.dependents[depID] = append(d.dependents[depID], task.ID)
	}

	return nil
}

// Validate checks referential integrity and runs a topological sort.
// Returns ordered task IDs, a *ConfigurationError for a dangling dependency,
// or a *CycleError when the dependency relation is not a DAG.
func (d *DAG) Validate() ([]string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	// First, verify all dependencies exist
	for taskID, task := range d.tasks {
		for _, depID := range task.DependsOn {
			if _, exists := d.tasks[depID]; !exists {
				return nil, &ConfigurationError{TaskID: taskID, DepID: depID}
			}
		}
	}

	// Build edges for topological sort
	var edges []toposort.Edge
	for taskID, task := range d.tasks {
		if len(task.DependsOn) == 0 {
			// Task with no dependencies - add edge from nil to ensure it's included
			edges = append(edges, toposort.Edge{nil, taskID})
		} else {
			for _, depID := range task.DependsOn {
				// Edge (depID, taskID) means depID must come before taskID
				edges = append(edges, toposort.Edge{depID, taskID})
			}
		}
	}

	sorted, err := toposort.Toposort(edges)
	if err != nil {
		return nil, &CycleError{PendingIDs: d.cycleParticipants()}
	}

	order := make([]string, 0, len(sorted))
	for _, id := range sorted {
		if id != nil {
			order = append(order, id.(string))
		}
	}

	return order, nil
}

// cycleParticipants prunes away every task whose dependencies can all be
// satisfied; whatever remains is part of a cycle or downstream of one.
// Caller must hold at least a read lock.
func (d *DAG) cycleParticipants() []string {
	satisfied := make(map[string]bool, len(d.tasks))
	for {
		progressed := false
		for id, task := range d.tasks {
			if satisfied[id] {
				continue
			}
			ok := true
			for _, depID := range task.DependsOn {
				if !satisfied[depID] {
					ok = false
					break
				}
			}
			if ok {
				satisfied[id] = true
				progressed = true
			}
		}
		if !progressed {
			break
		}
	}

	var stuck []string
	for id := range d.tasks {
		if !satisfied[id] {
			stuck = append(stuck, id)
		}
	}
	sort.Strings(stuck)
	return stuck
}

// Ready returns all PENDING tasks whose dependencies are ALL completed,
// sorted by ID. Recomputing without a status change yields the same set.
func (d *DAG) Ready() []*Task {
	d.mu.RLock()
	defer d.mu.RUnlock()

	ready := []*Task{}

	for _, task := range d.tasks {
		if task.Status != TaskPending {
			continue
		}

		allCompleted := true
		for _, depID := range task.DependsOn {
			dep, exists := d.tasks[depID]
			if !exists || dep.Status != TaskCompleted {
				allCompleted = false
				break
			}
		}

		if allCompleted {
			ready = append(ready, cloneTask(task))
		}
	}

	sort.Slice(ready, func(i, j int) bool { return ready[i].ID < ready[j].ID })
	return ready
}

// MarkInProgress transitions a PENDING task to IN_PROGRESS.
func (d *DAG) MarkInProgress(taskID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	task, exists := d.tasks[taskID]
	if !exists {
		return fmt.Errorf("task %q not found", taskID)
	}
	if task.Status != TaskPending {
		return fmt.Errorf("task %q cannot start from status %s", taskID, task.Status)
	}

	task.Status = TaskInProgress
	return nil
}

// MarkCompleted transitions an IN_PROGRESS task to COMPLETED and stores its
// result. The result is written exactly once and never mutated afterward.
func (d *DAG) MarkCompleted(taskID string, result string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	task, exists := d.tasks[taskID]
	if !exists {
		return fmt.Errorf("task %q not found", taskID)
	}
	if task.Status != TaskInProgress {
		return fmt.Errorf("task %q cannot complete from status %s", taskID, task.Status)
	}

	task.Status = TaskCompleted
	task.Result = result
	return nil
}

// MarkFailed transitions an IN_PROGRESS task to FAILED and stores the error.
// Failed tasks store no result.
func (d *DAG) MarkFailed(taskID string, err error) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	task, exists := d.tasks[taskID]
	if !exists {
		return fmt.Errorf("task %q not found", taskID)
	}
	if task.Status != TaskInProgress {
		return fmt.Errorf("task %q cannot fail from status %s", taskID, task.Status)
	}

	task.Status = TaskFailed
	task.Err = err
	return nil
}

// Get returns a snapshot of the task by ID.
func (d *DAG) Get(taskID string) (*Task, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	task, exists := d.tasks[taskID]
	if !exists {
		return nil, false
	}
	return cloneTask(task), true
}

// Tasks returns snapshots of all tasks.
func (d *DAG) Tasks() []*Task {
	d.mu.RLock()
	defer d.mu.RUnlock()

	tasks := make([]*Task, 0, len(d.tasks))
	for _, task := range d.tasks {
		tasks = append(tasks, cloneTask(task))
	}
	return tasks
}

// DependencyResults returns the resolved view of a task's dependencies:
// dependency ID -> result, for every dependency. By the readiness rule every
// dependency is COMPLETED before the task is dispatched, so an incomplete
// dependency here is a scheduling bug.
func (d *DAG) DependencyResults(taskID string) (map[string]string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	task, exists := d.tasks[taskID]
	if !exists {
		return nil, fmt.Errorf("task %q not found", taskID)
	}

	results := make(map[string]string, len(task.DependsOn))
	for _, depID := range task.DependsOn {
		dep, ok := d.tasks[depID]
		if !ok || dep.Status != TaskCompleted {
			return nil, fmt.Errorf("task %q has incomplete dependency %q", taskID, depID)
		}
		results[depID] = dep.Result
	}
	return results, nil
}

// Results returns the ID -> result mapping for all completed tasks.
func (d *DAG) Results() map[string]string {
	d.mu.RLock()
	defer d.mu.RUnlock()

	results := make(map[string]string, len(d.tasks))
	for id, task := range d.tasks {
		if task.Status == TaskCompleted {
			results[id] = task.Result
		}
	}
	return results
}

// PendingIDs returns the IDs of all tasks still PENDING, sorted.
func (d *DAG) PendingIDs() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var ids []string
	for id, task := range d.tasks {
		if task.Status == TaskPending {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// Failed returns snapshots of all failed tasks, sorted by ID.
func (d *DAG) Failed() []*Task {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var failed []*Task
	for _, task := range d.tasks {
		if task.Status == TaskFailed {
			failed = append(failed, cloneTask(task))
		}
	}
	sort.Slice(failed, func(i, j int) bool { return failed[i].ID < failed[j].ID })
	return failed
}

// Counts is a point-in-time status tally, used for progress reporting.
type Counts struct {
	Total      int
	Pending    int
	InProgress int
	Completed  int
	Failed     int
}

// StatusCounts tallies task statuses.
func (d *DAG) StatusCounts() Counts {
	d.mu.RLock()
	defer d.mu.RUnlock()

	c := Counts{Total: len(d.tasks)}
	for _, task := range d.tasks {
		switch task.Status {
		case TaskPending:
			c.Pending++
		case TaskInProgress:
			c.InProgress++
		case TaskCompleted:
			c.Completed++
		case TaskFailed:
			c.Failed++
		}
	}
	return c
}

func cloneTask(task *Task) *Task {
	if task == nil {
		return nil
	}

	cp := *task
	if task.DependsOn != nil {
		cp.DependsOn = append([]string(nil), task.DependsOn...)
	}
	return &cp
}
