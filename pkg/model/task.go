package model

// TaskID is the unique ID of a task among all tasks.
type TaskID string

func (id TaskID) String() string {
	return string(id)
}

// TaskState is the lifecycle state of a task.
type TaskState string

const (
	// TaskStateLaunched denotes a task that was placed but whose container has
	// not been set up yet.
	TaskStateLaunched TaskState = "LAUNCHED"
	// TaskStateStartInitiated denotes a task whose container setup is underway.
	TaskStateStartInitiated TaskState = "START_INITIATED"
	// TaskStateStarted denotes a running task.
	TaskStateStarted TaskState = "STARTED"
	// TaskStateKillInitiated denotes a task being torn down.
	TaskStateKillInitiated TaskState = "KILL_INITIATED"
	// TaskStateFinished denotes a task that reached the end of its lifecycle.
	// It is terminal; a finished task is removed from the mirrored state.
	TaskStateFinished TaskState = "FINISHED"
)

// IsTerminal returns true if no further state transitions are possible.
func (s TaskState) IsTerminal() bool {
	return s == TaskStateFinished
}

// TaskAttributeMovedFromJob is the task context key under which the control
// plane records the previous owner when a task is relocated between jobs.
const TaskAttributeMovedFromJob = "task.movedFromJob"

// Task is one task as reported by the control plane. Beyond ID, JobID, State
// and Context the payload is opaque to the mirror.
type Task struct {
	ID      TaskID            `json:"id"`
	JobID   JobID             `json:"job_id"`
	State   TaskState         `json:"state"`
	Context map[string]string `json:"context,omitempty"`
	Version int64             `json:"version,omitempty"`
}

// MovedFromJob returns the job the task belonged to before its last
// relocation, if the control plane recorded one.
func (t *Task) MovedFromJob() (JobID, bool) {
	movedFrom, ok := t.Context[TaskAttributeMovedFromJob]
	return JobID(movedFrom), ok
}
