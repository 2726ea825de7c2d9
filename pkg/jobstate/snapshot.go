// Package jobstate maintains the client-side mirror of control plane job and
// task state as a lineage of immutable snapshots. A single writer folds the
// ordered update stream into new Snapshot instances; any number of readers may
// keep querying older instances without synchronization, since a snapshot is
// never modified after construction. Successive instances share structure, so
// deriving a snapshot per event does not copy the whole state.
package jobstate

import (
	"fmt"
	"strings"
	"sync"

	"github.com/benbjohnson/immutable"

	"github.com/windlasshq/windlass-client-go/pkg/model"
)

// Listener receives a human-readable diagnostic whenever an update does not
// agree with the structure of the current snapshot. It is invoked
// synchronously on the update path; panics raised by it are swallowed.
type Listener func(msg string)

// JobAndTasks pairs a job with its task sequence.
type JobAndTasks struct {
	Job   *model.Job
	Tasks []*model.Task
}

// Snapshot is an immutable view of all jobs and tasks known at one point in
// the control plane update stream. Three indices are kept in agreement: jobs
// by id, task sequences by owning job id (insertion ordered), and tasks by id
// (the flattened union of all sequences). Jobs and tasks in terminal states
// are removed rather than retained.
type Snapshot struct {
	id string

	jobsByID     *immutable.Map[string, *model.Job]
	tasksByJobID *immutable.Map[string, *immutable.List[*model.Task]]
	taskByID     *immutable.Map[string, *model.Task]

	autoFix  bool
	listener Listener

	signature string

	// Aggregate views are materialized at most once per instance, each under
	// its own cell so computing one never blocks readers of another.
	jobsOnce sync.Once
	jobs     []*model.Job

	tasksOnce sync.Once
	tasks     []*model.Task

	pairsOnce sync.Once
	pairs     []JobAndTasks
}

// Option configures a snapshot lineage at construction time. The setting is
// inherited by every snapshot derived from the configured one.
type Option func(*Snapshot)

// WithAutoFix selects between best-effort repair of detected inconsistencies
// (true) and failing the offending update (false, the default).
func WithAutoFix(autoFix bool) Option {
	return func(s *Snapshot) { s.autoFix = autoFix }
}

// WithListener installs the diagnostic sink for detected inconsistencies.
func WithListener(l Listener) Option {
	return func(s *Snapshot) { s.listener = l }
}

var emptySnapshot = func() *Snapshot {
	s, err := New("empty", nil, nil)
	if err != nil {
		panic(err)
	}
	return s
}()

// Empty returns the canonical empty snapshot.
func Empty() *Snapshot {
	return emptySnapshot
}

// New bulk-constructs a snapshot from a complete job/task census, as obtained
// at stream startup or resync. Tasks grouped under a job id that the census
// does not list as a job are reported through the inconsistency policy: in
// fail-fast mode New returns an error, otherwise the tasks are dropped.
func New(
	id string,
	jobs []*model.Job,
	tasksByJob map[model.JobID][]*model.Task,
	opts ...Option,
) (*Snapshot, error) {
	s := &Snapshot{id: id}
	for _, opt := range opts {
		opt(s)
	}

	jobsB := immutable.NewMapBuilder[string, *model.Job](nil)
	for _, job := range jobs {
		jobsB.Set(string(job.ID), job)
	}
	jobsByID := jobsB.Map()

	seqsB := immutable.NewMapBuilder[string, *immutable.List[*model.Task]](nil)
	tasksB := immutable.NewMapBuilder[string, *model.Task](nil)
	for _, job := range jobs {
		lb := immutable.NewListBuilder[*model.Task]()
		for _, task := range tasksByJob[job.ID] {
			lb.Append(task)
			tasksB.Set(string(task.ID), task)
		}
		seqsB.Set(string(job.ID), lb.List())
	}
	for jobID, tasks := range tasksByJob {
		if _, ok := jobsByID.Get(string(jobID)); ok {
			continue
		}
		if err := s.inconsistent("census lists %d task(s) for unknown job %s", len(tasks), jobID); err != nil {
			return nil, err
		}
	}

	s.jobsByID = jobsByID
	s.tasksByJobID = seqsB.Map()
	s.taskByID = tasksB.Map()
	s.signature = s.computeSignature()
	return s, nil
}

// derive produces the successor snapshot around the given indices, keeping the
// lineage's identity and inconsistency policy.
func (s *Snapshot) derive(
	jobsByID *immutable.Map[string, *model.Job],
	tasksByJobID *immutable.Map[string, *immutable.List[*model.Task]],
	taskByID *immutable.Map[string, *model.Task],
) *Snapshot {
	next := &Snapshot{
		id:           s.id,
		jobsByID:     jobsByID,
		tasksByJobID: tasksByJobID,
		taskByID:     taskByID,
		autoFix:      s.autoFix,
		listener:     s.listener,
	}
	next.signature = next.computeSignature()
	return next
}

// ID returns the identity of the snapshot lineage.
func (s *Snapshot) ID() string {
	return s.id
}

// NumJobs returns the number of jobs in the snapshot.
func (s *Snapshot) NumJobs() int {
	return s.jobsByID.Len()
}

// NumTasks returns the number of tasks in the snapshot.
func (s *Snapshot) NumTasks() int {
	return s.taskByID.Len()
}

// Jobs returns all jobs. The slice is computed on first access, cached for the
// lifetime of the instance and shared between callers; it must not be
// modified.
func (s *Snapshot) Jobs() []*model.Job {
	s.jobsOnce.Do(func() {
		jobs := make([]*model.Job, 0, s.jobsByID.Len())
		for it := s.jobsByID.Iterator(); !it.Done(); {
			_, job, _ := it.Next()
			jobs = append(jobs, job)
		}
		s.jobs = jobs
	})
	return s.jobs
}

// AllTasks returns all tasks across all jobs. Same caching discipline as
// Jobs; the returned slice must not be modified.
func (s *Snapshot) AllTasks() []*model.Task {
	s.tasksOnce.Do(func() {
		tasks := make([]*model.Task, 0, s.taskByID.Len())
		for it := s.taskByID.Iterator(); !it.Done(); {
			_, task, _ := it.Next()
			tasks = append(tasks, task)
		}
		s.tasks = tasks
	})
	return s.tasks
}

// JobsAndTasks returns every job paired with its task sequence. Same caching
// discipline as Jobs; the returned slice must not be modified.
func (s *Snapshot) JobsAndTasks() []JobAndTasks {
	s.pairsOnce.Do(func() {
		pairs := make([]JobAndTasks, 0, s.jobsByID.Len())
		for it := s.jobsByID.Iterator(); !it.Done(); {
			id, job, _ := it.Next()
			pair := JobAndTasks{Job: job}
			if seq, ok := s.tasksByJobID.Get(id); ok {
				pair.Tasks = materialize(seq)
			}
			pairs = append(pairs, pair)
		}
		s.pairs = pairs
	})
	return s.pairs
}

// Job looks up a job by id.
func (s *Snapshot) Job(id model.JobID) (*model.Job, bool) {
	job, ok := s.jobsByID.Get(string(id))
	return job, ok
}

// TaskByID looks up a task and its owning job by task id. A task indexed
// without its owning job cannot happen while the structural invariants hold;
// hitting it means the engine itself is defective, so it panics rather than
// masking the corruption.
func (s *Snapshot) TaskByID(id model.TaskID) (*model.Job, *model.Task, bool) {
	task, ok := s.taskByID.Get(string(id))
	if !ok {
		return nil, nil, false
	}
	job, ok := s.jobsByID.Get(string(task.JobID))
	if !ok {
		panic(fmt.Sprintf("job state corrupted: task %s indexed without its job %s", id, task.JobID))
	}
	return job, task, true
}

// TasksOf returns the task sequence of a job in insertion order, or an empty
// sequence if the job is unknown.
func (s *Snapshot) TasksOf(jobID model.JobID) []*model.Task {
	seq, ok := s.tasksByJobID.Get(string(jobID))
	if !ok {
		return nil
	}
	return materialize(seq)
}

// Summary returns a fixed-size description of the snapshot, cheap enough for
// per-event logging.
func (s *Snapshot) Summary() string {
	return s.signature
}

func (s *Snapshot) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Snapshot{id=%s, jobs=[", s.id)
	first := true
	for it := s.jobsByID.Iterator(); !it.Done(); {
		id, _, _ := it.Next()
		if !first {
			sb.WriteString(", ")
		}
		first = false
		count := 0
		if seq, ok := s.tasksByJobID.Get(id); ok {
			count = seq.Len()
		}
		fmt.Fprintf(&sb, "%s=%d", id, count)
	}
	sb.WriteString("]}")
	return sb.String()
}

func (s *Snapshot) computeSignature() string {
	return fmt.Sprintf("Snapshot{id=%s, jobs=%d, tasks=%d}", s.id, s.jobsByID.Len(), s.taskByID.Len())
}

func materialize(seq *immutable.List[*model.Task]) []*model.Task {
	tasks := make([]*model.Task, 0, seq.Len())
	for it := seq.Iterator(); !it.Done(); {
		_, task := it.Next()
		tasks = append(tasks, task)
	}
	return tasks
}
