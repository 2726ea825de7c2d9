package jobstate

import (
	"fmt"

	"github.com/benbjohnson/immutable"
	"github.com/pkg/errors"

	"github.com/windlasshq/windlass-client-go/pkg/model"
)

// ErrInconsistentState marks an update that does not agree with the structure
// of the current snapshot. It is only returned while fail-fast handling is
// selected; with auto-fix the engine repairs what it can and reports the rest
// through the listener.
var ErrInconsistentState = errors.New("job state inconsistency")

// UpdateJob folds one job-level change and returns the resulting snapshot. A
// nil snapshot with a nil error means the change was redundant and no new
// state was produced. A terminal job is removed together with all of its
// tasks; no per-task events are required.
//
// Callers must serialize their calls into UpdateJob and UpdateTask; the
// engine is single-writer by contract.
func (s *Snapshot) UpdateJob(job *model.Job) (*Snapshot, error) {
	_, known := s.jobsByID.Get(string(job.ID))
	switch {
	case !known && job.State.IsTerminal():
		// A late terminal event for a job that is already gone.
		return nil, nil
	case job.State.IsTerminal():
		return s.removeJob(job), nil
	case !known:
		return s.addJob(job), nil
	default:
		return s.replaceJob(job), nil
	}
}

// UpdateTask folds one task-level change and returns the resulting snapshot.
// A nil snapshot with a nil error means no new state was produced, either
// because the change was redundant or because it was inconsistent and
// auto-fix absorbed it. moved indicates the task changed jobs since its last
// update; its previous owner is then read from the task context.
func (s *Snapshot) UpdateTask(task *model.Task, moved bool) (*Snapshot, error) {
	if _, ok := s.jobsByID.Get(string(task.JobID)); !ok {
		// A task is never indexed against a job that does not exist.
		if err := s.inconsistent("job %s not found for task %s", task.JobID, task.ID); err != nil {
			return nil, err
		}
		return nil, nil
	}

	_, known := s.taskByID.Get(string(task.ID))
	switch {
	case !known && task.State.IsTerminal():
		return nil, nil
	case task.State.IsTerminal():
		return s.removeTask(task, moved)
	case !known:
		return s.addTask(task), nil
	case moved:
		return s.relocateTask(task)
	default:
		return s.replaceTask(task)
	}
}

func (s *Snapshot) addJob(job *model.Job) *Snapshot {
	return s.derive(
		s.jobsByID.Set(string(job.ID), job),
		s.tasksByJobID.Set(string(job.ID), immutable.NewList[*model.Task]()),
		s.taskByID,
	)
}

func (s *Snapshot) replaceJob(job *model.Job) *Snapshot {
	return s.derive(
		s.jobsByID.Set(string(job.ID), job),
		s.tasksByJobID,
		s.taskByID,
	)
}

func (s *Snapshot) removeJob(job *model.Job) *Snapshot {
	taskByID := s.taskByID
	if seq, ok := s.tasksByJobID.Get(string(job.ID)); ok {
		for it := seq.Iterator(); !it.Done(); {
			_, task := it.Next()
			taskByID = taskByID.Delete(string(task.ID))
		}
	}
	return s.derive(
		s.jobsByID.Delete(string(job.ID)),
		s.tasksByJobID.Delete(string(job.ID)),
		taskByID,
	)
}

func (s *Snapshot) addTask(task *model.Task) *Snapshot {
	jobID := string(task.JobID)
	seq, ok := s.tasksByJobID.Get(jobID)
	if !ok {
		seq = immutable.NewList[*model.Task]()
	}
	return s.derive(
		s.jobsByID,
		s.tasksByJobID.Set(jobID, seq.Append(task)),
		s.taskByID.Set(string(task.ID), task),
	)
}

// replaceTask substitutes the new task value at its current position in the
// owning job's sequence, preserving order. A task indexed in taskByID but
// missing from its job's sequence is a corruption; with auto-fix it is
// appended instead.
func (s *Snapshot) replaceTask(task *model.Task) (*Snapshot, error) {
	jobID := string(task.JobID)
	seq, ok := s.tasksByJobID.Get(jobID)
	switch {
	case !ok:
		if err := s.inconsistent("replacement of task %s requested, but job %s has no task list", task.ID, task.JobID); err != nil {
			return nil, err
		}
		seq = immutable.NewList[*model.Task]().Append(task)
	default:
		if idx := indexOf(seq, task.ID); idx >= 0 {
			seq = seq.Set(idx, task)
		} else {
			if err := s.inconsistent("replacement of task %s requested, but job %s does not list it", task.ID, task.JobID); err != nil {
				return nil, err
			}
			seq = seq.Append(task)
		}
	}
	return s.derive(
		s.jobsByID,
		s.tasksByJobID.Set(jobID, seq),
		s.taskByID.Set(string(task.ID), task),
	), nil
}

// relocateTask moves a known task to its new job as one combined transition:
// readers can never observe the removal without the re-insertion.
func (s *Snapshot) relocateTask(task *model.Task) (*Snapshot, error) {
	removed, err := s.removeTask(task, true)
	if err != nil {
		return nil, err
	}
	if removed == nil {
		// Missing relocation provenance, already reported.
		return nil, nil
	}
	return removed.addTask(task), nil
}

// removeTask deletes the task from taskByID and from its owner's sequence,
// preserving the order of the remaining tasks. When moved is set the task's
// JobID already points at its new job, so the sequence to update is read from
// the moved-from context attribute instead.
func (s *Snapshot) removeTask(task *model.Task, moved bool) (*Snapshot, error) {
	owner := task.JobID
	if moved {
		movedFrom, ok := task.MovedFromJob()
		if !ok {
			if err := s.inconsistent("moved task %s has no record of its original job", task.ID); err != nil {
				return nil, err
			}
			return nil, nil
		}
		owner = movedFrom
	}

	taskByID := s.taskByID.Delete(string(task.ID))

	seq, ok := s.tasksByJobID.Get(string(owner))
	if !ok {
		if err := s.inconsistent("removal of task %s requested, but job %s has no task list", task.ID, owner); err != nil {
			return nil, err
		}
		// The sequence is already gone; dropping the id index is all that is
		// left to do.
		return s.derive(s.jobsByID, s.tasksByJobID, taskByID), nil
	}

	newSeq, found := without(seq, task.ID)
	if !found {
		if err := s.inconsistent("removal of task %s requested, but job %s does not list it", task.ID, owner); err != nil {
			return nil, err
		}
	}
	return s.derive(
		s.jobsByID,
		s.tasksByJobID.Set(string(owner), newSeq),
		taskByID,
	), nil
}

// inconsistent reports a structural inconsistency through the listener and,
// in fail-fast mode, turns it into an error that aborts the current update.
func (s *Snapshot) inconsistent(format string, args ...interface{}) error {
	msg := fmt.Sprintf(format, args...)
	s.notify(msg)
	if s.autoFix {
		return nil
	}
	return errors.Wrap(ErrInconsistentState, msg)
}

// notify delivers msg to the listener. A broken diagnostic path must never
// take down state processing, so panics are swallowed.
func (s *Snapshot) notify(msg string) {
	if s.listener == nil {
		return
	}
	defer func() {
		_ = recover()
	}()
	s.listener(msg)
}

func indexOf(seq *immutable.List[*model.Task], id model.TaskID) int {
	for it := seq.Iterator(); !it.Done(); {
		idx, task := it.Next()
		if task.ID == id {
			return idx
		}
	}
	return -1
}

// without returns seq with the identified task removed, and whether it was
// present. The original seq is returned unchanged when it was not.
func without(seq *immutable.List[*model.Task], id model.TaskID) (*immutable.List[*model.Task], bool) {
	idx := indexOf(seq, id)
	if idx < 0 {
		return seq, false
	}
	lb := immutable.NewListBuilder[*model.Task]()
	for it := seq.Iterator(); !it.Done(); {
		i, task := it.Next()
		if i == idx {
			continue
		}
		lb.Append(task)
	}
	return lb.List(), true
}
