// Package mirror maintains the locally queryable copy of control plane job
// and task state. It owns the current snapshot and folds the ordered update
// stream into new snapshot versions, publishing each one atomically so that
// readers never block and never observe a partial update.
package mirror

import (
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/windlasshq/windlass-client-go/pkg/jobstate"
	"github.com/windlasshq/windlass-client-go/pkg/model"
)

// Mirror is the single-writer holder of the current snapshot. Exactly one
// goroutine may call Bootstrap, ApplyJob and ApplyTask; Current may be called
// from any number of goroutines at any time.
type Mirror struct {
	log     *logrus.Entry
	autoFix bool
	current atomic.Pointer[jobstate.Snapshot]
}

// New returns a mirror seeded with an empty snapshot. autoFix selects the
// inconsistency policy for the whole snapshot lineage: repair and continue, or
// surface errors and leave state untouched.
func New(autoFix bool) *Mirror {
	m := &Mirror{
		log:     logrus.WithField("component", "job-mirror"),
		autoFix: autoFix,
	}
	snap, err := jobstate.New(newSnapshotID(), nil, nil, m.snapshotOptions()...)
	if err != nil {
		// An empty census has nothing to be inconsistent about.
		panic(err)
	}
	m.current.Store(snap)
	return m
}

// Current returns the latest published snapshot. The returned snapshot stays
// valid and stable indefinitely; it just stops being current.
func (m *Mirror) Current() *jobstate.Snapshot {
	return m.current.Load()
}

// Bootstrap replaces the mirrored state with a complete census, as delivered
// at stream startup or after a reconnect. Tasks referencing unknown jobs fail
// the bootstrap in fail-fast mode and are dropped with diagnostics otherwise.
func (m *Mirror) Bootstrap(jobs []*model.Job, tasks []*model.Task) error {
	known := make(map[model.JobID]bool, len(jobs))
	for _, job := range jobs {
		known[job.ID] = true
	}

	var merr *multierror.Error
	tasksByJob := make(map[model.JobID][]*model.Task)
	for _, task := range tasks {
		if !known[task.JobID] {
			merr = multierror.Append(merr,
				errors.Errorf("census task %s references unknown job %s", task.ID, task.JobID))
			continue
		}
		tasksByJob[task.JobID] = append(tasksByJob[task.JobID], task)
	}
	if err := merr.ErrorOrNil(); err != nil {
		if !m.autoFix {
			return errors.Wrap(err, "rejecting census")
		}
		inconsistencies.Add(float64(len(merr.Errors)))
		m.log.WithError(err).Warn("dropping census tasks that fail referential checks")
	}

	snap, err := jobstate.New(newSnapshotID(), jobs, tasksByJob, m.snapshotOptions()...)
	if err != nil {
		return err
	}
	m.publish(snap)
	resyncs.Inc()
	m.log.WithField("snapshot", snap.Summary()).Info("bootstrapped job state from census")
	return nil
}

// ApplyJob folds one job-level change into the mirrored state.
func (m *Mirror) ApplyJob(job *model.Job) error {
	next, err := m.Current().UpdateJob(job)
	return m.account("job", next, err)
}

// ApplyTask folds one task-level change into the mirrored state.
func (m *Mirror) ApplyTask(task *model.Task, moved bool) error {
	next, err := m.Current().UpdateTask(task, moved)
	return m.account("task", next, err)
}

func (m *Mirror) account(kind string, next *jobstate.Snapshot, err error) error {
	switch {
	case err != nil:
		eventsFolded.WithLabelValues(kind, "inconsistent").Inc()
		return err
	case next == nil:
		eventsFolded.WithLabelValues(kind, "noop").Inc()
		return nil
	default:
		m.publish(next)
		eventsFolded.WithLabelValues(kind, "applied").Inc()
		m.log.WithField("snapshot", next.Summary()).Debugf("applied %s update", kind)
		return nil
	}
}

func (m *Mirror) publish(snap *jobstate.Snapshot) {
	m.current.Store(snap)
	jobsMirrored.Set(float64(snap.NumJobs()))
	tasksMirrored.Set(float64(snap.NumTasks()))
}

func (m *Mirror) snapshotOptions() []jobstate.Option {
	return []jobstate.Option{
		jobstate.WithAutoFix(m.autoFix),
		jobstate.WithListener(m.onInconsistency),
	}
}

func (m *Mirror) onInconsistency(msg string) {
	inconsistencies.Inc()
	m.log.WithField("snapshot", m.Current().Summary()).Warnf("inconsistent update: %s", msg)
}

func newSnapshotID() string {
	return uuid.New().String()
}
