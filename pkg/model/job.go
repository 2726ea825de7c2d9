package model

// JobID is the unique ID of a job among all jobs.
type JobID string

func (id JobID) String() string {
	return string(id)
}

// JobState is the lifecycle state of a job.
type JobState string

const (
	// JobStateAccepted denotes a job that the control plane has accepted and is
	// scheduling tasks for.
	JobStateAccepted JobState = "ACCEPTED"
	// JobStateKillInitiated denotes a job whose termination was requested but
	// whose tasks are still winding down.
	JobStateKillInitiated JobState = "KILL_INITIATED"
	// JobStateFinished denotes a job that reached the end of its lifecycle. It
	// is terminal; a finished job is removed from the mirrored state rather
	// than retained.
	JobStateFinished JobState = "FINISHED"
)

// IsTerminal returns true if no further state transitions are possible.
func (s JobState) IsTerminal() bool {
	return s == JobStateFinished
}

// Job is one job as reported by the control plane. The mirror treats
// everything beyond ID and State as an opaque payload: jobs are stored and
// replaced whole, never modified in place.
type Job struct {
	ID         JobID             `json:"id"`
	State      JobState          `json:"state"`
	Name       string            `json:"name,omitempty"`
	Attributes map[string]string `json:"attributes,omitempty"`
	Version    int64             `json:"version,omitempty"`
}
