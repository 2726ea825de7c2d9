package stream

import (
	"github.com/windlasshq/windlass-client-go/pkg/model"
)

// StartupMsg is the first message the client sends after connecting. It
// identifies the client and asks the control plane to replay a full census
// before streaming incremental updates.
type StartupMsg struct {
	ClientID string `json:"client_id"`
}

// EventMsg is one entry of the update stream. Exactly one payload field is
// set.
type EventMsg struct {
	Job      *JobUpdate  `json:"job,omitempty"`
	Task     *TaskUpdate `json:"task,omitempty"`
	SyncDone *SyncDone   `json:"sync_done,omitempty"`
}

// JobUpdate carries one job upsert or terminal-state removal.
type JobUpdate struct {
	Job model.Job `json:"job"`
}

// TaskUpdate carries one task upsert or terminal-state removal. Moved is set
// when the task changed jobs since its previous update; the task context then
// records the job it moved from.
type TaskUpdate struct {
	Task  model.Task `json:"task"`
	Moved bool       `json:"moved,omitempty"`
}

// SyncDone marks the end of the census replay. Everything before it belongs
// to the initial census; everything after is an incremental update.
type SyncDone struct{}
