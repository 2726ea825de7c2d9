package stream

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/windlasshq/windlass-client-go/pkg/jobstate"
	"github.com/windlasshq/windlass-client-go/pkg/model"
)

type recordingSink struct {
	mu        sync.Mutex
	censusErr error
	applyErr  error

	bootJobs  []*model.Job
	bootTasks []*model.Task
	jobs      []*model.Job
	tasks     []*model.Task
	syncs     int
}

func (s *recordingSink) Bootstrap(jobs []*model.Job, tasks []*model.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.censusErr != nil {
		return s.censusErr
	}
	s.bootJobs = jobs
	s.bootTasks = tasks
	s.syncs++
	return nil
}

func (s *recordingSink) ApplyJob(job *model.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.applyErr != nil {
		return s.applyErr
	}
	s.jobs = append(s.jobs, job)
	return nil
}

func (s *recordingSink) ApplyTask(task *model.Task, moved bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.applyErr != nil {
		return s.applyErr
	}
	s.tasks = append(s.tasks, task)
	return nil
}

func (s *recordingSink) snapshot() (int, int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.syncs, len(s.jobs), len(s.tasks)
}

// feedServer replays the given script to every client that connects, after
// consuming its startup message, then holds the connection open.
func feedServer(t *testing.T, script []EventMsg) *httptest.Server {
	upgrader := websocket.Upgrader{}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer func() { _ = conn.Close() }()

		var startup StartupMsg
		if err := conn.ReadJSON(&startup); err != nil {
			t.Errorf("reading startup message: %v", err)
			return
		}
		for _, msg := range script {
			if err := conn.WriteJSON(msg); err != nil {
				return
			}
		}
		// Hold the connection until the client goes away.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
}

func wsURL(s *httptest.Server) string {
	return "ws" + strings.TrimPrefix(s.URL, "http")
}

func streamScript() []EventMsg {
	return []EventMsg{
		{Job: &JobUpdate{Job: model.Job{ID: "j1", State: model.JobStateAccepted}}},
		{Task: &TaskUpdate{Task: model.Task{ID: "t1", JobID: "j1", State: model.TaskStateLaunched}}},
		{SyncDone: &SyncDone{}},
		{Job: &JobUpdate{Job: model.Job{ID: "j2", State: model.JobStateAccepted}}},
		{Task: &TaskUpdate{Task: model.Task{ID: "t2", JobID: "j2", State: model.TaskStateStarted}}},
	}
}

func TestClientSyncsCensusThenFoldsUpdates(t *testing.T) {
	srv := feedServer(t, streamScript())
	defer srv.Close()

	sink := &recordingSink{}
	client := NewClient(wsURL(srv), "test-client", sink)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- client.Run(ctx) }()

	require.Eventually(t, func() bool {
		syncs, jobs, tasks := sink.snapshot()
		return syncs == 1 && jobs == 1 && tasks == 1
	}, 5*time.Second, 10*time.Millisecond)

	require.Len(t, sink.bootJobs, 1)
	require.Equal(t, model.JobID("j1"), sink.bootJobs[0].ID)
	require.Len(t, sink.bootTasks, 1)
	require.Equal(t, model.JobID("j2"), sink.jobs[0].ID)
	require.Equal(t, model.TaskID("t2"), sink.tasks[0].ID)

	cancel()
	require.ErrorIs(t, <-done, context.Canceled)
}

func TestClientStopsOnInconsistentState(t *testing.T) {
	srv := feedServer(t, streamScript())
	defer srv.Close()

	sink := &recordingSink{
		applyErr: errors.Wrap(jobstate.ErrInconsistentState, "t2 for unknown job"),
	}
	client := NewClient(wsURL(srv), "test-client", sink)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := client.Run(ctx)
	require.ErrorIs(t, err, jobstate.ErrInconsistentState)
}

func TestClientReconnectsAfterCensusFailure(t *testing.T) {
	srv := feedServer(t, streamScript())
	defer srv.Close()

	sink := &recordingSink{censusErr: errors.New("transient")}
	clock := clockwork.NewFakeClock()
	client := NewClient(wsURL(srv), "test-client", sink, WithClock(clock))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- client.Run(ctx) }()

	// The first attempt fails at the census and the client parks on its
	// backoff sleep. Heal the sink and release the sleep.
	clock.BlockUntil(1)
	sink.mu.Lock()
	sink.censusErr = nil
	sink.mu.Unlock()
	clock.Advance(backoffMax)

	require.Eventually(t, func() bool {
		syncs, _, _ := sink.snapshot()
		return syncs == 1
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	<-done
}

func TestLastEventTracksStreamActivity(t *testing.T) {
	srv := feedServer(t, streamScript())
	defer srv.Close()

	sink := &recordingSink{}
	client := NewClient(wsURL(srv), "test-client", sink)
	require.True(t, client.LastEvent().IsZero())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = client.Run(ctx) }()

	require.Eventually(t, func() bool {
		return !client.LastEvent().IsZero()
	}, 5*time.Second, 10*time.Millisecond)
}
