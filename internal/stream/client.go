// Package stream subscribes to the control plane's job state feed and hands
// the decoded updates, strictly in arrival order, to a sink.
package stream

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/windlasshq/windlass-client-go/pkg/jobstate"
	"github.com/windlasshq/windlass-client-go/pkg/model"
)

const (
	handshakeTimeout = 10 * time.Second
	backoffInitial   = time.Second
	backoffMax       = time.Minute
)

// Sink consumes the decoded update stream. All calls are made from a single
// goroutine, in the order the control plane emitted the events.
type Sink interface {
	Bootstrap(jobs []*model.Job, tasks []*model.Task) error
	ApplyJob(job *model.Job) error
	ApplyTask(task *model.Task, moved bool) error
}

// Client maintains the websocket subscription to the update stream. It
// reconnects with exponential backoff and replays a fresh census into the
// sink after every (re)connect, so a dropped connection can never leave the
// sink behind silently.
type Client struct {
	log   *logrus.Entry
	url   string
	id    string
	sink  Sink
	clock clockwork.Clock

	mu        sync.Mutex
	lastEvent time.Time
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithClock substitutes the clock used for staleness tracking and reconnect
// sleeps.
func WithClock(clock clockwork.Clock) ClientOption {
	return func(c *Client) { c.clock = clock }
}

// NewClient returns a client for the given websocket URL. Nothing is dialed
// until Run.
func NewClient(url, clientID string, sink Sink, opts ...ClientOption) *Client {
	c := &Client{
		log:   logrus.WithField("component", "state-stream"),
		url:   url,
		id:    clientID,
		sink:  sink,
		clock: clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// LastEvent returns the time the last stream message was observed, or the
// zero time before any message arrived.
func (c *Client) LastEvent() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastEvent
}

// Run services the subscription until ctx is canceled. Connection failures
// are retried with backoff; inconsistent state surfaced by a fail-fast sink
// is fatal and returned to the caller.
func (c *Client) Run(ctx context.Context) error {
	bf := backoff.NewExponentialBackOff()
	bf.InitialInterval = backoffInitial
	bf.MaxInterval = backoffMax
	bf.MaxElapsedTime = 0

	for {
		synced, err := c.runOnce(ctx)
		switch {
		case ctx.Err() != nil:
			return ctx.Err()
		case errors.Is(err, jobstate.ErrInconsistentState):
			return err
		case err != nil:
			c.log.WithError(err).Warn("update stream broken, reconnecting")
		}
		if synced {
			bf.Reset()
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.clock.After(bf.NextBackOff()):
		}
	}
}

// runOnce dials, syncs a census and consumes updates until the connection or
// the context ends. It reports whether a census was successfully folded.
func (c *Client) runOnce(ctx context.Context) (bool, error) {
	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return false, errors.Wrapf(err, "connecting to %s", c.url)
	}
	defer func() {
		if err := conn.Close(); err != nil {
			c.log.WithError(err).Debug("closing stream connection")
		}
	}()

	// Unblock the read loop when the context ends.
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-stop:
		}
	}()

	if err := conn.WriteJSON(StartupMsg{ClientID: c.id}); err != nil {
		return false, errors.Wrap(err, "sending startup message")
	}
	c.log.WithField("url", c.url).Info("subscribed to update stream")

	synced := false
	var jobs []*model.Job
	var tasks []*model.Task
	for {
		var msg EventMsg
		if err := conn.ReadJSON(&msg); err != nil {
			return synced, errors.Wrap(err, "reading update stream")
		}
		c.observe()

		switch {
		case msg.SyncDone != nil:
			if synced {
				continue
			}
			if err := c.sink.Bootstrap(jobs, tasks); err != nil {
				return false, errors.Wrap(err, "folding census")
			}
			jobs, tasks = nil, nil
			synced = true
		case msg.Job != nil:
			if !synced {
				jobs = append(jobs, &msg.Job.Job)
				continue
			}
			if err := c.sink.ApplyJob(&msg.Job.Job); err != nil {
				return synced, errors.Wrap(err, "folding job update")
			}
		case msg.Task != nil:
			if !synced {
				tasks = append(tasks, &msg.Task.Task)
				continue
			}
			if err := c.sink.ApplyTask(&msg.Task.Task, msg.Task.Moved); err != nil {
				return synced, errors.Wrap(err, "folding task update")
			}
		default:
			c.log.Warn("ignoring stream message with no payload")
		}
	}
}

func (c *Client) observe() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastEvent = c.clock.Now()
}
