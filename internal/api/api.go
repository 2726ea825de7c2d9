// Package api exposes the mirrored job state over HTTP for local consumers.
package api

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/windlasshq/windlass-client-go/pkg/jobstate"
	"github.com/windlasshq/windlass-client-go/pkg/model"
)

// Source yields the current snapshot. Handlers grab one instance per request
// and answer entirely from it, so every response is internally consistent.
type Source interface {
	Current() *jobstate.Snapshot
}

type jobResponse struct {
	Job   *model.Job    `json:"job"`
	Tasks []*model.Task `json:"tasks"`
}

type summaryResponse struct {
	SnapshotID string `json:"snapshot_id"`
	Jobs       int    `json:"jobs"`
	Tasks      int    `json:"tasks"`
	Summary    string `json:"summary"`
}

type taskResponse struct {
	Task *model.Task `json:"task"`
	Job  *model.Job  `json:"job"`
}

// Service wires the state handlers into an echo instance.
type Service struct {
	source    Source
	lastEvent func() time.Time
}

// New returns a Service answering from the given source. lastEvent reports
// when the upstream feed was last heard from; nil disables staleness
// reporting.
func New(source Source, lastEvent func() time.Time) *Service {
	return &Service{source: source, lastEvent: lastEvent}
}

// Register installs all routes on e.
func (s *Service) Register(e *echo.Echo) {
	e.Use(middleware.Recover())

	e.GET("/api/v1/jobs", s.listJobs)
	e.GET("/api/v1/jobs/:job_id", s.getJob)
	e.GET("/api/v1/jobs/:job_id/tasks", s.getJobTasks)
	e.GET("/api/v1/tasks/:task_id", s.getTask)
	e.GET("/api/v1/summary", s.getSummary)

	e.GET("/debug/health", s.health)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
}

func (s *Service) listJobs(c echo.Context) error {
	snap := s.source.Current()
	out := make([]jobResponse, 0, snap.NumJobs())
	for _, jt := range snap.JobsAndTasks() {
		out = append(out, jobResponse{Job: jt.Job, Tasks: jt.Tasks})
	}
	return c.JSON(http.StatusOK, out)
}

func (s *Service) getJob(c echo.Context) error {
	snap := s.source.Current()
	id := model.JobID(c.Param("job_id"))
	job, ok := snap.Job(id)
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "job not found: "+id.String())
	}
	return c.JSON(http.StatusOK, jobResponse{Job: job, Tasks: snap.TasksOf(id)})
}

func (s *Service) getJobTasks(c echo.Context) error {
	snap := s.source.Current()
	id := model.JobID(c.Param("job_id"))
	if _, ok := snap.Job(id); !ok {
		return echo.NewHTTPError(http.StatusNotFound, "job not found: "+id.String())
	}
	return c.JSON(http.StatusOK, snap.TasksOf(id))
}

func (s *Service) getTask(c echo.Context) error {
	snap := s.source.Current()
	id := model.TaskID(c.Param("task_id"))
	job, task, ok := snap.TaskByID(id)
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "task not found: "+id.String())
	}
	return c.JSON(http.StatusOK, taskResponse{Task: task, Job: job})
}

func (s *Service) getSummary(c echo.Context) error {
	snap := s.source.Current()
	return c.JSON(http.StatusOK, summaryResponse{
		SnapshotID: snap.ID(),
		Jobs:       snap.NumJobs(),
		Tasks:      snap.NumTasks(),
		Summary:    snap.Summary(),
	})
}

type healthResponse struct {
	Status    string     `json:"status"`
	LastEvent *time.Time `json:"last_event,omitempty"`
}

func (s *Service) health(c echo.Context) error {
	resp := healthResponse{Status: "ok"}
	if s.lastEvent != nil {
		if at := s.lastEvent(); !at.IsZero() {
			resp.LastEvent = &at
		}
	}
	return c.JSON(http.StatusOK, resp)
}
