package scheduler

import (
	"errors"
	"net/http"

	"github.com/hyvewellness/tenantgate/server"
)

type JobListResponse struct {
	Jobs []*JobMetadata `json:"jobs"`
}

type JobTriggerResponse struct {
	JobID   string `json:"jobId"`
	Trigger string `json:"trigger"`
}

type EmptyRequest struct{}

type JobIDParam struct {
	JobID string `param:"jobId" validate:"required"`
}

// RegisterRoutes mounts GET /jobs and POST /jobs/:jobId on r. Callers mount r behind
// the admin access middleware.
func (s *Scheduler) RegisterRoutes(hr *server.HandlerRegistry, r server.Router) {
	server.GET(hr, r, "/jobs", s.listJobs)
	server.POST(hr, r, "/jobs/:jobId", s.triggerJob)
}

func (s *Scheduler) listJobs(_ EmptyRequest, _ server.HandlerContext) (JobListResponse, server.IAPIError) {
	return JobListResponse{Jobs: s.Jobs()}, nil
}

func (s *Scheduler) triggerJob(req JobIDParam, _ server.HandlerContext) (server.Result[JobTriggerResponse], server.IAPIError) {
	err := s.Trigger(req.JobID)
	switch {
	case errors.Is(err, ErrJobNotFound):
		return server.Result[JobTriggerResponse]{}, server.NewNotFoundError("job").WithDetails("job_id", req.JobID)
	case errors.Is(err, ErrShuttingDown):
		return server.Result[JobTriggerResponse]{}, server.NewServiceUnavailableError("Scheduler is shutting down")
	case err != nil:
		return server.Result[JobTriggerResponse]{}, server.NewInternalServerError("Internal server error")
	}

	return server.Result[JobTriggerResponse]{
		Status: http.StatusAccepted,
		Data:   JobTriggerResponse{JobID: req.JobID, Trigger: TriggerManual},
	}, nil
}
