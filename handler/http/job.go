package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"jobrunner/src/infrastructure/job"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

type SubmitJobRequest struct {
	TaskType string          `json:"task_type" binding:"required"`
	Payload  json.RawMessage `json:"payload"`
}

type ListJobsResponse struct {
	Jobs   []*job.Job `json:"jobs"`
	Limit  int        `json:"limit"`
	Offset int        `json:"offset"`
}

type StatsResponse struct {
	Counts map[job.JobStatus]int64 `json:"counts"`
	Total  int64                   `json:"total"`
}

// Common error response structure
type ErrorResponse struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

type JobHandler struct {
	jobService *job.JobService
}

func NewJobHandler(jobService *job.JobService) *JobHandler {
	return &JobHandler{
		jobService: jobService,
	}
}

// RegisterRoutes registers the job API routes
func (h *JobHandler) RegisterRoutes(r gin.IRouter) {
	r.POST("/jobs", h.SubmitJob)
	r.GET("/jobs", h.ListJobs)
	r.GET("/jobs/stats", h.GetStats)
	r.GET("/jobs/:id", h.GetJob)
	r.DELETE("/jobs/:id", h.DeleteJob)

	r.GET("/health", h.CheckHealth)
}

func (h *JobHandler) SubmitJob(c *gin.Context) {
	var req SubmitJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Code:    "VALIDATION_ERROR",
			Message: err.Error(),
		})
		return
	}

	created, err := h.jobService.Submit(c.Request.Context(), req.TaskType, req.Payload)
	if err != nil {
		sendError(c, err)
		return
	}

	sendJSON(c, http.StatusCreated, created)
}

func (h *JobHandler) GetJob(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	found, err := h.jobService.Get(c.Request.Context(), id)
	if err != nil {
		sendError(c, err)
		return
	}

	sendJSON(c, http.StatusOK, found)
}

func (h *JobHandler) ListJobs(c *gin.Context) {
	opts := job.ListOpts{
		Status: job.JobStatus(strings.ToUpper(c.Query("status"))),
		Limit:  defaultListLimit,
	}

	var err error
	if v := c.Query("limit"); v != "" {
		if opts.Limit, err = strconv.Atoi(v); err != nil {
			sendError(c, &job.ValidationError{Field: "limit", Reason: "must be an integer"})
			return
		}
	}
	if v := c.Query("offset"); v != "" {
		if opts.Offset, err = strconv.Atoi(v); err != nil {
			sendError(c, &job.ValidationError{Field: "offset", Reason: "must be an integer"})
			return
		}
	}
	switch {
	case opts.Limit == 0:
		opts.Limit = defaultListLimit
	case opts.Limit > maxListLimit:
		opts.Limit = maxListLimit
	}

	jobs, err := h.jobService.List(c.Request.Context(), opts)
	if err != nil {
		sendError(c, err)
		return
	}

	sendJSON(c, http.StatusOK, ListJobsResponse{
		Jobs:   jobs,
		Limit:  opts.Limit,
		Offset: opts.Offset,
	})
}

func (h *JobHandler) GetStats(c *gin.Context) {
	counts, err := h.jobService.Stats(c.Request.Context())
	if err != nil {
		sendError(c, err)
		return
	}

	resp := StatsResponse{Counts: make(map[job.JobStatus]int64, 4)}
	for _, s := range []job.JobStatus{job.JobStatusPending, job.JobStatusProcessing, job.JobStatusCompleted, job.JobStatusFailed} {
		resp.Counts[s] = counts[s]
		resp.Total += counts[s]
	}
	sendJSON(c, http.StatusOK, resp)
}

func (h *JobHandler) DeleteJob(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	if err := h.jobService.Delete(c.Request.Context(), id); err != nil {
		sendError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// CheckHealth reports whether the job store answers queries.
func (h *JobHandler) CheckHealth(c *gin.Context) {
	if _, err := h.jobService.Stats(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{
			Code:    "UNAVAILABLE",
			Message: err.Error(),
		})
		return
	}
	sendJSON(c, http.StatusOK, gin.H{"status": "ok"})
}

func parseID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		sendError(c, &job.ValidationError{Field: "id", Reason: "must be an integer"})
		return 0, false
	}
	return id, true
}

func sendError(c *gin.Context, err error) {
	var (
		status  int
		code    string
		details interface{}
		verr    *job.ValidationError
	)
	switch {
	case errors.As(err, &verr):
		code = "VALIDATION_ERROR"
		status = http.StatusBadRequest
		details = gin.H{"field": verr.Field}
	case errors.Is(err, job.ErrJobNotFound):
		code = "NOT_FOUND"
		status = http.StatusNotFound
	default:
		code = "INTERNAL_ERROR"
		status = http.StatusInternalServerError
	}

	c.JSON(status, ErrorResponse{
		Code:    code,
		Message: err.Error(),
		Details: details,
	})
}

func sendJSON(c *gin.Context, status int, data interface{}) {
	c.JSON(status, data)
}
