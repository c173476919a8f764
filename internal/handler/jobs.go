package handler

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v3"

	"github.com/arturoeanton/repolens/internal/domain"
	"github.com/arturoeanton/repolens/internal/port"
	"github.com/arturoeanton/repolens/internal/service"
)

// streamTimeout bounds one SSE connection.
const streamTimeout = 30 * time.Minute

// JobsHandler handles job status and result endpoints.
type JobsHandler struct {
	jobs    port.JobStore
	events  *service.Broadcaster
	reports *port.ReportEngine
}

// NewJobsHandler creates a new jobs handler.
func NewJobsHandler(jobs port.JobStore, events *service.Broadcaster, reports *port.ReportEngine) *JobsHandler {
	return &JobsHandler{jobs: jobs, events: events, reports: reports}
}

// Register sets up job routes.
func (h *JobsHandler) Register(router fiber.Router) {
	jobs := router.Group("/jobs")
	jobs.Get("/", h.List)
	jobs.Get("/:id", h.GetStatus)
	jobs.Get("/:id/stream", h.StreamSSE)
	jobs.Get("/:id/data", h.Data)
	jobs.Get("/:id/report", h.Report)
	jobs.Get("/:id/download", h.Download)
}

// List returns every job, newest first.
func (h *JobsHandler) List(c fiber.Ctx) error {
	jobs, err := h.jobs.ListJobs(c.Context())
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(jobs)
}

// GetStatus returns the current job status.
func (h *JobsHandler) GetStatus(c fiber.Ctx) error {
	job, err := h.jobs.GetJob(c.Context(), c.Params("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(job)
}

// Data returns the artifact of a completed job.
func (h *JobsHandler) Data(c fiber.Ctx) error {
	artifact, err := h.jobs.GetArtifact(c.Context(), c.Params("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(artifact)
}

// Report returns the Markdown report of a completed job.
func (h *JobsHandler) Report(c fiber.Ctx) error {
	id := c.Params("id")
	report, err := h.jobs.GetReport(c.Context(), id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(fiber.Map{"job_id": id, "content": report})
}

// Download exports a completed job as an attachment. type defaults to
// markdown.
func (h *JobsHandler) Download(c fiber.Ctx) error {
	id := c.Params("id")
	format := c.Query("type", "markdown")
	renderer, err := h.reports.Renderer(format)
	if err != nil {
		return writeError(c, port.NewValidationError(port.KindInvalid,
			fmt.Sprintf("unknown type %q, expected one of %v", format, h.reports.Formats()), "query", "type"))
	}

	artifact, err := h.jobs.GetArtifact(c.Context(), id)
	if err != nil {
		return writeError(c, err)
	}

	var buf bytes.Buffer
	if err := renderer.Render(&buf, artifact); err != nil {
		return writeError(c, err)
	}
	c.Attachment(fmt.Sprintf("repolens-%s-%s", id, service.ReportFileName(renderer)))
	c.Set(fiber.HeaderContentType, renderer.ContentType())
	return c.Send(buf.Bytes())
}

// StreamSSE streams job status changes as Server-Sent Events until the job
// reaches a terminal state.
func (h *JobsHandler) StreamSSE(c fiber.Ctx) error {
	id := c.Params("id")

	job, err := h.jobs.GetJob(c.Context(), id)
	if err != nil {
		return writeError(c, err)
	}

	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")

	// If already finished, just send the final status
	if job.Status.Terminal() {
		return c.SendString(formatEvent(*job))
	}

	ch := h.events.Subscribe(id)

	// The job may have finished between the read above and subscribing.
	if latest, err := h.jobs.GetJob(c.Context(), id); err == nil {
		job = latest
	}
	current := *job

	return c.SendStreamWriter(func(w *bufio.Writer) {
		defer h.events.Unsubscribe(id, ch)

		fmt.Fprint(w, formatEvent(current))
		if err := w.Flush(); err != nil || current.Status.Terminal() {
			return
		}

		timeout := time.After(streamTimeout)
		for {
			select {
			case update, ok := <-ch:
				if !ok {
					return
				}
				fmt.Fprint(w, formatEvent(update))
				if err := w.Flush(); err != nil {
					// client went away
					return
				}
				if update.Status.Terminal() {
					return
				}
			case <-timeout:
				slog.Warn("SSE timeout", "job_id", id)
				return
			}
		}
	})
}

// formatEvent renders one SSE frame named after the job status.
func formatEvent(job domain.Job) string {
	data, _ := json.Marshal(job)
	return fmt.Sprintf("event: %s\ndata: %s\n\n", job.Status, data)
}
