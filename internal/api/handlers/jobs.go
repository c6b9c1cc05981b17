package handlers

import (
	"net/http"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/mstetsenko/pouch/internal/api/middleware"
	"github.com/mstetsenko/pouch/internal/domain"
	"github.com/mstetsenko/pouch/internal/jobs"
)

// JobsHandler exposes the background task queue: inspecting past runs
// and kicking off maintenance work on demand.
type JobsHandler struct {
	tasks     jobs.TaskStore
	publisher jobs.Publisher
	log       zerolog.Logger
}

func NewJobsHandler(tasks jobs.TaskStore, publisher jobs.Publisher, log zerolog.Logger) *JobsHandler {
	return &JobsHandler{tasks: tasks, publisher: publisher, log: log}
}

// enqueueable are the kinds an operator may trigger by hand.
// Compensation tasks exist only as fallout of a failed transfer and are
// never enqueued directly.
var enqueueable = map[jobs.Kind]bool{
	jobs.KindRefreshBills:     true,
	jobs.KindExportProjection: true,
	jobs.KindArchiveSnapshot:  true,
	jobs.KindSyncNotion:       true,
}

// Get returns one task by id.
func (h *JobsHandler) Get(w http.ResponseWriter, r *http.Request, taskID string) {
	task, err := h.tasks.GetTask(r.Context(), taskID)
	if err != nil {
		middleware.WriteError(w, http.StatusNotFound, "Task not found")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, task)
}

// List returns recorded tasks, filterable with ?kind=&status=&limit=&offset=.
func (h *JobsHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := jobs.Filter{
		Kind:   jobs.Kind(q.Get("kind")),
		Status: jobs.Status(q.Get("status")),
	}
	if raw := q.Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			filter.Limit = n
		}
	}
	if raw := q.Get("offset"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			filter.Offset = n
		}
	}

	tasks, err := h.tasks.ListTasks(r.Context(), filter)
	if err != nil {
		h.log.Error().Err(err).Msg("failed to list tasks")
		middleware.WriteDomainError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"tasks": tasks,
		"count": len(tasks),
	})
}

type enqueueRequest struct {
	Kind string `json:"kind" validate:"required"`
}

// Enqueue publishes a maintenance task for the worker to pick up.
func (h *JobsHandler) Enqueue(w http.ResponseWriter, r *http.Request) {
	var req enqueueRequest
	if err := decode(r, &req); err != nil {
		middleware.WriteDomainError(w, err)
		return
	}

	kind := jobs.Kind(req.Kind)
	if !enqueueable[kind] {
		middleware.WriteDomainError(w, domain.Ef(domain.CodeInvalidInput, "kind %q cannot be enqueued", req.Kind))
		return
	}

	task, err := jobs.NewTask(kind, nil)
	if err != nil {
		middleware.WriteDomainError(w, err)
		return
	}
	if err := h.publisher.Publish(r.Context(), task); err != nil {
		h.log.Error().Err(err).Str("kind", req.Kind).Msg("failed to publish task")
		middleware.WriteDomainError(w, err)
		return
	}

	h.log.Info().Str("task_id", task.ID).Str("kind", req.Kind).Msg("task enqueued")
	middleware.WriteJSON(w, http.StatusAccepted, map[string]interface{}{
		"task_id": task.ID,
		"kind":    string(task.Kind),
		"status":  string(task.Status),
	})
}
