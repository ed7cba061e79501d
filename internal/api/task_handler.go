package api

import (
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/avolkov/taskhub-api/internal/api/shared"
	"github.com/avolkov/taskhub-api/internal/service"
	"github.com/avolkov/taskhub-api/internal/store"
)

// TaskHandler handles task management API requests.
type TaskHandler struct {
	tasks     *service.TaskService
	validator *validator.Validate
}

// NewTaskHandler creates a new TaskHandler.
func NewTaskHandler(tasks *service.TaskService) *TaskHandler {
	return &TaskHandler{
		tasks:     tasks,
		validator: validator.New(),
	}
}

// Create handles POST /tasks.
func (h *TaskHandler) Create(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}

	var req CreateTaskRequest
	if err := decodeJSON(r, &req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request format")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Validation error: "+err.Error())
		return
	}

	task, err := h.tasks.Create(r.Context(), user.ID, req.Title, req.Description, req.ParentID)
	if err != nil {
		RespondWithMappedError(w, r, err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusCreated, NewTaskResponse(task))
}

// List handles GET /tasks. Query parameters: offset, limit, parent_id,
// top_level ("true" selects only tasks without a parent).
func (h *TaskHandler) List(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}

	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	var filter store.TaskFilter
	if parentParam := r.URL.Query().Get("parent_id"); parentParam != "" {
		parentID, err := uuid.Parse(parentParam)
		if err != nil {
			shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid parent_id")
			return
		}
		filter.ParentID = &parentID
	}
	if r.URL.Query().Get("top_level") == "true" {
		filter.TopLevelOnly = true
	}

	page, err := h.tasks.List(r.Context(), user.ID, filter, offset, limit)
	if err != nil {
		RespondWithMappedError(w, r, err)
		return
	}

	resp := TaskListResponse{
		Tasks:  make([]TaskResponse, 0, len(page.Tasks)),
		Total:  page.Total,
		Offset: page.Offset,
		Limit:  page.Limit,
	}
	for _, task := range page.Tasks {
		resp.Tasks = append(resp.Tasks, NewTaskResponse(task))
	}

	shared.RespondWithJSON(w, r, http.StatusOK, resp)
}

// Get handles GET /tasks/{id}.
func (h *TaskHandler) Get(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}

	id, err := getPathUUID(r, "id")
	if err != nil {
		RespondWithMappedError(w, r, err)
		return
	}

	task, err := h.tasks.Get(r.Context(), user.ID, id)
	if err != nil {
		RespondWithMappedError(w, r, err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, NewTaskResponse(task))
}

// Update handles PATCH /tasks/{id}.
func (h *TaskHandler) Update(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}

	id, err := getPathUUID(r, "id")
	if err != nil {
		RespondWithMappedError(w, r, err)
		return
	}

	var req UpdateTaskRequest
	if err := decodeJSON(r, &req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request format")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Validation error: "+err.Error())
		return
	}

	task, err := h.tasks.Update(r.Context(), user.ID, id, service.TaskUpdate{
		Title:       req.Title,
		Description: req.Description,
	})
	if err != nil {
		RespondWithMappedError(w, r, err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, NewTaskResponse(task))
}

// SetCompleted handles PUT /tasks/{id}/completed.
func (h *TaskHandler) SetCompleted(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}

	id, err := getPathUUID(r, "id")
	if err != nil {
		RespondWithMappedError(w, r, err)
		return
	}

	var req SetCompletedRequest
	if err := decodeJSON(r, &req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request format")
		return
	}

	task, err := h.tasks.SetCompleted(r.Context(), user.ID, id, req.Completed)
	if err != nil {
		RespondWithMappedError(w, r, err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, NewTaskResponse(task))
}

// Delete handles DELETE /tasks/{id}.
func (h *TaskHandler) Delete(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}

	id, err := getPathUUID(r, "id")
	if err != nil {
		RespondWithMappedError(w, r, err)
		return
	}

	if err := h.tasks.Delete(r.Context(), user.ID, id); err != nil {
		RespondWithMappedError(w, r, err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusNoContent, nil)
}
