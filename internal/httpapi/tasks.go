package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/avitale/donna/internal/tasks"
)

type createTaskRequest struct {
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Priority    string     `json:"priority"`
	DueDate     *time.Time `json:"due_date"`
}

type updateTaskRequest struct {
	Title       *string    `json:"title"`
	Description *string    `json:"description"`
	Priority    *string    `json:"priority"`
	Status      *string    `json:"status"`
	DueDate     *time.Time `json:"due_date"`
}

type listTasksResponse struct {
	Tasks []tasks.Task `json:"tasks"`
	Count int          `json:"count"`
}

func (s *Server) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	var req createTaskRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	task, err := s.store.Create(r.Context(), ownerFromRequest(r), tasks.Fields{
		Title:       req.Title,
		Description: req.Description,
		Priority:    tasks.Priority(req.Priority),
		DueDate:     req.DueDate,
		Source:      tasks.SourceManual,
	})
	if err != nil {
		if errors.Is(err, tasks.ErrTitleRequired) {
			respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
			return
		}
		respondError(w, http.StatusInternalServerError, "task_create_failed", err.Error())
		return
	}
	respondJSON(w, http.StatusCreated, task)
}

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	filter := tasks.Filter{
		Status:   tasks.Status(strings.TrimSpace(r.URL.Query().Get("status"))),
		Priority: tasks.Priority(strings.TrimSpace(r.URL.Query().Get("priority"))),
	}
	limit := 0
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			respondError(w, http.StatusBadRequest, "invalid_request", "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	found, err := s.store.Find(r.Context(), ownerFromRequest(r), filter, limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "task_list_failed", err.Error())
		return
	}
	if found == nil {
		found = []tasks.Task{}
	}
	respondJSON(w, http.StatusOK, listTasksResponse{Tasks: found, Count: len(found)})
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	if id == "" {
		respondError(w, http.StatusBadRequest, "invalid_task_id", "missing task id")
		return
	}
	task, err := s.store.Get(r.Context(), ownerFromRequest(r), id)
	if err != nil {
		s.respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, task)
}

func (s *Server) handleUpdateTask(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	if id == "" {
		respondError(w, http.StatusBadRequest, "invalid_task_id", "missing task id")
		return
	}
	var req updateTaskRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	var patch tasks.Patch
	patch.Title = req.Title
	patch.Description = req.Description
	if req.Priority != nil {
		p := tasks.Priority(*req.Priority)
		patch.Priority = &p
	}
	if req.Status != nil {
		st := tasks.Status(*req.Status)
		patch.Status = &st
	}
	patch.DueDate = req.DueDate
	if patch.Empty() {
		respondError(w, http.StatusBadRequest, "invalid_request", "no fields to update")
		return
	}

	task, err := s.store.Update(r.Context(), ownerFromRequest(r), id, patch)
	if err != nil {
		s.respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, task)
}

func (s *Server) handleCompleteTask(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	if id == "" {
		respondError(w, http.StatusBadRequest, "invalid_task_id", "missing task id")
		return
	}
	task, err := s.store.Complete(r.Context(), ownerFromRequest(r), id)
	if err != nil {
		s.respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, task)
}

func (s *Server) handleDeleteTask(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	if id == "" {
		respondError(w, http.StatusBadRequest, "invalid_task_id", "missing task id")
		return
	}
	if err := s.store.Delete(r.Context(), ownerFromRequest(r), id); err != nil {
		s.respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"deleted": true, "id": id})
}

func (s *Server) respondStoreError(w http.ResponseWriter, err error) {
	if errors.Is(err, tasks.ErrNotFound) {
		respondError(w, http.StatusNotFound, "task_not_found", "task not found")
		return
	}
	if errors.Is(err, tasks.ErrTitleRequired) {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	respondError(w, http.StatusInternalServerError, "task_store_failed", err.Error())
}
