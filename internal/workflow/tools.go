package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/avitale/donna/internal/brain"
	"github.com/avitale/donna/internal/match"
	"github.com/avitale/donna/internal/tasks"
)

const (
	toolCreateTask   = "create_task"
	toolValidateTask = "validate_task"
	toolUpdateTask   = "update_task"
	toolCompleteTask = "complete_task"
	toolDeleteTask   = "delete_task"
	toolSearchTasks  = "search_tasks"
	toolListTasks    = "list_tasks"
)

// toolArgs is the union of every tool's arguments; each tool reads only the
// fields it cares about.
type toolArgs struct {
	TaskID      string `json:"task_id,omitempty"`
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	Priority    string `json:"priority,omitempty"`
	Status      string `json:"status,omitempty"`
	DueDate     string `json:"due_date,omitempty"`
	Query       string `json:"query,omitempty"`
	Limit       int    `json:"limit,omitempty"`
}

// toolResult is what a tool execution reports back to the model.
type toolResult struct {
	Tool       string             `json:"tool"`
	Success    bool               `json:"success"`
	Message    string             `json:"message,omitempty"`
	Error      string             `json:"error,omitempty"`
	Task       *tasks.Task        `json:"task,omitempty"`
	Matches    []match.ScoredTask `json:"matches,omitempty"`
	Validation *tasks.Validation  `json:"validation,omitempty"`
}

func paramSchema(properties string) json.RawMessage {
	return json.RawMessage(`{"type":"object","properties":{` + properties + `}}`)
}

func toolSpecs() []brain.ToolSpec {
	return []brain.ToolSpec{
		{
			Name:        toolCreateTask,
			Description: "Create a new task for the current user. Title is required; due_date takes natural language like 'tomorrow at 5pm'.",
			Parameters:  paramSchema(`"title":{"type":"string"},"description":{"type":"string"},"priority":{"type":"string","enum":["low","medium","high"]},"due_date":{"type":"string"}`),
		},
		{
			Name:        toolValidateTask,
			Description: "Check whether a partially specified task has every required field before creating it.",
			Parameters:  paramSchema(`"title":{"type":"string"},"description":{"type":"string"},"priority":{"type":"string"},"due_date":{"type":"string"}`),
		},
		{
			Name:        toolUpdateTask,
			Description: "Update fields of an existing task by id. Only the provided fields change.",
			Parameters:  paramSchema(`"task_id":{"type":"string"},"title":{"type":"string"},"description":{"type":"string"},"priority":{"type":"string"},"status":{"type":"string"},"due_date":{"type":"string"}`),
		},
		{
			Name:        toolCompleteTask,
			Description: "Mark an existing task as completed.",
			Parameters:  paramSchema(`"task_id":{"type":"string"}`),
		},
		{
			Name:        toolDeleteTask,
			Description: "Delete an existing task permanently.",
			Parameters:  paramSchema(`"task_id":{"type":"string"}`),
		},
		{
			Name:        toolSearchTasks,
			Description: "Search the user's tasks by free text, optionally filtered by status.",
			Parameters:  paramSchema(`"query":{"type":"string"},"status":{"type":"string"},"limit":{"type":"integer"}`),
		},
		{
			Name:        toolListTasks,
			Description: "List the user's most recent tasks, optionally filtered by status.",
			Parameters:  paramSchema(`"status":{"type":"string"},"limit":{"type":"integer"}`),
		},
	}
}

// executeTool runs one tool call on behalf of owner. The owner is always the
// session's user; the model never chooses whose tasks it operates on.
func (e *Engine) executeTool(ctx context.Context, owner string, call brain.ToolCall) toolResult {
	var args toolArgs
	if len(call.Arguments) > 0 {
		if err := json.Unmarshal(call.Arguments, &args); err != nil {
			return e.toolDone(call.Name, toolResult{Tool: call.Name, Error: fmt.Sprintf("bad arguments: %v", err)})
		}
	}

	var res toolResult
	switch call.Name {
	case toolCreateTask:
		res = e.toolCreate(ctx, owner, args)
	case toolValidateTask:
		res = e.toolValidate(args)
	case toolUpdateTask:
		res = e.toolUpdate(ctx, owner, args)
	case toolCompleteTask:
		res = e.toolComplete(ctx, owner, args)
	case toolDeleteTask:
		res = e.toolDelete(ctx, owner, args)
	case toolSearchTasks:
		res = e.toolSearch(ctx, owner, args.Query, args.Status, args.Limit)
	case toolListTasks:
		res = e.toolSearch(ctx, owner, "", args.Status, args.Limit)
	default:
		res = toolResult{Error: fmt.Sprintf("unknown tool %q", call.Name)}
	}
	res.Tool = call.Name
	return e.toolDone(call.Name, res)
}

func (e *Engine) toolDone(name string, res toolResult) toolResult {
	if e.metrics != nil {
		status := "ok"
		if !res.Success {
			status = "error"
		}
		e.metrics.ToolCalls.WithLabelValues(name, status).Inc()
	}
	return res
}

func (e *Engine) toolCreate(ctx context.Context, owner string, args toolArgs) toolResult {
	validation := tasks.ValidateDraft(tasks.Draft{
		Title:       args.Title,
		Description: args.Description,
		Priority:    tasks.Priority(args.Priority),
		DueDate:     args.DueDate,
	})
	if !validation.CanCreate {
		return toolResult{
			Error:      fmt.Sprintf("missing required fields: %s", strings.Join(validation.MissingFields, ", ")),
			Validation: &validation,
		}
	}

	fields := tasks.Fields{
		Title:       validation.Draft.Title,
		Description: validation.Draft.Description,
		Priority:    validation.Draft.Priority,
		Source:      tasks.SourceChat,
	}
	if phrase := strings.TrimSpace(args.DueDate); phrase != "" {
		if due, ok := e.dates.Parse(phrase, time.Now().UTC()); ok {
			fields.DueDate = &due
		}
	}

	created, err := e.store.Create(ctx, owner, fields)
	if err != nil {
		return toolResult{Error: err.Error()}
	}
	return toolResult{Success: true, Task: &created, Message: fmt.Sprintf("Created task %q.", created.Title)}
}

func (e *Engine) toolValidate(args toolArgs) toolResult {
	validation := tasks.ValidateDraft(tasks.Draft{
		Title:       args.Title,
		Description: args.Description,
		Priority:    tasks.Priority(args.Priority),
		DueDate:     args.DueDate,
	})
	msg := "The task is ready to create."
	if !validation.CanCreate {
		msg = fmt.Sprintf("Still missing: %s.", strings.Join(validation.MissingFields, ", "))
	}
	return toolResult{Success: validation.CanCreate, Message: msg, Validation: &validation}
}

func (e *Engine) toolUpdate(ctx context.Context, owner string, args toolArgs) toolResult {
	if args.TaskID == "" {
		return toolResult{Error: "task_id is required"}
	}
	current, err := e.store.Get(ctx, owner, args.TaskID)
	if err != nil {
		return e.storeFailure(err)
	}

	var patch tasks.Patch
	if t := strings.TrimSpace(args.Title); t != "" {
		patch.Title = &t
	}
	if d := strings.TrimSpace(args.Description); d != "" {
		patch.Description = &d
	}
	switch p := tasks.Priority(strings.ToLower(strings.TrimSpace(args.Priority))); p {
	case tasks.PriorityLow, tasks.PriorityMedium, tasks.PriorityHigh:
		patch.Priority = &p
	}
	switch s := tasks.Status(strings.ToLower(strings.TrimSpace(args.Status))); s {
	case tasks.StatusTodo, tasks.StatusInProgress, tasks.StatusCompleted:
		patch.Status = &s
	}
	if phrase := strings.TrimSpace(args.DueDate); phrase != "" {
		if due, ok := e.dates.ResolveDue(phrase, time.Now().UTC(), current.DueDate); ok {
			patch.DueDate = &due
		}
	}
	if patch.Empty() {
		return toolResult{Error: "no recognized fields to update"}
	}

	updated, err := e.store.Update(ctx, owner, args.TaskID, patch)
	if err != nil {
		return e.storeFailure(err)
	}
	return toolResult{Success: true, Task: &updated, Message: fmt.Sprintf("Updated task %q.", updated.Title)}
}

func (e *Engine) toolComplete(ctx context.Context, owner string, args toolArgs) toolResult {
	if args.TaskID == "" {
		return toolResult{Error: "task_id is required"}
	}
	done, err := e.store.Complete(ctx, owner, args.TaskID)
	if err != nil {
		return e.storeFailure(err)
	}
	return toolResult{Success: true, Task: &done, Message: fmt.Sprintf("Marked %q as completed.", done.Title)}
}

func (e *Engine) toolDelete(ctx context.Context, owner string, args toolArgs) toolResult {
	if args.TaskID == "" {
		return toolResult{Error: "task_id is required"}
	}
	if err := e.store.Delete(ctx, owner, args.TaskID); err != nil {
		return e.storeFailure(err)
	}
	return toolResult{Success: true, Message: "Task deleted."}
}

func (e *Engine) toolSearch(ctx context.Context, owner, query, status string, limit int) toolResult {
	if limit <= 0 || limit > e.cfg.SearchLimit {
		limit = e.cfg.SearchLimit
	}
	results, err := e.matcher.Search(ctx, owner, query, tasks.Status(strings.ToLower(strings.TrimSpace(status))), limit)
	if err != nil {
		return toolResult{Error: err.Error()}
	}
	return toolResult{Success: true, Matches: results, Message: fmt.Sprintf("%d task(s) found.", len(results))}
}

func (e *Engine) storeFailure(err error) toolResult {
	if errors.Is(err, tasks.ErrNotFound) {
		return toolResult{Error: "task not found"}
	}
	return toolResult{Error: err.Error()}
}
