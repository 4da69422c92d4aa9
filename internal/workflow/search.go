package workflow

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/avitale/donna/internal/intent"
	"github.com/avitale/donna/internal/session"
	"github.com/avitale/donna/internal/tasks"
)

// runSearch resolves the classified intent against the owner's tasks: it
// populates foundTasks, detects near-duplicate creations, and for targeted
// operations with exactly one candidate stages the mutation for confirmation.
func (e *Engine) runSearch(ctx context.Context, st *turnState) Stage {
	query := searchQuery(st.ui)

	results, err := e.matcher.Search(ctx, st.owner, query, "", e.cfg.SearchLimit)
	if err != nil {
		st.note = fmt.Sprintf("Task search failed: %v.", err)
		st.tc.FoundTasks = nil
		return StageChat
	}
	st.tc.FoundTasks = results

	switch st.ui.Action {
	case intent.ActionCreate:
		return e.stageCreate(st)
	case intent.ActionUpdate, intent.ActionDelete, intent.ActionComplete:
		return e.stageTargeted(st)
	default:
		// list: the candidates are the answer.
		return StageChat
	}
}

// searchQuery picks the text to match tasks against. Targeted intents prefer
// the explicit search query, creation intents the extracted title.
func searchQuery(ui intent.UserIntent) string {
	if q := strings.TrimSpace(ui.Extracted.Query); q != "" {
		return q
	}
	return strings.TrimSpace(ui.Extracted.Title)
}

// stageCreate handles a creation intent after the duplicate scan. A strong
// non-completed match flips the turn into an update-instead confirmation;
// otherwise the draft is validated and either handed to the chat stage for
// creation or parked as a pending task until the user fills the gaps.
func (e *Engine) stageCreate(st *turnState) Stage {
	for _, cand := range st.tc.FoundTasks {
		if cand.Score > e.cfg.DuplicateThreshold && cand.Task.Status != tasks.StatusCompleted {
			st.tc.Operation = &session.OperationDetails{
				Action: intent.ActionUpdate,
				TaskID: cand.Task.ID,
				Patch:  e.buildPatch(st.ui, cand.Task),
			}
			st.tc.SelectedTaskID = cand.Task.ID
			st.tc.AwaitingConfirmation = true
			st.note = fmt.Sprintf("Found an existing task %q that looks like a duplicate. Ask whether to update it instead of creating a new one.", cand.Task.Title)
			return StageChat
		}
	}

	draft := mergeDraft(st.tc.PendingTask, st.ui.Extracted)
	validation := tasks.ValidateDraft(draft)
	if !validation.CanCreate {
		st.tc.PendingTask = &validation.Draft
		st.note = fmt.Sprintf("The task cannot be created yet, missing: %s. Ask the user for the missing fields.", strings.Join(validation.MissingFields, ", "))
		return StageChat
	}
	st.tc.PendingTask = &validation.Draft
	return StageChat
}

// stageTargeted resolves update/delete/complete against the candidates.
func (e *Engine) stageTargeted(st *turnState) Stage {
	switch len(st.tc.FoundTasks) {
	case 0:
		st.note = "No matching tasks were found. Tell the user and ask them to rephrase or list their tasks."
		return StageChat
	case 1:
		target := st.tc.FoundTasks[0].Task
		var patch tasks.Patch
		if st.ui.Action == intent.ActionUpdate {
			patch = e.buildPatch(st.ui, target)
			if patch.Empty() {
				st.note = fmt.Sprintf("Matched %q but no concrete change was requested. Ask what should be updated.", target.Title)
				return StageChat
			}
		}
		st.tc.Operation = &session.OperationDetails{
			Action: st.ui.Action,
			TaskID: target.ID,
			Patch:  patch,
		}
		st.tc.SelectedTaskID = target.ID
		st.tc.AwaitingConfirmation = true
		return StageChat
	default:
		st.note = "Multiple tasks matched. Present the candidates and ask which one the user means."
		return StageChat
	}
}

// buildPatch turns extracted fields into a sparse update against target.
// Relative due-date phrases are anchored to the task's existing due date.
func (e *Engine) buildPatch(ui intent.UserIntent, target tasks.Task) tasks.Patch {
	var patch tasks.Patch
	if d := strings.TrimSpace(ui.Extracted.Description); d != "" {
		patch.Description = &d
	}
	switch p := tasks.Priority(strings.ToLower(strings.TrimSpace(ui.Extracted.Priority))); p {
	case tasks.PriorityLow, tasks.PriorityMedium, tasks.PriorityHigh:
		patch.Priority = &p
	}
	switch s := tasks.Status(strings.ToLower(strings.TrimSpace(ui.Extracted.Status))); s {
	case tasks.StatusTodo, tasks.StatusInProgress, tasks.StatusCompleted:
		patch.Status = &s
	}
	if phrase := strings.TrimSpace(ui.Extracted.DueDate); phrase != "" {
		if due, ok := e.dates.ResolveDue(phrase, time.Now().UTC(), target.DueDate); ok {
			patch.DueDate = &due
		}
	}
	return patch
}

// mergeDraft overlays newly extracted fields on an existing pending draft.
func mergeDraft(pending *tasks.Draft, ex intent.Extracted) tasks.Draft {
	var draft tasks.Draft
	if pending != nil {
		draft = *pending
	}
	if t := strings.TrimSpace(ex.Title); t != "" {
		draft.Title = t
	}
	if d := strings.TrimSpace(ex.Description); d != "" {
		draft.Description = d
	}
	switch p := tasks.Priority(strings.ToLower(strings.TrimSpace(ex.Priority))); p {
	case tasks.PriorityLow, tasks.PriorityMedium, tasks.PriorityHigh:
		draft.Priority = p
	}
	if due := strings.TrimSpace(ex.DueDate); due != "" {
		draft.DueDate = due
	}
	return draft
}
