package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/avitale/donna/internal/intent"
	"github.com/avitale/donna/internal/tasks"
)

type confirmResult string

const (
	confirmYes        confirmResult = "confirmed"
	confirmNo         confirmResult = "cancelled"
	confirmUnresolved confirmResult = "unresolved"
)

var (
	affirmativeReplies = []string{"yes", "yeah", "yep", "sure", "ok", "okay", "confirm", "do it", "go ahead", "proceed", "y"}
	negativeReplies    = []string{"no", "nope", "cancel", "abort", "stop", "don't", "dont", "n"}
)

// classifyReply reads a confirmation answer. Negative phrases are checked
// first so that "no, go ahead and cancel it" never counts as a yes.
func classifyReply(message string) confirmResult {
	normalized := strings.ToLower(strings.TrimSpace(message))
	normalized = strings.Trim(normalized, ".!,")
	for _, token := range negativeReplies {
		if normalized == token || strings.HasPrefix(normalized, token+" ") || strings.HasPrefix(normalized, token+",") {
			return confirmNo
		}
	}
	for _, token := range affirmativeReplies {
		if normalized == token || strings.HasPrefix(normalized, token+" ") || strings.HasPrefix(normalized, token+",") {
			return confirmYes
		}
	}
	return confirmUnresolved
}

// runConfirmation resolves an outstanding yes/no question. A confirmed
// operation is executed exactly once: the staged details are cleared before
// the outcome reaches the chat stage, so a replayed "yes" has nothing left
// to act on.
func (e *Engine) runConfirmation(ctx context.Context, st *turnState) Stage {
	result := classifyReply(st.message)
	if e.metrics != nil {
		e.metrics.Confirmations.WithLabelValues(string(result)).Inc()
	}

	switch result {
	case confirmNo:
		st.tc.ClearConfirmation()
		st.note = "The user declined the pending operation. Acknowledge the cancellation and ask what they would like to do instead."
		return StageChat

	case confirmUnresolved:
		st.note = fmt.Sprintf("The pending question is still open: %s Ask again, plainly, for a yes or no.", e.confirmationPrompt(st))
		return StageChat

	case confirmYes:
		op := st.tc.Operation
		target := st.tc.SelectedTaskID
		if op == nil || target == "" {
			// Stale or inconsistent state; treat like a cancellation.
			st.tc.ClearConfirmation()
			st.note = "There was no pending operation to confirm. Ask the user to restate what they wanted."
			return StageChat
		}
		err := e.execute(ctx, st.owner, op.Action, target, op.Patch)
		if err != nil {
			// Keep the candidates so the user can pick again, but drop
			// the staged operation so it cannot fire twice.
			found := st.tc.FoundTasks
			st.tc.ClearConfirmation()
			st.tc.FoundTasks = found
			st.note = fmt.Sprintf("The confirmed %s failed: %v. Apologize and offer to try again.", op.Action, err)
			return StageChat
		}
		st.tc.ClearConfirmation()
		st.tc.PendingTask = nil
		st.note = fmt.Sprintf("The %s operation succeeded. Confirm this to the user in one short sentence.", op.Action)
		return StageChat
	}
	return StageChat
}

// execute dispatches a staged mutation against the store.
func (e *Engine) execute(ctx context.Context, owner string, action intent.Action, taskID string, patch tasks.Patch) error {
	var err error
	switch action {
	case intent.ActionUpdate:
		_, err = e.store.Update(ctx, owner, taskID, patch)
	case intent.ActionComplete:
		_, err = e.store.Complete(ctx, owner, taskID)
	case intent.ActionDelete:
		err = e.store.Delete(ctx, owner, taskID)
	default:
		err = fmt.Errorf("unsupported staged action %q", action)
	}
	if errors.Is(err, tasks.ErrNotFound) {
		return fmt.Errorf("task no longer exists")
	}
	return err
}

// confirmationPrompt describes the pending operation for the chat stage.
func (e *Engine) confirmationPrompt(st *turnState) string {
	op := st.tc.Operation
	if op == nil {
		return "a pending operation needs a yes or no."
	}
	title := st.tc.SelectedTaskID
	for _, cand := range st.tc.FoundTasks {
		if cand.Task.ID == st.tc.SelectedTaskID {
			title = cand.Task.Title
			break
		}
	}
	return fmt.Sprintf("should I %s %q?", op.Action, title)
}
