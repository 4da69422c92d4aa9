package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/avitale/donna/internal/brain"
)

const maxSummarizedTasks = 3

// runChat generates the assistant reply. It binds the tool set, lets the
// model call tools for up to MaxToolRounds rounds, and falls back to a
// deterministic reply when the model is unavailable or keeps calling tools
// without ever producing text.
func (e *Engine) runChat(ctx context.Context, st *turnState) {
	messages := make([]brain.Message, 0, len(st.history)+1)
	messages = append(messages, brain.Message{Role: brain.RoleSystem, Content: e.systemInstruction(st)})
	for _, m := range st.history {
		messages = append(messages, brain.Message{Role: brain.Role(m.Role), Content: m.Content})
	}

	req := brain.Request{Messages: messages, Tools: toolSpecs()}
	for round := 0; round < e.cfg.MaxToolRounds; round++ {
		res, err := e.adapter.Complete(ctx, req)
		if err != nil {
			st.reply = e.fallbackReply(st)
			return
		}
		if len(res.ToolCalls) == 0 {
			if reply := strings.TrimSpace(res.Text); reply != "" {
				st.reply = reply
				return
			}
			st.reply = e.fallbackReply(st)
			return
		}
		for _, call := range res.ToolCalls {
			result := e.executeTool(ctx, st.owner, call)
			e.applyToolResult(st, result)
			payload, merr := json.Marshal(result)
			if merr != nil {
				payload = []byte(`{"success":false,"error":"result serialization failed"}`)
			}
			req.Messages = append(req.Messages,
				brain.Message{Role: brain.RoleAssistant, Content: fmt.Sprintf("[calling %s]", call.Name)},
				brain.Message{Role: brain.RoleTool, Content: string(payload)},
			)
		}
	}
	st.reply = e.fallbackReply(st)
}

// systemInstruction builds the per-turn system prompt from the session's
// working state.
func (e *Engine) systemInstruction(st *turnState) string {
	var b strings.Builder
	b.WriteString("You are Donna, a friendly personal task assistant. Keep replies short, warm, and concrete. ")
	b.WriteString("Use the provided tools for anything that touches tasks; never invent task data.\n")

	if st.tc.UserIntent != nil {
		fmt.Fprintf(&b, "\nClassified intent: %s (%.2f) because %s.\n", st.tc.UserIntent.Action, st.tc.UserIntent.Confidence, st.tc.UserIntent.Reason)
	}
	if p := st.tc.PendingTask; p != nil {
		if len(p.Missing) > 0 {
			fmt.Fprintf(&b, "A task creation is in progress but still missing: %s. Ask for those fields.\n", strings.Join(p.Missing, ", "))
		} else {
			fmt.Fprintf(&b, "A task creation is ready: title %q", p.Title)
			if p.DueDate != "" {
				fmt.Fprintf(&b, ", due %q", p.DueDate)
			}
			if p.Priority != "" {
				fmt.Fprintf(&b, ", priority %s", p.Priority)
			}
			b.WriteString(". Call create_task with these fields now.\n")
		}
	}
	if n := len(st.tc.FoundTasks); n > 0 {
		fmt.Fprintf(&b, "Matching tasks (%d):\n", n)
		for i, cand := range st.tc.FoundTasks {
			if i == maxSummarizedTasks {
				fmt.Fprintf(&b, "  ...and %d more.\n", n-maxSummarizedTasks)
				break
			}
			fmt.Fprintf(&b, "  - %s [%s, %s] (score %d: %s)\n", cand.Task.Title, cand.Task.Status, cand.Task.Priority, cand.Score, cand.Reasons)
		}
	}
	if st.tc.AwaitingConfirmation {
		fmt.Fprintf(&b, "Awaiting the user's confirmation: %s Do not perform the operation yourself; just ask.\n", e.confirmationPrompt(st))
	}
	if st.note != "" {
		fmt.Fprintf(&b, "Turn outcome: %s\n", st.note)
	}
	return b.String()
}

// fallbackReply produces a usable answer without the model.
func (e *Engine) fallbackReply(st *turnState) string {
	if st.tc.AwaitingConfirmation {
		return fmt.Sprintf("Just to check, %s", e.confirmationPrompt(st))
	}
	if st.note != "" {
		return humanizeNote(st.note)
	}
	return "Sorry, I'm having trouble responding right now. Please try again in a moment."
}

// humanizeNote strips the instruction tail off an internal note so it can be
// shown to the user directly.
func humanizeNote(note string) string {
	for _, cut := range []string{" Ask ", " Tell ", " Present ", " Acknowledge ", " Apologize ", " Confirm "} {
		if idx := strings.Index(note, cut); idx > 0 {
			return strings.TrimSpace(note[:idx])
		}
	}
	return note
}

// applyToolResult folds a tool outcome back into the turn context.
func (e *Engine) applyToolResult(st *turnState, result toolResult) {
	if result.Validation != nil {
		if result.Validation.CanCreate {
			if st.tc.PendingTask != nil {
				draft := result.Validation.Draft
				st.tc.PendingTask = &draft
			}
		} else {
			draft := result.Validation.Draft
			st.tc.PendingTask = &draft
		}
	}
	if !result.Success {
		return
	}
	switch result.Tool {
	case toolCreateTask:
		st.tc.PendingTask = nil
		st.tc.ClearConfirmation()
	case toolUpdateTask, toolCompleteTask, toolDeleteTask:
		st.tc.ClearConfirmation()
	case toolSearchTasks, toolListTasks:
		st.tc.FoundTasks = result.Matches
	}
}
