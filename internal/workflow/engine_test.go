package workflow

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/avitale/donna/internal/brain"
	"github.com/avitale/donna/internal/intent"
	"github.com/avitale/donna/internal/session"
	"github.com/avitale/donna/internal/tasks"
)

func newTestEngine(adapter brain.Adapter) (*Engine, *session.Manager, *tasks.MemoryStore) {
	store := tasks.NewMemoryStore()
	mgr := session.NewManager(30 * time.Minute)
	eng := NewEngine(store, adapter, mgr, nil, Config{})
	return eng, mgr, store
}

func mustCreate(t *testing.T, store tasks.Store, owner string, fields tasks.Fields) tasks.Task {
	t.Helper()
	task, err := store.Create(context.Background(), owner, fields)
	if err != nil {
		t.Fatalf("seed task: %v", err)
	}
	return task
}

func text(s string) brain.Response { return brain.Response{Text: s} }

func toolCall(name, args string) brain.Response {
	return brain.Response{ToolCalls: []brain.ToolCall{{Name: name, Arguments: []byte(args)}}}
}

func TestCreateFlowWithDueDate(t *testing.T) {
	adapter := &brain.ScriptedAdapter{Responses: []brain.Response{
		text(`{"action":"create","confidence":0.92,"reason":"wants a new task","extracted_info":{"title":"buy groceries","due_date":"tomorrow at 5 PM"}}`),
		toolCall("create_task", `{"title":"buy groceries","due_date":"tomorrow at 5 PM"}`),
		text("Done! I added buy groceries for tomorrow at 5 PM."),
	}}
	eng, mgr, store := newTestEngine(adapter)
	sess := mgr.Create("ada")

	res, err := eng.RunTurn(context.Background(), sess.ID, "I need to buy groceries tomorrow at 5 PM")
	if err != nil {
		t.Fatalf("RunTurn: %v", err)
	}
	if res.Reply != "Done! I added buy groceries for tomorrow at 5 PM." {
		t.Fatalf("unexpected reply %q", res.Reply)
	}

	found, err := store.Find(context.Background(), "ada", tasks.Filter{}, 0)
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if len(found) != 1 {
		t.Fatalf("expected 1 task, got %d", len(found))
	}
	got := found[0]
	if got.Title != "buy groceries" {
		t.Fatalf("title = %q", got.Title)
	}
	if got.DueDate == nil {
		t.Fatal("due date not set")
	}
	if got.DueDate.Hour() != 17 {
		t.Fatalf("due hour = %d, want 17", got.DueDate.Hour())
	}
	if res.Context.PendingTask != nil {
		t.Fatal("pending task should be cleared after creation")
	}
	if res.Context.AwaitingConfirmation {
		t.Fatal("creation must not await confirmation")
	}
}

func TestCreateMissingTitleParksPendingTask(t *testing.T) {
	adapter := &brain.ScriptedAdapter{Responses: []brain.Response{
		text(`{"action":"create","confidence":0.8,"reason":"wants a new task","extracted_info":{"due_date":"friday"}}`),
		text("Sure! What should I call this task?"),
	}}
	eng, mgr, store := newTestEngine(adapter)
	sess := mgr.Create("ada")

	res, err := eng.RunTurn(context.Background(), sess.ID, "remind me about something on friday")
	if err != nil {
		t.Fatalf("RunTurn: %v", err)
	}
	if res.Context.PendingTask == nil {
		t.Fatal("expected a pending task")
	}
	if len(res.Context.PendingTask.Missing) != 1 || res.Context.PendingTask.Missing[0] != "title" {
		t.Fatalf("missing = %v, want [title]", res.Context.PendingTask.Missing)
	}
	if found, _ := store.Find(context.Background(), "ada", tasks.Filter{}, 0); len(found) != 0 {
		t.Fatalf("no task should be created yet, got %d", len(found))
	}
}

func TestAmbiguousMatchAsksWhich(t *testing.T) {
	adapter := &brain.ScriptedAdapter{Responses: []brain.Response{
		text(`{"action":"complete","confidence":0.85,"reason":"finishing a task","extracted_info":{"search_query":"meeting"}}`),
		text("I found two meetings. Which one did you finish?"),
	}}
	eng, mgr, store := newTestEngine(adapter)
	mustCreate(t, store, "ada", tasks.Fields{Title: "Team meeting"})
	mustCreate(t, store, "ada", tasks.Fields{Title: "Doctor meeting"})
	sess := mgr.Create("ada")

	res, err := eng.RunTurn(context.Background(), sess.ID, "mark the meeting as done")
	if err != nil {
		t.Fatalf("RunTurn: %v", err)
	}
	if res.Context.AwaitingConfirmation {
		t.Fatal("ambiguous match must not stage a confirmation")
	}
	if len(res.Context.FoundTasks) != 2 {
		t.Fatalf("found %d candidates, want 2", len(res.Context.FoundTasks))
	}
	for _, task := range mustFind(t, store, "ada") {
		if task.Status == tasks.StatusCompleted {
			t.Fatalf("task %q was completed without confirmation", task.Title)
		}
	}
}

func TestSingleMatchStagesConfirmation(t *testing.T) {
	adapter := &brain.ScriptedAdapter{Responses: []brain.Response{
		text(`{"action":"complete","confidence":0.9,"reason":"finished the report","extracted_info":{"search_query":"report"}}`),
		text("Should I mark \"Submit report\" as completed?"),
	}}
	eng, mgr, store := newTestEngine(adapter)
	target := mustCreate(t, store, "ada", tasks.Fields{Title: "Submit report"})
	sess := mgr.Create("ada")

	res, err := eng.RunTurn(context.Background(), sess.ID, "I finished the report")
	if err != nil {
		t.Fatalf("RunTurn: %v", err)
	}
	if !res.Context.AwaitingConfirmation {
		t.Fatal("expected a staged confirmation")
	}
	if res.Context.Operation == nil || res.Context.Operation.Action != intent.ActionComplete {
		t.Fatalf("operation = %+v, want complete", res.Context.Operation)
	}
	if res.Context.SelectedTaskID != target.ID {
		t.Fatalf("selected %q, want %q", res.Context.SelectedTaskID, target.ID)
	}
	got, err := store.Get(context.Background(), "ada", target.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status == tasks.StatusCompleted {
		t.Fatal("task must not complete before confirmation")
	}
}

func TestConfirmationYesExecutesOnce(t *testing.T) {
	adapter := &brain.ScriptedAdapter{Responses: []brain.Response{
		// turn 1: stage the completion
		text(`{"action":"complete","confidence":0.9,"reason":"finished the report","extracted_info":{"search_query":"report"}}`),
		text("Should I mark \"Submit report\" as completed?"),
		// turn 2: the yes
		text(`{"action":"chat","confidence":0.6,"reason":"confirmation reply"}`),
		text("Done, marked it completed."),
		// turn 3: a replayed yes
		text(`{"action":"chat","confidence":0.6,"reason":"small talk"}`),
		text("It is already done!"),
	}}
	eng, mgr, store := newTestEngine(adapter)
	target := mustCreate(t, store, "ada", tasks.Fields{Title: "Submit report"})
	sess := mgr.Create("ada")

	ctx := context.Background()
	if _, err := eng.RunTurn(ctx, sess.ID, "I finished the report"); err != nil {
		t.Fatalf("turn 1: %v", err)
	}
	res, err := eng.RunTurn(ctx, sess.ID, "yes")
	if err != nil {
		t.Fatalf("turn 2: %v", err)
	}
	if res.Context.AwaitingConfirmation || res.Context.Operation != nil || res.Context.SelectedTaskID != "" {
		t.Fatalf("confirmation state not cleared: %+v", res.Context)
	}
	done, err := store.Get(ctx, "ada", target.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if done.Status != tasks.StatusCompleted || done.CompletedAt == nil {
		t.Fatalf("task not completed: %+v", done)
	}
	completedAt := *done.CompletedAt

	// Saying yes again must be a no-op.
	if _, err := eng.RunTurn(ctx, sess.ID, "yes"); err != nil {
		t.Fatalf("turn 3: %v", err)
	}
	again, _ := store.Get(ctx, "ada", target.ID)
	if again.CompletedAt == nil || !again.CompletedAt.Equal(completedAt) {
		t.Fatal("replayed confirmation must not re-execute the operation")
	}
}

func TestConfirmationNoCancels(t *testing.T) {
	adapter := &brain.ScriptedAdapter{Responses: []brain.Response{
		text(`{"action":"delete","confidence":0.88,"reason":"remove the task","extracted_info":{"search_query":"groceries"}}`),
		text("Should I delete \"buy groceries\"?"),
		text(`{"action":"chat","confidence":0.6,"reason":"confirmation reply"}`),
		text("Okay, I left it alone."),
	}}
	eng, mgr, store := newTestEngine(adapter)
	target := mustCreate(t, store, "ada", tasks.Fields{Title: "buy groceries"})
	sess := mgr.Create("ada")

	ctx := context.Background()
	if _, err := eng.RunTurn(ctx, sess.ID, "delete the groceries task"); err != nil {
		t.Fatalf("turn 1: %v", err)
	}
	res, err := eng.RunTurn(ctx, sess.ID, "no, keep it")
	if err != nil {
		t.Fatalf("turn 2: %v", err)
	}
	if res.Context.AwaitingConfirmation || res.Context.Operation != nil {
		t.Fatal("declined confirmation must clear the staged operation")
	}
	if _, err := store.Get(ctx, "ada", target.ID); err != nil {
		t.Fatalf("task should survive a declined delete: %v", err)
	}
}

func TestUnresolvedConfirmationKeepsAsking(t *testing.T) {
	adapter := &brain.ScriptedAdapter{Responses: []brain.Response{
		text(`{"action":"delete","confidence":0.88,"reason":"remove the task","extracted_info":{"search_query":"groceries"}}`),
		text("Should I delete \"buy groceries\"?"),
		text(`{"action":"chat","confidence":0.5,"reason":"unclear"}`),
		text("Sorry, I just need a yes or no: delete \"buy groceries\"?"),
	}}
	eng, mgr, store := newTestEngine(adapter)
	target := mustCreate(t, store, "ada", tasks.Fields{Title: "buy groceries"})
	sess := mgr.Create("ada")

	ctx := context.Background()
	if _, err := eng.RunTurn(ctx, sess.ID, "delete the groceries task"); err != nil {
		t.Fatalf("turn 1: %v", err)
	}
	res, err := eng.RunTurn(ctx, sess.ID, "hmm what happens then?")
	if err != nil {
		t.Fatalf("turn 2: %v", err)
	}
	if !res.Context.AwaitingConfirmation || res.Context.Operation == nil {
		t.Fatal("unresolved reply must keep the confirmation pending")
	}
	if res.Context.SelectedTaskID != target.ID {
		t.Fatalf("selected task changed to %q", res.Context.SelectedTaskID)
	}
}

func TestDuplicateCreateOffersUpdate(t *testing.T) {
	adapter := &brain.ScriptedAdapter{Responses: []brain.Response{
		text(`{"action":"create","confidence":0.9,"reason":"wants a new task","extracted_info":{"title":"buy groceries"}}`),
		text("You already have \"buy groceries\". Update that one instead?"),
	}}
	eng, mgr, store := newTestEngine(adapter)
	existing := mustCreate(t, store, "ada", tasks.Fields{Title: "buy groceries"})
	sess := mgr.Create("ada")

	res, err := eng.RunTurn(context.Background(), sess.ID, "add buy groceries to my list")
	if err != nil {
		t.Fatalf("RunTurn: %v", err)
	}
	if !res.Context.AwaitingConfirmation {
		t.Fatal("near-duplicate creation must ask before acting")
	}
	if res.Context.Operation == nil || res.Context.Operation.Action != intent.ActionUpdate {
		t.Fatalf("operation = %+v, want update", res.Context.Operation)
	}
	if res.Context.Operation.TaskID != existing.ID {
		t.Fatalf("duplicate targets %q, want %q", res.Context.Operation.TaskID, existing.ID)
	}
	if found := mustFind(t, store, "ada"); len(found) != 1 {
		t.Fatalf("no new task may be created, have %d", len(found))
	}
}

func TestCompletedTaskIsNotADuplicate(t *testing.T) {
	adapter := &brain.ScriptedAdapter{Responses: []brain.Response{
		text(`{"action":"create","confidence":0.9,"reason":"wants a new task","extracted_info":{"title":"buy groceries"}}`),
		toolCall("create_task", `{"title":"buy groceries"}`),
		text("Added a fresh buy groceries task."),
	}}
	eng, mgr, store := newTestEngine(adapter)
	old := mustCreate(t, store, "ada", tasks.Fields{Title: "buy groceries"})
	if _, err := store.Complete(context.Background(), "ada", old.ID); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	sess := mgr.Create("ada")

	res, err := eng.RunTurn(context.Background(), sess.ID, "add buy groceries to my list")
	if err != nil {
		t.Fatalf("RunTurn: %v", err)
	}
	if res.Context.AwaitingConfirmation {
		t.Fatal("a completed task must not block re-creation")
	}
	if found := mustFind(t, store, "ada"); len(found) != 2 {
		t.Fatalf("expected 2 tasks, got %d", len(found))
	}
}

func TestTargetedIntentWithNoMatches(t *testing.T) {
	adapter := &brain.ScriptedAdapter{Responses: []brain.Response{
		text(`{"action":"delete","confidence":0.8,"reason":"remove a task","extracted_info":{"search_query":"dentist"}}`),
		text("I couldn't find anything about a dentist. Want to see your task list?"),
	}}
	eng, mgr, _ := newTestEngine(adapter)
	sess := mgr.Create("ada")

	res, err := eng.RunTurn(context.Background(), sess.ID, "cancel the dentist thing")
	if err != nil {
		t.Fatalf("RunTurn: %v", err)
	}
	if res.Context.AwaitingConfirmation || res.Context.Operation != nil {
		t.Fatal("no candidates means nothing to confirm")
	}
}

func TestAdapterFailureDegradesGracefully(t *testing.T) {
	adapter := &brain.ScriptedAdapter{Err: errors.New("upstream down")}
	eng, mgr, _ := newTestEngine(adapter)
	sess := mgr.Create("ada")

	res, err := eng.RunTurn(context.Background(), sess.ID, "hello there")
	if err != nil {
		t.Fatalf("RunTurn must not surface adapter errors: %v", err)
	}
	if res.Reply == "" {
		t.Fatal("expected a fallback reply")
	}
	if res.Outcome != "ok" {
		t.Fatalf("outcome = %q", res.Outcome)
	}
}

type panicAdapter struct{}

func (panicAdapter) Complete(context.Context, brain.Request) (brain.Response, error) {
	panic("model adapter blew up")
}

func TestPanicLeavesSavedContextUntouched(t *testing.T) {
	eng, mgr, store := newTestEngine(panicAdapter{})
	mustCreate(t, store, "ada", tasks.Fields{Title: "Submit report"})
	sess := mgr.Create("ada")

	res, err := eng.RunTurn(context.Background(), sess.ID, "I finished the report")
	if err != nil {
		t.Fatalf("RunTurn: %v", err)
	}
	if res.Outcome != "panic" {
		t.Fatalf("outcome = %q, want panic", res.Outcome)
	}
	if res.Reply == "" {
		t.Fatal("expected an apology reply")
	}
	saved, err := mgr.Get(sess.ID)
	if err != nil {
		t.Fatalf("Get session: %v", err)
	}
	if saved.Context.UserIntent != nil || saved.Context.AwaitingConfirmation {
		t.Fatalf("partial turn state leaked into the session: %+v", saved.Context)
	}
}

func TestPendingTaskAbandonedOnNewTargetedIntent(t *testing.T) {
	adapter := &brain.ScriptedAdapter{Responses: []brain.Response{
		text(`{"action":"create","confidence":0.8,"reason":"wants a new task","extracted_info":{}}`),
		text("What should I call it?"),
		text(`{"action":"list","confidence":0.85,"reason":"wants the overview"}`),
		text("Here is everything on your plate."),
	}}
	eng, mgr, _ := newTestEngine(adapter)
	sess := mgr.Create("ada")

	ctx := context.Background()
	res, err := eng.RunTurn(ctx, sess.ID, "add a task")
	if err != nil {
		t.Fatalf("turn 1: %v", err)
	}
	if res.Context.PendingTask == nil {
		t.Fatal("expected a pending task after turn 1")
	}
	res, err = eng.RunTurn(ctx, sess.ID, "actually just show me my tasks")
	if err != nil {
		t.Fatalf("turn 2: %v", err)
	}
	if res.Context.PendingTask != nil {
		t.Fatal("switching intents must abandon the pending task")
	}
}

func TestEmptyMessageRejected(t *testing.T) {
	eng, mgr, _ := newTestEngine(&brain.ScriptedAdapter{})
	sess := mgr.Create("ada")
	if _, err := eng.RunTurn(context.Background(), sess.ID, "   "); err == nil {
		t.Fatal("expected an error for a blank message")
	}
}

func TestClassifyReply(t *testing.T) {
	cases := []struct {
		in   string
		want confirmResult
	}{
		{"yes", confirmYes},
		{"Yes!", confirmYes},
		{"yeah go for it", confirmYes},
		{"ok", confirmYes},
		{"y", confirmYes},
		{"no", confirmNo},
		{"No, keep it", confirmNo},
		{"don't", confirmNo},
		{"no, go ahead and cancel it", confirmNo},
		{"maybe later", confirmUnresolved},
		{"what does that mean?", confirmUnresolved},
		{"not sure", confirmUnresolved},
	}
	for _, tc := range cases {
		if got := classifyReply(tc.in); got != tc.want {
			t.Errorf("classifyReply(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestToolLoopStopsAfterMaxRounds(t *testing.T) {
	responses := make([]brain.Response, 0, 8)
	responses = append(responses, text(`{"action":"chat","confidence":0.6,"reason":"small talk"}`))
	for i := 0; i < 6; i++ {
		responses = append(responses, toolCall("list_tasks", `{}`))
	}
	adapter := &brain.ScriptedAdapter{Responses: responses}
	eng, mgr, _ := newTestEngine(adapter)
	sess := mgr.Create("ada")

	res, err := eng.RunTurn(context.Background(), sess.ID, "hey")
	if err != nil {
		t.Fatalf("RunTurn: %v", err)
	}
	if res.Reply == "" {
		t.Fatal("expected a fallback reply when the model never answers")
	}
	// 1 analyze call + at most MaxToolRounds chat calls.
	if calls := len(adapter.Requests); calls > 1+eng.cfg.MaxToolRounds {
		t.Fatalf("model called %d times, cap is %d", calls, 1+eng.cfg.MaxToolRounds)
	}
}

func TestTurnTranscriptIsRecorded(t *testing.T) {
	adapter := &brain.ScriptedAdapter{Responses: []brain.Response{
		text(`{"action":"chat","confidence":0.7,"reason":"greeting"}`),
		text("Hi! What can I do for you?"),
	}}
	eng, mgr, _ := newTestEngine(adapter)
	sess := mgr.Create("ada")

	if _, err := eng.RunTurn(context.Background(), sess.ID, "hello"); err != nil {
		t.Fatalf("RunTurn: %v", err)
	}
	saved, err := mgr.Get(sess.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(saved.Messages) != 2 {
		t.Fatalf("messages = %d, want 2", len(saved.Messages))
	}
	if saved.Messages[0].Role != session.RoleUser || saved.Messages[1].Role != session.RoleAssistant {
		t.Fatalf("bad transcript roles: %+v", saved.Messages)
	}
	if !strings.Contains(saved.Messages[1].Content, "Hi!") {
		t.Fatalf("assistant reply not recorded: %q", saved.Messages[1].Content)
	}
}

func mustFind(t *testing.T, store tasks.Store, owner string) []tasks.Task {
	t.Helper()
	found, err := store.Find(context.Background(), owner, tasks.Filter{}, 0)
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	return found
}
