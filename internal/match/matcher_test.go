package match

import (
	"context"
	"testing"
	"time"

	"github.com/avitale/donna/internal/tasks"
)

func seedStore(t *testing.T, owner string, fields ...tasks.Fields) tasks.Store {
	t.Helper()
	store := tasks.NewMemoryStore()
	for _, f := range fields {
		if _, err := store.Create(context.Background(), owner, f); err != nil {
			t.Fatalf("seed Create(%q) error = %v", f.Title, err)
		}
		time.Sleep(time.Millisecond)
	}
	return store
}

func TestSearchEmptyQueryReturnsRecent(t *testing.T) {
	store := seedStore(t, "u1",
		tasks.Fields{Title: "first"},
		tasks.Fields{Title: "second"},
		tasks.Fields{Title: "third"},
	)
	m := New(store)

	got, err := m.Search(context.Background(), "u1", "", "", 2)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Search() len = %d, want 2", len(got))
	}
	if got[0].Task.Title != "third" {
		t.Fatalf("got[0].Title = %q, want newest first", got[0].Task.Title)
	}
	for _, st := range got {
		if st.Score != 1 || st.Reasons != "recent" {
			t.Fatalf("recent result = {score:%d reasons:%q}, want {1, recent}", st.Score, st.Reasons)
		}
	}
}

func TestSearchNeverLeaksAcrossOwners(t *testing.T) {
	store := tasks.NewMemoryStore()
	ctx := context.Background()
	if _, err := store.Create(ctx, "alice", tasks.Fields{Title: "buy groceries"}); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	m := New(store)

	for _, query := range []string{"", "groceries"} {
		got, err := m.Search(ctx, "bob", query, "", 10)
		if err != nil {
			t.Fatalf("Search(%q) error = %v", query, err)
		}
		if len(got) != 0 {
			t.Fatalf("Search(%q) returned %d tasks for the wrong owner", query, len(got))
		}
	}
}

func TestSearchTitleOutranksDescription(t *testing.T) {
	store := seedStore(t, "u1",
		tasks.Fields{Title: "groceries run", Description: "weekly shop"},
		tasks.Fields{Title: "errands", Description: "pick up groceries"},
	)
	m := New(store)

	got, err := m.Search(context.Background(), "u1", "groceries", "", 10)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Search() len = %d, want 2", len(got))
	}
	if got[0].Task.Title != "groceries run" {
		t.Fatalf("got[0].Title = %q, want title match ranked first", got[0].Task.Title)
	}
	if got[0].Score <= got[1].Score {
		t.Fatalf("scores not descending: %d then %d", got[0].Score, got[1].Score)
	}
}

func TestSearchScoreComposition(t *testing.T) {
	task := tasks.Task{
		Title:       "Team meeting",
		Description: "weekly team sync",
		Status:      tasks.StatusTodo,
	}

	score, reasons := scoreTask(task, "team meeting")
	// Full title substring (100) + tokens "team" and "meeting" in title (2x20)
	// + token "team" in description (10) + incomplete bonus (5).
	if score != 155 {
		t.Fatalf("score = %d, want 155", score)
	}
	if reasons == "" || reasons == "no specific match" {
		t.Fatalf("reasons = %q, want textual match reasons", reasons)
	}
}

func TestSearchTokenReasonRecordedOnce(t *testing.T) {
	task := tasks.Task{Title: "plan summer holiday trip", Status: tasks.StatusTodo}

	score, reasons := scoreTask(task, "summer holiday")
	// Full query is a title substring (100) + two title tokens (2x20) + bonus (5).
	if score != 145 {
		t.Fatalf("score = %d, want 145", score)
	}
	if want := "title contains query, title word match"; reasons != want {
		t.Fatalf("reasons = %q, want %q", reasons, want)
	}
}

func TestSearchDiscardsZeroScores(t *testing.T) {
	store := seedStore(t, "u1", tasks.Fields{Title: "water the plants"})
	m := New(store)

	got, err := m.Search(context.Background(), "u1", "quarterly taxes", "", 10)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	// No textual overlap: the incomplete bonus alone still yields a nonzero
	// score, surfaced with the "no specific match" rationale.
	if len(got) != 1 {
		t.Fatalf("Search() len = %d, want 1", len(got))
	}
	if got[0].Score != 5 || got[0].Reasons != "no specific match" {
		t.Fatalf("got = {score:%d reasons:%q}, want {5, no specific match}", got[0].Score, got[0].Reasons)
	}
}

func TestSearchCompletedTaskWithNoTextMatchScoresZero(t *testing.T) {
	task := tasks.Task{Title: "water the plants", Status: tasks.StatusCompleted}
	score, _ := scoreTask(task, "quarterly taxes")
	if score != 0 {
		t.Fatalf("score = %d, want 0 for completed non-matching task", score)
	}
}

func TestSearchMonotonicScore(t *testing.T) {
	base := tasks.Task{Title: "submit annual report", Status: tasks.StatusTodo}
	withDesc := base
	withDesc.Description = "the annual report for finance"

	baseScore, _ := scoreTask(base, "annual report")
	richScore, _ := scoreTask(withDesc, "annual report")
	if richScore < baseScore {
		t.Fatalf("adding matches decreased score: %d -> %d", baseScore, richScore)
	}
}

func TestSearchShortTokensIgnored(t *testing.T) {
	task := tasks.Task{Title: "go to gym", Status: tasks.StatusTodo}
	// "to" and "go" are too short to count as tokens; only the full-substring
	// rule can fire.
	score, _ := scoreTask(task, "go to")
	if score != fullTitleScore+incompleteBonus {
		t.Fatalf("score = %d, want %d", score, fullTitleScore+incompleteBonus)
	}
}
