package match

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/avitale/donna/internal/tasks"
)

const (
	fullTitleScore       = 100
	fullDescriptionScore = 50
	tokenTitleScore      = 20
	tokenDescScore       = 10
	incompleteBonus      = 5

	// DuplicateThreshold is the score above which a create request is treated
	// as a likely duplicate of an existing task.
	DuplicateThreshold = 80
)

// minTokenLen excludes short filler words from token matching.
const minTokenLen = 2

// ScoredTask is a match candidate with its accumulated score and the
// human-readable reasons that triggered it, most relevant first.
type ScoredTask struct {
	Task    tasks.Task `json:"task"`
	Score   int        `json:"score"`
	Reasons string     `json:"reasons"`
}

// Matcher scores an owner's tasks against a free-text query.
type Matcher struct {
	store tasks.Store
}

func New(store tasks.Store) *Matcher {
	return &Matcher{store: store}
}

// Search returns the owner's tasks ranked by relevance to query. An empty
// query returns the newest tasks, each tagged score=1 / "recent".
func (m *Matcher) Search(ctx context.Context, owner, query string, statusFilter tasks.Status, limit int) ([]ScoredTask, error) {
	if limit <= 0 {
		limit = 10
	}
	query = strings.TrimSpace(query)

	if query == "" {
		recent, err := m.store.Find(ctx, owner, tasks.Filter{Status: statusFilter}, limit)
		if err != nil {
			return nil, fmt.Errorf("recent tasks: %w", err)
		}
		out := make([]ScoredTask, 0, len(recent))
		for _, task := range recent {
			out = append(out, ScoredTask{Task: task, Score: 1, Reasons: "recent"})
		}
		return out, nil
	}

	all, err := m.store.Find(ctx, owner, tasks.Filter{Status: statusFilter}, 0)
	if err != nil {
		return nil, fmt.Errorf("fetch tasks: %w", err)
	}

	out := make([]ScoredTask, 0, len(all))
	for _, task := range all {
		score, reasons := scoreTask(task, query)
		if score <= 0 {
			continue
		}
		out = append(out, ScoredTask{Task: task, Score: score, Reasons: reasons})
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Score > out[j].Score
	})
	if limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

// scoreTask accumulates match points for one task. Reasons are recorded at
// most once per kind even when several tokens contribute points.
func scoreTask(task tasks.Task, query string) (int, string) {
	title := strings.ToLower(task.Title)
	desc := strings.ToLower(task.Description)
	q := strings.ToLower(query)

	score := 0
	var reasons []string

	if strings.Contains(title, q) {
		score += fullTitleScore
		reasons = append(reasons, "title contains query")
	}
	if desc != "" && strings.Contains(desc, q) {
		score += fullDescriptionScore
		reasons = append(reasons, "description contains query")
	}

	titleHit := false
	descHit := false
	for _, token := range strings.Fields(q) {
		if len(token) <= minTokenLen {
			continue
		}
		if strings.Contains(title, token) {
			score += tokenTitleScore
			titleHit = true
		}
		if desc != "" && strings.Contains(desc, token) {
			score += tokenDescScore
			descHit = true
		}
	}
	if titleHit {
		reasons = append(reasons, "title word match")
	}
	if descHit {
		reasons = append(reasons, "description word match")
	}

	if task.Status != tasks.StatusCompleted {
		score += incompleteBonus
	}

	if len(reasons) == 0 {
		// Reachable only when the incomplete bonus was the sole contribution.
		return score, "no specific match"
	}
	return score, strings.Join(reasons, ", ")
}
