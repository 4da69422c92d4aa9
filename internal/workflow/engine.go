package workflow

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/avitale/donna/internal/brain"
	"github.com/avitale/donna/internal/dates"
	"github.com/avitale/donna/internal/intent"
	"github.com/avitale/donna/internal/match"
	"github.com/avitale/donna/internal/observability"
	"github.com/avitale/donna/internal/session"
	"github.com/avitale/donna/internal/tasks"
)

// Stage names the nodes of the per-turn state graph.
type Stage string

const (
	StageIntent  Stage = "intent_analysis"
	StageSearch  Stage = "task_search"
	StageConfirm Stage = "confirmation"
	StageChat    Stage = "chat_response"
	StageEnd     Stage = "end"
)

const genericFailureReply = "Sorry, something went wrong on my end. Could you try that again?"

// Config tunes the engine.
type Config struct {
	SearchLimit        int
	DuplicateThreshold int
	MaxToolRounds      int
}

// Engine drives one chat turn through the intent -> search -> confirmation
// -> chat pipeline. It is the single writer of session turn context; the
// session manager's per-session lock guarantees at most one in-flight turn.
type Engine struct {
	store    tasks.Store
	matcher  *match.Matcher
	analyzer *intent.Analyzer
	adapter  brain.Adapter
	dates    *dates.Parser
	sessions *session.Manager
	metrics  *observability.Metrics
	cfg      Config
}

func NewEngine(store tasks.Store, adapter brain.Adapter, sessions *session.Manager, metrics *observability.Metrics, cfg Config) *Engine {
	if cfg.SearchLimit <= 0 {
		cfg.SearchLimit = 10
	}
	if cfg.DuplicateThreshold <= 0 {
		cfg.DuplicateThreshold = match.DuplicateThreshold
	}
	if cfg.MaxToolRounds <= 0 {
		cfg.MaxToolRounds = 4
	}
	return &Engine{
		store:    store,
		matcher:  match.New(store),
		analyzer: intent.NewAnalyzer(adapter),
		adapter:  adapter,
		dates:    dates.NewParser(),
		sessions: sessions,
		metrics:  metrics,
		cfg:      cfg,
	}
}

// Result is what one turn produced.
type Result struct {
	Reply   string              `json:"reply"`
	Outcome string              `json:"outcome"`
	Context session.TurnContext `json:"context"`
}

// turnState is the working state of one turn. The session's turn context is
// copied in at the start and persisted only after the turn completes.
type turnState struct {
	owner   string
	message string
	history []session.Message
	tc      session.TurnContext
	ui      intent.UserIntent
	note    string
	reply   string
}

// RunTurn executes one full turn for a session: classify, route, maybe
// search or confirm, then generate the response (running any tool calls the
// model requests). Unexpected panics are caught at this boundary and the
// previously persisted context is left untouched.
func (e *Engine) RunTurn(ctx context.Context, sessionID, userMessage string) (Result, error) {
	userMessage = strings.TrimSpace(userMessage)
	if userMessage == "" {
		return Result{}, fmt.Errorf("empty message")
	}

	unlock, err := e.sessions.Lock(sessionID)
	if err != nil {
		return Result{}, err
	}
	defer unlock()

	sess, err := e.sessions.Get(sessionID)
	if err != nil {
		return Result{}, err
	}

	turnStarted := time.Now()
	if err := e.sessions.AppendMessage(sessionID, session.RoleUser, userMessage); err != nil {
		return Result{}, err
	}

	st := &turnState{
		owner:   sess.UserID,
		message: userMessage,
		history: append(sess.Messages, session.Message{Role: session.RoleUser, Content: userMessage, At: time.Now().UTC()}),
		tc:      sess.Context,
	}

	outcome := "ok"
	persist := true
	func() {
		defer func() {
			if r := recover(); r != nil {
				log.Printf("turn panic session=%s: %v", sessionID, r)
				st.reply = genericFailureReply
				outcome = "panic"
				persist = false
			}
		}()
		e.runStages(ctx, st)
	}()

	if st.reply == "" {
		st.reply = genericFailureReply
	}
	_ = e.sessions.AppendMessage(sessionID, session.RoleAssistant, st.reply)
	if persist {
		if err := e.sessions.SaveContext(sessionID, st.tc); err != nil {
			return Result{}, err
		}
	}

	if e.metrics != nil {
		e.metrics.Turns.WithLabelValues(outcome).Inc()
		e.metrics.ObserveTurnLatency(time.Since(turnStarted))
		e.metrics.ObserveStage("turn_total", time.Since(turnStarted))
	}
	return Result{Reply: st.reply, Outcome: outcome, Context: st.tc}, nil
}

// runStages is the driver loop: dispatch the current stage, then ask the
// routing function for the next one, until the turn reaches a terminal state.
func (e *Engine) runStages(ctx context.Context, st *turnState) {
	stage := StageIntent
	for stage != StageEnd {
		started := time.Now()
		var next Stage
		switch stage {
		case StageIntent:
			next = e.runIntent(ctx, st)
		case StageSearch:
			next = e.runSearch(ctx, st)
		case StageConfirm:
			next = e.runConfirmation(ctx, st)
		case StageChat:
			e.runChat(ctx, st)
			next = StageEnd
		default:
			next = StageEnd
		}
		if e.metrics != nil {
			e.metrics.ObserveStage(string(stage), time.Since(started))
		}
		stage = next
	}
}

func (e *Engine) runIntent(ctx context.Context, st *turnState) Stage {
	st.ui = e.analyzer.Analyze(ctx, st.message)
	if e.metrics != nil {
		e.metrics.Intents.WithLabelValues(string(st.ui.Action)).Inc()
	}

	// A pending yes/no question takes priority over re-classifying the
	// reply as a new intent.
	if st.tc.AwaitingConfirmation {
		return StageConfirm
	}

	st.tc.UserIntent = &st.ui

	// An outstanding incomplete creation is abandoned as soon as the user
	// moves on to a non-create intent. Plain chat keeps it alive so the
	// user can still supply the missing fields conversationally.
	if st.tc.PendingTask != nil && st.ui.Action != intent.ActionCreate && st.ui.Action != intent.ActionChat {
		st.tc.PendingTask = nil
	}

	switch st.ui.Action {
	case intent.ActionCreate, intent.ActionUpdate, intent.ActionDelete, intent.ActionComplete, intent.ActionList:
		return StageSearch
	default:
		return StageChat
	}
}
