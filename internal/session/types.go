package session

import (
	"time"

	"github.com/avitale/donna/internal/intent"
	"github.com/avitale/donna/internal/match"
	"github.com/avitale/donna/internal/tasks"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type Status string

const (
	StatusActive Status = "active"
	StatusEnded  Status = "ended"
)

// Message is one conversational entry in a session.
type Message struct {
	Role    Role      `json:"role"`
	Content string    `json:"content"`
	At      time.Time `json:"at"`
}

// OperationDetails is the concrete pending mutation awaiting confirmation.
type OperationDetails struct {
	Action intent.Action `json:"action"`
	TaskID string        `json:"task_id"`
	Patch  tasks.Patch   `json:"patch,omitempty"`
}

// TurnContext carries workflow state across turns. It is written only by the
// workflow engine at the end of a turn.
type TurnContext struct {
	PendingTask          *tasks.Draft       `json:"pending_task,omitempty"`
	UserIntent           *intent.UserIntent `json:"user_intent,omitempty"`
	FoundTasks           []match.ScoredTask `json:"found_tasks,omitempty"`
	SelectedTaskID       string             `json:"selected_task_id,omitempty"`
	AwaitingConfirmation bool               `json:"awaiting_confirmation"`
	Operation            *OperationDetails  `json:"operation_details,omitempty"`
}

// ClearConfirmation drops every piece of pending-operation state.
func (c *TurnContext) ClearConfirmation() {
	c.AwaitingConfirmation = false
	c.Operation = nil
	c.SelectedTaskID = ""
	c.FoundTasks = nil
}

// Session is one persisted conversation between a user and the assistant.
type Session struct {
	ID             string      `json:"session_id"`
	UserID         string      `json:"user_id"`
	Status         Status      `json:"status"`
	Messages       []Message   `json:"messages"`
	Context        TurnContext `json:"context"`
	StartedAt      time.Time   `json:"started_at"`
	LastActivityAt time.Time   `json:"last_activity_at"`
}

// CreateRequest defines the payload for opening a new session.
type CreateRequest struct {
	UserID string `json:"user_id"`
}

// CreateResponse returns created session metadata.
type CreateResponse struct {
	SessionID       string    `json:"session_id"`
	UserID          string    `json:"user_id"`
	Status          Status    `json:"status"`
	StartedAt       time.Time `json:"started_at"`
	InactivityTTLMS int64     `json:"inactivity_ttl_ms"`
}
