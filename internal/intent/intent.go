package intent

// Action is the task operation a user utterance maps to.
type Action string

const (
	ActionCreate   Action = "create"
	ActionUpdate   Action = "update"
	ActionDelete   Action = "delete"
	ActionComplete Action = "complete"
	ActionList     Action = "list"
	ActionChat     Action = "chat"
)

// Extracted holds the best-effort structured fields pulled from the
// utterance. Everything is optional.
type Extracted struct {
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	Priority    string `json:"priority,omitempty"`
	DueDate     string `json:"due_date,omitempty"`
	Status      string `json:"status,omitempty"`
	Query       string `json:"search_query,omitempty"`
}

// UserIntent is the classification result for one user utterance.
type UserIntent struct {
	Action     Action    `json:"action"`
	Confidence float64   `json:"confidence"`
	Reason     string    `json:"reason,omitempty"`
	Extracted  Extracted `json:"extracted_info,omitempty"`
}

// Targeted reports whether the action operates on existing tasks and so
// needs a search stage before it can proceed.
func (i UserIntent) Targeted() bool {
	switch i.Action {
	case ActionUpdate, ActionDelete, ActionComplete:
		return true
	default:
		return false
	}
}
