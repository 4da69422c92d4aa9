package tasks

import "strings"

// Draft is a partially specified task collected across chat turns.
type Draft struct {
	Title       string     `json:"title,omitempty"`
	Description string     `json:"description,omitempty"`
	Priority    Priority   `json:"priority,omitempty"`
	DueDate     string     `json:"due_date,omitempty"`
	Missing     []string   `json:"missing_fields,omitempty"`
}

// Validation is the outcome of checking a draft against the required fields.
type Validation struct {
	CanCreate     bool     `json:"can_create"`
	Draft         Draft    `json:"task_data"`
	MissingFields []string `json:"missing_fields,omitempty"`
}

// requiredFields is the set a task must have before it can be created.
var requiredFields = []string{"title"}

// ValidateDraft checks whether a draft has every required field. It is a pure
// function: no store access, no mutation of its input.
func ValidateDraft(draft Draft) Validation {
	draft.Title = strings.TrimSpace(draft.Title)
	draft.Description = strings.TrimSpace(draft.Description)

	var missing []string
	for _, field := range requiredFields {
		switch field {
		case "title":
			if draft.Title == "" {
				missing = append(missing, "title")
			}
		}
	}

	draft.Missing = missing
	return Validation{
		CanCreate:     len(missing) == 0,
		Draft:         draft,
		MissingFields: missing,
	}
}
