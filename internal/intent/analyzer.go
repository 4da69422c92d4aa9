package intent

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/avitale/donna/internal/brain"
)

const classifyPrompt = `You classify a user's message for a task-management assistant.

Pick exactly one action:
- "create": the user wants a new task ("remind me", "I need to", "add", "don't let me forget").
- "update": the user wants to change an existing task ("move", "change", "postpone", "reschedule", "make it high priority").
- "delete": the user wants a task removed ("delete", "remove", "cancel", "forget about").
- "complete": the user finished something ("done", "finished", "completed", "I did").
- "list": the user wants to see tasks ("show", "what's on my list", "what do I have").
- "chat": anything else (greetings, questions, small talk).

Extract any fields the message mentions. Leave fields out when absent.
Due dates stay as the user's own words ("tomorrow at 5 PM", "friday").

Respond with ONLY this JSON object, no prose:
{
  "action": "create|update|delete|complete|list|chat",
  "confidence": 0.0,
  "reason": "one short sentence",
  "extracted_info": {
    "title": "", "description": "", "priority": "low|medium|high",
    "due_date": "", "status": "", "search_query": ""
  }
}`

// Analyzer maps a user utterance to a structured intent via one model call.
// It never mutates the task store and never returns an error: classification
// failures degrade to a low-confidence "chat" intent.
type Analyzer struct {
	adapter brain.Adapter
}

func NewAnalyzer(adapter brain.Adapter) *Analyzer {
	return &Analyzer{adapter: adapter}
}

// Analyze classifies the newest user message. Only that single utterance is
// evaluated, not the conversation history.
func (a *Analyzer) Analyze(ctx context.Context, lastUserMessage string) UserIntent {
	lastUserMessage = strings.TrimSpace(lastUserMessage)
	if lastUserMessage == "" {
		return chatFallback("empty message")
	}

	res, err := a.adapter.Complete(ctx, brain.Request{
		Messages: []brain.Message{
			{Role: brain.RoleSystem, Content: classifyPrompt},
			{Role: brain.RoleUser, Content: lastUserMessage},
		},
	})
	if err != nil {
		return chatFallback("classifier error: " + err.Error())
	}

	parsed, ok := ParseIntentJSON(res.Text)
	if !ok {
		return chatFallback("could not determine intent")
	}
	return parsed
}

// ParseIntentJSON extracts a UserIntent from untrusted model output. It
// accepts a fenced JSON block, else the first top-level {...} span.
func ParseIntentJSON(text string) (UserIntent, bool) {
	span := extractJSONSpan(text)
	if span == "" {
		return UserIntent{}, false
	}

	var out UserIntent
	if err := json.Unmarshal([]byte(span), &out); err != nil {
		return UserIntent{}, false
	}

	switch out.Action {
	case ActionCreate, ActionUpdate, ActionDelete, ActionComplete, ActionList, ActionChat:
	default:
		return UserIntent{}, false
	}
	if out.Confidence < 0 || out.Confidence > 1 {
		out.Confidence = 0.5
	}
	if strings.TrimSpace(out.Reason) == "" {
		out.Reason = "classified"
	}
	return out, true
}

// extractJSONSpan locates a fenced ```json block when present, otherwise the
// first balanced top-level object. Braces inside JSON strings are skipped.
func extractJSONSpan(text string) string {
	if idx := strings.Index(text, "```"); idx >= 0 {
		rest := text[idx+3:]
		rest = strings.TrimPrefix(rest, "json")
		if end := strings.Index(rest, "```"); end >= 0 {
			if span := firstObject(rest[:end]); span != "" {
				return span
			}
		}
	}
	return firstObject(text)
}

func firstObject(text string) string {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return ""
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return text[start : i+1]
			}
		}
	}
	return ""
}

func chatFallback(reason string) UserIntent {
	return UserIntent{
		Action:     ActionChat,
		Confidence: 0.5,
		Reason:     reason,
	}
}
