package brain

import (
	"context"
	"fmt"
	"strings"
)

// MockAdapter provides deterministic local replies when no model is configured.
type MockAdapter struct{}

func NewMockAdapter() *MockAdapter { return &MockAdapter{} }

func (a *MockAdapter) Complete(ctx context.Context, req Request) (Response, error) {
	select {
	case <-ctx.Done():
		return Response{}, ctx.Err()
	default:
	}

	last := ""
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role == RoleUser {
			last = strings.TrimSpace(req.Messages[i].Content)
			break
		}
	}
	if last == "" {
		return Response{Text: "I am listening."}, nil
	}
	return Response{Text: fmt.Sprintf("I heard you: %s", last)}, nil
}

// ScriptedAdapter replays a fixed sequence of responses. It backs tests that
// need to drive the workflow through known model outputs.
type ScriptedAdapter struct {
	Responses []Response
	Err       error
	Requests  []Request
	next      int
}

func (a *ScriptedAdapter) Complete(_ context.Context, req Request) (Response, error) {
	a.Requests = append(a.Requests, req)
	if a.Err != nil {
		return Response{}, a.Err
	}
	if a.next >= len(a.Responses) {
		return Response{Text: "Okay."}, nil
	}
	out := a.Responses[a.next]
	a.next++
	return out, nil
}
