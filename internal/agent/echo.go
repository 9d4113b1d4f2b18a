package agent

import (
	"context"
	"fmt"
)

// Echo is the placeholder backend: it acknowledges the task without
// calling any model.
type Echo struct {
	id string
}

func NewEcho(id string) *Echo {
	return &Echo{id: id}
}

func (e *Echo) ID() string { return e.id }

func (e *Echo) Execute(_ context.Context, task string) (Result, error) {
	return Result{
		Success: true,
		Content: fmt.Sprintf("[Agent %s] Executed: %s", e.id, task),
	}, nil
}
