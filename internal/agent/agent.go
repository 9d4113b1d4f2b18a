// Package agent defines the capability the orchestrator invokes to get a
// reply for a task, and the backends that provide it.
package agent

import (
	"context"
	"errors"
	"fmt"
)

// ErrExecutionFailed is returned by Run when an agent reports an
// unsuccessful execution without an error of its own.
var ErrExecutionFailed = errors.New("agent execution failed")

type ToolCall struct {
	Name string         `json:"name"`
	Args map[string]any `json:"args,omitempty"`
}

type Result struct {
	Success   bool       `json:"success"`
	Content   string     `json:"content"`
	ToolCalls []ToolCall `json:"toolCalls,omitempty"`
}

// Agent executes a task string and returns a textual result.
type Agent interface {
	ID() string
	Execute(ctx context.Context, task string) (Result, error)
}

// Run executes task on a and folds an unsuccessful result into an error,
// recovering from panics so one agent cannot take down its caller.
func Run(ctx context.Context, a Agent, task string) (res Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("agent %s panicked: %v", a.ID(), r)
		}
	}()

	res, err = a.Execute(ctx, task)
	if err != nil {
		return Result{}, err
	}
	if !res.Success {
		return Result{}, fmt.Errorf("%w: %s", ErrExecutionFailed, a.ID())
	}
	return res, nil
}
