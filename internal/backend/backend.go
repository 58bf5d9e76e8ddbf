// Package backend executes SQL statements against a configured connection,
// either in-process through a database/sql driver (Direct) or by generating,
// compiling, and running a small Java program (External).
package backend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/shakram02/go-mcp-sql/internal/config"
	"github.com/shakram02/go-mcp-sql/internal/result"
)

// Stage identifies where a call failed.
type Stage string

const (
	StageConfig  Stage = "config"
	StageConnect Stage = "connect"
	StageCompile Stage = "compile"
	StageRun     Stage = "run"
	StageParse   Stage = "parse"
)

// Backend runs one statement and returns its normalized outcome.
// Implementations hold no per-call state and are safe for concurrent use.
type Backend interface {
	Execute(ctx context.Context, cfg *config.Connection, statement string) (result.Outcome, error)
}

// Failure is the error every Backend returns. Message is what callers show;
// Err, when set, keeps the underlying cause reachable through errors.Is/As.
type Failure struct {
	Stage   Stage
	Message string
	Err     error
}

func (f *Failure) Error() string {
	return fmt.Sprintf("%s: %s", f.Stage, f.Message)
}

func (f *Failure) Unwrap() error { return f.Err }

func fail(stage Stage, err error) *Failure {
	return &Failure{Stage: stage, Message: err.Error(), Err: err}
}

// StageOf returns the stage of a Failure anywhere in err's chain, or "" if
// there is none.
func StageOf(err error) Stage {
	var f *Failure
	if errors.As(err, &f) {
		return f.Stage
	}
	return ""
}

// New returns the backend that serves cfg's engine. The choice is made once,
// from configuration, and never per call.
func New(log *slog.Logger, cfg *config.Connection) (Backend, error) {
	if cfg != nil && cfg.External() {
		return NewExternal(ExternalConfig{Logger: log, Runner: &ExecRunner{}})
	}
	return NewDirect(DirectConfig{Logger: log})
}
