// Package gate provides the sequential, fail-fast execution engine. It
// is consumed by the CLI, the watcher and the MCP server.
package gate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/deixis/gate/internal/plan"
	"github.com/deixis/gate/internal/report"
	"github.com/deixis/gate/internal/runner"
	"github.com/deixis/gate/internal/telemetry"
)

// Exit codes used when a step has no exit status of its own.
const (
	ExitCannotStart = 126 // program found but could not be executed
	ExitNotFound    = 127 // program not on PATH
	ExitInterrupted = 130 // run cancelled before the step could start
)

// CommandRunner executes one plan command.
// Implemented by runner.Runner.
type CommandRunner interface {
	Run(ctx context.Context, c plan.Command) (*runner.Result, error)
}

// Engine runs plans. It holds no state between runs.
type Engine struct {
	Runner   CommandRunner
	Logger   *zap.Logger  // nil means no logging
	Tracer   trace.Tracer // nil means the global gate tracer
	Observer Observer     // optional
}

// Run executes p's commands in order and stops at the first failure.
// Later commands are never started and are reported as skipped. The
// returned error is non-nil only when p cannot be run at all; command
// failures are described by the result (see Err).
func (e *Engine) Run(ctx context.Context, p *plan.Plan) (*report.RunResult, error) {
	if p == nil || p.Len() == 0 {
		return nil, plan.ErrEmptyPlan
	}
	if e.Runner == nil {
		return nil, errors.New("gate: engine has no runner")
	}
	log := e.logger()
	obs := e.observer()

	cmds := p.Commands()
	rr := &report.RunResult{
		ID:        uuid.New().String(),
		Mode:      string(p.Mode()),
		Started:   time.Now(),
		Steps:     make([]report.StepRecord, len(cmds)),
		FailedIdx: -1,
	}
	for i, c := range cmds {
		rr.Steps[i] = report.StepRecord{Index: i, Name: c.Name, Argv: c.Argv(), Status: report.Skipped}
	}

	ctx, span := e.tracer().Start(ctx, "gate.run", trace.WithAttributes(
		attribute.String("gate.run_id", rr.ID),
		attribute.String("gate.mode", rr.Mode),
		attribute.Int("gate.steps", len(cmds)),
	))
	defer span.End()

	log = log.With(zap.String("run", rr.ID))
	log.Debug("run started", zap.String("mode", rr.Mode), zap.Int("steps", len(cmds)))

	for i, c := range cmds {
		obs.StepStarted(i, c)
		rec := e.runStep(ctx, log, i, c)
		rr.Steps[i] = rec
		obs.StepFinished(i, rec)

		if rec.Status != report.Pass {
			rr.FailedIdx = i
			rr.ExitCode = rec.ExitCode
			break
		}
	}
	rr.Finished = time.Now()

	if rr.Passed() {
		span.SetStatus(codes.Ok, "")
		log.Info("gate passed", zap.Int("steps", len(cmds)), zap.Duration("elapsed", rr.Duration()))
	} else {
		failed := rr.Steps[rr.FailedIdx]
		span.SetStatus(codes.Error, fmt.Sprintf("step %s failed", failed.Name))
		log.Error("gate failed",
			zap.String("step", failed.Name),
			zap.Int("exit_code", rr.ExitCode),
			zap.Int("skipped", len(cmds)-rr.FailedIdx-1),
		)
	}
	span.SetAttributes(attribute.Int("gate.exit_code", rr.ExitCode))
	obs.Finished(rr)

	return rr, nil
}

// runStep executes a single command and converts the outcome to a record.
func (e *Engine) runStep(ctx context.Context, log *zap.Logger, i int, c plan.Command) report.StepRecord {
	rec := report.StepRecord{Index: i, Name: c.Name, Argv: c.Argv()}

	ctx, span := e.tracer().Start(ctx, "gate.step", trace.WithAttributes(
		attribute.Int("gate.step.index", i),
		attribute.String("gate.step.name", c.Name),
		attribute.String("gate.step.command", strings.Join(rec.Argv, " ")),
	))
	defer span.End()

	stepLog := log.With(zap.String("step", c.Name))

	// Interrupted between steps: do not start anything new.
	if err := ctx.Err(); err != nil {
		rec.Status = report.Fail
		rec.ExitCode = ExitInterrupted
		rec.Error = "interrupted: " + err.Error()
		span.SetStatus(codes.Error, rec.Error)
		stepLog.Warn("step not started", zap.Error(err))
		return rec
	}

	stepLog.Info("step started", zap.String("command", c.String()))
	res, err := e.Runner.Run(ctx, c)
	if err != nil {
		rec.Status = report.Fail
		rec.ExitCode = ExitCannotStart
		if errors.Is(err, plan.ErrNotFound) {
			rec.Status = report.NotFound
			rec.ExitCode = ExitNotFound
		}
		rec.Error = err.Error()
		span.RecordError(err)
		span.SetStatus(codes.Error, rec.Error)
		span.SetAttributes(attribute.Int("gate.step.exit_code", rec.ExitCode))
		stepLog.Error("step could not start", zap.Error(err), zap.Int("exit_code", rec.ExitCode))
		return rec
	}

	rec.ExitCode = res.ExitCode
	rec.Duration = res.Duration
	rec.Output = res.Output()
	rec.Truncated = res.Truncated
	span.SetAttributes(attribute.Int("gate.step.exit_code", res.ExitCode))

	if res.ExitCode == 0 {
		rec.Status = report.Pass
		span.SetStatus(codes.Ok, "")
		stepLog.Info("step passed", zap.Duration("elapsed", res.Duration))
		return rec
	}

	rec.Status = report.Fail
	if res.Interrupted {
		rec.Error = "interrupted"
	}
	span.SetStatus(codes.Error, fmt.Sprintf("exit status %d", res.ExitCode))
	stepLog.Error("step failed", zap.Int("exit_code", res.ExitCode), zap.Duration("elapsed", res.Duration))
	return rec
}

func (e *Engine) logger() *zap.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return zap.NewNop()
}

func (e *Engine) tracer() trace.Tracer {
	if e.Tracer != nil {
		return e.Tracer
	}
	return telemetry.Tracer()
}

func (e *Engine) observer() Observer {
	if e.Observer != nil {
		return e.Observer
	}
	return nopObserver{}
}
