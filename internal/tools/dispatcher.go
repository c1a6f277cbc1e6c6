package tools

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/ent0n29/iris/internal/logging"
	"github.com/ent0n29/iris/internal/protocol"
)

const (
	defaultTimeout     = 20 * time.Second
	defaultConcurrency = 8
)

// Observer receives per-call outcomes, e.g. for metrics.
type Observer interface {
	ObserveTool(name, outcome string, elapsed time.Duration)
}

// Dispatcher runs a batch of tool calls concurrently and answers every call.
type Dispatcher struct {
	registry *Registry
	timeout  time.Duration
	observer Observer
	log      zerolog.Logger
}

func NewDispatcher(registry *Registry, timeout time.Duration, observer Observer) *Dispatcher {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Dispatcher{
		registry: registry,
		timeout:  timeout,
		observer: observer,
		log:      logging.L("tools"),
	}
}

func (d *Dispatcher) Declarations() []protocol.FunctionDeclaration {
	return d.registry.Declarations()
}

// Dispatch returns exactly one result per call, in call order. It never fails:
// errors, timeouts and panics become {"error": ...} results.
func (d *Dispatcher) Dispatch(ctx context.Context, calls []protocol.ToolCall) []protocol.ToolResult {
	results := make([]protocol.ToolResult, len(calls))
	var g errgroup.Group
	g.SetLimit(defaultConcurrency)
	for i, call := range calls {
		g.Go(func() error {
			results[i] = d.run(ctx, call)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (d *Dispatcher) run(ctx context.Context, call protocol.ToolCall) protocol.ToolResult {
	start := time.Now()
	callCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	type outcome struct {
		value any
		err   error
	}
	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: fmt.Errorf("tool %s panicked: %v", call.Name, r)}
			}
		}()
		v, err := d.registry.Execute(callCtx, call.Name, Args(call.Args))
		done <- outcome{value: v, err: err}
	}()

	var out outcome
	select {
	case out = <-done:
	case <-callCtx.Done():
		out.err = fmt.Errorf("%w after %s", ErrTimeout, d.timeout)
		if ctx.Err() != nil {
			out.err = ctx.Err()
		}
	}

	elapsed := time.Since(start)
	status := "ok"
	var result protocol.ToolResult
	if out.err != nil {
		status = "error"
		result = protocol.ResultError(call.ID, call.Name, out.err.Error())
		d.log.Warn().
			Str(logging.KeyTool, call.Name).
			Str(logging.KeyCallID, call.ID).
			Err(out.err).
			Msg("tool call failed")
	} else {
		result = protocol.ResultValue(call.ID, call.Name, out.value)
		d.log.Debug().
			Str(logging.KeyTool, call.Name).
			Str(logging.KeyCallID, call.ID).
			Int64(logging.KeyDurationMs, elapsed.Milliseconds()).
			Msg("tool call completed")
	}
	if d.observer != nil {
		d.observer.ObserveTool(call.Name, status, elapsed)
	}
	return result
}
