// Package userrunner implements the User Runner: the concrete
// userloop.UserCommands backing a single user, wired to that user's slice
// of the worker process's buffer.Buffer. Grounded on the original
// implementation's UserCommands (_examples/original_source/cicadad/core/commands.py)
// and user_runner (_examples/original_source/cicadad/core/runners.py).
//
// Deviation from the original: the Python implementation captures a
// scenario's output by redirecting the process-global sys.stdout, which
// is unsafe once many users run concurrently on goroutines sharing a
// handful of OS threads. Go idiom instead threads a per-invocation
// io.Writer through context — scenario authors that want captured,
// stdout-style output call LogsWriter(ctx) and write to it explicitly.
// Nothing written to the real os.Stdout is captured; this is a documented
// trade, not a silent gap.
package userrunner

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"cicadad/internal/backend"
	"cicadad/internal/buffer"
	"cicadad/internal/userloop"

	"github.com/google/uuid"
)

// ScenarioFunc is a scenario's invocation body. The scenario context
// (spec.md's "context" object, decoded via internal/testcontext) is
// available through ctx via ScenarioContext(ctx), not as a direct
// parameter, matching how the teacher threads call-scoped values through
// context.Context instead of a growing parameter list.
type ScenarioFunc func(ctx context.Context) (output any, err error)

type logsWriterKey struct{}

// LogsWriter returns the io.Writer a scenario function should write
// captured "stdout-style" output to for this invocation, or io.Discard if
// none is installed (e.g. the function is invoked outside a User Runner).
func LogsWriter(ctx context.Context) io.Writer {
	if w, ok := ctx.Value(logsWriterKey{}).(io.Writer); ok {
		return w
	}
	return io.Discard
}

type scenarioContextKey struct{}

// ScenarioContext returns the decoded context object the Test Runner
// handed down for this scenario run, or an empty map if none was
// installed (e.g. the function is invoked outside a User Runner).
func ScenarioContext(ctx context.Context) map[string]interface{} {
	if c, ok := ctx.Value(scenarioContextKey{}).(map[string]interface{}); ok {
		return c
	}
	return map[string]interface{}{}
}

// WithScenarioContext attaches the scenario context a worker process
// decoded from its --context flag, so every user's invocations of fn can
// read it back via ScenarioContext.
func WithScenarioContext(ctx context.Context, scenarioContext map[string]interface{}) context.Context {
	return context.WithValue(ctx, scenarioContextKey{}, scenarioContext)
}

func withLogsWriter(ctx context.Context, w io.Writer) context.Context {
	return context.WithValue(ctx, logsWriterKey{}, w)
}

// Runner is one user's userloop.UserCommands implementation.
type Runner struct {
	userID     backend.UserId
	managerID  backend.UserManagerId
	buf        *buffer.Buffer
	fn         ScenarioFunc
	availWork  int
}

// NewRunner constructs a Runner for userID, backed by buf and invoking fn
// each time the loop policy calls Run.
func NewRunner(userID backend.UserId, managerID backend.UserManagerId, buf *buffer.Buffer, fn ScenarioFunc) *Runner {
	return &Runner{userID: userID, managerID: managerID, buf: buf, fn: fn}
}

// IsUp reads STOP_USERS events and reports false the moment one of them
// names this runner's user id.
func (r *Runner) IsUp(ctx context.Context) (bool, error) {
	events, err := r.buf.GetUserEvents(ctx, r.userID, backend.EventStopUsers)
	if err != nil {
		return false, fmt.Errorf("userrunner: is_up: %w", err)
	}

	for _, event := range events {
		for _, id := range event.UserEventIDs() {
			if id == r.userID {
				return false, nil
			}
		}
	}

	return true, nil
}

// HasWork consumes one token from the local counter if available; if the
// counter is empty, it attempts exactly one refill from the buffer before
// giving up.
func (r *Runner) HasWork(ctx context.Context, timeout time.Duration) (bool, error) {
	if r.availWork < 1 {
		work, err := r.buf.GetUserWork(ctx, r.userID)
		if err != nil {
			return false, fmt.Errorf("userrunner: has_work: %w", err)
		}
		r.availWork += work
	}

	if r.availWork > 0 {
		r.availWork--
		return true, nil
	}

	return false, nil
}

// Run invokes the scenario function once, capturing its logs writer
// output and translating a panic or returned error into the exception
// return value. It never panics itself.
func (r *Runner) Run(ctx context.Context) (output backend.Value, scenarioErr error, logs string) {
	var buf bytes.Buffer
	runCtx := withLogsWriter(ctx, &buf)

	result, err := r.invoke(runCtx)
	if err != nil {
		fmt.Fprintf(&buf, "\nException: %s\n", err)
		return backend.NullValue(), err, buf.String()
	}

	return backend.JSONValue(result), nil, buf.String()
}

// invoke recovers a panicking scenario function into an error, matching
// the original's blanket try/except around the user's function body.
func (r *Runner) invoke(ctx context.Context) (out any, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("scenario function panicked: %v", rec)
		}
	}()

	return r.fn(ctx)
}

// ReportResult builds a Result with a fresh ResultId and timestamp and
// forwards it to the buffer.
func (r *Runner) ReportResult(ctx context.Context, output backend.Value, scenarioErr error, logs string, timeTaken time.Duration) error {
	var exception *string
	if scenarioErr != nil {
		msg := scenarioErr.Error()
		exception = &msg
	}

	result := backend.Result{
		ID:        backend.ResultId(uuid.NewString()),
		Output:    output,
		Exception: exception,
		Logs:      logs,
		Timestamp: time.Now().Unix(),
		TimeTaken: timeTaken.Seconds(),
	}

	r.buf.AddUserResult(result)
	return nil
}

var _ userloop.UserCommands = (*Runner)(nil)
