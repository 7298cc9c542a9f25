// Package worker implements the handler registry, dispatcher, and poll/claim
// loop that turns due job rows into handler invocations.
package worker

import (
	"context"
	"encoding/json"
	"strings"
	"sync"

	jmespath "github.com/jmespath-community/go-jmespath"

	appErrors "github.com/arrowhq/scheduler-core/internal/errors"
	"github.com/arrowhq/scheduler-core/internal/domain/model"
)

// HandlerFunc processes one job. It must be idempotent: the lock timeout is
// a heuristic, not a guarantee, and a handler may be invoked more than once
// for the same logical occurrence.
type HandlerFunc func(ctx context.Context, job model.Job) error

// PayloadEvaluator abstracts payload-schema compilation and evaluation for
// testability, mirroring the narrow evaluator interfaces used elsewhere in
// this codebase for third-party expression libraries.
type PayloadEvaluator interface {
	// Validate reports whether expr is a well-formed schema expression.
	Validate(expr string) error
	// Evaluate resolves expr against data, returning nil if the path is
	// absent.
	Evaluate(expr string, data any) (any, error)
}

// jmespathEvaluator implements PayloadEvaluator using go-jmespath: each
// schema entry is a JMESPath expression naming a required payload field
// (e.g. "user_identity", "prompt_text"); dispatch treats a nil or missing
// result as a validation failure.
type jmespathEvaluator struct{}

func (jmespathEvaluator) Validate(expr string) error {
	if strings.TrimSpace(expr) == "" {
		return nil
	}
	_, err := jmespath.Compile(expr)
	return err
}

func (jmespathEvaluator) Evaluate(expr string, data any) (any, error) {
	return jmespath.Search(expr, data)
}

type handlerEntry struct {
	schema []string
	fn     HandlerFunc
}

// Registry maps job types to handlers and their required-field payload
// schemas. Registration happens explicitly at startup, never via
// import-time side effects.
type Registry struct {
	mu        sync.RWMutex
	handlers  map[model.JobType]handlerEntry
	evaluator PayloadEvaluator
}

// RegistryOptions configures a Registry.
type RegistryOptions struct {
	// Evaluator validates and evaluates schema expressions. Defaults to a
	// go-jmespath-backed evaluator when nil.
	Evaluator PayloadEvaluator
}

// NewRegistry constructs an empty Registry.
func NewRegistry(opts RegistryOptions) *Registry {
	evaluator := opts.Evaluator
	if evaluator == nil {
		evaluator = jmespathEvaluator{}
	}
	return &Registry{
		handlers:  make(map[model.JobType]handlerEntry),
		evaluator: evaluator,
	}
}

// RegisterHandler registers fn for jobType, validated against schema: each
// entry is a JMESPath expression naming a field the payload must carry a
// non-null value for. Re-registering a jobType overwrites the prior entry.
func (r *Registry) RegisterHandler(jobType model.JobType, schema []string, fn HandlerFunc) error {
	if jobType == "" {
		return appErrors.Configf("job type must not be empty")
	}
	if fn == nil {
		return appErrors.Configf("handler for job type %q must not be nil", jobType)
	}
	for _, expr := range schema {
		if err := r.evaluator.Validate(expr); err != nil {
			return appErrors.Wrapf(err, appErrors.ErrCodeConfig, "invalid payload schema expression %q for job type %q", expr, jobType)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[jobType] = handlerEntry{schema: schema, fn: fn}
	return nil
}

// lookup returns the registered handler entry for jobType, if any.
func (r *Registry) lookup(jobType model.JobType) (handlerEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.handlers[jobType]
	return entry, ok
}

// validatePayload decodes payload and checks every schema expression
// resolves to a non-null value.
func (r *Registry) validatePayload(payload json.RawMessage, schema []string) error {
	if len(schema) == 0 {
		return nil
	}

	var data any
	if len(payload) == 0 {
		data = map[string]any{}
	} else if err := json.Unmarshal(payload, &data); err != nil {
		return appErrors.PayloadInvalidf("payload", "payload is not valid json: %v", err)
	}

	for _, expr := range schema {
		result, err := r.evaluator.Evaluate(expr, data)
		if err != nil {
			return appErrors.PayloadInvalidf(expr, "schema expression %q failed: %v", expr, err)
		}
		if result == nil {
			return appErrors.PayloadInvalidf(expr, "required field %q is missing", expr)
		}
	}
	return nil
}

// Dispatch resolves the handler for job.JobType, validates the stored
// payload against its declared schema, then invokes the handler
// synchronously. NoHandler, PayloadInvalid, and HandlerError are all
// reported as ordinary errors; the worker treats every one of them as a
// job failure that advances attempts.
func (r *Registry) Dispatch(ctx context.Context, j model.Job) error {
	entry, ok := r.lookup(j.JobType)
	if !ok {
		return appErrors.NoHandlerf("no handler registered for job type %q", j.JobType)
	}

	if err := r.validatePayload(j.Payload, entry.schema); err != nil {
		return err
	}

	if err := entry.fn(ctx, j); err != nil {
		return appErrors.HandlerError("handler returned an error", err)
	}
	return nil
}
