package telemetry

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	PlanEventName   = "sumctl.plan"
	PlanStepsKey    = "sumctl.plan.steps"
	PlanTitlesKey   = "sumctl.plan.titles"
	SkippedStepsKey = "sumctl.steps.skipped"
	UnitKey         = "sumctl.unit"
)

// PlannedStep is one step an operation announces before running it.
type PlannedStep struct {
	ID    string
	Title string
}

// Plan is the ordered list of steps an operation expects to run.
type Plan struct {
	Steps []PlannedStep
}

// Add appends a step. The title is a format string.
func (p *Plan) Add(id, titleFmt string, args ...any) {
	p.Steps = append(p.Steps, PlannedStep{ID: id, Title: fmt.Sprintf(titleFmt, args...)})
}

func (p Plan) ids() []string {
	ids := make([]string, len(p.Steps))
	for i, s := range p.Steps {
		ids[i] = s.ID
	}
	return ids
}

func (p Plan) validate() error {
	seen := make(map[string]struct{}, len(p.Steps))
	for i, step := range p.Steps {
		id := strings.TrimSpace(step.ID)
		if id == "" {
			return fmt.Errorf("step %d has empty id", i)
		}
		if _, dup := seen[id]; dup {
			return fmt.Errorf("duplicate step id %q", id)
		}
		seen[id] = struct{}{}
	}
	return nil
}

// Operation is a root span with one child span per planned step.
// Steps that were planned but never run are recorded on the root span when it ends.
// A nil *Operation is valid and runs steps without tracing.
type Operation struct {
	name   string
	ctx    context.Context
	tracer trace.Tracer
	span   trace.Span

	mu      sync.Mutex
	plan    Plan
	pending map[string]bool
}

// Start opens the root span of an operation and records its plan.
func Start(ctx context.Context, tracer trace.Tracer, name string, plan Plan, attrs ...attribute.KeyValue) (*Operation, error) {
	if tracer == nil {
		return nil, fmt.Errorf("start %s: tracer is required", name)
	}
	if err := plan.validate(); err != nil {
		return nil, fmt.Errorf("start %s: %w", name, err)
	}

	titles := make([]string, len(plan.Steps))
	pending := make(map[string]bool, len(plan.Steps))
	for i, s := range plan.Steps {
		titles[i] = s.Title
		pending[s.ID] = true
	}

	attrs = append(attrs, attribute.StringSlice(PlanStepsKey, plan.ids()))
	spanCtx, span := tracer.Start(ctx, name, trace.WithAttributes(attrs...))
	span.AddEvent(PlanEventName, trace.WithAttributes(attribute.StringSlice(PlanTitlesKey, titles)))

	return &Operation{
		name:    name,
		ctx:     spanCtx,
		tracer:  tracer,
		span:    span,
		plan:    plan,
		pending: pending,
	}, nil
}

// Context returns the context carrying the root span.
func (o *Operation) Context() context.Context {
	if o == nil {
		return context.Background()
	}
	return o.ctx
}

// RunStep runs fn inside a child span named id. A step missing from the plan, or one
// that already ran, is refused without calling fn.
func (o *Operation) RunStep(ctx context.Context, id string, fn func(context.Context) error) error {
	if fn == nil {
		return nil
	}
	if o == nil || o.tracer == nil {
		return fn(ctx)
	}

	o.mu.Lock()
	planned := o.pending[id]
	delete(o.pending, id)
	o.mu.Unlock()
	if !planned {
		return fmt.Errorf("%s: step %q is not pending in the plan", o.name, id)
	}

	if ctx == nil {
		ctx = o.ctx
	}
	stepCtx, span := o.tracer.Start(ctx, id)
	defer span.End()

	if err := fn(stepCtx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, strings.TrimSpace(err.Error()))
		return err
	}
	return nil
}

// Skipped returns the planned steps that have not run, in plan order.
func (o *Operation) Skipped() []string {
	if o == nil {
		return nil
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	var skipped []string
	for _, s := range o.plan.Steps {
		if o.pending[s.ID] {
			skipped = append(skipped, s.ID)
		}
	}
	return skipped
}

// End closes the root span, recording err when non-nil and any skipped steps.
func (o *Operation) End(err error) {
	if o == nil || o.span == nil {
		return
	}
	if skipped := o.Skipped(); len(skipped) > 0 {
		o.span.SetAttributes(attribute.StringSlice(SkippedStepsKey, skipped))
	}
	if err != nil {
		o.span.RecordError(err)
		o.span.SetStatus(codes.Error, strings.TrimSpace(err.Error()))
	}
	o.span.End()
}
