package engine

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/roach88/vigil/internal/mutation"
)

// Source is the state owner the engine observes.
//
// State must never block on subscribers. Subscribe must return the snapshot
// current at registration time, atomically with registering the
// subscription, so that no mutation falls between the two.
type Source[S any] interface {
	State() S
	Subscribe() (S, *mutation.Subscription[S])
}

// Session kinds.
const (
	KindObserveUntil  = "observe_until"
	KindObserveAndRun = "observe_and_run"
	KindRunWhile      = "run_while"
)

// Session outcomes.
const (
	OutcomeResolved   = "resolved"
	OutcomeTerminated = "terminated"
	OutcomeCompleted  = "completed"
	OutcomeViolated   = "violated"
	OutcomeCancelled  = "cancelled"
	OutcomeFailed     = "failed"
)

// SessionRecord summarizes one finished session.
type SessionRecord struct {
	ID         string
	Kind       string
	Outcome    string
	Violations []string
}

// Recorder persists session outcomes. Implemented by journal.Journal.
type Recorder interface {
	RecordSession(ctx context.Context, rec SessionRecord) error
}

// Option configures a session.
type Option func(*options)

type options struct {
	logger   *slog.Logger
	ids      IDGenerator
	recorder Recorder
	tracer   trace.Tracer

	detached      bool
	onDetachedErr func(error)
}

// WithLogger sets the session logger.
//
// Default: slog.Default()
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithIDGenerator sets the session id source.
//
// Default: UUIDv7Generator
func WithIDGenerator(gen IDGenerator) Option {
	return func(o *options) {
		o.ids = gen
	}
}

// WithRecorder records every finished session.
func WithRecorder(r Recorder) Option {
	return func(o *options) {
		o.recorder = r
	}
}

// WithTracer overrides the tracer used for session spans.
func WithTracer(t trace.Tracer) Option {
	return func(o *options) {
		o.tracer = t
	}
}

// WithDetachedReactions makes a reactor fork its reactions fire-and-forget.
//
// Detached reactions are not cancelled when the observation loop stops, and
// Run does not wait for them. A failing reaction is logged and, if onErr is
// non-nil, passed to onErr; it never stops the loop.
func WithDetachedReactions(onErr func(error)) Option {
	return func(o *options) {
		o.detached = true
		o.onDetachedErr = onErr
	}
}

func newOptions(opts []Option) *options {
	o := &options{
		logger: slog.Default(),
		ids:    UUIDv7Generator{},
		tracer: tracer,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// session tracks one top-level invocation from start to outcome.
type session struct {
	id     string
	kind   string
	span   trace.Span
	logger *slog.Logger
	opts   *options
}

func (o *options) start(ctx context.Context, kind string) (context.Context, *session) {
	id := o.ids.Generate()
	ctx, span := o.tracer.Start(ctx, "vigil."+kind,
		trace.WithAttributes(
			attribute.String("session.id", id),
			attribute.String("session.kind", kind),
		),
	)

	s := &session{
		id:     id,
		kind:   kind,
		span:   span,
		logger: o.logger.With("session", id, "kind", kind),
		opts:   o,
	}
	s.logger.Info("session started")
	return ctx, s
}

// finish closes the span, counts the outcome and records it.
func (s *session) finish(ctx context.Context, outcome string, violations []string, err error) {
	defer s.span.End()

	s.span.SetAttributes(attribute.String("session.outcome", outcome))
	if err != nil {
		s.span.RecordError(err)
		s.span.SetStatus(codes.Error, err.Error())
	} else {
		s.span.SetStatus(codes.Ok, "")
	}

	sessionsTotal.WithLabelValues(s.kind, outcome).Inc()

	if err != nil {
		s.logger.Info("session ended", "outcome", outcome, "error", err)
	} else {
		s.logger.Info("session ended", "outcome", outcome)
	}

	if s.opts.recorder == nil {
		return
	}
	rec := SessionRecord{ID: s.id, Kind: s.kind, Outcome: outcome, Violations: violations}
	if rerr := s.opts.recorder.RecordSession(context.WithoutCancel(ctx), rec); rerr != nil {
		s.logger.Error("failed to record session", "error", rerr)
	}
}

// outcomeOf maps a session error to an outcome.
func outcomeOf(err error, ok string) string {
	switch {
	case err == nil:
		return ok
	case isCancellation(err):
		return OutcomeCancelled
	default:
		return OutcomeFailed
	}
}
