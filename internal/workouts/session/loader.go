package session

import (
	"context"
	"fmt"
	"time"

	"github.com/2beens/liftlog/internal/telemetry/metrics"
	"github.com/2beens/liftlog/internal/telemetry/tracing"
	"github.com/2beens/liftlog/internal/workouts"
	"github.com/2beens/liftlog/internal/workouts/history"
	"github.com/2beens/liftlog/internal/workouts/prefill"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
)

const defaultAdHocTitle = "Workout"

// OpenParams selects what the editor starts from: a plan, a stored session (historical edit)
// or nothing (ad-hoc workout).
type OpenParams struct {
	UserID    string
	PlanID    *int
	SessionID *int
}

type LoaderParams struct {
	PlansRepo      plansRepo
	SessionsRepo   sessionsRepo
	Signaler       completionSignaler
	Engine         *prefill.Engine
	MetricsManager *metrics.Manager
	// HistoryWindow bounds the records fetched for the history index, history.DefaultWindow if zero.
	HistoryWindow int
	Now           func() time.Time
}

type Loader struct {
	plans    plansRepo
	sessions sessionsRepo
	signaler completionSignaler
	engine   *prefill.Engine
	metrics  *metrics.Manager
	window   int
	now      func() time.Time
}

func NewLoader(params LoaderParams) *Loader {
	window := params.HistoryWindow
	if window <= 0 {
		window = history.DefaultWindow
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &Loader{
		plans:    params.PlansRepo,
		sessions: params.SessionsRepo,
		signaler: params.Signaler,
		engine:   params.Engine,
		metrics:  params.MetricsManager,
		window:   window,
		now:      now,
	}
}

// Open builds a new editor. The history index is built from freshly fetched records every time.
func (l *Loader) Open(ctx context.Context, params OpenParams) (_ *Editor, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "session.loader.open")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	if params.UserID == "" {
		return nil, fmt.Errorf("%w: user id empty", workouts.ErrInvalid)
	}
	if params.PlanID != nil && params.SessionID != nil {
		return nil, fmt.Errorf("%w: plan and session both given", workouts.ErrInvalid)
	}

	recent, err := l.sessions.ListRecentDone(ctx, params.UserID, l.window)
	if err != nil {
		return nil, fmt.Errorf("%w: list recent done sessions: %w", workouts.ErrPersistence, err)
	}
	idx := history.Build(recent)
	byID, byName := idx.Len()
	span.SetAttributes(
		attribute.Int("history.records", len(recent)),
		attribute.Int("history.by_id", byID),
		attribute.Int("history.by_name", byName),
	)

	e := &Editor{
		id:       uuid.NewString(),
		userID:   params.UserID,
		mode:     PlanEditing{},
		title:    defaultAdHocTitle,
		index:    idx,
		engine:   l.engine,
		plans:    l.plans,
		sessions: l.sessions,
		signaler: l.signaler,
		metrics:  l.metrics,
		now:      l.now,
		lastSeen: l.now(),
	}

	switch {
	case params.SessionID != nil:
		if err := l.fromSession(ctx, e, *params.SessionID); err != nil {
			return nil, err
		}
	case params.PlanID != nil:
		if err := l.fromPlan(ctx, e, *params.PlanID); err != nil {
			return nil, err
		}
	default:
		e.exercises = []prefill.WorkingExercise{}
	}

	span.SetAttributes(
		attribute.String("editor.id", e.id),
		attribute.String("mode", string(e.mode.Kind())),
	)
	return e, nil
}

func (l *Loader) fromPlan(ctx context.Context, e *Editor, planID int) error {
	plan, err := l.plans.Get(ctx, e.userID, planID)
	if err != nil {
		return fmt.Errorf("get plan %d: %w", planID, err)
	}
	e.plan = plan
	e.title = plan.Title
	e.exercises = l.engine.Prefill(*plan, e.index)
	return nil
}

func (l *Loader) fromSession(ctx context.Context, e *Editor, sessionID int) error {
	record, err := l.sessions.Get(ctx, e.userID, sessionID)
	if err != nil {
		return fmt.Errorf("get session %d: %w", sessionID, err)
	}
	if record.Exercises == nil {
		log.Warnf("session %d of user %s: %s: exercises missing, editing with an empty list",
			record.ID, e.userID, workouts.ErrMalformedRecord)
	}

	e.record = record
	e.title = record.Title
	e.notes = record.Notes
	e.bodyWeight = record.BodyWeight
	e.exercises = prefill.FromSession(*record)
	e.mode = HistoricalEdit{
		SessionID: record.ID,
		Start:     record.StartTime,
		End:       record.EndTime,
	}
	return nil
}
