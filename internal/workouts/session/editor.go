package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/2beens/liftlog/internal/telemetry/metrics"
	"github.com/2beens/liftlog/internal/telemetry/tracing"
	"github.com/2beens/liftlog/internal/workouts"
	"github.com/2beens/liftlog/internal/workouts/history"
	"github.com/2beens/liftlog/internal/workouts/prefill"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
)

var (
	ErrSaveInProgress = errors.New("save already in progress")
	ErrEditorClosed   = errors.New("editor already saved")
	ErrNoPlan         = errors.New("editor has no plan to save")
)

const completionSignalTimeout = 5 * time.Second

type TeardownResult string

const (
	TeardownSkipped TeardownResult = "skipped"
	TeardownSaved   TeardownResult = "saved"
	TeardownFailed  TeardownResult = "failed"
)

// operation is the single in-flight slot of an editor.
type operation struct {
	name      string
	startedAt time.Time
}

// Details are the free-form fields of a session; nil fields are left unchanged.
type Details struct {
	Title      *string  `json:"title,omitempty"`
	Notes      *string  `json:"notes,omitempty"`
	BodyWeight *float64 `json:"bodyWeight,omitempty"`
}

// SetValues replaces the live values of a set.
type SetValues struct {
	Weight *float64         `json:"weight,omitempty"`
	Reps   *int             `json:"reps,omitempty"`
	Kind   workouts.SetKind `json:"kind"`
	Note   string           `json:"note,omitempty"`
}

type State struct {
	ID         string                    `json:"id"`
	Mode       ModeView                  `json:"mode"`
	PlanID     *int                      `json:"planId,omitempty"`
	Title      string                    `json:"title"`
	Notes      string                    `json:"notes,omitempty"`
	BodyWeight *float64                  `json:"bodyWeight,omitempty"`
	Exercises  []prefill.WorkingExercise `json:"exercises"`
	Saving     bool                      `json:"saving"`
	Saved      bool                      `json:"saved"`
}

// SaveResult tells what a save wrote.
type SaveResult struct {
	Mode      ModeKind `json:"mode"`
	PlanID    *int     `json:"planId,omitempty"`
	SessionID *int     `json:"sessionId,omitempty"`
	Done      bool     `json:"done"`
}

// Editor is the working state of one opened workout screen.
// Mutations only change memory; Save and Teardown are the only writers.
type Editor struct {
	id     string
	userID string

	mu         sync.Mutex
	mode       Mode
	plan       *workouts.Plan
	record     *workouts.Session
	title      string
	notes      string
	bodyWeight *float64
	exercises  []prefill.WorkingExercise
	inFlight   *operation
	saved      bool
	lastSeen   time.Time

	index    *history.Index
	engine   *prefill.Engine
	plans    plansRepo
	sessions sessionsRepo
	signaler completionSignaler
	metrics  *metrics.Manager
	now      func() time.Time
}

func (e *Editor) ID() string {
	return e.id
}

func (e *Editor) UserID() string {
	return e.userID
}

// touch marks the editor as used by its client.
func (e *Editor) touch() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.lastSeen = e.now()
}

// idleSince reports when the client last used the editor.
func (e *Editor) idleSince() time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastSeen
}

func (e *Editor) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()

	st := State{
		ID:         e.id,
		Mode:       ViewOf(e.mode),
		Title:      e.title,
		Notes:      e.notes,
		BodyWeight: e.bodyWeight,
		Exercises:  prefill.Clone(e.exercises),
		Saving:     e.inFlight != nil,
		Saved:      e.saved,
	}
	if e.plan != nil {
		planID := e.plan.ID
		st.PlanID = &planID
	}
	return st
}

// mutate runs fn under the lock, unless the editor is closed or a save is outstanding.
func (e *Editor) mutate(fn func() error) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.saved {
		return ErrEditorClosed
	}
	if e.inFlight != nil {
		return ErrSaveInProgress
	}
	return fn()
}

func (e *Editor) Start() error {
	return e.mutate(func() error {
		m, err := Start(e.mode, e.now())
		if err != nil {
			return err
		}
		e.mode = m
		return nil
	})
}

func (e *Editor) SetStartTime(t time.Time) error {
	return e.mutate(func() error {
		m, err := SetStartTime(e.mode, t)
		if err != nil {
			return err
		}
		e.mode = m
		return nil
	})
}

func (e *Editor) End() error {
	return e.mutate(func() error {
		m, err := End(e.mode, e.now())
		if err != nil {
			return err
		}
		e.mode = m
		return nil
	})
}

func (e *Editor) UpdateDetails(d Details) error {
	return e.mutate(func() error {
		if d.Title != nil && *d.Title == "" {
			return fmt.Errorf("%w: title empty", workouts.ErrInvalid)
		}
		if d.BodyWeight != nil && *d.BodyWeight < 0 {
			return fmt.Errorf("%w: negative body weight", workouts.ErrInvalid)
		}
		if d.Title != nil {
			e.title = *d.Title
		}
		if d.Notes != nil {
			e.notes = *d.Notes
		}
		if d.BodyWeight != nil {
			bw := *d.BodyWeight
			e.bodyWeight = &bw
		}
		return nil
	})
}

// AddExercise adds an exercise chosen by name. A duplicate name leaves the list as it was.
func (e *Editor) AddExercise(name string, targetSets int) (added prefill.WorkingExercise, err error) {
	err = e.mutate(func() error {
		list, err := e.engine.AddExercise(e.exercises, name, targetSets, e.index)
		if err != nil {
			if errors.Is(err, workouts.ErrDuplicateExercise) && e.metrics != nil {
				e.metrics.CounterDuplicateExercises.Inc()
			}
			return err
		}
		e.exercises = list
		added = list[len(list)-1]
		return nil
	})
	return added, err
}

func (e *Editor) RemoveExercise(exerciseID string) error {
	return e.mutate(func() error {
		i := e.exerciseIndex(exerciseID)
		if i < 0 {
			return fmt.Errorf("%w: exercise %s", workouts.ErrNotFound, exerciseID)
		}
		list := make([]prefill.WorkingExercise, 0, len(e.exercises)-1)
		list = append(list, e.exercises[:i]...)
		e.exercises = append(list, e.exercises[i+1:]...)
		return nil
	})
}

func (e *Editor) AddSet(exerciseID string) (added prefill.WorkingSet, err error) {
	err = e.mutate(func() error {
		i := e.exerciseIndex(exerciseID)
		if i < 0 {
			return fmt.Errorf("%w: exercise %s", workouts.ErrNotFound, exerciseID)
		}
		ex := e.engine.AddSet(e.exercises[i], e.index)
		e.exercises[i] = ex
		added = ex.Sets[len(ex.Sets)-1]
		return nil
	})
	return added, err
}

func (e *Editor) RemoveSet(exerciseID, setID string) error {
	return e.mutate(func() error {
		i, j, err := e.setIndex(exerciseID, setID)
		if err != nil {
			return err
		}
		sets := e.exercises[i].Sets
		out := make([]prefill.WorkingSet, 0, len(sets)-1)
		out = append(out, sets[:j]...)
		e.exercises[i].Sets = append(out, sets[j+1:]...)
		return nil
	})
}

func (e *Editor) UpdateSet(exerciseID, setID string, v SetValues) error {
	return e.mutate(func() error {
		if v.Kind == "" {
			v.Kind = workouts.SetKindNormal
		}
		if err := (workouts.SetDetail{ID: setID, Weight: v.Weight, Reps: v.Reps, Kind: v.Kind}).Validate(); err != nil {
			return err
		}
		i, j, err := e.setIndex(exerciseID, setID)
		if err != nil {
			return err
		}
		sets := make([]prefill.WorkingSet, len(e.exercises[i].Sets))
		copy(sets, e.exercises[i].Sets)
		sets[j].Weight = v.Weight
		sets[j].Reps = v.Reps
		sets[j].Kind = v.Kind
		sets[j].Note = v.Note
		e.exercises[i].Sets = sets
		return nil
	})
}

func (e *Editor) exerciseIndex(exerciseID string) int {
	for i, ex := range e.exercises {
		if ex.ExerciseID == exerciseID {
			return i
		}
	}
	return -1
}

func (e *Editor) setIndex(exerciseID, setID string) (int, int, error) {
	i := e.exerciseIndex(exerciseID)
	if i < 0 {
		return -1, -1, fmt.Errorf("%w: exercise %s", workouts.ErrNotFound, exerciseID)
	}
	for j, s := range e.exercises[i].Sets {
		if s.ID == setID {
			return i, j, nil
		}
	}
	return -1, -1, fmt.Errorf("%w: set %s", workouts.ErrNotFound, setID)
}

// snapshot is what a save persists, taken while holding the in-flight slot.
type snapshot struct {
	mode       Mode
	plan       *workouts.Plan
	record     *workouts.Session
	title      string
	notes      string
	bodyWeight *float64
	exercises  []prefill.WorkingExercise
}

// acquire takes the in-flight slot. It never waits: a taken slot is an error.
func (e *Editor) acquire(name string) (*operation, snapshot, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.saved {
		return nil, snapshot{}, ErrEditorClosed
	}
	if e.inFlight != nil {
		if e.metrics != nil {
			e.metrics.CounterRejectedSaves.Inc()
		}
		return nil, snapshot{}, fmt.Errorf("%w: %s started at %s", ErrSaveInProgress, e.inFlight.name, e.inFlight.startedAt.Format(time.RFC3339))
	}
	op := &operation{name: name, startedAt: e.now()}
	e.inFlight = op
	return op, snapshot{
		mode:       e.mode,
		plan:       e.plan,
		record:     e.record,
		title:      e.title,
		notes:      e.notes,
		bodyWeight: e.bodyWeight,
		exercises:  prefill.Clone(e.exercises),
	}, nil
}

// release frees the slot; saved marks the editor terminal.
func (e *Editor) release(op *operation, saved bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.inFlight != op {
		return
	}
	e.inFlight = nil
	if saved {
		e.saved = true
	}
}

// Save persists the editor according to its mode. On failure nothing in memory changes
// and the save can be retried.
func (e *Editor) Save(ctx context.Context) (_ *SaveResult, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "session.editor.save")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.String("editor.id", e.id))

	op, snap, err := e.acquire("save")
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("mode", string(snap.mode.Kind())))

	started := time.Now()
	res, err := e.persist(ctx, snap)
	if e.metrics != nil {
		e.metrics.HistogramSaveDuration.WithLabelValues(string(snap.mode.Kind())).Observe(time.Since(started).Seconds())
	}
	e.release(op, err == nil)
	if err != nil {
		return nil, err
	}

	if e.metrics != nil {
		e.metrics.CounterSessionSaves.WithLabelValues(string(res.Mode)).Inc()
	}
	if res.Done && res.Mode != KindHistoricalEdit {
		e.signalCompleted(ctx)
	}
	return res, nil
}

func (e *Editor) persist(ctx context.Context, snap snapshot) (*SaveResult, error) {
	switch m := snap.mode.(type) {
	case HistoricalEdit:
		return e.saveHistorical(ctx, snap, m)
	case PlanEditing:
		return e.savePlan(ctx, snap)
	case ActiveSession:
		return e.insertSession(ctx, snap, m.Start, nil)
	case Ended:
		end := m.End
		return e.insertSession(ctx, snap, m.Start, &end)
	default:
		return nil, fmt.Errorf("%w: unknown mode %T", ErrInvalidTransition, m)
	}
}

func (e *Editor) saveHistorical(ctx context.Context, snap snapshot, m HistoricalEdit) (*SaveResult, error) {
	record := workouts.Session{
		ID:         m.SessionID,
		UserID:     e.userID,
		Title:      snap.title,
		StartTime:  m.Start,
		EndTime:    m.End,
		Notes:      snap.notes,
		BodyWeight: snap.bodyWeight,
		Exercises:  prefill.ToSessionExercises(snap.exercises),
		Done:       true,
	}
	if snap.record != nil {
		record.PlanID = snap.record.PlanID
		record.Date = snap.record.Date
		record.CreatedAt = snap.record.CreatedAt
	}
	if err := record.ValidateExercises(); err != nil {
		return nil, err
	}

	if err := e.sessions.Update(ctx, &record); err != nil {
		return nil, fmt.Errorf("%w: update session %d: %w", workouts.ErrPersistence, record.ID, err)
	}

	id := record.ID
	return &SaveResult{
		Mode:      KindHistoricalEdit,
		PlanID:    record.PlanID,
		SessionID: &id,
		Done:      true,
	}, nil
}

func (e *Editor) savePlan(ctx context.Context, snap snapshot) (*SaveResult, error) {
	if snap.plan == nil {
		return nil, ErrNoPlan
	}

	planned := prefill.ToPlannedExercises(snap.exercises)
	if err := e.plans.UpdateExercises(ctx, e.userID, snap.plan.ID, planned); err != nil {
		return nil, fmt.Errorf("%w: update plan %d: %w", workouts.ErrPersistence, snap.plan.ID, err)
	}

	planID := snap.plan.ID
	return &SaveResult{
		Mode:   KindPlanEditing,
		PlanID: &planID,
	}, nil
}

func (e *Editor) insertSession(ctx context.Context, snap snapshot, start time.Time, end *time.Time) (*SaveResult, error) {
	record := e.newRecord(snap, start, end)
	if err := record.ValidateExercises(); err != nil {
		return nil, err
	}

	added, err := e.sessions.Add(ctx, record)
	if err != nil {
		return nil, fmt.Errorf("%w: add session: %w", workouts.ErrPersistence, err)
	}

	id := added.ID
	kind := KindActiveSession
	if end != nil {
		kind = KindEnded
	}
	return &SaveResult{
		Mode:      kind,
		PlanID:    record.PlanID,
		SessionID: &id,
		Done:      record.Done,
	}, nil
}

func (e *Editor) newRecord(snap snapshot, start time.Time, end *time.Time) workouts.Session {
	startTime := start
	record := workouts.Session{
		UserID:     e.userID,
		Title:      snap.title,
		Date:       start,
		StartTime:  &startTime,
		EndTime:    end,
		Notes:      snap.notes,
		BodyWeight: snap.bodyWeight,
		Exercises:  prefill.ToSessionExercises(snap.exercises),
		Done:       end != nil,
		CreatedAt:  e.now(),
	}
	if snap.plan != nil {
		planID := snap.plan.ID
		record.PlanID = &planID
	}
	return record
}

// signalCompleted is best effort: the save already succeeded, so a failure is only logged.
// It runs detached from the request context so a finished request does not cancel it.
func (e *Editor) signalCompleted(ctx context.Context) {
	if e.signaler == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), completionSignalTimeout)
	defer cancel()

	result := "ok"
	if err := e.signaler.SessionCompleted(ctx, e.userID); err != nil {
		result = "failed"
		log.Errorf("editor %s: session completed signal for user %s: %s", e.id, e.userID, err)
	}
	if e.metrics != nil {
		e.metrics.CounterCompletionSignals.WithLabelValues(result).Inc()
	}
}

// Teardown is called when the screen goes away. An active session that was never
// saved and has exercises is stored as not done; errors are logged, not returned.
// ErrSaveInProgress is returned when another save holds the editor.
func (e *Editor) Teardown(ctx context.Context) (_ TeardownResult, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "session.editor.teardown")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.String("editor.id", e.id))

	if !e.needsAutoSave() {
		e.countAutoSave(TeardownSkipped)
		return TeardownSkipped, nil
	}

	op, snap, err := e.acquire("teardown")
	if errors.Is(err, ErrEditorClosed) {
		e.countAutoSave(TeardownSkipped)
		return TeardownSkipped, nil
	}
	if err != nil {
		return TeardownSkipped, err
	}

	// a mutation may have slipped in between the check and the acquire
	m, active := snap.mode.(ActiveSession)
	if !active || len(snap.exercises) == 0 {
		e.release(op, false)
		e.countAutoSave(TeardownSkipped)
		return TeardownSkipped, nil
	}

	_, saveErr := e.insertSession(ctx, snap, m.Start, nil)
	e.release(op, saveErr == nil)
	if saveErr != nil {
		log.Errorf("editor %s: auto save for user %s: %s", e.id, e.userID, saveErr)
		e.countAutoSave(TeardownFailed)
		return TeardownFailed, nil
	}

	log.Debugf("editor %s: auto saved not done session for user %s", e.id, e.userID)
	e.countAutoSave(TeardownSaved)
	return TeardownSaved, nil
}

// needsAutoSave: an unsaved, started and not ended session with at least one exercise.
func (e *Editor) needsAutoSave() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, active := e.mode.(ActiveSession)
	return !e.saved && active && len(e.exercises) > 0
}

func (e *Editor) countAutoSave(res TeardownResult) {
	if e.metrics != nil {
		e.metrics.CounterAutoSaves.WithLabelValues(string(res)).Inc()
	}
}
