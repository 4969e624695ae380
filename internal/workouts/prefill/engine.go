package prefill

import (
	"fmt"
	"strings"
	"time"

	"github.com/2beens/liftlog/internal/workouts"
	"github.com/2beens/liftlog/internal/workouts/catalog"
	"github.com/2beens/liftlog/internal/workouts/history"

	"github.com/google/uuid"
)

// Hint is a previous-performance value shown as a prompt, never pre-filled.
type Hint struct {
	Weight *float64 `json:"weight,omitempty"`
	Reps   *int     `json:"reps,omitempty"`
	Note   string   `json:"note,omitempty"`
}

type WorkingSet struct {
	ID          string           `json:"id"`
	Weight      *float64         `json:"weight,omitempty"`
	Reps        *int             `json:"reps,omitempty"`
	Note        string           `json:"note,omitempty"`
	Kind        workouts.SetKind `json:"kind"`
	Placeholder *Hint            `json:"placeholder,omitempty"`
}

type WorkingExercise struct {
	ExerciseID  string       `json:"exerciseId"`
	Name        string       `json:"name"`
	MuscleGroup string       `json:"muscleGroup,omitempty"`
	Sets        []WorkingSet `json:"sets"`
}

type Engine struct {
	catalog *catalog.Catalog
	newID   func() string
	now     func() time.Time
}

func NewEngine(c *catalog.Catalog) *Engine {
	return &Engine{
		catalog: c,
		newID:   uuid.NewString,
		now:     time.Now,
	}
}

// WithClock replaces the time source used for synthesized exercise ids.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// Prefill builds the working exercise list of a new session from the plan.
func (e *Engine) Prefill(plan workouts.Plan, idx *history.Index) []WorkingExercise {
	list := make([]WorkingExercise, 0, len(plan.Exercises))
	for _, planned := range plan.Exercises {
		list = append(list, e.newExercise(planned, idx))
	}
	return list
}

func (e *Engine) newExercise(planned workouts.PlannedExercise, idx *history.Index) WorkingExercise {
	entry, _ := idx.Resolve(history.Key{
		ExerciseID: planned.ExerciseID,
		Name:       planned.Name,
	})

	setsCount := max(planned.TargetSets, 1)
	ex := WorkingExercise{
		ExerciseID:  planned.ExerciseID,
		Name:        planned.Name,
		MuscleGroup: planned.MuscleGroup,
		Sets:        make([]WorkingSet, 0, setsCount),
	}
	for i := 0; i < setsCount; i++ {
		ex.Sets = append(ex.Sets, e.newSet(entry, i))
	}
	return ex
}

// newSet creates the set at position i; a prior set at the same position
// gives the hint values and the set kind, the input fields stay blank.
func (e *Engine) newSet(entry history.Entry, i int) WorkingSet {
	ws := WorkingSet{
		ID:   e.newID(),
		Kind: workouts.SetKindNormal,
	}
	prior, ok := entry.SetAt(i)
	if !ok {
		return ws
	}
	ws.Placeholder = &Hint{
		Weight: prior.Weight,
		Reps:   prior.Reps,
		Note:   prior.Note,
	}
	if prior.Kind.IsValid() {
		ws.Kind = prior.Kind
	}
	return ws
}

// AddExercise appends an exercise chosen by name to the working list. A name already present
// (case-insensitive) is rejected with ErrDuplicateExercise and the list is returned unchanged.
func (e *Engine) AddExercise(
	list []WorkingExercise,
	name string,
	targetSets int,
	idx *history.Index,
) ([]WorkingExercise, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return list, fmt.Errorf("%w: exercise name empty", workouts.ErrInvalid)
	}
	for _, ex := range list {
		if strings.EqualFold(ex.Name, name) {
			return list, fmt.Errorf("%w: %s", workouts.ErrDuplicateExercise, ex.Name)
		}
	}

	planned := workouts.PlannedExercise{
		Name:       name,
		TargetSets: targetSets,
	}
	if known, ok := e.catalog.FindByName(name); ok {
		planned.ExerciseID = known.ID
		planned.Name = known.Name
		planned.MuscleGroup = known.Category
	} else {
		planned.ExerciseID = e.customID(list)
		planned.MuscleGroup = catalog.InferMuscleGroup(name)
	}

	out := make([]WorkingExercise, len(list), len(list)+1)
	copy(out, list)
	return append(out, e.newExercise(planned, idx)), nil
}

// customID derives an id for an exercise missing from the catalog. Every route addresses
// exercises by id, so a clash with the list moves it forward by a millisecond.
func (e *Engine) customID(list []WorkingExercise) string {
	ms := e.now().UnixMilli()
	for {
		id := fmt.Sprintf("custom-%d", ms)
		if !containsID(list, id) {
			return id
		}
		ms++
	}
}

func containsID(list []WorkingExercise, id string) bool {
	for _, ex := range list {
		if ex.ExerciseID == id {
			return true
		}
	}
	return false
}

// AddSet appends one set to the exercise, hinted from the prior set at the same position.
func (e *Engine) AddSet(ex WorkingExercise, idx *history.Index) WorkingExercise {
	entry, _ := idx.Resolve(history.Key{
		ExerciseID: ex.ExerciseID,
		Name:       ex.Name,
	})
	sets := make([]WorkingSet, len(ex.Sets), len(ex.Sets)+1)
	copy(sets, ex.Sets)
	ex.Sets = append(sets, e.newSet(entry, len(ex.Sets)))
	return ex
}

// FromSession loads a stored record for editing; values are live, not hints.
func FromSession(s workouts.Session) []WorkingExercise {
	list := make([]WorkingExercise, 0, len(s.Exercises))
	for _, ex := range s.Exercises {
		we := WorkingExercise{
			ExerciseID:  ex.ExerciseID,
			Name:        ex.Name,
			MuscleGroup: ex.MuscleGroup,
			Sets:        make([]WorkingSet, 0, len(ex.Sets)),
		}
		for _, set := range ex.Sets {
			kind := set.Kind
			if !kind.IsValid() {
				kind = workouts.SetKindNormal
			}
			we.Sets = append(we.Sets, WorkingSet{
				ID:     set.ID,
				Weight: set.Weight,
				Reps:   set.Reps,
				Note:   set.Note,
				Kind:   kind,
			})
		}
		list = append(list, we)
	}
	return list
}

// ToSessionExercises keeps the actual input values; hints are dropped.
func ToSessionExercises(list []WorkingExercise) []workouts.SessionExercise {
	exercises := make([]workouts.SessionExercise, 0, len(list))
	for _, we := range list {
		ex := workouts.SessionExercise{
			ExerciseID:  we.ExerciseID,
			Name:        we.Name,
			MuscleGroup: we.MuscleGroup,
			Sets:        make([]workouts.SetDetail, 0, len(we.Sets)),
		}
		for _, ws := range we.Sets {
			ex.Sets = append(ex.Sets, workouts.SetDetail{
				ID:     ws.ID,
				Weight: ws.Weight,
				Reps:   ws.Reps,
				Kind:   ws.Kind,
				Note:   ws.Note,
			})
		}
		exercises = append(exercises, ex)
	}
	return exercises
}

// ToPlannedExercises turns the working list into plan targets: one target set per working set.
func ToPlannedExercises(list []WorkingExercise) []workouts.PlannedExercise {
	planned := make([]workouts.PlannedExercise, 0, len(list))
	for _, we := range list {
		planned = append(planned, workouts.PlannedExercise{
			ExerciseID:  we.ExerciseID,
			Name:        we.Name,
			TargetSets:  len(we.Sets),
			MuscleGroup: we.MuscleGroup,
		})
	}
	return planned
}

// Clone deep-copies the working list so callers can mutate it freely.
func Clone(list []WorkingExercise) []WorkingExercise {
	out := make([]WorkingExercise, len(list))
	for i, we := range list {
		out[i] = we
		out[i].Sets = make([]WorkingSet, len(we.Sets))
		copy(out[i].Sets, we.Sets)
	}
	return out
}
