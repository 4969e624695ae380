package workouts

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrMalformedRecord   = errors.New("malformed record")
	ErrPersistence       = errors.New("persistence failure")
	ErrDuplicateExercise = errors.New("exercise already added")
	ErrInvalid           = errors.New("invalid")
)

// Category of a workout plan.
//   - split: tied to a weekday
//   - custom: freeform
type Category string

const (
	CategorySplit  Category = "split"
	CategoryCustom Category = "custom"
)

func (c Category) IsValid() bool {
	switch c {
	case CategorySplit, CategoryCustom:
		return true
	default:
		return false
	}
}

// SetKind can be one of:
//   - normal
//   - warmup
//   - dropset
type SetKind string

const (
	SetKindNormal  SetKind = "normal"
	SetKindWarmup  SetKind = "warmup"
	SetKindDropset SetKind = "dropset"
)

func (k SetKind) String() string {
	return string(k)
}

func (k SetKind) IsValid() bool {
	switch k {
	case SetKindNormal, SetKindWarmup, SetKindDropset:
		return true
	default:
		return false
	}
}

// Plan is a reusable workout template. Target set counts are only rewritten
// while the plan itself is being edited.
type Plan struct {
	ID          int               `json:"id"`
	UserID      string            `json:"userId"`
	Title       string            `json:"title"`
	Description string            `json:"description,omitempty"`
	Category    Category          `json:"category"`
	Weekday     *time.Weekday     `json:"weekday,omitempty"`
	Exercises   []PlannedExercise `json:"exercises"`
	CreatedAt   time.Time         `json:"createdAt"`
	UpdatedAt   time.Time         `json:"updatedAt"`
}

type PlannedExercise struct {
	ExerciseID  string `json:"exerciseId"`
	Name        string `json:"name"`
	TargetSets  int    `json:"targetSets"`
	MuscleGroup string `json:"muscleGroup,omitempty"`
}

func (p *Plan) Validate() error {
	if strings.TrimSpace(p.Title) == "" {
		return fmt.Errorf("%w: plan title empty", ErrInvalid)
	}
	if !p.Category.IsValid() {
		return fmt.Errorf("%w: unknown plan category [%s]", ErrInvalid, p.Category)
	}
	if p.Category == CategorySplit && p.Weekday == nil {
		return fmt.Errorf("%w: split plan needs a weekday", ErrInvalid)
	}
	for _, ex := range p.Exercises {
		if ex.TargetSets < 0 {
			return fmt.Errorf("%w: negative target sets for [%s]", ErrInvalid, ex.Name)
		}
	}
	return nil
}

// Session is one actual occurrence of a workout. Once Done, it is historical fact.
type Session struct {
	ID         int               `json:"id"`
	UserID     string            `json:"userId"`
	PlanID     *int              `json:"planId,omitempty"`
	Title      string            `json:"title"`
	Date       time.Time         `json:"date"`
	StartTime  *time.Time        `json:"startTime,omitempty"`
	EndTime    *time.Time        `json:"endTime,omitempty"`
	Notes      string            `json:"notes,omitempty"`
	BodyWeight *float64          `json:"bodyWeight,omitempty"`
	Exercises  []SessionExercise `json:"exercises"`
	Done       bool              `json:"done"`
	CreatedAt  time.Time         `json:"createdAt"`
}

// OccurredAt is the recency key of the session: the start timestamp when known, the date otherwise.
func (s *Session) OccurredAt() time.Time {
	if s.StartTime != nil {
		return *s.StartTime
	}
	return s.Date
}

type SessionExercise struct {
	ExerciseID  string      `json:"exerciseId"`
	Name        string      `json:"name"`
	MuscleGroup string      `json:"muscleGroup,omitempty"`
	Sets        []SetDetail `json:"sets"`
}

type SetDetail struct {
	ID     string   `json:"id"`
	Weight *float64 `json:"weight,omitempty"`
	Reps   *int     `json:"reps,omitempty"`
	Kind   SetKind  `json:"kind"`
	Note   string   `json:"note,omitempty"`
}

// Populated reports whether the set carries an actual weight or reps value.
func (s SetDetail) Populated() bool {
	return s.Weight != nil || s.Reps != nil
}

func (s SetDetail) Validate() error {
	if s.Weight != nil && *s.Weight < 0 {
		return fmt.Errorf("%w: negative weight in set %s", ErrInvalid, s.ID)
	}
	if s.Reps != nil && *s.Reps < 0 {
		return fmt.Errorf("%w: negative reps in set %s", ErrInvalid, s.ID)
	}
	if s.Kind != "" && !s.Kind.IsValid() {
		return fmt.Errorf("%w: unknown set kind [%s]", ErrInvalid, s.Kind)
	}
	return nil
}

// ValidateExercises checks every set of the session.
func (s *Session) ValidateExercises() error {
	for _, ex := range s.Exercises {
		for _, set := range ex.Sets {
			if err := set.Validate(); err != nil {
				return fmt.Errorf("exercise [%s]: %w", ex.Name, err)
			}
		}
	}
	return nil
}
