package history

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/2beens/liftlog/internal/workouts"

	log "github.com/sirupsen/logrus"
)

// DefaultWindow is how many of the most recent session records are used to build the index.
const DefaultWindow = 50

// Entry is the most recent actual performance of one exercise.
type Entry struct {
	SessionID int                      `json:"sessionId"`
	Date      time.Time                `json:"date"`
	Exercise  workouts.SessionExercise `json:"exercise"`
}

// SetCount is the number of sets performed in the entry; zero for a missing entry.
func (e Entry) SetCount() int {
	return len(e.Exercise.Sets)
}

// SetAt returns the prior set at the given position, if there was one.
func (e Entry) SetAt(i int) (workouts.SetDetail, bool) {
	if i < 0 || i >= len(e.Exercise.Sets) {
		return workouts.SetDetail{}, false
	}
	return e.Exercise.Sets[i], true
}

// newerThan decides which of two candidates for the same key is kept.
// Equal timestamps fall back to the higher session ID, so the result does not
// depend on the order records were fetched in.
func (e Entry) newerThan(other Entry) bool {
	if !e.Date.Equal(other.Date) {
		return e.Date.After(other.Date)
	}
	return e.SessionID > other.SessionID
}

// Index maps exercise id and lowercased exercise name to the most recent entry.
// It is derived from fetched records and never persisted.
type Index struct {
	byID   map[string]Entry
	byName map[string]Entry
}

// Key identifies the exercise being looked up.
type Key struct {
	ExerciseID string
	Name       string
}

func nameKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// Build indexes all done sessions. Records with missing or malformed exercises are skipped.
func Build(sessions []workouts.Session) *Index {
	idx := &Index{
		byID:   make(map[string]Entry),
		byName: make(map[string]Entry),
	}

	for i := range sessions {
		s := &sessions[i]
		if !s.Done {
			continue
		}
		if err := checkRecord(s); err != nil {
			log.Warnf("history index: skipping session %d: %s", s.ID, err)
			continue
		}

		for _, ex := range s.Exercises {
			if !hasPopulatedSet(ex) {
				continue
			}
			entry := Entry{
				SessionID: s.ID,
				Date:      s.OccurredAt(),
				Exercise:  ex,
			}
			if ex.ExerciseID != "" {
				idx.keep(idx.byID, ex.ExerciseID, entry)
			}
			if n := nameKey(ex.Name); n != "" {
				idx.keep(idx.byName, n, entry)
			}
		}
	}

	return idx
}

func (idx *Index) keep(m map[string]Entry, key string, entry Entry) {
	current, ok := m[key]
	if !ok || entry.newerThan(current) {
		m[key] = entry
	}
}

func checkRecord(s *workouts.Session) error {
	if s.Exercises == nil {
		return fmt.Errorf("%w: exercises missing", workouts.ErrMalformedRecord)
	}
	if err := s.ValidateExercises(); err != nil {
		return errors.Join(workouts.ErrMalformedRecord, err)
	}
	return nil
}

func hasPopulatedSet(ex workouts.SessionExercise) bool {
	for _, set := range ex.Sets {
		if set.Populated() {
			return true
		}
	}
	return false
}

// Len returns the number of exercises indexed by id and by name.
func (idx *Index) Len() (byID, byName int) {
	if idx == nil {
		return 0, 0
	}
	return len(idx.byID), len(idx.byName)
}

// Strategy is a single way of resolving a key to an entry.
type Strategy func(idx *Index, key Key) (Entry, bool)

func ByExerciseID(idx *Index, key Key) (Entry, bool) {
	if key.ExerciseID == "" {
		return Entry{}, false
	}
	e, ok := idx.byID[key.ExerciseID]
	return e, ok
}

func ByName(idx *Index, key Key) (Entry, bool) {
	n := nameKey(key.Name)
	if n == "" {
		return Entry{}, false
	}
	e, ok := idx.byName[n]
	return e, ok
}

// DefaultStrategies resolves by exercise id first, then falls back to the name,
// which covers custom and catalog exercises carrying different ids.
func DefaultStrategies() []Strategy {
	return []Strategy{ByExerciseID, ByName}
}

// Resolve tries the strategies in order and returns the first match.
// With no strategies given, DefaultStrategies are used.
func (idx *Index) Resolve(key Key, strategies ...Strategy) (Entry, bool) {
	if idx == nil {
		return Entry{}, false
	}
	if len(strategies) == 0 {
		strategies = DefaultStrategies()
	}
	for _, strategy := range strategies {
		if e, ok := strategy(idx, key); ok {
			return e, true
		}
	}
	return Entry{}, false
}
