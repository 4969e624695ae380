package session

import (
	"errors"
	"fmt"
	"time"
)

var ErrInvalidTransition = errors.New("invalid mode transition")

type ModeKind string

const (
	KindPlanEditing    ModeKind = "plan_editing"
	KindActiveSession  ModeKind = "active_session"
	KindEnded          ModeKind = "ended"
	KindHistoricalEdit ModeKind = "historical_edit"
)

// Mode is one of PlanEditing, ActiveSession, Ended or HistoricalEdit.
type Mode interface {
	Kind() ModeKind
	isMode()
}

// PlanEditing edits the plan template; no session has been started.
type PlanEditing struct{}

// ActiveSession is a timed session that has not been ended yet.
type ActiveSession struct {
	Start time.Time
}

// Ended is a timed session with both timestamps, waiting to be saved.
type Ended struct {
	Start time.Time
	End   time.Time
}

// HistoricalEdit edits an already stored session record in place.
type HistoricalEdit struct {
	SessionID int
	Start     *time.Time
	End       *time.Time
}

func (PlanEditing) Kind() ModeKind    { return KindPlanEditing }
func (ActiveSession) Kind() ModeKind  { return KindActiveSession }
func (Ended) Kind() ModeKind          { return KindEnded }
func (HistoricalEdit) Kind() ModeKind { return KindHistoricalEdit }

func (PlanEditing) isMode()    {}
func (ActiveSession) isMode()  {}
func (Ended) isMode()          {}
func (HistoricalEdit) isMode() {}

func invalid(m Mode, action string) error {
	return fmt.Errorf("%w: cannot %s in %s", ErrInvalidTransition, action, m.Kind())
}

// Start begins a timed session ("Start Workout").
func Start(m Mode, now time.Time) (Mode, error) {
	switch m := m.(type) {
	case PlanEditing:
		return ActiveSession{Start: now}, nil
	case ActiveSession, Ended, HistoricalEdit:
		return m, invalid(m, "start")
	default:
		return m, fmt.Errorf("%w: unknown mode %T", ErrInvalidTransition, m)
	}
}

// SetStartTime edits the start time. The first edit on a plan starts the session.
func SetStartTime(m Mode, start time.Time) (Mode, error) {
	switch m := m.(type) {
	case PlanEditing:
		return ActiveSession{Start: start}, nil
	case ActiveSession:
		return ActiveSession{Start: start}, nil
	case Ended:
		if start.After(m.End) {
			return m, invalid(m, "start after the end")
		}
		return Ended{Start: start, End: m.End}, nil
	case HistoricalEdit:
		if m.End != nil && start.After(*m.End) {
			return m, invalid(m, "start after the end")
		}
		m.Start = &start
		return m, nil
	default:
		return m, fmt.Errorf("%w: unknown mode %T", ErrInvalidTransition, m)
	}
}

// End stops the timed session ("End Workout"); it is saved separately.
func End(m Mode, now time.Time) (Mode, error) {
	switch m := m.(type) {
	case ActiveSession:
		if now.Before(m.Start) {
			return m, invalid(m, "end before the start")
		}
		return Ended{Start: m.Start, End: now}, nil
	case PlanEditing, Ended, HistoricalEdit:
		return m, invalid(m, "end")
	default:
		return m, fmt.Errorf("%w: unknown mode %T", ErrInvalidTransition, m)
	}
}

// ModeView is the JSON representation of a mode.
type ModeView struct {
	Kind      ModeKind   `json:"kind"`
	Start     *time.Time `json:"start,omitempty"`
	End       *time.Time `json:"end,omitempty"`
	SessionID *int       `json:"sessionId,omitempty"`
}

func ViewOf(m Mode) ModeView {
	v := ModeView{Kind: m.Kind()}
	switch m := m.(type) {
	case ActiveSession:
		v.Start = &m.Start
	case Ended:
		v.Start = &m.Start
		v.End = &m.End
	case HistoricalEdit:
		v.Start = m.Start
		v.End = m.End
		v.SessionID = &m.SessionID
	}
	return v
}
