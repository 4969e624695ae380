package session

import (
	"context"

	"github.com/2beens/liftlog/internal/workouts"
)

//go:generate mockgen -source=$GOFILE -destination=mocks_test.go -package=session_test

type plansRepo interface {
	Get(ctx context.Context, userID string, id int) (*workouts.Plan, error)
	UpdateExercises(ctx context.Context, userID string, planID int, exercises []workouts.PlannedExercise) error
}

type sessionsRepo interface {
	Get(ctx context.Context, userID string, id int) (*workouts.Session, error)
	// ListRecentDone returns the latest completed sessions, newest first.
	ListRecentDone(ctx context.Context, userID string, limit int) ([]workouts.Session, error)
	Add(ctx context.Context, s workouts.Session) (*workouts.Session, error)
	Update(ctx context.Context, s *workouts.Session) error
}

// completionSignaler is told when a session is completed, so cached suggestions can be refreshed.
type completionSignaler interface {
	SessionCompleted(ctx context.Context, userID string) error
}
