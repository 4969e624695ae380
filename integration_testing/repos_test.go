//go:build integration

package integration_testing

import (
	"context"
	"time"

	"github.com/2beens/liftlog/internal/auth"
	"github.com/2beens/liftlog/internal/workouts"

	"github.com/brianvoe/gofakeit/v6"
)

func (s *IntegrationTestSuite) TestUsersRepo() {
	ctx := context.Background()
	user := s.newUser()
	s.NotEmpty(user.ID)

	got, err := s.users.GetByUsername(ctx, user.Username)
	s.Require().NoError(err)
	s.Equal(user.ID, got.ID)
	s.NotEqual(testPassword, got.PasswordHash)

	_, err = s.users.Add(ctx, user.Username, "other")
	s.Require().Error(err)

	_, err = s.users.GetByUsername(ctx, "nobody-"+gofakeit.UUID())
	s.ErrorIs(err, auth.ErrUserNotFound)
}

func (s *IntegrationTestSuite) TestPlansRepo() {
	ctx := context.Background()
	user := s.newUser()
	other := s.newUser()

	monday := time.Monday
	added, err := s.plans.Add(ctx, workouts.Plan{
		UserID:   user.ID,
		Title:    "Push Day",
		Category: workouts.CategorySplit,
		Weekday:  &monday,
		Exercises: []workouts.PlannedExercise{
			{ExerciseID: "bench-press", Name: "Bench Press", TargetSets: 3, MuscleGroup: "chest"},
		},
	})
	s.Require().NoError(err)
	s.Positive(added.ID)

	got, err := s.plans.Get(ctx, user.ID, added.ID)
	s.Require().NoError(err)
	s.Equal("Push Day", got.Title)
	s.Require().NotNil(got.Weekday)
	s.Equal(time.Monday, *got.Weekday)
	s.Require().Len(got.Exercises, 1)
	s.Equal(3, got.Exercises[0].TargetSets)

	_, err = s.plans.Get(ctx, other.ID, added.ID)
	s.ErrorIs(err, workouts.ErrNotFound)

	s.Require().NoError(s.plans.UpdateExercises(ctx, user.ID, added.ID, []workouts.PlannedExercise{
		{ExerciseID: "bench-press", Name: "Bench Press", TargetSets: 5, MuscleGroup: "chest"},
	}))
	got, err = s.plans.Get(ctx, user.ID, added.ID)
	s.Require().NoError(err)
	s.Equal(5, got.Exercises[0].TargetSets)
	s.Equal("Push Day", got.Title)

	s.ErrorIs(s.plans.UpdateExercises(ctx, other.ID, added.ID, nil), workouts.ErrNotFound)

	list, err := s.plans.List(ctx, user.ID)
	s.Require().NoError(err)
	s.Len(list, 1)

	s.ErrorIs(s.plans.Delete(ctx, other.ID, added.ID), workouts.ErrNotFound)
	s.Require().NoError(s.plans.Delete(ctx, user.ID, added.ID))
	_, err = s.plans.Get(ctx, user.ID, added.ID)
	s.ErrorIs(err, workouts.ErrNotFound)
}

func (s *IntegrationTestSuite) TestSessionsRepo() {
	ctx := context.Background()
	user := s.newUser()

	plan, err := s.plans.Add(ctx, workouts.Plan{
		UserID:   user.ID,
		Title:    "Legs",
		Category: workouts.CategoryCustom,
	})
	s.Require().NoError(err)

	weight, reps := 100.0, 5
	day := time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC)
	first, err := s.sessions.Add(ctx, workouts.Session{
		UserID: user.ID,
		PlanID: &plan.ID,
		Title:  "Legs",
		Date:   day,
		Exercises: []workouts.SessionExercise{{
			ExerciseID: "squat",
			Name:       "Squat",
			Sets:       []workouts.SetDetail{{ID: "s1", Weight: &weight, Reps: &reps, Kind: workouts.SetKindNormal}},
		}},
		Done: true,
	})
	s.Require().NoError(err)

	// same day, inserted later: the higher id comes first
	second, err := s.sessions.Add(ctx, workouts.Session{
		UserID: user.ID,
		Title:  "Legs again",
		Date:   day,
	})
	s.Require().NoError(err)

	unknownPlan := 999999
	_, err = s.sessions.Add(ctx, workouts.Session{
		UserID: user.ID,
		PlanID: &unknownPlan,
		Title:  "Ghost",
		Date:   day,
	})
	s.ErrorIs(err, workouts.ErrInvalid)

	recent, err := s.sessions.ListRecent(ctx, user.ID, 10)
	s.Require().NoError(err)
	s.Require().Len(recent, 2)
	s.Equal(second.ID, recent[0].ID)
	s.Equal(first.ID, recent[1].ID)
	s.NotNil(recent[0].Exercises)
	s.Empty(recent[0].Exercises)

	recent, err = s.sessions.ListRecent(ctx, user.ID, 1)
	s.Require().NoError(err)
	s.Len(recent, 1)

	_, err = s.sessions.ListRecent(ctx, user.ID, 0)
	s.ErrorIs(err, workouts.ErrInvalid)

	// the newer, not done session does not take the only slot
	done, err := s.sessions.ListRecentDone(ctx, user.ID, 1)
	s.Require().NoError(err)
	s.Require().Len(done, 1)
	s.Equal(first.ID, done[0].ID)
	s.True(done[0].Done)

	_, err = s.sessions.ListRecentDone(ctx, user.ID, 0)
	s.ErrorIs(err, workouts.ErrInvalid)

	got, err := s.sessions.Get(ctx, user.ID, first.ID)
	s.Require().NoError(err)
	s.True(got.Done)
	s.Require().Len(got.Exercises, 1)
	s.Equal(100.0, *got.Exercises[0].Sets[0].Weight)

	got.Notes = "felt strong"
	got.Exercises[0].Sets[0].Reps = nil
	s.Require().NoError(s.sessions.Update(ctx, got))
	got, err = s.sessions.Get(ctx, user.ID, first.ID)
	s.Require().NoError(err)
	s.Equal("felt strong", got.Notes)
	s.Nil(got.Exercises[0].Sets[0].Reps)

	// deleting the plan keeps the session, without the link
	s.Require().NoError(s.plans.Delete(ctx, user.ID, plan.ID))
	got, err = s.sessions.Get(ctx, user.ID, first.ID)
	s.Require().NoError(err)
	s.Nil(got.PlanID)

	_, err = s.sessions.Get(ctx, s.newUser().ID, first.ID)
	s.ErrorIs(err, workouts.ErrNotFound)
}

func (s *IntegrationTestSuite) TestMalformedSessionIsSkippedByHistory() {
	ctx := context.Background()
	user := s.newUser()

	_, err := s.env.DB.ExecContext(ctx,
		`INSERT INTO workouts (user_id, title, date, exercises, done, created_at)
			VALUES ($1, 'broken', now(), '{"not":"a list"}', true, now());`,
		user.ID,
	)
	s.Require().NoError(err)

	recent, err := s.sessions.ListRecent(ctx, user.ID, 10)
	s.Require().NoError(err)
	s.Require().Len(recent, 1)
	s.Nil(recent[0].Exercises)
}
