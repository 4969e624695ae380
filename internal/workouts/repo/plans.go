package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/2beens/liftlog/internal/telemetry/tracing"
	"github.com/2beens/liftlog/internal/workouts"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
)

type PlansRepo struct {
	db *pgxpool.Pool
}

func NewPlansRepo(db *pgxpool.Pool) *PlansRepo {
	return &PlansRepo{
		db: db,
	}
}

func (r *PlansRepo) Add(ctx context.Context, plan workouts.Plan) (_ *workouts.Plan, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.plans.add")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	exercisesJson, err := json.Marshal(plan.Exercises)
	if err != nil {
		return nil, fmt.Errorf("marshal exercises: %w", err)
	}

	now := time.Now()
	if plan.CreatedAt.IsZero() {
		plan.CreatedAt = now
	}
	plan.UpdatedAt = now

	var id int
	if err := r.db.QueryRow(
		ctx,
		`INSERT INTO workout_plans
				(user_id, title, description, category, weekday, exercises, created_at, updated_at)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			RETURNING id;`,
		plan.UserID, plan.Title, plan.Description, string(plan.Category), weekdayToDB(plan.Weekday),
		exercisesJson, plan.CreatedAt, plan.UpdatedAt,
	).Scan(&id); err != nil {
		return nil, err
	}

	span.SetAttributes(attribute.Int("plan.id", id))
	plan.ID = id
	return &plan, nil
}

func (r *PlansRepo) Get(ctx context.Context, userID string, id int) (_ *workouts.Plan, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.plans.get")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.Int("id", id))

	rows, err := r.db.Query(
		ctx,
		`SELECT id, user_id::text, title, description, category, weekday, exercises, created_at, updated_at
			FROM workout_plans
			WHERE id = $1 AND user_id = $2;`,
		id, userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	plans, err := rows2plans(rows)
	if err != nil {
		return nil, err
	}
	if len(plans) != 1 {
		return nil, fmt.Errorf("plan %d: %w", id, workouts.ErrNotFound)
	}
	return &plans[0], nil
}

func (r *PlansRepo) List(ctx context.Context, userID string) (_ []workouts.Plan, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.plans.list")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	rows, err := r.db.Query(
		ctx,
		`SELECT id, user_id::text, title, description, category, weekday, exercises, created_at, updated_at
			FROM workout_plans
			WHERE user_id = $1
			ORDER BY created_at DESC;`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	plans, err := rows2plans(rows)
	if err != nil {
		return nil, fmt.Errorf("rows2plans: %w", err)
	}
	span.SetAttributes(attribute.Int("count", len(plans)))
	return plans, nil
}

// UpdateExercises rewrites only the exercise list (and so the target set counts) of the plan.
func (r *PlansRepo) UpdateExercises(
	ctx context.Context,
	userID string,
	planID int,
	exercises []workouts.PlannedExercise,
) (err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.plans.updateexercises")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.Int("id", planID))
	span.SetAttributes(attribute.Int("exercises", len(exercises)))

	if exercises == nil {
		exercises = []workouts.PlannedExercise{}
	}
	exercisesJson, err := json.Marshal(exercises)
	if err != nil {
		return fmt.Errorf("marshal exercises: %w", err)
	}

	tag, err := r.db.Exec(
		ctx,
		`UPDATE workout_plans SET exercises = $1, updated_at = $2 WHERE id = $3 AND user_id = $4;`,
		exercisesJson, time.Now(), planID, userID,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("plan %d: %w", planID, workouts.ErrNotFound)
	}
	return nil
}

func (r *PlansRepo) Delete(ctx context.Context, userID string, id int) (err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.plans.delete")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.Int("id", id))

	tag, err := r.db.Exec(
		ctx,
		`DELETE FROM workout_plans WHERE id = $1 AND user_id = $2;`,
		id, userID,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("plan %d: %w", id, workouts.ErrNotFound)
	}
	return nil
}

func rows2plans(rows pgx.Rows) ([]workouts.Plan, error) {
	plans := make([]workouts.Plan, 0)
	for rows.Next() {
		var p workouts.Plan
		var category string
		var weekday *int16
		var exercisesBytes []byte
		if err := rows.Scan(
			&p.ID, &p.UserID, &p.Title, &p.Description, &category, &weekday,
			&exercisesBytes, &p.CreatedAt, &p.UpdatedAt,
		); err != nil {
			return nil, err
		}
		p.Category = workouts.Category(category)
		p.Weekday = weekdayFromDB(weekday)

		var exercises []workouts.PlannedExercise
		if err := decodeJSON(exercisesBytes, &exercises); err != nil {
			log.Warnf("plan %d: %s: %s", p.ID, workouts.ErrMalformedRecord, err)
		}
		if exercises == nil {
			exercises = []workouts.PlannedExercise{}
		}
		p.Exercises = exercises
		plans = append(plans, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return plans, nil
}

var errEmptyPayload = errors.New("empty payload")

func decodeJSON(payload []byte, v any) error {
	if len(payload) == 0 {
		return errEmptyPayload
	}
	return json.Unmarshal(payload, v)
}

func weekdayToDB(wd *time.Weekday) *int16 {
	if wd == nil {
		return nil
	}
	v := int16(*wd)
	return &v
}

func weekdayFromDB(v *int16) *time.Weekday {
	if v == nil || *v < 0 || *v > 6 {
		return nil
	}
	wd := time.Weekday(*v)
	return &wd
}
