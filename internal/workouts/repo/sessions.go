package repo

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/2beens/liftlog/internal/telemetry/tracing"
	"github.com/2beens/liftlog/internal/workouts"
	"github.com/2beens/liftlog/pkg"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
)

const sessionColumns = `id, user_id::text, plan_id, title, date, start_time, end_time, notes, body_weight, exercises, done, created_at`

type SessionsRepo struct {
	db *pgxpool.Pool
}

func NewSessionsRepo(db *pgxpool.Pool) *SessionsRepo {
	return &SessionsRepo{
		db: db,
	}
}

func (r *SessionsRepo) Add(ctx context.Context, s workouts.Session) (_ *workouts.Session, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.sessions.add")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.Bool("done", s.Done))

	exercisesJson, err := marshalSessionExercises(s.Exercises)
	if err != nil {
		return nil, err
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now()
	}

	var id int
	if err := r.db.QueryRow(
		ctx,
		`INSERT INTO workouts
				(user_id, plan_id, title, date, start_time, end_time, notes, body_weight, exercises, done, created_at)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
			RETURNING id;`,
		s.UserID, s.PlanID, s.Title, s.Date, s.StartTime, s.EndTime, s.Notes, s.BodyWeight,
		exercisesJson, s.Done, s.CreatedAt,
	).Scan(&id); err != nil {
		if pkg.IsForeignKeyViolationError(err) {
			return nil, fmt.Errorf("unknown plan: %w", workouts.ErrInvalid)
		}
		return nil, err
	}

	span.SetAttributes(attribute.Int("session.id", id))
	s.ID = id
	return &s, nil
}

// Update overwrites the mutable fields of the record in place. Last writer wins.
func (r *SessionsRepo) Update(ctx context.Context, s *workouts.Session) (err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.sessions.update")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.Int("id", s.ID))

	exercisesJson, err := marshalSessionExercises(s.Exercises)
	if err != nil {
		return err
	}

	tag, err := r.db.Exec(
		ctx,
		`UPDATE workouts
			SET title = $1, start_time = $2, end_time = $3, notes = $4, body_weight = $5, exercises = $6, done = $7
			WHERE id = $8 AND user_id = $9;`,
		s.Title, s.StartTime, s.EndTime, s.Notes, s.BodyWeight, exercisesJson, s.Done, s.ID, s.UserID,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("session %d: %w", s.ID, workouts.ErrNotFound)
	}
	return nil
}

func (r *SessionsRepo) Get(ctx context.Context, userID string, id int) (_ *workouts.Session, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.sessions.get")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.Int("id", id))

	rows, err := r.db.Query(
		ctx,
		`SELECT `+sessionColumns+` FROM workouts WHERE id = $1 AND user_id = $2;`,
		id, userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sessions, err := rows2sessions(rows)
	if err != nil {
		return nil, err
	}
	if len(sessions) != 1 {
		return nil, fmt.Errorf("session %d: %w", id, workouts.ErrNotFound)
	}
	return &sessions[0], nil
}

// ListRecent returns the latest sessions of the user, newest first, at most limit of them.
func (r *SessionsRepo) ListRecent(ctx context.Context, userID string, limit int) (_ []workouts.Session, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.sessions.listrecent")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.Int("limit", limit))

	sessions, err := r.listRecent(ctx, userID, limit, false)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.Int("count", len(sessions)))
	return sessions, nil
}

// ListRecentDone is like ListRecent, but only for completed sessions. Auto saved, not done
// sessions do not use up the window.
func (r *SessionsRepo) ListRecentDone(ctx context.Context, userID string, limit int) (_ []workouts.Session, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.sessions.listrecentdone")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.Int("limit", limit))

	sessions, err := r.listRecent(ctx, userID, limit, true)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.Int("count", len(sessions)))
	return sessions, nil
}

func (r *SessionsRepo) listRecent(ctx context.Context, userID string, limit int, onlyDone bool) ([]workouts.Session, error) {
	if limit < 1 {
		return nil, fmt.Errorf("%w: limit must be greater than 0", workouts.ErrInvalid)
	}

	rows, err := r.db.Query(
		ctx,
		`SELECT `+sessionColumns+` FROM workouts
			WHERE user_id = $1 AND (NOT $2 OR done)
			ORDER BY date DESC, id DESC
			LIMIT $3;`,
		userID, onlyDone, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	sessions, err := rows2sessions(rows)
	if err != nil {
		return nil, fmt.Errorf("rows2sessions: %w", err)
	}
	return sessions, nil
}

func marshalSessionExercises(exercises []workouts.SessionExercise) ([]byte, error) {
	if exercises == nil {
		exercises = []workouts.SessionExercise{}
	}
	payload, err := json.Marshal(exercises)
	if err != nil {
		return nil, fmt.Errorf("marshal exercises: %w", err)
	}
	return payload, nil
}

// rows2sessions leaves Exercises nil for a record whose payload cannot be decoded,
// so the history index skips it instead of failing the whole load.
func rows2sessions(rows pgx.Rows) ([]workouts.Session, error) {
	sessions := make([]workouts.Session, 0)
	for rows.Next() {
		var s workouts.Session
		var exercisesBytes []byte
		if err := rows.Scan(
			&s.ID, &s.UserID, &s.PlanID, &s.Title, &s.Date, &s.StartTime, &s.EndTime,
			&s.Notes, &s.BodyWeight, &exercisesBytes, &s.Done, &s.CreatedAt,
		); err != nil {
			return nil, err
		}
		s.Exercises = decodeSessionExercises(s.ID, exercisesBytes)
		sessions = append(sessions, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return sessions, nil
}

func decodeSessionExercises(sessionID int, payload []byte) []workouts.SessionExercise {
	var exercises []workouts.SessionExercise
	if err := decodeJSON(payload, &exercises); err != nil {
		log.Warnf("session %d: %s: %s", sessionID, workouts.ErrMalformedRecord, err)
		return nil
	}
	if exercises == nil {
		log.Warnf("session %d: %s: exercises null", sessionID, workouts.ErrMalformedRecord)
	}
	return exercises
}
