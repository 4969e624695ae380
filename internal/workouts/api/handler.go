package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/2beens/liftlog/internal/auth"
	"github.com/2beens/liftlog/internal/middleware"
	"github.com/2beens/liftlog/internal/telemetry/metrics"
	"github.com/2beens/liftlog/internal/workouts"
	"github.com/2beens/liftlog/internal/workouts/catalog"
	"github.com/2beens/liftlog/internal/workouts/session"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"
)

//go:generate mockgen -source=$GOFILE -destination=mocks_test.go -package=api_test

type plansRepo interface {
	Add(ctx context.Context, plan workouts.Plan) (*workouts.Plan, error)
	Get(ctx context.Context, userID string, id int) (*workouts.Plan, error)
	List(ctx context.Context, userID string) ([]workouts.Plan, error)
	Delete(ctx context.Context, userID string, id int) error
}

type sessionsRepo interface {
	Get(ctx context.Context, userID string, id int) (*workouts.Session, error)
	ListRecent(ctx context.Context, userID string, limit int) ([]workouts.Session, error)
}

type editorLoader interface {
	Open(ctx context.Context, params session.OpenParams) (*session.Editor, error)
}

const (
	defaultRecentLimit = 20
	maxRecentLimit     = 100
)

type Handler struct {
	plans    plansRepo
	sessions sessionsRepo
	loader   editorLoader
	registry *session.Registry
	catalog  *catalog.Catalog
}

type NewHandlerParams struct {
	PlansRepo    plansRepo
	SessionsRepo sessionsRepo
	Loader       editorLoader
	Registry     *session.Registry
	Catalog      *catalog.Catalog
}

func NewHandler(params NewHandlerParams) *Handler {
	return &Handler{
		plans:    params.PlansRepo,
		sessions: params.SessionsRepo,
		loader:   params.Loader,
		registry: params.Registry,
		catalog:  params.Catalog,
	}
}

func (handler *Handler) SetupRoutes(
	r *mux.Router,
	rateLimiter middleware.RequestRateLimiter,
	metricsManager *metrics.Manager,
	savesAllowedPerMin int,
) {
	r.HandleFunc("/catalog", handler.HandleCatalog).Methods("GET", "OPTIONS").Name("catalog")
	r.HandleFunc("/catalog/{category}", handler.HandleCatalog).Methods("GET", "OPTIONS").Name("catalog-category")

	r.HandleFunc("/plans", handler.HandleListPlans).Methods("GET", "OPTIONS").Name("list-plans")
	r.HandleFunc("/plans", handler.HandleAddPlan).Methods("POST", "OPTIONS").Name("new-plan")
	r.HandleFunc("/plans/{id}", handler.HandleGetPlan).Methods("GET", "OPTIONS").Name("get-plan")
	r.HandleFunc("/plans/{id}", handler.HandleDeletePlan).Methods("DELETE", "OPTIONS").Name("delete-plan")

	r.HandleFunc("/workouts", handler.HandleListWorkouts).Methods("GET", "OPTIONS").Name("list-workouts")
	r.HandleFunc("/workouts/{id}", handler.HandleGetWorkout).Methods("GET", "OPTIONS").Name("get-workout")

	r.HandleFunc("/editors", handler.HandleOpenEditor).Methods("POST", "OPTIONS").Name("open-editor")
	r.HandleFunc("/editors/{id}", handler.HandleEditorState).Methods("GET", "OPTIONS").Name("editor-state")
	r.HandleFunc("/editors/{id}", handler.HandleCloseEditor).Methods("DELETE", "OPTIONS").Name("close-editor")
	r.HandleFunc("/editors/{id}/start", handler.HandleStart).Methods("POST", "OPTIONS").Name("editor-start")
	r.HandleFunc("/editors/{id}/end", handler.HandleEnd).Methods("POST", "OPTIONS").Name("editor-end")
	r.HandleFunc("/editors/{id}/start-time", handler.HandleSetStartTime).Methods("PUT", "OPTIONS").Name("editor-start-time")
	r.HandleFunc("/editors/{id}/details", handler.HandleUpdateDetails).Methods("PUT", "OPTIONS").Name("editor-details")
	r.HandleFunc("/editors/{id}/exercises", handler.HandleAddExercise).Methods("POST", "OPTIONS").Name("editor-add-exercise")
	r.HandleFunc("/editors/{id}/exercises/{ex}", handler.HandleRemoveExercise).Methods("DELETE", "OPTIONS").Name("editor-remove-exercise")
	r.HandleFunc("/editors/{id}/exercises/{ex}/sets", handler.HandleAddSet).Methods("POST", "OPTIONS").Name("editor-add-set")
	r.HandleFunc("/editors/{id}/exercises/{ex}/sets/{set}", handler.HandleUpdateSet).Methods("PUT", "OPTIONS").Name("editor-update-set")
	r.HandleFunc("/editors/{id}/exercises/{ex}/sets/{set}", handler.HandleRemoveSet).Methods("DELETE", "OPTIONS").Name("editor-remove-set")

	// a save is a db write plus a suggestions refresh, keep clients from hammering it
	r.Handle("/editors/{id}/save",
		middleware.RateLimit(rateLimiter, "editor-save", savesAllowedPerMin, metricsManager)(
			http.HandlerFunc(handler.HandleSave),
		),
	).Methods("POST", "OPTIONS").Name("editor-save")
}

// writeError maps domain errors to a status code and a message safe to show to the user.
func writeError(w http.ResponseWriter, op string, err error) {
	status, msg := http.StatusInternalServerError, "internal error"
	var tooLarge *http.MaxBytesError
	switch {
	case errors.Is(err, auth.ErrNotAuthenticated):
		status, msg = http.StatusUnauthorized, "please log in again"
	case errors.Is(err, workouts.ErrNotFound):
		status, msg = http.StatusNotFound, "not found"
	case errors.Is(err, workouts.ErrPersistence):
		status, msg = http.StatusInternalServerError, "failed to store the workout, please try again"
	case errors.Is(err, workouts.ErrDuplicateExercise):
		status, msg = http.StatusConflict, "exercise already added"
	case errors.Is(err, session.ErrSaveInProgress):
		status, msg = http.StatusConflict, "save already in progress"
	case errors.Is(err, session.ErrEditorClosed):
		status, msg = http.StatusConflict, "workout already saved"
	case errors.Is(err, session.ErrNoPlan):
		status, msg = http.StatusConflict, "nothing to save, start the workout first"
	case errors.Is(err, session.ErrInvalidTransition):
		status, msg = http.StatusConflict, err.Error()
	case errors.As(err, &tooLarge):
		status, msg = http.StatusRequestEntityTooLarge, "request body too large"
	case errors.Is(err, workouts.ErrInvalid):
		status, msg = http.StatusBadRequest, err.Error()
	}

	if status >= http.StatusInternalServerError {
		log.Errorf("%s: %s", op, err)
	} else {
		log.Tracef("%s: %s", op, err)
	}
	http.Error(w, msg, status)
}

func intVar(r *http.Request, name string) (int, error) {
	v, err := strconv.Atoi(mux.Vars(r)[name])
	if err != nil {
		return 0, fmt.Errorf("%w: %s NaN", workouts.ErrInvalid, name)
	}
	return v, nil
}

func decodeBody(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("%w: request body: %w", workouts.ErrInvalid, err)
	}
	return nil
}
