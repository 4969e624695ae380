package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/2beens/liftlog/internal/auth"
	"github.com/2beens/liftlog/internal/telemetry/tracing"
	"github.com/2beens/liftlog/internal/workouts"
	"github.com/2beens/liftlog/internal/workouts/catalog"
	"github.com/2beens/liftlog/pkg"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
)

type CatalogResponse struct {
	Categories []string           `json:"categories"`
	Exercises  []catalog.Exercise `json:"exercises"`
}

type DeletePlanResponse struct {
	DeletedID int `json:"deletedId"`
}

func (handler *Handler) HandleCatalog(w http.ResponseWriter, r *http.Request) {
	_, span := tracing.GlobalTracer.Start(r.Context(), "handler.catalog.list")
	defer span.End()

	category := mux.Vars(r)["category"]
	resp := CatalogResponse{
		Categories: handler.catalog.Categories(),
		Exercises:  []catalog.Exercise{},
	}
	if category != "" {
		resp.Exercises = append(resp.Exercises, handler.catalog.List(category)...)
	} else {
		for _, c := range resp.Categories {
			resp.Exercises = append(resp.Exercises, handler.catalog.List(c)...)
		}
	}
	span.SetAttributes(attribute.Int("exercises", len(resp.Exercises)))

	pkg.WriteJSON(w, http.StatusOK, resp)
}

func (handler *Handler) HandleListPlans(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.plans.list")
	defer span.End()

	userID, err := auth.UserID(ctx)
	if err != nil {
		writeError(w, "list plans", err)
		return
	}

	plans, err := handler.plans.List(ctx, userID)
	if err != nil {
		writeError(w, "list plans", err)
		return
	}
	if plans == nil {
		plans = []workouts.Plan{}
	}

	pkg.WriteJSON(w, http.StatusOK, plans)
}

func (handler *Handler) HandleAddPlan(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.plans.new")
	defer span.End()

	userID, err := auth.UserID(ctx)
	if err != nil {
		writeError(w, "add plan", err)
		return
	}

	if r.Header.Get("Content-Type") != pkg.ContentType.JSON {
		http.Error(w, "invalid content type", http.StatusBadRequest)
		return
	}

	var plan workouts.Plan
	if err := decodeBody(r, &plan); err != nil {
		writeError(w, "add plan", err)
		return
	}
	plan.ID = 0
	plan.UserID = userID
	if plan.Exercises == nil {
		plan.Exercises = []workouts.PlannedExercise{}
	}
	for i, ex := range plan.Exercises {
		if ex.MuscleGroup != "" {
			continue
		}
		if known, ok := handler.catalog.Get(ex.ExerciseID); ok {
			plan.Exercises[i].MuscleGroup = known.Category
		} else {
			plan.Exercises[i].MuscleGroup = catalog.InferMuscleGroup(ex.Name)
		}
	}
	if err := plan.Validate(); err != nil {
		writeError(w, "add plan", err)
		return
	}

	now := time.Now()
	plan.CreatedAt, plan.UpdatedAt = now, now
	added, err := handler.plans.Add(ctx, plan)
	if err != nil {
		writeError(w, "add plan", err)
		return
	}

	log.Debugf("new plan added: %d [%s]", added.ID, added.Title)
	pkg.WriteJSON(w, http.StatusCreated, added)
}

func (handler *Handler) HandleGetPlan(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.plans.get")
	defer span.End()

	userID, err := auth.UserID(ctx)
	if err != nil {
		writeError(w, "get plan", err)
		return
	}
	id, err := intVar(r, "id")
	if err != nil {
		writeError(w, "get plan", err)
		return
	}

	plan, err := handler.plans.Get(ctx, userID, id)
	if err != nil {
		writeError(w, "get plan", err)
		return
	}

	pkg.WriteJSON(w, http.StatusOK, plan)
}

func (handler *Handler) HandleDeletePlan(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.plans.delete")
	defer span.End()

	userID, err := auth.UserID(ctx)
	if err != nil {
		writeError(w, "delete plan", err)
		return
	}
	id, err := intVar(r, "id")
	if err != nil {
		writeError(w, "delete plan", err)
		return
	}

	if err := handler.plans.Delete(ctx, userID, id); err != nil {
		writeError(w, "delete plan", err)
		return
	}

	pkg.WriteJSON(w, http.StatusOK, DeletePlanResponse{DeletedID: id})
}

func (handler *Handler) HandleListWorkouts(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.workouts.list")
	defer span.End()

	userID, err := auth.UserID(ctx)
	if err != nil {
		writeError(w, "list workouts", err)
		return
	}

	limit := defaultRecentLimit
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		limit, err = strconv.Atoi(limitStr)
		if err != nil || limit < 1 {
			http.Error(w, "error, limit must be a positive number", http.StatusBadRequest)
			return
		}
	}
	limit = min(limit, maxRecentLimit)

	sessions, err := handler.sessions.ListRecent(ctx, userID, limit)
	if err != nil {
		writeError(w, "list workouts", err)
		return
	}
	if sessions == nil {
		sessions = []workouts.Session{}
	}

	pkg.WriteJSON(w, http.StatusOK, sessions)
}

func (handler *Handler) HandleGetWorkout(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.workouts.get")
	defer span.End()

	userID, err := auth.UserID(ctx)
	if err != nil {
		writeError(w, "get workout", err)
		return
	}
	id, err := intVar(r, "id")
	if err != nil {
		writeError(w, "get workout", err)
		return
	}

	s, err := handler.sessions.Get(ctx, userID, id)
	if err != nil {
		writeError(w, "get workout", err)
		return
	}

	pkg.WriteJSON(w, http.StatusOK, s)
}
