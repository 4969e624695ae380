package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/2beens/liftlog/internal/auth"
	"github.com/2beens/liftlog/internal/telemetry/tracing"
	"github.com/2beens/liftlog/internal/workouts"
	"github.com/2beens/liftlog/internal/workouts/session"
	"github.com/2beens/liftlog/pkg"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
)

type OpenEditorRequest struct {
	PlanID    *int `json:"planId,omitempty"`
	SessionID *int `json:"sessionId,omitempty"`
}

type SetStartTimeRequest struct {
	StartTime time.Time `json:"startTime"`
}

type AddExerciseRequest struct {
	Name       string `json:"name"`
	TargetSets int    `json:"targetSets"`
}

type CloseEditorResponse struct {
	Result session.TeardownResult `json:"result"`
}

// editor resolves the {id} editor of the authenticated user.
func (handler *Handler) editor(r *http.Request) (*session.Editor, error) {
	userID, err := auth.UserID(r.Context())
	if err != nil {
		return nil, err
	}
	return handler.registry.Get(userID, mux.Vars(r)["id"])
}

// withEditor runs fn on the editor and answers with the resulting state.
func (handler *Handler) withEditor(w http.ResponseWriter, r *http.Request, op string, fn func(e *session.Editor) error) {
	_, span := tracing.GlobalTracer.Start(r.Context(), "handler.editors."+op)
	defer span.End()

	e, err := handler.editor(r)
	if err != nil {
		writeError(w, op, err)
		return
	}
	span.SetAttributes(attribute.String("editor.id", e.ID()))

	if err := fn(e); err != nil {
		writeError(w, op, err)
		return
	}

	pkg.WriteJSON(w, http.StatusOK, e.State())
}

func (handler *Handler) HandleOpenEditor(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.editors.open")
	defer span.End()

	userID, err := auth.UserID(ctx)
	if err != nil {
		writeError(w, "open editor", err)
		return
	}

	// an empty body opens an ad-hoc workout
	var req OpenEditorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, "open editor", fmt.Errorf("%w: request body: %w", workouts.ErrInvalid, err))
		return
	}

	e, err := handler.loader.Open(ctx, session.OpenParams{
		UserID:    userID,
		PlanID:    req.PlanID,
		SessionID: req.SessionID,
	})
	if err != nil {
		writeError(w, "open editor", err)
		return
	}
	handler.registry.Add(e)

	state := e.State()
	span.SetAttributes(
		attribute.String("editor.id", e.ID()),
		attribute.String("mode", string(state.Mode.Kind)),
	)
	log.Debugf("editor %s opened for user %s in mode %s", e.ID(), userID, state.Mode.Kind)
	pkg.WriteJSON(w, http.StatusCreated, state)
}

func (handler *Handler) HandleEditorState(w http.ResponseWriter, r *http.Request) {
	handler.withEditor(w, r, "state", func(*session.Editor) error { return nil })
}

// HandleCloseEditor is the screen teardown: an active workout with exercises is auto saved as not done.
func (handler *Handler) HandleCloseEditor(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.editors.close")
	defer span.End()

	userID, err := auth.UserID(ctx)
	if err != nil {
		writeError(w, "close editor", err)
		return
	}

	res, err := handler.registry.Close(ctx, userID, mux.Vars(r)["id"])
	if err != nil {
		writeError(w, "close editor", err)
		return
	}
	span.SetAttributes(attribute.String("result", string(res)))

	pkg.WriteJSON(w, http.StatusOK, CloseEditorResponse{Result: res})
}

func (handler *Handler) HandleStart(w http.ResponseWriter, r *http.Request) {
	handler.withEditor(w, r, "start", func(e *session.Editor) error {
		return e.Start()
	})
}

func (handler *Handler) HandleEnd(w http.ResponseWriter, r *http.Request) {
	handler.withEditor(w, r, "end", func(e *session.Editor) error {
		return e.End()
	})
}

func (handler *Handler) HandleSetStartTime(w http.ResponseWriter, r *http.Request) {
	handler.withEditor(w, r, "start-time", func(e *session.Editor) error {
		var req SetStartTimeRequest
		if err := decodeBody(r, &req); err != nil {
			return err
		}
		if req.StartTime.IsZero() {
			return fmt.Errorf("%w: start time missing", workouts.ErrInvalid)
		}
		return e.SetStartTime(req.StartTime)
	})
}

func (handler *Handler) HandleUpdateDetails(w http.ResponseWriter, r *http.Request) {
	handler.withEditor(w, r, "details", func(e *session.Editor) error {
		var details session.Details
		if err := decodeBody(r, &details); err != nil {
			return err
		}
		return e.UpdateDetails(details)
	})
}

func (handler *Handler) HandleAddExercise(w http.ResponseWriter, r *http.Request) {
	handler.withEditor(w, r, "add-exercise", func(e *session.Editor) error {
		var req AddExerciseRequest
		if err := decodeBody(r, &req); err != nil {
			return err
		}
		_, err := e.AddExercise(req.Name, req.TargetSets)
		return err
	})
}

func (handler *Handler) HandleRemoveExercise(w http.ResponseWriter, r *http.Request) {
	handler.withEditor(w, r, "remove-exercise", func(e *session.Editor) error {
		return e.RemoveExercise(mux.Vars(r)["ex"])
	})
}

func (handler *Handler) HandleAddSet(w http.ResponseWriter, r *http.Request) {
	handler.withEditor(w, r, "add-set", func(e *session.Editor) error {
		_, err := e.AddSet(mux.Vars(r)["ex"])
		return err
	})
}

func (handler *Handler) HandleUpdateSet(w http.ResponseWriter, r *http.Request) {
	handler.withEditor(w, r, "update-set", func(e *session.Editor) error {
		var values session.SetValues
		if err := decodeBody(r, &values); err != nil {
			return err
		}
		vars := mux.Vars(r)
		return e.UpdateSet(vars["ex"], vars["set"], values)
	})
}

func (handler *Handler) HandleRemoveSet(w http.ResponseWriter, r *http.Request) {
	handler.withEditor(w, r, "remove-set", func(e *session.Editor) error {
		vars := mux.Vars(r)
		return e.RemoveSet(vars["ex"], vars["set"])
	})
}

// HandleSave persists the editor. A saved editor is closed, so it is dropped from the registry.
func (handler *Handler) HandleSave(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.editors.save")
	defer span.End()

	e, err := handler.editor(r)
	if err != nil {
		writeError(w, "save editor", err)
		return
	}

	res, err := e.Save(ctx)
	if err != nil {
		writeError(w, "save editor", err)
		return
	}
	handler.registry.Forget(e.ID())

	span.SetAttributes(
		attribute.String("mode", string(res.Mode)),
		attribute.Bool("done", res.Done),
	)
	pkg.WriteJSON(w, http.StatusOK, res)
}
