//go:build integration

package integration_testing

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/2beens/liftlog/internal/middleware"
	"github.com/2beens/liftlog/internal/misc"
	"github.com/2beens/liftlog/internal/suggestions"
	"github.com/2beens/liftlog/internal/workouts"
	"github.com/2beens/liftlog/internal/workouts/api"
	"github.com/2beens/liftlog/internal/workouts/session"
)

func (s *IntegrationTestSuite) do(method, path, token string, body any, out any) int {
	t := s.T()
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		s.Require().NoError(err)
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(context.Background(), method, serverEndpoint+path, reader)
	s.Require().NoError(err)
	req.Header.Set("User-Agent", "test-agent")
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set(middleware.TokenHeader, token)
	}

	resp, err := s.httpClient.Do(req)
	s.Require().NoError(err)
	defer resp.Body.Close()

	respBytes, err := io.ReadAll(resp.Body)
	s.Require().NoError(err)
	if out != nil && resp.StatusCode < http.StatusBadRequest {
		s.Require().NoError(json.Unmarshal(respBytes, out), string(respBytes))
	}
	t.Logf("%s %s -> %d", method, path, resp.StatusCode)
	return resp.StatusCode
}

func (s *IntegrationTestSuite) login(username string) string {
	form := url.Values{}
	form.Set("username", username)
	form.Set("password", testPassword)

	req, err := http.NewRequestWithContext(
		context.Background(), http.MethodPost, serverEndpoint+"/a/login", strings.NewReader(form.Encode()),
	)
	s.Require().NoError(err)
	req.Header.Set("User-Agent", "test-agent")
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.httpClient.Do(req)
	s.Require().NoError(err)
	defer resp.Body.Close()
	s.Require().Equal(http.StatusOK, resp.StatusCode)

	var tokenResp misc.TokenResponse
	s.Require().NoError(json.NewDecoder(resp.Body).Decode(&tokenResp))
	s.Require().NotEmpty(tokenResp.Token)
	return tokenResp.Token
}

func (s *IntegrationTestSuite) TestLoginLogout() {
	user := s.newUser()
	token := s.login(user.Username)

	s.Equal(http.StatusOK, s.do(http.MethodGet, "/plans", token, nil, nil))
	s.Equal(http.StatusUnauthorized, s.do(http.MethodGet, "/plans", "", nil, nil))
	s.Equal(http.StatusUnauthorized, s.do(http.MethodGet, "/plans", "made-up-token", nil, nil))

	s.Equal(http.StatusOK, s.do(http.MethodPost, "/a/logout", token, nil, nil))
	s.Equal(http.StatusUnauthorized, s.do(http.MethodGet, "/plans", token, nil, nil))

	s.Equal(http.StatusBadRequest, s.do(http.MethodPost, "/a/login", "", map[string]string{
		"username": user.Username,
		"password": "wrong",
	}, nil))
}

func (s *IntegrationTestSuite) TestWorkoutFlow() {
	ctx := context.Background()
	user := s.newUser()
	token := s.login(user.Username)

	var plan workouts.Plan
	s.Require().Equal(http.StatusCreated, s.do(http.MethodPost, "/plans", token, workouts.Plan{
		Title:    "Push Day",
		Category: workouts.CategoryCustom,
		Exercises: []workouts.PlannedExercise{
			{ExerciseID: "bench-press", Name: "Bench Press", TargetSets: 2},
		},
	}, &plan))
	s.Equal(user.ID, plan.UserID)

	var state session.State
	s.Require().Equal(http.StatusCreated, s.do(http.MethodPost, "/editors", token,
		api.OpenEditorRequest{PlanID: &plan.ID}, &state))
	s.Equal(session.KindPlanEditing, state.Mode.Kind)
	s.Require().Len(state.Exercises, 1)
	s.Len(state.Exercises[0].Sets, 2)
	editorPath := "/editors/" + state.ID

	s.Require().Equal(http.StatusOK, s.do(http.MethodPost, editorPath+"/start", token, nil, &state))
	s.Equal(session.KindActiveSession, state.Mode.Kind)

	ex := state.Exercises[0]
	weight, reps := 80.0, 8
	setPath := fmt.Sprintf("%s/exercises/%s/sets/%s", editorPath, ex.ExerciseID, ex.Sets[0].ID)
	s.Require().Equal(http.StatusOK, s.do(http.MethodPut, setPath, token, session.SetValues{
		Weight: &weight,
		Reps:   &reps,
		Kind:   workouts.SetKindNormal,
	}, &state))

	s.Require().Equal(http.StatusOK, s.do(http.MethodPost, editorPath+"/end", token, nil, &state))
	s.Equal(session.KindEnded, state.Mode.Kind)

	var res session.SaveResult
	s.Require().Equal(http.StatusOK, s.do(http.MethodPost, editorPath+"/save", token, nil, &res))
	s.True(res.Done)
	s.Require().NotNil(res.SessionID)

	// saved editors are closed
	s.Equal(http.StatusNotFound, s.do(http.MethodGet, editorPath, token, nil, nil))

	var recent []workouts.Session
	s.Require().Equal(http.StatusOK, s.do(http.MethodGet, "/workouts", token, nil, &recent))
	s.Require().Len(recent, 1)
	s.Equal(*res.SessionID, recent[0].ID)
	s.True(recent[0].Done)
	s.Require().NotNil(recent[0].PlanID)
	s.Equal(plan.ID, *recent[0].PlanID)
	s.NotNil(recent[0].EndTime)

	flag, err := s.rdb.Get(ctx, suggestions.RegenerateFlagKey(user.ID)).Result()
	s.Require().NoError(err)
	s.Equal("1", flag)

	// the next editor for the same plan is prefilled from the session just saved
	s.Require().Equal(http.StatusCreated, s.do(http.MethodPost, "/editors", token,
		api.OpenEditorRequest{PlanID: &plan.ID}, &state))
	s.Require().Len(state.Exercises, 1)
	s.Require().NotEmpty(state.Exercises[0].Sets)
	s.Require().NotNil(state.Exercises[0].Sets[0].Placeholder)

	var closed api.CloseEditorResponse
	s.Require().Equal(http.StatusOK, s.do(http.MethodDelete, "/editors/"+state.ID, token, nil, &closed))
	s.Equal(session.TeardownSkipped, closed.Result)
}

func (s *IntegrationTestSuite) TestLogoutAutoSavesActiveEditor() {
	ctx := context.Background()
	user := s.newUser()
	token := s.login(user.Username)

	var state session.State
	s.Require().Equal(http.StatusCreated, s.do(http.MethodPost, "/editors", token, nil, &state))
	s.Require().Equal(http.StatusOK, s.do(http.MethodPost, "/editors/"+state.ID+"/start", token, nil, &state))
	s.Require().Equal(http.StatusOK, s.do(http.MethodPost, "/editors/"+state.ID+"/exercises", token,
		api.AddExerciseRequest{Name: "Squat"}, &state))

	s.Require().Equal(http.StatusOK, s.do(http.MethodPost, "/a/logout", token, nil, nil))

	recent, err := s.sessions.ListRecent(ctx, user.ID, 10)
	s.Require().NoError(err)
	s.Require().Len(recent, 1)
	s.False(recent[0].Done)
	s.Equal("Workout", recent[0].Title)
}
