package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/2beens/liftlog/internal/telemetry/metrics"
	"github.com/2beens/liftlog/internal/workouts"

	log "github.com/sirupsen/logrus"
)

var ErrEditorNotFound = fmt.Errorf("editor %w", workouts.ErrNotFound)

// Registry holds the open editors of the process. It is created with the server
// and drained on logout (per user) and on shutdown (all).
type Registry struct {
	mu      sync.RWMutex
	editors map[string]*Editor
	metrics *metrics.Manager
}

func NewRegistry(metricsManager *metrics.Manager) *Registry {
	return &Registry{
		editors: make(map[string]*Editor),
		metrics: metricsManager,
	}
}

func (r *Registry) Add(e *Editor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.editors[e.id] = e
	r.updateGauge()
}

// Get returns the editor only to its owner; other users get ErrEditorNotFound.
func (r *Registry) Get(userID, id string) (*Editor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.editors[id]
	if !ok || e.userID != userID {
		return nil, ErrEditorNotFound
	}
	e.touch()
	return e, nil
}

// Forget drops the editor without tearing it down.
func (r *Registry) Forget(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.editors, id)
	r.updateGauge()
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.editors)
}

// Close tears the editor down. A failed auto save or a save in progress keeps
// the editor registered so it can still be saved.
func (r *Registry) Close(ctx context.Context, userID, id string) (TeardownResult, error) {
	e, err := r.Get(userID, id)
	if err != nil {
		return TeardownSkipped, err
	}

	res, err := e.Teardown(ctx)
	if err != nil {
		return res, err
	}
	if res != TeardownFailed {
		r.Forget(id)
	}
	return res, nil
}

// CloseUser tears down all editors of the user. An editor whose auto save failed stays
// registered, the idle sweep retries it.
func (r *Registry) CloseUser(ctx context.Context, userID string) {
	for _, e := range r.list(func(e *Editor) bool { return e.userID == userID }) {
		r.closeLogged(ctx, e, true)
	}
}

// CloseAll tears down every editor; nothing is kept, the process is going away.
func (r *Registry) CloseAll(ctx context.Context) {
	for _, e := range r.list(func(*Editor) bool { return true }) {
		r.closeLogged(ctx, e, false)
	}
}

// CloseIdle tears down the editors not used for maxIdle, e.g. when the client went away
// without closing the screen. Editors that could not be closed stay for the next sweep.
// Returns how many editors were closed.
func (r *Registry) CloseIdle(ctx context.Context, maxIdle time.Duration, now time.Time) int {
	idle := r.list(func(e *Editor) bool {
		return now.Sub(e.idleSince()) >= maxIdle
	})
	closed := 0
	for _, e := range idle {
		if r.closeLogged(ctx, e, true) {
			closed++
		}
	}
	return closed
}

// closeLogged tears the editor down and forgets it. With keepFailed, an editor with a
// failed auto save or a save in progress is kept. Reports whether the editor was forgotten.
func (r *Registry) closeLogged(ctx context.Context, e *Editor, keepFailed bool) bool {
	res, err := e.Teardown(ctx)
	if err != nil && !errors.Is(err, ErrSaveInProgress) {
		log.Errorf("registry: teardown editor %s: %s", e.id, err)
	}
	if keepFailed && (res == TeardownFailed || err != nil) {
		log.Warnf("registry: editor %s of user %s kept: %s", e.id, e.userID, closeReason(res, err))
		return false
	}
	log.Debugf("registry: editor %s of user %s closed: %s", e.id, e.userID, res)
	r.Forget(e.id)
	return true
}

func closeReason(res TeardownResult, err error) string {
	if err != nil {
		return err.Error()
	}
	return string(res)
}

func (r *Registry) list(match func(e *Editor) bool) []*Editor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*Editor
	for _, e := range r.editors {
		if match(e) {
			out = append(out, e)
		}
	}
	return out
}

// must be called with the lock held
func (r *Registry) updateGauge() {
	if r.metrics != nil {
		r.metrics.GaugeOpenEditors.Set(float64(len(r.editors)))
	}
}
