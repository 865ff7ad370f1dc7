package api

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stephnangue/sessionpipe/helper"
	"github.com/stephnangue/sessionpipe/logger"
	"github.com/stephnangue/sessionpipe/session"
)

// SessionExpiredMessage is shown to the user when the session ends.
const SessionExpiredMessage = "Your session has expired. Please sign in again."

// Notifier shows a transient message to the user.
type Notifier interface {
	Notify(ctx context.Context, message string)
}

// NavigateOptions controls how the user is moved to another surface.
type NavigateOptions struct {
	// ReplaceHistory replaces the current history entry instead of
	// pushing a new one, so going back does not return to the expired
	// surface.
	ReplaceHistory bool
}

// Navigator moves the user between surfaces of the application.
type Navigator interface {
	CurrentPath() string
	Navigate(path string, opts NavigateOptions)
}

type escalatorConfig struct {
	store      session.Store
	notifier   Notifier
	navigator  Navigator
	clock      clockwork.Clock
	delay      time.Duration
	signInPath string
	logger     logger.Logger
	metrics    *pipelineMetrics
}

// Escalator ends a session that cannot be recovered: it clears the
// credential store, tells the user, and sends them to the sign-in surface.
// Concurrent escalations collapse into a single episode.
type Escalator struct {
	mu         sync.Mutex
	escalating bool
	generation uint64
	pending    clockwork.Timer

	cfg escalatorConfig
}

func newEscalator(cfg escalatorConfig) *Escalator {
	if cfg.logger == nil {
		cfg.logger = logger.NewNopLogger()
	}
	if cfg.metrics == nil {
		cfg.metrics = newPipelineMetrics()
	}
	if cfg.clock == nil {
		cfg.clock = clockwork.NewRealClock()
	}
	return &Escalator{cfg: cfg}
}

// Active reports whether an escalation episode is in progress.
func (e *Escalator) Active() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.escalating
}

// Escalate starts an escalation episode. It returns false when one is
// already in progress, in which case nothing else happens.
func (e *Escalator) Escalate(ctx context.Context, reason error) bool {
	gen, ok := e.begin()
	if !ok {
		e.cfg.logger.Debug("escalation already in progress", logger.Err(reason))
		return false
	}

	log := e.cfg.logger.WithFields(logger.String("episode_id", helper.GenerateEpisodeID()))
	e.cfg.metrics.incr(metricEscalations)

	if err := e.cfg.store.Clear(); err != nil {
		log.Error("failed to clear credentials", logger.Err(err))
	}

	if e.cfg.navigator != nil && e.cfg.navigator.CurrentPath() == e.cfg.signInPath {
		log.Info("session ended on the sign-in surface", logger.Err(reason))
		e.end(gen)
		return true
	}

	log.Warn("session expired", logger.Err(reason))
	if e.cfg.notifier != nil {
		e.cfg.notifier.Notify(ctx, SessionExpiredMessage)
	}

	if e.cfg.navigator == nil {
		e.end(gen)
		return true
	}

	timer := e.cfg.clock.AfterFunc(e.cfg.delay, func() {
		if !e.current(gen) {
			return
		}
		log.Debug("navigating to sign-in", logger.String("path", e.cfg.signInPath))
		e.cfg.navigator.Navigate(e.cfg.signInPath, NavigateOptions{ReplaceHistory: true})
		e.end(gen)
	})

	e.mu.Lock()
	if e.generation == gen && e.escalating {
		e.pending = timer
	}
	e.mu.Unlock()

	return true
}

// Cancel drops a pending navigation and ends the current episode. It is
// called when a new session starts before the navigation fires.
func (e *Escalator) Cancel() bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.escalating {
		return false
	}
	if e.pending != nil {
		e.pending.Stop()
		e.pending = nil
	}
	e.escalating = false
	e.generation++
	return true
}

func (e *Escalator) begin() (uint64, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.escalating {
		return 0, false
	}
	e.escalating = true
	e.generation++
	return e.generation, true
}

func (e *Escalator) current(gen uint64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.escalating && e.generation == gen
}

func (e *Escalator) end(gen uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.generation != gen {
		return
	}
	e.escalating = false
	e.pending = nil
}
