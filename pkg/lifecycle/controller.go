// Package lifecycle drives a cache generation through install, waiting,
// activation and replacement.
//
// A Controller owns one generation: its bucket names and the strategy
// engine that serves requests with them. A Registration holds the active
// controller and at most one waiting successor, and hands control over
// when the successor activates.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Sternrassler/offline-cache/pkg/generation"
	"github.com/Sternrassler/offline-cache/pkg/strategy"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ErrInstallFailed wraps the pre-population failure of an install.
var ErrInstallFailed = errors.New("install failed")

// Generation is the bucket work a controller runs during its lifecycle.
// *generation.Manager implements it.
type Generation interface {
	Names() generation.Names
	Prepopulate(ctx context.Context) error
	CollectGarbage(ctx context.Context) (generation.GCReport, error)
}

// Config configures a Controller.
type Config struct {
	Generation Generation
	Engine     *strategy.Engine

	// SkipWaitingOnInstall activates the controller as soon as it is
	// installed, even while an older controller is active.
	SkipWaitingOnInstall bool

	Logger zerolog.Logger
}

// Controller is one generation's lifecycle.
type Controller struct {
	id         string
	generation Generation
	engine     *strategy.Engine
	logger     zerolog.Logger

	mu          sync.Mutex
	state       State
	skipWaiting bool
	controlling bool
}

// NewController creates a controller in StateNew.
func NewController(cfg Config) *Controller {
	if cfg.Generation == nil {
		panic("generation cannot be nil")
	}
	if cfg.Engine == nil {
		panic("strategy engine cannot be nil")
	}

	id := uuid.NewString()
	return &Controller{
		id:          id,
		generation:  cfg.Generation,
		engine:      cfg.Engine,
		skipWaiting: cfg.SkipWaitingOnInstall,
		state:       StateNew,
		logger: cfg.Logger.With().
			Str("component", "lifecycle").
			Str("controller_id", id).
			Str("static_bucket", cfg.Generation.Names().Static).
			Logger(),
	}
}

// ID returns the controller's unique ID.
func (c *Controller) ID() string {
	return c.id
}

// Names returns the controller's bucket names.
func (c *Controller) Names() generation.Names {
	return c.generation.Names()
}

// Engine returns the strategy engine serving this generation.
func (c *Controller) Engine() *strategy.Engine {
	return c.engine
}

// State returns the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Controlling reports whether the controller has claimed its clients.
func (c *Controller) Controlling() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.controlling
}

// SkipWaiting marks the controller to activate without waiting for the
// current active controller to be released.
func (c *Controller) SkipWaiting() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.skipWaiting = true
}

func (c *Controller) skipsWaiting() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.skipWaiting
}

// fire applies event and records the transition.
func (c *Controller) fire(event Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	to, err := Transition(c.state, event)
	if err != nil {
		return err
	}

	from := c.state
	c.state = to
	if to == StateRedundant {
		c.controlling = false
	}
	transitionsTotal.WithLabelValues(to.String()).Inc()

	c.logger.Debug().
		Str("from", from.String()).
		Str("to", to.String()).
		Str("event", event.String()).
		Msg("Lifecycle transition")
	return nil
}

// Install pre-populates the static bucket. On success the controller is
// Waiting; on failure it is Redundant and the error wraps ErrInstallFailed.
func (c *Controller) Install(ctx context.Context) error {
	if err := c.fire(EventInstall); err != nil {
		return err
	}

	start := time.Now()
	if err := c.generation.Prepopulate(ctx); err != nil {
		_ = c.fire(EventInstallFailed)
		c.logger.Error().Err(err).Msg("Install failed")
		return fmt.Errorf("%w: %w", ErrInstallFailed, err)
	}

	if err := c.fire(EventInstalled); err != nil {
		return err
	}
	c.logger.Info().Dur("duration", time.Since(start)).Msg("Installed")
	return nil
}

// Activate removes stale buckets and moves the controller to Active.
// Bucket deletion failures are logged, never fatal.
func (c *Controller) Activate(ctx context.Context) error {
	if err := c.fire(EventActivate); err != nil {
		return err
	}

	report, err := c.generation.CollectGarbage(ctx)
	if err != nil {
		c.logger.Warn().Err(err).Msg("Garbage collection could not enumerate buckets")
	}
	for bucket, delErr := range report.Failed {
		c.logger.Warn().Err(delErr).Str("bucket", bucket).Msg("Stale bucket not deleted")
	}

	if err := c.fire(EventActivated); err != nil {
		return err
	}
	c.logger.Info().Strs("deleted", report.Deleted).Msg("Activated")
	return nil
}

// claim marks the controller as controlling its clients.
func (c *Controller) claim() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.controlling = true
}

// supersede retires the controller in favour of a newer one.
func (c *Controller) supersede() {
	c.engine.Retire()
	if err := c.fire(EventSupersede); err != nil {
		c.logger.Debug().Err(err).Msg("Supersede ignored")
	}
}
