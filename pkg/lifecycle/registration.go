package lifecycle

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
)

// Registration holds the active controller and its waiting successor.
// Lifecycle operations on a registration are serialized; reads of the
// active controller are not blocked by them.
type Registration struct {
	ops sync.Mutex // serializes Install, SkipWaiting and Release

	mu      sync.RWMutex
	active  *Controller
	waiting *Controller

	logger zerolog.Logger
}

// NewRegistration creates an empty registration.
func NewRegistration(logger zerolog.Logger) *Registration {
	return &Registration{
		logger: logger.With().Str("component", "registration").Logger(),
	}
}

// Active returns the controller serving requests, or nil.
func (r *Registration) Active() *Controller {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.active
}

// Waiting returns the installed controller waiting to activate, or nil.
func (r *Registration) Waiting() *Controller {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.waiting
}

// Install installs c. A successfully installed controller replaces any
// previous waiting one, and activates right away when nothing is active
// or when it skips waiting. An install failure leaves the registration
// untouched.
func (r *Registration) Install(ctx context.Context, c *Controller) error {
	r.ops.Lock()
	defer r.ops.Unlock()

	if err := c.Install(ctx); err != nil {
		return err
	}

	r.mu.Lock()
	previous := r.waiting
	r.waiting = c
	hasActive := r.active != nil
	r.mu.Unlock()

	if previous != nil {
		previous.supersede()
	}

	if !hasActive || c.skipsWaiting() {
		return r.activateWaiting(ctx)
	}

	r.logger.Info().Str("controller_id", c.ID()).Msg("Controller waiting for active controller to be released")
	return nil
}

// SkipWaiting activates the waiting controller immediately. It is a no-op
// when nothing is waiting.
func (r *Registration) SkipWaiting(ctx context.Context) error {
	r.ops.Lock()
	defer r.ops.Unlock()

	waiting := r.Waiting()
	if waiting == nil {
		r.logger.Debug().Msg("Skip waiting requested with no waiting controller")
		return nil
	}
	waiting.SkipWaiting()
	return r.activateWaiting(ctx)
}

// Release reports that no client depends on the active controller any
// more, which lets a waiting controller activate.
func (r *Registration) Release(ctx context.Context) error {
	r.ops.Lock()
	defer r.ops.Unlock()

	if r.Waiting() == nil {
		return nil
	}
	return r.activateWaiting(ctx)
}

// HandleMessage dispatches a control message from the application.
// Unknown message types are ignored.
func (r *Registration) HandleMessage(ctx context.Context, msg Message) error {
	switch msg.Type {
	case MessageSkipWaiting:
		return r.SkipWaiting(ctx)
	default:
		r.logger.Debug().Str("type", msg.Type).Msg("Ignoring unknown message")
		return nil
	}
}

// activateWaiting activates the waiting controller and makes it claim all
// clients, retiring the previous active controller. The previous engine
// stops writing before garbage collection runs. Callers hold r.ops.
func (r *Registration) activateWaiting(ctx context.Context) error {
	c := r.Waiting()
	if previous := r.Active(); previous != nil {
		previous.Engine().Retire()
	}
	if err := c.Activate(ctx); err != nil {
		return err
	}

	r.mu.Lock()
	previous := r.active
	r.active = c
	r.waiting = nil
	c.claim()
	r.mu.Unlock()

	if previous != nil {
		previous.supersede()
		activeGeneration.DeleteLabelValues(previous.Names().Static)
	}
	activeGeneration.WithLabelValues(c.Names().Static).Set(1)

	r.logger.Info().
		Str("controller_id", c.ID()).
		Str("static_bucket", c.Names().Static).
		Msg("Controller claimed clients")
	return nil
}
