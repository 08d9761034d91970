// Package cancel implements the single-channel cancellation controller. At
// most one token is live at any time: starting a new primary operation
// invalidates whatever was previously in flight, and Stop invalidates the
// live token without issuing a new one.
//
// Cancellation is ordinary control flow, not exception propagation: callers
// compare the token at every resume point (after each external call) and
// bail out before mutating state when it has been invalidated.
package cancel

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/storyflow-ai/storyflow/types"
)

// Controller owns the single live cancellation token.
type Controller struct {
	mu     sync.Mutex
	gen    uint64
	cancel context.CancelFunc
	onStop []func()
	logger *zap.Logger
}

// New creates a controller. Hooks registered with OnStop run on every Stop
// call; the composition root registers the store's in-flight reset here.
func New(logger *zap.Logger) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Controller{logger: logger.With(zap.String("component", "cancel"))}
}

// OnStop registers a hook invoked after each Stop. Not safe to call once
// operations are running; register everything during composition.
func (c *Controller) OnStop(hook func()) {
	c.onStop = append(c.onStop, hook)
}

// Start invalidates the previous token, if any, and issues a fresh one bound
// to a context derived from parent. The returned context is cancelled the
// moment the token is invalidated, so blocking service calls unwind early.
func (c *Controller) Start(parent context.Context) (*Token, context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cancel != nil {
		c.cancel()
	}
	c.gen++

	ctx, cancelFn := context.WithCancel(parent)
	c.cancel = cancelFn
	return &Token{c: c, gen: c.gen}, ctx
}

// Stop invalidates the live token without issuing a new one, then runs the
// registered hooks. Idempotent.
func (c *Controller) Stop() {
	c.mu.Lock()
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.gen++
	hooks := c.onStop
	c.mu.Unlock()

	c.logger.Info("stop requested, live token invalidated")
	for _, hook := range hooks {
		hook()
	}
}

func (c *Controller) currentGen() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen
}

// Token is a generation-counter cancellation token. It stays valid until the
// controller starts a new operation or Stop is called.
type Token struct {
	c   *Controller
	gen uint64
}

// Cancelled reports whether the token has been invalidated.
func (t *Token) Cancelled() bool {
	return t.c.currentGen() != t.gen
}

// Err returns the canonical stop error when the token has been invalidated,
// nil otherwise. The caller records the error's UserMessage on the scene or
// clip so cancellation is never conflated with a service failure.
func (t *Token) Err() error {
	if t.Cancelled() {
		return types.NewStoppedError()
	}
	return nil
}
