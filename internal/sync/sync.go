// Package sync decides when the store talks to the remote: load on login,
// save on request, and save again whenever the last sync has gone stale.
package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	gosync "sync"
	"time"

	"github.com/conorfennell/neurapath/internal/session"
	"github.com/conorfennell/neurapath/internal/store"
)

// ErrInvalidCredentials is returned by Login for credentials without a user.
var ErrInvalidCredentials = errors.New("invalid credentials")

// Authenticator verifies credentials before a session starts.
type Authenticator interface {
	Authenticate(ctx context.Context, cred session.Credentials) error
}

// Option configures a Controller.
type Option func(*Controller)

// WithAuthenticator checks credentials on Login.
func WithAuthenticator(a Authenticator) Option {
	return func(c *Controller) { c.auth = a }
}

// WithLogger sets the controller's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Controller) { c.logger = logger }
}

// Controller owns the session credentials and drives the store's loads and
// saves. It holds no other data.
type Controller struct {
	store  *store.Store
	auth   Authenticator
	logger *slog.Logger

	mu     gosync.RWMutex
	cred   session.Credentials
	active bool
}

// NewController creates a controller for s with no active session.
func NewController(s *store.Store, opts ...Option) *Controller {
	c := &Controller{store: s, logger: slog.Default()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Login authenticates cred, starts the session and loads the user's database.
func (c *Controller) Login(ctx context.Context, cred session.Credentials) error {
	if !cred.Valid() {
		return ErrInvalidCredentials
	}
	if c.auth != nil {
		if err := c.auth.Authenticate(ctx, cred); err != nil {
			return fmt.Errorf("failed to authenticate %s: %w", cred, err)
		}
	}

	c.mu.Lock()
	c.cred, c.active = cred, true
	c.mu.Unlock()

	c.logger.Info("Session started", "user", cred.UserID)
	c.store.LoadDatabase(session.NewContext(ctx, cred), cred.UserID)
	return nil
}

// Logout ends the session and discards local state without saving.
func (c *Controller) Logout() {
	c.mu.Lock()
	user := c.cred.UserID
	c.cred, c.active = session.Credentials{}, false
	c.mu.Unlock()

	c.store.Reset()
	c.logger.Info("Session ended", "user", user)
}

// Session returns the active credentials.
func (c *Controller) Session() (session.Credentials, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cred, c.active
}

// CurrentUserID returns the signed-in user, or "".
func (c *Controller) CurrentUserID() string {
	cred, _ := c.Session()
	return cred.UserID
}

// Context returns ctx carrying the active session, if there is one. Store
// operations called with it replicate to the remote.
func (c *Controller) Context(ctx context.Context) context.Context {
	if cred, ok := c.Session(); ok {
		return session.NewContext(ctx, cred)
	}
	return ctx
}

// Save retries queued record operations and then writes the full database.
func (c *Controller) Save(ctx context.Context) error {
	cred, ok := c.Session()
	if !ok {
		return store.ErrNoSession
	}
	ctx = session.NewContext(ctx, cred)

	if c.store.Pending() > 0 {
		if err := c.store.Flush(ctx); err != nil {
			// The full save below supersedes the queue, so keep going.
			c.logger.Warn("Failed to flush pending operations", "user", cred.UserID, "error", err)
		}
	}
	if err := c.store.SaveDatabase(ctx, cred.UserID); err != nil {
		return err
	}
	c.logger.Info("Database saved", "user", cred.UserID)
	return nil
}

// MaybeSync saves when the store's last sync is stale. It reports whether a
// save was attempted.
func (c *Controller) MaybeSync(ctx context.Context) (bool, error) {
	if _, ok := c.Session(); !ok || !c.store.NeedsSync() {
		return false, nil
	}
	return true, c.Save(ctx)
}

// Run calls MaybeSync every interval until ctx is done, retrying queued
// operations in between.
func (c *Controller) Run(ctx context.Context, every time.Duration) error {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			c.tick(ctx)
		}
	}
}

func (c *Controller) tick(ctx context.Context) {
	synced, err := c.MaybeSync(ctx)
	if err != nil {
		c.logger.Error("Periodic sync failed", "user", c.CurrentUserID(), "error", err)
		return
	}
	if synced || c.store.Pending() == 0 {
		return
	}
	if err := c.store.Flush(c.Context(ctx)); err != nil {
		c.logger.Warn("Retry of pending operations failed", "pending", c.store.Pending(), "error", err)
	}
}
