package cli

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/conorfennell/neurapath/internal/config"
	"github.com/conorfennell/neurapath/internal/domain"
	"github.com/conorfennell/neurapath/internal/export"
	"github.com/conorfennell/neurapath/internal/remote"
	"github.com/conorfennell/neurapath/internal/session"
	"github.com/conorfennell/neurapath/internal/store"
	"github.com/conorfennell/neurapath/internal/sync"
)

// errNoUser is returned when a remote backend is used without an account.
var errNoUser = errors.New("an account is required: set --user or NEURAPATH_SESSION__USER")

// accounts is implemented by backends that keep user accounts.
type accounts interface {
	Register(ctx context.Context, cred session.Credentials) error
	Authenticate(ctx context.Context, cred session.Credentials) error
}

// app is the state one command runs with.
type app struct {
	cfg    *config.Config
	logger *slog.Logger
	store  *store.Store
	ctrl   *sync.Controller
	remote store.Remote
	close  func() error

	// fullSave makes commit write the whole database, profile included.
	fullSave bool
}

// openApp loads the configuration and connects the configured backend. The
// database is not loaded yet; call load.
func openApp(cmd *cobra.Command) (*app, error) {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(config.Options{File: cfgFile, Flags: cmd.Flags()})
	if err != nil {
		return nil, err
	}
	logger := cfg.Log.NewLogger(cmd.ErrOrStderr())

	a := &app{cfg: cfg, logger: logger, close: func() error { return nil }}
	if err := a.connect(cmd.Context()); err != nil {
		return nil, err
	}

	opts := []store.Option{
		store.WithLogger(logger),
		store.WithStaleAfter(cfg.Sync.StaleAfter),
	}
	if a.remote != nil {
		opts = append(opts, store.WithRemote(a.remote))
	}
	a.store = store.New(opts...)

	ctrlOpts := []sync.Option{sync.WithLogger(logger)}
	if acc, ok := a.remote.(accounts); ok {
		ctrlOpts = append(ctrlOpts, sync.WithAuthenticator(acc))
	}
	a.ctrl = sync.NewController(a.store, ctrlOpts...)
	return a, nil
}

func (a *app) connect(ctx context.Context) error {
	b := a.cfg.Backend
	switch b.Kind {
	case config.BackendHTTP:
		a.remote = remote.NewHTTP(b.URL, b.Timeout)
	case config.BackendSQLite:
		db, err := remote.OpenSQLite(b.DSN)
		if err != nil {
			return err
		}
		a.remote, a.close = db, db.Close
	case config.BackendPostgres:
		db, err := remote.OpenPostgres(ctx, b.DSN)
		if err != nil {
			return err
		}
		a.remote, a.close = db, db.Close
	case config.BackendGit:
		repo, err := remote.OpenGit(b.GitPath, b.GitRemote, a.logger)
		if err != nil {
			return err
		}
		a.remote = repo
	case config.BackendMemory:
	default:
		return fmt.Errorf("unknown backend %q", b.Kind)
	}
	a.logger.Debug("Backend ready", "kind", b.Kind)
	return nil
}

func (a *app) credentials() (session.Credentials, error) {
	if a.cfg.Session.User == "" {
		return session.Credentials{}, errNoUser
	}
	return session.Credentials{UserID: a.cfg.Session.User, Password: a.cfg.Session.Password}, nil
}

// load fills the store: from the local file for the memory backend, or by
// logging in to the remote.
func (a *app) load(ctx context.Context) error {
	if a.remote == nil {
		db, err := readLocal(a.cfg.Data.Path)
		if err != nil {
			return err
		}
		a.store.Replace(db)
		return nil
	}
	cred, err := a.credentials()
	if err != nil {
		return err
	}
	if err := a.ctrl.Login(ctx, cred); err != nil {
		return err
	}
	// Saving over a database that could not be read would wipe it.
	if err := a.store.LoadErr(); err != nil {
		return err
	}
	return nil
}

// ctx carries the session so store changes replicate.
func (a *app) ctx(ctx context.Context) context.Context {
	return a.ctrl.Context(ctx)
}

// commit persists changes made by a command. Remote backends already hold
// every change that replicated; anything still queued is retried once unless
// a full save was asked for.
func (a *app) commit(ctx context.Context) error {
	if a.remote == nil {
		return writeLocal(a.cfg.Data.Path, a.store.Database())
	}
	if a.fullSave {
		return a.ctrl.Save(ctx)
	}
	if a.store.Pending() == 0 {
		return nil
	}
	return a.store.Flush(a.ctx(ctx))
}

// readLocal reads a database file. A missing file is an empty database.
func readLocal(path string) (domain.Database, error) {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return domain.Database{}, nil
	}
	if err != nil {
		return domain.Database{}, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	format, err := export.FormatForPath(path)
	if err != nil {
		format = export.JSON
	}
	return export.Read(f, format)
}

// writeLocal replaces the database file atomically.
func writeLocal(path string, db domain.Database) error {
	format, err := export.FormatForPath(path)
	if err != nil {
		format = export.JSON
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".neurapath-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := export.Write(tmp, db, format); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write %s: %w", tmp.Name(), err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}
	return nil
}

// withApp opens the app, loads the database, runs fn and commits when fn
// succeeds.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app) error) error {
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.close(); err != nil {
			a.logger.Warn("Failed to close backend", "error", err)
		}
	}()

	ctx := cmd.Context()
	if err := a.load(ctx); err != nil {
		return err
	}
	if err := fn(a.ctx(ctx), a); err != nil {
		return err
	}
	return a.commit(ctx)
}
