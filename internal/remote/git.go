package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/transport"

	"github.com/conorfennell/neurapath/internal/domain"
	"github.com/conorfennell/neurapath/internal/session"
	"github.com/conorfennell/neurapath/internal/tree"
)

// Git keeps each user's database as <user>.json in a git working tree and
// commits every write. With an origin configured it pulls before reads and
// pushes after writes.
type Git struct {
	mu     sync.Mutex
	dir    string
	origin string
	repo   *git.Repository
	logger *slog.Logger
}

// OpenGit opens the repository at dir. If origin is set the repository is
// cloned when dir does not exist yet and pulled otherwise; without an origin
// a missing repository is initialised.
func OpenGit(dir, origin string, logger *slog.Logger) (*Git, error) {
	if logger == nil {
		logger = slog.Default()
	}
	g := &Git{dir: dir, origin: origin, logger: logger}

	_, err := os.Stat(dir)
	switch {
	case os.IsNotExist(err) && origin != "":
		g.repo, err = g.clone()
	case os.IsNotExist(err):
		logger.Info("Initialising repository", "path", dir)
		g.repo, err = git.PlainInit(dir, false)
	case err == nil:
		g.repo, err = git.PlainOpen(dir)
		if errors.Is(err, git.ErrRepositoryNotExists) {
			g.repo, err = git.PlainInit(dir, false)
		}
	default:
		return nil, fmt.Errorf("error checking path %s: %w", dir, err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open repo at %s: %w", dir, err)
	}
	if err := g.pull(context.Background()); err != nil {
		return nil, err
	}
	return g, nil
}

func (g *Git) clone() (*git.Repository, error) {
	g.logger.Info("Cloning repository", "url", g.origin, "path", g.dir)
	repo, err := git.PlainClone(g.dir, false, &git.CloneOptions{URL: g.origin})
	if errors.Is(err, transport.ErrEmptyRemoteRepository) {
		// Nothing to clone yet; start a repository that pushes to origin.
		if err := os.RemoveAll(g.dir); err != nil {
			return nil, fmt.Errorf("failed to clean up %s: %w", g.dir, err)
		}
		repo, err = git.PlainInit(g.dir, false)
		if err != nil {
			return nil, err
		}
		_, err = repo.CreateRemote(&config.RemoteConfig{Name: git.DefaultRemoteName, URLs: []string{g.origin}})
		return repo, err
	}
	return repo, err
}

// pull fetches the latest commits from origin, if there is one.
func (g *Git) pull(ctx context.Context) error {
	if g.origin == "" {
		return nil
	}
	wt, err := g.repo.Worktree()
	if err != nil {
		return fmt.Errorf("failed to get worktree for repo at %s: %w", g.dir, err)
	}
	err = wt.PullContext(ctx, &git.PullOptions{RemoteName: git.DefaultRemoteName})
	switch {
	case err == nil:
		g.logger.Debug("Pulled latest changes", "path", g.dir)
	case errors.Is(err, git.NoErrAlreadyUpToDate), errors.Is(err, transport.ErrEmptyRemoteRepository):
	default:
		return fmt.Errorf("failed to pull changes for repo at %s: %w", g.dir, err)
	}
	return nil
}

func (g *Git) push(ctx context.Context) error {
	if g.origin == "" {
		return nil
	}
	err := g.repo.PushContext(ctx, &git.PushOptions{RemoteName: git.DefaultRemoteName})
	if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		return fmt.Errorf("failed to push repo at %s: %w", g.dir, err)
	}
	return nil
}

func fileFor(userID string) string {
	return url.PathEscape(userID) + ".json"
}

func (g *Git) read(userID string) (domain.Database, error) {
	raw, err := os.ReadFile(filepath.Join(g.dir, fileFor(userID)))
	if os.IsNotExist(err) {
		return domain.Database{}, nil
	}
	if err != nil {
		return domain.Database{}, fmt.Errorf("failed to read database of %s: %w", userID, err)
	}
	return domain.Normalize(raw)
}

// write stores p for userID and commits it with msg.
func (g *Git) write(ctx context.Context, userID string, p domain.Payload, msg string) error {
	body, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode database of %s: %w", userID, err)
	}
	name := fileFor(userID)
	if err := os.WriteFile(filepath.Join(g.dir, name), append(body, '\n'), 0o644); err != nil {
		return fmt.Errorf("failed to write database of %s: %w", userID, err)
	}

	wt, err := g.repo.Worktree()
	if err != nil {
		return fmt.Errorf("failed to get worktree for repo at %s: %w", g.dir, err)
	}
	if _, err := wt.Add(name); err != nil {
		return fmt.Errorf("failed to stage %s: %w", name, err)
	}
	_, err = wt.Commit(msg, &git.CommitOptions{
		Author: &object.Signature{Name: userID, Email: userID + "@neurapath.local", When: time.Now()},
	})
	if errors.Is(err, git.ErrEmptyCommit) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to commit %s: %w", name, err)
	}
	return g.push(ctx)
}

// FetchDatabase returns userID's stored blob. An unknown user yields an
// empty record list.
func (g *Git) FetchDatabase(ctx context.Context, userID string) ([]byte, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.pull(ctx); err != nil {
		return nil, err
	}
	db, err := g.read(userID)
	if err != nil {
		return nil, err
	}
	return json.Marshal(db.Payload())
}

// SaveDatabase replaces the user's file with p.
func (g *Git) SaveDatabase(ctx context.Context, cred session.Credentials, p domain.Payload) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if p.Records == nil {
		p.Records = []domain.Record{}
	}
	return g.write(ctx, cred.UserID, p, fmt.Sprintf("Save database (%d records)", len(p.Records)))
}

// CreateRecord adds rec to the user's file, replacing any record at its ID.
func (g *Git) CreateRecord(ctx context.Context, cred session.Credentials, rec domain.Record) error {
	return g.modify(ctx, cred.UserID, "Create "+rec.ID, func(db *domain.Database) {
		putRecord(db, rec)
	})
}

// UpdateRecord stores rec in the user's file.
func (g *Git) UpdateRecord(ctx context.Context, cred session.Credentials, rec domain.Record) error {
	return g.modify(ctx, cred.UserID, "Update "+rec.ID, func(db *domain.Database) {
		putRecord(db, rec)
	})
}

// DeleteRecord removes the record at id from the user's file.
func (g *Git) DeleteRecord(ctx context.Context, cred session.Credentials, id string) error {
	return g.modify(ctx, cred.UserID, "Delete "+id, func(db *domain.Database) {
		kept := db.Items[:0]
		for _, r := range db.Items {
			if r.ID != id {
				kept = append(kept, r)
			}
		}
		db.Items = kept
	})
}

func (g *Git) modify(ctx context.Context, userID, msg string, fn func(db *domain.Database)) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.pull(ctx); err != nil {
		return err
	}
	db, err := g.read(userID)
	if err != nil {
		return err
	}
	fn(&db)
	return g.write(ctx, userID, db.Payload(), msg)
}

func putRecord(db *domain.Database, rec domain.Record) {
	for i, r := range db.Items {
		if r.ID == rec.ID {
			db.Items[i] = rec
			return
		}
	}
	db.Items = append(db.Items, rec)
}

// LocalPath returns where a clone of repoURL lives under baseDir, e.g.
// baseDir/github.com/user/repo for both https and scp-style URLs.
func LocalPath(baseDir, repoURL string) (string, error) {
	parsedURL, err := url.Parse(repoURL)
	if err != nil || (parsedURL.Scheme != "https" && parsedURL.Scheme != "http" && parsedURL.Scheme != "file") {
		if strings.Contains(repoURL, "@") {
			parts := strings.Split(repoURL, ":")
			if len(parts) == 2 {
				hostAndUser := strings.Split(parts[0], "@")
				if len(hostAndUser) == 2 {
					host := hostAndUser[1]
					repoPath := strings.TrimSuffix(parts[1], ".git")
					return filepath.Join(baseDir, host, repoPath), nil
				}
			}
		}
		return "", fmt.Errorf("could not parse git URL: %s", repoURL)
	}

	sanitizedPath := strings.TrimSuffix(parsedURL.Path, ".git")
	if parsedURL.Scheme == "file" {
		return filepath.Join(baseDir, "local", tree.Name(sanitizedPath)), nil
	}
	return filepath.Join(baseDir, parsedURL.Host, sanitizedPath), nil
}
