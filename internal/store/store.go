// Package store holds the signed-in user's records and profile in memory and
// mirrors every change to a remote backend.
//
// Mutations are applied locally first and then replicated. Replication goes
// through a per-record outbox, so a failed remote call stays queued and is
// retried by Flush instead of leaving the backend silently behind.
package store

//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_remote.go -package=mocks github.com/conorfennell/neurapath/internal/store Remote

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/microcosm-cc/bluemonday"

	"github.com/conorfennell/neurapath/internal/domain"
	"github.com/conorfennell/neurapath/internal/outbox"
	"github.com/conorfennell/neurapath/internal/session"
	"github.com/conorfennell/neurapath/internal/tree"
)

// DefaultStaleAfter is how long a sync stays fresh.
const DefaultStaleAfter = 5 * time.Minute

// Remote is the backend the store replicates to.
type Remote interface {
	FetchDatabase(ctx context.Context, userID string) ([]byte, error)
	SaveDatabase(ctx context.Context, cred session.Credentials, p domain.Payload) error
	CreateRecord(ctx context.Context, cred session.Credentials, rec domain.Record) error
	UpdateRecord(ctx context.Context, cred session.Credentials, rec domain.Record) error
	DeleteRecord(ctx context.Context, cred session.Credentials, id string) error
}

// State is the load state of the store.
type State int

const (
	Unloaded State = iota
	Loading
	Loaded
)

func (s State) String() string {
	switch s {
	case Unloaded:
		return "unloaded"
	case Loading:
		return "loading"
	case Loaded:
		return "loaded"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Option configures a Store.
type Option func(*Store)

// WithRemote sets the backend to replicate to. Without one the store is
// purely local.
func WithRemote(r Remote) Option {
	return func(s *Store) { s.remote = r }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithLogger sets the logger used for replication failures.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

// WithStaleAfter sets the staleness window used by NeedsSync.
func WithStaleAfter(d time.Duration) Option {
	return func(s *Store) { s.staleAfter = d }
}

// WithContentPolicy sanitises string content on every add and update.
func WithContentPolicy(p *bluemonday.Policy) Option {
	return func(s *Store) { s.policy = p }
}

// Store is the in-memory database of one user. It is safe for concurrent use;
// remote calls are made without holding the lock.
type Store struct {
	mu       sync.RWMutex
	records  map[string]domain.Record
	index    *tree.Index
	profile  *domain.Profile
	state    State
	lastSync time.Time
	loadErr  error

	remote     Remote
	outbox     *outbox.Outbox
	now        func() time.Time
	logger     *slog.Logger
	staleAfter time.Duration
	policy     *bluemonday.Policy
}

// New creates an empty, unloaded store.
func New(opts ...Option) *Store {
	s := &Store{
		records:    make(map[string]domain.Record),
		index:      tree.NewIndex(),
		now:        time.Now,
		logger:     slog.Default(),
		staleAfter: DefaultStaleAfter,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.outbox = outbox.New(s.now)
	return s
}

// State returns the current load state.
func (s *Store) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// LastSync returns the time of the last load or save, or the zero time.
func (s *Store) LastSync() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastSync
}

// NeedsSync reports whether the store has never synced or its last sync is
// older than the staleness window.
func (s *Store) NeedsSync() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastSync.IsZero() || s.now().Sub(s.lastSync) > s.staleAfter
}

// GetRecordByID returns a copy of the record with the given ID.
func (s *Store) GetRecordByID(id string) (domain.Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.records[id]
	if !ok {
		return domain.Record{}, false
	}
	return r.Clone(), true
}

// Records returns a snapshot of every record, sorted by ID.
func (s *Store) Records() []domain.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

// Children returns the records directly below id. Pass "" for root items.
func (s *Store) Children(id string) []domain.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.index.Children(id)
	out := make([]domain.Record, 0, len(ids))
	for _, child := range ids {
		out = append(out, s.records[child].Clone())
	}
	return out
}

// Subtree returns id and all of its descendants, sorted by ID.
func (s *Store) Subtree(id string) []domain.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.index.Subtree(id)
	out := make([]domain.Record, 0, len(ids))
	for _, member := range ids {
		out = append(out, s.records[member].Clone())
	}
	return out
}

// Profile returns a copy of the profile with its derived counters refreshed.
func (s *Store) Profile() domain.Profile {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p := domain.DefaultProfile()
	if s.profile != nil {
		p = s.profile.Clone()
	}
	p.Recount(s.snapshotLocked(), s.now())
	return p
}

// UpdateProfile applies fn to the stored profile. The profile travels with
// the next database save.
func (s *Store) UpdateProfile(fn func(p *domain.Profile)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureProfileLocked()
	fn(s.profile)
}

// Pending returns the number of replication operations still queued.
func (s *Store) Pending() int {
	return s.outbox.Len()
}

// Flush retries every queued replication operation.
func (s *Store) Flush(ctx context.Context) error {
	if !s.replicating(ctx) {
		return nil
	}
	if err := s.outbox.Flush(ctx, s.send); err != nil {
		return fmt.Errorf("%w: %w", ErrRemote, err)
	}
	return nil
}

// Replace swaps in db wholesale. Nothing is replicated; callers save
// afterwards.
func (s *Store) Replace(db domain.Database) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setLocked(db)
	s.state = Loaded
	s.loadErr = nil
}

// Reset discards all local state and returns the store to Unloaded.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setLocked(domain.Database{})
	s.profile = nil
	s.state = Unloaded
	s.lastSync = time.Time{}
	s.loadErr = nil
	s.outbox.Clear()
}

// Database returns a copy of the full working set.
func (s *Store) Database() domain.Database {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.databaseLocked()
}

// LoadDatabase fetches userID's database from the remote and replaces local
// state with it. It never fails: a fetch or decode error is logged, leaves the
// store empty and is kept for LoadErr. A brand-new account, one whose fetch
// succeeded with no records, gets an empty database saved right away when a
// session is active.
func (s *Store) LoadDatabase(ctx context.Context, userID string) {
	s.mu.Lock()
	s.state = Loading
	s.mu.Unlock()

	db, fetchErr := s.fetch(ctx, userID)
	if db.Profile == nil {
		p := domain.DefaultProfile()
		db.Profile = &p
	}

	s.mu.Lock()
	s.setLocked(db)
	s.state = Loaded
	s.lastSync = s.now()
	s.loadErr = fetchErr
	s.outbox.Clear()
	empty := len(s.records) == 0
	s.mu.Unlock()

	if fetchErr != nil {
		return
	}
	s.logger.Info("Database loaded", "user", userID, "records", len(db.Items))

	if empty && s.replicating(ctx) {
		if err := s.SaveDatabase(ctx, userID); err != nil {
			s.logger.Warn("Failed to initialise empty database", "user", userID, "error", err)
		}
	}
}

// LoadErr returns the error that made the last LoadDatabase fall back to an
// empty database, or nil.
func (s *Store) LoadErr() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loadErr
}

func (s *Store) fetch(ctx context.Context, userID string) (domain.Database, error) {
	if s.remote == nil {
		return domain.Database{}, nil
	}
	raw, err := s.remote.FetchDatabase(ctx, userID)
	if err != nil {
		s.logger.Error("Failed to fetch database, starting empty", "user", userID, "error", err)
		return domain.Database{}, fmt.Errorf("failed to fetch database: %w", err)
	}
	db, err := domain.Normalize(raw)
	if err != nil {
		s.logger.Error("Failed to decode database, starting empty", "user", userID, "error", err)
		return domain.Database{}, fmt.Errorf("failed to decode database: %w", err)
	}
	return db, nil
}

// SaveDatabase writes the whole local database to the remote as one blob and
// records the sync time. A successful save supersedes any queued record
// operations.
func (s *Store) SaveDatabase(ctx context.Context, userID string) error {
	s.mu.RLock()
	payload := s.databaseLocked().Payload()
	s.mu.RUnlock()

	if s.remote != nil {
		if err := s.remote.SaveDatabase(ctx, credentialsFor(ctx, userID), payload); err != nil {
			s.logger.Error("Failed to save database", "user", userID, "error", err)
			return fmt.Errorf("%w: failed to save database: %w", ErrRemote, err)
		}
		s.outbox.Clear()
	}

	s.mu.Lock()
	s.lastSync = s.now()
	s.mu.Unlock()
	return nil
}

// SyncDatabase is SaveDatabase.
func (s *Store) SyncDatabase(ctx context.Context, userID string) error {
	return s.SaveDatabase(ctx, userID)
}

func credentialsFor(ctx context.Context, userID string) session.Credentials {
	if cred, ok := session.FromContext(ctx); ok && cred.UserID == userID {
		return cred
	}
	return session.Credentials{UserID: userID}
}

// replicating reports whether changes made under ctx go to the remote.
func (s *Store) replicating(ctx context.Context) bool {
	if s.remote == nil {
		return false
	}
	_, ok := session.FromContext(ctx)
	return ok
}

// replicate pushes the queued operations for ids.
func (s *Store) replicate(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := s.outbox.FlushIDs(ctx, s.send, ids...); err != nil {
		s.logger.Warn("Replication failed, will retry", "records", ids, "pending", s.outbox.Len(), "error", err)
		return fmt.Errorf("%w: %w", ErrRemote, err)
	}
	return nil
}

func (s *Store) send(ctx context.Context, op outbox.Op) error {
	cred, ok := session.FromContext(ctx)
	if !ok {
		return ErrNoSession
	}
	switch op.Kind {
	case outbox.Create:
		return s.remote.CreateRecord(ctx, cred, op.Record)
	case outbox.Update:
		return s.remote.UpdateRecord(ctx, cred, op.Record)
	case outbox.Delete:
		return s.remote.DeleteRecord(ctx, cred, op.RecordID)
	}
	return fmt.Errorf("unknown operation %v", op.Kind)
}

func (s *Store) setLocked(db domain.Database) {
	s.records = make(map[string]domain.Record, len(db.Items))
	s.index = tree.NewIndex()
	for _, r := range db.Items {
		if !tree.ValidID(r.ID) {
			s.logger.Warn("Skipping record with an invalid ID", "id", r.ID)
			continue
		}
		if _, dup := s.records[r.ID]; dup {
			s.logger.Warn("Duplicate record ID in database, keeping the last one", "id", r.ID)
		}
		s.records[r.ID] = r.Clone()
		s.index.Add(r.ID)
	}
	if db.Profile != nil {
		p := db.Profile.Clone()
		s.profile = &p
	}
}

func (s *Store) databaseLocked() domain.Database {
	db := domain.Database{Items: s.snapshotLocked()}
	if s.profile != nil {
		p := s.profile.Clone()
		db.Profile = &p
	}
	return db
}

func (s *Store) snapshotLocked() []domain.Record {
	out := make([]domain.Record, 0, len(s.records))
	for _, r := range s.records {
		out = append(out, r.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *Store) ensureProfileLocked() {
	if s.profile == nil {
		p := domain.DefaultProfile()
		s.profile = &p
	}
}

func (s *Store) putLocked(r domain.Record) {
	s.records[r.ID] = r
	s.index.Add(r.ID)
}

func (s *Store) deleteLocked(id string) {
	delete(s.records, id)
	s.index.Remove(id)
}
