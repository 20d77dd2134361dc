// Package workspace materializes repositories into disposable local
// directories and guarantees their removal.
package workspace

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/starford/context-bank/internal/apperr"
	"github.com/starford/context-bank/internal/git"
	"github.com/starford/context-bank/internal/storage"
)

// Lifecycle event kinds passed to an Observer.
const (
	EventAcquired = "workspace.acquired"
	EventReleased = "workspace.released"
)

// DefaultPrefix names workspace directories.
const DefaultPrefix = "context-bank"

// Observer is notified after a workspace is acquired or released.
type Observer func(kind, path string)

// Repository identifies one branch of one remote repository.
type Repository struct {
	URL        string
	Branch     string
	Credential string
}

// Workspace is a materialized snapshot owned by a single request.
// Release must be called exactly once the caller is done; extra calls are no-ops.
type Workspace struct {
	Path       string
	Repository Repository
	Store      *storage.FS

	manager *Manager
	once    sync.Once
}

// Release removes the workspace directory. See Manager.Release.
func (w *Workspace) Release() {
	if w == nil || w.manager == nil {
		return
	}
	w.once.Do(func() { w.manager.release(w.Path) })
}

// Option configures a Manager.
type Option func(*Manager)

// WithTempDir sets the parent directory for workspaces.
func WithTempDir(dir string) Option {
	return func(m *Manager) { m.tempDir = dir }
}

// WithPrefix sets the workspace directory name prefix.
func WithPrefix(prefix string) Option {
	return func(m *Manager) { m.prefix = prefix }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// WithObserver sets a lifecycle observer.
func WithObserver(o Observer) Option {
	return func(m *Manager) { m.observer = o }
}

// Manager creates workspaces, fetches repositories into them, and removes them.
type Manager struct {
	client   git.Client
	registry *Registry
	tempDir  string
	prefix   string
	logger   *slog.Logger
	observer Observer
	now      func() time.Time
}

// NewManager creates a Manager that clones with client and tracks
// directories in registry.
func NewManager(client git.Client, registry *Registry, opts ...Option) *Manager {
	m := &Manager{
		client:   client,
		registry: registry,
		tempDir:  os.TempDir(),
		prefix:   DefaultPrefix,
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Registry returns the registry tracking this manager's workspaces.
func (m *Manager) Registry() *Registry { return m.registry }

// Acquire creates a workspace and performs a shallow clone of repo into it.
// Any failure after the directory was created removes it again, so a
// failed Acquire never leaves anything registered or on disk.
func (m *Manager) Acquire(ctx context.Context, repo Repository) (*Workspace, error) {
	dir, err := m.create()
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrRepositoryFetch, "failed to create workspace", err)
	}
	m.registry.Add(dir)

	start := m.now()
	err = m.client.Clone(ctx, &git.CloneConfig{
		URL:       git.InjectCredential(repo.URL, repo.Credential),
		Branch:    repo.Branch,
		Directory: dir,
	})
	if err != nil {
		m.release(dir)
		return nil, apperr.Wrap(apperr.ErrRepositoryFetch, "failed to clone repository", err)
	}

	store, err := storage.NewFS(dir)
	if err != nil {
		m.release(dir)
		return nil, apperr.Wrap(apperr.ErrRepositoryFetch, "failed to open workspace", err)
	}

	m.logger.Debug("workspace acquired",
		slog.String("path", dir),
		slog.String("repository", git.Redact(repo.URL)),
		slog.String("branch", repo.Branch),
		slog.Duration("elapsed", m.now().Sub(start)))
	m.notify(EventAcquired, dir)

	return &Workspace{Path: dir, Repository: repo, Store: store, manager: m}, nil
}

// Release removes w's directory and unregisters it. Removal failures are
// logged, never returned; the path then stays registered so the shutdown
// drain retries it.
func (m *Manager) Release(w *Workspace) {
	w.Release()
}

func (m *Manager) release(dir string) {
	if err := os.RemoveAll(dir); err != nil {
		m.logger.Warn("workspace cleanup failed", slog.String("path", dir), slog.String("error", err.Error()))
		return
	}
	m.registry.Remove(dir)
	m.logger.Debug("workspace released", slog.String("path", dir))
	m.notify(EventReleased, dir)
}

// create makes a uniquely named empty directory: prefix, creation time in
// milliseconds, random suffix.
func (m *Manager) create() (string, error) {
	if err := os.MkdirAll(m.tempDir, 0o755); err != nil {
		return "", fmt.Errorf("workspace: create temp root: %w", err)
	}
	var lastErr error
	for range 3 {
		name := fmt.Sprintf("%s-%d-%s", m.prefix, m.now().UnixMilli(), uuid.NewString()[:8])
		dir := filepath.Join(m.tempDir, name)
		err := os.Mkdir(dir, 0o700)
		if err == nil {
			return dir, nil
		}
		if !os.IsExist(err) {
			return "", fmt.Errorf("workspace: mkdir: %w", err)
		}
		lastErr = err
	}
	return "", fmt.Errorf("workspace: mkdir: %w", lastErr)
}

func (m *Manager) notify(kind, path string) {
	if m.observer != nil {
		m.observer(kind, path)
	}
}

// Do acquires a workspace for repo, runs fn against it, and releases it on
// every exit path, including a panic in fn.
func (m *Manager) Do(ctx context.Context, repo Repository, fn func(*Workspace) error) error {
	ws, err := m.Acquire(ctx, repo)
	if err != nil {
		return err
	}
	defer ws.Release()
	return fn(ws)
}
