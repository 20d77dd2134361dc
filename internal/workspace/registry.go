package workspace

import (
	"log/slog"
	"os"
	"slices"
	"sync"
	"time"

	"github.com/starford/context-bank/internal/journal"
)

// Journal persists registry membership across process lifetimes.
// *journal.DB satisfies it.
type Journal interface {
	Record(path string, createdAt time.Time) error
	Forget(path string) error
	Orphaned() ([]journal.Entry, error)
}

var _ Journal = (*journal.DB)(nil)

// Registry tracks every workspace directory that has been created but not
// yet removed. It is safe for concurrent use.
type Registry struct {
	mu      sync.Mutex
	paths   map[string]struct{}
	journal Journal
	logger  *slog.Logger
	remove  func(string) error
}

// NewRegistry creates an empty registry. j may be nil.
func NewRegistry(logger *slog.Logger, j Journal) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		paths:   make(map[string]struct{}),
		journal: j,
		logger:  logger,
		remove:  os.RemoveAll,
	}
}

// Add registers path as live.
func (r *Registry) Add(path string) {
	r.mu.Lock()
	r.paths[path] = struct{}{}
	r.mu.Unlock()

	if r.journal != nil {
		if err := r.journal.Record(path, time.Now()); err != nil {
			r.logger.Warn("registry: journal record failed", slog.String("path", path), slog.String("error", err.Error()))
		}
	}
}

// Remove unregisters path. It does not touch the file system.
func (r *Registry) Remove(path string) {
	r.mu.Lock()
	delete(r.paths, path)
	r.mu.Unlock()

	if r.journal != nil {
		if err := r.journal.Forget(path); err != nil {
			r.logger.Warn("registry: journal forget failed", slog.String("path", path), slog.String("error", err.Error()))
		}
	}
}

// Contains reports whether path is registered.
func (r *Registry) Contains(path string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.paths[path]
	return ok
}

// Len returns the number of registered paths.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.paths)
}

// Paths returns the registered paths, sorted.
func (r *Registry) Paths() []string {
	r.mu.Lock()
	out := make([]string, 0, len(r.paths))
	for p := range r.paths {
		out = append(out, p)
	}
	r.mu.Unlock()
	slices.Sort(out)
	return out
}

// Drain removes every registered directory and empties the registry.
// A path whose removal fails is logged and stays journaled so that the
// next start can retry it. It returns the number of paths drained.
func (r *Registry) Drain() int {
	r.mu.Lock()
	paths := r.paths
	r.paths = make(map[string]struct{})
	r.mu.Unlock()

	for p := range paths {
		if err := r.remove(p); err != nil {
			r.logger.Warn("registry: cleanup failed", slog.String("path", p), slog.String("error", err.Error()))
			continue
		}
		if r.journal != nil {
			if err := r.journal.Forget(p); err != nil {
				r.logger.Warn("registry: journal forget failed", slog.String("path", p), slog.String("error", err.Error()))
			}
		}
	}
	return len(paths)
}

// Recover removes workspaces journaled by processes that exited without
// draining. Workspaces owned by a process that is still running are left
// alone, so several servers may share one journal.
func (r *Registry) Recover() (int, error) {
	if r.journal == nil {
		return 0, nil
	}
	pending, err := r.journal.Orphaned()
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, e := range pending {
		if r.Contains(e.Path) {
			continue
		}
		if err := r.remove(e.Path); err != nil {
			r.logger.Warn("registry: stale cleanup failed", slog.String("path", e.Path), slog.String("error", err.Error()))
			continue
		}
		if err := r.journal.Forget(e.Path); err != nil {
			r.logger.Warn("registry: journal forget failed", slog.String("path", e.Path), slog.String("error", err.Error()))
			continue
		}
		r.logger.Info("registry: removed stale workspace",
			slog.String("path", e.Path),
			slog.String("owner_host", e.Owner.Host),
			slog.Int("owner_pid", e.Owner.PID),
			slog.Time("created_at", e.CreatedAt))
		removed++
	}
	return removed, nil
}
