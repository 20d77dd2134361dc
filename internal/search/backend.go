package search

import (
	"context"

	"github.com/starford/context-bank/internal/models"
	"github.com/starford/context-bank/internal/workspace"
)

// Backend names reported in responses.
const (
	BackendNative = "native"
	BackendRemote = "remote"
)

// Query is one resolved search request.
type Query struct {
	Repository    workspace.Repository
	Term          string
	CaseSensitive bool
}

// Result is what a backend returns for a Query.
type Result struct {
	Backend               string
	Results               []models.SearchResult
	TotalFilesWithMatches int
	TotalMatches          int
}

// Backend answers searches for the repositories it is available for.
type Backend interface {
	Name() string
	// Available reports whether the backend can serve repo.
	Available(repo workspace.Repository) bool
	Search(ctx context.Context, q Query) (*Result, error)
}

// Runner materializes a repository for the duration of fn.
// *workspace.Manager satisfies it.
type Runner interface {
	Do(ctx context.Context, repo workspace.Repository, fn func(*workspace.Workspace) error) error
}

// Native scans every markdown file of a freshly materialized workspace.
type Native struct {
	runner Runner
}

// NewNative creates the workspace-scanning backend.
func NewNative(runner Runner) *Native {
	return &Native{runner: runner}
}

// Name implements Backend.
func (*Native) Name() string { return BackendNative }

// Available implements Backend. Any fetchable repository can be scanned.
func (*Native) Available(workspace.Repository) bool { return true }

// Search implements Backend.
func (n *Native) Search(ctx context.Context, q Query) (*Result, error) {
	var results []models.SearchResult
	err := n.runner.Do(ctx, q.Repository, func(ws *workspace.Workspace) error {
		files, err := ws.Store.List("")
		if err != nil {
			return err
		}
		results, err = Scan(ws.Store, files, q.Term, q.CaseSensitive)
		return err
	})
	if err != nil {
		return nil, err
	}
	nFiles, nMatches := Totals(results)
	return &Result{
		Backend:               BackendNative,
		Results:               results,
		TotalFilesWithMatches: nFiles,
		TotalMatches:          nMatches,
	}, nil
}

// Selector picks the first available backend, in order.
type Selector struct {
	backends []Backend
}

// NewSelector creates a Selector. Put preferred backends first and a
// backend that is always available last.
func NewSelector(backends ...Backend) *Selector {
	return &Selector{backends: backends}
}

// Select returns the backend for repo, or nil if none is available.
func (s *Selector) Select(repo workspace.Repository) Backend {
	for _, b := range s.backends {
		if b != nil && b.Available(repo) {
			return b
		}
	}
	return nil
}
