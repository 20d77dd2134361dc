// Package contextbank runs the three read-only operations against a
// disposable snapshot of a remote repository.
package contextbank

import (
	"context"
	"errors"
	"log/slog"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/context-bank/internal/apperr"
	"github.com/starford/context-bank/internal/git"
	"github.com/starford/context-bank/internal/models"
	"github.com/starford/context-bank/internal/search"
	"github.com/starford/context-bank/internal/workspace"
)

// DefaultBranch is used when neither the request nor the defaults name one.
const DefaultBranch = "main"

// Operation names, as reported to an Observer and in logs.
const (
	OpListFiles  = "get_markdown_files"
	OpGetContent = "get_file_content"
	OpSearch     = "search_markdown_content"
)

// NoRepositoryMessage is the text of the error returned when no repository
// URL can be resolved.
const NoRepositoryMessage = "No repository URL provided and no default repository configured. " +
	"Set MCP_CONTEXT_BANK_REPOSITORY environment variable or provide repository_url parameter."

// Defaults fill request fields left empty.
type Defaults struct {
	RepositoryURL string
	Credential    string
	Branch        string
}

// Completion describes one finished operation.
type Completion struct {
	Operation  string
	Repository string
	Branch     string
	Elapsed    time.Duration
	Err        error
}

// Observer is called once per operation, after its workspace is released.
type Observer func(Completion)

// ListRequest selects the markdown files to list.
type ListRequest struct {
	RepositoryURL string `json:"repository_url"`
	Branch        string `json:"branch"`
	PathFilter    string `json:"path_filter"`
	AccessToken   string `json:"access_token"`
}

// ContentRequest names one file to read.
type ContentRequest struct {
	RepositoryURL string `json:"repository_url"`
	Branch        string `json:"branch"`
	FilePath      string `json:"file_path"`
	AccessToken   string `json:"access_token"`
}

// Validate implements validation.Validatable.
func (r ContentRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.FilePath, validation.Required),
	)
}

// SearchRequest describes a literal line search.
type SearchRequest struct {
	RepositoryURL string `json:"repository_url"`
	Branch        string `json:"branch"`
	SearchTerm    string `json:"search_term"`
	CaseSensitive bool   `json:"case_sensitive"`
	AccessToken   string `json:"access_token"`
}

// Validate implements validation.Validatable.
func (r SearchRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.SearchTerm, validation.Required),
	)
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithObserver sets the completion observer.
func WithObserver(o Observer) Option {
	return func(s *Service) { s.observer = o }
}

// WithSelector sets the search backend selector. Without one, every search
// scans a workspace.
func WithSelector(sel *search.Selector) Option {
	return func(s *Service) { s.selector = sel }
}

// Service coordinates workspaces, discovery and search.
type Service struct {
	runner   search.Runner
	native   *search.Native
	selector *search.Selector
	defaults Defaults
	logger   *slog.Logger
	observer Observer
}

// NewService creates a Service that materializes repositories through runner.
func NewService(runner search.Runner, defaults Defaults, opts ...Option) *Service {
	if defaults.Branch == "" {
		defaults.Branch = DefaultBranch
	}
	s := &Service{
		runner:   runner,
		native:   search.NewNative(runner),
		defaults: defaults,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Defaults returns the effective defaults.
func (s *Service) Defaults() Defaults { return s.defaults }

// ListMarkdownFiles returns every markdown file of the branch that satisfies
// the path filter, sorted.
func (s *Service) ListMarkdownFiles(ctx context.Context, req ListRequest) (_ *models.FileList, err error) {
	repo, err := s.resolve(req.RepositoryURL, req.Branch, req.AccessToken)
	if err != nil {
		return nil, err
	}
	defer s.complete(OpListFiles, repo, time.Now(), &err)

	var files []string
	err = s.runner.Do(ctx, repo, func(ws *workspace.Workspace) error {
		var lerr error
		files, lerr = ws.Store.List(req.PathFilter)
		return lerr
	})
	if err != nil {
		return nil, err
	}
	if files == nil {
		files = []string{}
	}
	return &models.FileList{
		Repository: repo.URL,
		Branch:     repo.Branch,
		Files:      files,
		TotalFiles: len(files),
	}, nil
}

// GetFileContent returns the full text of one file.
func (s *Service) GetFileContent(ctx context.Context, req ContentRequest) (_ *models.FileContent, err error) {
	if err := validate(req); err != nil {
		return nil, err
	}
	repo, err := s.resolve(req.RepositoryURL, req.Branch, req.AccessToken)
	if err != nil {
		return nil, err
	}
	defer s.complete(OpGetContent, repo, time.Now(), &err)

	var data []byte
	err = s.runner.Do(ctx, repo, func(ws *workspace.Workspace) error {
		var rerr error
		data, rerr = ws.Store.Read(req.FilePath)
		return rerr
	})
	if err != nil {
		return nil, err
	}
	return &models.FileContent{
		Repository: repo.URL,
		Branch:     repo.Branch,
		FilePath:   req.FilePath,
		Content:    string(data),
		Size:       len(data),
	}, nil
}

// SearchMarkdownContent finds lines containing the literal search term.
// The backend is chosen per repository; see search.Selector.
func (s *Service) SearchMarkdownContent(ctx context.Context, req SearchRequest) (_ *models.SearchResponse, err error) {
	if err := validate(req); err != nil {
		return nil, err
	}
	repo, err := s.resolve(req.RepositoryURL, req.Branch, req.AccessToken)
	if err != nil {
		return nil, err
	}
	defer s.complete(OpSearch, repo, time.Now(), &err)

	backend := s.backend(repo)
	res, err := backend.Search(ctx, search.Query{
		Repository:    repo,
		Term:          req.SearchTerm,
		CaseSensitive: req.CaseSensitive,
	})
	if err != nil {
		return nil, err
	}
	results := res.Results
	if results == nil {
		results = []models.SearchResult{}
	}
	return &models.SearchResponse{
		Repository:            repo.URL,
		Branch:                repo.Branch,
		SearchTerm:            req.SearchTerm,
		CaseSensitive:         req.CaseSensitive,
		Backend:               res.Backend,
		Results:               results,
		TotalFilesWithMatches: res.TotalFilesWithMatches,
		TotalMatches:          res.TotalMatches,
	}, nil
}

func (s *Service) backend(repo workspace.Repository) search.Backend {
	if s.selector != nil {
		if b := s.selector.Select(repo); b != nil {
			return b
		}
	}
	return s.native
}

// resolve fills the repository reference from the request and the defaults.
// It never performs I/O.
func (s *Service) resolve(rawURL, branch, token string) (workspace.Repository, error) {
	if rawURL == "" {
		rawURL = s.defaults.RepositoryURL
	}
	if rawURL == "" {
		return workspace.Repository{}, apperr.New(apperr.ErrConfiguration, NoRepositoryMessage)
	}
	if branch == "" {
		branch = s.defaults.Branch
	}
	if token == "" {
		token = s.defaults.Credential
	}
	return workspace.Repository{URL: rawURL, Branch: branch, Credential: token}, nil
}

func (s *Service) complete(op string, repo workspace.Repository, start time.Time, errp *error) {
	c := Completion{
		Operation:  op,
		Repository: git.Redact(repo.URL),
		Branch:     repo.Branch,
		Elapsed:    time.Since(start),
		Err:        *errp,
	}
	if c.Err != nil {
		s.logger.Info("operation failed",
			slog.String("operation", op),
			slog.String("repository", c.Repository),
			slog.String("error", c.Err.Error()))
	} else {
		s.logger.Debug("operation completed",
			slog.String("operation", op),
			slog.String("repository", c.Repository),
			slog.Duration("elapsed", c.Elapsed))
	}
	if s.observer != nil {
		s.observer(c)
	}
}

func validate(v validation.Validatable) error {
	if err := v.Validate(); err != nil {
		var verrs validation.Errors
		if errors.As(err, &verrs) {
			return apperr.New(apperr.ErrValidation, verrs.Error())
		}
		return apperr.Wrap(apperr.ErrValidation, "invalid request", err)
	}
	return nil
}
