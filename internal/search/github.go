package search

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	ghAPI "github.com/cli/go-gh/v2/pkg/api"

	"github.com/starford/context-bank/internal/apperr"
	"github.com/starford/context-bank/internal/models"
	"github.com/starford/context-bank/internal/workspace"
)

// DefaultGitHubHost is the host whose repositories the remote backend serves.
const DefaultGitHubHost = "github.com"

type restClient interface {
	DoWithContext(ctx context.Context, method, path string, body io.Reader, response interface{}) error
}

type codeSearchResponse struct {
	TotalCount int `json:"total_count"`
	Items      []struct {
		Path    string `json:"path"`
		HTMLURL string `json:"html_url"`
	} `json:"items"`
}

// GitHub searches through the GitHub code search API instead of cloning.
// It is only available for repositories hosted on its host and only when
// a credential is present. Its results carry file paths and links but no
// line numbers.
type GitHub struct {
	host      string
	repoRe    *regexp.Regexp
	transport http.RoundTripper
	newClient func(opts ghAPI.ClientOptions) (restClient, error)
}

// GitHubOption configures a GitHub backend.
type GitHubOption func(*GitHub)

// WithTransport sets the HTTP transport used for API calls.
func WithTransport(rt http.RoundTripper) GitHubOption {
	return func(g *GitHub) { g.transport = rt }
}

// NewGitHub creates the remote backend for host (DefaultGitHubHost if empty).
func NewGitHub(host string, opts ...GitHubOption) *GitHub {
	if host == "" {
		host = DefaultGitHubHost
	}
	g := &GitHub{
		host:   host,
		repoRe: regexp.MustCompile(regexp.QuoteMeta(host) + `[:/](.+?)/(.+?)(\.git)?$`),
		newClient: func(opts ghAPI.ClientOptions) (restClient, error) {
			return ghAPI.NewRESTClient(opts)
		},
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Name implements Backend.
func (*GitHub) Name() string { return BackendRemote }

// Available implements Backend.
func (g *GitHub) Available(repo workspace.Repository) bool {
	if repo.Credential == "" {
		return false
	}
	_, _, ok := g.ParseRepository(repo.URL)
	return ok
}

// ParseRepository extracts owner and name from an HTTPS or SSH URL on the
// backend's host.
func (g *GitHub) ParseRepository(rawURL string) (owner, name string, ok bool) {
	m := g.repoRe.FindStringSubmatch(strings.TrimSuffix(rawURL, "/"))
	if m == nil {
		return "", "", false
	}
	return m[1], m[2], true
}

// Search implements Backend.
func (g *GitHub) Search(ctx context.Context, q Query) (*Result, error) {
	owner, name, ok := g.ParseRepository(q.Repository.URL)
	if !ok {
		return nil, apperr.New(apperr.ErrRemoteSearch, "repository is not hosted on "+g.host)
	}

	client, err := g.newClient(ghAPI.ClientOptions{
		Host:      g.host,
		AuthToken: q.Repository.Credential,
		Headers:   map[string]string{"Accept": "application/vnd.github.v3+json"},
		Timeout:   30 * time.Second,
		Transport: g.transport,
	})
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrRemoteSearch, "GitHub API error", err)
	}

	query := url.Values{"q": {fmt.Sprintf("%s repo:%s/%s extension:md", q.Term, owner, name)}}
	var resp codeSearchResponse
	if err := client.DoWithContext(ctx, http.MethodGet, "search/code?"+query.Encode(), nil, &resp); err != nil {
		var httpErr *ghAPI.HTTPError
		if errors.As(err, &httpErr) {
			return nil, apperr.New(apperr.ErrRemoteSearch,
				fmt.Sprintf("GitHub API error: %d %s", httpErr.StatusCode, httpErr.Message))
		}
		return nil, apperr.Wrap(apperr.ErrRemoteSearch, "GitHub API error", err)
	}

	results := make([]models.SearchResult, 0, len(resp.Items))
	for _, item := range resp.Items {
		results = append(results, models.SearchResult{
			FilePath:   item.Path,
			Repository: q.Repository.URL,
			URL:        item.HTMLURL,
		})
	}
	return &Result{
		Backend:               BackendRemote,
		Results:               results,
		TotalFilesWithMatches: len(results),
		TotalMatches:          len(results),
	}, nil
}
