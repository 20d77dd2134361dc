package search

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	ghAPI "github.com/cli/go-gh/v2/pkg/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/context-bank/internal/apperr"
	"github.com/starford/context-bank/internal/git"
	"github.com/starford/context-bank/internal/testutil"
	"github.com/starford/context-bank/internal/workspace"
)

func TestGitHub_ParseRepository(t *testing.T) {
	t.Parallel()

	g := NewGitHub("")
	tests := []struct {
		url   string
		owner string
		name  string
		ok    bool
	}{
		{"https://github.com/owner/repo.git", "owner", "repo", true},
		{"https://github.com/owner/repo", "owner", "repo", true},
		{"https://github.com/owner/repo/", "owner", "repo", true},
		{"git@github.com:owner/repo.git", "owner", "repo", true},
		{"https://gitlab.com/owner/repo.git", "", "", false},
		{"/tmp/local/repo", "", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			t.Parallel()
			owner, name, ok := g.ParseRepository(tt.url)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.owner, owner)
			assert.Equal(t, tt.name, name)
		})
	}
}

func TestSelector(t *testing.T) {
	t.Parallel()

	remote := NewGitHub("")
	native := NewNative(nil)
	sel := NewSelector(remote, native)

	tests := []struct {
		name string
		repo workspace.Repository
		want string
	}{
		{"github with credential", workspace.Repository{URL: "https://github.com/o/r.git", Credential: "t"}, BackendRemote},
		{"github without credential", workspace.Repository{URL: "https://github.com/o/r.git"}, BackendNative},
		{"other host with credential", workspace.Repository{URL: "https://gitlab.com/o/r.git", Credential: "t"}, BackendNative},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, sel.Select(tt.repo).Name())
		})
	}

	assert.Nil(t, NewSelector(remote).Select(workspace.Repository{URL: "/local"}))
}

type fakeREST struct {
	path string
	body string
	err  error
}

func (f *fakeREST) DoWithContext(_ context.Context, _ string, path string, _ io.Reader, response interface{}) error {
	f.path = path
	if f.err != nil {
		return f.err
	}
	return json.Unmarshal([]byte(f.body), response)
}

func TestGitHub_Search(t *testing.T) {
	t.Parallel()

	fake := &fakeREST{body: `{"total_count":2,"items":[
		{"path":"docs/a.md","html_url":"https://github.com/o/r/blob/main/docs/a.md"},
		{"path":"b.md","html_url":"https://github.com/o/r/blob/main/b.md"}]}`}
	var gotOpts ghAPI.ClientOptions
	g := NewGitHub("")
	g.newClient = func(opts ghAPI.ClientOptions) (restClient, error) {
		gotOpts = opts
		return fake, nil
	}

	res, err := g.Search(context.Background(), Query{
		Repository: workspace.Repository{URL: "https://github.com/o/r.git", Credential: "tok"},
		Term:       "needle thing",
	})
	require.NoError(t, err)

	assert.Equal(t, "tok", gotOpts.AuthToken)
	assert.Equal(t, "github.com", gotOpts.Host)
	u, err := url.Parse(fake.path)
	require.NoError(t, err)
	assert.Equal(t, "search/code", u.Path)
	assert.Equal(t, "needle thing repo:o/r extension:md", u.Query().Get("q"))

	assert.Equal(t, BackendRemote, res.Backend)
	require.Len(t, res.Results, 2)
	assert.Equal(t, "docs/a.md", res.Results[0].FilePath)
	assert.Equal(t, "https://github.com/o/r.git", res.Results[0].Repository)
	assert.Empty(t, res.Results[0].Matches)
	assert.Equal(t, 2, res.TotalFilesWithMatches)
	assert.Equal(t, 2, res.TotalMatches)
}

func TestGitHub_SearchHTTPError(t *testing.T) {
	t.Parallel()

	g := NewGitHub("")
	g.newClient = func(ghAPI.ClientOptions) (restClient, error) {
		return &fakeREST{err: &ghAPI.HTTPError{StatusCode: http.StatusForbidden, Message: "rate limited"}}, nil
	}
	_, err := g.Search(context.Background(), Query{
		Repository: workspace.Repository{URL: "https://github.com/o/r", Credential: "tok"},
		Term:       "x",
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperr.ErrRemoteSearch))
	assert.Equal(t, "GitHub API error: 403 rate limited", err.Error())
}

// rewriteTransport sends every request to a test server.
type rewriteTransport struct {
	target *url.URL
}

func (rt rewriteTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	r := req.Clone(req.Context())
	r.URL.Scheme = rt.target.Scheme
	r.URL.Host = rt.target.Host
	return http.DefaultTransport.RoundTrip(r)
}

func TestGitHub_SearchThroughRESTClient(t *testing.T) {
	t.Parallel()

	var gotAuth, gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"total_count":1,"items":[{"path":"x.md","html_url":"https://github.com/o/r/blob/main/x.md"}]}`))
	}))
	defer srv.Close()
	target, err := url.Parse(srv.URL)
	require.NoError(t, err)

	g := NewGitHub("", WithTransport(rewriteTransport{target: target}))
	res, err := g.Search(context.Background(), Query{
		Repository: workspace.Repository{URL: "git@github.com:o/r.git", Credential: "tok"},
		Term:       "x",
	})
	require.NoError(t, err)
	assert.Contains(t, gotAuth, "tok")
	assert.Equal(t, "/search/code", gotPath)
	require.Len(t, res.Results, 1)
	assert.Equal(t, "x.md", res.Results[0].FilePath)
}

func TestNative_Search(t *testing.T) {
	t.Parallel()

	src := testutil.GitRepo(t, map[string]string{
		"notes.md":        "# Title\nTODO: fix\ntodo later\ndone",
		"docs/guide.md":   "nothing here",
		".hidden/todo.md": "TODO hidden",
		"todo.txt":        "TODO not markdown",
	})
	tmp := t.TempDir()
	m := workspace.NewManager(git.NewDefaultClient(), workspace.NewRegistry(nil, nil), workspace.WithTempDir(tmp))

	res, err := NewNative(m).Search(context.Background(), Query{
		Repository: workspace.Repository{URL: src, Branch: "main"},
		Term:       "TODO",
	})
	require.NoError(t, err)
	assert.Equal(t, BackendNative, res.Backend)
	require.Len(t, res.Results, 1)
	assert.Equal(t, "notes.md", res.Results[0].FilePath)
	assert.Equal(t, 2, res.TotalMatches)
	assert.Equal(t, 1, res.TotalFilesWithMatches)

	assert.Empty(t, testutil.Entries(t, tmp), "workspace must be removed after search")
	assert.Zero(t, m.Registry().Len())
}
