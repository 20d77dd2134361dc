// Package git materializes remote repositories with go-git.
//
// Only shallow, single-branch clones are supported: the caller never needs
// history, just the tip of one branch checked out on disk.
package git

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/transport"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"
)

// CloneConfig contains configuration for cloning a repository.
type CloneConfig struct {
	// URL is the repository URL to clone. Credentials, if any, are embedded
	// as userinfo (see InjectCredential).
	URL string

	// Branch is the branch to check out.
	Branch string

	// Directory is the destination, which must exist and be empty.
	Directory string
}

// Client defines the interface for Git operations.
type Client interface {
	// Clone performs a depth-1 single-branch clone into config.Directory.
	Clone(ctx context.Context, config *CloneConfig) error
}

type defaultClient struct{}

// NewDefaultClient creates a go-git backed Client.
func NewDefaultClient() Client {
	return &defaultClient{}
}

// Clone clones a repository with the given configuration.
func (*defaultClient) Clone(ctx context.Context, config *CloneConfig) error {
	if config == nil || config.URL == "" {
		return fmt.Errorf("repository URL is required")
	}
	if config.Directory == "" {
		return fmt.Errorf("clone directory is required")
	}

	cloneURL, auth := splitAuth(config.URL)
	opts := &git.CloneOptions{
		URL:          cloneURL,
		Auth:         auth,
		Depth:        1,
		SingleBranch: true,
		Tags:         git.NoTags,
	}
	if config.Branch != "" {
		opts.ReferenceName = plumbing.NewBranchReferenceName(config.Branch)
	}
	if auth != nil {
		slog.Debug("Using Git HTTP Basic authentication")
	}

	if _, err := git.PlainCloneContext(ctx, config.Directory, false, opts); err != nil {
		return fmt.Errorf("clone %s (branch %s): %w", Redact(config.URL), config.Branch, err)
	}
	return nil
}

// InjectCredential embeds credential into an HTTPS URL as userinfo
// (https://<credential>@host/path). Other schemes, including SSH-style
// git@host:owner/repo URLs, are returned unchanged.
func InjectCredential(rawURL, credential string) string {
	if credential == "" || !strings.HasPrefix(rawURL, "https://") {
		return rawURL
	}
	return "https://" + credential + "@" + strings.TrimPrefix(rawURL, "https://")
}

// Redact strips any userinfo from an HTTP(S) URL so it can be logged.
func Redact(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.User == nil || (u.Scheme != "https" && u.Scheme != "http") {
		return rawURL
	}
	u.User = nil
	return u.String()
}

// splitAuth moves HTTP(S) userinfo out of the URL and into BasicAuth so the
// credential travels in the Authorization header rather than the request line.
// A lone token becomes the username, which is how GitHub and most forges
// accept personal access tokens.
func splitAuth(rawURL string) (string, transport.AuthMethod) {
	u, err := url.Parse(rawURL)
	if err != nil || u.User == nil || (u.Scheme != "https" && u.Scheme != "http") {
		return rawURL, nil
	}
	password, _ := u.User.Password()
	auth := &githttp.BasicAuth{Username: u.User.Username(), Password: password}
	u.User = nil
	return u.String(), auth
}
