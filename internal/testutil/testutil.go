// Package testutil provides shared test helpers for fixture repositories
// and workspaces.
package testutil

import (
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

var testAuthor = &object.Signature{
	Name:  "Test Author",
	Email: "test@example.com",
	When:  time.Date(2025, 1, 15, 12, 0, 0, 0, time.UTC),
}

// GitRepo creates a non-bare repository whose "main" branch holds files in a
// single commit. The directory is removed when the test ends.
func GitRepo(t *testing.T, files map[string]string) string {
	t.Helper()
	dir, _ := initRepo(t, files)
	return dir
}

// GitRepoWithBranches creates a repository with files on "main" and one extra
// branch per entry of branches, each forked from main and adding its files.
func GitRepoWithBranches(t *testing.T, files map[string]string, branches map[string]map[string]string) string {
	t.Helper()
	dir, repo := initRepo(t, files)

	wt, err := repo.Worktree()
	if err != nil {
		t.Fatalf("worktree: %v", err)
	}
	for name, branchFiles := range branches {
		if err := wt.Checkout(&git.CheckoutOptions{Branch: plumbing.Main}); err != nil {
			t.Fatalf("checkout main: %v", err)
		}
		if err := wt.Checkout(&git.CheckoutOptions{
			Branch: plumbing.NewBranchReferenceName(name),
			Create: true,
		}); err != nil {
			t.Fatalf("create branch %s: %v", name, err)
		}
		commitFiles(t, dir, wt, branchFiles, "Add "+name)
	}
	if err := wt.Checkout(&git.CheckoutOptions{Branch: plumbing.Main}); err != nil {
		t.Fatalf("checkout main: %v", err)
	}
	return dir
}

func initRepo(t *testing.T, files map[string]string) (string, *git.Repository) {
	t.Helper()
	dir := t.TempDir()
	repo, err := git.PlainInitWithOptions(dir, &git.PlainInitOptions{
		InitOptions: git.InitOptions{DefaultBranch: plumbing.Main},
	})
	if err != nil {
		t.Fatalf("init repository: %v", err)
	}
	wt, err := repo.Worktree()
	if err != nil {
		t.Fatalf("worktree: %v", err)
	}
	commitFiles(t, dir, wt, files, "Initial commit")
	return dir, repo
}

func commitFiles(t *testing.T, dir string, wt *git.Worktree, files map[string]string, msg string) {
	t.Helper()
	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		WriteFile(t, dir, name, files[name])
		if _, err := wt.Add(name); err != nil {
			t.Fatalf("add %s: %v", name, err)
		}
	}
	if _, err := wt.Commit(msg, &git.CommitOptions{Author: testAuthor, AllowEmptyCommits: true}); err != nil {
		t.Fatalf("commit: %v", err)
	}
}

// WriteFile writes content to root/rel, creating parent directories.
func WriteFile(t *testing.T, root, rel, content string) {
	t.Helper()
	p := filepath.Join(root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", filepath.Dir(p), err)
	}
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", rel, err)
	}
}

// Entries returns the names in dir, or nil if it does not exist.
func Entries(t *testing.T, dir string) []string {
	t.Helper()
	des, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		t.Fatalf("read dir %s: %v", dir, err)
	}
	names := make([]string, 0, len(des))
	for _, d := range des {
		names = append(names, d.Name())
	}
	return names
}
