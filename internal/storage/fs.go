package storage

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"syscall"

	"github.com/starford/context-bank/internal/apperr"
	"github.com/starford/context-bank/internal/filter"
)

// MarkdownExt is the extension, compared case-insensitively, of discovered files.
const MarkdownExt = ".md"

const hiddenPrefix = "."

// TraversalMessage is the text of every rejected path.
const TraversalMessage = "Invalid file path: Path traversal detected"

// FS implements Provider backed by the local file system.
type FS struct {
	root string // canonical absolute path to the workspace
}

// NewFS creates a new FS provider rooted at the given directory.
// The directory must already exist.
func NewFS(root string) (*FS, error) {
	abs, err := canonical(root)
	if err != nil {
		return nil, fmt.Errorf("storage: resolve root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("storage: stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("storage: root is not a directory: %s", abs)
	}
	return &FS{root: abs}, nil
}

// Root returns the canonical workspace path.
func (f *FS) Root() string { return f.root }

// Resolve joins rel onto root and returns the canonical absolute path.
// It fails with apperr.ErrPathTraversal when rel is absolute, contains a ".."
// segment, or resolves (through symlinks) to a location outside root.
func Resolve(root, rel string) (string, error) {
	canonRoot, err := canonical(root)
	if err != nil {
		return "", fmt.Errorf("storage: resolve root: %w", err)
	}
	return resolveUnder(canonRoot, rel)
}

func resolveUnder(canonRoot, rel string) (string, error) {
	if filepath.IsAbs(rel) || strings.HasPrefix(rel, "/") || hasDotDot(rel) {
		return "", apperr.New(apperr.ErrPathTraversal, TraversalMessage)
	}
	abs, err := canonical(filepath.Join(canonRoot, filepath.FromSlash(rel)))
	if err != nil {
		// A symlink cycle has no target that can be shown to stay under root.
		if errors.Is(err, syscall.ELOOP) || strings.Contains(err.Error(), "too many links") {
			return "", apperr.New(apperr.ErrPathTraversal, TraversalMessage)
		}
		return "", fmt.Errorf("storage: resolve path %s: %w", rel, bare(err))
	}
	if abs != canonRoot && !strings.HasPrefix(abs, canonRoot+string(os.PathSeparator)) {
		return "", apperr.New(apperr.ErrPathTraversal, TraversalMessage)
	}
	return abs, nil
}

// canonical returns the absolute, symlink-free form of p. When p does not
// exist, its deepest existing ancestor is canonicalized and the missing tail
// is appended unchanged.
func canonical(p string) (string, error) {
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", err
	}
	var tail []string
	cur := abs
	for {
		resolved, err := filepath.EvalSymlinks(cur)
		if err == nil {
			return filepath.Join(append([]string{resolved}, tail...)...), nil
		}
		if !missing(err) {
			return "", err
		}
		parent := filepath.Dir(cur)
		if parent == cur {
			return abs, nil
		}
		tail = append([]string{filepath.Base(cur)}, tail...)
		cur = parent
	}
}

// missing reports errors meaning "nothing at this path", including a path
// that runs through a regular file.
func missing(err error) bool {
	return errors.Is(err, fs.ErrNotExist) || errors.Is(err, syscall.ENOTDIR)
}

func hasDotDot(rel string) bool {
	for _, seg := range strings.FieldsFunc(rel, func(r rune) bool { return r == '/' || r == '\\' }) {
		if seg == ".." {
			return true
		}
	}
	return false
}

// IsMarkdown reports whether name carries the markdown extension.
func IsMarkdown(name string) bool {
	return strings.HasSuffix(strings.ToLower(name), MarkdownExt)
}

// IsHidden reports whether a file or directory name is hidden.
func IsHidden(name string) bool {
	return strings.HasPrefix(name, hiddenPrefix)
}

// List walks the workspace and returns every markdown file satisfying the
// filter expression. Hidden entries and their subtrees are skipped.
func (f *FS) List(expr string) ([]string, error) {
	m := filter.Compile(expr)
	var out []string
	err := filepath.WalkDir(f.root, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if p == f.root {
			return nil
		}
		if IsHidden(d.Name()) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() || !IsMarkdown(d.Name()) {
			return nil
		}
		rel, err := filepath.Rel(f.root, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if m.Match(rel) {
			out = append(out, rel)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("storage: list: %w", err)
	}
	slices.Sort(out)
	return out, nil
}

// Read returns the raw bytes of a workspace file.
func (f *FS) Read(path string) ([]byte, error) {
	abs, err := resolveUnder(f.root, path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		switch {
		case missing(err):
			return nil, apperr.New(apperr.ErrFileNotFound, "File not found: "+path)
		case errors.Is(err, syscall.EISDIR):
			return nil, apperr.New(apperr.ErrFileNotFound, "Not a file: "+path)
		}
		return nil, fmt.Errorf("storage: read %s: %w", path, bare(err))
	}
	return data, nil
}

// bare strips the absolute workspace path that *fs.PathError carries.
func bare(err error) error {
	var pe *fs.PathError
	if errors.As(err, &pe) {
		return pe.Err
	}
	return err
}
