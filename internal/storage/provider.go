// Package storage provides read-only access to a materialized workspace tree.
package storage

// Provider is the interface for workspace file operations.
type Provider interface {
	// Root returns the canonical absolute path of the workspace.
	Root() string
	// List returns every markdown file path (relative, forward slashes) that
	// satisfies filter, sorted ascending. An empty filter matches everything.
	List(filter string) ([]string, error)
	// Read returns the raw bytes of the file at path (relative to the root).
	Read(path string) ([]byte, error)
}
