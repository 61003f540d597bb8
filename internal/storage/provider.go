// Package storage provides the note file-system abstraction and the durable
// replace primitive used to persist processed notes.
package storage

// Provider is the interface for note file operations. Paths are absolute or
// relative to the process working directory.
type Provider interface {
	// List returns every .md file under dir, recursively, in walk order.
	List(dir string) ([]string, error)
	// Read returns the raw bytes of the file at path.
	Read(path string) ([]byte, error)
	// Size returns the size in bytes of the file at path.
	Size(path string) (int64, error)
	// Replace durably overwrites path with content.
	Replace(path string, content []byte) error
	// Move renames oldPath to newPath, creating parent directories.
	Move(oldPath, newPath string) error
	// Exists reports whether path exists.
	Exists(path string) bool
}
