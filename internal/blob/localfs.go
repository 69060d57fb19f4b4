package blob

import (
	"io"
	"os"
	"path/filepath"
)

// LocalFS stores job artifacts under a root directory, keyed by relative path.
type LocalFS struct {
	Root string
}

func (l LocalFS) Put(relPath string, r io.Reader) (string, error) {
	clean := filepath.Clean(relPath)
	abs := filepath.Join(l.Root, clean)
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return "", err
	}
	f, err := os.Create(abs)
	if err != nil {
		return "", err
	}
	defer f.Close()
	if _, err := io.Copy(f, r); err != nil {
		return "", err
	}
	return clean, nil
}

func (l LocalFS) Open(relPath string) (*os.File, error) {
	clean := filepath.Clean(relPath)
	return os.Open(filepath.Join(l.Root, clean))
}

func (l LocalFS) Exists(relPath string) bool {
	clean := filepath.Clean(relPath)
	_, err := os.Stat(filepath.Join(l.Root, clean))
	return err == nil
}

// Path returns the absolute path for a stored key.
func (l LocalFS) Path(relPath string) string {
	return filepath.Join(l.Root, filepath.Clean(relPath))
}

func (l LocalFS) Remove(relPath string) error {
	clean := filepath.Clean(relPath)
	return os.Remove(filepath.Join(l.Root, clean))
}
