package secrets

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// FileProvider reads "file:<path>" references, the layout used by Docker and
// Kubernetes secret mounts. Relative paths are taken from Dir.
type FileProvider struct {
	Dir string
}

func (p FileProvider) Name() string { return "file" }

func (p FileProvider) Get(_ context.Context, key string) (string, error) {
	path := key
	if !filepath.IsAbs(path) && p.Dir != "" {
		path = filepath.Join(p.Dir, path)
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	v := strings.TrimSpace(string(data))
	if v == "" {
		return "", ErrNotFound
	}
	return v, nil
}
