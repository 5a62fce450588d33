package docstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"script-breakdown/internal/domain"
	"script-breakdown/internal/domain/ports/adapter"
)

var _ adapter.DocumentStore = (*FSStore)(nil)

// FSStore serves screenplay text from a directory tree. Document IDs
// map to <root>/<id>.txt; path traversal outside the root is refused.
type FSStore struct {
	root string
}

func NewFSStore(root string) (*FSStore, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("document root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("document root %q is not a directory", abs)
	}
	return &FSStore{root: abs}, nil
}

func (s *FSStore) FetchText(ctx context.Context, documentID string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if documentID == "" {
		return "", domain.ErrInvalidArgument
	}
	path := filepath.Join(s.root, documentID+".txt")
	if !strings.HasPrefix(path, s.root+string(filepath.Separator)) {
		return "", domain.ErrInvalidArgument
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", domain.ErrNotFound
		}
		return "", err
	}
	return string(data), nil
}
