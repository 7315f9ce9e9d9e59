package repository

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jcarweb/repuestospro-sub005/internal/policy/domain"
)

// FileRepository serves a single Rego module read from disk on every call, so edits
// take effect without a restart. An empty path serves nothing.
type FileRepository struct {
	path string
}

// NewFileRepository returns a repository for the Rego file at path.
func NewFileRepository(path string) *FileRepository {
	return &FileRepository{path: strings.TrimSpace(path)}
}

func (r *FileRepository) EnabledPolicies(ctx context.Context) ([]*domain.Policy, error) {
	if r.path == "" {
		return nil, nil
	}
	b, err := os.ReadFile(r.path)
	if err != nil {
		return nil, fmt.Errorf("policy: read %s: %w", r.path, err)
	}
	if strings.TrimSpace(string(b)) == "" {
		return nil, nil
	}
	return []*domain.Policy{{Name: filepath.Base(r.path), Rules: string(b), Enabled: true}}, nil
}
