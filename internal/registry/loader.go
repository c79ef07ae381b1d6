package registry

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"iotml/internal/common/fsutil"
	"iotml/internal/engine"
	"iotml/pkg/types"
)

// Scan lists the model artifacts stored directly under dir.
// Files that are not readable artifacts are skipped; in-progress temp files
// (dot-prefixed) are never listed. A missing dir yields an empty list.
func Scan(dir string) ([]types.ModelInfo, error) {
	base, err := fsutil.ExpandHome(dir)
	if err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(base)
	if err != nil {
		return nil, fmt.Errorf("abs path: %w", err)
	}
	entries, err := os.ReadDir(abs)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []types.ModelInfo{}, nil
		}
		return nil, fmt.Errorf("read dir: %w", err)
	}
	models := make([]types.ModelInfo, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, ".") || !strings.HasSuffix(name, engine.ArtifactExt) {
			continue
		}
		p := filepath.Join(abs, name)
		h, err := engine.ReadHeader(p)
		if err != nil {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		models = append(models, types.ModelInfo{
			ID:        h.ModelID,
			Kind:      h.Kind.String(),
			Path:      name,
			SizeBytes: info.Size(),
			SavedAt:   h.SavedAt,
		})
	}
	sort.Slice(models, func(i, j int) bool { return models[i].ID < models[j].ID })
	return models, nil
}
