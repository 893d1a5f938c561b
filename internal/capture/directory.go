package capture

import (
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/amoylab/castwall/internal/common/config"

	"go.uber.org/zap"
)

// DirectorySource treats every image file in a directory as one window.
// Files are re-read on every capture so external tools can keep them fresh.
type DirectorySource struct {
	logger     *zap.Logger
	path       string
	extensions map[string]struct{}
}

// NewDirectorySource creates a directory source
func NewDirectorySource(logger *zap.Logger, cfg config.DirectoryCaptureConfig) (*DirectorySource, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("directory capture requires a path")
	}
	exts := make(map[string]struct{}, len(cfg.Extensions))
	for _, ext := range cfg.Extensions {
		ext = strings.ToLower(ext)
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		exts[ext] = struct{}{}
	}
	return &DirectorySource{
		logger:     logger.Named("capture.directory"),
		path:       cfg.Path,
		extensions: exts,
	}, nil
}

func (s *DirectorySource) Name() string { return string(TypeDirectory) }

func (s *DirectorySource) Capture(ctx context.Context) ([]Window, error) {
	entries, err := os.ReadDir(s.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read capture directory: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	var out []Window
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if e.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if _, ok := s.extensions[ext]; !ok {
			continue
		}

		path := filepath.Join(s.path, e.Name())
		img, err := decodeFile(path)
		if err != nil {
			s.logger.Warn("skipping unreadable image", zap.String("path", path), zap.Error(err))
			continue
		}
		app := strings.TrimSuffix(e.Name(), filepath.Ext(e.Name()))
		out = append(out, NewWindow(path, e.Name(), app, img))
	}
	return out, nil
}

func decodeFile(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	return img, err
}
