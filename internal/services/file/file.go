package file

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/privstream/privrec/internal/modules/config"
	"github.com/sirupsen/logrus"
)

var logger = logrus.WithField("service", "file")

var ErrInvalidFilePath = fmt.Errorf("invalid file path")
var ErrAccessDenied = fmt.Errorf("access denied")

// Service lists the durable segment tree for the REST surface. Paths are
// validated against the archive root so the API cannot escape it.
type Service struct {
	cfg *config.Config
}

type Tree struct {
	Name  string `json:"name"`
	IsDir bool   `json:"is_dir"`
	Path  string `json:"path"`
	Size  int64  `json:"size"`
}

func NewService(cfg *config.Config) *Service {
	return &Service{cfg: cfg}
}

// ListTree returns the entries directly under path within the archive root.
func (s *Service) ListTree(path string) ([]*Tree, error) {
	return s.ListTreeWithFilter(path, func(fs.DirEntry) bool { return true })
}

// ListSegmentFiles returns only finalized segment files (mp4/srt).
func (s *Service) ListSegmentFiles(path string) ([]*Tree, error) {
	return s.ListTreeWithFilter(path, func(e fs.DirEntry) bool {
		if e.IsDir() {
			return true
		}
		ext := filepath.Ext(e.Name())
		return ext == ".mp4" || ext == ".srt"
	})
}

func (s *Service) ListTreeWithFilter(path string, filter func(fs.DirEntry) bool) ([]*Tree, error) {
	fullPath, err := s.validatePath(path)
	if err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(fullPath)
	if err != nil {
		return nil, err
	}

	relativePath := strings.TrimPrefix(fullPath, s.cfg.ArchiveDir)
	relativePath = strings.TrimPrefix(relativePath, string(os.PathSeparator))

	files := make([]*Tree, 0, len(entries))
	for _, entry := range entries {
		if !filter(entry) {
			continue
		}
		t := &Tree{
			Name:  entry.Name(),
			IsDir: entry.IsDir(),
			Path:  filepath.Join(relativePath, entry.Name()),
		}
		if info, err := entry.Info(); err == nil {
			t.Size = info.Size()
		}
		files = append(files, t)
	}
	return files, nil
}

func (s *Service) validatePath(path string) (string, error) {
	baseAbs, err := filepath.Abs(s.cfg.ArchiveDir)
	if err != nil {
		logger.Errorf("invalid base path for %s: %v", s.cfg.ArchiveDir, err)
		return "", ErrInvalidFilePath
	}

	fullPath := filepath.Clean(filepath.Join(baseAbs, path))
	fullPathAbs, err := filepath.Abs(fullPath)
	if err != nil {
		logger.Errorf("invalid path for %s: %v", fullPath, err)
		return "", ErrInvalidFilePath
	}

	if !strings.HasPrefix(fullPathAbs, baseAbs+string(os.PathSeparator)) &&
		fullPathAbs != baseAbs {
		logger.Errorf("path traversal detected: %s", fullPath)
		return "", ErrAccessDenied
	}

	return fullPathAbs, nil
}
