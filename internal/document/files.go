package document

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// FileInfo describes one uploaded file.
type FileInfo struct {
	Name     string    `json:"name"`
	Size     int64     `json:"size"`
	Modified time.Time `json:"modified"`
}

// FileStore lists and resolves files under the upload directory.
type FileStore struct {
	dir string
}

func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

// List returns the uploaded files sorted by name.
func (s *FileStore) List() ([]FileInfo, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("read upload dir: %w", err)
	}

	infos := make([]FileInfo, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		fi, err := entry.Info()
		if err != nil {
			continue
		}
		infos = append(infos, FileInfo{
			Name:     entry.Name(),
			Size:     fi.Size(),
			Modified: fi.ModTime(),
		})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos, nil
}

// Resolve maps an upload name to its path, rejecting traversal outside the
// upload directory.
func (s *FileStore) Resolve(name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("file name must not be empty")
	}
	cleaned := filepath.Clean(name)
	if filepath.IsAbs(cleaned) || cleaned == ".." || filepath.Dir(cleaned) != "." {
		return "", fmt.Errorf("invalid file name %q", name)
	}
	path := filepath.Join(s.dir, cleaned)
	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("stat upload: %w", err)
	}
	return path, nil
}
