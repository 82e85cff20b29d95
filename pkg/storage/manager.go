package storage

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// Manager owns the shared media directory that downloads land in
type Manager struct {
	dir string
	mu  sync.Mutex
}

// FileInfo describes one file in the media directory
type FileInfo struct {
	Path    string
	Size    int64
	ModTime int64
}

// NewManager creates a new storage manager, creating dir if needed
func NewManager(dir string) (*Manager, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create media directory: %w", err)
	}
	return &Manager{dir: dir}, nil
}

// Dir returns the media directory path
func (m *Manager) Dir() string {
	return m.dir
}

// Path returns where a file named name lives in the media directory
func (m *Manager) Path(name string) string {
	return filepath.Join(m.dir, filepath.Base(name))
}

// Exists checks if a file named name is already present
func (m *Manager) Exists(name string) bool {
	info, err := os.Stat(m.Path(name))
	return err == nil && !info.IsDir()
}

// Save writes r to name through a temporary file and an atomic rename
func (m *Manager) Save(r io.Reader, name string) (string, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	filename := m.Path(name)
	tempFile := filename + ".tmp"
	out, err := os.Create(tempFile)
	if err != nil {
		return "", 0, fmt.Errorf("failed to create temporary file: %w", err)
	}

	written, err := io.Copy(out, r)
	closeErr := out.Close()

	if err != nil {
		os.Remove(tempFile)
		return "", 0, fmt.Errorf("failed to save media data: %w", err)
	}
	if closeErr != nil {
		os.Remove(tempFile)
		return "", 0, fmt.Errorf("failed to close file: %w", closeErr)
	}

	if err := os.Rename(tempFile, filename); err != nil {
		os.Remove(tempFile)
		return "", 0, fmt.Errorf("failed to rename temporary file: %w", err)
	}
	return filename, written, nil
}

// Files lists the regular files in the media directory, newest first.
// Leftover temporary files are skipped.
func (m *Manager) Files() ([]FileInfo, error) {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read media directory: %w", err)
	}

	files := make([]FileInfo, 0, len(entries))
	for _, entry := range entries {
		if !entry.Type().IsRegular() || strings.HasSuffix(entry.Name(), ".tmp") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		files = append(files, FileInfo{
			Path:    filepath.Join(m.dir, entry.Name()),
			Size:    info.Size(),
			ModTime: info.ModTime().UnixNano(),
		})
	}

	sort.SliceStable(files, func(i, j int) bool {
		if files[i].ModTime != files[j].ModTime {
			return files[i].ModTime > files[j].ModTime
		}
		return files[i].Path < files[j].Path
	})
	return files, nil
}

// Recent returns up to limit paths, most recently modified first
func (m *Manager) Recent(limit int) ([]string, error) {
	files, err := m.Files()
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(files) > limit {
		files = files[:limit]
	}
	paths := make([]string, len(files))
	for i, f := range files {
		paths[i] = f.Path
	}
	return paths, nil
}

// Usage returns the number of files and their total size
func (m *Manager) Usage() (int, int64, error) {
	files, err := m.Files()
	if err != nil {
		return 0, 0, err
	}
	var total int64
	for _, f := range files {
		total += f.Size
	}
	return len(files), total, nil
}

// Clean removes everything inside the media directory but keeps the directory
func (m *Manager) Clean() (int, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entries, err := os.ReadDir(m.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, 0, nil
		}
		return 0, 0, fmt.Errorf("failed to read media directory: %w", err)
	}

	var removed int
	var freed int64
	for _, entry := range entries {
		p := filepath.Join(m.dir, entry.Name())
		if info, err := entry.Info(); err == nil && info.Mode().IsRegular() {
			freed += info.Size()
		}
		if err := os.RemoveAll(p); err != nil {
			return removed, freed, fmt.Errorf("failed to remove %s: %w", p, err)
		}
		removed++
	}
	return removed, freed, nil
}

// Existing filters paths down to the regular files that are still on disk
func Existing(paths []string) []string {
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		if info, err := os.Stat(p); err == nil && info.Mode().IsRegular() {
			out = append(out, p)
		}
	}
	return out
}
