package filesystem

import (
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"
)

// tempFilePattern names atomic-write temporaries.
const tempFilePattern = ".tmp-*"

// FileStats holds basic statistics about a file.
type FileStats struct {
	Size    int64
	IsDir   bool
	ModTime time.Time
	Mode    os.FileMode
}

// FileSystemAdapter is the file system seen by the workspace and the
// mutation primitives. Tests substitute it to inject failures.
type FileSystemAdapter interface {
	ReadFileBytes(filePath string) ([]byte, error)
	WriteFileBytesAtomic(filePath string, content []byte, perm os.FileMode) error
	FileExists(filePath string) (bool, error)
	GetFileStats(filePath string) (*FileStats, error)
	IsValidUTF8(content []byte) bool
	EvalSymlinks(path string) (string, error)
	ListDir(path string) ([]DirEntryInfo, error)
	// Remove deletes a single file.
	Remove(filePath string) error
	// MkdirAll creates dirPath and any missing parents, returning the
	// directories it actually created, outermost first.
	MkdirAll(dirPath string, perm os.FileMode) ([]string, error)
	// RemoveEmptyDir removes dirPath only if it is an empty directory.
	RemoveEmptyDir(dirPath string) error
}

// DirEntryInfo holds information about a directory entry.
type DirEntryInfo struct {
	Name     string
	IsDir    bool
	IsHidden bool // Helper based on name
	Mode     os.FileMode
	ModTime  time.Time
	Size     int64
}

// CheckDirectoryIsWritable performs a robust check if a directory is writable.
func CheckDirectoryIsWritable(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("path does not exist: %s: %w", path, err)
		}
		return fmt.Errorf("could not stat path %s: %w", path, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("path is not a directory: %s", path)
	}

	// #nosec G404 -- rand is okay for temp file names
	tmpFileName := fmt.Sprintf(".writable_test_%d_%d.tmp", time.Now().UnixNano(), rand.Intn(100000))
	tmpFilePath := filepath.Join(path, tmpFileName)

	file, err := os.Create(tmpFilePath)
	if err != nil {
		if os.IsPermission(err) {
			return fmt.Errorf("permission denied to write in directory %s: %w", path, err)
		}
		return fmt.Errorf("error creating temporary file in %s: %w", path, err)
	}
	_ = file.Close()
	_ = os.Remove(tmpFilePath)
	return nil
}

// DefaultFileSystemAdapter is the standard implementation of FileSystemAdapter using the os package.
type DefaultFileSystemAdapter struct{}

// NewDefaultFileSystemAdapter creates a new DefaultFileSystemAdapter.
func NewDefaultFileSystemAdapter() *DefaultFileSystemAdapter {
	return &DefaultFileSystemAdapter{}
}

// ReadFileBytes reads the entire file into a byte slice.
// Returns an error if the file doesn't exist or cannot be read.
func (fs *DefaultFileSystemAdapter) ReadFileBytes(filePath string) ([]byte, error) {
	content, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("file not found: %s: %w", filePath, err)
		}
		if os.IsPermission(err) {
			return nil, fmt.Errorf("permission denied reading file: %s: %w", filePath, err)
		}
		return nil, fmt.Errorf("failed to read file: %s: %w", filePath, err)
	}
	return content, nil
}

// IsValidUTF8 checks if the byte slice is valid UTF-8.
func (fs *DefaultFileSystemAdapter) IsValidUTF8(content []byte) bool {
	return utf8.Valid(content)
}

// WriteFileBytesAtomic writes content to a file atomically.
// It writes to a temporary file in the same directory, renames it over the
// target, and finally sets the desired permissions. The temporary name does
// not derive from the target, so any legal file name can be written.
func (fs *DefaultFileSystemAdapter) WriteFileBytesAtomic(filePath string, content []byte, finalPerm os.FileMode) error {
	dir := filepath.Dir(filePath)

	tempFile, err := os.CreateTemp(dir, tempFilePattern)
	if err != nil {
		return fmt.Errorf("failed to create temporary file in %s: %w", dir, err)
	}
	// Harmless once the rename succeeded.
	defer os.Remove(tempFile.Name())

	if _, errWrite := tempFile.Write(content); errWrite != nil {
		tempFile.Close()
		return fmt.Errorf("failed to write to temporary file %s: %w", tempFile.Name(), errWrite)
	}

	if errClose := tempFile.Close(); errClose != nil {
		return fmt.Errorf("failed to close temporary file %s: %w", tempFile.Name(), errClose)
	}

	if errRename := os.Rename(tempFile.Name(), filePath); errRename != nil {
		return fmt.Errorf("failed to rename temporary file %s to %s: %w", tempFile.Name(), filePath, errRename)
	}

	// The temp file was created 0600; restore the intended mode.
	if errChmodFinal := os.Chmod(filePath, finalPerm); errChmodFinal != nil {
		return fmt.Errorf("file written to %s, but failed to set final permissions to %o: %w", filePath, finalPerm, errChmodFinal)
	}

	return nil
}

// FileExists checks if a file or directory exists.
func (fs *DefaultFileSystemAdapter) FileExists(filePath string) (bool, error) {
	_, err := os.Stat(filePath)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, fmt.Errorf("error checking if file exists %s: %w", filePath, err)
}

// GetFileStats retrieves statistics for a given file.
func (fs *DefaultFileSystemAdapter) GetFileStats(filePath string) (*FileStats, error) {
	info, err := os.Stat(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("file not found for stats: %s: %w", filePath, err)
		}
		if os.IsPermission(err) {
			return nil, fmt.Errorf("permission denied getting stats for file: %s: %w", filePath, err)
		}
		return nil, fmt.Errorf("failed to get file stats for %s: %w", filePath, err)
	}

	return &FileStats{
		Size:    info.Size(),
		IsDir:   info.IsDir(),
		ModTime: info.ModTime(),
		Mode:    info.Mode().Perm(),
	}, nil
}

// Remove deletes a single file. Directories are refused.
func (fs *DefaultFileSystemAdapter) Remove(filePath string) error {
	info, err := os.Lstat(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("file not found: %s: %w", filePath, err)
		}
		return fmt.Errorf("failed to stat %s: %w", filePath, err)
	}
	if info.IsDir() {
		return fmt.Errorf("refusing to remove directory %s", filePath)
	}
	if err := os.Remove(filePath); err != nil {
		return fmt.Errorf("failed to remove %s: %w", filePath, err)
	}
	return nil
}

// MkdirAll creates dirPath and its missing parents.
func (fs *DefaultFileSystemAdapter) MkdirAll(dirPath string, perm os.FileMode) ([]string, error) {
	var missing []string
	for current := filepath.Clean(dirPath); ; {
		info, err := os.Stat(current)
		if err == nil {
			if !info.IsDir() {
				return nil, fmt.Errorf("path component is not a directory: %s", current)
			}
			break
		}
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to stat %s: %w", current, err)
		}
		missing = append(missing, current)
		parent := filepath.Dir(current)
		if parent == current {
			break
		}
		current = parent
	}
	if len(missing) == 0 {
		return nil, nil
	}
	if err := os.MkdirAll(dirPath, perm); err != nil {
		return nil, fmt.Errorf("failed to create directory %s: %w", dirPath, err)
	}
	// Outermost first.
	for i, j := 0, len(missing)-1; i < j; i, j = i+1, j-1 {
		missing[i], missing[j] = missing[j], missing[i]
	}
	return missing, nil
}

// RemoveEmptyDir removes dirPath if it is an empty directory.
func (fs *DefaultFileSystemAdapter) RemoveEmptyDir(dirPath string) error {
	entries, err := os.ReadDir(dirPath)
	if err != nil {
		return fmt.Errorf("failed to read directory %s: %w", dirPath, err)
	}
	if len(entries) > 0 {
		return fmt.Errorf("directory %s is not empty", dirPath)
	}
	if err := os.Remove(dirPath); err != nil {
		return fmt.Errorf("failed to remove directory %s: %w", dirPath, err)
	}
	return nil
}

// EvalSymlinks evaluates symbolic links for the given path.
func (fs *DefaultFileSystemAdapter) EvalSymlinks(path string) (string, error) {
	resolvedPath, err := filepath.EvalSymlinks(path)
	if err != nil {
		return "", fmt.Errorf("failed to evaluate symlinks for %s: %w", path, err)
	}
	return resolvedPath, nil
}

// ListDir lists the contents of a directory.
func (fs *DefaultFileSystemAdapter) ListDir(path string) ([]DirEntryInfo, error) {
	entries, err := os.ReadDir(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("directory not found: %s: %w", path, err)
		}
		if os.IsPermission(err) {
			return nil, fmt.Errorf("permission denied reading directory: %s: %w", path, err)
		}
		return nil, fmt.Errorf("failed to read directory %s: %w", path, err)
	}

	dirEntries := make([]DirEntryInfo, 0, len(entries))
	for _, entry := range entries {
		info, err := entry.Info()
		if err != nil {
			// Partial listings can be misleading.
			return nil, fmt.Errorf("failed to get info for entry %s in %s: %w", entry.Name(), path, err)
		}

		dirEntries = append(dirEntries, DirEntryInfo{
			Name:     info.Name(),
			IsDir:    info.IsDir(),
			IsHidden: strings.HasPrefix(info.Name(), "."),
			Mode:     info.Mode().Perm(),
			ModTime:  info.ModTime(),
			Size:     info.Size(),
		})
	}
	return dirEntries, nil
}

// Ensure DefaultFileSystemAdapter implements FileSystemAdapter
var _ FileSystemAdapter = (*DefaultFileSystemAdapter)(nil)
