// Package localfs lists directories on the machine running the backend.
package localfs

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/rescale/dualpane/internal/models"
)

// ListOptions configures the behavior of ListDirectory.
type ListOptions struct {
	// IncludeHidden includes dot files in results.
	IncludeHidden bool
}

// ListDirectory returns the contents of a directory in the filesystem's
// native order. Entries that cannot be stat'ed are skipped.
func ListDirectory(path string, opts ListOptions) ([]models.FileEntry, error) {
	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, err
	}

	result := make([]models.FileEntry, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if !opts.IncludeHidden && hidden(name) {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			continue
		}

		result = append(result, models.FileEntry{
			Name:        name,
			Path:        filepath.Join(path, name),
			Size:        info.Size(),
			IsDir:       entry.IsDir(),
			ModTime:     info.ModTime(),
			Permissions: info.Mode().String(),
		})
	}

	return result, nil
}

// HomeDir returns the user's home directory, or the filesystem root if it
// cannot be determined.
func HomeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return string(filepath.Separator)
	}
	return home
}

// hidden reports whether name is a dot file. "." and ".." are not.
func hidden(name string) bool {
	return name != "." && name != ".." && strings.HasPrefix(name, ".")
}
