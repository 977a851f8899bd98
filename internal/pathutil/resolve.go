// Package pathutil provides path helpers for the local and remote panes.
package pathutil

import (
	"os"
	"path/filepath"
	"strings"
)

// ExpandHome replaces a leading "~" or "~/" with the user's home directory.
// "~user" forms are returned unchanged.
func ExpandHome(p string) (string, error) {
	if p != "~" && !strings.HasPrefix(p, "~/") && !strings.HasPrefix(p, `~\`) {
		return p, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, p[1:]), nil
}

// ResolveAbsolutePath turns a user supplied local path into an absolute one.
// Symlinks are evaluated up to the deepest ancestor that exists; the missing
// tail is kept as written, so a download directory that has not been created
// yet resolves to the same place it will later be created at. An empty path
// resolves to the working directory.
func ResolveAbsolutePath(p string) (string, error) {
	if p == "" {
		return os.Getwd()
	}
	p, err := ExpandHome(p)
	if err != nil {
		return "", err
	}
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", err
	}
	return evalExisting(abs), nil
}

func evalExisting(p string) string {
	if resolved, err := filepath.EvalSymlinks(p); err == nil {
		return resolved
	}
	parent := filepath.Dir(p)
	if parent == p {
		return p
	}
	return filepath.Join(evalExisting(parent), filepath.Base(p))
}
