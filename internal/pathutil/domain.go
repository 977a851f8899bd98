package pathutil

import (
	"path"
	"path/filepath"
	"strings"

	"github.com/rescale/dualpane/internal/models"
)

// RemoteRoot is the root of every remote tree.
const RemoteRoot = "/"

// Root returns the default root for a domain. For the local domain this is the
// root of the volume containing the working directory.
func Root(domain models.Domain) string {
	if domain == models.DomainRemote {
		return RemoteRoot
	}
	wd, err := filepath.Abs(".")
	if err != nil {
		return string(filepath.Separator)
	}
	return localRoot(wd)
}

// Clean normalizes p for its domain. Remote paths always start with "/",
// never end with one (except the root) and never contain empty segments.
// An empty input stays empty so callers can reject it.
func Clean(domain models.Domain, p string) string {
	if p == "" {
		return ""
	}
	if domain == models.DomainRemote {
		return path.Clean("/" + strings.TrimLeft(p, "/"))
	}
	return filepath.Clean(p)
}

// IsRoot reports whether p is a root of its domain.
func IsRoot(domain models.Domain, p string) bool {
	if domain == models.DomainRemote {
		return Clean(domain, p) == RemoteRoot
	}
	c := filepath.Clean(p)
	return filepath.Dir(c) == c
}

// Parent returns the parent directory of p by dropping its last non-empty
// segment. The parent of a root is the root itself, so the result is never empty.
func Parent(domain models.Domain, p string) string {
	if domain == models.DomainRemote {
		segments := splitRemote(p)
		if len(segments) == 0 {
			return RemoteRoot
		}
		return "/" + strings.Join(segments[:len(segments)-1], "/")
	}
	if p == "" {
		return Root(domain)
	}
	return filepath.Dir(filepath.Clean(p))
}

// Join appends name to dir. Joining onto the remote root yields "/name", not "//name".
func Join(domain models.Domain, dir, name string) string {
	if domain == models.DomainRemote {
		if strings.HasSuffix(dir, "/") {
			return dir + name
		}
		return dir + "/" + name
	}
	return filepath.Join(dir, name)
}

// Base returns the last element of p.
func Base(domain models.Domain, p string) string {
	if domain == models.DomainRemote {
		segments := splitRemote(p)
		if len(segments) == 0 {
			return RemoteRoot
		}
		return segments[len(segments)-1]
	}
	return filepath.Base(p)
}

// ValidName reports whether name can be used as a single path element in
// the given domain: non-empty, not "." or "..", and free of separators.
func ValidName(domain models.Domain, name string) bool {
	if name == "" || name == "." || name == ".." {
		return false
	}
	if strings.Contains(name, "/") {
		return false
	}
	if domain == models.DomainLocal && strings.ContainsRune(name, filepath.Separator) {
		return false
	}
	return true
}

func splitRemote(p string) []string {
	parts := strings.Split(p, "/")
	segments := parts[:0]
	for _, s := range parts {
		if s != "" {
			segments = append(segments, s)
		}
	}
	return segments
}

func localRoot(p string) string {
	c := filepath.Clean(p)
	for {
		parent := filepath.Dir(c)
		if parent == c {
			return c
		}
		c = parent
	}
}
