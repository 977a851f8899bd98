package cloud

import (
	"path"
	"strings"
)

// Object stores have no directories. Providers map a remote path to a key
// under an optional prefix and treat "dir/" keys and common prefixes as
// directories.

// ObjectKey maps the remote path p to an object key under prefix.
// The root maps to the bare prefix.
func ObjectKey(prefix, p string) string {
	rel := strings.TrimPrefix(path.Clean("/"+p), "/")
	prefix = strings.Trim(prefix, "/")
	switch {
	case prefix == "":
		return rel
	case rel == "":
		return prefix + "/"
	default:
		return prefix + "/" + rel
	}
}

// DirPrefix is the key prefix that lists the children of directory p.
func DirPrefix(prefix, p string) string {
	key := ObjectKey(prefix, p)
	if key == "" || strings.HasSuffix(key, "/") {
		return key
	}
	return key + "/"
}

// RemotePath maps an object key back to a remote path. The trailing "/" of a
// directory marker is dropped.
func RemotePath(prefix, key string) string {
	prefix = strings.Trim(prefix, "/")
	rel := strings.TrimSuffix(key, "/")
	if prefix != "" {
		rel = strings.TrimPrefix(strings.TrimPrefix(rel, prefix), "/")
	}
	return "/" + rel
}
