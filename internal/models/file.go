// Package models holds the data types shared by the backend API, the client
// and the pane state.
package models

import "time"

// Domain identifies which side of the browser a path belongs to.
type Domain string

const (
	DomainLocal  Domain = "local"
	DomainRemote Domain = "remote"
)

// Valid reports whether d is one of the known domains.
func (d Domain) Valid() bool {
	return d == DomainLocal || d == DomainRemote
}

// FileEntry is one row of a directory listing.
// Size is only meaningful for files. Permissions is an opaque display string
// such as "-rw-r--r--".
type FileEntry struct {
	Name        string    `json:"name"`
	Path        string    `json:"path"`
	Size        int64     `json:"size"`
	IsDir       bool      `json:"isDir"`
	ModTime     time.Time `json:"modTime"`
	Permissions string    `json:"permissions"`
}

// SessionStatus describes the backend transfer session.
// It is fetched once at startup and never changes afterwards.
type SessionStatus struct {
	Connected   bool   `json:"connected"`
	Connection  string `json:"connection"`
	DownloadDir string `json:"downloadDir"`
}
