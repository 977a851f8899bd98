package constants

import (
	"time"
)

// HTTP transport timeouts
const (
	// HTTPDialTimeout - TCP connect timeout for backend requests
	HTTPDialTimeout = 30 * time.Second

	// HTTPKeepAlive - TCP keep-alive interval
	HTTPKeepAlive = 30 * time.Second

	// HTTPIdleConnTimeout - how long idle keep-alive connections stay open
	HTTPIdleConnTimeout = 90 * time.Second

	// HTTPTLSHandshakeTimeout - generous to tolerate slow proxies
	HTTPTLSHandshakeTimeout = 60 * time.Second

	// HTTPMaxIdleConnsPerHost - a single backend host
	HTTPMaxIdleConnsPerHost = 4
)

// Backend request timeouts
const (
	// APIContextTimeout - default per-request timeout for listings and metadata
	APIContextTimeout = 30 * time.Second

	// TransferContextTimeout - per-request timeout for upload/download calls
	TransferContextTimeout = 2 * time.Hour

	// ShutdownTimeout - how long the server waits for in-flight requests on exit
	ShutdownTimeout = 10 * time.Second
)

// Session defaults
const (
	// DefaultListenAddr - backend API listen address
	DefaultListenAddr = ":8080"

	// DefaultBackendURL - where the shell looks for the backend
	DefaultBackendURL = "http://localhost:8080"

	// DefaultSFTPPort - standard SSH port
	DefaultSFTPPort = 22

	// SSHDialTimeout - SSH handshake timeout
	SSHDialTimeout = 30 * time.Second

	// DefaultDownloadDirName - created under the user's home directory
	DefaultDownloadDirName = "temporary"

	// MaxUploadMemory - multipart bytes kept in memory before spooling to disk (1 GB)
	MaxUploadMemory = 1 << 30

	// DiskSpaceSafetyMargin - require 5% headroom over the file size before download
	DiskSpaceSafetyMargin = 1.05
)

// Event bus configuration
const (
	// EventBusDefaultBuffer - per-subscriber channel buffer
	EventBusDefaultBuffer = 1000

	// EventBusMaxBuffer - upper bound for requested buffer sizes
	EventBusMaxBuffer = 5000
)

// Status bar messages
const (
	StatusReady        = "Ready"
	StatusLoading      = "Loading..."
	StatusUploading    = "Uploading..."
	StatusDownloading  = "Downloading..."
	StatusUploadDone   = "Upload complete"
	StatusDisconnected = "Disconnected. You can close this tab."
)
