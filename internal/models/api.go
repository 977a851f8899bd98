package models

// Response is the envelope every backend endpoint answers with.
// Data is left raw so the caller can decode it into the expected shape.
type Response[T any] struct {
	Success bool      `json:"success"`
	Data    T         `json:"data,omitempty"`
	Error   *APIError `json:"error,omitempty"`
}

// APIError carries a human readable message and a stable code.
type APIError struct {
	Message string `json:"message"`
	Code    string `json:"code"`
}

// MkdirRequest is the body of POST /api/remote/mkdir.
type MkdirRequest struct {
	Path string `json:"path"`
}

// RenameRequest is the body of POST /api/remote/rename.
type RenameRequest struct {
	OldPath string `json:"oldPath"`
	NewPath string `json:"newPath"`
}

// DownloadResult is returned by GET /api/remote/download.
type DownloadResult struct {
	LocalPath string `json:"localPath"`
}

// UploadResult is returned by POST /api/remote/upload.
type UploadResult struct {
	RemotePath string `json:"remotePath"`
}

// ShutdownResult is returned by POST /api/shutdown.
type ShutdownResult struct {
	Message string `json:"message"`
}
