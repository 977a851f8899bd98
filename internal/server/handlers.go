package server

import (
	"encoding/json"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/rescale/dualpane/internal/constants"
	"github.com/rescale/dualpane/internal/diskspace"
	"github.com/rescale/dualpane/internal/localfs"
	"github.com/rescale/dualpane/internal/metrics"
	"github.com/rescale/dualpane/internal/models"
	"github.com/rescale/dualpane/internal/pathutil"
)

// remotePath validates an absolute remote path and returns it cleaned.
func remotePath(op, raw string) (string, error) {
	if raw == "" {
		return "", invalid(op, "path is required")
	}
	if !strings.HasPrefix(raw, "/") {
		return "", invalid(op, "path must be absolute: "+raw)
	}
	return path.Clean(raw), nil
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeSuccess(w, models.SessionStatus{
		Connected:   true,
		Connection:  s.remote.ConnectionInfo(),
		DownloadDir: s.downloadDir,
	})
}

func (s *Server) handleLocalList(w http.ResponseWriter, r *http.Request) {
	const op = "list"
	dir := r.URL.Query().Get("path")
	if dir == "" {
		dir = localfs.HomeDir()
	}
	if !filepath.IsAbs(dir) {
		s.writeError(w, r, op, invalid(op, "path must be absolute: "+dir))
		return
	}

	entries, err := localfs.ListDirectory(filepath.Clean(dir), localfs.ListOptions{IncludeHidden: true})
	if err != nil {
		s.writeError(w, r, op, err)
		return
	}
	writeSuccess(w, entries)
}

func (s *Server) handleRemoteList(w http.ResponseWriter, r *http.Request) {
	const op = "list"
	raw := r.URL.Query().Get("path")
	if raw == "" {
		raw = "/"
	}
	dir, err := remotePath(op, raw)
	if err != nil {
		s.writeError(w, r, op, err)
		return
	}

	var entries []models.FileEntry
	err = s.observe(op, func() (err error) {
		entries, err = s.remote.List(r.Context(), dir)
		return err
	})
	if err != nil {
		s.writeError(w, r, op, err)
		return
	}
	if entries == nil {
		entries = []models.FileEntry{}
	}
	writeSuccess(w, entries)
}

func (s *Server) handleRemoteMkdir(w http.ResponseWriter, r *http.Request) {
	const op = "mkdir"
	var req models.MkdirRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, r, op, invalid(op, "invalid request body"))
		return
	}
	dir, err := remotePath(op, req.Path)
	if err != nil {
		s.writeError(w, r, op, err)
		return
	}

	if err := s.observe(op, func() error { return s.remote.MkdirAll(r.Context(), dir) }); err != nil {
		s.writeError(w, r, op, err)
		return
	}
	s.logger.Info().Str("path", dir).Msg("created directory")
	writeSuccess(w, nil)
}

func (s *Server) handleRemoteRename(w http.ResponseWriter, r *http.Request) {
	const op = "rename"
	var req models.RenameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, r, op, invalid(op, "invalid request body"))
		return
	}
	oldPath, err := remotePath(op, req.OldPath)
	if err != nil {
		s.writeError(w, r, op, err)
		return
	}
	newPath, err := remotePath(op, req.NewPath)
	if err != nil {
		s.writeError(w, r, op, err)
		return
	}
	if oldPath == "/" || newPath == "/" {
		s.writeError(w, r, op, invalid(op, "cannot rename the root directory"))
		return
	}
	if oldPath == newPath {
		writeSuccess(w, nil)
		return
	}

	if err := s.observe(op, func() error { return s.remote.Rename(r.Context(), oldPath, newPath) }); err != nil {
		s.writeError(w, r, op, err)
		return
	}
	s.logger.Info().Str("from", oldPath).Str("to", newPath).Msg("renamed")
	writeSuccess(w, nil)
}

func (s *Server) handleRemoteDelete(w http.ResponseWriter, r *http.Request) {
	const op = "delete"
	target, err := remotePath(op, r.URL.Query().Get("path"))
	if err != nil {
		s.writeError(w, r, op, err)
		return
	}
	if target == "/" {
		s.writeError(w, r, op, invalid(op, "refusing to delete the root directory"))
		return
	}

	if err := s.observe(op, func() error { return s.remote.RemoveAll(r.Context(), target) }); err != nil {
		s.writeError(w, r, op, err)
		return
	}
	s.logger.Info().Str("path", target).Msg("deleted")
	writeSuccess(w, nil)
}

func (s *Server) handleRemoteDownload(w http.ResponseWriter, r *http.Request) {
	const op = "download"
	src, err := remotePath(op, r.URL.Query().Get("path"))
	if err != nil {
		s.writeError(w, r, op, err)
		return
	}

	var entry models.FileEntry
	err = s.observe("stat", func() (err error) {
		entry, err = s.remote.Stat(r.Context(), src)
		return err
	})
	if err != nil {
		s.writeError(w, r, op, err)
		return
	}
	if entry.IsDir {
		s.writeError(w, r, op, invalid(op, "directories cannot be downloaded"))
		return
	}

	localPath := filepath.Join(s.downloadDir, path.Base(src))
	if err := diskspace.CheckAvailableSpace(localPath, entry.Size, constants.DiskSpaceSafetyMargin); err != nil {
		s.writeError(w, r, op, err)
		return
	}

	if err := s.observe(op, func() error { return s.remote.Download(r.Context(), src, localPath) }); err != nil {
		s.writeError(w, r, op, err)
		return
	}
	metrics.RecordDownload(entry.Size)
	s.logger.Info().Str("remote", src).Str("local", localPath).Int64("size", entry.Size).Msg("downloaded")
	writeSuccess(w, models.DownloadResult{LocalPath: localPath})
}

func (s *Server) handleRemoteUpload(w http.ResponseWriter, r *http.Request) {
	const op = "upload"
	dir, err := remotePath(op, r.URL.Query().Get("path"))
	if err != nil {
		s.writeError(w, r, op, err)
		return
	}

	if err := r.ParseMultipartForm(constants.MaxUploadMemory); err != nil {
		s.writeError(w, r, op, invalid(op, "failed to parse form"))
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		s.writeError(w, r, op, invalid(op, "no file provided"))
		return
	}
	defer file.Close()

	name := path.Base(strings.ReplaceAll(header.Filename, `\`, "/"))
	if !pathutil.ValidName(models.DomainRemote, name) {
		s.writeError(w, r, op, invalid(op, "invalid file name: "+header.Filename))
		return
	}

	tmpPath, size, err := spool(file)
	if err != nil {
		s.writeError(w, r, op, err)
		return
	}
	defer os.Remove(tmpPath)

	dst := path.Join(dir, name)
	if err := s.observe(op, func() error { return s.remote.Upload(r.Context(), tmpPath, dst) }); err != nil {
		s.writeError(w, r, op, err)
		return
	}
	metrics.RecordUpload(size)
	s.logger.Info().Str("remote", dst).Int64("size", size).Msg("uploaded")
	writeSuccess(w, models.UploadResult{RemotePath: dst})
}

// spool copies an upload part into a temp file so providers can read it by path.
func spool(src io.Reader) (string, int64, error) {
	tmp, err := os.CreateTemp("", "dualpane-upload-*")
	if err != nil {
		return "", 0, err
	}
	n, err := io.Copy(tmp, src)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(tmp.Name())
		return "", 0, err
	}
	return tmp.Name(), n, nil
}

func (s *Server) handleShutdown(w http.ResponseWriter, r *http.Request) {
	writeSuccess(w, models.ShutdownResult{Message: "Shutting down..."})
	http.NewResponseController(w).Flush()
	s.RequestShutdown()
}
