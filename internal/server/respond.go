package server

import (
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"os"

	"github.com/rescale/dualpane/internal/api"
	"github.com/rescale/dualpane/internal/cloud"
	"github.com/rescale/dualpane/internal/diskspace"
	"github.com/rescale/dualpane/internal/models"
)

// codeInsufficientSpace is sent when a download would not fit on local disk.
const codeInsufficientSpace = "INSUFFICIENT_SPACE"

func writeJSON(w http.ResponseWriter, status int, resp models.Response[any]) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(resp)
}

func writeSuccess(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusOK, models.Response[any]{Success: true, Data: data})
}

// writeError sends err in the error envelope. Errors that are not already
// classified are mapped from the filesystem sentinels.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, op string, err error) {
	apiErr := classify(op, err)

	status := apiErr.Status
	if status == 0 {
		status = api.StatusForKind(apiErr.Kind)
	}
	code := apiErr.Code
	if code == "" {
		code = api.CodeForKind(apiErr.Kind)
	}

	event := s.logger.Warn()
	if status >= http.StatusInternalServerError {
		event = s.logger.Error()
	}
	event.Err(err).
		Str("request_id", requestIDFrom(r.Context())).
		Str("op", op).
		Str("code", code).
		Int("status", status).
		Msg("request failed")

	writeJSON(w, status, models.Response[any]{
		Error: &models.APIError{Message: apiErr.Message, Code: code},
	})
}

func classify(op string, err error) *api.Error {
	var apiErr *api.Error
	if errors.As(err, &apiErr) {
		return apiErr
	}

	kind := api.KindUnknown
	switch {
	case errors.Is(err, cloud.ErrNotFound), errors.Is(err, os.ErrNotExist):
		kind = api.KindNotFound
	case errors.Is(err, cloud.ErrPermission), errors.Is(err, os.ErrPermission):
		kind = api.KindPermissionDenied
	case errors.Is(err, cloud.ErrExists), errors.Is(err, os.ErrExist):
		kind = api.KindConflict
	case errors.Is(err, cloud.ErrNotDir):
		kind = api.KindInvalid
	case errors.Is(err, cloud.ErrConnectionLost), errors.Is(err, io.ErrUnexpectedEOF):
		kind = api.KindConnectionLost
	case diskspace.IsInsufficientSpaceError(err):
		return &api.Error{
			Kind:    api.KindUnknown,
			Code:    codeInsufficientSpace,
			Status:  http.StatusInsufficientStorage,
			Op:      op,
			Message: err.Error(),
			Err:     err,
		}
	default:
		var netErr net.Error
		if errors.As(err, &netErr) {
			kind = api.KindConnectionLost
		}
	}
	return &api.Error{Kind: kind, Op: op, Message: err.Error(), Err: err}
}

func invalid(op, message string) *api.Error {
	return api.NewError(api.KindInvalid, op, message)
}
