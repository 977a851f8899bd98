package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	nethttp "net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/rescale/dualpane/internal/config"
	"github.com/rescale/dualpane/internal/constants"
	"github.com/rescale/dualpane/internal/http"
	"github.com/rescale/dualpane/internal/logging"
	"github.com/rescale/dualpane/internal/models"
)

// maxResponseBytes bounds how much of a response body is read.
const maxResponseBytes = 32 << 20

// retryLogger routes retryablehttp's leveled logging into our logger.
type retryLogger struct {
	logger *logging.Logger
}

func (l *retryLogger) Error(msg string, keysAndValues ...interface{}) {
	l.logger.Error().Fields(keysAndValues).Msg(msg)
}

func (l *retryLogger) Info(msg string, keysAndValues ...interface{}) {}

func (l *retryLogger) Debug(msg string, keysAndValues ...interface{}) {
	l.logger.Debug().Fields(keysAndValues).Msg(msg)
}

func (l *retryLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.logger.Warn().Fields(keysAndValues).Msg(msg)
}

// Client talks to the backend API. It is stateless: one request per call,
// no retries and no caching. Every failure is returned as an *Error.
type Client struct {
	httpClient   *nethttp.Client // JSON calls, through retryablehttp
	streamClient *nethttp.Client // uploads, body streamed from disk
	baseURL      string
	timeout      time.Duration
	logger       *logging.Logger
}

// NewClient creates a backend client from cfg.
func NewClient(cfg *config.Config, logger *logging.Logger) (*Client, error) {
	baseURL := strings.TrimSuffix(strings.TrimSpace(cfg.BackendURL), "/")
	if baseURL == "" {
		return nil, errors.New("backend URL is empty")
	}
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid backend URL %q", cfg.BackendURL)
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}

	base, err := http.ConfigureHTTPClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to configure HTTP client: %w", err)
	}

	// Single attempt. A mutation must never be replayed behind the caller's back,
	// and the passthrough handler keeps the backend's error envelope intact.
	retryClient := retryablehttp.NewClient()
	retryClient.HTTPClient = base
	retryClient.RetryMax = 0
	retryClient.CheckRetry = func(context.Context, *nethttp.Response, error) (bool, error) {
		return false, nil
	}
	retryClient.ErrorHandler = retryablehttp.PassthroughErrorHandler
	retryClient.Logger = &retryLogger{logger: logger}

	timeout := time.Duration(cfg.RequestTimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = constants.APIContextTimeout
	}

	return &Client{
		httpClient:   retryClient.StandardClient(),
		streamClient: base,
		baseURL:      baseURL,
		timeout:      timeout,
		logger:       logger,
	}, nil
}

// BaseURL returns the backend address this client talks to.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// GetStatus fetches the session status.
func (c *Client) GetStatus(ctx context.Context) (*models.SessionStatus, error) {
	var status models.SessionStatus
	if err := c.call(ctx, "status", nethttp.MethodGet, "/api/status", nil, nil, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// List returns the entries of dir in the given domain, in backend order.
func (c *Client) List(ctx context.Context, domain models.Domain, dir string) ([]models.FileEntry, error) {
	if !domain.Valid() {
		return nil, NewError(KindInvalid, "list", fmt.Sprintf("unknown domain %q", domain))
	}

	var entries []models.FileEntry
	q := url.Values{"path": {dir}}
	if err := c.call(ctx, "list", nethttp.MethodGet, "/api/"+string(domain)+"/list", q, nil, &entries); err != nil {
		return nil, err
	}

	seen := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		if e.Name == "" || e.Path == "" {
			return nil, NewError(KindUnknown, "list", "malformed entry in listing")
		}
		if _, dup := seen[e.Path]; dup {
			return nil, NewError(KindUnknown, "list", "duplicate path in listing: "+e.Path)
		}
		seen[e.Path] = struct{}{}
	}
	if entries == nil {
		entries = []models.FileEntry{}
	}
	return entries, nil
}

// Mkdir creates a remote directory, including missing parents.
func (c *Client) Mkdir(ctx context.Context, path string) error {
	return c.call(ctx, "mkdir", nethttp.MethodPost, "/api/remote/mkdir", nil, models.MkdirRequest{Path: path}, nil)
}

// Rename moves a remote entry to newPath.
func (c *Client) Rename(ctx context.Context, oldPath, newPath string) error {
	return c.call(ctx, "rename", nethttp.MethodPost, "/api/remote/rename", nil,
		models.RenameRequest{OldPath: oldPath, NewPath: newPath}, nil)
}

// Delete removes a remote file or directory tree.
func (c *Client) Delete(ctx context.Context, path string) error {
	return c.call(ctx, "delete", nethttp.MethodDelete, "/api/remote/delete", url.Values{"path": {path}}, nil, nil)
}

// Download asks the backend to copy a remote file into the session's
// download directory and returns the local path it was written to.
func (c *Client) Download(ctx context.Context, remotePath string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, constants.TransferContextTimeout)
	defer cancel()

	var res models.DownloadResult
	if err := c.call(ctx, "download", nethttp.MethodGet, "/api/remote/download", url.Values{"path": {remotePath}}, nil, &res); err != nil {
		return "", err
	}
	if res.LocalPath == "" {
		return "", NewError(KindUnknown, "download", "response is missing localPath")
	}
	return res.LocalPath, nil
}

// Upload sends a local file into remoteDir and returns the remote path created.
func (c *Client) Upload(ctx context.Context, localPath, remoteDir string) (string, error) {
	const op = "upload"

	f, err := os.Open(localPath)
	if err != nil {
		return "", localFileError(op, err)
	}
	defer f.Close()

	ctx, cancel := context.WithTimeout(ctx, constants.TransferContextTimeout)
	defer cancel()

	// Stream the multipart body so large files are never held in memory.
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		part, err := mw.CreateFormFile("file", filepath.Base(localPath))
		if err == nil {
			_, err = io.Copy(part, f)
		}
		if err == nil {
			err = mw.Close()
		}
		pw.CloseWithError(err)
	}()

	endpoint := c.baseURL + "/api/remote/upload?" + url.Values{"path": {remoteDir}}.Encode()
	req, err := nethttp.NewRequestWithContext(ctx, nethttp.MethodPost, endpoint, pr)
	if err != nil {
		pr.Close()
		return "", &Error{Kind: KindInvalid, Op: op, Message: err.Error(), Err: err}
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Accept", "application/json")

	c.logger.Debug().Str("op", op).Str("local", localPath).Str("remote_dir", remoteDir).Msg("backend request")
	resp, err := c.streamClient.Do(req)
	if err != nil {
		pr.Close()
		return "", transportError(op, err)
	}
	defer resp.Body.Close()

	var res models.UploadResult
	if err := decodeResponse(op, resp, &res); err != nil {
		return "", err
	}
	if res.RemotePath == "" {
		return "", NewError(KindUnknown, op, "response is missing remotePath")
	}
	return res.RemotePath, nil
}

// Shutdown asks the backend to end the session. Any HTTP response counts as success.
func (c *Client) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.send(ctx, "shutdown", nethttp.MethodPost, "/api/shutdown", nil, nil)
	if err != nil {
		return err
	}
	io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))
	resp.Body.Close()
	return nil
}

// call performs a JSON request and decodes the envelope's data into out (if non-nil).
func (c *Client) call(ctx context.Context, op, method, path string, query url.Values, body, out interface{}) error {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	resp, err := c.send(ctx, op, method, path, query, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return decodeResponse(op, resp, out)
}

func (c *Client) send(ctx context.Context, op, method, path string, query url.Values, body interface{}) (*nethttp.Response, error) {
	var reqBody io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return nil, &Error{Kind: KindInvalid, Op: op, Message: "failed to marshal request body", Err: err}
		}
		reqBody = bytes.NewReader(jsonData)
	}

	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	req, err := nethttp.NewRequestWithContext(ctx, method, endpoint, reqBody)
	if err != nil {
		return nil, &Error{Kind: KindInvalid, Op: op, Message: err.Error(), Err: err}
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	c.logger.Debug().Str("op", op).Str("method", method).Str("url", endpoint).Msg("backend request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Debug().Err(err).Str("op", op).Msg("backend request failed")
		return nil, transportError(op, err)
	}
	return resp, nil
}

// decodeResponse validates the envelope and unpacks data into out.
func decodeResponse(op string, resp *nethttp.Response, out interface{}) error {
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return transportError(op, err)
	}

	var env models.Response[json.RawMessage]
	if err := json.Unmarshal(raw, &env); err != nil {
		msg := strings.TrimSpace(string(raw))
		if len(msg) > 200 {
			msg = msg[:200]
		}
		if msg == "" {
			msg = resp.Status
		}
		if resp.StatusCode >= 300 {
			return &Error{Kind: classify("", msg, resp.StatusCode), Status: resp.StatusCode, Op: op, Message: msg}
		}
		return &Error{Kind: KindUnknown, Status: resp.StatusCode, Op: op, Message: "malformed response: " + msg, Err: err}
	}

	if !env.Success || resp.StatusCode >= 300 {
		code, msg := "", resp.Status
		if env.Error != nil {
			code = env.Error.Code
			if env.Error.Message != "" {
				msg = env.Error.Message
			}
		}
		return &Error{Kind: classify(code, msg, resp.StatusCode), Code: code, Status: resp.StatusCode, Op: op, Message: msg}
	}

	if out == nil {
		return nil
	}
	if len(env.Data) == 0 || string(env.Data) == "null" {
		// an empty listing may legitimately be encoded as null
		if _, isList := out.(*[]models.FileEntry); isList {
			return nil
		}
		return NewError(KindUnknown, op, "response is missing data")
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return &Error{Kind: KindUnknown, Status: resp.StatusCode, Op: op, Message: "unexpected response shape", Err: err}
	}
	return nil
}

func localFileError(op string, err error) *Error {
	kind := KindUnknown
	switch {
	case errors.Is(err, os.ErrNotExist):
		kind = KindNotFound
	case errors.Is(err, os.ErrPermission):
		kind = KindPermissionDenied
	}
	return &Error{Kind: kind, Op: op, Message: err.Error(), Err: err}
}
