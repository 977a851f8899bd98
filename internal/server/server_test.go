package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rescale/dualpane/internal/api"
	"github.com/rescale/dualpane/internal/cloud"
	"github.com/rescale/dualpane/internal/config"
	"github.com/rescale/dualpane/internal/models"
)

type testEnv struct {
	fs          *memFS
	server      *Server
	http        *httptest.Server
	client      *api.Client
	downloadDir string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	fs := newMemFS()
	fs.mkdir("/data")
	fs.mkfile("/data/report.csv", "a,b,c\n")

	downloadDir := t.TempDir()
	srv := New(fs, downloadDir, nil)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	cfg := config.NewConfig()
	cfg.BackendURL = ts.URL
	client, err := api.NewClient(cfg, nil)
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	return &testEnv{fs: fs, server: srv, http: ts, client: client, downloadDir: downloadDir}
}

func decode(t *testing.T, resp *http.Response) models.Response[json.RawMessage] {
	t.Helper()
	defer resp.Body.Close()
	var env models.Response[json.RawMessage]
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	return env
}

func TestStatus(t *testing.T) {
	env := newTestEnv(t)
	status, err := env.client.GetStatus(context.Background())
	if err != nil {
		t.Fatalf("GetStatus() error = %v", err)
	}
	if !status.Connected {
		t.Error("Connected = false, want true")
	}
	if status.Connection != "alice@files.example.com" {
		t.Errorf("Connection = %q, want alice@files.example.com", status.Connection)
	}
	if status.DownloadDir != env.downloadDir {
		t.Errorf("DownloadDir = %q, want %q", status.DownloadDir, env.downloadDir)
	}
}

func TestRemoteListDefaultsToRoot(t *testing.T) {
	env := newTestEnv(t)
	resp, err := http.Get(env.http.URL + "/api/remote/list")
	if err != nil {
		t.Fatal(err)
	}
	body := decode(t, resp)
	if !body.Success {
		t.Fatalf("Success = false, error = %+v", body.Error)
	}

	var entries []models.FileEntry
	if err := json.Unmarshal(body.Data, &entries); err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Path != "/data" || !entries[0].IsDir {
		t.Errorf("entries = %+v, want [/data]", entries)
	}
}

func TestRemoteListErrors(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name     string
		path     string
		wantKind api.Kind
	}{
		{"missing directory", "/nope", api.KindNotFound},
		{"file", "/data/report.csv", api.KindInvalid},
		{"relative path", "data", api.KindInvalid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.client.List(context.Background(), models.DomainRemote, tt.path)
			if !api.IsKind(err, tt.wantKind) {
				t.Errorf("List(%q) error = %v, want %s", tt.path, err, tt.wantKind)
			}
		})
	}
}

func TestRemoteListPermissionDenied(t *testing.T) {
	env := newTestEnv(t)
	env.fs.err["List"] = cloud.ErrPermission

	resp, err := http.Get(env.http.URL + "/api/remote/list?path=/data")
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("status = %d, want 403", resp.StatusCode)
	}
	body := decode(t, resp)
	if body.Error == nil || body.Error.Code != api.CodePermissionDenied {
		t.Errorf("error = %+v, want code %s", body.Error, api.CodePermissionDenied)
	}
}

func TestLocalList(t *testing.T) {
	env := newTestEnv(t)
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, ".hidden"), []byte("x"), 0o644)
	os.Mkdir(filepath.Join(dir, "sub"), 0o755)

	entries, err := env.client.List(context.Background(), models.DomainLocal, dir)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(entries) != 2 {
		t.Errorf("got %d entries, want 2 (hidden files included)", len(entries))
	}

	_, err = env.client.List(context.Background(), models.DomainLocal, filepath.Join(dir, "missing"))
	if !api.IsKind(err, api.KindNotFound) {
		t.Errorf("List(missing) error = %v, want NotFound", err)
	}
}

func TestMkdirRenameDelete(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	if err := env.client.Mkdir(ctx, "/data/logs/2024"); err != nil {
		t.Fatalf("Mkdir() error = %v", err)
	}
	if !env.fs.exists("/data/logs") || !env.fs.exists("/data/logs/2024") {
		t.Error("Mkdir did not create missing parents")
	}

	if err := env.client.Rename(ctx, "/data/report.csv", "/data/final.csv"); err != nil {
		t.Fatalf("Rename() error = %v", err)
	}
	if !env.fs.exists("/data/final.csv") || env.fs.exists("/data/report.csv") {
		t.Errorf("after rename: %v", env.fs.sortedKeys())
	}

	if err := env.client.Delete(ctx, "/data"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if env.fs.exists("/data/final.csv") || env.fs.exists("/data/logs") {
		t.Error("Delete did not remove the directory tree")
	}
}

func TestRenameConflict(t *testing.T) {
	env := newTestEnv(t)
	env.fs.mkfile("/data/taken.csv", "")

	err := env.client.Rename(context.Background(), "/data/report.csv", "/data/taken.csv")
	if !api.IsKind(err, api.KindConflict) {
		t.Errorf("Rename() error = %v, want Conflict", err)
	}
	if env.fs.content("/data/report.csv") != "a,b,c\n" {
		t.Error("source changed by a failed rename")
	}
}

func TestDeleteRootIsRejected(t *testing.T) {
	env := newTestEnv(t)
	err := env.client.Delete(context.Background(), "/")
	if !api.IsKind(err, api.KindInvalid) {
		t.Errorf("Delete(/) error = %v, want Invalid", err)
	}
	if !env.fs.exists("/data") {
		t.Error("root contents removed")
	}
}

func TestDownload(t *testing.T) {
	env := newTestEnv(t)

	localPath, err := env.client.Download(context.Background(), "/data/report.csv")
	if err != nil {
		t.Fatalf("Download() error = %v", err)
	}
	want := filepath.Join(env.downloadDir, "report.csv")
	if localPath != want {
		t.Errorf("localPath = %q, want %q", localPath, want)
	}
	data, err := os.ReadFile(localPath)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "a,b,c\n" {
		t.Errorf("content = %q", data)
	}
}

func TestDownloadErrors(t *testing.T) {
	env := newTestEnv(t)

	if _, err := env.client.Download(context.Background(), "/data"); !api.IsKind(err, api.KindInvalid) {
		t.Errorf("Download(dir) error = %v, want Invalid", err)
	}
	if _, err := env.client.Download(context.Background(), "/data/missing"); !api.IsKind(err, api.KindNotFound) {
		t.Errorf("Download(missing) error = %v, want NotFound", err)
	}
}

func TestUpload(t *testing.T) {
	env := newTestEnv(t)
	local := filepath.Join(t.TempDir(), "notes.txt")
	if err := os.WriteFile(local, []byte("hello"), 0o644); err != nil {
		t.Fatal(err)
	}

	remote, err := env.client.Upload(context.Background(), local, "/data")
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	if remote != "/data/notes.txt" {
		t.Errorf("remotePath = %q, want /data/notes.txt", remote)
	}
	if got := env.fs.content("/data/notes.txt"); got != "hello" {
		t.Errorf("uploaded content = %q, want hello", got)
	}
}

func TestUploadWithoutFile(t *testing.T) {
	env := newTestEnv(t)
	resp, err := http.Post(env.http.URL+"/api/remote/upload?path=/data", "text/plain", strings.NewReader("x"))
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
	body := decode(t, resp)
	if body.Success || body.Error == nil || body.Error.Code != api.CodeInvalidRequest {
		t.Errorf("envelope = %+v", body)
	}
}

func TestRequestIDHeader(t *testing.T) {
	env := newTestEnv(t)

	req, _ := http.NewRequest(http.MethodGet, env.http.URL+"/api/status", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if got := resp.Header.Get("X-Request-ID"); got != "abc-123" {
		t.Errorf("X-Request-ID = %q, want abc-123", got)
	}

	resp, err = http.Get(env.http.URL + "/api/status")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.Header.Get("X-Request-ID") == "" {
		t.Error("no request ID assigned")
	}
}

func TestShutdownSignalsOnce(t *testing.T) {
	env := newTestEnv(t)

	for i := 0; i < 2; i++ {
		if err := env.client.Shutdown(context.Background()); err != nil {
			t.Fatalf("Shutdown() #%d error = %v", i+1, err)
		}
	}
	select {
	case <-env.server.ShutdownRequested():
	case <-time.After(time.Second):
		t.Fatal("shutdown channel not closed")
	}
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t)
	env.client.GetStatus(context.Background())

	resp, err := http.Get(env.http.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
}

func TestServeStopsOnShutdownRequest(t *testing.T) {
	srv := New(newMemFS(), t.TempDir(), nil)
	done := make(chan error, 1)
	go func() { done <- srv.Serve(context.Background(), "127.0.0.1:0", time.Second) }()

	srv.RequestShutdown()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Serve() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after shutdown request")
	}
}
