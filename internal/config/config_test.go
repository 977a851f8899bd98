package config

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
)

func TestNewConfigDefaults(t *testing.T) {
	cfg := NewConfig()

	if cfg.BackendURL != "http://localhost:8080" {
		t.Errorf("BackendURL = %q, want http://localhost:8080", cfg.BackendURL)
	}
	if cfg.Server.Listen != ":8080" {
		t.Errorf("Listen = %q, want :8080", cfg.Server.Listen)
	}
	if cfg.SFTP.Port != 22 {
		t.Errorf("SFTP.Port = %d, want 22", cfg.SFTP.Port)
	}
	if cfg.Server.Storage != StorageSFTP {
		t.Errorf("Storage = %q, want %q", cfg.Server.Storage, StorageSFTP)
	}
	if !strings.HasSuffix(cfg.Server.DownloadDir, "temporary") {
		t.Errorf("DownloadDir = %q, want it to end in temporary", cfg.Server.DownloadDir)
	}
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.RequestTimeoutSeconds != 30 {
		t.Errorf("RequestTimeoutSeconds = %d, want 30", cfg.RequestTimeoutSeconds)
	}
}

func TestSaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "config")

	cfg := NewConfig()
	cfg.BackendURL = "http://backend:9000"
	cfg.ProxyMode = "basic"
	cfg.ProxyHost = "proxy.corp"
	cfg.ProxyPort = 3128
	cfg.ProxyPassword = "secret"
	cfg.Server.Storage = StorageS3
	cfg.S3.Bucket = "bucket-a"
	cfg.S3.Region = "us-west-2"
	cfg.SFTP.Host = "files.example.com"
	cfg.SFTP.Password = "hunter2"
	cfg.Logging.Level = "debug"

	if err := Save(cfg, path); err != nil {
		t.Fatalf("Save: %v", err)
	}

	if runtime.GOOS != "windows" {
		info, err := os.Stat(path)
		if err != nil {
			t.Fatalf("stat: %v", err)
		}
		if perm := info.Mode().Perm(); perm != 0600 {
			t.Errorf("permissions = %o, want 600", perm)
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if strings.Contains(string(data), "hunter2") || strings.Contains(string(data), "secret") {
		t.Error("saved config contains a password")
	}

	t.Setenv("DUALPANE_SFTP_PASSWORD", "")
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if loaded.BackendURL != cfg.BackendURL {
		t.Errorf("BackendURL = %q, want %q", loaded.BackendURL, cfg.BackendURL)
	}
	if loaded.ProxyPort != 3128 {
		t.Errorf("ProxyPort = %d, want 3128", loaded.ProxyPort)
	}
	if loaded.Server.Storage != StorageS3 || loaded.S3.Bucket != "bucket-a" {
		t.Errorf("storage = %q bucket = %q, want s3 bucket-a", loaded.Server.Storage, loaded.S3.Bucket)
	}
	if loaded.SFTP.Password != "" {
		t.Errorf("SFTP.Password = %q, want empty", loaded.SFTP.Password)
	}
	if loaded.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want debug", loaded.Logging.Level)
	}
}

func TestLoadPicksUpEnvSecrets(t *testing.T) {
	t.Setenv("DUALPANE_SFTP_PASSWORD", "from-env")
	t.Setenv("AZURE_STORAGE_KEY", "azkey")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.SFTP.Password != "from-env" {
		t.Errorf("SFTP.Password = %q, want from-env", cfg.SFTP.Password)
	}
	if cfg.Azure.AccountKey != "azkey" {
		t.Errorf("Azure.AccountKey = %q, want azkey", cfg.Azure.AccountKey)
	}
}

func TestValidateServer(t *testing.T) {
	valid := func() *Config {
		cfg := NewConfig()
		cfg.SFTP.Host = "h"
		cfg.SFTP.User = "u"
		cfg.SFTP.KeyPath = "/k"
		return cfg
	}

	tests := []struct {
		name   string
		modify func(*Config)
		want   error
	}{
		{"valid sftp", func(*Config) {}, nil},
		{"missing host", func(c *Config) { c.SFTP.Host = "" }, ErrMissingHost},
		{"missing user", func(c *Config) { c.SFTP.User = "" }, ErrMissingUser},
		{"no credentials", func(c *Config) { c.SFTP.KeyPath = "" }, ErrMissingCredentials},
		{"bad port", func(c *Config) { c.SFTP.Port = 70000 }, ErrInvalidPort},
		{"unknown storage", func(c *Config) { c.Server.Storage = "ftp" }, ErrUnknownStorage},
		{"s3 without bucket", func(c *Config) { c.Server.Storage = StorageS3 }, ErrMissingBucket},
		{"azure without container", func(c *Config) {
			c.Server.Storage = StorageAzure
			c.Azure.Account = "acct"
		}, ErrMissingContainer},
		{"no download dir", func(c *Config) { c.Server.DownloadDir = "" }, ErrMissingDownloadDir},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.modify(cfg)
			if err := cfg.ValidateServer(); !errors.Is(err, tt.want) {
				t.Errorf("ValidateServer() = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestValidateClient(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		want   error
	}{
		{"defaults", func(*Config) {}, nil},
		{"empty url", func(c *Config) { c.BackendURL = " " }, ErrMissingBackendURL},
		{"zero timeout", func(c *Config) { c.RequestTimeoutSeconds = 0 }, ErrInvalidTimeout},
		{"ntlm without host", func(c *Config) { c.ProxyMode = "ntlm" }, ErrMissingProxyHost},
		{"bogus proxy mode", func(c *Config) { c.ProxyMode = "socks" }, ErrUnknownProxyMode},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewConfig()
			tt.modify(cfg)
			if err := cfg.ValidateClient(); !errors.Is(err, tt.want) {
				t.Errorf("ValidateClient() = %v, want %v", err, tt.want)
			}
		})
	}
}
