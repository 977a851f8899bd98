// Package config provides configuration management for dualpane.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"gopkg.in/ini.v1"

	"github.com/rescale/dualpane/internal/constants"
)

// Storage backends served by the backend API
const (
	StorageSFTP  = "sftp"
	StorageS3    = "s3"
	StorageAzure = "azure"
)

// Config holds both sides of the application: where the shell finds the
// backend, and what the backend serves.
//
// INI format:
//
//	[backend]
//	url = http://localhost:8080
//	proxy_mode = no-proxy
//	request_timeout_seconds = 30
//
//	[server]
//	listen = :8080
//	download_dir = ~/temporary
//	storage = sftp
//
//	[sftp]
//	host = files.example.com
//	port = 22
//	user = alice
//	key_path = ~/.ssh/id_ed25519
//
//	[logging]
//	level = info
//	file = ~/.config/dualpane/logs/dualpane.log
type Config struct {
	// Backend connection (shell side)
	BackendURL            string
	RequestTimeoutSeconds int

	// Proxy settings for backend requests
	ProxyMode     string // "no-proxy", "system", "basic", "ntlm"
	ProxyHost     string
	ProxyPort     int
	ProxyUser     string
	ProxyPassword string // never persisted
	NoProxy       string

	Server  ServerConfig
	SFTP    SFTPConfig
	S3      S3Config
	Azure   AzureConfig
	Logging LoggingConfig
}

// ServerConfig configures the backend API.
type ServerConfig struct {
	Listen      string
	DownloadDir string
	Storage     string
}

// SFTPConfig configures the SFTP remote.
type SFTPConfig struct {
	Host       string
	Port       int
	User       string
	Password   string // never persisted
	KeyPath    string
	KnownHosts string // empty disables host key checking
}

// S3Config configures the S3 remote.
// Credentials come from the AWS default chain unless both keys are set.
type S3Config struct {
	Bucket          string
	Region          string
	Prefix          string
	Endpoint        string
	AccessKeyID     string // from AWS_ACCESS_KEY_ID, never persisted
	SecretAccessKey string // from AWS_SECRET_ACCESS_KEY, never persisted
}

// AzureConfig configures the Azure Blob remote.
type AzureConfig struct {
	Account    string
	Container  string
	Prefix     string
	ServiceURL string // overrides https://<account>.blob.core.windows.net/
	AccountKey string // from AZURE_STORAGE_KEY, never persisted
}

// LoggingConfig configures log level and optional log file.
type LoggingConfig struct {
	Level string
	File  string
}

// Validation errors
var (
	ErrMissingBackendURL  = errors.New("backend url is required")
	ErrInvalidTimeout     = errors.New("request_timeout_seconds must be between 1 and 3600")
	ErrUnknownProxyMode   = errors.New("proxy_mode must be one of no-proxy, system, basic, ntlm")
	ErrMissingProxyHost   = errors.New("proxy_host is required for basic and ntlm proxy modes")
	ErrMissingListen      = errors.New("server listen address is required")
	ErrMissingDownloadDir = errors.New("server download_dir is required")
	ErrUnknownStorage     = errors.New("server storage must be one of sftp, s3, azure")
	ErrMissingHost        = errors.New("sftp host is required")
	ErrMissingUser        = errors.New("sftp user is required")
	ErrMissingCredentials = errors.New("sftp needs a password or a key_path")
	ErrInvalidPort        = errors.New("sftp port must be between 1 and 65535")
	ErrMissingBucket      = errors.New("s3 bucket is required")
	ErrMissingAccount     = errors.New("azure account is required")
	ErrMissingContainer   = errors.New("azure container is required")
)

// NewConfig returns a Config populated with defaults.
func NewConfig() *Config {
	return &Config{
		BackendURL:            constants.DefaultBackendURL,
		RequestTimeoutSeconds: int(constants.APIContextTimeout.Seconds()),
		ProxyMode:             "no-proxy",
		Server: ServerConfig{
			Listen:      constants.DefaultListenAddr,
			DownloadDir: DefaultDownloadDir(),
			Storage:     StorageSFTP,
		},
		SFTP: SFTPConfig{
			Port: constants.DefaultSFTPPort,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from an INI file on top of the defaults.
// A missing file is not an error. Secrets are picked up from the environment.
func Load(path string) (*Config, error) {
	cfg := NewConfig()

	if path == "" {
		var err error
		path, err = DefaultConfigPath()
		if err != nil {
			cfg.applyEnv()
			return cfg, nil
		}
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg.applyEnv()
		return cfg, nil
	}

	iniFile, err := ini.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	backend := iniFile.Section("backend")
	cfg.BackendURL = backend.Key("url").MustString(cfg.BackendURL)
	cfg.RequestTimeoutSeconds = backend.Key("request_timeout_seconds").MustInt(cfg.RequestTimeoutSeconds)
	cfg.ProxyMode = backend.Key("proxy_mode").MustString(cfg.ProxyMode)
	cfg.ProxyHost = backend.Key("proxy_host").String()
	cfg.ProxyPort = backend.Key("proxy_port").MustInt(0)
	cfg.ProxyUser = backend.Key("proxy_user").String()
	cfg.NoProxy = backend.Key("no_proxy").String()

	server := iniFile.Section("server")
	cfg.Server.Listen = server.Key("listen").MustString(cfg.Server.Listen)
	cfg.Server.DownloadDir = server.Key("download_dir").MustString(cfg.Server.DownloadDir)
	cfg.Server.Storage = strings.ToLower(server.Key("storage").MustString(cfg.Server.Storage))

	sftp := iniFile.Section("sftp")
	cfg.SFTP.Host = sftp.Key("host").String()
	cfg.SFTP.Port = sftp.Key("port").MustInt(cfg.SFTP.Port)
	cfg.SFTP.User = sftp.Key("user").String()
	cfg.SFTP.KeyPath = sftp.Key("key_path").String()
	cfg.SFTP.KnownHosts = sftp.Key("known_hosts").String()

	s3 := iniFile.Section("s3")
	cfg.S3.Bucket = s3.Key("bucket").String()
	cfg.S3.Region = s3.Key("region").String()
	cfg.S3.Prefix = s3.Key("prefix").String()
	cfg.S3.Endpoint = s3.Key("endpoint").String()

	azure := iniFile.Section("azure")
	cfg.Azure.Account = azure.Key("account").String()
	cfg.Azure.Container = azure.Key("container").String()
	cfg.Azure.Prefix = azure.Key("prefix").String()
	cfg.Azure.ServiceURL = azure.Key("service_url").String()

	logging := iniFile.Section("logging")
	cfg.Logging.Level = logging.Key("level").MustString(cfg.Logging.Level)
	cfg.Logging.File = logging.Key("file").String()

	cfg.applyEnv()
	return cfg, nil
}

func (cfg *Config) applyEnv() {
	if v := os.Getenv("DUALPANE_SFTP_PASSWORD"); v != "" && cfg.SFTP.Password == "" {
		cfg.SFTP.Password = v
	}
	if v := os.Getenv("DUALPANE_PROXY_PASSWORD"); v != "" && cfg.ProxyPassword == "" {
		cfg.ProxyPassword = v
	}
	if cfg.S3.AccessKeyID == "" {
		cfg.S3.AccessKeyID = os.Getenv("AWS_ACCESS_KEY_ID")
		cfg.S3.SecretAccessKey = os.Getenv("AWS_SECRET_ACCESS_KEY")
	}
	if cfg.Azure.AccountKey == "" {
		cfg.Azure.AccountKey = os.Getenv("AZURE_STORAGE_KEY")
	}
}

// Save writes cfg to path as INI. Passwords and keys are never written.
func Save(cfg *Config, path string) error {
	if path == "" {
		var err error
		path, err = DefaultConfigPath()
		if err != nil {
			return fmt.Errorf("failed to determine config path: %w", err)
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	iniFile := ini.Empty()
	sections := []struct {
		name string
		keys [][2]string
	}{
		{"backend", [][2]string{
			{"url", cfg.BackendURL},
			{"request_timeout_seconds", fmt.Sprintf("%d", cfg.RequestTimeoutSeconds)},
			{"proxy_mode", cfg.ProxyMode},
			{"proxy_host", cfg.ProxyHost},
			{"proxy_port", fmt.Sprintf("%d", cfg.ProxyPort)},
			{"proxy_user", cfg.ProxyUser},
			{"no_proxy", cfg.NoProxy},
		}},
		{"server", [][2]string{
			{"listen", cfg.Server.Listen},
			{"download_dir", cfg.Server.DownloadDir},
			{"storage", cfg.Server.Storage},
		}},
		{"sftp", [][2]string{
			{"host", cfg.SFTP.Host},
			{"port", fmt.Sprintf("%d", cfg.SFTP.Port)},
			{"user", cfg.SFTP.User},
			{"key_path", cfg.SFTP.KeyPath},
			{"known_hosts", cfg.SFTP.KnownHosts},
		}},
		{"s3", [][2]string{
			{"bucket", cfg.S3.Bucket},
			{"region", cfg.S3.Region},
			{"prefix", cfg.S3.Prefix},
			{"endpoint", cfg.S3.Endpoint},
		}},
		{"azure", [][2]string{
			{"account", cfg.Azure.Account},
			{"container", cfg.Azure.Container},
			{"prefix", cfg.Azure.Prefix},
			{"service_url", cfg.Azure.ServiceURL},
		}},
		{"logging", [][2]string{
			{"level", cfg.Logging.Level},
			{"file", cfg.Logging.File},
		}},
	}

	for _, s := range sections {
		section, err := iniFile.NewSection(s.name)
		if err != nil {
			return fmt.Errorf("failed to create %s section: %w", s.name, err)
		}
		for _, kv := range s.keys {
			section.Key(kv[0]).SetValue(kv[1])
		}
	}

	// temp file + rename for atomicity
	tmpPath := path + ".tmp"
	if err := iniFile.SaveTo(tmpPath); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	if runtime.GOOS != "windows" {
		if err := os.Chmod(tmpPath, 0600); err != nil {
			os.Remove(tmpPath)
			return fmt.Errorf("failed to set config permissions: %w", err)
		}
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to save config: %w", err)
	}
	return nil
}

// ValidateClient checks the settings the shell needs to reach the backend.
func (cfg *Config) ValidateClient() error {
	if strings.TrimSpace(cfg.BackendURL) == "" {
		return ErrMissingBackendURL
	}
	if cfg.RequestTimeoutSeconds < 1 || cfg.RequestTimeoutSeconds > 3600 {
		return ErrInvalidTimeout
	}
	switch strings.ToLower(cfg.ProxyMode) {
	case "", "no-proxy", "system":
	case "basic", "ntlm":
		if cfg.ProxyHost == "" {
			return ErrMissingProxyHost
		}
	default:
		return ErrUnknownProxyMode
	}
	return nil
}

// ValidateServer checks the settings the backend needs to open a session.
func (cfg *Config) ValidateServer() error {
	if strings.TrimSpace(cfg.Server.Listen) == "" {
		return ErrMissingListen
	}
	if strings.TrimSpace(cfg.Server.DownloadDir) == "" {
		return ErrMissingDownloadDir
	}

	switch cfg.Server.Storage {
	case StorageSFTP:
		if cfg.SFTP.Host == "" {
			return ErrMissingHost
		}
		if cfg.SFTP.User == "" {
			return ErrMissingUser
		}
		if cfg.SFTP.Password == "" && cfg.SFTP.KeyPath == "" {
			return ErrMissingCredentials
		}
		if cfg.SFTP.Port < 1 || cfg.SFTP.Port > 65535 {
			return ErrInvalidPort
		}
	case StorageS3:
		if cfg.S3.Bucket == "" {
			return ErrMissingBucket
		}
	case StorageAzure:
		if cfg.Azure.Account == "" && cfg.Azure.ServiceURL == "" {
			return ErrMissingAccount
		}
		if cfg.Azure.Container == "" {
			return ErrMissingContainer
		}
	default:
		return ErrUnknownStorage
	}
	return nil
}
