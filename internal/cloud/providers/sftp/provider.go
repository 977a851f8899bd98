// Package sftp serves a session's remote side over SFTP.
package sftp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path"
	"strconv"

	"github.com/pkg/sftp"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/rescale/dualpane/internal/cloud"
	"github.com/rescale/dualpane/internal/config"
	"github.com/rescale/dualpane/internal/constants"
	"github.com/rescale/dualpane/internal/models"
	"github.com/rescale/dualpane/internal/pathutil"
)

// Provider is a cloud.RemoteFS backed by an SFTP session.
type Provider struct {
	sshClient  *ssh.Client
	sftpClient *sftp.Client
	info       string
}

// Dial opens an SSH connection and an SFTP session on top of it.
func Dial(ctx context.Context, cfg config.SFTPConfig) (*Provider, error) {
	auth, err := authMethods(cfg)
	if err != nil {
		return nil, err
	}

	hostKeyCallback := ssh.InsecureIgnoreHostKey()
	if cfg.KnownHosts != "" {
		knownHostsPath, err := pathutil.ResolveAbsolutePath(cfg.KnownHosts)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve known_hosts path: %w", err)
		}
		hostKeyCallback, err = knownhosts.New(knownHostsPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load known_hosts: %w", err)
		}
	} else {
		log.Warn().Str("host", cfg.Host).Msg("host key checking disabled, set known_hosts to enable it")
	}

	sshCfg := &ssh.ClientConfig{
		User:            cfg.User,
		Auth:            auth,
		HostKeyCallback: hostKeyCallback,
		Timeout:         constants.SSHDialTimeout,
	}

	port := cfg.Port
	if port == 0 {
		port = constants.DefaultSFTPPort
	}
	addr := net.JoinHostPort(cfg.Host, strconv.Itoa(port))

	dialer := net.Dialer{Timeout: constants.SSHDialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", addr, err)
	}
	c, chans, reqs, err := ssh.NewClientConn(conn, addr, sshCfg)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("ssh handshake with %s failed: %w", addr, err)
	}
	sshClient := ssh.NewClient(c, chans, reqs)

	sftpClient, err := sftp.NewClient(sshClient)
	if err != nil {
		sshClient.Close()
		return nil, fmt.Errorf("failed to start sftp session: %w", err)
	}

	log.Info().Str("addr", addr).Str("user", cfg.User).Msg("sftp session established")
	return &Provider{
		sshClient:  sshClient,
		sftpClient: sftpClient,
		info:       fmt.Sprintf("%s@%s", cfg.User, cfg.Host),
	}, nil
}

// NewWithClient wraps an existing SFTP client. Close only closes the client.
func NewWithClient(client *sftp.Client, info string) *Provider {
	return &Provider{sftpClient: client, info: info}
}

func authMethods(cfg config.SFTPConfig) ([]ssh.AuthMethod, error) {
	var methods []ssh.AuthMethod
	if cfg.Password != "" {
		methods = append(methods, ssh.Password(cfg.Password))
	}
	if cfg.KeyPath != "" {
		keyPath, err := pathutil.ResolveAbsolutePath(cfg.KeyPath)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve key path: %w", err)
		}
		key, err := os.ReadFile(keyPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read private key: %w", err)
		}
		signer, err := ssh.ParsePrivateKey(key)
		if err != nil {
			return nil, fmt.Errorf("failed to parse private key: %w", err)
		}
		methods = append(methods, ssh.PublicKeys(signer))
	}
	if len(methods) == 0 {
		return nil, config.ErrMissingCredentials
	}
	return methods, nil
}

func (p *Provider) ConnectionInfo() string {
	return p.info
}

func (p *Provider) List(ctx context.Context, dir string) ([]models.FileEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	infos, err := p.sftpClient.ReadDir(dir)
	if err != nil {
		return nil, mapError("list", dir, err)
	}

	entries := make([]models.FileEntry, 0, len(infos))
	for _, fi := range infos {
		entries = append(entries, toEntry(path.Join(dir, fi.Name()), fi))
	}
	cloud.SortEntries(entries)
	return entries, nil
}

func (p *Provider) Stat(ctx context.Context, name string) (models.FileEntry, error) {
	if err := ctx.Err(); err != nil {
		return models.FileEntry{}, err
	}
	fi, err := p.sftpClient.Stat(name)
	if err != nil {
		return models.FileEntry{}, mapError("stat", name, err)
	}
	return toEntry(name, fi), nil
}

func (p *Provider) MkdirAll(ctx context.Context, dir string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return mapError("mkdir", dir, p.sftpClient.MkdirAll(dir))
}

// Rename refuses to replace an existing target; plain SFTP rename semantics
// differ between servers.
func (p *Provider) Rename(ctx context.Context, oldPath, newPath string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := p.sftpClient.Lstat(newPath); err == nil {
		return fmt.Errorf("rename %s: %w", newPath, cloud.ErrExists)
	} else if !errors.Is(err, os.ErrNotExist) {
		return mapError("rename", newPath, err)
	}
	return mapError("rename", oldPath, p.sftpClient.Rename(oldPath, newPath))
}

func (p *Provider) RemoveAll(ctx context.Context, name string) error {
	fi, err := p.sftpClient.Lstat(name)
	if err != nil {
		return mapError("delete", name, err)
	}
	if !fi.IsDir() {
		return mapError("delete", name, p.sftpClient.Remove(name))
	}
	return p.removeDir(ctx, name)
}

func (p *Provider) removeDir(ctx context.Context, dir string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	children, err := p.sftpClient.ReadDir(dir)
	if err != nil {
		return mapError("delete", dir, err)
	}
	for _, child := range children {
		childPath := path.Join(dir, child.Name())
		if child.IsDir() {
			err = p.removeDir(ctx, childPath)
		} else {
			err = mapError("delete", childPath, p.sftpClient.Remove(childPath))
		}
		if err != nil {
			return err
		}
	}
	return mapError("delete", dir, p.sftpClient.RemoveDirectory(dir))
}

func (p *Provider) Download(ctx context.Context, name, localPath string) error {
	src, err := p.sftpClient.Open(name)
	if err != nil {
		return mapError("download", name, err)
	}
	defer src.Close()

	return cloud.WriteLocalFile(ctx, localPath, src)
}

func (p *Provider) Upload(ctx context.Context, localPath, name string) error {
	src, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", localPath, err)
	}
	defer src.Close()

	dst, err := p.sftpClient.Create(name)
	if err != nil {
		return mapError("upload", name, err)
	}
	if _, err := io.Copy(dst, cloud.ContextReader(ctx, src)); err != nil {
		dst.Close()
		return mapError("upload", name, err)
	}
	return mapError("upload", name, dst.Close())
}

func (p *Provider) Close() error {
	if p.sftpClient != nil {
		p.sftpClient.Close()
	}
	if p.sshClient != nil {
		return p.sshClient.Close()
	}
	return nil
}

func toEntry(name string, fi os.FileInfo) models.FileEntry {
	return models.FileEntry{
		Name:        fi.Name(),
		Path:        name,
		Size:        fi.Size(),
		IsDir:       fi.IsDir(),
		ModTime:     fi.ModTime(),
		Permissions: fi.Mode().String(),
	}
}

// mapError translates SFTP status errors into the cloud sentinels.
func mapError(op, name string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, os.ErrNotExist):
		return fmt.Errorf("%s %s: %w", op, name, cloud.ErrNotFound)
	case errors.Is(err, os.ErrPermission):
		return fmt.Errorf("%s %s: %w", op, name, cloud.ErrPermission)
	case errors.Is(err, os.ErrExist):
		return fmt.Errorf("%s %s: %w", op, name, cloud.ErrExists)
	case errors.Is(err, sftp.ErrSSHFxConnectionLost), errors.Is(err, sftp.ErrSSHFxNoConnection), errors.Is(err, io.EOF):
		return fmt.Errorf("%s %s: %w", op, name, cloud.ErrConnectionLost)
	}
	return fmt.Errorf("%s %s: %w", op, name, err)
}

var _ cloud.RemoteFS = (*Provider)(nil)
