package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rescale/dualpane/internal/cloud/providers"
	"github.com/rescale/dualpane/internal/config"
	"github.com/rescale/dualpane/internal/constants"
	"github.com/rescale/dualpane/internal/logging"
	"github.com/rescale/dualpane/internal/pathutil"
	"github.com/rescale/dualpane/internal/server"
)

type serveFlags struct {
	listen      string
	downloadDir string
	storage     string

	host     string
	port     int
	user     string
	password string
	keyPath  string

	bucket    string
	region    string
	container string
	account   string
}

func newServeCmd() *cobra.Command {
	var f serveFlags

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Connect to the remote store and start the backend API",
		Long: `Connect to the configured remote store and serve the backend API.

The session ends on Ctrl+C or when a client calls POST /api/shutdown.

Examples:
  dualpane serve --host files.example.com --user alice --key ~/.ssh/id_ed25519
  dualpane serve --storage s3 --bucket team-data --region eu-west-1
  dualpane serve --storage azure --account teamstore --container shared`,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := logging.NewLogger(logging.ModeServer, nil)
			cfg, err := loadConfig(logger)
			if err != nil {
				return err
			}
			f.apply(cmd, cfg)

			if cfg.Server.Storage == config.StorageSFTP && cfg.SFTP.Password == "" && cfg.SFTP.KeyPath == "" && stdinIsTerminal() {
				pw, err := readPassword(fmt.Sprintf("Password for %s@%s: ", cfg.SFTP.User, cfg.SFTP.Host))
				if err != nil {
					return err
				}
				cfg.SFTP.Password = pw
			}
			if err := cfg.ValidateServer(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}

			downloadDir, err := pathutil.ResolveAbsolutePath(cfg.Server.DownloadDir)
			if err != nil {
				return fmt.Errorf("invalid download directory: %w", err)
			}
			if err := os.MkdirAll(downloadDir, 0o755); err != nil {
				return fmt.Errorf("failed to create download directory: %w", err)
			}

			ctx := GetContext()
			logger.Info().Str("storage", cfg.Server.Storage).Msg("connecting to remote store")
			remote, err := providers.New(ctx, cfg)
			if err != nil {
				return fmt.Errorf("failed to connect: %w", err)
			}
			logger.Info().Str("connection", remote.ConnectionInfo()).Msg("connected")

			srv := server.New(remote, downloadDir, logger)
			defer func() {
				if err := srv.Close(); err != nil {
					logger.Warn().Err(err).Msg("failed to close remote connection")
				}
				logger.Close()
			}()

			fmt.Fprintf(cmd.OutOrStdout(), "\n  dualpane backend is running on %s\n", cfg.Server.Listen)
			fmt.Fprintf(cmd.OutOrStdout(), "  Connect with: dualpane shell --backend %s\n\n", backendURLFor(cfg.Server.Listen))

			return srv.Serve(ctx, cfg.Server.Listen, constants.ShutdownTimeout)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&f.listen, "listen", "", "Listen address (default "+constants.DefaultListenAddr+")")
	flags.StringVar(&f.downloadDir, "download-dir", "", "Directory downloads are written to (default ~/"+constants.DefaultDownloadDirName+")")
	flags.StringVar(&f.storage, "storage", "", "Remote store: sftp, s3 or azure (default sftp)")
	flags.StringVar(&f.host, "host", "", "SFTP host")
	flags.IntVar(&f.port, "port", constants.DefaultSFTPPort, "SFTP port")
	flags.StringVar(&f.user, "user", "", "SFTP user")
	flags.StringVar(&f.password, "password", "", "SFTP password (prompted when neither --password nor --key is set)")
	flags.StringVar(&f.keyPath, "key", "", "SFTP private key file")
	flags.StringVar(&f.bucket, "bucket", "", "S3 bucket")
	flags.StringVar(&f.region, "region", "", "S3 region")
	flags.StringVar(&f.container, "container", "", "Azure container")
	flags.StringVar(&f.account, "account", "", "Azure storage account")

	return cmd
}

// apply overrides cfg with the flags given on the command line.
func (f *serveFlags) apply(cmd *cobra.Command, cfg *config.Config) {
	changed := cmd.Flags().Changed
	set := func(name string, dst *string, v string) {
		if changed(name) {
			*dst = v
		}
	}

	set("listen", &cfg.Server.Listen, f.listen)
	set("download-dir", &cfg.Server.DownloadDir, f.downloadDir)
	set("storage", &cfg.Server.Storage, f.storage)
	set("host", &cfg.SFTP.Host, f.host)
	set("user", &cfg.SFTP.User, f.user)
	set("password", &cfg.SFTP.Password, f.password)
	set("key", &cfg.SFTP.KeyPath, f.keyPath)
	set("bucket", &cfg.S3.Bucket, f.bucket)
	set("region", &cfg.S3.Region, f.region)
	set("container", &cfg.Azure.Container, f.container)
	set("account", &cfg.Azure.Account, f.account)
	cfg.Server.Storage = strings.ToLower(cfg.Server.Storage)
	if changed("port") {
		cfg.SFTP.Port = f.port
	}
}

// backendURLFor turns a listen address into a URL a local shell can use.
func backendURLFor(listen string) string {
	if len(listen) > 0 && listen[0] == ':' {
		return "http://localhost" + listen
	}
	return "http://" + listen
}
