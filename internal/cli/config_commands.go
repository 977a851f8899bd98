package cli

import (
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/rescale/dualpane/internal/config"
)

// newConfigCmd creates the 'config' command group.
func newConfigCmd() *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Manage dualpane configuration",
		Long: `Configuration management commands for dualpane.

Commands:
  init  - Interactive configuration setup
  show  - Display current configuration
  path  - Show configuration file path`,
	}

	configCmd.AddCommand(newConfigInitCmd())
	configCmd.AddCommand(newConfigShowCmd())
	configCmd.AddCommand(newConfigPathCmd())

	return configCmd
}

// configPath returns --config or the default location.
func configPath() (string, error) {
	if cfgFile != "" {
		return cfgFile, nil
	}
	return config.DefaultConfigPath()
}

// newConfigInitCmd creates the 'config init' command.
func newConfigInitCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize configuration interactively",
		Long: `Interactive configuration setup for dualpane.

Passwords and access keys are never written to the file. Supply them with
--password, a prompt, or the DUALPANE_SFTP_PASSWORD, AWS_ACCESS_KEY_ID /
AWS_SECRET_ACCESS_KEY and AZURE_STORAGE_KEY environment variables.

Use --force to overwrite existing configuration.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := configPath()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			if !force {
				if _, err := os.Stat(path); err == nil {
					fmt.Fprintf(out, "Configuration already exists at: %s\n", path)
					fmt.Fprintln(out, "Use --force to overwrite or run 'config show' to view current config.")
					return nil
				}
			}

			fmt.Fprintln(out, "dualpane Configuration Setup")
			fmt.Fprintln(out, "============================")
			fmt.Fprintln(out)

			cfg, err := runConfigWizard(newPrompter(cmd.InOrStdin(), out), config.NewConfig())
			if err != nil {
				return err
			}
			if err := config.Save(cfg, path); err != nil {
				return err
			}

			fmt.Fprintf(out, "\nConfiguration saved to: %s\n", path)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "Overwrite existing configuration")
	return cmd
}

// runConfigWizard asks for every persisted setting, offering cfg's values
// as defaults.
func runConfigWizard(p *prompter, cfg *config.Config) (*config.Config, error) {
	var err error
	ask := func(label string, dst *string) {
		if err == nil {
			*dst, err = p.ask(label, *dst)
		}
	}
	askInt := func(label string, dst *int) {
		if err != nil {
			return
		}
		var s string
		s, err = p.ask(label, strconv.Itoa(*dst))
		if err == nil {
			if v, convErr := strconv.Atoi(s); convErr == nil && v > 0 {
				*dst = v
			}
		}
	}

	fmt.Fprintln(p.out, "Shell")
	fmt.Fprintln(p.out, "-----")
	ask("Backend URL", &cfg.BackendURL)

	fmt.Fprintln(p.out)
	fmt.Fprintln(p.out, "Backend server")
	fmt.Fprintln(p.out, "--------------")
	ask("Listen address", &cfg.Server.Listen)
	ask("Download directory", &cfg.Server.DownloadDir)
	ask("Storage (sftp, s3, azure)", &cfg.Server.Storage)
	if err != nil {
		return nil, err
	}

	fmt.Fprintln(p.out)
	switch cfg.Server.Storage {
	case config.StorageS3:
		ask("S3 bucket", &cfg.S3.Bucket)
		ask("S3 region", &cfg.S3.Region)
		ask("Key prefix (optional)", &cfg.S3.Prefix)
		ask("Endpoint for S3-compatible stores (optional)", &cfg.S3.Endpoint)
	case config.StorageAzure:
		ask("Storage account", &cfg.Azure.Account)
		ask("Container", &cfg.Azure.Container)
		ask("Blob prefix (optional)", &cfg.Azure.Prefix)
	default:
		ask("SFTP host", &cfg.SFTP.Host)
		askInt("SFTP port", &cfg.SFTP.Port)
		ask("SFTP user", &cfg.SFTP.User)
		ask("Private key file (optional)", &cfg.SFTP.KeyPath)
		ask("known_hosts file (optional)", &cfg.SFTP.KnownHosts)
	}
	ask("Log level", &cfg.Logging.Level)
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// newConfigShowCmd creates the 'config show' command.
func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Display current configuration",
		Long:  `Display the effective configuration. Secrets are shown only as set or not set.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			printConfig(cmd.OutOrStdout(), cfg)
			return nil
		},
	}
}

func printConfig(w io.Writer, cfg *config.Config) {
	secret := func(v string) string {
		if v == "" {
			return "(not set)"
		}
		return "(set)"
	}

	fmt.Fprintln(w, "[backend]")
	fmt.Fprintf(w, "  url:                     %s\n", cfg.BackendURL)
	fmt.Fprintf(w, "  request_timeout_seconds: %d\n", cfg.RequestTimeoutSeconds)
	fmt.Fprintf(w, "  proxy_mode:              %s\n", cfg.ProxyMode)
	if cfg.ProxyHost != "" {
		fmt.Fprintf(w, "  proxy:                   %s:%d\n", cfg.ProxyHost, cfg.ProxyPort)
	}

	fmt.Fprintln(w, "[server]")
	fmt.Fprintf(w, "  listen:       %s\n", cfg.Server.Listen)
	fmt.Fprintf(w, "  download_dir: %s\n", cfg.Server.DownloadDir)
	fmt.Fprintf(w, "  storage:      %s\n", cfg.Server.Storage)

	switch cfg.Server.Storage {
	case config.StorageS3:
		fmt.Fprintln(w, "[s3]")
		fmt.Fprintf(w, "  bucket:   %s\n", cfg.S3.Bucket)
		fmt.Fprintf(w, "  region:   %s\n", cfg.S3.Region)
		fmt.Fprintf(w, "  prefix:   %s\n", cfg.S3.Prefix)
		fmt.Fprintf(w, "  endpoint: %s\n", cfg.S3.Endpoint)
		fmt.Fprintf(w, "  keys:     %s\n", secret(cfg.S3.AccessKeyID))
	case config.StorageAzure:
		fmt.Fprintln(w, "[azure]")
		fmt.Fprintf(w, "  account:     %s\n", cfg.Azure.Account)
		fmt.Fprintf(w, "  container:   %s\n", cfg.Azure.Container)
		fmt.Fprintf(w, "  prefix:      %s\n", cfg.Azure.Prefix)
		fmt.Fprintf(w, "  account_key: %s\n", secret(cfg.Azure.AccountKey))
	default:
		fmt.Fprintln(w, "[sftp]")
		fmt.Fprintf(w, "  host:        %s\n", cfg.SFTP.Host)
		fmt.Fprintf(w, "  port:        %d\n", cfg.SFTP.Port)
		fmt.Fprintf(w, "  user:        %s\n", cfg.SFTP.User)
		fmt.Fprintf(w, "  key_path:    %s\n", cfg.SFTP.KeyPath)
		fmt.Fprintf(w, "  known_hosts: %s\n", cfg.SFTP.KnownHosts)
		fmt.Fprintf(w, "  password:    %s\n", secret(cfg.SFTP.Password))
	}

	fmt.Fprintln(w, "[logging]")
	fmt.Fprintf(w, "  level: %s\n", cfg.Logging.Level)
	fmt.Fprintf(w, "  file:  %s\n", cfg.Logging.File)
}

// newConfigPathCmd creates the 'config path' command.
func newConfigPathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Show configuration file path",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := configPath()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	}
}
