package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rescale/dualpane/internal/api"
)

func newStatusCmd() *cobra.Command {
	var backendURL string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Print the backend session status",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := GetLogger()
			cfg, err := loadConfig(logger)
			if err != nil {
				return err
			}
			if backendURL != "" {
				cfg.BackendURL = backendURL
			}
			if err := cfg.ValidateClient(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}

			client, err := api.NewClient(cfg, logger)
			if err != nil {
				return err
			}
			status, err := client.GetStatus(GetContext())
			if err != nil {
				return fmt.Errorf("backend at %s: %w", client.BaseURL(), err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Backend:      %s\n", client.BaseURL())
			fmt.Fprintf(out, "Connected:    %t\n", status.Connected)
			fmt.Fprintf(out, "Connection:   %s\n", status.Connection)
			fmt.Fprintf(out, "Download dir: %s\n", status.DownloadDir)
			return nil
		},
	}

	cmd.Flags().StringVar(&backendURL, "backend", "", "Backend URL (default from config)")
	return cmd
}
