package main

import (
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/nmslite/hwmon/internal/config"
	"github.com/nmslite/hwmon/internal/connector"
)

func newConfigCmd(load loadFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the configuration",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "example",
		Short: "Print an example configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return config.DumpExampleConfig(cmd.OutOrStdout())
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate the configuration and list the expanded hosts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			hosts, err := cfg.ExpandHosts()
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tHOSTNAME\tTYPE\tPROTOCOLS")
			for _, h := range hosts {
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\n", h.ID, h.Hostname, h.Type, len(h.Protocols))
			}
			if err := w.Flush(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "configuration valid: %d hosts\n", len(hosts))
			return nil
		},
	})
	return cmd
}

func newConnectorsCmd(load loadFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "connectors",
		Short: "Load and list the connectors",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}

			logger := config.NewLogger(cfg.Logging, os.Stderr)
			store := connector.NewStore(cfg.Connectors.Directory, logger)
			if err := store.Load(); err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tAPPLIES TO\tMONITORS\tFILE")
			for _, c := range store.List() {
				fmt.Fprintf(w, "%s\t%s\t%v\t%d\t%s\n", c.ID, c.DisplayName, c.AppliesTo, len(c.Monitors), c.SourceFile)
			}
			return w.Flush()
		},
	}
}

func newEncryptCmd(load loadFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "encrypt <value>",
		Short: "Encrypt a protocol secret for the configuration file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			svc, err := newAuthService(cfg)
			if err != nil {
				return err
			}
			enc, err := svc.EncryptValue(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), enc)
			return nil
		},
	}
}

func newTokenCmd(load loadFunc) *cobra.Command {
	var username string
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue an API bearer token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			svc, err := newAuthService(cfg)
			if err != nil {
				return err
			}
			if username == "" {
				username = cfg.Auth.AdminUsername
			}
			resp, err := svc.IssueToken(username)
			if err != nil {
				return err
			}
			slog.Debug("token issued", "username", username, "expires_at", resp.ExpiresAt)
			fmt.Fprintln(cmd.OutOrStdout(), resp.Token)
			return nil
		},
	}
	cmd.Flags().StringVarP(&username, "user", "u", "", "token subject (defaults to the admin user)")
	return cmd
}
