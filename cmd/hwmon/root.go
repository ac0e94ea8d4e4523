package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nmslite/hwmon/internal/auth"
	"github.com/nmslite/hwmon/internal/config"
	"github.com/nmslite/hwmon/internal/version"
)

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:   "hwmon",
		Short: "Hardware monitoring agent",
		Long: `hwmon probes servers, switches and storage systems over SNMP, SSH,
WinRM, HTTP and local commands, following connector definitions that describe
each device model, and exports the discovered hardware as metrics.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "path to the configuration file")
	root.CompletionOptions.DisableDefaultCmd = true
	root.SetVersionTemplate(fmt.Sprintf("hwmon version %s\n", version.Version))

	load := func() (*config.Config, error) {
		return config.Load(configPath)
	}

	root.AddCommand(
		newRunCmd(load),
		newConfigCmd(load),
		newConnectorsCmd(load),
		newEncryptCmd(load),
		newTokenCmd(load),
	)
	return root
}

type loadFunc func() (*config.Config, error)

func newAuthService(cfg *config.Config) (*auth.Service, error) {
	return auth.NewService(
		cfg.Auth.JWTSecret,
		cfg.Auth.EncryptionKey,
		cfg.Auth.AdminUsername,
		cfg.Auth.AdminPassword,
		cfg.Auth.JWTExpiry(),
	)
}
