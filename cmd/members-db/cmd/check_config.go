package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/approvers/members-db/pkg/config"
)

var checkConfigCmd = &cobra.Command{
	Use:   "check-config",
	Short: "Validate the configuration file",
	Long:  `Load and validate the configuration file without starting the server.`,
	RunE:  runCheckConfig,
}

func init() {
	rootCmd.AddCommand(checkConfigCmd)
}

func runCheckConfig(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	fmt.Println("Configuration is valid")
	fmt.Printf("  server:     %s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Printf("  repository: %s\n", cfg.Repository.Backend)
	fmt.Printf("  guild:      %s\n", cfg.Discord.GuildID)

	return nil
}
