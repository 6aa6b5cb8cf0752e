package commands

import (
	"fmt"

	"github.com/caskfs/caskfs/pkg/config"
	"github.com/spf13/cobra"
)

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a sample configuration file",
	Long: `Initialize a sample CaskFS configuration file.

By default, the configuration file is created at $XDG_CONFIG_HOME/caskfs/config.yaml.
Use --config to specify a custom path.

Examples:
  # Initialize with default location
  caskfs init

  # Initialize with custom path
  caskfs init --config /etc/caskfs/config.yaml

  # Force overwrite existing config
  caskfs init --force`,
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "Force overwrite existing config file")
}

func runInit(cmd *cobra.Command, args []string) error {
	configFile := GetConfigFile()

	var configPath string
	var err error

	if configFile != "" {
		// Use custom path
		err = config.InitConfigToPath(configFile, initForce)
		configPath = configFile
	} else {
		// Use default path
		configPath, err = config.InitConfig(initForce)
	}

	if err != nil {
		return fmt.Errorf("failed to initialize config: %w", err)
	}

	fmt.Printf("Configuration file created at: %s\n", configPath)
	fmt.Println("\nNext steps:")
	fmt.Println("  1. Edit the configuration file to customize your setup")
	fmt.Println("  2. Start the daemon with: caskfs start")
	fmt.Println("  3. Create your first vault: caskfs vault create ~/Vaults/personal.cask")

	return nil
}
