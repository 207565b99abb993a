package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marmos91/fsx/pkg/config"
)

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a sample configuration file",
	Long: `Create a configuration file with default values at the default
location ($XDG_CONFIG_HOME/fsx/config.yaml).

Examples:
  # Create the default config file
  fsx init

  # Overwrite an existing config file
  fsx init --force`,
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "Overwrite an existing config file")
}

func runInit(cmd *cobra.Command, args []string) error {
	configPath, err := config.InitConfig(initForce)
	if err != nil {
		return err
	}

	fmt.Printf("Configuration file created at: %s\n", configPath)
	fmt.Println("\nNext steps:")
	fmt.Println("  1. Edit the configuration file to customize your setup")
	fmt.Println("  2. Start the server with: fsx start")
	fmt.Printf("  3. Or specify custom config: fsx start --config %s\n", configPath)
	return nil
}
