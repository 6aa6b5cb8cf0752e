package vault

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List all vaults",
	Long: `List all vaults known to the CaskFS daemon.

Examples:
  # List vaults as table
  caskfs vault list

  # List as JSON
  caskfs vault list -o json`,
	RunE: runList,
}

func runList(cmd *cobra.Command, args []string) error {
	client, err := getClient()
	if err != nil {
		return err
	}

	vaults, err := client.ListVaults()
	if err != nil {
		return fmt.Errorf("failed to list vaults: %w", err)
	}

	return printOutput(os.Stdout, vaults, len(vaults) == 0, "No vaults found. Create one with 'caskfs vault create'.", VaultList(vaults))
}
