package vault

import (
	"fmt"

	"github.com/spf13/cobra"
)

var addCmd = &cobra.Command{
	Use:   "add <path>",
	Short: "Register an existing vault",
	Long: `Register an existing vault directory with the daemon.

The directory must contain a master key file. Use this for vaults created
on another machine or removed from the registry earlier.

Examples:
  caskfs vault add ~/Vaults/shared.cask`,
	Args: cobra.ExactArgs(1),
	RunE: runAdd,
}

func runAdd(cmd *cobra.Command, args []string) error {
	client, err := getClient()
	if err != nil {
		return err
	}

	v, err := client.AddVault(args[0])
	if err != nil {
		return fmt.Errorf("failed to add vault: %w", err)
	}

	return printVaultWithSuccess(v, fmt.Sprintf("Vault %q registered from %s", v.MountName, v.Path))
}
