package vault

import (
	"fmt"

	"github.com/spf13/cobra"
)

var mountCmd = &cobra.Command{
	Use:   "mount <vault>",
	Short: "Mount an unlocked vault",
	Long: `Mount an unlocked vault into the local filesystem.

The vault's decrypted contents become reachable at the reported
mountpoint until the vault is unmounted or locked.

Examples:
  caskfs vault mount personal`,
	Args: cobra.ExactArgs(1),
	RunE: runMount,
}

func runMount(cmd *cobra.Command, args []string) error {
	client, err := getClient()
	if err != nil {
		return err
	}

	v, err := resolveVault(client, args[0])
	if err != nil {
		return err
	}

	mounted, err := client.MountVault(v.ID)
	if err != nil {
		return fmt.Errorf("failed to mount vault: %w", err)
	}

	return printVaultWithSuccess(mounted, fmt.Sprintf("Vault %q mounted at %s", mounted.MountName, mounted.Mountpoint))
}
