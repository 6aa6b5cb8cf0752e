package vault

import (
	"fmt"

	"github.com/spf13/cobra"
)

var unmountCmd = &cobra.Command{
	Use:   "unmount <vault>",
	Short: "Unmount a mounted vault",
	Long: `Unmount a vault from the local filesystem.

The vault stays unlocked and keeps serving its decrypted contents; only
the OS mount is removed. Unmounting a vault that is not mounted is a
no-op.

Examples:
  caskfs vault unmount personal`,
	Args: cobra.ExactArgs(1),
	RunE: runUnmount,
}

func runUnmount(cmd *cobra.Command, args []string) error {
	client, err := getClient()
	if err != nil {
		return err
	}

	v, err := resolveVault(client, args[0])
	if err != nil {
		return err
	}

	unmounted, err := client.UnmountVault(v.ID)
	if err != nil {
		return fmt.Errorf("failed to unmount vault: %w", err)
	}

	return printVaultWithSuccess(unmounted, fmt.Sprintf("Vault %q unmounted", unmounted.MountName))
}
