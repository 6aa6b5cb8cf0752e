package vault

import (
	"fmt"

	"github.com/caskfs/caskfs/pkg/apiclient"
	"github.com/spf13/cobra"
)

var lockAll bool

var lockCmd = &cobra.Command{
	Use:   "lock [vault]",
	Short: "Lock a vault",
	Long: `Lock a vault, erasing its keys from memory.

If the vault is mounted it is unmounted first. Locking an already locked
vault is a no-op.

Examples:
  caskfs vault lock personal

  # Lock every unlocked vault
  caskfs vault lock --all`,
	Args: cobra.MaximumNArgs(1),
	RunE: runLock,
}

func init() {
	lockCmd.Flags().BoolVar(&lockAll, "all", false, "Lock all unlocked vaults")
}

func runLock(cmd *cobra.Command, args []string) error {
	client, err := getClient()
	if err != nil {
		return err
	}

	if lockAll {
		if len(args) != 0 {
			return fmt.Errorf("cannot combine --all with a vault argument")
		}
		return lockAllVaults(client)
	}

	if len(args) != 1 {
		return fmt.Errorf("vault argument required (or use --all)")
	}

	v, err := resolveVault(client, args[0])
	if err != nil {
		return err
	}

	locked, err := client.LockVault(v.ID)
	if err != nil {
		return fmt.Errorf("failed to lock vault: %w", err)
	}

	return printVaultWithSuccess(locked, fmt.Sprintf("Vault %q locked", locked.MountName))
}

func lockAllVaults(client *apiclient.Client) error {
	vaults, err := client.ListVaults()
	if err != nil {
		return fmt.Errorf("failed to list vaults: %w", err)
	}

	var locked int
	for _, v := range vaults {
		if !v.Unlocked {
			continue
		}
		if _, err := client.LockVault(v.ID); err != nil {
			return fmt.Errorf("failed to lock vault %q: %w", v.MountName, err)
		}
		locked++
	}

	printSuccess(fmt.Sprintf("Locked %d vault(s)", locked))
	return nil
}
