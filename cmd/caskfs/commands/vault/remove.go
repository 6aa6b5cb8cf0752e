package vault

import (
	"fmt"

	"github.com/caskfs/caskfs/internal/cli/prompt"
	"github.com/caskfs/caskfs/internal/keychain"
	"github.com/spf13/cobra"
)

var removeForce bool

var removeCmd = &cobra.Command{
	Use:     "remove <vault>",
	Aliases: []string{"rm"},
	Short:   "Remove a vault from the registry",
	Long: `Remove a vault from the daemon's registry.

This only forgets the vault; the encrypted directory on disk is left
untouched and can be registered again with 'caskfs vault add'. A vault
must be locked before it can be removed. Any passphrase stored in the OS
keychain is deleted.

Examples:
  caskfs vault remove personal
  caskfs vault remove personal --force`,
	Args: cobra.ExactArgs(1),
	RunE: runRemove,
}

func init() {
	removeCmd.Flags().BoolVarP(&removeForce, "force", "f", false, "Skip confirmation prompt")
}

func runRemove(cmd *cobra.Command, args []string) error {
	client, err := getClient()
	if err != nil {
		return err
	}

	v, err := resolveVault(client, args[0])
	if err != nil {
		return err
	}

	ok, err := prompt.ConfirmWithForce(fmt.Sprintf("Remove vault %q from the registry? The files at %s are kept", v.MountName, v.Path), removeForce)
	if err != nil {
		return err
	}
	if !ok {
		fmt.Println("Aborted.")
		return nil
	}

	if err := client.RemoveVault(v.ID); err != nil {
		return fmt.Errorf("failed to remove vault: %w", err)
	}

	// Best effort; there may be nothing stored
	_ = keychain.DeletePassphrase(v.ID)

	printSuccess(fmt.Sprintf("Vault %q removed from the registry", v.MountName))
	return nil
}
