package vault

import (
	"fmt"

	"github.com/caskfs/caskfs/internal/cli/prompt"
	"github.com/caskfs/caskfs/internal/keychain"
	"github.com/spf13/cobra"
)

var createSavePassphrase bool

var createCmd = &cobra.Command{
	Use:   "create <path>",
	Short: "Create a new vault",
	Long: `Create a new encrypted vault at the given path.

The path must end in .cask and must not already exist. You will be prompted
for a passphrase; losing it means losing access to the vault's contents.

Examples:
  # Create a vault
  caskfs vault create ~/Vaults/personal.cask

  # Create and remember the passphrase in the OS keychain
  caskfs vault create ~/Vaults/personal.cask --save-passphrase`,
	Args: cobra.ExactArgs(1),
	RunE: runCreate,
}

func init() {
	createCmd.Flags().BoolVar(&createSavePassphrase, "save-passphrase", false, "Store the passphrase in the OS keychain")
}

func runCreate(cmd *cobra.Command, args []string) error {
	client, err := getClient()
	if err != nil {
		return err
	}

	passphrase, err := prompt.NewPassphrase()
	if err != nil {
		if prompt.IsAborted(err) {
			return fmt.Errorf("aborted")
		}
		return err
	}

	v, err := client.CreateVault(args[0], passphrase)
	if err != nil {
		return fmt.Errorf("failed to create vault: %w", err)
	}

	if createSavePassphrase {
		if err := keychain.SavePassphrase(v.ID, passphrase); err != nil {
			// The vault exists either way; keychain failure is not fatal
			fmt.Printf("Warning: could not store passphrase in keychain: %v\n", err)
		}
	}

	return printVaultWithSuccess(v, fmt.Sprintf("Vault %q created at %s", v.MountName, v.Path))
}
