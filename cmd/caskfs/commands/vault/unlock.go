package vault

import (
	"fmt"

	"github.com/caskfs/caskfs/internal/cli/prompt"
	"github.com/caskfs/caskfs/internal/keychain"
	"github.com/caskfs/caskfs/pkg/apiclient"
	"github.com/spf13/cobra"
)

var (
	unlockSavePassphrase bool
	unlockNoKeychain     bool
	unlockAndMount       bool
)

var unlockCmd = &cobra.Command{
	Use:   "unlock [vault]",
	Short: "Unlock a vault",
	Long: `Unlock a vault so its decrypted contents are served locally.

Without an argument, an interactive picker lists the locked vaults. The
passphrase is taken from the OS keychain when one was stored, otherwise
you are prompted for it.

Examples:
  # Unlock interactively
  caskfs vault unlock

  # Unlock a specific vault
  caskfs vault unlock personal

  # Unlock, remember the passphrase, and mount in one go
  caskfs vault unlock personal --save-passphrase --mount`,
	Args: cobra.MaximumNArgs(1),
	RunE: runUnlock,
}

func init() {
	unlockCmd.Flags().BoolVar(&unlockSavePassphrase, "save-passphrase", false, "Store the passphrase in the OS keychain on success")
	unlockCmd.Flags().BoolVar(&unlockNoKeychain, "no-keychain", false, "Ignore any passphrase stored in the OS keychain")
	unlockCmd.Flags().BoolVar(&unlockAndMount, "mount", false, "Mount the vault after unlocking")
}

func runUnlock(cmd *cobra.Command, args []string) error {
	client, err := getClient()
	if err != nil {
		return err
	}

	var target *apiclient.Vault
	if len(args) == 1 {
		target, err = resolveVault(client, args[0])
	} else {
		target, err = pickLockedVault(client)
	}
	if err != nil {
		return err
	}

	// Try the keychain first, fall back to prompting
	passphrase := ""
	fromKeychain := false
	if !unlockNoKeychain {
		if stored, err := keychain.GetPassphrase(target.ID); err == nil {
			passphrase = stored
			fromKeychain = true
		}
	}
	if passphrase == "" {
		passphrase, err = prompt.Password(fmt.Sprintf("Passphrase for %q", target.MountName))
		if err != nil {
			if prompt.IsAborted(err) {
				return fmt.Errorf("aborted")
			}
			return err
		}
	}

	v, err := client.UnlockVault(target.ID, passphrase)
	if err != nil {
		if apiclient.IsWrongPassphrase(err) {
			if fromKeychain {
				// The stored passphrase is stale; drop it
				_ = keychain.DeletePassphrase(target.ID)
				return fmt.Errorf("stored passphrase for %q is no longer valid and was removed from the keychain; run unlock again", target.MountName)
			}
			return fmt.Errorf("wrong passphrase for %q", target.MountName)
		}
		return fmt.Errorf("failed to unlock vault: %w", err)
	}

	if unlockSavePassphrase && !fromKeychain {
		if err := keychain.SavePassphrase(v.ID, passphrase); err != nil {
			fmt.Printf("Warning: could not store passphrase in keychain: %v\n", err)
		}
	}

	if unlockAndMount {
		v, err = client.MountVault(v.ID)
		if err != nil {
			return fmt.Errorf("vault unlocked but mount failed: %w", err)
		}
		return printVaultWithSuccess(v, fmt.Sprintf("Vault %q unlocked and mounted at %s", v.MountName, v.Mountpoint))
	}

	return printVaultWithSuccess(v, fmt.Sprintf("Vault %q unlocked, serving at %s", v.MountName, v.ServerURL))
}

// pickLockedVault presents an interactive selection of locked vaults.
func pickLockedVault(client *apiclient.Client) (*apiclient.Vault, error) {
	vaults, err := client.ListVaults()
	if err != nil {
		return nil, fmt.Errorf("failed to list vaults: %w", err)
	}

	byID := make(map[string]apiclient.Vault)
	var options []prompt.SelectOption
	for _, v := range vaults {
		if v.Unlocked {
			continue
		}
		byID[v.ID] = v
		options = append(options, prompt.SelectOption{
			Label:       v.MountName,
			Value:       v.ID,
			Description: v.Path,
		})
	}
	if len(options) == 0 {
		return nil, fmt.Errorf("no locked vaults")
	}

	id, err := prompt.Select("Select a vault to unlock", options)
	if err != nil {
		if prompt.IsAborted(err) {
			return nil, fmt.Errorf("aborted")
		}
		return nil, err
	}

	v := byID[id]
	return &v, nil
}
