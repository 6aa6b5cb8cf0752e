package vault

import (
	"fmt"

	"github.com/spf13/cobra"
)

var verifyCmd = &cobra.Command{
	Use:   "verify <vault> <on|off>",
	Short: "Toggle integrity verification",
	Long: `Enable or disable file integrity verification for a vault.

With verification on, file contents are authenticated while they are read
and tampered data is rejected. Turning it off trades that check for
faster reads. The setting takes effect the next time the vault is
unlocked.

Examples:
  caskfs vault verify personal on
  caskfs vault verify personal off`,
	Args: cobra.ExactArgs(2),
	RunE: runVerify,
}

func runVerify(cmd *cobra.Command, args []string) error {
	var enable bool
	switch args[1] {
	case "on", "true":
		enable = true
	case "off", "false":
		enable = false
	default:
		return fmt.Errorf("invalid value %q (use on or off)", args[1])
	}

	client, err := getClient()
	if err != nil {
		return err
	}

	v, err := resolveVault(client, args[0])
	if err != nil {
		return err
	}

	updated, err := client.SetVerifyIntegrity(v.ID, enable)
	if err != nil {
		return fmt.Errorf("failed to update vault: %w", err)
	}

	state := "disabled"
	if updated.VerifyIntegrity {
		state = "enabled"
	}
	return printVaultWithSuccess(updated, fmt.Sprintf("Integrity verification %s for %q", state, updated.MountName))
}
