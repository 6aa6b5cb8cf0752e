package vault

import (
	"fmt"

	"github.com/spf13/cobra"
)

var renameCmd = &cobra.Command{
	Use:   "rename <vault> <mount-name>",
	Short: "Change a vault's mount name",
	Long: `Change the name a vault is served and mounted under.

The name is normalized: whitespace becomes underscores and only printable
ASCII characters are kept. The vault must not be serving or mounted while
its name changes.

Examples:
  caskfs vault rename personal "Tax Documents"`,
	Args: cobra.ExactArgs(2),
	RunE: runRename,
}

func runRename(cmd *cobra.Command, args []string) error {
	client, err := getClient()
	if err != nil {
		return err
	}

	v, err := resolveVault(client, args[0])
	if err != nil {
		return err
	}

	renamed, err := client.SetMountName(v.ID, args[1])
	if err != nil {
		return fmt.Errorf("failed to rename vault: %w", err)
	}

	return printVaultWithSuccess(renamed, fmt.Sprintf("Vault now mounts as %q", renamed.MountName))
}
