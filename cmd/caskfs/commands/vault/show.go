package vault

import (
	"os"

	"github.com/spf13/cobra"
)

var showCmd = &cobra.Command{
	Use:   "show <vault>",
	Short: "Show vault details",
	Long: `Show the details of a single vault.

Examples:
  caskfs vault show personal
  caskfs vault show personal -o json`,
	Args: cobra.ExactArgs(1),
	RunE: runShow,
}

func runShow(cmd *cobra.Command, args []string) error {
	client, err := getClient()
	if err != nil {
		return err
	}

	v, err := resolveVault(client, args[0])
	if err != nil {
		return err
	}

	return printVault(os.Stdout, v)
}
