// Package vault implements vault management commands for caskfs.
package vault

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/caskfs/caskfs/internal/cli/output"
	"github.com/caskfs/caskfs/pkg/apiclient"
	"github.com/spf13/cobra"
)

var (
	apiPort      int
	outputFormat string
	noColor      bool
)

// Cmd is the parent command for vault management.
var Cmd = &cobra.Command{
	Use:   "vault",
	Short: "Vault management",
	Long: `Manage encrypted vaults through a running CaskFS daemon.

Vault commands let you create, unlock, mount, and lock vaults. Vaults can
be referenced by ID, ID prefix, filesystem path, or mount name.

Examples:
  # Create a new vault
  caskfs vault create ~/Vaults/personal.cask

  # Unlock it and mount it into the filesystem
  caskfs vault unlock personal
  caskfs vault mount personal

  # Lock it again (unmounts first if needed)
  caskfs vault lock personal`,
}

func init() {
	Cmd.PersistentFlags().IntVar(&apiPort, "api-port", 8757, "API server port of the daemon")
	Cmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "table", "Output format (table|json|yaml)")
	Cmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")

	Cmd.AddCommand(listCmd)
	Cmd.AddCommand(createCmd)
	Cmd.AddCommand(addCmd)
	Cmd.AddCommand(removeCmd)
	Cmd.AddCommand(showCmd)
	Cmd.AddCommand(unlockCmd)
	Cmd.AddCommand(lockCmd)
	Cmd.AddCommand(mountCmd)
	Cmd.AddCommand(unmountCmd)
	Cmd.AddCommand(renameCmd)
	Cmd.AddCommand(verifyCmd)
}

// getClient returns an API client for the local daemon, failing fast when
// the daemon is not reachable.
func getClient() (*apiclient.Client, error) {
	client := apiclient.New(apiPort)
	if err := client.Ping(); err != nil {
		return nil, fmt.Errorf("cannot reach the caskfs daemon on port %d (is it running? try 'caskfs start'): %w", apiPort, err)
	}
	return client, nil
}

// resolveVault finds a vault by ID, unique ID prefix, path, or mount name.
func resolveVault(client *apiclient.Client, ref string) (*apiclient.Vault, error) {
	vaults, err := client.ListVaults()
	if err != nil {
		return nil, fmt.Errorf("failed to list vaults: %w", err)
	}

	var matches []apiclient.Vault
	for _, v := range vaults {
		if v.ID == ref || v.Path == ref || v.MountName == ref {
			matches = append(matches, v)
			continue
		}
		if strings.HasPrefix(v.ID, ref) {
			matches = append(matches, v)
		}
	}

	switch len(matches) {
	case 1:
		return &matches[0], nil
	case 0:
		return nil, fmt.Errorf("no vault matches %q", ref)
	default:
		return nil, fmt.Errorf("vault reference %q is ambiguous (%d matches)", ref, len(matches))
	}
}

// VaultList is a list of vaults for table rendering.
type VaultList []apiclient.Vault

// Headers implements TableRenderer.
func (vl VaultList) Headers() []string {
	return []string{"ID", "MOUNT NAME", "STATE", "PATH", "MOUNTPOINT"}
}

// Rows implements TableRenderer.
func (vl VaultList) Rows() [][]string {
	rows := make([][]string, 0, len(vl))
	for _, v := range vl {
		rows = append(rows, []string{shortID(v.ID), v.MountName, v.State, v.Path, v.Mountpoint})
	}
	return rows
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// printOutput prints data in the selected format, or the table renderer
// with an empty message for table output.
func printOutput(w io.Writer, data any, isEmpty bool, emptyMsg string, table output.TableRenderer) error {
	format, err := output.ParseFormat(outputFormat)
	if err != nil {
		return err
	}

	switch format {
	case output.FormatJSON:
		return output.PrintJSON(w, data)
	case output.FormatYAML:
		return output.PrintYAML(w, data)
	default:
		if isEmpty {
			_, _ = fmt.Fprintln(w, emptyMsg)
			return nil
		}
		return output.PrintTable(w, table)
	}
}

// printVault prints a single vault as a detail table, or raw in JSON/YAML.
func printVault(w io.Writer, v *apiclient.Vault) error {
	format, err := output.ParseFormat(outputFormat)
	if err != nil {
		return err
	}

	switch format {
	case output.FormatJSON:
		return output.PrintJSON(w, v)
	case output.FormatYAML:
		return output.PrintYAML(w, v)
	default:
		pairs := [][2]string{
			{"ID", v.ID},
			{"Path", v.Path},
			{"Mount name", v.MountName},
			{"State", v.State},
			{"Verify integrity", fmt.Sprintf("%t", v.VerifyIntegrity)},
		}
		if v.ServerURL != "" {
			pairs = append(pairs, [2]string{"Server URL", v.ServerURL})
		}
		if v.Mountpoint != "" {
			pairs = append(pairs, [2]string{"Mountpoint", v.Mountpoint})
		}
		return output.SimpleTable(w, pairs)
	}
}

// printSuccess prints a success message in table format only.
func printSuccess(msg string) {
	format, err := output.ParseFormat(outputFormat)
	if err != nil || format != output.FormatTable {
		return
	}
	output.Success(os.Stdout, !noColor, msg)
}

// printVaultWithSuccess prints a success line for table output, or the
// vault resource itself for JSON/YAML.
func printVaultWithSuccess(v *apiclient.Vault, msg string) error {
	format, err := output.ParseFormat(outputFormat)
	if err != nil {
		return err
	}

	switch format {
	case output.FormatJSON:
		return output.PrintJSON(os.Stdout, v)
	case output.FormatYAML:
		return output.PrintYAML(os.Stdout, v)
	default:
		printSuccess(msg)
		return nil
	}
}
