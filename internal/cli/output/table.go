package output

import (
	"io"

	"github.com/olekukonko/tablewriter"
)

// TableRenderer is implemented by resource lists that can render themselves
// as columns, such as the vault listing.
type TableRenderer interface {
	Headers() []string
	Rows() [][]string
}

// newTable returns a borderless left-aligned table writer. colSep separates
// columns; the vault detail view uses ":" for key-value pairs.
func newTable(w io.Writer, colSep string) *tablewriter.Table {
	t := tablewriter.NewWriter(w)
	t.SetAutoWrapText(false)
	t.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	t.SetAlignment(tablewriter.ALIGN_LEFT)
	t.SetCenterSeparator("")
	t.SetColumnSeparator(colSep)
	t.SetRowSeparator("")
	t.SetHeaderLine(false)
	t.SetBorder(false)
	t.SetTablePadding("  ")
	t.SetNoWhiteSpace(true)
	return t
}

// PrintTable writes a resource list as a headed column table.
func PrintTable(w io.Writer, data TableRenderer) error {
	t := newTable(w, "")
	t.SetAutoFormatHeaders(true)
	t.SetHeader(data.Headers())
	for _, row := range data.Rows() {
		t.Append(row)
	}
	t.Render()
	return nil
}

// SimpleTable writes key-value pairs as a two-column detail view, in the
// order given.
func SimpleTable(w io.Writer, pairs [][2]string) error {
	t := newTable(w, ":")
	t.SetAutoFormatHeaders(false)
	for _, pair := range pairs {
		t.Append([]string{pair[0], pair[1]})
	}
	t.Render()
	return nil
}
