package render

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/edgeix/peerbot/pkg/directory"
)

// Table renders a found lookup result as a monospace table with one row
// per (location, route server), plus the display name for use as a
// response caption.
func Table(result directory.Result) (string, string) {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		StyleFunc(func(row, col int) lipgloss.Style {
			return lipgloss.NewStyle().Padding(0, 1)
		}).
		Headers("City", "Route Server", "BGP State")

	for _, row := range result.Rows {
		t.Row(row.Location, row.RouteServer, row.State)
	}

	return t.Render(), result.Name
}
