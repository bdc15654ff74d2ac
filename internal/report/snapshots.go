package report

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"datamap/internal/store"
)

// Snapshots writes the checkpoint list as a bordered table.
func Snapshots(w io.Writer, snaps []store.Snapshot, st Styles) error {
	if len(snaps) == 0 {
		_, err := fmt.Fprintln(w, st.Muted.Render("No checkpoints"))
		return err
	}

	cell := lipgloss.NewStyle().Padding(0, 1)
	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(st.Muted).
		Headers("ID", "LABEL", "VERTICES", "EDGES", "CREATED").
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return cell.Inherit(st.Title)
			}
			return cell
		})
	for _, s := range snaps {
		t.Row(
			strconv.FormatInt(s.ID, 10),
			s.Label,
			strconv.Itoa(s.Vertices),
			strconv.Itoa(s.Edges),
			s.CreatedAt.Local().Format(time.DateTime),
		)
	}
	_, err := fmt.Fprintln(w, t.Render())
	return err
}
