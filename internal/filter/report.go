package filter

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// WriteText writes the plain report:
//
//	Workflow: <name>
//	 - <job>
func WriteText(w io.Writer, res *Result) error {
	var out strings.Builder
	for _, wf := range res.Workflows {
		fmt.Fprintf(&out, "Workflow: %s\n", wf.Name)
		for _, job := range wf.Jobs {
			fmt.Fprintf(&out, " - %s\n", job)
		}
	}
	_, err := io.WriteString(w, out.String())
	return err
}

// WriteStyled writes the same lines as WriteText with terminal styling.
// Styling is dropped when w is not a terminal.
func WriteStyled(w io.Writer, res *Result) error {
	r := lipgloss.NewRenderer(w)
	headerStyle := r.NewStyle().Bold(true).Foreground(lipgloss.Color("#874BFD"))
	jobStyle := r.NewStyle().Foreground(lipgloss.Color("#00FF00"))
	emptyStyle := r.NewStyle().Foreground(lipgloss.Color("#888888"))

	var out strings.Builder
	for _, wf := range res.Workflows {
		fmt.Fprintf(&out, "%s %s\n", headerStyle.Render("Workflow:"), headerStyle.Render(wf.Name))
		if len(wf.Jobs) == 0 {
			fmt.Fprintf(&out, "   %s\n", emptyStyle.Render("(no jobs)"))
			continue
		}
		for _, job := range wf.Jobs {
			fmt.Fprintf(&out, " - %s\n", jobStyle.Render(job))
		}
	}
	_, err := io.WriteString(w, out.String())
	return err
}

// WriteJSON writes the full result, decisions included, as indented JSON.
func WriteJSON(w io.Writer, res *Result) error {
	data, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal json report: %w", err)
	}
	data = append(data, '\n')
	_, err = w.Write(data)
	return err
}
