package check

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

// Report is everything one run observed about the target page
type Report struct {
	RunID       string
	URL         string
	Engine      string
	Title       string
	TitleErr    error
	IdleReached bool
	Elements    []ElementResult
	Storage     StoredValue
	Logs        []Entry
	Screenshot  string
	Duration    time.Duration
}

// WriteTo renders the human readable report. Headings are styled only when
// w is a terminal.
func (r *Report) WriteTo(w io.Writer) (int64, error) {
	renderer := lipgloss.NewRenderer(w)
	heading := renderer.NewStyle().Bold(true)
	muted := renderer.NewStyle().Faint(true)

	var b strings.Builder

	title := r.Title
	if r.TitleErr != nil {
		title = muted.Render(fmt.Sprintf("(unavailable: %v)", r.TitleErr))
	}
	fmt.Fprintf(&b, "%s %s\n", heading.Render("Page title:"), title)

	b.WriteString("\n" + heading.Render("Page elements:") + "\n")
	for _, el := range r.Elements {
		fmt.Fprintf(&b, "- %s: %s\n", el.Label, elementValue(el))
	}

	fmt.Fprintf(&b, "\n%s\n", heading.Render(fmt.Sprintf("Stored configuration (localStorage %q):", r.Storage.Key)))
	switch {
	case r.Storage.Unavailable != "":
		fmt.Fprintf(&b, "unavailable: %s\n", r.Storage.Unavailable)
	case !r.Storage.Found:
		b.WriteString("not found\n")
	case !r.Storage.Valid:
		fmt.Fprintf(&b, "invalid JSON (%v): %s\n", r.Storage.ParseError, r.Storage.Raw)
	default:
		b.WriteString(r.Storage.Pretty() + "\n")
	}

	fmt.Fprintf(&b, "\n%s\n", heading.Render(fmt.Sprintf("Console logs (last %d):", LogTail)))
	if len(r.Logs) == 0 {
		b.WriteString("  " + muted.Render("(none)") + "\n")
	}
	for _, e := range r.Logs {
		fmt.Fprintf(&b, "  %s\n", e)
	}

	fmt.Fprintf(&b, "\n%s %s\n", heading.Render("Screenshot:"), r.Screenshot)

	n, err := io.WriteString(w, b.String())
	return int64(n), err
}

func elementValue(el ElementResult) string {
	switch {
	case el.Err != nil:
		return fmt.Sprintf("error: %v", el.Err)
	case !el.Found:
		return "not found"
	case el.Attr != "" && !el.AttrSet:
		return fmt.Sprintf("(no %s attribute)", el.Attr)
	default:
		return el.Value
	}
}
