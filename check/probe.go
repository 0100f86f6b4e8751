package check

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"

	"pagecheck/config"
)

// ElementResult is the outcome of one probe against the rendered document
type ElementResult struct {
	Label    string
	Selector string
	Attr     string
	Found    bool
	AttrSet  bool // Only meaningful when Attr is set
	Value    string
	Err      error
}

// probeElements runs every probe against one snapshot of the rendered HTML.
// Absent elements are a normal outcome, never an error.
func probeElements(html string, probes []config.Probe) []ElementResult {
	results := make([]ElementResult, 0, len(probes))

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	for _, p := range probes {
		r := ElementResult{Label: p.Label, Selector: p.Selector, Attr: p.Attr}
		if err != nil {
			r.Err = fmt.Errorf("parse document: %w", err)
			results = append(results, r)
			continue
		}

		sel, compileErr := cascadia.Compile(p.Selector)
		if compileErr != nil {
			r.Err = fmt.Errorf("invalid selector %q: %w", p.Selector, compileErr)
			results = append(results, r)
			continue
		}

		match := doc.FindMatcher(sel).First()
		if match.Length() == 0 {
			results = append(results, r)
			continue
		}

		r.Found = true
		if p.Attr == "" {
			r.Value = match.Text()
		} else {
			r.Value, r.AttrSet = match.Attr(p.Attr)
		}
		results = append(results, r)
	}

	return results
}
