package assemble

import (
	"fmt"
	"sort"
	"strings"

	"github.com/enerhogar/energia-tracker/internal/recognize"
)

// Document is the full recognized text for one upload. Immutable once built;
// the sole input to field extraction. Page-boundary markers are kept so a
// human reviewing diagnostics can tell which page a fragment came from.
type Document struct {
	Text  string
	Pages int
}

// Assemble concatenates per-page OCR results in ascending page-index order,
// inserting a page break marker between pages. It has no failure mode:
// no pages yields an empty document.
func Assemble(results []recognize.Result) Document {
	ordered := make([]recognize.Result, len(results))
	copy(ordered, results)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].PageIndex < ordered[j].PageIndex
	})

	var b strings.Builder
	for i, r := range ordered {
		if i > 0 {
			// Form feed plus a readable label, in the spirit of the classic
			// \f page separator.
			b.WriteString(fmt.Sprintf("\n\f--- page %d ---\n", r.PageIndex))
		}
		b.WriteString(r.Text)
	}
	return Document{Text: b.String(), Pages: len(ordered)}
}
