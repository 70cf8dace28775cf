package extract

import (
	"fmt"
	"strings"

	"github.com/unidoc/unioffice/v2/document"
)

// extractDocx concatenates paragraph text and table cell text from a
// Word document into one string. Table cells are joined by " | " within
// a row and rows are newline-joined.
func (e *Extractor) extractDocx(path string) (string, error) {
	doc, err := document.Open(path)
	if err != nil {
		return "", fmt.Errorf("%w: opening docx: %v", ErrIO, err)
	}
	defer doc.Close()

	var lines []string
	for _, p := range doc.Paragraphs() {
		var b strings.Builder
		for _, r := range p.Runs() {
			b.WriteString(r.Text())
		}
		lines = append(lines, b.String())
	}

	for _, table := range doc.Tables() {
		for _, row := range table.Rows() {
			var cells []string
			for _, cell := range row.Cells() {
				var b strings.Builder
				for _, p := range cell.Paragraphs() {
					for _, r := range p.Runs() {
						b.WriteString(r.Text())
					}
				}
				cells = append(cells, b.String())
			}
			lines = append(lines, strings.Join(cells, " | "))
		}
	}

	return strings.Join(lines, "\n"), nil
}
