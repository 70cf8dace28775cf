package extract

import (
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"
)

// extractXlsx renders each sheet of a workbook as rows of " | "-joined
// cells, with a labeled header per sheet.
func (e *Extractor) extractXlsx(path string) (string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return "", fmt.Errorf("%w: opening xlsx: %v", ErrIO, err)
	}
	defer f.Close()

	var sections []string
	for _, sheetName := range f.GetSheetList() {
		rows, err := f.GetRows(sheetName)
		if err != nil {
			e.log.WithField("sheet", sheetName).WithError(err).Warn("skipping unreadable sheet")
			continue
		}

		var b strings.Builder
		b.WriteString(fmt.Sprintf("### Sheet: %s ###\n", sheetName))
		for _, row := range rows {
			b.WriteString(strings.Join(row, " | "))
			b.WriteString("\n")
		}
		sections = append(sections, b.String())
	}

	return strings.Join(sections, "\n"), nil
}
