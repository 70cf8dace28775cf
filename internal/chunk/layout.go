package chunk

import (
	"regexp"
	"strings"

	"Laira/internal/extract"
	"Laira/internal/schema"
)

// headingMarker matches the explicit section markers the extractor
// inserts into processed PDF text.
var headingMarker = regexp.MustCompile(`(?m)^### (.+) ###$`)

// section is a titled run of body text inside one page.
type section struct {
	title string
	body  string
}

// parseSections splits page text on heading markers. Content before the
// first heading is titled "Introduction".
func parseSections(text string) []section {
	matches := headingMarker.FindAllStringSubmatchIndex(text, -1)
	if len(matches) == 0 {
		return []section{{title: "Introduction", body: text}}
	}

	var sections []section
	if lead := strings.TrimSpace(text[:matches[0][0]]); lead != "" {
		sections = append(sections, section{title: "Introduction", body: lead})
	}
	for i, m := range matches {
		title := text[m[2]:m[3]]
		end := len(text)
		if i+1 < len(matches) {
			end = matches[i+1][0]
		}
		body := strings.TrimSpace(text[m[1]:end])
		sections = append(sections, section{title: title, body: body})
	}
	return sections
}

// splitLayout performs layout-aware chunking over page-structured
// content: it groups page text into sections by heading markers, chunks
// within each section by paragraph, and bridges consecutive sections by
// prefixing each section with the tail of the previous one so
// cross-section context survives at chunk boundaries.
func (c *Chunker) splitLayout(pages []extract.PageUnit, baseMetadata map[string]interface{}) []*schema.Chunk {
	overlap := c.config.ChunkOverlap
	sep := c.config.ParagraphSeparator

	var all []*schema.Chunk
	prevText := ""

	for _, page := range pages {
		if page.Text == "" {
			continue
		}
		if page.Type == schema.ChunkTypeFigure {
			// Figure descriptions are self-contained units; they are
			// chunked on their own, never bridged into body sections.
			meta := pageMetadata(baseMetadata, page)
			for i, ch := range c.SplitByParagraph(page.Text, meta) {
				ch.Metadata["section_index"] = i
				ch.Metadata[schema.MetadataKeyChunkStrategy] = StrategyLayout
				all = append(all, ch)
			}
			continue
		}

		for _, sec := range parseSections(page.Text) {
			sectionText := sec.body
			if prevText != "" && overlap > 0 {
				sectionText = tail(prevText, overlap) + sep + sectionText
			}

			meta := pageMetadata(baseMetadata, page)
			meta[schema.MetadataKeySection] = sec.title

			for i, ch := range c.SplitByParagraph(sectionText, meta) {
				ch.Metadata["section_index"] = i
				ch.Metadata[schema.MetadataKeyChunkStrategy] = StrategyLayout
				all = append(all, ch)
			}
			prevText = sectionText
		}
	}

	return all
}

// tail returns the last n runes of text.
func tail(text string, n int) string {
	runes := []rune(text)
	if len(runes) <= n {
		return text
	}
	return string(runes[len(runes)-n:])
}
