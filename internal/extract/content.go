package extract

// ContentKind discriminates the two shapes extraction can produce.
type ContentKind int

const (
	// KindText marks content extracted as one flat string.
	KindText ContentKind = iota
	// KindPages marks page-structured content, one unit per page plus
	// one unit per analyzed figure.
	KindPages
)

// PageUnit is one page-scoped unit of extracted PDF content. A page
// produces one unit of type text and zero or more units of type figure,
// so figure descriptions are chunked and embedded independently from
// body text.
type PageUnit struct {
	// Page is the one-based page number.
	Page int
	// TotalPages is the page count of the source document.
	TotalPages int
	// Text is the processed page text or the figure description.
	Text string
	// Section is the coarse section label active at the end of the page.
	Section string
	// Type is "text" or "figure".
	Type string
	// FigureIndex is the one-based figure number within the page. Zero
	// for text units.
	FigureIndex int
	// ImageCount is the number of raster images found on the page.
	ImageCount int
	// AnalyzedImageCount is the number of images successfully analyzed.
	AnalyzedImageCount int
	// Err holds the failure message for a placeholder unit emitted when
	// a whole page failed to process. Empty otherwise.
	Err string
}

// Content is the tagged union returned by extraction: either flat text or
// a list of page units. Exactly one of Text and Pages is meaningful,
// selected by Kind.
type Content struct {
	Kind  ContentKind
	Text  string
	Pages []PageUnit
}

// TextContent wraps a flat string as Content.
func TextContent(text string) *Content {
	return &Content{Kind: KindText, Text: text}
}

// PagesContent wraps page units as Content.
func PagesContent(pages []PageUnit) *Content {
	return &Content{Kind: KindPages, Pages: pages}
}

// IsEmpty reports whether the content carries no text at all.
func (c *Content) IsEmpty() bool {
	if c == nil {
		return true
	}
	switch c.Kind {
	case KindText:
		return c.Text == ""
	case KindPages:
		for _, p := range c.Pages {
			if p.Text != "" {
				return false
			}
		}
		return true
	}
	return true
}

// Length returns the total character count of the content.
func (c *Content) Length() int {
	if c == nil {
		return 0
	}
	switch c.Kind {
	case KindText:
		return len(c.Text)
	case KindPages:
		total := 0
		for _, p := range c.Pages {
			total += len(p.Text)
		}
		return total
	}
	return 0
}
