package extract

import (
	"bytes"
	"context"
	"fmt"
	"image/jpeg"
	"os"
	"strings"
	"unicode"

	"github.com/unidoc/unipdf/v3/extractor"
	"github.com/unidoc/unipdf/v3/model"

	"Laira/internal/schema"
)

// extractPDF produces one text unit per page plus one figure unit per
// analyzed image. A page whose processing fails yields a placeholder
// unit instead of aborting the document.
func (e *Extractor) extractPDF(ctx context.Context, path string) (*Content, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: opening pdf: %v", ErrIO, err)
	}
	defer f.Close()

	pdfReader, err := model.NewPdfReader(f)
	if err != nil {
		return nil, fmt.Errorf("%w: parsing pdf: %v", ErrIO, err)
	}

	numPages, err := pdfReader.GetNumPages()
	if err != nil {
		return nil, fmt.Errorf("%w: reading pdf page count: %v", ErrIO, err)
	}

	var units []PageUnit
	for i := 1; i <= numPages; i++ {
		pageUnits, pageErr := e.extractPage(ctx, pdfReader, i, numPages)
		if pageErr != nil {
			e.log.WithField("path", path).WithField("page", i).WithError(pageErr).
				Error("page processing failed, emitting placeholder")
			units = append(units, PageUnit{
				Page:       i,
				TotalPages: numPages,
				Text:       fmt.Sprintf("[ERROR PROCESSING PAGE %d: %v]", i, pageErr),
				Section:    "Unknown",
				Type:       schema.ChunkTypeText,
				Err:        pageErr.Error(),
			})
			continue
		}
		units = append(units, pageUnits...)
	}

	e.log.WithField("path", path).WithField("pages", numPages).
		WithField("units", len(units)).Info("extracted pdf")
	return PagesContent(units), nil
}

// extractPage extracts one page's text and figures. The first returned
// unit is always the page's text unit; figure units follow in order.
func (e *Extractor) extractPage(ctx context.Context, pdfReader *model.PdfReader, pageNum, totalPages int) ([]PageUnit, error) {
	page, err := pdfReader.GetPage(pageNum)
	if err != nil {
		return nil, err
	}

	ex, err := extractor.New(page)
	if err != nil {
		return nil, err
	}

	text, err := ex.ExtractText()
	if err != nil {
		return nil, err
	}

	analyses, imageCount := e.analyzePageImages(ctx, ex, pageNum)

	processedText, section := markSections(text)

	if len(analyses) > 0 {
		processedText += "\n\n### FIGURES AND VISUALIZATIONS ###\n" + strings.Join(analyses, "\n\n")
	}

	units := []PageUnit{{
		Page:               pageNum,
		TotalPages:         totalPages,
		Text:               processedText,
		Section:            section,
		Type:               schema.ChunkTypeText,
		ImageCount:         imageCount,
		AnalyzedImageCount: len(analyses),
	}}

	for idx, analysis := range analyses {
		units = append(units, PageUnit{
			Page:               pageNum,
			TotalPages:         totalPages,
			Text:               analysis,
			Section:            section,
			Type:               schema.ChunkTypeFigure,
			FigureIndex:        idx + 1,
			ImageCount:         imageCount,
			AnalyzedImageCount: len(analyses),
		})
	}

	return units, nil
}

// analyzePageImages decodes each embedded raster image, re-encodes it as
// JPEG and sends it to the vision model. Decode or analysis failures are
// logged and skipped per image.
func (e *Extractor) analyzePageImages(ctx context.Context, ex *extractor.Extractor, pageNum int) ([]string, int) {
	if e.analyzer == nil {
		return nil, 0
	}

	pageImages, err := ex.ExtractPageImages(nil)
	if err != nil || pageImages == nil {
		if err != nil {
			e.log.WithField("page", pageNum).WithError(err).Warn("cannot list page images")
		}
		return nil, 0
	}

	var analyses []string
	for idx, pImg := range pageImages.Images {
		goImg, err := pImg.Image.ToGoImage()
		if err != nil {
			e.log.WithField("page", pageNum).WithField("figure", idx+1).WithError(err).
				Warn("skipping undecodable image")
			continue
		}

		// JPEG re-encode normalizes the color model for the vision model.
		var buf bytes.Buffer
		if err := jpeg.Encode(&buf, goImg, &jpeg.Options{Quality: 90}); err != nil {
			e.log.WithField("page", pageNum).WithField("figure", idx+1).WithError(err).
				Warn("skipping unencodable image")
			continue
		}

		description, err := e.analyzer.AnalyzeFigure(ctx, buf.Bytes())
		if err != nil {
			e.log.WithField("page", pageNum).WithField("figure", idx+1).WithError(err).
				Warn("figure analysis failed, skipping image")
			continue
		}
		analyses = append(analyses, fmt.Sprintf("[FIGURE %d ANALYSIS]: %s", idx+1, description))
	}

	return analyses, len(pageImages.Images)
}

// markSections rewrites page text so detected headings become explicit
// "### HEADING ###" markers, and returns the last active section label.
// A line counts as a heading when it is fully upper-case, 1-7 words and
// under 80 characters. Content before any heading is labeled "Unknown".
func markSections(text string) (string, string) {
	var processed []string
	section := "Unknown"

	for _, line := range strings.Split(text, "\n") {
		stripped := strings.TrimSpace(line)
		if isHeading(stripped) {
			section = stripped
			processed = append(processed, fmt.Sprintf("\n### %s ###\n", section))
			continue
		}
		cleaned := strings.Join(strings.Fields(stripped), " ")
		if cleaned != "" {
			processed = append(processed, cleaned)
		}
	}

	return strings.Join(processed, "\n\n"), section
}

func isHeading(line string) bool {
	if line == "" || len(line) >= 80 {
		return false
	}
	words := len(strings.Fields(line))
	if words < 1 || words > 7 {
		return false
	}
	hasLetter := false
	for _, r := range line {
		if unicode.IsLetter(r) {
			hasLetter = true
			if !unicode.IsUpper(r) {
				return false
			}
		}
	}
	return hasLetter
}
