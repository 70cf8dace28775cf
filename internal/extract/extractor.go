package extract

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"Laira/pkg/logger"
)

// FigureAnalyzer describes a vision-capable model that turns a raster
// image into a textual description. Analysis failures are non-fatal to
// extraction; the extractor logs and skips the affected image.
type FigureAnalyzer interface {
	AnalyzeFigure(ctx context.Context, imageJPEG []byte) (string, error)
}

// Extractor converts raw files into either flat text or page-structured
// content, optionally enriching PDF pages with image-derived descriptive
// text.
type Extractor struct {
	analyzer FigureAnalyzer // nil disables figure analysis
	log      *logger.Logger
}

// NewExtractor creates an Extractor. Pass a nil analyzer to skip figure
// analysis on PDF pages.
func NewExtractor(analyzer FigureAnalyzer) *Extractor {
	return &Extractor{
		analyzer: analyzer,
		log:      logger.New("extractor"),
	}
}

// Extract reads the file at path and converts it based on its detected
// type. PDFs produce page-structured content; everything else produces a
// flat string. It fails with ErrNotFound for a missing file,
// ErrUnsupportedFormat for an unrecognized type and ErrIO for read or
// parse failures.
func (e *Extractor) Extract(ctx context.Context, path string) (*Content, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
	}

	fileType := DetectFileType(path)
	e.log.WithField("path", path).WithField("file_type", fileType).Debug("extracting document")

	switch fileType {
	case FileTypePDF:
		return e.extractPDF(ctx, path)
	case FileTypeDocx:
		text, err := e.extractDocx(path)
		if err != nil {
			return nil, err
		}
		return TextContent(text), nil
	case FileTypeXlsx:
		text, err := e.extractXlsx(path)
		if err != nil {
			return nil, err
		}
		return TextContent(text), nil
	case FileTypeText:
		text, err := e.extractTxt(path)
		if err != nil {
			return nil, err
		}
		return TextContent(text), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Ext(path))
	}
}

// Recognized file types.
const (
	FileTypePDF     = "pdf"
	FileTypeDocx    = "docx"
	FileTypeXlsx    = "xlsx"
	FileTypeText    = "txt"
	FileTypeUnknown = "unknown"
)

// DetectFileType classifies a file by extension, falling back to content
// sniffing for extensionless or unrecognized files.
func DetectFileType(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		return FileTypePDF
	case ".docx":
		return FileTypeDocx
	case ".xlsx":
		return FileTypeXlsx
	case ".txt", ".md", ".markdown", ".text", ".log", ".csv":
		return FileTypeText
	}

	mtype, err := mimetype.DetectFile(path)
	if err != nil {
		return FileTypeUnknown
	}
	switch {
	case mtype.Is("application/pdf"):
		return FileTypePDF
	case mtype.Is("application/vnd.openxmlformats-officedocument.wordprocessingml.document"):
		return FileTypeDocx
	case mtype.Is("application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"):
		return FileTypeXlsx
	case strings.HasPrefix(mtype.String(), "text/"):
		return FileTypeText
	}
	return FileTypeUnknown
}
