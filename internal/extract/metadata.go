package extract

import (
	"os"
	"path/filepath"

	"github.com/djherbis/times"
	"github.com/gabriel-vasile/mimetype"
	"github.com/unidoc/unipdf/v3/model"

	"Laira/internal/schema"
)

// GetDocumentMetadata collects descriptive metadata for a document on a
// best-effort basis. It always returns a usable map regardless of whether
// extraction itself would succeed; unavailable fields are simply absent.
func (e *Extractor) GetDocumentMetadata(path string) map[string]interface{} {
	metadata := map[string]interface{}{
		schema.MetadataKeyFilename: filepath.Base(path),
		schema.MetadataKeyFilePath: path,
	}

	info, err := os.Stat(path)
	if err != nil {
		e.log.WithField("path", path).WithError(err).Warn("cannot stat document")
		return metadata
	}
	metadata["file_size"] = info.Size()
	metadata["file_type"] = DetectFileType(path)

	if mtype, err := mimetype.DetectFile(path); err == nil {
		metadata["mime_type"] = mtype.String()
	}

	if ts, err := times.Stat(path); err == nil {
		metadata["modification_date"] = ts.ModTime().Unix()
		if ts.HasBirthTime() {
			metadata["creation_date"] = ts.BirthTime().Unix()
		}
	}

	if metadata["file_type"] == FileTypePDF {
		if count, err := pdfPageCount(path); err == nil {
			metadata["page_count"] = count
		} else {
			e.log.WithField("path", path).WithError(err).Warn("cannot read pdf page count")
		}
	}

	return metadata
}

func pdfPageCount(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	pdfReader, err := model.NewPdfReader(f)
	if err != nil {
		return 0, err
	}
	return pdfReader.GetNumPages()
}
