package extract

import "errors"

var (
	// ErrNotFound is returned when the source file does not exist.
	ErrNotFound = errors.New("file not found")
	// ErrUnsupportedFormat is returned for file types the extractor does
	// not recognize.
	ErrUnsupportedFormat = errors.New("unsupported file format")
	// ErrIO is returned for read, decode or parse failures.
	ErrIO = errors.New("extraction failed")
)
