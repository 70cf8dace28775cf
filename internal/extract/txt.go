package extract

import (
	"fmt"
	"os"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
)

// legacyEncodings is the ordered fallback list tried when a text file is
// not valid UTF-8.
var legacyEncodings = []*charmap.Charmap{
	charmap.ISO8859_1,
	charmap.Windows1252,
}

// extractTxt reads a plain text file as UTF-8, falling back through a
// fixed list of legacy encodings on decode failure.
func (e *Extractor) extractTxt(path string) (string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("%w: reading text file: %v", ErrIO, err)
	}

	if utf8.Valid(raw) {
		return string(raw), nil
	}

	for _, cm := range legacyEncodings {
		decoded, decErr := decodeWith(cm.NewDecoder(), raw)
		if decErr == nil {
			e.log.WithField("path", path).WithField("encoding", cm.String()).
				Warn("file is not valid UTF-8, decoded with legacy encoding")
			return decoded, nil
		}
	}

	return "", fmt.Errorf("%w: cannot decode text file with any known encoding", ErrIO)
}

func decodeWith(dec *encoding.Decoder, raw []byte) (string, error) {
	out, err := dec.Bytes(raw)
	if err != nil {
		return "", err
	}
	return string(out), nil
}
