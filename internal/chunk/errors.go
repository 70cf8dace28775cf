package chunk

import "errors"

// ErrUnknownStrategy is returned when an unrecognized strategy name is
// passed to Split.
var ErrUnknownStrategy = errors.New("unknown chunking strategy")
