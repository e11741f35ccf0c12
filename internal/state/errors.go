package state

import "errors"

// ErrUnknownSource indicates a source name outside the fixed
// shell/file/remote set.
var ErrUnknownSource = errors.New("unknown source")
