package coordinator

import "errors"

// ErrPersistence wraps store write failures. The mutation is surfaced to
// the caller and no broadcast is emitted for it.
var ErrPersistence = errors.New("persistence failure")
