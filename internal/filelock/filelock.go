package filelock

import "errors"

// ErrLocked is returned when an advisory lock is held by another process
// in a conflicting mode.
var ErrLocked = errors.New("filelock: already locked by another process")
