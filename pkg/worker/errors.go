package worker

import "errors"

// ErrTimeout marks a handler failure caused by its configured timeout
// elapsing, rather than a handler-returned error (spec §7 Timeout).
var ErrTimeout = errors.New("worker: handler timed out")
