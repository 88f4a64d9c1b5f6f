package kv

import "errors"

// ErrNotFound is returned when a hash field or key is absent. Callers
// compare against this sentinel rather than the underlying redis.Nil so
// the store's backing client stays an implementation detail.
var ErrNotFound = errors.New("kv: not found")
