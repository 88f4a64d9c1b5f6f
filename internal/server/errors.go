package server

import "errors"

// ErrCapacity is returned by the connection-limiting middleware when the
// server is at its configured max_connections.
var ErrCapacity = errors.New("server: at connection capacity")
