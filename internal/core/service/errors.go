package service

import "errors"

// ErrBadRequest wraps input the core rejects outright.
var ErrBadRequest = errors.New("bad request")
