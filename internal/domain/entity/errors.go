package entity

import "errors"

var (
	// ErrRejected marks a discovered candidate that did not pass the partner filter.
	ErrRejected = errors.New("candidate rejected")
	// ErrNotImplemented is returned by adapters registered without a chain implementation.
	ErrNotImplemented = errors.New("not implemented")
)

var (
	// ErrNotFound is returned by stores when no row matches.
	ErrNotFound = errors.New("not found")
	// ErrDuplicateKey is returned by stores when an insert hits a unique key.
	ErrDuplicateKey = errors.New("duplicate key")
)

// ErrUndecodable marks a contract call that answered but whose result could
// not be decoded. Transport failures never wrap it.
var ErrUndecodable = errors.New("undecodable call result")
