package mmdb

import (
	"errors"
	"fmt"
)

var (
	ErrMetadataNotFound      = errors.New("mmdb: metadata marker not found")
	ErrInvalidMetadata       = errors.New("mmdb: invalid metadata")
	ErrUnsupportedRecordSize = errors.New("mmdb: unsupported record size")
	ErrTruncated             = errors.New("mmdb: read past end of section")
	ErrMalformedPointerChain = errors.New("mmdb: decode depth exceeded, malformed pointer chain")
	ErrInvalidSize           = errors.New("mmdb: invalid size for value type")
	ErrInvalidMapKey         = errors.New("mmdb: map key is not a string")
	ErrInvalidNode           = errors.New("mmdb: invalid record in search tree")
	ErrInvalidAddress        = errors.New("mmdb: invalid IP address")
	ErrIPv6InIPv4Database    = errors.New("mmdb: IPv6 address looked up in an IPv4-only database")
	ErrClosed                = errors.New("mmdb: reader is closed")
)

// FormatError reports a corrupt or unsupported database file. Err is one of
// the format sentinels above.
type FormatError struct {
	Op     string
	Offset uint64
	Err    error
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("%s at offset %d: %v", e.Op, e.Offset, e.Err)
}

func (e *FormatError) Unwrap() error { return e.Err }

func formatErr(op string, offset uint64, err error) error {
	return &FormatError{Op: op, Offset: offset, Err: err}
}

// InputError reports a malformed lookup argument. The caller may retry with
// different input.
type InputError struct {
	Input string
	Err   error
}

func (e *InputError) Error() string {
	return fmt.Sprintf("%v: %q", e.Err, e.Input)
}

func (e *InputError) Unwrap() error { return e.Err }

// IOError reports a failure reading the database file.
type IOError struct {
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("mmdb: reading %s: %v", e.Path, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }
