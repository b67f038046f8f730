package model

import (
	"github.com/m-mizutani/goerr/v2"
)

var (
	// ErrInvalidArgument is returned before any I/O when an owner id or a required field is missing.
	ErrInvalidArgument = goerr.New("invalid argument")

	// ErrStoreUnavailable indicates the backend could not be reached or rejected a write.
	ErrStoreUnavailable = goerr.New("store unavailable")

	// ErrSchemaMismatch indicates the backend's owner identity column cannot hold the
	// identity format in use. It is a deployment defect, not a transient fault.
	ErrSchemaMismatch = goerr.New("schema mismatch")

	ErrInvalidCredentials = goerr.New("invalid credentials")
	ErrBlobNotFound       = goerr.New("blob not found")
)

// Classify attaches kind to err. errors.Is reports true for both kind and any error
// in err's own chain.
func Classify(kind, err error) error {
	if err == nil {
		return nil
	}
	return &classified{kind: kind, err: err}
}

type classified struct {
	kind error
	err  error
}

func (x *classified) Error() string {
	return x.kind.Error() + ": " + x.err.Error()
}

func (x *classified) Unwrap() []error {
	return []error{x.err, x.kind}
}
