package repo

import (
	"errors"
	"fmt"
)

var (
	ErrAssetNotFound = errors.New("asset not found")
	ErrOrderMismatch = errors.New("ids do not match the ordered assets of the category")

	// ErrStorageWrite: the object PUT failed and no row was written.
	ErrStorageWrite = errors.New("storage write failed")
	// ErrDatabaseWrite: the row write failed. For create, the object may be left orphaned.
	ErrDatabaseWrite = errors.New("database write failed")
	// ErrDeleteCompensation: the row is gone but removing the object failed.
	ErrDeleteCompensation = errors.New("storage delete failed after row delete")
)

// OpError ties a failure kind to the unit it happened to (a file name or an
// asset id) so callers can retry exactly that unit. errors.Is matches both
// the kind and the underlying cause.
type OpError struct {
	Kind error
	Ref  string
	Err  error
}

func (e *OpError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %v", e.Ref, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %v", e.Ref, e.Kind, e.Err)
}

func (e *OpError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func opErr(kind error, ref string, err error) error {
	return &OpError{Kind: kind, Ref: ref, Err: err}
}
