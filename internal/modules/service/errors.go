package service

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/portfoliocms/assetsync/internal/modules/model"
)

var (
	// ErrOrderAllocation: reading the category maximum failed, so nothing in
	// that category was uploaded.
	ErrOrderAllocation = errors.New("order allocation failed")
	// ErrReorderPersist: one or more rows could not take their new position.
	ErrReorderPersist = errors.New("reorder persist failed")

	ErrEmptyBatch      = errors.New("no files to upload")
	ErrDuplicateIDs    = errors.New("reorder ids must be unique")
	ErrEmptyMetadata   = errors.New("no metadata fields to update")
	ErrInvalidFileName = errors.New("file name cannot be blank")
)

// ReorderError lists every row that failed in a non-transactional reorder.
// Rows not listed may already carry their new position.
type ReorderError struct {
	Category model.Category
	Failed   map[uuid.UUID]error
}

func (e *ReorderError) Error() string {
	ids := make([]string, 0, len(e.Failed))
	for id := range e.Failed {
		ids = append(ids, id.String())
	}
	sort.Strings(ids)
	return fmt.Sprintf("%v: %d row(s) of %s failed: %s", ErrReorderPersist, len(e.Failed), e.Category, strings.Join(ids, ", "))
}

func (e *ReorderError) Unwrap() []error {
	errs := make([]error, 0, len(e.Failed)+1)
	errs = append(errs, ErrReorderPersist)
	for _, err := range e.Failed {
		errs = append(errs, err)
	}
	return errs
}
