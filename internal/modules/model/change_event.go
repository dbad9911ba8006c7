package model

import (
	"time"

	"github.com/google/uuid"
)

type ChangeType string

const (
	ChangeInsert ChangeType = "INSERT"
	ChangeUpdate ChangeType = "UPDATE"
	ChangeDelete ChangeType = "DELETE"
)

const (
	FeedSchema = "public"
	FeedTable  = "assets"
)

// ChangeEvent is one row-level mutation of the assets table as delivered by the change feed.
type ChangeEvent struct {
	Event           ChangeType `json:"event"`
	Schema          string     `json:"schema"`
	Table           string     `json:"table"`
	CommitTimestamp time.Time  `json:"commit_timestamp"`
	Old             *Asset     `json:"old,omitempty"`
	New             *Asset     `json:"new,omitempty"`
}

func NewChangeEvent(t ChangeType, old, new *Asset) ChangeEvent {
	return ChangeEvent{
		Event:           t,
		Schema:          FeedSchema,
		Table:           FeedTable,
		CommitTimestamp: time.Now().UTC(),
		Old:             old,
		New:             new,
	}
}

// RowID returns the id of the affected row, preferring the old image.
func (e ChangeEvent) RowID() uuid.UUID {
	if e.Old != nil {
		return e.Old.ID
	}
	if e.New != nil {
		return e.New.ID
	}
	return uuid.Nil
}

// RowCategory returns the category of the affected row, preferring the old image.
func (e ChangeEvent) RowCategory() Category {
	if e.Old != nil {
		return e.Old.Category
	}
	if e.New != nil {
		return e.New.Category
	}
	return ""
}
