package model

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestCategoryFromMIME(t *testing.T) {
	tests := []struct {
		mime string
		want Category
	}{
		{"image/png", CategoryImage},
		{"IMAGE/JPEG", CategoryImage},
		{"image/svg+xml", CategoryImage},
		{"application/pdf", CategoryFile},
		{"text/plain; charset=utf-8", CategoryFile},
		{"", CategoryFile},
	}
	for _, tt := range tests {
		t.Run(tt.mime, func(t *testing.T) {
			assert.Equal(t, tt.want, CategoryFromMIME(tt.mime))
		})
	}
}

func TestParseCategory(t *testing.T) {
	c, err := ParseCategory(" Image ")
	assert.NoError(t, err)
	assert.Equal(t, CategoryImage, c)

	_, err = ParseCategory("video")
	assert.ErrorIs(t, err, ErrInvalidCategory)
}

func TestCategoryFolder(t *testing.T) {
	assert.Equal(t, "images", CategoryImage.Folder())
	assert.Equal(t, "files", CategoryFile.Folder())
}

func TestChangeEvent_Row(t *testing.T) {
	oldRow := &Asset{ID: uuid.New(), Category: CategoryImage}
	newRow := &Asset{ID: uuid.New(), Category: CategoryFile}

	del := NewChangeEvent(ChangeDelete, oldRow, nil)
	assert.Equal(t, oldRow.ID, del.RowID())
	assert.Equal(t, CategoryImage, del.RowCategory())
	assert.Equal(t, FeedSchema, del.Schema)
	assert.Equal(t, FeedTable, del.Table)

	ins := NewChangeEvent(ChangeInsert, nil, newRow)
	assert.Equal(t, newRow.ID, ins.RowID())
	assert.Equal(t, CategoryFile, ins.RowCategory())

	assert.Equal(t, uuid.Nil, ChangeEvent{}.RowID())
}
