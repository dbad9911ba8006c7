package model

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

type Category string

const (
	CategoryImage Category = "image"
	CategoryFile  Category = "file"
)

// SentinelOrdering marks an asset that sits outside its category's ordering,
// such as a profile avatar.
const SentinelOrdering int64 = 0

var ErrInvalidCategory = errors.New("invalid category")

func Categories() []Category { return []Category{CategoryImage, CategoryFile} }

func ParseCategory(s string) (Category, error) {
	switch c := Category(strings.ToLower(strings.TrimSpace(s))); c {
	case CategoryImage, CategoryFile:
		return c, nil
	default:
		return "", ErrInvalidCategory
	}
}

// CategoryFromMIME puts image/* into the image sequence and everything else into file.
func CategoryFromMIME(mime string) Category {
	if strings.HasPrefix(strings.ToLower(strings.TrimSpace(mime)), "image/") {
		return CategoryImage
	}
	return CategoryFile
}

// Folder is the storage key prefix for the category.
func (c Category) Folder() string {
	if c == CategoryImage {
		return "images"
	}
	return "files"
}

type Asset struct {
	ID       uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	FileName string    `gorm:"column:file_name;type:text;not null" json:"file_name"`
	Category Category  `gorm:"type:text;not null;index:idx_assets_category_ordering,priority:1" json:"category"`
	Ordering int64     `gorm:"type:bigint;not null;default:0;index:idx_assets_category_ordering,priority:2" json:"ordering"`
	Usage    string    `gorm:"type:text;not null;default:''" json:"usage"`
	URL      string    `gorm:"column:url;type:text;not null" json:"url"`
	FilePath *string   `gorm:"column:file_path;type:text" json:"-"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Asset) TableName() string { return "assets" }

func (a *Asset) IsSentinel() bool { return a.Ordering == SentinelOrdering }

// MetadataFields is the subset of columns the metadata edit flow may change.
type MetadataFields struct {
	FileName *string `json:"file_name,omitempty"`
	Usage    *string `json:"usage,omitempty"`
}

func (f MetadataFields) Empty() bool { return f.FileName == nil && f.Usage == nil }
