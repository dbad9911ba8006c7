package blob

import (
	"errors"
	"strings"
)

var ErrInvalidFullPath = errors.New("invalid object path")

// FullPath is the bucket-qualified object path stored in assets.file_path.
func FullPath(bucket, key string) string {
	return bucket + "/" + key
}

// SplitFullPath reverses FullPath.
func SplitFullPath(fullPath string) (bucket, key string, err error) {
	bucket, key, ok := strings.Cut(fullPath, "/")
	if !ok || bucket == "" || key == "" {
		return "", "", ErrInvalidFullPath
	}
	return bucket, key, nil
}
