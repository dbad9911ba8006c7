package blob

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitFullPath(t *testing.T) {
	bucket, key, err := SplitFullPath(FullPath("assets", "images/cover_1700000000000.png"))
	require.NoError(t, err)
	assert.Equal(t, "assets", bucket)
	assert.Equal(t, "images/cover_1700000000000.png", key)

	for _, bad := range []string{"", "assets", "assets/", "/images/a.png"} {
		_, _, err := SplitFullPath(bad)
		assert.ErrorIs(t, err, ErrInvalidFullPath, bad)
	}
}

func TestPublicURL(t *testing.T) {
	u := &S3Deps{publicBaseURL: "https://cdn.example.com/storage/v1/object/public"}
	assert.Equal(t,
		"https://cdn.example.com/storage/v1/object/public/assets/files/CV%20final_1.pdf",
		u.PublicURL("assets", "files/CV final_1.pdf"))

	u = &S3Deps{endpoint: "http://localhost:9000"}
	assert.Equal(t, "http://localhost:9000/assets/images/a.png", u.PublicURL("assets", "images/a.png"))
}
