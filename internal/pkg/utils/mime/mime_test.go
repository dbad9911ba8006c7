package mime

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

var pngHeader = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0, 0, 0x0d, 'I', 'H', 'D', 'R'}

func TestDetect(t *testing.T) {
	tests := []struct {
		name     string
		content  []byte
		filename string
		declared string
		want     string
	}{
		{"declared wins", []byte("%PDF-1.7"), "a.pdf", "application/pdf", "application/pdf"},
		{"sniff png when undeclared", pngHeader, "cover", "", "image/png"},
		{"sniff png over octet-stream", pngHeader, "cover.bin", "application/octet-stream", "image/png"},
		{"sniff pdf", []byte("%PDF-1.7\n"), "cv.pdf", "", "application/pdf"},
		{"refine markdown", []byte("# title\n"), "notes.md", "", "text/markdown"},
		{"refine svg", []byte(`<?xml version="1.0"?><svg xmlns="http://www.w3.org/2000/svg"></svg>`), "logo.svg", "", "image/svg+xml"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Detect(tt.content, tt.filename, tt.declared))
		})
	}
}
