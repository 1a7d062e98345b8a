package commands

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestShortenRef(t *testing.T) {
	tests := []struct {
		name  string
		ref   string
		width int
		want  string
	}{
		{name: "short", ref: "/photos/a.png", width: 50, want: "/photos/a.png"},
		{name: "ascii tail", ref: "/very/long/path/to/photo.png", width: 12, want: "...photo.png"},
		{name: "multibyte tail", ref: "/фото/отпуск/снимок.png", width: 13, want: "...снимок.png"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := shortenRef(tt.ref, tt.width)
			assert.Equal(t, tt.want, got)
			assert.True(t, utf8.ValidString(got))
		})
	}
}

func TestShortenRef_NeverSplitsRunes(t *testing.T) {
	ref := "/" + strings.Repeat("日本", 40) + ".jpg"

	got := shortenRef(ref, maxRefWidth)
	assert.True(t, utf8.ValidString(got))
	assert.Equal(t, maxRefWidth, utf8.RuneCountInString(got))
	assert.True(t, strings.HasSuffix(got, ".jpg"))
}
