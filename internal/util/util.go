// Package util provides content hashing, slug generation and front matter parsing.
package util

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/BurntSushi/toml"
	"github.com/gomarkdown/markdown"

	"github.com/mmarkdown/mmark/v2/mast"
)

var ErrNoFrontMatter = errors.New("invalid front matter format")

// ExtendedTitleData is the mmark title block plus the post fields the backend expects.
type ExtendedTitleData struct {
	*mast.TitleData
	Slug       string   `toml:"slug"`
	Excerpt    string   `toml:"excerpt"`
	Tags       []string `toml:"tags"`
	Categories []string `toml:"categories"`
	Draft      bool     `toml:"draft"`
	CoverImage string   `toml:"cover_image"`

	Consumed     int `toml:"-"`
	ToolbarTitle string
}

// Category returns the first category named in the front matter.
func (e *ExtendedTitleData) Category() string {
	if len(e.Categories) == 0 {
		return ""
	}
	return e.Categories[0]
}

func ContentHash(content []byte) string {
	hash := sha256.Sum256(content)
	return hex.EncodeToString(hash[:])
}

func ContentHashString(content string) string {
	return ContentHash([]byte(content))
}

// GetFrontMatter decodes a leading %%% TOML %%% block.
func GetFrontMatter(md []byte) (*ExtendedTitleData, error) {
	md = markdown.NormalizeNewlines(md)
	md = bytes.TrimLeft(md, "\n \t\r")

	delimiter := []byte("%%%")

	if len(md) < 2*len(delimiter) || !bytes.HasPrefix(md, delimiter) {
		return nil, ErrNoFrontMatter
	}

	second := bytes.Index(md[len(delimiter):], delimiter)
	if second == -1 {
		return nil, ErrNoFrontMatter
	}

	end := second + 2*len(delimiter) + 1
	if end > len(md) {
		return nil, ErrNoFrontMatter
	}

	frontMatter := md[len(delimiter) : end-len(delimiter)-1]
	info := &ExtendedTitleData{
		TitleData: &mast.TitleData{},
	}

	if _, err := toml.Decode(string(frontMatter), info); err != nil {
		return nil, fmt.Errorf("failed to decode front matter: %w", err)
	}

	if info.Language == "" {
		info.Language = "en"
	}
	info.Consumed = end

	return info, nil
}

// StripFrontMatter returns the document body that follows a front matter block, or md unchanged.
func StripFrontMatter(md []byte) []byte {
	info, err := GetFrontMatter(md)
	if err != nil {
		return md
	}
	md = bytes.TrimLeft(markdown.NormalizeNewlines(md), "\n \t\r")
	return bytes.TrimLeft(md[info.Consumed:], "\n")
}

// Slugify lowercases s and joins its letter and digit runs with hyphens.
// Non-Latin letters are kept as is.
func Slugify(s string) string {
	var b strings.Builder
	pendingDash := false
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			if pendingDash && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingDash = false
			b.WriteRune(r)
		default:
			pendingDash = true
		}
	}
	return b.String()
}
