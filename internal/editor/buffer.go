// Package editor holds the server side of the post editor: the text buffer
// mirrored from the browser textarea, the formatting toolbar, and the editor
// sessions that save drafts and publish posts.
package editor

import "unicode/utf16"

// Selection is a range of UTF-16 code units, the unit a textarea reports in
// selectionStart and selectionEnd.
type Selection struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

func (s Selection) Empty() bool {
	return s.Start == s.End
}

// Buffer is the document being edited. It is not safe for concurrent use.
type Buffer struct {
	text []uint16
	sel  Selection
}

// NewBuffer returns a buffer holding text with the cursor at its end.
func NewBuffer(text string) *Buffer {
	b := &Buffer{text: utf16.Encode([]rune(text))}
	b.sel = Selection{Start: len(b.text), End: len(b.text)}
	return b
}

func (b *Buffer) String() string {
	return string(utf16.Decode(b.text))
}

// Len is the length of the text in UTF-16 code units.
func (b *Buffer) Len() int {
	return len(b.text)
}

func (b *Buffer) Selection() Selection {
	return b.sel
}

// Select sets the selection. Positions are clamped to the text and swapped
// when start is after end.
func (b *Buffer) Select(start, end int) Selection {
	start, end = b.clamp(start), b.clamp(end)
	if start > end {
		start, end = end, start
	}
	b.sel = Selection{Start: start, End: end}
	return b.sel
}

// Reset replaces the whole text, as when the browser sends its textarea.
func (b *Buffer) Reset(text string, sel Selection) {
	b.text = utf16.Encode([]rune(text))
	b.Select(sel.Start, sel.End)
}

func (b *Buffer) Selected() string {
	return string(utf16.Decode(b.text[b.sel.Start:b.sel.End]))
}

// Insert wraps the selection in prefix and suffix and leaves the cursor
// after the inserted suffix.
func (b *Buffer) Insert(prefix, suffix string) Selection {
	p := utf16.Encode([]rune(prefix))
	s := utf16.Encode([]rune(suffix))
	start, end := b.sel.Start, b.sel.End

	out := make([]uint16, 0, len(b.text)+len(p)+len(s))
	out = append(out, b.text[:start]...)
	out = append(out, p...)
	out = append(out, b.text[start:end]...)
	out = append(out, s...)
	out = append(out, b.text[end:]...)
	b.text = out

	cursor := start + len(p) + (end - start) + len(s)
	b.sel = Selection{Start: cursor, End: cursor}
	return b.sel
}

func (b *Buffer) clamp(pos int) int {
	return max(0, min(pos, len(b.text)))
}

// Units returns the length of s in UTF-16 code units.
func Units(s string) int {
	n := 0
	for _, r := range s {
		n += utf16.RuneLen(r)
	}
	return n
}
