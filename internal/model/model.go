// Package model defines core data structures for treedeco.
package model

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// Position is a zero-based line and UTF-16 character offset, the convention
// used by the rendering boundary.
type Position struct {
	Line      int `json:"line"`
	Character int `json:"character"`
}

// Range is a half-open span of text: End is exclusive.
type Range struct {
	Start Position `json:"start"`
	End   Position `json:"end"`
}

func (r Range) String() string {
	return fmt.Sprintf("%d:%d-%d:%d", r.Start.Line, r.Start.Character, r.End.Line, r.End.Character)
}

// Document is the host's view of an open text document. The pipeline only
// reads it.
type Document struct {
	URI        string
	Path       string
	LanguageID string
	Version    int
	Text       string
}

// Style is a visual style descriptor: attribute name to value. Values are
// JSON-compatible (strings, numbers, booleans, nested maps and slices).
type Style map[string]any

// Well-known style attributes. Anything else is passed through to the
// rendering boundary untouched.
const (
	BackgroundColor    = "backgroundColor"
	Color              = "color"
	Border             = "border"
	BorderColor        = "borderColor"
	FontStyle          = "fontStyle"
	FontWeight         = "fontWeight"
	TextDecoration     = "textDecoration"
	GutterIconPath     = "gutterIconPath"
	OverviewRulerColor = "overviewRulerColor"
	IsWholeLine        = "isWholeLine"

	// Per-instance attributes.
	Before = "before"
	After  = "after"
	Light  = "light"
	Dark   = "dark"

	// ContentText is the attribute of a Before/After attachment holding the
	// inline text.
	ContentText = "contentText"
)

// Clone returns a shallow copy of s.
func (s Style) Clone() Style {
	if s == nil {
		return nil
	}
	out := make(Style, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// String returns the attribute as a string, or "" when missing or not a string.
func (s Style) String(key string) string {
	v, _ := s[key].(string)
	return v
}

// Nested returns the attribute as a nested style, or nil.
func (s Style) Nested(key string) Style {
	switch v := s[key].(type) {
	case Style:
		return v
	case map[string]any:
		return Style(v)
	}
	return nil
}

// ByteOffset converts a Position into a byte offset within text. Positions
// past the end of a line or the document are clamped.
func ByteOffset(text string, pos Position) int {
	offset := 0
	for line := 0; line < pos.Line; line++ {
		next := strings.IndexByte(text[offset:], '\n')
		if next < 0 {
			return len(text)
		}
		offset += next + 1
	}
	units := 0
	for offset < len(text) && units < pos.Character {
		r, size := utf8.DecodeRuneInString(text[offset:])
		if r == '\n' {
			break
		}
		if r > 0xFFFF {
			units += 2
		} else {
			units++
		}
		offset += size
	}
	return offset
}
