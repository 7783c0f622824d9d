// Package toon implements TOON (Token-Oriented Object Notation) encoding.
package toon

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/phobologic/treedeco/internal/model"
)

var (
	needsQuoting = regexp.MustCompile(`[,:"\\{}\[\]]`)
	looksNumeric = regexp.MustCompile(`^-?(?:0|[1-9]\d*)(?:\.\d+)?$`)
	keywords     = map[string]struct{}{
		"true":  {},
		"false": {},
		"null":  {},
	}
)

// Encode converts a check Report into TOON format. Positions are one-based
// line:column pairs.
func Encode(r *model.Report) string {
	var parts []string

	parts = append(parts, fmt.Sprintf("root: %s", encodeValue(r.Root)))

	var fileRows [][]string
	for i := range r.Files {
		f := &r.Files[i]
		fileRows = append(fileRows, []string{
			f.Path,
			f.Language,
			fmt.Sprintf("%d", len(f.Styles)),
			fmt.Sprintf("%d", f.Decorations()),
			f.Error,
		})
	}
	parts = append(parts, formatTabular("files", []string{"path", "language", "styles", "decorations", "error"}, fileRows))

	var styleRows [][]string
	for i := range r.Files {
		f := &r.Files[i]
		for j := range f.Styles {
			s := &f.Styles[j]
			styleRows = append(styleRows, []string{f.Path, s.ID, s.Key})
		}
	}
	parts = append(parts, formatTabular("styles", []string{"file", "id", "style"}, styleRows))

	var decoRows [][]string
	for i := range r.Files {
		f := &r.Files[i]
		for j := range f.Styles {
			s := &f.Styles[j]
			for k := range s.Decorations {
				d := &s.Decorations[k]
				decoRows = append(decoRows, []string{
					f.Path,
					s.ID,
					position(d.Range.Start),
					position(d.Range.End),
					d.Hover,
					d.Text,
				})
			}
		}
	}
	parts = append(parts, formatTabular("decorations", []string{"file", "id", "start", "end", "hover", "text"}, decoRows))

	return strings.Join(parts, "\n")
}

func position(p model.Position) string {
	return fmt.Sprintf("%d:%d", p.Line+1, p.Character+1)
}

func formatTabular(name string, columns []string, rows [][]string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s[%d]{%s}:", name, len(rows), strings.Join(columns, ","))
	for _, row := range rows {
		encoded := make([]string, len(row))
		for i, cell := range row {
			encoded[i] = encodeValue(cell)
		}
		fmt.Fprintf(&b, "\n  %s", strings.Join(encoded, ","))
	}
	return b.String()
}

func encodeValue(value string) string {
	if value == "" {
		return `""`
	}

	if value != strings.TrimSpace(value) {
		return quote(value)
	}

	if strings.ContainsAny(value, "\n\r\t") {
		return quote(value)
	}

	if _, ok := keywords[strings.ToLower(value)]; ok {
		return quote(value)
	}

	if looksNumeric.MatchString(value) {
		return value
	}

	if needsQuoting.MatchString(value) {
		return quote(value)
	}

	if strings.HasPrefix(value, "-") {
		return quote(value)
	}

	return value
}

func quote(value string) string {
	escaped := strings.ReplaceAll(value, `\`, `\\`)
	escaped = strings.ReplaceAll(escaped, `"`, `\"`)
	escaped = strings.ReplaceAll(escaped, "\n", `\n`)
	escaped = strings.ReplaceAll(escaped, "\r", `\r`)
	escaped = strings.ReplaceAll(escaped, "\t", `\t`)
	return `"` + escaped + `"`
}
