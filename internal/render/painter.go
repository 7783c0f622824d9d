package render

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/phobologic/treedeco/internal/model"
)

// Painter draws decorated source text for a terminal.
type Painter struct {
	r      *lipgloss.Renderer
	dark   bool
	gutter lipgloss.Style
	hover  lipgloss.Style
}

// NewPainter creates a Painter for w. The color profile is detected from w,
// so non-terminal writers get plain text.
func NewPainter(w io.Writer) *Painter {
	r := lipgloss.NewRenderer(w)
	return &Painter{
		r:      r,
		dark:   r.HasDarkBackground(),
		gutter: r.NewStyle().Foreground(lipgloss.Color("241")),
		hover:  r.NewStyle().Foreground(lipgloss.Color("241")).Italic(true),
	}
}

// span is a styled region of one line, in byte offsets.
type span struct {
	start, end int
	style      model.Style
}

// insert is inline text attached before or after an instance.
type insert struct {
	at    int
	after bool
	text  string
	style model.Style
}

type line struct {
	spans   []span
	inserts []insert
	icon    bool
	hovers  []string
}

// Paint renders text with the given primitives applied, one numbered line
// per source line. Hover messages are listed under the line they start on.
func (p *Painter) Paint(text string, prims []Primitive) string {
	src := strings.Split(text, "\n")
	if len(src) > 1 && src[len(src)-1] == "" {
		src = src[:len(src)-1]
	}
	starts := make([]int, len(src))
	off := 0
	for i, l := range src {
		starts[i] = off
		off += len(l) + 1
	}

	lines := make([]line, len(src))
	for _, prim := range prims {
		for _, inst := range prim.Instances {
			p.place(lines, src, starts, text, prim.Style, inst.Range, inst.RenderOptions, inst.HoverMessage)
		}
	}

	width := len(strconv.Itoa(len(src)))
	var b strings.Builder
	for i, l := range src {
		icon := " "
		if lines[i].icon {
			icon = "●"
		}
		b.WriteString(p.gutter.Render(fmt.Sprintf("%*d %s │", width, i+1, icon)))
		b.WriteByte(' ')
		b.WriteString(p.line(l, lines[i]))
		b.WriteByte('\n')
		for _, h := range lines[i].hovers {
			b.WriteString(strings.Repeat(" ", width+5))
			b.WriteString(p.hover.Render("↳ " + h))
			b.WriteByte('\n')
		}
	}
	return b.String()
}

func (p *Painter) place(lines []line, src []string, starts []int, text string, group model.Style, r model.Range, opts model.Style, hover string) {
	if len(lines) == 0 {
		return
	}
	style := group.Clone()
	if style == nil {
		style = model.Style{}
	}
	theme := model.Light
	if p.dark {
		theme = model.Dark
	}
	for k, v := range opts.Nested(theme) {
		style[k] = v
	}

	first := clamp(r.Start.Line, 0, len(lines)-1)
	last := clamp(r.End.Line, 0, len(lines)-1)
	startAbs := model.ByteOffset(text, r.Start)
	endAbs := model.ByteOffset(text, r.End)
	whole, _ := style[model.IsWholeLine].(bool)

	for i := first; i <= last; i++ {
		s, e := 0, len(src[i])
		if !whole {
			s = clamp(startAbs-starts[i], 0, len(src[i]))
			e = clamp(endAbs-starts[i], 0, len(src[i]))
		}
		if e > s {
			lines[i].spans = append(lines[i].spans, span{start: s, end: e, style: style})
		}
	}

	if before := opts.Nested(model.Before); before != nil {
		lines[first].inserts = append(lines[first].inserts, attachment(before, clamp(startAbs-starts[first], 0, len(src[first])), false))
	}
	if after := opts.Nested(model.After); after != nil {
		lines[last].inserts = append(lines[last].inserts, attachment(after, clamp(endAbs-starts[last], 0, len(src[last])), true))
	}
	if style.String(model.GutterIconPath) != "" {
		lines[first].icon = true
	}
	if hover != "" {
		lines[first].hovers = append(lines[first].hovers, hover)
	}
}

func attachment(s model.Style, at int, after bool) insert {
	style := s.Clone()
	delete(style, model.ContentText)
	return insert{at: at, after: after, text: s.String(model.ContentText), style: style}
}

// line renders one source line. Where spans overlap, later primitives win
// attribute by attribute.
func (p *Painter) line(text string, l line) string {
	cuts := map[int]struct{}{0: {}, len(text): {}}
	for _, s := range l.spans {
		cuts[s.start] = struct{}{}
		cuts[s.end] = struct{}{}
	}
	for _, in := range l.inserts {
		cuts[in.at] = struct{}{}
	}
	points := make([]int, 0, len(cuts))
	for c := range cuts {
		points = append(points, c)
	}
	sort.Ints(points)
	sort.SliceStable(l.inserts, func(i, j int) bool {
		if l.inserts[i].at != l.inserts[j].at {
			return l.inserts[i].at < l.inserts[j].at
		}
		return l.inserts[i].after && !l.inserts[j].after
	})

	var b strings.Builder
	next := 0
	for i, at := range points {
		for next < len(l.inserts) && l.inserts[next].at == at {
			in := l.inserts[next]
			b.WriteString(p.paint(in.text, in.style))
			next++
		}
		if i+1 == len(points) {
			break
		}
		end := points[i+1]
		merged := model.Style{}
		for _, s := range l.spans {
			if s.start <= at && end <= s.end {
				for k, v := range s.style {
					merged[k] = v
				}
			}
		}
		b.WriteString(p.paint(text[at:end], merged))
	}
	return b.String()
}

func (p *Painter) paint(s string, style model.Style) string {
	if s == "" || len(style) == 0 {
		return s
	}
	return p.Style(style).Render(s)
}

// Style converts a decoration style to a lipgloss style. Attributes without
// a terminal equivalent are ignored.
func (p *Painter) Style(s model.Style) lipgloss.Style {
	out := p.r.NewStyle().TabWidth(lipgloss.NoTabConversion)
	if c, ok := Color(s.String(model.BackgroundColor)); ok {
		out = out.Background(c)
	}
	if c, ok := Color(s.String(model.Color)); ok {
		out = out.Foreground(c)
	}
	switch w := s[model.FontWeight].(type) {
	case string:
		if w == "bold" || w == "bolder" {
			out = out.Bold(true)
		} else if n, err := strconv.Atoi(w); err == nil && n >= 600 {
			out = out.Bold(true)
		}
	case float64:
		out = out.Bold(w >= 600)
	case int:
		out = out.Bold(w >= 600)
	}
	if s.String(model.FontStyle) == "italic" || s.String(model.FontStyle) == "oblique" {
		out = out.Italic(true)
	}
	deco := s.String(model.TextDecoration)
	if strings.Contains(deco, "underline") || s.String(model.Border) != "" {
		out = out.Underline(true)
	}
	if strings.Contains(deco, "line-through") {
		out = out.Strikethrough(true)
	}
	return out
}

// cssColors maps the CSS color names most used in decoration styles to hex.
var cssColors = map[string]string{
	"black":   "#000000",
	"white":   "#ffffff",
	"red":     "#ff0000",
	"green":   "#008000",
	"lime":    "#00ff00",
	"blue":    "#0000ff",
	"yellow":  "#ffff00",
	"orange":  "#ffa500",
	"purple":  "#800080",
	"magenta": "#ff00ff",
	"cyan":    "#00ffff",
	"gray":    "#808080",
	"grey":    "#808080",
	"silver":  "#c0c0c0",
	"pink":    "#ffc0cb",
	"brown":   "#a52a2a",
	"navy":    "#000080",
	"teal":    "#008080",
	"olive":   "#808000",
	"maroon":  "#800000",
}

// Color converts a CSS color (name, #rgb, #rrggbb, rgb() or rgba()) to a
// terminal color. Alpha is ignored.
func Color(v string) (lipgloss.TerminalColor, bool) {
	v = strings.ToLower(strings.TrimSpace(v))
	switch {
	case v == "" || v == "transparent":
		return nil, false
	case strings.HasPrefix(v, "#"):
		hex := v[1:]
		if len(hex) == 3 || len(hex) == 4 {
			hex = string([]byte{hex[0], hex[0], hex[1], hex[1], hex[2], hex[2]})
		}
		if len(hex) == 8 {
			hex = hex[:6]
		}
		if len(hex) != 6 {
			return nil, false
		}
		if _, err := strconv.ParseUint(hex, 16, 32); err != nil {
			return nil, false
		}
		return lipgloss.Color("#" + hex), true
	case strings.HasPrefix(v, "rgb"):
		open, closing := strings.IndexByte(v, '('), strings.IndexByte(v, ')')
		if open < 0 || closing < open {
			return nil, false
		}
		parts := strings.Split(v[open+1:closing], ",")
		if len(parts) < 3 {
			return nil, false
		}
		var rgb [3]uint8
		for i := range rgb {
			n, err := strconv.Atoi(strings.TrimSpace(parts[i]))
			if err != nil || n < 0 || n > 255 {
				return nil, false
			}
			rgb[i] = uint8(n)
		}
		return lipgloss.Color(fmt.Sprintf("#%02x%02x%02x", rgb[0], rgb[1], rgb[2])), true
	}
	if hex, ok := cssColors[v]; ok {
		return lipgloss.Color(hex), true
	}
	return nil, false
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
