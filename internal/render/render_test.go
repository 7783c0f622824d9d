package render

import (
	"bytes"
	"context"
	"testing"

	"github.com/charmbracelet/lipgloss"

	"github.com/phobologic/treedeco/internal/decorate"
	"github.com/phobologic/treedeco/internal/model"
)

func rng(sl, sc, el, ec int) model.Range {
	return model.Range{Start: model.Position{Line: sl, Character: sc}, End: model.Position{Line: el, Character: ec}}
}

func TestRecorder(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	r := NewRecorder()

	a, err := r.CreateStyle(ctx, "file:///a.ts", model.Style{model.Color: "red"})
	if err != nil {
		t.Fatal(err)
	}
	b, _ := r.CreateStyle(ctx, "file:///a.ts", model.Style{model.Color: "blue"})
	_, _ = r.CreateStyle(ctx, "file:///b.ts", model.Style{model.Color: "red"})
	if a != "style-1" || b != "style-2" {
		t.Errorf("handles = %s, %s", a, b)
	}

	insts := []decorate.Instance{{Range: rng(0, 0, 0, 1)}}
	if err := r.ApplyInstances(ctx, b, insts); err != nil {
		t.Fatal(err)
	}
	insts[0].HoverMessage = "mutated"

	snap := r.Snapshot("file:///a.ts")
	if len(snap) != 2 || snap[0].Handle != a || snap[1].Handle != b {
		t.Fatalf("snapshot = %+v", snap)
	}
	if len(snap[1].Instances) != 1 || snap[1].Instances[0].HoverMessage != "" {
		t.Errorf("instances not copied: %+v", snap[1].Instances)
	}

	if err := r.Dispose(ctx, a); err != nil {
		t.Fatal(err)
	}
	if err := r.Dispose(ctx, a); err == nil {
		t.Error("expected error disposing twice")
	}
	if err := r.ApplyInstances(ctx, a, nil); err == nil {
		t.Error("expected error applying to disposed handle")
	}
	if r.Len() != 2 {
		t.Errorf("Len = %d, want 2", r.Len())
	}
}

func TestRecorderWithReconciler(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	r := NewRecorder()
	rec := decorate.NewReconciler(r)

	reqs := []decorate.Request{
		{Range: rng(0, 0, 0, 3), Style: model.Style{model.Color: "red"}},
		{Range: rng(1, 0, 1, 3), Style: model.Style{model.Color: "red"}},
	}
	if _, err := rec.Reconcile(ctx, "file:///a.ts", reqs); err != nil {
		t.Fatal(err)
	}
	snap := r.Snapshot("file:///a.ts")
	if len(snap) != 1 || len(snap[0].Instances) != 2 {
		t.Fatalf("snapshot = %+v", snap)
	}
	if _, err := rec.Reconcile(ctx, "file:///a.ts", nil); err != nil {
		t.Fatal(err)
	}
	if r.Len() != 0 {
		t.Errorf("primitives leaked: %d", r.Len())
	}
}

func TestPaintPlain(t *testing.T) {
	t.Parallel()
	p := NewPainter(&bytes.Buffer{})

	text := "import x from './x';\nconst y = await x();\n"
	prims := []Primitive{
		{
			Style: model.Style{model.BackgroundColor: "blue", model.GutterIconPath: "/i.svg"},
			Instances: []decorate.Instance{{
				Range:        rng(1, 10, 1, 19),
				HoverMessage: "awaits",
			}},
		},
		{
			Style: model.Style{},
			Instances: []decorate.Instance{{
				Range: rng(0, 14, 0, 19),
				RenderOptions: model.Style{
					model.After:  map[string]any{model.ContentText: " // 3 lines", model.Color: "gray"},
					model.Before: map[string]any{model.ContentText: "→"},
				},
			}},
		},
	}

	got := p.Paint(text, prims)
	want := "1   │ import x from →'./x' // 3 lines;\n" +
		"2 ● │ const y = await x();\n" +
		"      ↳ awaits\n"
	if got != want {
		t.Errorf("Paint =\n%q\nwant\n%q", got, want)
	}
}

func TestPaintMultiLineAndWholeLine(t *testing.T) {
	t.Parallel()
	p := NewPainter(&bytes.Buffer{})

	text := "a\nbb\nccc"
	prims := []Primitive{
		{Style: model.Style{model.Color: "red"}, Instances: []decorate.Instance{{Range: rng(0, 0, 2, 1)}}},
		{Style: model.Style{model.IsWholeLine: true, model.Color: "blue"}, Instances: []decorate.Instance{
			{Range: rng(2, 1, 2, 1), RenderOptions: model.Style{model.After: map[string]any{model.ContentText: "!"}}},
		}},
	}
	want := "1   │ a\n2   │ bb\n3   │ c!cc\n"
	if got := p.Paint(text, prims); got != want {
		t.Errorf("Paint =\n%q\nwant\n%q", got, want)
	}
}

func TestPaintOutOfRange(t *testing.T) {
	t.Parallel()
	p := NewPainter(&bytes.Buffer{})
	prims := []Primitive{{Style: model.Style{model.Color: "red"}, Instances: []decorate.Instance{{Range: rng(9, 0, 12, 4)}}}}
	if got := p.Paint("x\n", prims); got != "1   │ x\n" {
		t.Errorf("Paint = %q", got)
	}
}

func TestThemeOverride(t *testing.T) {
	t.Parallel()
	p := NewPainter(&bytes.Buffer{})
	p.dark = true

	lines := make([]line, 1)
	p.place(lines, []string{"abc"}, []int{0}, "abc", model.Style{model.Color: "red"}, rng(0, 0, 0, 3), model.Style{
		model.Dark:  map[string]any{model.Color: "white"},
		model.Light: map[string]any{model.Color: "black"},
	}, "")
	if len(lines[0].spans) != 1 || lines[0].spans[0].style.String(model.Color) != "white" {
		t.Errorf("spans = %+v", lines[0].spans)
	}
}

func TestColor(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   string
		want lipgloss.TerminalColor
		ok   bool
	}{
		{"red", lipgloss.Color("#ff0000"), true},
		{" Gray ", lipgloss.Color("#808080"), true},
		{"#abc", lipgloss.Color("#aabbcc"), true},
		{"#A1B2C3", lipgloss.Color("#a1b2c3"), true},
		{"#a1b2c380", lipgloss.Color("#a1b2c3"), true},
		{"rgba(255, 196, 0, 0.25)", lipgloss.Color("#ffc400"), true},
		{"rgb(1,2,3)", lipgloss.Color("#010203"), true},
		{"rgb(1,2)", nil, false},
		{"rgb(300,2,3)", nil, false},
		{"#zzzzzz", nil, false},
		{"transparent", nil, false},
		{"", nil, false},
		{"var(--x)", nil, false},
	}
	for _, tt := range tests {
		got, ok := Color(tt.in)
		if ok != tt.ok || got != tt.want {
			t.Errorf("Color(%q) = %v, %v; want %v, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func TestStyleBold(t *testing.T) {
	t.Parallel()
	p := NewPainter(&bytes.Buffer{})
	tests := []struct {
		weight any
		want   bool
	}{
		{"bold", true},
		{"700", true},
		{"normal", false},
		{float64(600), true},
		{400, false},
	}
	for _, tt := range tests {
		s := p.Style(model.Style{model.FontWeight: tt.weight})
		if s.GetBold() != tt.want {
			t.Errorf("fontWeight %v: bold = %v", tt.weight, s.GetBold())
		}
	}
	s := p.Style(model.Style{model.TextDecoration: "underline line-through", model.FontStyle: "italic"})
	if !s.GetUnderline() || !s.GetStrikethrough() || !s.GetItalic() {
		t.Error("expected underline, strikethrough and italic")
	}
}
