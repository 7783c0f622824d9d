package lang

import (
	"testing"

	"github.com/phobologic/treedeco/internal/ast"
)

func TestForExtension(t *testing.T) {
	t.Parallel()

	tests := []struct {
		ext  string
		want string
	}{
		{".ts", "typescript"},
		{".tsx", "typescriptreact"},
		{".js", "javascript"},
		{".mjs", "javascript"},
		{".jsx", "javascriptreact"},
		{".py", ""},
		{"", ""},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.ext, func(t *testing.T) {
			t.Parallel()
			got := ForExtension(tt.ext)
			if got != tt.want {
				t.Errorf("ForExtension(%q) = %q, want %q", tt.ext, got, tt.want)
			}
		})
	}
}

func TestLanguagesRegistered(t *testing.T) {
	t.Parallel()

	for _, name := range []string{"typescript", "typescriptreact", "javascript", "javascriptreact"} {
		l := ForID(name)
		if l == nil {
			t.Fatalf("%s language not registered", name)
		}
		if l.lang == nil {
			t.Errorf("%s grammar is nil", name)
		}
	}
	if ForID("python") != nil {
		t.Error("python should not be registered")
	}
	if got := len(Names()); got != 4 {
		t.Errorf("Names() has %d entries, want 4", got)
	}
}

func TestNewParser(t *testing.T) {
	t.Parallel()

	p := ForID("typescript").NewParser()
	if p == nil {
		t.Fatal("NewParser returned nil")
	}
}

func TestSchema(t *testing.T) {
	t.Parallel()

	s := ForID("typescript").Schema()
	if !s.Known("program") {
		t.Fatal("schema is missing the root kind")
	}
	if s != ForID("typescript").Schema() {
		t.Error("schema should be built once")
	}

	for _, kind := range []string{"program", "await_expression", "function_declaration", "identifier"} {
		if !s.Known(kind) {
			t.Errorf("kind %q missing from schema", kind)
		}
	}

	slots := s.Slots("function_declaration")
	var names []string
	for _, slot := range slots {
		names = append(names, slot.Name)
	}
	want := []string{"name", "type_parameters", "parameters", "return_type", "body", ast.ChildrenSlot}
	if len(names) != len(want) {
		t.Fatalf("function_declaration slots = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("slot %d = %q, want %q", i, names[i], want[i])
		}
	}

	if got := s.Slots("await_expression"); len(got) != 1 || got[0].Name != ast.ChildrenSlot {
		t.Errorf("await_expression slots = %+v", got)
	}
	if s.Known("not_a_kind") {
		t.Error("unknown kind reported as known")
	}
}

func TestJavaScriptSchemaHasNoTypeSlots(t *testing.T) {
	t.Parallel()

	s := ForID("javascript").Schema()
	if s.Has("function_declaration", "return_type") {
		t.Error("javascript schema should not declare return_type")
	}
	if !s.Has("call_expression", "arguments") {
		t.Error("javascript schema should declare call arguments")
	}
}
