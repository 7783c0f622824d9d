// Package lang provides the registry of supported languages, mapping LSP
// language identifiers and file extensions to tree-sitter grammars and the
// child-slot schema of each grammar.
package lang

import (
	"sort"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/phobologic/treedeco/internal/ast"
)

// Language holds tree-sitter configuration for a supported language.
type Language struct {
	// Name is the LSP language identifier, e.g. "typescriptreact".
	Name       string
	Extensions []string
	lang       *sitter.Language

	// slots declares the field slots of well-known node kinds, in source
	// order. Kinds not listed only get the children slot.
	slots map[string][]ast.Slot

	schemaOnce sync.Once
	schema     *ast.Schema
}

// NewParser creates a fresh tree-sitter parser for this language.
// Each goroutine must use its own parser (not thread-safe).
func (l *Language) NewParser() *sitter.Parser {
	p := sitter.NewParser()
	p.SetLanguage(l.lang)
	return p
}

// Schema returns the node-kind schema for this language. It is derived once
// from the grammar's symbol table: every named kind is known, and kinds with
// declared fields get those slots ahead of the children slot.
func (l *Language) Schema() *ast.Schema {
	l.schemaOnce.Do(func() {
		kinds := make(map[string][]ast.Slot)
		for i := 0; i < int(l.lang.SymbolCount()); i++ {
			sym := sitter.Symbol(i)
			if l.lang.SymbolType(sym) != sitter.SymbolTypeRegular {
				continue
			}
			name := l.lang.SymbolName(sym)
			if _, seen := kinds[name]; seen {
				continue
			}
			kinds[name] = l.slots[name]
		}
		// Declared kinds missing from the symbol table (aliases renamed
		// between grammar versions) are still honoured.
		for name, slots := range l.slots {
			if _, seen := kinds[name]; !seen {
				kinds[name] = slots
			}
		}
		l.schema = ast.NewSchema(kinds)
	})
	return l.schema
}

// Languages maps LSP language identifiers to their configuration.
// Populated by init() functions in per-language files.
var Languages = map[string]*Language{}

// extensionMap is built lazily after all init() functions have run.
var extensionMap map[string]string
var extensionOnce sync.Once

func getExtensionMap() map[string]string {
	extensionOnce.Do(func() {
		extensionMap = make(map[string]string)
		for _, l := range Languages {
			for _, ext := range l.Extensions {
				extensionMap[ext] = l.Name
			}
		}
	})
	return extensionMap
}

// ForExtension returns the language name for a file extension, or "" if unsupported.
func ForExtension(ext string) string {
	return getExtensionMap()[ext]
}

// ForID returns the language registered for an LSP language identifier, or nil.
func ForID(id string) *Language {
	return Languages[id]
}

// Names returns the registered language identifiers, sorted.
func Names() []string {
	names := make([]string, 0, len(Languages))
	for name := range Languages {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func one(name string) ast.Slot  { return ast.Slot{Name: name} }
func many(name string) ast.Slot { return ast.Slot{Name: name, Many: true} }
