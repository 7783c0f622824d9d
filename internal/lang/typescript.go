package lang

import (
	"github.com/smacker/go-tree-sitter/typescript/tsx"
	"github.com/smacker/go-tree-sitter/typescript/typescript"
)

func init() {
	Languages["typescript"] = &Language{
		Name:       "typescript",
		Extensions: []string{".ts", ".mts", ".cts"},
		lang:       typescript.GetLanguage(),
		slots:      typedSlots,
	}
	Languages["typescriptreact"] = &Language{
		Name:       "typescriptreact",
		Extensions: []string{".tsx"},
		lang:       tsx.GetLanguage(),
		slots:      typedSlots,
	}
}
