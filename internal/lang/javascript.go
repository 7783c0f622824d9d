package lang

import "github.com/smacker/go-tree-sitter/javascript"

func init() {
	// The JavaScript grammar parses JSX as well, so both identifiers share it.
	Languages["javascript"] = &Language{
		Name:       "javascript",
		Extensions: []string{".js", ".mjs", ".cjs"},
		lang:       javascript.GetLanguage(),
		slots:      ecmaSlots,
	}
	Languages["javascriptreact"] = &Language{
		Name:       "javascriptreact",
		Extensions: []string{".jsx"},
		lang:       javascript.GetLanguage(),
		slots:      ecmaSlots,
	}
}
