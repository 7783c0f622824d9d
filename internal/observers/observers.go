// Package observers contains the built-in observers.
package observers

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/phobologic/treedeco/internal/analysis"
	"github.com/phobologic/treedeco/internal/ast"
	"github.com/phobologic/treedeco/internal/config"
	"github.com/phobologic/treedeco/internal/model"
	"github.com/phobologic/treedeco/internal/traverse"
)

// Register adds the observers enabled in cfg to a, in a fixed order: await
// highlighting, kind rules, import annotations.
func Register(a *analysis.Analyzer, cfg config.Config) {
	if cfg.Observers.Await.Enabled {
		a.Register("await", Await(cfg.Observers.Await.Style))
	}
	if len(cfg.Rules) > 0 {
		a.Register("rules", Rules(cfg.Rules))
	}
	if cfg.Observers.Imports.Enabled {
		a.Register("imports", Imports(cfg.Observers.Imports.Style))
	}
}

// Await decorates every await expression with style.
func Await(style model.Style) analysis.ObserverFunc {
	return Rules([]config.Rule{{Kind: "await_expression", Style: style}})
}

// Rules decorates every node whose kind has a rule. A node matching several
// rules gets one decoration per rule.
func Rules(rules []config.Rule) analysis.ObserverFunc {
	byKind := make(map[string][]config.Rule)
	for _, r := range rules {
		byKind[r.Kind] = append(byKind[r.Kind], r)
	}
	return func(_ context.Context, c *analysis.Context) error {
		var errs []error
		_, err := c.Traverse(nil, func(n, _ *ast.Node, _ string) traverse.Directive {
			for _, r := range byKind[n.Kind] {
				if err := c.SetDecoration(analysis.Decoration{Node: n, Style: r.Style, HoverMessage: r.Hover}); err != nil {
					errs = append(errs, err)
					return traverse.Stop
				}
			}
			return traverse.Continue
		}, nil)
		return errors.Join(append(errs, err)...)
	}
}

// importSuffixes are tried in order when resolving a relative module
// specifier to a file.
var importSuffixes = []string{
	"", ".ts", ".tsx", ".d.ts", ".mts", ".js", ".jsx", ".mjs",
	"/index.ts", "/index.tsx", "/index.js", "/index.jsx",
}

// Imports annotates each relative import or re-export with the line count
// of the imported file. style is applied to the inline text. Every file
// read becomes a dependency of the document, so edits to it re-trigger the
// importer.
func Imports(style model.Style) analysis.ObserverFunc {
	return func(_ context.Context, c *analysis.Context) error {
		if c.Document.Path == "" {
			return nil
		}
		var sources []*ast.Node
		_, err := c.Traverse(nil, func(n, _ *ast.Node, _ string) traverse.Directive {
			switch n.Kind {
			case "import_statement", "export_statement":
				if src := n.Field("source"); src != nil {
					sources = append(sources, src)
				}
				return traverse.Ignore
			}
			return traverse.Continue
		}, nil)
		if err != nil {
			return err
		}

		for _, src := range sources {
			spec := strings.Trim(c.Text(src), "\"'`")
			if !strings.HasPrefix(spec, "./") && !strings.HasPrefix(spec, "../") {
				continue
			}
			data, path, ok := readModule(c, spec)
			if !ok {
				continue
			}
			after := style.Clone()
			if after == nil {
				after = model.Style{}
			}
			after[model.ContentText] = lineLabel(countLines(data))
			err := c.SetDecoration(analysis.Decoration{
				Node:         src,
				Style:        model.Style{model.After: map[string]any(after)},
				HoverMessage: path,
			})
			if err != nil {
				return err
			}
		}
		return nil
	}
}

func readModule(c *analysis.Context, spec string) ([]byte, string, bool) {
	for _, suffix := range importSuffixes {
		path := spec + suffix
		data, err := c.ReadFile(path)
		if err == nil {
			return data, path, true
		}
	}
	return nil, "", false
}

func countLines(data []byte) int {
	if len(data) == 0 {
		return 0
	}
	n := bytes.Count(data, []byte{'\n'})
	if data[len(data)-1] != '\n' {
		n++
	}
	return n
}

func lineLabel(n int) string {
	if n == 1 {
		return " // 1 line"
	}
	return fmt.Sprintf(" // %d lines", n)
}
