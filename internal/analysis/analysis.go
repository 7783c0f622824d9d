// Package analysis runs one analysis pass: it parses a document, hands the
// tree to every registered observer in turn and collects the decorations
// they request.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tliron/commonlog"

	"github.com/phobologic/treedeco/internal/ast"
	"github.com/phobologic/treedeco/internal/content"
	"github.com/phobologic/treedeco/internal/decorate"
	"github.com/phobologic/treedeco/internal/lang"
	"github.com/phobologic/treedeco/internal/model"
	"github.com/phobologic/treedeco/internal/parse"
	"github.com/phobologic/treedeco/internal/traverse"
)

var log = commonlog.GetLogger("treedeco.analysis")

var (
	// ErrCallbackExpired is returned when an observer uses its Context after
	// it has returned.
	ErrCallbackExpired = errors.New("callback used after its observer returned")
	// ErrUnsupportedLanguage is returned for documents whose language has no
	// enabled grammar.
	ErrUnsupportedLanguage = errors.New("unsupported language")
)

// ObserverError wraps a failure raised by an observer.
type ObserverError struct {
	Observer string
	Err      error
}

func (e *ObserverError) Error() string {
	return fmt.Sprintf("observer %s: %v", e.Observer, e.Err)
}

func (e *ObserverError) Unwrap() error { return e.Err }

// ObserverFunc inspects a parsed document through c. It must not retain c:
// every method fails with ErrCallbackExpired once the function returns.
type ObserverFunc func(ctx context.Context, c *Context) error

// Decoration is one request made through Context.SetDecoration. Exactly one
// of Node and Range places it; Node wins when both are set.
type Decoration struct {
	Node         *ast.Node
	Range        *model.Range
	Style        model.Style
	HoverMessage string
}

// FileReader resolves the freshest contents of a file.
type FileReader interface {
	ResolveLatest(path string) (content.Resolved, error)
}

// Result is the outcome of a completed pass.
type Result struct {
	Requests []decorate.Request
	// Dependencies lists the files read through Context.ReadFile, sorted.
	Dependencies []string
	Duration     time.Duration
}

type observer struct {
	name string
	fn   ObserverFunc
}

// pass collects what the observers of one run produce.
type pass struct {
	mu       sync.Mutex
	requests []decorate.Request
	deps     map[string]struct{}
}

// Context is handed to one observer invocation.
type Context struct {
	Tree     *ast.Tree
	Document model.Document

	observer string
	reader   FileReader
	pass     *pass
	expired  atomic.Bool
}

func (c *Context) check(op string) error {
	if c.expired.Load() {
		return fmt.Errorf("%s from observer %s: %w", op, c.observer, ErrCallbackExpired)
	}
	return nil
}

// SetDecoration requests a decoration. Node references are resolved to a
// range immediately.
func (c *Context) SetDecoration(d Decoration) error {
	if err := c.check("SetDecoration"); err != nil {
		return err
	}
	var r model.Range
	switch {
	case d.Node != nil:
		r = c.Tree.RangeOf(d.Node)
	case d.Range != nil:
		r = *d.Range
	default:
		return errors.New("decoration has neither a node nor a range")
	}
	c.pass.mu.Lock()
	c.pass.requests = append(c.pass.requests, decorate.Request{
		Range:        r,
		Style:        d.Style.Clone(),
		HoverMessage: d.HoverMessage,
	})
	c.pass.mu.Unlock()
	return nil
}

// Traverse walks from node, or from the root when node is nil.
func (c *Context) Traverse(node *ast.Node, enter traverse.EnterFunc, exit traverse.ExitFunc) (traverse.Directive, error) {
	if err := c.check("Traverse"); err != nil {
		return traverse.Continue, err
	}
	if node == nil {
		node = c.Tree.Root
	}
	return traverse.Walk(c.Tree.Schema, node, enter, exit), nil
}

// Text returns the source text of n.
func (c *Context) Text(n *ast.Node) string {
	return c.Tree.Text(n)
}

// ReadFile returns the freshest contents of path, resolved relative to the
// document's directory. The file becomes a dependency of the document even
// when it cannot be read.
func (c *Context) ReadFile(path string) ([]byte, error) {
	if err := c.check("ReadFile"); err != nil {
		return nil, err
	}
	if c.reader == nil {
		return nil, errors.New("no file reader configured")
	}
	if !filepath.IsAbs(path) && c.Document.Path != "" {
		path = filepath.Join(filepath.Dir(c.Document.Path), path)
	}
	path = filepath.Clean(path)

	c.pass.mu.Lock()
	c.pass.deps[path] = struct{}{}
	c.pass.mu.Unlock()

	res, err := c.reader.ResolveLatest(path)
	if err != nil {
		return nil, err
	}
	return res.Contents, nil
}

// Options configure an Analyzer.
type Options struct {
	// Languages restricts the enabled LSP language ids. Empty enables every
	// registered language.
	Languages []string
	// Reader serves Context.ReadFile. Optional.
	Reader FileReader
}

// Analyzer holds the observer registry.
type Analyzer struct {
	reader  FileReader
	enabled map[string]*lang.Language

	mu        sync.RWMutex
	observers []observer
}

// New creates an Analyzer. Unknown language ids are ignored.
func New(opts Options) *Analyzer {
	ids := opts.Languages
	if len(ids) == 0 {
		ids = lang.Names()
	}
	enabled := make(map[string]*lang.Language, len(ids))
	for _, id := range ids {
		if l := lang.ForID(id); l != nil {
			enabled[id] = l
		}
	}
	return &Analyzer{reader: opts.Reader, enabled: enabled}
}

// Register appends an observer. Observers run in registration order.
func (a *Analyzer) Register(name string, fn ObserverFunc) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.observers = append(a.observers, observer{name: name, fn: fn})
}

// Observers returns the registered observer names in order.
func (a *Analyzer) Observers() []string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	names := make([]string, len(a.observers))
	for i, o := range a.observers {
		names[i] = o.name
	}
	return names
}

// Supports reports whether documents of languageID can be analysed.
func (a *Analyzer) Supports(languageID string) bool {
	_, ok := a.enabled[languageID]
	return ok
}

// Run performs one pass over doc. A parse failure is returned as a
// *parse.ParseError and an observer failure as an *ObserverError; in both
// cases no result is produced and the requests collected so far are
// discarded.
func (a *Analyzer) Run(ctx context.Context, doc model.Document) (*Result, error) {
	start := time.Now()
	l, ok := a.enabled[doc.LanguageID]
	if !ok {
		return nil, fmt.Errorf("%s (%q): %w", doc.URI, doc.LanguageID, ErrUnsupportedLanguage)
	}

	tree, err := parse.Parse(ctx, l, []byte(doc.Text))
	if err != nil {
		return nil, err
	}

	a.mu.RLock()
	observers := append([]observer(nil), a.observers...)
	a.mu.RUnlock()

	p := &pass{deps: make(map[string]struct{})}
	for _, o := range observers {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		c := &Context{
			Tree:     tree,
			Document: doc,
			observer: o.name,
			reader:   a.reader,
			pass:     p,
		}
		err := invoke(ctx, o, c)
		c.expired.Store(true)
		if err != nil {
			return nil, &ObserverError{Observer: o.name, Err: err}
		}
	}

	deps := make([]string, 0, len(p.deps))
	for path := range p.deps {
		deps = append(deps, path)
	}
	sort.Strings(deps)

	res := &Result{Requests: p.requests, Dependencies: deps, Duration: time.Since(start)}
	log.Debugf("analysed %s v%d: %d decorations from %d observers in %s",
		doc.URI, doc.Version, len(res.Requests), len(observers), res.Duration)
	return res, nil
}

func invoke(ctx context.Context, o observer, c *Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return o.fn(ctx, c)
}
