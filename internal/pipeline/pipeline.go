// Package pipeline wires the debounced scheduler, the analysis pass and the
// reconciler together for the documents a host has open.
package pipeline

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/tliron/commonlog"

	"github.com/phobologic/treedeco/internal/analysis"
	"github.com/phobologic/treedeco/internal/content"
	"github.com/phobologic/treedeco/internal/debounce"
	"github.com/phobologic/treedeco/internal/decorate"
	"github.com/phobologic/treedeco/internal/model"
)

var log = commonlog.GetLogger("treedeco.pipeline")

// Notifier surfaces pass outcomes to the user.
type Notifier interface {
	// Failure reports a pass that produced no decorations.
	Failure(ctx context.Context, doc model.Document, err error)
	// Status publishes the usage summary after each pass.
	Status(ctx context.Context, summary string)
}

type logNotifier struct{}

func (logNotifier) Failure(_ context.Context, doc model.Document, err error) {
	log.Warningf("%s: %s", doc.URI, err.Error())
}

func (logNotifier) Status(_ context.Context, summary string) {
	log.Debugf("usage: %s", summary)
}

// Options configure a Pipeline.
type Options struct {
	Analyzer *analysis.Analyzer
	Renderer decorate.Renderer
	// Resolver receives every text change. Optional; without it dependency
	// watches are disabled.
	Resolver *content.Resolver
	// Notifier defaults to logging.
	Notifier Notifier

	Debounce    time.Duration
	UsageWindow time.Duration

	// AfterFunc and Now replace the real clock in tests.
	AfterFunc debounce.AfterFunc
	Now       func() time.Time
}

// Pipeline owns the per-document state of one host session.
type Pipeline struct {
	analyzer   *analysis.Analyzer
	reconciler *decorate.Reconciler
	resolver   *content.Resolver
	notifier   Notifier
	scheduler  *debounce.Scheduler
	usage      *Usage
	now        func() time.Time

	// applyMu orders the apply step of a pass against Close, so a closing
	// document cannot get primitives back from a pass that was in flight.
	applyMu sync.Mutex

	mu           sync.Mutex
	docs         map[string]model.Document
	active       string
	visible      map[string]struct{}
	visibleKnown bool
	watches      map[string]map[string]func() // uri → dependency path → unwatch
}

// New creates a Pipeline.
func New(opts Options) *Pipeline {
	if opts.Notifier == nil {
		opts.Notifier = logNotifier{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	p := &Pipeline{
		analyzer:   opts.Analyzer,
		reconciler: decorate.NewReconciler(opts.Renderer),
		resolver:   opts.Resolver,
		notifier:   opts.Notifier,
		usage:      NewUsage(opts.UsageWindow, opts.Now),
		now:        opts.Now,
		docs:       make(map[string]model.Document),
		visible:    make(map[string]struct{}),
		watches:    make(map[string]map[string]func()),
	}
	p.scheduler = debounce.New(debounce.Options{
		Window:    opts.Debounce,
		Run:       p.run,
		Eligible:  p.eligible,
		AfterFunc: opts.AfterFunc,
	})
	return p
}

// Open registers a document and schedules its first pass.
func (p *Pipeline) Open(doc model.Document) {
	p.mu.Lock()
	p.docs[doc.URI] = doc
	p.mu.Unlock()
	p.updateContent(doc)
	p.scheduler.Trigger(doc.URI)
}

// Change replaces the text of an open document. Unknown documents are
// ignored.
func (p *Pipeline) Change(uri string, version int, text string) {
	p.mu.Lock()
	doc, ok := p.docs[uri]
	if ok {
		doc.Version = version
		doc.Text = text
		p.docs[uri] = doc
	}
	p.mu.Unlock()
	if !ok {
		log.Debugf("change for unknown document %s", uri)
		return
	}
	p.updateContent(doc)
	p.scheduler.Trigger(uri)
}

func (p *Pipeline) updateContent(doc model.Document) {
	if p.resolver != nil && doc.Path != "" {
		p.resolver.Update(doc.Path, []byte(doc.Text))
	}
}

// Focus marks uri as the active document and schedules a pass for it.
func (p *Pipeline) Focus(uri string) {
	p.mu.Lock()
	p.active = uri
	_, open := p.docs[uri]
	p.mu.Unlock()
	if open {
		p.scheduler.Trigger(uri)
	}
}

// SetVisible records the documents currently shown by the host. Once the
// host has reported visibility, only visible or active documents are
// analysed. Newly visible documents get a pass.
func (p *Pipeline) SetVisible(uris []string) {
	p.mu.Lock()
	prev := p.visible
	p.visible = make(map[string]struct{}, len(uris))
	p.visibleKnown = true
	var shown []string
	for _, uri := range uris {
		p.visible[uri] = struct{}{}
		if _, was := prev[uri]; was {
			continue
		}
		if _, open := p.docs[uri]; open {
			shown = append(shown, uri)
		}
	}
	p.mu.Unlock()
	for _, uri := range shown {
		p.scheduler.Trigger(uri)
	}
}

// Close forgets a document: its pending pass is dropped, its primitives are
// released and its editor contents discarded.
func (p *Pipeline) Close(ctx context.Context, uri string) error {
	p.applyMu.Lock()
	defer p.applyMu.Unlock()

	p.mu.Lock()
	doc, ok := p.docs[uri]
	delete(p.docs, uri)
	delete(p.visible, uri)
	if p.active == uri {
		p.active = ""
	}
	unwatch := p.watches[uri]
	delete(p.watches, uri)
	p.mu.Unlock()

	for _, fn := range unwatch {
		fn()
	}
	p.scheduler.Forget(uri)
	if ok && p.resolver != nil && doc.Path != "" {
		p.resolver.Discard(doc.Path)
	}
	return p.reconciler.Forget(ctx, uri)
}

// Stop cancels pending passes, waits for running ones and releases every
// primitive.
func (p *Pipeline) Stop(ctx context.Context) error {
	p.scheduler.Close()

	p.mu.Lock()
	uris := make([]string, 0, len(p.docs))
	for uri := range p.docs {
		uris = append(uris, uri)
	}
	p.mu.Unlock()
	sort.Strings(uris)

	var errs []error
	for _, uri := range uris {
		errs = append(errs, p.Close(ctx, uri))
	}
	return errors.Join(errs...)
}

// Document returns the current snapshot of an open document.
func (p *Pipeline) Document(uri string) (model.Document, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	doc, ok := p.docs[uri]
	return doc, ok
}

// Active returns the URI of the focused document, if any.
func (p *Pipeline) Active() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.active
}

// Usage returns the usage summary of recent passes.
func (p *Pipeline) Usage() string {
	return p.usage.Summary()
}

// Keys returns the style groups live for uri.
func (p *Pipeline) Keys(uri string) []string {
	return p.reconciler.Keys(uri)
}

// Analyze runs one pass for doc right away, outside the scheduler, and
// reconciles its result. It is the batch entry point.
func (p *Pipeline) Analyze(ctx context.Context, doc model.Document) (*analysis.Result, error) {
	start := p.now()
	res, err := p.analyzer.Run(ctx, doc)
	if err == nil {
		_, err = p.reconciler.Reconcile(ctx, doc.URI, res.Requests)
	}
	p.usage.Record(start, p.now().Sub(start))
	return res, err
}

func (p *Pipeline) eligible(uri string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	doc, ok := p.docs[uri]
	if !ok || !p.analyzer.Supports(doc.LanguageID) {
		return false
	}
	if !p.visibleKnown || uri == p.active {
		return true
	}
	_, shown := p.visible[uri]
	return shown
}

// run is the scheduler's RunFunc: one pass over the newest text of uri.
func (p *Pipeline) run(ctx context.Context, uri string) error {
	doc, ok := p.Document(uri)
	if !ok {
		return nil
	}

	start := p.now()
	defer func() {
		p.usage.Record(start, p.now().Sub(start))
		p.notifier.Status(ctx, p.usage.Summary())
	}()

	res, err := p.analyzer.Run(ctx, doc)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil
		}
		p.notifier.Failure(ctx, doc, err)
		return err
	}
	return p.apply(ctx, doc, res)
}

// apply reconciles res unless doc was closed or edited while the pass ran.
// An edit during the pass has already scheduled a trailing pass.
func (p *Pipeline) apply(ctx context.Context, doc model.Document, res *analysis.Result) error {
	p.applyMu.Lock()
	defer p.applyMu.Unlock()

	current, ok := p.Document(doc.URI)
	if !ok {
		log.Debugf("discarding pass for closed %s", doc.URI)
		return nil
	}
	if current.Version != doc.Version || current.Text != doc.Text {
		log.Debugf("discarding stale pass for %s v%d (now v%d)", doc.URI, doc.Version, current.Version)
		return nil
	}

	p.watchDependencies(doc, res.Dependencies)
	stats, err := p.reconciler.Reconcile(ctx, doc.URI, res.Requests)
	log.Debugf("applied %s v%d: %d decorations, %+v", doc.URI, doc.Version, len(res.Requests), stats)
	if err != nil {
		p.notifier.Failure(ctx, doc, err)
	}
	return err
}

// watchDependencies makes the watched files of doc match deps. An editor
// change to any of them re-triggers doc.
func (p *Pipeline) watchDependencies(doc model.Document, deps []string) {
	if p.resolver == nil {
		return
	}
	wanted := make(map[string]struct{}, len(deps))
	for _, path := range deps {
		if path != doc.Path {
			wanted[path] = struct{}{}
		}
	}

	p.mu.Lock()
	current := p.watches[doc.URI]
	if current == nil {
		current = make(map[string]func())
		p.watches[doc.URI] = current
	}
	var drop []func()
	for path, unwatch := range current {
		if _, ok := wanted[path]; !ok {
			drop = append(drop, unwatch)
			delete(current, path)
		}
	}
	var add []string
	for path := range wanted {
		if _, ok := current[path]; !ok {
			add = append(add, path)
		}
	}
	p.mu.Unlock()

	for _, unwatch := range drop {
		unwatch()
	}
	uri := doc.URI
	for _, path := range add {
		path := path
		unwatch := p.resolver.Watch(path, func(time.Time) {
			log.Debugf("%s changed, re-triggering %s", path, uri)
			p.retrigger(uri)
		})
		p.mu.Lock()
		if w, open := p.watches[uri]; open {
			w[path] = unwatch
			p.mu.Unlock()
			continue
		}
		p.mu.Unlock()
		unwatch()
	}
}

// retrigger schedules a pass for uri if it is still open. Watch callbacks
// collected before Close unwatched them may still arrive afterwards.
func (p *Pipeline) retrigger(uri string) {
	if _, open := p.Document(uri); !open {
		return
	}
	p.scheduler.Trigger(uri)
}

// Watched returns the dependency paths watched for uri, sorted.
func (p *Pipeline) Watched(uri string) []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	paths := make([]string, 0, len(p.watches[uri]))
	for path := range p.watches[uri] {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	return paths
}
