// Package decorate reconciles the decorations requested by an analysis pass
// with the rendering primitives already live for a document.
package decorate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/tliron/commonlog"

	"github.com/phobologic/treedeco/internal/model"
)

var log = commonlog.GetLogger("treedeco.decorate")

// Handle identifies a rendering primitive created by a Renderer.
type Handle string

// Instance is one placement of a style.
type Instance struct {
	Range         model.Range `json:"range"`
	RenderOptions model.Style `json:"renderOptions,omitempty"`
	HoverMessage  string      `json:"hoverMessage,omitempty"`
}

// Renderer is the rendering boundary. CreateStyle is called once per
// distinct group style of a document, ApplyInstances replaces the full
// instance list of a primitive, Dispose releases it.
type Renderer interface {
	CreateStyle(ctx context.Context, uri string, style model.Style) (Handle, error)
	ApplyInstances(ctx context.Context, h Handle, instances []Instance) error
	Dispose(ctx context.Context, h Handle) error
}

// Request is one decoration collected from an observer, already placed.
type Request struct {
	Range        model.Range
	Style        model.Style
	HoverMessage string
}

// instanceKeys are applied per instance rather than per style group.
var instanceKeys = map[string]struct{}{
	model.Before: {},
	model.After:  {},
	model.Light:  {},
	model.Dark:   {},
}

// Split separates a style into the attributes that identify its group and
// the attributes attached to each instance.
func Split(style model.Style) (group, instance model.Style) {
	group = model.Style{}
	for k, v := range style {
		if _, ok := instanceKeys[k]; ok {
			if instance == nil {
				instance = model.Style{}
			}
			instance[k] = v
			continue
		}
		group[k] = v
	}
	return group, instance
}

// Key returns the canonical serialization of a group style. encoding/json
// writes map keys in sorted order at every nesting level, so structurally
// equal styles produce the same key regardless of insertion order.
func Key(group model.Style) (string, error) {
	if group == nil {
		group = model.Style{}
	}
	data, err := json.Marshal(group)
	if err != nil {
		return "", fmt.Errorf("serializing style: %w", err)
	}
	return string(data), nil
}

// Group is the set of instances sharing one group style.
type Group struct {
	Key       string
	Style     model.Style
	Instances []Instance
}

// GroupRequests buckets requests by group style. Groups keep the order of
// their first request; instances keep request order. Requests whose style
// cannot be serialized are dropped and reported in the returned error.
func GroupRequests(reqs []Request) ([]*Group, error) {
	var (
		groups []*Group
		byKey  = make(map[string]*Group)
		errs   []error
	)
	for _, req := range reqs {
		style, inst := Split(req.Style)
		key, err := Key(style)
		if err != nil {
			errs = append(errs, fmt.Errorf("decoration at %s: %w", req.Range, err))
			continue
		}
		g, ok := byKey[key]
		if !ok {
			g = &Group{Key: key, Style: style}
			byKey[key] = g
			groups = append(groups, g)
		}
		g.Instances = append(g.Instances, Instance{
			Range:         req.Range,
			RenderOptions: inst,
			HoverMessage:  req.HoverMessage,
		})
	}
	return groups, errors.Join(errs...)
}

// Stats counts the boundary calls made by one reconciliation.
type Stats struct {
	Created  int
	Disposed int
	Applied  int
}

type document struct {
	mu      sync.Mutex
	handles map[string]Handle
}

// Reconciler tracks the live rendering primitives of every document.
type Reconciler struct {
	renderer Renderer

	mu   sync.Mutex
	docs map[string]*document
}

// NewReconciler creates a Reconciler that drives renderer.
func NewReconciler(renderer Renderer) *Reconciler {
	return &Reconciler{
		renderer: renderer,
		docs:     make(map[string]*document),
	}
}

func (r *Reconciler) document(uri string) *document {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.docs[uri]
	if !ok {
		d = &document{handles: make(map[string]Handle)}
		r.docs[uri] = d
	}
	return d
}

// Reconcile makes the live primitives of uri match reqs: groups no longer
// requested are cleared and disposed, new groups are created, and every
// requested group gets its full instance list reapplied. Renderer failures
// are collected; the remaining groups are still processed.
func (r *Reconciler) Reconcile(ctx context.Context, uri string, reqs []Request) (Stats, error) {
	var stats Stats
	groups, groupErr := GroupRequests(reqs)
	errs := []error{groupErr}

	d := r.document(uri)
	d.mu.Lock()
	defer d.mu.Unlock()

	wanted := make(map[string]struct{}, len(groups))
	for _, g := range groups {
		wanted[g.Key] = struct{}{}
	}

	var stale []string
	for key := range d.handles {
		if _, ok := wanted[key]; !ok {
			stale = append(stale, key)
		}
	}
	sort.Strings(stale)
	for _, key := range stale {
		if err := r.release(ctx, d.handles[key]); err != nil {
			errs = append(errs, err)
		}
		delete(d.handles, key)
		stats.Disposed++
	}

	for _, g := range groups {
		h, ok := d.handles[g.Key]
		if !ok {
			var err error
			h, err = r.renderer.CreateStyle(ctx, uri, g.Style)
			if err != nil {
				errs = append(errs, fmt.Errorf("creating style %s: %w", g.Key, err))
				continue
			}
			d.handles[g.Key] = h
			stats.Created++
		}
		if err := r.renderer.ApplyInstances(ctx, h, g.Instances); err != nil {
			errs = append(errs, fmt.Errorf("applying %d instances to %s: %w", len(g.Instances), h, err))
			continue
		}
		stats.Applied++
	}

	log.Debugf("reconciled %s: %d groups, %d created, %d disposed", uri, len(groups), stats.Created, stats.Disposed)
	return stats, errors.Join(errs...)
}

// Forget clears and disposes every primitive of uri.
func (r *Reconciler) Forget(ctx context.Context, uri string) error {
	r.mu.Lock()
	d, ok := r.docs[uri]
	delete(r.docs, uri)
	r.mu.Unlock()
	if !ok {
		return nil
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	keys := make([]string, 0, len(d.handles))
	for key := range d.handles {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var errs []error
	for _, key := range keys {
		if err := r.release(ctx, d.handles[key]); err != nil {
			errs = append(errs, err)
		}
		delete(d.handles, key)
	}
	return errors.Join(errs...)
}

// Keys returns the group keys live for uri, sorted.
func (r *Reconciler) Keys(uri string) []string {
	r.mu.Lock()
	d, ok := r.docs[uri]
	r.mu.Unlock()
	if !ok {
		return nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	keys := make([]string, 0, len(d.handles))
	for key := range d.handles {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// release clears the instances of h and disposes it. Dispose is attempted
// even when clearing fails so the primitive does not leak.
func (r *Reconciler) release(ctx context.Context, h Handle) error {
	var errs []error
	if err := r.renderer.ApplyInstances(ctx, h, nil); err != nil {
		errs = append(errs, fmt.Errorf("clearing %s: %w", h, err))
	}
	if err := r.renderer.Dispose(ctx, h); err != nil {
		errs = append(errs, fmt.Errorf("disposing %s: %w", h, err))
	}
	return errors.Join(errs...)
}
