// Package render implements the rendering boundary for batch mode: an
// in-memory renderer that records primitives and a terminal painter that
// draws them with lipgloss.
package render

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/phobologic/treedeco/internal/decorate"
	"github.com/phobologic/treedeco/internal/model"
)

// Primitive is a live style with its current instances.
type Primitive struct {
	Handle    decorate.Handle
	URI       string
	Style     model.Style
	Instances []decorate.Instance

	seq int
}

// Recorder is a decorate.Renderer that keeps every primitive in memory.
type Recorder struct {
	mu    sync.Mutex
	next  int
	prims map[decorate.Handle]*Primitive
}

// NewRecorder creates an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{prims: make(map[decorate.Handle]*Primitive)}
}

func (r *Recorder) CreateStyle(_ context.Context, uri string, style model.Style) (decorate.Handle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.next++
	h := decorate.Handle(fmt.Sprintf("style-%d", r.next))
	r.prims[h] = &Primitive{Handle: h, URI: uri, Style: style, seq: r.next}
	return h, nil
}

func (r *Recorder) ApplyInstances(_ context.Context, h decorate.Handle, instances []decorate.Instance) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.prims[h]
	if !ok {
		return fmt.Errorf("unknown decoration type %s", h)
	}
	p.Instances = append([]decorate.Instance(nil), instances...)
	return nil
}

func (r *Recorder) Dispose(_ context.Context, h decorate.Handle) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.prims[h]; !ok {
		return fmt.Errorf("unknown decoration type %s", h)
	}
	delete(r.prims, h)
	return nil
}

// Snapshot returns copies of the live primitives of uri in creation order.
func (r *Recorder) Snapshot(uri string) []Primitive {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Primitive
	for _, p := range r.prims {
		if p.URI != uri {
			continue
		}
		cp := *p
		cp.Instances = append([]decorate.Instance(nil), p.Instances...)
		out = append(out, cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].seq < out[j].seq })
	return out
}

// Len returns the number of live primitives across all documents.
func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.prims)
}
