package server

import (
	con "context"
	"fmt"
	"sync"

	protocol "github.com/tliron/glsp/protocol_3_16"

	"github.com/phobologic/treedeco/internal/decorate"
	"github.com/phobologic/treedeco/internal/model"
)

// Client → server notifications.
const (
	MethodDidChangeActiveEditor   = "treedeco/didChangeActiveEditor"
	MethodDidChangeVisibleEditors = "treedeco/didChangeVisibleEditors"
)

// Server → client notifications.
const (
	MethodCreateDecorationType  = "treedeco/createDecorationType"
	MethodSetDecorations        = "treedeco/setDecorations"
	MethodDisposeDecorationType = "treedeco/disposeDecorationType"
	MethodStatus                = "treedeco/status"
)

// ActiveEditorParams names the focused document. URI is empty when no
// editor has focus.
type ActiveEditorParams struct {
	URI string `json:"uri"`
}

// VisibleEditorsParams lists the documents currently shown.
type VisibleEditorsParams struct {
	URIs []string `json:"uris"`
}

// CreateDecorationTypeParams asks the client to create a decoration type.
type CreateDecorationTypeParams struct {
	ID      string      `json:"id"`
	URI     string      `json:"uri"`
	Options model.Style `json:"options"`
}

// SetDecorationsParams replaces every instance of a decoration type.
type SetDecorationsParams struct {
	ID        string              `json:"id"`
	URI       string              `json:"uri"`
	Instances []decorate.Instance `json:"instances"`
}

// DisposeDecorationTypeParams releases a decoration type.
type DisposeDecorationTypeParams struct {
	ID string `json:"id"`
}

// StatusParams carries the usage summary.
type StatusParams struct {
	Text string `json:"text"`
}

type sendFunc func(method string, params any) error

// renderer implements decorate.Renderer with client notifications.
type renderer struct {
	send sendFunc

	mu   sync.Mutex
	next int
	uris map[decorate.Handle]string
}

func newRenderer(send sendFunc) *renderer {
	return &renderer{send: send, uris: make(map[decorate.Handle]string)}
}

func (r *renderer) CreateStyle(_ con.Context, uri string, style model.Style) (decorate.Handle, error) {
	r.mu.Lock()
	r.next++
	h := decorate.Handle(fmt.Sprintf("style-%d", r.next))
	r.uris[h] = uri
	r.mu.Unlock()

	if style == nil {
		style = model.Style{}
	}
	if err := r.send(MethodCreateDecorationType, CreateDecorationTypeParams{ID: string(h), URI: uri, Options: style}); err != nil {
		r.mu.Lock()
		delete(r.uris, h)
		r.mu.Unlock()
		return "", err
	}
	return h, nil
}

func (r *renderer) ApplyInstances(_ con.Context, h decorate.Handle, instances []decorate.Instance) error {
	r.mu.Lock()
	uri, ok := r.uris[h]
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("unknown decoration type %s", h)
	}
	if instances == nil {
		instances = []decorate.Instance{}
	}
	return r.send(MethodSetDecorations, SetDecorationsParams{ID: string(h), URI: uri, Instances: instances})
}

func (r *renderer) Dispose(_ con.Context, h decorate.Handle) error {
	r.mu.Lock()
	_, ok := r.uris[h]
	delete(r.uris, h)
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("unknown decoration type %s", h)
	}
	return r.send(MethodDisposeDecorationType, DisposeDecorationTypeParams{ID: string(h)})
}

// notifier implements pipeline.Notifier with client notifications.
type notifier struct {
	send sendFunc
}

func (n notifier) Failure(_ con.Context, doc model.Document, err error) {
	name := doc.Path
	if name == "" {
		name = doc.URI
	}
	log.Warningf("pass failed for %s: %s", doc.URI, err.Error())
	_ = n.send(protocol.ServerWindowShowMessage, protocol.ShowMessageParams{
		Type:    protocol.MessageTypeWarning,
		Message: fmt.Sprintf("treedeco: %s: %s", name, err.Error()),
	})
}

func (n notifier) Status(_ con.Context, summary string) {
	_ = n.send(MethodStatus, StatusParams{Text: summary})
}

// applyChanges applies LSP content changes to text in order.
func applyChanges(text string, changes []any) (string, error) {
	for _, raw := range changes {
		switch change := raw.(type) {
		case protocol.TextDocumentContentChangeEvent:
			if change.Range == nil {
				text = change.Text
				continue
			}
			text = applyTextEdit(text, *change.Range, change.Text)
		case protocol.TextDocumentContentChangeEventWhole:
			text = change.Text
		default:
			return text, fmt.Errorf("unexpected change event type %T", raw)
		}
	}
	return text, nil
}

// applyTextEdit replaces the UTF-16 range r of text with replacement.
func applyTextEdit(text string, r protocol.Range, replacement string) string {
	start := model.ByteOffset(text, position(r.Start))
	end := model.ByteOffset(text, position(r.End))
	if end < start {
		start, end = end, start
	}
	return text[:start] + replacement + text[end:]
}

func position(p protocol.Position) model.Position {
	return model.Position{Line: int(p.Line), Character: int(p.Character)}
}
