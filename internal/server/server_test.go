package server

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tliron/glsp"
	protocol "github.com/tliron/glsp/protocol_3_16"

	"github.com/phobologic/treedeco/internal/config"
	"github.com/phobologic/treedeco/internal/debounce"
	"github.com/phobologic/treedeco/internal/decorate"
	"github.com/phobologic/treedeco/internal/model"
)

type manualTimer struct {
	f       func()
	stopped bool
}

func (t *manualTimer) Stop() bool {
	was := !t.stopped
	t.stopped = true
	return was
}

type manualClock struct {
	mu     sync.Mutex
	timers []*manualTimer
}

func (c *manualClock) AfterFunc(_ time.Duration, f func()) debounce.Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &manualTimer{f: f}
	c.timers = append(c.timers, t)
	return t
}

func (c *manualClock) fire() {
	for {
		c.mu.Lock()
		var next *manualTimer
		for _, t := range c.timers {
			if !t.stopped {
				next = t
				break
			}
		}
		if next != nil {
			next.stopped = true
		}
		c.mu.Unlock()
		if next == nil {
			return
		}
		next.f()
	}
}

type notification struct {
	method string
	params any
}

type client struct {
	mu   sync.Mutex
	sent []notification
}

func (c *client) notify(method string, params any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, notification{method, params})
}

func (c *client) methods() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.sent))
	for i, n := range c.sent {
		out[i] = n.method
	}
	return out
}

func (c *client) find(method string) []any {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []any
	for _, n := range c.sent {
		if n.method == method {
			out = append(out, n.params)
		}
	}
	return out
}

func (c *client) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = nil
}

func newTestServer(t *testing.T) (*Server, *client, *manualClock) {
	t.Helper()
	cfg := config.Default()
	cfg.Observers.Imports.Enabled = false
	clock := &manualClock{}
	s := New(Options{Config: &cfg, Version: "test", AfterFunc: clock.AfterFunc})
	c := &client{}
	call(t, s, c, protocol.MethodInitialize, map[string]any{"capabilities": map[string]any{}})
	call(t, s, c, protocol.MethodInitialized, map[string]any{})
	return s, c, clock
}

func call(t *testing.T, s *Server, c *client, method string, params any) any {
	t.Helper()
	raw, err := json.Marshal(params)
	require.NoError(t, err)
	r, validMethod, validParams, err := s.Handle(&glsp.Context{
		Method: method,
		Params: raw,
		Notify: c.notify,
	})
	require.True(t, validMethod, "method %s", method)
	require.True(t, validParams, "params for %s", method)
	require.NoError(t, err)
	return r
}

const sample = "async function f() {\n  await g();\n}\n"

func TestApplyChanges(t *testing.T) {
	t.Parallel()

	rng := func(sl, sc, el, ec protocol.UInteger) *protocol.Range {
		return &protocol.Range{
			Start: protocol.Position{Line: sl, Character: sc},
			End:   protocol.Position{Line: el, Character: ec},
		}
	}

	tests := []struct {
		name    string
		text    string
		changes []any
		want    string
	}{
		{
			name: "insert",
			text: "let a = 1;\n",
			changes: []any{
				protocol.TextDocumentContentChangeEvent{Range: rng(0, 4, 0, 4), Text: "bb"},
			},
			want: "let bba = 1;\n",
		},
		{
			name: "replace across lines",
			text: "one\ntwo\nthree\n",
			changes: []any{
				protocol.TextDocumentContentChangeEvent{Range: rng(0, 1, 2, 2), Text: "X"},
			},
			want: "oXree\n",
		},
		{
			name: "utf16 columns",
			text: "const s = \"😀é\";\n",
			changes: []any{
				protocol.TextDocumentContentChangeEvent{Range: rng(0, 13, 0, 14), Text: "e"},
			},
			want: "const s = \"😀e\";\n",
		},
		{
			name: "whole document",
			text: "old",
			changes: []any{
				protocol.TextDocumentContentChangeEventWhole{Text: "new"},
			},
			want: "new",
		},
		{
			name: "nil range replaces all",
			text: "old",
			changes: []any{
				protocol.TextDocumentContentChangeEvent{Text: "fresh"},
			},
			want: "fresh",
		},
		{
			name: "sequential",
			text: "ab",
			changes: []any{
				protocol.TextDocumentContentChangeEvent{Range: rng(0, 2, 0, 2), Text: "c"},
				protocol.TextDocumentContentChangeEvent{Range: rng(0, 0, 0, 1), Text: ""},
			},
			want: "bc",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := applyChanges(tt.text, tt.changes)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := applyChanges("x", []any{"bogus"})
	assert.Error(t, err)
}

func TestURIToPath(t *testing.T) {
	t.Parallel()

	assert.Equal(t, filepath.FromSlash("/tmp/a b.ts"), uriToPath("file:///tmp/a%20b.ts"))
	assert.Equal(t, "", uriToPath("untitled:Untitled-1"))
}

func TestRendererPayloads(t *testing.T) {
	t.Parallel()

	c := &client{}
	r := newRenderer(func(method string, params any) error {
		c.notify(method, params)
		return nil
	})

	h, err := r.CreateStyle(context.Background(), "file:///a.ts", model.Style{"color": "red"})
	require.NoError(t, err)
	assert.Equal(t, decorate.Handle("style-1"), h)

	inst := []decorate.Instance{{Range: model.Range{End: model.Position{Character: 3}}}}
	require.NoError(t, r.ApplyInstances(context.Background(), h, inst))
	require.NoError(t, r.ApplyInstances(context.Background(), h, nil))
	require.NoError(t, r.Dispose(context.Background(), h))
	assert.Error(t, r.Dispose(context.Background(), h))
	assert.Error(t, r.ApplyInstances(context.Background(), "style-9", nil))

	assert.Equal(t, []string{
		MethodCreateDecorationType,
		MethodSetDecorations,
		MethodSetDecorations,
		MethodDisposeDecorationType,
	}, c.methods())

	create := c.find(MethodCreateDecorationType)[0].(CreateDecorationTypeParams)
	assert.Equal(t, "file:///a.ts", create.URI)
	assert.Equal(t, "red", create.Options["color"])

	sets := c.find(MethodSetDecorations)
	assert.Len(t, sets[0].(SetDecorationsParams).Instances, 1)
	cleared := sets[1].(SetDecorationsParams).Instances
	assert.NotNil(t, cleared)
	assert.Empty(t, cleared)

	data, err := json.Marshal(sets[1])
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"style-1","uri":"file:///a.ts","instances":[]}`, string(data))
}

func TestRendererSendFailure(t *testing.T) {
	t.Parallel()

	r := newRenderer(func(string, any) error { return errors.New("gone") })
	_, err := r.CreateStyle(context.Background(), "file:///a.ts", nil)
	require.Error(t, err)
	assert.Empty(t, r.uris)
}

func TestNotifier(t *testing.T) {
	t.Parallel()

	c := &client{}
	n := notifier{send: func(method string, params any) error {
		c.notify(method, params)
		return nil
	}}
	n.Failure(context.Background(), model.Document{URI: "file:///a.ts", Path: "/a.ts"}, errors.New("boom"))
	n.Status(context.Background(), "1ms/10000ms, 1, Last 1ms")

	msgs := c.find(protocol.ServerWindowShowMessage)
	require.Len(t, msgs, 1)
	msg := msgs[0].(protocol.ShowMessageParams)
	assert.Equal(t, protocol.MessageTypeWarning, msg.Type)
	assert.Contains(t, msg.Message, "/a.ts")
	assert.Contains(t, msg.Message, "boom")

	status := c.find(MethodStatus)
	require.Len(t, status, 1)
	assert.Equal(t, "1ms/10000ms, 1, Last 1ms", status[0].(StatusParams).Text)
}

func TestNotInitialized(t *testing.T) {
	t.Parallel()

	s := New(Options{})
	_, err := s.current()
	assert.Error(t, err)

	c := &client{}
	raw, _ := json.Marshal(ActiveEditorParams{URI: "file:///a.ts"})
	_, validMethod, _, err := s.Handle(&glsp.Context{
		Method: MethodDidChangeActiveEditor,
		Params: raw,
		Notify: c.notify,
	})
	assert.True(t, validMethod)
	assert.Error(t, err)
}

func TestDocumentLifecycle(t *testing.T) {
	t.Parallel()

	s, c, clock := newTestServer(t)
	uri := "file:///tmp/treedeco-test/a.ts"

	call(t, s, c, protocol.MethodTextDocumentDidOpen, map[string]any{
		"textDocument": map[string]any{
			"uri":        uri,
			"languageId": "typescript",
			"version":    1,
			"text":       sample,
		},
	})
	clock.fire()

	creates := c.find(MethodCreateDecorationType)
	require.Len(t, creates, 1)
	sets := c.find(MethodSetDecorations)
	require.Len(t, sets, 1)
	set := sets[0].(SetDecorationsParams)
	assert.Equal(t, uri, set.URI)
	require.Len(t, set.Instances, 1)
	assert.Equal(t, model.Range{
		Start: model.Position{Line: 1, Character: 2},
		End:   model.Position{Line: 1, Character: 11},
	}, set.Instances[0].Range)
	assert.Len(t, c.find(MethodStatus), 1)

	// Remove the await: the group disappears and its primitive is released.
	c.reset()
	call(t, s, c, protocol.MethodTextDocumentDidChange, map[string]any{
		"textDocument": map[string]any{"uri": uri, "version": 2},
		"contentChanges": []any{map[string]any{
			"range": map[string]any{
				"start": map[string]any{"line": 1, "character": 2},
				"end":   map[string]any{"line": 1, "character": 8},
			},
			"text": "",
		}},
	})
	p, err := s.current()
	require.NoError(t, err)
	doc, ok := p.Document(uri)
	require.True(t, ok)
	assert.Equal(t, "async function f() {\n  g();\n}\n", doc.Text)

	clock.fire()
	assert.Equal(t, []string{MethodSetDecorations, MethodDisposeDecorationType, MethodStatus}, c.methods())

	c.reset()
	call(t, s, c, protocol.MethodTextDocumentDidClose, map[string]any{
		"textDocument": map[string]any{"uri": uri},
	})
	_, ok = p.Document(uri)
	assert.False(t, ok)
}

func TestParseFailureShowsMessage(t *testing.T) {
	t.Parallel()

	s, c, clock := newTestServer(t)
	call(t, s, c, protocol.MethodTextDocumentDidOpen, map[string]any{
		"textDocument": map[string]any{
			"uri":        "file:///tmp/treedeco-test/broken.ts",
			"languageId": "typescript",
			"version":    1,
			"text":       "function (",
		},
	})
	clock.fire()

	assert.Len(t, c.find(protocol.ServerWindowShowMessage), 1)
	assert.Empty(t, c.find(MethodCreateDecorationType))
}

func TestEditorNotifications(t *testing.T) {
	t.Parallel()

	s, c, clock := newTestServer(t)
	a := "file:///tmp/treedeco-test/a.ts"
	b := "file:///tmp/treedeco-test/b.ts"
	for _, uri := range []string{a, b} {
		call(t, s, c, protocol.MethodTextDocumentDidOpen, map[string]any{
			"textDocument": map[string]any{
				"uri":        uri,
				"languageId": "typescript",
				"version":    1,
				"text":       sample,
			},
		})
	}
	call(t, s, c, MethodDidChangeVisibleEditors, VisibleEditorsParams{URIs: []string{b}})
	call(t, s, c, MethodDidChangeActiveEditor, ActiveEditorParams{URI: b})
	clock.fire()

	p, err := s.current()
	require.NoError(t, err)
	assert.Equal(t, b, p.Active())
	for _, params := range c.find(MethodSetDecorations) {
		assert.Equal(t, b, params.(SetDecorationsParams).URI)
	}
	assert.NotEmpty(t, c.find(MethodSetDecorations))
}

func TestShutdownDisposesEverything(t *testing.T) {
	t.Parallel()

	s, c, clock := newTestServer(t)
	call(t, s, c, protocol.MethodTextDocumentDidOpen, map[string]any{
		"textDocument": map[string]any{
			"uri":        "file:///tmp/treedeco-test/a.ts",
			"languageId": "typescript",
			"version":    1,
			"text":       sample,
		},
	})
	clock.fire()

	c.reset()
	call(t, s, c, protocol.MethodShutdown, nil)
	assert.Equal(t, []string{MethodSetDecorations, MethodDisposeDecorationType}, c.methods())
}

func TestLoadConfigMergesInitializationOptions(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	s := New(Options{})
	root := "file://" + filepath.ToSlash(dir)
	cfg, err := s.loadConfig(&protocol.InitializeParams{
		RootURI:               &root,
		InitializationOptions: map[string]any{"debounce": 50},
	})
	require.NoError(t, err)
	assert.Equal(t, 50*time.Millisecond, cfg.Debounce.D())
	assert.Equal(t, config.Default().Languages, cfg.Languages)

	_, err = s.loadConfig(&protocol.InitializeParams{
		InitializationOptions: map[string]any{"languages": []string{"cobol"}},
	})
	assert.Error(t, err)
}
