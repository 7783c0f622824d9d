// Package server hosts the decoration pipeline behind the Language Server
// Protocol. Decorations travel to the client as custom notifications.
package server

import (
	con "context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"sync"

	"github.com/tliron/commonlog"
	"github.com/tliron/glsp"
	protocol "github.com/tliron/glsp/protocol_3_16"
	glspserver "github.com/tliron/glsp/server"

	"github.com/phobologic/treedeco/internal/analysis"
	"github.com/phobologic/treedeco/internal/config"
	"github.com/phobologic/treedeco/internal/content"
	"github.com/phobologic/treedeco/internal/debounce"
	"github.com/phobologic/treedeco/internal/observers"
	"github.com/phobologic/treedeco/internal/pipeline"
)

const lsName = "treedeco"

var log = commonlog.GetLogger("treedeco.server")

// Options configure a Server.
type Options struct {
	// Config is used as is when set. Otherwise .treedeco.yaml is loaded from
	// the workspace root during initialize.
	Config  *config.Config
	Version string

	// AfterFunc replaces the debounce timer, mainly for tests.
	AfterFunc debounce.AfterFunc
}

// Server is a glsp handler driving one pipeline.
type Server struct {
	handler *protocol.Handler
	opts    Options

	mu       sync.Mutex
	notify   glsp.NotifyFunc
	pipeline *pipeline.Pipeline

	// editMu serializes read-modify-write of document text.
	editMu sync.Mutex
}

// New creates a Server.
func New(opts Options) *Server {
	s := &Server{opts: opts}
	s.handler = &protocol.Handler{
		Initialize:            s.initialize,
		Initialized:           s.initialized,
		Shutdown:              s.shutdown,
		SetTrace:              s.setTrace,
		TextDocumentDidOpen:   s.textDocumentDidOpen,
		TextDocumentDidChange: s.textDocumentDidChange,
		TextDocumentDidClose:  s.textDocumentDidClose,
	}
	return s
}

// RunStdio serves LSP over stdin and stdout until the client exits.
func (s *Server) RunStdio() error {
	return glspserver.NewServer(s, lsName, false).RunStdio()
}

// Handle implements glsp.Handler. Custom treedeco notifications are handled
// here; everything else goes to the protocol handler.
func (s *Server) Handle(context *glsp.Context) (r any, validMethod bool, validParams bool, err error) {
	switch context.Method {
	case MethodDidChangeActiveEditor:
		var params ActiveEditorParams
		if err := json.Unmarshal(context.Params, &params); err != nil {
			return nil, true, false, err
		}
		return nil, true, true, s.didChangeActiveEditor(context, &params)
	case MethodDidChangeVisibleEditors:
		var params VisibleEditorsParams
		if err := json.Unmarshal(context.Params, &params); err != nil {
			return nil, true, false, err
		}
		return nil, true, true, s.didChangeVisibleEditors(context, &params)
	}
	return s.handler.Handle(context)
}

// start builds the pipeline once the configuration is known. notify must
// stay usable after the handler that supplied it returns.
func (s *Server) start(cfg config.Config, notify glsp.NotifyFunc) {
	resolver := content.New(content.OSFileSystem{}, nil)
	analyzer := analysis.New(analysis.Options{Languages: cfg.Languages, Reader: resolver})
	observers.Register(analyzer, cfg)

	p := pipeline.New(pipeline.Options{
		Analyzer:    analyzer,
		Renderer:    newRenderer(s.send),
		Resolver:    resolver,
		Notifier:    notifier{send: s.send},
		Debounce:    cfg.Debounce.D(),
		UsageWindow: cfg.UsageWindow.D(),
		AfterFunc:   s.opts.AfterFunc,
	})

	s.mu.Lock()
	s.notify = notify
	old := s.pipeline
	s.pipeline = p
	s.mu.Unlock()
	if old != nil {
		_ = old.Stop(con.Background())
	}
	log.Infof("started with observers %v, languages %v, debounce %s", analyzer.Observers(), cfg.Languages, cfg.Debounce)
}

// send delivers a notification to the client.
func (s *Server) send(method string, params any) error {
	s.mu.Lock()
	notify := s.notify
	s.mu.Unlock()
	if notify == nil {
		return errors.New("client not connected")
	}
	notify(method, params)
	return nil
}

func (s *Server) current() (*pipeline.Pipeline, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pipeline == nil {
		return nil, errors.New("server not initialized")
	}
	return s.pipeline, nil
}

func (s *Server) loadConfig(params *protocol.InitializeParams) (config.Config, error) {
	var cfg config.Config
	if s.opts.Config != nil {
		cfg = *s.opts.Config
	} else {
		var err error
		root := workspaceRoot(params)
		if root == "" {
			cfg = config.Default()
		} else if cfg, err = config.LoadDir(root); err != nil {
			return cfg, err
		}
	}
	if params.InitializationOptions == nil {
		return cfg, nil
	}
	raw, err := json.Marshal(params.InitializationOptions)
	if err != nil {
		return cfg, fmt.Errorf("encoding initialization options: %w", err)
	}
	return cfg.Merge(raw)
}

func workspaceRoot(params *protocol.InitializeParams) string {
	if len(params.WorkspaceFolders) > 0 {
		if path := uriToPath(params.WorkspaceFolders[0].URI); path != "" {
			return path
		}
	}
	if params.RootURI != nil {
		if path := uriToPath(*params.RootURI); path != "" {
			return path
		}
	}
	if params.RootPath != nil {
		return *params.RootPath
	}
	return ""
}

// uriToPath returns the local path of a file URI, or "" for other schemes.
func uriToPath(uri string) string {
	u, err := url.Parse(uri)
	if err != nil || u.Scheme != "file" {
		return ""
	}
	return filepath.FromSlash(u.Path)
}
