package server

import (
	con "context"

	"github.com/tliron/glsp"
	protocol "github.com/tliron/glsp/protocol_3_16"

	"github.com/phobologic/treedeco/internal/model"
)

func (s *Server) initialize(
	context *glsp.Context,
	params *protocol.InitializeParams,
) (any, error) {
	cfg, err := s.loadConfig(params)
	if err != nil {
		return nil, err
	}
	s.start(cfg, context.Notify)

	capabilities := s.handler.CreateServerCapabilities()
	syncKind := protocol.TextDocumentSyncKindIncremental
	capabilities.TextDocumentSync = &protocol.TextDocumentSyncOptions{
		OpenClose: &protocol.True,
		Change:    &syncKind,
	}

	version := s.opts.Version
	return protocol.InitializeResult{
		Capabilities: capabilities,
		ServerInfo: &protocol.InitializeResultServerInfo{
			Name:    lsName,
			Version: &version,
		},
	}, nil
}

func (s *Server) initialized(
	context *glsp.Context,
	params *protocol.InitializedParams,
) error {
	log.Info("client initialized")
	return nil
}

func (s *Server) shutdown(context *glsp.Context) error {
	protocol.SetTraceValue(protocol.TraceValueOff)
	p, err := s.current()
	if err != nil {
		return nil
	}
	return p.Stop(con.Background())
}

func (s *Server) setTrace(context *glsp.Context, params *protocol.SetTraceParams) error {
	protocol.SetTraceValue(params.Value)
	return nil
}

func (s *Server) textDocumentDidOpen(
	context *glsp.Context,
	params *protocol.DidOpenTextDocumentParams,
) error {
	p, err := s.current()
	if err != nil {
		return err
	}
	item := params.TextDocument
	log.Debugf("opened %s (%s)", item.URI, item.LanguageID)
	p.Open(model.Document{
		URI:        item.URI,
		Path:       uriToPath(item.URI),
		LanguageID: item.LanguageID,
		Version:    int(item.Version),
		Text:       item.Text,
	})
	return nil
}

func (s *Server) textDocumentDidChange(
	context *glsp.Context,
	params *protocol.DidChangeTextDocumentParams,
) error {
	p, err := s.current()
	if err != nil {
		return err
	}
	uri := params.TextDocument.URI

	s.editMu.Lock()
	defer s.editMu.Unlock()
	doc, ok := p.Document(uri)
	if !ok {
		log.Warningf("change for unopened document %s", uri)
		return nil
	}
	text, err := applyChanges(doc.Text, params.ContentChanges)
	if err != nil {
		return err
	}
	p.Change(uri, int(params.TextDocument.Version), text)
	return nil
}

func (s *Server) textDocumentDidClose(
	context *glsp.Context,
	params *protocol.DidCloseTextDocumentParams,
) error {
	p, err := s.current()
	if err != nil {
		return err
	}
	log.Debugf("closed %s", params.TextDocument.URI)
	return p.Close(con.Background(), params.TextDocument.URI)
}

func (s *Server) didChangeActiveEditor(context *glsp.Context, params *ActiveEditorParams) error {
	p, err := s.current()
	if err != nil {
		return err
	}
	p.Focus(params.URI)
	return nil
}

func (s *Server) didChangeVisibleEditors(context *glsp.Context, params *VisibleEditorsParams) error {
	p, err := s.current()
	if err != nil {
		return err
	}
	p.SetVisible(params.URIs)
	return nil
}
