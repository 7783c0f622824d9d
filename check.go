package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/phobologic/treedeco/internal/analysis"
	"github.com/phobologic/treedeco/internal/content"
	"github.com/phobologic/treedeco/internal/decorate"
	"github.com/phobologic/treedeco/internal/discover"
	"github.com/phobologic/treedeco/internal/lang"
	"github.com/phobologic/treedeco/internal/model"
	"github.com/phobologic/treedeco/internal/observers"
	"github.com/phobologic/treedeco/internal/pipeline"
	"github.com/phobologic/treedeco/internal/render"
	"github.com/phobologic/treedeco/internal/toon"
)

const (
	formatTOON   = "toon"
	formatPretty = "pretty"
)

type checkOptions struct {
	format      string
	langs       []string
	maxFileSize int64
}

func newCheckCmd(g *globals) *cobra.Command {
	var o checkOptions
	cmd := &cobra.Command{
		Use:   "check [paths...]",
		Short: "Run one pass over each file and report its decorations",
		Long: `Run one analysis pass over each file and report the decorations an editor
would show. Directories are walked, skipping .gitignore'd files and
dependency folders. Files that fail to analyse are reported on stderr.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(cmd.Context(), g, o, args, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}
	cmd.Flags().StringVarP(&o.format, "format", "f", formatTOON, "output format: toon or pretty")
	cmd.Flags().StringSliceVarP(&o.langs, "lang", "l", nil, "comma-separated language ids to check (default: configured languages)")
	cmd.Flags().Int64Var(&o.maxFileSize, "max-file-size", discover.DefaultMaxFileSize, "skip files larger than this many bytes (negative disables)")
	return cmd
}

func runCheck(ctx context.Context, g *globals, o checkOptions, args []string, stdout, stderr io.Writer) error {
	if o.format != formatTOON && o.format != formatPretty {
		return fmt.Errorf("unknown format %q", o.format)
	}
	if len(args) == 0 {
		args = []string{"."}
	}

	dir := workspaceDir(args[0])
	cfg, err := g.loadConfig(dir)
	if err != nil {
		return err
	}
	langs := cfg.Languages
	if len(o.langs) > 0 {
		for _, id := range o.langs {
			if lang.ForID(id) == nil {
				return fmt.Errorf("unsupported language %q", id)
			}
		}
		langs = o.langs
	}

	files, err := discover.Paths(args, discover.Options{Languages: langs, MaxFileSize: o.maxFileSize})
	if err != nil {
		return fmt.Errorf("discovering files: %w", err)
	}
	if len(files) == 0 {
		return errors.New("no analysable files found")
	}

	resolver := content.New(content.OSFileSystem{}, nil)
	analyzer := analysis.New(analysis.Options{Languages: langs, Reader: resolver})
	observers.Register(analyzer, cfg)
	rec := render.NewRecorder()
	p := pipeline.New(pipeline.Options{
		Analyzer:    analyzer,
		Renderer:    rec,
		Resolver:    resolver,
		UsageWindow: cfg.UsageWindow.D(),
	})

	root, err := filepath.Abs(dir)
	if err != nil {
		return fmt.Errorf("resolving root: %w", err)
	}
	report := &model.Report{Root: filepath.Base(root)}
	painter := render.NewPainter(stdout)

	failed := 0
	for _, f := range files {
		fr := model.FileReport{Path: f.Path, Language: f.Language}
		source, err := os.ReadFile(f.Abs)
		if err != nil {
			fr.Error = err.Error()
			_, _ = fmt.Fprintf(stderr, "Warning: %s: %v\n", f.Path, err)
			failed++
			report.Files = append(report.Files, fr)
			continue
		}

		doc := model.Document{
			URI:        fileURI(f.Abs),
			Path:       f.Abs,
			LanguageID: f.Language,
			Version:    1,
			Text:       string(source),
		}
		if _, err := p.Analyze(ctx, doc); err != nil {
			fr.Error = err.Error()
			_, _ = fmt.Fprintf(stderr, "Warning: %s: %v\n", f.Path, err)
			failed++
		}
		prims := rec.Snapshot(doc.URI)
		fr.Styles = styleReports(prims)
		report.Files = append(report.Files, fr)

		if o.format == formatPretty {
			_, _ = fmt.Fprintf(stdout, "%s (%d decorations)\n%s\n", f.Path, fr.Decorations(), painter.Paint(doc.Text, prims))
		}
	}
	log.Debugf("checked %d files: %s", len(files), p.Usage())

	if o.format == formatTOON {
		_, _ = fmt.Fprintln(stdout, toon.Encode(report))
	}
	if failed == len(files) {
		return errors.New("no files could be analysed")
	}
	return nil
}

func styleReports(prims []render.Primitive) []model.StyleReport {
	var out []model.StyleReport
	for _, prim := range prims {
		key, err := decorate.Key(prim.Style)
		if err != nil {
			key = ""
		}
		sr := model.StyleReport{ID: string(prim.Handle), Key: key}
		for _, inst := range prim.Instances {
			sr.Decorations = append(sr.Decorations, model.DecorationReport{
				Range: inst.Range,
				Hover: inst.HoverMessage,
				Text:  inlineText(inst.RenderOptions),
			})
		}
		out = append(out, sr)
	}
	return out
}

// inlineText joins the before and after text of an instance.
func inlineText(opts model.Style) string {
	return opts.Nested(model.Before).String(model.ContentText) + opts.Nested(model.After).String(model.ContentText)
}

func fileURI(abs string) string {
	return (&url.URL{Scheme: "file", Path: filepath.ToSlash(abs)}).String()
}
