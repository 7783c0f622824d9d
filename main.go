// treedeco decorates TypeScript and JavaScript source in the editor. It runs
// as a language server, or checks files in batch and reports the decorations
// it would show.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"

	"github.com/phobologic/treedeco/internal/config"
	"github.com/phobologic/treedeco/internal/server"
)

var version = "dev"

var log = commonlog.GetLogger("treedeco")

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdout, stderr io.Writer) error {
	cmd := newRootCmd()
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	return cmd.ExecuteContext(context.Background())
}

// globals holds the persistent flags shared by every subcommand.
type globals struct {
	configPath string
	logFile    string
	verbose    int
}

func newRootCmd() *cobra.Command {
	g := &globals{}
	root := &cobra.Command{
		Use:           "treedeco",
		Short:         "Syntax-driven editor decorations for TypeScript and JavaScript",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			g.configureLogging()
		},
	}
	root.SetVersionTemplate("treedeco {{.Version}}\n")

	flags := root.PersistentFlags()
	flags.StringVarP(&g.configPath, "config", "c", "", "configuration file (default: .treedeco.yaml in the workspace)")
	flags.StringVar(&g.logFile, "log-file", "", "write logs to this file instead of stderr")
	flags.CountVarP(&g.verbose, "verbose", "v", "increase log verbosity (repeatable)")

	root.AddCommand(newServeCmd(g), newCheckCmd(g), newInitCmd())
	return root
}

// configureLogging sets up commonlog. stdout carries the protocol in serve
// mode, so logs never go there.
func (g *globals) configureLogging() {
	var path *string
	if g.logFile != "" {
		path = &g.logFile
	}
	commonlog.Configure(g.verbose, path)
}

// loadConfig returns the --config file when given, else .treedeco.yaml from
// dir or its defaults.
func (g *globals) loadConfig(dir string) (config.Config, error) {
	if g.configPath != "" {
		return config.Load(g.configPath)
	}
	return config.LoadDir(dir)
}

func newServeCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the language server over stdio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := server.Options{Version: version}
			if g.configPath != "" {
				cfg, err := config.Load(g.configPath)
				if err != nil {
					return err
				}
				opts.Config = &cfg
			}
			log.Infof("treedeco %s serving on stdio", version)
			return server.New(opts).RunStdio()
		},
	}
}

// workspaceDir is the directory a path argument belongs to.
func workspaceDir(path string) string {
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		return path
	}
	return filepath.Dir(path)
}
