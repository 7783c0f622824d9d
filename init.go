package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/phobologic/treedeco/internal/config"
)

const (
	sentinelStart = "# treedeco:start"
	sentinelEnd   = "# treedeco:end"
)

// newInitCmd implements `treedeco init`, which writes (or updates) the
// default configuration block in a .treedeco.yaml file.
func newInitCmd() *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "init [path]",
		Short: "Write the default configuration to .treedeco.yaml",
		Long: `Write the default treedeco configuration to a .treedeco.yaml file. The block
is wrapped in sentinel comments so it can be updated in place on subsequent
runs without touching surrounding content. Creates the file if it does not
exist.

path defaults to ./.treedeco.yaml.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout, stderr := cmd.OutOrStdout(), cmd.ErrOrStderr()
			section := generateSection()

			// --dry-run with no path: just print the section itself.
			if dryRun && len(args) == 0 {
				_, _ = fmt.Fprintln(stdout, section)
				return nil
			}

			path := config.FileName
			if len(args) > 0 {
				path = args[0]
			}

			existing, _ := os.ReadFile(path)
			updated := applySection(string(existing), section)

			if dryRun {
				_, _ = fmt.Fprint(stdout, updated)
				return nil
			}

			if err := os.WriteFile(path, []byte(updated), 0o644); err != nil {
				return fmt.Errorf("writing %s: %w", path, err)
			}
			if _, err := config.Load(path); err != nil {
				_, _ = fmt.Fprintf(stderr, "Warning: %s does not load cleanly: %v\n", path, err)
			}

			_, _ = fmt.Fprintf(stderr, "wrote treedeco configuration to %s\n", path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "print what would be written without modifying the file")
	return cmd
}

// generateSection returns the sentinel-wrapped default configuration.
func generateSection() string {
	return sentinelStart + "\n" + strings.TrimRight(config.DefaultYAML, "\n") + "\n" + sentinelEnd
}

// applySection inserts section into content, replacing an existing sentinel
// block if present or appending if not.
func applySection(content, section string) string {
	start := strings.Index(content, sentinelStart)
	end := strings.Index(content, sentinelEnd)

	if start >= 0 && end > start {
		return content[:start] + section + content[end+len(sentinelEnd):]
	}

	if content == "" {
		return section + "\n"
	}
	// Append, ensuring a blank line separator.
	if !strings.HasSuffix(content, "\n") {
		content += "\n"
	}
	return content + "\n" + section + "\n"
}
