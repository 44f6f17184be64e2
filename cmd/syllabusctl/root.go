package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/Lllllllleong/syllabusflow/internal/config"
)

type rootOptions struct {
	cfgFile string
	verbose bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "syllabusctl",
		Short: "Generate course syllabi from documents",
		Long: `syllabusctl extracts the text of PDF, Markdown or plain-text documents and
asks the configured generative model for a course syllabus, printed as JSON.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level := slog.LevelWarn
			if opts.verbose {
				level = slog.LevelDebug
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
			if opts.cfgFile != "" {
				return os.Setenv(config.FileEnv, opts.cfgFile)
			}
			return nil
		},
	}
	cmd.PersistentFlags().StringVarP(&opts.cfgFile, "config", "c", "", "YAML config file path")
	cmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "enable debug logging")

	cmd.AddCommand(newGenerateCmd())
	return cmd
}
