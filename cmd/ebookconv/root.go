package main

import (
	"github.com/spf13/cobra"

	cfgpkg "github.com/local/ebookconv/internal/config"
	logpkg "github.com/local/ebookconv/internal/logger"
)

// cfg is loaded once per invocation before any subcommand runs.
var cfg cfgpkg.Config

var rootCmd = &cobra.Command{
	Use:   "ebookconv",
	Short: "Convert ebooks between PDF, EPUB, TXT, MOBI and AZW3",
	Long: `ebookconv converts single files or whole folders of ebooks.
PDF, EPUB and TXT are read locally; EPUB and TXT are written locally.
MOBI and AZW3 are handed to a remote converter (CloudConvert, calibre or
another ebookconv server) and never parsed locally.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		cfg = cfgpkg.FromEnv()
		if lvl, _ := cmd.Flags().GetString("log-level"); lvl != "" {
			cfg.Logging.Level = lvl
		}
		return logpkg.Init(logpkg.OptionsFrom(cfg.Logging, cfg.Axiom))
	},
	PersistentPostRun: func(*cobra.Command, []string) {
		logpkg.Close()
	},
}

func init() {
	rootCmd.PersistentFlags().String("log-level", "", "override LOG_LEVEL (debug, info, warn, error)")
}
