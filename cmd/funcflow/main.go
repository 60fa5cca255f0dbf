// Command funcflow runs the dynamic function registry: a hot-reloading
// catalog of JavaScript plugin functions callable from generated text
// tags, natural-language auto-detection, or this management CLI.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/goatkit/funcflow/internal/config"
)

var version = "dev"

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var cfgPath string
	var pluginsDir string

	root := &cobra.Command{
		Use:     "funcflow",
		Short:   "Dynamic function registry for text-generation pipelines",
		Version: version,
		Long: `funcflow watches a plugin directory of JavaScript function files and
keeps them callable without restarts. Functions are invoked through
explicit <run:name k=v> tags embedded in generated text, heuristic
auto-detection against free-text questions, or directly from this CLI
and the HTTP management API.`,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&cfgPath, "config", "", "config file (default: ./funcflow.yaml)")
	root.PersistentFlags().StringVar(&pluginsDir, "plugins-dir", "", "override the plugin directory")

	loadConfig := func() (*config.Config, error) {
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return nil, err
		}
		if pluginsDir != "" {
			cfg.Plugins.Dir = pluginsDir
		}
		setupLogging(cfg.Log.Level)
		return cfg, nil
	}

	root.AddCommand(
		newServeCommand(loadConfig),
		newListCommand(loadConfig),
		newInfoCommand(loadConfig),
		newRunCommand(loadConfig),
		newProcessCommand(loadConfig),
		newLogCommand(loadConfig),
	)
	return root
}

func setupLogging(level string) {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})))
}
