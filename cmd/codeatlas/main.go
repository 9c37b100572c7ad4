package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/codeatlas-dev/codeatlas"
	"github.com/codeatlas-dev/codeatlas/internal/config"
)

var (
	flagConfig  string
	flagVerbose bool
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:           "codeatlas",
	Short:         "Multi-language code analysis and dependency graph generation",
	Long:          "Codeatlas parses a source tree into a canonical code model (nodes and relationships) and converts it into a dependency graph for visualization.",
	SilenceErrors: true,
	SilenceUsage:  true,
	// No Run — prints help by default.
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "config file path (default: .codeatlas.yml in the analysis root)")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(graphCmd)
	rootCmd.AddCommand(watchCmd)
}

var (
	flagOutput    string
	flagExcludes  []string
	flagLanguages string
	flagCache     string
	flagSerial    bool
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze [path]",
	Short: "Analyze a source tree into a canonical model document",
	Long:  "Walks the tree, parses every supported source file, resolves cross-references project-wide, and writes the canonical model as JSON.",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runAnalyze,
}

func init() {
	analyzeCmd.Flags().StringVarP(&flagOutput, "output", "o", "ccm.json", "output file path")
	analyzeCmd.Flags().StringArrayVar(&flagExcludes, "exclude", nil, "glob pattern to exclude (repeatable)")
	analyzeCmd.Flags().StringVar(&flagLanguages, "languages", "", "comma-separated language filter (e.g. go,python)")
	analyzeCmd.Flags().StringVar(&flagCache, "cache", "", "SQLite cache path for incremental re-analysis")
	analyzeCmd.Flags().BoolVar(&flagSerial, "serial", false, "disable parallel parsing")
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	start := time.Now()
	root, err := resolveRoot(args)
	if err != nil {
		return err
	}

	doc, cleanup, err := analyzeTree(cmd.Context(), root)
	if err != nil {
		return err
	}
	defer cleanup()

	if err := writeJSON(flagOutput, doc); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "Analyzed %s in %s: %d nodes, %d relationships (%.1f%% resolved)\n",
		root,
		time.Since(start).Round(time.Millisecond),
		doc.Metadata.TotalNodes,
		doc.Metadata.TotalRelationships,
		doc.Metadata.ResolutionRate,
	)
	fmt.Fprintf(os.Stderr, "Output: %s\n", flagOutput)
	return nil
}

// analyzeTree builds an Engine from config plus flags and runs Analyze.
// The returned cleanup closes the Engine.
func analyzeTree(ctx context.Context, root string) (*codeatlas.Document, func(), error) {
	cfg, err := loadConfig(root)
	if err != nil {
		return nil, nil, err
	}

	opts := []codeatlas.Option{
		codeatlas.WithLogger(newLogger()),
		codeatlas.WithDocProximity(cfg.DocProximity),
	}
	if excludes := append(cfg.Exclude, flagExcludes...); len(excludes) > 0 {
		opts = append(opts, codeatlas.WithExcludes(excludes...))
	}
	if languages := languageFilter(cfg); len(languages) > 0 {
		opts = append(opts, codeatlas.WithLanguages(languages...))
	}
	if cache := cachePath(cfg, root); cache != "" {
		if err := os.MkdirAll(filepath.Dir(cache), 0o755); err != nil {
			return nil, nil, fmt.Errorf("creating cache directory: %w", err)
		}
		opts = append(opts, codeatlas.WithCache(cache))
	}
	if flagSerial || !cfg.ParallelEnabled() {
		opts = append(opts, codeatlas.WithParallel(false))
	}

	engine, err := codeatlas.New(opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("creating engine: %w", err)
	}
	doc, err := engine.Analyze(ctx, root)
	if err != nil {
		engine.Close()
		return nil, nil, fmt.Errorf("analyzing: %w", err)
	}
	return doc, func() { engine.Close() }, nil
}

func loadConfig(root string) (*config.Config, error) {
	path := flagConfig
	if path == "" {
		path = filepath.Join(root, config.DefaultFileName)
	}
	return config.Load(path)
}

func languageFilter(cfg *config.Config) []string {
	if flagLanguages != "" {
		parts := strings.Split(flagLanguages, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		return parts
	}
	return cfg.Languages
}

func cachePath(cfg *config.Config, root string) string {
	path := flagCache
	if path == "" {
		path = cfg.CachePath
	}
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(root, path)
}

func newLogger() *slog.Logger {
	level := slog.LevelWarn
	if flagVerbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// resolveRoot returns the absolute path of the directory to analyze.
func resolveRoot(args []string) (string, error) {
	dir := "."
	if len(args) > 0 {
		dir = args[0]
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("resolving path %q: %w", dir, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("directory not found: %s", abs)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("not a directory: %s", abs)
	}
	return abs, nil
}

// writeJSON writes v as indented JSON via a temp file and rename, so a
// crash mid-write never leaves a truncated output file.
func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding output: %w", err)
	}
	data = append(data, '\n')

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("writing output: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing output: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replacing output: %w", err)
	}
	return nil
}
