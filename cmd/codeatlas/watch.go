package main

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
)

var flagWatchOutput string

var watchCmd = &cobra.Command{
	Use:   "watch [path]",
	Short: "Re-analyze the tree whenever source files change",
	Long:  "Watches the tree for filesystem changes and re-runs analysis after each burst of changes, rewriting the output document. Pairs well with --cache so unchanged files are not re-parsed.",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runWatch,
}

func init() {
	watchCmd.Flags().StringVarP(&flagWatchOutput, "output", "o", "ccm.json", "output file path")
	watchCmd.Flags().StringVar(&flagCache, "cache", "", "SQLite cache path for incremental re-analysis")
	watchCmd.Flags().StringArrayVar(&flagExcludes, "exclude", nil, "glob pattern to exclude (repeatable)")
	watchCmd.Flags().StringVar(&flagLanguages, "languages", "", "comma-separated language filter (e.g. go,python)")
}

// debounce is how long the watcher waits after the last event before
// re-analyzing, so editor save bursts trigger a single run.
const debounce = 300 * time.Millisecond

func runWatch(cmd *cobra.Command, args []string) error {
	root, err := resolveRoot(args)
	if err != nil {
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer watcher.Close()

	if err := watchTree(watcher, root); err != nil {
		return err
	}

	analyze := func() {
		doc, cleanup, err := analyzeTree(cmd.Context(), root)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Analysis failed: %s\n", err)
			return
		}
		defer cleanup()
		if err := writeJSON(flagWatchOutput, doc); err != nil {
			fmt.Fprintf(os.Stderr, "Write failed: %s\n", err)
			return
		}
		fmt.Fprintf(os.Stderr, "%s: %d nodes, %d relationships -> %s\n",
			time.Now().Format(time.TimeOnly),
			doc.Metadata.TotalNodes,
			doc.Metadata.TotalRelationships,
			flagWatchOutput,
		)
	}
	analyze()
	fmt.Fprintf(os.Stderr, "Watching %s (ctrl-c to stop)\n", root)

	var timer *time.Timer
	pending := make(chan struct{}, 1)
	for {
		select {
		case <-cmd.Context().Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if ignorable(event.Name) {
				continue
			}
			// New directories need watches of their own.
			if event.Op.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					_ = watchTree(watcher, event.Name)
				}
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(debounce, func() {
				select {
				case pending <- struct{}{}:
				default:
				}
			})
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			fmt.Fprintf(os.Stderr, "Watch error: %s\n", err)
		case <-pending:
			analyze()
		}
	}
}

// watchTree registers root and every non-ignored subdirectory, since
// fsnotify watches are not recursive.
func watchTree(watcher *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		name := d.Name()
		if path != root && (strings.HasPrefix(name, ".") || ignoredDir(name)) {
			return filepath.SkipDir
		}
		if err := watcher.Add(path); err != nil {
			return fmt.Errorf("watching %s: %w", path, err)
		}
		return nil
	})
}

func ignoredDir(name string) bool {
	switch name {
	case "node_modules", "vendor", "__pycache__", "dist", "build", "target":
		return true
	}
	return false
}

// ignorable filters events from hidden files and the output artifacts
// themselves, which would otherwise retrigger analysis forever.
func ignorable(path string) bool {
	base := filepath.Base(path)
	if strings.HasPrefix(base, ".") {
		return true
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	for _, out := range []string{flagWatchOutput, flagCache} {
		if out == "" {
			continue
		}
		if outAbs, err := filepath.Abs(out); err == nil && (abs == outAbs || strings.HasPrefix(abs, outAbs+"-")) {
			return true
		}
	}
	return false
}
