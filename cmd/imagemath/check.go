package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/imagemath-lang/imagemath/runtime/parser"
)

func checkCommand() *cobra.Command {
	var watch bool
	cmd := &cobra.Command{
		Use:   "check <script.math>",
		Short: "Parse a script and report syntax errors",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			if !watch {
				if ok := checkOnce(cmd, path); !ok {
					return fmt.Errorf("%s has errors", path)
				}
				return nil
			}
			return watchFile(cmd, path)
		},
	}
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "re-check on file change")
	return cmd
}

func checkOnce(cmd *cobra.Command, path string) bool {
	data, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintln(cmd.ErrOrStderr(), "error:", err)
		return false
	}
	source := string(data)
	script, errs := parser.Parse(source, parser.WithIncludeDir(filepath.Dir(path)))
	for _, e := range errs {
		fmt.Fprintf(cmd.OutOrStdout(), "%s:%s\n", path, e.Error())
		if snippet := e.Snippet(source); snippet != "" {
			fmt.Fprintln(cmd.OutOrStdout(), snippet)
		}
	}
	if len(errs) > 0 {
		return false
	}
	unresolvedCount := 0
	for _, inc := range script.Includes() {
		if inc.Unresolved {
			fmt.Fprintf(cmd.OutOrStdout(), "%s: warning: unresolved include %q\n", path, inc.Path)
			unresolvedCount++
		}
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s: ok (%d sections", path, len(script.Sections()))
	if unresolvedCount > 0 {
		fmt.Fprintf(cmd.OutOrStdout(), ", %d unresolved includes", unresolvedCount)
	}
	fmt.Fprintln(cmd.OutOrStdout(), ")")
	return true
}

// watchFile re-checks the script whenever it changes on disk. Editors often
// replace the file instead of writing in place, so the watch is re-armed on
// remove/rename events.
func watchFile(cmd *cobra.Command, path string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return err
	}
	target, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	checkOnce(cmd, path)
	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			abs, _ := filepath.Abs(event.Name)
			if abs != target {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				checkOnce(cmd, path)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			fmt.Fprintln(cmd.ErrOrStderr(), "watch error:", err)
		}
	}
}
