// Command httm is the thin cobra entry point spec.md §1 carves out as an
// external collaborator: one subcommand per controller operation (list,
// deleted, snap, restore, roll-forward), each doing argv/stdin collection
// per spec.md §6 and handing off to internal/engine.Engine. The
// interactive selector, colorization, pager, and preview subprocess are
// intentionally not implemented here.
//
// Grounded on the teacher's cmd/ entry-point shape is absent (the teacher
// has no cmd/ package of its own); the cobra wiring instead follows
// theanswer42-bt-go's cmd/bt/main.go (rootCmd + one var-declared
// *cobra.Command per subcommand, RunE doing the real work) and
// majorcontext-moat's flag-binding idiom.
package main

import (
	"bufio"
	"fmt"
	"os"

	"github.com/httm-go/httm/internal/alias"
	"github.com/httm-go/httm/internal/config"
	"github.com/httm-go/httm/internal/dedup"
	"github.com/httm-go/httm/internal/engine"
	"github.com/httm-go/httm/internal/errkind"
	"github.com/httm-go/httm/internal/httm"
	"github.com/httm-go/httm/internal/pathdata"
	"github.com/httm-go/httm/internal/restore"
	"github.com/httm-go/httm/internal/sink"

	"github.com/spf13/cobra"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(exitCodeFor(err))
	}
}

// exitCodeFor maps the error taxonomy of spec.md §7 to the process exit
// codes of spec.md §6: 0 success, 1 per-path error after continuing, 2
// fatal configuration error.
func exitCodeFor(err error) int {
	if err == nil {
		return 0
	}
	if fatalConfigError(err) {
		return 2
	}
	return 1
}

var (
	flagUniqueness  string
	flagOutput      string
	flagOmitDitto   bool
	flagNoLive      bool
	flagNoSnap      bool
	flagAliases     []string
	flagRestoreMode string
	flagUTC         bool
	flagWorkers     int
	flagRecursive   bool
	flagDeleted     bool
	flagDepth       int
)

var rootCmd = &cobra.Command{
	Use:   "httm",
	Short: "enumerate, browse, and restore historical file versions from snapshots",
}

var listCmd = &cobra.Command{
	Use:   "list [paths...]",
	Short: "list unique historical versions of one or more live paths",
	RunE: func(cmd *cobra.Command, args []string) error {
		paths, err := pathsFromArgsOrStdin(args)
		if err != nil {
			return err
		}

		eng, err := buildEngine(cmd)
		if err != nil {
			return err
		}

		level := pathdata.ParseUniquenessLevel(flagUniqueness)
		policies := dedup.Policies{OmitDitto: flagOmitDitto, NoLive: flagNoLive, NoSnap: flagNoSnap}

		if flagRecursive {
			return runRecursive(cmd, eng, paths, level, policies)
		}

		results, failed, err := eng.ListMany(cmd.Context(), paths, engine.ListOptions{Level: level, Policies: policies})
		if err != nil {
			return err
		}

		out := sink.New(os.Stdout, sink.ParseFormat(flagOutput))
		if err := out.Open(); err != nil {
			return err
		}
		for _, p := range paths {
			entries := results[p]
			for i, e := range entries {
				if i > 0 && e.IsLive && len(entries) > 1 {
					if err := out.WriteSeparator(); err != nil {
						return err
					}
				}
				if err := out.Write(e); err != nil {
					return err
				}
			}
		}
		if err := out.Close(); err != nil {
			return err
		}

		if len(failed) > 0 {
			return fmt.Errorf("httm: %d of %d paths failed", len(failed), len(paths))
		}
		return nil
	},
}

// runRecursive implements spec.md §2's "recursive queries insert H between
// the driver and D" control flow, streaming Walker records through the
// same dedup filter and sink the flat List path uses.
func runRecursive(cmd *cobra.Command, eng *engine.Engine, roots []string, level pathdata.UniquenessLevel, policies dedup.Policies) error {
	out := sink.New(os.Stdout, sink.ParseFormat(flagOutput))
	if err := out.Open(); err != nil {
		return err
	}

	filter := dedup.New(level, policies)
	for rec := range eng.Recursive(cmd.Context(), roots, flagDeleted, flagDepth) {
		if rec.Deleted {
			for _, e := range rec.Versions {
				if err := out.Write(e); err != nil {
					return err
				}
			}
			continue
		}
		for _, e := range filter.Apply(rec.Versions) {
			if err := out.Write(e); err != nil {
				return err
			}
		}
	}
	return out.Close()
}

var deletedCmd = &cobra.Command{
	Use:   "deleted [dir]",
	Short: "list directory entries that once existed but no longer do",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, err := buildEngine(cmd)
		if err != nil {
			return err
		}
		entries, err := eng.Deleted(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		for _, e := range entries {
			fmt.Printf("%s\t%s\n", e.LastSeenSnapshot, e.Name)
		}
		return nil
	},
}

var snapCmd = &cobra.Command{
	Use:   "snap [paths...]",
	Short: "create a new snapshot covering the given live paths",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, err := buildEngine(cmd)
		if err != nil {
			return err
		}
		created, err := eng.CreateSnapshot(cmd.Context(), args, "", "")
		for mount, name := range created {
			fmt.Printf("%s: %s\n", mount, name)
		}
		return err
	},
}

var restoreCmd = &cobra.Command{
	Use:   "restore [snapshot-path] [destination]",
	Short: "restore a snapshot version to a live destination",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, err := buildEngine(cmd)
		if err != nil {
			return err
		}

		mode := restore.ParseMode(flagRestoreMode)
		if env := os.Getenv("HTTM_RESTORE_MODE"); env != "" {
			mode = restore.ParseMode(env)
		}

		level := pathdata.ParseUniquenessLevel(flagUniqueness)
		guardSnap, err := eng.Restore(cmd.Context(), restore.Request{
			Source:      args[0],
			Destination: args[1],
			Mode:        mode,
		}, level)
		if guardSnap != "" {
			fmt.Printf("guard snapshot: %s\n", guardSnap)
		}
		return err
	},
}

var rollForwardCmd = &cobra.Command{
	Use:   "roll-forward [mount-point] [snapshot-name]",
	Short: "replay a snapshot's diff onto the live dataset without destroying interstitial snapshots",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, err := buildEngine(cmd)
		if err != nil {
			return err
		}
		m, ok := eng.Inventory.ByMountPoint(args[0])
		if !ok {
			return fmt.Errorf("httm: %s is not a known mount point", args[0])
		}
		result, err := eng.RollForward(cmd.Context(), m, args[1])
		if result != nil {
			fmt.Printf("pre-snapshot: %s\npost-snapshot: %s\nchanged: %d\nremoved: %d\n",
				result.PreSnapshot, result.PostSnapshot, len(result.Changed), len(result.Removed))
		}
		return err
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagUniqueness, "dedup-by", "metadata", "identity used for deduplication: metadata, contents, all")
	rootCmd.PersistentFlags().StringVarP(&flagOutput, "output", "o", "columnar", "output format: columnar, null, tab, json, csv, raw")
	rootCmd.PersistentFlags().BoolVar(&flagOmitDitto, "omit-ditto", false, "drop entries identical to the live file")
	rootCmd.PersistentFlags().BoolVar(&flagNoLive, "no-live", false, "omit the live entry")
	rootCmd.PersistentFlags().BoolVar(&flagNoSnap, "no-snap", false, "omit all snapshot entries")
	rootCmd.PersistentFlags().StringArrayVar(&flagAliases, "alias", nil, "live-prefix:snapshot-prefix alias, repeatable")
	rootCmd.PersistentFlags().IntVar(&flagWorkers, "workers", 0, "stat/traversal pool width (0 = derive from CPU count)")
	restoreCmd.Flags().StringVar(&flagRestoreMode, "mode", "copy", "restore mode: copy, overwrite, guard, yolo")
	rootCmd.PersistentFlags().BoolVar(&flagUTC, "utc", false, "use UTC timestamps for snapshots httm creates")
	listCmd.Flags().BoolVarP(&flagRecursive, "recursive", "R", false, "walk each path depth-first instead of listing it alone")
	listCmd.Flags().BoolVar(&flagDeleted, "deleted", false, "when recursive, also reconstruct deleted children (spec.md §4.G)")
	listCmd.Flags().IntVar(&flagDepth, "depth", -1, "when recursive, bound traversal depth (-1 = unlimited)")

	rootCmd.AddCommand(listCmd, deletedCmd, snapCmd, restoreCmd, rollForwardCmd)
}

// buildEngine loads config and assembles the engine for one invocation.
// The Mount Inventory is rebuilt per process per spec.md §9 ("construct it
// eagerly at startup"); httm is a short-lived CLI, not a daemon.
func buildEngine(cmd *cobra.Command) (*engine.Engine, error) {
	cfg, err := config.LoadConfig("")
	if err != nil {
		return nil, err
	}

	var pairs []alias.Pair
	for _, raw := range flagAliases {
		p, err := alias.ParsePair(raw)
		if err != nil {
			return nil, err
		}
		pairs = append(pairs, p)
	}
	for _, a := range cfg.Httm.Aliases {
		pairs = append(pairs, alias.Pair{LivePrefix: a.LivePrefix, SnapshotPrefix: a.SnapshotPrefix})
	}

	return engine.New(httm.Logger(), engine.Options{
		Aliases:        pairs,
		WorkerCount:    flagWorkers,
		SnapPrefix:     cfg.Httm.SnapPrefix,
		SnapSuffix:     cfg.Httm.SnapSuffix,
		UTCTimestamps:  flagUTC || cfg.Httm.UTCTimestamps,
		EscalationTool: cfg.Httm.EscalationTool,
	})
}

// pathsFromArgsOrStdin implements spec.md §6: path arguments on argv, or
// one per line from stdin (EOF terminates) when none are supplied.
func pathsFromArgsOrStdin(args []string) ([]string, error) {
	if len(args) > 0 {
		return args, nil
	}

	var paths []string
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		paths = append(paths, line)
	}
	return paths, scanner.Err()
}

// fatalConfigError reports whether err represents a spec.md §7
// Configuration-kind (fatal) failure.
func fatalConfigError(err error) bool {
	return errkind.IsKind(err, errkind.Configuration)
}
