package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"sync"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"datamap/internal/config"
	"datamap/internal/match"
	"datamap/internal/metrics"
	"datamap/internal/project"
	"datamap/internal/report"
	"datamap/internal/watch"
)

var (
	completeDryRun bool
	watchComplete  bool
	watchMetrics   string
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create .datamap/ with a default config and an empty datamap",
	Args:  cobra.NoArgs,
	RunE:  runInit,
}

var checkCmd = &cobra.Command{
	Use:   "check [files...]",
	Short: "Check productions against the datamap",
	Long: `Matches every production against the datamap and reports constraints that
match no edge and variables bound to nothing. With no arguments all
discovered production files are checked.

Exits 1 when any error is reported.`,
	RunE: runCheck,
}

var completeCmd = &cobra.Command{
	Use:   "complete [files...]",
	Short: "Extend the datamap until productions match it",
	Long: `Adds the identifiers, attributes and values productions need. Everything
added is flagged generated until accepted with 'datamap validate'.`,
	RunE: runComplete,
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Re-check production files whenever they change",
	Args:  cobra.NoArgs,
	RunE:  runWatch,
}

func init() {
	completeCmd.Flags().BoolVar(&completeDryRun, "dry-run", false, "Report what would be generated without saving")
	watchCmd.Flags().BoolVar(&watchComplete, "complete", false, "Complete the datamap instead of only checking")
	watchCmd.Flags().StringVar(&watchMetrics, "metrics-addr", "", "Serve Prometheus metrics on this address (overrides config)")
}

func runInit(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext(cmd)
	defer cancel()

	ws := resolveWorkspace()
	p, err := project.Init(ctx, ws)
	if err != nil {
		return err
	}
	defer p.Close()
	logger.Info("Workspace initialized", zap.String("path", ws))
	fmt.Fprintf(cmd.OutOrStdout(), "Initialized datamap in %s\n", config.Path(ws))
	return nil
}

func runCheck(cmd *cobra.Command, args []string) error {
	return withProject(cmd, func(ctx context.Context, p *project.Project) error {
		diags, loadErr := p.Check(ctx, args...)
		if err := printDiagnostics(cmd.OutOrStdout(), diags); err != nil {
			return err
		}
		// Checking sets tested and created flags, which classify reads later.
		if err := save(ctx, p); err != nil {
			return err
		}
		if loadErr != nil {
			return loadErr
		}
		if hasErrors(diags) {
			return errDiagnostics
		}
		return nil
	})
}

func runComplete(cmd *cobra.Command, args []string) error {
	return withProject(cmd, func(ctx context.Context, p *project.Project) error {
		diags, loadErr := p.Complete(ctx, args...)
		if err := printDiagnostics(cmd.OutOrStdout(), diags); err != nil {
			return err
		}
		if completeDryRun {
			logger.Info("Dry run, datamap not saved", zap.Int("diagnostics", len(diags)))
			return loadErr
		}
		if err := save(ctx, p); err != nil {
			return err
		}
		if loadErr != nil {
			return loadErr
		}
		if hasErrors(diags) {
			return errDiagnostics
		}
		return nil
	})
}

func printDiagnostics(w io.Writer, diags []match.Diagnostic) error {
	return report.Diagnostics(w, diags, report.DetectStyles())
}

func hasErrors(diags []match.Diagnostic) bool {
	return slices.ContainsFunc(diags, func(d match.Diagnostic) bool { return !d.Kind.Generated() })
}

// watchCheck checks or completes one changed file and saves the result, so
// lint flags set while watching reach classify like those of check.
func watchCheck(p *project.Project, complete bool) watch.CheckFunc {
	run := p.Check
	if complete {
		run = p.Complete
	}
	return func(ctx context.Context, rel string) ([]match.Diagnostic, error) {
		diags, err := run(ctx, rel)
		if saveErr := p.Save(ctx); saveErr != nil {
			err = multierr.Append(err, fmt.Errorf("save datamap: %w", saveErr))
		}
		return diags, err
	}
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	// The watcher runs until interrupted, so --timeout does not apply.
	ctx, stop := signalContext(ctx)
	defer stop()

	ws := resolveWorkspace()
	p, err := project.Open(ctx, ws)
	if err != nil {
		return fmt.Errorf("open workspace: %w", err)
	}
	defer p.Close()

	out := cmd.OutOrStdout()
	var outMu sync.Mutex
	w, err := watch.New(ws, watchCheck(p, watchComplete), watch.Options{
		Debounce: p.Config.GetDebounce(),
		Filter:   p.Matches,
		Skip:     []string{config.DirName},
		OnResult: func(res watch.Result) {
			outMu.Lock()
			defer outMu.Unlock()
			if res.Err != nil {
				fmt.Fprintf(out, "%s: %v\n", res.Path, res.Err)
				return
			}
			fmt.Fprintf(out, "== %s\n", res.Path)
			_ = printDiagnostics(out, res.Diagnostics)
		},
	})
	if err != nil {
		return err
	}

	addr := p.Config.Watch.MetricsAddr
	if watchMetrics != "" {
		addr = watchMetrics
	}

	g, gctx := errgroup.WithContext(ctx)
	if addr != "" {
		logger.Info("Serving metrics", zap.String("addr", addr))
		g.Go(func() error { return metrics.Serve(gctx, addr) })
	}
	g.Go(func() error {
		if err := w.Start(gctx); err != nil {
			return err
		}
		defer w.Stop()
		files, err := p.Discover()
		if err != nil {
			return err
		}
		w.Trigger(gctx, files...)
		fmt.Fprintf(out, "Watching %s (Ctrl-C to stop)\n", ws)
		<-gctx.Done()
		return nil
	})
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("Watcher finished", zap.Any("stats", w.GetStats()))
	return nil
}
