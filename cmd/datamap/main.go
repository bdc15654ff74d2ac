// Command datamap maintains the working-memory schema of a production rule
// workspace: it checks productions against the datamap, completes the
// datamap from them and reports unused attributes.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"datamap/internal/logging"
	"datamap/internal/project"
)

var (
	verbose   bool
	workspace string
	timeout   time.Duration

	logger = zap.NewNop()
)

// errDiagnostics signals a clean run that found errors in the productions.
// main exits 1 without printing it again.
var errDiagnostics = errors.New("productions do not match the datamap")

var rootCmd = &cobra.Command{
	Use:   "datamap",
	Short: "Check and complete the working-memory datamap of production rules",
	Long: `datamap keeps a schema graph of the working memory a set of productions
reads and writes. It checks productions against the schema, completes the
schema from productions, and reports attributes no production tests or
creates.

Productions are discovered with the globs in .datamap/config.yaml.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		config := zap.NewProductionConfig()
		config.OutputPaths = []string{"stderr"}
		config.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
		if verbose {
			config.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = config.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
		logging.CloseAll()
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVarP(&workspace, "workspace", "w", "", "Workspace directory (default: current)")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 5*time.Minute, "Operation timeout")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(completeCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(classifyCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(pruneCmd)
	rootCmd.AddCommand(reduceCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(checkpointCmd)
	rootCmd.AddCommand(snapshotsCmd)
	rootCmd.AddCommand(restoreCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		// PersistentPostRun is skipped when a command fails.
		logging.CloseAll()
		if !errors.Is(err, errDiagnostics) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}

// resolveWorkspace returns the --workspace flag or the working directory.
func resolveWorkspace() string {
	if workspace != "" {
		return workspace
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "."
	}
	return cwd
}

// commandContext bounds a command by --timeout and cancels it on SIGINT or
// SIGTERM.
func commandContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	base := cmd.Context()
	if base == nil {
		base = context.Background()
	}
	ctx, cancel := context.WithTimeout(base, timeout)
	ctx, stop := signalContext(ctx)
	return ctx, func() {
		stop()
		cancel()
	}
}

func signalContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
}

// withProject opens the workspace, runs fn and closes it again.
func withProject(cmd *cobra.Command, fn func(ctx context.Context, p *project.Project) error) error {
	ctx, cancel := commandContext(cmd)
	defer cancel()

	ws := resolveWorkspace()
	logger.Debug("Opening workspace", zap.String("path", ws))
	p, err := project.Open(ctx, ws)
	if err != nil {
		return fmt.Errorf("open workspace: %w", err)
	}
	defer func() {
		if err := p.Close(); err != nil {
			logger.Warn("Failed to close workspace", zap.Error(err))
		}
	}()
	return fn(ctx, p)
}

// save persists the datamap after a mutating command.
func save(ctx context.Context, p *project.Project) error {
	if err := p.Save(ctx); err != nil {
		return fmt.Errorf("save datamap: %w", err)
	}
	logger.Debug("Datamap saved",
		zap.Int("vertices", p.Graph().VertexCount()),
		zap.Int("edges", p.Graph().EdgeCount()))
	return nil
}
