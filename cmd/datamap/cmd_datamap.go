package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"datamap/internal/datamap"
	"datamap/internal/project"
	"datamap/internal/report"
)

var (
	classifyStyle string
	classifyRaw   bool
	classifyReset bool
	validateList  bool
	validatePath  string
	exportOut     string
	exportNotes   string
	importNotes   string
)

var classifyCmd = &cobra.Command{
	Use:   "classify",
	Short: "Report attributes no production tests or creates",
	Long: `Scans the datamap for attributes that are never tested, never created, or
only ever one of the two. Each reported attribute is noted so later runs
only show new findings; --reset shows everything again.`,
	Args: cobra.NoArgs,
	RunE: runClassify,
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Accept generated datamap entries",
	Long: `Clears the generated flag from entries added by 'datamap complete'.

  datamap validate --list                 # show pending entries only
  datamap validate --path io.input-link   # accept one subtree
  datamap validate                        # accept everything`,
	Args: cobra.NoArgs,
	RunE: runValidate,
}

var pruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete generated entries that were never validated",
	Args:  cobra.NoArgs,
	RunE:  runPrune,
}

var reduceCmd = &cobra.Command{
	Use:   "reduce",
	Short: "Discard datamap vertices unreachable from the root",
	Args:  cobra.NoArgs,
	RunE:  runReduce,
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write the datamap in the text format",
	Args:  cobra.NoArgs,
	RunE:  runExport,
}

var importCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Replace the datamap with one in the text format",
	Args:  cobra.ExactArgs(1),
	RunE:  runImport,
}

var checkpointCmd = &cobra.Command{
	Use:   "checkpoint [label]",
	Short: "Store a snapshot of the datamap",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runCheckpoint,
}

var snapshotsCmd = &cobra.Command{
	Use:   "snapshots",
	Short: "List stored checkpoints",
	Args:  cobra.NoArgs,
	RunE:  runSnapshots,
}

var restoreCmd = &cobra.Command{
	Use:   "restore <id>",
	Short: "Replace the datamap with a stored checkpoint",
	Args:  cobra.ExactArgs(1),
	RunE:  runRestore,
}

func init() {
	classifyCmd.Flags().StringVar(&classifyStyle, "style", "", "Glamour style (dark, light, notty; default: detect)")
	classifyCmd.Flags().BoolVar(&classifyRaw, "raw", false, "Print markdown without rendering")
	classifyCmd.Flags().BoolVar(&classifyReset, "reset", false, "Report previously noted attributes again")

	validateCmd.Flags().BoolVar(&validateList, "list", false, "List generated entries without accepting them")
	validateCmd.Flags().StringVar(&validatePath, "path", "", "Accept only the entry at this dotted attribute path and below")

	exportCmd.Flags().StringVarP(&exportOut, "out", "o", "", "Output file (default: config export_path, - for stdout)")
	exportCmd.Flags().StringVar(&exportNotes, "comments", "", "Also write edge comments to this file")
	importCmd.Flags().StringVar(&importNotes, "comments", "", "Read edge comments from this file")
}

func runClassify(cmd *cobra.Command, args []string) error {
	return withProject(cmd, func(ctx context.Context, p *project.Project) error {
		if classifyReset {
			p.ResetNotes()
		}
		c, err := p.Classify()
		if err != nil {
			return err
		}
		md := report.ClassificationMarkdown(p.Graph(), p.Root(), c)
		if !classifyRaw {
			if md, err = report.RenderMarkdown(md, classifyStyle, 100); err != nil {
				return err
			}
		}
		fmt.Fprint(cmd.OutOrStdout(), md)
		return save(ctx, p)
	})
}

func runValidate(cmd *cobra.Command, args []string) error {
	return withProject(cmd, func(ctx context.Context, p *project.Project) error {
		out := cmd.OutOrStdout()
		if validateList && validatePath != "" {
			return fmt.Errorf("--list and --path cannot be combined")
		}
		if validateList {
			paths := report.Paths(p.Graph(), p.Root())
			pending := p.GeneratedEdges()
			for _, e := range pending {
				fmt.Fprintf(out, "%s\t%s\n", pathOf(paths, e), provenanceOf(e))
			}
			fmt.Fprintf(out, "%d generated entries\n", len(pending))
			return nil
		}

		var cs datamap.Changeset
		var err error
		if validatePath != "" {
			cs, err = p.ValidatePath(validatePath)
		} else {
			cs, err = p.ValidateAll()
		}
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Validated %d entries\n", cs.Count(datamap.EdgeUpdated))
		return save(ctx, p)
	})
}

func pathOf(paths map[datamap.VertexID]string, e datamap.Edge) string {
	if prefix := paths[e.From]; prefix != "" {
		return prefix + "." + e.Attr
	}
	return e.Attr
}

func provenanceOf(e datamap.Edge) string {
	if e.Provenance == nil {
		return "-"
	}
	return e.Provenance.String()
}

func runPrune(cmd *cobra.Command, args []string) error {
	return withProject(cmd, func(ctx context.Context, p *project.Project) error {
		cs, err := p.RemoveInvalid()
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Removed %d entries and %d vertices\n",
			cs.Count(datamap.EdgeRemoved), cs.Count(datamap.VertexRemoved))
		return save(ctx, p)
	})
}

func runReduce(cmd *cobra.Command, args []string) error {
	return withProject(cmd, func(ctx context.Context, p *project.Project) error {
		cs, err := p.Reduce()
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Discarded %d vertices\n", cs.Count(datamap.VertexRemoved))
		return save(ctx, p)
	})
}

func runExport(cmd *cobra.Command, args []string) error {
	return withProject(cmd, func(ctx context.Context, p *project.Project) error {
		target := exportOut
		if target == "" {
			target = p.Config.Datamap.ExportPath
		}

		w := cmd.OutOrStdout()
		if target != "-" {
			if !filepath.IsAbs(target) {
				target = filepath.Join(p.Workspace, target)
			}
			f, err := os.Create(target)
			if err != nil {
				return fmt.Errorf("create export: %w", err)
			}
			defer f.Close()
			w = f
		}

		// A nil *os.File must not reach Export as a non-nil io.Writer.
		var notes io.Writer
		if exportNotes != "" {
			f, err := os.Create(exportNotes)
			if err != nil {
				return fmt.Errorf("create comments: %w", err)
			}
			defer f.Close()
			notes = f
		}
		if err := p.Export(w, notes); err != nil {
			return err
		}
		if target != "-" {
			logger.Info("Datamap exported", zap.String("path", target))
			fmt.Fprintf(cmd.OutOrStdout(), "Exported datamap to %s\n", target)
		}
		return nil
	})
}

func runImport(cmd *cobra.Command, args []string) error {
	return withProject(cmd, func(ctx context.Context, p *project.Project) error {
		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("open import: %w", err)
		}
		defer f.Close()

		var notes io.Reader
		if importNotes != "" {
			nf, err := os.Open(importNotes)
			if err != nil {
				return fmt.Errorf("open comments: %w", err)
			}
			defer nf.Close()
			notes = nf
		}
		if err := p.Import(f, notes); err != nil {
			return err
		}
		g := p.Graph()
		fmt.Fprintf(cmd.OutOrStdout(), "Imported %d vertices and %d edges\n", g.VertexCount(), g.EdgeCount())
		return save(ctx, p)
	})
}

func runCheckpoint(cmd *cobra.Command, args []string) error {
	label := time.Now().Format(time.RFC3339)
	if len(args) == 1 {
		label = args[0]
	}
	return withProject(cmd, func(ctx context.Context, p *project.Project) error {
		snap, err := p.Checkpoint(ctx, label)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Checkpoint %d %q: %d vertices, %d edges\n", snap.ID, snap.Label, snap.Vertices, snap.Edges)
		return nil
	})
}

func runSnapshots(cmd *cobra.Command, args []string) error {
	return withProject(cmd, func(ctx context.Context, p *project.Project) error {
		snaps, err := p.Snapshots(ctx)
		if err != nil {
			return err
		}
		return report.Snapshots(cmd.OutOrStdout(), snaps, report.DetectStyles())
	})
}

func runRestore(cmd *cobra.Command, args []string) error {
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid checkpoint id %q", args[0])
	}
	return withProject(cmd, func(ctx context.Context, p *project.Project) error {
		if err := p.Restore(ctx, id); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Restored checkpoint %d\n", id)
		return save(ctx, p)
	})
}
