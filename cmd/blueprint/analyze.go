package main

import (
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"blueprintvision/internal/pipeline"
	"blueprintvision/internal/prompt"
	"blueprintvision/internal/tiling"
	"blueprintvision/internal/util/jsonutil"
)

var (
	analyzeOut      string
	analyzeKind     string
	analyzeNoRefine bool
	analyzePreserve bool
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze <image>",
	Short: "Analyze one diagram image and print the detection result as JSON",
	Args:  cobra.ExactArgs(1),
	RunE:  runAnalyze,
}

func init() {
	analyzeCmd.Flags().StringVarP(&analyzeOut, "out", "o", "", "write the result to this file instead of stdout")
	analyzeCmd.Flags().StringVar(&analyzeKind, "type", "", "skip classification: pid or hvac")
	analyzeCmd.Flags().BoolVar(&analyzeNoRefine, "no-refine", false, "skip the full-image refinement pass")
	analyzeCmd.Flags().BoolVar(&analyzePreserve, "preserve-geometry", false, "keep merged boxes when refining")
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	ctx := withTrace(cmd.Context())
	raw, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}
	img := tiling.FromBytes(raw, mimeFor(args[0]))

	opts := pipelineOptions(cfg)
	if analyzeNoRefine {
		opts.Refine = false
	}
	if analyzePreserve {
		opts.PreserveGeometry = true
	}
	switch strings.ToLower(analyzeKind) {
	case "":
	case "pid", "p&id":
		opts.Kind = prompt.KindPID
	case "hvac":
		opts.Kind = prompt.KindHVAC
	default:
		return fmt.Errorf("--type must be pid or hvac, got %q", analyzeKind)
	}

	cli, err := newClient(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer cli.Close()

	a := pipeline.New(cli, opts, newStore(cfg), logger.Named("pipeline"))
	res, err := a.Analyze(ctx, img)
	if err != nil {
		return err
	}
	b, err := jsonutil.MarshalNoEscapeIndent(res, "", "  ")
	if err != nil {
		return err
	}
	if analyzeOut == "" {
		_, err = cmd.OutOrStdout().Write(append(b, '\n'))
		return err
	}
	if err := os.WriteFile(analyzeOut, b, 0o644); err != nil {
		return err
	}
	logger.Info("result written", zap.String("path", analyzeOut))
	return nil
}

func mimeFor(path string) string {
	if t := mime.TypeByExtension(strings.ToLower(filepath.Ext(path))); strings.HasPrefix(t, "image/") {
		return t
	}
	return "image/png"
}
