package commands

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/welth-app/receiptflow/internal/id"
	"github.com/welth-app/receiptflow/internal/normalize"
	"github.com/welth-app/receiptflow/internal/pipeline"
)

func newNormalizeCommand() *cobra.Command {
	var output string
	var maxDimension int

	cmd := &cobra.Command{
		Use:   "normalize <input>",
		Short: "Normalize a receipt image to a bounded JPEG",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runNormalize(cmd.Context(), args[0], output, maxDimension)
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "output path (default: <input>.normalized.jpg)")
	cmd.Flags().IntVar(&maxDimension, "max-dimension", normalize.DefaultMaxDimension, "bound for the longer side in pixels")

	return cmd
}

// runNormalize drives the same local pipeline the worker runs for
// local_file receipts, pointed at one input and one output path.
func runNormalize(ctx context.Context, input, output string, maxDimension int) error {
	if maxDimension < 1 {
		return fmt.Errorf("max dimension must be at least 1, got %d", maxDimension)
	}

	if err := normalize.Startup(); err != nil {
		return fmt.Errorf("codec startup: %w", err)
	}
	defer normalize.Shutdown()

	if output == "" {
		output = strings.TrimSuffix(input, filepath.Ext(input)) + ".normalized.jpg"
	}

	processor, err := pipeline.NewProcessor(pipeline.LocalFileFetcher{}, normalize.New(), pipeline.FileEmitter{Path: output})
	if err != nil {
		return err
	}

	result, err := processor.Process(ctx, pipeline.Request{
		ReceiptID:    id.New(),
		SourceType:   pipeline.SourceTypeLocalFile,
		ObjectKey:    input,
		FileName:     filepath.Base(input),
		MaxDimension: maxDimension,
	})
	if err != nil {
		return fmt.Errorf("normalizing %s: %w", input, err)
	}

	fmt.Printf("%s -> %s (%dx%d, %d bytes)\n", input, result.Output.Path, result.Output.Width, result.Output.Height, result.Output.Bytes)
	return nil
}
