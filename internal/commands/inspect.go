package commands

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"

	"github.com/spf13/cobra"
	_ "golang.org/x/image/webp"
)

func newInspectCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <input>",
		Short: "Print the decoded dimensions and format of an image",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInspect(args[0])
		},
	}
}

func runInspect(input string) error {
	data, err := os.ReadFile(input)
	if err != nil {
		return fmt.Errorf("reading input: %w", err)
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("decoding %s: %w", input, err)
	}

	fmt.Printf("%s: %s %dx%d (%d bytes)\n", input, format, cfg.Width, cfg.Height, len(data))
	return nil
}
