package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"card-scan-workers/internal/vision"
)

func newScanCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "scan <image>...",
		Short: "Read card photos with the vision model and identify them",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			images := make([]vision.Image, 0, len(args))
			for _, path := range args {
				data, err := os.ReadFile(path)
				if err != nil {
					return fmt.Errorf("read image: %w", err)
				}
				images = append(images, vision.Image{Data: data})
			}

			svc, err := ctx.scanService()
			if err != nil {
				return err
			}
			outcomes, err := svc.ScanBatch(cmd.Context(), images)
			if err != nil {
				return err
			}
			return printOutcomes(cmd, ctx.jsonOutput, args, outcomes)
		},
	}
}
