package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"card-scan-workers/internal/cardmatch"
)

func newSimilarityCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "similarity <a> <b>",
		Short: "Print the 0-100 name similarity of two strings",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), cardmatch.Similarity(args[0], args[1]))
			return nil
		},
	}
}
