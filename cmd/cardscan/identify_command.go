package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"card-scan-workers/internal/models"
)

func newIdentifyCommand(ctx *commandContext) *cobra.Command {
	var (
		extraction models.RawExtraction
		rawJSON    string
	)

	cmd := &cobra.Command{
		Use:   "identify",
		Short: "Match already extracted card fields against the catalog",
		Example: `  cardscan identify --name Pikachu --number 58 --set "Base Set"
  cardscan identify --extraction '{"name":"Charizard","card_number":"4/102"}'`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if rawJSON != "" {
				if err := json.Unmarshal([]byte(rawJSON), &extraction); err != nil {
					return fmt.Errorf("parse --extraction: %w", err)
				}
			}
			if extraction.IsEmpty() {
				return fmt.Errorf("no card fields given")
			}

			svc, err := ctx.scanService()
			if err != nil {
				return err
			}
			outcome, err := svc.Identify(cmd.Context(), extraction)
			if err != nil {
				return err
			}
			return printOutcomes(cmd, ctx.jsonOutput, []string{"-"}, []models.ScanOutcome{outcome})
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&extraction.Name, "name", "", "Card name")
	flags.StringVar(&extraction.CardNumber, "number", "", "Collector number, e.g. 58 or 4/102")
	flags.StringVar(&extraction.SetName, "set", "", "Set name")
	flags.StringVar(&extraction.SetCode, "set-code", "", "Set code")
	flags.StringVar(&extraction.Rarity, "rarity", "", "Rarity")
	flags.StringVar(&extraction.Language, "language", "", "Card language")
	flags.StringVar(&rawJSON, "extraction", "", "Extraction as a JSON object; overrides the field flags")
	return cmd
}

// printOutcomes writes one row per outcome, or the outcomes as JSON.
// Rejections also print the debug text.
func printOutcomes(cmd *cobra.Command, asJSON bool, sources []string, outcomes []models.ScanOutcome) error {
	if asJSON {
		if len(outcomes) == 1 {
			return writeJSON(cmd, outcomes[0])
		}
		return writeJSON(cmd, outcomes)
	}

	rows := make([][]string, 0, len(outcomes))
	var notes []string
	for i, o := range outcomes {
		row := []string{sources[i], o.ScanID, "", "", "", "", ""}
		if o.Matched() {
			card := o.Candidates[0]
			row[2] = card.CardID
			row[3] = fmt.Sprintf("%s #%s (%s)", card.Name, card.CardNumber, card.SetName)
			row[4] = fmt.Sprintf("%d", card.Score)
			row[5] = card.Confidence
			row[6] = string(card.Level)
		} else {
			row[2] = o.Error
			if o.Debug != nil {
				row[3] = o.Debug.Reason
				notes = append(notes, fmt.Sprintf("%s:\n%s", sources[i], o.Debug.Text))
			}
		}
		rows = append(rows, row)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, renderTable(
		[]string{"Source", "Scan", "Card", "Match", "Score", "Confidence", "Level"},
		rows, 4,
	))
	if len(notes) > 0 {
		fmt.Fprintln(out)
		fmt.Fprintln(out, strings.Join(notes, "\n\n"))
	}
	return nil
}

func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
