package main

import (
	"github.com/spf13/cobra"

	"github.com/you/subway/internal/seed"
)

func newImportCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "import SEED.yaml",
		Short: "Load stations and lines from a YAML seed",
		Long: `Load stations and lines from a YAML seed. Stations are matched by
name and lines that already exist are skipped, so a seed can be applied
more than once.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := seed.Load(args[0])
			if err != nil {
				return err
			}
			res, err := seed.Apply(cmd.Context(), a.svc, doc)
			if err != nil {
				return err
			}
			printOK(cmd.OutOrStdout(), "Imported %d stations, %d lines, %d sections (%d lines skipped)",
				res.StationsCreated, res.LinesCreated, res.SectionsAdded, res.LinesSkipped)
			return nil
		},
	}
}
