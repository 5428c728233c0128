package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/you/subway/service"
)

func newSectionCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "section",
		Aliases: []string{"sections"},
		Short:   "Add sections to a line or take stations off it",
	}

	var (
		up, down string
		distance int
	)
	add := &cobra.Command{
		Use:   "add LINE_ID",
		Short: "Insert a section into a line",
		Long: `Insert a section into a line. Exactly one of the two stations must
already be on the line. A section sharing a station with an existing section
splits it, so its distance must be shorter than the one it splits.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			lineID, err := parseID("line id", args[0])
			if err != nil {
				return err
			}
			upID, err := parseStationID(up)
			if err != nil {
				return fmt.Errorf("--up: %w", err)
			}
			downID, err := parseStationID(down)
			if err != nil {
				return fmt.Errorf("--down: %w", err)
			}
			line, err := a.svc.AddSection(cmd.Context(), lineID, service.SectionRequest{
				UpStationID:   upID,
				DownStationID: downID,
				Distance:      distance,
			})
			if err != nil {
				return err
			}
			printLinePath(cmd.OutOrStdout(), line)
			return nil
		},
	}
	add.Flags().StringVar(&up, "up", "", "Up station ID")
	add.Flags().StringVar(&down, "down", "", "Down station ID")
	add.Flags().IntVar(&distance, "distance", 0, "Section distance")
	add.MarkFlagRequired("up")
	add.MarkFlagRequired("down")
	add.MarkFlagRequired("distance")

	rm := &cobra.Command{
		Use:   "rm LINE_ID STATION_ID",
		Short: "Take a station off a line",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			lineID, err := parseID("line id", args[0])
			if err != nil {
				return err
			}
			station, err := parseStationID(args[1])
			if err != nil {
				return err
			}
			if err := a.svc.RemoveStation(cmd.Context(), lineID, station); err != nil {
				return err
			}
			line, err := a.svc.GetLine(cmd.Context(), lineID)
			if err != nil {
				return err
			}
			printLinePath(cmd.OutOrStdout(), line)
			return nil
		},
	}

	cmd.AddCommand(add, rm)
	return cmd
}
