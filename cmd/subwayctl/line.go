package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/you/subway/service"
)

func newLineCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "line",
		Aliases: []string{"lines"},
		Short:   "Manage lines",
	}
	cmd.AddCommand(
		newLineCreateCmd(a),
		newLineListCmd(a),
		newLineShowCmd(a),
		newLineRenameCmd(a),
		newLineRemoveCmd(a),
	)
	return cmd
}

func newLineCreateCmd(a *app) *cobra.Command {
	var (
		color    string
		up, down string
		distance int
	)
	cmd := &cobra.Command{
		Use:     "create NAME",
		Short:   "Create a line with its first section",
		Example: `  subwayctl line create "Line 2" --color "#00a84d" --up 1 --down 2 --distance 10`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			upID, err := parseStationID(up)
			if err != nil {
				return fmt.Errorf("--up: %w", err)
			}
			downID, err := parseStationID(down)
			if err != nil {
				return fmt.Errorf("--down: %w", err)
			}
			line, err := a.svc.CreateLine(cmd.Context(), service.CreateLineRequest{
				Name:          args[0],
				Color:         color,
				UpStationID:   upID,
				DownStationID: downID,
				Distance:      distance,
			})
			if err != nil {
				return err
			}
			printOK(cmd.OutOrStdout(), "Created line %d", line.ID)
			printLinePath(cmd.OutOrStdout(), line)
			return nil
		},
	}
	cmd.Flags().StringVar(&color, "color", "", "Line colour")
	cmd.Flags().StringVar(&up, "up", "", "Up terminus station ID")
	cmd.Flags().StringVar(&down, "down", "", "Down terminus station ID")
	cmd.Flags().IntVar(&distance, "distance", 0, "Distance between the termini")
	cmd.MarkFlagRequired("color")
	cmd.MarkFlagRequired("up")
	cmd.MarkFlagRequired("down")
	cmd.MarkFlagRequired("distance")
	return cmd
}

func newLineListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all lines",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			lines, err := a.svc.ListLines(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(lines) == 0 {
				fmt.Fprintln(out, mutedStyle.Render("No lines registered."))
				return nil
			}
			fmt.Fprintln(out, titleStyle.Render(fmt.Sprintf("%d lines", len(lines))))
			for _, l := range lines {
				printLineSummary(out, l)
			}
			return nil
		},
	}
}

func newLineShowCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show LINE_ID",
		Short: "Show a line's stations in order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID("line id", args[0])
			if err != nil {
				return err
			}
			line, err := a.svc.GetLine(cmd.Context(), id)
			if err != nil {
				return err
			}
			printLinePath(cmd.OutOrStdout(), line)
			return nil
		},
	}
}

func newLineRenameCmd(a *app) *cobra.Command {
	var name, color string
	cmd := &cobra.Command{
		Use:   "rename LINE_ID",
		Short: "Change a line's name and colour",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID("line id", args[0])
			if err != nil {
				return err
			}
			line, err := a.svc.UpdateLine(cmd.Context(), id, name, color)
			if err != nil {
				return err
			}
			printOK(cmd.OutOrStdout(), "Updated line %d", line.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "New line name")
	cmd.Flags().StringVar(&color, "color", "", "New line colour")
	cmd.MarkFlagRequired("name")
	cmd.MarkFlagRequired("color")
	return cmd
}

func newLineRemoveCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "rm LINE_ID",
		Short: "Delete a line and all of its sections",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID("line id", args[0])
			if err != nil {
				return err
			}
			if err := a.svc.DeleteLine(cmd.Context(), id); err != nil {
				return err
			}
			printOK(cmd.OutOrStdout(), "Deleted line %d", id)
			return nil
		},
	}
}
