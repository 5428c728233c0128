package main

import (
	"github.com/spf13/cobra"
)

func newStationCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "station",
		Aliases: []string{"stations", "st"},
		Short:   "Manage stations",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "add NAME...",
		Short: "Register one or more stations",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, name := range args {
				st, err := a.svc.CreateStation(cmd.Context(), name)
				if err != nil {
					return err
				}
				printOK(cmd.OutOrStdout(), "Created station %d %s", st.ID, st.Name)
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List all stations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			stations, err := a.svc.ListStations(cmd.Context())
			if err != nil {
				return err
			}
			printStations(cmd.OutOrStdout(), stations)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "rm STATION_ID",
		Short: "Delete a station that no line uses",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseStationID(args[0])
			if err != nil {
				return err
			}
			if err := a.svc.DeleteStation(cmd.Context(), id); err != nil {
				return err
			}
			printOK(cmd.OutOrStdout(), "Deleted station %d", id)
			return nil
		},
	})

	return cmd
}
