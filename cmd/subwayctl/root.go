package main

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/you/subway/models"
	"github.com/you/subway/repository"
	"github.com/you/subway/service"
)

// app holds what every subcommand needs once the database is open
type app struct {
	dbPath string
	db     *repository.SQLiteDB
	svc    *service.LineService
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "subwayctl",
		Short: "Manage subway stations, lines and sections",
		Long: `subwayctl edits the subway line registry directly in its SQLite
database. Every change goes through the same chain rules as the API.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.open(cmd.Context())
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return a.close()
		},
	}

	root.SilenceUsage = true

	defaultDB := os.Getenv("SQLITE_DATABASE")
	if defaultDB == "" {
		defaultDB = "data/subway.db"
	}
	root.PersistentFlags().StringVar(&a.dbPath, "db", defaultDB, "Path to SQLite database")

	root.AddCommand(
		newStationCmd(a),
		newLineCmd(a),
		newSectionCmd(a),
		newImportCmd(a),
	)
	return root
}

func (a *app) open(ctx context.Context) error {
	db, err := repository.NewSQLiteDB(a.dbPath)
	if err != nil {
		return err
	}
	if err := db.EnsureSchema(ctx); err != nil {
		db.Close()
		return err
	}
	a.db = db
	a.svc = service.NewLineService(repository.NewSQLiteStore(db))
	return nil
}

func (a *app) close() error {
	if a.db == nil {
		return nil
	}
	err := a.db.Close()
	a.db = nil
	return err
}

func parseID(name, raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%s must be a positive integer, got %q", name, raw)
	}
	return id, nil
}

func parseStationID(raw string) (models.StationID, error) {
	id, err := parseID("station id", raw)
	return models.StationID(id), err
}
