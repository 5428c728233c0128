package main

import (
	"context"
	"flag"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/you/subway/internal/gtfs"
	"github.com/you/subway/internal/seed"
	"github.com/you/subway/repository"
	"github.com/you/subway/service"
)

func main() {
	// Command line flags
	dbPath := flag.String("db", "data/subway.db", "Path to SQLite database")
	gtfsDir := flag.String("gtfs-dir", "data/gtfs", "Directory containing GTFS zip files")
	routeTypes := flag.String("route-types", "1", "Comma separated GTFS route types to import (empty for all)")
	dumpDir := flag.String("dump-dir", "", "If set, also write each derived network as a YAML seed into this directory")
	flag.Parse()

	types, err := parseRouteTypes(*routeTypes)
	if err != nil {
		log.Fatalf("Invalid -route-types: %v", err)
	}

	sqliteDB, err := repository.NewSQLiteDB(*dbPath)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer sqliteDB.Close()

	log.Printf("Connected to database: %s", *dbPath)

	ctx := context.Background()
	if err := sqliteDB.EnsureSchema(ctx); err != nil {
		log.Fatalf("Failed to ensure schema: %v", err)
	}
	svc := service.NewLineService(repository.NewSQLiteStore(sqliteDB))

	entries, err := os.ReadDir(*gtfsDir)
	if err != nil {
		log.Fatalf("Failed to read GTFS directory: %v", err)
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".zip") {
			continue
		}
		zipPath := filepath.Join(*gtfsDir, entry.Name())
		log.Printf("Processing %s...", entry.Name())

		doc, err := buildNetwork(zipPath, types)
		if err != nil {
			log.Printf("ERROR importing %s: %v", entry.Name(), err)
			continue
		}
		if *dumpDir != "" {
			if err := dumpSeed(*dumpDir, entry.Name(), doc); err != nil {
				log.Printf("Warning: failed to write seed for %s: %v", entry.Name(), err)
			}
		}

		res, err := seed.Apply(ctx, svc, doc)
		if err != nil {
			log.Printf("ERROR importing %s: %v", entry.Name(), err)
			continue
		}
		log.Printf("SUCCESS: %s imported (%d stations, %d lines, %d sections, %d lines skipped)",
			entry.Name(), res.StationsCreated, res.LinesCreated, res.SectionsAdded, res.LinesSkipped)
	}
}

func buildNetwork(zipPath string, types []int) (*seed.Document, error) {
	data, err := gtfs.Parse(zipPath)
	if err != nil {
		return nil, err
	}
	return gtfs.BuildLines(data, gtfs.BuildOptions{RouteTypes: types})
}

func dumpSeed(dir, zipName string, doc *seed.Document) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	out, err := yaml.Marshal(doc)
	if err != nil {
		return err
	}
	path := filepath.Join(dir, strings.TrimSuffix(zipName, ".zip")+".yaml")
	log.Printf("Writing seed %s", path)
	return os.WriteFile(path, out, 0o644)
}

func parseRouteTypes(s string) ([]int, error) {
	var types []int
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		t, err := strconv.Atoi(part)
		if err != nil {
			return nil, err
		}
		types = append(types, t)
	}
	return types, nil
}
