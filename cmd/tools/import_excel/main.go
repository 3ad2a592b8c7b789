package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"

	"go.uber.org/zap"

	"it-inventory-api/internal/auth"
	"it-inventory-api/internal/config"
	"it-inventory-api/internal/db"
	"it-inventory-api/internal/logger"
	"it-inventory-api/internal/models"
	"it-inventory-api/internal/service"
	"it-inventory-api/internal/store"
	"it-inventory-api/pkg/importer"
)

const usage = "Usage: import_excel --file=path.xlsx [--actor=name] [--mapping=configs/mapping/inventory.yaml] [--max-errors=N] [--dry-run]"

func main() {
	var filePath, mappingPath string
	actor := "import-cli"
	maxErrors := importer.DefaultMaxErrors
	dryRun := false

	for _, arg := range os.Args[1:] {
		switch {
		case strings.HasPrefix(arg, "--file="):
			filePath = strings.TrimPrefix(arg, "--file=")
		case strings.HasPrefix(arg, "--actor="):
			actor = strings.TrimPrefix(arg, "--actor=")
		case strings.HasPrefix(arg, "--mapping="):
			mappingPath = strings.TrimPrefix(arg, "--mapping=")
		case strings.HasPrefix(arg, "--max-errors="):
			if _, err := fmt.Sscanf(strings.TrimPrefix(arg, "--max-errors="), "%d", &maxErrors); err != nil {
				log.Fatalf("Invalid max-errors: %v", err)
			}
		case arg == "--dry-run":
			dryRun = true
		}
	}

	if filePath == "" || strings.TrimSpace(actor) == "" {
		fmt.Println("Error: file and actor are required")
		fmt.Println(usage)
		os.Exit(1)
	}

	cfg := config.Load()
	if mappingPath == "" {
		mappingPath = cfg.ImportMapping
	}

	lg, err := logger.New(cfg.LogLevel, "console", "import_excel")
	if err != nil {
		log.Fatalf("Logger error: %v", err)
	}
	defer lg.Sync()

	ctx := context.Background()
	conn, err := db.Open(ctx, cfg.DBDriver, cfg.DBDSN, cfg.DBMaxConns)
	if err != nil {
		lg.Fatal("failed to connect to database", zap.Error(err))
	}
	defer conn.Close()
	if err := db.EnsureSchema(ctx, conn.DB, conn.Dialect); err != nil {
		lg.Fatal("failed to ensure schema", zap.Error(err))
	}

	file, err := os.Open(filePath)
	if err != nil {
		lg.Fatal("failed to open Excel file", zap.Error(err))
	}
	defer file.Close()

	st := store.New(conn.DB)
	mut := service.NewMutator(st, lg, service.OptionsFromConfig(cfg), nil)
	im := importer.New(mut, st, lg)

	// The CLI runs with operator rights; the actor is what the audit trail shows.
	p := &auth.Principal{Subject: actor, Roles: []string{models.RoleManager}}
	meta := models.RequestMeta{UserAgent: "import_excel"}

	fmt.Printf("Importing from %s as %s (dry_run=%v)\n", filePath, actor, dryRun)
	fmt.Println("=" + strings.Repeat("=", 60))

	summary, err := im.ImportExcel(ctx, p, meta, file, importer.ImportOptions{
		MappingPath: mappingPath,
		DryRun:      dryRun,
		MaxErrors:   maxErrors,
	})
	printSummary(summary)
	if err != nil {
		lg.Fatal("import failed", zap.Error(err))
	}
}

func printSummary(summary importer.ImportSummary) {
	fmt.Println("\n" + strings.Repeat("=", 60))
	fmt.Println("IMPORT SUMMARY")
	fmt.Println(strings.Repeat("=", 60))

	fmt.Printf("Total created: %d\n", summary.Created)
	fmt.Printf("Total updated: %d\n", summary.Updated)
	fmt.Printf("Total unchanged: %d\n", summary.Unchanged)
	fmt.Printf("Total skipped: %d\n", summary.Skipped)
	fmt.Printf("Total errors: %d\n", summary.Errors)
	fmt.Printf("Locations created: %d\n", summary.LocationsCreated)
	fmt.Printf("Dry run: %v\n", summary.DryRun)

	if len(summary.Sheets) > 0 {
		fmt.Println("\nSheet Details:")
		for _, sheet := range summary.Sheets {
			fmt.Printf("  %s: created=%d, updated=%d, unchanged=%d, skipped=%d, errors=%d\n",
				sheet.Name, sheet.Created, sheet.Updated, sheet.Unchanged, sheet.Skipped, sheet.Errors)

			if len(sheet.Samples) > 0 {
				fmt.Printf("    Error samples:\n")
				for _, sample := range sheet.Samples {
					fmt.Printf("      Row %d: %s\n", sample.Row, sample.Message)
				}
			}
		}
	}
}
