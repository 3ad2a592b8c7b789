package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"it-inventory-api/internal/config"
	"it-inventory-api/internal/db"
)

func main() {
	verify := flag.Bool("verify", false, "Only report table row counts, do not create anything")
	flag.Parse()

	cfg := config.Load()
	if cfg.DBDSN == "" {
		log.Fatal("DB_DSN environment variable is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	conn, err := db.Open(ctx, cfg.DBDriver, cfg.DBDSN, 1)
	if err != nil {
		log.Fatal("Failed to open database connection:", err)
	}
	defer conn.Close()

	fmt.Printf("Connected to %s database\n", conn.Dialect)

	if !*verify {
		if err := db.EnsureSchema(ctx, conn.DB, conn.Dialect); err != nil {
			log.Fatal("Failed to create schema:", err)
		}
		fmt.Println("Schema is up to date")
	}

	counts, err := db.TableCounts(ctx, conn.DB)
	if err != nil {
		log.Fatal("Verification failed:", err)
	}
	for _, table := range db.Tables {
		fmt.Printf("  %-10s %d rows\n", table, counts[table])
	}
}
