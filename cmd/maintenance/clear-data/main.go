package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/pobtrack/pob-backend/internal/config"
	"github.com/pobtrack/pob-backend/internal/database"
)

// Transactional POB tables. Master data (personnel, locations, devices, vehicles) is kept.
var tables = []string{
	"event_attendances",
	"events",
	"attendance_records",
	"scan_audit_logs",
}

func main() {
	var dbURLFlag string
	var keepVisitors bool
	flag.StringVar(&dbURLFlag, "database-url", "", "PostgreSQL connection string (overrides DATABASE_URL)")
	flag.BoolVar(&keepVisitors, "keep-visitors", false, "leave visitor card assignments in place")
	flag.Parse()

	// Try loading .env from current working directory (optional)
	_ = godotenv.Load()

	dbURL := dbURLFlag
	if dbURL == "" {
		dbURL = os.Getenv("DATABASE_URL")
	}
	if dbURL == "" {
		log.Fatal("DATABASE_URL is not set and -database-url was not provided")
	}

	// Build minimal database config without loading full app config
	dbCfg := config.DatabaseConfig{
		URL:                dbURL,
		MaxConnections:     2,
		MaxIdleConnections: 1,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	db, err := database.NewConnection(ctx, dbCfg)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	defer db.Close()

	fmt.Println("Connected to database. Truncating attendance data...")

	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		log.Fatalf("failed to begin transaction: %v", err)
	}
	defer tx.Rollback()

	truncateSQL := `
TRUNCATE TABLE
    event_attendances,
    events,
    attendance_records,
    scan_audit_logs
RESTART IDENTITY CASCADE;`

	if _, err := tx.ExecContext(ctx, truncateSQL); err != nil {
		log.Fatalf("failed to truncate tables: %v", err)
	}

	if !keepVisitors {
		res, err := tx.ExecContext(ctx, `
			UPDATE personnel
			SET visitor_name = NULL, visitor_company = NULL,
			    visitor_location_id = NULL, visitor_checked_in_at = NULL
			WHERE is_spare = TRUE AND visitor_name IS NOT NULL`)
		if err != nil {
			log.Fatalf("failed to release visitor cards: %v", err)
		}
		n, _ := res.RowsAffected()
		fmt.Printf("Released %d visitor card(s).\n", n)
	}

	if err := tx.Commit(); err != nil {
		log.Fatalf("failed to commit: %v", err)
	}

	fmt.Println("Attendance data cleared (tables truncated, identities reset).")

	fmt.Println("Post-clear row counts:")
	for _, t := range tables {
		var count int
		if err := db.GetContext(ctx, &count, fmt.Sprintf("SELECT COUNT(*) FROM %s", t)); err != nil {
			fmt.Printf("  %s: error: %v\n", t, err)
			continue
		}
		fmt.Printf("  %s: %d\n", t, count)
	}
}
