// Command migrate applies pending schema migrations to a whatscrm
// database, or reports where a database stands with -status. The
// service migrates on start as well; this tool exists for operators
// who want to upgrade the schema before rolling the binary.
package main

import (
	"database/sql"
	"flag"
	"fmt"
	"log"
	"os"

	"whatscrm/internal/migrations"

	_ "github.com/mattn/go-sqlite3"
)

func main() {
	dbPath := flag.String("db", "./whatscrm.db", "path to the SQLite database")
	status := flag.Bool("status", false, "print applied schema versions and exit")
	create := flag.Bool("create", false, "create the database file if it does not exist")
	flag.Parse()

	if _, err := os.Stat(*dbPath); os.IsNotExist(err) && !*create {
		log.Fatalf("Database file not found: %s (use -create to bootstrap a new one)", *dbPath)
	}

	// The busy timeout lets the tool wait out a running service instead
	// of failing on the first locked page.
	db, err := sql.Open("sqlite3", *dbPath+"?_busy_timeout=5000")
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	if *status {
		printStatus(db)
		return
	}

	fmt.Println("Applying pending migrations...")
	if err := migrations.RunMigrations(db); err != nil {
		log.Fatalf("Migration failed: %v", err)
	}
	fmt.Println("Database schema is up to date. You can now restart whatscrm.")
}

func printStatus(db *sql.DB) {
	applied, err := migrations.AppliedVersions(db)
	if err != nil {
		log.Fatalf("Failed to read schema status: %v", err)
	}

	latest := migrations.LatestVersion()
	if len(applied) == 0 {
		fmt.Printf("No schema versions applied; latest available is %d\n", latest)
		return
	}

	fmt.Printf("Applied versions: %v\n", applied)
	current := applied[len(applied)-1]
	switch {
	case current == latest:
		fmt.Println("Database schema is up to date")
	case current < latest:
		fmt.Printf("Schema is at %d, latest is %d; run without -status to apply\n", current, latest)
	default:
		fmt.Printf("Schema version %d is newer than this build (latest %d); upgrade the binary\n", current, latest)
	}
}
