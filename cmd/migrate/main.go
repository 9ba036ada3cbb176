package main

import (
	"database/sql"
	"log"
	"os"

	"github.com/joho/godotenv"
	_ "github.com/mattn/go-sqlite3"

	"supportbot/internal/storage/sqlite"
)

func main() {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: .env file not found, using existing environment variables")
	}

	path := os.Getenv("DB_PATH")
	if path == "" {
		path = "support.db"
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		log.Fatalf("Failed to open database at %s: %v", path, err)
	}
	defer db.Close()

	log.Printf("Applying migrations to %s", path)
	if err := sqlite.RunMigrations(db); err != nil {
		log.Fatalf("Migration failed: %v", err)
	}
	log.Println("Migrations applied successfully")
}
