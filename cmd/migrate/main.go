package main

import (
	"log"
	"os"

	"github.com/joho/godotenv"

	"fireway-backend/internal/store/postgres"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file found, using system environment")
	}

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		log.Fatal("DATABASE_URL environment variable is required")
	}

	db, err := postgres.Connect(dbURL)
	if err != nil {
		log.Fatalf("database connection failed: %v", err)
	}
	defer db.Close()

	if err := postgres.Migrate(db); err != nil {
		log.Fatalf("migrations failed: %v", err)
	}

	log.Println("migrations applied")
}
