package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/url"
	"os"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
)

// setup-db creates the service database named in AUTH_DB_URL. Run once per
// environment before migrations.
func main() {
	_ = godotenv.Load()

	dbURL := os.Getenv("AUTH_DB_URL")
	if dbURL == "" {
		log.Fatal("AUTH_DB_URL is required")
	}

	parsed, err := url.Parse(dbURL)
	if err != nil {
		log.Fatalf("failed to parse DB URL: %v", err)
	}
	if len(parsed.Path) < 2 {
		log.Fatal("no database name in URL")
	}
	dbName, err := url.QueryUnescape(parsed.Path[1:])
	if err != nil {
		log.Fatalf("failed to unescape database name: %v", err)
	}

	adminURL := os.Getenv("AUTH_DB_ADMIN_URL")
	if adminURL == "" {
		admin := *parsed
		admin.Path = "/postgres"
		adminURL = admin.String()
	}
	db, err := sql.Open("pgx", adminURL)
	if err != nil {
		log.Fatalf("failed to connect to postgres: %v", err)
	}
	defer db.Close()

	ctx := context.Background()
	if err := db.PingContext(ctx); err != nil {
		log.Fatalf("failed to ping postgres: %v", err)
	}

	if _, err := db.ExecContext(ctx, fmt.Sprintf(`CREATE DATABASE "%s"`, dbName)); err != nil {
		log.Fatalf("failed to create database: %v", err)
	}
	fmt.Printf("database %q created\n", dbName)
}
