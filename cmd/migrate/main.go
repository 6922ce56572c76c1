package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	_ "github.com/lib/pq"

	"github.com/ignite/outreach-engine/internal/config"
	"github.com/ignite/outreach-engine/internal/pkg/logger"
)

var engineTables = []string{
	"sending_accounts", "campaigns", "campaign_steps", "campaign_recipients",
	"send_jobs", "delivery_events", "account_signals",
}

func main() {
	log := logger.With("component", "migrate")

	cfg, err := config.LoadFromEnv(os.Getenv("CONFIG_PATH"))
	if err != nil {
		log.Error("load config", "error", err)
		os.Exit(1)
	}
	if cfg.Database.URL == "" {
		log.Error("DATABASE_URL is required")
		os.Exit(1)
	}

	dir := "migrations"
	listOnly := false
	for _, a := range os.Args[1:] {
		if a == "--list" {
			listOnly = true
		} else {
			dir = a
		}
	}

	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		log.Error("connect", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	ctx := context.Background()
	if err := db.PingContext(ctx); err != nil {
		log.Error("ping", "error", err)
		os.Exit(1)
	}
	log.Info("connected to database")

	if listOnly {
		if err := listTables(ctx, db); err != nil {
			log.Error("list tables", "error", err)
			os.Exit(1)
		}
		return
	}

	files, err := migrationFiles(dir)
	if err != nil {
		log.Error("read migrations", "dir", dir, "error", err)
		os.Exit(1)
	}

	var okCount, errCount int
	for _, f := range files {
		if err := apply(ctx, db, filepath.Join(dir, f)); err != nil {
			log.Error("migration failed", "file", f, "error", err)
			errCount++
			continue
		}
		log.Info("migration applied", "file", f)
		okCount++
	}
	log.Info("migrations complete", "ok", okCount, "errors", errCount)
	if errCount > 0 {
		os.Exit(1)
	}
}

func migrationFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)
	return files, nil
}

func apply(ctx context.Context, db *sql.DB, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if strings.TrimSpace(string(data)) == "" {
		return nil
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	if _, err := tx.ExecContext(ctx, string(data)); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

// listTables prints which engine tables exist.
func listTables(ctx context.Context, db *sql.DB) error {
	rows, err := db.QueryContext(ctx,
		`SELECT tablename FROM pg_tables WHERE schemaname = 'public' ORDER BY tablename`)
	if err != nil {
		return err
	}
	defer rows.Close()

	present := make(map[string]bool)
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return err
		}
		present[t] = true
	}
	if err := rows.Err(); err != nil {
		return err
	}

	missing := 0
	for _, t := range engineTables {
		mark := "ok"
		if !present[t] {
			mark = "missing"
			missing++
		}
		fmt.Printf("  %-22s %s\n", t, mark)
	}
	fmt.Printf("Total: %d of %d engine tables\n", len(engineTables)-missing, len(engineTables))
	return nil
}
