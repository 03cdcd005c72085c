// Command purge-sessions is an offline maintenance tool that removes old
// sessions and orphaned workspace directories while the daemon is stopped.
// It applies the same age-based policy as the in-process sweeper, so it is
// mainly useful after long downtime or when the retention window was
// shortened.
//
// Usage:
//
//	CLIPPER_DB_PATH=data/sessions.db go run ./scripts/purge-sessions -max-age 24h
//
// It deletes every session whose created_at is older than -max-age along
// with its workspace directory, then (with -orphans) removes workspace
// directories that have no session row at all. Safe to run multiple times —
// it is idempotent.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"

	"github.com/vodworks/clipper/internal/config"
	"github.com/vodworks/clipper/internal/pipeline"
	"github.com/vodworks/clipper/internal/session"
	"github.com/vodworks/clipper/internal/storage"
	"github.com/vodworks/clipper/internal/task"
	"github.com/vodworks/clipper/internal/workspace"
	"github.com/vodworks/clipper/migrations"
)

func main() {
	maxAge := flag.Duration("max-age", 24*time.Hour, "delete sessions created more than this long ago")
	orphans := flag.Bool("orphans", true, "also remove workspace directories with no session row")
	flag.Parse()

	if err := run(*maxAge, *orphans); err != nil {
		log.Fatal(err)
	}
}

func run(maxAge time.Duration, orphans bool) error {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	store, err := storage.Open(ctx, cfg.DBPath, storage.Options{
		MaxConns:    cfg.DBMaxConns,
		BusyTimeout: cfg.DBBusyTimeout,
	}, logger)
	if err != nil {
		return fmt.Errorf("storage: %w", err)
	}
	defer func() { _ = store.Close() }()

	if err := store.RunMigrations(ctx, migrations.FS); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}

	mgr := session.NewManager(store, workspace.NewCache(), task.NewRegistry(),
		&pipeline.NoopRunner{}, logger, session.Options{WorkspaceRoot: cfg.WorkspaceRoot})

	deleted := mgr.CleanupOldSessions(ctx, maxAge)
	fmt.Printf("purged %d sessions older than %s\n", deleted, maxAge)

	if orphans {
		removed, err := removeOrphanDirs(ctx, store, cfg.WorkspaceRoot)
		if err != nil {
			return err
		}
		fmt.Printf("removed %d orphaned workspace directories\n", removed)
	}
	return nil
}

// removeOrphanDirs deletes workspace directories that have no persisted
// session row. These appear when a crash lands between workspace creation
// and the insert, or after manual database surgery.
func removeOrphanDirs(ctx context.Context, store *storage.Store, root string) (int, error) {
	entries, err := os.ReadDir(root)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read workspace root: %w", err)
	}

	removed := 0
	for _, entry := range entries {
		if !entry.IsDir() || store.Exists(ctx, entry.Name()) {
			continue
		}
		if err := os.RemoveAll(filepath.Join(root, entry.Name())); err != nil {
			return removed, fmt.Errorf("remove %s: %w", entry.Name(), err)
		}
		removed++
	}
	return removed, nil
}
