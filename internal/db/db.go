package db

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"regexp"
	"sort"
	"strconv"
	"strings"

	_ "github.com/mattn/go-sqlite3"
)

// Open opens (or creates) the SQLite database holding users and follow
// edges, and brings its schema up to date from internal/db/migrations:
//
//	0001_name.up.sql / 0001_name.down.sql
//
// Use RollbackLast to revert the last applied migration.
func Open(path string) (*sql.DB, error) {
	if path == "" {
		path = "app.db"
	}
	d, err := sql.Open("sqlite3", withConnParams(path))
	if err != nil {
		return nil, err
	}
	if err := d.Ping(); err != nil {
		_ = d.Close()
		return nil, err
	}
	// In-memory databases reject WAL; that is fine.
	_, _ = d.Exec(`PRAGMA journal_mode=WAL`)
	if err := migrateUp(d); err != nil {
		_ = d.Close()
		return nil, err
	}
	return d, nil
}

// withConnParams sets foreign keys and the busy timeout in the DSN so every
// pooled connection gets them, not just the one a PRAGMA happens to run on.
func withConnParams(path string) string {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + "_foreign_keys=on&_busy_timeout=5000"
}

// SchemaVersion returns the highest applied migration, 0 for an empty schema.
func SchemaVersion(d *sql.DB) (int, error) {
	if err := ensureMigrationsTable(d); err != nil {
		return 0, err
	}
	var v sql.NullInt64
	if err := d.QueryRow(`SELECT MAX(version) FROM schema_migrations`).Scan(&v); err != nil {
		return 0, err
	}
	return int(v.Int64), nil
}

// RollbackLast reverts the most recently applied migration. An empty schema
// is left alone.
func RollbackLast(d *sql.DB) error {
	if d == nil {
		return errors.New("nil db")
	}
	version, err := SchemaVersion(d)
	if err != nil || version == 0 {
		return err
	}
	migs, err := loadMigrations()
	if err != nil {
		return err
	}
	for _, m := range migs {
		if m.version != version {
			continue
		}
		if m.downFile == "" {
			break
		}
		return runScript(d, m.downFile, `DELETE FROM schema_migrations WHERE version = ?`, version)
	}
	return fmt.Errorf("no down migration for version %04d", version)
}

//go:embed migrations/*.sql
var migrationsFS embed.FS

type migration struct {
	version  int
	name     string
	upFile   string
	downFile string
}

var migFileRe = regexp.MustCompile(`^([0-9]{4})_(.+)\.(up|down)\.sql$`)

// loadMigrations pairs up and down scripts by version, oldest first.
func loadMigrations() ([]migration, error) {
	list, err := fs.ReadDir(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("read migrations: %w", err)
	}
	byVersion := map[int]*migration{}
	for _, de := range list {
		parts := migFileRe.FindStringSubmatch(de.Name())
		if de.IsDir() || parts == nil {
			continue
		}
		v, _ := strconv.Atoi(parts[1])
		m, ok := byVersion[v]
		if !ok {
			m = &migration{version: v, name: parts[2]}
			byVersion[v] = m
		}
		file := "migrations/" + de.Name()
		if parts[3] == "up" {
			m.upFile = file
		} else {
			m.downFile = file
		}
	}
	out := make([]migration, 0, len(byVersion))
	for _, m := range byVersion {
		out = append(out, *m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].version < out[j].version })
	return out, nil
}

func ensureMigrationsTable(d *sql.DB) error {
	_, err := d.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
        version INTEGER PRIMARY KEY,
        applied_at TEXT NOT NULL DEFAULT (CURRENT_TIMESTAMP)
    )`)
	return err
}

func appliedVersions(d *sql.DB) (map[int]bool, error) {
	rows, err := d.Query(`SELECT version FROM schema_migrations`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	got := map[int]bool{}
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		got[v] = true
	}
	return got, rows.Err()
}

// migrateUp applies every migration not yet recorded, in version order.
func migrateUp(d *sql.DB) error {
	migs, err := loadMigrations()
	if err != nil {
		return err
	}
	if err := ensureMigrationsTable(d); err != nil {
		return err
	}
	applied, err := appliedVersions(d)
	if err != nil {
		return err
	}
	for _, m := range migs {
		if applied[m.version] {
			continue
		}
		if m.upFile == "" {
			return fmt.Errorf("missing up migration for version %04d", m.version)
		}
		if err := runScript(d, m.upFile, `INSERT INTO schema_migrations(version) VALUES(?)`, m.version); err != nil {
			return fmt.Errorf("migration %04d (%s) failed: %w", m.version, m.name, err)
		}
	}
	return nil
}

// runScript executes an embedded script and the bookkeeping statement in one
// transaction, unless the script opts out with a leading "-- NO_TX".
func runScript(d *sql.DB, file, bookkeeping string, version int) error {
	b, err := migrationsFS.ReadFile(file)
	if err != nil {
		return err
	}
	script := string(b)
	if strings.HasPrefix(strings.TrimSpace(script), "-- NO_TX") {
		if _, err := d.Exec(script); err != nil {
			return err
		}
		_, err := d.Exec(bookkeeping, version)
		return err
	}
	tx, err := d.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	if _, err := tx.Exec(script); err != nil {
		return err
	}
	if _, err := tx.Exec(bookkeeping, version); err != nil {
		return err
	}
	return tx.Commit()
}
