package store

import (
	"database/sql"
	"fmt"
	"sort"
	"time"
)

// Migration represents a schema migration step.
type Migration struct {
	Version     int
	Description string
	// Statements returns the DDL for a dialect. mysql cannot run several
	// statements in one Exec, so each step is a list.
	Statements func(d dialect) []string
}

// MigrationStatus reports the current and available migration versions.
type MigrationStatus struct {
	CurrentVersion   int             `json:"current_version" yaml:"current_version"`
	AvailableVersion int             `json:"available_version" yaml:"available_version"`
	Pending          []MigrationInfo `json:"pending" yaml:"pending"`
}

// MigrationInfo describes a single migration.
type MigrationInfo struct {
	Version     int    `json:"version" yaml:"version"`
	Description string `json:"description" yaml:"description"`
}

// migrations is the ordered list of all schema migrations.
var migrations = []Migration{
	{
		Version:     1,
		Description: "standalone posts and settings tables",
		Statements: func(d dialect) []string {
			if !d.ownsHostTables {
				return nil
			}
			return []string{
				`CREATE TABLE IF NOT EXISTS ` + d.posts() + ` (
  id INTEGER PRIMARY KEY,
  discussion_id INTEGER NOT NULL,
  number INTEGER,
  type TEXT NOT NULL DEFAULT 'comment',
  content TEXT NOT NULL DEFAULT '',
  rendered TEXT
)`,
				`CREATE INDEX IF NOT EXISTS ` + d.indexName("posts_discussion") + ` ON ` + d.posts() + `(discussion_id, type)`,
				"CREATE TABLE IF NOT EXISTS " + d.settings() + " (\n  `key` TEXT PRIMARY KEY,\n  `value` TEXT\n)",
			}
		},
	},
	{
		Version:     2,
		Description: "image migration log",
		Statements: func(d dialect) []string {
			if d.driver == DriverMySQL {
				return []string{
					`CREATE TABLE IF NOT EXISTS ` + d.log() + ` (
  id BIGINT UNSIGNED NOT NULL AUTO_INCREMENT PRIMARY KEY,
  discussion_id INT UNSIGNED NOT NULL,
  post_id INT UNSIGNED NOT NULL,
  original_url TEXT NOT NULL,
  new_url TEXT NOT NULL,
  created_at VARCHAR(40) NOT NULL,
  INDEX ` + d.indexName("log_discussion") + ` (discussion_id),
  INDEX ` + d.indexName("log_post") + ` (post_id)
) DEFAULT CHARSET=utf8mb4`,
				}
			}
			return []string{
				`CREATE TABLE IF NOT EXISTS ` + d.log() + ` (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  discussion_id INTEGER NOT NULL,
  post_id INTEGER NOT NULL,
  original_url TEXT NOT NULL,
  new_url TEXT NOT NULL,
  created_at TEXT NOT NULL
)`,
				`CREATE INDEX IF NOT EXISTS ` + d.indexName("log_discussion") + ` ON ` + d.log() + `(discussion_id)`,
				`CREATE INDEX IF NOT EXISTS ` + d.indexName("log_post") + ` ON ` + d.log() + `(post_id)`,
			}
		},
	},
}

func migrationsTableSQL(d dialect) string {
	return `CREATE TABLE IF NOT EXISTS ` + d.schemaTable() + ` (
  version INTEGER PRIMARY KEY,
  applied_at VARCHAR(40) NOT NULL
)`
}

// ensureMigrationsTable creates the schema table if it doesn't exist.
func ensureMigrationsTable(db *sql.DB, d dialect) error {
	_, err := db.Exec(migrationsTableSQL(d))
	return err
}

// currentVersion returns the highest applied migration version, or 0 if none.
func currentVersion(db *sql.DB, d dialect) (int, error) {
	var version int
	err := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM " + d.schemaTable()).Scan(&version)
	if err != nil {
		return 0, err
	}
	return version, nil
}

func sortedMigrations() []Migration {
	sorted := make([]Migration, len(migrations))
	copy(sorted, migrations)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Version < sorted[j].Version })
	return sorted
}

// runMigrations applies all pending migrations in order.
func runMigrations(db *sql.DB, d dialect) error {
	if err := ensureMigrationsTable(db, d); err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	current, err := currentVersion(db, d)
	if err != nil {
		return fmt.Errorf("get current version: %w", err)
	}

	for _, m := range sortedMigrations() {
		if m.Version <= current {
			continue
		}

		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", m.Version, err)
		}

		for _, stmt := range m.Statements(d) {
			if _, err := tx.Exec(stmt); err != nil {
				_ = tx.Rollback()
				return fmt.Errorf("apply migration %d (%s): %w", m.Version, m.Description, err)
			}
		}

		if _, err := tx.Exec("INSERT INTO "+d.schemaTable()+" (version, applied_at) VALUES (?, ?)", m.Version, formatTime(time.Now())); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("record migration %d: %w", m.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.Version, err)
		}
	}

	return nil
}

// MigrationPlan returns the current migration status without applying anything.
func MigrationPlan(db *sql.DB, driver string, opts Options) (*MigrationStatus, error) {
	d, err := newDialect(driver, opts.TablePrefix)
	if err != nil {
		return nil, err
	}
	if err := ensureMigrationsTable(db, d); err != nil {
		return nil, err
	}

	current, err := currentVersion(db, d)
	if err != nil {
		return nil, err
	}

	sorted := sortedMigrations()
	available := 0
	if len(sorted) > 0 {
		available = sorted[len(sorted)-1].Version
	}

	var pending []MigrationInfo
	for _, m := range sorted {
		if m.Version > current {
			pending = append(pending, MigrationInfo{Version: m.Version, Description: m.Description})
		}
	}

	return &MigrationStatus{
		CurrentVersion:   current,
		AvailableVersion: available,
		Pending:          pending,
	}, nil
}
