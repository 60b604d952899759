package store

import (
	"database/sql"
	"net/url"
	"path/filepath"
	"testing"
)

func testRawDB(t *testing.T) *sql.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	u := url.URL{Scheme: "file", Path: path}
	db, err := sql.Open("sqlite", u.String())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func sqliteDialect(t *testing.T, prefix string) dialect {
	t.Helper()
	d, err := newDialect(DriverSQLite, prefix)
	if err != nil {
		t.Fatalf("dialect: %v", err)
	}
	return d
}

func tableExists(t *testing.T, db *sql.DB, name string) bool {
	t.Helper()
	var count int
	if err := db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", name).Scan(&count); err != nil {
		t.Fatalf("check %s: %v", name, err)
	}
	return count == 1
}

func TestRunMigrationsFreshDB(t *testing.T) {
	db := testRawDB(t)
	d := sqliteDialect(t, "")

	if err := runMigrations(db, d); err != nil {
		t.Fatalf("run migrations: %v", err)
	}

	version, err := currentVersion(db, d)
	if err != nil {
		t.Fatalf("current version: %v", err)
	}
	if version != 2 {
		t.Fatalf("expected version 2, got %d", version)
	}
	for _, name := range []string{"posts", "settings", "image_migration_log", "image_migration_schema"} {
		if !tableExists(t, db, name) {
			t.Fatalf("%s table not created", name)
		}
	}
}

func TestRunMigrationsIdempotent(t *testing.T) {
	db := testRawDB(t)
	d := sqliteDialect(t, "")

	if err := runMigrations(db, d); err != nil {
		t.Fatalf("first run: %v", err)
	}
	if err := runMigrations(db, d); err != nil {
		t.Fatalf("second run: %v", err)
	}

	var rows int
	if err := db.QueryRow("SELECT COUNT(*) FROM image_migration_schema").Scan(&rows); err != nil {
		t.Fatalf("count: %v", err)
	}
	if rows != 2 {
		t.Fatalf("expected 2 recorded migrations, got %d", rows)
	}
}

func TestRunMigrationsTablePrefix(t *testing.T) {
	db := testRawDB(t)
	d := sqliteDialect(t, "flarum_")

	if err := runMigrations(db, d); err != nil {
		t.Fatalf("run migrations: %v", err)
	}
	for _, name := range []string{"flarum_posts", "flarum_settings", "flarum_image_migration_log", "flarum_image_migration_schema"} {
		if !tableExists(t, db, name) {
			t.Fatalf("%s table not created", name)
		}
	}
	if tableExists(t, db, "posts") {
		t.Fatal("unprefixed posts table should not exist")
	}
}

func TestForumDialectSkipsHostTables(t *testing.T) {
	d, err := newDialect(DriverMySQL, "")
	if err != nil {
		t.Fatalf("dialect: %v", err)
	}
	if stmts := migrations[0].Statements(d); len(stmts) != 0 {
		t.Fatalf("forum databases must not get host tables, got %d statements", len(stmts))
	}
	if stmts := migrations[1].Statements(d); len(stmts) != 1 {
		t.Fatalf("expected a single mysql log statement, got %d", len(stmts))
	}
	if d.renderedColumn() != "content" {
		t.Fatalf("forum posts should be read from content, got %q", d.renderedColumn())
	}
	if _, err := newDialect("postgres", ""); err == nil {
		t.Fatal("expected error for unsupported driver")
	}
}

func TestMigrationPlan(t *testing.T) {
	db := testRawDB(t)

	plan, err := MigrationPlan(db, DriverSQLite, Options{})
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	if plan.CurrentVersion != 0 || plan.AvailableVersion != 2 || len(plan.Pending) != 2 {
		t.Fatalf("unexpected fresh plan %+v", plan)
	}

	if err := runMigrations(db, sqliteDialect(t, "")); err != nil {
		t.Fatalf("run migrations: %v", err)
	}

	plan, err = MigrationPlan(db, DriverSQLite, Options{})
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	if plan.CurrentVersion != 2 || len(plan.Pending) != 0 {
		t.Fatalf("unexpected plan after migrations %+v", plan)
	}
}
