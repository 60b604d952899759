package store

import "fmt"

// dialect captures the SQL differences between the standalone sqlite
// database and a forum mysql database.
type dialect struct {
	driver string
	prefix string
	// ownsHostTables is true when posts and settings live in a database
	// this tool created itself.
	ownsHostTables bool
}

func newDialect(driver, prefix string) (dialect, error) {
	switch driver {
	case DriverSQLite, "":
		return dialect{driver: DriverSQLite, prefix: prefix, ownsHostTables: true}, nil
	case DriverMySQL:
		return dialect{driver: DriverMySQL, prefix: prefix}, nil
	default:
		return dialect{}, fmt.Errorf("unsupported db driver %q", driver)
	}
}

func (d dialect) table(name string) string {
	return "`" + d.prefix + name + "`"
}

func (d dialect) posts() string       { return d.table("posts") }
func (d dialect) settings() string    { return d.table("settings") }
func (d dialect) log() string         { return d.table("image_migration_log") }
func (d dialect) schemaTable() string { return d.table("image_migration_schema") }

// renderedColumn selects the content the image extractor reads. Forum posts
// keep only the stored markup, which already carries IMG elements.
func (d dialect) renderedColumn() string {
	if d.ownsHostTables {
		return "COALESCE(rendered, content)"
	}
	return "content"
}

func (d dialect) indexName(name string) string {
	return "`" + "idx_" + d.prefix + name + "`"
}
