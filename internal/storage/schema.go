package storage

import (
	"fmt"
	"strings"
)

// Dialect selects SQL syntax differences between the supported drivers.
type Dialect string

const (
	DialectSQLite Dialect = "sqlite"
	DialectMySQL  Dialect = "mysql"
)

// table is a minimal DDL builder. Columns are written in MySQL syntax and
// translated for SQLite.
type table struct {
	name    string
	columns []string
	indexes [][2]string // name, columns
}

func newTable(name string) *table { return &table{name: name} }

func (t *table) column(def string) *table {
	t.columns = append(t.columns, def)
	return t
}

func (t *table) index(name, columns string) *table {
	t.indexes = append(t.indexes, [2]string{name, columns})
	return t
}

// statements returns the CREATE TABLE and CREATE INDEX statements.
func (t *table) statements(d Dialect) []string {
	cols := make([]string, len(t.columns))
	for i, c := range t.columns {
		if d == DialectSQLite {
			c = mysqlToSQLite(c)
		}
		cols[i] = c
	}
	stmts := []string{fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n\t%s\n)", t.name, strings.Join(cols, ",\n\t"))}
	for _, idx := range t.indexes {
		if d == DialectSQLite {
			stmts = append(stmts, fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s(%s)", idx[0], t.name, idx[1]))
			continue
		}
		stmts = append(stmts, fmt.Sprintf("CREATE INDEX %s ON %s(%s)", idx[0], t.name, idx[1]))
	}
	return stmts
}

func mysqlToSQLite(col string) string {
	col = strings.ReplaceAll(col, "BIGINT PRIMARY KEY AUTO_INCREMENT", "INTEGER PRIMARY KEY AUTOINCREMENT")
	col = strings.ReplaceAll(col, "DOUBLE", "REAL")
	for {
		start := strings.Index(col, "VARCHAR(")
		if start < 0 {
			break
		}
		end := strings.Index(col[start:], ")")
		if end < 0 {
			break
		}
		col = col[:start] + "TEXT" + col[start+end+1:]
	}
	return col
}

// detectionsTable stores one row per canonical detection. created_at is the
// detection instant in unix milliseconds (insert time when the timestamp is
// unparseable) and drives newest-first ordering.
func detectionsTable() *table {
	return newTable("detections").
		column("seq BIGINT PRIMARY KEY AUTO_INCREMENT").
		column("id VARCHAR(191) NOT NULL UNIQUE").
		column("depth DOUBLE NOT NULL").
		column("severity VARCHAR(16) NOT NULL").
		column("observed_at VARCHAR(64) NOT NULL").
		column("location VARCHAR(255) NOT NULL").
		column("raw VARCHAR(255) NOT NULL").
		column("vehicle VARCHAR(255) NOT NULL").
		column("source VARCHAR(64) NOT NULL").
		column("created_at BIGINT NOT NULL").
		index("idx_detections_created", "created_at DESC, seq DESC")
}
