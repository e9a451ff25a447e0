package store

import (
	"database/sql"
	"fmt"

	"github.com/ademuri/last-fm-dashboard/internal/migration"
	_ "github.com/mattn/go-sqlite3"
)

const busyTimeoutMS = 5000

type Store struct {
	db *sql.DB
}

// New opens or creates the database at dbPath. The sync loop writes while the
// HTTP server reads, so the database runs in WAL mode with a busy timeout.
func New(dbPath string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_busy_timeout=%d&_journal_mode=WAL", dbPath, busyTimeoutMS)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if err := createTables(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating tables: %w", err)
	}

	if err := ensureSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("ensuring schema: %w", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func createTables(db *sql.DB) error {
	exists, err := dbExists(db)
	if err != nil {
		return err
	}

	if !exists {
		if _, err := db.Exec(migration.Create); err != nil {
			return fmt.Errorf("executing migration: %w", err)
		}
	}

	return createDurationTable(db)
}

func dbExists(db *sql.DB) (bool, error) {
	// 'User' is created first, so it stands in for the whole schema.
	row := db.QueryRow("SELECT name FROM sqlite_master WHERE type = 'table' AND name = 'User'")
	var name string
	err := row.Scan(&name)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("checking db existence: %w", err)
	}
	return true, nil
}

// createDurationTable covers databases created before durations were tracked.
func createDurationTable(db *sql.DB) error {
	query := `
CREATE TABLE IF NOT EXISTS TrackDuration (
  track TEXT,
  artist TEXT,
  duration_ms INTEGER NOT NULL DEFAULT 0,
  fetched DATETIME,
  PRIMARY KEY (track, artist)
);

CREATE INDEX IF NOT EXISTS ListenUserDate ON Listen (user, date);
`
	if _, err := db.Exec(query); err != nil {
		return fmt.Errorf("creating duration table: %w", err)
	}
	return nil
}

func ensureSchema(db *sql.DB) error {
	// Listen.image_url
	if err := addColumnIfNotExists(db, "Listen", "image_url", "TEXT"); err != nil {
		return err
	}
	return nil
}

func addColumnIfNotExists(db *sql.DB, table, column, typeDef string) error {
	exists, err := columnExists(db, table, column)
	if err != nil {
		return fmt.Errorf("checking column %s.%s: %w", table, column, err)
	}
	if !exists {
		query := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", table, column, typeDef)
		if _, err := db.Exec(query); err != nil {
			return fmt.Errorf("adding column %s.%s: %w", table, column, err)
		}
	}
	return nil
}

func columnExists(db *sql.DB, tableName string, columnName string) (bool, error) {
	rows, err := db.Query(fmt.Sprintf("PRAGMA table_info(%s)", tableName))
	if err != nil {
		return false, err
	}
	defer rows.Close()

	for rows.Next() {
		var cid int
		var name string
		var ctype string
		var notnull int
		var dfltValue interface{}
		var pk int
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dfltValue, &pk); err != nil {
			return false, err
		}
		if name == columnName {
			return true, nil
		}
	}
	return false, rows.Err()
}
