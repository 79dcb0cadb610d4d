package store

import (
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// CurrentVersion is the schema version written by this package.
const CurrentVersion = 2

// Upgrade moves an index from Version-1 to Version.
type Upgrade struct {
	Version int
	Stmts   []string
}

// Upgrades lists every schema step in order.
var Upgrades = []Upgrade{
	{
		Version: 2,
		Stmts: []string{
			`CREATE TABLE IF NOT EXISTS subscription (
				userid       TEXT NOT NULL,
				mboxname     TEXT NOT NULL,
				last_ts      INTEGER NOT NULL,
				unsubscribed INTEGER NOT NULL DEFAULT 0,
				PRIMARY KEY (userid, mboxname)
			)`,
			`CREATE INDEX IF NOT EXISTS idx_event_identity ON event(command, identity)`,
		},
	},
}

var (
	// ErrSchemaTooNew is returned when the index was written by a newer version.
	ErrSchemaTooNew = errors.New("index schema is newer than supported")

	// ErrNoSchema is returned when an index without a schema is opened
	// without Init.
	ErrNoSchema = errors.New("index has no schema")
)

// Options controls Open.
type Options struct {
	// Init creates the file and schema if they do not exist yet.
	Init bool

	// ReadOnly rejects writes once the schema is checked.
	ReadOnly bool
}

// Store is an open backup index.
type Store struct {
	db *sql.DB
}

var uriEscaper = strings.NewReplacer("%", "%25", "?", "%3f", "#", "%23")

func dsn(path string, init bool) string {
	mode := "rw"
	if init {
		mode = "rwc"
	}
	return "file:" + uriEscaper.Replace(path) + "?mode=" + mode
}

// Open opens the index at path, creating or upgrading its schema as
// permitted by opts.
func Open(path string, opts Options) (*Store, error) {
	if !opts.Init {
		// SQLite reports a missing file only as "unable to open".
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("index %s: %w", path, err)
		}
	}

	db, err := sql.Open("sqlite3", dsn(path, opts.Init))
	if err != nil {
		return nil, fmt.Errorf("failed to open index: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to open index %s: %w", path, err)
	}

	// SQLite has a single writer; the backup lock already serializes us.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}

	if err := applySchema(db, opts.Init); err != nil {
		db.Close()
		return nil, fmt.Errorf("index %s: %w", path, err)
	}

	if opts.ReadOnly {
		if _, err := db.Exec("PRAGMA query_only = ON"); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set query_only: %w", err)
		}
	}

	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	return nil
}

// SchemaVersion returns the stored schema version.
func (s *Store) SchemaVersion() (int, error) {
	return schemaVersion(s.db)
}

func schemaVersion(db *sql.DB) (int, error) {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return 0, fmt.Errorf("get user_version: %w", err)
	}
	return version, nil
}

// applySchema initializes a new index or upgrades an old one.
func applySchema(db *sql.DB, init bool) error {
	version, err := schemaVersion(db)
	if err != nil {
		return err
	}

	switch {
	case version > CurrentVersion:
		return fmt.Errorf("%w: version %d, supported %d", ErrSchemaTooNew, version, CurrentVersion)
	case version == CurrentVersion:
		return nil
	case version == 0:
		if !init {
			return ErrNoSchema
		}
		return initSchema(db)
	default:
		return runUpgrades(db, version)
	}
}

func initSchema(db *sql.DB) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("init schema: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}
	if _, err := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", CurrentVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}
	return tx.Commit()
}

// runUpgrades applies every step newer than version, in order, in one
// transaction.
func runUpgrades(db *sql.DB, version int) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("upgrade schema: %w", err)
	}
	defer tx.Rollback()

	for _, up := range Upgrades {
		if up.Version <= version {
			continue
		}
		for _, stmt := range up.Stmts {
			if _, err := tx.Exec(stmt); err != nil {
				return fmt.Errorf("upgrade to v%d: %w", up.Version, err)
			}
		}
		version = up.Version
	}

	if _, err := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", version)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}
	return tx.Commit()
}
