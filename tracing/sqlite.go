package tracing

import (
	"database/sql"
	"errors"
	"fmt"
	"os"

	// Need to use SQLite connections.
	_ "github.com/mattn/go-sqlite3"

	"github.com/rs/xid"
	"github.com/tebeka/atexit"
)

// ErrNotInitialized is returned when a writer is used before Init.
var ErrNotInitialized = errors.New("trace writer not initialized")

// SQLiteWriter is a Writer that stores events in an SQLite database. Events
// are buffered and inserted in batches.
type SQLiteWriter struct {
	*sql.DB
	statement *sql.Stmt

	dbName    string
	pending   []Event
	batchSize int
}

// NewSQLiteWriter creates a writer for the database at path. If path is
// empty, a unique file name is generated at Init. The writer is closed, and
// its buffered events flushed, when the program exits through atexit.
func NewSQLiteWriter(path string) *SQLiteWriter {
	w := &SQLiteWriter{
		dbName:    path,
		batchSize: 10000,
	}

	atexit.Register(func() { _ = w.Close() })

	return w
}

// WithBatchSize sets the number of events buffered before an insert.
func (w *SQLiteWriter) WithBatchSize(n int) *SQLiteWriter {
	if n > 0 {
		w.batchSize = n
	}
	return w
}

// Path returns the database file name.
func (w *SQLiteWriter) Path() string {
	return w.dbName
}

// Init creates the database, its table and indexes. It fails if the file
// already exists.
func (w *SQLiteWriter) Init() error {
	if w.dbName == "" {
		w.dbName = "instbuf_trace_" + xid.New().String() + ".sqlite3"
	}

	if _, err := os.Stat(w.dbName); err == nil {
		return fmt.Errorf("trace database %s already exists", w.dbName)
	}

	db, err := sql.Open("sqlite3", w.dbName)
	if err != nil {
		return fmt.Errorf("failed to open trace database: %w", err)
	}
	w.DB = db

	if err := w.createTable(); err != nil {
		return err
	}

	stmt, err := w.Prepare(`INSERT INTO trace VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare trace statement: %w", err)
	}
	w.statement = stmt

	return nil
}

func (w *SQLiteWriter) createTable() error {
	stmts := []string{
		`create table trace
		(
			session varchar(20)  not null,
			cycle   integer      not null,
			unit    varchar(100) not null,
			kind    varchar(20)  not null,
			what    varchar(100),
			detail  varchar(200)
		);`,
		`create index trace_cycle_index on trace (cycle);`,
		`create index trace_kind_index on trace (kind);`,
		`create index trace_unit_index on trace (unit);`,
	}

	for _, s := range stmts {
		if _, err := w.Exec(s); err != nil {
			return fmt.Errorf("failed to create trace table: %w", err)
		}
	}

	return nil
}

// Write buffers an event, inserting the batch once it is full.
func (w *SQLiteWriter) Write(event Event) error {
	if w.DB == nil {
		return ErrNotInitialized
	}

	w.pending = append(w.pending, event)
	if len(w.pending) >= w.batchSize {
		return w.Flush()
	}

	return nil
}

// Flush inserts all buffered events in one transaction.
func (w *SQLiteWriter) Flush() error {
	if len(w.pending) == 0 || w.DB == nil {
		return nil
	}

	tx, err := w.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin trace transaction: %w", err)
	}

	stmt := tx.Stmt(w.statement)
	for _, e := range w.pending {
		_, err := stmt.Exec(e.Session, e.Cycle, e.Unit, e.Kind, e.What, e.Detail)
		if err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to insert trace event: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit trace events: %w", err)
	}

	w.pending = nil

	return nil
}

// Close flushes the remaining events and closes the database.
func (w *SQLiteWriter) Close() error {
	if w.DB == nil {
		return nil
	}

	if err := w.Flush(); err != nil {
		return err
	}

	_ = w.statement.Close()
	err := w.DB.Close()
	w.DB = nil

	return err
}
