package telemetry

import (
	"database/sql"
	"fmt"
	"sync"

	// Pure Go SQLite driver, registered as "sqlite".
	_ "github.com/glebarez/go-sqlite"

	"github.com/rs/xid"
	"github.com/tebeka/atexit"
)

const createTicks = `CREATE TABLE IF NOT EXISTS ticks (
	run_id     TEXT    NOT NULL,
	ts_unix_ms INTEGER NOT NULL,
	temp_c     REAL    NOT NULL,
	avg_c      REAL    NOT NULL,
	mode       TEXT    NOT NULL,
	duty       INTEGER NOT NULL,
	rpm        INTEGER,
	err        TEXT
)`

const insertTick = `INSERT INTO ticks
	(run_id, ts_unix_ms, temp_c, avg_c, mode, duty, rpm, err)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

// SQLiteSink stores ticks in a SQLite database. Rows are buffered and written
// in one transaction per batch. Every process run gets its own run id.
type SQLiteSink struct {
	*sql.DB
	statement *sql.Stmt

	mu        sync.Mutex
	runID     string
	pending   []Record
	batchSize int
	dropped   int
	closed    bool
}

func NewSQLiteSink(path string, batchSize int) (*SQLiteSink, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	if _, err := db.Exec(createTicks); err != nil {
		db.Close()
		return nil, err
	}

	stmt, err := db.Prepare(insertTick)
	if err != nil {
		db.Close()
		return nil, err
	}

	if batchSize < 1 {
		batchSize = 1
	}

	s := &SQLiteSink{
		DB:        db,
		statement: stmt,
		runID:     xid.New().String(),
		batchSize: batchSize,
	}

	atexit.Register(func() { s.Close() })

	return s, nil
}

// RunID identifies the rows written by this process.
func (s *SQLiteSink) RunID() string {
	return s.runID
}

func (s *SQLiteSink) Write(r Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pending = append(s.pending, r)
	if len(s.pending) >= s.batchSize {
		return s.flush()
	}
	return nil
}

// flush writes the buffered ticks in one transaction. A failed batch is
// rolled back and discarded, so a broken database never holds more than one
// batch in memory.
func (s *SQLiteSink) flush() error {
	if len(s.pending) == 0 || s.closed {
		return nil
	}

	err := s.insertPending()
	if err != nil {
		n := len(s.pending)
		s.dropped += n
		err = fmt.Errorf("sqlite: dropped %d ticks (%d this run): %w", n, s.dropped, err)
	}
	s.pending = s.pending[:0]
	return err
}

func (s *SQLiteSink) insertPending() error {
	tx, err := s.Begin()
	if err != nil {
		return err
	}

	stmt := tx.Stmt(s.statement)
	for _, r := range s.pending {
		var rpm sql.NullInt64
		if r.RPM != nil {
			rpm = sql.NullInt64{Int64: int64(*r.RPM), Valid: true}
		}
		var errText sql.NullString
		if r.Err != nil {
			errText = sql.NullString{String: r.Err.Error(), Valid: true}
		}

		_, err := stmt.Exec(s.runID, r.Time.UnixMilli(), r.Temperature, r.Average,
			r.Mode.String(), r.DutyCycle, rpm, errText)
		if err != nil {
			tx.Rollback()
			return err
		}
	}

	return tx.Commit()
}

func (s *SQLiteSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	err := s.flush()
	s.closed = true
	s.statement.Close()
	if cerr := s.DB.Close(); err == nil {
		err = cerr
	}
	return err
}
