package tracedb

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	// Registers the sqlite3 driver.
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/xid"
)

// ErrExists is returned by Open when the database file is already present.
var ErrExists = errors.New("tracedb: database already exists")

const schema = `
CREATE TABLE packets (
	id               INTEGER PRIMARY KEY AUTOINCREMENT,
	sequence_id      INTEGER NOT NULL,
	timestamp        INTEGER NOT NULL,
	kind             TEXT    NOT NULL,
	event_type       TEXT,
	name             TEXT,
	category         TEXT,
	track_uuid       INTEGER,
	sequence_flags   INTEGER NOT NULL,
	previous_dropped INTEGER NOT NULL,
	value            REAL
);
CREATE TABLE args (
	packet_id INTEGER NOT NULL REFERENCES packets(id),
	name      TEXT    NOT NULL,
	value     TEXT    NOT NULL
);
CREATE TABLE tracks (
	uuid        INTEGER PRIMARY KEY,
	parent_uuid INTEGER,
	name        TEXT,
	pid         INTEGER,
	tid         INTEGER,
	counter     INTEGER NOT NULL
);
CREATE INDEX packets_by_sequence ON packets (sequence_id, id);
`

// Writer stores decoded traces in a SQLite database.
//
// Track uuids are 64-bit and SQLite integers are signed, so uuids are stored
// as the int64 with the same bits.
type Writer struct {
	*sql.DB

	path    string
	decoder *Decoder

	packetStmt *sql.Stmt
	argStmt    *sql.Stmt
	trackStmt  *sql.Stmt
}

// Open creates a new database at path. An empty path generates a unique
// probez_trace_<id> name in the working directory; a path without an
// extension gets ".sqlite3".
func Open(path string) (*Writer, error) {
	if path == "" {
		path = "probez_trace_" + xid.New().String()
	}
	if filepath.Ext(path) == "" {
		path += ".sqlite3"
	}
	if _, err := os.Stat(path); err == nil {
		return nil, fmt.Errorf("%w: %s", ErrExists, path)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("tracedb: open %s: %w", path, err)
	}
	w := &Writer{DB: db, path: path, decoder: NewDecoder()}
	if err := w.init(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return w, nil
}

func (w *Writer) init() error {
	if _, err := w.Exec(schema); err != nil {
		return fmt.Errorf("tracedb: create schema: %w", err)
	}

	var err error
	if w.packetStmt, err = w.Prepare(`INSERT INTO packets
		(sequence_id, timestamp, kind, event_type, name, category, track_uuid, sequence_flags, previous_dropped, value)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`); err != nil {
		return fmt.Errorf("tracedb: prepare packets: %w", err)
	}
	if w.argStmt, err = w.Prepare(`INSERT INTO args (packet_id, name, value) VALUES (?, ?, ?)`); err != nil {
		return fmt.Errorf("tracedb: prepare args: %w", err)
	}
	if w.trackStmt, err = w.Prepare(`INSERT OR REPLACE INTO tracks
		(uuid, parent_uuid, name, pid, tid, counter) VALUES (?, ?, ?, ?, ?, ?)`); err != nil {
		return fmt.Errorf("tracedb: prepare tracks: %w", err)
	}
	return nil
}

// Path returns the database file name.
func (w *Writer) Path() string {
	return w.path
}

// Write decodes trace and inserts all of its packets in one transaction.
// Consecutive calls share interning state, so a trace read in chunks can be
// written chunk by chunk.
func (w *Writer) Write(trace []byte) error {
	packets, tracks, err := w.decoder.Decode(trace)
	if err != nil {
		return fmt.Errorf("tracedb: decode: %w", err)
	}

	tx, err := w.Begin()
	if err != nil {
		return fmt.Errorf("tracedb: begin: %w", err)
	}
	if err := w.insert(tx, packets, tracks); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("tracedb: commit: %w", err)
	}
	return nil
}

func (w *Writer) insert(tx *sql.Tx, packets []Packet, tracks []Track) error {
	packetStmt, argStmt, trackStmt := tx.Stmt(w.packetStmt), tx.Stmt(w.argStmt), tx.Stmt(w.trackStmt)

	for i := range packets {
		pkt := &packets[i]
		var value sql.NullFloat64
		if pkt.Value != nil {
			value = sql.NullFloat64{Float64: *pkt.Value, Valid: true}
		}
		res, err := packetStmt.Exec(
			pkt.SequenceID,
			int64(pkt.Timestamp), //nolint:gosec // nanosecond timestamps fit
			pkt.Kind,
			nullString(pkt.EventType),
			nullString(pkt.Name),
			nullString(pkt.Category),
			int64(pkt.TrackUUID), //nolint:gosec // bit pattern preserved
			int64(pkt.Flags),     //nolint:gosec // small flag set
			pkt.PreviousDropped,
			value,
		)
		if err != nil {
			return fmt.Errorf("tracedb: insert packet: %w", err)
		}
		if len(pkt.Args) == 0 {
			continue
		}
		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("tracedb: packet id: %w", err)
		}
		for _, a := range pkt.Args {
			if _, err := argStmt.Exec(id, a.Name, a.Value); err != nil {
				return fmt.Errorf("tracedb: insert arg: %w", err)
			}
		}
	}

	for _, t := range tracks {
		if _, err := trackStmt.Exec(
			int64(t.UUID),       //nolint:gosec // bit pattern preserved
			int64(t.ParentUUID), //nolint:gosec // bit pattern preserved
			nullString(t.Name),
			int64(t.Pid), //nolint:gosec // os pids fit
			int64(t.Tid), //nolint:gosec // thread ids fit
			t.Counter,
		); err != nil {
			return fmt.Errorf("tracedb: insert track: %w", err)
		}
	}
	return nil
}

// Close releases the prepared statements and the database.
func (w *Writer) Close() error {
	var errs []error
	for _, stmt := range []*sql.Stmt{w.packetStmt, w.argStmt, w.trackStmt} {
		if stmt != nil {
			errs = append(errs, stmt.Close())
		}
	}
	errs = append(errs, w.DB.Close())
	return errors.Join(errs...)
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
