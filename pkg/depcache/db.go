package depcache

import (
	"database/sql"
	"encoding/json"
	"fmt"

	_ "modernc.org/sqlite"
)

// DB is the persistent key/value store for fingerprints. spec.md §9 calls
// for "a single-file embedded store" that "tolerates schema mismatch by
// treating unreadable entries as misses" — modernc.org/sqlite gives a
// pure-Go, cgo-free single-file database satisfying exactly that.
type DB struct {
	conn *sql.DB
}

// OpenDB opens (creating if absent) the fingerprint database at path.
func OpenDB(path string) (*DB, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if _, err := conn.Exec(`CREATE TABLE IF NOT EXISTS fingerprints (
		key TEXT PRIMARY KEY,
		value BLOB
	)`); err != nil {
		conn.Close()
		return nil, fmt.Errorf("depcache: create schema: %w", err)
	}
	return &DB{conn: conn}, nil
}

func (db *DB) Close() error {
	return db.conn.Close()
}

// Load returns the stored Fingerprint for key, or ok=false on a miss. Any
// decode error (corrupt row, schema drift) is treated as a miss per
// spec.md §4.4's "tolerates schema mismatch by treating unreadable entries
// as misses" — it is deliberately not surfaced as an error.
func (db *DB) Load(key string) (Fingerprint, bool) {
	var raw []byte
	err := db.conn.QueryRow(`SELECT value FROM fingerprints WHERE key = ?`, key).Scan(&raw)
	if err != nil {
		return Fingerprint{}, false
	}
	var fp Fingerprint
	if err := json.Unmarshal(raw, &fp); err != nil {
		return Fingerprint{}, false
	}
	return fp, true
}

// Store writes (or overwrites) the Fingerprint for key.
func (db *DB) Store(key string, fp Fingerprint) error {
	raw, err := json.Marshal(fp)
	if err != nil {
		return err
	}
	_, err = db.conn.Exec(
		`INSERT INTO fingerprints (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, raw,
	)
	return err
}

// Evict removes key, used when a fingerprint mismatch or missing produced
// digest is detected on a would-be hit.
func (db *DB) Evict(key string) error {
	_, err := db.conn.Exec(`DELETE FROM fingerprints WHERE key = ?`, key)
	return err
}
