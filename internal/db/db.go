// Package db stores capture session metadata in sqlite.
package db

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

type DB struct {
	*sql.DB
}

// New opens (creating if necessary) the session database at path and applies
// any pending schema migrations.
func New(path string) (*DB, error) {
	sqldb, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	db := &DB{sqldb}
	if err := db.migrateUp(); err != nil {
		sqldb.Close()
		return nil, fmt.Errorf("failed to migrate session database: %w", err)
	}
	return db, nil
}

// SessionRow is one persisted capture session.
type SessionRow struct {
	ID              int64      `json:"id"`
	Label           string     `json:"label"`
	TrueWeight      string     `json:"true_weight"`
	RequiredSamples uint32     `json:"required_samples"`
	RecordedSamples uint32     `json:"recorded_samples"`
	CSVPath         string     `json:"csv_path"`
	StartedAt       time.Time  `json:"started_at"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
}

// InsertSession records a new session and returns its assigned id.
func (db *DB) InsertSession(label, trueWeight string, requiredSamples uint32, csvPath string) (int64, error) {
	res, err := db.Exec(
		`INSERT INTO sessions (label, true_weight, required_samples, csv_path, started_at)
		 VALUES (?, ?, ?, ?, ?)`,
		label, trueWeight, requiredSamples, csvPath, time.Now().UTC(),
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// CompleteSession marks a session finished with its final recorded count.
func (db *DB) CompleteSession(id int64, recordedSamples uint32) error {
	_, err := db.Exec(
		`UPDATE sessions SET recorded_samples = ?, completed_at = ? WHERE session_id = ?`,
		recordedSamples, time.Now().UTC(), id,
	)
	return err
}

// CompletedSessions returns the number of sessions that have finished.
func (db *DB) CompletedSessions() (int, error) {
	var n int
	err := db.QueryRow(`SELECT COUNT(*) FROM sessions WHERE completed_at IS NOT NULL`).Scan(&n)
	return n, err
}

// Sessions lists all sessions, newest first.
func (db *DB) Sessions() ([]SessionRow, error) {
	rows, err := db.Query(
		`SELECT session_id, label, true_weight, required_samples, recorded_samples, csv_path, started_at, completed_at
		 FROM sessions ORDER BY session_id DESC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []SessionRow
	for rows.Next() {
		var s SessionRow
		var completed sql.NullTime
		if err := rows.Scan(&s.ID, &s.Label, &s.TrueWeight, &s.RequiredSamples, &s.RecordedSamples, &s.CSVPath, &s.StartedAt, &completed); err != nil {
			return nil, err
		}
		if completed.Valid {
			s.CompletedAt = &completed.Time
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}
