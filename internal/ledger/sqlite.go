package ledger

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
	"github.com/tiiuae/patrolengine/internal/types"
)

// SQLiteStore persists the ledger so incidents survive restarts.
type SQLiteStore struct {
	conn *sql.DB
}

func OpenSQLite(dbPath string) (*SQLiteStore, error) {
	connStr := fmt.Sprintf("file:%s?_journal_mode=WAL&_synchronous=NORMAL&_foreign_keys=on", dbPath)

	conn, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, errors.WithMessage(err, "failed to open database")
	}

	// single writer
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)
	conn.SetConnMaxLifetime(time.Hour)

	s := &SQLiteStore{conn: conn}
	if err := s.initialize(); err != nil {
		conn.Close()
		return nil, errors.WithMessage(err, "failed to initialize database")
	}

	return s, nil
}

func (s *SQLiteStore) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS emergencies (
		id INTEGER PRIMARY KEY,
		emergency_type TEXT NOT NULL,
		location_x REAL NOT NULL,
		location_y REAL NOT NULL,
		severity INTEGER NOT NULL CHECK (severity BETWEEN 1 AND 5),
		status TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		image BLOB
	);

	CREATE TABLE IF NOT EXISTS emergency_changelog (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		emergency_id INTEGER NOT NULL,
		timestamp DATETIME NOT NULL,
		status TEXT NOT NULL,
		FOREIGN KEY (emergency_id) REFERENCES emergencies(id)
	);

	CREATE INDEX IF NOT EXISTS idx_changelog_emergency ON emergency_changelog(emergency_id, seq);
	`

	_, err := s.conn.Exec(schema)
	return err
}

func (s *SQLiteStore) Close() error {
	return s.conn.Close()
}

func (s *SQLiteStore) Insert(rec EmergencyRecord) error {
	var image interface{}
	if len(rec.Image) > 0 {
		image = rec.Image
	}
	_, err := s.conn.Exec(`
		INSERT INTO emergencies (id, emergency_type, location_x, location_y, severity, status, created_at, description, image)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, string(rec.Type), rec.Location.X, rec.Location.Y, rec.Severity,
		string(rec.Status), rec.CreatedAt, rec.Description, image)
	return err
}

// AppendChange writes the changelog entry and the new status in one
// transaction.
func (s *SQLiteStore) AppendChange(id int64, entry ChangelogEntry) error {
	tx, err := s.conn.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.Exec(`UPDATE emergencies SET status = ? WHERE id = ?`, string(entry.Status), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.WithMessagef(ErrNotFound, "id %d", id)
	}

	_, err = tx.Exec(`INSERT INTO emergency_changelog (emergency_id, timestamp, status) VALUES (?, ?, ?)`,
		id, entry.Timestamp, string(entry.Status))
	if err != nil {
		return err
	}

	return tx.Commit()
}

func (s *SQLiteStore) LoadAll() ([]EmergencyRecord, error) {
	rows, err := s.conn.Query(`
		SELECT id, emergency_type, location_x, location_y, severity, status, created_at, description, image
		FROM emergencies ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := make([]EmergencyRecord, 0)
	byID := make(map[int64]int)
	for rows.Next() {
		var r EmergencyRecord
		var kind, status string
		if err := rows.Scan(&r.ID, &kind, &r.Location.X, &r.Location.Y, &r.Severity, &status, &r.CreatedAt, &r.Description, &r.Image); err != nil {
			return nil, err
		}
		r.Type = types.EmergencyType(kind)
		r.Status = Status(status)
		r.CreatedAt = r.CreatedAt.UTC()
		if len(r.Image) == 0 {
			r.Image = nil
		}
		r.Changelog = make([]ChangelogEntry, 0)
		byID[r.ID] = len(records)
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	changes, err := s.conn.Query(`SELECT emergency_id, timestamp, status FROM emergency_changelog ORDER BY seq`)
	if err != nil {
		return nil, err
	}
	defer changes.Close()

	for changes.Next() {
		var id int64
		var entry ChangelogEntry
		var status string
		if err := changes.Scan(&id, &entry.Timestamp, &status); err != nil {
			return nil, err
		}
		entry.Timestamp = entry.Timestamp.UTC()
		entry.Status = Status(status)
		if i, ok := byID[id]; ok {
			records[i].Changelog = append(records[i].Changelog, entry)
		}
	}

	return records, changes.Err()
}
