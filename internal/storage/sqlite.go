package storage

import (
	"database/sql"
	"encoding/json"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}

	repo := &SQLiteRepository{db: db}
	if err := repo.createTables(); err != nil {
		db.Close()
		return nil, err
	}

	return repo, nil
}

func (r *SQLiteRepository) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS results (
		session_id TEXT PRIMARY KEY,
		face_id TEXT NOT NULL,
		kiosk_id TEXT NOT NULL,
		outcome TEXT NOT NULL,
		reason TEXT,
		temperature REAL NOT NULL,
		alcohol_level TEXT NOT NULL,
		started_at DATETIME NOT NULL,
		finished_at DATETIME NOT NULL,
		stages_json TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_results_kiosk_id ON results(kiosk_id);
	CREATE INDEX IF NOT EXISTS idx_results_finished_at ON results(finished_at);
	`

	_, err := r.db.Exec(schema)
	return err
}

// SaveResult upserts so a record written on failure can be replaced if the
// same session id is ever recorded again.
func (r *SQLiteRepository) SaveResult(record *ResultRecord) error {
	stagesJSON, err := json.Marshal(record.Stages)
	if err != nil {
		return err
	}

	query := `
		INSERT OR REPLACE INTO results (session_id, face_id, kiosk_id, outcome, reason, temperature, alcohol_level, started_at, finished_at, stages_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = r.db.Exec(
		query,
		record.SessionID,
		record.FaceID,
		record.KioskID,
		record.Outcome,
		record.Reason,
		record.Temperature,
		record.AlcoholLevel,
		record.StartedAt.UTC(),
		record.FinishedAt.UTC(),
		string(stagesJSON),
	)

	return err
}

func (r *SQLiteRepository) GetResult(sessionID string) (*ResultRecord, error) {
	query := `
		SELECT session_id, face_id, kiosk_id, outcome, reason, temperature, alcohol_level, started_at, finished_at, stages_json
		FROM results
		WHERE session_id = ?
	`

	rows, err := r.db.Query(query, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records, err := r.scanResults(rows)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, ErrResultNotFound
	}
	return &records[0], nil
}

func (r *SQLiteRepository) GetRecentResults(kioskID string, since time.Time) ([]ResultRecord, error) {
	query := `
		SELECT session_id, face_id, kiosk_id, outcome, reason, temperature, alcohol_level, started_at, finished_at, stages_json
		FROM results
		WHERE kiosk_id = ? AND finished_at >= ?
		ORDER BY finished_at DESC
	`

	rows, err := r.db.Query(query, kioskID, since.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return r.scanResults(rows)
}

func (r *SQLiteRepository) GetResultStats(kioskID string) (*ResultStats, error) {
	query := `
		SELECT
			COUNT(*) as total,
			COALESCE(SUM(CASE WHEN outcome = 'completed' THEN 1 ELSE 0 END), 0) as completed,
			COALESCE(SUM(CASE WHEN alcohol_level = 'abnormal' THEN 1 ELSE 0 END), 0) as abnormal,
			AVG(CASE WHEN outcome = 'completed' THEN temperature END) as avg_temperature
		FROM results
		WHERE kiosk_id = ?
	`

	var stats ResultStats
	var avgTemperature sql.NullFloat64

	err := r.db.QueryRow(query, kioskID).Scan(
		&stats.TotalSessions,
		&stats.CompletedCount,
		&stats.AbnormalCount,
		&avgTemperature,
	)
	if err != nil {
		return nil, err
	}

	stats.finish(avgTemperature)
	return &stats, nil
}

func (r *SQLiteRepository) scanResults(rows *sql.Rows) ([]ResultRecord, error) {
	var records []ResultRecord

	for rows.Next() {
		var record ResultRecord
		var reason sql.NullString
		var stagesJSON string

		err := rows.Scan(
			&record.SessionID,
			&record.FaceID,
			&record.KioskID,
			&record.Outcome,
			&reason,
			&record.Temperature,
			&record.AlcoholLevel,
			&record.StartedAt,
			&record.FinishedAt,
			&stagesJSON,
		)
		if err != nil {
			return nil, err
		}
		record.Reason = reason.String

		if err := json.Unmarshal([]byte(stagesJSON), &record.Stages); err != nil {
			return nil, err
		}

		records = append(records, record)
	}

	return records, rows.Err()
}

func (r *SQLiteRepository) Close() error {
	return r.db.Close()
}

func (s *ResultStats) finish(avgTemperature sql.NullFloat64) {
	if avgTemperature.Valid {
		s.AverageTemperature = avgTemperature.Float64
	}
	s.FailedCount = s.TotalSessions - s.CompletedCount
	if s.TotalSessions > 0 {
		s.CompletionRate = float64(s.CompletedCount) / float64(s.TotalSessions) * 100
	}
}
