package storage

import (
	"database/sql"
	"encoding/json"
	"time"

	_ "github.com/lib/pq"
)

type PostgresRepository struct {
	db *sql.DB
}

func NewPostgresRepository(connStr string) (*PostgresRepository, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, err
	}

	repo := &PostgresRepository{db: db}
	if err := repo.createTables(); err != nil {
		db.Close()
		return nil, err
	}

	return repo, nil
}

func (r *PostgresRepository) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS results (
		session_id TEXT PRIMARY KEY,
		face_id TEXT NOT NULL,
		kiosk_id TEXT NOT NULL,
		outcome TEXT NOT NULL,
		reason TEXT,
		temperature DOUBLE PRECISION NOT NULL,
		alcohol_level TEXT NOT NULL,
		started_at TIMESTAMPTZ NOT NULL,
		finished_at TIMESTAMPTZ NOT NULL,
		stages_json JSONB NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_results_kiosk_id ON results(kiosk_id);
	CREATE INDEX IF NOT EXISTS idx_results_finished_at ON results(finished_at);
	`

	_, err := r.db.Exec(schema)
	return err
}

func (r *PostgresRepository) SaveResult(record *ResultRecord) error {
	stagesJSON, err := json.Marshal(record.Stages)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO results (session_id, face_id, kiosk_id, outcome, reason, temperature, alcohol_level, started_at, finished_at, stages_json)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (session_id) DO UPDATE SET
			outcome = EXCLUDED.outcome,
			reason = EXCLUDED.reason,
			temperature = EXCLUDED.temperature,
			alcohol_level = EXCLUDED.alcohol_level,
			finished_at = EXCLUDED.finished_at,
			stages_json = EXCLUDED.stages_json
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
		record.StartedAt,
		record.FinishedAt,
		stagesJSON,
	)

	return err
}

func (r *PostgresRepository) GetResult(sessionID string) (*ResultRecord, error) {
	query := `
		SELECT session_id, face_id, kiosk_id, outcome, reason, temperature, alcohol_level, started_at, finished_at, stages_json
		FROM results
		WHERE session_id = $1
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

func (r *PostgresRepository) GetRecentResults(kioskID string, since time.Time) ([]ResultRecord, error) {
	query := `
		SELECT session_id, face_id, kiosk_id, outcome, reason, temperature, alcohol_level, started_at, finished_at, stages_json
		FROM results
		WHERE kiosk_id = $1 AND finished_at >= $2
		ORDER BY finished_at DESC
	`

	rows, err := r.db.Query(query, kioskID, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return r.scanResults(rows)
}

func (r *PostgresRepository) GetResultStats(kioskID string) (*ResultStats, error) {
	query := `
		SELECT
			COUNT(*) as total,
			COALESCE(SUM(CASE WHEN outcome = 'completed' THEN 1 ELSE 0 END), 0) as completed,
			COALESCE(SUM(CASE WHEN alcohol_level = 'abnormal' THEN 1 ELSE 0 END), 0) as abnormal,
			AVG(CASE WHEN outcome = 'completed' THEN temperature END) as avg_temperature
		FROM results
		WHERE kiosk_id = $1
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

func (r *PostgresRepository) scanResults(rows *sql.Rows) ([]ResultRecord, error) {
	var records []ResultRecord

	for rows.Next() {
		var record ResultRecord
		var reason sql.NullString
		var stagesJSON []byte

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

		if err := json.Unmarshal(stagesJSON, &record.Stages); err != nil {
			return nil, err
		}

		records = append(records, record)
	}

	return records, rows.Err()
}

func (r *PostgresRepository) Close() error {
	return r.db.Close()
}
