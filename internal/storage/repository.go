package storage

import (
	"errors"
	"fmt"
	"time"
)

var ErrResultNotFound = errors.New("result not found")

type Repository interface {
	SaveResult(record *ResultRecord) error

	GetResult(sessionID string) (*ResultRecord, error)

	GetRecentResults(kioskID string, since time.Time) ([]ResultRecord, error)

	GetResultStats(kioskID string) (*ResultStats, error)

	Close() error
}

type ResultStats struct {
	TotalSessions      int     `json:"totalSessions"`
	CompletedCount     int     `json:"completedCount"`
	FailedCount        int     `json:"failedCount"`
	AbnormalCount      int     `json:"abnormalCount"`
	AverageTemperature float64 `json:"averageTemperature"`
	CompletionRate     float64 `json:"completionRate"`
}

// Open picks a backend by driver name.
func Open(driver, dsn string) (Repository, error) {
	switch driver {
	case "sqlite":
		return NewSQLiteRepository(dsn)
	case "postgres":
		return NewPostgresRepository(dsn)
	}
	return nil, fmt.Errorf("unsupported storage driver %q", driver)
}
