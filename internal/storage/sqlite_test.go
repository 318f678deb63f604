package storage_test

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hperssn/kioskcheck/internal/domain"
	"github.com/hperssn/kioskcheck/internal/storage"
)

func newRepo(t *testing.T) storage.Repository {
	t.Helper()

	repo, err := storage.Open("sqlite", filepath.Join(t.TempDir(), "results.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func completedSession(id, kiosk string, temp float64, level domain.Classification, at time.Time) *domain.Session {
	s := domain.NewSession(id, "face-"+id, kiosk)
	s.StartedAt = at
	s.Stages[0].EnteredAt = at
	s.Temperature = temp
	s.HasTemperature = true
	s.Enter(domain.StageAlcohol, at.Add(10*time.Second))
	s.Alcohol = level
	s.Enter(domain.StageDone, at.Add(20*time.Second))
	s.FinishedAt = at.Add(21 * time.Second)
	s.Outcome = &domain.Outcome{Target: domain.TargetCompletion, Temperature: temp, AlcoholLevel: level}
	return s
}

func failedSession(id, kiosk string, at time.Time) *domain.Session {
	s := domain.NewSession(id, "", kiosk)
	s.StartedAt = at
	s.Stages[0].EnteredAt = at
	s.Enter(domain.StageFailed, at.Add(15*time.Second))
	s.FinishedAt = at.Add(15 * time.Second)
	s.FailureReason = "sensor timeout"
	s.Outcome = &domain.Outcome{Target: domain.TargetEntry, Reason: s.FailureReason}
	return s
}

func TestFromDomainSession(t *testing.T) {
	at := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	rec := storage.FromDomainSession(completedSession("a", "k1", 36.6, domain.Normal, at))

	assert.Equal(t, storage.OutcomeCompleted, rec.Outcome)
	assert.Equal(t, "face-a", rec.FaceID)
	require.Len(t, rec.Stages, 3)
	assert.Equal(t, domain.StageTemperature, rec.Stages[0].Stage)
	assert.InDelta(t, 10, rec.Stages[0].Seconds, 1e-9)
	assert.InDelta(t, 10, rec.Stages[1].Seconds, 1e-9)
	assert.InDelta(t, 1, rec.Stages[2].Seconds, 1e-9)

	failed := storage.FromDomainSession(failedSession("b", "k1", at))
	assert.Equal(t, storage.OutcomeFailed, failed.Outcome)
	assert.Equal(t, "sensor timeout", failed.Reason)
}

func TestSQLiteSaveAndGet(t *testing.T) {
	repo := newRepo(t)
	at := time.Now().Add(-time.Minute).UTC().Truncate(time.Second)

	require.NoError(t, repo.SaveResult(storage.FromDomainSession(completedSession("s1", "k1", 36.6, domain.Normal, at))))

	got, err := repo.GetResult("s1")
	require.NoError(t, err)
	assert.Equal(t, storage.OutcomeCompleted, got.Outcome)
	assert.Equal(t, domain.Normal, got.AlcoholLevel)
	assert.InDelta(t, 36.6, got.Temperature, 1e-9)
	assert.True(t, got.StartedAt.Equal(at))
	assert.Len(t, got.Stages, 3)

	_, err = repo.GetResult("missing")
	assert.ErrorIs(t, err, storage.ErrResultNotFound)
}

func TestSQLiteSaveIsUpsert(t *testing.T) {
	repo := newRepo(t)
	at := time.Now().Add(-time.Minute).UTC()

	require.NoError(t, repo.SaveResult(storage.FromDomainSession(failedSession("s1", "k1", at))))
	require.NoError(t, repo.SaveResult(storage.FromDomainSession(completedSession("s1", "k1", 36.9, domain.Abnormal, at))))

	got, err := repo.GetResult("s1")
	require.NoError(t, err)
	assert.Equal(t, storage.OutcomeCompleted, got.Outcome)
	assert.Equal(t, domain.Abnormal, got.AlcoholLevel)
}

func TestSQLiteRecentAndStats(t *testing.T) {
	repo := newRepo(t)
	now := time.Now().UTC()

	require.NoError(t, repo.SaveResult(storage.FromDomainSession(completedSession("old", "k1", 36.0, domain.Normal, now.Add(-48*time.Hour)))))
	require.NoError(t, repo.SaveResult(storage.FromDomainSession(completedSession("new1", "k1", 37.0, domain.Abnormal, now.Add(-time.Hour)))))
	require.NoError(t, repo.SaveResult(storage.FromDomainSession(failedSession("new2", "k1", now.Add(-30*time.Minute)))))
	require.NoError(t, repo.SaveResult(storage.FromDomainSession(completedSession("other", "k2", 36.5, domain.Normal, now.Add(-time.Hour)))))

	recent, err := repo.GetRecentResults("k1", now.Add(-24*time.Hour))
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "new2", recent[0].SessionID)
	assert.Equal(t, "new1", recent[1].SessionID)

	stats, err := repo.GetResultStats("k1")
	require.NoError(t, err)
	assert.Equal(t, 3, stats.TotalSessions)
	assert.Equal(t, 2, stats.CompletedCount)
	assert.Equal(t, 1, stats.FailedCount)
	assert.Equal(t, 1, stats.AbnormalCount)
	assert.InDelta(t, 36.5, stats.AverageTemperature, 1e-9)
	assert.InDelta(t, 66.666, stats.CompletionRate, 0.01)

	empty, err := repo.GetResultStats("nobody")
	require.NoError(t, err)
	assert.Equal(t, 0, empty.TotalSessions)
	assert.Zero(t, empty.CompletionRate)
}

func TestOpenUnknownDriver(t *testing.T) {
	_, err := storage.Open("mysql", "")
	assert.Error(t, err)
}
