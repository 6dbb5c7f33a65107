package db

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/process-failed-successfully/codegraph-indexer/internal/model"
)

func TestPostgresStore_SaveExecutesUpsert(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()

	store := &PostgresStore{db: sqlDB}
	now := time.Now()
	cb := "cb-1"
	job := &model.Job{
		ID:         "job-1",
		Kind:       model.KindCodebaseFull,
		Status:     model.StatusPending,
		Trigger:    model.TriggerManual,
		ProjectID:  "proj-1",
		CodebaseID: &cb,
		CreatedAt:  now,
		UpdatedAt:  now,
		Metadata:   model.NewJobMetadata(),
	}

	mock.ExpectExec("INSERT INTO index_jobs").WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, store.Save(context.Background(), job))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_FindReturnsNilWhenMissing(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()

	store := &PostgresStore{db: sqlDB}
	mock.ExpectQuery("SELECT (.|\n)*FROM index_jobs WHERE id = \\$1").
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	got, err := store.Find(context.Background(), "missing")
	require.NoError(t, err)
	require.Nil(t, got)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_FindScansRow(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()

	store := &PostgresStore{db: sqlDB}
	now := time.Now()

	rows := sqlmock.NewRows([]string{
		"id", "kind", "status", "priority", "trigger_type", "project_id", "codebase_id",
		"base_commit", "description", "current_task", "progress", "retry_count",
		"error", "error_stack", "metadata", "created_at", "started_at", "completed_at", "updated_at",
	}).AddRow(
		"job-1", "CODEBASE_FULL", "RUNNING", 5, "MANUAL", "proj-1", "cb-1",
		nil, "", "CodeParse", 30, 0,
		"", "", []byte(`{"tasks":{},"counters":{"filesProcessed":0,"symbolsExtracted":0,"linesOfCode":0},"perLanguage":{"go":3},"warnings":[],"errors":[]}`),
		now, now, nil, now,
	)

	mock.ExpectQuery("SELECT (.|\n)*FROM index_jobs WHERE id = \\$1").
		WithArgs("job-1").
		WillReturnRows(rows)

	got, err := store.Find(context.Background(), "job-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, model.StatusRunning, got.Status)
	require.Equal(t, "CodeParse", got.CurrentTask)
	require.Equal(t, 3, got.Metadata.PerLanguage["go"])
	require.NoError(t, mock.ExpectationsWereMet())
}
