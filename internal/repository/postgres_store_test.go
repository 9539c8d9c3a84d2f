package repository

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"smartgrid-monitor/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func setupMockMetricsDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock, *PostgresStore) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	return db, mock, NewPostgresStore(db, zap.NewNop())
}

func TestPostgresStore_EnsureSchema(t *testing.T) {
	db, mock, store := setupMockMetricsDB(t)
	defer db.Close()

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS turbine_metrics`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, store.EnsureSchema(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Append(t *testing.T) {
	db, mock, store := setupMockMetricsDB(t)
	defer db.Close()

	ev := telemetry(3, models.StatusBroken, 1700000000.25)
	mock.ExpectExec(`INSERT INTO turbine_metrics`).
		WithArgs(3, 10.0, 1200.0, "broken", 1700000000.25).
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, store.Append(context.Background(), ev))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_AppendError(t *testing.T) {
	db, mock, store := setupMockMetricsDB(t)
	defer db.Close()

	mock.ExpectExec(`INSERT INTO turbine_metrics`).
		WillReturnError(errors.New("connection reset"))

	err := store.Append(context.Background(), telemetry(1, models.StatusHealthy, 1))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "turbine 1")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ReadPartition(t *testing.T) {
	db, mock, store := setupMockMetricsDB(t)
	defer db.Close()

	rows := sqlmock.NewRows([]string{
		"turbine_number", "wind_speed", "power_output_in_kwh", "operational_status", "timestamp",
	}).
		AddRow(2, 5.5, 800.0, "ok", 10.0).
		AddRow(2, 5.5, 800.0, "broken", 11.0)

	mock.ExpectQuery(`SELECT`).
		WithArgs(2).
		WillReturnRows(rows)

	events, err := store.ReadPartition(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, models.StatusBroken, events[1].Status)
	assert.Equal(t, 11.0, events[1].Timestamp)
	require.NoError(t, mock.ExpectationsWereMet())
}
