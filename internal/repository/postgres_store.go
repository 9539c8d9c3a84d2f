package repository

import (
	"context"
	"database/sql"
	"fmt"

	"smartgrid-monitor/internal/models"

	"go.uber.org/zap"
)

const createMetricsTable = `
	CREATE TABLE IF NOT EXISTS turbine_metrics (
		id                  BIGSERIAL PRIMARY KEY,
		turbine_number      INTEGER          NOT NULL,
		wind_speed          DOUBLE PRECISION NOT NULL,
		power_output_in_kwh DOUBLE PRECISION NOT NULL,
		operational_status  TEXT             NOT NULL,
		timestamp           DOUBLE PRECISION NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_turbine_metrics_turbine ON turbine_metrics (turbine_number, id);
`

// PostgresStore 遥测写入 turbine_metrics 表，按 turbine_number 分区查询
type PostgresStore struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewPostgresStore 创建 PostgreSQL 存储
func NewPostgresStore(db *sql.DB, logger *zap.Logger) *PostgresStore {
	return &PostgresStore{
		db:     db,
		logger: logger,
	}
}

// Backend 存储后端名
func (s *PostgresStore) Backend() string {
	return "postgres"
}

// EnsureSchema 建表（幂等）
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, createMetricsTable); err != nil {
		return fmt.Errorf("failed to create turbine_metrics: %w", err)
	}
	return nil
}

// Append 插入一条遥测
func (s *PostgresStore) Append(ctx context.Context, ev *models.TelemetryEvent) error {
	query := `
		INSERT INTO turbine_metrics (
			turbine_number,
			wind_speed,
			power_output_in_kwh,
			operational_status,
			timestamp
		) VALUES ($1, $2, $3, $4, $5)
	`

	_, err := s.db.ExecContext(ctx, query,
		ev.TurbineNumber,
		ev.WindSpeed,
		ev.PowerOutputInKWh,
		string(ev.Status),
		ev.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to insert telemetry for turbine %d: %w", ev.TurbineNumber, err)
	}
	return nil
}

// ReadPartition 按插入顺序读取一台风机的全部记录
func (s *PostgresStore) ReadPartition(ctx context.Context, turbine int) ([]models.TelemetryEvent, error) {
	query := `
		SELECT turbine_number, wind_speed, power_output_in_kwh, operational_status, timestamp
		FROM turbine_metrics
		WHERE turbine_number = $1
		ORDER BY id
	`

	rows, err := s.db.QueryContext(ctx, query, turbine)
	if err != nil {
		return nil, fmt.Errorf("failed to query telemetry for turbine %d: %w", turbine, err)
	}
	defer rows.Close()

	var events []models.TelemetryEvent
	for rows.Next() {
		var (
			ev     models.TelemetryEvent
			status string
		)
		if err := rows.Scan(&ev.TurbineNumber, &ev.WindSpeed, &ev.PowerOutputInKWh, &status, &ev.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan telemetry: %w", err)
		}
		ev.Status = models.Status(status)
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate telemetry: %w", err)
	}
	return events, nil
}
