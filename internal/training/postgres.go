package training

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"iotml/internal/engine"
)

// PostgresSource reads labelled telemetry from the ml_training_samples
// table for the job's organisation and time window.
type PostgresSource struct {
	db *sqlx.DB
}

// OpenPostgres connects to dsn with the lib/pq driver.
func OpenPostgres(ctx context.Context, dsn string) (*PostgresSource, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect telemetry database: %w", err)
	}
	return NewPostgresSource(db), nil
}

func NewPostgresSource(db *sqlx.DB) *PostgresSource {
	return &PostgresSource{db: db}
}

func (s *PostgresSource) Close() error { return s.db.Close() }

type sampleRow struct {
	DeviceID          string          `db:"device_id"`
	Temperature       float64         `db:"temperature"`
	Pressure          float64         `db:"pressure"`
	Vibration         float64         `db:"vibration"`
	Current           float64         `db:"current_a"`
	EnergyConsumption sql.NullFloat64 `db:"energy_consumption"`
	Failure           sql.NullBool    `db:"failure"`
	RULDays           sql.NullFloat64 `db:"rul_days"`
}

const samplesQuery = `
	SELECT
		device_id,
		temperature,
		pressure,
		vibration,
		current_a,
		energy_consumption,
		failure,
		rul_days
	FROM ml_training_samples
	WHERE organization_id = $1
	AND ($2::timestamptz IS NULL OR recorded_at >= $2)
	AND ($3::timestamptz IS NULL OR recorded_at < $3)
	ORDER BY recorded_at
	LIMIT $4`

func (s *PostgresSource) Fetch(ctx context.Context, job Job, n int) (Dataset, error) {
	var rows []sampleRow
	err := s.db.SelectContext(ctx, &rows, samplesQuery, job.OrganizationID, job.DataStart, job.DataEnd, n)
	if err != nil {
		return Dataset{}, fmt.Errorf("failed to query training samples: %w", err)
	}
	return rowsToDataset(job.ModelType, rows), nil
}

// rowsToDataset keeps rows that carry the target the model kind needs.
func rowsToDataset(kind engine.Kind, rows []sampleRow) Dataset {
	features, target := featureSpec(kind)
	cols := map[string][]float64{}
	devices := map[string]struct{}{}
	for _, r := range rows {
		var y float64
		switch target {
		case "energy_consumption":
			if !r.EnergyConsumption.Valid {
				continue
			}
			y = r.EnergyConsumption.Float64
		case "failure":
			if !r.Failure.Valid {
				continue
			}
			if r.Failure.Bool {
				y = 1
			}
		case "rul_days":
			if !r.RULDays.Valid {
				continue
			}
			y = r.RULDays.Float64
		}
		cols["temperature"] = append(cols["temperature"], r.Temperature)
		cols["pressure"] = append(cols["pressure"], r.Pressure)
		cols["vibration"] = append(cols["vibration"], r.Vibration)
		cols["current"] = append(cols["current"], r.Current)
		if target != "" {
			cols[target] = append(cols[target], y)
		}
		devices[r.DeviceID] = struct{}{}
	}
	f := engine.Frame{}
	for _, name := range features {
		f[name] = cols[name]
	}
	if target != "" {
		f[target] = cols[target]
	}
	return Dataset{Frame: f, Features: features, Target: target, DeviceCount: int64(len(devices))}
}
